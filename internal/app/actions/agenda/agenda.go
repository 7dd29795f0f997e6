// Package agenda implements the agenda_item.* actions, the agenda
// numbering and the cross-meeting agenda forward.
package agenda

import (
	"context"
	"sort"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/htmlsanitize"
	"github.com/plenumhq/plenum/internal/domain"
)

func Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "agenda_item.update", Schema: updateSchema, Handle: update},
		{Name: "agenda_item.assign", Schema: assignSchema, Handle: assign},
		{Name: "agenda_item.sort", Schema: sortSchema, Handle: sortTree},
		{Name: "agenda_item.delete", Schema: deleteSchema, Handle: remove},
		{Name: "agenda_item.numbering", Schema: numberingSchema, Handle: numbering},
		{Name: "agenda_item.forward", Schema: forwardSchema, Handle: forward},
	}
}

var updateSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":              map[string]any{"type": "integer", "minimum": 1},
		"item_number":     map[string]any{"type": "string"},
		"comment":         map[string]any{"type": "string"},
		"type":            map[string]any{"type": "string", "enum": []any{"common", "internal", "hidden"}},
		"closed":          map[string]any{"type": "boolean"},
		"duration":        map[string]any{"type": "integer", "minimum": 0},
		"moderator_notes": map[string]any{"type": "string"},
		"weight":          map[string]any{"type": "integer"},
	},
	"required":             []any{"id"},
	"additionalProperties": false,
}

var assignSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meeting_id": map[string]any{"type": "integer", "minimum": 1},
		"ids":        map[string]any{"type": "array", "items": map[string]any{"type": "integer", "minimum": 1}, "minItems": 1},
		"parent_id":  map[string]any{"type": []any{"integer", "null"}},
	},
	"required":             []any{"meeting_id", "ids", "parent_id"},
	"additionalProperties": false,
}

var sortSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meeting_id": map[string]any{"type": "integer", "minimum": 1},
		"tree":       map[string]any{"type": "array"},
	},
	"required":             []any{"meeting_id", "tree"},
	"additionalProperties": false,
}

var deleteSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id": map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"id"},
	"additionalProperties": false,
}

var numberingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meeting_id": map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"meeting_id"},
	"additionalProperties": false,
}

func update(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	fqid := domain.FQID{Collection: "agenda_item", ID: datastore.Int(instance["id"])}
	fields, err := r.Fetch.Get(ctx, fqid, "meeting_id")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(fields["meeting_id"])

	_, hasNotes := instance["moderator_notes"]
	if hasNotes {
		if err := r.RequirePerm(ctx, meetingID, perms.AgendaItemCanManageModeratorNotes); err != nil {
			return nil, nil, err
		}
	}
	if !hasNotes || len(instance) > 2 {
		if err := r.RequirePerm(ctx, meetingID, perms.AgendaItemCanManage); err != nil {
			return nil, nil, err
		}
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	htmlsanitize.Fields(instance, "moderator_notes")

	if t, ok := instance["type"]; ok {
		instance["is_internal"] = datastore.String(t) == "internal"
		instance["is_hidden"] = datastore.String(t) == "hidden"
	}
	events, err := r.Update(ctx, fqid, instance)
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func assign(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.AgendaItemCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}

	parentID := datastore.Int(instance["parent_id"])
	if parentID != 0 {
		fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "agenda_item", ID: parentID}, "meeting_id")
		if err != nil {
			return nil, nil, err
		}
		if datastore.Int(fields["meeting_id"]) != meetingID {
			return nil, nil, apperror.New(apperror.BadRequest,
				"Agenda item %d is not in meeting %d.", parentID, meetingID)
		}
	}

	var events []datastore.Event
	for _, id := range datastore.IntList(instance["ids"]) {
		if id == parentID {
			return nil, nil, apperror.New(apperror.BadRequest,
				"Agenda item %d cannot be its own parent.", id)
		}
		fqid := domain.FQID{Collection: "agenda_item", ID: id}
		fields, err := r.Fetch.Get(ctx, fqid, "meeting_id")
		if err != nil {
			return nil, nil, err
		}
		if datastore.Int(fields["meeting_id"]) != meetingID {
			return nil, nil, apperror.New(apperror.BadRequest,
				"Agenda item %d is not in meeting %d.", id, meetingID)
		}
		var parent any
		if parentID != 0 {
			parent = parentID
		}
		ev, err := r.Update(ctx, fqid, map[string]any{"parent_id": parent})
		if err != nil {
			return nil, nil, err
		}
		r.Fetch.ApplyEvents(ev)
		events = append(events, ev...)
	}
	return nil, events, nil
}

func sortTree(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.AgendaItemCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}

	forest, err := actions.ParseSortForest(instance["tree"])
	if err != nil {
		return nil, nil, err
	}
	existing, err := r.Fetch.Filter(ctx, "agenda_item", domain.Eq("meeting_id", meetingID), "id")
	if err != nil {
		return nil, nil, err
	}
	expected := make(map[int]bool, len(existing))
	for id := range existing {
		expected[id] = true
	}
	items, err := actions.SortForest(forest, expected)
	if err != nil {
		return nil, nil, err
	}

	events := make([]datastore.Event, 0, len(items))
	for _, item := range items {
		fields := map[string]any{
			"weight":    item.Weight,
			"child_ids": item.ChildIDs,
		}
		if item.ParentID != 0 {
			fields["parent_id"] = item.ParentID
		} else {
			fields["parent_id"] = nil
		}
		events = append(events, datastore.UpdateEvent(domain.FQID{Collection: "agenda_item", ID: item.ID}, fields))
	}
	return nil, events, nil
}

func remove(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	fqid := domain.FQID{Collection: "agenda_item", ID: datastore.Int(instance["id"])}
	fields, err := r.Fetch.Get(ctx, fqid, "meeting_id")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(fields["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.AgendaItemCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	events, err := r.Delete(ctx, fqid)
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func numbering(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.AgendaItemCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}

	meeting, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID},
		"agenda_numeral_system", "agenda_number_prefix", "agenda_show_internal_items_on_projector")
	if err != nil {
		return nil, nil, err
	}
	cfg := NumberingConfig{
		NumeralSystem: datastore.String(meeting["agenda_numeral_system"]),
		Prefix:        datastore.String(meeting["agenda_number_prefix"]),
		ShowInternal:  datastore.Bool(meeting["agenda_show_internal_items_on_projector"]),
	}
	if cfg.NumeralSystem == "" {
		cfg.NumeralSystem = "arabic"
	}

	data, err := r.Fetch.Filter(ctx, "agenda_item", domain.Eq("meeting_id", meetingID),
		"parent_id", "weight", "is_hidden", "is_internal")
	if err != nil {
		return nil, nil, err
	}
	items := make([]NumberingItem, 0, len(data))
	for id, fields := range data {
		items = append(items, NumberingItem{
			ID:       id,
			ParentID: datastore.Int(fields["parent_id"]),
			Weight:   datastore.Int(fields["weight"]),
			Hidden:   datastore.Bool(fields["is_hidden"]),
			Internal: datastore.Bool(fields["is_internal"]),
		})
	}

	numbers := Numbers(items, cfg)
	ids := make([]int, 0, len(numbers))
	for id := range numbers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	events := make([]datastore.Event, 0, len(ids))
	for _, id := range ids {
		events = append(events, datastore.UpdateEvent(
			domain.FQID{Collection: "agenda_item", ID: id},
			map[string]any{"item_number": numbers[id]},
		))
	}
	return nil, events, nil
}
