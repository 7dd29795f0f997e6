// Package motion implements the motion.* actions.
package motion

import (
	"context"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/htmlsanitize"
	"github.com/plenumhq/plenum/internal/domain"
)

func Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "motion.create", Schema: createSchema, Handle: create},
		{Name: "motion.update", Schema: updateSchema, Handle: update},
		{Name: "motion.delete", Schema: deleteSchema, Handle: remove},
		{Name: "motion.sort", Schema: sortSchema, Handle: sortTree},
	}
}

var createSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meeting_id":                       map[string]any{"type": "integer", "minimum": 1},
		"title":                            map[string]any{"type": "string", "minLength": 1},
		"text":                             map[string]any{"type": "string"},
		"reason":                           map[string]any{"type": "string"},
		"number":                           map[string]any{"type": "string"},
		"attachment_meeting_mediafile_ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
	},
	"required":             []any{"meeting_id", "title"},
	"additionalProperties": false,
}

var updateSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":                               map[string]any{"type": "integer", "minimum": 1},
		"title":                            map[string]any{"type": "string", "minLength": 1},
		"text":                             map[string]any{"type": "string"},
		"reason":                           map[string]any{"type": "string"},
		"number":                           map[string]any{"type": "string"},
		"attachment_meeting_mediafile_ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
	},
	"required":             []any{"id"},
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

var sortSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meeting_id": map[string]any{"type": "integer", "minimum": 1},
		"tree":       map[string]any{"type": "array"},
	},
	"required":             []any{"meeting_id", "tree"},
	"additionalProperties": false,
}

func create(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.MotionCanCreate); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	htmlsanitize.Fields(instance, "text", "reason")

	data, err := r.Fetch.Filter(ctx, "motion", domain.Eq("meeting_id", meetingID), "sequential_number")
	if err != nil {
		return nil, nil, err
	}
	seq := 0
	for _, m := range data {
		if n := datastore.Int(m["sequential_number"]); n > seq {
			seq = n
		}
	}
	instance["sequential_number"] = seq + 1

	fqid, events, err := r.Create(ctx, "motion", instance)
	if err != nil {
		return nil, nil, err
	}
	r.Fetch.ApplyEvents(events)

	_, losEvents, err := r.Create(ctx, "list_of_speakers", map[string]any{
		"meeting_id":        meetingID,
		"content_object_id": fqid.String(),
	})
	if err != nil {
		return nil, nil, err
	}
	events = append(events, losEvents...)

	return map[string]any{"id": fqid.ID, "sequential_number": seq + 1}, events, nil
}

func update(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	fqid := domain.FQID{Collection: "motion", ID: datastore.Int(instance["id"])}
	fields, err := r.Fetch.Get(ctx, fqid, "meeting_id")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(fields["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.MotionCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	htmlsanitize.Fields(instance, "text", "reason")
	events, err := r.Update(ctx, fqid, instance)
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func remove(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	fqid := domain.FQID{Collection: "motion", ID: datastore.Int(instance["id"])}
	fields, err := r.Fetch.Get(ctx, fqid, "meeting_id")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(fields["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.MotionCanManage); err != nil {
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

// sortTree rewires the sort hierarchy of every motion in the meeting.
// The payload must name exactly the meeting's motions.
func sortTree(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.MotionCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}

	forest, err := actions.ParseSortForest(instance["tree"])
	if err != nil {
		return nil, nil, err
	}
	existing, err := r.Fetch.Filter(ctx, "motion", domain.Eq("meeting_id", meetingID), "id")
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
			"sort_weight":    item.Weight,
			"sort_child_ids": item.ChildIDs,
		}
		if item.ParentID != 0 {
			fields["sort_parent_id"] = item.ParentID
		} else {
			fields["sort_parent_id"] = nil
		}
		events = append(events, datastore.UpdateEvent(domain.FQID{Collection: "motion", ID: item.ID}, fields))
	}
	return nil, events, nil
}
