// Package topic implements the topic.* actions. Creating a topic also
// creates its agenda item and list of speakers.
package topic

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
		{Name: "topic.create", Schema: createSchema, Handle: create},
		{Name: "topic.update", Schema: updateSchema, Handle: update},
		{Name: "topic.delete", Schema: deleteSchema, Handle: remove},
	}
}

var createSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meeting_id":                       map[string]any{"type": "integer", "minimum": 1},
		"title":                            map[string]any{"type": "string", "minLength": 1},
		"text":                             map[string]any{"type": "string"},
		"attachment_meeting_mediafile_ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		"agenda_type":                      map[string]any{"type": "string", "enum": []any{"common", "internal", "hidden"}},
		"agenda_parent_id":                 map[string]any{"type": "integer", "minimum": 1},
		"agenda_comment":                   map[string]any{"type": "string"},
		"agenda_duration":                  map[string]any{"type": "integer", "minimum": 0},
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

func create(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.TopicCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	htmlsanitize.Fields(instance, "text")

	agendaFields := map[string]any{}
	for payloadName, itemName := range map[string]string{
		"agenda_type":     "type",
		"agenda_comment":  "comment",
		"agenda_duration": "duration",
	} {
		if v, ok := instance[payloadName]; ok {
			agendaFields[itemName] = v
			delete(instance, payloadName)
		}
	}
	agendaParentID := datastore.Int(instance["agenda_parent_id"])
	delete(instance, "agenda_parent_id")

	seq, err := nextSequentialNumber(ctx, r, "topic", meetingID)
	if err != nil {
		return nil, nil, err
	}
	instance["sequential_number"] = seq

	fqid, events, err := r.Create(ctx, "topic", instance)
	if err != nil {
		return nil, nil, err
	}
	r.Fetch.ApplyEvents(events)

	agendaFields["meeting_id"] = meetingID
	agendaFields["content_object_id"] = fqid.String()
	if agendaParentID != 0 {
		agendaFields["parent_id"] = agendaParentID
	}
	switch datastore.String(agendaFields["type"]) {
	case "internal":
		agendaFields["is_internal"] = true
	case "hidden":
		agendaFields["is_hidden"] = true
	}
	_, itemEvents, err := r.Create(ctx, "agenda_item", agendaFields)
	if err != nil {
		return nil, nil, err
	}
	r.Fetch.ApplyEvents(itemEvents)
	events = append(events, itemEvents...)

	_, losEvents, err := r.Create(ctx, "list_of_speakers", map[string]any{
		"meeting_id":        meetingID,
		"content_object_id": fqid.String(),
	})
	if err != nil {
		return nil, nil, err
	}
	events = append(events, losEvents...)

	return map[string]any{"id": fqid.ID, "sequential_number": seq}, events, nil
}

func update(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	fqid := domain.FQID{Collection: "topic", ID: datastore.Int(instance["id"])}
	fields, err := r.Fetch.Get(ctx, fqid, "meeting_id")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(fields["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.TopicCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	htmlsanitize.Fields(instance, "text")
	events, err := r.Update(ctx, fqid, instance)
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func remove(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	fqid := domain.FQID{Collection: "topic", ID: datastore.Int(instance["id"])}
	fields, err := r.Fetch.Get(ctx, fqid, "meeting_id")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(fields["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.TopicCanManage); err != nil {
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

// nextSequentialNumber hands out the next per-meeting sequence value of
// a collection. The models are read through the fetcher, so models
// created earlier in the batch count and the read is locked.
func nextSequentialNumber(ctx context.Context, r *actions.Request, collection domain.Collection, meetingID int) (int, error) {
	data, err := r.Fetch.Filter(ctx, collection, domain.Eq("meeting_id", meetingID), "sequential_number")
	if err != nil {
		return 0, err
	}
	max := 0
	for _, m := range data {
		if n := datastore.Int(m["sequential_number"]); n > max {
			max = n
		}
	}
	return max + 1, nil
}
