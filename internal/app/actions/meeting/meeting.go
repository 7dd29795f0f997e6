// Package meeting implements the meeting.* actions.
package meeting

import (
	"context"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/policy/scope"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/htmlsanitize"
	"github.com/plenumhq/plenum/internal/domain"
)

func Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "meeting.create", Schema: createSchema, Handle: create},
		{Name: "meeting.update", Schema: updateSchema, Handle: update},
		{Name: "meeting.archive", Schema: idSchema, Handle: archive},
		{Name: "meeting.unarchive", Schema: idSchema, Handle: unarchive},
		{Name: "meeting.delete", Schema: idSchema, Handle: remove},
	}
}

var createSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"committee_id":     map[string]any{"type": "integer", "minimum": 1},
		"name":             map[string]any{"type": "string", "minLength": 1},
		"description":      map[string]any{"type": "string"},
		"location":         map[string]any{"type": "string"},
		"start_time":       map[string]any{"type": "integer"},
		"end_time":         map[string]any{"type": "integer"},
		"language":         map[string]any{"type": "string"},
		"enable_anonymous": map[string]any{"type": "boolean"},
		"admin_ids":        map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
	},
	"required":             []any{"committee_id", "name"},
	"additionalProperties": false,
}

var updateSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":                     map[string]any{"type": "integer", "minimum": 1},
		"name":                   map[string]any{"type": "string", "minLength": 1},
		"description":            map[string]any{"type": "string"},
		"welcome_title":          map[string]any{"type": "string"},
		"welcome_text":           map[string]any{"type": "string"},
		"location":               map[string]any{"type": "string"},
		"start_time":             map[string]any{"type": "integer"},
		"end_time":               map[string]any{"type": "integer"},
		"enable_anonymous":       map[string]any{"type": "boolean"},
		"locked_from_inside":     map[string]any{"type": "boolean"},
		"limit_of_users":         map[string]any{"type": "integer", "minimum": 0},
		"agenda_numeral_system":  map[string]any{"type": "string", "enum": []any{"arabic", "roman"}},
		"agenda_number_prefix":   map[string]any{"type": "string"},
		"list_of_speakers_enable_pro_contra_speech": map[string]any{"type": "boolean"},
		"agenda_show_internal_items_on_projector":   map[string]any{"type": "boolean"},
	},
	"required":             []any{"id"},
	"additionalProperties": false,
}

var idSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id": map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"id"},
	"additionalProperties": false,
}

// defaultGroupPerms seed the Default group of a fresh meeting.
var defaultGroupPerms = []string{
	string(perms.AgendaItemCanSee),
	string(perms.ListOfSpeakersCanSee),
	string(perms.ListOfSpeakersCanBeSpeaker),
	string(perms.MeetingCanSeeFrontpage),
	string(perms.MotionCanSee),
	string(perms.TopicCanSee),
	string(perms.UserCanSee),
}

func create(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	committeeID := datastore.Int(instance["committee_id"])
	if err := r.RequireCommitteeManager(ctx, committeeID); err != nil {
		return nil, nil, err
	}
	if _, err := r.Fetch.Get(ctx, domain.FQID{Collection: "committee", ID: committeeID}, "id"); err != nil {
		return nil, nil, err
	}

	adminIDs := datastore.IntList(instance["admin_ids"])
	delete(instance, "admin_ids")
	if len(adminIDs) == 0 && r.UserID != 0 {
		adminIDs = []int{r.UserID}
	}

	instance["is_active_in_organization_id"] = scope.OrganizationID
	meetingFQID, events, err := r.Create(ctx, "meeting", instance)
	if err != nil {
		return nil, nil, err
	}
	r.Fetch.ApplyEvents(events)

	groups := []struct {
		name        string
		permissions []string
		field       string
	}{
		{"Default", defaultGroupPerms, "default_group_id"},
		{"Admin", nil, "admin_group_id"},
	}
	groupIDs := make(map[string]int, len(groups))
	for _, g := range groups {
		fqid, ev, err := r.Create(ctx, "group", map[string]any{
			"meeting_id":  meetingFQID.ID,
			"name":        g.name,
			"permissions": g.permissions,
		})
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev...)
		r.Fetch.ApplyEvents(ev)
		groupIDs[g.field] = fqid.ID
	}
	ev, err := r.Update(ctx, meetingFQID, map[string]any{
		"default_group_id": groupIDs["default_group_id"],
		"admin_group_id":   groupIDs["admin_group_id"],
	})
	if err != nil {
		return nil, nil, err
	}
	events = append(events, ev...)
	r.Fetch.ApplyEvents(ev)

	for _, userID := range adminIDs {
		if _, err := r.Fetch.Get(ctx, domain.FQID{Collection: "user", ID: userID}, "id"); err != nil {
			return nil, nil, err
		}
		_, ev, err := r.Create(ctx, "meeting_user", map[string]any{
			"meeting_id": meetingFQID.ID,
			"user_id":    userID,
			"group_ids":  []int{groupIDs["admin_group_id"]},
		})
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev...)
		r.Fetch.ApplyEvents(ev)
	}

	return map[string]any{"id": meetingFQID.ID}, events, nil
}

func update(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["id"])
	if err := r.RequirePerm(ctx, meetingID, perms.MeetingCanManageSettings); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	htmlsanitize.Fields(instance, "welcome_text")
	events, err := r.Update(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, instance)
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func archive(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["id"])
	if err := requireCommitteeManagerOfMeeting(ctx, r, meetingID); err != nil {
		return nil, nil, err
	}
	fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "is_active_in_organization_id")
	if err != nil {
		return nil, nil, err
	}
	if datastore.Int(fields["is_active_in_organization_id"]) == 0 {
		return nil, nil, apperror.New(apperror.BadRequest, "Meeting %d is already archived.", meetingID)
	}
	events, err := r.Update(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, map[string]any{
		"is_active_in_organization_id":   nil,
		"is_archived_in_organization_id": scope.OrganizationID,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func unarchive(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["id"])
	if err := r.RequireOML(ctx, perms.OMLSuperadmin); err != nil {
		return nil, nil, err
	}
	fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "is_active_in_organization_id")
	if err != nil {
		return nil, nil, err
	}
	if datastore.Int(fields["is_active_in_organization_id"]) != 0 {
		return nil, nil, apperror.New(apperror.BadRequest, "Meeting %d is not archived.", meetingID)
	}
	events, err := r.Update(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, map[string]any{
		"is_active_in_organization_id":   scope.OrganizationID,
		"is_archived_in_organization_id": nil,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func remove(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["id"])
	if err := requireCommitteeManagerOfMeeting(ctx, r, meetingID); err != nil {
		return nil, nil, err
	}
	events, err := r.Delete(ctx, domain.FQID{Collection: "meeting", ID: meetingID})
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func requireCommitteeManagerOfMeeting(ctx context.Context, r *actions.Request, meetingID int) error {
	fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "committee_id")
	if err != nil {
		return err
	}
	return r.RequireCommitteeManager(ctx, datastore.Int(fields["committee_id"]))
}
