// Package group implements the group.* actions.
package group

import (
	"context"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
)

func Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "group.create", Schema: createSchema, Handle: create},
		{Name: "group.update", Schema: updateSchema, Handle: update},
		{Name: "group.delete", Schema: deleteSchema, Handle: remove},
	}
}

var createSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meeting_id":  map[string]any{"type": "integer", "minimum": 1},
		"name":        map[string]any{"type": "string", "minLength": 1},
		"external_id": map[string]any{"type": "string"},
		"permissions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"weight":      map[string]any{"type": "integer"},
	},
	"required":             []any{"meeting_id", "name"},
	"additionalProperties": false,
}

var updateSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":          map[string]any{"type": "integer", "minimum": 1},
		"name":        map[string]any{"type": "string", "minLength": 1},
		"external_id": map[string]any{"type": "string"},
		"permissions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"weight":      map[string]any{"type": "integer"},
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

func validatePermissions(instance map[string]any) error {
	for _, p := range datastore.StringList(instance["permissions"]) {
		if !perms.Permission(p).Valid() {
			return apperror.New(apperror.BadRequest, "Unknown permission: %s", p)
		}
	}
	return nil
}

func create(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	meetingID := datastore.Int(instance["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.UserCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	if err := validatePermissions(instance); err != nil {
		return nil, nil, err
	}
	fqid, events, err := r.Create(ctx, "group", instance)
	if err != nil {
		return nil, nil, err
	}
	return map[string]any{"id": fqid.ID}, events, nil
}

func update(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	fqid := domain.FQID{Collection: "group", ID: datastore.Int(instance["id"])}
	fields, err := r.Fetch.Get(ctx, fqid, "meeting_id")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(fields["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.UserCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	if err := validatePermissions(instance); err != nil {
		return nil, nil, err
	}
	events, err := r.Update(ctx, fqid, instance)
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func remove(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	fqid := domain.FQID{Collection: "group", ID: datastore.Int(instance["id"])}
	fields, err := r.Fetch.Get(ctx, fqid,
		"meeting_id", "default_group_for_meeting_id", "admin_group_for_meeting_id", "meeting_user_ids")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(fields["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.UserCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	if datastore.Int(fields["default_group_for_meeting_id"]) != 0 {
		return nil, nil, apperror.New(apperror.BadRequest,
			"You cannot delete the default group of a meeting.")
	}
	if datastore.Int(fields["admin_group_for_meeting_id"]) != 0 {
		return nil, nil, apperror.New(apperror.BadRequest,
			"You cannot delete the admin group of a meeting.")
	}
	events, err := r.Delete(ctx, fqid)
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}
