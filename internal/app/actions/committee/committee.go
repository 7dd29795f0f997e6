// Package committee implements the committee.* actions.
package committee

import (
	"context"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
)

// Actions returns the committee action table.
func Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "committee.create", Schema: createSchema, Handle: create},
		{Name: "committee.update", Schema: updateSchema, Handle: update},
		{Name: "committee.delete", Schema: deleteSchema, Handle: remove},
	}
}

var createSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"organization_id":          map[string]any{"type": "integer", "const": 1},
		"name":                     map[string]any{"type": "string", "minLength": 1},
		"description":              map[string]any{"type": "string"},
		"external_id":              map[string]any{"type": "string"},
		"manager_ids":              map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		"forward_to_committee_ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
	},
	"required":             []any{"organization_id", "name"},
	"additionalProperties": false,
}

var updateSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":                                     map[string]any{"type": "integer", "minimum": 1},
		"name":                                   map[string]any{"type": "string", "minLength": 1},
		"description":                            map[string]any{"type": "string"},
		"external_id":                            map[string]any{"type": "string"},
		"default_meeting_id":                     map[string]any{"type": []any{"integer", "null"}},
		"manager_ids":                            map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		"forward_to_committee_ids":               map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		"receive_forwardings_from_committee_ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
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
	if err := r.RequireOML(ctx, perms.OMLCanManageOrganization); err != nil {
		return nil, nil, err
	}
	fqid, events, err := r.Create(ctx, "committee", instance)
	if err != nil {
		return nil, nil, err
	}
	return map[string]any{"id": fqid.ID}, events, nil
}

func update(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	id := datastore.Int(instance["id"])
	// Committee managers may edit their committee; wiring forwarding
	// relations needs the organization level.
	forwarding := instance["forward_to_committee_ids"] != nil ||
		instance["receive_forwardings_from_committee_ids"] != nil ||
		instance["manager_ids"] != nil
	if forwarding {
		if err := r.RequireOML(ctx, perms.OMLCanManageOrganization); err != nil {
			return nil, nil, err
		}
	} else if err := r.RequireCommitteeManager(ctx, id); err != nil {
		return nil, nil, err
	}
	events, err := r.Update(ctx, domain.FQID{Collection: "committee", ID: id}, instance)
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func remove(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	if err := r.RequireOML(ctx, perms.OMLCanManageOrganization); err != nil {
		return nil, nil, err
	}
	events, err := r.Delete(ctx, domain.FQID{Collection: "committee", ID: datastore.Int(instance["id"])})
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}
