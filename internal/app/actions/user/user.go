// Package user implements the user.* actions. Every mutation passes the
// field group engine before any event is produced.
package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/policy/scope"
	"github.com/plenumhq/plenum/internal/app/policy/userpolicy"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
)

func Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "user.create", Schema: createSchema, Handle: create},
		{Name: "user.update", Schema: updateSchema, Handle: update},
		{Name: "user.delete", Schema: deleteSchema, Handle: remove},
		{Name: "user.set_present", Schema: setPresentSchema, Handle: setPresent},
	}
}

// meetingUserFields are payload fields stored on the meeting_user
// record rather than the user itself. They require meeting_id.
var meetingUserFields = map[string]bool{
	"number":                    true,
	"vote_weight":               true,
	"about_me":                  true,
	"comment":                   true,
	"structure_level_ids":       true,
	"vote_delegated_to_id":      true,
	"vote_delegations_from_ids": true,
	"locked_out":                true,
	"group_ids":                 true,
}

var personalProps = map[string]any{
	"username":                      map[string]any{"type": "string", "minLength": 1},
	"title":                         map[string]any{"type": "string"},
	"first_name":                    map[string]any{"type": "string"},
	"last_name":                     map[string]any{"type": "string"},
	"pronoun":                       map[string]any{"type": "string"},
	"email":                         map[string]any{"type": "string"},
	"member_number":                 map[string]any{"type": "string"},
	"saml_id":                       map[string]any{"type": "string"},
	"gender_id":                     map[string]any{"type": "integer", "minimum": 1},
	"is_active":                     map[string]any{"type": "boolean"},
	"is_physical_person":            map[string]any{"type": "boolean"},
	"is_demo_user":                  map[string]any{"type": "boolean"},
	"can_change_own_password":       map[string]any{"type": "boolean"},
	"default_password":              map[string]any{"type": "string"},
	"default_vote_weight":           map[string]any{"type": "string"},
	"organization_management_level": map[string]any{"type": "string", "enum": []any{"can_manage_users", "can_manage_organization", "superadmin"}},
	"committee_management_ids":      map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
	"home_committee_id":             map[string]any{"type": "integer", "minimum": 1},
	"meeting_id":                    map[string]any{"type": "integer", "minimum": 1},
	"number":                        map[string]any{"type": "string"},
	"vote_weight":                   map[string]any{"type": "string"},
	"about_me":                      map[string]any{"type": "string"},
	"comment":                       map[string]any{"type": "string"},
	"structure_level_ids":           map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
	"vote_delegated_to_id":          map[string]any{"type": []any{"integer", "null"}},
	"vote_delegations_from_ids":     map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
	"locked_out":                    map[string]any{"type": "boolean"},
	"group_ids":                     map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
}

var createSchema = buildSchema(nil, nil)

var updateSchema = buildSchema(map[string]any{
	"id": map[string]any{"type": "integer", "minimum": 1},
}, []any{"id"})

func buildSchema(extra map[string]any, required []any) map[string]any {
	props := make(map[string]any, len(personalProps)+len(extra))
	for k, v := range personalProps {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var deleteSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id": map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"id"},
	"additionalProperties": false,
}

var setPresentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":         map[string]any{"type": "integer", "minimum": 1},
		"meeting_id": map[string]any{"type": "integer", "minimum": 1},
		"present":    map[string]any{"type": "boolean"},
	},
	"required":             []any{"id", "meeting_id", "present"},
	"additionalProperties": false,
}

func policyRequest(r *actions.Request, isCreate bool) *userpolicy.Request {
	return &userpolicy.Request{
		Fetch:    r.Fetch,
		Checker:  r.Checker,
		Internal: r.Internal,
		IsCreate: isCreate,
	}
}

func create(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	if err := policyRequest(r, true).Check(ctx, instance); err != nil {
		return nil, nil, err
	}

	meetingID := datastore.Int(instance["meeting_id"])
	muFields := splitMeetingUserFields(instance)
	if len(muFields) > 0 && meetingID == 0 {
		return nil, nil, apperror.New(apperror.BadRequest,
			"Cannot set meeting fields without a meeting_id.")
	}
	delete(instance, "meeting_id")

	username := datastore.String(instance["username"])
	if username == "" {
		generated, err := generateUsername(ctx, r, instance)
		if err != nil {
			return nil, nil, err
		}
		username = generated
		instance["username"] = username
	}
	taken, err := r.Fetch.Exists(ctx, "user", domain.Eq("username", username))
	if err != nil {
		return nil, nil, err
	}
	if taken {
		return nil, nil, apperror.New(apperror.BadRequest,
			"A user with the username %s already exists.", username)
	}

	if datastore.String(instance["default_password"]) == "" {
		instance["default_password"] = uuid.NewString()[:10]
	}
	hash, err := hashPassword(datastore.String(instance["default_password"]))
	if err != nil {
		return nil, nil, err
	}
	instance["password"] = hash
	instance["organization_id"] = scope.OrganizationID
	if _, ok := instance["is_active"]; !ok {
		instance["is_active"] = true
	}

	fqid, events, err := r.Create(ctx, "user", instance)
	if err != nil {
		return nil, nil, err
	}
	r.Fetch.ApplyEvents(events)

	if meetingID != 0 {
		muFields["meeting_id"] = meetingID
		muFields["user_id"] = fqid.ID
		_, muEvents, err := r.Create(ctx, "meeting_user", muFields)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, muEvents...)
	}
	return map[string]any{"id": fqid.ID}, events, nil
}

func update(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	if err := policyRequest(r, false).Check(ctx, instance); err != nil {
		return nil, nil, err
	}
	targetID := datastore.Int(instance["id"])
	fqid := domain.FQID{Collection: "user", ID: targetID}

	meetingID := datastore.Int(instance["meeting_id"])
	muFields := splitMeetingUserFields(instance)
	if len(muFields) > 0 && meetingID == 0 {
		return nil, nil, apperror.New(apperror.BadRequest,
			"Cannot set meeting fields without a meeting_id.")
	}
	delete(instance, "meeting_id")

	if username := datastore.String(instance["username"]); username != "" {
		others, err := r.Fetch.Filter(ctx, "user", domain.Eq("username", username), "id")
		if err != nil {
			return nil, nil, err
		}
		for id := range others {
			if id != targetID {
				return nil, nil, apperror.New(apperror.BadRequest,
					"A user with the username %s already exists.", username)
			}
		}
	}

	var events []datastore.Event
	if len(instance) > 1 {
		ev, err := r.Update(ctx, fqid, instance)
		if err != nil {
			return nil, nil, err
		}
		r.Fetch.ApplyEvents(ev)
		events = append(events, ev...)
	}

	if len(muFields) > 0 {
		existing, err := r.Fetch.Filter(ctx, "meeting_user", domain.And{
			domain.Eq("meeting_id", meetingID),
			domain.Eq("user_id", targetID),
		}, "id")
		if err != nil {
			return nil, nil, err
		}
		muID := 0
		for id := range existing {
			muID = id
		}
		var ev []datastore.Event
		if muID != 0 {
			ev, err = r.Update(ctx, domain.FQID{Collection: "meeting_user", ID: muID}, muFields)
		} else {
			muFields["meeting_id"] = meetingID
			muFields["user_id"] = targetID
			_, ev, err = r.Create(ctx, "meeting_user", muFields)
		}
		if err != nil {
			return nil, nil, err
		}
		r.Fetch.ApplyEvents(ev)
		events = append(events, ev...)
	}
	return nil, events, nil
}

func remove(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	targetID := datastore.Int(instance["id"])
	if targetID == r.UserID {
		return nil, nil, apperror.New(apperror.BadRequest, "You cannot delete yourself.")
	}

	target, err := r.Fetch.Get(ctx, domain.FQID{Collection: "user", ID: targetID}, "organization_management_level")
	if err != nil {
		return nil, nil, err
	}
	targetOML := perms.OrganizationManagementLevel(datastore.String(target["organization_management_level"]))
	callerOML, err := r.Checker.OrganizationManagementLevel(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !callerOML.Covers(targetOML) {
		return nil, nil, apperror.New(apperror.PermissionDenied,
			"Your organization management level is not high enough to change a user with a Level of %s.", targetOML)
	}
	if err := r.RequireOML(ctx, perms.OMLCanManageUsers); err != nil {
		return nil, nil, err
	}

	events, err := r.Delete(ctx, domain.FQID{Collection: "user", ID: targetID})
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func setPresent(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	targetID := datastore.Int(instance["id"])
	meetingID := datastore.Int(instance["meeting_id"])
	present := datastore.Bool(instance["present"])

	if targetID != r.UserID {
		if err := r.RequirePerm(ctx, meetingID, perms.UserCanManagePresence); err != nil {
			return nil, nil, err
		}
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	if _, err := r.Fetch.Get(ctx, domain.FQID{Collection: "user", ID: targetID}, "id"); err != nil {
		return nil, nil, err
	}

	meeting, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "present_user_ids")
	if err != nil {
		return nil, nil, err
	}
	ids := datastore.IntList(meeting["present_user_ids"])
	has := false
	for _, id := range ids {
		if id == targetID {
			has = true
			break
		}
	}
	if has == present {
		return nil, nil, nil
	}
	if present {
		ids = append(ids, targetID)
	} else {
		kept := ids[:0]
		for _, id := range ids {
			if id != targetID {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	events, err := r.Update(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, map[string]any{
		"present_user_ids": ids,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

// splitMeetingUserFields removes the meeting-scoped fields from the
// instance and returns them.
func splitMeetingUserFields(instance map[string]any) map[string]any {
	out := map[string]any{}
	for name := range meetingUserFields {
		if v, ok := instance[name]; ok {
			out[name] = v
			delete(instance, name)
		}
	}
	return out
}

// generateUsername derives a unique username from the name fields.
func generateUsername(ctx context.Context, r *actions.Request, instance map[string]any) (string, error) {
	base := strings.TrimSpace(datastore.String(instance["first_name"]) + datastore.String(instance["last_name"]))
	base = strings.ReplaceAll(base, " ", "")
	if base == "" {
		base = "user"
	}
	candidate := base
	for i := 1; ; i++ {
		taken, err := r.Fetch.Exists(ctx, "user", domain.Eq("username", candidate))
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", apperror.Wrap(apperror.Internal, err, "hash password")
	}
	return string(hash), nil
}
