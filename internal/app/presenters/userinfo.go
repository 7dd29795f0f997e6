package presenters

import (
	"context"
	"sort"
	"strconv"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/policy/scope"
	"github.com/plenumhq/plenum/internal/app/policy/userpolicy"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
)

func getUserScope(ctx context.Context, r *Request, data map[string]any) (any, error) {
	if err := requireOML(ctx, r, perms.OMLCanManageUsers); err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, id := range datastore.IntList(data["user_ids"]) {
		sc, err := scope.ForUser(ctx, r.Fetch, id)
		if err != nil {
			return nil, err
		}
		entry := map[string]any{
			"collection": string(sc.Kind),
			"id":         sc.ID,
			"user_oml":   string(sc.OML),
		}
		if sc.HomeCommitteeID != 0 {
			entry["home_committee_id"] = sc.HomeCommitteeID
		}
		out[strconv.Itoa(id)] = entry
	}
	return out, nil
}

var getUserEditableSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"user_ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer", "minimum": 1}, "minItems": 1},
		"fields":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
	},
	"required":             []any{"user_ids", "fields"},
	"additionalProperties": false,
}

// getUserEditable answers, per user and requested field, whether the
// caller could change it, together with the rejection message when not.
func getUserEditable(ctx context.Context, r *Request, data map[string]any) (any, error) {
	fields := datastore.StringList(data["fields"])
	for _, name := range fields {
		if _, ok := userpolicy.GroupOf(name); !ok {
			return nil, apperror.New(apperror.BadRequest, "Field %s is not a user field.", name)
		}
	}

	out := map[string]any{}
	for _, id := range datastore.IntList(data["user_ids"]) {
		current, err := r.Fetch.Get(ctx, domain.FQID{Collection: "user", ID: id}, fields...)
		if err != nil {
			return nil, err
		}
		policy := &userpolicy.Request{Fetch: r.Fetch, Checker: r.Checker}
		perField := map[string]any{}
		for _, name := range fields {
			instance := map[string]any{"id": id, name: current[name]}
			if err := policy.Check(ctx, instance); err != nil {
				if apperror.KindOf(err) == apperror.Internal {
					return nil, err
				}
				perField[name] = []any{false, apperror.Message(err)}
				continue
			}
			perField[name] = []any{true, ""}
		}
		out[strconv.Itoa(id)] = perField
	}
	return out, nil
}

// getUserRelatedModels lists the committees and meetings a user is tied
// to, the shape the client needs before a delete or archive dialog.
func getUserRelatedModels(ctx context.Context, r *Request, data map[string]any) (any, error) {
	if err := requireOML(ctx, r, perms.OMLCanManageUsers); err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, id := range datastore.IntList(data["user_ids"]) {
		user, err := r.Fetch.Get(ctx, domain.FQID{Collection: "user", ID: id},
			"organization_management_level", "committee_management_ids", "meeting_user_ids", "home_committee_id")
		if err != nil {
			return nil, err
		}
		entry := map[string]any{
			"organization_management_level": datastore.String(user["organization_management_level"]),
			"home_committee_id":             datastore.Int(user["home_committee_id"]),
		}

		var committees []map[string]any
		for _, cid := range datastore.IntList(user["committee_management_ids"]) {
			committee, err := r.Fetch.Get(ctx, domain.FQID{Collection: "committee", ID: cid}, "name")
			if err != nil {
				return nil, err
			}
			committees = append(committees, map[string]any{
				"id":   cid,
				"name": datastore.String(committee["name"]),
				"cml":  "can_manage",
			})
		}
		entry["committees"] = committees

		var meetings []map[string]any
		for _, muID := range datastore.IntList(user["meeting_user_ids"]) {
			mu, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting_user", ID: muID},
				"meeting_id", "group_ids", "speaker_ids")
			if err != nil {
				return nil, err
			}
			meetingID := datastore.Int(mu["meeting_id"])
			meeting, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID},
				"name", "is_active_in_organization_id")
			if err != nil {
				return nil, err
			}
			meetings = append(meetings, map[string]any{
				"id":          meetingID,
				"name":        datastore.String(meeting["name"]),
				"is_active":   datastore.Int(meeting["is_active_in_organization_id"]) != 0,
				"group_ids":   datastore.IntList(mu["group_ids"]),
				"speaker_ids": datastore.IntList(mu["speaker_ids"]),
			})
		}
		entry["meetings"] = meetings
		out[strconv.Itoa(id)] = entry
	}
	return out, nil
}

// getForwardingMeetings lists, per committee the source committee
// forwards to, the active meetings a motion could be forwarded into.
func getForwardingMeetings(ctx context.Context, r *Request, data map[string]any) (any, error) {
	meetingID := datastore.Int(data["meeting_id"])
	ok, err := r.Checker.HasPerm(ctx, meetingID, perms.MotionCanManage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(apperror.PermissionDenied,
			"Missing permission: %s in meeting %d", perms.MotionCanManage, meetingID)
	}

	meeting, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "committee_id")
	if err != nil {
		return nil, err
	}
	committee, err := r.Fetch.Get(ctx, domain.FQID{Collection: "committee", ID: datastore.Int(meeting["committee_id"])},
		"forward_to_committee_ids")
	if err != nil {
		return nil, err
	}

	targetIDs := datastore.IntList(committee["forward_to_committee_ids"])
	sort.Ints(targetIDs)
	var out []map[string]any
	for _, cid := range targetIDs {
		target, err := r.Fetch.Get(ctx, domain.FQID{Collection: "committee", ID: cid}, "name", "meeting_ids", "default_meeting_id")
		if err != nil {
			return nil, err
		}
		meetingIDs := datastore.IntList(target["meeting_ids"])
		sort.Ints(meetingIDs)
		var active []map[string]any
		for _, mid := range meetingIDs {
			m, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: mid}, "name", "is_active_in_organization_id")
			if err != nil {
				return nil, err
			}
			if datastore.Int(m["is_active_in_organization_id"]) == 0 {
				continue
			}
			active = append(active, map[string]any{"id": mid, "name": datastore.String(m["name"])})
		}
		out = append(out, map[string]any{
			"id":                 cid,
			"name":               datastore.String(target["name"]),
			"default_meeting_id": datastore.Int(target["default_meeting_id"]),
			"meetings":           active,
		})
	}
	return out, nil
}

// getForwardingCommittees lists the names of committees that forward
// into the meeting's committee.
func getForwardingCommittees(ctx context.Context, r *Request, data map[string]any) (any, error) {
	meetingID := datastore.Int(data["meeting_id"])
	ok, err := r.Checker.HasPerm(ctx, meetingID, perms.MotionCanSee)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(apperror.PermissionDenied,
			"Missing permission: %s in meeting %d", perms.MotionCanSee, meetingID)
	}

	meeting, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "committee_id")
	if err != nil {
		return nil, err
	}
	committee, err := r.Fetch.Get(ctx, domain.FQID{Collection: "committee", ID: datastore.Int(meeting["committee_id"])},
		"receive_forwardings_from_committee_ids")
	if err != nil {
		return nil, err
	}

	sourceIDs := datastore.IntList(committee["receive_forwardings_from_committee_ids"])
	sort.Ints(sourceIDs)
	names := make([]string, 0, len(sourceIDs))
	for _, cid := range sourceIDs {
		source, err := r.Fetch.Get(ctx, domain.FQID{Collection: "committee", ID: cid}, "name")
		if err != nil {
			return nil, err
		}
		names = append(names, datastore.String(source["name"]))
	}
	return names, nil
}
