package presenters

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/domain"
)

// Builtin returns the presenter table of this service.
func Builtin() []*Presenter {
	return []*Presenter{
		{Name: "server_time", GuestEnabled: true, Handle: serverTime},
		{Name: "whoami", GuestEnabled: true, Handle: whoami},
		{Name: "number_of_users", Schema: numberOfUsersSchema, Handle: numberOfUsers},
		{Name: "get_users", Schema: getUsersSchema, Handle: getUsers},
		{Name: "search_users", Schema: searchUsersSchema, Handle: searchUsers},
		{Name: "get_user_scope", Schema: userIDsSchema, Handle: getUserScope},
		{Name: "get_user_editable", Schema: getUserEditableSchema, Handle: getUserEditable},
		{Name: "get_user_related_models", Schema: userIDsSchema, Handle: getUserRelatedModels},
		{Name: "get_forwarding_meetings", Schema: meetingIDSchema, Handle: getForwardingMeetings},
		{Name: "get_forwarding_committees", Schema: meetingIDSchema, Handle: getForwardingCommittees},
		{Name: "check_database", Handle: checkDatabase},
		{Name: "check_mediafile_id", Schema: checkMediafileSchema, Handle: checkMediafileID},
	}
}

func requireOML(ctx context.Context, r *Request, level perms.OrganizationManagementLevel) error {
	ok, err := r.Checker.HasOML(ctx, level)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.New(apperror.PermissionDenied,
			"Missing organization management level: %s", level)
	}
	return nil
}

func serverTime(ctx context.Context, r *Request, data map[string]any) (any, error) {
	return map[string]any{"server_time": time.Now().Unix()}, nil
}

func whoami(ctx context.Context, r *Request, data map[string]any) (any, error) {
	out := map[string]any{
		"user_id": r.UserID,
		"guest":   r.UserID == 0,
	}
	if r.UserID == 0 {
		return out, nil
	}
	user, err := r.Fetch.Get(ctx, domain.FQID{Collection: "user", ID: r.UserID},
		"username", "organization_management_level")
	if err != nil {
		return nil, err
	}
	out["username"] = datastore.String(user["username"])
	out["organization_management_level"] = datastore.String(user["organization_management_level"])
	return out, nil
}

var numberOfUsersSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"number_of_users_to_add_or_activate": map[string]any{"type": "integer", "minimum": 0},
	},
	"required":             []any{"number_of_users_to_add_or_activate"},
	"additionalProperties": false,
}

func numberOfUsers(ctx context.Context, r *Request, data map[string]any) (any, error) {
	if err := requireOML(ctx, r, perms.OMLCanManageUsers); err != nil {
		return nil, err
	}
	org, err := r.Fetch.Get(ctx, domain.FQID{Collection: "organization", ID: 1}, "limit_of_users")
	if err != nil {
		return nil, err
	}
	limit := datastore.Int(org["limit_of_users"])
	if limit == 0 {
		return map[string]any{"possible": true}, nil
	}
	active, err := r.Fetch.Count(ctx, "user", domain.Eq("is_active", true))
	if err != nil {
		return nil, err
	}
	add := datastore.Int(data["number_of_users_to_add_or_activate"])
	return map[string]any{"possible": active+add <= limit}, nil
}

var getUsersSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"start_index":    map[string]any{"type": "integer", "minimum": 0},
		"entries":        map[string]any{"type": "integer", "minimum": 1},
		"sort_criteria":  map[string]any{"type": "array", "items": map[string]any{"type": "string", "enum": []any{"username", "first_name", "last_name"}}},
		"reverse":        map[string]any{"type": "boolean"},
		"filter":         map[string]any{"type": "string"},
		"filter_meeting": map[string]any{"type": "integer", "minimum": 1},
	},
	"additionalProperties": false,
}

// getUsers pages through the sorted user list. It loads one entry past
// the window so the caller learns whether another page exists.
func getUsers(ctx context.Context, r *Request, data map[string]any) (any, error) {
	if err := requireOML(ctx, r, perms.OMLCanManageUsers); err != nil {
		return nil, err
	}
	all, err := r.Fetch.GetAll(ctx, "user", "username", "first_name", "last_name", "meeting_user_ids")
	if err != nil {
		return nil, err
	}

	filterMeeting := datastore.Int(data["filter_meeting"])
	needle := datastore.String(data["filter"])
	type row struct {
		id     int
		fields map[string]any
	}
	var rows []row
	for id, fields := range all {
		if needle != "" && !matchesNeedle(fields, needle) {
			continue
		}
		if filterMeeting != 0 {
			in, err := userInMeeting(ctx, r.Fetch, fields, filterMeeting)
			if err != nil {
				return nil, err
			}
			if !in {
				continue
			}
		}
		rows = append(rows, row{id: id, fields: fields})
	}

	criteria := datastore.StringList(data["sort_criteria"])
	if len(criteria) == 0 {
		criteria = []string{"username"}
	}
	reverse := datastore.Bool(data["reverse"])
	less := func(i, j int) bool {
		for _, c := range criteria {
			a := datastore.String(rows[i].fields[c])
			b := datastore.String(rows[j].fields[c])
			if a != b {
				return a < b
			}
		}
		return rows[i].id < rows[j].id
	}
	sort.Slice(rows, func(i, j int) bool {
		if reverse {
			return less(j, i)
		}
		return less(i, j)
	})

	start := datastore.Int(data["start_index"])
	entries := datastore.Int(data["entries"])
	if entries == 0 {
		entries = 100
	}
	if start > len(rows) {
		start = len(rows)
	}
	end := start + entries
	hasNext := end < len(rows)
	if end > len(rows) {
		end = len(rows)
	}
	ids := make([]int, 0, end-start)
	for _, row := range rows[start:end] {
		ids = append(ids, row.id)
	}
	return map[string]any{"users": ids, "has_next": hasNext}, nil
}

func matchesNeedle(fields map[string]any, needle string) bool {
	for _, name := range []string{"username", "first_name", "last_name"} {
		if containsFold(datastore.String(fields[name]), needle) {
			return true
		}
	}
	return false
}

func userInMeeting(ctx context.Context, fetch *datastore.Fetcher, fields map[string]any, meetingID int) (bool, error) {
	for _, muID := range datastore.IntList(fields["meeting_user_ids"]) {
		mu, err := fetch.Get(ctx, domain.FQID{Collection: "meeting_user", ID: muID}, "meeting_id", "group_ids")
		if err != nil {
			return false, err
		}
		if datastore.Int(mu["meeting_id"]) == meetingID && len(datastore.IntList(mu["group_ids"])) > 0 {
			return true, nil
		}
	}
	return false, nil
}

var searchUsersSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"searches": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"username":      map[string]any{"type": "string"},
					"saml_id":       map[string]any{"type": "string"},
					"member_number": map[string]any{"type": "string"},
					"email":         map[string]any{"type": "string"},
					"first_name":    map[string]any{"type": "string"},
					"last_name":     map[string]any{"type": "string"},
				},
				"additionalProperties": false,
			},
		},
	},
	"required":             []any{"searches"},
	"additionalProperties": false,
}

// searchUsers finds exact duplicates for each search entry: username,
// saml_id and member_number match on their own, names only together
// with the email.
func searchUsers(ctx context.Context, r *Request, data map[string]any) (any, error) {
	if err := requireOML(ctx, r, perms.OMLCanManageUsers); err != nil {
		return nil, err
	}
	all, err := r.Fetch.GetAll(ctx, "user",
		"username", "saml_id", "member_number", "email", "first_name", "last_name")
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	searches, _ := data["searches"].([]any)
	results := make([]any, len(searches))
	for i, raw := range searches {
		search, _ := raw.(map[string]any)
		var matched []int
		for _, id := range ids {
			if matchesSearch(all[id], search) {
				matched = append(matched, id)
			}
		}
		results[i] = matched
	}
	return results, nil
}

func matchesSearch(fields, search map[string]any) bool {
	for _, name := range []string{"username", "saml_id", "member_number"} {
		if want := datastore.String(search[name]); want != "" && datastore.String(fields[name]) == want {
			return true
		}
	}
	email := datastore.String(search["email"])
	first := datastore.String(search["first_name"])
	last := datastore.String(search["last_name"])
	if email == "" || (first == "" && last == "") {
		return false
	}
	if datastore.String(fields["email"]) != email {
		return false
	}
	// Only the name fields given in the search term narrow the match.
	if first != "" && datastore.String(fields["first_name"]) != first {
		return false
	}
	if last != "" && datastore.String(fields["last_name"]) != last {
		return false
	}
	return true
}

var userIDsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"user_ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer", "minimum": 1}, "minItems": 1},
	},
	"required":             []any{"user_ids"},
	"additionalProperties": false,
}

var meetingIDSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meeting_id": map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"meeting_id"},
	"additionalProperties": false,
}

var checkMediafileSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"mediafile_id": map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"mediafile_id"},
	"additionalProperties": false,
}

// checkDatabase walks every declared relation and reports fields whose
// inverse does not point back.
func checkDatabase(ctx context.Context, r *Request, data map[string]any) (any, error) {
	if err := requireOML(ctx, r, perms.OMLSuperadmin); err != nil {
		return nil, err
	}

	collections := r.Models.Collections()
	sort.Slice(collections, func(i, j int) bool { return collections[i] < collections[j] })

	var broken []string
	for _, collection := range collections {
		model := r.Models.Model(collection)
		all, err := r.Fetch.GetAll(ctx, collection)
		if err != nil {
			return nil, err
		}
		for id, fields := range all {
			for name := range fields {
				field, slot, ok := model.Resolve(name)
				if !ok || field.Relation == nil {
					continue
				}
				owner := domain.FQID{Collection: collection, ID: id}
				missing, err := brokenInverses(ctx, r, owner, name, slot, field, fields[name])
				if err != nil {
					return nil, err
				}
				broken = append(broken, missing...)
			}
		}
	}
	sort.Strings(broken)
	return map[string]any{"ok": len(broken) == 0, "broken": broken}, nil
}

func brokenInverses(ctx context.Context, r *Request, owner domain.FQID, name, slot string, field *models.Field, value any) ([]string, error) {
	rel := field.Relation
	if rel.Structured && models.IsTemplate(name) {
		// Template fields hold slot lists, not references.
		return nil, nil
	}
	inverse := rel.Inverse
	if rel.Structured {
		inverse = models.StructuredName(rel.Inverse, slot)
	}

	var targets []domain.FQID
	if len(rel.Generic) > 0 {
		for _, s := range datastore.StringList(valueList(value, rel.Many)) {
			if fqid, err := domain.ParseFQID(s); err == nil {
				targets = append(targets, fqid)
			}
		}
	} else {
		for _, id := range datastore.IntList(valueList(value, rel.Many)) {
			if id != 0 {
				targets = append(targets, domain.FQID{Collection: rel.To, ID: id})
			}
		}
	}

	var broken []string
	for _, target := range targets {
		back, exists, err := r.Fetch.GetIfExists(ctx, target, inverse)
		if err != nil {
			return nil, err
		}
		if !exists {
			broken = append(broken, fmt.Sprintf("%s/%s -> missing %s", owner, name, target))
			continue
		}
		if !pointsBack(back[inverse], owner) {
			broken = append(broken, fmt.Sprintf("%s/%s -> %s/%s", owner, name, target, inverse))
		}
	}
	return broken, nil
}

func valueList(value any, many bool) any {
	if many || value == nil {
		return value
	}
	return []any{value}
}

func pointsBack(inverse any, owner domain.FQID) bool {
	for _, id := range datastore.IntList(coerceList(inverse)) {
		if id == owner.ID {
			return true
		}
	}
	for _, s := range datastore.StringList(coerceList(inverse)) {
		if s == owner.String() {
			return true
		}
	}
	return false
}

func coerceList(v any) any {
	switch v.(type) {
	case []any, []int, []string:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

func checkMediafileID(ctx context.Context, r *Request, data map[string]any) (any, error) {
	id := datastore.Int(data["mediafile_id"])
	file, exists, err := r.Fetch.GetIfExists(ctx, domain.FQID{Collection: "mediafile", ID: id},
		"owner_id", "filename", "is_directory")
	if err != nil {
		return nil, err
	}
	if !exists || datastore.Bool(file["is_directory"]) {
		return map[string]any{"ok": false}, nil
	}

	owner, err := domain.ParseFQID(datastore.String(file["owner_id"]))
	if err != nil {
		return nil, err
	}
	if owner.Collection == "meeting" {
		ok, err := r.Checker.HasPerm(ctx, owner.ID, perms.MediafileCanSee)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.New(apperror.PermissionDenied,
				"Missing permission: %s in meeting %d", perms.MediafileCanSee, owner.ID)
		}
	}

	if r.Media != nil {
		stored, err := r.Media.HasFile(ctx, id)
		if err != nil {
			return nil, err
		}
		if !stored {
			return map[string]any{"ok": false}, nil
		}
	}
	return map[string]any{"ok": true, "filename": datastore.String(file["filename"])}, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
