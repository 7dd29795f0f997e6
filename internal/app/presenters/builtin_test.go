package presenters_test

import (
	"reflect"
	"testing"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/presenters"
	"github.com/plenumhq/plenum/internal/testutil"
)

func userWorld() map[string]map[string]any {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "can_manage_users"
	return world
}

func possible(t *testing.T, fake *testutil.FakeDatastore, add int) bool {
	t.Helper()
	results, err := run(t, fake, 1, []presenters.Blob{
		{Presenter: "number_of_users", Data: map[string]any{"number_of_users_to_add_or_activate": add}},
	})
	if err != nil {
		t.Fatalf("number_of_users(%d): %v", add, err)
	}
	out, ok := results[0].(map[string]any)
	if !ok || len(out) != 1 {
		t.Fatalf("result = %v", results[0])
	}
	answer, ok := out["possible"].(bool)
	if !ok {
		t.Fatalf("possible = %v", out["possible"])
	}
	return answer
}

func TestNumberOfUsersAgainstLimit(t *testing.T) {
	world := userWorld()
	world["organization/1"]["limit_of_users"] = 3
	fake := testutil.NewFakeDatastore(t, world)

	// Two active users exist, the limit is three.
	if possible(t, fake, 2) {
		t.Error("adding 2 users to 2 active with limit 3 reported possible")
	}
	if !possible(t, fake, 1) {
		t.Error("adding 1 user to 2 active with limit 3 reported impossible")
	}
}

func TestNumberOfUsersUnlimited(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, userWorld())

	if !possible(t, fake, 1000) {
		t.Error("limit 0 means unlimited, got impossible")
	}
}

func TestNumberOfUsersNeedsUserAdmin(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, userWorld())

	_, err := run(t, fake, 10, []presenters.Blob{
		{Presenter: "number_of_users", Data: map[string]any{"number_of_users_to_add_or_activate": 1}},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := apperror.Message(err); got != "Missing organization management level: can_manage_users" {
		t.Errorf("message = %q", got)
	}
	if kind := apperror.KindOf(err); kind != apperror.PermissionDenied {
		t.Errorf("kind = %v, want PermissionDenied", kind)
	}
}

func pagedWorld() map[string]map[string]any {
	world := userWorld()
	world["user/20"] = map[string]any{"username": "anna", "first_name": "Anna", "last_name": "Ampel", "is_active": true}
	world["user/21"] = map[string]any{"username": "berta", "first_name": "Berta", "last_name": "Birke", "is_active": true}
	world["user/22"] = map[string]any{"username": "carla", "first_name": "Carla", "last_name": "Clementine", "is_active": true}
	return world
}

func getUsers(t *testing.T, fake *testutil.FakeDatastore, data map[string]any) ([]int, bool) {
	t.Helper()
	results, err := run(t, fake, 1, []presenters.Blob{{Presenter: "get_users", Data: data}})
	if err != nil {
		t.Fatalf("get_users: %v", err)
	}
	out := results[0].(map[string]any)
	return out["users"].([]int), out["has_next"].(bool)
}

func TestGetUsersPaging(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, pagedWorld())

	// Username order: admin, anna, berta, carla, member.
	ids, hasNext := getUsers(t, fake, map[string]any{"start_index": 0, "entries": 2})
	if !reflect.DeepEqual(ids, []int{1, 20}) || !hasNext {
		t.Errorf("first page = %v hasNext = %v", ids, hasNext)
	}

	ids, hasNext = getUsers(t, fake, map[string]any{"start_index": 4, "entries": 2})
	if !reflect.DeepEqual(ids, []int{10}) || hasNext {
		t.Errorf("last page = %v hasNext = %v", ids, hasNext)
	}

	ids, _ = getUsers(t, fake, map[string]any{"entries": 2, "reverse": true})
	if !reflect.DeepEqual(ids, []int{10, 22}) {
		t.Errorf("reversed page = %v", ids)
	}
}

func TestGetUsersFilter(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, pagedWorld())

	ids, hasNext := getUsers(t, fake, map[string]any{"filter": "ERT"})
	if !reflect.DeepEqual(ids, []int{21}) || hasNext {
		t.Errorf("needle match = %v hasNext = %v", ids, hasNext)
	}

	// Only users in a group of the meeting count as meeting members.
	ids, _ = getUsers(t, fake, map[string]any{"filter_meeting": 1})
	if !reflect.DeepEqual(ids, []int{1, 10}) {
		t.Errorf("meeting members = %v", ids)
	}
}

func TestGetUsersSortCriteria(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, pagedWorld())

	// The nameless users sort first on the empty last name, ordered by
	// username among themselves.
	ids, _ := getUsers(t, fake, map[string]any{"sort_criteria": []any{"last_name", "username"}})
	if !reflect.DeepEqual(ids, []int{1, 10, 20, 21, 22}) {
		t.Errorf("sorted ids = %v", ids)
	}
}

func TestSearchUsersMatchesExactly(t *testing.T) {
	world := pagedWorld()
	world["user/20"]["email"] = "anna@example.com"
	world["user/21"]["member_number"] = "M-7"
	fake := testutil.NewFakeDatastore(t, world)

	results, err := run(t, fake, 1, []presenters.Blob{
		{Presenter: "search_users", Data: map[string]any{"searches": []any{
			map[string]any{"username": "carla"},
			map[string]any{"member_number": "M-7"},
			map[string]any{"email": "anna@example.com", "first_name": "Anna"},
			map[string]any{"email": "anna@example.com"},
			map[string]any{"username": "nobody"},
			map[string]any{"email": "anna@example.com", "last_name": "Birke"},
		}}},
	})
	if err != nil {
		t.Fatalf("search_users: %v", err)
	}
	matches := results[0].([]any)
	if !reflect.DeepEqual(matches[0], []int{22}) {
		t.Errorf("username search = %v", matches[0])
	}
	if !reflect.DeepEqual(matches[1], []int{21}) {
		t.Errorf("member_number search = %v", matches[1])
	}
	if !reflect.DeepEqual(matches[2], []int{20}) {
		t.Errorf("email with name search = %v", matches[2])
	}
	if got := matches[3].([]int); len(got) != 0 {
		t.Errorf("email without name matched: %v", got)
	}
	if got := matches[4].([]int); len(got) != 0 {
		t.Errorf("unknown username matched: %v", got)
	}
	if got := matches[5].([]int); len(got) != 0 {
		t.Errorf("wrong last name matched: %v", got)
	}
}

func forwardingWorld() map[string]map[string]any {
	world := testutil.MeetingWorld()
	world["committee/1"]["forward_to_committee_ids"] = []int{2}
	world["committee/1"]["receive_forwardings_from_committee_ids"] = []int{2, 3}
	world["committee/2"] = map[string]any{
		"name":               "State Assembly",
		"organization_id":    1,
		"meeting_ids":        []int{2, 3},
		"default_meeting_id": 2,
	}
	world["committee/3"] = map[string]any{"name": "Finance", "organization_id": 1}
	world["meeting/2"] = map[string]any{
		"name":                         "Spring Session",
		"committee_id":                 2,
		"is_active_in_organization_id": 1,
	}
	world["meeting/3"] = map[string]any{"name": "Old Session", "committee_id": 2}
	return world
}

func TestGetForwardingMeetings(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, forwardingWorld())

	results, err := run(t, fake, 1, []presenters.Blob{
		{Presenter: "get_forwarding_meetings", Data: map[string]any{"meeting_id": 1}},
	})
	if err != nil {
		t.Fatalf("get_forwarding_meetings: %v", err)
	}
	targets := results[0].([]map[string]any)
	if len(targets) != 1 {
		t.Fatalf("targets = %v", targets)
	}
	target := targets[0]
	if target["id"] != 2 || target["name"] != "State Assembly" || target["default_meeting_id"] != 2 {
		t.Errorf("target = %v", target)
	}
	meetings := target["meetings"].([]map[string]any)
	if len(meetings) != 1 || meetings[0]["id"] != 2 {
		t.Errorf("archived meeting listed: %v", meetings)
	}
}

func TestGetForwardingMeetingsNeedsMotionManager(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, forwardingWorld())

	_, err := run(t, fake, 10, []presenters.Blob{
		{Presenter: "get_forwarding_meetings", Data: map[string]any{"meeting_id": 1}},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := apperror.Message(err); got != "Missing permission: motion.can_manage in meeting 1" {
		t.Errorf("message = %q", got)
	}
}

func TestGetForwardingCommittees(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, forwardingWorld())

	results, err := run(t, fake, 1, []presenters.Blob{
		{Presenter: "get_forwarding_committees", Data: map[string]any{"meeting_id": 1}},
	})
	if err != nil {
		t.Fatalf("get_forwarding_committees: %v", err)
	}
	names := results[0].([]string)
	if !reflect.DeepEqual(names, []string{"State Assembly", "Finance"}) {
		t.Errorf("names = %v", names)
	}
}
