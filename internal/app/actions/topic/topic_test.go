package topic_test

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/actions/catalog"
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/testutil"
)

func exec(t *testing.T, fake *testutil.FakeDatastore, userID int, blobs []actions.Blob) ([][]any, error) {
	t.Helper()
	e := actions.NewExecutor(fake.Client(), models.New(), catalog.MustNew(), zap.NewNop())
	return e.Execute(context.Background(), userID, false, blobs)
}

// meeting42 builds a world where meeting 42 exists and user 10 is a
// member with the given group permissions.
func meeting42(memberPerms ...string) map[string]map[string]any {
	if memberPerms == nil {
		memberPerms = []string{}
	}
	return map[string]map[string]any{
		"organization/1": {"committee_ids": []int{1}, "active_meeting_ids": []int{42}},
		"committee/1":    {"name": "C", "organization_id": 1, "meeting_ids": []int{42}},
		"meeting/42": {
			"name":                         "M",
			"committee_id":                 1,
			"is_active_in_organization_id": 1,
			"default_group_id":             5,
			"admin_group_id":               6,
			"group_ids":                    []int{5, 6},
			"meeting_user_ids":             []int{2},
		},
		"group/5":        {"name": "Default", "meeting_id": 42, "default_group_for_meeting_id": 42, "permissions": memberPerms, "meeting_user_ids": []int{2}},
		"group/6":        {"name": "Admin", "meeting_id": 42, "admin_group_for_meeting_id": 42},
		"user/10":        {"username": "member", "is_active": true, "meeting_user_ids": []int{2}},
		"meeting_user/2": {"meeting_id": 42, "user_id": 10, "group_ids": []int{5}},
	}
}

func TestCreateTopicNeedsManagePermission(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, meeting42("topic.can_see"))

	_, err := exec(t, fake, 10, []actions.Blob{
		{Action: "topic.create", Data: []map[string]any{
			{"meeting_id": 42, "title": "New topic"},
		}},
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if apperror.KindOf(err) != apperror.PermissionDenied {
		t.Errorf("kind = %v", apperror.KindOf(err))
	}
	want := "Missing permission: topic.can_manage in meeting 42"
	if got := apperror.Message(err); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
	if fake.WriteCount() != 0 {
		t.Errorf("writes = %d, want 0", fake.WriteCount())
	}
}

func TestCreateTopicBuildsAgendaItemAndList(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, meeting42("topic.can_manage"))

	results, err := exec(t, fake, 10, []actions.Blob{
		{Action: "topic.create", Data: []map[string]any{
			{"meeting_id": 42, "title": "Budget", "text": "<p>hello</p><script>x</script>", "agenda_type": "internal"},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	id := datastore.Int(results[0][0].(map[string]any)["id"])
	topic := fake.Model(fmt.Sprintf("topic/%d", id))
	if topic == nil {
		t.Fatal("topic not created")
	}
	if topic["title"] != "Budget" {
		t.Errorf("title = %v", topic["title"])
	}
	if datastore.Int(topic["sequential_number"]) != 1 {
		t.Errorf("sequential_number = %v", topic["sequential_number"])
	}
	if got := datastore.String(topic["text"]); got != "<p>hello</p>" {
		t.Errorf("text = %q, script tag survived sanitizing", got)
	}

	itemID := datastore.Int(topic["agenda_item_id"])
	item := fake.Model(fmt.Sprintf("agenda_item/%d", itemID))
	if item == nil {
		t.Fatal("agenda item not created")
	}
	if datastore.String(item["content_object_id"]) != fmt.Sprintf("topic/%d", id) {
		t.Errorf("content_object_id = %v", item["content_object_id"])
	}
	if !datastore.Bool(item["is_internal"]) {
		t.Error("agenda item not internal")
	}

	losID := datastore.Int(topic["list_of_speakers_id"])
	if fake.Model(fmt.Sprintf("list_of_speakers/%d", losID)) == nil {
		t.Fatal("list of speakers not created")
	}
}

func TestSequentialNumbersCountPerMeeting(t *testing.T) {
	world := meeting42("topic.can_manage")
	world["topic/7"] = map[string]any{"meeting_id": 42, "title": "Old", "sequential_number": 4}
	fake := testutil.NewFakeDatastore(t, world)

	results, err := exec(t, fake, 10, []actions.Blob{
		{Action: "topic.create", Data: []map[string]any{
			{"meeting_id": 42, "title": "A"},
			{"meeting_id": 42, "title": "B"},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	first := datastore.Int(results[0][0].(map[string]any)["id"])
	second := datastore.Int(results[0][1].(map[string]any)["id"])
	if got := datastore.Int(fake.Model(fmt.Sprintf("topic/%d", first))["sequential_number"]); got != 5 {
		t.Errorf("first sequential_number = %d, want 5", got)
	}
	if got := datastore.Int(fake.Model(fmt.Sprintf("topic/%d", second))["sequential_number"]); got != 6 {
		t.Errorf("second sequential_number = %d, want 6", got)
	}
}

func TestDeleteTopicCascades(t *testing.T) {
	world := meeting42("topic.can_manage")
	world["topic/7"] = map[string]any{
		"meeting_id":          42,
		"title":               "Old",
		"sequential_number":   1,
		"agenda_item_id":      3,
		"list_of_speakers_id": 4,
	}
	world["agenda_item/3"] = map[string]any{"meeting_id": 42, "content_object_id": "topic/7"}
	world["list_of_speakers/4"] = map[string]any{"meeting_id": 42, "content_object_id": "topic/7"}
	fake := testutil.NewFakeDatastore(t, world)

	_, err := exec(t, fake, 10, []actions.Blob{
		{Action: "topic.delete", Data: []map[string]any{{"id": 7}}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if fake.Model("topic/7") != nil {
		t.Error("topic survived")
	}
	if fake.Model("agenda_item/3") != nil {
		t.Error("agenda item survived")
	}
	if fake.Model("list_of_speakers/4") != nil {
		t.Error("list of speakers survived")
	}
}
