package agenda_test

import (
	"strconv"
	"testing"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
	"github.com/plenumhq/plenum/internal/testutil"
)

// forwardWorld adds a second meeting in the same committee that user 1
// also administrates.
func forwardWorld() map[string]map[string]any {
	world := agendaWorld()
	world["organization/1"]["active_meeting_ids"] = []int{1, 2}
	world["committee/1"]["meeting_ids"] = []int{1, 2}
	world["meeting/2"] = map[string]any{
		"name":                         "Target Meeting",
		"committee_id":                 1,
		"is_active_in_organization_id": 1,
		"default_group_id":             11,
		"admin_group_id":               12,
		"group_ids":                    []int{11, 12},
		"meeting_user_ids":             []int{3},
	}
	world["group/11"] = map[string]any{"name": "Default", "meeting_id": 2, "default_group_for_meeting_id": 2}
	world["group/12"] = map[string]any{"name": "Admin", "meeting_id": 2, "admin_group_for_meeting_id": 2, "meeting_user_ids": []int{3}}
	world["meeting_user/3"] = map[string]any{"meeting_id": 2, "user_id": 1, "group_ids": []int{12}}
	world["user/1"]["meeting_user_ids"] = []int{1, 3}
	return world
}

func TestForwardCopiesSubtree(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, forwardWorld())

	results, err := exec(t, fake, 1, []actions.Blob{
		{Action: "agenda_item.forward", Data: []map[string]any{
			{"meeting_id": 1, "ids": []int{1}, "target_meeting_ids": []int{2}},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	rootIDs := datastore.IntList(results[0][0].(map[string]any)["meeting/2"])
	if len(rootIDs) != 1 {
		t.Fatalf("root ids = %v", rootIDs)
	}

	// Both the root and its child arrived in meeting 2.
	copies := 0
	var rootItem, childItem map[string]any
	for i := 3; i < 10; i++ {
		item := fake.Model("agenda_item/" + strconv.Itoa(i))
		if item == nil || datastore.Int(item["meeting_id"]) != 2 {
			continue
		}
		copies++
		if datastore.Int(item["parent_id"]) == 0 {
			rootItem = item
		} else {
			childItem = item
		}
	}
	if copies != 2 {
		t.Fatalf("copied %d items, want 2", copies)
	}
	if datastore.Int(rootItem["id"]) != rootIDs[0] {
		t.Errorf("result root = %v, stored root = %v", rootIDs[0], rootItem["id"])
	}
	if datastore.Int(childItem["parent_id"]) != rootIDs[0] {
		t.Errorf("child parent_id = %v", childItem["parent_id"])
	}

	// The topic was cloned, not moved.
	content, err := domain.ParseFQID(datastore.String(rootItem["content_object_id"]))
	if err != nil {
		t.Fatalf("content_object_id = %v", rootItem["content_object_id"])
	}
	topic := fake.Model(content.String())
	if datastore.Int(topic["meeting_id"]) != 2 {
		t.Errorf("copied topic meeting_id = %v", topic["meeting_id"])
	}
	if topic["title"] != "First" {
		t.Errorf("copied topic title = %v", topic["title"])
	}
	if fake.Model("topic/1") == nil {
		t.Error("source topic vanished")
	}
	if fake.Model("list_of_speakers/"+strconv.Itoa(datastore.Int(topic["list_of_speakers_id"]))) == nil {
		t.Error("copied topic has no list of speakers")
	}
}

func TestForwardRejectsOwnMeeting(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, forwardWorld())

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "agenda_item.forward", Data: []map[string]any{
			{"meeting_id": 1, "ids": []int{1}, "target_meeting_ids": []int{1}},
		}},
	})
	if got := apperror.Message(err); got != "Cannot forward agenda items to their own meeting." {
		t.Errorf("message = %q", got)
	}
}

func TestForwardRejectsRunningSpeakers(t *testing.T) {
	world := forwardWorld()
	world["list_of_speakers/2"]["speaker_ids"] = []int{1}
	world["speaker/1"] = map[string]any{
		"meeting_id": 1, "list_of_speakers_id": 2, "meeting_user_id": 2,
		"begin_time": 1700000000, "weight": 1,
	}
	fake := testutil.NewFakeDatastore(t, world)

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "agenda_item.forward", Data: []map[string]any{
			{"meeting_id": 1, "ids": []int{1}, "target_meeting_ids": []int{2}},
		}},
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	want := "Cannot forward when there are running or paused speakers."
	if got := apperror.Message(err); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
	if fake.WriteCount() != 0 {
		t.Errorf("writes = %d, want 0", fake.WriteCount())
	}
}

func TestForwardRejectsWaitingPointsOfOrder(t *testing.T) {
	world := forwardWorld()
	world["list_of_speakers/1"]["speaker_ids"] = []int{1}
	world["speaker/1"] = map[string]any{
		"meeting_id": 1, "list_of_speakers_id": 1, "meeting_user_id": 2,
		"point_of_order": true, "weight": 1,
	}
	fake := testutil.NewFakeDatastore(t, world)

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "agenda_item.forward", Data: []map[string]any{
			{"meeting_id": 1, "ids": []int{1}, "target_meeting_ids": []int{2}},
		}},
	})
	if got := apperror.Message(err); got != "Cannot forward when there are waiting points of order." {
		t.Errorf("message = %q", got)
	}
}

func TestForwardCopiesFinishedSpeakers(t *testing.T) {
	world := forwardWorld()
	world["list_of_speakers/1"]["speaker_ids"] = []int{1}
	world["speaker/1"] = map[string]any{
		"meeting_id": 1, "list_of_speakers_id": 1, "meeting_user_id": 2,
		"begin_time": 1700000000, "end_time": 1700000300, "weight": 1,
	}
	fake := testutil.NewFakeDatastore(t, world)

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "agenda_item.forward", Data: []map[string]any{
			{"meeting_id": 1, "ids": []int{1}, "target_meeting_ids": []int{2}, "with_speakers": true},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Speaker 2 is the copy; it hangs off a fresh meeting_user for user
	// 10 in meeting 2.
	copied := fake.Model("speaker/2")
	if copied == nil {
		t.Fatal("speaker not copied")
	}
	if datastore.Int(copied["meeting_id"]) != 2 {
		t.Errorf("copied speaker meeting_id = %v", copied["meeting_id"])
	}
	mu := fake.Model("meeting_user/" + strconv.Itoa(datastore.Int(copied["meeting_user_id"])))
	if mu == nil {
		t.Fatal("no meeting_user for copied speaker")
	}
	if datastore.Int(mu["user_id"]) != 10 || datastore.Int(mu["meeting_id"]) != 2 {
		t.Errorf("meeting_user = %v", mu)
	}
}
