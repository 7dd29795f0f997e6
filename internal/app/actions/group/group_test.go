package group_test

import (
	"context"
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

func TestCreateGroup(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())

	results, err := exec(t, fake, 1, []actions.Blob{
		{Action: "group.create", Data: []map[string]any{
			{"meeting_id": 1, "name": "Staff", "permissions": []string{"motion.can_see", "topic.can_manage"}},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	id := datastore.Int(results[0][0].(map[string]any)["id"])
	group := fake.Model("group/4")
	if group == nil || id != 4 {
		t.Fatalf("group not created, id = %d", id)
	}
	meeting := fake.Model("meeting/1")
	ids := datastore.IntList(meeting["group_ids"])
	if len(ids) != 4 || ids[3] != 4 {
		t.Errorf("meeting group_ids = %v", ids)
	}
}

func TestCreateGroupRejectsUnknownPermission(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "group.create", Data: []map[string]any{
			{"meeting_id": 1, "name": "Staff", "permissions": []string{"motion.can_fly"}},
		}},
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if got := apperror.Message(err); got != "Unknown permission: motion.can_fly" {
		t.Errorf("message = %q", got)
	}
}

func TestDeleteGuardsBuiltinGroups(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "group.delete", Data: []map[string]any{{"id": 1}}},
	})
	if got := apperror.Message(err); got != "You cannot delete the default group of a meeting." {
		t.Errorf("message = %q", got)
	}

	_, err = exec(t, fake, 1, []actions.Blob{
		{Action: "group.delete", Data: []map[string]any{{"id": 2}}},
	})
	if got := apperror.Message(err); got != "You cannot delete the admin group of a meeting." {
		t.Errorf("message = %q", got)
	}

	// A plain group goes away and the meeting reference follows.
	if _, err := exec(t, fake, 1, []actions.Blob{
		{Action: "group.delete", Data: []map[string]any{{"id": 3}}},
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if fake.Model("group/3") != nil {
		t.Error("group/3 survived")
	}
	ids := datastore.IntList(fake.Model("meeting/1")["group_ids"])
	if len(ids) != 2 {
		t.Errorf("meeting group_ids = %v", ids)
	}
}
