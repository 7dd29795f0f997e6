package committee_test

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

func TestCreateCommittee(t *testing.T) {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "can_manage_organization"
	fake := testutil.NewFakeDatastore(t, world)

	results, err := exec(t, fake, 1, []actions.Blob{
		{Action: "committee.create", Data: []map[string]any{
			{"organization_id": 1, "name": "Elections"},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got, ok := results[0][0].(map[string]any)
	if !ok {
		t.Fatalf("result = %v", results[0][0])
	}
	id := datastore.Int(got["id"])
	if id == 0 {
		t.Fatalf("result id missing: %v", got)
	}

	committee := fake.Model("committee/2")
	if committee == nil {
		t.Fatal("committee/2 not created")
	}
	if committee["name"] != "Elections" {
		t.Errorf("name = %v", committee["name"])
	}
	// The organization's back reference is maintained in the same write.
	org := fake.Model("organization/1")
	ids := datastore.IntList(org["committee_ids"])
	if len(ids) != 2 || ids[1] != 2 {
		t.Errorf("organization committee_ids = %v", ids)
	}
}

func TestCreateCommitteeNeedsOrganizationLevel(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())

	_, err := exec(t, fake, 10, []actions.Blob{
		{Action: "committee.create", Data: []map[string]any{
			{"organization_id": 1, "name": "Elections"},
		}},
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if apperror.KindOf(err) != apperror.PermissionDenied {
		t.Errorf("kind = %v", apperror.KindOf(err))
	}
	want := "Missing organization management level: can_manage_organization"
	if got := apperror.Message(err); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
	if fake.WriteCount() != 0 {
		t.Errorf("writes = %d, want 0", fake.WriteCount())
	}
}

func TestDeleteCommitteeWithMeetingsRefused(t *testing.T) {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "can_manage_organization"
	fake := testutil.NewFakeDatastore(t, world)

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "committee.delete", Data: []map[string]any{{"id": 1}}},
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	want := "You can not delete committee/1 because you have to delete the related models meeting/1 first."
	if got := apperror.Message(err); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
	if fake.Model("committee/1") == nil {
		t.Error("committee/1 was deleted")
	}
}
