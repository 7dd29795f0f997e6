package user_test

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

func TestCreateUserGeneratesUsername(t *testing.T) {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "can_manage_users"
	world["user/10"]["username"] = "MaxMustermann"
	fake := testutil.NewFakeDatastore(t, world)

	results, err := exec(t, fake, 1, []actions.Blob{
		{Action: "user.create", Data: []map[string]any{
			{"first_name": "Max", "last_name": "Mustermann"},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	id := datastore.Int(results[0][0].(map[string]any)["id"])
	created := fake.Model(fmt.Sprintf("user/%d", id))
	if created == nil {
		t.Fatal("user not created")
	}
	// MaxMustermann is taken, so a numeric suffix is appended.
	if got := datastore.String(created["username"]); got != "MaxMustermann1" {
		t.Errorf("username = %q", got)
	}
	if !datastore.Bool(created["is_active"]) {
		t.Error("is_active not defaulted")
	}
	if datastore.String(created["default_password"]) == "" {
		t.Error("default_password not generated")
	}
	if datastore.String(created["password"]) == "" {
		t.Error("password hash missing")
	}
	if datastore.Int(created["organization_id"]) != 1 {
		t.Errorf("organization_id = %v", created["organization_id"])
	}
}

func TestCreateUserRejectsTakenUsername(t *testing.T) {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "can_manage_users"
	fake := testutil.NewFakeDatastore(t, world)

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "user.create", Data: []map[string]any{
			{"username": "member"},
		}},
	})
	if got := apperror.Message(err); got != "A user with the username member already exists." {
		t.Errorf("message = %q", got)
	}
}

func TestUpdateOMLRequiresEqualOrHigherLevel(t *testing.T) {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "can_manage_organization"
	fake := testutil.NewFakeDatastore(t, world)

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "user.update", Data: []map[string]any{
			{"id": 10, "organization_management_level": "superadmin"},
		}},
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if apperror.KindOf(err) != apperror.PermissionDenied {
		t.Errorf("kind = %v", apperror.KindOf(err))
	}
	want := "Your organization management level is not high enough to set a Level of superadmin."
	if got := apperror.Message(err); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
	if fake.WriteCount() != 0 {
		t.Errorf("writes = %d, want 0", fake.WriteCount())
	}
}

func TestUpdateMeetingFieldsLandOnMeetingUser(t *testing.T) {
	world := testutil.MeetingWorld()
	fake := testutil.NewFakeDatastore(t, world)

	// User 1 is a meeting admin, which covers group D fields.
	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "user.update", Data: []map[string]any{
			{"id": 10, "meeting_id": 1, "about_me": "Delegate of district 9"},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	mu := fake.Model("meeting_user/2")
	if got := datastore.String(mu["about_me"]); got != "Delegate of district 9" {
		t.Errorf("about_me = %q", got)
	}
	// The user model itself is untouched.
	if _, has := fake.Model("user/10")["about_me"]; has {
		t.Error("about_me written to the user model")
	}
}

func TestDeleteSelfRefused(t *testing.T) {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "superadmin"
	fake := testutil.NewFakeDatastore(t, world)

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "user.delete", Data: []map[string]any{{"id": 1}}},
	})
	if got := apperror.Message(err); got != "You cannot delete yourself." {
		t.Errorf("message = %q", got)
	}
}

func TestDeleteNeedsDominance(t *testing.T) {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "can_manage_users"
	world["user/10"]["organization_management_level"] = "superadmin"
	fake := testutil.NewFakeDatastore(t, world)

	_, err := exec(t, fake, 1, []actions.Blob{
		{Action: "user.delete", Data: []map[string]any{{"id": 10}}},
	})
	want := "Your organization management level is not high enough to change a user with a Level of superadmin."
	if got := apperror.Message(err); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestSetPresentTogglesMembership(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())

	if _, err := exec(t, fake, 1, []actions.Blob{
		{Action: "user.set_present", Data: []map[string]any{
			{"id": 10, "meeting_id": 1, "present": true},
		}},
	}); err != nil {
		t.Fatalf("set present: %v", err)
	}
	ids := datastore.IntList(fake.Model("meeting/1")["present_user_ids"])
	if len(ids) != 1 || ids[0] != 10 {
		t.Fatalf("present_user_ids = %v", ids)
	}
	// The inverse on the user is maintained by the relation layer.
	back := datastore.IntList(fake.Model("user/10")["is_present_in_meeting_ids"])
	if len(back) != 1 || back[0] != 1 {
		t.Errorf("is_present_in_meeting_ids = %v", back)
	}

	if _, err := exec(t, fake, 1, []actions.Blob{
		{Action: "user.set_present", Data: []map[string]any{
			{"id": 10, "meeting_id": 1, "present": false},
		}},
	}); err != nil {
		t.Fatalf("unset present: %v", err)
	}
	if ids := datastore.IntList(fake.Model("meeting/1")["present_user_ids"]); len(ids) != 0 {
		t.Errorf("present_user_ids = %v", ids)
	}
}
