package permcheck_test

import (
	"context"
	"testing"

	"github.com/plenumhq/plenum/internal/app/policy/permcheck"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/testutil"
)

func fixture(t *testing.T) *testutil.FakeDatastore {
	t.Helper()
	return testutil.NewFakeDatastore(t, map[string]map[string]any{
		"meeting/1": {
			"committee_id":     1,
			"group_ids":        []int{1, 2, 3},
			"default_group_id": 1,
			"admin_group_id":   2,
			"meeting_user_ids": []int{10, 11},
		},
		"meeting/2": {
			"committee_id":       1,
			"locked_from_inside": true,
			"admin_group_id":     5,
		},
		"group/1":         {"meeting_id": 1, "permissions": []string{"agenda_item.can_see"}},
		"group/2":         {"meeting_id": 1, "permissions": []string{}},
		"group/3":         {"meeting_id": 1, "permissions": []string{"motion.can_create"}},
		"committee/1":     {"meeting_ids": []int{1, 2}},
		"user/20":         {"username": "member", "meeting_user_ids": []int{10}},
		"user/21":         {"username": "admin", "meeting_user_ids": []int{11}},
		"user/22":         {"username": "boss", "organization_management_level": "superadmin"},
		"user/23":         {"username": "manager", "committee_management_ids": []int{1}},
		"user/24":         {"username": "orgadmin", "organization_management_level": "can_manage_organization"},
		"meeting_user/10": {"user_id": 20, "meeting_id": 1, "group_ids": []int{3}},
		"meeting_user/11": {"user_id": 21, "meeting_id": 1, "group_ids": []int{2}},
	})
}

func TestHasPermMembership(t *testing.T) {
	ds := fixture(t)
	ctx := context.Background()
	c := permcheck.New(datastore.NewFetcher(ds.Client()), 20)

	ok, err := c.HasPerm(ctx, 1, perms.MotionCanSee)
	if err != nil {
		t.Fatalf("HasPerm: %v", err)
	}
	if !ok {
		t.Error("motion.can_create should imply motion.can_see")
	}

	ok, err = c.HasPerm(ctx, 1, perms.MotionCanManage)
	if err != nil {
		t.Fatalf("HasPerm: %v", err)
	}
	if ok {
		t.Error("member must not have motion.can_manage")
	}
}

func TestHasPermAdminGroup(t *testing.T) {
	ds := fixture(t)
	ctx := context.Background()
	c := permcheck.New(datastore.NewFetcher(ds.Client()), 21)

	ok, err := c.HasPerm(ctx, 1, perms.UserCanManage)
	if err != nil {
		t.Fatalf("HasPerm: %v", err)
	}
	if !ok {
		t.Error("admin group member must hold every permission")
	}
	admin, err := c.IsMeetingAdmin(ctx, 1)
	if err != nil || !admin {
		t.Errorf("IsMeetingAdmin = %v, %v", admin, err)
	}
}

func TestSuperadminBypass(t *testing.T) {
	ds := fixture(t)
	ctx := context.Background()
	c := permcheck.New(datastore.NewFetcher(ds.Client()), 22)

	ok, err := c.HasPerm(ctx, 1, perms.MotionCanManage)
	if err != nil {
		t.Fatalf("HasPerm: %v", err)
	}
	if !ok {
		t.Error("superadmin should hold meeting permissions")
	}

	// Meeting 2 is locked from the inside; only membership counts there.
	ok, err = c.HasPerm(ctx, 2, perms.MotionCanSee)
	if err != nil {
		t.Fatalf("HasPerm locked: %v", err)
	}
	if ok {
		t.Error("locked meeting must not honor the superadmin bypass")
	}
}

func TestCommitteeManager(t *testing.T) {
	ds := fixture(t)
	ctx := context.Background()

	c := permcheck.New(datastore.NewFetcher(ds.Client()), 23)
	ok, err := c.IsCommitteeManager(ctx, 1)
	if err != nil || !ok {
		t.Errorf("direct manager: %v, %v", ok, err)
	}

	c = permcheck.New(datastore.NewFetcher(ds.Client()), 22)
	ok, err = c.IsCommitteeManager(ctx, 1)
	if err != nil || !ok {
		t.Errorf("superadmin as manager: %v, %v", ok, err)
	}

	c = permcheck.New(datastore.NewFetcher(ds.Client()), 20)
	ok, err = c.IsCommitteeManager(ctx, 1)
	if err != nil || ok {
		t.Errorf("plain member as manager: %v, %v", ok, err)
	}
}

func TestCommitteeManagerSpillover(t *testing.T) {
	ds := fixture(t)
	ctx := context.Background()

	// Committee manager without any group membership: full permissions
	// on the unlocked meeting of the committee.
	c := permcheck.New(datastore.NewFetcher(ds.Client()), 23)
	ok, err := c.HasPerm(ctx, 1, perms.MotionCanManage)
	if err != nil {
		t.Fatalf("HasPerm: %v", err)
	}
	if !ok {
		t.Error("committee manager must hold permissions on an unlocked meeting")
	}

	// Meeting 2 belongs to the same committee but is locked from the
	// inside, which blocks the spillover.
	ok, err = c.HasPerm(ctx, 2, perms.MotionCanSee)
	if err != nil {
		t.Fatalf("HasPerm locked: %v", err)
	}
	if ok {
		t.Error("locked meeting must not honor committee management")
	}
}

func TestOrganizationManagerSpillover(t *testing.T) {
	ds := fixture(t)
	ctx := context.Background()

	c := permcheck.New(datastore.NewFetcher(ds.Client()), 24)
	ok, err := c.HasPerm(ctx, 1, perms.TopicCanManage)
	if err != nil {
		t.Fatalf("HasPerm: %v", err)
	}
	if !ok {
		t.Error("can_manage_organization must hold permissions on an unlocked meeting")
	}
}

func TestAnonymousUsesDefaultGroup(t *testing.T) {
	ds := fixture(t)
	ctx := context.Background()

	// Anonymous access is disabled on meeting 1.
	c := permcheck.New(datastore.NewFetcher(ds.Client()), permcheck.AnonymousUserID)
	ok, err := c.HasPerm(ctx, 1, perms.AgendaItemCanSee)
	if err != nil {
		t.Fatalf("HasPerm: %v", err)
	}
	if ok {
		t.Error("anonymous got permissions while enable_anonymous is off")
	}
}

func TestMeetingUserID(t *testing.T) {
	ds := fixture(t)
	ctx := context.Background()

	c := permcheck.New(datastore.NewFetcher(ds.Client()), 20)
	id, err := c.MeetingUserID(ctx, 1)
	if err != nil || id != 10 {
		t.Errorf("MeetingUserID = %d, %v", id, err)
	}
	id, err = c.MeetingUserID(ctx, 2)
	if err != nil || id != 0 {
		t.Errorf("MeetingUserID in foreign meeting = %d, %v", id, err)
	}
}
