// internal/app/policy/permcheck/permcheck.go
package permcheck

import (
	"context"
	"fmt"

	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
)

// AnonymousUserID is the pseudo user id of unauthenticated requests.
const AnonymousUserID = 0

// Checker answers permission questions for one user within one request.
// Lookups go through the given fetcher, so answers are consistent with
// the rest of the request and participate in its lock set. Results are
// cached per meeting and per committee.
type Checker struct {
	fetch  *datastore.Fetcher
	userID int

	oml       *perms.OrganizationManagementLevel
	managed   map[int]bool // committee id -> is manager
	meeting   map[int]perms.Set
	inAdmin   map[int]bool
	meetUsers map[int]int // meeting id -> meeting_user id, 0 when absent
}

func New(fetch *datastore.Fetcher, userID int) *Checker {
	return &Checker{
		fetch:     fetch,
		userID:    userID,
		managed:   make(map[int]bool),
		meeting:   make(map[int]perms.Set),
		inAdmin:   make(map[int]bool),
		meetUsers: make(map[int]int),
	}
}

// UserID returns the user this checker answers for.
func (c *Checker) UserID() int { return c.userID }

// OrganizationManagementLevel returns the user's organization-wide level.
func (c *Checker) OrganizationManagementLevel(ctx context.Context) (perms.OrganizationManagementLevel, error) {
	if c.oml != nil {
		return *c.oml, nil
	}
	level := perms.OMLNone
	if c.userID != AnonymousUserID {
		fields, err := c.fetch.Get(ctx, domain.FQID{Collection: "user", ID: c.userID}, "organization_management_level")
		if err != nil {
			return perms.OMLNone, fmt.Errorf("loading management level of user %d: %w", c.userID, err)
		}
		level = perms.OrganizationManagementLevel(datastore.String(fields["organization_management_level"]))
	}
	c.oml = &level
	return level, nil
}

// HasOML reports whether the user has at least the given level.
func (c *Checker) HasOML(ctx context.Context, need perms.OrganizationManagementLevel) (bool, error) {
	have, err := c.OrganizationManagementLevel(ctx)
	if err != nil {
		return false, err
	}
	return have.Covers(need), nil
}

// IsCommitteeManager reports whether the user manages the committee,
// either directly or through an organization level of
// can_manage_organization or higher.
func (c *Checker) IsCommitteeManager(ctx context.Context, committeeID int) (bool, error) {
	if got, cached := c.managed[committeeID]; cached {
		return got, nil
	}
	if byOML, err := c.HasOML(ctx, perms.OMLCanManageOrganization); err != nil {
		return false, err
	} else if byOML {
		c.managed[committeeID] = true
		return true, nil
	}
	if c.userID == AnonymousUserID {
		c.managed[committeeID] = false
		return false, nil
	}
	fields, err := c.fetch.Get(ctx, domain.FQID{Collection: "user", ID: c.userID}, "committee_management_ids")
	if err != nil {
		return false, fmt.Errorf("loading committees of user %d: %w", c.userID, err)
	}
	found := false
	for _, id := range datastore.IntList(fields["committee_management_ids"]) {
		if id == committeeID {
			found = true
			break
		}
	}
	c.managed[committeeID] = found
	return found, nil
}

// HasPerm reports whether the user holds the permission in the meeting.
// Members of the meeting's admin group hold every permission. Managers
// of the meeting's committee, including everyone with an organization
// level of can_manage_organization or higher, hold every permission as
// well, unless the meeting is locked from the inside, in which case
// only actual membership counts.
func (c *Checker) HasPerm(ctx context.Context, meetingID int, p perms.Permission) (bool, error) {
	set, admin, err := c.meetingPerms(ctx, meetingID)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	if set.Has(p) {
		return true, nil
	}
	locked, err := c.meetingLocked(ctx, meetingID)
	if err != nil {
		return false, err
	}
	if locked {
		return false, nil
	}
	fields, err := c.fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "committee_id")
	if err != nil {
		return false, err
	}
	return c.IsCommitteeManager(ctx, datastore.Int(fields["committee_id"]))
}

// IsMeetingAdmin reports membership in the meeting's admin group.
func (c *Checker) IsMeetingAdmin(ctx context.Context, meetingID int) (bool, error) {
	_, admin, err := c.meetingPerms(ctx, meetingID)
	return admin, err
}

// MeetingUserID returns the id of the user's meeting_user in the
// meeting, or 0 when the user is not a member.
func (c *Checker) MeetingUserID(ctx context.Context, meetingID int) (int, error) {
	if id, ok := c.meetUsers[meetingID]; ok {
		return id, nil
	}
	if c.userID == AnonymousUserID {
		c.meetUsers[meetingID] = 0
		return 0, nil
	}
	fields, err := c.fetch.Get(ctx, domain.FQID{Collection: "user", ID: c.userID}, "meeting_user_ids")
	if err != nil {
		return 0, fmt.Errorf("loading memberships of user %d: %w", c.userID, err)
	}
	for _, muID := range datastore.IntList(fields["meeting_user_ids"]) {
		mu, err := c.fetch.Get(ctx, domain.FQID{Collection: "meeting_user", ID: muID}, "meeting_id")
		if err != nil {
			return 0, err
		}
		if datastore.Int(mu["meeting_id"]) == meetingID {
			c.meetUsers[meetingID] = muID
			return muID, nil
		}
	}
	c.meetUsers[meetingID] = 0
	return 0, nil
}

func (c *Checker) meetingLocked(ctx context.Context, meetingID int) (bool, error) {
	fields, err := c.fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "locked_from_inside")
	if err != nil {
		return false, err
	}
	return datastore.Bool(fields["locked_from_inside"]), nil
}

func (c *Checker) meetingPerms(ctx context.Context, meetingID int) (perms.Set, bool, error) {
	if set, ok := c.meeting[meetingID]; ok {
		return set, c.inAdmin[meetingID], nil
	}

	meetingFields, err := c.fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID},
		"admin_group_id", "default_group_id", "enable_anonymous")
	if err != nil {
		return nil, false, fmt.Errorf("loading meeting %d: %w", meetingID, err)
	}
	adminGroupID := datastore.Int(meetingFields["admin_group_id"])

	var groupIDs []int
	if c.userID == AnonymousUserID {
		if datastore.Bool(meetingFields["enable_anonymous"]) {
			if dg := datastore.Int(meetingFields["default_group_id"]); dg != 0 {
				groupIDs = []int{dg}
			}
		}
	} else {
		muID, err := c.MeetingUserID(ctx, meetingID)
		if err != nil {
			return nil, false, err
		}
		if muID != 0 {
			mu, err := c.fetch.Get(ctx, domain.FQID{Collection: "meeting_user", ID: muID}, "group_ids")
			if err != nil {
				return nil, false, err
			}
			groupIDs = datastore.IntList(mu["group_ids"])
		}
	}

	set := make(perms.Set)
	admin := false
	for _, gid := range groupIDs {
		if gid == adminGroupID && adminGroupID != 0 {
			admin = true
			continue
		}
		group, err := c.fetch.Get(ctx, domain.FQID{Collection: "group", ID: gid}, "permissions")
		if err != nil {
			return nil, false, fmt.Errorf("loading group %d: %w", gid, err)
		}
		for p := range perms.NewSet(datastore.StringList(group["permissions"])) {
			set[p] = true
		}
	}
	c.meeting[meetingID] = set
	c.inAdmin[meetingID] = admin
	return set, admin, nil
}
