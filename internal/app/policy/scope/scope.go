// internal/app/policy/scope/scope.go
package scope

import (
	"context"
	"fmt"

	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
)

// Kind is the smallest organizational unit that contains a user.
type Kind string

const (
	KindMeeting      Kind = "meeting"
	KindCommittee    Kind = "committee"
	KindOrganization Kind = "organization"
)

// OrganizationID is the id of the singleton organization model.
const OrganizationID = 1

// UserScope describes where a user lives in the organization tree.
type UserScope struct {
	Kind Kind
	ID   int

	OML               perms.OrganizationManagementLevel
	CommitteeMeetings map[int][]int
	OnlyArchived      bool
	HomeCommitteeID   int
}

// ForUser computes the scope of an existing user.
func ForUser(ctx context.Context, fetch *datastore.Fetcher, userID int) (UserScope, error) {
	fields, err := fetch.Get(ctx, domain.FQID{Collection: "user", ID: userID},
		"organization_management_level", "committee_management_ids", "meeting_user_ids", "home_committee_id")
	if err != nil {
		return UserScope{}, fmt.Errorf("loading user %d: %w", userID, err)
	}

	var meetingIDs []int
	for _, muID := range datastore.IntList(fields["meeting_user_ids"]) {
		mu, err := fetch.Get(ctx, domain.FQID{Collection: "meeting_user", ID: muID}, "meeting_id", "group_ids")
		if err != nil {
			return UserScope{}, err
		}
		if len(datastore.IntList(mu["group_ids"])) == 0 {
			continue
		}
		meetingIDs = append(meetingIDs, datastore.Int(mu["meeting_id"]))
	}

	return compute(ctx, fetch, input{
		oml:             perms.OrganizationManagementLevel(datastore.String(fields["organization_management_level"])),
		managedIDs:      datastore.IntList(fields["committee_management_ids"]),
		meetingIDs:      meetingIDs,
		homeCommitteeID: datastore.Int(fields["home_committee_id"]),
	})
}

// ForInstance computes the scope a new user would have, given a creation
// payload carrying group_ids + meeting_id and/or committee_management_ids.
func ForInstance(ctx context.Context, fetch *datastore.Fetcher, instance map[string]any) (UserScope, error) {
	var meetingIDs []int
	if mid := datastore.Int(instance["meeting_id"]); mid != 0 && len(datastore.IntList(instance["group_ids"])) > 0 {
		meetingIDs = []int{mid}
	}
	return compute(ctx, fetch, input{
		oml:             perms.OrganizationManagementLevel(datastore.String(instance["organization_management_level"])),
		managedIDs:      datastore.IntList(instance["committee_management_ids"]),
		meetingIDs:      meetingIDs,
		homeCommitteeID: datastore.Int(instance["home_committee_id"]),
	})
}

type input struct {
	oml             perms.OrganizationManagementLevel
	managedIDs      []int
	meetingIDs      []int
	homeCommitteeID int
}

func compute(ctx context.Context, fetch *datastore.Fetcher, in input) (UserScope, error) {
	committees := map[int][]int{}
	for _, cid := range in.managedIDs {
		if _, ok := committees[cid]; !ok {
			committees[cid] = nil
		}
	}

	var activeMeetings []int
	for _, mid := range in.meetingIDs {
		m, err := fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: mid},
			"committee_id", "is_active_in_organization_id")
		if err != nil {
			return UserScope{}, fmt.Errorf("loading meeting %d: %w", mid, err)
		}
		cid := datastore.Int(m["committee_id"])
		committees[cid] = append(committees[cid], mid)
		if datastore.Int(m["is_active_in_organization_id"]) != 0 {
			activeMeetings = append(activeMeetings, mid)
		}
	}

	sc := UserScope{
		OML:               in.oml,
		CommitteeMeetings: committees,
		OnlyArchived:      len(in.meetingIDs) > 0 && len(activeMeetings) == 0,
		HomeCommitteeID:   in.homeCommitteeID,
	}

	switch {
	case in.homeCommitteeID != 0:
		sc.Kind, sc.ID = KindCommittee, in.homeCommitteeID
	case len(activeMeetings) == 1:
		sc.Kind, sc.ID = KindMeeting, activeMeetings[0]
	case len(committees) == 1:
		for cid := range committees {
			sc.Kind, sc.ID = KindCommittee, cid
		}
	default:
		sc.Kind, sc.ID = KindOrganization, OrganizationID
	}
	return sc, nil
}
