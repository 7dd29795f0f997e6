// internal/app/policy/userpolicy/userpolicy.go
package userpolicy

import (
	"context"
	"sort"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/permcheck"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/policy/scope"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
)

// Group labels one of the recognized field groups of a user mutation.
type Group string

const (
	GroupA Group = "A" // personal identity
	GroupB Group = "B" // per-meeting metadata
	GroupC Group = "C" // meeting group assignment
	GroupD Group = "D" // committee management
	GroupE Group = "E" // organization management level
	GroupF Group = "F" // default password
	GroupG Group = "G" // demo user flag
	GroupH Group = "H" // saml id
)

var fieldGroups = map[string]Group{
	"title":                   GroupA,
	"first_name":              GroupA,
	"last_name":               GroupA,
	"username":                GroupA,
	"is_active":               GroupA,
	"is_physical_person":      GroupA,
	"gender_id":               GroupA,
	"pronoun":                 GroupA,
	"email":                   GroupA,
	"can_change_own_password": GroupA,
	"default_vote_weight":     GroupA,
	"member_number":           GroupA,

	"number":                    GroupB,
	"vote_weight":               GroupB,
	"about_me":                  GroupB,
	"comment":                   GroupB,
	"structure_level_ids":       GroupB,
	"vote_delegated_to_id":      GroupB,
	"vote_delegations_from_ids": GroupB,
	"is_present_in_meeting_ids": GroupB,
	"locked_out":                GroupB,
	"is_present":                GroupB,

	"group_ids": GroupC,

	"committee_management_ids": GroupD,

	"organization_management_level": GroupE,

	"default_password": GroupF,

	"is_demo_user": GroupG,

	"saml_id": GroupH,
}

// GroupOf returns the field group of a payload field. Fields outside the
// partition (id, meeting_id) carry no group of their own.
func GroupOf(field string) (Group, bool) {
	g, ok := fieldGroups[field]
	return g, ok
}

// Request evaluates one user mutation for one caller.
type Request struct {
	Fetch    *datastore.Fetcher
	Checker  *permcheck.Checker
	Internal bool
	IsCreate bool
}

// Check rejects the mutation when the caller lacks authority over any
// field group the instance touches. The target is instance["id"]; a
// create has no target yet.
func (r *Request) Check(ctx context.Context, instance map[string]any) error {
	failing, firstErr, err := r.evaluate(ctx, instance, true)
	if err != nil {
		return err
	}
	if firstErr != nil {
		return firstErr
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		return apperror.New(apperror.PermissionDenied,
			"You are not allowed to change the following fields: %v", failing)
	}
	return nil
}

// FailingFields returns the payload fields the caller lacks authority
// for, without rejecting. Import flows strip these and proceed.
func (r *Request) FailingFields(ctx context.Context, instance map[string]any) ([]string, error) {
	failing, _, err := r.evaluate(ctx, instance, false)
	if err != nil {
		return nil, err
	}
	sort.Strings(failing)
	return failing, nil
}

// evaluate partitions the instance into field groups and checks each.
// In strict mode the first group-specific rejection is returned as
// firstErr so its message survives; otherwise fields are collected.
func (r *Request) evaluate(ctx context.Context, instance map[string]any, strict bool) (failing []string, firstErr error, err error) {
	present := map[Group][]string{}
	for field := range instance {
		if g, ok := fieldGroups[field]; ok {
			present[g] = append(present[g], field)
		}
	}
	if len(present) == 0 {
		return nil, nil, nil
	}

	targetID := datastore.Int(instance["id"])
	targetOML := perms.OMLNone
	if targetID != 0 && !r.IsCreate {
		fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "user", ID: targetID}, "organization_management_level")
		if err != nil {
			return nil, nil, err
		}
		targetOML = perms.OrganizationManagementLevel(datastore.String(fields["organization_management_level"]))
	}
	callerOML, err := r.Checker.OrganizationManagementLevel(ctx)
	if err != nil {
		return nil, nil, err
	}

	// OML dominance guards every group except the meeting-scoped B and C.
	mayEditTarget := callerOML.Covers(targetOML)
	fail := func(g Group, reason error) {
		failing = append(failing, present[g]...)
		if strict && firstErr == nil {
			firstErr = reason
		}
	}

	for _, g := range []Group{GroupA, GroupB, GroupC, GroupD, GroupE, GroupF, GroupG, GroupH} {
		if len(present[g]) == 0 {
			continue
		}
		if !mayEditTarget && g != GroupB && g != GroupC {
			fail(g, apperror.New(apperror.PermissionDenied,
				"Your organization management level is not high enough to change a user with a Level of %s.", string(targetOML)))
			continue
		}
		ok, reason, err := r.checkGroup(ctx, g, instance, targetID, callerOML)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			fail(g, reason)
		}
	}
	return failing, firstErr, nil
}

func (r *Request) checkGroup(ctx context.Context, g Group, instance map[string]any, targetID int, callerOML perms.OrganizationManagementLevel) (ok bool, reason, err error) {
	meetingID := datastore.Int(instance["meeting_id"])

	switch g {
	case GroupA:
		ok, err := r.scopeAppropriate(ctx, instance, targetID)
		return ok, apperror.New(apperror.PermissionDenied,
			"You are not allowed to change the personal data of user %d.", targetID), err

	case GroupB:
		if meetingID == 0 {
			return false, apperror.New(apperror.BadRequest,
				"Changing per-meeting fields requires a meeting_id."), nil
		}
		ok, err := r.Checker.HasPerm(ctx, meetingID, perms.UserCanUpdate)
		return ok, apperror.New(apperror.PermissionDenied,
			"Missing permission %s in meeting %d.", perms.UserCanUpdate, meetingID), err

	case GroupC:
		ok, err := r.canAssignGroups(ctx, meetingID)
		return ok, apperror.New(apperror.PermissionDenied,
			"You are not allowed to assign groups in meeting %d.", meetingID), err

	case GroupD:
		ok, err := r.canManageCommittees(ctx, instance, targetID, callerOML)
		return ok, apperror.New(apperror.PermissionDenied,
			"You are not allowed to change committee management levels."), err

	case GroupE:
		newLevel := perms.OrganizationManagementLevel(datastore.String(instance["organization_management_level"]))
		if callerOML.Covers(newLevel) {
			return true, nil, nil
		}
		return false, apperror.New(apperror.PermissionDenied,
			"Your organization management level is not high enough to set a Level of %s.", string(newLevel)), nil

	case GroupF:
		ok, err := r.scopeAppropriate(ctx, instance, targetID)
		return ok, apperror.New(apperror.PermissionDenied,
			"You are not allowed to set the default password of user %d.", targetID), err

	case GroupG:
		ok := callerOML.Covers(perms.OMLSuperadmin)
		return ok, apperror.New(apperror.PermissionDenied,
			"Only the superadmin can set is_demo_user."), nil

	case GroupH:
		if r.Internal {
			return true, nil, nil
		}
		if r.IsCreate && callerOML.Covers(perms.OMLCanManageUsers) {
			return true, nil, nil
		}
		return false, apperror.New(apperror.PermissionDenied,
			"The field saml_id can only be used in internal action calls."), nil
	}
	return false, apperror.New(apperror.PermissionDenied, "Unknown field group."), nil
}

func (r *Request) scopeAppropriate(ctx context.Context, instance map[string]any, targetID int) (bool, error) {
	if ok, err := r.Checker.HasOML(ctx, perms.OMLCanManageUsers); err != nil || ok {
		return ok, err
	}

	var sc scope.UserScope
	var err error
	if r.IsCreate || targetID == 0 {
		sc, err = scope.ForInstance(ctx, r.Fetch, instance)
	} else {
		sc, err = scope.ForUser(ctx, r.Fetch, targetID)
	}
	if err != nil {
		return false, err
	}

	switch sc.Kind {
	case scope.KindCommittee:
		if ok, err := r.Checker.IsCommitteeManager(ctx, sc.ID); err != nil || ok {
			return ok, err
		}
	case scope.KindMeeting:
		m, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: sc.ID}, "committee_id")
		if err != nil {
			return false, err
		}
		if ok, err := r.Checker.IsCommitteeManager(ctx, datastore.Int(m["committee_id"])); err != nil || ok {
			return ok, err
		}
		if ok, err := r.Checker.HasPerm(ctx, sc.ID, perms.UserCanManage); err != nil || ok {
			return ok, err
		}
	case scope.KindOrganization:
		for cid, meetings := range sc.CommitteeMeetings {
			if len(meetings) == 0 {
				continue
			}
			if ok, err := r.Checker.IsCommitteeManager(ctx, cid); err != nil || ok {
				return ok, err
			}
		}
	}
	if targetID == 0 {
		return false, nil
	}
	return r.adminInAllMeetings(ctx, targetID)
}

// adminInAllMeetings is the fallback for callers without organization
// level: being admin in every meeting the target participates in grants
// group A and F access, unless the target manages a committee or is
// locked out somewhere.
func (r *Request) adminInAllMeetings(ctx context.Context, targetID int) (bool, error) {
	fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "user", ID: targetID},
		"meeting_user_ids", "committee_management_ids")
	if err != nil {
		return false, err
	}
	if len(datastore.IntList(fields["committee_management_ids"])) > 0 {
		return false, nil
	}
	muIDs := datastore.IntList(fields["meeting_user_ids"])
	if len(muIDs) == 0 {
		return false, nil
	}
	for _, muID := range muIDs {
		mu, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting_user", ID: muID},
			"meeting_id", "locked_out")
		if err != nil {
			return false, err
		}
		if datastore.Bool(mu["locked_out"]) {
			return false, nil
		}
		ok, err := r.Checker.HasPerm(ctx, datastore.Int(mu["meeting_id"]), perms.UserCanUpdate)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *Request) canAssignGroups(ctx context.Context, meetingID int) (bool, error) {
	if meetingID == 0 {
		return false, nil
	}
	if ok, err := r.Checker.HasOML(ctx, perms.OMLCanManageUsers); err != nil || ok {
		return ok, err
	}
	m, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "committee_id")
	if err != nil {
		return false, err
	}
	if ok, err := r.Checker.IsCommitteeManager(ctx, datastore.Int(m["committee_id"])); err != nil || ok {
		return ok, err
	}
	return r.Checker.HasPerm(ctx, meetingID, perms.UserCanManage)
}

func (r *Request) canManageCommittees(ctx context.Context, instance map[string]any, targetID int, callerOML perms.OrganizationManagementLevel) (bool, error) {
	if callerOML.Covers(perms.OMLCanManageUsers) {
		return true, nil
	}
	newIDs := datastore.IntList(instance["committee_management_ids"])
	var oldIDs []int
	if targetID != 0 && !r.IsCreate {
		fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "user", ID: targetID}, "committee_management_ids")
		if err != nil {
			return false, err
		}
		oldIDs = datastore.IntList(fields["committee_management_ids"])
	}
	for _, cid := range symmetricDiff(oldIDs, newIDs) {
		ok, err := r.Checker.IsCommitteeManager(ctx, cid)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func symmetricDiff(a, b []int) []int {
	inA := map[int]bool{}
	for _, v := range a {
		inA[v] = true
	}
	inB := map[int]bool{}
	for _, v := range b {
		inB[v] = true
	}
	var out []int
	for _, v := range a {
		if !inB[v] {
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !inA[v] {
			out = append(out, v)
		}
	}
	return out
}
