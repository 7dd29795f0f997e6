package testutil

// MeetingWorld returns a seed for the fake datastore: organization 1
// with committee 1 and active meeting 1, the meeting's default group 1
// and admin group 2, a delegate group 3 with the given permissions,
// admin user 1 (in the admin group) and member user 10 (in the delegate
// group). Tests extend or override entries before handing the map to
// NewFakeDatastore.
func MeetingWorld(memberPerms ...string) map[string]map[string]any {
	if memberPerms == nil {
		memberPerms = []string{}
	}
	return map[string]map[string]any{
		"organization/1": {
			"name":               "Test Organization",
			"committee_ids":      []int{1},
			"active_meeting_ids": []int{1},
			"user_ids":           []int{1, 10},
		},
		"committee/1": {
			"name":            "Test Committee",
			"organization_id": 1,
			"meeting_ids":     []int{1},
		},
		"meeting/1": {
			"name":                         "Test Meeting",
			"committee_id":                 1,
			"is_active_in_organization_id": 1,
			"default_group_id":             1,
			"admin_group_id":               2,
			"group_ids":                    []int{1, 2, 3},
			"meeting_user_ids":             []int{1, 2},
		},
		"group/1": {
			"name":                         "Default",
			"meeting_id":                   1,
			"default_group_for_meeting_id": 1,
			"permissions":                  []string{"agenda_item.can_see", "motion.can_see", "topic.can_see"},
		},
		"group/2": {
			"name":                       "Admin",
			"meeting_id":                 1,
			"admin_group_for_meeting_id": 1,
			"meeting_user_ids":           []int{1},
		},
		"group/3": {
			"name":             "Delegates",
			"meeting_id":       1,
			"permissions":      memberPerms,
			"meeting_user_ids": []int{2},
		},
		"user/1": {
			"username":         "admin",
			"is_active":        true,
			"organization_id":  1,
			"meeting_user_ids": []int{1},
		},
		"meeting_user/1": {
			"meeting_id": 1,
			"user_id":    1,
			"group_ids":  []int{2},
		},
		"user/10": {
			"username":         "member",
			"is_active":        true,
			"organization_id":  1,
			"meeting_user_ids": []int{2},
		},
		"meeting_user/2": {
			"meeting_id": 1,
			"user_id":    10,
			"group_ids":  []int{3},
		},
	}
}
