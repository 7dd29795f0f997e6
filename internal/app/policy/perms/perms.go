// internal/app/policy/perms/perms.go
package perms

// OrganizationManagementLevel is the organization-wide role of a user.
// Levels are ordered; a higher level grants everything below it.
type OrganizationManagementLevel string

const (
	OMLNone                  OrganizationManagementLevel = ""
	OMLCanManageUsers        OrganizationManagementLevel = "can_manage_users"
	OMLCanManageOrganization OrganizationManagementLevel = "can_manage_organization"
	OMLSuperadmin            OrganizationManagementLevel = "superadmin"
)

var omlRank = map[OrganizationManagementLevel]int{
	OMLNone:                  0,
	OMLCanManageUsers:        1,
	OMLCanManageOrganization: 2,
	OMLSuperadmin:            3,
}

// Valid reports whether l is a known management level.
func (l OrganizationManagementLevel) Valid() bool {
	_, ok := omlRank[l]
	return ok
}

// Covers reports whether l grants at least the level other.
func (l OrganizationManagementLevel) Covers(other OrganizationManagementLevel) bool {
	return omlRank[l] >= omlRank[other]
}

// CommitteeManagementLevel is the per-committee role of a user.
type CommitteeManagementLevel string

const (
	CMLNone      CommitteeManagementLevel = ""
	CMLCanManage CommitteeManagementLevel = "can_manage"
)

// Permission is a single meeting-scoped permission string.
type Permission string

const (
	AgendaItemCanManage               Permission = "agenda_item.can_manage"
	AgendaItemCanSee                  Permission = "agenda_item.can_see"
	AgendaItemCanSeeInternal          Permission = "agenda_item.can_see_internal"
	AgendaItemCanManageModeratorNotes Permission = "agenda_item.can_manage_moderator_notes"
	AgendaItemCanSeeModeratorNotes    Permission = "agenda_item.can_see_moderator_notes"

	ListOfSpeakersCanManage    Permission = "list_of_speakers.can_manage"
	ListOfSpeakersCanSee       Permission = "list_of_speakers.can_see"
	ListOfSpeakersCanBeSpeaker Permission = "list_of_speakers.can_be_speaker"

	MotionCanManage Permission = "motion.can_manage"
	MotionCanCreate Permission = "motion.can_create"
	MotionCanSee    Permission = "motion.can_see"

	MeetingCanManageSettings Permission = "meeting.can_manage_settings"
	MeetingCanSeeFrontpage   Permission = "meeting.can_see_frontpage"

	TopicCanManage Permission = "topic.can_manage"
	TopicCanSee    Permission = "topic.can_see"

	UserCanManage           Permission = "user.can_manage"
	UserCanUpdate           Permission = "user.can_update"
	UserCanSeeSensitiveData Permission = "user.can_see_sensitive_data"
	UserCanSee              Permission = "user.can_see"
	UserCanManagePresence   Permission = "user.can_manage_presence"

	MediafileCanManage Permission = "mediafile.can_manage"
	MediafileCanSee    Permission = "mediafile.can_see"

	PollCanManage Permission = "poll.can_manage"

	ProjectorCanManage Permission = "projector.can_manage"
	ProjectorCanSee    Permission = "projector.can_see"
)

// children maps each permission to the permissions it directly implies.
var children = map[Permission][]Permission{
	AgendaItemCanManage:               {AgendaItemCanSeeInternal},
	AgendaItemCanSeeInternal:          {AgendaItemCanSee},
	AgendaItemCanManageModeratorNotes: {AgendaItemCanSeeModeratorNotes},

	ListOfSpeakersCanManage: {ListOfSpeakersCanSee},

	MotionCanManage: {MotionCanCreate},
	MotionCanCreate: {MotionCanSee},

	TopicCanManage: {TopicCanSee},

	UserCanManage:           {UserCanUpdate, UserCanManagePresence},
	UserCanUpdate:           {UserCanSeeSensitiveData},
	UserCanSeeSensitiveData: {UserCanSee},
	UserCanManagePresence:   {UserCanSee},

	MediafileCanManage: {MediafileCanSee},

	ProjectorCanManage: {ProjectorCanSee},
}

// derived maps each permission to its full transitive closure, itself
// included. Built once at init from children.
var derived = func() map[Permission]map[Permission]bool {
	out := make(map[Permission]map[Permission]bool)
	var walk func(root, p Permission)
	walk = func(root, p Permission) {
		if out[root][p] {
			return
		}
		out[root][p] = true
		for _, c := range children[p] {
			walk(root, c)
		}
	}
	all := []Permission{
		AgendaItemCanManage, AgendaItemCanSee, AgendaItemCanSeeInternal,
		AgendaItemCanManageModeratorNotes, AgendaItemCanSeeModeratorNotes,
		ListOfSpeakersCanManage, ListOfSpeakersCanSee, ListOfSpeakersCanBeSpeaker,
		MotionCanManage, MotionCanCreate, MotionCanSee,
		MeetingCanManageSettings, MeetingCanSeeFrontpage,
		TopicCanManage, TopicCanSee,
		UserCanManage, UserCanUpdate, UserCanSeeSensitiveData, UserCanSee, UserCanManagePresence,
		MediafileCanManage, MediafileCanSee,
		PollCanManage,
		ProjectorCanManage, ProjectorCanSee,
	}
	for _, p := range all {
		out[p] = make(map[Permission]bool)
		walk(p, p)
	}
	return out
}()

// Valid reports whether p is a known permission string.
func (p Permission) Valid() bool {
	_, ok := derived[p]
	return ok
}

// Set is the effective permission set of a user in one meeting.
type Set map[Permission]bool

// NewSet expands the given granted permissions through the implication
// tree. Unknown strings are kept as-is without expansion.
func NewSet(granted []string) Set {
	s := make(Set)
	for _, g := range granted {
		p := Permission(g)
		if exp, ok := derived[p]; ok {
			for d := range exp {
				s[d] = true
			}
			continue
		}
		s[p] = true
	}
	return s
}

// Has reports whether the set grants p.
func (s Set) Has(p Permission) bool {
	return s[p]
}
