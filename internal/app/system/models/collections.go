package models

import "github.com/plenumhq/plenum/internal/domain"

// Schema fragments shared by the field declarations. Handlers compose
// these into their payload schemas.
var (
	schemaID      = map[string]any{"type": "integer", "minimum": 1}
	schemaIDList  = map[string]any{"type": "array", "items": schemaID, "uniqueItems": true}
	schemaFQID    = map[string]any{"type": "string", "pattern": `^[a-z][a-z_]*/[1-9][0-9]*$`}
	schemaFQIDs   = map[string]any{"type": "array", "items": schemaFQID, "uniqueItems": true}
	schemaStr     = map[string]any{"type": "string"}
	schemaName    = map[string]any{"type": "string", "minLength": 1, "maxLength": 256}
	schemaHTML    = map[string]any{"type": "string"}
	schemaBool    = map[string]any{"type": "boolean"}
	schemaInt     = map[string]any{"type": "integer"}
	schemaTime    = map[string]any{"type": "integer", "minimum": 0}
	schemaDecimal = map[string]any{"type": "string", "pattern": `^-?(\d|[1-9]\d+)\.\d{6}$`}
	schemaStrList = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	schemaSlots   = schemaStrList
)

func plain(name string, schema map[string]any) Field {
	return Field{Name: name, Schema: schema}
}

func toOne(name string, to domain.Collection, inverse string) Field {
	return Field{Name: name, Schema: schemaID, Relation: &Relation{To: to, Inverse: inverse}}
}

func toOneDel(name string, to domain.Collection, inverse string, od OnDelete) Field {
	return Field{Name: name, Schema: schemaID, Relation: &Relation{To: to, Inverse: inverse, OnDelete: od}}
}

func toMany(name string, to domain.Collection, inverse string) Field {
	return Field{Name: name, Schema: schemaIDList, Relation: &Relation{To: to, Inverse: inverse, Many: true}}
}

func toManyDel(name string, to domain.Collection, inverse string, od OnDelete) Field {
	return Field{Name: name, Schema: schemaIDList, Relation: &Relation{To: to, Inverse: inverse, Many: true, OnDelete: od}}
}

func genericOne(name, inverse string, targets ...domain.Collection) Field {
	return Field{Name: name, Schema: schemaFQID, Relation: &Relation{Generic: targets, Inverse: inverse}}
}

func genericMany(name, inverse string, targets ...domain.Collection) Field {
	return Field{Name: name, Schema: schemaFQIDs, Relation: &Relation{Generic: targets, Inverse: inverse, Many: true}}
}

func structuredOne(name string, to domain.Collection, inverse string) Field {
	return Field{Name: name, Schema: schemaSlots, Relation: &Relation{To: to, Inverse: inverse, Structured: true}}
}

func structuredMany(name string, to domain.Collection, inverse string) Field {
	return Field{Name: name, Schema: schemaSlots, Relation: &Relation{To: to, Inverse: inverse, Many: true, Structured: true}}
}

// Collection names. Dotted action/presenter names are derived from these.
const (
	Organization                   domain.Collection = "organization"
	Committee                      domain.Collection = "committee"
	Meeting                        domain.Collection = "meeting"
	Group                          domain.Collection = "group"
	User                           domain.Collection = "user"
	MeetingUser                    domain.Collection = "meeting_user"
	Gender                         domain.Collection = "gender"
	Motion                         domain.Collection = "motion"
	Topic                          domain.Collection = "topic"
	AgendaItem                     domain.Collection = "agenda_item"
	ListOfSpeakers                 domain.Collection = "list_of_speakers"
	Speaker                        domain.Collection = "speaker"
	StructureLevel                 domain.Collection = "structure_level"
	StructureLevelListOfSpeakers   domain.Collection = "structure_level_list_of_speakers"
	PointOfOrderCategory           domain.Collection = "point_of_order_category"
	Mediafile                      domain.Collection = "mediafile"
	MeetingMediafile               domain.Collection = "meeting_mediafile"
	Poll                           domain.Collection = "poll"
	Option                         domain.Collection = "option"
	Vote                           domain.Collection = "vote"
	Projector                      domain.Collection = "projector"
	ProjectorCountdown             domain.Collection = "projector_countdown"
)

// New builds the full registry. The organization is a singleton with id 1.
func New() *Registry {
	return newRegistry(
		&Model{Collection: Organization, Fields: []Field{
			plain("id", schemaID),
			plain("name", schemaName),
			plain("description", schemaHTML),
			plain("legal_notice", schemaHTML),
			plain("login_text", schemaHTML),
			plain("default_language", schemaStr),
			plain("limit_of_users", schemaInt),
			plain("limit_of_meetings", schemaInt),
			plain("enable_anonymous", schemaBool),
			toMany("committee_ids", Committee, "organization_id"),
			toMany("active_meeting_ids", Meeting, "is_active_in_organization_id"),
			toMany("archived_meeting_ids", Meeting, "is_archived_in_organization_id"),
			toMany("user_ids", User, "organization_id"),
			toManyDel("gender_ids", Gender, "organization_id", OnDeleteCascade),
			toManyDel("mediafile_ids", Mediafile, "owner_id", OnDeleteCascade),
		}},

		&Model{Collection: Committee, Fields: []Field{
			plain("id", schemaID),
			plain("name", schemaName),
			plain("description", schemaHTML),
			plain("external_id", schemaStr),
			toOne("organization_id", Organization, "committee_ids"),
			toManyDel("meeting_ids", Meeting, "committee_id", OnDeleteProtect),
			toOne("default_meeting_id", Meeting, "default_meeting_for_committee_id"),
			toMany("manager_ids", User, "committee_management_ids"),
			toMany("native_user_ids", User, "home_committee_id"),
			toMany("forward_to_committee_ids", Committee, "receive_forwardings_from_committee_ids"),
			toMany("receive_forwardings_from_committee_ids", Committee, "forward_to_committee_ids"),
		}},

		&Model{Collection: Meeting, Fields: []Field{
			plain("id", schemaID),
			plain("name", schemaName),
			plain("description", schemaHTML),
			plain("language", schemaStr),
			plain("location", schemaStr),
			plain("start_time", schemaTime),
			plain("end_time", schemaTime),
			plain("enable_anonymous", schemaBool),
			plain("locked_from_inside", schemaBool),
			plain("agenda_numeral_system", map[string]any{"type": "string", "enum": []any{"arabic", "roman"}}),
			plain("agenda_number_prefix", schemaStr),
			plain("agenda_show_internal_items_on_projector", schemaBool),
			plain("list_of_speakers_default_structure_level_time", schemaInt),
			plain("list_of_speakers_enable_point_of_order_speakers", schemaBool),
			plain("list_of_speakers_enable_interposed_question", schemaBool),
			toOne("committee_id", Committee, "meeting_ids"),
			toOne("is_active_in_organization_id", Organization, "active_meeting_ids"),
			toOne("is_archived_in_organization_id", Organization, "archived_meeting_ids"),
			toOne("default_meeting_for_committee_id", Committee, "default_meeting_id"),
			toManyDel("group_ids", Group, "meeting_id", OnDeleteCascade),
			toOne("default_group_id", Group, "default_group_for_meeting_id"),
			toOne("admin_group_id", Group, "admin_group_for_meeting_id"),
			toManyDel("meeting_user_ids", MeetingUser, "meeting_id", OnDeleteCascade),
			toMany("present_user_ids", User, "is_present_in_meeting_ids"),
			toManyDel("motion_ids", Motion, "meeting_id", OnDeleteCascade),
			toManyDel("topic_ids", Topic, "meeting_id", OnDeleteCascade),
			toManyDel("agenda_item_ids", AgendaItem, "meeting_id", OnDeleteCascade),
			toManyDel("list_of_speakers_ids", ListOfSpeakers, "meeting_id", OnDeleteCascade),
			toManyDel("speaker_ids", Speaker, "meeting_id", OnDeleteCascade),
			toManyDel("structure_level_ids", StructureLevel, "meeting_id", OnDeleteCascade),
			toManyDel("structure_level_list_of_speakers_ids", StructureLevelListOfSpeakers, "meeting_id", OnDeleteCascade),
			toManyDel("point_of_order_category_ids", PointOfOrderCategory, "meeting_id", OnDeleteCascade),
			toManyDel("meeting_mediafile_ids", MeetingMediafile, "meeting_id", OnDeleteCascade),
			toMany("mediafile_ids", Mediafile, "owner_id"),
			toManyDel("poll_ids", Poll, "meeting_id", OnDeleteCascade),
			toManyDel("option_ids", Option, "meeting_id", OnDeleteCascade),
			toManyDel("vote_ids", Vote, "meeting_id", OnDeleteCascade),
			toManyDel("projector_ids", Projector, "meeting_id", OnDeleteCascade),
			toManyDel("projector_countdown_ids", ProjectorCountdown, "meeting_id", OnDeleteCascade),
			structuredMany("default_projector_$_ids", Projector, "used_as_default_$_in_meeting_id"),
			toOne("list_of_speakers_countdown_id", ProjectorCountdown, "used_as_list_of_speakers_countdown_meeting_id"),
			toOne("poll_countdown_id", ProjectorCountdown, "used_as_poll_countdown_meeting_id"),
		}},

		&Model{Collection: Group, Fields: []Field{
			plain("id", schemaID),
			plain("name", schemaName),
			plain("external_id", schemaStr),
			plain("permissions", schemaStrList),
			plain("weight", schemaInt),
			toOne("meeting_id", Meeting, "group_ids"),
			toMany("meeting_user_ids", MeetingUser, "group_ids"),
			toOne("default_group_for_meeting_id", Meeting, "default_group_id"),
			toOne("admin_group_for_meeting_id", Meeting, "admin_group_id"),
		}},

		&Model{Collection: User, Fields: []Field{
			plain("id", schemaID),
			plain("username", schemaName),
			plain("saml_id", schemaStr),
			plain("member_number", schemaStr),
			plain("title", schemaStr),
			plain("first_name", schemaStr),
			plain("last_name", schemaStr),
			plain("pronoun", schemaStr),
			plain("email", schemaStr),
			plain("is_active", schemaBool),
			plain("is_physical_person", schemaBool),
			plain("is_demo_user", schemaBool),
			plain("password", schemaStr),
			plain("default_password", schemaStr),
			plain("can_change_own_password", schemaBool),
			plain("default_vote_weight", schemaDecimal),
			plain("organization_management_level", map[string]any{
				"type": "string",
				"enum": []any{"can_manage_users", "can_manage_organization", "superadmin"},
			}),
			toOne("organization_id", Organization, "user_ids"),
			toOne("gender_id", Gender, "user_ids"),
			toMany("committee_management_ids", Committee, "manager_ids"),
			toOne("home_committee_id", Committee, "native_user_ids"),
			toManyDel("meeting_user_ids", MeetingUser, "user_id", OnDeleteCascade),
			toMany("is_present_in_meeting_ids", Meeting, "present_user_ids"),
			toMany("poll_voted_ids", Poll, "voted_ids"),
			toMany("vote_ids", Vote, "user_id"),
		}},

		&Model{Collection: MeetingUser, Fields: []Field{
			plain("id", schemaID),
			plain("about_me", schemaHTML),
			plain("number", schemaStr),
			plain("comment", schemaHTML),
			plain("vote_weight", schemaDecimal),
			plain("locked_out", schemaBool),
			toOne("user_id", User, "meeting_user_ids"),
			toOne("meeting_id", Meeting, "meeting_user_ids"),
			toMany("group_ids", Group, "meeting_user_ids"),
			toMany("structure_level_ids", StructureLevel, "meeting_user_ids"),
			toManyDel("speaker_ids", Speaker, "meeting_user_id", OnDeleteCascade),
			toOne("vote_delegated_to_id", MeetingUser, "vote_delegations_from_ids"),
			toMany("vote_delegations_from_ids", MeetingUser, "vote_delegated_to_id"),
		}},

		&Model{Collection: Gender, Fields: []Field{
			plain("id", schemaID),
			plain("name", schemaName),
			toOne("organization_id", Organization, "gender_ids"),
			toMany("user_ids", User, "gender_id"),
		}},

		&Model{Collection: Motion, Fields: []Field{
			plain("id", schemaID),
			plain("title", schemaName),
			plain("text", schemaHTML),
			plain("reason", schemaHTML),
			plain("number", schemaStr),
			plain("sequential_number", schemaInt),
			plain("sort_weight", schemaInt),
			toOne("meeting_id", Meeting, "motion_ids"),
			toOne("sort_parent_id", Motion, "sort_child_ids"),
			toMany("sort_child_ids", Motion, "sort_parent_id"),
			toOneDel("agenda_item_id", AgendaItem, "content_object_id", OnDeleteCascade),
			toOneDel("list_of_speakers_id", ListOfSpeakers, "content_object_id", OnDeleteCascade),
			toMany("attachment_meeting_mediafile_ids", MeetingMediafile, "attachment_ids"),
			toManyDel("poll_ids", Poll, "content_object_id", OnDeleteCascade),
		}},

		&Model{Collection: Topic, Fields: []Field{
			plain("id", schemaID),
			plain("title", schemaName),
			plain("text", schemaHTML),
			plain("sequential_number", schemaInt),
			toOne("meeting_id", Meeting, "topic_ids"),
			toOneDel("agenda_item_id", AgendaItem, "content_object_id", OnDeleteCascade),
			toOneDel("list_of_speakers_id", ListOfSpeakers, "content_object_id", OnDeleteCascade),
			toMany("attachment_meeting_mediafile_ids", MeetingMediafile, "attachment_ids"),
			toManyDel("poll_ids", Poll, "content_object_id", OnDeleteCascade),
		}},

		&Model{Collection: AgendaItem, Fields: []Field{
			plain("id", schemaID),
			plain("item_number", schemaStr),
			plain("comment", schemaStr),
			plain("type", map[string]any{"type": "string", "enum": []any{"common", "internal", "hidden"}}),
			plain("is_internal", schemaBool),
			plain("is_hidden", schemaBool),
			plain("weight", schemaInt),
			plain("closed", schemaBool),
			plain("duration", schemaInt),
			plain("moderator_notes", schemaHTML),
			toOne("meeting_id", Meeting, "agenda_item_ids"),
			toOne("parent_id", AgendaItem, "child_ids"),
			toManyDel("child_ids", AgendaItem, "parent_id", OnDeleteCascade),
			genericOne("content_object_id", "agenda_item_id", Motion, Topic),
		}},

		&Model{Collection: ListOfSpeakers, Fields: []Field{
			plain("id", schemaID),
			plain("closed", schemaBool),
			toOne("meeting_id", Meeting, "list_of_speakers_ids"),
			genericOne("content_object_id", "list_of_speakers_id", Motion, Topic),
			toManyDel("speaker_ids", Speaker, "list_of_speakers_id", OnDeleteCascade),
			toManyDel("structure_level_list_of_speakers_ids", StructureLevelListOfSpeakers, "list_of_speakers_id", OnDeleteCascade),
		}},

		&Model{Collection: Speaker, Fields: []Field{
			plain("id", schemaID),
			plain("begin_time", schemaTime),
			plain("end_time", schemaTime),
			plain("pause_time", schemaTime),
			plain("unpause_time", schemaTime),
			plain("total_pause", schemaInt),
			plain("weight", schemaInt),
			plain("speech_state", map[string]any{
				"type": "string",
				"enum": []any{"contribution", "pro", "contra", "intervention", "interposed_question"},
			}),
			plain("note", schemaStr),
			plain("point_of_order", schemaBool),
			toOne("meeting_id", Meeting, "speaker_ids"),
			toOne("list_of_speakers_id", ListOfSpeakers, "speaker_ids"),
			toOne("meeting_user_id", MeetingUser, "speaker_ids"),
			toOne("point_of_order_category_id", PointOfOrderCategory, "speaker_ids"),
			toOne("structure_level_list_of_speakers_id", StructureLevelListOfSpeakers, "speaker_ids"),
		}},

		&Model{Collection: StructureLevel, Fields: []Field{
			plain("id", schemaID),
			plain("name", schemaName),
			plain("color", map[string]any{"type": "string", "pattern": `^#[0-9a-f]{6}$`}),
			plain("default_time", schemaInt),
			toOne("meeting_id", Meeting, "structure_level_ids"),
			toMany("meeting_user_ids", MeetingUser, "structure_level_ids"),
			toManyDel("structure_level_list_of_speakers_ids", StructureLevelListOfSpeakers, "structure_level_id", OnDeleteCascade),
		}},

		&Model{Collection: StructureLevelListOfSpeakers, Fields: []Field{
			plain("id", schemaID),
			plain("initial_time", schemaInt),
			plain("additional_time", schemaInt),
			plain("remaining_time", schemaInt),
			plain("current_start_time", schemaTime),
			toOne("meeting_id", Meeting, "structure_level_list_of_speakers_ids"),
			toOne("structure_level_id", StructureLevel, "structure_level_list_of_speakers_ids"),
			toOne("list_of_speakers_id", ListOfSpeakers, "structure_level_list_of_speakers_ids"),
			toMany("speaker_ids", Speaker, "structure_level_list_of_speakers_id"),
		}},

		&Model{Collection: PointOfOrderCategory, Fields: []Field{
			plain("id", schemaID),
			plain("text", schemaName),
			plain("rank", schemaInt),
			toOne("meeting_id", Meeting, "point_of_order_category_ids"),
			toMany("speaker_ids", Speaker, "point_of_order_category_id"),
		}},

		&Model{Collection: Mediafile, Fields: []Field{
			plain("id", schemaID),
			plain("title", schemaName),
			plain("is_directory", schemaBool),
			plain("filename", schemaStr),
			plain("filesize", schemaInt),
			plain("mimetype", schemaStr),
			plain("create_timestamp", schemaTime),
			genericOne("owner_id", "mediafile_ids", Organization, Meeting),
			toOne("parent_id", Mediafile, "child_ids"),
			toManyDel("child_ids", Mediafile, "parent_id", OnDeleteCascade),
			toManyDel("meeting_mediafile_ids", MeetingMediafile, "mediafile_id", OnDeleteCascade),
		}},

		&Model{Collection: MeetingMediafile, Fields: []Field{
			plain("id", schemaID),
			plain("is_public", schemaBool),
			toOne("meeting_id", Meeting, "meeting_mediafile_ids"),
			toOne("mediafile_id", Mediafile, "meeting_mediafile_ids"),
			genericMany("attachment_ids", "attachment_meeting_mediafile_ids", Motion, Topic),
		}},

		&Model{Collection: Poll, Fields: []Field{
			plain("id", schemaID),
			plain("title", schemaName),
			plain("type", map[string]any{"type": "string", "enum": []any{"analog", "named", "pseudoanonymous"}}),
			plain("state", map[string]any{"type": "string", "enum": []any{"created", "started", "finished", "published"}}),
			plain("pollmethod", schemaStr),
			toOne("meeting_id", Meeting, "poll_ids"),
			genericOne("content_object_id", "poll_ids", Motion, Topic),
			toManyDel("option_ids", Option, "poll_id", OnDeleteCascade),
			toMany("voted_ids", User, "poll_voted_ids"),
		}},

		&Model{Collection: Option, Fields: []Field{
			plain("id", schemaID),
			plain("text", schemaStr),
			plain("weight", schemaInt),
			toOne("meeting_id", Meeting, "option_ids"),
			toOne("poll_id", Poll, "option_ids"),
			toManyDel("vote_ids", Vote, "option_id", OnDeleteCascade),
		}},

		&Model{Collection: Vote, Fields: []Field{
			plain("id", schemaID),
			plain("weight", schemaDecimal),
			plain("value", schemaStr),
			toOne("meeting_id", Meeting, "vote_ids"),
			toOne("option_id", Option, "vote_ids"),
			toOne("user_id", User, "vote_ids"),
		}},

		&Model{Collection: Projector, Fields: []Field{
			plain("id", schemaID),
			plain("name", schemaStr),
			plain("sequential_number", schemaInt),
			toOne("meeting_id", Meeting, "projector_ids"),
			structuredOne("used_as_default_$_in_meeting_id", Meeting, "default_projector_$_ids"),
		}},

		&Model{Collection: ProjectorCountdown, Fields: []Field{
			plain("id", schemaID),
			plain("title", schemaName),
			plain("description", schemaStr),
			plain("default_time", schemaInt),
			plain("countdown_time", schemaInt),
			plain("running", schemaBool),
			toOne("meeting_id", Meeting, "projector_countdown_ids"),
			toOne("used_as_list_of_speakers_countdown_meeting_id", Meeting, "list_of_speakers_countdown_id"),
			toOne("used_as_poll_countdown_meeting_id", Meeting, "poll_countdown_id"),
		}},
	)
}
