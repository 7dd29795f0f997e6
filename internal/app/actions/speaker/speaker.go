// Package speaker implements the speaker.* actions and the list wide
// list_of_speakers.* operations. A speaker is waiting until speak sets
// begin_time, running until pause or end_speech, and finished once
// end_time is set. At most one speaker per list runs at a time.
package speaker

import (
	"context"
	"sort"
	"time"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
)

// now is replaced in tests.
var now = func() int { return int(time.Now().Unix()) }

func Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "speaker.create", Schema: createSchema, Handle: create},
		{Name: "speaker.speak", Schema: idSchema, Handle: speak},
		{Name: "speaker.pause", Schema: idSchema, Handle: pause},
		{Name: "speaker.unpause", Schema: idSchema, Handle: unpause},
		{Name: "speaker.end_speech", Schema: idSchema, Handle: endSpeech},
		{Name: "speaker.delete", Schema: idSchema, Handle: remove},
		{Name: "list_of_speakers.delete_all_speakers", Schema: idSchema, Handle: deleteAllSpeakers},
	}
}

var createSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"list_of_speakers_id":        map[string]any{"type": "integer", "minimum": 1},
		"meeting_user_id":            map[string]any{"type": "integer", "minimum": 1},
		"speech_state":               map[string]any{"type": "string", "enum": []any{"contribution", "pro", "contra", "intervention", "interposed_question"}},
		"note":                       map[string]any{"type": "string"},
		"point_of_order":             map[string]any{"type": "boolean"},
		"point_of_order_category_id": map[string]any{"type": "integer", "minimum": 1},
		"structure_level_id":         map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"list_of_speakers_id", "meeting_user_id"},
	"additionalProperties": false,
}

var idSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id": map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"id"},
	"additionalProperties": false,
}

func create(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	losID := datastore.Int(instance["list_of_speakers_id"])
	los, err := r.Fetch.Get(ctx, domain.FQID{Collection: "list_of_speakers", ID: losID},
		"meeting_id", "closed", "speaker_ids")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(los["meeting_id"])

	muID := datastore.Int(instance["meeting_user_id"])
	mu, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting_user", ID: muID}, "user_id", "meeting_id")
	if err != nil {
		return nil, nil, err
	}
	if datastore.Int(mu["meeting_id"]) != meetingID {
		return nil, nil, apperror.New(apperror.BadRequest,
			"Meeting user %d is not in meeting %d.", muID, meetingID)
	}
	self := datastore.Int(mu["user_id"]) == r.UserID

	pointOfOrder := datastore.Bool(instance["point_of_order"])
	if self {
		if err := r.RequirePerm(ctx, meetingID, perms.ListOfSpeakersCanBeSpeaker); err != nil {
			return nil, nil, err
		}
	} else {
		if err := r.RequirePerm(ctx, meetingID, perms.ListOfSpeakersCanManage); err != nil {
			return nil, nil, err
		}
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}
	if self && !pointOfOrder && datastore.Bool(los["closed"]) {
		return nil, nil, apperror.New(apperror.BadRequest, "The list of speakers is closed.")
	}

	meeting, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID},
		"list_of_speakers_enable_point_of_order_speakers",
		"list_of_speakers_enable_interposed_question",
		"list_of_speakers_default_structure_level_time")
	if err != nil {
		return nil, nil, err
	}
	if pointOfOrder && !datastore.Bool(meeting["list_of_speakers_enable_point_of_order_speakers"]) {
		return nil, nil, apperror.New(apperror.BadRequest,
			"Point of order speakers are not enabled in meeting %d.", meetingID)
	}
	if datastore.String(instance["speech_state"]) == "interposed_question" &&
		!datastore.Bool(meeting["list_of_speakers_enable_interposed_question"]) {
		return nil, nil, apperror.New(apperror.BadRequest,
			"Interposed questions are not enabled in meeting %d.", meetingID)
	}

	speakers, err := loadSpeakers(ctx, r, los)
	if err != nil {
		return nil, nil, err
	}
	maxWeight := 0
	for _, s := range speakers {
		if datastore.Int(s.fields["begin_time"]) == 0 &&
			datastore.Int(s.fields["meeting_user_id"]) == muID &&
			datastore.Bool(s.fields["point_of_order"]) == pointOfOrder {
			return nil, nil, apperror.New(apperror.BadRequest,
				"User is already on the list of speakers.")
		}
		if w := datastore.Int(s.fields["weight"]); w > maxWeight {
			maxWeight = w
		}
	}
	instance["meeting_id"] = meetingID
	instance["weight"] = maxWeight + 1

	if levelID := datastore.Int(instance["structure_level_id"]); levelID != 0 {
		delete(instance, "structure_level_id")
		sllosID, ev, err := ensureStructureLevelList(ctx, r, meetingID, losID, levelID,
			datastore.Int(meeting["list_of_speakers_default_structure_level_time"]))
		if err != nil {
			return nil, nil, err
		}
		r.Fetch.ApplyEvents(ev)
		instance["structure_level_list_of_speakers_id"] = sllosID
		fqid, events, err := r.Create(ctx, "speaker", instance)
		if err != nil {
			return nil, nil, err
		}
		return map[string]any{"id": fqid.ID}, append(ev, events...), nil
	}

	fqid, events, err := r.Create(ctx, "speaker", instance)
	if err != nil {
		return nil, nil, err
	}
	return map[string]any{"id": fqid.ID}, events, nil
}

func speak(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	s, err := loadSpeaker(ctx, r, datastore.Int(instance["id"]))
	if err != nil {
		return nil, nil, err
	}
	if err := r.RequirePerm(ctx, s.meetingID, perms.ListOfSpeakersCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, s.meetingID); err != nil {
		return nil, nil, err
	}
	if datastore.Int(s.fields["begin_time"]) != 0 {
		return nil, nil, apperror.New(apperror.BadRequest, "Speaker %d has already started.", s.id)
	}

	var events []datastore.Event
	los, err := r.Fetch.Get(ctx, domain.FQID{Collection: "list_of_speakers", ID: s.losID}, "speaker_ids")
	if err != nil {
		return nil, nil, err
	}
	others, err := loadSpeakers(ctx, r, los)
	if err != nil {
		return nil, nil, err
	}
	for _, other := range others {
		if other.id == s.id || !running(other.fields) {
			continue
		}
		ev, err := stopSpeaker(ctx, r, other)
		if err != nil {
			return nil, nil, err
		}
		r.Fetch.ApplyEvents(ev)
		events = append(events, ev...)
	}

	ev, err := r.Update(ctx, s.fqid(), map[string]any{"begin_time": now()})
	if err != nil {
		return nil, nil, err
	}
	events = append(events, ev...)
	if sllosID := datastore.Int(s.fields["structure_level_list_of_speakers_id"]); sllosID != 0 {
		ev, err := r.Update(ctx, domain.FQID{Collection: "structure_level_list_of_speakers", ID: sllosID},
			map[string]any{"current_start_time": now()})
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev...)
	}
	return nil, events, nil
}

func pause(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	s, err := loadSpeaker(ctx, r, datastore.Int(instance["id"]))
	if err != nil {
		return nil, nil, err
	}
	if err := r.RequirePerm(ctx, s.meetingID, perms.ListOfSpeakersCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, s.meetingID); err != nil {
		return nil, nil, err
	}
	if !running(s.fields) {
		return nil, nil, apperror.New(apperror.BadRequest, "Speaker %d is not running.", s.id)
	}

	events, err := r.Update(ctx, s.fqid(), map[string]any{"pause_time": now()})
	if err != nil {
		return nil, nil, err
	}
	ev, err := stopCountdown(ctx, r, s)
	if err != nil {
		return nil, nil, err
	}
	return nil, append(events, ev...), nil
}

func unpause(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	s, err := loadSpeaker(ctx, r, datastore.Int(instance["id"]))
	if err != nil {
		return nil, nil, err
	}
	if err := r.RequirePerm(ctx, s.meetingID, perms.ListOfSpeakersCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, s.meetingID); err != nil {
		return nil, nil, err
	}
	pauseTime := datastore.Int(s.fields["pause_time"])
	if pauseTime == 0 || datastore.Int(s.fields["end_time"]) != 0 {
		return nil, nil, apperror.New(apperror.BadRequest, "Speaker %d is not paused.", s.id)
	}

	events, err := r.Update(ctx, s.fqid(), map[string]any{
		"pause_time":   nil,
		"unpause_time": now(),
		"total_pause":  datastore.Int(s.fields["total_pause"]) + now() - pauseTime,
	})
	if err != nil {
		return nil, nil, err
	}
	if sllosID := datastore.Int(s.fields["structure_level_list_of_speakers_id"]); sllosID != 0 {
		ev, err := r.Update(ctx, domain.FQID{Collection: "structure_level_list_of_speakers", ID: sllosID},
			map[string]any{"current_start_time": now()})
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev...)
	}
	return nil, events, nil
}

func endSpeech(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	s, err := loadSpeaker(ctx, r, datastore.Int(instance["id"]))
	if err != nil {
		return nil, nil, err
	}
	if err := r.RequirePerm(ctx, s.meetingID, perms.ListOfSpeakersCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, s.meetingID); err != nil {
		return nil, nil, err
	}
	if datastore.Int(s.fields["begin_time"]) == 0 || datastore.Int(s.fields["end_time"]) != 0 {
		return nil, nil, apperror.New(apperror.BadRequest, "Speaker %d is not speaking.", s.id)
	}
	events, err := stopSpeaker(ctx, r, s)
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func remove(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	s, err := loadSpeaker(ctx, r, datastore.Int(instance["id"]))
	if err != nil {
		return nil, nil, err
	}

	self := false
	if muID := datastore.Int(s.fields["meeting_user_id"]); muID != 0 {
		mu, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting_user", ID: muID}, "user_id")
		if err != nil {
			return nil, nil, err
		}
		self = datastore.Int(mu["user_id"]) == r.UserID
	}
	waiting := datastore.Int(s.fields["begin_time"]) == 0
	if !(self && waiting) {
		if err := r.RequirePerm(ctx, s.meetingID, perms.ListOfSpeakersCanManage); err != nil {
			return nil, nil, err
		}
	}
	if err := r.RequireActiveMeeting(ctx, s.meetingID); err != nil {
		return nil, nil, err
	}
	events, err := r.Delete(ctx, s.fqid())
	if err != nil {
		return nil, nil, err
	}
	return nil, events, nil
}

func deleteAllSpeakers(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	losID := datastore.Int(instance["id"])
	los, err := r.Fetch.Get(ctx, domain.FQID{Collection: "list_of_speakers", ID: losID},
		"meeting_id", "speaker_ids")
	if err != nil {
		return nil, nil, err
	}
	meetingID := datastore.Int(los["meeting_id"])
	if err := r.RequirePerm(ctx, meetingID, perms.ListOfSpeakersCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, meetingID); err != nil {
		return nil, nil, err
	}

	ids := datastore.IntList(los["speaker_ids"])
	sort.Ints(ids)
	var events []datastore.Event
	for _, id := range ids {
		ev, err := r.Delete(ctx, domain.FQID{Collection: "speaker", ID: id})
		if err != nil {
			return nil, nil, err
		}
		r.Fetch.ApplyEvents(ev)
		events = append(events, ev...)
	}
	return nil, events, nil
}

type speakerModel struct {
	id        int
	losID     int
	meetingID int
	fields    map[string]any
}

func (s *speakerModel) fqid() domain.FQID {
	return domain.FQID{Collection: "speaker", ID: s.id}
}

var speakerFields = []string{
	"meeting_id", "list_of_speakers_id", "meeting_user_id", "begin_time",
	"end_time", "pause_time", "unpause_time", "total_pause", "weight",
	"point_of_order", "structure_level_list_of_speakers_id",
}

func loadSpeaker(ctx context.Context, r *actions.Request, id int) (*speakerModel, error) {
	fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "speaker", ID: id}, speakerFields...)
	if err != nil {
		return nil, err
	}
	return &speakerModel{
		id:        id,
		losID:     datastore.Int(fields["list_of_speakers_id"]),
		meetingID: datastore.Int(fields["meeting_id"]),
		fields:    fields,
	}, nil
}

func loadSpeakers(ctx context.Context, r *actions.Request, los map[string]any) ([]*speakerModel, error) {
	ids := datastore.IntList(los["speaker_ids"])
	sort.Ints(ids)
	speakers := make([]*speakerModel, 0, len(ids))
	for _, id := range ids {
		s, err := loadSpeaker(ctx, r, id)
		if err != nil {
			return nil, err
		}
		speakers = append(speakers, s)
	}
	return speakers, nil
}

func running(fields map[string]any) bool {
	return datastore.Int(fields["begin_time"]) != 0 &&
		datastore.Int(fields["end_time"]) == 0 &&
		datastore.Int(fields["pause_time"]) == 0
}

// stopSpeaker finishes a running or paused speaker and stops its
// structure level countdown.
func stopSpeaker(ctx context.Context, r *actions.Request, s *speakerModel) ([]datastore.Event, error) {
	fields := map[string]any{"end_time": now()}
	if pauseTime := datastore.Int(s.fields["pause_time"]); pauseTime != 0 {
		fields["pause_time"] = nil
		fields["total_pause"] = datastore.Int(s.fields["total_pause"]) + now() - pauseTime
	}
	events, err := r.Update(ctx, s.fqid(), fields)
	if err != nil {
		return nil, err
	}
	if datastore.Int(s.fields["pause_time"]) == 0 {
		ev, err := stopCountdown(ctx, r, s)
		if err != nil {
			return nil, err
		}
		events = append(events, ev...)
	}
	return events, nil
}

// stopCountdown charges the elapsed slice since current_start_time
// against the structure level's remaining time.
func stopCountdown(ctx context.Context, r *actions.Request, s *speakerModel) ([]datastore.Event, error) {
	sllosID := datastore.Int(s.fields["structure_level_list_of_speakers_id"])
	if sllosID == 0 {
		return nil, nil
	}
	sllos, err := r.Fetch.Get(ctx, domain.FQID{Collection: "structure_level_list_of_speakers", ID: sllosID},
		"remaining_time", "current_start_time")
	if err != nil {
		return nil, err
	}
	start := datastore.Int(sllos["current_start_time"])
	if start == 0 {
		return nil, nil
	}
	return r.Update(ctx, domain.FQID{Collection: "structure_level_list_of_speakers", ID: sllosID}, map[string]any{
		"remaining_time":     datastore.Int(sllos["remaining_time"]) - (now() - start),
		"current_start_time": nil,
	})
}

// ensureStructureLevelList finds or creates the countdown record of a
// structure level on one list.
func ensureStructureLevelList(ctx context.Context, r *actions.Request, meetingID, losID, levelID, defaultTime int) (int, []datastore.Event, error) {
	if defaultTime == 0 {
		return 0, nil, apperror.New(apperror.BadRequest,
			"Structure level countdowns are not enabled in meeting %d.", meetingID)
	}
	if _, err := r.Fetch.Get(ctx, domain.FQID{Collection: "structure_level", ID: levelID}, "id"); err != nil {
		return 0, nil, err
	}
	existing, err := r.Fetch.Filter(ctx, "structure_level_list_of_speakers", domain.And{
		domain.Eq("list_of_speakers_id", losID),
		domain.Eq("structure_level_id", levelID),
	}, "id")
	if err != nil {
		return 0, nil, err
	}
	for id := range existing {
		return id, nil, nil
	}
	fqid, events, err := r.Create(ctx, "structure_level_list_of_speakers", map[string]any{
		"meeting_id":          meetingID,
		"list_of_speakers_id": losID,
		"structure_level_id":  levelID,
		"initial_time":        defaultTime,
		"remaining_time":      defaultTime,
	})
	if err != nil {
		return 0, nil, err
	}
	return fqid.ID, events, nil
}
