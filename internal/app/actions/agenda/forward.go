package agenda

import (
	"context"
	"sort"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/domain"
)

var forwardSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meeting_id":           map[string]any{"type": "integer", "minimum": 1},
		"ids":                  map[string]any{"type": "array", "items": map[string]any{"type": "integer", "minimum": 1}, "minItems": 1},
		"target_meeting_ids":   map[string]any{"type": "array", "items": map[string]any{"type": "integer", "minimum": 1}, "minItems": 1},
		"with_speakers":        map[string]any{"type": "boolean"},
		"with_moderator_notes": map[string]any{"type": "boolean"},
		"with_attachments":     map[string]any{"type": "boolean"},
	},
	"required":             []any{"meeting_id", "ids", "target_meeting_ids"},
	"additionalProperties": false,
}

// sourceItem is one agenda item of the forwarded subtree together with
// the models hanging off it.
type sourceItem struct {
	id       int
	parentID int
	fields   map[string]any
	content  domain.FQID
	speakers []map[string]any
}

func forward(ctx context.Context, r *actions.Request, instance map[string]any) (any, []datastore.Event, error) {
	sourceID := datastore.Int(instance["meeting_id"])
	if err := r.RequirePerm(ctx, sourceID, perms.AgendaItemCanManage); err != nil {
		return nil, nil, err
	}
	if err := r.RequireActiveMeeting(ctx, sourceID); err != nil {
		return nil, nil, err
	}

	withSpeakers := datastore.Bool(instance["with_speakers"])
	withNotes := datastore.Bool(instance["with_moderator_notes"])
	withAttachments := datastore.Bool(instance["with_attachments"])

	targetIDs := datastore.IntList(instance["target_meeting_ids"])
	for _, targetID := range targetIDs {
		if targetID == sourceID {
			return nil, nil, apperror.New(apperror.BadRequest,
				"Cannot forward agenda items to their own meeting.")
		}
		if err := r.RequirePerm(ctx, targetID, perms.AgendaItemCanManage); err != nil {
			return nil, nil, err
		}
		if err := r.RequireActiveMeeting(ctx, targetID); err != nil {
			return nil, nil, err
		}
	}

	items, err := collectSubtree(ctx, r, sourceID, datastore.IntList(instance["ids"]))
	if err != nil {
		return nil, nil, err
	}
	if err := checkSpeakers(items); err != nil {
		return nil, nil, err
	}

	var events []datastore.Event
	result := map[string]any{}
	for _, targetID := range targetIDs {
		if withSpeakers {
			if err := checkStructureLevelTime(ctx, r, targetID, items); err != nil {
				return nil, nil, err
			}
		}
		fw := &forwarder{
			r:               r,
			targetID:        targetID,
			withSpeakers:    withSpeakers,
			withNotes:       withNotes,
			withAttachments: withAttachments,
		}
		rootIDs, ev, err := fw.run(ctx, items)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev...)
		result[domain.FQID{Collection: "meeting", ID: targetID}.String()] = rootIDs
	}
	return result, events, nil
}

// collectSubtree loads the requested roots and all their descendants in
// pre-order together with their content objects and speakers.
func collectSubtree(ctx context.Context, r *actions.Request, meetingID int, rootIDs []int) ([]*sourceItem, error) {
	var items []*sourceItem
	seen := map[int]bool{}

	var walk func(id, parentID int) error
	walk = func(id, parentID int) error {
		if seen[id] {
			return apperror.New(apperror.BadRequest, "Duplicate agenda item %d in forward request.", id)
		}
		seen[id] = true

		fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "agenda_item", ID: id},
			"meeting_id", "parent_id", "child_ids", "weight", "type", "comment",
			"duration", "closed", "moderator_notes", "content_object_id")
		if err != nil {
			return err
		}
		if datastore.Int(fields["meeting_id"]) != meetingID {
			return apperror.New(apperror.BadRequest, "Agenda item %d is not in meeting %d.", id, meetingID)
		}
		content, err := domain.ParseFQID(datastore.String(fields["content_object_id"]))
		if err != nil {
			return apperror.New(apperror.BadRequest, "Agenda item %d has no content object.", id)
		}
		item := &sourceItem{id: id, parentID: parentID, fields: fields, content: content}

		speakers, err := loadSpeakers(ctx, r, content)
		if err != nil {
			return err
		}
		item.speakers = speakers
		items = append(items, item)

		childIDs := datastore.IntList(fields["child_ids"])
		sort.Ints(childIDs)
		for _, childID := range childIDs {
			if err := walk(childID, id); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range rootIDs {
		// Requested roots always become roots in the target.
		if err := walk(id, 0); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func loadSpeakers(ctx context.Context, r *actions.Request, content domain.FQID) ([]map[string]any, error) {
	obj, err := r.Fetch.Get(ctx, content, "list_of_speakers_id")
	if err != nil {
		return nil, err
	}
	losID := datastore.Int(obj["list_of_speakers_id"])
	if losID == 0 {
		return nil, nil
	}
	los, err := r.Fetch.Get(ctx, domain.FQID{Collection: "list_of_speakers", ID: losID}, "speaker_ids")
	if err != nil {
		return nil, err
	}
	speakerIDs := datastore.IntList(los["speaker_ids"])
	sort.Ints(speakerIDs)

	speakers := make([]map[string]any, 0, len(speakerIDs))
	for _, id := range speakerIDs {
		s, err := r.Fetch.Get(ctx, domain.FQID{Collection: "speaker", ID: id},
			"begin_time", "end_time", "pause_time", "total_pause", "weight",
			"speech_state", "note", "point_of_order", "meeting_user_id",
			"point_of_order_category_id", "structure_level_list_of_speakers_id")
		if err != nil {
			return nil, err
		}
		speakers = append(speakers, s)
	}
	return speakers, nil
}

func checkSpeakers(items []*sourceItem) error {
	for _, item := range items {
		for _, s := range item.speakers {
			started := datastore.Int(s["begin_time"]) != 0
			finished := datastore.Int(s["end_time"]) != 0
			if started && !finished {
				return apperror.New(apperror.BadRequest,
					"Cannot forward when there are running or paused speakers.")
			}
			waiting := !started
			if waiting && datastore.Bool(s["point_of_order"]) {
				return apperror.New(apperror.BadRequest,
					"Cannot forward when there are waiting points of order.")
			}
			if waiting && datastore.String(s["speech_state"]) == "intervention" {
				return apperror.New(apperror.BadRequest,
					"Cannot forward when there are waiting interventions.")
			}
		}
	}
	return nil
}

func checkStructureLevelTime(ctx context.Context, r *actions.Request, targetID int, items []*sourceItem) error {
	needed := false
	for _, item := range items {
		for _, s := range item.speakers {
			if datastore.Int(s["structure_level_list_of_speakers_id"]) != 0 {
				needed = true
			}
		}
	}
	if !needed {
		return nil
	}
	meeting, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: targetID},
		"list_of_speakers_default_structure_level_time")
	if err != nil {
		return err
	}
	if datastore.Int(meeting["list_of_speakers_default_structure_level_time"]) == 0 {
		return apperror.New(apperror.BadRequest,
			"Cannot forward structure level countdowns to meeting %d.", targetID)
	}
	return nil
}

// forwarder copies one subtree into one target meeting. It caches the
// per-target deduplications so two speakers of the same user share one
// meeting user.
type forwarder struct {
	r               *actions.Request
	targetID        int
	withSpeakers    bool
	withNotes       bool
	withAttachments bool

	meetingUsers    map[int]int // user id -> target meeting_user id
	poCategories    map[string]int
	structureLevels map[string]int
	events          []datastore.Event
}

func (fw *forwarder) run(ctx context.Context, items []*sourceItem) ([]int, []datastore.Event, error) {
	fw.meetingUsers = map[int]int{}
	fw.poCategories = map[string]int{}
	fw.structureLevels = map[string]int{}

	newItemIDs := map[int]int{} // source agenda_item id -> target id
	var rootIDs []int
	for _, item := range items {
		contentFQID, losID, err := fw.copyContent(ctx, item)
		if err != nil {
			return nil, nil, err
		}

		itemFields := map[string]any{
			"meeting_id":        fw.targetID,
			"content_object_id": contentFQID.String(),
			"type":              item.fields["type"],
			"comment":           item.fields["comment"],
			"duration":          item.fields["duration"],
			"weight":            item.fields["weight"],
		}
		if fw.withNotes {
			itemFields["moderator_notes"] = item.fields["moderator_notes"]
		}
		if parent, ok := newItemIDs[item.parentID]; ok {
			itemFields["parent_id"] = parent
		}
		deriveVisibility(itemFields, items, item)

		fqid, err := fw.create(ctx, "agenda_item", itemFields)
		if err != nil {
			return nil, nil, err
		}
		newItemIDs[item.id] = fqid.ID
		if item.parentID == 0 {
			rootIDs = append(rootIDs, fqid.ID)
		}

		if fw.withSpeakers {
			if err := fw.copySpeakers(ctx, item, losID); err != nil {
				return nil, nil, err
			}
		}
	}
	return rootIDs, fw.events, nil
}

// deriveVisibility recomputes is_internal and is_hidden in the target
// from the copied type and the new parent rather than the source flags.
func deriveVisibility(fields map[string]any, items []*sourceItem, item *sourceItem) {
	internal := datastore.String(item.fields["type"]) == "internal"
	hidden := datastore.String(item.fields["type"]) == "hidden"
	for cur := item; cur.parentID != 0; {
		var parent *sourceItem
		for _, cand := range items {
			if cand.id == cur.parentID {
				parent = cand
				break
			}
		}
		if parent == nil {
			break
		}
		switch datastore.String(parent.fields["type"]) {
		case "internal":
			internal = true
		case "hidden":
			hidden = true
		}
		cur = parent
	}
	fields["is_internal"] = internal
	fields["is_hidden"] = hidden
}

// copyContent clones the item's motion or topic into the target meeting
// together with a fresh list of speakers. It returns the new content
// fqid and the new list's id.
func (fw *forwarder) copyContent(ctx context.Context, item *sourceItem) (domain.FQID, int, error) {
	var copyFields []string
	switch item.content.Collection {
	case "topic":
		copyFields = []string{"title", "text"}
	case "motion":
		copyFields = []string{"title", "text", "reason", "number"}
	default:
		return domain.FQID{}, 0, apperror.New(apperror.BadRequest,
			"Cannot forward agenda items for %s models.", item.content.Collection)
	}
	src, err := fw.r.Fetch.Get(ctx, item.content, append(copyFields, "attachment_meeting_mediafile_ids")...)
	if err != nil {
		return domain.FQID{}, 0, err
	}

	fields := map[string]any{"meeting_id": fw.targetID}
	for _, name := range copyFields {
		if v, ok := src[name]; ok && v != nil {
			fields[name] = v
		}
	}
	seq, err := fw.nextSequentialNumber(ctx, item.content.Collection)
	if err != nil {
		return domain.FQID{}, 0, err
	}
	fields["sequential_number"] = seq

	contentFQID, err := fw.create(ctx, item.content.Collection, fields)
	if err != nil {
		return domain.FQID{}, 0, err
	}
	losFQID, err := fw.create(ctx, "list_of_speakers", map[string]any{
		"meeting_id":        fw.targetID,
		"content_object_id": contentFQID.String(),
	})
	if err != nil {
		return domain.FQID{}, 0, err
	}

	if fw.withAttachments {
		for _, mmID := range datastore.IntList(src["attachment_meeting_mediafile_ids"]) {
			if err := fw.attach(ctx, mmID, contentFQID); err != nil {
				return domain.FQID{}, 0, err
			}
		}
	}
	return contentFQID, losFQID.ID, nil
}

func (fw *forwarder) copySpeakers(ctx context.Context, item *sourceItem, losID int) error {
	for _, s := range item.speakers {
		fields := map[string]any{
			"meeting_id":          fw.targetID,
			"list_of_speakers_id": losID,
		}
		for _, name := range []string{"begin_time", "end_time", "total_pause", "weight", "speech_state", "note", "point_of_order"} {
			if v, ok := s[name]; ok && v != nil {
				fields[name] = v
			}
		}
		if userID := datastore.Int(s["meeting_user_id"]); userID != 0 {
			muID, err := fw.targetMeetingUser(ctx, userID)
			if err != nil {
				return err
			}
			fields["meeting_user_id"] = muID
		}
		if catID := datastore.Int(s["point_of_order_category_id"]); catID != 0 {
			newID, err := fw.targetPOCategory(ctx, catID)
			if err != nil {
				return err
			}
			fields["point_of_order_category_id"] = newID
		}
		if sllosID := datastore.Int(s["structure_level_list_of_speakers_id"]); sllosID != 0 {
			newID, err := fw.targetSLLOS(ctx, sllosID, losID)
			if err != nil {
				return err
			}
			fields["structure_level_list_of_speakers_id"] = newID
		}
		if _, err := fw.create(ctx, "speaker", fields); err != nil {
			return err
		}
	}
	return nil
}

// targetMeetingUser reuses the target meeting's record for the source
// speaker's user or creates a bare one. The new record never carries
// locked_out or vote_weight from the source.
func (fw *forwarder) targetMeetingUser(ctx context.Context, sourceMUID int) (int, error) {
	src, err := fw.r.Fetch.Get(ctx, domain.FQID{Collection: "meeting_user", ID: sourceMUID}, "user_id")
	if err != nil {
		return 0, err
	}
	userID := datastore.Int(src["user_id"])
	if id, ok := fw.meetingUsers[userID]; ok {
		return id, nil
	}

	existing, err := fw.r.Fetch.Filter(ctx, "meeting_user", domain.And{
		domain.Eq("meeting_id", fw.targetID),
		domain.Eq("user_id", userID),
	}, "id")
	if err != nil {
		return 0, err
	}
	for id := range existing {
		fw.meetingUsers[userID] = id
		return id, nil
	}

	fqid, err := fw.create(ctx, "meeting_user", map[string]any{
		"meeting_id": fw.targetID,
		"user_id":    userID,
	})
	if err != nil {
		return 0, err
	}
	fw.meetingUsers[userID] = fqid.ID
	return fqid.ID, nil
}

// targetPOCategory deduplicates point of order categories by text.
func (fw *forwarder) targetPOCategory(ctx context.Context, sourceID int) (int, error) {
	src, err := fw.r.Fetch.Get(ctx, domain.FQID{Collection: "point_of_order_category", ID: sourceID}, "text", "rank")
	if err != nil {
		return 0, err
	}
	text := datastore.String(src["text"])
	if id, ok := fw.poCategories[text]; ok {
		return id, nil
	}

	existing, err := fw.r.Fetch.Filter(ctx, "point_of_order_category", domain.And{
		domain.Eq("meeting_id", fw.targetID),
		domain.Eq("text", text),
	}, "id")
	if err != nil {
		return 0, err
	}
	for id := range existing {
		fw.poCategories[text] = id
		return id, nil
	}

	fqid, err := fw.create(ctx, "point_of_order_category", map[string]any{
		"meeting_id": fw.targetID,
		"text":       text,
		"rank":       src["rank"],
	})
	if err != nil {
		return 0, err
	}
	fw.poCategories[text] = fqid.ID
	return fqid.ID, nil
}

// targetSLLOS rebuilds the structure level countdown on the new list,
// deduplicating the structure level itself by name and color.
func (fw *forwarder) targetSLLOS(ctx context.Context, sourceID, losID int) (int, error) {
	src, err := fw.r.Fetch.Get(ctx, domain.FQID{Collection: "structure_level_list_of_speakers", ID: sourceID}, "structure_level_id")
	if err != nil {
		return 0, err
	}
	levelID, err := fw.targetStructureLevel(ctx, datastore.Int(src["structure_level_id"]))
	if err != nil {
		return 0, err
	}

	meeting, err := fw.r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: fw.targetID},
		"list_of_speakers_default_structure_level_time")
	if err != nil {
		return 0, err
	}
	initial := datastore.Int(meeting["list_of_speakers_default_structure_level_time"])

	fqid, err := fw.create(ctx, "structure_level_list_of_speakers", map[string]any{
		"meeting_id":          fw.targetID,
		"list_of_speakers_id": losID,
		"structure_level_id":  levelID,
		"initial_time":        initial,
		"remaining_time":      initial,
	})
	if err != nil {
		return 0, err
	}
	return fqid.ID, nil
}

func (fw *forwarder) targetStructureLevel(ctx context.Context, sourceID int) (int, error) {
	src, err := fw.r.Fetch.Get(ctx, domain.FQID{Collection: "structure_level", ID: sourceID}, "name", "color")
	if err != nil {
		return 0, err
	}
	name := datastore.String(src["name"])
	color := datastore.String(src["color"])
	key := name + "\x00" + color
	if id, ok := fw.structureLevels[key]; ok {
		return id, nil
	}

	existing, err := fw.r.Fetch.Filter(ctx, "structure_level", domain.And{
		domain.Eq("meeting_id", fw.targetID),
		domain.Eq("name", name),
		domain.Eq("color", color),
	}, "id")
	if err != nil {
		return 0, err
	}
	for id := range existing {
		fw.structureLevels[key] = id
		return id, nil
	}

	fields := map[string]any{
		"meeting_id": fw.targetID,
		"name":       name,
	}
	if color != "" {
		fields["color"] = color
	}
	fqid, err := fw.create(ctx, "structure_level", fields)
	if err != nil {
		return 0, err
	}
	fw.structureLevels[key] = fqid.ID
	return fqid.ID, nil
}

// attach mirrors a source attachment in the target meeting. Mediafiles
// owned by the organization are shared as-is; meeting-owned files are
// copied, deduplicated by their title path.
func (fw *forwarder) attach(ctx context.Context, sourceMMID int, content domain.FQID) error {
	srcMM, err := fw.r.Fetch.Get(ctx, domain.FQID{Collection: "meeting_mediafile", ID: sourceMMID}, "mediafile_id", "is_public")
	if err != nil {
		return err
	}
	mediafileID, err := fw.targetMediafile(ctx, datastore.Int(srcMM["mediafile_id"]))
	if err != nil {
		return err
	}

	existing, err := fw.r.Fetch.Filter(ctx, "meeting_mediafile", domain.And{
		domain.Eq("meeting_id", fw.targetID),
		domain.Eq("mediafile_id", mediafileID),
	}, "id", "attachment_ids")
	if err != nil {
		return err
	}
	for id, fields := range existing {
		attachments := append(datastore.StringList(fields["attachment_ids"]), content.String())
		return fw.update(ctx, domain.FQID{Collection: "meeting_mediafile", ID: id}, map[string]any{
			"attachment_ids": attachments,
		})
	}

	_, err = fw.create(ctx, "meeting_mediafile", map[string]any{
		"meeting_id":     fw.targetID,
		"mediafile_id":   mediafileID,
		"is_public":      srcMM["is_public"],
		"attachment_ids": []string{content.String()},
	})
	return err
}

func (fw *forwarder) targetMediafile(ctx context.Context, sourceID int) (int, error) {
	src, err := fw.r.Fetch.Get(ctx, domain.FQID{Collection: "mediafile", ID: sourceID},
		"owner_id", "title", "filename", "filesize", "mimetype", "parent_id")
	if err != nil {
		return 0, err
	}
	owner, err := domain.ParseFQID(datastore.String(src["owner_id"]))
	if err == nil && owner.Collection == "organization" {
		return sourceID, nil
	}

	path := titlePath(ctx, fw.r, src)
	targetOwner := domain.FQID{Collection: "meeting", ID: fw.targetID}.String()
	candidates, err := fw.r.Fetch.Filter(ctx, "mediafile", domain.And{
		domain.Eq("owner_id", targetOwner),
		domain.Eq("title", datastore.String(src["title"])),
	}, "title", "parent_id")
	if err != nil {
		return 0, err
	}
	for id, fields := range candidates {
		if titlePath(ctx, fw.r, fields) == path {
			return id, nil
		}
	}

	fqid, err := fw.create(ctx, "mediafile", map[string]any{
		"owner_id": targetOwner,
		"title":    src["title"],
		"filename": src["filename"],
		"filesize": src["filesize"],
		"mimetype": src["mimetype"],
	})
	if err != nil {
		return 0, err
	}
	return fqid.ID, nil
}

// titlePath is the slash-joined chain of directory titles above a
// mediafile, used as the deduplication key across meetings.
func titlePath(ctx context.Context, r *actions.Request, fields map[string]any) string {
	path := datastore.String(fields["title"])
	parentID := datastore.Int(fields["parent_id"])
	for parentID != 0 {
		parent, err := r.Fetch.Get(ctx, domain.FQID{Collection: "mediafile", ID: parentID}, "title", "parent_id")
		if err != nil {
			break
		}
		path = datastore.String(parent["title"]) + "/" + path
		parentID = datastore.Int(parent["parent_id"])
	}
	return path
}

func (fw *forwarder) create(ctx context.Context, collection domain.Collection, fields map[string]any) (domain.FQID, error) {
	fqid, ev, err := fw.r.Create(ctx, collection, fields)
	if err != nil {
		return domain.FQID{}, err
	}
	fw.r.Fetch.ApplyEvents(ev)
	fw.events = append(fw.events, ev...)
	return fqid, nil
}

func (fw *forwarder) update(ctx context.Context, fqid domain.FQID, fields map[string]any) error {
	ev, err := fw.r.Update(ctx, fqid, fields)
	if err != nil {
		return err
	}
	fw.r.Fetch.ApplyEvents(ev)
	fw.events = append(fw.events, ev...)
	return nil
}

func (fw *forwarder) nextSequentialNumber(ctx context.Context, collection domain.Collection) (int, error) {
	data, err := fw.r.Fetch.Filter(ctx, collection, domain.Eq("meeting_id", fw.targetID), "sequential_number")
	if err != nil {
		return 0, err
	}
	max := 0
	for _, m := range data {
		if n := datastore.Int(m["sequential_number"]); n > max {
			max = n
		}
	}
	return max + 1, nil
}
