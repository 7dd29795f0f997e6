// Package actions contains the write-request framework: the handler
// contract, the registry of named actions and the batch executor that
// turns handler output into one atomic datastore write.
package actions

import (
	"context"

	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/permcheck"
	"github.com/plenumhq/plenum/internal/app/policy/perms"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/app/system/relations"
	"github.com/plenumhq/plenum/internal/domain"
)

// Handler executes one instance of an action's data array. It returns
// the caller-facing result (often nil or {"id": n}) and the events the
// instance implies. Handlers read through r.Fetch so their reads are
// locked and see earlier instances' pending events.
type Handler func(ctx context.Context, r *Request, instance map[string]any) (any, []datastore.Event, error)

// Action couples a dotted name with its payload schema and handler.
type Action struct {
	Name   string
	Schema map[string]any
	Handle Handler
}

// Request is the per-request context shared by every handler in a batch.
type Request struct {
	Fetch    *datastore.Fetcher
	Checker  *permcheck.Checker
	Resolver *relations.Resolver
	Models   *models.Registry
	UserID   int
	Internal bool
	Log      *zap.Logger
}

// RequirePerm rejects unless the caller holds the permission in the
// meeting.
func (r *Request) RequirePerm(ctx context.Context, meetingID int, p perms.Permission) error {
	ok, err := r.Checker.HasPerm(ctx, meetingID, p)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.New(apperror.PermissionDenied,
			"Missing permission: %s in meeting %d", p, meetingID)
	}
	return nil
}

// RequireOML rejects unless the caller has at least the given
// organization management level.
func (r *Request) RequireOML(ctx context.Context, level perms.OrganizationManagementLevel) error {
	ok, err := r.Checker.HasOML(ctx, level)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.New(apperror.PermissionDenied,
			"Missing organization management level: %s", level)
	}
	return nil
}

// RequireCommitteeManager rejects unless the caller manages the committee.
func (r *Request) RequireCommitteeManager(ctx context.Context, committeeID int) error {
	ok, err := r.Checker.IsCommitteeManager(ctx, committeeID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.New(apperror.PermissionDenied,
			"Missing committee management level: can_manage in committee %d", committeeID)
	}
	return nil
}

// RequireActiveMeeting rejects writes into archived meetings.
func (r *Request) RequireActiveMeeting(ctx context.Context, meetingID int) error {
	fields, err := r.Fetch.Get(ctx, domain.FQID{Collection: "meeting", ID: meetingID}, "is_active_in_organization_id")
	if err != nil {
		return err
	}
	if datastore.Int(fields["is_active_in_organization_id"]) == 0 {
		return apperror.New(apperror.BadRequest,
			"Meeting %d cannot be changed, because it is archived.", meetingID)
	}
	return nil
}

// Create reserves an id when the instance has none, resolves the
// relation fields and returns the create event plus the inverse updates.
func (r *Request) Create(ctx context.Context, collection domain.Collection, instance map[string]any) (domain.FQID, []datastore.Event, error) {
	id := datastore.Int(instance["id"])
	if id == 0 {
		ids, err := r.Fetch.ReserveIDs(ctx, collection, 1)
		if err != nil {
			return domain.FQID{}, nil, err
		}
		id = ids[0]
	}
	fqid := domain.FQID{Collection: collection, ID: id}

	res, err := r.Resolver.Apply(ctx, fqid, instance)
	if err != nil {
		return domain.FQID{}, nil, err
	}
	fields := make(map[string]any, len(instance))
	for k, v := range instance {
		fields[k] = v
	}
	fields["id"] = id
	// Slot bookkeeping staged for the created model itself belongs in
	// the create event, not a separate update.
	for key, ch := range res.Changes {
		fqField, err := domain.ParseFQField(key)
		if err == nil && fqField.FQID() == fqid {
			fields[fqField.Field] = ch.Value
			delete(res.Changes, key)
		}
	}
	events := append([]datastore.Event{datastore.CreateEvent(fqid, fields)}, res.Events()...)
	return fqid, events, nil
}

// Update resolves the relation fields of an update payload and returns
// the update event plus the inverse updates. The instance must carry id.
func (r *Request) Update(ctx context.Context, fqid domain.FQID, instance map[string]any) ([]datastore.Event, error) {
	if _, err := r.Fetch.Get(ctx, fqid, "id"); err != nil {
		return nil, wrapDatastoreError(err)
	}
	res, err := r.Resolver.Apply(ctx, fqid, instance)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(instance))
	for k, v := range instance {
		if k == "id" {
			continue
		}
		fields[k] = v
	}
	for key, ch := range res.Changes {
		fqField, err := domain.ParseFQField(key)
		if err == nil && fqField.FQID() == fqid {
			fields[fqField.Field] = ch.Value
			delete(res.Changes, key)
		}
	}
	events := []datastore.Event{datastore.UpdateEvent(fqid, fields)}
	return append(events, res.Events()...), nil
}

// Delete resolves cascades and back references and returns the events.
func (r *Request) Delete(ctx context.Context, fqid domain.FQID) ([]datastore.Event, error) {
	res, err := r.Resolver.Delete(ctx, fqid)
	if err != nil {
		return nil, wrapDatastoreError(err)
	}
	return res.Events(), nil
}

// wrapDatastoreError turns typed datastore errors into caller-facing
// ones; everything else passes through.
func wrapDatastoreError(err error) error {
	switch e := err.(type) {
	case datastore.NotFoundError:
		return apperror.Wrap(apperror.BadRequest, err, "Model %s does not exist.", e.FQID)
	case datastore.InvalidFormatError:
		return apperror.Wrap(apperror.BadRequest, err, "Invalid request: %s", e.Msg)
	default:
		return err
	}
}
