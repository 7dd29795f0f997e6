// Package relations computes the foreign-side updates a write implies.
// Every relation in the registry is declared on both sides; whenever a
// handler writes one side, the resolver produces the matching changes
// for the other side, plus cascades for deletes.
package relations

import (
	"context"
	"fmt"
	"sort"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/domain"
)

// ChangeType says how a foreign field is adjusted.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeRemove ChangeType = "remove"
	ChangeSet    ChangeType = "set"
)

// Change carries the final new value of one foreign field. Value is nil
// when the field is cleared.
type Change struct {
	Type  ChangeType
	Value any
}

// Result is the full outcome of resolving one write: field changes on
// other models, keyed by FQField, and models to delete.
type Result struct {
	Changes map[string]Change
	Deletes []domain.FQID
}

// Events renders the result as ordered datastore events: updates grouped
// per model first, then the deletes.
func (res *Result) Events() []datastore.Event {
	byModel := map[string]map[string]any{}
	for key, ch := range res.Changes {
		fqField, err := domain.ParseFQField(key)
		if err != nil {
			continue
		}
		fqid := fqField.FQID().String()
		if byModel[fqid] == nil {
			byModel[fqid] = map[string]any{}
		}
		byModel[fqid][fqField.Field] = ch.Value
	}

	fqids := make([]string, 0, len(byModel))
	for fqid := range byModel {
		fqids = append(fqids, fqid)
	}
	sort.Strings(fqids)

	events := make([]datastore.Event, 0, len(fqids)+len(res.Deletes))
	for _, fqid := range fqids {
		events = append(events, datastore.UpdateEvent(domain.MustFQID(fqid), byModel[fqid]))
	}
	for _, fqid := range res.Deletes {
		events = append(events, datastore.DeleteEvent(fqid))
	}
	return events
}

// Resolver reads current relation state through a locking fetcher.
type Resolver struct {
	reg   *models.Registry
	fetch *datastore.Fetcher
}

func New(reg *models.Registry, fetch *datastore.Fetcher) *Resolver {
	return &Resolver{reg: reg, fetch: fetch}
}

// Apply resolves the relation fields of one create or update payload.
// The payload's own fields are written by the caller; the result covers
// everything else: inverse fields on targets and template bookkeeping.
func (r *Resolver) Apply(ctx context.Context, own domain.FQID, payload map[string]any) (*Result, error) {
	model := r.reg.Model(own.Collection)
	if model == nil {
		return nil, fmt.Errorf("unknown collection %q", own.Collection)
	}
	res := &Result{Changes: map[string]Change{}}

	names := make([]string, 0, len(payload))
	for name := range payload {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field, slot, ok := model.Resolve(name)
		if !ok || field.Relation == nil {
			continue
		}
		if err := r.applyField(ctx, res, own, model, field, slot, name, payload[name]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *Resolver) applyField(ctx context.Context, res *Result, own domain.FQID, model *models.Model, field *models.Field, slot, concreteName string, newValue any) error {
	oldValue, err := r.fieldValue(ctx, res, own, concreteName)
	if err != nil {
		return err
	}
	oldRefs := refs(field.Relation, oldValue)
	newRefs := refs(field.Relation, newValue)
	added, removed := diffRefs(oldRefs, newRefs)

	inverseName := field.Relation.Inverse
	if field.Relation.Structured {
		inverseName = models.StructuredName(inverseName, slot)
	}

	for _, target := range removed {
		if err := r.adjustInverse(ctx, res, own, target, inverseName, false); err != nil {
			return err
		}
	}
	for _, target := range added {
		if err := r.adjustInverse(ctx, res, own, target, inverseName, true); err != nil {
			return err
		}
	}

	// Slot bookkeeping on the own model's template field.
	if field.Relation.Structured {
		if err := r.adjustTemplate(ctx, res, own, field.Name, slot, !emptyRef(field.Relation, newValue)); err != nil {
			return err
		}
	}
	return nil
}

// adjustInverse adds or removes the back reference to own on the target's
// inverse field and maintains the target's template field when the
// inverse is structured.
func (r *Resolver) adjustInverse(ctx context.Context, res *Result, own, target domain.FQID, inverseName string, add bool) error {
	targetModel := r.reg.Model(target.Collection)
	if targetModel == nil {
		return fmt.Errorf("unknown collection %q", target.Collection)
	}
	inverse, slot, ok := targetModel.Resolve(inverseName)
	if !ok || inverse.Relation == nil {
		return fmt.Errorf("%s has no relation field %q", target.Collection, inverseName)
	}

	backRef := backRefValue(inverse.Relation, own)
	key := target.Field(inverseName).String()

	if inverse.Relation.Many {
		cur, err := r.fieldValue(ctx, res, target, inverseName)
		if err != nil {
			return err
		}
		var value any
		if generic(inverse.Relation) {
			list := datastore.StringList(cur)
			if add {
				value = appendString(list, backRef.(string))
			} else {
				value = removeString(list, backRef.(string))
			}
		} else {
			list := datastore.IntList(cur)
			if add {
				value = appendInt(list, backRef.(int))
			} else {
				value = removeInt(list, backRef.(int))
			}
		}
		typ := ChangeRemove
		if add {
			typ = ChangeAdd
		}
		res.Changes[key] = Change{Type: typ, Value: value}
	} else {
		var value any
		if add {
			value = backRef
		}
		res.Changes[key] = Change{Type: ChangeSet, Value: value}
	}

	if inverse.Relation.Structured {
		nowSet := add
		if inverse.Relation.Many {
			if v, ok := res.Changes[key]; ok {
				nowSet = !emptyRef(inverse.Relation, v.Value)
			}
		}
		if err := r.adjustTemplate(ctx, res, target, inverse.Name, slot, nowSet); err != nil {
			return err
		}
	}
	return nil
}

// adjustTemplate keeps a template field's slot list in sync with its
// materialized fields.
func (r *Resolver) adjustTemplate(ctx context.Context, res *Result, fqid domain.FQID, templateName, slot string, present bool) error {
	cur, err := r.fieldValue(ctx, res, fqid, templateName)
	if err != nil {
		return err
	}
	slots := datastore.StringList(cur)
	has := false
	for _, s := range slots {
		if s == slot {
			has = true
			break
		}
	}
	key := fqid.Field(templateName).String()
	switch {
	case present && !has:
		res.Changes[key] = Change{Type: ChangeAdd, Value: appendString(slots, slot)}
	case !present && has:
		res.Changes[key] = Change{Type: ChangeRemove, Value: removeString(slots, slot)}
	}
	return nil
}

// Delete resolves the full consequence of deleting one model: cascaded
// deletes, protect violations and back-reference removal everywhere.
func (r *Resolver) Delete(ctx context.Context, fqid domain.FQID) (*Result, error) {
	res := &Result{Changes: map[string]Change{}}
	deleting := map[string]bool{}
	if err := r.delete(ctx, res, fqid, deleting); err != nil {
		return nil, err
	}
	// Changes targeting deleted models are moot.
	for key := range res.Changes {
		fqField, err := domain.ParseFQField(key)
		if err != nil || deleting[fqField.FQID().String()] {
			delete(res.Changes, key)
		}
	}
	return res, nil
}

func (r *Resolver) delete(ctx context.Context, res *Result, own domain.FQID, deleting map[string]bool) error {
	if deleting[own.String()] {
		return nil
	}
	deleting[own.String()] = true

	model := r.reg.Model(own.Collection)
	if model == nil {
		return fmt.Errorf("unknown collection %q", own.Collection)
	}
	full, err := r.fetch.Get(ctx, own)
	if err != nil {
		return err
	}

	for i := range model.Fields {
		field := &model.Fields[i]
		if field.Relation == nil {
			continue
		}
		for _, concrete := range materializations(field, full) {
			value := full[concrete.name]
			targets := refs(field.Relation, value)
			live := targets[:0:0]
			for _, t := range targets {
				if !deleting[t.String()] {
					live = append(live, t)
				}
			}
			if len(live) == 0 {
				continue
			}

			switch field.Relation.OnDelete {
			case models.OnDeleteProtect:
				return apperror.New(apperror.BadRequest,
					"You can not delete %s because you have to delete the related models %s first.",
					own, joinFQIDs(live))
			case models.OnDeleteCascade:
				for _, t := range live {
					if err := r.delete(ctx, res, t, deleting); err != nil {
						return err
					}
				}
			default:
				inverseName := field.Relation.Inverse
				if field.Relation.Structured {
					inverseName = models.StructuredName(inverseName, concrete.slot)
				}
				for _, t := range live {
					if err := r.adjustInverse(ctx, res, own, t, inverseName, false); err != nil {
						return err
					}
				}
			}
		}
	}

	res.Deletes = append(res.Deletes, own)
	return nil
}

type concreteField struct {
	name string
	slot string
}

// materializations expands a template field into the concrete fields its
// slot list names; plain fields map to themselves.
func materializations(field *models.Field, full map[string]any) []concreteField {
	if field.Relation == nil || !field.Relation.Structured {
		return []concreteField{{name: field.Name}}
	}
	var out []concreteField
	for _, slot := range datastore.StringList(full[field.Name]) {
		out = append(out, concreteField{name: models.StructuredName(field.Name, slot), slot: slot})
	}
	return out
}

// fieldValue returns the effective current value of a field, preferring
// changes already staged in this resolution.
func (r *Resolver) fieldValue(ctx context.Context, res *Result, fqid domain.FQID, name string) (any, error) {
	if ch, ok := res.Changes[fqid.Field(name).String()]; ok {
		return ch.Value, nil
	}
	fields, ok, err := r.fetch.GetIfExists(ctx, fqid, name)
	if err != nil || !ok {
		return nil, err
	}
	return fields[name], nil
}

func generic(rel *models.Relation) bool {
	return len(rel.Generic) > 0
}

// refs normalizes a stored or payload value into target FQIDs.
func refs(rel *models.Relation, value any) []domain.FQID {
	if value == nil {
		return nil
	}
	var out []domain.FQID
	if generic(rel) {
		var raw []string
		if rel.Many {
			raw = datastore.StringList(value)
		} else if s := datastore.String(value); s != "" {
			raw = []string{s}
		}
		for _, s := range raw {
			fqid, err := domain.ParseFQID(s)
			if err == nil {
				out = append(out, fqid)
			}
		}
		return out
	}
	if rel.Many {
		for _, id := range datastore.IntList(value) {
			out = append(out, domain.FQID{Collection: rel.To, ID: id})
		}
		return out
	}
	if id := datastore.Int(value); id != 0 {
		out = append(out, domain.FQID{Collection: rel.To, ID: id})
	}
	return out
}

func emptyRef(rel *models.Relation, value any) bool {
	return len(refs(rel, value)) == 0
}

// backRefValue is what the target's inverse field stores to point back:
// the fqid string for generic inverses, the plain id otherwise.
func backRefValue(rel *models.Relation, own domain.FQID) any {
	if generic(rel) {
		return own.String()
	}
	return own.ID
}

func diffRefs(old, new []domain.FQID) (added, removed []domain.FQID) {
	inOld := map[string]bool{}
	for _, f := range old {
		inOld[f.String()] = true
	}
	inNew := map[string]bool{}
	for _, f := range new {
		inNew[f.String()] = true
	}
	for _, f := range new {
		if !inOld[f.String()] {
			added = append(added, f)
		}
	}
	for _, f := range old {
		if !inNew[f.String()] {
			removed = append(removed, f)
		}
	}
	return added, removed
}

func joinFQIDs(fqids []domain.FQID) string {
	out := ""
	for i, f := range fqids {
		if i > 0 {
			out += ", "
		}
		out += f.String()
	}
	return out
}

func appendInt(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(append([]int{}, list...), v)
}

func removeInt(list []int, v int) []int {
	out := make([]int, 0, len(list))
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func appendString(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(append([]string{}, list...), v)
}

func removeString(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
