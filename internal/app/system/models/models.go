// Package models is the declarative model registry: for every collection
// it describes the fields, their JSON-schema fragments, and the relation
// metadata the relation resolver and permission engine work from. The
// registry is built once at startup and never mutated.
package models

import (
	"fmt"
	"strings"

	"github.com/plenumhq/plenum/internal/domain"
)

// OnDelete is the policy applied to referenced models when the owning
// model is deleted.
type OnDelete string

const (
	// OnDeleteDefault removes the back reference on the other side.
	OnDeleteDefault OnDelete = ""
	// OnDeleteProtect aborts the delete while references exist.
	OnDeleteProtect OnDelete = "protect"
	// OnDeleteCascade deletes the referenced models too.
	OnDeleteCascade OnDelete = "cascade"
	// OnDeleteSetNull clears the reverse field on referenced models.
	OnDeleteSetNull OnDelete = "set_null"
)

// Relation describes one side of a declared relation.
type Relation struct {
	// To is the target collection. Empty when the relation is generic.
	To domain.Collection
	// Generic lists the allowed target collections of a generic relation;
	// values on a generic field are fqid strings instead of ids.
	Generic []domain.Collection
	// Inverse names the reverse field on the target collection.
	Inverse string
	// Many is true for list-valued relations.
	Many bool
	// Structured is true for template fields spelled with a "$" slot.
	Structured bool
	// OnDelete is the policy for referenced models on delete.
	OnDelete OnDelete
}

// Targets returns the collections a value of this relation may point to.
func (r *Relation) Targets() []domain.Collection {
	if len(r.Generic) > 0 {
		return r.Generic
	}
	return []domain.Collection{r.To}
}

// Field is one declared field of a collection.
type Field struct {
	Name     string
	Schema   map[string]any
	Relation *Relation
}

// Model describes one collection.
type Model struct {
	Collection domain.Collection
	Fields     []Field

	index map[string]*Field
}

// Field returns the declared field with the exact given name.
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.index[name]
	return f, ok
}

// Resolve returns the field for a name that may be a materialized
// structured field. For "default_projector_agenda_ids" it returns the
// "default_projector_$_ids" template and the slot "agenda".
func (m *Model) Resolve(name string) (field *Field, slot string, ok bool) {
	if f, found := m.index[name]; found {
		return f, "", true
	}
	for _, f := range m.Fields {
		if f.Relation == nil || !f.Relation.Structured {
			continue
		}
		if s, matched := TemplateSlot(f.Name, name); matched {
			return m.index[f.Name], s, true
		}
	}
	return nil, "", false
}

// Registry holds every collection description.
type Registry struct {
	models map[domain.Collection]*Model
}

// Model returns the description of a collection, or nil when unknown.
func (r *Registry) Model(c domain.Collection) *Model {
	return r.models[c]
}

// Collections returns every registered collection name.
func (r *Registry) Collections() []domain.Collection {
	out := make([]domain.Collection, 0, len(r.models))
	for c := range r.models {
		out = append(out, c)
	}
	return out
}

// Reverse returns the inverse counterpart of a relation on the given
// target collection.
func (r *Registry) Reverse(rel *Relation, target domain.Collection) (*Field, error) {
	m := r.models[target]
	if m == nil {
		return nil, fmt.Errorf("unknown collection %q", target)
	}
	f, ok := m.Field(rel.Inverse)
	if !ok {
		return nil, fmt.Errorf("collection %q has no field %q", target, rel.Inverse)
	}
	if f.Relation == nil {
		return nil, fmt.Errorf("field %s/%s is not a relation", target, rel.Inverse)
	}
	return f, nil
}

func newRegistry(models ...*Model) *Registry {
	r := &Registry{models: make(map[domain.Collection]*Model, len(models))}
	for _, m := range models {
		m.index = make(map[string]*Field, len(m.Fields))
		for i := range m.Fields {
			m.index[m.Fields[i].Name] = &m.Fields[i]
		}
		r.models[m.Collection] = m
	}
	return r
}

// IsTemplate reports whether the field name is a structured template
// field, i.e. contains the "$" slot placeholder.
func IsTemplate(name string) bool {
	return strings.Contains(name, "$")
}

// StructuredName materializes a template field name for one slot:
// ("default_projector_$_ids", "agenda") -> "default_projector_agenda_ids".
func StructuredName(template, slot string) string {
	return strings.Replace(template, "$", slot, 1)
}

// TemplateSlot extracts the slot from a materialized structured field
// name: ("default_projector_$_ids", "default_projector_agenda_ids") ->
// ("agenda", true). The bare template name itself does not match.
func TemplateSlot(template, concrete string) (string, bool) {
	idx := strings.IndexByte(template, '$')
	if idx < 0 {
		return "", false
	}
	prefix, suffix := template[:idx], template[idx+1:]
	if !strings.HasPrefix(concrete, prefix) || !strings.HasSuffix(concrete, suffix) {
		return "", false
	}
	slot := concrete[len(prefix) : len(concrete)-len(suffix)]
	if slot == "" || slot == "$" || strings.Contains(slot, "$") {
		return "", false
	}
	return slot, true
}
