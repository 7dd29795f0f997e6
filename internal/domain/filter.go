package domain

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Filter is a node of the filter tree the datastore's /filter family of
// endpoints accepts. The concrete types below marshal to the wire shapes
// {"and_filter": [...]}, {"or_filter": [...]}, {"not_filter": {...}} and
// {"field": ..., "operator": ..., "value": ...}.
type Filter interface {
	filterNode()
}

// FilterOperator is a leaf comparison on a single field.
type FilterOperator struct {
	Field    string
	Operator string // one of =, !=, <, >, <=, >=
	Value    any
}

func (FilterOperator) filterNode() {}

func (f FilterOperator) MarshalJSON() ([]byte, error) {
	switch f.Operator {
	case "=", "!=", "<", ">", "<=", ">=":
	default:
		return nil, fmt.Errorf("invalid filter operator %q", f.Operator)
	}
	// Without this option the comparison operators < and > would be
	// escaped to < and > on the wire.
	return json.MarshalWithOption(map[string]any{
		"field":    f.Field,
		"operator": f.Operator,
		"value":    f.Value,
	}, json.DisableHTMLEscape())
}

// And matches when all child filters match.
type And []Filter

func (And) filterNode() {}

func (f And) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"and_filter": []Filter(f)})
}

// Or matches when at least one child filter matches.
type Or []Filter

func (Or) filterNode() {}

func (f Or) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"or_filter": []Filter(f)})
}

// Not inverts its child filter.
type Not struct {
	Filter Filter
}

func (Not) filterNode() {}

func (f Not) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"not_filter": f.Filter})
}

// Eq is shorthand for an equality leaf.
func Eq(field string, value any) FilterOperator {
	return FilterOperator{Field: field, Operator: "=", Value: value}
}
