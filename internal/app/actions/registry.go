package actions

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry is the immutable table of registered actions, schemas
// compiled at construction.
type Registry struct {
	actions map[string]*Action
	schemas map[string]*jsonschema.Schema
}

// NewRegistry compiles every action's schema and indexes by name.
// Duplicate names and broken schemas are programming errors.
func NewRegistry(list ...*Action) (*Registry, error) {
	r := &Registry{
		actions: make(map[string]*Action, len(list)),
		schemas: make(map[string]*jsonschema.Schema, len(list)),
	}
	for _, a := range list {
		if _, dup := r.actions[a.Name]; dup {
			return nil, fmt.Errorf("action %q registered twice", a.Name)
		}
		sch, err := compileDataSchema(a.Name, a.Schema)
		if err != nil {
			return nil, fmt.Errorf("compiling schema of %q: %w", a.Name, err)
		}
		r.actions[a.Name] = a
		r.schemas[a.Name] = sch
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for init-time wiring.
func MustNewRegistry(list ...*Action) *Registry {
	r, err := NewRegistry(list...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the action and its compiled data schema.
func (r *Registry) Get(name string) (*Action, *jsonschema.Schema, bool) {
	a, ok := r.actions[name]
	if !ok {
		return nil, nil, false
	}
	return a, r.schemas[name], true
}

// Names lists the registered action names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.actions))
	for name := range r.actions {
		out = append(out, name)
	}
	return out
}

// compileDataSchema wraps an instance schema into the array schema the
// action's data field must satisfy.
func compileDataSchema(name string, instance map[string]any) (*jsonschema.Schema, error) {
	full := map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "array",
		"minItems": 1,
		"items":    instance,
	}
	raw, err := json.Marshal(full)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := "actions/" + name + ".json"
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
