// Package state provides the shared state container for graph execution
// following Clean Architecture principles with zero external dependencies.
package state

import (
	"fmt"
)

// State is the mapping of field names to values that flows through a run.
// Nodes never mutate it directly; they return partial updates which the
// executor folds in through the schema's reducers.
type State map[string]interface{}

// Get returns the value of a field and whether it is present.
func (s State) Get(name string) (interface{}, bool) {
	v, ok := s[name]
	return v, ok
}

// GetString returns a field's value when it is present and a string.
func (s State) GetString(name string) (string, bool) {
	v, ok := s[name].(string)
	return v, ok
}

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// Field declares one state field: how incoming updates merge with the
// existing value, and optionally how the field is seeded on a fresh run.
type Field struct {
	Reducer Reducer
	Default func() interface{}
}

// Schema declares the full set of fields a graph's state may contain.
// PRINCIPLES:
// - SRP: Only responsible for field declarations and merge dispatch
// - KISS: A plain map, immutable after construction
type Schema struct {
	fields map[string]Field
	order  []string
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{fields: make(map[string]Field)}
}

// AddField registers a field. A nil reducer defaults to Replace.
func (s *Schema) AddField(name string, field Field) *Schema {
	if field.Reducer == nil {
		field.Reducer = Replace
	}
	if _, exists := s.fields[name]; !exists {
		s.order = append(s.order, name)
	}
	s.fields[name] = field
	return s
}

// Has reports whether the schema declares the given field.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// FieldNames returns the declared field names in registration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// NewState builds a fresh state seeded with each field's default.
func (s *Schema) NewState() State {
	st := make(State, len(s.fields))
	for name, f := range s.fields {
		if f.Default != nil {
			st[name] = f.Default()
		}
	}
	return st
}

// Apply merges an update into the current state field by field. Every
// field present in the update must be declared in the schema; an unknown
// field aborts the whole apply with a SchemaError. Fields absent from
// the update are left untouched. The receiver state is not modified.
func (s *Schema) Apply(current State, update State) (State, error) {
	for name := range update {
		if _, ok := s.fields[name]; !ok {
			return nil, &SchemaError{Field: name}
		}
	}

	result := current.Clone()
	// Deterministic application order: declaration order of the schema.
	for _, name := range s.order {
		incoming, ok := update[name]
		if !ok {
			continue
		}
		merged, err := s.fields[name].Reducer(result[name], incoming)
		if err != nil {
			return nil, fmt.Errorf("reduce field %q: %w", name, err)
		}
		result[name] = merged
	}
	return result, nil
}
