// Package graph implements the workflow engine that sequences the
// exploration stages: named asynchronous stages connected by unconditional,
// conditional, and fan-out edges, with reducer-based merging of concurrent
// state updates and per-branch failure isolation.
package graph

import (
	"fmt"
	"reflect"
)

// ============================================================================
// STATE AND REDUCERS
// ============================================================================

// State is the accumulated run state. Stages receive a snapshot and return a
// partial update (delta) that the engine merges according to the schema.
type State map[string]any

// Clone returns a shallow copy of the state. Values are shared; stages must
// treat them as read-only.
func (s State) Clone() State {
	cloned := make(State, len(s))
	for k, v := range s {
		cloned[k] = v
	}
	return cloned
}

// Reduce tells the engine how to merge concurrent updates to one field.
type Reduce int

const (
	// Replace overwrites the field; last writer wins. Only safe when a
	// single producer writes the field in any one step.
	Replace Reduce = iota
	// Append accumulates slice elements in arrival order. Order across
	// concurrent producers is not guaranteed.
	Append
	// MergeSet unions slice elements, deduplicating by the field's key
	// function. First arrival wins for duplicate keys.
	MergeSet
)

// FieldSpec declares merge behavior for one state field.
type FieldSpec struct {
	Reduce Reduce

	// Key extracts the deduplication key for MergeSet fields.
	Key func(item any) string
}

// Schema maps field names to their merge behavior. Fields not present in the
// schema default to Replace.
type Schema map[string]FieldSpec

// merge applies one delta to the state under the schema's reducers.
// Slice-valued fields are merged with reflection so stages can use typed
// slices directly.
func (schema Schema) merge(state State, delta State) error {
	for field, value := range delta {
		spec := schema[field]

		switch spec.Reduce {
		case Replace:
			state[field] = value

		case Append:
			merged, err := appendSlices(state[field], value)
			if err != nil {
				return fmt.Errorf("field %q: %w", field, err)
			}
			state[field] = merged

		case MergeSet:
			if spec.Key == nil {
				return fmt.Errorf("field %q: merge-set requires a key function", field)
			}
			merged, err := mergeSets(state[field], value, spec.Key)
			if err != nil {
				return fmt.Errorf("field %q: %w", field, err)
			}
			state[field] = merged
		}
	}
	return nil
}

func appendSlices(existing, incoming any) (any, error) {
	iv := reflect.ValueOf(incoming)
	if iv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append reducer requires a slice delta, got %T", incoming)
	}

	if existing == nil {
		out := reflect.MakeSlice(iv.Type(), 0, iv.Len())
		return reflect.AppendSlice(out, iv).Interface(), nil
	}

	ev := reflect.ValueOf(existing)
	if ev.Kind() != reflect.Slice || ev.Type() != iv.Type() {
		return nil, fmt.Errorf("append reducer type mismatch: %T vs %T", existing, incoming)
	}

	out := reflect.MakeSlice(ev.Type(), 0, ev.Len()+iv.Len())
	out = reflect.AppendSlice(out, ev)
	out = reflect.AppendSlice(out, iv)
	return out.Interface(), nil
}

func mergeSets(existing, incoming any, key func(any) string) (any, error) {
	iv := reflect.ValueOf(incoming)
	if iv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("merge-set reducer requires a slice delta, got %T", incoming)
	}

	seen := make(map[string]bool)
	var out reflect.Value

	if existing != nil {
		ev := reflect.ValueOf(existing)
		if ev.Kind() != reflect.Slice || ev.Type() != iv.Type() {
			return nil, fmt.Errorf("merge-set reducer type mismatch: %T vs %T", existing, incoming)
		}
		out = reflect.MakeSlice(ev.Type(), 0, ev.Len()+iv.Len())
		for i := 0; i < ev.Len(); i++ {
			item := ev.Index(i)
			k := key(item.Interface())
			if !seen[k] {
				seen[k] = true
				out = reflect.Append(out, item)
			}
		}
	} else {
		out = reflect.MakeSlice(iv.Type(), 0, iv.Len())
	}

	for i := 0; i < iv.Len(); i++ {
		item := iv.Index(i)
		k := key(item.Interface())
		if !seen[k] {
			seen[k] = true
			out = reflect.Append(out, item)
		}
	}

	return out.Interface(), nil
}
