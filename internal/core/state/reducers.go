// Package state provides per-field merge rules (reducers).
package state

import (
	"reflect"
)

// Reducer combines the existing value of a field with an incoming update
// and returns the merged value. Reducers must be pure.
type Reducer func(existing, incoming interface{}) (interface{}, error)

// Replace unconditionally overwrites the existing value.
func Replace(_, incoming interface{}) (interface{}, error) {
	return incoming, nil
}

// ReplaceIfNonEmpty overwrites the existing value only when the incoming
// one is non-empty (non-nil, non-zero string, non-empty slice or map).
// Used for scalar fields like a running summary or a clarity flag, where
// a node returning nothing must not clobber earlier output.
func ReplaceIfNonEmpty(existing, incoming interface{}) (interface{}, error) {
	if isEmpty(incoming) {
		return existing, nil
	}
	return incoming, nil
}

// ListUpdate is the tagged update variant accepted by AppendWithReset.
// Reset discards the accumulated list before appending Items, which lets
// a fresh run drop a prior run's partial results without sniffing marker
// entries out of the payload itself.
type ListUpdate struct {
	Reset bool
	Items []interface{}
}

// Append builds a plain append update.
func Append(items ...interface{}) ListUpdate {
	return ListUpdate{Items: items}
}

// ResetList builds an update that clears the accumulated list. Items, if
// any, become the new content.
func ResetList(items ...interface{}) ListUpdate {
	return ListUpdate{Reset: true, Items: items}
}

// AppendWithReset concatenates incoming items onto the existing list,
// unless the update carries the reset tag, in which case the existing
// list is discarded first. Accepts a ListUpdate or a raw []interface{}
// (treated as a plain append). Concatenation is the only order-sensitive
// part; callers fold branch results in a fixed order to stay
// deterministic.
func AppendWithReset(existing, incoming interface{}) (interface{}, error) {
	current, err := toItemSlice(existing)
	if err != nil {
		return nil, err
	}

	var upd ListUpdate
	switch v := incoming.(type) {
	case ListUpdate:
		upd = v
	case *ListUpdate:
		upd = *v
	case nil:
		upd = ListUpdate{}
	default:
		items, err := toItemSlice(incoming)
		if err != nil {
			return nil, err
		}
		upd = ListUpdate{Items: items}
	}

	if upd.Reset {
		current = nil
	}
	merged := make([]interface{}, 0, len(current)+len(upd.Items))
	merged = append(merged, current...)
	merged = append(merged, upd.Items...)
	return merged, nil
}

// toItemSlice normalizes a value into []interface{}.
func toItemSlice(v interface{}) ([]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if items, ok := v.([]interface{}); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, &NotAListError{Value: v}
	}
	items := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}

// isEmpty reports whether a value counts as empty for ReplaceIfNonEmpty.
func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
