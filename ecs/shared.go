package ecs

import "reflect"

// SharedHandle identifies an interned shared value. Handles are dense,
// stable for the lifetime of the storage, and comparable in O(1), which is
// what makes them usable as grouping tags on many entities without storing
// the value per entity.
type SharedHandle int32

// NilSharedHandle is the zero handle; no interned value ever maps to it.
const NilSharedHandle SharedHandle = 0

// sharedIndex interns values per type. Handles are allocated from a single
// counter across all types so a handle never collides between types.
type sharedIndex struct {
	byValue map[reflect.Type]map[any]SharedHandle
	values  map[SharedHandle]any
	next    SharedHandle
}

func newSharedIndex() *sharedIndex {
	return &sharedIndex{
		byValue: make(map[reflect.Type]map[any]SharedHandle),
		values:  make(map[SharedHandle]any),
	}
}

// InternShared returns the stable handle for the given value, interning it
// on first sight. Two calls with equal values always return the same handle.
func InternShared[T comparable](s *Storage, value T) SharedHandle {
	t := reflect.TypeFor[T]()
	byValue, ok := s.shared.byValue[t]
	if !ok {
		byValue = make(map[any]SharedHandle)
		s.shared.byValue[t] = byValue
	}

	if handle, ok := byValue[value]; ok {
		return handle
	}

	s.shared.next++
	handle := s.shared.next
	byValue[value] = handle
	s.shared.values[handle] = value
	return handle
}

// SharedValue resolves a handle back to its interned value. The boolean is
// false when the handle was never interned or holds a different type.
func SharedValue[T comparable](s *Storage, handle SharedHandle) (T, bool) {
	v, ok := s.shared.values[handle]
	if !ok {
		var zero T
		return zero, false
	}
	value, ok := v.(T)
	return value, ok
}
