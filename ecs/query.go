package ecs

import (
	"iter"
	"reflect"
	"unsafe"
)

// Query wraps a View with caching optimizations for repeated iteration.
// Queries cache matching archetypes and pre-build entity/component arrays per
// frame. Each cached batch keeps the change stamps of the filtered component
// types so IterChanged can skip batches untouched since a recorded version.
type Query[T any] struct {
	view               *View[T]
	storage            *Storage
	cachedArchetypes   []*Archetype
	lastArchetypeCount int

	cachedEntities   []EntityId
	cachedComponents []T
	spans            []batchSpan
	changeFilter     []reflect.Type
	cacheValid       bool
}

// batchSpan is the slice of the row caches contributed by one archetype,
// together with the highest change stamp of the filtered types at Execute
// time.
type batchSpan struct {
	start, end int
	maxVersion uint32
}

// NewQuery creates a new Query with archetype-level caching.
func NewQuery[T any](storage *Storage) *Query[T] {
	return &Query[T]{
		view:               NewView[T](storage),
		storage:            storage,
		lastArchetypeCount: -1,
	}
}

// Init initializes or re-initializes the Query with a storage.
// Called by the Scheduler during system registration.
func (q *Query[T]) Init(storage *Storage) {
	q.view = NewView[T](storage)
	q.storage = storage
	q.lastArchetypeCount = -1
	q.cacheValid = false
}

// SetChangeFilter declares the component types whose change stamps gate
// IterChanged. With no filter set, IterChanged behaves like Iter.
func (q *Query[T]) SetChangeFilter(types ...reflect.Type) {
	q.changeFilter = types
}

func (q *Query[T]) iterArchetype(archetype *Archetype) iter.Seq2[EntityId, T] {
	return func(yield func(EntityId, T) bool) {
		if len(archetype.storages) == 0 {
			return
		}

		storageIndices := q.view.buildStorageIndices(archetype)
		firstStorage := archetype.storages[0]

		var result T
		resultPtr := unsafe.Pointer(&result)

		for entityIndex := range firstStorage.Iter() {
			if !q.view.populateResult(resultPtr, archetype, entityIndex, storageIndices) {
				continue
			}

			entityId := NewEntityId(archetype.id, uint32(entityIndex))
			if !yield(entityId, result) {
				return
			}
		}
	}
}

// Execute builds the entity and component caches for this frame.
// Called automatically by the Scheduler before the owning system runs.
func (q *Query[T]) Execute() {
	q.invalidateIfNeeded()
	q.ensureArchetypeCache()

	q.cachedEntities = q.cachedEntities[:0]
	q.cachedComponents = q.cachedComponents[:0]
	q.spans = q.spans[:0]

	for _, archetype := range q.cachedArchetypes {
		start := len(q.cachedEntities)
		maxVersion := q.batchVersion(archetype)

		for id, item := range q.iterArchetype(archetype) {
			q.cachedEntities = append(q.cachedEntities, id)
			q.cachedComponents = append(q.cachedComponents, item)
		}

		if end := len(q.cachedEntities); end > start {
			q.spans = append(q.spans, batchSpan{start: start, end: end, maxVersion: maxVersion})
			q.view.stampWriteIntent(archetype)
		}
	}

	q.cacheValid = true
}

// batchVersion is the highest stamp among the filtered types in the
// archetype, taken before this query's own write intent is recorded.
func (q *Query[T]) batchVersion(archetype *Archetype) uint32 {
	var maxVersion uint32
	for _, typ := range q.changeFilter {
		if v := archetype.ComponentVersion(typ); v > maxVersion {
			maxVersion = v
		}
	}
	return maxVersion
}

func (q *Query[T]) invalidateCache() {
	q.cacheValid = false
}

func (q *Query[T]) invalidateIfNeeded() {
	currentCount := len(q.storage.archetypes)
	if currentCount != q.lastArchetypeCount {
		q.cachedArchetypes = nil
		q.lastArchetypeCount = currentCount
	}
}

func (q *Query[T]) ensureArchetypeCache() {
	if q.cachedArchetypes != nil {
		return
	}

	q.cachedArchetypes = make([]*Archetype, 0)
	for _, archetype := range q.storage.archetypes {
		if q.view.matchesArchetype(archetype) {
			q.cachedArchetypes = append(q.cachedArchetypes, archetype)
		}
	}
}

// Iter returns an iterator over entity IDs and component data.
// Panics if Execute() has not been called this frame.
func (q *Query[T]) Iter() iter.Seq2[EntityId, T] {
	if !q.cacheValid {
		panic("Query.Iter() called before Query.Execute()")
	}

	return func(yield func(EntityId, T) bool) {
		for i := range q.cachedEntities {
			if !yield(q.cachedEntities[i], q.cachedComponents[i]) {
				return
			}
		}
	}
}

// IterChanged iterates only the rows of batches whose filtered component
// types were stamped after the given version. Batches the change filter
// proves untouched are skipped wholesale.
// Panics if Execute() has not been called this frame.
func (q *Query[T]) IterChanged(since uint32) iter.Seq2[EntityId, T] {
	if !q.cacheValid {
		panic("Query.IterChanged() called before Query.Execute()")
	}

	return func(yield func(EntityId, T) bool) {
		for _, span := range q.spans {
			if len(q.changeFilter) > 0 && span.maxVersion <= since {
				continue
			}
			for i := span.start; i < span.end; i++ {
				if !yield(q.cachedEntities[i], q.cachedComponents[i]) {
					return
				}
			}
		}
	}
}

// Values returns an iterator over component data only.
// Panics if Execute() has not been called this frame.
func (q *Query[T]) Values() iter.Seq[T] {
	if !q.cacheValid {
		panic("Query.Values() called before Query.Execute()")
	}

	return func(yield func(T) bool) {
		for i := range q.cachedComponents {
			if !yield(q.cachedComponents[i]) {
				return
			}
		}
	}
}
