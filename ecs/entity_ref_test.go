package ecs_test

import (
	"reflect"
	"testing"

	"github.com/plus3/scenetree/ecs"
	"github.com/stretchr/testify/assert"
)

func TestEntityRefBasicLifecycle(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Translation{X: 1.0})
	ref := storage.CreateEntityRef(id)
	assert.NotNil(t, ref)
	assert.True(t, ref.Alive())

	resolved, ok := storage.ResolveEntityRef(ref)
	assert.True(t, ok)
	assert.Equal(t, id, resolved)

	storage.Delete(id)

	assert.False(t, ref.Alive())
	_, ok = storage.ResolveEntityRef(ref)
	assert.False(t, ok)
}

func TestEntityRefDeduplication(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Translation{X: 1.0})
	ref1 := storage.CreateEntityRef(id)
	ref2 := storage.CreateEntityRef(id)

	// The same entity always yields the same ref instance
	assert.Same(t, ref1, ref2)
	assert.Equal(t, ref1.Seq, ref2.Seq)
}

func TestEntityRefStabilityAcrossMoves(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Translation{X: 1.0})
	ref := storage.CreateEntityRef(id)
	seq := ref.Seq

	// Archetype moves rewrite Id in place but never Seq
	newId := storage.AddComponent(id, &Spin{Speed: 1.0})
	assert.NotEqual(t, id, newId)
	assert.Equal(t, newId, ref.Id)
	assert.Equal(t, seq, ref.Seq)

	newId2 := storage.RemoveComponent(newId, reflect.TypeOf(Spin{}))
	assert.Equal(t, newId2, ref.Id)
	assert.Equal(t, seq, ref.Seq)

	// The dedup map follows the entity to its new archetype
	assert.Same(t, ref, storage.CreateEntityRef(newId2))
}

func TestEntityRefSeqUnique(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	seen := make(map[uint64]bool)
	for i := range 100 {
		id := storage.Spawn(&Translation{X: float32(i)})
		ref := storage.CreateEntityRef(id)
		assert.False(t, seen[ref.Seq], "Seq values must be unique")
		seen[ref.Seq] = true
	}
}

func TestEntityRefInvalidation(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Translation{X: 1.0})
	ref := storage.CreateEntityRef(id)

	assert.True(t, storage.InvalidateEntityRef(ref))
	assert.False(t, ref.Alive())

	// Second invalidation is a no-op
	assert.False(t, storage.InvalidateEntityRef(ref))

	// A fresh ref for the same entity gets a new Seq
	ref2 := storage.CreateEntityRef(id)
	assert.NotNil(t, ref2)
	assert.NotEqual(t, ref.Seq, ref2.Seq)
}

func TestResolveNilEntityRef(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	_, ok := storage.ResolveEntityRef(nil)
	assert.False(t, ok)

	var nilRef *ecs.EntityRef
	assert.False(t, nilRef.Alive())
}
