package ecs_test

import (
	"reflect"
	"testing"

	"github.com/plus3/scenetree/ecs"
	"github.com/stretchr/testify/assert"
)

func TestViewGet(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Translation{X: 1.0, Y: 2.0}, &Spin{Speed: 0.5})

	view := ecs.NewView[struct {
		*Translation
		*Spin
	}](storage)

	result := view.Get(id)
	assert.NotNil(t, result)
	assert.Equal(t, float32(1.0), result.Translation.X)
	assert.Equal(t, float32(0.5), result.Spin.Speed)
}

func TestViewMissingComponent(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Translation{X: 1.0})

	view := ecs.NewView[struct {
		*Translation
		*Spin
	}](storage)

	assert.Nil(t, view.Get(id))
}

func TestViewFill(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Translation{X: 3.0}, Label{Value: "door"})

	view := ecs.NewView[struct {
		*Translation
		*Label
	}](storage)

	var row struct {
		*Translation
		*Label
	}
	assert.True(t, view.Fill(id, &row))
	assert.Equal(t, float32(3.0), row.Translation.X)
	assert.Equal(t, "door", row.Label.Value)

	assert.False(t, view.Fill(ecs.NewEntityId(1234, 0), &row))
}

func TestViewComponentMutation(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	id := storage.Spawn(&Translation{X: 1.0})

	view := ecs.NewView[struct {
		*Translation
	}](storage)

	view.Get(id).Translation.X = 42.0

	trans := storage.GetComponent(id, reflect.TypeOf(Translation{})).(*Translation)
	assert.Equal(t, float32(42.0), trans.X)
}

func TestViewIterMultipleArchetypes(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	storage.Spawn(&Translation{X: 1.0})
	storage.Spawn(&Translation{X: 2.0}, &Spin{Speed: 0.1})
	storage.Spawn(&Translation{X: 3.0}, Label{Value: "x"})
	storage.Spawn(&Spin{Speed: 0.9})

	view := ecs.NewView[struct {
		*Translation
	}](storage)

	var sum float32
	count := 0
	for _, row := range view.Iter() {
		sum += row.Translation.X
		count++
	}

	assert.Equal(t, 3, count)
	assert.Equal(t, float32(6.0), sum)
}

func TestViewOptionalComponent(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	withSpin := storage.Spawn(&Translation{X: 1.0}, &Spin{Speed: 0.5})
	withoutSpin := storage.Spawn(&Translation{X: 2.0})

	view := ecs.NewView[struct {
		Translation *Translation
		Spin        *Spin `ecs:"optional"`
	}](storage)

	row := view.Get(withSpin)
	assert.NotNil(t, row)
	assert.NotNil(t, row.Spin)
	assert.Equal(t, float32(0.5), row.Spin.Speed)

	row = view.Get(withoutSpin)
	assert.NotNil(t, row)
	assert.Nil(t, row.Spin)
	assert.Equal(t, float32(2.0), row.Translation.X)
}

func TestViewExcludeComponent(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	plain := storage.Spawn(&Translation{X: 1.0})
	culled := storage.Spawn(&Translation{X: 2.0}, Culled{})

	view := ecs.NewView[struct {
		Translation *Translation
		Culled      *Culled `ecs:"exclude"`
	}](storage)

	// Entities carrying the excluded component never match
	assert.NotNil(t, view.Get(plain))
	assert.Nil(t, view.Get(culled))

	count := 0
	for id, row := range view.Iter() {
		assert.Equal(t, plain, id)
		assert.Nil(t, row.Culled)
		count++
	}
	assert.Equal(t, 1, count)
}

func TestViewExcludeCombinedWithOptional(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	storage.Spawn(&Translation{X: 1.0})
	storage.Spawn(&Translation{X: 2.0}, &Spin{Speed: 0.5})
	storage.Spawn(&Translation{X: 3.0}, Culled{})
	storage.Spawn(&Translation{X: 4.0}, &Spin{Speed: 0.7}, Culled{})

	view := ecs.NewView[struct {
		Translation *Translation
		Spin        *Spin   `ecs:"optional"`
		Culled      *Culled `ecs:"exclude"`
	}](storage)

	var xs []float32
	for _, row := range view.Iter() {
		xs = append(xs, row.Translation.X)
	}

	assert.ElementsMatch(t, []float32{1.0, 2.0}, xs)
}

func TestViewReadonlyDoesNotStamp(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	transType := reflect.TypeOf(Translation{})
	spinType := reflect.TypeOf(Spin{})

	storage.Spawn(&Translation{X: 1.0}, &Spin{Speed: 0.5})
	archetype := storage.GetArchetype(Translation{}, Spin{})
	spawnStamp := archetype.ComponentVersion(transType)

	storage.BumpVersion()

	view := ecs.NewView[struct {
		Translation *Translation `ecs:"readonly"`
		Spin        *Spin
	}](storage)
	for range view.Iter() {
	}

	// Iteration records write intent on the writable field only
	assert.Equal(t, spawnStamp, archetype.ComponentVersion(transType))
	assert.Equal(t, storage.Version(), archetype.ComponentVersion(spinType))
}

func TestViewInvalidTag(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	assert.Panics(t, func() {
		ecs.NewView[struct {
			Translation *Translation `ecs:"writable"`
		}](storage)
	})
}

func TestViewIterEarlyBreak(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	for i := range 10 {
		storage.Spawn(&Translation{X: float32(i)})
	}

	view := ecs.NewView[struct {
		*Translation
	}](storage)

	count := 0
	for range view.Iter() {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestViewIterWithDeletedEntities(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	ids := make([]ecs.EntityId, 5)
	for i := range 5 {
		ids[i] = storage.Spawn(&Translation{X: float32(i)})
	}
	storage.Delete(ids[1])
	storage.Delete(ids[3])

	view := ecs.NewView[struct {
		*Translation
	}](storage)

	var xs []float32
	for _, row := range view.Iter() {
		xs = append(xs, row.Translation.X)
	}
	assert.ElementsMatch(t, []float32{0, 2, 4}, xs)
}

func TestViewSpawn(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	view := ecs.NewView[struct {
		Translation *Translation
		Spin        *Spin `ecs:"optional"`
	}](storage)

	full := view.Spawn(struct {
		Translation *Translation
		Spin        *Spin `ecs:"optional"`
	}{
		Translation: &Translation{X: 1.0},
		Spin:        &Spin{Speed: 2.0},
	})

	partial := view.Spawn(struct {
		Translation *Translation
		Spin        *Spin `ecs:"optional"`
	}{
		Translation: &Translation{X: 3.0},
	})

	assert.True(t, storage.HasComponent(full, reflect.TypeOf(Spin{})))
	assert.False(t, storage.HasComponent(partial, reflect.TypeOf(Spin{})))
	assert.Equal(t, float32(3.0), storage.GetComponent(partial, reflect.TypeOf(Translation{})).(*Translation).X)
}

func TestViewSpawnNilRequiredComponentPanics(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	view := ecs.NewView[struct {
		Translation *Translation
	}](storage)

	assert.Panics(t, func() {
		view.Spawn(struct {
			Translation *Translation
		}{})
	})
}

func TestViewSpawnCompatibleWithStorageSpawn(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())

	view := ecs.NewView[struct {
		Translation *Translation
		Spin        *Spin
	}](storage)

	viewId := view.Spawn(struct {
		Translation *Translation
		Spin        *Spin
	}{
		Translation: &Translation{X: 1.0},
		Spin:        &Spin{Speed: 2.0},
	})

	storageId := storage.Spawn(&Translation{X: 3.0}, &Spin{Speed: 4.0})

	// Both spawn paths land in the same archetype
	assert.Equal(t, viewId.ArchetypeId(), storageId.ArchetypeId())
}
