package transform_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/plus3/scenetree/ecs"
	"github.com/plus3/scenetree/transform"
)

func newScene(t *testing.T) (*ecs.Storage, *ecs.Scheduler) {
	registry := ecs.NewComponentRegistry()
	transform.RegisterComponents(registry)
	storage := ecs.NewStorage(registry)
	scheduler := ecs.NewScheduler(storage)
	transform.Register(scheduler, storage, zaptest.NewLogger(t))
	return storage, scheduler
}

func step(t *testing.T, scheduler *ecs.Scheduler) {
	t.Helper()
	require.NoError(t, scheduler.Once(1.0/60))
}

func worldTranslation(t *testing.T, storage *ecs.Storage, ref *ecs.EntityRef) transform.Vec3 {
	t.Helper()
	m, ok := transform.WorldMatrix(storage, ref)
	require.True(t, ok, "entity has no world matrix")
	return m.Translation()
}

// countEntitiesWith counts live entities whose archetype stores the given
// component type.
func countEntitiesWith(storage *ecs.Storage, compType reflect.Type) int {
	count := 0
	for archetype := range storage.Archetypes {
		if !archetype.HasComponent(compType) {
			continue
		}
		for range archetype.Iter() {
			count++
		}
	}
	return count
}

func depthLevel(t *testing.T, storage *ecs.Storage, ref *ecs.EntityRef) int {
	t.Helper()
	id, ok := storage.ResolveEntityRef(ref)
	require.True(t, ok)
	tag := ecs.ReadComponent[transform.Depth](storage, id)
	require.NotNil(t, tag, "entity carries no depth tag")
	level, ok := ecs.SharedValue[int](storage, tag.Handle)
	require.True(t, ok)
	return level
}

func TestRootMatrixSeededInOneFrame(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 1, 2, 3)

	step(t, scheduler)

	assert.Equal(t, transform.Vec3{X: 1, Y: 2, Z: 3}, worldTranslation(t, storage, root))
}

func TestRootMoveRecomputed(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 1, 0, 0)
	step(t, scheduler)

	id, _ := storage.ResolveEntityRef(root)
	ecs.MutateComponent[transform.Position](storage, id).Value = transform.Vec3{X: 7, Y: 0, Z: 0}

	// The stale matrix survives until the next frame runs.
	assert.Equal(t, transform.Vec3{X: 1}, worldTranslation(t, storage, root))

	step(t, scheduler)
	assert.Equal(t, transform.Vec3{X: 7}, worldTranslation(t, storage, root))
}

func TestWorldMatrixAbsent(t *testing.T) {
	storage, scheduler := newScene(t)

	_, ok := transform.WorldMatrix(storage, nil)
	assert.False(t, ok)

	// An entity with no authoring components never gets a matrix.
	id := storage.Spawn(transform.Static{})
	bare := storage.CreateEntityRef(id)
	step(t, scheduler)

	_, ok = transform.WorldMatrix(storage, bare)
	assert.False(t, ok)
}

func TestAttachResolvedInOneFrame(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 1, 0, 0)
	child := spawnNode(storage, 0, 2, 0)
	transform.Attach(storage, root, child)

	step(t, scheduler)

	assert.Equal(t, transform.Vec3{X: 1, Y: 2}, worldTranslation(t, storage, child))

	childId, _ := storage.ResolveEntityRef(child)
	parent := ecs.ReadComponent[transform.Parent](storage, childId)
	require.NotNil(t, parent)
	assert.Same(t, root, parent.Value)

	state := transform.State(storage)
	assert.Equal(t, []*ecs.EntityRef{child}, state.Tracker.Children(root))

	// The request entity is consumed.
	assert.Zero(t, countEntitiesWith(storage, reflect.TypeFor[transform.PendingAttach]()))
}

func TestParentMovePropagates(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 1, 0, 0)
	child := spawnNode(storage, 0, 2, 0)
	transform.Attach(storage, root, child)
	step(t, scheduler)

	rootId, _ := storage.ResolveEntityRef(root)
	ecs.MutateComponent[transform.Position](storage, rootId).Value = transform.Vec3{X: 5}

	step(t, scheduler)

	assert.Equal(t, transform.Vec3{X: 5}, worldTranslation(t, storage, root))
	assert.Equal(t, transform.Vec3{X: 5, Y: 2}, worldTranslation(t, storage, child))
}

func TestChildMovePropagates(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 1, 0, 0)
	child := spawnNode(storage, 0, 2, 0)
	transform.Attach(storage, root, child)
	step(t, scheduler)

	childId, _ := storage.ResolveEntityRef(child)
	ecs.MutateComponent[transform.Position](storage, childId).Value = transform.Vec3{Y: 9}

	step(t, scheduler)
	assert.Equal(t, transform.Vec3{X: 1, Y: 9}, worldTranslation(t, storage, child))
}

func TestDeepChainDepthOrder(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 1, 0, 0)
	a := spawnNode(storage, 0, 1, 0)
	b := spawnNode(storage, 0, 0, 1)
	c := spawnNode(storage, 1, 1, 0)

	transform.Attach(storage, root, a)
	transform.Attach(storage, a, b)
	transform.Attach(storage, b, c)

	step(t, scheduler)

	assert.Equal(t, transform.Vec3{X: 1, Y: 1}, worldTranslation(t, storage, a))
	assert.Equal(t, transform.Vec3{X: 1, Y: 1, Z: 1}, worldTranslation(t, storage, b))
	assert.Equal(t, transform.Vec3{X: 2, Y: 2, Z: 1}, worldTranslation(t, storage, c))

	// Children of roots are level 0.
	assert.Equal(t, 0, depthLevel(t, storage, a))
	assert.Equal(t, 1, depthLevel(t, storage, b))

	// Moving the root reaches the deepest leaf on the next frame.
	rootId, _ := storage.ResolveEntityRef(root)
	ecs.MutateComponent[transform.Position](storage, rootId).Value = transform.Vec3{X: 10}
	step(t, scheduler)
	assert.Equal(t, transform.Vec3{X: 11, Y: 2, Z: 1}, worldTranslation(t, storage, c))
}

func TestRotationAndScalePropagate(t *testing.T) {
	storage, scheduler := newScene(t)

	rootId := storage.Spawn(
		transform.Position{},
		transform.Rotation{Value: transform.QuatAxisAngle(transform.Vec3{Z: 1}, 3.14159265/2)},
		transform.Scale{Value: transform.Vec3{X: 2, Y: 2, Z: 2}},
	)
	root := storage.CreateEntityRef(rootId)
	child := spawnNode(storage, 1, 0, 0)
	transform.Attach(storage, root, child)

	step(t, scheduler)

	// The child's local +X offset is scaled to 2 and rotated onto +Y.
	got := worldTranslation(t, storage, child)
	assert.InDelta(t, 0, got.X, matrixDelta)
	assert.InDelta(t, 2, got.Y, matrixDelta)
	assert.InDelta(t, 0, got.Z, matrixDelta)
}

func TestDetach(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 5, 0, 0)
	child := spawnNode(storage, 0, 1, 0)
	transform.Attach(storage, root, child)
	step(t, scheduler)

	transform.Detach(storage, child)
	step(t, scheduler)

	// The child computes as a root again, in the same frame the severance
	// resolves.
	assert.Equal(t, transform.Vec3{Y: 1}, worldTranslation(t, storage, child))

	childId, _ := storage.ResolveEntityRef(child)
	assert.Nil(t, ecs.ReadComponent[transform.Parent](storage, childId))
	assert.Nil(t, ecs.ReadComponent[transform.LocalToParent](storage, childId))

	rootId, _ := storage.ResolveEntityRef(root)
	assert.Nil(t, ecs.ReadComponent[transform.Depth](storage, rootId))
	assert.False(t, transform.State(storage).Tracker.HasChildren(root))
}

func TestReparent(t *testing.T) {
	storage, scheduler := newScene(t)
	p1 := spawnNode(storage, 10, 0, 0)
	p2 := spawnNode(storage, 0, 10, 0)
	child := spawnNode(storage, 1, 2, 3)
	transform.Attach(storage, p1, child)
	step(t, scheduler)
	assert.Equal(t, transform.Vec3{X: 11, Y: 2, Z: 3}, worldTranslation(t, storage, child))

	transform.Attach(storage, p2, child)
	step(t, scheduler)

	assert.Equal(t, transform.Vec3{X: 1, Y: 12, Z: 3}, worldTranslation(t, storage, child))

	childId, _ := storage.ResolveEntityRef(child)
	parent := ecs.ReadComponent[transform.Parent](storage, childId)
	require.NotNil(t, parent)
	assert.Same(t, p2, parent.Value)

	tracker := transform.State(storage).Tracker
	assert.False(t, tracker.HasChildren(p1))
	assert.Equal(t, []*ecs.EntityRef{child}, tracker.Children(p2))

	p1Id, _ := storage.ResolveEntityRef(p1)
	p2Id, _ := storage.ResolveEntityRef(p2)
	assert.Nil(t, ecs.ReadComponent[transform.Depth](storage, p1Id))
	assert.NotNil(t, ecs.ReadComponent[transform.Depth](storage, p2Id))
}

func TestSameFrameDetachAndReattach(t *testing.T) {
	storage, scheduler := newScene(t)
	p1 := spawnNode(storage, 10, 0, 0)
	p2 := spawnNode(storage, 0, 10, 0)
	child := spawnNode(storage, 1, 2, 3)
	sibling := spawnNode(storage, 4, 0, 0)
	transform.Attach(storage, p1, child)
	transform.Attach(storage, p1, sibling)
	step(t, scheduler)

	// Detach and re-attach in one frame. The sibling keeps p1's child
	// bucket alive, so a second edge removal would be a tracker desync.
	transform.Detach(storage, child)
	transform.Attach(storage, p2, child)
	step(t, scheduler)

	assert.Equal(t, transform.Vec3{X: 1, Y: 12, Z: 3}, worldTranslation(t, storage, child))

	childId, _ := storage.ResolveEntityRef(child)
	parent := ecs.ReadComponent[transform.Parent](storage, childId)
	require.NotNil(t, parent)
	assert.Same(t, p2, parent.Value)
	assert.True(t, storage.HasComponent(childId, reflect.TypeFor[transform.Attached]()))

	tracker := transform.State(storage).Tracker
	assert.Equal(t, []*ecs.EntityRef{sibling}, tracker.Children(p1))
	assert.Equal(t, []*ecs.EntityRef{child}, tracker.Children(p2))
}

func TestSameFrameDetachAndReattachOnlyChild(t *testing.T) {
	storage, scheduler := newScene(t)
	p1 := spawnNode(storage, 10, 0, 0)
	p2 := spawnNode(storage, 0, 10, 0)
	child := spawnNode(storage, 1, 2, 3)
	transform.Attach(storage, p1, child)
	step(t, scheduler)

	transform.Detach(storage, child)
	transform.Attach(storage, p2, child)
	step(t, scheduler)

	assert.Equal(t, transform.Vec3{X: 1, Y: 12, Z: 3}, worldTranslation(t, storage, child))

	// The back-reference must survive the move and agree with the tracker.
	childId, _ := storage.ResolveEntityRef(child)
	parent := ecs.ReadComponent[transform.Parent](storage, childId)
	require.NotNil(t, parent)
	assert.Same(t, p2, parent.Value)
	assert.True(t, storage.HasComponent(childId, reflect.TypeFor[transform.Attached]()))

	tracker := transform.State(storage).Tracker
	assert.False(t, tracker.HasChildren(p1))
	assert.Equal(t, []*ecs.EntityRef{child}, tracker.Children(p2))

	p1Id, _ := storage.ResolveEntityRef(p1)
	assert.Nil(t, ecs.ReadComponent[transform.Depth](storage, p1Id))
}

func TestReattachToSameParentKeepsDepth(t *testing.T) {
	storage, scheduler := newScene(t)
	p := spawnNode(storage, 10, 0, 0)
	child := spawnNode(storage, 1, 0, 0)
	transform.Attach(storage, p, child)
	step(t, scheduler)

	// A redundant attach to the current parent must not strip the tag.
	transform.Attach(storage, p, child)
	step(t, scheduler)

	pId, _ := storage.ResolveEntityRef(p)
	assert.NotNil(t, ecs.ReadComponent[transform.Depth](storage, pId))
	assert.Equal(t, []*ecs.EntityRef{child}, transform.State(storage).Tracker.Children(p))
	assert.Equal(t, transform.Vec3{X: 11}, worldTranslation(t, storage, child))
}

func TestSameFrameDoubleAttach(t *testing.T) {
	storage, scheduler := newScene(t)
	p1 := spawnNode(storage, 10, 0, 0)
	p2 := spawnNode(storage, 0, 5, 0)
	child := spawnNode(storage, 1, 0, 0)

	// Two requests for the same child in one frame; the last one wins.
	transform.Attach(storage, p1, child)
	transform.Attach(storage, p2, child)

	step(t, scheduler)

	childId, _ := storage.ResolveEntityRef(child)
	parent := ecs.ReadComponent[transform.Parent](storage, childId)
	require.NotNil(t, parent)
	assert.Same(t, p2, parent.Value)

	tracker := transform.State(storage).Tracker
	assert.False(t, tracker.HasChildren(p1))
	assert.Equal(t, []*ecs.EntityRef{child}, tracker.Children(p2))

	assert.Equal(t, transform.Vec3{X: 1, Y: 5}, worldTranslation(t, storage, child))
}

func TestSelfAttachDropped(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 1, 0, 0)
	transform.Attach(storage, root, root)

	step(t, scheduler)

	id, _ := storage.ResolveEntityRef(root)
	assert.Nil(t, ecs.ReadComponent[transform.Parent](storage, id))
	assert.False(t, transform.State(storage).Tracker.HasChildren(root))
	assert.Equal(t, transform.Vec3{X: 1}, worldTranslation(t, storage, root))
}

func TestAttachToDeletedParentDropped(t *testing.T) {
	storage, scheduler := newScene(t)
	parent := spawnNode(storage, 1, 0, 0)
	child := spawnNode(storage, 0, 2, 0)
	transform.Attach(storage, parent, child)

	id, _ := storage.ResolveEntityRef(parent)
	storage.Delete(id)

	step(t, scheduler)

	childId, _ := storage.ResolveEntityRef(child)
	assert.Nil(t, ecs.ReadComponent[transform.Parent](storage, childId))
	assert.Equal(t, transform.Vec3{Y: 2}, worldTranslation(t, storage, child))
}

func TestQuiescentFramesKeepMatricesBitwise(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 1.5, -2.25, 3.125)
	child := spawnNode(storage, 0.5, 0.5, 0.5)
	transform.Attach(storage, root, child)
	step(t, scheduler)

	rootWorld, ok := transform.WorldMatrix(storage, root)
	require.True(t, ok)
	childWorld, ok := transform.WorldMatrix(storage, child)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		step(t, scheduler)
	}

	after, _ := transform.WorldMatrix(storage, root)
	assert.Equal(t, rootWorld, after)
	after, _ = transform.WorldMatrix(storage, child)
	assert.Equal(t, childWorld, after)
}

func TestOrphanedMatrixRemoved(t *testing.T) {
	storage, scheduler := newScene(t)
	root := spawnNode(storage, 1, 0, 0)
	step(t, scheduler)

	id, _ := storage.ResolveEntityRef(root)
	storage.RemoveComponent(id, reflect.TypeFor[transform.Position]())

	step(t, scheduler)

	// Stripping the cached matrix removed the entity's last component, so
	// the entity itself is gone.
	_, ok := transform.WorldMatrix(storage, root)
	assert.False(t, ok)
	assert.False(t, root.Alive())
}

func TestFreezeTimeline(t *testing.T) {
	storage, scheduler := newScene(t)
	id := storage.Spawn(
		transform.Position{Value: transform.Vec3{X: 1}},
		transform.Static{},
	)
	root := storage.CreateEntityRef(id)

	// Frame 1: the matrix is computed and the entity is owed one more
	// update before freezing.
	step(t, scheduler)
	id, _ = storage.ResolveEntityRef(root)
	assert.NotNil(t, ecs.ReadComponent[transform.PendingFrozen](storage, id))
	assert.Nil(t, ecs.ReadComponent[transform.Frozen](storage, id))
	assert.Equal(t, transform.Vec3{X: 1}, worldTranslation(t, storage, root))

	// Frame 2: frozen before the compute stages run.
	step(t, scheduler)
	id, _ = storage.ResolveEntityRef(root)
	assert.NotNil(t, ecs.ReadComponent[transform.Frozen](storage, id))

	frozenWorld, ok := transform.WorldMatrix(storage, root)
	require.True(t, ok)

	// Writes to a frozen entity's authoring components change nothing.
	ecs.MutateComponent[transform.Position](storage, id).Value = transform.Vec3{X: 99}
	step(t, scheduler)
	step(t, scheduler)

	after, ok := transform.WorldMatrix(storage, root)
	require.True(t, ok)
	assert.Equal(t, frozenWorld, after)
}

func TestThaw(t *testing.T) {
	storage, scheduler := newScene(t)
	id := storage.Spawn(
		transform.Position{Value: transform.Vec3{X: 1}},
		transform.Static{},
	)
	root := storage.CreateEntityRef(id)
	for i := 0; i < 3; i++ {
		step(t, scheduler)
	}
	id, _ = storage.ResolveEntityRef(root)
	require.NotNil(t, ecs.ReadComponent[transform.Frozen](storage, id))

	// Revoke Static and move; the entity thaws and recomputes in one frame.
	storage.RemoveComponent(id, reflect.TypeFor[transform.Static]())
	id, _ = storage.ResolveEntityRef(root)
	ecs.MutateComponent[transform.Position](storage, id).Value = transform.Vec3{X: 42}

	step(t, scheduler)

	id, _ = storage.ResolveEntityRef(root)
	assert.Nil(t, ecs.ReadComponent[transform.Frozen](storage, id))
	assert.Nil(t, ecs.ReadComponent[transform.PendingFrozen](storage, id))
	assert.Equal(t, transform.Vec3{X: 42}, worldTranslation(t, storage, root))
}

func TestThawWhilePendingCounted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	registry := ecs.NewComponentRegistry()
	transform.RegisterComponents(registry)
	storage := ecs.NewStorage(registry)
	scheduler := ecs.NewScheduler(storage)
	transform.Register(scheduler, storage, zap.New(core))

	id := storage.Spawn(
		transform.Position{Value: transform.Vec3{X: 1}},
		transform.Static{},
	)
	root := storage.CreateEntityRef(id)
	step(t, scheduler)

	id, _ = storage.ResolveEntityRef(root)
	require.NotNil(t, ecs.ReadComponent[transform.PendingFrozen](storage, id))

	// Static revoked before the entity ever reaches Frozen.
	storage.RemoveComponent(id, reflect.TypeFor[transform.Static]())
	step(t, scheduler)

	id, _ = storage.ResolveEntityRef(root)
	assert.Nil(t, ecs.ReadComponent[transform.PendingFrozen](storage, id))

	entries := logs.FilterMessage("freeze transitions").All()
	require.NotEmpty(t, entries)
	fields := entries[len(entries)-1].ContextMap()
	assert.EqualValues(t, 0, fields["thawed"])
	assert.EqualValues(t, 1, fields["unpended"])
}

func TestCyclicHierarchyFailsFrame(t *testing.T) {
	storage, scheduler := newScene(t)
	a := spawnNode(storage, 1, 0, 0)
	b := spawnNode(storage, 2, 0, 0)
	transform.Attach(storage, a, b)
	step(t, scheduler)

	// Corrupting the chain into a cycle must fail the frame, not hang it.
	transform.Attach(storage, b, a)
	err := scheduler.Once(1.0 / 60)
	assert.ErrorIs(t, err, transform.ErrCyclicHierarchy)
}

func TestTrackerDesyncFailsFrame(t *testing.T) {
	storage, scheduler := newScene(t)
	parent := spawnNode(storage, 0, 0, 0)
	c1 := spawnNode(storage, 1, 0, 0)
	c2 := spawnNode(storage, 2, 0, 0)
	transform.Attach(storage, parent, c1)
	transform.Attach(storage, parent, c2)
	step(t, scheduler)

	// Drop c1's edge behind the resolver's back. Its bucket still exists
	// because c2 remains, so the next detach observes the inconsistency.
	tracker := transform.State(storage).Tracker
	require.NoError(t, tracker.RemoveEdge(parent, c1))

	transform.Detach(storage, c1)
	err := scheduler.Once(1.0 / 60)
	assert.ErrorIs(t, err, transform.ErrEdgeNotFound)
}
