package transform

import (
	"go.uber.org/zap"

	"github.com/plus3/scenetree/ecs"
)

// Register wires the whole pipeline into the scheduler, in dependency order
// with command-flush barriers between the structural stages:
//
//	resolver, barrier, depth classifier, barrier, freeze, barrier,
//	roots, local-to-parent, inner tree, leaves
//
// Authoring systems that write Position, Rotation or Scale must be
// registered before calling Register, or their writes are picked up one
// frame late by the change gates. A nil logger disables logging.
func Register(scheduler *ecs.Scheduler, storage *ecs.Storage, logger *zap.Logger) {
	ecs.NewSingleton(storage, HierarchyState{Tracker: NewHierarchy()})

	scheduler.Register(NewResolveSystem(logger))
	scheduler.RegisterBarrier()
	scheduler.Register(NewDepthSystem(logger))
	scheduler.RegisterBarrier()
	scheduler.Register(NewFreezeSystem(logger))
	scheduler.RegisterBarrier()
	scheduler.Register(NewRootTransformSystem())
	scheduler.Register(NewLocalToParentSystem())
	scheduler.Register(NewInnerTransformSystem())
	scheduler.Register(NewLeafTransformSystem())
}

// State returns the hierarchy singleton, creating it (with an empty tracker)
// on first access. Useful for inspection tooling and tests.
func State(storage *ecs.Storage) *HierarchyState {
	return ecs.NewSingleton(storage, HierarchyState{Tracker: NewHierarchy()}).Get()
}

// WorldMatrix reads an entity's current world matrix. The second return is
// false when the entity is gone or carries no LocalToWorld. The matrix of a
// Frozen entity is guaranteed stable until the entity thaws.
func WorldMatrix(storage *ecs.Storage, ref *ecs.EntityRef) (Mat4, bool) {
	id, ok := storage.ResolveEntityRef(ref)
	if !ok {
		return Mat4{}, false
	}
	ltw := ecs.ReadComponent[LocalToWorld](storage, id)
	if ltw == nil {
		return Mat4{}, false
	}
	return ltw.Value, true
}
