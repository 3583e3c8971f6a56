// Package transform maintains a scene hierarchy of positioned entities and
// propagates local transforms into world-space matrices every frame.
//
// The pipeline runs in four stages per frame, separated by command-flush
// barriers: the attach/detach resolver mutates structure, the depth
// classifier re-tags affected subtrees, the freeze state machine retires
// provably static entities, and the compute systems rebuild LocalToWorld
// matrices parent-before-child. See Register for the wiring.
package transform

import (
	"github.com/plus3/scenetree/ecs"
)

// Position is the local translation authored on an entity. Read-only to this
// package.
type Position struct {
	Value Vec3
}

// Rotation is the local orientation authored on an entity. Read-only to this
// package.
type Rotation struct {
	Value Quat
}

// Scale is the local axis-aligned scale authored on an entity. Read-only to
// this package.
type Scale struct {
	Value Vec3
}

// Parent is the back-reference from a child to its parent. The resolver is
// its sole writer; the mirror parent→child edge lives in the Hierarchy
// tracker and the two are kept consistent within one frame.
type Parent struct {
	Value *ecs.EntityRef
}

// PendingAttach is a one-shot request carried by its own request entity:
// "make Child a child of Parent". The resolver consumes the request and
// destroys the request entity in the frame it is observed.
type PendingAttach struct {
	Parent *ecs.EntityRef
	Child  *ecs.EntityRef
}

// Attached marks an entity whose attach request has been resolved. An entity
// carrying Parent without Attached has been explicitly severed and is
// detached on the next resolver pass.
type Attached struct{}

// Depth tags an entity that has children with its interned hierarchy level.
// Children of roots are level 0. Roots seeded by an attach keep a level-0
// tag; they are never consulted by the depth-ordered inner pass, which
// requires Parent.
type Depth struct {
	Handle ecs.SharedHandle
}

// LocalToParent is the cached local matrix of a parented entity, relative to
// its parent's space. Written by the compute engine only.
type LocalToParent struct {
	Value Mat4
}

// LocalToWorld is the cached world matrix. Written by the compute engine;
// stable for any entity carrying Frozen.
type LocalToWorld struct {
	Value Mat4
}

// Static is the authoring hint that an entity will not move. It admits the
// entity to the freeze state machine; revoking it thaws the entity.
type Static struct{}

// PendingFrozen marks a static entity that is owed one final transform
// update before it freezes.
type PendingFrozen struct{}

// Frozen marks an entity whose world matrix will not change again until
// Static is revoked. Frozen entities are excluded from every compute query.
type Frozen struct{}

// RegisterComponents registers every component type this package stores.
// Call it on the registry before creating the storage.
func RegisterComponents(r *ecs.ComponentRegistry) {
	ecs.RegisterComponent[Position](r)
	ecs.RegisterComponent[Rotation](r)
	ecs.RegisterComponent[Scale](r)
	ecs.RegisterComponent[Parent](r)
	ecs.RegisterComponent[PendingAttach](r)
	ecs.RegisterComponent[Attached](r)
	ecs.RegisterComponent[Depth](r)
	ecs.RegisterComponent[LocalToParent](r)
	ecs.RegisterComponent[LocalToWorld](r)
	ecs.RegisterComponent[Static](r)
	ecs.RegisterComponent[PendingFrozen](r)
	ecs.RegisterComponent[Frozen](r)
}

// Attach queues an attach request making child a child of parent. The
// request is resolved, and the request entity destroyed, by the next
// resolver pass.
func Attach(storage *ecs.Storage, parent, child *ecs.EntityRef) {
	storage.Spawn(PendingAttach{Parent: parent, Child: child})
}

// Detach severs an attached entity from its parent by dropping the Attached
// marker; the next resolver pass removes the edge, Parent and LocalToParent.
func Detach(storage *ecs.Storage, child *ecs.EntityRef) {
	id, ok := storage.ResolveEntityRef(child)
	if !ok {
		return
	}
	storage.RemoveComponent(id, typeAttached)
}
