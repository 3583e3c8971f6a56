package transform

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/plus3/scenetree/ecs"
)

// The compute stages run every frame in a fixed order: roots, local-to-parent,
// inner tree in ascending depth, leaves. Roots and local-to-parent are
// change-gated per batch on the authoring inputs; the two propagation stages
// are gated globally, because a parent's movement must never be hidden from a
// child batch whose own inputs were untouched.

// RootTransformSystem rebuilds LocalToWorld for entities without a Parent
// directly from whichever authoring components are present.
type RootTransformSystem struct {
	Roots ecs.Query[struct {
		LocalToWorld *LocalToWorld
		Position     *Position `ecs:"optional,readonly"`
		Rotation     *Rotation `ecs:"optional,readonly"`
		Scale        *Scale    `ecs:"optional,readonly"`
		Parent       *Parent   `ecs:"exclude"`
		Frozen       *Frozen   `ecs:"exclude"`
	}]

	lastVersion uint32
}

// NewRootTransformSystem creates the root pass.
func NewRootTransformSystem() *RootTransformSystem {
	s := &RootTransformSystem{}
	s.Roots.SetChangeFilter(typePosition, typeRotation, typeScale)
	return s
}

func (s *RootTransformSystem) Execute(frame *ecs.UpdateFrame) error {
	for _, row := range s.Roots.IterChanged(s.lastVersion) {
		if row.Position == nil && row.Rotation == nil && row.Scale == nil {
			continue
		}
		row.LocalToWorld.Value = Compose(row.Position, row.Rotation, row.Scale)
	}
	s.lastVersion = frame.Storage.Version()
	return nil
}

// LocalToParentSystem rebuilds the cached parent-relative matrix for every
// parented entity, inner node or leaf. No parent multiplication happens
// here; the propagation stages consume the result.
type LocalToParentSystem struct {
	Nodes ecs.Query[struct {
		LocalToParent *LocalToParent
		Parent        *Parent   `ecs:"readonly"`
		Position      *Position `ecs:"optional,readonly"`
		Rotation      *Rotation `ecs:"optional,readonly"`
		Scale         *Scale    `ecs:"optional,readonly"`
		Frozen        *Frozen   `ecs:"exclude"`
	}]

	lastVersion uint32
}

// NewLocalToParentSystem creates the local-to-parent pass.
func NewLocalToParentSystem() *LocalToParentSystem {
	s := &LocalToParentSystem{}
	s.Nodes.SetChangeFilter(typePosition, typeRotation, typeScale)
	return s
}

func (s *LocalToParentSystem) Execute(frame *ecs.UpdateFrame) error {
	for _, row := range s.Nodes.IterChanged(s.lastVersion) {
		if row.Position == nil && row.Rotation == nil && row.Scale == nil {
			continue
		}
		row.LocalToParent.Value = Compose(row.Position, row.Rotation, row.Scale)
	}
	s.lastVersion = frame.Storage.Version()
	return nil
}

// propagationTypes gates the two propagation stages: any authoring write,
// reparent or archetype move an entity takes part in stamps one of these.
// LocalToParent and Depth are deliberately absent: every path that changes
// them also stamps Parent or an authoring type, and the compute queries
// write-stamp LocalToParent themselves, which would otherwise defeat the
// gate.
var propagationTypes = []reflect.Type{
	typePosition, typeRotation, typeScale, typeParent,
}

func propagationVersion(storage *ecs.Storage) uint32 {
	var max uint32
	for _, typ := range propagationTypes {
		if v := storage.TypeVersion(typ); v > max {
			max = v
		}
	}
	return max
}

// innerRow is one inner-tree entity flattened for the depth sort.
type innerRow struct {
	depth  int
	parent *ecs.EntityRef
	ltp    *LocalToParent
	ltw    *LocalToWorld
}

// InnerTransformSystem propagates world matrices through entities that have
// both a parent and children, in ascending depth order so every parent's
// LocalToWorld is finalized before its children consume it. Rows are sorted
// by (depth, parent) so children of one parent stay contiguous and the
// parent matrix lookup can be reused across consecutive rows.
type InnerTransformSystem struct {
	Nodes ecs.Query[struct {
		LocalToWorld  *LocalToWorld
		Depth         *Depth         `ecs:"readonly"`
		Parent        *Parent        `ecs:"readonly"`
		LocalToParent *LocalToParent `ecs:"readonly"`
		Frozen        *Frozen        `ecs:"exclude"`
	}]

	lastVersion uint32
	rows        []innerRow
}

// NewInnerTransformSystem creates the inner-tree propagation pass.
func NewInnerTransformSystem() *InnerTransformSystem {
	return &InnerTransformSystem{}
}

func (s *InnerTransformSystem) Execute(frame *ecs.UpdateFrame) error {
	storage := frame.Storage
	if propagationVersion(storage) <= s.lastVersion {
		s.lastVersion = storage.Version()
		return nil
	}

	s.rows = s.rows[:0]
	for _, row := range s.Nodes.Iter() {
		level, ok := ecs.SharedValue[int](storage, row.Depth.Handle)
		if !ok {
			return fmt.Errorf("transform: depth handle %d never interned", row.Depth.Handle)
		}
		s.rows = append(s.rows, innerRow{
			depth:  level,
			parent: row.Parent.Value,
			ltp:    row.LocalToParent,
			ltw:    row.LocalToWorld,
		})
	}

	sort.Slice(s.rows, func(i, j int) bool {
		if s.rows[i].depth != s.rows[j].depth {
			return s.rows[i].depth < s.rows[j].depth
		}
		return s.rows[i].parent.Seq < s.rows[j].parent.Seq
	})

	var cachedParent *ecs.EntityRef
	var parentWorld Mat4
	var parentOk bool

	for _, row := range s.rows {
		if row.parent != cachedParent {
			cachedParent = row.parent
			parentWorld, parentOk = lookupParentWorld(storage, row.parent)
		}
		if !parentOk {
			continue
		}
		row.ltw.Value = parentWorld.Mul(row.ltp.Value)
	}

	s.lastVersion = storage.Version()
	return nil
}

// LeafTransformSystem propagates world matrices into entities with a parent
// and no children. Leaves have no descendants depending on them, so they
// need no depth ordering; only their parent, already finalized by the root
// and inner passes, matters.
type LeafTransformSystem struct {
	Leaves ecs.Query[struct {
		LocalToWorld  *LocalToWorld
		Parent        *Parent        `ecs:"readonly"`
		LocalToParent *LocalToParent `ecs:"readonly"`
		Depth         *Depth         `ecs:"exclude"`
		Frozen        *Frozen        `ecs:"exclude"`
	}]

	lastVersion uint32
}

// NewLeafTransformSystem creates the leaf propagation pass.
func NewLeafTransformSystem() *LeafTransformSystem {
	return &LeafTransformSystem{}
}

func (s *LeafTransformSystem) Execute(frame *ecs.UpdateFrame) error {
	storage := frame.Storage
	if propagationVersion(storage) <= s.lastVersion {
		s.lastVersion = storage.Version()
		return nil
	}

	var cachedParent *ecs.EntityRef
	var parentWorld Mat4
	var parentOk bool

	for _, row := range s.Leaves.Iter() {
		parent := row.Parent.Value
		if parent != cachedParent {
			cachedParent = parent
			parentWorld, parentOk = lookupParentWorld(storage, parent)
		}
		if !parentOk {
			continue
		}
		row.LocalToWorld.Value = parentWorld.Mul(row.LocalToParent.Value)
	}

	s.lastVersion = storage.Version()
	return nil
}

// lookupParentWorld reads the parent's world matrix. A parent without a
// LocalToWorld contributes the identity; a deleted parent contributes
// nothing and the child keeps its last world matrix until the stale edge is
// detached.
func lookupParentWorld(storage *ecs.Storage, parent *ecs.EntityRef) (Mat4, bool) {
	id, ok := storage.ResolveEntityRef(parent)
	if !ok {
		return Mat4{}, false
	}
	ltw := ecs.ReadComponent[LocalToWorld](storage, id)
	if ltw == nil {
		return Mat4Identity(), true
	}
	return ltw.Value, true
}
