package transform

import (
	"errors"

	"github.com/kamstrup/intmap"

	"github.com/plus3/scenetree/ecs"
)

var (
	// ErrNoChildren reports a RemoveEdge against a parent with no recorded
	// children. The detach path tolerates it; see Hierarchy.RemoveEdge.
	ErrNoChildren = errors.New("transform: parent has no recorded children")

	// ErrEdgeNotFound reports a RemoveEdge for a child missing from its
	// parent's bucket while the bucket exists. It indicates the tracker and
	// the Parent components have desynchronized and is fatal for the frame.
	ErrEdgeNotFound = errors.New("transform: edge not recorded for child")
)

// Hierarchy is the authoritative parent→children multimap. It is the only
// record of "does this entity have children"; world-matrix computation never
// walks it, that path uses Depth tags and Parent back-references instead.
//
// Buckets are keyed by the parent ref's stable sequence number so edges
// survive archetype moves. The tracker is a derived index: it is mutated
// only by the resolver and rebuildable from Parent components if ever
// corrupted.
type Hierarchy struct {
	children *intmap.Map[uint64, []*ecs.EntityRef]
}

// NewHierarchy creates an empty tracker.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		children: intmap.New[uint64, []*ecs.EntityRef](256),
	}
}

// HasChildren reports whether the parent has at least one live child edge.
// Edges to deleted entities are pruned on the way.
func (h *Hierarchy) HasChildren(parent *ecs.EntityRef) bool {
	return len(h.Children(parent)) > 0
}

// Children returns the live child refs of the parent. Edges whose child has
// been deleted are pruned lazily here rather than at deletion time, since
// entity deletion does not pass through the resolver.
func (h *Hierarchy) Children(parent *ecs.EntityRef) []*ecs.EntityRef {
	if parent == nil {
		return nil
	}
	bucket, ok := h.children.Get(parent.Seq)
	if !ok {
		return nil
	}

	live := bucket[:0]
	for _, child := range bucket {
		if child.Alive() {
			live = append(live, child)
		}
	}
	if len(live) == 0 {
		h.children.Del(parent.Seq)
		return nil
	}
	h.children.Put(parent.Seq, live)
	return live
}

// AddEdge records a parent→child edge. Duplicate edges are not recorded.
func (h *Hierarchy) AddEdge(parent, child *ecs.EntityRef) {
	bucket, _ := h.children.Get(parent.Seq)
	for _, existing := range bucket {
		if existing == child {
			return
		}
	}
	h.children.Put(parent.Seq, append(bucket, child))
}

// RemoveEdge removes a parent→child edge. It returns ErrNoChildren when the
// parent has no bucket at all (the caller decides whether that is
// tolerable) and ErrEdgeNotFound when the bucket exists but does not contain
// the child, which callers must treat as a consistency failure.
func (h *Hierarchy) RemoveEdge(parent, child *ecs.EntityRef) error {
	bucket, ok := h.children.Get(parent.Seq)
	if !ok {
		return ErrNoChildren
	}

	for i, existing := range bucket {
		if existing == child {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			if len(bucket) == 0 {
				h.children.Del(parent.Seq)
			} else {
				h.children.Put(parent.Seq, bucket)
			}
			return nil
		}
	}

	return ErrEdgeNotFound
}

// Len returns the number of parents with at least one recorded edge.
func (h *Hierarchy) Len() int {
	return h.children.Len()
}

// HierarchyState is the singleton shared by the resolver and the downstream
// classifier: the tracker itself and the flag gating depth reclassification.
type HierarchyState struct {
	Tracker *Hierarchy

	// StructureChanged is set by the resolver whenever an attach or detach
	// occurred and cleared by the depth classifier after it re-tags.
	StructureChanged bool
}
