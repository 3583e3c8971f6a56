package transform

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/plus3/scenetree/ecs"
)

// ResolveSystem consumes attach requests and severed back-references and
// keeps the Hierarchy tracker and the Parent components mirrored. All
// component edits are staged on the frame's command buffer; the barrier
// registered after this system plays them back before the depth classifier
// runs.
//
// Per frame, in order: seed identity LocalToWorld on new roots, resolve
// attach requests, detach severed entities, strip LocalToWorld from entities
// that lost all authoring components.
type ResolveSystem struct {
	State ecs.Singleton[HierarchyState]

	// NewRoots matches entities with any authoring component that have not
	// yet been classified as anything. Rows with no authoring component at
	// all are skipped during iteration.
	NewRoots ecs.Query[struct {
		Position     *Position     `ecs:"optional,readonly"`
		Rotation     *Rotation     `ecs:"optional,readonly"`
		Scale        *Scale        `ecs:"optional,readonly"`
		Frozen       *Frozen       `ecs:"exclude"`
		Parent       *Parent       `ecs:"exclude"`
		LocalToWorld *LocalToWorld `ecs:"exclude"`
		Depth        *Depth        `ecs:"exclude"`
	}]

	Requests ecs.Query[struct {
		Request *PendingAttach `ecs:"readonly"`
	}]

	// Severed matches entities whose Attached marker was removed but still
	// carry the Parent back-reference.
	Severed ecs.Query[struct {
		Parent   *Parent   `ecs:"readonly"`
		Attached *Attached `ecs:"exclude"`
	}]

	// Orphaned matches entities that lost every authoring component but
	// still carry a world matrix.
	Orphaned ecs.Query[struct {
		LocalToWorld *LocalToWorld `ecs:"readonly"`
		Position     *Position     `ecs:"exclude"`
		Rotation     *Rotation     `ecs:"exclude"`
		Scale        *Scale        `ecs:"exclude"`
	}]

	log *zap.Logger
}

// NewResolveSystem creates the resolver. A nil logger disables logging.
func NewResolveSystem(logger *zap.Logger) *ResolveSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolveSystem{log: logger}
}

func (s *ResolveSystem) Execute(frame *ecs.UpdateFrame) error {
	state := s.State.Get()
	if state.Tracker == nil {
		state.Tracker = NewHierarchy()
	}
	tracker := state.Tracker
	storage := frame.Storage

	attached, detached := 0, 0

	// 1. New roots: seed an identity world matrix so the root pass has a
	// destination to write into.
	for id, row := range s.NewRoots.Iter() {
		if row.Position == nil && row.Rotation == nil && row.Scale == nil {
			continue
		}
		ref := storage.CreateEntityRef(id)
		frame.Commands.AddComponentRef(ref, LocalToWorld{Value: Mat4Identity()})
	}

	// 2. Attach requests. The tracker is edited immediately (single writer,
	// this system); component edits are staged. pendingParents carries
	// attachments staged earlier in this same pass so a second request for
	// the same child takes the reparent path.
	pendingParents := make(map[*ecs.EntityRef]*ecs.EntityRef)

	for id, row := range s.Requests.Iter() {
		parent, child := row.Request.Parent, row.Request.Child
		frame.Commands.Delete(id)

		if !parent.Alive() || !child.Alive() {
			s.log.Debug("dropping attach request for deleted entity")
			continue
		}
		if parent == child {
			s.log.Warn("dropping self-attach request", zap.Uint64("seq", child.Seq))
			continue
		}

		previous := pendingParents[child]
		if previous == nil {
			childId, _ := storage.ResolveEntityRef(child)
			if p := ecs.ReadComponent[Parent](storage, childId); p != nil {
				previous = p.Value
			}
		}

		if previous != nil {
			// Reparent: retire the old edge and overwrite the back-reference.
			if err := tracker.RemoveEdge(previous, child); err != nil && !errors.Is(err, ErrNoChildren) {
				s.log.Error("hierarchy tracker desync on reparent",
					zap.Uint64("parent_seq", previous.Seq),
					zap.Uint64("child_seq", child.Seq))
				return fmt.Errorf("reparent child %d: %w", child.Seq, err)
			}
			// Re-attaching to the same parent restores the edge below, so
			// the parent keeps its tag.
			if previous != parent && !tracker.HasChildren(previous) {
				frame.Commands.RemoveComponentRef(previous, typeDepth)
			}
			// A detach and a re-attach in the same frame land here with the
			// Attached marker already gone; restore it so the child stays out
			// of the severed pass next frame.
			childId, _ := storage.ResolveEntityRef(child)
			if !storage.HasComponent(childId, typeAttached) {
				frame.Commands.AddComponentRef(child, Attached{})
			}
			newParent := parent
			childRef := child
			frame.Commands.Defer(func() {
				childId, ok := storage.ResolveEntityRef(childRef)
				if !ok {
					return
				}
				if p := ecs.MutateComponent[Parent](storage, childId); p != nil {
					p.Value = newParent
				}
			})
		} else {
			frame.Commands.AddComponentRef(child, Parent{Value: parent})
			frame.Commands.AddComponentRef(child, Attached{})
			frame.Commands.AddComponentRef(child, LocalToParent{Value: Mat4Identity()})
		}

		// A parent gaining its first child needs a Depth tag; level 0 is a
		// placeholder, the classifier re-tags it before any compute stage
		// consumes it.
		parentId, _ := storage.ResolveEntityRef(parent)
		if !storage.HasComponent(parentId, typeDepth) {
			frame.Commands.AddComponentRef(parent, Depth{Handle: ecs.InternShared(storage, 0)})
		}

		tracker.AddEdge(parent, child)
		pendingParents[child] = parent
		attached++
	}

	// 3. Detach: entities whose Attached marker is gone lose their edge,
	// back-reference and local matrix. A parent with no tracker bucket is
	// tolerated; a bucket that exists without this child is a desync.
	// Children re-attached by the request loop above are skipped entirely;
	// their old edge is already retired and their new one must survive.
	for id, row := range s.Severed.Iter() {
		child := storage.CreateEntityRef(id)
		if _, reattached := pendingParents[child]; reattached {
			continue
		}
		parent := row.Parent.Value

		if parent.Alive() {
			if err := tracker.RemoveEdge(parent, child); err != nil && !errors.Is(err, ErrNoChildren) {
				s.log.Error("hierarchy tracker desync on detach",
					zap.Uint64("parent_seq", parent.Seq),
					zap.Uint64("child_seq", child.Seq))
				return fmt.Errorf("detach child %d: %w", child.Seq, err)
			}
			if !tracker.HasChildren(parent) {
				frame.Commands.RemoveComponentRef(parent, typeDepth)
			}
		}

		frame.Commands.RemoveComponentRef(child, typeLocalToParent)
		frame.Commands.RemoveComponentRef(child, typeParent)
		detached++
	}

	// 4. Removed: strip the cached world matrix from entities that no
	// longer carry any authoring input.
	for id := range s.Orphaned.Iter() {
		frame.Commands.RemoveComponent(id, typeLocalToWorld)
	}

	if attached > 0 || detached > 0 {
		state.StructureChanged = true
		s.log.Debug("hierarchy structure changed",
			zap.Int("attached", attached),
			zap.Int("detached", detached))
	}

	return nil
}
