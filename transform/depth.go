package transform

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/plus3/scenetree/ecs"
)

// maxChainLength bounds parent-chain walks. The resolver never creates a
// cycle, so hitting the bound means the Parent components were corrupted
// from outside; failing beats recursing forever.
const maxChainLength = 4096

// ErrCyclicHierarchy reports a parent chain that did not terminate within
// maxChainLength hops.
var ErrCyclicHierarchy = errors.New("transform: cyclic hierarchy")

// DepthSystem re-tags every parented entity that has children with its
// hierarchy level, so the inner compute pass can order parents before
// children by sorting an integer. Levels count from the root: children of a
// root are level 0.
//
// The walk is O(chain length) per entity, acceptable because the system only
// runs on frames where the resolver reported a structural change.
type DepthSystem struct {
	State ecs.Singleton[HierarchyState]

	Tagged ecs.Query[struct {
		Depth  *Depth  `ecs:"readonly"`
		Parent *Parent `ecs:"readonly"`
	}]

	log *zap.Logger
}

// NewDepthSystem creates the depth classifier. A nil logger disables logging.
func NewDepthSystem(logger *zap.Logger) *DepthSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepthSystem{log: logger}
}

func (s *DepthSystem) Execute(frame *ecs.UpdateFrame) error {
	state := s.State.Get()
	if !state.StructureChanged {
		return nil
	}

	storage := frame.Storage
	retagged := 0

	for _, row := range s.Tagged.Iter() {
		level, err := chainDepth(storage, row.Parent.Value)
		if err != nil {
			s.log.Error("depth classification failed", zap.Error(err))
			return err
		}

		handle := ecs.InternShared(storage, level)
		if row.Depth.Handle == handle {
			continue
		}
		depth := row.Depth
		frame.Commands.Defer(func() {
			depth.Handle = handle
		})
		retagged++
	}

	state.StructureChanged = false
	if retagged > 0 {
		s.log.Debug("depth tags reassigned", zap.Int("count", retagged))
	}
	return nil
}

// chainDepth counts the parented ancestors of parent. A parent that is
// itself a root yields 0. Deleted ancestors terminate the chain.
func chainDepth(storage *ecs.Storage, parent *ecs.EntityRef) (int, error) {
	level := 0
	cur := parent
	for hops := 0; ; hops++ {
		if hops > maxChainLength {
			return 0, fmt.Errorf("%w: chain exceeds %d links", ErrCyclicHierarchy, maxChainLength)
		}
		if !cur.Alive() {
			break
		}
		id, _ := storage.ResolveEntityRef(cur)
		p := ecs.ReadComponent[Parent](storage, id)
		if p == nil {
			break
		}
		cur = p.Value
		level++
	}
	return level, nil
}
