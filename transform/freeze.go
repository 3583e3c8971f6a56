package transform

import (
	"go.uber.org/zap"

	"github.com/plus3/scenetree/ecs"
)

// FreezeSystem advances the static classification one step per frame:
//
//	Mobile → PendingFrozen → Frozen
//
// and strips both markers the frame Static is revoked (Thaw). The one-frame
// PendingFrozen stop guarantees a final transform update lands before the
// compute stages start excluding the entity, since the frame that set Static
// may also have moved it.
//
// All marker edits are staged; the barrier after this system applies them
// before the compute stages run, so an entity tagged Frozen here is excluded
// from every downstream query in the same frame.
type FreezeSystem struct {
	ToPending ecs.Query[struct {
		LocalToWorld *LocalToWorld  `ecs:"readonly"`
		Static       *Static        `ecs:"readonly"`
		Frozen       *Frozen        `ecs:"exclude"`
		Pending      *PendingFrozen `ecs:"exclude"`
	}]

	ToFrozen ecs.Query[struct {
		LocalToWorld *LocalToWorld  `ecs:"readonly"`
		Static       *Static        `ecs:"readonly"`
		Pending      *PendingFrozen `ecs:"readonly"`
		Frozen       *Frozen        `ecs:"exclude"`
	}]

	ThawFrozen ecs.Query[struct {
		Frozen *Frozen `ecs:"readonly"`
		Static *Static `ecs:"exclude"`
	}]

	ThawPending ecs.Query[struct {
		Pending *PendingFrozen `ecs:"readonly"`
		Static  *Static        `ecs:"exclude"`
	}]

	log *zap.Logger
}

// NewFreezeSystem creates the freeze state machine. A nil logger disables
// logging.
func NewFreezeSystem(logger *zap.Logger) *FreezeSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FreezeSystem{log: logger}
}

func (s *FreezeSystem) Execute(frame *ecs.UpdateFrame) error {
	storage := frame.Storage
	frozen, pending, thawed, unpended := 0, 0, 0, 0

	// PendingFrozen → Frozen. The query snapshot predates this frame's
	// staged edits, so entities entering PendingFrozen below cannot freeze
	// in the same frame.
	for id := range s.ToFrozen.Iter() {
		frame.Commands.AddComponentRef(storage.CreateEntityRef(id), Frozen{})
		frozen++
	}

	// Mobile → PendingFrozen.
	for id := range s.ToPending.Iter() {
		frame.Commands.AddComponentRef(storage.CreateEntityRef(id), PendingFrozen{})
		pending++
	}

	// Thaw: Static revoked, strip whichever markers remain.
	for id := range s.ThawFrozen.Iter() {
		frame.Commands.RemoveComponentRef(storage.CreateEntityRef(id), typeFrozen)
		thawed++
	}
	for id := range s.ThawPending.Iter() {
		frame.Commands.RemoveComponentRef(storage.CreateEntityRef(id), typePendingFrozen)
		unpended++
	}

	if frozen > 0 || pending > 0 || thawed > 0 || unpended > 0 {
		s.log.Debug("freeze transitions",
			zap.Int("pending", pending),
			zap.Int("frozen", frozen),
			zap.Int("thawed", thawed),
			zap.Int("unpended", unpended))
	}
	return nil
}
