package ecs

// EntityId encodes both the archetype ID (upper 32 bits) and the entity index (lower 32 bits).
// It changes whenever the entity moves between archetypes; hold an EntityRef
// when a reference must survive component additions and removals.
type EntityId uint64

// NewEntityId creates an EntityId from an archetype ID and entity index
func NewEntityId(archetypeId uint32, index uint32) EntityId {
	return EntityId(uint64(archetypeId)<<32 | uint64(index))
}

// ArchetypeId extracts the archetype ID from the entity ID
func (e EntityId) ArchetypeId() uint32 {
	return uint32(e >> 32)
}

// Index extracts the entity index from the entity ID
func (e EntityId) Index() uint32 {
	return uint32(e & 0xFFFFFFFF)
}

// EntityRef is a stable reference to an entity. The storage rewrites Id and
// Archetype in place when the entity migrates between archetypes, and zeroes
// Id when the entity is deleted.
//
// Seq is a process-unique sequence number assigned when the ref is first
// created. Unlike Id it never changes, which makes it usable as an integer
// map key for indexes that must survive archetype moves.
type EntityRef struct {
	Id        EntityId
	Archetype *Archetype
	Seq       uint64
}

// Alive reports whether the referenced entity still exists.
func (r *EntityRef) Alive() bool {
	return r != nil && r.Id != 0
}
