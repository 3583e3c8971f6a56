package ecs

import (
	"reflect"
	"sort"
	"unsafe"
	"weak"
)

// Storage is the main ECS storage interface
type Storage struct {
	archetypes map[uint32]*Archetype
	registry   *ComponentRegistry
	singletons map[reflect.Type]*singletonEntry

	// version is the global change counter, bumped by the Scheduler after
	// every system so later writers always stamp strictly newer than any
	// recorded lastVersion. Component writes stamp the touched storage
	// block and the per-type counter with the current value.
	version      uint32
	typeVersions map[reflect.Type]uint32

	shared  *sharedIndex
	nextSeq uint64
}

type singletonEntry struct {
	dataPtr unsafe.Pointer
}

// NewStorage creates a new ECS storage system with the given component registry
func NewStorage(registry *ComponentRegistry) *Storage {
	return &Storage{
		archetypes:   make(map[uint32]*Archetype),
		registry:     registry,
		singletons:   make(map[reflect.Type]*singletonEntry),
		version:      1,
		typeVersions: make(map[reflect.Type]uint32),
		shared:       newSharedIndex(),
	}
}

// Version returns the current global change version.
func (s *Storage) Version() uint32 {
	return s.version
}

// BumpVersion advances the global change version by one. The Scheduler calls
// this after every system; call it manually when driving the storage without
// a scheduler.
func (s *Storage) BumpVersion() {
	s.version++
}

// TypeVersion returns the highest change stamp recorded for a component type
// across all archetypes.
func (s *Storage) TypeVersion(compType reflect.Type) uint32 {
	return s.typeVersions[compType]
}

func (s *Storage) stampType(compType reflect.Type) {
	if s.version > s.typeVersions[compType] {
		s.typeVersions[compType] = s.version
	}
}

func (s *Storage) CreateEntityRef(id EntityId) *EntityRef {
	archetype := s.archetypes[id.ArchetypeId()]
	if archetype == nil {
		return nil
	}

	// Check if we already have a ref for this entity
	if weakPtr, ok := archetype.refs.Get(id); ok {
		if ref := weakPtr.Value(); ref != nil {
			return ref
		}
		// Weak pointer is dead, remove it
		archetype.refs.Del(id)
	}

	s.nextSeq++
	ref := &EntityRef{
		Id:        id,
		Archetype: archetype,
		Seq:       s.nextSeq,
	}

	// Store weak pointer in archetype
	weakPtr := weak.Make(ref)
	archetype.refs.Put(id, weakPtr)

	return ref
}

func (s *Storage) ResolveEntityRef(ref *EntityRef) (EntityId, bool) {
	if ref == nil {
		return 0, false
	}
	// Id == 0 means the entity was deleted
	if ref.Id == 0 {
		return 0, false
	}
	return ref.Id, true
}

func (s *Storage) InvalidateEntityRef(ref *EntityRef) bool {
	if ref == nil || ref.Id == 0 {
		return false
	}

	archetype := s.archetypes[ref.Id.ArchetypeId()]
	if archetype != nil {
		archetype.refs.Del(ref.Id)
	}

	ref.Id = 0
	ref.Archetype = nil
	return true
}

// GetArchetype returns an archetype storage (if one exists)
func (s *Storage) GetArchetype(components ...any) *Archetype {
	types := extractComponentTypes(components)
	archetypeId := hashTypesToUint32(types)
	return s.archetypes[archetypeId]
}

// GetArchetypeByTypes returns an archetype storage (if one exists) based on reflect.Type
func (s *Storage) GetArchetypeByTypes(types []reflect.Type) *Archetype {
	sort.Sort(byTypeName(types))
	archetypeId := hashTypesToUint32(types)
	return s.archetypes[archetypeId]
}

// Archetypes iterates all archetypes currently known to the storage.
func (s *Storage) Archetypes(yield func(*Archetype) bool) {
	for _, archetype := range s.archetypes {
		if !yield(archetype) {
			return
		}
	}
}

// Spawn creates a new entity with the provided components
func (s *Storage) Spawn(components ...any) EntityId {
	if len(components) == 0 {
		panic("cannot spawn entity without components")
	}

	types := extractComponentTypes(components)
	archetypeId := hashTypesToUint32(types)

	archetype, exists := s.archetypes[archetypeId]
	if !exists {
		archetype = NewArchetype(archetypeId, types, s.registry)
		s.archetypes[archetypeId] = archetype
	}

	entityIndex := archetype.Spawn(components, s.version)
	for _, typ := range types {
		s.stampType(typ)
	}
	return NewEntityId(archetypeId, entityIndex)
}

// Delete removes all data related to the entity ID
func (s *Storage) Delete(id EntityId) {
	archetypeId := id.ArchetypeId()
	entityIndex := id.Index()

	archetype, ok := s.archetypes[archetypeId]
	if !ok {
		return
	}

	archetype.Delete(entityIndex, s.version)
	for _, typ := range archetype.types {
		s.stampType(typ)
	}
}

// AddComponent moves the entity to the archetype extended with the component
// and returns its new id. Adding a component type the entity already carries
// overwrites the value in place instead of corrupting the type set.
func (s *Storage) AddComponent(id EntityId, component any) EntityId {
	oldArchetype := s.archetypes[id.ArchetypeId()]
	if oldArchetype == nil {
		return id
	}

	compType := reflect.TypeOf(component)
	if compType.Kind() == reflect.Ptr {
		compType = compType.Elem()
	}

	if oldArchetype.HasComponent(compType) {
		existing := oldArchetype.GetComponent(id.Index(), compType)
		if existing != nil {
			dst := reflect.ValueOf(existing).Elem()
			src := reflect.ValueOf(component)
			if src.Kind() == reflect.Ptr {
				src = src.Elem()
			}
			dst.Set(src)
			oldArchetype.StampComponent(compType, s.version)
			s.stampType(compType)
		}
		return id
	}

	newTypes := make([]reflect.Type, 0, len(oldArchetype.types)+1)
	newTypes = append(newTypes, oldArchetype.types...)
	newTypes = append(newTypes, compType)
	sort.Sort(byTypeName(newTypes))

	newArchetypeId := hashTypesToUint32(newTypes)
	newArchetype, exists := s.archetypes[newArchetypeId]
	if !exists {
		newArchetype = NewArchetype(newArchetypeId, newTypes, s.registry)
		s.archetypes[newArchetypeId] = newArchetype
	}

	// Get the weak pointer if it exists
	weakPtr, hasRef := oldArchetype.refs.Get(id)

	components := make([]any, 0, len(newTypes))
	for _, typ := range newTypes {
		if typ == compType {
			components = append(components, component)
		} else {
			comp := oldArchetype.GetComponent(id.Index(), typ)
			components = append(components, comp)
		}
	}

	newIndex := newArchetype.Spawn(components, s.version)
	newId := NewEntityId(newArchetypeId, newIndex)
	for _, typ := range newTypes {
		s.stampType(typ)
	}

	// Update EntityRef if it exists
	if hasRef {
		if ref := weakPtr.Value(); ref != nil {
			ref.Id = newId
			ref.Archetype = newArchetype
		}
		oldArchetype.refs.Del(id)
		newArchetype.refs.Put(newId, weakPtr)
	}

	oldArchetype.Delete(id.Index(), s.version)
	return newId
}

// RemoveComponent moves the entity to the archetype without the component and
// returns its new id. Removing a component the entity does not carry is a
// no-op. An entity whose last component is removed is deleted.
func (s *Storage) RemoveComponent(id EntityId, compType reflect.Type) EntityId {
	oldArchetype := s.archetypes[id.ArchetypeId()]
	if oldArchetype == nil || !oldArchetype.HasComponent(compType) {
		return id
	}

	newTypes := make([]reflect.Type, 0, len(oldArchetype.types)-1)
	for _, typ := range oldArchetype.types {
		if typ != compType {
			newTypes = append(newTypes, typ)
		}
	}

	weakPtr, hasRef := oldArchetype.refs.Get(id)

	if len(newTypes) == 0 {
		// Entity has no components left, delete it
		if hasRef {
			if ref := weakPtr.Value(); ref != nil {
				ref.Id = 0
				ref.Archetype = nil
			}
			oldArchetype.refs.Del(id)
		}
		oldArchetype.Delete(id.Index(), s.version)
		s.stampType(compType)
		return 0
	}

	newArchetypeId := hashTypesToUint32(newTypes)
	newArchetype, exists := s.archetypes[newArchetypeId]
	if !exists {
		newArchetype = NewArchetype(newArchetypeId, newTypes, s.registry)
		s.archetypes[newArchetypeId] = newArchetype
	}

	components := make([]any, 0, len(newTypes))
	for _, typ := range newTypes {
		comp := oldArchetype.GetComponent(id.Index(), typ)
		components = append(components, comp)
	}

	newIndex := newArchetype.Spawn(components, s.version)
	newId := NewEntityId(newArchetypeId, newIndex)
	for _, typ := range oldArchetype.types {
		s.stampType(typ)
	}

	// Update EntityRef if it exists
	if hasRef {
		if ref := weakPtr.Value(); ref != nil {
			ref.Id = newId
			ref.Archetype = newArchetype
		}
		oldArchetype.refs.Del(id)
		newArchetype.refs.Put(newId, weakPtr)
	}

	oldArchetype.Delete(id.Index(), s.version)
	return newId
}

// GetComponent returns the component for the given entity ID and component type
func (s *Storage) GetComponent(id EntityId, compType reflect.Type) any {
	archetypeId := id.ArchetypeId()
	entityIndex := id.Index()

	archetype, ok := s.archetypes[archetypeId]
	if !ok {
		return nil
	}

	return archetype.GetComponent(entityIndex, compType)
}

// HasComponent checks if an entity has a specific component type
func (s *Storage) HasComponent(id EntityId, compType reflect.Type) bool {
	archetypeId := id.ArchetypeId()
	archetype, ok := s.archetypes[archetypeId]
	if !ok {
		return false
	}
	if !archetype.HasComponent(compType) {
		return false
	}
	idx := archetype.storageIndex(compType)
	return archetype.storages[idx].Has(int(id.Index()))
}

// AddSingleton stores a single component instance not tied to any entity.
// An existing singleton of the same type is overwritten in place so cached
// pointers stay valid.
func (s *Storage) AddSingleton(component any) {
	compType := reflect.TypeOf(component)
	if compType.Kind() == reflect.Ptr {
		compType = compType.Elem()
	}

	value := reflect.ValueOf(component)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}

	if entry, ok := s.singletons[compType]; ok {
		reflect.NewAt(compType, entry.dataPtr).Elem().Set(value)
		return
	}

	boxed := reflect.New(compType)
	boxed.Elem().Set(value)
	s.singletons[compType] = &singletonEntry{
		dataPtr: boxed.UnsafePointer(),
	}
}

func (s *Storage) getSingletonEntry(compType reflect.Type) *singletonEntry {
	return s.singletons[compType]
}

// extractComponentTypes extracts and sorts component types from a slice of components
func extractComponentTypes(components []any) []reflect.Type {
	types := make([]reflect.Type, 0, len(components))
	for _, comp := range components {
		compType := reflect.TypeOf(comp)

		// If it's a pointer, get the underlying type
		if compType.Kind() == reflect.Ptr {
			compType = compType.Elem()
		}

		// Components can be structs or primitives (int, string, etc.)
		// But not pointers, maps, channels, or functions (those aren't value types)
		if compType.Kind() == reflect.Ptr || compType.Kind() == reflect.Map ||
			compType.Kind() == reflect.Chan || compType.Kind() == reflect.Func {
			panic("components cannot be pointers, maps, channels, or functions")
		}

		types = append(types, compType)
	}
	sort.Sort(byTypeName(types))
	return types
}

// hashTypesToUint32 generates a uint32 hash for a sorted slice of types
func hashTypesToUint32(types []reflect.Type) uint32 {
	var h uint32 = 2166136261     // FNV-1a 32-bit offset basis
	const prime uint32 = 16777619 // FNV-1a 32-bit prime

	for _, t := range types {
		// Use the type's pointer as a unique identifier
		ptr := (*iface)(unsafe.Pointer(&t)).data
		val := uint32(uintptr(ptr))

		// Mix in all 4 bytes if on 64-bit system
		if unsafe.Sizeof(uintptr(0)) == 8 {
			val ^= uint32(uintptr(ptr) >> 32)
		}

		h ^= val
		h *= prime
	}

	return h
}

type ComponentReader interface {
	GetComponent(EntityId, reflect.Type) any
}

// ReadComponent returns the entity's component of type T, or nil if the
// entity does not carry one. The returned pointer must be treated as
// read-only; use MutateComponent when the value will be written.
func ReadComponent[T any](reader ComponentReader, entityId EntityId) *T {
	comp := reader.GetComponent(entityId, reflect.TypeFor[T]())
	if comp == nil {
		return nil
	}
	return comp.(*T)
}

// MutateComponent returns the entity's component of type T for writing and
// records a change stamp on its batch, or nil if the entity does not carry
// one.
func MutateComponent[T any](s *Storage, entityId EntityId) *T {
	compType := reflect.TypeFor[T]()
	archetype, ok := s.archetypes[entityId.ArchetypeId()]
	if !ok {
		return nil
	}
	comp := archetype.GetComponent(entityId.Index(), compType)
	if comp == nil {
		return nil
	}
	archetype.StampComponent(compType, s.version)
	s.stampType(compType)
	return comp.(*T)
}
