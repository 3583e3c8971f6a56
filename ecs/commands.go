package ecs

import "reflect"

// Commands provides a buffer for deferred ECS operations that are executed at
// scheduler barriers and at the end of a frame. This prevents structural
// changes to the ECS storage during system execution.
type Commands struct {
	spawns  []spawnCommand
	deletes []EntityId
	adds    []addComponentCommand
	removes []removeComponentCommand
	defers  []deferCommand
}

func newCommands() *Commands {
	return &Commands{}
}

type deferCommand struct {
	fn func()
}

type spawnCommand struct {
	components []any
}

type addComponentCommand struct {
	entity    EntityId
	ref       *EntityRef
	component any
}

type removeComponentCommand struct {
	entity   EntityId
	ref      *EntityRef
	compType reflect.Type
}

// Defer queues a function execution operation.
func (c *Commands) Defer(fn func()) {
	c.defers = append(c.defers, deferCommand{fn: fn})
}

// Spawn queues an entity spawn operation with the given components.
func (c *Commands) Spawn(components ...any) {
	c.spawns = append(c.spawns, spawnCommand{components: components})
}

// Delete queues an entity deletion operation.
func (c *Commands) Delete(entity EntityId) {
	c.deletes = append(c.deletes, entity)
}

// AddComponent queues a component addition operation.
func (c *Commands) AddComponent(entity EntityId, component any) {
	c.adds = append(c.adds, addComponentCommand{
		entity:    entity,
		component: component,
	})
}

// AddComponentRef queues a component addition addressed through a stable
// EntityRef. Use this form when an earlier command in the same buffer may
// have moved the entity to another archetype, invalidating its EntityId.
func (c *Commands) AddComponentRef(ref *EntityRef, component any) {
	c.adds = append(c.adds, addComponentCommand{
		ref:       ref,
		component: component,
	})
}

// RemoveComponent queues a component removal operation.
func (c *Commands) RemoveComponent(entity EntityId, compType reflect.Type) {
	c.removes = append(c.removes, removeComponentCommand{
		entity:   entity,
		compType: compType,
	})
}

// RemoveComponentRef queues a component removal addressed through a stable
// EntityRef.
func (c *Commands) RemoveComponentRef(ref *EntityRef, compType reflect.Type) {
	c.removes = append(c.removes, removeComponentCommand{
		ref:      ref,
		compType: compType,
	})
}

// Flush flushes all commands to the provided storage, resetting the buffer state
func (c *Commands) Flush(storage *Storage) {
	deletedEntities := make(map[EntityId]bool)

	for _, cmd := range c.deletes {
		storage.Delete(cmd)
		deletedEntities[cmd] = true
	}

	for _, cmd := range c.removes {
		entity, alive := resolveCommandTarget(storage, cmd.entity, cmd.ref, deletedEntities)
		if !alive {
			continue
		}
		storage.RemoveComponent(entity, cmd.compType)
	}

	for _, cmd := range c.adds {
		entity, alive := resolveCommandTarget(storage, cmd.entity, cmd.ref, deletedEntities)
		if !alive {
			continue
		}
		storage.AddComponent(entity, cmd.component)
	}

	for _, cmd := range c.spawns {
		storage.Spawn(cmd.components...)
	}

	for _, df := range c.defers {
		df.fn()
	}

	c.spawns = c.spawns[:0]
	c.deletes = c.deletes[:0]
	c.adds = c.adds[:0]
	c.removes = c.removes[:0]
	c.defers = c.defers[:0]
}

func resolveCommandTarget(storage *Storage, entity EntityId, ref *EntityRef, deleted map[EntityId]bool) (EntityId, bool) {
	if ref != nil {
		id, ok := storage.ResolveEntityRef(ref)
		if !ok {
			return 0, false
		}
		entity = id
	}
	if deleted[entity] {
		return 0, false
	}
	return entity, true
}
