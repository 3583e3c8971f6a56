package ecs

// StorageStats is a point-in-time snapshot of storage occupancy, collected
// for inspection tooling.
type StorageStats struct {
	TotalEntityCount   int
	ArchetypeCount     int
	SingletonCount     int
	SingletonTypes     []string
	ArchetypeBreakdown []ArchetypeStats
}

// ArchetypeStats describes one archetype's layout and population.
type ArchetypeStats struct {
	ID             uint32
	ComponentTypes []string
	EntityCount    int
}

// CollectStats walks all archetypes and singletons. It is intended for
// debug overlays and tests, not per-frame hot paths.
func (s *Storage) CollectStats() *StorageStats {
	stats := &StorageStats{
		ArchetypeCount: len(s.archetypes),
		SingletonCount: len(s.singletons),
	}

	for compType := range s.singletons {
		stats.SingletonTypes = append(stats.SingletonTypes, compType.String())
	}

	for _, archetype := range s.archetypes {
		entityCount := 0
		for range archetype.Iter() {
			entityCount++
		}

		typeNames := make([]string, len(archetype.types))
		for i, typ := range archetype.types {
			typeNames[i] = typ.String()
		}

		stats.ArchetypeBreakdown = append(stats.ArchetypeBreakdown, ArchetypeStats{
			ID:             archetype.id,
			ComponentTypes: typeNames,
			EntityCount:    entityCount,
		})
		stats.TotalEntityCount += entityCount
	}

	return stats
}
