package ecs

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// SchedulerStats provides statistics about scheduler execution.
type SchedulerStats struct {
	SystemCount     int
	TotalExecutions int64
	Systems         []SystemStats
}

// SystemStats provides execution statistics for a single system.
type SystemStats struct {
	Name           string
	ExecutionCount int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

type systemStatsInternal struct {
	name           string
	executionCount int64
	minDuration    time.Duration
	maxDuration    time.Duration
	totalDuration  time.Duration
	lastDuration   time.Duration
}

type registeredSystem struct {
	system System
	// queryExecutors rebuilds every Query field's row cache right before the
	// system runs, so systems after a barrier observe flushed commands.
	queryExecutors []func()
	// flushAfter marks a barrier: the frame's command buffer is played back
	// after this system, before the next one executes.
	flushAfter bool
}

// Scheduler manages and executes systems in order. RegisterBarrier inserts
// command-flush points between systems for pipelines where a later stage
// must observe the structural edits of an earlier one.
type Scheduler struct {
	storage     *Storage
	systems     []*registeredSystem
	systemStats []*systemStatsInternal
}

// NewScheduler creates a new scheduler for the given storage.
func NewScheduler(storage *Storage) *Scheduler {
	return &Scheduler{
		storage: storage,
		systems: make([]*registeredSystem, 0),
	}
}

// Register adds a system to the scheduler and initializes its Query and
// Singleton fields.
func (s *Scheduler) Register(system System) {
	reg := &registeredSystem{system: system}
	reg.queryExecutors = s.initializeQueries(system)
	s.systems = append(s.systems, reg)

	systemType := reflect.TypeOf(system)
	if systemType.Kind() == reflect.Ptr {
		systemType = systemType.Elem()
	}
	systemName := systemType.Name()

	s.systemStats = append(s.systemStats, &systemStatsInternal{
		name:        systemName,
		minDuration: time.Duration(1<<63 - 1),
	})
}

// RegisterBarrier marks a command-flush point after the most recently
// registered system. Deferred structural edits queued before the barrier are
// applied before any later system runs.
func (s *Scheduler) RegisterBarrier() {
	if len(s.systems) == 0 {
		return
	}
	s.systems[len(s.systems)-1].flushAfter = true
}

func (s *Scheduler) initializeQueries(system System) []func() {
	systemValue := reflect.ValueOf(system)
	if systemValue.Kind() == reflect.Ptr {
		systemValue = systemValue.Elem()
	}

	if systemValue.Kind() != reflect.Struct {
		return nil
	}

	systemType := systemValue.Type()
	var executors []func()

	for i := 0; i < systemValue.NumField(); i++ {
		field := systemValue.Field(i)
		fieldType := systemType.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() != reflect.Struct {
			continue
		}

		typeName := field.Type().Name()

		// Initialize Query fields and collect their Execute methods
		if strings.HasPrefix(typeName, "Query[") {
			initMethod := field.Addr().MethodByName("Init")
			if !initMethod.IsValid() {
				panic("Init method not found on Query field: " + fieldType.Name)
			}
			initMethod.Call([]reflect.Value{
				reflect.ValueOf(s.storage),
			})

			executeMethod := field.Addr().MethodByName("Execute")
			if !executeMethod.IsValid() {
				panic("Execute method not found on Query field: " + fieldType.Name)
			}
			execute := executeMethod.Interface().(func())
			executors = append(executors, execute)
			continue
		}

		// Initialize Singleton fields
		if strings.HasPrefix(typeName, "Singleton[") {
			initMethod := field.Addr().MethodByName("Init")
			if !initMethod.IsValid() {
				panic("Init method not found on Singleton field: " + fieldType.Name)
			}

			initMethod.Call([]reflect.Value{
				reflect.ValueOf(s.storage),
			})
			continue
		}
	}

	return executors
}

// Once executes all registered systems once with the given delta time.
// The frame aborts on the first system error; commands queued before the
// failing system's barrier have already been applied, later ones are
// discarded.
func (s *Scheduler) Once(dt float64) error {
	frame := newUpdateFrame(dt, s.storage)

	for i, reg := range s.systems {
		for _, execute := range reg.queryExecutors {
			execute()
		}

		start := time.Now()
		err := reg.system.Execute(frame)
		duration := time.Since(start)

		stats := s.systemStats[i]
		stats.executionCount++
		stats.lastDuration = duration
		stats.totalDuration += duration

		if duration < stats.minDuration {
			stats.minDuration = duration
		}
		if duration > stats.maxDuration {
			stats.maxDuration = duration
		}

		if err != nil {
			return fmt.Errorf("system %s: %w", stats.name, err)
		}

		if reg.flushAfter {
			frame.Commands.Flush(s.storage)
		}

		// Advance the change version after every system so writes by later
		// systems, barrier flushes and between-frame authoring always land
		// on a version strictly greater than any lastVersion a system
		// recorded, while a system's own write-intent stamps never
		// re-trigger it.
		s.storage.BumpVersion()
	}

	frame.Commands.Flush(s.storage)
	return nil
}

// Run executes all systems repeatedly at the given interval until the context
// is cancelled or a frame fails.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(lastTime).Seconds()
			lastTime = now
			if err := s.Once(dt); err != nil {
				return err
			}
		}
	}
}

// GetStats returns statistics about system execution.
func (s *Scheduler) GetStats() *SchedulerStats {
	stats := &SchedulerStats{
		SystemCount: len(s.systems),
		Systems:     make([]SystemStats, len(s.systemStats)),
	}

	var totalExecs int64
	for i, internal := range s.systemStats {
		avgDuration := time.Duration(0)
		if internal.executionCount > 0 {
			avgDuration = internal.totalDuration / time.Duration(internal.executionCount)
		}

		stats.Systems[i] = SystemStats{
			Name:           internal.name,
			ExecutionCount: internal.executionCount,
			MinDuration:    internal.minDuration,
			MaxDuration:    internal.maxDuration,
			AvgDuration:    avgDuration,
			LastDuration:   internal.lastDuration,
			TotalDuration:  internal.totalDuration,
		}
		totalExecs += internal.executionCount
	}

	stats.TotalExecutions = totalExecs
	return stats
}
