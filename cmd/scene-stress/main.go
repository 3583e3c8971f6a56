// scene-stress exercises the transform pipeline with a configurable scene:
// a forest of trees with a mobile root layer, a static leaf fraction that
// freezes, and a steady trickle of reparent requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"

	"github.com/plus3/scenetree/ecs"
	"github.com/plus3/scenetree/transform"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file; empty runs the defaults.")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	switch cfg.Profile.Mode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cfg.Profile.Dir), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath(cfg.Profile.Dir), profile.NoShutdownHook).Stop()
	case "":
	default:
		logger.Fatal("unknown profile mode", zap.String("mode", cfg.Profile.Mode))
	}

	registry := ecs.NewComponentRegistry()
	transform.RegisterComponents(registry)
	storage := ecs.NewStorage(registry)
	scheduler := ecs.NewScheduler(storage)

	// The churn system authors Position writes and reparent requests, so it
	// registers ahead of the pipeline and its writes land in the same frame.
	churn := newChurnSystem(cfg.Scene, logger)
	scheduler.Register(churn)
	transform.Register(scheduler, storage, logger)

	logger.Info("building scene",
		zap.Int("roots", cfg.Scene.Roots),
		zap.Int("levels", cfg.Scene.Levels),
		zap.Int("fanout", cfg.Scene.Fanout))
	entities := buildScene(storage, churn, cfg.Scene)
	logger.Info("scene built", zap.Int("entities", entities))

	report := &Report{
		Duration:       cfg.Run.Duration,
		Roots:          cfg.Scene.Roots,
		Levels:         cfg.Scene.Levels,
		Fanout:         cfg.Scene.Fanout,
		Entities:       entities,
		StaticFraction: cfg.Scene.StaticFraction,
		Reparents:      cfg.Scene.ReparentsPerFrame,
		UpdateTime: Stats{
			Samples: make([]time.Duration, 0),
		},
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	logger.Info("running", zap.Duration("duration", cfg.Run.Duration))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Run.Duration)
	defer cancel()

	startTime := time.Now()
	lastFrameTime := time.Now()

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			if err := scheduler.Once(deltaTime.Seconds()); err != nil {
				logger.Fatal("frame failed", zap.Error(err))
			}
			updateDuration := time.Since(updateStart)

			report.UpdateTime.Samples = append(report.UpdateTime.Samples, updateDuration)
			report.TotalUpdates++

			if cfg.Run.Tick > updateDuration {
				time.Sleep(cfg.Run.Tick - updateDuration)
			}
		}
	}

	report.TotalTime = time.Since(startTime)
	report.UpdateTime.Finalize()
	report.Scheduler = scheduler.GetStats()
	runtime.ReadMemStats(&report.MemStatsEnd)

	logger.Info("run finished", zap.Int64("updates", report.TotalUpdates))
	if err := report.Generate(os.Stdout); err != nil {
		logger.Fatal("report failed", zap.Error(err))
	}
}

// buildScene spawns the configured forest and queues the attach requests
// wiring it together; the first frame's resolver pass does the rest. Returns
// the number of scene entities spawned.
func buildScene(storage *ecs.Storage, churn *churnSystem, cfg SceneConfig) int {
	rng := rand.New(rand.NewSource(1))
	total := 0

	var grow func(parent *ecs.EntityRef, level int)
	grow = func(parent *ecs.EntityRef, level int) {
		for i := 0; i < cfg.Fanout; i++ {
			id := storage.Spawn(transform.Position{Value: transform.Vec3{
				X: rng.Float32()*10 - 5,
				Y: rng.Float32()*10 - 5,
				Z: rng.Float32()*10 - 5,
			}})
			node := storage.CreateEntityRef(id)
			total++

			transform.Attach(storage, parent, node)

			if level+1 < cfg.Levels {
				churn.parents = append(churn.parents, node)
				grow(node, level+1)
				continue
			}

			// Leaf layer: a fraction is static and will freeze, the rest
			// stays eligible for reparenting.
			if rng.Float64() < cfg.StaticFraction {
				storage.AddComponent(id, transform.Static{})
			} else {
				churn.leaves = append(churn.leaves, node)
			}
		}
	}

	for r := 0; r < cfg.Roots; r++ {
		id := storage.Spawn(
			transform.Position{Value: transform.Vec3{X: float32(r) * 100}},
			transform.Rotation{Value: transform.QuatIdentity()},
		)
		root := storage.CreateEntityRef(id)
		total++
		churn.parents = append(churn.parents, root)

		if cfg.Levels > 0 {
			grow(root, 0)
		}
	}

	return total
}

// churnSystem keeps the pipeline under load: it spins every mobile root and
// queues a configurable number of random reparent requests per frame.
type churnSystem struct {
	Movers ecs.Query[struct {
		Rotation *transform.Rotation
		Parent   *transform.Parent `ecs:"exclude"`
		Static   *transform.Static `ecs:"exclude"`
		Frozen   *transform.Frozen `ecs:"exclude"`
	}]

	parents []*ecs.EntityRef
	leaves  []*ecs.EntityRef

	reparentsPerFrame int
	elapsed           float64
	rng               *rand.Rand
	log               *zap.Logger
}

func newChurnSystem(cfg SceneConfig, logger *zap.Logger) *churnSystem {
	return &churnSystem{
		reparentsPerFrame: cfg.ReparentsPerFrame,
		rng:               rand.New(rand.NewSource(2)),
		log:               logger,
	}
}

func (s *churnSystem) Execute(frame *ecs.UpdateFrame) error {
	s.elapsed += frame.DeltaTime

	angle := float32(s.elapsed)
	for _, item := range s.Movers.Iter() {
		item.Rotation.Value = transform.QuatAxisAngle(transform.Vec3{Y: 1}, angle)
	}

	if len(s.leaves) == 0 || len(s.parents) == 0 {
		return nil
	}
	for i := 0; i < s.reparentsPerFrame; i++ {
		leaf := s.leaves[s.rng.Intn(len(s.leaves))]
		parent := s.parents[s.rng.Intn(len(s.parents))]
		if leaf == parent {
			continue
		}
		frame.Commands.Spawn(transform.PendingAttach{Parent: parent, Child: leaf})
	}
	return nil
}
