// Benchmark runs a fixed number of detection frames per method and records
// frame timing to a JSON results file and, optionally, a SQLite database.
//
// Profiling:
// go build ./cmd/bench
// ./bench -profile cpu && go tool pprof -http=":8000" ./bench cpu.pprof
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/pkg/profile"

	"collision-batcher/internal/config"
	"collision-batcher/internal/results"
	"collision-batcher/internal/sim"
)

func main() {
	var (
		method      = flag.String("method", "both", "detector to run: batched, cpu or both")
		frames      = flag.Int("frames", 200, "measured frames per method")
		scale       = flag.Float64("scale", 0, "detectable collision scale, 0 estimates it from the world")
		batch       = flag.Int("batch", 0, "pin the max batch size, 0 estimates it")
		jsonPath    = flag.String("json", "performance_results.json", "JSON results file, empty to skip")
		dbPath      = flag.String("db", "", "SQLite results database, empty to skip")
		profileMode = flag.String("profile", "", "cpu or mem to write a pprof profile")
		seed        = flag.Int64("seed", 1, "movement RNG seed")
	)
	flag.Parse()

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "":
	default:
		log.Fatalf("❌ Unknown profile mode %q", *profileMode)
	}

	cfg := config.Load()
	cfg.World.Seed = *seed
	if *scale > 0 {
		cfg.Detection.Scale = *scale
		cfg.Detection.AutoScale = false
	} else {
		cfg.Detection.AutoScale = true
	}
	if *batch > 0 {
		cfg.Detection.InitialMaxBatchSize = *batch
		cfg.Detection.AutoBatchSize = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration:\n%v", err)
	}

	var methods []string
	switch m := strings.ToLower(*method); m {
	case "both":
		methods = []string{config.MethodBatched, config.MethodCPU}
	case config.MethodBatched, config.MethodCPU:
		methods = []string{m}
	default:
		log.Fatalf("❌ Unknown method %q", *method)
	}

	var store *results.Store
	if *dbPath != "" {
		s, err := results.OpenStore(*dbPath)
		if err != nil {
			log.Fatalf("❌ Results database: %v", err)
		}
		defer s.Close()
		store = s
	}

	for _, m := range methods {
		cfg.Detection.Method = m
		r, err := run(cfg, *frames)
		if err != nil {
			log.Fatalf("❌ %s: %v", m, err)
		}

		log.Printf("🏁 %s: %d frames, avg %.2fms (%.1f FPS), max %.2fms, %.1f collisions/frame, %d failed",
			r.Method, r.TotalFrames, r.AvgFrameTime, r.AvgFPS, r.MaxFrameTime, r.CollisionsPerFrame, r.FailedFrames)

		if *jsonPath != "" {
			if err := results.AppendJSON(*jsonPath, r); err != nil {
				log.Printf("⚠️ Could not write %s: %v", *jsonPath, err)
			}
		}
		if store != nil {
			if err := store.Insert(r); err != nil {
				log.Printf("⚠️ Could not record run: %v", err)
			}
		}
	}

	if store != nil {
		best, err := store.Best()
		if err != nil {
			log.Printf("⚠️ Could not read best runs: %v", err)
			return
		}
		for m, r := range best {
			log.Printf("🥇 Best %s: avg %.2fms over %d entities", m, r.AvgFrameTime, r.EntitiesSpawned)
		}
	}
}

// run measures frames ticks of one detector. The first tick is warm-up and
// is not measured.
func run(cfg config.AppConfig, frames int) (results.PerformanceResult, error) {
	world := sim.WorldFromConfig(cfg.World)
	detector, closeDetector, err := sim.NewDetector(cfg, world)
	if err != nil {
		return results.PerformanceResult{}, err
	}
	defer closeDetector()

	engine := sim.NewEngine(detector, world, sim.Options{})
	tracker := results.NewTracker(frames)
	ctx := context.Background()

	log.Printf("⏱️  Running %s over %d entities for %d frames", detector.Name(), world.EntityCount(), frames)

	var last *sim.TickSnapshot
	for !tracker.Done() {
		start := time.Now()
		snap, err := engine.Step(ctx)
		tracker.Observe(time.Since(start), snap.PairCount, err != nil)
		if err == nil {
			last = snap
		}
	}

	r := tracker.Result(detector.Name(), world.EntityCount())
	r.Scale = engine.Scale()
	if last != nil {
		r.MaxBatchSize = last.MaxBatchSize
	}
	return r, nil
}
