package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"collision-batcher/internal/api"
	"collision-batcher/internal/config"
	"collision-batcher/internal/journal"
	"collision-batcher/internal/render"
	"collision-batcher/internal/sim"
	"collision-batcher/internal/telemetry"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎯 ================================")
	log.Println("🎯  COLLISION BATCHER")
	log.Println("🎯 ================================")

	appConfig := config.Load()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration:\n%v", err)
	}

	world := sim.WorldFromConfig(appConfig.World)
	log.Printf("🌍 World [%d,%d)x[%d,%d), %d entities, sensor %.1f body %.1f",
		world.MinX, world.MaxX, world.MinY, world.MaxY, world.EntityCount(), world.SensorRadius, world.BodyRadius)

	detector, closeDetector, err := sim.NewDetector(appConfig, world)
	if err != nil {
		log.Fatalf("❌ Detector setup failed: %v", err)
	}

	// Start tick journal
	events := journal.New()
	events.OnEmit = func(journal.Event) { telemetry.RecordJournalEvent() }
	events.OnDrop = telemetry.RecordJournalDropped
	if err := events.Start(appConfig.Journal.Path); err != nil {
		log.Printf("⚠️ Journal file disabled: %v", err)
		events.Start("")
	} else if appConfig.Journal.Path != "" {
		log.Printf("📝 Journal: %s", appConfig.Journal.Path)
	}

	debugServer := api.StartDebugServer(appConfig.Observability, events)

	// The engine publishes through the server, which needs the engine for its
	// routes, so the hook is bound after both exist.
	var server *api.Server
	engine := sim.NewEngine(detector, world, sim.Options{
		TickRate: appConfig.World.TickRate,
		Journal:  events,
		OnTick: func(snap *sim.TickSnapshot) {
			server.PublishTick(snap)
		},
	})

	server = api.NewServer(api.ServerOptions{
		Engine:         engine,
		Renderer:       render.NewRenderer(render.DefaultConfig(world)),
		Journal:        events,
		AllowedOrigins: appConfig.Server.AllowedOrigins,
		AdminToken:     appConfig.Server.AdminToken,
	})

	engine.Start()

	go func() {
		addr := ":" + strconv.Itoa(appConfig.Server.Port)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	engine.Stop()
	closeDetector()
	events.Stop()
	if debugServer != nil {
		debugServer.Shutdown(ctx)
	}

	stats := engine.Stats()
	log.Printf("📊 %d ticks (%d failed), avg %.2fms, max %.2fms", stats.Ticks, stats.FailedTicks, stats.AvgTickMs, stats.MaxTickMs)
	log.Println("👋 Goodbye!")
}
