package sim

import (
	"fmt"
	"log"

	"collision-batcher/internal/accel"
	"collision-batcher/internal/collision"
	"collision-batcher/internal/config"
	"collision-batcher/internal/telemetry"
)

// WorldFromConfig converts the loaded world settings.
func WorldFromConfig(c config.WorldConfig) WorldConfig {
	return WorldConfig{
		MinX:         c.MinX,
		MinY:         c.MinY,
		MaxX:         c.MaxX,
		MaxY:         c.MaxY,
		SensorRadius: float32(c.SensorRadius),
		BodyRadius:   float32(c.BodyRadius),
		Seed:         c.Seed,
		CacheFrames:  c.CacheFrames,
	}
}

// Closer releases a detector's workers or device.
type Closer func()

// NewDetector builds the configured detector for world. The returned Closer
// must be called once the engine has stopped.
func NewDetector(cfg config.AppConfig, world WorldConfig) (collision.Detector, Closer, error) {
	det := cfg.Detection

	switch det.Method {
	case config.MethodCPU:
		cpu := collision.NewCPUDetector(det.CPUWorkers, telemetry.Prometheus{})
		cpu.Start()
		log.Printf("🧮 CPU detector with %d workers", cpu.Workers())
		return cpu, cpu.Stop, nil

	case config.MethodBatched:
		scale := float32(det.Scale)
		if det.AutoScale {
			scale = world.EstimateScale(collision.LogisticScaleEstimator{})
			log.Printf("📐 Estimated detectable collision scale %.4f for %.0fx%.0f world", scale, world.Width(), world.Height())
		}

		opts := collision.BatchedOptions{
			Scale:               scale,
			InitialMaxBatchSize: det.InitialMaxBatchSize,
			Telemetry:           telemetry.Prometheus{},
		}
		if !det.AutoBatchSize {
			opts.FixedMaxBatchSize = det.InitialMaxBatchSize
		}

		device := accel.NewDevice(accel.Options{
			MaxResultBufferBytes: cfg.Accelerator.MaxResultBufferBytes,
			Workers:              cfg.Accelerator.Workers,
			PipelineCacheSize:    cfg.Accelerator.PipelineCacheSize,
		})
		batched, err := collision.NewBatchedDetector(device, opts)
		if err != nil {
			device.Close()
			return nil, nil, err
		}
		log.Printf("⚡ Batched detector: %d-byte result buffer, scale %.4f", cfg.Accelerator.MaxResultBufferBytes, scale)
		return batched, func() { device.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown detection method %q", det.Method)
}
