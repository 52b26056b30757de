// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for detection, world and server settings.
//
// Every section has a DefaultX() and an XFromEnv() that applies environment
// overrides on top of the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// DETECTION CONFIGURATION
// =============================================================================

// Detection methods
const (
	MethodBatched = "batched"
	MethodCPU     = "cpu"
)

// DetectionConfig selects the detector and its batching behavior.
type DetectionConfig struct {
	Method              string  // "batched" or "cpu"
	Scale               float64 // Detectable collision scale in (0, 1]
	AutoScale           bool    // Estimate Scale from the world instead of using the value above
	InitialMaxBatchSize int     // Seed for the batch size estimator
	AutoBatchSize       bool    // false pins every plan to InitialMaxBatchSize
	CPUWorkers          int     // CPU fallback pool size, 0 = NumCPU
}

// DefaultDetection returns the default detection configuration.
func DefaultDetection() DetectionConfig {
	return DetectionConfig{
		Method:              MethodBatched,
		Scale:               1,
		AutoScale:           false,
		InitialMaxBatchSize: 10,
		AutoBatchSize:       true,
		CPUWorkers:          0,
	}
}

// DetectionFromEnv returns detection configuration with environment variable overrides.
func DetectionFromEnv() DetectionConfig {
	cfg := DefaultDetection()

	if m := os.Getenv("DETECTION_METHOD"); m != "" {
		cfg.Method = strings.ToLower(m)
	}
	if s := getEnvFloat("DETECTABLE_COLLISION_SCALE", -1); s >= 0 {
		cfg.Scale = s
	}
	cfg.AutoScale = getEnvBool("AUTO_SCALE", cfg.AutoScale)
	if b := getEnvInt("INITIAL_MAX_BATCH_SIZE", 0); b > 0 {
		cfg.InitialMaxBatchSize = b
	}
	cfg.AutoBatchSize = getEnvBool("AUTO_BATCH_SIZE", cfg.AutoBatchSize)
	if w := getEnvInt("CPU_WORKERS", -1); w >= 0 {
		cfg.CPUWorkers = w
	}

	return cfg
}

// =============================================================================
// ACCELERATOR CONFIGURATION
// =============================================================================

// AcceleratorConfig holds the software device limits.
type AcceleratorConfig struct {
	MaxResultBufferBytes uint64 // Result buffer budget per dispatch
	Workers              int    // Kernel goroutines per dispatch, 0 = NumCPU
	PipelineCacheSize    int    // Batch shapes kept warm
}

// DefaultAccelerator returns the default accelerator configuration.
func DefaultAccelerator() AcceleratorConfig {
	return AcceleratorConfig{
		MaxResultBufferBytes: 128 << 20, // 128 MiB, the common GPU storage buffer limit
		Workers:              0,
		PipelineCacheSize:    10,
	}
}

// AcceleratorFromEnv returns accelerator configuration with environment variable overrides.
func AcceleratorFromEnv() AcceleratorConfig {
	cfg := DefaultAccelerator()

	if b := getEnvInt("ACCEL_MAX_BUFFER_BYTES", 0); b > 0 {
		cfg.MaxResultBufferBytes = uint64(b)
	}
	if w := getEnvInt("ACCEL_WORKERS", -1); w >= 0 {
		cfg.Workers = w
	}
	if c := getEnvInt("ACCEL_PIPELINE_CACHE", 0); c > 0 {
		cfg.PipelineCacheSize = c
	}

	return cfg
}

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig holds spawn bounds, radii and movement settings.
type WorldConfig struct {
	MinX, MinY   int // Bottom-left grid bound (inclusive)
	MaxX, MaxY   int // Top-right grid bound (exclusive)
	SensorRadius float64
	BodyRadius   float64
	Seed         int64
	TickRate     int // Ticks per second for the server loop
	CacheFrames  int // Pre-generated movement frames
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		MinX:         -14,
		MinY:         -14,
		MaxX:         14,
		MaxY:         14,
		SensorRadius: 20.5,
		BodyRadius:   2.5,
		Seed:         1,
		TickRate:     30,
		CacheFrames:  1000,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	// Bounds are symmetric: WORLD_HALF_EXTENT=14 gives [-14, 14)
	if h := getEnvInt("WORLD_HALF_EXTENT", 0); h > 0 {
		cfg.MinX, cfg.MinY, cfg.MaxX, cfg.MaxY = -h, -h, h, h
	}
	if r := getEnvFloat("SENSOR_RADIUS", 0); r > 0 {
		cfg.SensorRadius = r
	}
	if r := getEnvFloat("BODY_RADIUS", 0); r > 0 {
		cfg.BodyRadius = r
	}
	if s := getEnvInt("RNG_SEED", 0); s != 0 {
		cfg.Seed = int64(s)
	}
	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if f := getEnvInt("MOVEMENT_CACHE_FRAMES", 0); f > 0 {
		cfg.CacheFrames = f
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	AdminToken     string // Bearer token for POST routes, empty leaves them open
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if o := os.Getenv("ALLOWED_ORIGINS"); o != "" {
		cfg.AllowedOrigins = strings.Split(o, ",")
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg
}

// =============================================================================
// OBSERVABILITY & JOURNAL CONFIGURATION
// =============================================================================

// ObservabilityConfig holds debug server settings.
type ObservabilityConfig struct {
	Enabled    bool
	ListenAddr string // Localhost only unless ALLOW_DEBUG_EXTERNAL=true
}

// DefaultObservability returns the default observability configuration.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// ObservabilityFromEnv returns observability configuration with environment variable overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	cfg.Enabled = getEnvBool("DEBUG_SERVER", cfg.Enabled)
	if a := os.Getenv("DEBUG_ADDR"); a != "" {
		cfg.ListenAddr = a
	}

	return cfg
}

// JournalConfig holds tick journal settings.
type JournalConfig struct {
	Path string // Empty keeps events in memory only
}

// JournalFromEnv returns journal configuration with environment variable overrides.
func JournalFromEnv() JournalConfig {
	return JournalConfig{Path: os.Getenv("JOURNAL_PATH")}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Detection     DetectionConfig
	Accelerator   AcceleratorConfig
	World         WorldConfig
	Server        ServerConfig
	Observability ObservabilityConfig
	Journal       JournalConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Detection:     DetectionFromEnv(),
		Accelerator:   AcceleratorFromEnv(),
		World:         WorldFromEnv(),
		Server:        ServerFromEnv(),
		Observability: ObservabilityFromEnv(),
		Journal:       JournalFromEnv(),
	}
}

// Validate reports every invalid setting at once.
func (c AppConfig) Validate() error {
	var errs []error

	switch c.Detection.Method {
	case MethodBatched, MethodCPU:
	default:
		errs = append(errs, fmt.Errorf("detection method %q must be %q or %q", c.Detection.Method, MethodBatched, MethodCPU))
	}
	if !(c.Detection.Scale > 0 && c.Detection.Scale <= 1) {
		errs = append(errs, fmt.Errorf("detectable collision scale %v must be in (0, 1]", c.Detection.Scale))
	}
	if c.Detection.InitialMaxBatchSize < 1 {
		errs = append(errs, fmt.Errorf("initial max batch size %d must be at least 1", c.Detection.InitialMaxBatchSize))
	}
	if c.Accelerator.MaxResultBufferBytes < 16 {
		errs = append(errs, fmt.Errorf("accelerator buffer %d bytes cannot hold a single pair", c.Accelerator.MaxResultBufferBytes))
	}
	if c.World.MaxX <= c.World.MinX || c.World.MaxY <= c.World.MinY {
		errs = append(errs, fmt.Errorf("world bounds [%d,%d)x[%d,%d) are empty", c.World.MinX, c.World.MaxX, c.World.MinY, c.World.MaxY))
	}
	if c.World.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick rate %d must be positive", c.World.TickRate))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
