package collision

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BatchedDetectorName identifies the batched accelerator path in metrics and snapshots.
const BatchedDetectorName = "batched"

// DefaultInitialMaxBatchSize seeds the estimator before the first computation.
const DefaultInitialMaxBatchSize = 10

// Detector finds every overlapping pair in a population snapshot.
type Detector interface {
	Name() string
	Detect(ctx context.Context, population []Collidable) (Result, error)
}

// BatchedOptions configures a BatchedDetector.
type BatchedOptions struct {
	// Scale is the expected fraction of candidate pairs that collide, in (0, 1].
	Scale float32
	// InitialMaxBatchSize seeds the estimator cache. Defaults to DefaultInitialMaxBatchSize.
	InitialMaxBatchSize int
	// FixedMaxBatchSize, when positive, disables estimation and caps every
	// dispatch at this many entities.
	FixedMaxBatchSize int

	Logger       Logger
	Telemetry    Telemetry
	OnTransition func(from, to State, jobIndex int)
}

// BatchedDetector detects collisions in populations too large for one
// accelerator dispatch. Detect calls are serialized.
type BatchedDetector struct {
	mu sync.Mutex

	estimator *BatchSizeEstimator
	pipeline  *Pipeline
	manager   BatchManager
	scale     float32
	fixed     int

	logger    Logger
	telemetry Telemetry
}

// NewBatchedDetector validates opts and binds a detector to accel.
func NewBatchedDetector(accel Accelerator, opts BatchedOptions) (*BatchedDetector, error) {
	if !validScale(opts.Scale) {
		return nil, &ConfigError{Field: "detectable_collision_scale", Err: fmt.Errorf("%w: got %v", ErrInvalidScale, opts.Scale)}
	}
	if opts.FixedMaxBatchSize < 0 {
		return nil, &ConfigError{Field: "max_batch_size", Err: ErrInvalidBatchSize}
	}
	initial := opts.InitialMaxBatchSize
	if initial <= 0 {
		initial = DefaultInitialMaxBatchSize
	}

	logger := orDefaultLogger(opts.Logger)
	telemetry := orNopTelemetry(opts.Telemetry)
	if opts.FixedMaxBatchSize > 0 {
		initial = opts.FixedMaxBatchSize
		telemetry.SetMaxBatchSize(initial)
	}

	return &BatchedDetector{
		estimator: NewBatchSizeEstimator(accel.Limits(), initial),
		pipeline: NewPipeline(accel, PipelineOptions{
			Logger:       logger,
			Telemetry:    telemetry,
			OnTransition: opts.OnTransition,
		}),
		manager:   BatchManager{MaxBatchSize: initial},
		scale:     opts.Scale,
		fixed:     opts.FixedMaxBatchSize,
		logger:    logger,
		telemetry: telemetry,
	}, nil
}

// Name implements Detector.
func (d *BatchedDetector) Name() string { return BatchedDetectorName }

// SetScale changes the detectable-collision scale. The max batch size is
// recomputed on the next tick.
func (d *BatchedDetector) SetScale(scale float32) error {
	if !validScale(scale) {
		return &ConfigError{Field: "detectable_collision_scale", Err: fmt.Errorf("%w: got %v", ErrInvalidScale, scale)}
	}
	d.mu.Lock()
	d.scale = scale
	d.mu.Unlock()
	return nil
}

// Scale returns the current detectable-collision scale.
func (d *BatchedDetector) Scale() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scale
}

// MaxBatchSize returns the per-dispatch entity limit used by the most recent tick.
func (d *BatchedDetector) MaxBatchSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manager.MaxBatchSize
}

// Detect runs one tick's detection phase: estimate, plan, execute, combine.
// On error no pairs are returned and the next tick starts from a fresh plan.
func (d *BatchedDetector) Detect(ctx context.Context, population []Collidable) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	result, err := d.detect(ctx, population)
	if err != nil {
		d.telemetry.ObserveTickFailure(BatchedDetectorName)
		return Result{}, err
	}
	d.telemetry.ObserveTick(BatchedDetectorName, result.Jobs, len(result.Pairs), time.Since(start))
	return result, nil
}

func (d *BatchedDetector) detect(ctx context.Context, population []Collidable) (Result, error) {
	size, err := d.batchSize()
	if err != nil {
		return Result{}, err
	}

	jobs, err := PlanJobs(len(population), RangeSize(len(population), size))
	if err != nil {
		return Result{}, err
	}

	d.manager.MaxBatchSize = size
	d.manager.Reset()
	results, err := d.pipeline.Run(ctx, &d.manager, population, jobs, d.scale)
	if err != nil {
		return Result{}, err
	}

	pairs, err := Combine(results)
	if err != nil {
		return Result{}, err
	}

	var truncated uint64
	for _, r := range results {
		truncated += r.Dropped
	}
	return Result{
		Pairs:        pairs,
		Jobs:         len(jobs),
		MaxBatchSize: size,
		Truncated:    truncated,
	}, nil
}

func (d *BatchedDetector) batchSize() (int, error) {
	if d.fixed > 0 {
		return d.fixed, nil
	}
	size, recomputed, err := d.estimator.Update(d.scale)
	if err != nil {
		return 0, err
	}
	if recomputed {
		d.logger.Printf("📐 Max batch size %d for scale %.4f", size, d.scale)
		d.telemetry.SetMaxBatchSize(size)
	}
	return size, nil
}
