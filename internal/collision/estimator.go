package collision

import (
	"fmt"
	"math"
)

// SafetyFactor pads the worst-case result size to absorb float rounding.
const SafetyFactor = 1.1

// AcceleratorLimits describes the accelerator's result buffer budget.
type AcceleratorLimits struct {
	MaxResultBufferBytes uint64
	ResultRecordBytes    uint64
}

// ResultCapacity returns how many result records fit in one buffer.
func (l AcceleratorLimits) ResultCapacity() int {
	if l.ResultRecordBytes == 0 {
		return 0
	}
	c := l.MaxResultBufferBytes / l.ResultRecordBytes
	if c > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(c)
}

// MaxPairs returns the number of unordered pairs among n entities.
func MaxPairs(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// MaxBatchSize solves C(b,2) * scale * recordBytes * SafetyFactor <= maxBufferBytes
// for the largest integer b.
func MaxBatchSize(maxBufferBytes, recordBytes uint64, scale float32) (int, error) {
	if !validScale(scale) {
		return 0, &ConfigError{Field: "detectable_collision_scale", Err: fmt.Errorf("%w: got %v", ErrInvalidScale, scale)}
	}
	if maxBufferBytes == 0 || recordBytes == 0 {
		return 0, &ConfigError{Field: "accelerator_limits", Err: ErrInfeasibleBatchSize}
	}

	t := float64(maxBufferBytes)
	p := float64(recordBytes)
	s := float64(scale) * SafetyFactor

	// b^2 - b - 2t/(p*s) <= 0, positive root.
	b := 0.5 * (1 + math.Sqrt(1+8*t/(p*s)))
	if math.IsInf(b, 0) || math.IsNaN(b) || b > math.MaxInt32 {
		b = math.MaxInt32
	}
	size := int(math.Floor(b))
	if size < 2 {
		return 0, &ConfigError{
			Field: "accelerator_limits",
			Err:   fmt.Errorf("%w: %d byte buffer, %d byte records, scale %v", ErrInfeasibleBatchSize, maxBufferBytes, recordBytes, scale),
		}
	}
	return size, nil
}

func validScale(scale float32) bool {
	return scale > 0 && scale <= 1 && !math.IsNaN(float64(scale))
}

// BatchSizeEstimator caches the max batch size across ticks and recomputes it
// only when the scale changes or the cached value is invalid.
type BatchSizeEstimator struct {
	limits  AcceleratorLimits
	scale   float32
	current int
}

// NewBatchSizeEstimator starts from initial, which may be 0 to force a computation
// on the first Update.
func NewBatchSizeEstimator(limits AcceleratorLimits, initial int) *BatchSizeEstimator {
	return &BatchSizeEstimator{limits: limits, current: initial}
}

// Update returns the max batch size for scale and whether it was recomputed.
func (e *BatchSizeEstimator) Update(scale float32) (size int, recomputed bool, err error) {
	if scale == e.scale && e.current >= 1 {
		return e.current, false, nil
	}
	size, err = MaxBatchSize(e.limits.MaxResultBufferBytes, e.limits.ResultRecordBytes, scale)
	if err != nil {
		return 0, false, err
	}
	e.scale = scale
	e.current = size
	return size, true, nil
}

// Current returns the cached max batch size.
func (e *BatchSizeEstimator) Current() int { return e.current }

// ScaleEstimator guesses the detectable-collision scale for a world.
// The guess is approximate and callers with better knowledge should override it.
type ScaleEstimator interface {
	EstimateScale(width, height, avgRadius float32) float32
}

// ScaleEstimatorFunc adapts a function into a ScaleEstimator.
type ScaleEstimatorFunc func(width, height, avgRadius float32) float32

// EstimateScale implements ScaleEstimator.
func (f ScaleEstimatorFunc) EstimateScale(width, height, avgRadius float32) float32 {
	return f(width, height, avgRadius)
}

// LogisticScaleEstimator is a four-parameter logistic fit of the scale needed
// to catch every collision against world area per unit radius.
type LogisticScaleEstimator struct{}

// EstimateScale implements ScaleEstimator. The result is clamped into (0, 1].
func (LogisticScaleEstimator) EstimateScale(width, height, avgRadius float32) float32 {
	const (
		bottom    = 0.07396755
		top       = 1.054372
		inflation = 401.5207
		slope     = 1.816759
	)
	if avgRadius <= 0 || width <= 0 || height <= 0 {
		return 1
	}
	f := float64(width) * float64(height) / float64(avgRadius)
	s := bottom + (top-bottom)/(1+math.Pow(f/inflation, slope))
	return ClampScale(float32(s))
}

// ClampScale limits a scale estimate to (0, 1].
func ClampScale(s float32) float32 {
	const floor = 1e-6
	if math.IsNaN(float64(s)) || s > 1 {
		return 1
	}
	if s < floor {
		return floor
	}
	return s
}
