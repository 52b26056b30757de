// Package results tracks benchmark runs and persists their summaries.
package results

import (
	"time"
)

// PerformanceResult summarizes one benchmark run.
type PerformanceResult struct {
	Method             string  `json:"method"`
	Collisions         uint64  `json:"collisions"`
	CollisionsPerFrame float64 `json:"collisions_per_frame"`
	DurationMs         int64   `json:"duration_ms"`
	AvgFrameTime       float64 `json:"avg_frame_time"`
	MaxFrameTime       float64 `json:"max_frame_time"`
	AvgFPS             float64 `json:"avg_fps"`
	TotalFrames        int     `json:"total_frames"`
	EntitiesSpawned    int     `json:"entities_spawned"`
	MaxBatchSize       int     `json:"max_batch_size,omitempty"`
	Scale              float32 `json:"scale,omitempty"`
	FailedFrames       int     `json:"failed_frames,omitempty"`
}

// Tracker accumulates frame timings. The first frame is a warm-up and is not
// measured; the run is complete after targetFrames measured frames.
type Tracker struct {
	targetFrames int
	firstSeen    bool
	start        time.Time

	frames       int
	failed       int
	totalFrameMs float64
	maxFrameMs   float64
	fpsSum       float64
	collisions   uint64
}

// NewTracker creates a tracker for targetFrames measured frames.
func NewTracker(targetFrames int) *Tracker {
	return &Tracker{targetFrames: targetFrames}
}

// Observe records one frame. collisions is the sensor-body contacts processed.
// It returns true once the run is complete.
func (t *Tracker) Observe(frameTime time.Duration, collisions int, failed bool) bool {
	if !t.firstSeen {
		t.firstSeen = true
		return t.Done()
	}
	if t.start.IsZero() {
		t.start = time.Now().Add(-frameTime)
	}

	ms := float64(frameTime.Microseconds()) / 1000
	t.frames++
	t.totalFrameMs += ms
	t.maxFrameMs = max(t.maxFrameMs, ms)
	if frameTime > 0 {
		t.fpsSum += 1 / frameTime.Seconds()
	}
	if failed {
		t.failed++
	} else {
		t.collisions += uint64(collisions)
	}
	return t.Done()
}

// Done reports whether the target frame count was reached.
func (t *Tracker) Done() bool { return t.frames >= t.targetFrames }

// Frames returns the number of measured frames.
func (t *Tracker) Frames() int { return t.frames }

// Result builds the run summary.
func (t *Tracker) Result(method string, entities int) PerformanceResult {
	r := PerformanceResult{
		Method:          method,
		Collisions:      t.collisions,
		MaxFrameTime:    t.maxFrameMs,
		TotalFrames:     t.frames,
		EntitiesSpawned: entities,
		FailedFrames:    t.failed,
	}
	if !t.start.IsZero() {
		r.DurationMs = time.Since(t.start).Milliseconds()
	}
	if t.frames > 0 {
		r.CollisionsPerFrame = float64(t.collisions) / float64(t.frames)
		r.AvgFrameTime = t.totalFrameMs / float64(t.frames)
		r.AvgFPS = t.fpsSum / float64(t.frames)
	}
	return r
}
