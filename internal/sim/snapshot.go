package sim

import (
	"time"

	"collision-batcher/internal/collision"
)

// TickSnapshot is an immutable record of one tick. Slices are owned by the
// snapshot and never modified after it is published.
type TickSnapshot struct {
	Sequence     uint64    `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	Tick         uint64    `json:"tick"`
	Detector     string    `json:"detector"`
	Scale        float32   `json:"scale"`
	MaxBatchSize int       `json:"maxBatchSize"`
	Jobs         int       `json:"jobs"`
	PairCount    int       `json:"pairCount"`
	Contacts     int       `json:"contacts"`
	Truncated    uint64    `json:"truncated"`
	DurationMs   float64   `json:"durationMs"`
	Error        string    `json:"error,omitempty"`

	Population []collision.Collidable    `json:"-"`
	Pairs      []collision.CollidingPair `json:"-"`
}

// Failed reports whether the tick's detection phase aborted.
func (s *TickSnapshot) Failed() bool { return s.Error != "" }

// Stats is a running summary across ticks.
type Stats struct {
	Ticks          uint64  `json:"ticks"`
	FailedTicks    uint64  `json:"failedTicks"`
	TotalPairs     uint64  `json:"totalPairs"`
	TotalContacts  uint64  `json:"totalContacts"`
	TotalTruncated uint64  `json:"totalTruncated"`
	AvgTickMs      float64 `json:"avgTickMs"`
	MaxTickMs      float64 `json:"maxTickMs"`
	Population     int     `json:"population"`
	Running        bool    `json:"running"`
}
