package journal

import "time"

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown      EventType = iota
	EventTypeTick                   // Completed detection tick
	EventTypeTickFailed             // Tick aborted by a job failure
	EventTypeTruncation             // Kernel output buffer overflowed
	EventTypeBatchSize              // Max batch size recomputed
	EventTypeScaleChanged           // Detectable collision scale changed
)

// EventVersion for backwards compatibility in readers
const EventVersion uint8 = 1

// Event is one journal record
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`
	TickNum   uint64    `json:"tickNum"`
	Payload   any       `json:"payload,omitempty"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypeTickFailed:
		return "tick_failed"
	case EventTypeTruncation:
		return "truncation"
	case EventTypeBatchSize:
		return "batch_size"
	case EventTypeScaleChanged:
		return "scale_changed"
	default:
		return "unknown"
	}
}

// TickPayload summarizes a completed tick
type TickPayload struct {
	Detector   string  `json:"detector"`
	Population int     `json:"population"`
	Jobs       int     `json:"jobs"`
	Pairs      int     `json:"pairs"`
	Contacts   int     `json:"contacts"`
	DurationMs float64 `json:"durationMs"`
}

// TickFailedPayload names the job that aborted a tick
type TickFailedPayload struct {
	Detector string `json:"detector"`
	JobIndex int    `json:"jobIndex"`
	Job      string `json:"job,omitempty"`
	Stage    string `json:"stage,omitempty"`
	Error    string `json:"error"`
}

// TruncationPayload records dropped kernel results
type TruncationPayload struct {
	Dropped uint64  `json:"dropped"`
	Scale   float32 `json:"scale"`
}

// BatchSizePayload records an estimator recomputation
type BatchSizePayload struct {
	MaxBatchSize int     `json:"maxBatchSize"`
	Scale        float32 `json:"scale"`
}

// ScalePayload records a scale change
type ScalePayload struct {
	From float32 `json:"from"`
	To   float32 `json:"to"`
}

// NewEvent creates an event stamped with the current time
func NewEvent(eventType EventType, tickNum uint64, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		Payload:   payload,
	}
}
