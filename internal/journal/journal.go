// Package journal records detection events as newline-delimited JSON with
// bounded memory and rate limiting.
package journal

import (
	"bufio"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/time/rate"
)

const (
	EventBufferSize    = 1024                   // Circular buffer size
	MaxEventsPerSec    = 10000                  // Global rate limit
	MaxEventsPerType   = 100                    // Per-type rate limit per second
	BatchFlushSize     = 64                     // Events per batch write
	BatchFlushInterval = 100 * time.Millisecond // How often to flush
)

// Journal provides bounded, rate-limited event recording with backpressure.
// Emit never blocks the tick loop: when the buffer is full the oldest event
// is dropped.
type Journal struct {
	mu        sync.Mutex
	buffer    [EventBufferSize]Event
	writeHead uint64 // last sequence written
	readHead  uint64 // last sequence flushed

	globalLimiter *rate.Limiter
	typeLimiters  sync.Map // map[EventType]*rate.Limiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	// OnEmit and OnDrop observe accepted and dropped events.
	OnEmit func(Event)
	OnDrop func()

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

// New creates a journal. Call Start before emitting.
func New() *Journal {
	return &Journal{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the async writer. An empty path keeps events in memory only.
func (j *Journal) Start(filePath string) error {
	if j.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		j.file = file
	}

	j.running.Store(true)
	j.writerWg.Add(1)
	go j.writerLoop()
	return nil
}

// Stop flushes pending events and closes the file.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.running.Store(false)
		close(j.stopChan)
		j.writerWg.Wait()

		j.fileMu.Lock()
		if j.file != nil {
			j.file.Close()
		}
		j.fileMu.Unlock()
	})
}

// Emit adds an event. It returns false if rate limited or not running.
func (j *Journal) Emit(event Event) bool {
	if !j.running.Load() {
		return false
	}

	if !j.globalLimiter.Allow() || !j.typeLimiter(event.Type).Allow() {
		j.drop()
		return false
	}

	j.mu.Lock()
	full := j.writeHead-j.readHead >= EventBufferSize
	if full {
		// Rolling window: oldest event goes
		j.readHead++
	}
	j.writeHead++
	event.Sequence = j.writeHead
	j.buffer[j.writeHead%EventBufferSize] = event
	j.mu.Unlock()

	if full {
		j.drop()
	}
	j.totalCount.Add(1)
	if j.OnEmit != nil {
		j.OnEmit(event)
	}
	return true
}

// EmitSimple creates and emits an event.
func (j *Journal) EmitSimple(eventType EventType, tickNum uint64, payload any) bool {
	return j.Emit(NewEvent(eventType, tickNum, payload))
}

func (j *Journal) drop() {
	j.droppedCount.Add(1)
	if j.OnDrop != nil {
		j.OnDrop()
	}
}

func (j *Journal) typeLimiter(t EventType) *rate.Limiter {
	if l, ok := j.typeLimiters.Load(t); ok {
		return l.(*rate.Limiter)
	}
	l, _ := j.typeLimiters.LoadOrStore(t, rate.NewLimiter(MaxEventsPerType, MaxEventsPerType/10))
	return l.(*rate.Limiter)
}

func (j *Journal) writerLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)

	for {
		select {
		case <-j.stopChan:
			// Final flush
			for {
				batch = j.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				j.flushBatch(batch)
			}

		case <-ticker.C:
			batch = j.collectBatch(batch[:0])
			if len(batch) > 0 {
				j.flushBatch(batch)
			}
		}
	}
}

// collectBatch reads available events from the circular buffer.
func (j *Journal) collectBatch(batch []Event) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	for j.readHead < j.writeHead && len(batch) < BatchFlushSize {
		j.readHead++
		batch = append(batch, j.buffer[j.readHead%EventBufferSize])
	}
	return batch
}

// flushBatch appends events to disk as newline-delimited JSON.
func (j *Journal) flushBatch(batch []Event) {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()

	if j.file == nil {
		return
	}

	w := bufio.NewWriter(j.file)
	for _, event := range batch {
		data, err := sonnet.Marshal(event)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	w.Flush()
}

// Stats is a point-in-time view of journal counters.
type Stats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// GetStats returns journal counters.
func (j *Journal) GetStats() Stats {
	j.mu.Lock()
	pending := j.writeHead - j.readHead
	j.mu.Unlock()

	return Stats{
		Total:   j.totalCount.Load(),
		Dropped: j.droppedCount.Load(),
		Pending: pending,
		Running: j.running.Load(),
	}
}
