package sim

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"collision-batcher/internal/collision"
	"collision-batcher/internal/journal"
	"collision-batcher/internal/telemetry"
)

// ScaleSetter is implemented by detectors whose batch plan depends on the
// detectable-collision scale.
type ScaleSetter interface {
	SetScale(scale float32) error
	Scale() float32
}

// Options configures an Engine.
type Options struct {
	TickRate int
	// Journal receives tick events. Nil disables journaling.
	Journal *journal.Journal
	// OnTick observes each published snapshot from the tick goroutine.
	OnTick func(*TickSnapshot)
}

// Engine moves the population every tick and runs one detection pass.
type Engine struct {
	mu         sync.Mutex
	detector   collision.Detector
	population []collision.Collidable
	positions  *PositionCache

	tickRate int
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	loopDone sync.WaitGroup

	tickCount uint64
	sequence  uint64
	lastBatch int
	stats     Stats

	snapshot atomic.Pointer[TickSnapshot]
	journal  *journal.Journal
	onTick   func(*TickSnapshot)
}

// NewEngine spawns the world's population and binds it to detector.
func NewEngine(detector collision.Detector, world WorldConfig, opts Options) *Engine {
	if opts.TickRate <= 0 {
		opts.TickRate = 30
	}
	pop := SpawnGrid(world)
	telemetry.UpdatePopulation(len(pop))

	return &Engine{
		detector:   detector,
		population: pop,
		positions:  NewPositionCache(world, len(pop)),
		tickRate:   opts.TickRate,
		journal:    opts.Journal,
		onTick:     opts.OnTick,
		stats:      Stats{Population: len(pop)},
	}
}

// Start begins the tick loop. An engine may be started again after Stop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ticker = time.NewTicker(time.Second / time.Duration(e.tickRate))
	e.stopChan = make(chan struct{})
	ticks, stop := e.ticker.C, e.stopChan
	e.loopDone.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.loopDone.Done()
		for {
			select {
			case <-ticks:
				e.Step(context.Background())
			case <-stop:
				return
			}
		}
	}()

	log.Printf("🎮 Detection loop started at %d TPS (%d entities, %s detector)", e.tickRate, len(e.population), e.detector.Name())
}

// Stop stops the tick loop and waits for the current tick to finish
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.ticker.Stop()
	close(e.stopChan)
	e.mu.Unlock()

	e.loopDone.Wait()
	log.Println("🛑 Detection loop stopped")
}

// Step advances positions by one frame and runs detection. A failed detection
// still publishes a snapshot, with no pairs and the error recorded.
func (e *Engine) Step(ctx context.Context) (*TickSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tickCount++
	e.positions.Apply(e.population)
	e.positions.Advance()

	start := time.Now()
	result, err := e.detector.Detect(ctx, e.population)
	elapsed := time.Since(start)

	e.sequence++
	snap := &TickSnapshot{
		Sequence:   e.sequence,
		Timestamp:  time.Now(),
		Tick:       e.tickCount,
		Detector:   e.detector.Name(),
		DurationMs: float64(elapsed.Microseconds()) / 1000,
		Population: append([]collision.Collidable(nil), e.population...),
	}
	if s, ok := e.detector.(ScaleSetter); ok {
		snap.Scale = s.Scale()
	}

	if err != nil {
		snap.Error = err.Error()
		e.recordFailure(snap, err)
	} else {
		snap.Pairs = result.Pairs
		snap.PairCount = len(result.Pairs)
		snap.Jobs = result.Jobs
		snap.MaxBatchSize = result.MaxBatchSize
		snap.Truncated = result.Truncated
		for _, bodies := range collision.SensorContacts(result.Pairs) {
			snap.Contacts += len(bodies)
		}
		e.recordSuccess(snap)
	}

	e.snapshot.Store(snap)
	if e.onTick != nil {
		e.onTick(snap)
	}
	return snap, err
}

func (e *Engine) recordSuccess(snap *TickSnapshot) {
	e.updateStats(snap)
	e.stats.TotalPairs += uint64(snap.PairCount)
	e.stats.TotalContacts += uint64(snap.Contacts)
	e.stats.TotalTruncated += snap.Truncated
	telemetry.UpdateSensorContacts(snap.Contacts)

	if e.journal == nil {
		return
	}
	e.journal.EmitSimple(journal.EventTypeTick, snap.Tick, journal.TickPayload{
		Detector:   snap.Detector,
		Population: len(snap.Population),
		Jobs:       snap.Jobs,
		Pairs:      snap.PairCount,
		Contacts:   snap.Contacts,
		DurationMs: snap.DurationMs,
	})
	if snap.Truncated > 0 {
		e.journal.EmitSimple(journal.EventTypeTruncation, snap.Tick, journal.TruncationPayload{
			Dropped: snap.Truncated,
			Scale:   snap.Scale,
		})
	}
	if snap.MaxBatchSize != e.lastBatch {
		e.lastBatch = snap.MaxBatchSize
		e.journal.EmitSimple(journal.EventTypeBatchSize, snap.Tick, journal.BatchSizePayload{
			MaxBatchSize: snap.MaxBatchSize,
			Scale:        snap.Scale,
		})
	}
}

func (e *Engine) recordFailure(snap *TickSnapshot, err error) {
	e.updateStats(snap)
	e.stats.FailedTicks++
	log.Printf("⚠️ Tick %d: %v", snap.Tick, err)

	if e.journal == nil {
		return
	}
	payload := journal.TickFailedPayload{Detector: snap.Detector, JobIndex: -1, Error: err.Error()}
	var tickErr *collision.TickError
	if errors.As(err, &tickErr) {
		payload.JobIndex = tickErr.JobIndex
		payload.Job = tickErr.Job.String()
		payload.Stage = tickErr.Stage.String()
	}
	e.journal.EmitSimple(journal.EventTypeTickFailed, snap.Tick, payload)
}

func (e *Engine) updateStats(snap *TickSnapshot) {
	e.stats.Ticks++
	n := float64(e.stats.Ticks)
	e.stats.AvgTickMs += (snap.DurationMs - e.stats.AvgTickMs) / n
	if snap.DurationMs > e.stats.MaxTickMs {
		e.stats.MaxTickMs = snap.DurationMs
	}
}

// SetScale changes the detector's detectable-collision scale.
func (e *Engine) SetScale(scale float32) error {
	s, ok := e.detector.(ScaleSetter)
	if !ok {
		return errors.New("detector " + e.detector.Name() + " has no collision scale")
	}
	from := s.Scale()
	if err := s.SetScale(scale); err != nil {
		return err
	}
	log.Printf("📐 Detectable collision scale %.4f -> %.4f", from, scale)
	if e.journal != nil {
		e.journal.EmitSimple(journal.EventTypeScaleChanged, e.currentTick(), journal.ScalePayload{From: from, To: scale})
	}
	return nil
}

// Scale returns the detector's scale, or 0 for detectors without one.
func (e *Engine) Scale() float32 {
	if s, ok := e.detector.(ScaleSetter); ok {
		return s.Scale()
	}
	return 0
}

func (e *Engine) currentTick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickCount
}

// Snapshot returns the latest published tick, or nil before the first tick.
func (e *Engine) Snapshot() *TickSnapshot {
	return e.snapshot.Load()
}

// Stats returns the running summary.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Running = e.running
	return s
}

// DetectorName returns the active detector's name.
func (e *Engine) DetectorName() string { return e.detector.Name() }

// PopulationSize returns the number of simulated entities.
func (e *Engine) PopulationSize() int { return len(e.population) }
