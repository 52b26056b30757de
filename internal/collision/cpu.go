package collision

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// CPUDetectorName identifies the CPU fallback in metrics and snapshots.
const CPUDetectorName = "cpu"

// cpuSequentialThreshold is the population below which pool overhead dominates.
const cpuSequentialThreshold = 64

// cpuJob is one chunk of outer indices for a worker.
type cpuJob struct {
	positions [][2]float32
	radii     []float32
	lo, hi    int
	sink      *pairSink
	done      chan<- struct{}
}

// pairSink merges per-worker results. The lock is held only for the append.
type pairSink struct {
	mu    sync.Mutex
	pairs []RawPair
}

func (s *pairSink) merge(local []RawPair) {
	if len(local) == 0 {
		return
	}
	s.mu.Lock()
	s.pairs = append(s.pairs, local...)
	s.mu.Unlock()
}

// CPUDetector is the data-parallel fallback. It needs no batching because the
// whole population fits in memory. Workers only read the shared position and
// radius slices and write to private accumulators.
type CPUDetector struct {
	numWorkers int
	jobChan    chan cpuJob
	wg         sync.WaitGroup
	running    bool
	mu         sync.RWMutex

	telemetry Telemetry
}

// NewCPUDetector creates a detector with numWorkers goroutines. If numWorkers
// is 0 it defaults to NumCPU. Call Start to launch the pool; a stopped
// detector scans sequentially.
func NewCPUDetector(numWorkers int, telemetry Telemetry) *CPUDetector {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > 64 {
		numWorkers = 64
	}
	return &CPUDetector{
		numWorkers: numWorkers,
		jobChan:    make(chan cpuJob, numWorkers*4),
		telemetry:  orNopTelemetry(telemetry),
	}
}

// Name implements Detector.
func (d *CPUDetector) Name() string { return CPUDetectorName }

// Start launches the worker pool.
func (d *CPUDetector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	d.wg.Add(d.numWorkers)
	for i := 0; i < d.numWorkers; i++ {
		go d.worker()
	}
}

// Stop drains and stops the worker pool. It is safe to call more than once.
func (d *CPUDetector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.jobChan)
	d.mu.Unlock()

	d.wg.Wait()
}

// IsRunning reports whether the pool is running.
func (d *CPUDetector) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Workers returns the pool size.
func (d *CPUDetector) Workers() int { return d.numWorkers }

func (d *CPUDetector) worker() {
	defer d.wg.Done()
	for job := range d.jobChan {
		job.sink.merge(scanRows(job.positions, job.radii, job.lo, job.hi, nil))
		job.done <- struct{}{}
	}
}

// scanRows tests every row i in [lo, hi) against the entities after it.
func scanRows(positions [][2]float32, radii []float32, lo, hi int, out []RawPair) []RawPair {
	n := len(positions)
	for i := lo; i < hi; i++ {
		xi, yi, ri := positions[i][0], positions[i][1], radii[i]
		if ri <= 0 {
			continue
		}
		for j := i + 1; j < n; j++ {
			if Overlaps(xi, yi, ri, positions[j][0], positions[j][1], radii[j]) {
				out = append(out, RawPair{uint32(i), uint32(j)})
			}
		}
	}
	return out
}

// DetectIndices returns every overlapping (i, j) with i < j. It has the same
// output contract as the proximity kernel, without a capacity bound.
func (d *CPUDetector) DetectIndices(positions [][2]float32, radii []float32) []RawPair {
	n := len(positions)
	if n < 2 {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running || n < cpuSequentialThreshold {
		return scanRows(positions, radii, 0, n, nil)
	}

	// Rows near the start carry more work, so use more chunks than workers.
	chunks := d.numWorkers * 4
	chunkSize := (n + chunks - 1) / chunks
	sink := &pairSink{}
	done := make(chan struct{}, chunks)
	queued := 0

	for lo := 0; lo < n; lo += chunkSize {
		hi := min(lo+chunkSize, n)
		job := cpuJob{positions: positions, radii: radii, lo: lo, hi: hi, sink: sink, done: done}
		select {
		case d.jobChan <- job:
			queued++
		default:
			// Queue full, scan this chunk here.
			sink.merge(scanRows(positions, radii, lo, hi, nil))
		}
	}

	for i := 0; i < queued; i++ {
		<-done
	}
	return sink.pairs
}

// Detect implements Detector over the whole population at once.
func (d *CPUDetector) Detect(_ context.Context, population []Collidable) (Result, error) {
	start := time.Now()
	positions := make([][2]float32, len(population))
	radii := make([]float32, len(population))
	for i, c := range population {
		positions[i] = [2]float32{c.X, c.Y}
		radii[i] = c.Radius
	}

	raw := d.DetectIndices(positions, radii)
	pairs := make([]CollidingPair, 0, len(raw))
	for _, r := range raw {
		i, j := int(r[0]), int(r[1])
		pairs = append(pairs, newPair(metadataFor(population[i], i), metadataFor(population[j], j)))
	}

	jobs := 0
	if len(population) > 0 {
		jobs = 1
	}
	d.telemetry.ObserveTick(CPUDetectorName, jobs, len(pairs), time.Since(start))
	return Result{Pairs: pairs, Jobs: jobs, MaxBatchSize: len(population)}, nil
}
