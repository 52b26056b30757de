package collision

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// State is the pipeline's position in the per-job state machine.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateDispatched
	StateCollecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateDispatched:
		return "dispatched"
	case StateCollecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// BatchManager is the scheduling context for one tick. CurrentJobIndex is only
// advanced by the pipeline, after a job's results are fully collected.
type BatchManager struct {
	MaxBatchSize    int
	CurrentJobIndex int
}

// Reset rewinds the job index for a new planning pass.
func (m *BatchManager) Reset() { m.CurrentJobIndex = 0 }

func (m *BatchManager) advance() { m.CurrentJobIndex++ }

// JobResult is one completed job's translated pairs.
type JobResult struct {
	Index int
	Job   BatchJob
	Pairs []CollidingPair
	// Primary lists every entity in the job's primary range.
	Primary []EntityID
	Dropped uint64
}

// PipelineOptions configures a Pipeline. Zero values are valid.
type PipelineOptions struct {
	Logger    Logger
	Telemetry Telemetry
	// OnTransition observes every state change.
	OnTransition func(from, to State, jobIndex int)
}

// Pipeline runs planned jobs through an accelerator strictly one at a time.
// Jobs share the accelerator's buffers, so job k+1 is never prepared before
// job k's results have been appended.
type Pipeline struct {
	accel        Accelerator
	logger       Logger
	telemetry    Telemetry
	onTransition func(from, to State, jobIndex int)

	state         State
	truncationLog *rate.Sometimes
	invalidLog    *rate.Sometimes
}

// NewPipeline creates a pipeline bound to one accelerator.
func NewPipeline(accel Accelerator, opts PipelineOptions) *Pipeline {
	return &Pipeline{
		accel:         accel,
		logger:        orDefaultLogger(opts.Logger),
		telemetry:     orNopTelemetry(opts.Telemetry),
		onTransition:  opts.OnTransition,
		truncationLog: &rate.Sometimes{Interval: 5 * time.Second},
		invalidLog:    &rate.Sometimes{Interval: 5 * time.Second},
	}
}

// State returns the current state. It is Idle between ticks.
func (p *Pipeline) State() State { return p.state }

// Run executes jobs in planning order starting at m.CurrentJobIndex. Any job
// that cannot complete aborts the tick with a *TickError; no partial results
// are returned.
func (p *Pipeline) Run(ctx context.Context, m *BatchManager, population []Collidable, jobs []BatchJob, scale float32) ([]JobResult, error) {
	if m.MaxBatchSize < 1 {
		return nil, &ConfigError{Field: "max_batch_size", Err: ErrInvalidBatchSize}
	}
	if !validScale(scale) {
		return nil, &ConfigError{Field: "detectable_collision_scale", Err: ErrInvalidScale}
	}
	if err := ValidateJobs(jobs, len(population)); err != nil {
		return nil, fmt.Errorf("invalid job plan: %w", err)
	}

	limits := p.accel.Limits()
	results := make([]JobResult, 0, len(jobs))

	for m.CurrentJobIndex < len(jobs) {
		idx := m.CurrentJobIndex
		job := jobs[idx]
		start := time.Now()

		p.transition(StatePreparing, idx)
		batch := prepareBatch(population, job, scale, limits)
		task, err := p.accel.PrepareJob(batch.input)
		if err != nil {
			return nil, p.fail(idx, job, err)
		}

		p.transition(StateDispatched, idx)
		out, err := task.DispatchAndWait(ctx)
		if err != nil {
			return nil, p.fail(idx, job, fmt.Errorf("%w: %w", ErrMissingResult, err))
		}

		p.transition(StateCollecting, idx)
		res := p.collect(idx, job, batch, out)
		results = append(results, res)
		p.telemetry.ObserveJob(job.Kind(), len(res.Pairs), time.Since(start))

		p.transition(StateIdle, idx)
		m.advance()
	}
	return results, nil
}

func (p *Pipeline) collect(idx int, job BatchJob, b preparedBatch, out KernelOutput) JobResult {
	pairs := make([]CollidingPair, 0, len(out.Pairs))
	invalid := 0
	for _, raw := range out.Pairs {
		// (i, i) is the kernel's empty-slot sentinel, never a collision.
		if raw[0] == raw[1] {
			continue
		}
		a, okA := b.table.lookup(raw[0])
		c, okB := b.table.lookup(raw[1])
		if !okA || !okB {
			invalid++
			continue
		}
		pairs = append(pairs, newPair(a, c))
	}

	if invalid > 0 {
		p.invalidLog.Do(func() {
			p.logger.Printf("⚠️ job %d %s: discarded %d results with out-of-batch indices", idx, job, invalid)
		})
	}
	dropped := out.Dropped()
	if dropped > 0 {
		p.telemetry.ObserveTruncation(dropped)
		p.truncationLog.Do(func() {
			p.logger.Printf("⚠️ job %d %s: output buffer full (%d slots), %d results dropped; raise the detectable collision scale",
				idx, job, b.capacity, dropped)
		})
	}

	return JobResult{
		Index:   idx,
		Job:     job,
		Pairs:   pairs,
		Primary: b.primary,
		Dropped: dropped,
	}
}

func (p *Pipeline) fail(idx int, job BatchJob, err error) error {
	stage := p.state
	p.transition(StateIdle, idx)
	return &TickError{JobIndex: idx, Job: job, Stage: stage, Err: err}
}

func (p *Pipeline) transition(to State, jobIndex int) {
	from := p.state
	p.state = to
	if p.onTransition != nil {
		p.onTransition(from, to, jobIndex)
	}
}
