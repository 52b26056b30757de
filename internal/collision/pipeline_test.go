package collision

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
)

var quietLogger = log.New(io.Discard, "", 0)

type recordingTelemetry struct {
	nopTelemetry
	dropped   uint64
	failures  int
	batchSize int
}

func (r *recordingTelemetry) ObserveTruncation(dropped uint64) { r.dropped += dropped }
func (r *recordingTelemetry) ObserveTickFailure(string)        { r.failures++ }
func (r *recordingTelemetry) SetMaxBatchSize(size int)         { r.batchSize = size }

// TestPipelineRunsJobsInOrder verifies every job passes through all states, one job at a time
func TestPipelineRunsJobsInOrder(t *testing.T) {
	pop := randomPopulation(25, 40, 3, 7)
	jobs, err := PlanJobs(len(pop), 10)
	if err != nil {
		t.Fatalf("PlanJobs: %v", err)
	}

	type step struct {
		from, to State
		job      int
	}
	var steps []step
	accel := newFakeAccel(1 << 20)
	p := NewPipeline(accel, PipelineOptions{
		Logger: quietLogger,
		OnTransition: func(from, to State, job int) {
			steps = append(steps, step{from, to, job})
		},
	})

	m := &BatchManager{MaxBatchSize: 10}
	results, err := p.Run(context.Background(), m, pop, jobs, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != len(jobs) {
		t.Fatalf("Expected %d results, got %d", len(jobs), len(results))
	}
	if m.CurrentJobIndex != len(jobs) {
		t.Errorf("Expected job index %d, got %d", len(jobs), m.CurrentJobIndex)
	}
	if p.State() != StateIdle {
		t.Errorf("Expected idle after run, got %s", p.State())
	}
	if len(accel.dispatches) != len(jobs) {
		t.Errorf("Expected %d dispatches, got %d", len(jobs), len(accel.dispatches))
	}

	order := []State{StatePreparing, StateDispatched, StateCollecting, StateIdle}
	if len(steps) != len(order)*len(jobs) {
		t.Fatalf("Expected %d transitions, got %d", len(order)*len(jobs), len(steps))
	}
	for i, s := range steps {
		job := i / len(order)
		if s.job != job || s.to != order[i%len(order)] {
			t.Errorf("Transition %d: expected job %d -> %s, got job %d -> %s", i, job, order[i%len(order)], s.job, s.to)
		}
	}

	for i, r := range results {
		if r.Index != i || r.Job != jobs[i] {
			t.Errorf("Result %d out of order: %+v", i, r.Job)
		}
		if len(r.Primary) != jobs[i].Primary.Len() {
			t.Errorf("Result %d: expected %d primary ids, got %d", i, jobs[i].Primary.Len(), len(r.Primary))
		}
	}
}

// TestPipelineCrossJobDispatchesBothRanges checks a cross job sends primary then cross entities
func TestPipelineCrossJobDispatchesBothRanges(t *testing.T) {
	pop := randomPopulation(8, 10, 1, 3)
	jobs := []BatchJob{
		{Primary: IndexRange{0, 4}, DedupAgainst: NoDedup},
		{Primary: IndexRange{0, 4}, Cross: IndexRange{4, 8}, DedupAgainst: 0},
	}
	accel := newFakeAccel(1 << 20)
	p := NewPipeline(accel, PipelineOptions{Logger: quietLogger})

	if _, err := p.Run(context.Background(), &BatchManager{MaxBatchSize: 4}, pop, jobs, 1); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cross := accel.dispatches[1]
	if cross.Domain.X != 8 || cross.Domain.Y != 8 || len(cross.Positions) != 8 {
		t.Fatalf("Expected an 8x8 cross dispatch, got %+v with %d positions", cross.Domain, len(cross.Positions))
	}
	for i, c := range pop {
		if cross.Positions[i] != [2]float32{c.X, c.Y} {
			t.Errorf("Position %d: expected %v, got %v", i, [2]float32{c.X, c.Y}, cross.Positions[i])
		}
	}
}

// TestPipelineSkipsSentinelsAndInvalidIndices verifies (i, i) and out-of-batch records are dropped
func TestPipelineSkipsSentinelsAndInvalidIndices(t *testing.T) {
	pop := []Collidable{
		{ID: 1, X: 0, Y: 0, Radius: 1},
		{ID: 2, X: 1, Y: 0, Radius: 1},
		{ID: 3, X: 50, Y: 50, Radius: 1},
	}
	jobs, _ := PlanJobs(len(pop), 3)
	accel := newFakeAccel(1 << 20)
	accel.padSentinels = 3
	accel.bogusIndex = true

	p := NewPipeline(accel, PipelineOptions{Logger: quietLogger})
	results, err := p.Run(context.Background(), &BatchManager{MaxBatchSize: 3}, pop, jobs, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := pairKeys(results[0].Pairs)
	want := [][2]EntityID{{1, 2}}
	if !equalKeys(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

// TestPipelineDispatchFailureAbortsTick checks a lost result becomes a TickError naming the job
func TestPipelineDispatchFailureAbortsTick(t *testing.T) {
	pop := randomPopulation(25, 40, 3, 11)
	jobs, _ := PlanJobs(len(pop), 10)
	accel := newFakeAccel(1 << 20)
	accel.failDispatchAt = 2

	p := NewPipeline(accel, PipelineOptions{Logger: quietLogger})
	m := &BatchManager{MaxBatchSize: 10}
	results, err := p.Run(context.Background(), m, pop, jobs, 1)
	if results != nil {
		t.Errorf("Expected no partial results, got %d", len(results))
	}

	var tickErr *TickError
	if !errors.As(err, &tickErr) {
		t.Fatalf("Expected *TickError, got %T: %v", err, err)
	}
	if tickErr.JobIndex != 2 || tickErr.Job != jobs[2] {
		t.Errorf("Expected failure at job 2 %v, got job %d %v", jobs[2], tickErr.JobIndex, tickErr.Job)
	}
	if tickErr.Stage != StateDispatched {
		t.Errorf("Expected failure during dispatched, got %s", tickErr.Stage)
	}
	if !errors.Is(err, ErrMissingResult) || !errors.Is(err, errDeviceLost) {
		t.Errorf("Expected ErrMissingResult wrapping device error, got %v", err)
	}
	if m.CurrentJobIndex != 2 {
		t.Errorf("Job index must not advance past the failed job, got %d", m.CurrentJobIndex)
	}
	if p.State() != StateIdle {
		t.Errorf("Expected idle after failure, got %s", p.State())
	}
}

// TestPipelineRejectsBadInputs covers the configuration checks before any dispatch
func TestPipelineRejectsBadInputs(t *testing.T) {
	pop := randomPopulation(5, 10, 1, 1)
	jobs, _ := PlanJobs(len(pop), 5)
	accel := newFakeAccel(1 << 20)
	p := NewPipeline(accel, PipelineOptions{Logger: quietLogger})

	if _, err := p.Run(context.Background(), &BatchManager{MaxBatchSize: 0}, pop, jobs, 1); !errors.Is(err, ErrInvalidBatchSize) {
		t.Errorf("Expected ErrInvalidBatchSize, got %v", err)
	}
	if _, err := p.Run(context.Background(), &BatchManager{MaxBatchSize: 5}, pop, jobs, 0); !errors.Is(err, ErrInvalidScale) {
		t.Errorf("Expected ErrInvalidScale, got %v", err)
	}
	if _, err := p.Run(context.Background(), &BatchManager{MaxBatchSize: 5}, pop[:3], jobs, 1); err == nil {
		t.Error("Expected plan validation error for a shrunken population")
	}
	if len(accel.dispatches) != 0 {
		t.Errorf("Expected no dispatches, got %d", len(accel.dispatches))
	}
}

// TestPipelineReportsTruncation verifies overflow is counted when the scale is too small
func TestPipelineReportsTruncation(t *testing.T) {
	// Every circle overlaps every other.
	pop := make([]Collidable, 10)
	for i := range pop {
		pop[i] = Collidable{ID: EntityID(i + 1), X: float32(i) * 0.1, Radius: 5}
	}
	jobs, _ := PlanJobs(len(pop), 10)
	tel := &recordingTelemetry{}
	p := NewPipeline(newFakeAccel(1<<20), PipelineOptions{Logger: quietLogger, Telemetry: tel})

	results, err := p.Run(context.Background(), &BatchManager{MaxBatchSize: 10}, pop, jobs, 0.1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// C(10,2) = 45 pairs, capacity ceil(45 * 0.1) = 5.
	if len(results[0].Pairs) != 5 {
		t.Errorf("Expected 5 retained pairs, got %d", len(results[0].Pairs))
	}
	if results[0].Dropped != 40 || tel.dropped != 40 {
		t.Errorf("Expected 40 dropped, got %d (telemetry %d)", results[0].Dropped, tel.dropped)
	}
}
