package accel

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"testing"

	"collision-batcher/internal/collision"
)

func kernelInput(n int, radius float32, maxResults int, seed int64) collision.KernelInput {
	r := rand.New(rand.NewSource(seed))
	in := collision.KernelInput{
		Positions:  make([][2]float32, n),
		Radii:      make([]float32, n),
		Domain:     collision.IterationDomain{X: n, Y: n},
		MaxResults: maxResults,
	}
	for i := 0; i < n; i++ {
		in.Positions[i] = [2]float32{r.Float32() * 50, r.Float32() * 50}
		in.Radii[i] = radius
	}
	return in
}

func expectedPairs(in collision.KernelInput) map[collision.RawPair]bool {
	want := make(map[collision.RawPair]bool)
	for i := 0; i < in.Domain.X; i++ {
		for j := i + 1; j < in.Domain.Y; j++ {
			p1, p2 := in.Positions[i], in.Positions[j]
			if collision.Overlaps(p1[0], p1[1], in.Radii[i], p2[0], p2[1], in.Radii[j]) {
				want[collision.RawPair{uint32(i), uint32(j)}] = true
			}
		}
	}
	return want
}

// TestDeviceReportsEveryPair verifies the parallel kernel finds each i<j pair once
func TestDeviceReportsEveryPair(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		d := NewDevice(Options{Workers: workers})
		in := kernelInput(200, 3, 20000, int64(workers))

		task, err := d.PrepareJob(in)
		if err != nil {
			t.Fatalf("PrepareJob: %v", err)
		}
		out, err := task.DispatchAndWait(context.Background())
		if err != nil {
			t.Fatalf("DispatchAndWait: %v", err)
		}

		want := expectedPairs(in)
		if out.Reported != uint64(len(want)) || len(out.Pairs) != len(want) {
			t.Fatalf("workers=%d: expected %d pairs, got %d (reported %d)", workers, len(want), len(out.Pairs), out.Reported)
		}
		seen := make(map[collision.RawPair]bool)
		for _, p := range out.Pairs {
			if p[0] >= p[1] {
				t.Errorf("Pair %v violates i < j", p)
			}
			if !want[p] || seen[p] {
				t.Errorf("Unexpected or duplicate pair %v", p)
			}
			seen[p] = true
		}
	}
}

// TestDeviceBoundsOutput checks readback copies min(count, capacity)
func TestDeviceBoundsOutput(t *testing.T) {
	d := NewDevice(Options{Workers: 4})
	in := kernelInput(60, 20, 10, 1)

	task, err := d.PrepareJob(in)
	if err != nil {
		t.Fatalf("PrepareJob: %v", err)
	}
	out, err := task.DispatchAndWait(context.Background())
	if err != nil {
		t.Fatalf("DispatchAndWait: %v", err)
	}

	want := expectedPairs(in)
	if len(out.Pairs) != 10 {
		t.Errorf("Expected 10 retained pairs, got %d", len(out.Pairs))
	}
	if out.Reported != uint64(len(want)) {
		t.Errorf("Expected reported count %d, got %d", len(want), out.Reported)
	}
	if out.Dropped() != uint64(len(want)-10) {
		t.Errorf("Expected %d dropped, got %d", len(want)-10, out.Dropped())
	}
}

// TestDeviceRejectsBadInput covers malformed inputs and oversized outputs
func TestDeviceRejectsBadInput(t *testing.T) {
	d := NewDevice(Options{MaxResultBufferBytes: 800})

	tests := []struct {
		name string
		in   collision.KernelInput
	}{
		{"mismatched radii", collision.KernelInput{Positions: make([][2]float32, 3), Radii: make([]float32, 2), Domain: collision.IterationDomain{X: 3, Y: 3}}},
		{"domain too large", collision.KernelInput{Positions: make([][2]float32, 3), Radii: make([]float32, 3), Domain: collision.IterationDomain{X: 4, Y: 4}}},
		{"output over capacity", kernelInput(10, 1, 101, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.PrepareJob(tt.in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

// TestDeviceLost verifies a closed device fails dispatches
func TestDeviceLost(t *testing.T) {
	d := NewDevice(Options{})
	task, err := d.PrepareJob(kernelInput(10, 1, 45, 1))
	if err != nil {
		t.Fatalf("PrepareJob: %v", err)
	}
	d.Close()

	if _, err := task.DispatchAndWait(context.Background()); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Expected ErrDeviceLost, got %v", err)
	}
	if _, err := d.PrepareJob(kernelInput(10, 1, 45, 1)); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Expected ErrDeviceLost from PrepareJob, got %v", err)
	}
}

// TestDeviceCancelledDispatch checks a cancelled context aborts the kernel
func TestDeviceCancelledDispatch(t *testing.T) {
	d := NewDevice(Options{Workers: 2})
	task, err := d.PrepareJob(kernelInput(100, 1, 100, 1))
	if err != nil {
		t.Fatalf("PrepareJob: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := task.DispatchAndWait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// TestDeviceWithBatchedDetector runs the full tick against the software device
func TestDeviceWithBatchedDetector(t *testing.T) {
	d := NewDevice(Options{Workers: 4})
	det, err := collision.NewBatchedDetector(d, collision.BatchedOptions{
		Scale:             1,
		FixedMaxBatchSize: 32,
		Logger:            log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("NewBatchedDetector: %v", err)
	}

	r := rand.New(rand.NewSource(3))
	pop := make([]collision.Collidable, 150)
	for i := range pop {
		pop[i] = collision.Collidable{
			ID:     collision.EntityID(i + 1),
			X:      r.Float32() * 80,
			Y:      r.Float32() * 80,
			Radius: 2.5,
		}
	}

	batched, err := det.Detect(context.Background(), pop)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	cpu, err := collision.NewCPUDetector(2, nil).Detect(context.Background(), pop)
	if err != nil {
		t.Fatalf("cpu Detect: %v", err)
	}

	if len(batched.Pairs) != len(cpu.Pairs) {
		t.Fatalf("Expected %d pairs, got %d", len(cpu.Pairs), len(batched.Pairs))
	}
	want := make(map[[2]collision.EntityID]bool, len(cpu.Pairs))
	for _, p := range cpu.Pairs {
		want[p.Key()] = true
	}
	for _, p := range batched.Pairs {
		if !want[p.Key()] {
			t.Errorf("Unexpected pair %v", p.Key())
		}
	}

	// 150 entities dispatched 32 at a time: ranges of 16 repeat lengths 16 and 32.
	if hits, _ := d.Cache().Stats(); hits == 0 {
		t.Error("Expected pipeline cache hits across jobs")
	}
}
