// Package accel provides a software accelerator that runs the proximity kernel
// across a bounded result buffer, the way a compute device would.
package accel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"collision-batcher/internal/collision"
)

// DefaultMaxResultBufferBytes matches the storage buffer limit of common GPUs.
const DefaultMaxResultBufferBytes = 128 << 20

var (
	// ErrDeviceLost is returned by dispatches after the device is closed.
	ErrDeviceLost = errors.New("accelerator device lost")
	// ErrInvalidInput means a kernel input is malformed.
	ErrInvalidInput = errors.New("invalid kernel input")
)

// Options configures a Device. Zero values select defaults.
type Options struct {
	MaxResultBufferBytes uint64
	Workers              int
	PipelineCacheSize    int
}

// Device is a software accelerator. Dispatches are serialized like a single
// device queue; each dispatch fans the kernel out over Workers goroutines.
type Device struct {
	limits  collision.AcceleratorLimits
	workers int
	cache   *PipelineCache

	queue      sync.Mutex
	closed     atomic.Bool
	dispatches atomic.Uint64
}

// NewDevice creates a device.
func NewDevice(opts Options) *Device {
	if opts.MaxResultBufferBytes == 0 {
		opts.MaxResultBufferBytes = DefaultMaxResultBufferBytes
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Device{
		limits: collision.AcceleratorLimits{
			MaxResultBufferBytes: opts.MaxResultBufferBytes,
			ResultRecordBytes:    collision.ResultRecordBytes,
		},
		workers: opts.Workers,
		cache:   NewPipelineCache(opts.PipelineCacheSize),
	}
}

// Limits implements collision.Accelerator.
func (d *Device) Limits() collision.AcceleratorLimits { return d.limits }

// Cache exposes the pipeline cache for stats.
func (d *Device) Cache() *PipelineCache { return d.cache }

// Dispatches returns how many kernels have run.
func (d *Device) Dispatches() uint64 { return d.dispatches.Load() }

// Close marks the device lost. Later dispatches fail with ErrDeviceLost.
func (d *Device) Close() error {
	d.closed.Store(true)
	return nil
}

// PrepareJob implements collision.Accelerator.
func (d *Device) PrepareJob(in collision.KernelInput) (collision.KernelTask, error) {
	if d.closed.Load() {
		return nil, ErrDeviceLost
	}
	n := len(in.Positions)
	if len(in.Radii) != n {
		return nil, fmt.Errorf("%w: %d positions, %d radii", ErrInvalidInput, n, len(in.Radii))
	}
	if in.Domain.X > n || in.Domain.Y > n || in.Domain.X < 0 || in.Domain.Y < 0 {
		return nil, fmt.Errorf("%w: domain %dx%d over %d entities", ErrInvalidInput, in.Domain.X, in.Domain.Y, n)
	}
	if c := d.limits.ResultCapacity(); in.MaxResults < 0 || in.MaxResults > c {
		return nil, fmt.Errorf("%w: %d results exceed buffer capacity %d", ErrInvalidInput, in.MaxResults, c)
	}
	return &task{device: d, pipeline: d.cache.get(n), input: in}, nil
}

type task struct {
	device   *Device
	pipeline *kernelPipeline
	input    collision.KernelInput
}

// DispatchAndWait runs the kernel over the iteration domain and reads back
// min(count, capacity) records.
func (t *task) DispatchAndWait(ctx context.Context) (collision.KernelOutput, error) {
	d := t.device
	d.queue.Lock()
	defer d.queue.Unlock()

	if d.closed.Load() {
		return collision.KernelOutput{}, ErrDeviceLost
	}
	d.dispatches.Add(1)

	in := t.input
	buf := t.pipeline.resultBuffer(in.MaxResults)
	var count atomic.Uint64

	rows := in.Domain.X
	workers := min(d.workers, max(rows, 1))
	chunk := (rows + workers - 1) / max(workers, 1)

	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < rows; lo += chunk {
		lo, hi := lo, min(lo+chunk, rows)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				kernelRow(in, i, buf, &count)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return collision.KernelOutput{}, err
	}

	reported := count.Load()
	n := min(reported, uint64(len(buf)))
	out := collision.KernelOutput{
		Pairs:    make([]collision.RawPair, n),
		Reported: reported,
	}
	copy(out.Pairs, buf[:n])
	return out, nil
}

// kernelRow is one row of invocations: cell (i, j) tests the ordered pair and
// skips i >= j so each unordered pair is reported once.
func kernelRow(in collision.KernelInput, i int, buf []collision.RawPair, count *atomic.Uint64) {
	r1 := in.Radii[i]
	if r1 <= 0 {
		return
	}
	p1 := in.Positions[i]
	for j := i + 1; j < in.Domain.Y; j++ {
		p2 := in.Positions[j]
		if !collision.Overlaps(p1[0], p1[1], r1, p2[0], p2[1], in.Radii[j]) {
			continue
		}
		slot := count.Add(1) - 1
		if slot < uint64(len(buf)) {
			buf[slot] = collision.RawPair{uint32(i), uint32(j)}
		}
	}
}
