package collision

import "context"

// IterationDomain is the kernel's 2D invocation grid. Each (x, y) cell tests
// one ordered pair of array indices.
type IterationDomain struct {
	X, Y int
}

// KernelInput is the flat, kernel-ready form of one batch.
type KernelInput struct {
	Positions [][2]float32
	Radii     []float32
	Domain    IterationDomain
	// MaxResults bounds the output buffer. Results beyond it are dropped.
	MaxResults int
}

// KernelOutput is what the accelerator reads back after a dispatch.
type KernelOutput struct {
	Pairs []RawPair
	// Reported is the kernel's own result counter. It exceeds len(Pairs) when
	// the output buffer overflowed.
	Reported uint64
}

// Dropped returns how many results did not fit in the output buffer.
func (o KernelOutput) Dropped() uint64 {
	if o.Reported <= uint64(len(o.Pairs)) {
		return 0
	}
	return o.Reported - uint64(len(o.Pairs))
}

// Accelerator runs the proximity kernel. Implementations report every pair
// (i, j) with i < j whose circles overlap.
type Accelerator interface {
	Limits() AcceleratorLimits
	PrepareJob(input KernelInput) (KernelTask, error)
}

// KernelTask is a prepared dispatch for one job.
type KernelTask interface {
	// DispatchAndWait runs the kernel and blocks until a result, or a
	// definitive absence of one, is observed.
	DispatchAndWait(ctx context.Context) (KernelOutput, error)
}
