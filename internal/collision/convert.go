package collision

import "math"

// metadataTable maps kernel array positions back to the entities they came from.
type metadataTable []CollidableMetadata

// lookup returns the metadata at array position i, or false when the kernel
// reported an index outside the dispatched batch.
func (t metadataTable) lookup(i uint32) (CollidableMetadata, bool) {
	if int64(i) >= int64(len(t)) {
		return CollidableMetadata{}, false
	}
	return t[i], true
}

// preparedBatch holds everything built while a job is in the Preparing state.
type preparedBatch struct {
	input    KernelInput
	table    metadataTable
	primary  []EntityID
	capacity int
}

// prepareBatch slices the job's ranges out of the population and converts them
// to kernel input. Primary entities come first, so array order follows
// population order.
func prepareBatch(population []Collidable, job BatchJob, scale float32, limits AcceleratorLimits) preparedBatch {
	n := job.Len()
	b := preparedBatch{
		input: KernelInput{
			Positions: make([][2]float32, 0, n),
			Radii:     make([]float32, 0, n),
			Domain:    IterationDomain{X: n, Y: n},
		},
		table:   make(metadataTable, 0, n),
		primary: make([]EntityID, 0, job.Primary.Len()),
	}

	appendRange := func(r IndexRange, primary bool) {
		for i := r.Start; i < r.End; i++ {
			c := population[i]
			b.input.Positions = append(b.input.Positions, [2]float32{c.X, c.Y})
			b.input.Radii = append(b.input.Radii, c.Radius)
			b.table = append(b.table, metadataFor(c, i))
			if primary {
				b.primary = append(b.primary, c.ID)
			}
		}
	}
	appendRange(job.Primary, true)
	if job.IsCross() {
		appendRange(job.Cross, false)
	}

	b.capacity = outputCapacity(n, scale, limits)
	b.input.MaxResults = b.capacity
	return b
}

// outputCapacity is the estimated max pair count for a batch, scaled by the
// detectable-collision scale and clamped to the accelerator buffer.
func outputCapacity(batchLen int, scale float32, limits AcceleratorLimits) int {
	estimated := int(math.Ceil(float64(MaxPairs(batchLen)) * float64(scale)))
	if estimated < 1 {
		estimated = 1
	}
	if c := limits.ResultCapacity(); c > 0 && estimated > c {
		estimated = c
	}
	return estimated
}
