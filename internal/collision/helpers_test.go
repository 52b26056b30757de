package collision

import (
	"context"
	"errors"
	"math/rand"
	"sort"
)

var errDeviceLost = errors.New("device lost")

// fakeAccel runs the proximity kernel on the calling goroutine.
type fakeAccel struct {
	limits AcceleratorLimits

	// failDispatchAt makes the n-th dispatch (0-based) return an error; -1 disables.
	failDispatchAt int
	// padSentinels appends this many (0, 0) records to every output.
	padSentinels int
	// bogusIndex appends one record pointing outside the batch.
	bogusIndex bool

	dispatches []KernelInput
}

func newFakeAccel(bufferBytes uint64) *fakeAccel {
	return &fakeAccel{
		limits:         AcceleratorLimits{MaxResultBufferBytes: bufferBytes, ResultRecordBytes: ResultRecordBytes},
		failDispatchAt: -1,
	}
}

func (a *fakeAccel) Limits() AcceleratorLimits { return a.limits }

func (a *fakeAccel) PrepareJob(input KernelInput) (KernelTask, error) {
	return &fakeTask{accel: a, input: input}, nil
}

type fakeTask struct {
	accel *fakeAccel
	input KernelInput
}

func (t *fakeTask) DispatchAndWait(ctx context.Context) (KernelOutput, error) {
	a := t.accel
	n := len(a.dispatches)
	a.dispatches = append(a.dispatches, t.input)
	if n == a.failDispatchAt {
		return KernelOutput{}, errDeviceLost
	}
	if err := ctx.Err(); err != nil {
		return KernelOutput{}, err
	}

	var out KernelOutput
	in := t.input
	for i := 0; i < in.Domain.X; i++ {
		for j := 0; j < in.Domain.Y; j++ {
			if i >= j {
				continue
			}
			if !Overlaps(in.Positions[i][0], in.Positions[i][1], in.Radii[i], in.Positions[j][0], in.Positions[j][1], in.Radii[j]) {
				continue
			}
			out.Reported++
			if len(out.Pairs) < in.MaxResults {
				out.Pairs = append(out.Pairs, RawPair{uint32(i), uint32(j)})
			}
		}
	}
	for k := 0; k < a.padSentinels; k++ {
		out.Pairs = append(out.Pairs, RawPair{0, 0})
	}
	if a.bogusIndex {
		out.Pairs = append(out.Pairs, RawPair{0, uint32(len(in.Positions) + 5)})
	}
	return out, nil
}

// randomPopulation scatters n circles over a side x side square.
func randomPopulation(n int, side, radius float32, seed int64) []Collidable {
	r := rand.New(rand.NewSource(seed))
	pop := make([]Collidable, n)
	for i := range pop {
		pop[i] = Collidable{
			ID:       EntityID(1000 + i),
			X:        r.Float32() * side,
			Y:        r.Float32() * side,
			Radius:   radius * (0.5 + r.Float32()),
			IsSensor: i%5 == 0,
		}
	}
	return pop
}

// bruteForce is the reference answer: every overlapping unordered pair.
func bruteForce(pop []Collidable) [][2]EntityID {
	var keys [][2]EntityID
	for i := range pop {
		for j := i + 1; j < len(pop); j++ {
			a, b := pop[i], pop[j]
			if Overlaps(a.X, a.Y, a.Radius, b.X, b.Y, b.Radius) {
				keys = append(keys, [2]EntityID{a.ID, b.ID})
			}
		}
	}
	sortKeys(keys)
	return keys
}

func pairKeys(pairs []CollidingPair) [][2]EntityID {
	keys := make([][2]EntityID, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key()
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys [][2]EntityID) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
}

func equalKeys(a, b [][2]EntityID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
