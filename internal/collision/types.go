// Package collision detects overlapping circles among a population that is
// larger than a single accelerator dispatch can hold.
//
// A tick flows through four stages:
//   - the estimator derives how many entities fit in one dispatch
//   - the planner splits the population into self jobs and cross jobs
//   - the pipeline runs each job through the proximity kernel, one at a time
//   - the combiner merges per-job results into one duplicate-free pair set
//
// The CPU detector offers the same contract without batching.
package collision

// EntityID is an opaque handle for a simulated entity.
type EntityID uint64

// Collidable is one circle in a tick's population snapshot.
// A radius of zero or less never collides.
type Collidable struct {
	ID       EntityID
	X, Y     float32
	Radius   float32
	IsSensor bool
}

// CollidableMetadata duplicates the identity of a collidable so consumers of a
// pair need no extra lookup. Index is the position in the population snapshot.
type CollidableMetadata struct {
	ID       EntityID `json:"id"`
	Index    int      `json:"index"`
	X        float32  `json:"x"`
	Y        float32  `json:"y"`
	IsSensor bool     `json:"isSensor"`
}

// CollidingPair is an overlapping pair. A always holds the lower population index.
type CollidingPair struct {
	A CollidableMetadata `json:"a"`
	B CollidableMetadata `json:"b"`
}

// Key returns the pair's entity ids in canonical order.
func (p CollidingPair) Key() [2]EntityID {
	if p.A.Index <= p.B.Index {
		return [2]EntityID{p.A.ID, p.B.ID}
	}
	return [2]EntityID{p.B.ID, p.A.ID}
}

func metadataFor(c Collidable, index int) CollidableMetadata {
	return CollidableMetadata{
		ID:       c.ID,
		Index:    index,
		X:        c.X,
		Y:        c.Y,
		IsSensor: c.IsSensor,
	}
}

// newPair builds a pair with the lower population index first.
func newPair(a, b CollidableMetadata) CollidingPair {
	if b.Index < a.Index {
		a, b = b, a
	}
	return CollidingPair{A: a, B: b}
}

// Overlaps reports whether two circles intersect. Touching circles do not
// overlap, and a non-positive radius never overlaps anything.
func Overlaps(x1, y1, r1, x2, y2, r2 float32) bool {
	if r1 <= 0 || r2 <= 0 {
		return false
	}
	dx := x1 - x2
	dy := y1 - y2
	sum := r1 + r2
	return dx*dx+dy*dy < sum*sum
}

// RawPair is one kernel output record: two array indices into the dispatched batch.
type RawPair [2]uint32

// ResultRecordBytes is the size of one RawPair in the accelerator result buffer.
const ResultRecordBytes = 8

// Result is the outcome of one detection tick.
type Result struct {
	Pairs        []CollidingPair
	Jobs         int
	MaxBatchSize int
	// Truncated counts kernel results dropped because an output buffer was full.
	Truncated uint64
}

// SensorContacts groups sensor-body pairs by sensor.
// Sensor-sensor and body-body pairs are ignored.
func SensorContacts(pairs []CollidingPair) map[EntityID][]EntityID {
	contacts := make(map[EntityID][]EntityID)
	for _, p := range pairs {
		switch {
		case p.A.IsSensor && !p.B.IsSensor:
			contacts[p.A.ID] = append(contacts[p.A.ID], p.B.ID)
		case p.B.IsSensor && !p.A.IsSensor:
			contacts[p.B.ID] = append(contacts[p.B.ID], p.A.ID)
		}
	}
	return contacts
}
