// Package sim drives detection ticks over a moving population of bodies and
// sensors.
package sim

import (
	"math/rand"

	"collision-batcher/internal/collision"
)

// WorldConfig describes the grid the population is spawned on and moves within.
// Bounds are half-open: one body and one sensor spawn on every integer point
// x in [MinX, MaxX), y in [MinY, MaxY).
type WorldConfig struct {
	MinX, MinY   int
	MaxX, MaxY   int
	SensorRadius float32
	BodyRadius   float32
	Seed         int64
	CacheFrames  int
}

// DefaultWorld returns the standard benchmark world: 28x28 grid points, 1568 entities.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		MinX:         -14,
		MinY:         -14,
		MaxX:         14,
		MaxY:         14,
		SensorRadius: 20.5,
		BodyRadius:   2.5,
		Seed:         1,
		CacheFrames:  1000,
	}
}

// Width returns the world's horizontal extent.
func (w WorldConfig) Width() float32 { return float32(w.MaxX - w.MinX) }

// Height returns the world's vertical extent.
func (w WorldConfig) Height() float32 { return float32(w.MaxY - w.MinY) }

// EntityCount returns how many entities SpawnGrid creates.
func (w WorldConfig) EntityCount() int {
	if w.MaxX <= w.MinX || w.MaxY <= w.MinY {
		return 0
	}
	return 2 * (w.MaxX - w.MinX) * (w.MaxY - w.MinY)
}

// EstimateScale guesses the detectable-collision scale for this world from the
// mean radius of its population.
func (w WorldConfig) EstimateScale(est collision.ScaleEstimator) float32 {
	avg := (w.SensorRadius + w.BodyRadius) / 2
	return collision.ClampScale(est.EstimateScale(w.Width(), w.Height(), avg))
}

// SpawnGrid creates a body and a sensor on every grid point. Ids start at 1.
func SpawnGrid(w WorldConfig) []collision.Collidable {
	pop := make([]collision.Collidable, 0, w.EntityCount())
	id := collision.EntityID(1)
	for x := w.MinX; x < w.MaxX; x++ {
		for y := w.MinY; y < w.MaxY; y++ {
			pop = append(pop,
				collision.Collidable{ID: id, X: float32(x), Y: float32(y), Radius: w.BodyRadius},
				collision.Collidable{ID: id + 1, X: float32(x), Y: float32(y), Radius: w.SensorRadius, IsSensor: true},
			)
			id += 2
		}
	}
	return pop
}

// PositionCache pre-generates seeded random positions so every run over the
// same world moves entities identically.
type PositionCache struct {
	frames  [][][2]float32
	current int
}

// NewPositionCache generates frames positions for n entities within w's bounds.
func NewPositionCache(w WorldConfig, n int) *PositionCache {
	frames := w.CacheFrames
	if frames <= 0 {
		frames = 1
	}
	rng := rand.New(rand.NewSource(w.Seed))
	minX, minY := float32(w.MinX), float32(w.MinY)
	width, height := w.Width(), w.Height()

	c := &PositionCache{frames: make([][][2]float32, frames)}
	for f := range c.frames {
		positions := make([][2]float32, n)
		for i := range positions {
			positions[i] = [2]float32{
				rng.Float32()*width + minX,
				rng.Float32()*height + minY,
			}
		}
		c.frames[f] = positions
	}
	return c
}

// Apply moves pop to the current frame's positions.
func (c *PositionCache) Apply(pop []collision.Collidable) {
	positions := c.frames[c.current]
	for i := range pop {
		if i >= len(positions) {
			return
		}
		pop[i].X = positions[i][0]
		pop[i].Y = positions[i][1]
	}
}

// Advance moves to the next frame, wrapping at the end.
func (c *PositionCache) Advance() {
	c.current = (c.current + 1) % len(c.frames)
}

// Frame returns the current frame index.
func (c *PositionCache) Frame() int { return c.current }

// Len returns the number of cached frames.
func (c *PositionCache) Len() int { return len(c.frames) }
