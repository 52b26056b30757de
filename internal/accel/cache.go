package accel

import (
	"sync"

	"collision-batcher/internal/collision"
)

// DefaultPipelineCacheSize bounds how many batch shapes keep their buffers alive.
const DefaultPipelineCacheSize = 10

// kernelPipeline is the reusable state for one batch length: the iteration
// domain and a result buffer sized for the largest output seen so far.
type kernelPipeline struct {
	batchLen int
	domain   collision.IterationDomain
	results  []collision.RawPair
}

// resultBuffer returns a buffer with room for n records.
func (p *kernelPipeline) resultBuffer(n int) []collision.RawPair {
	if cap(p.results) < n {
		p.results = make([]collision.RawPair, n)
	}
	return p.results[:n]
}

// PipelineCache keeps kernel pipelines per batch length with LRU eviction.
// Most ticks only see two shapes (full self batch and full cross batch) plus
// the remainders, so a small cache avoids reallocating every job.
type PipelineCache struct {
	mu        sync.Mutex
	pipelines map[int]*kernelPipeline
	order     []int // LRU order (oldest first)
	maxSize   int

	hits   uint64
	misses uint64
}

// NewPipelineCache creates a cache holding at most maxSize pipelines.
func NewPipelineCache(maxSize int) *PipelineCache {
	if maxSize <= 0 {
		maxSize = DefaultPipelineCacheSize
	}
	return &PipelineCache{
		pipelines: make(map[int]*kernelPipeline),
		order:     make([]int, 0, maxSize),
		maxSize:   maxSize,
	}
}

// get returns the pipeline for batchLen, building it on a miss.
func (c *PipelineCache) get(batchLen int) *kernelPipeline {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pipelines[batchLen]; ok {
		c.hits++
		c.touch(batchLen)
		return p
	}

	c.misses++
	if len(c.pipelines) >= c.maxSize {
		c.evict()
	}
	p := &kernelPipeline{
		batchLen: batchLen,
		domain:   collision.IterationDomain{X: batchLen, Y: batchLen},
	}
	c.pipelines[batchLen] = p
	c.order = append(c.order, batchLen)
	return p
}

// touch moves batchLen to the most recently used end.
func (c *PipelineCache) touch(batchLen int) {
	for i, k := range c.order {
		if k == batchLen {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, batchLen)
}

// evict removes the least recently used pipeline.
func (c *PipelineCache) evict() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.pipelines, oldest)
}

// Size returns the number of cached pipelines.
func (c *PipelineCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pipelines)
}

// Stats returns cache hits and misses since creation.
func (c *PipelineCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Contains reports whether a pipeline for batchLen is cached.
func (c *PipelineCache) Contains(batchLen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pipelines[batchLen]
	return ok
}
