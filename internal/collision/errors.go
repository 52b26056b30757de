package collision

import (
	"errors"
	"fmt"
)

var (
	// ErrInfeasibleBatchSize means the accelerator cannot hold results for even two entities.
	ErrInfeasibleBatchSize = errors.New("accelerator result buffer too small for any batch")
	// ErrInvalidScale means the detectable-collision scale is outside (0, 1].
	ErrInvalidScale = errors.New("detectable collision scale must be in (0, 1]")
	// ErrInvalidBatchSize means the batch manager holds a max batch size below 1.
	ErrInvalidBatchSize = errors.New("max batch size must be at least 1")
	// ErrMissingResult means a dispatched job never produced a result.
	ErrMissingResult = errors.New("no result for dispatched job")
	// ErrDedupOrder means a cross job references a self job that has not completed before it.
	ErrDedupOrder = errors.New("cross job references a self job that did not complete first")
)

// ConfigError is a fatal configuration fault. It is never recovered within a tick.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("collision config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TickError reports the job that stopped a tick's detection phase.
type TickError struct {
	JobIndex int
	Job      BatchJob
	Stage    State
	Err      error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick aborted at job %d %s during %s: %v", e.JobIndex, e.Job, e.Stage, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }
