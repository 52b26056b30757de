package collision

import (
	"log"
	"time"
)

// Logger is the logging capability the detectors need. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Telemetry receives detection measurements. Implementations must be safe for
// use from the goroutine that runs ticks.
type Telemetry interface {
	ObserveJob(kind string, pairs int, elapsed time.Duration)
	ObserveTruncation(dropped uint64)
	ObserveTick(detector string, jobs, pairs int, elapsed time.Duration)
	ObserveTickFailure(detector string)
	SetMaxBatchSize(size int)
}

type nopTelemetry struct{}

func (nopTelemetry) ObserveJob(string, int, time.Duration)       {}
func (nopTelemetry) ObserveTruncation(uint64)                    {}
func (nopTelemetry) ObserveTick(string, int, int, time.Duration) {}
func (nopTelemetry) ObserveTickFailure(string)                   {}
func (nopTelemetry) SetMaxBatchSize(int)                         {}

func orDefaultLogger(l Logger) Logger {
	if l == nil {
		return log.Default()
	}
	return l
}

func orNopTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return nopTelemetry{}
	}
	return t
}
