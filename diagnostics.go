package atapio

import (
	"log"
	"sync/atomic"
	"time"
)

// LogSink is a [DiagnosticSink] that writes to a standard logger, prefixing
// each line with the tick in brackets, e.g. "[1042] Primary master detected".
type LogSink struct {
	Logger *log.Logger
}

// NewLogSink creates a LogSink. If `logger` is nil, the standard logger is used.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{Logger: logger}
}

func (sink *LogSink) Logf(tick uint64, format string, args ...any) {
	sink.Logger.Printf("[%d] "+format, append([]any{tick}, args...)...)
}

type nopSink struct{}

func (nopSink) Logf(uint64, string, ...any) {}

// NopSink discards everything.
var NopSink DiagnosticSink = nopSink{}

// MonotonicClock counts milliseconds since it was created.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (clock *MonotonicClock) Ticks() uint64 {
	return uint64(time.Since(clock.start).Milliseconds())
}

// CounterClock advances by one every time it's read. Useful in tests where
// wall-clock ticks would make log output nondeterministic.
type CounterClock struct {
	ticks atomic.Uint64
}

func (clock *CounterClock) Ticks() uint64 {
	return clock.ticks.Add(1)
}
