// Package recorder defines the metrics hook the engine calls on every
// observable event. Emitting those events to an external collector
// (Prometheus, StatsD, a log sink) is explicitly out of scope for this
// module; Recorder exists so an embedding application can wire one in
// without the engine depending on any particular metrics library.
package recorder

// Recorder receives counters and observations from the engine. All methods
// must be safe for concurrent use and must not block, since they are called
// from the write and compaction hot paths.
type Recorder interface {
	// IncCounter increments a named counter by delta.
	IncCounter(name string, delta int64)

	// ObserveBytes records a byte-sized measurement against name (record
	// lengths, segment sizes, compaction savings).
	ObserveBytes(name string, bytes int64)
}

// Noop is a Recorder that discards every event. It is the default Recorder
// used when none is supplied.
type Noop struct{}

func (Noop) IncCounter(string, int64)   {}
func (Noop) ObserveBytes(string, int64) {}

var _ Recorder = Noop{}
