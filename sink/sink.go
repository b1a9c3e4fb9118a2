// Package sink provides measurement sinks: passive consumers that
// receive every ingested measurement, independent of listeners. The
// trace recorder is the built-in sink; it writes a JSON-lines trace
// that the trace source can replay.
package sink

// Sink consumes the full measurement stream. Receive runs on the
// ingestion path and must not block.
type Sink interface {
	Receive(name string, value, event any) error
	Stop() error
}
