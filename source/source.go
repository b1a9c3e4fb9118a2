// Package source defines the data source contract, a registry of named
// source factories, and the lifecycle manager that enforces the
// one-active-source rule.
//
// A data source is the single producer of measurements: a hardware
// interface reader, a trace file player, a websocket stream. The hub
// never talks to a source beyond this contract; sources push values
// into the shared ingestion callback and are started and stopped by the
// lifecycle manager.
package source

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/c360/vehiclehub/metric"
)

// Callback is the ingestion entry point shared by all sources. It is
// implemented by the hub. Both methods must return quickly: they run on
// the producer's goroutine and must never stall the physical interface
// behind it.
type Callback interface {
	// Receive ingests a measurement value for name.
	Receive(name string, value any)

	// ReceiveWithEvent ingests a measurement value with a secondary
	// event for name.
	ReceiveWithEvent(name string, value, event any)
}

// Source is a single producer of measurements.
//
// Run executes the produce loop and blocks until the source is stopped
// or the context is cancelled; the lifecycle manager runs it on a
// dedicated goroutine. Stop is idempotent, safe from any goroutine, and
// must cause Run to return promptly.
type Source interface {
	Run(ctx context.Context) error
	Stop()
}

// Deps holds the construction dependencies handed to every source
// factory.
type Deps struct {
	// Callback is the shared ingestion entry point. Never nil.
	Callback Callback

	// Resource is the parsed resource locator for this source (a trace
	// file path, a websocket endpoint). Nil when the caller supplied
	// none or an unparsable one.
	Resource *url.URL

	// Logger for the source. Never nil.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.MetricsRegistry
}

// Factory constructs a source instance from its dependencies. Factories
// must not perform I/O; connection setup belongs in Run.
type Factory func(deps Deps) (Source, error)
