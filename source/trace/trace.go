// Package trace provides a data source that replays a recorded
// measurement trace file through the ingestion callback.
//
// A trace is the format written by the recording sink: one JSON object
// per line with a name, a value, an optional event and an optional
// timestamp in epoch seconds. Playback honors the recorded inter-record
// timing when timestamps are present.
package trace

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/vehiclehub/errors"
	"github.com/c360/vehiclehub/measurement"
	"github.com/c360/vehiclehub/source"
)

// Identifier is the registry name of the trace source.
const Identifier = "trace"

// defaultStep paces playback of traces recorded without timestamps.
const defaultStep = 100 * time.Millisecond

// maxStep caps the replayed gap between records so a trace with a long
// recording pause doesn't stall playback for minutes.
const maxStep = 5 * time.Second

// Player replays a trace file once and then exits.
type Player struct {
	path     string
	callback source.Callback
	logger   *slog.Logger

	played   atomic.Int64
	shutdown chan struct{}
	stopOnce sync.Once
}

var _ source.Source = (*Player)(nil)

// Register registers the trace source factory with registry.
func Register(registry *source.Registry) error {
	return registry.RegisterFactory(Identifier, New)
}

// New constructs a trace player from deps. The resource locator names
// the trace file; it is required. The file is not opened until Run.
func New(deps source.Deps) (source.Source, error) {
	if deps.Resource == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"TracePlayer", "New", "trace file resource validation")
	}

	path := deps.Resource.Path
	if path == "" {
		path = deps.Resource.Opaque
	}
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidResource,
			"TracePlayer", "New", "trace file path validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "trace-source")
	}

	return &Player{
		path:     path,
		callback: deps.Callback,
		logger:   logger,
		shutdown: make(chan struct{}),
	}, nil
}

// Run plays the trace file through the callback, pacing records by
// their recorded timestamps. It returns when the trace ends, Stop is
// called, or the context is cancelled.
func (p *Player) Run(ctx context.Context) error {
	file, err := os.Open(p.path)
	if err != nil {
		return errors.WrapInvalid(err, "TracePlayer", "Run", "trace file open")
	}
	defer file.Close()

	p.logger.Info("Starting trace playback", "path", p.path)

	scanner := bufio.NewScanner(file)
	var lastTimestamp float64

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		record, err := measurement.ParseRecord(line)
		if err != nil {
			p.logger.Warn("Skipping malformed trace record", "error", err)
			continue
		}

		if !p.pace(ctx, record.Timestamp, lastTimestamp) {
			p.logger.Info("Trace playback stopped", "records", p.played.Load())
			return nil
		}
		if record.Timestamp != 0 {
			lastTimestamp = record.Timestamp
		}

		if record.Event != nil {
			p.callback.ReceiveWithEvent(record.Name, record.Value, record.Event)
		} else {
			p.callback.Receive(record.Name, record.Value)
		}
		p.played.Add(1)
	}

	if err := scanner.Err(); err != nil {
		return errors.WrapTransient(err, "TracePlayer", "Run", "trace file read")
	}

	p.logger.Info("Trace playback finished", "records", p.played.Load())
	return nil
}

// pace sleeps for the replayed gap before the next record. It returns
// false when playback was stopped during the wait.
func (p *Player) pace(ctx context.Context, timestamp, lastTimestamp float64) bool {
	step := defaultStep
	if timestamp != 0 && lastTimestamp != 0 {
		gap := time.Duration((timestamp - lastTimestamp) * float64(time.Second))
		if gap <= 0 {
			return p.stillRunning(ctx)
		}
		if gap > maxStep {
			gap = maxStep
		}
		step = gap
	} else if lastTimestamp == 0 && timestamp != 0 {
		// First timestamped record plays immediately
		return p.stillRunning(ctx)
	}

	timer := time.NewTimer(step)
	defer timer.Stop()

	select {
	case <-p.shutdown:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Player) stillRunning(ctx context.Context) bool {
	select {
	case <-p.shutdown:
		return false
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

// Stop ends playback. Idempotent.
func (p *Player) Stop() {
	p.stopOnce.Do(func() {
		close(p.shutdown)
	})
}
