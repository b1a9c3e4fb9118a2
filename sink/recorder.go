package sink

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vehiclehub/errors"
	"github.com/c360/vehiclehub/measurement"
)

// Deps holds optional recorder dependencies.
type Deps struct {
	Logger *slog.Logger

	// Records counts written trace lines. Optional.
	Records prometheus.Counter
}

// Recorder writes one JSON record per line, stamped with the wall
// clock at receive time. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	closed bool

	logger  *slog.Logger
	records prometheus.Counter
	written atomic.Int64
}

var _ Sink = (*Recorder)(nil)

// NewRecorder wraps an arbitrary writer. The caller owns the writer's
// lifetime; Stop flushes but does not close it.
func NewRecorder(w io.Writer, deps Deps) *Recorder {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "recorder_sink")
	}

	r := &Recorder{
		w:       bufio.NewWriter(w),
		logger:  logger,
		records: deps.Records,
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// NewFileRecorder creates a trace file named after the current time
// inside dir, creating dir if needed.
func NewFileRecorder(dir string, deps Deps) (*Recorder, error) {
	if dir == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Recorder", "NewFileRecorder", "directory validation")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "Recorder", "NewFileRecorder", "create trace directory")
	}

	name := time.Now().Format("2006-01-02-15-04-05") + ".json"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WrapFatal(err, "Recorder", "NewFileRecorder", "open trace file")
	}

	r := NewRecorder(f, deps)
	r.logger.Info("recording trace", "path", f.Name())
	return r, nil
}

// Receive appends one trace line and flushes it so the trace is intact
// even if the process dies.
func (r *Recorder) Receive(name string, value, event any) error {
	rec := measurement.Record{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Name:      name,
		Value:     value,
		Event:     event,
	}
	line, err := rec.Marshal()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.WrapFatal(errors.ErrSinkClosed, "Recorder", "Receive", "write trace line")
	}

	if _, err := r.w.Write(line); err != nil {
		return errors.WrapTransient(err, "Recorder", "Receive", "write trace line")
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return errors.WrapTransient(err, "Recorder", "Receive", "write trace line")
	}
	if err := r.w.Flush(); err != nil {
		return errors.WrapTransient(err, "Recorder", "Receive", "flush trace line")
	}

	r.written.Add(1)
	if r.records != nil {
		r.records.Inc()
	}
	return nil
}

// Stop flushes the buffer and closes the underlying file, if any.
// Subsequent calls return nil; subsequent Receives fail.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.w.Flush(); err != nil {
		return errors.WrapTransient(err, "Recorder", "Stop", "flush trace buffer")
	}
	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			return errors.WrapTransient(err, "Recorder", "Stop", "close trace file")
		}
	}

	r.logger.Info("recorder stopped", "records", r.written.Load())
	return nil
}

// Written reports how many trace lines have been recorded.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// String describes the recorder state for diagnostics.
func (r *Recorder) String() string {
	return fmt.Sprintf("recorder(written=%d)", r.written.Load())
}
