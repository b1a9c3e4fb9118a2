// Package hub wires the measurement pipeline together and exposes the
// control surface: the latest-value store, listener registry,
// notification pipeline, source lifecycle manager, location
// synthesizer and recording sink behind one concurrency-safe facade.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/vehiclehub/errors"
	"github.com/c360/vehiclehub/listener"
	"github.com/c360/vehiclehub/location"
	"github.com/c360/vehiclehub/measurement"
	"github.com/c360/vehiclehub/metric"
	"github.com/c360/vehiclehub/notify"
	"github.com/c360/vehiclehub/sink"
	"github.com/c360/vehiclehub/source"
	"github.com/c360/vehiclehub/store"
)

// Deps holds construction dependencies for the hub.
type Deps struct {
	// Sources resolves source identifiers. Required.
	Sources *source.Registry

	// DefaultSource and DefaultResource select the source activated
	// when the first client binds. Required.
	DefaultSource   string
	DefaultResource string

	// TraceDir receives trace files when recording is enabled.
	TraceDir string

	// Reporter receives synthesized location fixes. Optional; location
	// synthesis is disabled when nil.
	Reporter location.Reporter

	// Positioning supplies native position fixes. Optional; the
	// passthrough is unavailable when nil.
	Positioning location.Provider

	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.MetricsRegistry

	// QueueCapacity and PollInterval tune the notification pipeline;
	// zero means the notify defaults.
	QueueCapacity int
	PollInterval  time.Duration
}

// Hub is the central measurement hub. It implements source.Callback:
// the active data source (and the native positioning passthrough) push
// values through Receive/ReceiveWithEvent.
type Hub struct {
	store       *store.Store
	listeners   *listener.Registry
	notifier    *notify.Notifier
	manager     *source.Manager
	synthesizer *location.Synthesizer
	passthrough *location.Passthrough

	defaultSource   string
	defaultResource string
	traceDir        string

	logger  *slog.Logger
	metrics *metric.Metrics

	// sink and passthrough toggles are serialized by lifecycleMu;
	// recorder is read on every ingestion under recorderMu.
	lifecycleMu sync.Mutex
	recorderMu  sync.RWMutex
	recorder    sink.Sink

	msgCount atomic.Int64
	bindings atomic.Int64
	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc

	sinkWarn rate.Sometimes
}

var _ source.Callback = (*Hub)(nil)

// New constructs the hub and its pipeline. Call Start before ingesting.
func New(deps Deps) (*Hub, error) {
	if deps.Sources == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Hub", "New", "source registry validation")
	}
	if deps.DefaultSource == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Hub", "New", "default source validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "hub")
	}

	st := store.New()

	listenerDeps := listener.Deps{Logger: logger.With("component", "listener-registry")}
	var coreMetrics *metric.Metrics
	if deps.Metrics != nil {
		coreMetrics = deps.Metrics.Metrics
		listenerDeps.ActiveGauge = coreMetrics.ListenersActive
		listenerDeps.FailureCounter = coreMetrics.DeliveryFailures
		listenerDeps.PrunedCounter = coreMetrics.ListenersPruned
	}
	listeners := listener.NewRegistry(listenerDeps)

	notifier, err := notify.New(notify.Deps{
		Store:         st,
		Listeners:     listeners,
		Logger:        logger.With("component", "notifier"),
		QueueCapacity: deps.QueueCapacity,
		PollInterval:  deps.PollInterval,
		Metrics:       deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	h := &Hub{
		store:           st,
		listeners:       listeners,
		notifier:        notifier,
		defaultSource:   deps.DefaultSource,
		defaultResource: deps.DefaultResource,
		traceDir:        deps.TraceDir,
		logger:          logger,
		metrics:         coreMetrics,
		sinkWarn:        rate.Sometimes{First: 1, Interval: time.Minute},
	}

	h.manager, err = source.NewManager(source.ManagerDeps{
		Registry: deps.Sources,
		Callback: h,
		Logger:   logger.With("component", "source-manager"),
		Metrics:  deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if deps.Reporter != nil {
		synDeps := location.SynthesizerDeps{
			Store:    st,
			Reporter: deps.Reporter,
			Logger:   logger.With("component", "location-synthesizer"),
		}
		if coreMetrics != nil {
			synDeps.Synthesized = coreMetrics.LocationsSynthesized
		}
		h.synthesizer, err = location.NewSynthesizer(synDeps)
		if err != nil {
			return nil, err
		}
	}

	if deps.Positioning != nil {
		h.passthrough, err = location.NewPassthrough(location.PassthroughDeps{
			Provider: deps.Positioning,
			Callback: h,
			Logger:   logger.With("component", "native-positioning"),
		})
		if err != nil {
			return nil, err
		}
	}

	return h, nil
}

// Start launches the notification pipeline. Idempotent.
func (h *Hub) Start(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return nil
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	return h.notifier.Start(h.ctx)
}

// Stop tears the pipeline down: the active source first so ingestion
// stops, then the passthrough, the notifier, and finally the recorder.
func (h *Hub) Stop(timeout time.Duration) error {
	if !h.running.CompareAndSwap(true, false) {
		return nil
	}

	h.manager.Stop()

	h.lifecycleMu.Lock()
	if h.passthrough != nil && h.passthrough.Running() {
		h.passthrough.Stop()
	}
	h.lifecycleMu.Unlock()

	err := h.notifier.Stop(timeout)

	h.recorderMu.Lock()
	if h.recorder != nil {
		if serr := h.recorder.Stop(); serr != nil {
			h.logger.Warn("recorder stop failed", "error", serr)
		}
		h.recorder = nil
	}
	h.recorderMu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	h.logger.Info("hub stopped", "messages", h.msgCount.Load())
	return err
}

// Receive ingests a measurement value. It runs on the producer's
// goroutine and never blocks on listeners.
func (h *Hub) Receive(name string, value any) {
	h.ingest(name, measurement.New(value), value, nil)
}

// ReceiveWithEvent ingests a measurement value with a secondary event.
func (h *Hub) ReceiveWithEvent(name string, value, event any) {
	h.ingest(name, measurement.NewWithEvent(value, event), value, event)
}

// ingest is the shared ingestion path: store, sink, counter, location
// check, then enqueue only when someone is listening.
func (h *Hub) ingest(name string, m measurement.Measurement, value, event any) {
	h.store.Put(name, m)

	h.msgCount.Add(1)
	if h.metrics != nil {
		h.metrics.MessagesReceived.Inc()
	}

	h.recorderMu.RLock()
	rec := h.recorder
	h.recorderMu.RUnlock()
	if rec != nil {
		if err := rec.Receive(name, value, event); err != nil {
			h.sinkWarn.Do(func() {
				h.logger.Warn("sink delivery failed", "name", name, "error", err)
			})
		}
	}

	if h.synthesizer != nil {
		h.synthesizer.Observe(name)
	}

	if h.listeners.Has(name) {
		h.notifier.Enqueue(name)
	}
}

// Get returns the latest measurement for name, or the unknown sentinel
// if the name has never been observed.
func (h *Hub) Get(name string) measurement.Measurement {
	return h.store.Get(name)
}

// AddListener registers l for updates to name. If a value for name is
// already known it is delivered to l synchronously, best effort,
// before AddListener returns.
func (h *Hub) AddListener(name string, l listener.Listener) {
	if l == nil {
		return
	}
	h.listeners.Add(name, l)

	if h.store.Has(name) {
		if err := l.Receive(name, h.store.Get(name)); err != nil {
			h.logger.Warn("last-known value delivery failed", "name", name, "error", err)
		}
	}
}

// RemoveListener unregisters l from updates to name.
func (h *Hub) RemoveListener(name string, l listener.Listener) {
	h.listeners.Remove(name, l)
}

// SetSource switches the active data source. The previous source is
// stopped before the replacement starts.
func (h *Hub) SetSource(identifier, resource string) error {
	return h.manager.SetSource(identifier, resource)
}

// EnableRecording toggles the trace recorder sink. Enabling when a
// recorder is already active, or disabling when none is, is a no-op.
func (h *Hub) EnableRecording(on bool) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	h.recorderMu.RLock()
	active := h.recorder
	h.recorderMu.RUnlock()

	if on {
		if active != nil {
			return nil
		}
		sinkDeps := sink.Deps{Logger: h.logger.With("component", "recorder")}
		if h.metrics != nil {
			sinkDeps.Records = h.metrics.SinkRecords
		}
		rec, err := sink.NewFileRecorder(h.traceDir, sinkDeps)
		if err != nil {
			return err
		}
		h.recorderMu.Lock()
		h.recorder = rec
		h.recorderMu.Unlock()
		return nil
	}

	if active == nil {
		return nil
	}
	h.recorderMu.Lock()
	h.recorder = nil
	h.recorderMu.Unlock()
	return active.Stop()
}

// EnableNativePositioning toggles the native positioning passthrough.
// It is lifecycle-managed independently of the data source: enabling
// it never counts as a source switch.
func (h *Hub) EnableNativePositioning(on bool) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	if h.passthrough == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Hub", "EnableNativePositioning", "no positioning provider configured")
	}

	if on {
		if h.passthrough.Running() {
			return nil
		}
		ctx := h.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := h.passthrough.Start(ctx); err != nil {
			h.logger.Warn("native positioning unavailable", "error", err)
			return err
		}
		return nil
	}

	if h.passthrough.Running() {
		h.passthrough.Stop()
	}
	return nil
}

// MessageCount returns the number of measurements ingested since
// start, including ones with no listeners.
func (h *Hub) MessageCount() int64 {
	return h.msgCount.Load()
}

// Bind records a client session. The first bind activates the default
// data source.
func (h *Hub) Bind() {
	if h.bindings.Add(1) == 1 {
		if err := h.SetSource(h.defaultSource, h.defaultResource); err != nil {
			h.logger.Warn("default source activation failed",
				"identifier", h.defaultSource, "error", err)
		}
	}
}

// Unbind releases a client session. When the last client disconnects
// the hub reverts to the default source, so an alternate source set by
// one session never leaks into the next.
func (h *Hub) Unbind() {
	if h.bindings.Add(-1) > 0 {
		return
	}

	active, _ := h.manager.Active()
	if active != h.defaultSource {
		if err := h.SetSource(h.defaultSource, h.defaultResource); err != nil {
			h.logger.Warn("default source reset failed",
				"identifier", h.defaultSource, "error", err)
		}
	}
}

// Info is a point-in-time diagnostic snapshot.
type Info struct {
	Source       string
	SourceState  source.State
	Listeners    int
	Measurements int
	Backlog      int
	Messages     int64
	Recording    bool
}

// Info returns a diagnostic snapshot of the hub.
func (h *Hub) Info() Info {
	active, _ := h.manager.Active()

	h.recorderMu.RLock()
	recording := h.recorder != nil
	h.recorderMu.RUnlock()

	return Info{
		Source:       active,
		SourceState:  h.manager.State(),
		Listeners:    h.listeners.Count(),
		Measurements: h.store.Len(),
		Backlog:      h.notifier.Backlog(),
		Messages:     h.msgCount.Load(),
		Recording:    recording,
	}
}

func (h *Hub) String() string {
	info := h.Info()
	return fmt.Sprintf("hub(source=%s state=%s listeners=%d measurements=%d backlog=%d messages=%d)",
		info.Source, info.SourceState, info.Listeners, info.Measurements, info.Backlog, info.Messages)
}
