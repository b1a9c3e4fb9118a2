package source

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/vehiclehub/errors"
	"github.com/c360/vehiclehub/metric"
)

// State represents the lifecycle state of the managed data source.
type State int

const (
	// StateIdle indicates no source is active.
	StateIdle State = iota
	// StateStarting indicates a source is being constructed.
	StateStarting
	// StateRunning indicates a source is producing on its own goroutine.
	StateRunning
	// StateStopping indicates the active source is being stopped.
	StateStopping
)

// String returns a string representation of the lifecycle state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ManagerDeps holds construction dependencies for the lifecycle manager.
type ManagerDeps struct {
	// Registry resolves source identifiers to factories. Required.
	Registry *Registry

	// Callback is the shared ingestion entry point handed to every
	// source the manager constructs. Required.
	Callback Callback

	// Logger is optional.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.MetricsRegistry
}

// Manager owns the single active data source. All mutation of the
// active source goes through the manager, which serializes switches:
// only one source is ever running, and a replacement's Run never begins
// before the predecessor's Stop has been invoked.
type Manager struct {
	mu              sync.Mutex
	registry        *Registry
	callback        Callback
	logger          *slog.Logger
	metrics         *metric.Metrics
	metricsRegistry *metric.MetricsRegistry

	state      State
	active     Source
	activeID   string
	instanceID uuid.UUID
	cancel     context.CancelFunc
}

// NewManager creates a lifecycle manager in the Idle state.
func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.Registry == nil || deps.Callback == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Manager", "NewManager", "registry and callback validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "source-manager")
	}

	m := &Manager{
		registry: deps.Registry,
		callback: deps.Callback,
		logger:   logger,
		state:    StateIdle,
	}
	if deps.Metrics != nil {
		m.metrics = deps.Metrics.CoreMetrics()
		m.metricsRegistry = deps.Metrics
	}
	return m, nil
}

// SetSource stops the active source (if any) and starts the source
// registered under identifier, handing it the parsed resource locator.
//
// Failures are configuration errors, not fatal ones: an unknown
// identifier or a failing constructor is logged and returned, and the
// manager is left Idle with no active source. An unparsable resource
// locator is logged and treated as absent.
func (m *Manager) SetSource(identifier, resource string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The old source is told to stop before anything about the new one
	// happens. We deliberately do not wait for its goroutine to exit.
	m.stopActiveLocked()

	factory, err := m.registry.Resolve(identifier)
	if err != nil {
		m.logger.Warn("Couldn't find data source type",
			"identifier", identifier, "error", err)
		return err
	}

	var resourceURL *url.URL
	if resource != "" {
		resourceURL, err = url.Parse(resource)
		if err != nil {
			m.logger.Warn("Unable to parse resource locator, ignoring it",
				"resource", resource, "error", err)
			resourceURL = nil
		}
	}

	m.setStateLocked(StateStarting)

	src, err := factory(Deps{
		Callback: m.callback,
		Resource: resourceURL,
		Logger:   m.logger.With("source", identifier),
		Metrics:  m.metricsRegistry,
	})
	if err != nil {
		m.setStateLocked(StateIdle)
		m.logger.Warn("Couldn't construct data source",
			"identifier", identifier, "error", err)
		return errors.Wrap(err, "Manager", "SetSource", "source construction")
	}

	instanceID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	m.active = src
	m.activeID = identifier
	m.instanceID = instanceID
	m.cancel = cancel
	m.setStateLocked(StateRunning)

	if m.metrics != nil {
		m.metrics.SourceSwitches.WithLabelValues(identifier).Inc()
	}
	m.logger.Info("Initialized data source",
		"identifier", identifier, "instance", instanceID, "resource", resource)

	go m.run(ctx, src, identifier, instanceID)
	return nil
}

// run executes the source's produce loop on its own goroutine and
// cleans up when it exits on its own (e.g. a trace finished playing).
func (m *Manager) run(ctx context.Context, src Source, identifier string, instanceID uuid.UUID) {
	err := src.Run(ctx)
	if err != nil {
		m.logger.Warn("Data source exited with error",
			"identifier", identifier, "instance", instanceID, "error", err)
	} else {
		m.logger.Info("Data source exited",
			"identifier", identifier, "instance", instanceID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Only clear state if this instance is still the active one; a
	// switch may already have installed a successor.
	if m.instanceID == instanceID {
		m.active = nil
		m.activeID = ""
		m.cancel = nil
		m.setStateLocked(StateIdle)
	}
}

// Stop stops the active source, if any. Idempotent, safe from any
// goroutine, and does not wait for the source goroutine to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopActiveLocked()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active returns the identifier of the running source, and false when
// the manager is idle.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID, m.active != nil
}

func (m *Manager) stopActiveLocked() {
	if m.active == nil {
		return
	}

	m.setStateLocked(StateStopping)
	m.logger.Info("Stopping data source",
		"identifier", m.activeID, "instance", m.instanceID)

	m.active.Stop()
	if m.cancel != nil {
		m.cancel()
	}

	m.active = nil
	m.activeID = ""
	m.instanceID = uuid.Nil
	m.cancel = nil
	m.setStateLocked(StateIdle)
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	if m.metrics != nil {
		m.metrics.SourceState.Set(float64(s))
	}
}
