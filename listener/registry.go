// Package listener manages the set of consumers registered for
// measurement updates and fans values out to them.
//
// Listener handles are opaque capabilities whose Receive may fail, for
// example when the peer behind the handle has gone away. Failures are
// isolated per listener: one failing delivery never prevents delivery
// to co-registered listeners, and an irrecoverably failing listener is
// pruned from future broadcasts instead of being treated as fatal.
package listener

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vehiclehub/measurement"
)

// Listener receives measurement updates for names it registered for.
// Receive may fail if the endpoint behind the handle is unreachable;
// such failures are logged by the registry, never propagated.
type Listener interface {
	Receive(name string, m measurement.Measurement) error
}

// registration pairs a listener with a stable id used in log output.
type registration struct {
	id uuid.UUID
	l  Listener
}

// Registry is a concurrent mapping from measurement name to the ordered
// set of listeners registered for that name. It synchronizes internally
// and may be mutated concurrently with Broadcast.
type Registry struct {
	mu     sync.RWMutex
	sets   map[string][]registration
	logger *slog.Logger

	// optional gauges/counters, nil when metrics are disabled
	active   prometheus.Gauge
	failures prometheus.Counter
	pruned   prometheus.Counter
}

// Deps holds construction dependencies for the registry.
type Deps struct {
	Logger *slog.Logger

	// ActiveGauge tracks the number of registered listeners, FailureCounter
	// counts failed deliveries and PrunedCounter counts dropped listeners.
	// All three are optional.
	ActiveGauge    prometheus.Gauge
	FailureCounter prometheus.Counter
	PrunedCounter  prometheus.Counter
}

// NewRegistry creates an empty listener registry.
func NewRegistry(deps Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "listener-registry")
	}

	return &Registry{
		sets:     make(map[string][]registration),
		logger:   logger,
		active:   deps.ActiveGauge,
		failures: deps.FailureCounter,
		pruned:   deps.PrunedCounter,
	}
}

// Add registers l for updates to name. Registering the same listener
// twice for the same name is a no-op; listeners are deduplicated by
// identity.
func (r *Registry) Add(name string, l Listener) {
	if l == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.sets[name] {
		if reg.l == l {
			return
		}
	}

	reg := registration{id: uuid.New(), l: l}
	r.sets[name] = append(r.sets[name], reg)
	if r.active != nil {
		r.active.Inc()
	}

	r.logger.Info("Added listener", "name", name, "listener", reg.id)
}

// Remove unregisters l from updates to name. Removing a listener that
// was never registered is a no-op.
func (r *Registry) Remove(name string, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.sets[name]
	for i, reg := range regs {
		if reg.l == l {
			r.sets[name] = append(regs[:i], regs[i+1:]...)
			if r.active != nil {
				r.active.Dec()
			}
			r.logger.Info("Removed listener", "name", name, "listener", reg.id)
			return
		}
	}
}

// Has reports whether any listener is registered for name. The answer
// may be stale by the time the caller acts on it; the pipeline tolerates
// that (a spurious enqueue fans out to nobody).
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets[name]) > 0
}

// Count returns the total number of registrations across all names.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, regs := range r.sets {
		total += len(regs)
	}
	return total
}

// Broadcast delivers m to every listener currently registered for name
// and returns the number of successful deliveries. A failing listener
// does not prevent delivery to the others; failing listeners are pruned
// from future broadcasts.
func (r *Registry) Broadcast(name string, m measurement.Measurement) int {
	// Snapshot under read lock; deliveries happen outside the lock so a
	// slow listener never blocks Add/Remove on other goroutines.
	r.mu.RLock()
	snapshot := make([]registration, len(r.sets[name]))
	copy(snapshot, r.sets[name])
	r.mu.RUnlock()

	delivered := 0
	var failed []registration
	for _, reg := range snapshot {
		if err := reg.l.Receive(name, m); err != nil {
			r.logger.Warn("Couldn't notify listener, dropping it",
				"name", name, "listener", reg.id, "error", err)
			if r.failures != nil {
				r.failures.Inc()
			}
			failed = append(failed, reg)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		r.prune(name, failed)
	}

	return delivered
}

// prune removes registrations whose delivery failed irrecoverably.
func (r *Registry) prune(name string, failed []registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.sets[name]
	kept := regs[:0]
	for _, reg := range regs {
		dead := false
		for _, f := range failed {
			if reg.id == f.id {
				dead = true
				break
			}
		}
		if dead {
			if r.active != nil {
				r.active.Dec()
			}
			if r.pruned != nil {
				r.pruned.Inc()
			}
			continue
		}
		kept = append(kept, reg)
	}
	r.sets[name] = kept
}
