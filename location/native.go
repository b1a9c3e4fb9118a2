package location

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/vehiclehub/errors"
	"github.com/c360/vehiclehub/measurement"
	"github.com/c360/vehiclehub/source"
)

// DefaultUpdateInterval is the minimum spacing between forwarded
// native fixes.
const DefaultUpdateInterval = 5 * time.Second

// Provider streams native position fixes, typically from a platform
// positioning service. Watch must close the channel when ctx is
// cancelled.
type Provider interface {
	Watch(ctx context.Context) (<-chan Fix, error)
}

// PassthroughDeps holds passthrough dependencies.
type PassthroughDeps struct {
	// Provider supplies native fixes. Required.
	Provider Provider

	// Callback is the shared ingestion entry point. Required.
	Callback source.Callback

	Logger *slog.Logger

	// Interval throttles forwarded fixes. Zero means
	// DefaultUpdateInterval.
	Interval time.Duration
}

// Passthrough feeds native position fixes back into the measurement
// stream as latitude and longitude. It runs independently of the data
// source lifecycle; enabling it does not count as a source switch.
type Passthrough struct {
	provider Provider
	callback source.Callback
	logger   *slog.Logger
	limiter  *rate.Limiter

	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	forwarded atomic.Int64
}

// NewPassthrough constructs a native positioning passthrough.
func NewPassthrough(deps PassthroughDeps) (*Passthrough, error) {
	if deps.Provider == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("provider is required"),
			"Passthrough", "NewPassthrough", "validate dependencies",
		)
	}
	if deps.Callback == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("callback is required"),
			"Passthrough", "NewPassthrough", "validate dependencies",
		)
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "native_positioning")
	}

	return &Passthrough{
		provider: deps.Provider,
		callback: deps.Callback,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}, nil
}

// Start begins watching the provider and forwarding fixes.
func (p *Passthrough) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Passthrough", "Start", "check running state")
	}

	watchCtx, cancel := context.WithCancel(ctx)

	fixes, err := p.provider.Watch(watchCtx)
	if err != nil {
		cancel()
		p.running.Store(false)
		return errors.WrapTransient(err, "Passthrough", "Start", "watch position provider")
	}

	p.cancel = cancel
	p.done = make(chan struct{})

	go p.forward(fixes)

	p.logger.Info("native positioning enabled")
	return nil
}

// Stop cancels the provider watch and waits for the forwarder to
// drain. Safe to call when not running.
func (p *Passthrough) Stop() {
	if !p.running.Load() {
		return
	}
	p.cancel()
	<-p.done
	p.logger.Info("native positioning disabled", "forwarded", p.forwarded.Load())
}

// Running reports whether the passthrough is active.
func (p *Passthrough) Running() bool {
	return p.running.Load()
}

// Forwarded reports how many fixes have been injected.
func (p *Passthrough) Forwarded() int64 {
	return p.forwarded.Load()
}

func (p *Passthrough) forward(fixes <-chan Fix) {
	defer func() {
		p.running.Store(false)
		close(p.done)
	}()

	for fix := range fixes {
		if !p.limiter.Allow() {
			continue
		}
		p.callback.Receive(measurement.Latitude, fix.Latitude)
		p.callback.Receive(measurement.Longitude, fix.Longitude)
		p.forwarded.Add(1)
	}
}
