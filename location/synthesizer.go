// Package location derives vehicle position from the measurement
// stream and optionally feeds native GPS fixes back into it.
package location

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/c360/vehiclehub/errors"
	"github.com/c360/vehiclehub/measurement"
	"github.com/c360/vehiclehub/store"
)

// Fix is a synthesized or native position.
type Fix struct {
	Latitude  float64
	Longitude float64
	Speed     float64
	Time      time.Time
}

// Reporter receives synthesized fixes. Implementations must be fast;
// Report runs on the ingestion path.
type Reporter interface {
	Report(fix Fix) error
}

// SynthesizerDeps holds synthesizer dependencies.
type SynthesizerDeps struct {
	// Store is the latest-value store fixes are assembled from.
	// Required.
	Store *store.Store

	// Reporter receives each synthesized fix. Required.
	Reporter Reporter

	Logger *slog.Logger

	// Synthesized counts assembled fixes. Optional.
	Synthesized prometheus.Counter
}

// Synthesizer watches the ingestion stream for the position
// measurements and assembles a Fix whenever all of latitude, longitude
// and vehicle speed are known. A failing reporter is logged, not
// propagated: position is derived data and must never stall ingestion.
type Synthesizer struct {
	store       *store.Store
	reporter    Reporter
	logger      *slog.Logger
	synthesized prometheus.Counter

	warnOnce rate.Sometimes
}

// NewSynthesizer constructs a synthesizer.
func NewSynthesizer(deps SynthesizerDeps) (*Synthesizer, error) {
	if deps.Store == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("store is required"),
			"Synthesizer", "NewSynthesizer", "validate dependencies",
		)
	}
	if deps.Reporter == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("reporter is required"),
			"Synthesizer", "NewSynthesizer", "validate dependencies",
		)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "location_synthesizer")
	}

	return &Synthesizer{
		store:       deps.Store,
		reporter:    deps.Reporter,
		logger:      logger,
		synthesized: deps.Synthesized,
		warnOnce:    rate.Sometimes{First: 1, Interval: time.Minute},
	}, nil
}

// Observe is called after each ingestion with the measurement name.
// Names other than the position trio are ignored.
func (s *Synthesizer) Observe(name string) {
	switch name {
	case measurement.Latitude, measurement.Longitude, measurement.VehicleSpeed:
	default:
		return
	}

	lat, ok := s.store.Get(measurement.Latitude).Num()
	if !ok {
		return
	}
	lon, ok := s.store.Get(measurement.Longitude).Num()
	if !ok {
		return
	}
	speed, ok := s.store.Get(measurement.VehicleSpeed).Num()
	if !ok {
		return
	}

	fix := Fix{Latitude: lat, Longitude: lon, Speed: speed, Time: time.Now()}
	if s.synthesized != nil {
		s.synthesized.Inc()
	}

	if err := s.reporter.Report(fix); err != nil {
		s.warnOnce.Do(func() {
			s.logger.Warn("location reporter failed", "error", err)
		})
	}
}
