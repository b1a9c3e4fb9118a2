package hub

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vehiclehub/location"
	"github.com/c360/vehiclehub/measurement"
	"github.com/c360/vehiclehub/source"
)

type fakeSource struct {
	stop     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
}

func (s *fakeSource) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-s.stop:
	}
	return nil
}

func (s *fakeSource) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stop)
	})
}

// sourceTracker hands out fake sources and remembers them in
// construction order.
type sourceTracker struct {
	mu      sync.Mutex
	created []*fakeSource
}

func (t *sourceTracker) factory(source.Deps) (source.Source, error) {
	s := &fakeSource{stop: make(chan struct{})}
	t.mu.Lock()
	t.created = append(t.created, s)
	t.mu.Unlock()
	return s, nil
}

func (t *sourceTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.created)
}

type recordListener struct {
	mu   sync.Mutex
	err  error
	got  []measurement.Measurement
	name []string
}

func (l *recordListener) Receive(name string, m measurement.Measurement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.got = append(l.got, m)
	l.name = append(l.name, name)
	return nil
}

func (l *recordListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.got)
}

type recordReporter struct {
	mu    sync.Mutex
	fixes []location.Fix
}

func (r *recordReporter) Report(fix location.Fix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixes = append(r.fixes, fix)
	return nil
}

func (r *recordReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fixes)
}

type fixProvider struct {
	fixes chan location.Fix
}

func (p *fixProvider) Watch(ctx context.Context) (<-chan location.Fix, error) {
	out := make(chan location.Fix)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case fix := <-p.fixes:
				select {
				case out <- fix:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func newTestHub(t *testing.T, mutate func(*Deps)) (*Hub, *sourceTracker) {
	t.Helper()

	tracker := &sourceTracker{}
	registry := source.NewRegistry()
	require.NoError(t, registry.RegisterFactory("fake", tracker.factory))
	require.NoError(t, registry.RegisterFactory("alt", tracker.factory))

	deps := Deps{
		Sources:       registry,
		DefaultSource: "fake",
		TraceDir:      t.TempDir(),
		PollInterval:  10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&deps)
	}

	h, err := New(deps)
	require.NoError(t, err)

	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(time.Second) })

	return h, tracker
}

func TestNewValidation(t *testing.T) {
	_, err := New(Deps{DefaultSource: "fake"})
	assert.Error(t, err, "source registry is required")

	_, err = New(Deps{Sources: source.NewRegistry()})
	assert.Error(t, err, "default source is required")
}

func TestGetUnknownName(t *testing.T) {
	h, _ := newTestHub(t, nil)

	m := h.Get("never_seen")
	assert.True(t, m.IsUnknown())
}

func TestIngestWithoutListeners(t *testing.T) {
	h, _ := newTestHub(t, nil)

	h.Receive("vehicle_speed", 42.0)

	v, ok := h.Get("vehicle_speed").Num()
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
	assert.Equal(t, int64(1), h.MessageCount())
}

func TestMessageCountIncludesUnwatchedNames(t *testing.T) {
	h, _ := newTestHub(t, nil)

	l := &recordListener{}
	h.AddListener("engine_speed", l)

	h.Receive("engine_speed", 700.0)
	h.Receive("fuel_level", 67.2)
	h.ReceiveWithEvent("button_state", "down", "pressed")

	assert.Equal(t, int64(3), h.MessageCount())
}

func TestAddListenerDeliversLastKnownValue(t *testing.T) {
	h, _ := newTestHub(t, nil)

	h.Receive("fuel_level", 67.2)

	l := &recordListener{}
	h.AddListener("fuel_level", l)

	// Delivery is synchronous, no waiting required.
	require.Equal(t, 1, l.count())
	v, ok := l.got[0].Num()
	require.True(t, ok)
	assert.Equal(t, 67.2, v)
}

func TestAddListenerFailingLastKnownDelivery(t *testing.T) {
	h, _ := newTestHub(t, nil)

	h.Receive("fuel_level", 67.2)

	l := &recordListener{err: assert.AnError}
	h.AddListener("fuel_level", l)

	// The failure is logged, not raised; the listener stays registered.
	assert.Equal(t, 1, h.Info().Listeners)
}

func TestListenerReceivesExactlyItsName(t *testing.T) {
	h, _ := newTestHub(t, nil)

	l := &recordListener{}
	h.AddListener(measurement.Latitude, l)

	h.Receive(measurement.Latitude, 45.0)
	h.Receive(measurement.Longitude, -122.0)
	h.Receive(measurement.VehicleSpeed, 10.0)

	require.Eventually(t, func() bool {
		return l.count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// No further deliveries for the other names.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, l.count())
	assert.Equal(t, measurement.Latitude, l.name[0])
	v, ok := l.got[0].Num()
	require.True(t, ok)
	assert.Equal(t, 45.0, v)
}

func TestRemovedListenerReceivesNothing(t *testing.T) {
	h, _ := newTestHub(t, nil)

	removed := &recordListener{}
	kept := &recordListener{}
	h.AddListener("engine_speed", removed)
	h.AddListener("engine_speed", kept)
	h.RemoveListener("engine_speed", removed)

	h.Receive("engine_speed", 700.0)

	require.Eventually(t, func() bool {
		return kept.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, removed.count())
}

func TestSynthesizerFiresOnlyWhenComplete(t *testing.T) {
	rep := &recordReporter{}
	h, _ := newTestHub(t, func(d *Deps) { d.Reporter = rep })

	h.Receive(measurement.Latitude, 45.0)
	assert.Equal(t, 0, rep.count())

	h.Receive(measurement.Longitude, -122.0)
	assert.Equal(t, 0, rep.count())

	h.Receive(measurement.VehicleSpeed, 10.0)
	require.Equal(t, 1, rep.count())

	rep.mu.Lock()
	defer rep.mu.Unlock()
	assert.Equal(t, 45.0, rep.fixes[0].Latitude)
	assert.Equal(t, -122.0, rep.fixes[0].Longitude)
	assert.Equal(t, 10.0, rep.fixes[0].Speed)
}

func TestBindActivatesDefaultSource(t *testing.T) {
	h, tracker := newTestHub(t, nil)

	assert.Equal(t, 0, tracker.count())

	h.Bind()
	active, ok := h.manager.Active()
	require.True(t, ok)
	assert.Equal(t, "fake", active)
	assert.Equal(t, 1, tracker.count())

	// A second bind must not restart the source.
	h.Bind()
	assert.Equal(t, 1, tracker.count())

	h.Unbind()
	h.Unbind()
}

func TestUnbindResetsAlternateSource(t *testing.T) {
	h, tracker := newTestHub(t, nil)

	h.Bind()
	require.NoError(t, h.SetSource("alt", ""))
	active, _ := h.manager.Active()
	require.Equal(t, "alt", active)

	h.Unbind()

	active, _ = h.manager.Active()
	assert.Equal(t, "fake", active, "alternate source must not leak past the session")

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	// fake (bind), alt (switch), fake (reset); the alt instance stopped.
	require.Len(t, tracker.created, 3)
	assert.True(t, tracker.created[1].stopped.Load())
}

func TestOnlyOneSourceRunsAcrossRapidSwitches(t *testing.T) {
	h, tracker := newTestHub(t, nil)

	for i := 0; i < 8; i++ {
		id := "fake"
		if i%2 == 1 {
			id = "alt"
		}
		require.NoError(t, h.SetSource(id, ""))
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Len(t, tracker.created, 8)
	for i, s := range tracker.created[:7] {
		assert.True(t, s.stopped.Load(), "source %d must be stopped", i)
	}
	assert.False(t, tracker.created[7].stopped.Load(), "latest source must still run")
}

func TestEnableRecording(t *testing.T) {
	h, _ := newTestHub(t, nil)

	require.NoError(t, h.EnableRecording(true))
	require.NoError(t, h.EnableRecording(true), "double enable is a no-op")
	assert.True(t, h.Info().Recording)

	h.Receive("vehicle_speed", 42.0)
	h.Receive("engine_speed", 700.0)

	require.NoError(t, h.EnableRecording(false))
	require.NoError(t, h.EnableRecording(false), "double disable is a no-op")
	assert.False(t, h.Info().Recording)

	entries, err := os.ReadDir(h.traceDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(h.traceDir + "/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "vehicle_speed")
	assert.Contains(t, string(data), "engine_speed")
}

func TestEnableNativePositioning(t *testing.T) {
	provider := &fixProvider{fixes: make(chan location.Fix)}
	h, _ := newTestHub(t, func(d *Deps) { d.Positioning = provider })

	require.NoError(t, h.EnableNativePositioning(true))
	require.NoError(t, h.EnableNativePositioning(true), "double enable is a no-op")

	provider.fixes <- location.Fix{Latitude: 42.28, Longitude: -83.74}

	require.Eventually(t, func() bool {
		v, ok := h.Get(measurement.Latitude).Num()
		return ok && v == 42.28
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.EnableNativePositioning(false))
}

func TestEnableNativePositioningWithoutProvider(t *testing.T) {
	h, _ := newTestHub(t, nil)
	assert.Error(t, h.EnableNativePositioning(true))
}

func TestStopIsIdempotent(t *testing.T) {
	h, _ := newTestHub(t, nil)

	h.Bind()
	require.NoError(t, h.EnableRecording(true))

	require.NoError(t, h.Stop(time.Second))
	require.NoError(t, h.Stop(time.Second))
	assert.False(t, h.Info().Recording)
}

func TestInfoAndString(t *testing.T) {
	h, _ := newTestHub(t, nil)

	h.AddListener("engine_speed", &recordListener{})
	h.Receive("engine_speed", 700.0)
	h.Receive("fuel_level", 67.2)

	require.Eventually(t, func() bool {
		return h.Info().Backlog == 0
	}, 2*time.Second, 5*time.Millisecond)

	info := h.Info()
	assert.Equal(t, 1, info.Listeners)
	assert.Equal(t, 2, info.Measurements)
	assert.Equal(t, int64(2), info.Messages)

	s := h.String()
	assert.Contains(t, s, "listeners=1")
	assert.Contains(t, s, "messages=2")
}
