package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vehiclehub/measurement"
	"github.com/c360/vehiclehub/store"
)

type captureReporter struct {
	mu    sync.Mutex
	fixes []Fix
	err   error
}

func (r *captureReporter) Report(fix Fix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.fixes = append(r.fixes, fix)
	return nil
}

func (r *captureReporter) snapshot() []Fix {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Fix, len(r.fixes))
	copy(out, r.fixes)
	return out
}

func TestSynthesizerRequiresDeps(t *testing.T) {
	st := store.New()

	_, err := NewSynthesizer(SynthesizerDeps{Reporter: &captureReporter{}})
	assert.Error(t, err)

	_, err = NewSynthesizer(SynthesizerDeps{Store: st})
	assert.Error(t, err)
}

func TestSynthesizerWaitsForAllThree(t *testing.T) {
	st := store.New()
	rep := &captureReporter{}
	syn, err := NewSynthesizer(SynthesizerDeps{Store: st, Reporter: rep})
	require.NoError(t, err)

	st.Put(measurement.Latitude, measurement.New(42.28))
	syn.Observe(measurement.Latitude)
	assert.Empty(t, rep.snapshot(), "latitude alone must not synthesize")

	st.Put(measurement.Longitude, measurement.New(-83.74))
	syn.Observe(measurement.Longitude)
	assert.Empty(t, rep.snapshot(), "latitude and longitude alone must not synthesize")

	st.Put(measurement.VehicleSpeed, measurement.New(30.5))
	syn.Observe(measurement.VehicleSpeed)

	fixes := rep.snapshot()
	require.Len(t, fixes, 1)
	assert.Equal(t, 42.28, fixes[0].Latitude)
	assert.Equal(t, -83.74, fixes[0].Longitude)
	assert.Equal(t, 30.5, fixes[0].Speed)
	assert.WithinDuration(t, time.Now(), fixes[0].Time, time.Second)
}

func TestSynthesizerIgnoresOtherNames(t *testing.T) {
	st := store.New()
	st.Put(measurement.Latitude, measurement.New(1.0))
	st.Put(measurement.Longitude, measurement.New(2.0))
	st.Put(measurement.VehicleSpeed, measurement.New(3.0))

	rep := &captureReporter{}
	syn, err := NewSynthesizer(SynthesizerDeps{Store: st, Reporter: rep})
	require.NoError(t, err)

	syn.Observe("engine_speed")
	assert.Empty(t, rep.snapshot())
}

func TestSynthesizerSurvivesReporterFailure(t *testing.T) {
	st := store.New()
	st.Put(measurement.Latitude, measurement.New(1.0))
	st.Put(measurement.Longitude, measurement.New(2.0))
	st.Put(measurement.VehicleSpeed, measurement.New(3.0))

	rep := &captureReporter{err: assert.AnError}
	syn, err := NewSynthesizer(SynthesizerDeps{Store: st, Reporter: rep})
	require.NoError(t, err)

	// Repeated failures must neither panic nor propagate.
	for i := 0; i < 5; i++ {
		syn.Observe(measurement.Latitude)
	}
	assert.Empty(t, rep.snapshot())
}

type fakeProvider struct {
	fixes chan Fix
	err   error
}

func (p *fakeProvider) Watch(ctx context.Context) (<-chan Fix, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make(chan Fix)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case fix, ok := <-p.fixes:
				if !ok {
					return
				}
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

type captureCallback struct {
	mu     sync.Mutex
	names  []string
	values []any
}

func (c *captureCallback) Receive(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.values = append(c.values, value)
}

func (c *captureCallback) ReceiveWithEvent(name string, value, _ any) {
	c.Receive(name, value)
}

func (c *captureCallback) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}

func TestPassthroughForwardsFixes(t *testing.T) {
	provider := &fakeProvider{fixes: make(chan Fix, 4)}
	cb := &captureCallback{}

	p, err := NewPassthrough(PassthroughDeps{
		Provider: provider,
		Callback: cb,
		Interval: time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())

	provider.fixes <- Fix{Latitude: 42.28, Longitude: -83.74}
	require.Eventually(t, func() bool {
		return p.Forwarded() == 1
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())

	cb.mu.Lock()
	defer cb.mu.Unlock()
	require.Equal(t, []string{measurement.Latitude, measurement.Longitude}, cb.names)
	assert.Equal(t, 42.28, cb.values[0])
	assert.Equal(t, -83.74, cb.values[1])
}

func TestPassthroughThrottlesFixes(t *testing.T) {
	provider := &fakeProvider{fixes: make(chan Fix, 8)}
	cb := &captureCallback{}

	p, err := NewPassthrough(PassthroughDeps{
		Provider: provider,
		Callback: cb,
		Interval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	for i := 0; i < 5; i++ {
		provider.fixes <- Fix{Latitude: 1, Longitude: 2}
	}
	require.Eventually(t, func() bool {
		return p.Forwarded() == 1
	}, time.Second, 5*time.Millisecond)

	// The remaining fixes fall inside the interval and are dropped.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), p.Forwarded())
	assert.Equal(t, 2, cb.count())

	p.Stop()
}

func TestPassthroughStartTwiceFails(t *testing.T) {
	provider := &fakeProvider{fixes: make(chan Fix)}
	p, err := NewPassthrough(PassthroughDeps{Provider: provider, Callback: &captureCallback{}})
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))
	p.Stop()
}

func TestPassthroughWatchFailure(t *testing.T) {
	provider := &fakeProvider{err: assert.AnError}
	p, err := NewPassthrough(PassthroughDeps{Provider: provider, Callback: &captureCallback{}})
	require.NoError(t, err)

	require.Error(t, p.Start(context.Background()))
	assert.False(t, p.Running())
}
