package trace

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vehiclehub/source"
)

type captureCallback struct {
	mu     sync.Mutex
	names  []string
	values []any
	events []any
}

func (c *captureCallback) Receive(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.values = append(c.values, value)
	c.events = append(c.events, nil)
}

func (c *captureCallback) ReceiveWithEvent(name string, value, event any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.values = append(c.values, value)
	c.events = append(c.events, event)
}

func (c *captureCallback) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}

func writeTrace(t *testing.T, lines string) *url.URL {
	t.Helper()

	path := filepath.Join(t.TempDir(), "drive.json")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	u, err := url.Parse(path)
	require.NoError(t, err)
	return u
}

func newPlayer(t *testing.T, resource *url.URL, cb source.Callback) source.Source {
	t.Helper()

	p, err := New(source.Deps{Callback: cb, Resource: resource})
	require.NoError(t, err)
	return p
}

func TestNewRequiresResource(t *testing.T) {
	_, err := New(source.Deps{Callback: &captureCallback{}})
	assert.Error(t, err)
}

func TestPlaysAllRecords(t *testing.T) {
	cb := &captureCallback{}
	resource := writeTrace(t,
		`{"name":"vehicle_speed","value":42.0}
{"name":"latitude","value":45.0}
{"name":"door_status","value":"driver","event":true}
`)

	p := newPlayer(t, resource, cb)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not finish")
	}

	require.Equal(t, 3, cb.count())
	assert.Equal(t, []string{"vehicle_speed", "latitude", "door_status"}, cb.names)
	assert.Equal(t, 42.0, cb.values[0])
	assert.Equal(t, true, cb.events[2], "event records go through ReceiveWithEvent")
}

func TestSkipsMalformedLines(t *testing.T) {
	cb := &captureCallback{}
	resource := writeTrace(t,
		`not json at all
{"name":"vehicle_speed","value":10.0}
{"value":3.0}
`)

	p := newPlayer(t, resource, cb)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 1, cb.count(), "malformed lines are skipped, not fatal")
}

func TestHonorsRecordedTiming(t *testing.T) {
	cb := &captureCallback{}
	resource := writeTrace(t,
		`{"timestamp":100.0,"name":"a","value":1.0}
{"timestamp":100.2,"name":"b","value":2.0}
`)

	p := newPlayer(t, resource, cb)

	start := time.Now()
	require.NoError(t, p.Run(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond,
		"second record should wait for the recorded 200ms gap")
	assert.Equal(t, 2, cb.count())
}

func TestStopInterruptsPlayback(t *testing.T) {
	cb := &captureCallback{}

	// A long trace with default pacing
	var lines string
	for i := 0; i < 100; i++ {
		lines += `{"name":"vehicle_speed","value":1.0}` + "\n"
	}
	resource := writeTrace(t, lines)

	p := newPlayer(t, resource, cb)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	p.Stop()
	p.Stop() // idempotent

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return promptly after stop")
	}

	assert.Less(t, cb.count(), 100)
}

func TestRunMissingFileFails(t *testing.T) {
	u, err := url.Parse("/nonexistent/trace.json")
	require.NoError(t, err)

	p := newPlayer(t, u, &captureCallback{})
	assert.Error(t, p.Run(context.Background()))
}
