package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vehiclehub/measurement"
)

func TestPutThenGet(t *testing.T) {
	s := New()

	m := measurement.New(42.0)
	s.Put("vehicle_speed", m)

	got := s.Get("vehicle_speed")
	if diff := cmp.Diff(m, got, cmp.AllowUnexported(measurement.Measurement{})); diff != "" {
		t.Errorf("Get returned wrong measurement (-want +got):\n%s", diff)
	}
}

func TestGetUnseenNameReturnsUnknownSentinel(t *testing.T) {
	s := New()

	got := s.Get("never_seen")
	assert.True(t, got.IsUnknown())
	assert.False(t, s.Has("never_seen"))
}

func TestPutReplacesWholesale(t *testing.T) {
	s := New()

	s.Put("fuel_level", measurement.New(80.0))
	s.Put("fuel_level", measurement.New(79.5))

	v, ok := s.Get("fuel_level").Num()
	require.True(t, ok)
	assert.Equal(t, 79.5, v)
	assert.Equal(t, 1, s.Len(), "at most one entry per name")
}

func TestZeroValueIsNotUnknown(t *testing.T) {
	s := New()

	s.Put("vehicle_speed", measurement.New(0.0))

	got := s.Get("vehicle_speed")
	assert.False(t, got.IsUnknown(), "a stored zero must be distinguishable from never-observed")
}

func TestClear(t *testing.T) {
	s := New()
	s.Put("a", measurement.New(1.0))
	s.Put("b", measurement.New(2.0))

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Get("a").IsUnknown())
}

func TestConcurrentPutsDoNotInterfere(t *testing.T) {
	s := New()

	const names = 16
	const writes = 200

	var wg sync.WaitGroup
	wg.Add(names)
	for n := 0; n < names; n++ {
		name := fmt.Sprintf("name_%d", n)
		go func() {
			defer wg.Done()
			for i := 0; i <= writes; i++ {
				s.Put(name, measurement.New(float64(i)))
			}
		}()
	}
	wg.Wait()

	for n := 0; n < names; n++ {
		v, ok := s.Get(fmt.Sprintf("name_%d", n)).Num()
		require.True(t, ok)
		assert.Equal(t, float64(writes), v)
	}
}

func TestConcurrentPutGetSameName(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Put("latitude", measurement.New(float64(i)))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			m := s.Get("latitude")
			if !m.IsUnknown() {
				// Any observed value must be a complete write
				_, ok := m.Num()
				assert.True(t, ok)
				assert.False(t, m.Timestamp().IsZero())
			}
		}
	}()

	wg.Wait()
}
