// Package measurement defines the immutable envelope carried through the
// vehiclehub pipeline: a value, an optional secondary event, and the time
// the value was captured.
package measurement

import (
	"fmt"
	"time"
)

// Measurement is a single named vehicle measurement at a point in time.
//
// A Measurement is immutable once constructed; the store replaces entries
// wholesale on every new ingestion rather than mutating them in place.
// The zero Measurement is the canonical "unknown" sentinel returned for
// names that have never been observed - it carries no value and no event,
// which keeps it distinguishable from a real zero reading.
type Measurement struct {
	value     any
	event     any
	timestamp time.Time
}

// New creates a measurement holding value, captured now.
// Numeric values are normalized to float64 so readers only ever see
// float64 or bool.
func New(value any) Measurement {
	return Measurement{
		value:     normalize(value),
		timestamp: time.Now(),
	}
}

// NewWithEvent creates a measurement holding value and a secondary event,
// captured now. The event is opaque to the pipeline.
func NewWithEvent(value, event any) Measurement {
	return Measurement{
		value:     normalize(value),
		event:     normalize(event),
		timestamp: time.Now(),
	}
}

// Unknown returns the sentinel measurement for names that have never been
// observed.
func Unknown() Measurement {
	return Measurement{}
}

// HasValue reports whether the measurement carries a value.
func (m Measurement) HasValue() bool {
	return m.value != nil
}

// HasEvent reports whether the measurement carries a secondary event.
func (m Measurement) HasEvent() bool {
	return m.event != nil
}

// IsUnknown reports whether this is the unknown sentinel.
func (m Measurement) IsUnknown() bool {
	return m.value == nil && m.event == nil
}

// Value returns the raw value (float64, bool or nil).
func (m Measurement) Value() any {
	return m.value
}

// Event returns the raw secondary event, or nil if absent.
func (m Measurement) Event() any {
	return m.event
}

// Timestamp returns the capture time. The zero time indicates the unknown
// sentinel.
func (m Measurement) Timestamp() time.Time {
	return m.timestamp
}

// Num returns the value as a float64. The second return is false when the
// measurement is unknown or the value is not numeric.
func (m Measurement) Num() (float64, bool) {
	v, ok := m.value.(float64)
	return v, ok
}

// Bool returns the value as a bool. The second return is false when the
// measurement is unknown or the value is not boolean.
func (m Measurement) Bool() (bool, bool) {
	v, ok := m.value.(bool)
	return v, ok
}

// String implements fmt.Stringer for log output.
func (m Measurement) String() string {
	if m.IsUnknown() {
		return "Measurement{unknown}"
	}
	if m.event != nil {
		return fmt.Sprintf("Measurement{value: %v, event: %v, at: %s}",
			m.value, m.event, m.timestamp.Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("Measurement{value: %v, at: %s}",
		m.value, m.timestamp.Format(time.RFC3339Nano))
}

// normalize coerces numeric types to float64 so the pipeline only ever
// carries float64, bool or string values. JSON decoding already yields
// float64; this covers values handed in directly by native sources.
func normalize(v any) any {
	switch n := v.(type) {
	case nil:
		return nil
	case float64, bool, string:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return n
	}
}
