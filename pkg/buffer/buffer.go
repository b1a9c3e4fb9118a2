// Package buffer provides a generic, thread-safe ring buffer with
// configurable overflow policies.
//
// The notification pipeline uses it as its name queue: a fixed-size ring
// with DropOldest overflow, so a producer is never blocked by a slow
// consumer and overflow pressure shows up in statistics and metrics
// rather than in ingestion latency.
//
// Statistics are always collected. Prometheus metrics are optional and
// enabled via the WithMetrics functional option.
package buffer

// Buffer is a generic bounded FIFO buffer. All implementations are safe
// for concurrent use.
type Buffer[T any] interface {
	// Write adds an item to the buffer. When the buffer is full the
	// overflow policy decides whether the oldest or the newest item is
	// dropped; Write never blocks.
	Write(item T) error

	// Read retrieves and removes one item from the buffer.
	// Returns the zero value and false if the buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items from the buffer.
	// The returned slice may be shorter than max, or nil when empty.
	ReadBatch(max int) []T

	// Peek retrieves one item without removing it.
	Peek() (T, bool)

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Clear removes all items from the buffer.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close shuts down the buffer. Subsequent writes fail.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item dropped due to the overflow policy.
type DropCallback[T any] func(item T)

// NewRing creates a new ring buffer with the given capacity and options.
// Returns an error if metrics registration fails when metrics are requested.
func NewRing[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newRing(capacity, opts)
}
