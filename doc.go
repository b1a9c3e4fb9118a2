// Package vehiclehub is the centralized in-process hub for vehicle
// measurement data.
//
// # Architecture
//
// Exactly one data source (a hardware interface reader, a trace file
// player, a websocket stream) produces named, timestamped measurements.
// The hub stores the latest value per measurement name, forwards every
// raw event to an optional recording sink, and fans new values out to
// any number of registered listeners without ever blocking ingestion on
// listener behavior.
//
// The building blocks map one-to-one onto packages:
//
//   - measurement: the immutable value+event+timestamp envelope
//   - store:       concurrent latest-value store
//   - listener:    concurrent listener registry with dead-peer pruning
//   - notify:      decoupled notification pipeline (queue + consumer)
//   - source:      data source contract, factory registry and lifecycle
//   - sink:        recording sink contract and trace recorder
//   - location:    derived location synthesis and native positioning
//   - hub:         the control surface tying everything together
//
// Ingestion is synchronous and non-blocking: the producer's callback
// updates the store, dispatches to the sink, and enqueues the changed
// name for the single notification consumer. The consumer re-reads the
// current value at dequeue time, so rapid updates to the same name
// coalesce into fewer deliveries carrying the latest value.
package vehiclehub
