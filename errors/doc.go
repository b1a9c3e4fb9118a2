// Package errors provides standardized error handling for vehiclehub.
//
// # Error Classification
//
// Errors fall into three classes that determine how callers react:
//
//   - Transient: temporary failures (lost connections, unreachable
//     listeners) that may be retried or simply logged.
//   - Invalid: bad input or configuration (unknown source identifier,
//     unparsable resource locator). The operation aborts, prior state
//     is preserved, and the host keeps running.
//   - Fatal: unrecoverable internal failures. Nothing in the steady
//     state pipeline should ever produce one.
//
// # Usage
//
// Wrap errors at component boundaries with the component and operation
// name so log lines carry their origin:
//
//	if err := src.Run(ctx); err != nil {
//	    return errors.WrapTransient(err, "TraceSource", "Run", "trace playback")
//	}
//
// Classification helpers drive handling decisions:
//
//	if errors.IsInvalid(err) {
//	    // log and abort the operation, keep serving
//	}
package errors
