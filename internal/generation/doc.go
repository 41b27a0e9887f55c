// Package generation drives a generation request through its lifecycle:
// submit upstream, observe progress by polling, optionally hand the result to
// the enhancement pipeline, and settle in completed or failed.
//
// Enhancement is best effort. Once the provider has produced a result the
// task is considered successful, and a failed enhancement only changes the
// enhancement status.
package generation
