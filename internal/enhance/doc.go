// Package enhance upscales and sharpens a finished generation result.
//
// A run downloads the provider artifact into a private temp directory, runs
// an external transform over it, publishes the output and records the outcome
// on the task. Every failure is contained: it is recorded as a failed
// enhancement and never retried, and the temp directory is removed on every
// path.
package enhance
