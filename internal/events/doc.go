// Package events decouples producers of background work from the code that
// schedules it. The generation service emits an event when a task needs
// enhancement; the server wires a handler that turns it into a queued task.
package events
