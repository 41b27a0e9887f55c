// Package domain contains the core business entities of the relay: provider
// credentials and generation tasks, together with the state transitions a
// generation task is allowed to make. It has no knowledge of storage or
// transport.
package domain
