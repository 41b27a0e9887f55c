// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the relay's core logic: the key pool and the generation state machine
// only ever see CredentialStore and GenerationStore.
package store
