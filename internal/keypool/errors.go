package keypool

import "errors"

var (
	// ErrNoCapacity means no credential is currently active with credits
	// left. Callers should tell the user to try again later.
	ErrNoCapacity = errors.New("no credential with available credits")

	// ErrNoCredentials means neither stored nor fallback credentials exist.
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrRefresherRunning is returned by Start on a refresher already started.
	ErrRefresherRunning = errors.New("refresher already running")
)
