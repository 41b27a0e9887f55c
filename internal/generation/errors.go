package generation

import "errors"

var (
	// ErrUnknownModel is returned when a request names a model with no policy.
	ErrUnknownModel = errors.New("unknown generation model")

	// ErrSubmitFailed wraps a submission failure that left the task failed.
	ErrSubmitFailed = errors.New("generation submission failed")

	// ErrPollFailed wraps a transport failure during a status poll. The
	// task is unchanged and a later poll may succeed.
	ErrPollFailed = errors.New("generation status poll failed")

	// ErrPollTimeout is the client-side soft timeout. It never changes the
	// stored task.
	ErrPollTimeout = errors.New("generation did not finish in time")
)
