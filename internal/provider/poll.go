package provider

// PollState enumerates the outcomes a status poll can report.
type PollState int

const (
	// PollRunning means the provider is still working on the task.
	PollRunning PollState = iota
	// PollSucceeded means the task finished with result URLs.
	PollSucceeded
	// PollFailed means the provider gave up on the task.
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollRunning:
		return "running"
	case PollSucceeded:
		return "succeeded"
	case PollFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PollResult is the normalized outcome of one status poll. Only the fields
// belonging to State are meaningful: URLs for PollSucceeded, Message for
// PollFailed.
type PollResult struct {
	State   PollState
	URLs    []string
	Message string
}

// Running reports a task still in progress.
func Running() PollResult {
	return PollResult{State: PollRunning}
}

// Succeeded reports a finished task and its result URLs.
func Succeeded(urls []string) PollResult {
	return PollResult{State: PollSucceeded, URLs: urls}
}

// Failed reports a task the provider marked as failed.
func Failed(message string) PollResult {
	return PollResult{State: PollFailed, Message: message}
}

// Done reports whether the result is terminal from the provider's side.
func (r PollResult) Done() bool {
	return r.State != PollRunning
}
