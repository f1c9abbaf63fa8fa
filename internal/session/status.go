package session

// Status tracks where a session is in its lifecycle.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusScanning    Status = "scanning"
	StatusExtracting  Status = "extracting"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCanceled    Status = "canceled"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// validTransitions defines allowed state transitions.
// Key is the "from" status, value is list of valid "to" statuses.
var validTransitions = map[Status][]Status{
	StatusIdle:        {StatusScanning, StatusDownloading, StatusCanceled},
	StatusScanning:    {StatusExtracting, StatusCanceled, StatusFailed},
	StatusExtracting:  {StatusCompleted, StatusCanceled, StatusFailed},
	StatusDownloading: {StatusPaused, StatusCompleted, StatusCanceled, StatusFailed},
	StatusPaused:      {StatusDownloading, StatusCanceled},
	StatusCanceled:    {},
	StatusCompleted:   {},
	StatusFailed:      {},
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	valid, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, v := range valid {
		if v == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this status has no valid outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCanceled || s == StatusCompleted || s == StatusFailed
}
