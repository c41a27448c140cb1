package launcher

import "fmt"

// BatchStatus is the normalized status the state machine branches on.
type BatchStatus string

const (
	StatusInProgress BatchStatus = "InProgress"
	StatusSuccess    BatchStatus = "Success"
	StatusFailed     BatchStatus = "Failed"
)

// Raw batch statuses reported by the execution service.
const (
	RawCompleted = "Completed"
	RawFailed    = "Failed"
	RawCanceled  = "Canceled"
)

// Validate enforces supported status values.
func (s BatchStatus) Validate() error {
	switch s {
	case StatusInProgress, StatusSuccess, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unsupported batch status: %q", s)
	}
}

// Terminal reports whether no further transition is allowed.
func (s BatchStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// NormalizeBatchStatus maps a raw execution-service status and its failed
// request count onto BatchStatus. The mapping is total.
func NormalizeBatchStatus(raw string, failedRequests int) BatchStatus {
	switch raw {
	case RawCompleted:
		if failedRequests == 0 {
			return StatusSuccess
		}
		return StatusFailed
	case RawFailed, RawCanceled:
		return StatusFailed
	default:
		return StatusInProgress
	}
}

// ValidateTransition enforces InProgress -> {Success, Failed} and nothing else.
func ValidateTransition(from, to BatchStatus) error {
	if err := to.Validate(); err != nil {
		return err
	}
	if !from.Terminal() || from == to {
		return nil
	}
	return fmt.Errorf("batch status %s is terminal, cannot move to %s", from, to)
}
