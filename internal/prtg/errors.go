package prtg

import "fmt"

// NotFoundError reports an object id that resolved to nothing. For the
// configured root this aborts the run; for a device id it is the stale
// cross-reference signal.
type NotFoundError struct {
	Kind string // "probe", "group", "device"
	ID   int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("prtg: no %s with id %d", e.Kind, e.ID)
}

// TransientError wraps a request that still failed after exhausting its
// retry budget.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("prtg: giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// retryableError marks a failure worth retrying: network errors, 429s and
// 5xx responses.
type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }
