package snow

import "fmt"

// NotFoundError reports a lookup that matched no records.
type NotFoundError struct {
	Kind string // "company", "location"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("servicenow: no %s named %q", e.Kind, e.Name)
}

// AmbiguousError reports a lookup that matched more than one record where
// exactly one was required.
type AmbiguousError struct {
	Kind  string
	Name  string
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("servicenow: %d %s records named %q, want exactly one", e.Count, e.Kind, e.Name)
}

// TransientError wraps a request that still failed after exhausting its
// retry budget. Callers treat it as "instance unreachable" and abort the run.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("servicenow: giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// retryableError marks a failure worth retrying: network errors, 429s and
// 5xx responses.
type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }
