package livy

import "errors"

var (
	// ErrConnect marks connection-level failures that survived every
	// retry budget.
	ErrConnect = errors.New("connection failed")

	// ErrTimeout marks a wall-clock deadline exceeded while polling for
	// session readiness or statement completion.
	ErrTimeout = errors.New("timed out")

	// ErrSessionFailed marks a session the remote service reported as
	// dead, killed, or errored. Never retried.
	ErrSessionFailed = errors.New("session failed")

	// ErrStatementFailed marks a statement the remote engine evaluated
	// and rejected. Never retried.
	ErrStatementFailed = errors.New("statement failed")

	// ErrMalformedResponse marks a response that could not be parsed in
	// a one-shot context (missing id, undecodable payload).
	ErrMalformedResponse = errors.New("malformed response")
)
