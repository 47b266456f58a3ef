package livy

// SessionState is the outer lifecycle state reported by the sessions
// endpoint.
type SessionState string

const (
	SessionNotStarted   SessionState = "not_started"
	SessionStarting     SessionState = "starting"
	SessionIdle         SessionState = "idle"
	SessionBusy         SessionState = "busy"
	SessionShuttingDown SessionState = "shutting_down"
	SessionDead         SessionState = "dead"
	SessionKilled       SessionState = "killed"
	SessionError        SessionState = "error"
	SessionSuccess      SessionState = "success"
	SessionRecovering   SessionState = "recovering"
	SessionUnknown      SessionState = "unknown"
)

// Booting reports whether the session has been accepted but is not yet
// attached to a Livy engine.
func (s SessionState) Booting() bool {
	return s == SessionStarting || s == SessionNotStarted
}

// EngineState is the nested Livy engine state (livyInfo.currentState).
// Readiness and validity decisions key off this one, not the outer state.
type EngineState string

const (
	EngineIdle         EngineState = "idle"
	EngineBusy         EngineState = "busy"
	EngineShuttingDown EngineState = "shutting_down"
	EngineDead         EngineState = "dead"
	EngineKilled       EngineState = "killed"
	EngineError        EngineState = "error"
)

// Ready reports whether the engine can accept statements.
func (s EngineState) Ready() bool {
	return s == EngineIdle
}

// Failed reports the terminal failure states observed during startup.
func (s EngineState) Failed() bool {
	return s == EngineDead || s == EngineKilled || s == EngineError
}

// Invalid reports whether an existing session in this state must be
// replaced rather than reused.
func (s EngineState) Invalid() bool {
	return s.Failed() || s == EngineShuttingDown
}

// StatementState is the lifecycle of one submitted statement.
type StatementState string

const (
	StatementWaiting    StatementState = "waiting"
	StatementRunning    StatementState = "running"
	StatementAvailable  StatementState = "available"
	StatementError      StatementState = "error"
	StatementCancelling StatementState = "cancelling"
	StatementCancelled  StatementState = "cancelled"
)

// Finished reports whether the statement completed with a result to decode.
func (s StatementState) Finished() bool {
	return s == StatementAvailable
}

// Failed reports the terminal failure states of a statement.
func (s StatementState) Failed() bool {
	return s == StatementError || s == StatementCancelled || s == StatementCancelling
}
