package errors

import "fmt"

/*
The executor classifies every error a Producer step (or the TaskStore) can
raise into one of five kinds, each with its own propagation rule — see
pkg/executor. These wrapper types let call sites use errors.As to recover
the kind without string-matching messages.
*/

// ClientInputErr marks a request the caller sent badly shaped input for
// (invalid params, missing required field); surfaced as InvalidParams.
type ClientInputErr struct {
	Reason string
}

func (e *ClientInputErr) Error() string { return fmt.Sprintf("invalid input: %s", e.Reason) }

// TaskNotFoundErr marks a lookup against an id the store doesn't know.
type TaskNotFoundErr struct {
	ID string
}

func (e *TaskNotFoundErr) Error() string { return fmt.Sprintf("task not found: %s", e.ID) }

// ProcessorCancellationErr marks a step aborted because Cancel() was
// called. It never surfaces to an RPC caller — the executor always
// translates it into a canceled task snapshot.
type ProcessorCancellationErr struct {
	TaskID string
}

func (e *ProcessorCancellationErr) Error() string {
	return fmt.Sprintf("task %s: processor step canceled", e.TaskID)
}

// ProcessorFailureErr wraps any other error a Producer step returns. The
// executor transitions the task to failed and attaches Cause's text as
// the agent-role status message; it is never returned synchronously to
// the call that started the stream, only observable via events or get.
type ProcessorFailureErr struct {
	TaskID string
	Cause  error
}

func (e *ProcessorFailureErr) Error() string {
	return fmt.Sprintf("task %s: processor failed: %v", e.TaskID, e.Cause)
}

func (e *ProcessorFailureErr) Unwrap() error { return e.Cause }

// StoreFailureErr marks an error raised by the TaskStore while
// committing a status or artifact update. The executor logs it and
// attempts to push the task to failed; if that commit also fails the
// task is left in its last-persisted state.
type StoreFailureErr struct {
	TaskID string
	Cause  error
}

func (e *StoreFailureErr) Error() string {
	return fmt.Sprintf("task %s: store failure: %v", e.TaskID, e.Cause)
}

func (e *StoreFailureErr) Unwrap() error { return e.Cause }
