package a2a

import "time"

/*
TaskState enumerates the mutually‑exclusive states a task may be in.  The
Go zero value is the empty string, which is none of the constants below;
the spec's "unknown" state is TaskStateUnknown.
*/
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateInputReq  TaskState = "input-required"
	TaskStateCompleted TaskState = "completed"
	TaskStateCanceled  TaskState = "canceled"
	TaskStateFailed    TaskState = "failed"
	TaskStateUnknown   TaskState = "unknown"
)

// IsResumable reports whether a task currently in this state can accept
// tasks/send as a resumption (delivering awaited input) rather than as a
// fresh initiation. Only input-required tasks are resumable this way;
// every other non-terminal state is still mid-step and not waiting on
// the caller.
func (s TaskState) IsResumable() bool {
	return s == TaskStateInputReq
}

type TaskStatus struct {
	State     TaskState  `json:"state"`
	Message   *Message   `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
