/*
Package store implements the TaskStore contract: durable-enough storage
for Task records, keyed by ID. This generalizes the shape already present
in the teacher's pkg/stores.InMemoryTaskStore (a sync.RWMutex-guarded map
of entries) into an interface any backend can satisfy, operating directly
on a2a.Task instead of a bespoke entry type.
*/
package store

import (
	"context"

	"github.com/a2aproto/taskengine/pkg/a2a"
)

// Store is the persistence contract the executor and RPC layer depend on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create implements createOrGet idempotency: a brand-new id is
	// persisted and existed=false is returned; an id that already exists
	// is left completely unmodified, task is overwritten in place with
	// the stored snapshot, and existed=true is returned. This lets two
	// concurrent tasks/send calls racing on the same new id converge on
	// one task record instead of one of them erroring.
	Create(ctx context.Context, task *a2a.Task) (existed bool, err error)

	// Get returns a snapshot copy of the task, or ok=false if unknown.
	Get(ctx context.Context, id string) (task a2a.Task, ok bool)

	// Commit atomically replaces the stored task with the given
	// snapshot. The caller (the executor) is responsible for producing
	// a fully-formed snapshot; Commit does not merge fields.
	Commit(ctx context.Context, task *a2a.Task) error

	// List returns every task currently in the given state. An empty
	// state lists every task.
	List(ctx context.Context, state a2a.TaskState) []a2a.Task

	// SetPushConfig attaches (or replaces) the push-notification
	// configuration for a task. Returns false if the task is unknown.
	SetPushConfig(ctx context.Context, id string, cfg a2a.PushNotificationConfig) bool

	// GetPushConfig retrieves the push-notification configuration for a
	// task, if any was set.
	GetPushConfig(ctx context.Context, id string) (cfg a2a.PushNotificationConfig, ok bool)

	// AppendHistory appends message to the task's history, filling in
	// its Timestamp if the caller left it zero. A write against an
	// unknown id is logged and dropped rather than treated as an error,
	// since by the time a step commits, the caller already has its own
	// task-not-found handling upstream.
	AppendHistory(ctx context.Context, id string, message a2a.Message) bool

	// GetHistory returns at most the last limit messages from the
	// task's history. limit <= 0 returns an empty slice, matching
	// tasks/get's historyLength convention.
	GetHistory(ctx context.Context, id string, limit int) (history []a2a.Message, ok bool)

	// SetInternalState replaces a task's processor-private bookkeeping.
	// Returns false if the task is unknown.
	SetInternalState(ctx context.Context, id string, state map[string]any) bool

	// GetInternalState retrieves a task's processor-private bookkeeping,
	// if any was set.
	GetInternalState(ctx context.Context, id string) (state map[string]any, ok bool)
}
