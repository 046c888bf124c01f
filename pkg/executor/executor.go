/*
Package executor implements the per-task step loop that drives a
producer.Producer forward, commits its yields to a store.Store, and
fans resulting events out over a fanout.Broker. This is the component
the teacher's pkg/service/task_manager.go (EchoTaskManager) and
pkg/service/a2a_server.go approximate informally with ad-hoc goroutines
per request; Executor generalizes that into one serializer per task so
every commit is strictly ordered and every producer is cancelable.
*/
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	a2aerrors "github.com/a2aproto/taskengine/pkg/errors"
	"github.com/a2aproto/taskengine/pkg/fanout"
	"github.com/a2aproto/taskengine/pkg/logging"
	"github.com/a2aproto/taskengine/pkg/producer"
	"github.com/a2aproto/taskengine/pkg/store"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/charmbracelet/log"
)

// Factory builds the Producer that will drive a newly submitted task.
// It is supplied by the caller (an agent's processor) so Executor stays
// agnostic of what actually does the work.
type Factory func(task a2a.Task) producer.Producer

// Notifier delivers a task event to whatever push-notification config
// the caller registered for it. Kept as a narrow interface so pkg/executor
// does not need to import pkg/notify directly.
type Notifier interface {
	Notify(cfg a2a.PushNotificationConfig, taskID string, evt a2a.Event)
}

// taskRun bundles everything the executor's loop needs to keep live for
// one task: its serializer lock, its current producer (kept while the
// task is parked on input-required so Resume can continue it; cleared
// when Cancel commits canceled with no step in flight), and whether a
// cancellation has been requested for it.
// canceling is checked unconditionally in handleStepError so a plain
// ctx.Err() from an in-flight step's derived context is treated as a
// cancellation exactly like a producer that constructs
// a2aerrors.ProcessorCancellationErr itself.
type taskRun struct {
	mu        sync.Mutex
	producer  producer.Producer
	running   bool
	canceling bool
}

// Executor is the engine: C4 in the component breakdown. One Executor
// serves every task in a given Store; Submit starts a task's first
// step, and every subsequent step (resuming from input-required, or a
// cancel request) is serialized through the same per-task mutex so two
// goroutines can never commit conflicting snapshots for one task.
type Executor struct {
	store    store.Store
	broker   *fanout.Broker
	factory  Factory
	notifier Notifier

	mu   sync.Mutex
	runs map[string]*taskRun
}

func New(s store.Store, b *fanout.Broker, f Factory) *Executor {
	return &Executor{
		store:   s,
		broker:  b,
		factory: f,
		runs:    make(map[string]*taskRun),
	}
}

// WithNotifier attaches a push-notification sink; every final or
// input-required event commit also triggers a best-effort webhook push
// if the task has a PushNotificationConfig on file.
func (e *Executor) WithNotifier(n Notifier) *Executor {
	e.notifier = n
	return e
}

func (e *Executor) notify(ctx context.Context, taskID string, evt a2a.Event) {
	if e.notifier == nil {
		return
	}
	cfg, ok := e.store.GetPushConfig(ctx, taskID)
	if !ok {
		return
	}
	go e.notifier.Notify(cfg, taskID, evt)
}

func (e *Executor) runFor(taskID string) *taskRun {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.runs[taskID]
	if !ok {
		r = &taskRun{}
		e.runs[taskID] = r
	}
	return r
}

// Submit creates the task in the store and starts driving its producer
// on a background goroutine, returning as soon as the task is durably
// recorded. The caller observes progress via fanout subscriptions or
// tasks/get polling, not through Submit's return value.
func (e *Executor) Submit(ctx context.Context, task *a2a.Task) error {
	existed, err := e.store.Create(ctx, task)
	if err != nil {
		return &a2aerrors.ClientInputErr{Reason: err.Error()}
	}
	if existed {
		// Another caller already created this id first — createOrGet
		// idempotency means this Submit is a duplicate of a send already
		// in flight, not a second task to drive.
		return nil
	}

	run := e.runFor(task.ID)
	run.mu.Lock()
	run.producer = e.factory(*task)
	run.mu.Unlock()

	go e.drive(context.Background(), task.ID, nil)
	return nil
}

// Resume delivers input to a task parked in input-required and resumes
// its step loop. It is an error to resume a task that is not currently
// in input-required.
func (e *Executor) Resume(ctx context.Context, taskID string, input a2a.Message) error {
	snapshot, ok := e.store.Get(ctx, taskID)
	if !ok {
		return &a2aerrors.TaskNotFoundErr{ID: taskID}
	}
	if !snapshot.Status.State.IsResumable() {
		return &a2aerrors.ClientInputErr{Reason: "task is not awaiting input"}
	}

	e.store.AppendHistory(ctx, taskID, input)

	go e.drive(context.Background(), taskID, &input)
	return nil
}

// Cancel requests the task's producer stop. If a step is currently
// in-flight, it signals the producer and lets the step loop's error path
// commit canceled once Step actually returns. If the task is parked with
// no step running (awaiting input, or not yet scheduled), there is
// nothing for a signal to interrupt, so Cancel commits canceled directly
// and releases the handle itself. Canceling an already terminal task is
// a silent no-op per terminal-state immutability.
func (e *Executor) Cancel(ctx context.Context, taskID string) error {
	snapshot, ok := e.store.Get(ctx, taskID)
	if !ok {
		return &a2aerrors.TaskNotFoundErr{ID: taskID}
	}
	if snapshot.IsTerminal() {
		return nil
	}

	run := e.runFor(taskID)
	run.mu.Lock()
	run.canceling = true
	p := run.producer
	inFlight := run.running
	run.mu.Unlock()

	if p != nil && inFlight {
		p.Cancel()
		return nil
	}

	run.mu.Lock()
	run.producer = nil
	run.mu.Unlock()

	return e.commitStatus(ctx, taskID, a2a.TaskStatus{State: a2a.TaskStateCanceled}, true)
}

// drive steps the task's producer until it parks on input-required,
// reaches a terminal state, or fails, holding the per-task mutex only
// for the setup and commit phases — never across the Step call itself,
// per the hold-release-reacquire discipline.
func (e *Executor) drive(ctx context.Context, taskID string, input *a2a.Message) {
	run := e.runFor(taskID)

	run.mu.Lock()
	if run.running {
		run.mu.Unlock()
		return
	}
	run.running = true
	p := run.producer
	run.mu.Unlock()

	released := false
	defer func() {
		if released {
			return
		}
		run.mu.Lock()
		run.running = false
		run.mu.Unlock()
	}()

	if p == nil {
		return
	}

	for {
		yield, err := p.Step(ctx, input)
		input = nil // only the first iteration forwards resumption input

		if err != nil {
			e.handleStepError(ctx, taskID, err)
			return
		}

		switch yield.Kind {
		case producer.YieldStatus:
			final := a2a.IsTerminalState(yield.Status.State) || yield.Status.State == a2a.TaskStateInputReq
			run.mu.Lock()
			err := e.commitStatus(ctx, taskID, *yield.Status, final)
			if err != nil {
				log.Error("executor: commit status failed", "task", taskID, "err", err)
				e.commitStatus(ctx, taskID, a2a.TaskStatus{State: a2a.TaskStateFailed, Message: a2a.NewTextMessage("agent", err.Error())}, true)
			} else if final {
				// Free the loop in the same critical section as the commit, so
				// a Resume that already sees input-required is not turned away.
				run.running = false
				released = true
			}
			run.mu.Unlock()
			if err != nil || final {
				return
			}
		case producer.YieldArtifact:
			run.mu.Lock()
			err := e.commitArtifact(ctx, taskID, *yield.Artifact)
			if err != nil {
				log.Error("executor: commit artifact failed", "task", taskID, "err", err)
				e.commitStatus(ctx, taskID, a2a.TaskStatus{State: a2a.TaskStateFailed, Message: a2a.NewTextMessage("agent", err.Error())}, true)
			}
			run.mu.Unlock()
			if err != nil {
				return
			}
		case producer.YieldDone:
			// The producer returned without yielding a terminal status.
			run.mu.Lock()
			e.commitStatus(ctx, taskID, a2a.TaskStatus{State: a2a.TaskStateCompleted}, true)
			run.mu.Unlock()
			return
		}
	}
}

func (e *Executor) handleStepError(ctx context.Context, taskID string, err error) {
	run := e.runFor(taskID)
	run.mu.Lock()
	defer run.mu.Unlock()
	canceling := run.canceling

	var cancelErr *a2aerrors.ProcessorCancellationErr
	if canceling || errors.As(err, &cancelErr) {
		e.commitStatus(ctx, taskID, a2a.TaskStatus{State: a2a.TaskStateCanceled}, true)
		return
	}

	log.Error("executor: producer step failed", "task", taskID, "err", err)
	message := a2a.NewTextMessage("agent", err.Error())
	e.commitStatus(ctx, taskID, a2a.TaskStatus{State: a2a.TaskStateFailed, Message: message}, true)
}

// commitStatus reacquires the task's snapshot, applies the new status,
// persists it, and broadcasts the resulting event.
func (e *Executor) commitStatus(ctx context.Context, taskID string, status a2a.TaskStatus, final bool) error {
	snapshot, ok := e.store.Get(ctx, taskID)
	if !ok {
		return &a2aerrors.TaskNotFoundErr{ID: taskID}
	}
	if snapshot.IsTerminal() {
		log.Debug("executor: ignoring status update to terminal task", "task", taskID)
		return nil
	}

	snapshot.ToStatus(status.State, status.Message)
	if err := e.store.Commit(ctx, &snapshot); err != nil {
		return &a2aerrors.StoreFailureErr{TaskID: taskID, Cause: err}
	}

	// An agent-role status message is folded into history as soon as it
	// settles the task into anything other than input-required; the
	// input-required case is skipped here because the caller's own
	// resuming message (appended by Resume) is the next history entry,
	// and the prompting agent message would otherwise read out of order.
	if status.Message != nil && status.Message.Role == "agent" && status.State != a2a.TaskStateInputReq {
		e.store.AppendHistory(ctx, taskID, *status.Message)
	}

	if logging.GlobalLogger != nil {
		logging.LogTaskEvent(taskID, "status", fmt.Sprintf("%s (final=%v)", status.State, final))
	}

	evt := a2a.NewStatusEvent(taskID, snapshot.Status, final)
	e.broker.Broadcast(taskID, evt)
	if final || status.State == a2a.TaskStateInputReq {
		e.notify(ctx, taskID, evt)
	}
	return nil
}

// commitArtifact coalesces an incoming artifact chunk into the task's
// artifact slice by Index, applies append-concatenation only when the
// chunk explicitly says append=true, then broadcasts a transport-only
// clone decorated with append/lastChunk — the stored artifact itself
// never carries those two fields.
func (e *Executor) commitArtifact(ctx context.Context, taskID string, chunk a2a.Artifact) error {
	snapshot, ok := e.store.Get(ctx, taskID)
	if !ok {
		return &a2aerrors.TaskNotFoundErr{ID: taskID}
	}
	if snapshot.IsTerminal() {
		log.Debug("executor: ignoring artifact update to terminal task", "task", taskID)
		return nil
	}

	append_ := chunk.Append != nil && *chunk.Append
	lastChunk := chunk.LastChunk != nil && *chunk.LastChunk

	stored := chunk
	stored.Append = nil
	stored.LastChunk = nil

	if chunk.Index < len(snapshot.Artifacts) && append_ {
		snapshot.Artifacts[chunk.Index].Parts = append(snapshot.Artifacts[chunk.Index].Parts, stored.Parts...)
	} else if chunk.Index < len(snapshot.Artifacts) {
		snapshot.Artifacts[chunk.Index] = stored
	} else {
		for len(snapshot.Artifacts) < chunk.Index {
			snapshot.Artifacts = append(snapshot.Artifacts, a2a.Artifact{Index: len(snapshot.Artifacts)})
		}
		snapshot.Artifacts = append(snapshot.Artifacts, stored)
	}

	snapshot.UpdatedAt = time.Now().UTC()
	if err := e.store.Commit(ctx, &snapshot); err != nil {
		return &a2aerrors.StoreFailureErr{TaskID: taskID, Cause: err}
	}

	if logging.GlobalLogger != nil {
		logging.LogTaskEvent(taskID, "artifact", fmt.Sprintf("index=%d append=%v lastChunk=%v", chunk.Index, append_, lastChunk))
	}

	wireArtifact := snapshot.Artifacts[chunk.Index]
	wireArtifact.Append = &append_
	wireArtifact.LastChunk = &lastChunk

	evt := a2a.NewArtifactEvent(taskID, wireArtifact)
	e.broker.Broadcast(taskID, evt)
	return nil
}
