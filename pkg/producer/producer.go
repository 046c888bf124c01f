/*
Package producer defines the cooperative unit of work the executor
drives one step at a time: a Producer owns whatever long-running
process (model call, tool loop, external job) backs a task, and the
executor controls its pace by calling Step exactly once per task turn.

This is the same shape as the teacher's StreamTask pattern in
pkg/client/agent.go (a goroutine pushing onto a channel the caller
ranges over) generalized into an explicit request/response step instead
of a single fire-and-forget stream, so the executor can interleave
commits between yields and support resumption on input-required.
*/
package producer

import (
	"context"

	"github.com/a2aproto/taskengine/pkg/a2a"
)

// YieldKind discriminates what a Step produced.
type YieldKind string

const (
	YieldStatus   YieldKind = "status"
	YieldArtifact YieldKind = "artifact"
	YieldDone     YieldKind = "done"
)

// Yield is the sum type a Producer.Step returns. Exactly one of Status
// or Artifact is populated, according to Kind; YieldDone carries
// neither and signals the producer has reached a terminal state on its
// own (as opposed to being pushed there by cancellation or failure).
type Yield struct {
	Kind     YieldKind
	Status   *a2a.TaskStatus
	Artifact *a2a.Artifact
}

// Producer is the contract the executor drives. A single call to Step
// must do bounded work and return — a Producer that blocks forever
// inside Step without observing ctx cancellation makes that task
// uncancelable, which violates the cancel-of-hung-producer guarantee.
type Producer interface {
	// Step advances the task by one increment. input is non-nil only
	// when resuming a task parked in input-required; it is nil for the
	// very first step and for every subsequent step while the producer
	// keeps yielding on its own. Step returns (yield, nil) to continue,
	// or (zero-value, err) to signal failure — the executor classifies
	// err via pkg/errors' kind wrappers.
	Step(ctx context.Context, input *a2a.Message) (Yield, error)

	// Cancel requests the producer abandon its current and any future
	// step as soon as possible. It must be safe to call concurrently
	// with an in-flight Step and must not block.
	Cancel()
}
