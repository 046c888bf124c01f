/*
Package echo implements the simplest possible processor: it reflects
the incoming message back as a single artifact and completes. Grounded
on the teacher's EchoTaskManager (pkg/service/task_manager.go), which
did the same thing synchronously inline; here it is expressed as a
producer.Producer so the executor drives it through the same step loop
every other processor uses.
*/
package echo

import (
	"context"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/a2aproto/taskengine/pkg/producer"
)

// New returns an executor.Factory-compatible constructor: a producer
// that yields one artifact containing the task's last message text,
// then completes.
func New(task a2a.Task) producer.Producer {
	return producer.NewChannelProducer(context.Background(), func(ctx context.Context, resume <-chan *a2a.Message, yield func(producer.Yield)) error {
		text := ""
		if msg := task.LastMessage(); msg != nil {
			text = msg.String()
		}

		artifact := a2a.Artifact{
			Index: 0,
			Parts: []a2a.Part{a2a.NewTextPart(text)},
		}
		yield(producer.Yield{Kind: producer.YieldArtifact, Artifact: &artifact})

		status := a2a.TaskStatus{State: a2a.TaskStateCompleted}
		yield(producer.Yield{Kind: producer.YieldStatus, Status: &status})
		return nil
	})
}
