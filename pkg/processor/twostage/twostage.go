/*
Package twostage implements the two-stage input-required fixture: the
processor immediately parks the task on input-required asking a
clarifying question, then, once resumed with an answer, emits one
artifact and completes. It pauses only once. This exercises the executor's resumption path end to end —
the scenario the teacher's synchronous EchoTaskManager has no analogue
for, since it never pauses mid-task.
*/
package twostage

import (
	"context"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/a2aproto/taskengine/pkg/producer"
)

func New(task a2a.Task) producer.Producer {
	return producer.NewChannelProducer(context.Background(), func(ctx context.Context, resume <-chan *a2a.Message, yield func(producer.Yield)) error {
		question := a2a.NewTextMessage("agent", "Which format would you like the result in?")
		status := a2a.TaskStatus{State: a2a.TaskStateInputReq, Message: question}
		yield(producer.Yield{Kind: producer.YieldStatus, Status: &status})

		var answer *a2a.Message
		select {
		case answer = <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}

		format := "plain text"
		if answer != nil {
			format = answer.String()
		}

		artifact := a2a.Artifact{
			Index: 0,
			Parts: []a2a.Part{a2a.NewTextPart("result formatted as: " + format)},
		}
		yield(producer.Yield{Kind: producer.YieldArtifact, Artifact: &artifact})

		final := a2a.TaskStatus{State: a2a.TaskStateCompleted}
		yield(producer.Yield{Kind: producer.YieldStatus, Status: &final})
		return nil
	})
}
