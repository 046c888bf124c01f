/*
Package counter implements a small multi-step processor: it streams N
numbered artifact chunks (N taken from the task's metadata, default 3)
before completing, exercising the executor's artifact-coalescing and
multi-yield step loop the way a single-shot echo never does.
*/
package counter

import (
	"context"
	"fmt"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/a2aproto/taskengine/pkg/producer"
)

const metadataCountKey = "counter.count"

func New(task a2a.Task) producer.Producer {
	count := 3
	if v, ok := task.Metadata[metadataCountKey].(float64); ok && v > 0 {
		count = int(v)
	}

	return producer.NewChannelProducer(context.Background(), func(ctx context.Context, resume <-chan *a2a.Message, yield func(producer.Yield)) error {
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			last := i == count-1
			artifact := a2a.Artifact{
				Index:     0,
				Parts:     []a2a.Part{a2a.NewTextPart(fmt.Sprintf("%d", i+1))},
				Append:    boolPtr(i > 0),
				LastChunk: boolPtr(last),
			}
			yield(producer.Yield{Kind: producer.YieldArtifact, Artifact: &artifact})
		}

		status := a2a.TaskStatus{State: a2a.TaskStateCompleted}
		yield(producer.Yield{Kind: producer.YieldStatus, Status: &status})
		return nil
	})
}

func boolPtr(v bool) *bool { return &v }
