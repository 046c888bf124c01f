package executor

import (
	"context"
	"testing"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/a2aproto/taskengine/pkg/fanout"
	"github.com/a2aproto/taskengine/pkg/producer"
	"github.com/a2aproto/taskengine/pkg/store"
	. "github.com/smartystreets/goconvey/convey"
)

func waitFrame(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func TestExecutorSubmitRunsToCompletion(t *testing.T) {
	Convey("Given an executor whose producer yields one artifact then completes", t, func() {
		s := store.NewInMemoryStore()
		b := fanout.New()
		e := New(s, b, func(task a2a.Task) producer.Producer {
			return producer.NewChannelProducer(context.Background(), func(ctx context.Context, resume <-chan *a2a.Message, yield func(producer.Yield)) error {
				artifact := a2a.Artifact{Index: 0, Parts: []a2a.Part{a2a.NewTextPart("hello")}}
				yield(producer.Yield{Kind: producer.YieldArtifact, Artifact: &artifact})

				status := a2a.TaskStatus{State: a2a.TaskStateCompleted}
				yield(producer.Yield{Kind: producer.YieldStatus, Status: &status})
				return nil
			})
		})

		task := &a2a.Task{ID: "t1", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: time.Now().UTC()}}
		ch, unsubscribe, err := b.Subscribe("t1", "req-1", "handle-1")
		So(err, ShouldBeNil)
		defer unsubscribe()

		Convey("Submitting drives the task through artifact then terminal status", func() {
			So(e.Submit(context.Background(), task), ShouldBeNil)

			waitFrame(t, ch) // artifact event
			waitFrame(t, ch) // final status event

			got, ok := s.Get(context.Background(), "t1")
			So(ok, ShouldBeTrue)
			So(got.Status.State, ShouldEqual, a2a.TaskStateCompleted)
			So(got.Artifacts, ShouldHaveLength, 1)
		})
	})
}

func TestExecutorCancelOfHungProducer(t *testing.T) {
	Convey("Given a task whose producer blocks until canceled", t, func() {
		s := store.NewInMemoryStore()
		b := fanout.New()
		started := make(chan struct{})
		e := New(s, b, func(task a2a.Task) producer.Producer {
			return producer.NewChannelProducer(context.Background(), func(ctx context.Context, resume <-chan *a2a.Message, yield func(producer.Yield)) error {
				close(started)
				<-ctx.Done()
				return ctx.Err()
			})
		})

		task := &a2a.Task{ID: "t1", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: time.Now().UTC()}}
		So(e.Submit(context.Background(), task), ShouldBeNil)
		<-started

		Convey("Cancel transitions the task to canceled", func() {
			So(e.Cancel(context.Background(), "t1"), ShouldBeNil)

			So(func() bool {
				for i := 0; i < 50; i++ {
					got, _ := s.Get(context.Background(), "t1")
					if got.Status.State == a2a.TaskStateCanceled {
						return true
					}
					time.Sleep(20 * time.Millisecond)
				}
				return false
			}(), ShouldBeTrue)
		})
	})
}

func TestExecutorResumeOnInputRequired(t *testing.T) {
	Convey("Given a producer that parks on input-required then finishes on resume", t, func() {
		s := store.NewInMemoryStore()
		b := fanout.New()
		e := New(s, b, func(task a2a.Task) producer.Producer {
			return producer.NewChannelProducer(context.Background(), func(ctx context.Context, resume <-chan *a2a.Message, yield func(producer.Yield)) error {
				status := a2a.TaskStatus{State: a2a.TaskStateInputReq}
				yield(producer.Yield{Kind: producer.YieldStatus, Status: &status})

				<-resume

				final := a2a.TaskStatus{State: a2a.TaskStateCompleted}
				yield(producer.Yield{Kind: producer.YieldStatus, Status: &final})
				return nil
			})
		})

		task := &a2a.Task{ID: "t1", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: time.Now().UTC()}}
		So(e.Submit(context.Background(), task), ShouldBeNil)

		Convey("Resuming with a message completes the task", func() {
			So(func() bool {
				for i := 0; i < 50; i++ {
					got, _ := s.Get(context.Background(), "t1")
					if got.Status.State == a2a.TaskStateInputReq {
						return true
					}
					time.Sleep(20 * time.Millisecond)
				}
				return false
			}(), ShouldBeTrue)

			msg := *a2a.NewTextMessage("user", "here you go")
			So(e.Resume(context.Background(), "t1", msg), ShouldBeNil)

			So(func() bool {
				for i := 0; i < 50; i++ {
					got, _ := s.Get(context.Background(), "t1")
					if got.Status.State == a2a.TaskStateCompleted {
						return true
					}
					time.Sleep(20 * time.Millisecond)
				}
				return false
			}(), ShouldBeTrue)
		})
	})
}
