package twostage

import (
	"testing"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/a2aproto/taskengine/pkg/executor"
	"github.com/a2aproto/taskengine/pkg/fanout"
	"github.com/a2aproto/taskengine/pkg/store"
	. "github.com/smartystreets/goconvey/convey"
)

func waitForState(t *testing.T, s *store.InMemoryStore, id string, state a2a.TaskState) bool {
	for i := 0; i < 50; i++ {
		got, _ := s.Get(t.Context(), id)
		if got.Status.State == state {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestTwoStageParksThenCompletes(t *testing.T) {
	Convey("Given an executor wired to the twostage processor", t, func() {
		s := store.NewInMemoryStore()
		b := fanout.New()
		e := executor.New(s, b, New)

		task := &a2a.Task{ID: "t1", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: time.Now().UTC()}}
		So(e.Submit(t.Context(), task), ShouldBeNil)

		Convey("The task parks on input-required with a clarifying question", func() {
			So(waitForState(t, s, "t1", a2a.TaskStateInputReq), ShouldBeTrue)

			got, _ := s.Get(t.Context(), "t1")
			So(got.Status.Message, ShouldNotBeNil)

			Convey("Resuming with an answer completes the task with a formatted artifact", func() {
				answer := *a2a.NewTextMessage("user", "json")
				So(e.Resume(t.Context(), "t1", answer), ShouldBeNil)

				So(waitForState(t, s, "t1", a2a.TaskStateCompleted), ShouldBeTrue)
				final, _ := s.Get(t.Context(), "t1")
				So(final.Artifacts, ShouldHaveLength, 1)
				So(final.Artifacts[0].Parts[0].Text, ShouldEqual, "result formatted as: json")
			})
		})
	})
}
