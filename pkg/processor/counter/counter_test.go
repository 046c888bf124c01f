package counter

import (
	"testing"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/a2aproto/taskengine/pkg/executor"
	"github.com/a2aproto/taskengine/pkg/fanout"
	"github.com/a2aproto/taskengine/pkg/store"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCounterStreamsConfiguredChunkCount(t *testing.T) {
	Convey("Given an executor wired to the counter processor", t, func() {
		s := store.NewInMemoryStore()
		b := fanout.New()
		e := executor.New(s, b, New)

		task := &a2a.Task{
			ID:       "t1",
			Status:   a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: time.Now().UTC()},
			Metadata: map[string]any{metadataCountKey: float64(5)},
		}

		Convey("Submitting streams five coalesced chunks into a single artifact", func() {
			So(e.Submit(t.Context(), task), ShouldBeNil)

			So(func() bool {
				for i := 0; i < 50; i++ {
					got, _ := s.Get(t.Context(), "t1")
					if got.Status.State == a2a.TaskStateCompleted {
						return len(got.Artifacts) == 1 && got.Artifacts[0].Parts[len(got.Artifacts[0].Parts)-1].Text == "5"
					}
					time.Sleep(20 * time.Millisecond)
				}
				return false
			}(), ShouldBeTrue)
		})

		Convey("The default chunk count is used when metadata omits it", func() {
			bare := &a2a.Task{ID: "t2", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: time.Now().UTC()}}
			So(e.Submit(t.Context(), bare), ShouldBeNil)

			So(func() bool {
				for i := 0; i < 50; i++ {
					got, _ := s.Get(t.Context(), "t2")
					if got.Status.State == a2a.TaskStateCompleted {
						return len(got.Artifacts[0].Parts) == 3
					}
					time.Sleep(20 * time.Millisecond)
				}
				return false
			}(), ShouldBeTrue)
		})
	})
}
