package rpc

import (
	"net"
	"testing"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/a2aproto/taskengine/pkg/executor"
	"github.com/a2aproto/taskengine/pkg/fanout"
	"github.com/a2aproto/taskengine/pkg/processor/twostage"
	"github.com/a2aproto/taskengine/pkg/store"
	"github.com/gofiber/fiber/v3"
	"github.com/r3labs/sse/v2"
	. "github.com/smartystreets/goconvey/convey"
)

// freeAddr reserves an ephemeral TCP port and hands the address back to
// the caller, closing the reservation immediately so fiber's own
// Listen can bind it. A real listener is required here, not fiber's
// in-memory app.Test() harness, because r3labs/sse/v2's Client speaks
// real net/http against a URL.
func freeAddr(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func waitForTaskState(t *testing.T, s *store.InMemoryStore, id string, state a2a.TaskState) bool {
	for i := 0; i < 50; i++ {
		got, ok := s.Get(t.Context(), id)
		if ok && got.Status.State == state {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

// TestGetEventsStreamsOverRealHTTP exercises /tasks/:id/events end to
// end with github.com/r3labs/sse/v2 as a genuine SSE client against a
// real listening fiber app, the same client used by the teacher's
// mcpClient package against its own SSE backend.
func TestGetEventsStreamsOverRealHTTP(t *testing.T) {
	Convey("Given a server listening on a real TCP port", t, func() {
		s := store.NewInMemoryStore()
		broker := fanout.New()
		exec := executor.New(s, broker, twostage.New)

		srv := &Server{Store: s, Executor: exec, Broker: broker}
		app := fiber.New()
		srv.Mount(app, a2a.AgentCard{Name: "test-agent"})

		addr := freeAddr(t)
		go app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
		defer app.Shutdown()
		time.Sleep(100 * time.Millisecond)

		task := &a2a.Task{ID: "sse-1", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: time.Now().UTC()}}
		So(exec.Submit(t.Context(), task), ShouldBeNil)
		So(waitForTaskState(t, s, "sse-1", a2a.TaskStateInputReq), ShouldBeTrue)

		Convey("Subscribing while the task is live, then resuming it, streams the resumed task's events over real HTTP", func() {
			client := sse.NewClient("http://" + addr + "/tasks/sse-1/events")
			events := make(chan *sse.Event)
			err := client.SubscribeChanWithContext(t.Context(), "", events)
			So(err, ShouldBeNil)

			answer := *a2a.NewTextMessage("user", "json")
			So(exec.Resume(t.Context(), "sse-1", answer), ShouldBeNil)

			select {
			case evt := <-events:
				So(len(evt.Data) > 0, ShouldBeTrue)
			case <-time.After(3 * time.Second):
				t.Fatal("timed out waiting for sse frame over real HTTP")
			}

			client.Unsubscribe(events)
		})
	})
}
