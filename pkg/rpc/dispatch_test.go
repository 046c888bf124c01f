package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	a2aerrors "github.com/a2aproto/taskengine/pkg/errors"
	"github.com/a2aproto/taskengine/pkg/executor"
	"github.com/a2aproto/taskengine/pkg/fanout"
	"github.com/a2aproto/taskengine/pkg/processor/echo"
	"github.com/a2aproto/taskengine/pkg/store"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestServer() (*Server, *store.InMemoryStore) {
	s := store.NewInMemoryStore()
	b := fanout.New()
	e := executor.New(s, b, echo.New)
	return &Server{Store: s, Executor: e, Broker: b}, s
}

func waitForState(s *store.InMemoryStore, id string, state a2a.TaskState) bool {
	for i := 0; i < 50; i++ {
		got, ok := s.Get(context.Background(), id)
		if ok && got.Status.State == state {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func mustParams(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func TestHandleSendSubmitsAndCompletes(t *testing.T) {
	Convey("Given an RPC server wired to the echo processor", t, func() {
		srv, s := newTestServer()

		Convey("tasks/send submits a new task that runs to completion", func() {
			params := a2a.TaskSendParams{Message: *a2a.NewTextMessage("user", "hi")}
			req := Request{JSONRPC: "2.0", ID: float64(1), Method: MethodTasksSend, Params: mustParams(params)}

			resp := srv.HandleRequest(context.Background(), req)
			So(resp.Error, ShouldBeNil)

			result, ok := resp.Result.(a2a.Task)
			So(ok, ShouldBeTrue)
			So(waitForState(s, result.ID, a2a.TaskStateCompleted), ShouldBeTrue)
		})

		Convey("tasks/send rejects a request missing message.role", func() {
			params := a2a.TaskSendParams{Message: a2a.Message{}}
			req := Request{JSONRPC: "2.0", ID: float64(1), Method: MethodTasksSend, Params: mustParams(params)}

			resp := srv.HandleRequest(context.Background(), req)
			So(resp.Error, ShouldNotBeNil)
			So(resp.Error.Code, ShouldEqual, a2aerrors.ErrInvalidParams.Code)
		})
	})
}

func TestHandleGetAndCancel(t *testing.T) {
	Convey("Given a submitted task", t, func() {
		srv, s := newTestServer()
		params := a2a.TaskSendParams{Message: *a2a.NewTextMessage("user", "hi")}
		sendReq := Request{JSONRPC: "2.0", ID: float64(1), Method: MethodTasksSend, Params: mustParams(params)}
		sendResp := srv.HandleRequest(context.Background(), sendReq)
		task := sendResp.Result.(a2a.Task)

		Convey("tasks/get returns the current snapshot", func() {
			So(waitForState(s, task.ID, a2a.TaskStateCompleted), ShouldBeTrue)

			getReq := Request{JSONRPC: "2.0", ID: float64(2), Method: MethodTasksGet, Params: mustParams(a2a.TaskQueryParams{TaskIDParams: a2a.TaskIDParams{ID: task.ID}})}
			resp := srv.HandleRequest(context.Background(), getReq)
			So(resp.Error, ShouldBeNil)
			got := resp.Result.(a2a.Task)
			So(got.Status.State, ShouldEqual, a2a.TaskStateCompleted)
		})

		Convey("tasks/get on an unknown id returns TaskNotFound", func() {
			getReq := Request{JSONRPC: "2.0", ID: float64(2), Method: MethodTasksGet, Params: mustParams(a2a.TaskQueryParams{TaskIDParams: a2a.TaskIDParams{ID: "missing"}})}
			resp := srv.HandleRequest(context.Background(), getReq)
			So(resp.Error, ShouldNotBeNil)
			So(resp.Error.Code, ShouldEqual, a2aerrors.ErrTaskNotFound.Code)
		})

		Convey("tasks/cancel on an already-terminal task is a no-op that still returns the snapshot", func() {
			So(waitForState(s, task.ID, a2a.TaskStateCompleted), ShouldBeTrue)

			cancelReq := Request{JSONRPC: "2.0", ID: float64(3), Method: MethodTasksCancel, Params: mustParams(a2a.TaskIDParams{ID: task.ID})}
			resp := srv.HandleRequest(context.Background(), cancelReq)
			So(resp.Error, ShouldBeNil)
			got := resp.Result.(a2a.Task)
			So(got.Status.State, ShouldEqual, a2a.TaskStateCompleted)
		})
	})
}

func TestPushNotificationMethodsRequireSupport(t *testing.T) {
	Convey("Given a server that does not advertise push support", t, func() {
		srv, _ := newTestServer()

		Convey("tasks/pushNotification/set is rejected", func() {
			req := Request{JSONRPC: "2.0", ID: float64(1), Method: MethodTasksPushNotificationSet, Params: mustParams(a2a.TaskPushNotificationConfig{ID: "t1"})}
			resp := srv.HandleRequest(context.Background(), req)
			So(resp.Error, ShouldNotBeNil)
			So(resp.Error.Code, ShouldEqual, a2aerrors.ErrPushNotificationsNotSupported.Code)
		})

		Convey("tasks/pushNotification/get is rejected", func() {
			req := Request{JSONRPC: "2.0", ID: float64(1), Method: MethodTasksPushNotificationGet, Params: mustParams(a2a.TaskIDParams{ID: "t1"})}
			resp := srv.HandleRequest(context.Background(), req)
			So(resp.Error, ShouldNotBeNil)
			So(resp.Error.Code, ShouldEqual, a2aerrors.ErrPushNotificationsNotSupported.Code)
		})
	})

	Convey("Given a server that advertises push support", t, func() {
		srv, _ := newTestServer()
		srv.PushSupported = true

		Convey("Setting then getting a push config round-trips", func() {
			cfg := a2a.TaskPushNotificationConfig{ID: "t1", PushNotificationConfig: a2a.PushNotificationConfig{URL: "http://example.invalid/hook"}}

			sendReq := Request{JSONRPC: "2.0", ID: float64(1), Method: MethodTasksSend, Params: mustParams(a2a.TaskSendParams{ID: "t1", Message: *a2a.NewTextMessage("user", "hi")})}
			srv.HandleRequest(context.Background(), sendReq)

			setReq := Request{JSONRPC: "2.0", ID: float64(2), Method: MethodTasksPushNotificationSet, Params: mustParams(cfg)}
			setResp := srv.HandleRequest(context.Background(), setReq)
			So(setResp.Error, ShouldBeNil)

			getReq := Request{JSONRPC: "2.0", ID: float64(3), Method: MethodTasksPushNotificationGet, Params: mustParams(a2a.TaskIDParams{ID: "t1"})}
			getResp := srv.HandleRequest(context.Background(), getReq)
			So(getResp.Error, ShouldBeNil)
			got := getResp.Result.(a2a.TaskPushNotificationConfig)
			So(got.PushNotificationConfig.URL, ShouldEqual, cfg.PushNotificationConfig.URL)
		})
	})
}

func TestUnknownMethodIsRejected(t *testing.T) {
	Convey("Given any server", t, func() {
		srv, _ := newTestServer()

		Convey("An unrecognized method returns MethodNotFound", func() {
			req := Request{JSONRPC: "2.0", ID: float64(1), Method: "tasks/frobnicate"}
			resp := srv.HandleRequest(context.Background(), req)
			So(resp.Error, ShouldNotBeNil)
			So(resp.Error.Code, ShouldEqual, a2aerrors.ErrMethodNotFound.Code)
		})
	})
}
