package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	a2aerrors "github.com/a2aproto/taskengine/pkg/errors"
	"github.com/a2aproto/taskengine/pkg/executor"
	"github.com/a2aproto/taskengine/pkg/fanout"
	"github.com/a2aproto/taskengine/pkg/store"
	"github.com/cohesivestack/valgo"
)

// reservedProcessorKey is the Task.Metadata key a caller may set to pick
// which registered processor handles a task, mirroring the teacher's
// single-agent-by-name convention generalized into a lookup table.
const reservedProcessorKey = "a2a.processor"

// Server is the transport-agnostic RPC front door: HandleRequest parses
// and dispatches one JSON-RPC request object and returns its response.
// The fiber adapter in cmd/serve.go is a thin shim around this, matching
// the teacher's own split between pkg/jsonrpc's dispatch switch and
// whatever mux called into it. Push delivery lives on the Executor
// (see executor.WithNotifier), not here — the RPC layer only needs to
// know whether push is supported at all, to reject tasks/pushNotification
// calls for agents that don't advertise the capability.
type Server struct {
	Store         store.Store
	Executor      *executor.Executor
	Broker        *fanout.Broker
	PushSupported bool

	// CanHandle reports whether a registered processor exists for the
	// given a2a.processor metadata value. It is checked before a
	// brand-new task is ever created, per spec.md's initiation sequence
	// step 1 ("select processor via canHandle, else MethodNotFound"). A
	// nil CanHandle allows every name through, matching callers (tests,
	// mostly) that only ever wire a single processor and never exercise
	// the reserved metadata key.
	CanHandle func(name string) bool
}

// HandleRequest dispatches every method except the two SSE-registering
// ones (tasks/sendSubscribe, tasks/resubscribe), which the HTTP layer
// must special-case before ever calling into HandleRequest since they
// don't produce a single response object.
func (s *Server) HandleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodTasksSend:
		return s.handleSend(ctx, req)
	case MethodTasksGet:
		return s.handleGet(ctx, req)
	case MethodTasksCancel:
		return s.handleCancel(ctx, req)
	case MethodTasksPushNotificationSet:
		return s.handlePushSet(ctx, req)
	case MethodTasksPushNotificationGet:
		return s.handlePushGet(ctx, req)
	default:
		return newError(req.ID, a2aerrors.ErrMethodNotFound)
	}
}

func (s *Server) handleSend(ctx context.Context, req Request) Response {
	var params a2a.TaskSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, a2aerrors.ErrParseError)
	}
	if err := validateSendParams(params); err != nil {
		return newError(req.ID, a2aerrors.ErrInvalidParams.WithMessagef("%s", err.Error()))
	}
	if params.PushNotification != nil && !s.PushSupported {
		return newError(req.ID, a2aerrors.ErrPushNotificationsNotSupported)
	}

	task, resuming, rpcErr := s.prepareTask(ctx, params)
	if rpcErr != nil {
		return newError(req.ID, rpcErr)
	}

	if resuming {
		if err := s.Executor.Resume(ctx, task.ID, params.Message); err != nil {
			return newError(req.ID, translateErr(err))
		}
	} else {
		if params.PushNotification != nil {
			s.Store.SetPushConfig(ctx, task.ID, *params.PushNotification)
		}
		if err := s.Executor.Submit(ctx, task); err != nil {
			return newError(req.ID, translateErr(err))
		}
	}

	snapshot, _ := s.Store.Get(ctx, task.ID)
	return newResult(req.ID, applyHistoryLength(snapshot, params.HistoryLength))
}

func (s *Server) handleGet(ctx context.Context, req Request) Response {
	var params a2a.TaskQueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, a2aerrors.ErrParseError)
	}
	if !valgo.Is(valgo.String(params.ID).Not().Blank()).Valid() {
		return newError(req.ID, a2aerrors.ErrInvalidParams.WithMessagef("id is required"))
	}

	snapshot, ok := s.Store.Get(ctx, params.ID)
	if !ok {
		return newError(req.ID, a2aerrors.ErrTaskNotFound)
	}

	return newResult(req.ID, applyHistoryLength(snapshot, params.HistoryLength))
}

func (s *Server) handleCancel(ctx context.Context, req Request) Response {
	var params a2a.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, a2aerrors.ErrParseError)
	}

	if err := s.Executor.Cancel(ctx, params.ID); err != nil {
		return newError(req.ID, translateErr(err))
	}

	snapshot, _ := s.Store.Get(ctx, params.ID)
	return newResult(req.ID, snapshot)
}

func (s *Server) handlePushSet(ctx context.Context, req Request) Response {
	if !s.PushSupported {
		return newError(req.ID, a2aerrors.ErrPushNotificationsNotSupported)
	}

	var params a2a.TaskPushNotificationConfig
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, a2aerrors.ErrParseError)
	}

	if ok := s.Store.SetPushConfig(ctx, params.ID, params.PushNotificationConfig); !ok {
		return newError(req.ID, a2aerrors.ErrTaskNotFound)
	}

	return newResult(req.ID, params)
}

func (s *Server) handlePushGet(ctx context.Context, req Request) Response {
	if !s.PushSupported {
		return newError(req.ID, a2aerrors.ErrPushNotificationsNotSupported)
	}

	var params a2a.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, a2aerrors.ErrParseError)
	}

	cfg, ok := s.Store.GetPushConfig(ctx, params.ID)
	if !ok {
		return newError(req.ID, a2aerrors.ErrPushNotificationConfigNotFound)
	}

	return newResult(req.ID, a2a.TaskPushNotificationConfig{ID: params.ID, PushNotificationConfig: cfg})
}

// prepareTask either builds a brand-new submitted task, or returns the
// existing one if params.ID names a task parked in input-required — the
// second branch is how tasks/send resumes a conversation, per spec.md's
// input-required ⇄ working cycle.
func (s *Server) prepareTask(ctx context.Context, params a2a.TaskSendParams) (*a2a.Task, bool, *a2aerrors.RpcError) {
	if params.ID != "" {
		if existing, ok := s.Store.Get(ctx, params.ID); ok {
			if existing.Status.State.IsResumable() {
				return &existing, true, nil
			}
			return nil, false, a2aerrors.ErrInvalidRequest.WithMessagef("task %s is not awaiting input", params.ID)
		}
	}

	name := processorName(params.Metadata)
	if s.CanHandle != nil && !s.CanHandle(name) {
		return nil, false, a2aerrors.ErrMethodNotFound.WithMessagef("no processor registered for %q", name)
	}

	task := a2a.NewTask(name)
	if params.ID != "" {
		task.ID = params.ID
	}
	if params.SessionID != "" {
		task.SessionID = params.SessionID
	}
	task.Metadata = params.Metadata

	message := params.Message
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	task.History = append(task.History, message)

	return task, false, nil
}

// processorName extracts the reserved metadata key naming which
// processor should drive the task, defaulting to "default" when unset
// or not a string.
func processorName(metadata map[string]any) string {
	if metadata == nil {
		return "default"
	}
	if name, ok := metadata[reservedProcessorKey].(string); ok && name != "" {
		return name
	}
	return "default"
}

func validateSendParams(params a2a.TaskSendParams) error {
	if !valgo.Is(valgo.String(params.Message.Role).Not().Blank()).Valid() {
		return errMessageRoleRequired
	}
	if len(params.Message.Parts) == 0 {
		return errMessagePartsRequired
	}
	for _, part := range params.Message.Parts {
		if !part.HasContent() {
			return errMessagePartsRequired
		}
	}
	return nil
}

var (
	errMessageRoleRequired  = &a2aerrors.ClientInputErr{Reason: "message.role is required"}
	errMessagePartsRequired = &a2aerrors.ClientInputErr{Reason: "message.parts must contain at least one populated part"}
)

// applyHistoryLength returns a copy of task trimmed to at most n most
// recent history entries. n == nil or <= 0 means no history at all,
// matching the teacher's EchoTaskManager.GetTask default.
func applyHistoryLength(task a2a.Task, n *int) a2a.Task {
	limit := 0
	if n != nil {
		limit = *n
	}

	if limit <= 0 {
		task.History = nil
		return task
	}
	if limit >= len(task.History) {
		return task
	}

	task.History = task.History[len(task.History)-limit:]
	return task
}

func errParse() *a2aerrors.RpcError           { return a2aerrors.ErrParseError }
func errTaskNotFound() *a2aerrors.RpcError     { return a2aerrors.ErrTaskNotFound }
func errInvalidParams(err error) *a2aerrors.RpcError {
	return a2aerrors.ErrInvalidParams.WithMessagef("%s", err.Error())
}

func translateErr(err error) *a2aerrors.RpcError {
	switch err.(type) {
	case *a2aerrors.TaskNotFoundErr:
		return a2aerrors.ErrTaskNotFound
	case *a2aerrors.ClientInputErr:
		return a2aerrors.ErrInvalidParams.WithMessagef("%s", err.Error())
	case *a2aerrors.ProcessorFailureErr, *a2aerrors.StoreFailureErr:
		return a2aerrors.ErrProcessor.WithMessagef("%s", err.Error())
	default:
		return a2aerrors.ErrInternal.WithMessagef("%s", err.Error())
	}
}
