/*
Package rpc implements the JSON-RPC 2.0 front door: request/response
envelopes and the seven-method dispatch table (tasks/send,
tasks/sendSubscribe, tasks/resubscribe, tasks/get, tasks/cancel,
tasks/pushNotification/set, tasks/pushNotification/get). It replaces
the teacher's pkg/jsonrpc package (request.go/response.go/message.go),
keeping the same envelope shape but dropping the teacher's net/rpc-style
codec in favor of direct fiber handlers (see server.go) — the teacher
never actually used pkg/jsonrpc's codec plumbing from an HTTP handler,
it went through the bespoke pkg/service/a2a_server.go dispatch instead.
*/
package rpc

import (
	"encoding/json"

	a2aerrors "github.com/a2aproto/taskengine/pkg/errors"
)

// Request is a JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response object. Exactly one of Result or
// Error is populated.
type Response struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      any                 `json:"id"`
	Result  any                 `json:"result,omitempty"`
	Error   *a2aerrors.RpcError `json:"error,omitempty"`
}

func newResult(id any, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func newError(id any, err *a2aerrors.RpcError) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: err}
}

// Method names recognized by the dispatch table.
const (
	MethodTasksSend                = "tasks/send"
	MethodTasksSendSubscribe       = "tasks/sendSubscribe"
	MethodTasksResubscribe         = "tasks/resubscribe"
	MethodTasksGet                 = "tasks/get"
	MethodTasksCancel              = "tasks/cancel"
	MethodTasksPushNotificationSet = "tasks/pushNotification/set"
	MethodTasksPushNotificationGet = "tasks/pushNotification/get"
)
