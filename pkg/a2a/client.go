package a2a

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	fiberClient "github.com/gofiber/fiber/v3/client"
)

// Client is a thin JSON-RPC client for the task engine's /rpc endpoint,
// adapted from the single-agent A2A client the teacher wired against
// its own server: same fiberClient.Client transport, generalized from
// one bespoke per-method struct pair to the jsonrpcEnvelope/jsonrpcReply
// shape the rest of this module already speaks in pkg/rpc.
type Client struct {
	baseURL string
	conn    *fiberClient.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		conn:    fiberClient.New().SetBaseURL(baseURL),
	}
}

// jsonrpcEnvelope and jsonrpcReply mirror pkg/rpc.Request/Response
// field-for-field without importing pkg/rpc, so a client binary can
// depend on pkg/a2a alone without pulling in the executor/store stack.
type jsonrpcEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonrpcError) Error() string {
	return fmt.Sprintf("a2a: rpc error %d: %s", e.Code, e.Message)
}

func (client *Client) doRequest(method string, params any, result any) error {
	req := jsonrpcEnvelope{JSONRPC: "2.0", ID: 1, Method: method, Params: params}

	res, err := client.conn.Post("/rpc", fiberClient.Config{
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   req,
	})
	if err != nil {
		return err
	}

	var reply jsonrpcReply
	if err := res.JSON(&reply); err != nil {
		return err
	}
	if reply.Error != nil {
		return reply.Error
	}
	if result == nil || len(reply.Result) == 0 {
		return nil
	}
	return json.Unmarshal(reply.Result, result)
}

// SendTask submits (or resumes) a task and waits for the immediate
// tasks/send response — the task's snapshot at the moment the call
// returns, not its eventual terminal state.
func (client *Client) SendTask(params TaskSendParams) (Task, error) {
	var task Task
	err := client.doRequest("tasks/send", params, &task)
	return task, err
}

// GetTask retrieves a task's current snapshot.
func (client *Client) GetTask(params TaskQueryParams) (Task, error) {
	var task Task
	err := client.doRequest("tasks/get", params, &task)
	return task, err
}

// CancelTask requests cancellation of a running task.
func (client *Client) CancelTask(params TaskIDParams) (Task, error) {
	var task Task
	err := client.doRequest("tasks/cancel", params, &task)
	return task, err
}

// SetPushNotification registers a webhook for a task's future events.
func (client *Client) SetPushNotification(params TaskPushNotificationConfig) error {
	return client.doRequest("tasks/pushNotification/set", params, nil)
}

// GetPushNotification retrieves a task's registered webhook config.
func (client *Client) GetPushNotification(params TaskIDParams) (TaskPushNotificationConfig, error) {
	var cfg TaskPushNotificationConfig
	err := client.doRequest("tasks/pushNotification/get", params, &cfg)
	return cfg, err
}

// SendTaskStreaming submits a task via tasks/sendSubscribe and forwards
// every decoded Event to eventChan until the stream closes. Unlike the
// teacher's SendTaskStreaming, which decoded a bare back-to-back JSON
// object stream, this reads the wire format pkg/fanout actually emits:
// "data: <json>\n\n" frames, one json-rpc envelope per frame.
func (client *Client) SendTaskStreaming(params TaskSendParams, eventChan chan<- Event) error {
	req := jsonrpcEnvelope{JSONRPC: "2.0", ID: 1, Method: "tasks/sendSubscribe", Params: params}

	res, err := client.conn.Post("/rpc", fiberClient.Config{
		Header: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "text/event-stream",
		},
		Body: req,
	})
	if err != nil {
		return err
	}

	return scanSSE(bytes.NewReader(res.Body()), eventChan)
}

// scanSSE reads "data: <json>\n\n" frames from r, decoding each payload
// as a jsonrpcReply wrapping an Event, forwarding Result to eventChan.
// Keep-alive comment lines (": keep-alive") are skipped.
func scanSSE(r io.Reader, eventChan chan<- Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == ':' {
			continue
		}
		const prefix = "data: "
		if len(line) < len(prefix) || line[:len(prefix)] != prefix {
			continue
		}

		var reply jsonrpcReply
		if err := json.Unmarshal([]byte(line[len(prefix):]), &reply); err != nil {
			log.Warn("a2a: failed to decode sse frame", "err", err)
			continue
		}
		if reply.Error != nil {
			return reply.Error
		}

		var evt Event
		if err := json.Unmarshal(reply.Result, &evt); err != nil {
			return fmt.Errorf("a2a: failed to decode event: %w", err)
		}
		eventChan <- evt
	}
	return scanner.Err()
}
