package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	a2aerrors "github.com/a2aproto/taskengine/pkg/errors"
	"github.com/a2aproto/taskengine/pkg/fanout"
	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// Mount registers the JSON-RPC endpoint (which also serves the two
// SSE-registering methods), the plain-GET event stream route, the agent
// card, and a health check onto
// app — the fiber analogue of the teacher's cmd/serve.go mux wiring,
// generalized from net/http.ServeMux.Handle to fiber route registration.
func (s *Server) Mount(app *fiber.App, card a2a.AgentCard) {
	app.Post("/rpc", s.handleRPC)
	app.Get("/.well-known/agent.json", func(c fiber.Ctx) error {
		return c.JSON(card)
	})
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	app.Get("/tasks/:id/events", s.handleGetEvents)
}

// handleGetEvents is a plain-GET analogue of tasks/resubscribe, for
// clients that want a reconnectable link rather than a JSON-RPC POST —
// an EventSource in a browser, curl, or any net/http-based SSE client.
// It shares streamResubscribe's terminal-replay-then-close behavior.
func (s *Server) handleGetEvents(c fiber.Ctx) error {
	taskID := c.Params("id")

	snapshot, ok := s.Store.Get(c.Context(), taskID)
	if !ok {
		return c.Status(404).JSON(newError(nil, errTaskNotFound()))
	}

	if snapshot.IsTerminal() {
		evt := a2a.NewStatusEvent(taskID, snapshot.Status, true)
		writeSSE(c, replayOnce(evt, nil), func() {})
		return nil
	}

	handle := c.Query("handle")
	if handle == "" {
		handle = uuid.NewString()
	}
	ch, unsubscribe, err := s.Broker.Subscribe(taskID, nil, handle)
	if err != nil {
		return c.Status(409).JSON(newError(nil, a2aerrors.ErrInvalidRequest.WithMessagef("%s", err.Error())))
	}
	writeSSE(c, ch, unsubscribe)
	return nil
}

// handleRPC parses the envelope, special-cases the two SSE-registering
// methods by upgrading the connection, and otherwise delegates to
// HandleRequest for a single JSON response.
func (s *Server) handleRPC(c fiber.Ctx) error {
	var req Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(400).JSON(newError(nil, errParse()))
	}

	switch req.Method {
	case MethodTasksSendSubscribe:
		return s.streamSend(c, req)
	case MethodTasksResubscribe:
		return s.streamResubscribe(c, req)
	default:
		resp := s.HandleRequest(c.Context(), req)
		status := 200
		if resp.Error != nil {
			status = resp.Error.HTTPStatus()
		}
		return c.Status(status).JSON(resp)
	}
}

// streamSend creates (or resumes) the task exactly like tasks/send, then
// subscribes the caller to its event stream instead of returning the
// task snapshot directly.
func (s *Server) streamSend(c fiber.Ctx, req Request) error {
	var params a2a.TaskSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.Status(400).JSON(newError(req.ID, errParse()))
	}
	if err := validateSendParams(params); err != nil {
		return c.Status(400).JSON(newError(req.ID, errInvalidParams(err)))
	}
	if params.PushNotification != nil && !s.PushSupported {
		rpcErr := a2aerrors.ErrPushNotificationsNotSupported
		return c.Status(rpcErr.HTTPStatus()).JSON(newError(req.ID, rpcErr))
	}

	task, resuming, rpcErr := s.prepareTask(c.Context(), params)
	if rpcErr != nil {
		return c.Status(rpcErr.HTTPStatus()).JSON(newError(req.ID, rpcErr))
	}

	ch, unsubscribe, err := s.Broker.Subscribe(task.ID, req.ID, fmt.Sprintf("%v", req.ID))
	if err != nil {
		return c.Status(409).JSON(newError(req.ID, a2aerrors.ErrInvalidRequest.WithMessagef("%s", err.Error())))
	}

	if resuming {
		if err := s.Executor.Resume(c.Context(), task.ID, params.Message); err != nil {
			unsubscribe()
			return c.Status(500).JSON(newError(req.ID, translateErr(err)))
		}
	} else {
		if params.PushNotification != nil {
			s.Store.SetPushConfig(c.Context(), task.ID, *params.PushNotification)
		}
		if err := s.Executor.Submit(c.Context(), task); err != nil {
			unsubscribe()
			return c.Status(500).JSON(newError(req.ID, translateErr(err)))
		}
	}

	writeSSE(c, ch, unsubscribe)
	return nil
}

// streamResubscribe re-attaches to a task's live event stream. A task
// already in a terminal state gets exactly one synthetic replay of its
// true terminal status, then the stream closes — no fabricated
// "working" status the way the teacher's deleted a2a_server.go did.
func (s *Server) streamResubscribe(c fiber.Ctx, req Request) error {
	var params a2a.TaskQueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.Status(400).JSON(newError(req.ID, errParse()))
	}

	snapshot, ok := s.Store.Get(c.Context(), params.ID)
	if !ok {
		return c.Status(404).JSON(newError(req.ID, errTaskNotFound()))
	}

	if snapshot.IsTerminal() {
		evt := a2a.NewStatusEvent(params.ID, snapshot.Status, true)
		writeSSE(c, replayOnce(evt, req.ID), func() {})
		return nil
	}

	ch, unsubscribe, err := s.Broker.Subscribe(params.ID, req.ID, fmt.Sprintf("%v", req.ID))
	if err != nil {
		return c.Status(409).JSON(newError(req.ID, a2aerrors.ErrInvalidRequest.WithMessagef("%s", err.Error())))
	}
	writeSSE(c, ch, unsubscribe)
	return nil
}

// replayOnce returns a channel that yields a single already-framed SSE
// event, for resubscribing to a task that has already finished.
func replayOnce(evt a2a.Event, requestID any) <-chan []byte {
	out := make(chan []byte, 1)
	env := fanout.Envelope{JSONRPC: "2.0", ID: requestID, Result: evt}
	payload, err := json.Marshal(env)
	if err != nil {
		close(out)
		return out
	}
	frame := append([]byte("data: "), payload...)
	frame = append(frame, []byte("\n\n")...)
	out <- frame
	close(out)
	return out
}

// writeSSE drives the fasthttp streaming writer for the lifetime of the
// connection, forwarding frames from ch and sending periodic keep-alive
// comments, following the same ticker + channel select shape as the
// teacher's deleted pkg/service/sse.SSEBroker.Subscribe.
func writeSSE(c fiber.Ctx, ch <-chan []byte, unsubscribe func()) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		ticker := time.NewTicker(fanout.KeepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case frame, open := <-ch:
				if !open {
					return
				}
				if _, err := w.Write(frame); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.Write(fanout.KeepAlive()); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					log.Debug("rpc: sse keep-alive flush failed, client likely disconnected")
					return
				}
			}
		}
	})
}
