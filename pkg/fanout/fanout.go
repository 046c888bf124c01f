/*
Package fanout implements the SSE fanout broker: one subscriber set per
task, broadcasting a2a.Event values to every open tasks/sendSubscribe or
tasks/resubscribe connection. It generalizes the teacher's
pkg/service/sse.SSEBroker (GetOrCreateTaskBroker / BroadcastToTask /
CloseTaskBroker) from the teacher's bespoke string-framed envelope to
plain `data: <json>\n\n` framing with a JSON-RPC id carried in the
broadcast envelope, and adds final-triggered immediate close+evict which
the teacher's broker never did (its channels stayed open until the whole
task broker was torn down by the caller).
*/
package fanout

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/charmbracelet/log"
)

// KeepAliveInterval is how often the HTTP layer's writeSSE should send a
// keep-alive comment on an otherwise idle stream, per spec.md §4.2.
const KeepAliveInterval = 30 * time.Second

// Envelope is the JSON-RPC 2.0 wrapper every broadcast event is sent
// inside: {"jsonrpc":"2.0","id":<requestId>,"result":<event>}.
type Envelope struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  a2a.Event `json:"result"`
}

// subscriber is one open streaming connection for a task.
type subscriber struct {
	requestID any
	handle    string
	ch        chan []byte
}

// taskSet is the subscriber registry for a single task.
type taskSet struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	handles map[string]struct{}
	next    int
}

// Broker is the per-task SSE fanout registry. The zero value is not
// usable; use New.
type Broker struct {
	mu    sync.Mutex
	tasks map[string]*taskSet
}

func New() *Broker {
	return &Broker{tasks: make(map[string]*taskSet)}
}

func (b *Broker) getOrCreate(taskID string) *taskSet {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts, ok := b.tasks[taskID]
	if !ok {
		ts = &taskSet{subs: make(map[int]*subscriber), handles: make(map[string]struct{})}
		b.tasks[taskID] = ts
	}
	return ts
}

// Subscribe registers a new connection for taskID and returns a channel
// of wire-ready SSE frames (already `data: ...\n\n` encoded) plus an
// unsubscribe func the caller must defer. requestID is the JSON-RPC id
// of the streaming request, carried on every event this subscriber
// receives per spec.md's envelope rule. handle identifies the caller
// across reconnects; a non-empty handle already registered for taskID is
// rejected rather than silently allowed to open a second stream. An
// empty handle skips the duplicate check entirely.
func (b *Broker) Subscribe(taskID string, requestID any, handle string) (<-chan []byte, func(), error) {
	ts := b.getOrCreate(taskID)

	ts.mu.Lock()
	if handle != "" {
		if _, dup := ts.handles[handle]; dup {
			ts.mu.Unlock()
			return nil, nil, fmt.Errorf("handle %q is already subscribed to task %s", handle, taskID)
		}
		ts.handles[handle] = struct{}{}
	}

	id := ts.next
	ts.next++
	sub := &subscriber{requestID: requestID, handle: handle, ch: make(chan []byte, 16)}
	ts.subs[id] = sub
	ts.mu.Unlock()

	unsubscribe := func() {
		ts.mu.Lock()
		if s, ok := ts.subs[id]; ok {
			delete(ts.subs, id)
			if s.handle != "" {
				delete(ts.handles, s.handle)
			}
			close(s.ch)
		}
		ts.mu.Unlock()
	}

	return sub.ch, unsubscribe, nil
}

// Broadcast sends evt to every subscriber currently registered for
// taskID. If evt.Final is true, every subscriber is closed and evicted
// immediately after delivery — resubscribing to a closed task gets a
// fresh, empty set, so a late resubscriber is sent the stored terminal
// status by pkg/rpc instead (streamResubscribe and handleGetEvents replay
// it once).
func (b *Broker) Broadcast(taskID string, evt a2a.Event) {
	b.mu.Lock()
	ts, ok := b.tasks[taskID]
	b.mu.Unlock()
	if !ok {
		return
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	for id, sub := range ts.subs {
		frame, err := encodeFrame(sub.requestID, evt)
		if err != nil {
			log.Error("fanout: failed to encode event", "task", taskID, "err", err)
			continue
		}

		select {
		case sub.ch <- frame:
		default:
			log.Warn("fanout: subscriber channel full, dropping slow consumer", "task", taskID, "sub", id)
		}

		if evt.Final {
			delete(ts.subs, id)
			if sub.handle != "" {
				delete(ts.handles, sub.handle)
			}
			close(sub.ch)
		}
	}
}

// Close forcibly closes and evicts every subscriber for taskID without
// sending a final event, and drops the task's registry entry. Used when
// the executor discards a task outright (never for normal completion,
// which goes through Broadcast with Final=true).
func (b *Broker) Close(taskID string) {
	b.mu.Lock()
	ts, ok := b.tasks[taskID]
	delete(b.tasks, taskID)
	b.mu.Unlock()
	if !ok {
		return
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	for id, sub := range ts.subs {
		close(sub.ch)
		delete(ts.subs, id)
	}
}

// KeepAlive returns a frame suitable for periodic keep-alive writes. The
// caller (the HTTP handler) is responsible for its own ticker; Broker
// does not run timers itself so it stays agnostic of the transport loop.
func KeepAlive() []byte {
	return []byte(": keep-alive\n\n")
}

func encodeFrame(requestID any, evt a2a.Event) ([]byte, error) {
	env := Envelope{JSONRPC: "2.0", ID: requestID, Result: evt}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, []byte("data: ")...)
	frame = append(frame, payload...)
	frame = append(frame, []byte("\n\n")...)
	return frame, nil
}
