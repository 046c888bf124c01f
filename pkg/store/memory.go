package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/charmbracelet/log"
)

// entry bundles a task with its push-notification config under one lock,
// the same grouping pkg/stores.TaskEntry used for state+push config.
type entry struct {
	task a2a.Task
	push *a2a.PushNotificationConfig
}

// InMemoryStore is the reference Store implementation: a mutex-guarded
// map, exactly the shape of the teacher's InMemoryTaskStore generalized
// to store whole a2a.Task values instead of a bespoke TaskEntry.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*entry)}
}

func (s *InMemoryStore) Create(ctx context.Context, task *a2a.Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entries[task.ID]; exists {
		*task = e.task
		return true, nil
	}

	s.entries[task.ID] = &entry{task: *task}
	return false, nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (a2a.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return a2a.Task{}, false
	}

	return e.task, true
}

func (s *InMemoryStore) Commit(ctx context.Context, task *a2a.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[task.ID]
	if !ok {
		return fmt.Errorf("task %s not found", task.ID)
	}

	e.task = *task
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, state a2a.TaskState) []a2a.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]a2a.Task, 0, len(s.entries))
	for _, e := range s.entries {
		if state == "" || e.task.Status.State == state {
			out = append(out, e.task)
		}
	}
	return out
}

func (s *InMemoryStore) SetPushConfig(ctx context.Context, id string, cfg a2a.PushNotificationConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}

	e.push = &cfg
	return true
}

func (s *InMemoryStore) GetPushConfig(ctx context.Context, id string) (a2a.PushNotificationConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || e.push == nil {
		return a2a.PushNotificationConfig{}, false
	}

	return *e.push, true
}

func (s *InMemoryStore) AppendHistory(ctx context.Context, id string, message a2a.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		log.Warn("store: appendHistory against unknown task", "id", id)
		return false
	}

	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	e.task.History = append(e.task.History, message)
	e.task.UpdatedAt = time.Now().UTC()
	return true
}

func (s *InMemoryStore) GetHistory(ctx context.Context, id string, limit int) ([]a2a.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if limit <= 0 {
		return []a2a.Message{}, true
	}

	hist := e.task.History
	if limit < len(hist) {
		hist = hist[len(hist)-limit:]
	}

	out := make([]a2a.Message, len(hist))
	copy(out, hist)
	return out, true
}

func (s *InMemoryStore) SetInternalState(ctx context.Context, id string, state map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}

	e.task.InternalState = state
	return true
}

func (s *InMemoryStore) GetInternalState(ctx context.Context, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}

	return e.task.InternalState, true
}
