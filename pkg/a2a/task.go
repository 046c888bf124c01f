package a2a

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/cohesivestack/valgo"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Task struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// InternalState is processor-private bookkeeping (e.g. a multi-stage
	// processor's current stage). It never leaves the store: the json:"-"
	// tag strips it from every outward-facing snapshot, satisfying the
	// same rule tasks/get and tasks/send responses must honor.
	InternalState map[string]any `json:"-"`
	CreatedAt     time.Time      `json:"createdAt,omitempty"`
	UpdatedAt     time.Time      `json:"updatedAt,omitempty"`
}

func (task *Task) Validate() bool {
	return valgo.Is(
		valgo.String(task.ID).Not().Blank(),
		valgo.String(string(task.Status.State)).Not().Blank(),
	).Valid()
}

func NewTask(agentName string) *Task {
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New().String(),
		SessionID: uuid.New().String(),
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Message:   NewTextMessage("system", "Task created"),
			Timestamp: now,
		},
		History:       make([]Message, 0),
		Artifacts:     make([]Artifact, 0),
		Metadata:      make(map[string]any),
		InternalState: make(map[string]any),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if system := viper.GetViper().GetString(fmt.Sprintf("agent.%s.system", agentName)); system != "" {
		task.History = append(task.History, *NewTextMessage("system", system))
	}

	return task
}

func NewTaskFromRequest(body []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

/*
Prefix returns a deterministic storage key for a task, suitable for an
append-only object store.  Segments, front to back:

  - State: groups every task currently in a given state together, so a
    scan for e.g. all "working" tasks never has to touch settled ones.
  - SessionID: groups all tasks belonging to one session.
  - ID: guarantees every task owns its own namespace.
  - Timestamp: updates never overwrite, they append a new key.
*/
func (task *Task) Prefix(optionals ...string) string {
	builder := optionals
	builder = append(builder, []string{
		string(task.Status.State),
		task.SessionID,
		task.ID,
		strconv.FormatInt(time.Now().UnixNano(), 10),
	}...)

	return strings.Join(builder, "/")
}

// ToStatus transitions the task to a new state. The caller is responsible
// for respecting terminal-state immutability; the executor enforces it,
// this is a plain field setter used once that decision has been made.
func (task *Task) ToStatus(status TaskState, message *Message) {
	log.Debug("task status update", "id", task.ID, "status", status)

	task.Status.State = status
	task.Status.Timestamp = time.Now().UTC()
	task.Status.Message = message
	task.UpdatedAt = task.Status.Timestamp
}

func (task *Task) LastMessage() *Message {
	if len(task.History) == 0 {
		return nil
	}

	return &task.History[len(task.History)-1]
}

func (task *Task) AddArtifact(artifact Artifact) {
	task.Artifacts = append(task.Artifacts, artifact)
}

func (task *Task) AddFinalPart(part Part) {
	task.History = append(task.History, Message{
		Role:  "assistant",
		Parts: []Part{part},
	})
}

// IsTerminal reports whether the task's current state is one of the three
// settled states (completed, canceled, failed) from which no further
// transition is allowed.
func (task *Task) IsTerminal() bool {
	return IsTerminalState(task.Status.State)
}

func IsTerminalState(s TaskState) bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed:
		return true
	default:
		return false
	}
}

// TaskSendParams are the parameters accepted by tasks/send and
// tasks/sendSubscribe.
type TaskSendParams struct {
	ID               string                  `json:"id"`
	SessionID        string                  `json:"sessionId,omitempty"`
	Message          Message                 `json:"message"`
	PushNotification *PushNotificationConfig `json:"pushNotification,omitempty"`
	HistoryLength    *int                    `json:"historyLength,omitempty"`
	Metadata         map[string]any          `json:"metadata,omitempty"`
}

// TaskIDParams represents the base parameters for task ID-based operations.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams represents the parameters for tasks/get and
// tasks/resubscribe.
type TaskQueryParams struct {
	TaskIDParams
	HistoryLength *int `json:"historyLength,omitempty"`
}

// PushNotificationConfig represents the configuration for push notifications
// on a single task.
type PushNotificationConfig struct {
	URL            string               `json:"url"`
	Token          *string              `json:"token,omitempty"`
	Authentication *AgentAuthentication `json:"authentication,omitempty"`
}

// TaskPushNotificationConfig pairs a task ID with its push configuration,
// the shape exchanged by tasks/pushNotification/set and .../get.
type TaskPushNotificationConfig struct {
	ID                     string                 `json:"id"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

func (task *Task) String() string {
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)

	indent := "   "
	bullet := "│ "

	sb.WriteString(headerStyle.Render("Task Details") + "\n")
	sb.WriteString(bullet + labelStyle.Render("ID: ") + valueStyle.Render(task.ID) + "\n")
	if task.SessionID != "" {
		sb.WriteString(bullet + labelStyle.Render("Session ID: ") + valueStyle.Render(task.SessionID) + "\n")
	}

	sb.WriteString("\n" + sectionStyle.Render("Status") + "\n")
	sb.WriteString(bullet + labelStyle.Render("State: ") + valueStyle.Render(string(task.Status.State)) + "\n")
	if task.Status.Message != nil {
		sb.WriteString(bullet + labelStyle.Render("Message: ") + valueStyle.Render(task.Status.Message.String()) + "\n")
	}
	sb.WriteString(bullet + labelStyle.Render("Timestamp: ") + valueStyle.Render(task.Status.Timestamp.Format(time.RFC3339)) + "\n")

	if len(task.History) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("History") + "\n")
		for i, message := range task.History {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Message %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Role: ") + valueStyle.Render(message.Role) + "\n")
			for _, part := range message.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render("Content: ") + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	if len(task.Artifacts) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Artifacts") + "\n")
		for i, artifact := range task.Artifacts {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Artifact %d", i+1)) + "\n")
			if artifact.Name != nil {
				sb.WriteString(bullet + indent + labelStyle.Render("Name: ") + valueStyle.Render(*artifact.Name) + "\n")
			}
			for j, part := range artifact.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render(fmt.Sprintf("Part %d: ", j+1)) + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	if len(task.Metadata) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Metadata") + "\n")
		keys := make([]string, 0, len(task.Metadata))
		for k := range task.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(bullet + labelStyle.Render(k+": ") + valueStyle.Render(fmt.Sprintf("%v", task.Metadata[k])) + "\n")
		}
	}

	return sb.String()
}
