package a2a

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/cohesivestack/valgo"
	"github.com/google/uuid"
)

/*
Task is the server-managed unit of conversation/work described in the data
model: an id, a state-machine status, an append-only message log, and any
artifacts produced while the task ran.
*/
type Task struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Title     string         `json:"title,omitempty"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (task *Task) Validate() bool {
	v := valgo.Is(
		valgo.String(task.ID).Not().Blank(),
		valgo.String(string(task.Status.State)).Not().Blank(),
	)
	return v.Valid()
}

// NewTask creates a task in the initial PENDING state with a system message
// recording its creation. sessionID may be supplied by the caller (e.g. to
// group a multi-turn conversation) or left blank, in which case a new one is
// minted.
func NewTask(sessionID string) *Task {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := time.Now().UTC()

	return &Task{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Status: TaskStatus{
			State:     TaskStatePending,
			Message:   NewTextMessage("system", "task created"),
			Timestamp: now,
		},
		History:   make([]Message, 0),
		Artifacts: make([]Artifact, 0),
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewTaskFromRequest(body []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ToStatus mutates the task's status in place. Callers owning the task's
// single-writer lock (see pkg/taskmanager) are responsible for enforcing the
// state-machine invariants before calling this; Task itself only records.
func (task *Task) ToStatus(status TaskState, message *Message) {
	log.Debug("task status update", "id", task.ID, "from", task.Status.State, "to", status)

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

// AppendMessage appends to the task's message log. The log is append-only:
// once a message is appended it is never mutated or removed.
func (task *Task) AppendMessage(msg Message) {
	task.History = append(task.History, msg)
}

/*
TaskStatusUpdateEvent is the single event type emitted on every status
transition. Final is true iff the new state is terminal; exactly one such
event is ever emitted per task.
*/
type TaskStatusUpdateEvent struct {
	ID       string         `json:"id"`
	Task     *Task          `json:"task,omitempty"`
	Status   TaskStatus     `json:"status"`
	Final    bool           `json:"final"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

/*
TaskArtifactUpdateEvent is emitted when a new or updated artefact is
available for a task.
*/
type TaskArtifactUpdateEvent struct {
	ID       string         `json:"id"`
	Artifact Artifact       `json:"artifact"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskOutputChunk is a worker-reported incremental output chunk (spec §4.5
// "Streaming task output"), fanned into the same SSE channel as task events.
type TaskOutputChunk struct {
	ID    string `json:"id"`
	Seq   int    `json:"seq"`
	Chunk string `json:"chunk"`
	Final bool   `json:"final"`
}

// TaskHistory represents the history of a task
type TaskHistory struct {
	MessageHistory []Message `json:"messageHistory,omitempty"`
}

// SendParams is the payload for message/send and message/stream.
type SendParams struct {
	TaskID           string                  `json:"task_id,omitempty"`
	SkillID          string                  `json:"skill_id,omitempty"`
	Message          Message                 `json:"message"`
	PushNotification *PushNotificationConfig `json:"pushNotification,omitempty"`
	HistoryLength    *int                    `json:"historyLength,omitempty"`
	Metadata         map[string]any          `json:"metadata,omitempty"`
}

// TaskIDParams represents the base parameters for task ID-based operations
type TaskIDParams struct {
	TaskID   string         `json:"task_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PushNotificationConfig represents the configuration for push notifications
type PushNotificationConfig struct {
	URL            string               `json:"url"`
	Token          *string              `json:"token,omitempty"`
	Authentication *AgentAuthentication `json:"authentication,omitempty"`
}

// TaskPushNotificationConfig represents the configuration for task-specific push notifications
type TaskPushNotificationConfig struct {
	ID                     string                 `json:"id"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// SendResult is the result of message/send: {task, message}.
type SendResult struct {
	Task    *Task   `json:"task"`
	Message Message `json:"message"`
}

type TaskStatusUpdateResult struct {
	ID       string         `json:"id"`
	Status   TaskStatus     `json:"status"`
	Final    bool           `json:"final"`
	Metadata map[string]any `json:"metadata,omitempty"`
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
	if task.Status.Message != nil && len(task.Status.Message.Parts) > 0 {
		sb.WriteString(bullet + labelStyle.Render("Message: ") + valueStyle.Render(task.Status.Message.Parts[0].Text) + "\n")
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
