package tasks

import "time"

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

type Task struct {
	ID          string     `json:"task_id"`
	SessionID   string     `json:"session_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type EventType string

const (
	EventTaskAdded     EventType = "task_added"
	EventTaskRemoved   EventType = "task_removed"
	EventTaskCompleted EventType = "task_completed"
	EventTaskHandedOut EventType = "task_handed_out"
	EventQueueDrained  EventType = "queue_drained"
)

// Event is published to session subscribers after a mutation succeeds.
type Event struct {
	Type      EventType  `json:"type"`
	SessionID string     `json:"session_id"`
	TaskID    string     `json:"task_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	Status    TaskStatus `json:"status,omitempty"`
	At        time.Time  `json:"at"`
}
