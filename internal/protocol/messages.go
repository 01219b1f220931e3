package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"
	TypeTaskEvent     MessageType = "task_event"
	TypeTaskSnapshot  MessageType = "task_snapshot"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

// Client control actions on the task event stream.
const (
	ActionSnapshot = "snapshot"
	ActionNext     = "next"
	ActionComplete = "complete"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type MessageType `json:"type"`
	// SessionID is optional; the connection's session is used when empty.
	SessionID string `json:"session_id,omitempty"`
	Action    string `json:"action"`
	TaskID    string `json:"task_id,omitempty"`
}

type TaskView struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type TaskEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Event     string      `json:"event"`
	TaskID    string      `json:"task_id,omitempty"`
	Title     string      `json:"title,omitempty"`
	Status    string      `json:"status,omitempty"`
	TSMs      int64       `json:"ts_ms"`
}

type TaskSnapshot struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Total     int         `json:"total_tasks"`
	Tasks     []TaskView  `json:"tasks"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
		switch msg.Action {
		case ActionSnapshot, ActionNext:
		case ActionComplete:
			if strings.TrimSpace(msg.TaskID) == "" {
				return nil, errors.New("invalid client_control: complete requires task_id")
			}
		default:
			return nil, fmt.Errorf("invalid client_control: unknown action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
