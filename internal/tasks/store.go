package tasks

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrStoreNotFound = errors.New("task not found in store")
	ErrInvalidStatus = errors.New("invalid task status")
)

func checkStatus(status TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return nil
}

// Store is durable CRUD for tasks and per-session cursors. Each call is
// atomic on its own; callers get no cross-call transaction.
type Store interface {
	CreateTask(ctx context.Context, taskID, sessionID, title, description string) (Task, error)
	GetTask(ctx context.Context, taskID string) (Task, error)
	GetTasks(ctx context.Context, sessionID string) ([]Task, error)
	DeleteTask(ctx context.Context, taskID string) (bool, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus) (bool, error)
	GetFirstPendingTask(ctx context.Context, sessionID string) (Task, bool, error)

	// GetCurrentNextTask returns the cursor's task id; ok is false when the
	// session has no cursor row or the stored id is NULL.
	GetCurrentNextTask(ctx context.Context, sessionID string) (taskID string, ok bool, err error)
	// SetCurrentNextTask upserts the cursor row. An empty taskID stores NULL.
	SetCurrentNextTask(ctx context.Context, sessionID, taskID string) error

	Ping(ctx context.Context) error
	Mode() string
	Close() error
}
