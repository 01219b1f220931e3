package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/antoniostano/backendmcp/internal/observability"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTitleRequired   = errors.New("title is required")
	ErrSessionRequired = errors.New("session_id is required")
	ErrTaskIDRequired  = errors.New("task_id is required")
)

const defaultSubscriberQueue = 64

type ManagerOptions struct {
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	// SessionLock serializes Next per session. Off by default.
	SessionLock     bool
	SubscriberQueue int
}

// Manager is the task queue: CRUD plus the per-session "next" cursor. It
// holds no task state itself; the Store is the source of truth.
type Manager struct {
	store   Store
	logger  zerolog.Logger
	metrics *observability.Metrics
	newID   func() string

	sessionLock bool
	lockMu      sync.Mutex
	locks       map[string]*sessionMutex

	subMu       sync.RWMutex
	subscribers map[string]map[int]chan Event
	nextSubID   int
	queueSize   int
}

func NewManager(store Store, opts ManagerOptions) *Manager {
	queue := opts.SubscriberQueue
	if queue <= 0 {
		queue = defaultSubscriberQueue
	}
	return &Manager{
		store:       store,
		logger:      opts.Logger.With().Str("component", "tasks").Logger(),
		metrics:     opts.Metrics,
		newID:       uuid.NewString,
		sessionLock: opts.SessionLock,
		locks:       make(map[string]*sessionMutex),
		subscribers: make(map[string]map[int]chan Event),
		queueSize:   queue,
	}
}

func (m *Manager) StoreMode() string {
	return m.store.Mode()
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) List(ctx context.Context, sessionID string) ([]Task, error) {
	if blank(sessionID) {
		m.metrics.ObserveTaskOp("list", "invalid")
		return nil, ErrSessionRequired
	}
	out, err := m.store.GetTasks(ctx, sessionID)
	if err != nil {
		m.metrics.ObserveTaskOp("list", "error")
		return nil, err
	}
	m.metrics.ObserveTaskOp("list", "ok")
	return out, nil
}

func (m *Manager) Get(ctx context.Context, taskID string) (Task, error) {
	if blank(taskID) {
		return Task{}, ErrTaskIDRequired
	}
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}
	return task, nil
}

func (m *Manager) Add(ctx context.Context, sessionID, title, description string) (Task, error) {
	if blank(sessionID) {
		m.metrics.ObserveTaskOp("add", "invalid")
		return Task{}, ErrSessionRequired
	}
	if strings.TrimSpace(title) == "" {
		m.metrics.ObserveTaskOp("add", "invalid")
		return Task{}, ErrTitleRequired
	}

	task, err := m.store.CreateTask(ctx, m.newID(), sessionID, title, description)
	if err != nil {
		m.metrics.ObserveTaskOp("add", "error")
		return Task{}, err
	}
	m.metrics.ObserveTaskOp("add", "ok")
	m.logger.Info().
		Str("session_id", sessionID).
		Str("task_id", task.ID).
		Msg("task added")
	m.publish(sessionID, Event{
		Type:      EventTaskAdded,
		SessionID: sessionID,
		TaskID:    task.ID,
		Title:     task.Title,
		Status:    task.Status,
		At:        task.CreatedAt,
	})
	return task, nil
}

func (m *Manager) Remove(ctx context.Context, taskID string) error {
	if blank(taskID) {
		m.metrics.ObserveTaskOp("remove", "invalid")
		return ErrTaskIDRequired
	}

	// The session is only needed to route the event.
	prior, hadPrior := m.lookupForEvent(ctx, taskID)

	removed, err := m.store.DeleteTask(ctx, taskID)
	if err != nil {
		m.metrics.ObserveTaskOp("remove", "error")
		return err
	}
	if !removed {
		m.metrics.ObserveTaskOp("remove", "not_found")
		return ErrTaskNotFound
	}
	m.metrics.ObserveTaskOp("remove", "ok")
	m.logger.Info().Str("task_id", taskID).Msg("task removed")
	if hadPrior {
		m.publish(prior.SessionID, Event{
			Type:      EventTaskRemoved,
			SessionID: prior.SessionID,
			TaskID:    taskID,
			Title:     prior.Title,
			At:        time.Now().UTC(),
		})
	}
	return nil
}

func (m *Manager) Complete(ctx context.Context, taskID string) error {
	if blank(taskID) {
		m.metrics.ObserveTaskOp("complete", "invalid")
		return ErrTaskIDRequired
	}

	updated, err := m.store.UpdateTaskStatus(ctx, taskID, TaskStatusCompleted)
	if err != nil {
		m.metrics.ObserveTaskOp("complete", "error")
		return err
	}
	if !updated {
		m.metrics.ObserveTaskOp("complete", "not_found")
		return ErrTaskNotFound
	}
	m.metrics.ObserveTaskOp("complete", "ok")
	m.logger.Info().Str("task_id", taskID).Msg("task completed")
	if task, ok := m.lookupForEvent(ctx, taskID); ok {
		m.publish(task.SessionID, Event{
			Type:      EventTaskCompleted,
			SessionID: task.SessionID,
			TaskID:    taskID,
			Title:     task.Title,
			Status:    TaskStatusCompleted,
			At:        task.UpdatedAt,
		})
	}
	return nil
}

// Next completes the task the session was last handed (if any) and hands out
// the oldest pending task. ok is false when the session has nothing pending;
// the cursor is cleared in that case. The steps are separate store calls.
func (m *Manager) Next(ctx context.Context, sessionID string) (Task, bool, error) {
	if blank(sessionID) {
		m.metrics.ObserveTaskOp("next", "invalid")
		return Task{}, false, ErrSessionRequired
	}
	if m.sessionLock {
		unlock := m.lockSession(sessionID)
		defer unlock()
	}

	task, ok, err := m.next(ctx, sessionID)
	switch {
	case err != nil:
		m.metrics.ObserveTaskOp("next", "error")
	case ok:
		m.metrics.ObserveTaskOp("next", "ok")
	default:
		m.metrics.ObserveTaskOp("next", "drained")
	}
	return task, ok, err
}

func (m *Manager) next(ctx context.Context, sessionID string) (Task, bool, error) {
	currentID, held, err := m.store.GetCurrentNextTask(ctx, sessionID)
	if err != nil {
		return Task{}, false, fmt.Errorf("read cursor: %w", err)
	}
	if held {
		// The held task may have been removed since; zero rows is fine.
		updated, err := m.store.UpdateTaskStatus(ctx, currentID, TaskStatusCompleted)
		if err != nil {
			return Task{}, false, fmt.Errorf("complete current task: %w", err)
		}
		m.logger.Debug().
			Str("session_id", sessionID).
			Str("task_id", currentID).
			Bool("updated", updated).
			Msg("completed held task")
		if updated {
			m.publish(sessionID, Event{
				Type:      EventTaskCompleted,
				SessionID: sessionID,
				TaskID:    currentID,
				Status:    TaskStatusCompleted,
				At:        time.Now().UTC(),
			})
		}
	}

	task, found, err := m.store.GetFirstPendingTask(ctx, sessionID)
	if err != nil {
		return Task{}, false, fmt.Errorf("find pending task: %w", err)
	}
	if !found {
		if err := m.store.SetCurrentNextTask(ctx, sessionID, ""); err != nil {
			return Task{}, false, fmt.Errorf("clear cursor: %w", err)
		}
		m.logger.Info().Str("session_id", sessionID).Msg("no pending tasks")
		m.publish(sessionID, Event{
			Type:      EventQueueDrained,
			SessionID: sessionID,
			At:        time.Now().UTC(),
		})
		return Task{}, false, nil
	}

	if err := m.store.SetCurrentNextTask(ctx, sessionID, task.ID); err != nil {
		return Task{}, false, fmt.Errorf("set cursor: %w", err)
	}
	m.logger.Info().
		Str("session_id", sessionID).
		Str("task_id", task.ID).
		Msg("task handed out")
	m.publish(sessionID, Event{
		Type:      EventTaskHandedOut,
		SessionID: sessionID,
		TaskID:    task.ID,
		Title:     task.Title,
		Status:    task.Status,
		At:        time.Now().UTC(),
	})
	return task, true, nil
}

func (m *Manager) Subscribe(sessionID string) (<-chan Event, func()) {
	if blank(sessionID) {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, m.queueSize)
	m.subMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	if _, ok := m.subscribers[sessionID]; !ok {
		m.subscribers[sessionID] = make(map[int]chan Event)
	}
	m.subscribers[sessionID][id] = ch
	m.subMu.Unlock()
	m.metrics.AddEventSubscribers(1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			subs := m.subscribers[sessionID]
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(m.subscribers, sessionID)
			}
			m.metrics.AddEventSubscribers(-1)
		})
	}
}

func (m *Manager) hasSubscribers() bool {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	return len(m.subscribers) > 0
}

// lookupForEvent skips the extra read when nobody is listening.
func (m *Manager) lookupForEvent(ctx context.Context, taskID string) (Task, bool) {
	if !m.hasSubscribers() {
		return Task{}, false
	}
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, false
	}
	return task, true
}

func (m *Manager) publish(sessionID string, evt Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	subs := m.subscribers[sessionID]
	if len(subs) == 0 {
		return
	}
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			m.logger.Debug().
				Str("session_id", sessionID).
				Str("event", string(evt.Type)).
				Msg("subscriber queue full; event dropped")
		}
	}
}

// blank rejects empty and whitespace-only identifiers without rewriting them;
// any other string is stored and matched exactly as given.
func blank(id string) bool {
	return strings.TrimSpace(id) == ""
}

// sessionMutex is dropped from the map once no caller holds or waits on it.
type sessionMutex struct {
	mu   sync.Mutex
	refs int
}

func (m *Manager) lockSession(sessionID string) (unlock func()) {
	m.lockMu.Lock()
	entry, ok := m.locks[sessionID]
	if !ok {
		entry = &sessionMutex{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	m.lockMu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		m.lockMu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.lockMu.Unlock()
	}
}
