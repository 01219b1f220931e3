package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initTaskSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func initTaskSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			session_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_session_created ON tasks (session_id, created_at, seq);`,
		`CREATE TABLE IF NOT EXISTS session_cursors (
			session_id TEXT PRIMARY KEY,
			current_next_task_id TEXT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init task schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, taskID, sessionID, title, description string) (Task, error) {
	// TIMESTAMPTZ keeps microseconds; truncate so the returned record matches a re-read.
	now := s.now().Truncate(time.Microsecond)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (task_id, session_id, title, description, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		taskID, sessionID, title, description, string(TaskStatusPending), now,
	)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return Task{
		ID:          taskID,
		SessionID:   sessionID,
		Title:       title,
		Description: description,
		Status:      TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

const postgresTaskColumns = `task_id, session_id, title, description, status, created_at, updated_at`

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresTaskColumns+` FROM tasks WHERE task_id = $1`, taskID)
	task, err := scanPostgresTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrStoreNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) GetTasks(ctx context.Context, sessionID string) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresTaskColumns+` FROM tasks
		  WHERE session_id = $1
		  ORDER BY created_at ASC, seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0, 8)
	for rows.Next() {
		task, err := scanPostgresTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE task_id = $1`, taskID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus) (bool, error) {
	if err := checkStatus(status); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = $2 WHERE task_id = $3`,
		string(status), s.now(), taskID,
	)
	if err != nil {
		return false, fmt.Errorf("update task status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetFirstPendingTask(ctx context.Context, sessionID string) (Task, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresTaskColumns+` FROM tasks
		  WHERE session_id = $1 AND status = $2
		  ORDER BY created_at ASC, seq ASC
		  LIMIT 1`,
		sessionID, string(TaskStatusPending),
	)
	task, err := scanPostgresTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, false, nil
		}
		return Task{}, false, fmt.Errorf("get first pending task: %w", err)
	}
	return task, true, nil
}

func (s *PostgresStore) GetCurrentNextTask(ctx context.Context, sessionID string) (string, bool, error) {
	var current *string
	err := s.pool.QueryRow(ctx,
		`SELECT current_next_task_id FROM session_cursors WHERE session_id = $1`, sessionID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get session cursor: %w", err)
	}
	if current == nil || *current == "" {
		return "", false, nil
	}
	return *current, true, nil
}

func (s *PostgresStore) SetCurrentNextTask(ctx context.Context, sessionID, taskID string) error {
	var current *string
	if taskID != "" {
		current = &taskID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_cursors (session_id, current_next_task_id, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET
			current_next_task_id = EXCLUDED.current_next_task_id,
			updated_at = EXCLUDED.updated_at`,
		sessionID, current, s.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert session cursor: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresTask(row pgx.Row) (Task, error) {
	var (
		task   Task
		status string
	)
	if err := row.Scan(
		&task.ID,
		&task.SessionID,
		&task.Title,
		&task.Description,
		&status,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	task.Status = TaskStatus(status)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return task, nil
}
