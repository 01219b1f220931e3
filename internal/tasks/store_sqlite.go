package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Fixed-width UTC text so that lexical ORDER BY equals chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	// One process-wide connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_session_created ON tasks (session_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS session_cursors (
			session_id TEXT PRIMARY KEY,
			current_next_task_id TEXT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init task schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, taskID, sessionID, title, description string) (Task, error) {
	now := s.now()
	ts := now.Format(sqliteTimeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, session_id, title, description, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		taskID, sessionID, title, description, string(TaskStatusPending), ts, ts,
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

const sqliteTaskColumns = `task_id, session_id, title, description, status, created_at, updated_at`

func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks WHERE task_id = ?`, taskID)
	task, err := scanSQLiteTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrStoreNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *SQLiteStore) GetTasks(ctx context.Context, sessionID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks
		  WHERE session_id = ?
		  ORDER BY created_at ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0, 8)
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
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

func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, taskID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return rowsChanged(res)
}

func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus) (bool, error) {
	if err := checkStatus(status); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`,
		string(status), s.now().Format(sqliteTimeLayout), taskID,
	)
	if err != nil {
		return false, fmt.Errorf("update task status: %w", err)
	}
	return rowsChanged(res)
}

func (s *SQLiteStore) GetFirstPendingTask(ctx context.Context, sessionID string) (Task, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks
		  WHERE session_id = ? AND status = ?
		  ORDER BY created_at ASC, rowid ASC
		  LIMIT 1`,
		sessionID, string(TaskStatusPending),
	)
	task, err := scanSQLiteTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, false, nil
		}
		return Task{}, false, fmt.Errorf("get first pending task: %w", err)
	}
	return task, true, nil
}

func (s *SQLiteStore) GetCurrentNextTask(ctx context.Context, sessionID string) (string, bool, error) {
	var current sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT current_next_task_id FROM session_cursors WHERE session_id = ?`, sessionID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get session cursor: %w", err)
	}
	if !current.Valid || current.String == "" {
		return "", false, nil
	}
	return current.String, true, nil
}

func (s *SQLiteStore) SetCurrentNextTask(ctx context.Context, sessionID, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_cursors (session_id, current_next_task_id, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET
			current_next_task_id = excluded.current_next_task_id,
			updated_at = excluded.updated_at`,
		sessionID,
		sql.NullString{String: taskID, Valid: taskID != ""},
		s.now().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert session cursor: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Mode() string { return "sqlite" }

// DB exposes the handle for tests and diagnostics.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (Task, error) {
	var (
		task      Task
		status    string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(
		&task.ID,
		&task.SessionID,
		&task.Title,
		&task.Description,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Task{}, err
	}
	task.Status = TaskStatus(status)
	var err error
	if task.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return Task{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if task.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return Task{}, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	return task, nil
}

func rowsChanged(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
