package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/backendmcp/internal/tasks"
)

type createTaskRequest struct {
	SessionID   string `json:"session_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type nextTaskResponse struct {
	SessionID string      `json:"session_id"`
	HasNext   bool        `json:"has_next"`
	Task      *tasks.Task `json:"task,omitempty"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if !s.tasksEnabled(w) {
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if strings.TrimSpace(sessionID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id query param is required")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := s.tasks.List(r.Context(), sessionID)
	if err != nil {
		respondTaskError(w, "task_list_failed", err)
		return
	}
	total := len(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":  sessionID,
		"total_tasks": total,
		"tasks":       list,
	})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if !s.tasksEnabled(w) {
		return
	}
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	task, err := s.tasks.Add(r.Context(), req.SessionID, req.Title, req.Description)
	if err != nil {
		respondTaskError(w, "task_create_failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if !s.tasksEnabled(w) {
		return
	}
	task, err := s.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondTaskError(w, "task_get_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	if !s.tasksEnabled(w) {
		return
	}
	taskID := chi.URLParam(r, "id")
	if err := s.tasks.Remove(r.Context(), taskID); err != nil {
		respondTaskError(w, "task_remove_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"removed": true,
	})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	if !s.tasksEnabled(w) {
		return
	}
	taskID := chi.URLParam(r, "id")
	if err := s.tasks.Complete(r.Context(), taskID); err != nil {
		respondTaskError(w, "task_complete_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  tasks.TaskStatusCompleted,
	})
}

func (s *Server) handleNextTask(w http.ResponseWriter, r *http.Request) {
	if !s.tasksEnabled(w) {
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	task, ok, err := s.tasks.Next(r.Context(), sessionID)
	if err != nil {
		respondTaskError(w, "task_next_failed", err)
		return
	}
	resp := nextTaskResponse{SessionID: sessionID, HasNext: ok}
	if ok {
		resp.Task = &task
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) tasksEnabled(w http.ResponseWriter) bool {
	if s.tasks == nil {
		respondError(w, http.StatusNotImplemented, "tasks_disabled", "Task queue is not configured.")
		return false
	}
	return true
}

func respondTaskError(w http.ResponseWriter, code string, err error) {
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, "task_not_found", err.Error())
	case errors.Is(err, tasks.ErrSessionRequired),
		errors.Is(err, tasks.ErrTitleRequired),
		errors.Is(err, tasks.ErrTaskIDRequired):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, code, err.Error())
	}
}
