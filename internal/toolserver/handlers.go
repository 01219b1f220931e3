package toolserver

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/antoniostano/backendmcp/internal/logs"
	"github.com/antoniostano/backendmcp/internal/process"
	"github.com/antoniostano/backendmcp/internal/randstr"
	"github.com/antoniostano/backendmcp/internal/tasks"
)

func (s *Server) handleExecuteCurl(ctx context.Context, request mcp.CallToolRequest) response {
	cmd, err := request.RequireString("command")
	if err != nil {
		return failed(map[string]any{"success": false, "error": err.Error()})
	}
	res := s.deps.Executor.Execute(ctx, cmd)
	if !res.Success {
		return failed(res)
	}
	return ok(res)
}

func (s *Server) handleRestartNode(ctx context.Context, request mcp.CallToolRequest) response {
	res := s.deps.Restarter.Restart(ctx, process.LaunchSpec{
		Entrypoint:   request.GetString("entrypoint", ""),
		LogFile:      request.GetString("logFile", ""),
		ErrorLogFile: request.GetString("errorLogFile", ""),
	})
	if !res.Success {
		return failed(res)
	}
	return ok(res)
}

type readLogsPayload struct {
	Success bool `json:"success"`
	logs.Result
	Error string `json:"error,omitempty"`
}

func (s *Server) handleReadLogs(_ context.Context, request mcp.CallToolRequest) response {
	raw, err := request.RequireString("mode")
	if err != nil {
		return failed(readLogsPayload{
			Result: logs.Result{LogFilePath: s.deps.Logs.Path(), Lines: []string{}},
			Error:  err.Error(),
		})
	}
	mode, err := logs.ParseMode(raw)
	if err != nil {
		return failed(readLogsPayload{
			Result: logs.Result{Mode: raw, LogFilePath: s.deps.Logs.Path(), Lines: []string{}},
			Error:  err.Error(),
		})
	}
	res, err := s.deps.Logs.Read(mode)
	if err != nil {
		res.Mode = raw
		return failed(readLogsPayload{Result: res, Error: err.Error()})
	}
	return ok(readLogsPayload{Success: true, Result: res})
}

func (s *Server) handleRandomString(context.Context, mcp.CallToolRequest) response {
	value, err := randstr.Generate(randstr.DefaultLength)
	if err != nil {
		return failed(map[string]any{"success": false, "error": err.Error()})
	}
	return ok(map[string]any{
		"success":      true,
		"randomString": value,
		"length":       len(value),
		"characters":   randstr.AlphabetLabel,
	})
}

func (s *Server) handleListTasks(ctx context.Context, request mcp.CallToolRequest) response {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return failed(map[string]any{"success": false, "error": err.Error()})
	}
	list, err := s.deps.Tasks.List(ctx, sessionID)
	if err != nil {
		return failed(map[string]any{"success": false, "session_id": sessionID, "error": err.Error()})
	}
	return ok(map[string]any{
		"success":     true,
		"session_id":  sessionID,
		"total_tasks": len(list),
		"tasks":       list,
	})
}

func (s *Server) handleAddTask(ctx context.Context, request mcp.CallToolRequest) response {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return failed(map[string]any{"success": false, "error": err.Error()})
	}
	title, err := request.RequireString("title")
	if err != nil {
		return failed(map[string]any{"success": false, "session_id": sessionID, "error": err.Error()})
	}
	task, err := s.deps.Tasks.Add(ctx, sessionID, title, request.GetString("description", ""))
	if err != nil {
		return failed(map[string]any{
			"success":    false,
			"session_id": sessionID,
			"title":      title,
			"error":      err.Error(),
		})
	}
	return ok(map[string]any{
		"success": true,
		"task_id": task.ID,
		"task":    task,
	})
}

func (s *Server) handleRemoveTask(ctx context.Context, request mcp.CallToolRequest) response {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return failed(map[string]any{"success": false, "error": err.Error()})
	}
	switch err := s.deps.Tasks.Remove(ctx, taskID); {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return notFound(map[string]any{"success": false, "task_id": taskID, "message": "Task not found"})
	case err != nil:
		return failed(map[string]any{"success": false, "task_id": taskID, "error": err.Error()})
	}
	return ok(map[string]any{"success": true, "task_id": taskID, "message": "Task removed successfully"})
}

func (s *Server) handleCompleteTask(ctx context.Context, request mcp.CallToolRequest) response {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return failed(map[string]any{"success": false, "error": err.Error()})
	}
	switch err := s.deps.Tasks.Complete(ctx, taskID); {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return notFound(map[string]any{"success": false, "task_id": taskID, "message": "Task not found"})
	case err != nil:
		return failed(map[string]any{"success": false, "task_id": taskID, "error": err.Error()})
	}
	return ok(map[string]any{
		"success": true,
		"task_id": taskID,
		"status":  tasks.TaskStatusCompleted,
		"message": "Task marked as completed",
	})
}

func (s *Server) handleNextTask(ctx context.Context, request mcp.CallToolRequest) response {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return failed(map[string]any{"success": false, "error": err.Error()})
	}
	task, found, err := s.deps.Tasks.Next(ctx, sessionID)
	if err != nil {
		return failed(map[string]any{"success": false, "session_id": sessionID, "error": err.Error()})
	}
	if !found {
		return ok(map[string]any{
			"success":    true,
			"session_id": sessionID,
			"task":       nil,
			"message":    "No pending tasks remaining",
		})
	}
	return ok(map[string]any{
		"success":    true,
		"session_id": sessionID,
		"task":       task,
		"message":    "Next task retrieved",
	})
}
