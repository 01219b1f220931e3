package toolserver

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/antoniostano/backendmcp/internal/command"
	"github.com/antoniostano/backendmcp/internal/config"
	"github.com/antoniostano/backendmcp/internal/logs"
	"github.com/antoniostano/backendmcp/internal/observability"
	"github.com/antoniostano/backendmcp/internal/process"
	"github.com/antoniostano/backendmcp/internal/tasks"
)

const (
	ToolExecuteCurl  = "execute_curl"
	ToolRestartNode  = "restart_node_process"
	ToolReadLogs     = "read_logs"
	ToolRandomString = "generate_random_string"
	ToolListTasks    = "list"
	ToolAddTask      = "add"
	ToolRemoveTask   = "remove"
	ToolCompleteTask = "complete"
	ToolNextTask     = "next"
)

const sessionIDArgDetail = "The session identifier for the task, generated randomly string and passed by the Agent"

type Deps struct {
	Tasks     *tasks.Manager
	Executor  *command.Executor
	Restarter *process.Restarter
	Logs      *logs.Reader
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
}

// Server exposes the tool set over MCP.
type Server struct {
	mcpServer  *server.MCPServer
	deps       Deps
	logger     zerolog.Logger
	registered []string
	handlers   map[string]server.ToolHandlerFunc
}

func New(cfg config.Config, deps Deps) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			cfg.ServerName,
			cfg.ServerVersion,
			server.WithToolCapabilities(true),
			server.WithLogging(),
		),
		deps:     deps,
		logger:   deps.Logger.With().Str("component", "toolserver").Logger(),
		handlers: make(map[string]server.ToolHandlerFunc),
	}
	s.registerTools(cfg.ToolEnabled)
	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Tools lists the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.registered...)
}

// ServeStdio reads JSON-RPC frames from in and writes replies to out until
// ctx is done or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(s.logger, "", 0))
	s.logger.Info().Strs("tools", s.registered).Msg("serving MCP over stdio")
	return stdio.Listen(ctx, in, out)
}

func readOnlyTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts, mcp.WithToolAnnotation(mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(true),
		DestructiveHint: mcp.ToBoolPtr(false),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}))
	return mcp.NewTool(name, opts...)
}

func defaultTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts, mcp.WithToolAnnotation(mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(false),
		DestructiveHint: mcp.ToBoolPtr(false),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}))
	return mcp.NewTool(name, opts...)
}

func destructiveTool(name string, openWorld bool, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts, mcp.WithToolAnnotation(mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(false),
		DestructiveHint: mcp.ToBoolPtr(true),
		OpenWorldHint:   mcp.ToBoolPtr(openWorld),
	}))
	return mcp.NewTool(name, opts...)
}

func (s *Server) add(enabled func(string) bool, tool mcp.Tool, h handlerFunc) {
	if !enabled(tool.Name) {
		s.logger.Debug().Str("tool", tool.Name).Msg("tool disabled")
		return
	}
	wrapped := s.wrap(tool.Name, h)
	s.mcpServer.AddTool(tool, wrapped)
	s.handlers[tool.Name] = wrapped
	s.registered = append(s.registered, tool.Name)
}

func (s *Server) registerTools(enabled func(string) bool) {
	if s.deps.Executor != nil {
		s.add(enabled, destructiveTool(ToolExecuteCurl, true,
			mcp.WithDescription("Execute a curl command with automatic Bearer token injection and shell dialect compatibility"),
			mcp.WithString("command",
				mcp.Description("The curl command to execute"),
				mcp.Required(),
			),
		), s.handleExecuteCurl)
	}

	if s.deps.Restarter != nil {
		s.add(enabled, destructiveTool(ToolRestartNode, false,
			mcp.WithDescription("Kill any process using the configured port and start a new Node.js process in the background"),
			mcp.WithString("entrypoint",
				mcp.Description("Path to the Node.js entrypoint file (optional, uses configured default)"),
			),
			mcp.WithString("logFile",
				mcp.Description("Path to the log file (optional, uses configured default)"),
			),
			mcp.WithString("errorLogFile",
				mcp.Description("Path to the error log file (optional, uses configured default)"),
			),
		), s.handleRestartNode)
	}

	if s.deps.Logs != nil {
		s.add(enabled, readOnlyTool(ToolReadLogs,
			mcp.WithDescription("Read logs from the configured log file with different modes (head, tail, full, middle)"),
			mcp.WithString("mode",
				mcp.Description(`Reading mode: "head:<n>" (first n lines), "tail:<n>" (last n lines), "full" (entire file), "middle:<n>" (n lines from middle)`),
				mcp.Required(),
			),
		), s.handleReadLogs)
	}

	s.add(enabled, readOnlyTool(ToolRandomString,
		mcp.WithDescription("Generate a random 6-character alphanumeric string"),
	), s.handleRandomString)

	if s.deps.Tasks == nil {
		return
	}
	s.add(enabled, readOnlyTool(ToolListTasks,
		mcp.WithDescription("Retrieve all existing tasks of the current session."),
		mcp.WithString("session_id",
			mcp.Description(sessionIDArgDetail),
			mcp.Required(),
		),
	), s.handleListTasks)

	s.add(enabled, defaultTool(ToolAddTask,
		mcp.WithDescription("Add a new task to the current session's list."),
		mcp.WithString("session_id",
			mcp.Description(sessionIDArgDetail),
			mcp.Required(),
		),
		mcp.WithString("title",
			mcp.Description("The task title"),
			mcp.Required(),
		),
		mcp.WithString("description",
			mcp.Description("The task description (optional)"),
		),
	), s.handleAddTask)

	s.add(enabled, destructiveTool(ToolRemoveTask, false,
		mcp.WithDescription("Remove a task from the list by its task_id."),
		mcp.WithString("task_id",
			mcp.Description("The unique identifier of the task to remove"),
			mcp.Required(),
		),
	), s.handleRemoveTask)

	s.add(enabled, defaultTool(ToolCompleteTask,
		mcp.WithDescription("Mark a task as completed."),
		mcp.WithString("task_id",
			mcp.Description("The unique identifier of the task to mark as completed"),
			mcp.Required(),
		),
	), s.handleCompleteTask)

	s.add(enabled, defaultTool(ToolNextTask,
		mcp.WithDescription("Returns next pending task. On subsequent calls, marks previously returned task as completed and returns next pending task."),
		mcp.WithString("session_id",
			mcp.Description(sessionIDArgDetail),
			mcp.Required(),
		),
	), s.handleNextTask)
}

// wrap turns a handler response into a JSON text result. Handlers never
// surface a Go error to the dispatcher.
func (s *Server) wrap(name string, h handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		started := time.Now()
		resp := h(ctx, request)
		s.deps.Metrics.ObserveToolCall(name, resp.outcome())

		evt := s.logger.Debug()
		if resp.isError {
			evt = s.logger.Warn()
		}
		evt.Str("tool", name).
			Str("outcome", resp.outcome()).
			Dur("elapsed", time.Since(started)).
			Msg("tool call")

		return resp.toResult(), nil
	}
}
