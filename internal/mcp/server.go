package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"taskdeck/internal/core"
	"taskdeck/internal/cronx"
	"taskdeck/internal/store"
)

// MCPServer exposes the scheduler over the Model Context Protocol, both on
// stdio and as an HTTP handler mounted by the API server.
type MCPServer struct {
	store     *store.Store
	scheduler *core.Scheduler
	logger    *slog.Logger
	inner     *server.MCPServer
	http      *server.StreamableHTTPServer
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(st *store.Store, scheduler *core.Scheduler, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		store:     st,
		scheduler: scheduler,
		logger:    logger,
	}
	s.inner = server.NewMCPServer(
		"taskdeck",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	s.http = server.NewStreamableHTTPServer(s.inner)
	return s
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.inner)
}

// ServeHTTP serves the streamable HTTP transport.
func (s *MCPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.http.ServeHTTP(w, r)
}

func (s *MCPServer) registerTools() {
	s.inner.AddTool(mcp.NewTool("task_create",
		mcp.WithDescription("Create a scheduled task. Triggers: 'cron' with a 5-field expression (minute hour day month weekday), 'interval' with a period in seconds, or 'oneshot' with an RFC3339 time"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Task name"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Task kind"),
			mcp.Enum("http", "process", "file", "system", "database"),
		),
		mcp.WithObject("params",
			mcp.Required(),
			mcp.Description("Kind-specific parameters, e.g. {\"command\": \"backup.sh\"} for process tasks"),
		),
		mcp.WithString("trigger_type",
			mcp.Required(),
			mcp.Description("Trigger type"),
			mcp.Enum("oneshot", "interval", "cron"),
		),
		mcp.WithString("cron",
			mcp.Description("Cron expression, e.g. '0 9 * * 1-5' for weekday mornings"),
		),
		mcp.WithNumber("period_seconds",
			mcp.Description("Interval period in seconds"),
			mcp.Min(1),
		),
		mcp.WithString("fire_at",
			mcp.Description("One-shot firing time, RFC3339"),
		),
		mcp.WithNumber("priority",
			mcp.Description("Scheduling priority, higher runs first"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Per-run timeout in seconds"),
			mcp.Min(0),
		),
		mcp.WithNumber("max_retries",
			mcp.Description("Retry attempts after a failed run"),
			mcp.Min(0),
		),
	), s.handleCreateTask)

	s.inner.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List all scheduled tasks with their current state"),
	), s.handleListTasks)

	s.inner.AddTool(mcp.NewTool("task_get",
		mcp.WithDescription("Get task details"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleGetTask)

	s.inner.AddTool(mcp.NewTool("task_update",
		mcp.WithDescription("Update a task. Only supplied fields change"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithString("name",
			mcp.Description("New name"),
		),
		mcp.WithString("cron",
			mcp.Description("New cron expression (switches the trigger to cron)"),
		),
		mcp.WithNumber("priority",
			mcp.Description("New priority"),
		),
		mcp.WithBoolean("paused",
			mcp.Description("Pause or resume the task"),
		),
	), s.handleUpdateTask)

	s.inner.AddTool(mcp.NewTool("task_delete",
		mcp.WithDescription("Delete a task and its run history"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleDeleteTask)

	s.inner.AddTool(mcp.NewTool("task_run",
		mcp.WithDescription("Run a task immediately, bypassing its trigger and dependencies"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleRunTask)

	s.inner.AddTool(mcp.NewTool("task_runs",
		mcp.WithDescription("Show the run history of a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of runs to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListRuns)

	s.inner.AddTool(mcp.NewTool("cron_preview",
		mcp.WithDescription("Preview the next firing times of a cron expression"),
		mcp.WithString("cron",
			mcp.Required(),
			mcp.Description("Cron expression"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of firings to return, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handleCronPreview)

	s.logger.Info("MCP tools registered", "count", 8)
}

func (s *MCPServer) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(mcp.ParseString(request, "name", ""))
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	trigger := core.Trigger{Type: core.TriggerType(mcp.ParseString(request, "trigger_type", ""))}
	switch trigger.Type {
	case core.TriggerCron:
		trigger.Expr = strings.TrimSpace(mcp.ParseString(request, "cron", ""))
	case core.TriggerInterval:
		trigger.Period = time.Duration(mcp.ParseFloat64(request, "period_seconds", 0)) * time.Second
		anchor := time.Now().UTC()
		trigger.Anchor = &anchor
	case core.TriggerOneShot:
		raw := mcp.ParseString(request, "fire_at", "")
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fire_at must be RFC3339: %v", err)), nil
		}
		trigger.FireAt = &at
	default:
		return mcp.NewToolResultError("trigger_type must be oneshot, interval or cron"), nil
	}

	now := time.Now().UTC()
	task := &core.Task{
		ID:         core.NewID(),
		Name:       name,
		Kind:       core.Kind(mcp.ParseString(request, "kind", "")),
		Params:     mcp.ParseStringMap(request, "params", nil),
		Trigger:    trigger,
		Priority:   int(mcp.ParseFloat64(request, "priority", 0)),
		Enabled:    true,
		MaxRetries: int(mcp.ParseFloat64(request, "max_retries", 0)),
		Timeout:    time.Duration(mcp.ParseFloat64(request, "timeout_seconds", 0)) * time.Second,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.scheduler.AddTask(ctx, task); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create task: %v", err)), nil
	}

	view, err := s.scheduler.GetTask(ctx, task.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load created task: %v", err)), nil
	}

	s.logger.Info("task created via mcp", "task_id", task.ID, "kind", task.Kind)
	return mcp.NewToolResultText(fmt.Sprintf("Task created\nID: %s\nNext fire: %s",
		task.ID, formatTime(view.State.NextFire))), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	views, err := s.scheduler.ListTasks(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list tasks: %v", err)), nil
	}
	if len(views) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n\n", len(views))
	for _, v := range views {
		fmt.Fprintf(&b, "%s  %s (%s)\n", v.Task.ID, v.Task.Name, v.Task.Kind)
		fmt.Fprintf(&b, "  phase: %s\n", v.State.Phase)
		fmt.Fprintf(&b, "  trigger: %s\n", describeTrigger(v.Task.Trigger))
		if v.State.NextFire != nil {
			fmt.Fprintf(&b, "  next fire: %s\n", formatTime(v.State.NextFire))
		}
		if v.State.LastOutcome != "" {
			fmt.Fprintf(&b, "  last outcome: %s\n", v.State.LastOutcome)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	view, err := s.scheduler.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("get task: %v", err)), nil
	}

	t := view.Task
	var b strings.Builder
	fmt.Fprintf(&b, "Task ID: %s\n", t.ID)
	fmt.Fprintf(&b, "Name: %s\n", t.Name)
	fmt.Fprintf(&b, "Kind: %s\n", t.Kind)
	fmt.Fprintf(&b, "Trigger: %s\n", describeTrigger(t.Trigger))
	fmt.Fprintf(&b, "Phase: %s\n", view.State.Phase)
	fmt.Fprintf(&b, "Priority: %d\n", t.Priority)
	if t.Timeout > 0 {
		fmt.Fprintf(&b, "Timeout: %s\n", t.Timeout)
	}
	if t.MaxRetries > 0 {
		fmt.Fprintf(&b, "Max retries: %d\n", t.MaxRetries)
	}
	for _, dep := range t.DependsOn {
		fmt.Fprintf(&b, "Depends on: %s (%s)\n", dep.TaskID, dep.Relation)
	}
	if view.State.NextFire != nil {
		fmt.Fprintf(&b, "Next fire: %s\n", formatTime(view.State.NextFire))
	}
	fmt.Fprintf(&b, "Created: %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleUpdateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	view, err := s.scheduler.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("get task: %v", err)), nil
	}
	task := view.Task

	if name := strings.TrimSpace(mcp.ParseString(request, "name", "")); name != "" {
		task.Name = name
	}
	if expr := strings.TrimSpace(mcp.ParseString(request, "cron", "")); expr != "" {
		task.Trigger = core.Trigger{Type: core.TriggerCron, Expr: expr}
	}
	if request.GetArguments()["priority"] != nil {
		task.Priority = int(mcp.ParseFloat64(request, "priority", 0))
	}
	task.UpdatedAt = time.Now().UTC()

	if err := s.scheduler.UpdateTask(ctx, &task); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("update task: %v", err)), nil
	}

	if paused, ok := request.GetArguments()["paused"].(bool); ok {
		if paused {
			err = s.scheduler.PauseTask(ctx, taskID)
		} else {
			err = s.scheduler.ResumeTask(ctx, taskID)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("toggle task: %v", err)), nil
		}
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task %s updated", taskID)), nil
}

func (s *MCPServer) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if err := s.scheduler.RemoveTask(ctx, taskID); err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("delete task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s deleted", taskID)), nil
}

func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if err := s.scheduler.RunNow(ctx, taskID); err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("run task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s queued for immediate execution", taskID)), nil
}

func (s *MCPServer) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	runs, err := s.store.LoadRunHistory(ctx, taskID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load run history: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No runs recorded"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d runs of %s:\n\n", len(runs), taskID)
	for _, r := range runs {
		fmt.Fprintf(&b, "%s  %s (attempt %d)\n", r.ID, r.Outcome, r.Attempt)
		fmt.Fprintf(&b, "    scheduled: %s\n", r.ScheduledAt.Format("2006-01-02 15:04:05"))
		if r.Duration > 0 {
			fmt.Fprintf(&b, "    duration: %s\n", r.Duration)
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", truncateString(r.Error, 120))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleCronPreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr := mcp.ParseString(request, "cron", "")
	schedule, err := cronx.Parse(expr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", err)), nil
	}

	count := int(mcp.ParseFloat64(request, "count", 5))
	if count < 1 || count > 10 {
		count = 5
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cron expression: %s\n\nUpcoming firings:\n", expr)
	cur := time.Now()
	for i := 0; i < count; i++ {
		next, err := schedule.Next(cur)
		if err != nil {
			break
		}
		fmt.Fprintf(&b, "  %d. %s\n", i+1, next.Format("2006-01-02 15:04:05"))
		cur = next
	}
	return mcp.NewToolResultText(b.String()), nil
}

func describeTrigger(t core.Trigger) string {
	switch t.Type {
	case core.TriggerOneShot:
		return fmt.Sprintf("oneshot at %s", formatTime(t.FireAt))
	case core.TriggerInterval:
		return fmt.Sprintf("every %s", t.Period)
	case core.TriggerCron:
		return fmt.Sprintf("cron %q", t.Expr)
	}
	return string(t.Type)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
