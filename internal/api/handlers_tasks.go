package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"taskdeck/internal/core"
)

type triggerPayload struct {
	Type    string  `json:"type"`
	FireAt  *string `json:"fire_at,omitempty"`
	PeriodS int     `json:"period_s,omitempty"`
	Anchor  *string `json:"anchor,omitempty"`
	Expr    string  `json:"expr,omitempty"`
}

type dependencyPayload struct {
	TaskID   string `json:"task_id"`
	Relation string `json:"relation"`
}

type createTaskRequest struct {
	Name          string              `json:"name"`
	Kind          string              `json:"kind"`
	Params        map[string]any      `json:"params"`
	Trigger       triggerPayload      `json:"trigger"`
	Priority      int                 `json:"priority"`
	Paused        bool                `json:"paused"`
	MaxRetries    int                 `json:"max_retries"`
	RetryBackoffS int                 `json:"retry_backoff_s"`
	TimeoutS      int                 `json:"timeout_s"`
	GroupID       *string             `json:"group_id,omitempty"`
	Tags          []string            `json:"tags,omitempty"`
	DependsOn     []dependencyPayload `json:"depends_on,omitempty"`
}

type updateTaskRequest struct {
	Name          *string              `json:"name"`
	Params        *map[string]any      `json:"params"`
	Trigger       *triggerPayload      `json:"trigger"`
	Priority      *int                 `json:"priority"`
	MaxRetries    *int                 `json:"max_retries"`
	RetryBackoffS *int                 `json:"retry_backoff_s"`
	TimeoutS      *int                 `json:"timeout_s"`
	GroupID       *string              `json:"group_id"`
	Tags          *[]string            `json:"tags"`
	DependsOn     *[]dependencyPayload `json:"depends_on"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "name is required")
		return
	}

	trigger, err := triggerFromPayload(req.Trigger)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_trigger", err.Error())
		return
	}

	now := time.Now().UTC()
	task := &core.Task{
		ID:           core.NewID(),
		Name:         req.Name,
		Kind:         core.Kind(req.Kind),
		Params:       req.Params,
		Trigger:      trigger,
		Priority:     req.Priority,
		Enabled:      !req.Paused,
		MaxRetries:   req.MaxRetries,
		RetryBackoff: time.Duration(req.RetryBackoffS) * time.Second,
		Timeout:      time.Duration(req.TimeoutS) * time.Second,
		GroupID:      req.GroupID,
		Tags:         req.Tags,
		DependsOn:    dependenciesFromPayload(req.DependsOn),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.scheduler.AddTask(r.Context(), task); err != nil {
		writeSchedulerError(w, s.logger, "create task", err)
		return
	}

	view, err := s.scheduler.GetTask(r.Context(), task.ID)
	if err != nil {
		s.logger.Error("load created task", "task_id", task.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load task")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	views, err := s.scheduler.ListTasks(r.Context())
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}

	if group := strings.TrimSpace(r.URL.Query().Get("group")); group != "" {
		filtered := views[:0]
		for _, v := range views {
			if v.Task.GroupID != nil && *v.Task.GroupID == group {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	if tag := strings.TrimSpace(r.URL.Query().Get("tag")); tag != "" {
		filtered := views[:0]
		for _, v := range views {
			for _, have := range v.Task.Tags {
				if have == tag {
					filtered = append(filtered, v)
					break
				}
			}
		}
		views = filtered
	}

	if views == nil {
		views = []core.TaskView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	view, err := s.scheduler.GetTask(r.Context(), taskID)
	if err != nil {
		writeSchedulerError(w, s.logger, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	view, err := s.scheduler.GetTask(r.Context(), taskID)
	if err != nil {
		writeSchedulerError(w, s.logger, "get task for update", err)
		return
	}
	task := view.Task

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "name cannot be empty")
			return
		}
		task.Name = trimmed
	}
	if req.Params != nil {
		task.Params = *req.Params
	}
	if req.Trigger != nil {
		trigger, err := triggerFromPayload(*req.Trigger)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_trigger", err.Error())
			return
		}
		task.Trigger = trigger
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.MaxRetries != nil {
		task.MaxRetries = *req.MaxRetries
	}
	if req.RetryBackoffS != nil {
		task.RetryBackoff = time.Duration(*req.RetryBackoffS) * time.Second
	}
	if req.TimeoutS != nil {
		task.Timeout = time.Duration(*req.TimeoutS) * time.Second
	}
	if req.GroupID != nil {
		if *req.GroupID == "" {
			task.GroupID = nil
		} else {
			task.GroupID = req.GroupID
		}
	}
	if req.Tags != nil {
		task.Tags = *req.Tags
	}
	if req.DependsOn != nil {
		task.DependsOn = dependenciesFromPayload(*req.DependsOn)
	}
	task.UpdatedAt = time.Now().UTC()

	if err := s.scheduler.UpdateTask(r.Context(), &task); err != nil {
		writeSchedulerError(w, s.logger, "update task", err)
		return
	}

	updated, err := s.scheduler.GetTask(r.Context(), taskID)
	if err != nil {
		writeSchedulerError(w, s.logger, "reload updated task", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.scheduler.RemoveTask(r.Context(), taskID); err != nil {
		writeSchedulerError(w, s.logger, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.scheduler.RunNow(r.Context(), taskID); err != nil {
		writeSchedulerError(w, s.logger, "run task", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.scheduler.CancelRun(r.Context(), taskID); err != nil {
		writeSchedulerError(w, s.logger, "cancel run", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.scheduler.PauseTask(r.Context(), taskID); err != nil {
		writeSchedulerError(w, s.logger, "pause task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.scheduler.ResumeTask(r.Context(), taskID); err != nil {
		writeSchedulerError(w, s.logger, "resume task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func triggerFromPayload(p triggerPayload) (core.Trigger, error) {
	trigger := core.Trigger{Type: core.TriggerType(p.Type)}
	switch trigger.Type {
	case core.TriggerOneShot:
		if p.FireAt == nil {
			return trigger, errors.New("fire_at is required for oneshot triggers")
		}
		at, err := time.Parse(time.RFC3339, *p.FireAt)
		if err != nil {
			return trigger, errors.New("fire_at must be RFC3339")
		}
		trigger.FireAt = &at
	case core.TriggerInterval:
		trigger.Period = time.Duration(p.PeriodS) * time.Second
		if p.Anchor != nil {
			anchor, err := time.Parse(time.RFC3339, *p.Anchor)
			if err != nil {
				return trigger, errors.New("anchor must be RFC3339")
			}
			trigger.Anchor = &anchor
		} else {
			now := time.Now().UTC()
			trigger.Anchor = &now
		}
	case core.TriggerCron:
		trigger.Expr = strings.TrimSpace(p.Expr)
	default:
		return trigger, errors.New("trigger type must be oneshot, interval or cron")
	}
	return trigger, nil
}

func dependenciesFromPayload(deps []dependencyPayload) []core.Dependency {
	if len(deps) == 0 {
		return nil
	}
	out := make([]core.Dependency, 0, len(deps))
	for _, d := range deps {
		out = append(out, core.Dependency{
			TaskID:   d.TaskID,
			Relation: core.Relation(d.Relation),
		})
	}
	return out
}

func writeSchedulerError(w http.ResponseWriter, logger interface {
	Error(msg string, args ...any)
}, op string, err error) {
	switch {
	case errors.Is(err, core.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, core.ErrInvalidParameters),
		errors.Is(err, core.ErrInvalidTrigger),
		errors.Is(err, core.ErrUnknownKind),
		errors.Is(err, core.ErrSelfDependency):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, core.ErrCycleDetected):
		writeError(w, http.StatusConflict, "dependency_cycle", err.Error())
	case errors.Is(err, core.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "already_running", err.Error())
	case errors.Is(err, core.ErrNotRunning):
		writeError(w, http.StatusConflict, "not_running", err.Error())
	case errors.Is(err, core.ErrSchedulerStopped):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "scheduler is stopped")
	default:
		logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
