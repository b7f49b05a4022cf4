package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brandsync/brandsync-api/internal/api/shared"
	"github.com/brandsync/brandsync-api/internal/domain"
	"github.com/brandsync/brandsync-api/internal/task"
)

// defaultSearchLimit is applied when a create request omits the limit.
const defaultSearchLimit = 50

// TaskPoller is the scheduler surface the handlers drive.
type TaskPoller interface {
	StartSearchPolling(task *domain.ImportTask)
	StartImportPolling(task *domain.ImportTask)
	StopTaskPolling(id uuid.UUID)
	ActivePollCount() int
}

// JobStarter submits search and import jobs to the remote backend.
type JobStarter interface {
	StartSearchJob(ctx context.Context, brandID string, keywords []string, limit int) (string, error)
	StartImportJob(ctx context.Context, brandID string, productIDs []string) (string, error)
}

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	BrandID   string   `json:"brand_id"   validate:"required"`
	BrandName string   `json:"brand_name" validate:"required"`
	Keywords  []string `json:"keywords"`
	Limit     int      `json:"limit"      validate:"gte=0,lte=500"`
}

// StartImportRequest represents the request body for starting an import.
type StartImportRequest struct {
	ProductIDs []string `json:"product_ids" validate:"required,min=1"`
}

// TaskListResponse wraps the active snapshot.
type TaskListResponse struct {
	Tasks []*domain.ImportTask `json:"tasks"`
}

// HistoryResponse wraps the archived tasks and the last cleanup run.
type HistoryResponse struct {
	Tasks       []*domain.ImportTask `json:"tasks"`
	LastCleanup time.Time            `json:"last_cleanup,omitempty"`
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	store  *task.Store
	poller TaskPoller
	jobs   JobStarter
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(store *task.Store, poller TaskPoller, jobs JobStarter, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		store:  store,
		poller: poller,
		jobs:   jobs,
		logger: logger.With("component", "task_handler"),
	}
}

// CreateTask handles POST /api/tasks: it submits a brand search to the
// backend, persists the new task, and arms the search poll loop.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultSearchLimit
	}

	newTask, err := domain.NewImportTask(req.BrandID, req.BrandName, req.Keywords, req.Limit)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := h.jobs.StartSearchJob(r.Context(), req.BrandID, req.Keywords, req.Limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "Failed to start brand search", err)
		return
	}
	newTask.SearchJobID = jobID

	h.store.AddTask(r.Context(), newTask)
	h.poller.StartSearchPolling(newTask)

	h.logger.Info("search task created",
		"task_id", newTask.ID,
		"brand_id", newTask.BrandID,
		"search_job_id", jobID)

	shared.RespondWithJSON(w, r, http.StatusAccepted, newTask)
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.store.LoadTasks(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasks})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, ok := h.store.GetTask(r.Context(), id)
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// DeleteTask handles DELETE /api/tasks/{id}: it cancels both phase
// loops and removes the task from the active snapshot.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	h.poller.StopTaskPolling(id)
	h.store.RemoveTask(r.Context(), id)

	h.logger.Info("task deleted", "task_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// StartImport handles POST /api/tasks/{id}/import: it records the
// product selection, submits the import job, and arms the import poll
// loop. The task must have a completed search to import from.
func (h *TaskHandler) StartImport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req StartImportRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	current, ok := h.store.GetTask(r.Context(), id)
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}
	if current.Status != domain.TaskStatusCompleted || len(current.SearchResults) == 0 {
		shared.RespondWithError(w, r, http.StatusConflict, "Task has no completed search to import from")
		return
	}

	jobID, err := h.jobs.StartImportJob(r.Context(), current.BrandID, req.ProductIDs)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "Failed to start import", err)
		return
	}

	updated, ok := h.store.UpdateTask(r.Context(), id, func(t *domain.ImportTask) {
		t.Status = domain.TaskStatusImporting
		t.SelectedProducts = req.ProductIDs
		t.ImportJobID = jobID
		t.ImportProgress = 0
		t.ErrorMessage = ""
	})
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	h.poller.StartImportPolling(updated)

	h.logger.Info("import started",
		"task_id", id,
		"import_job_id", jobID,
		"selected_count", len(req.ProductIDs))

	shared.RespondWithJSON(w, r, http.StatusAccepted, updated)
}

// GetHistory handles GET /api/tasks/history.
func (h *TaskHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	tasks, lastCleanup := h.store.LoadHistory(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, HistoryResponse{
		Tasks:       tasks,
		LastCleanup: lastCleanup,
	})
}

// taskID parses the {id} route parameter, responding with 400 on a
// malformed value.
func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}
