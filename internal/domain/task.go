package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of an import task
type TaskStatus string

// Possible task status values
const (
	TaskStatusSearching TaskStatus = "searching"
	TaskStatusImporting TaskStatus = "importing"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Common validation errors for ImportTask
var (
	ErrEmptyTaskID      = errors.New("task ID cannot be empty")
	ErrEmptyBrandID     = errors.New("task brand ID cannot be empty")
	ErrEmptyBrandName   = errors.New("task brand name cannot be empty")
	ErrInvalidLimit     = errors.New("task limit must be greater than zero")
	ErrInvalidStatus    = errors.New("invalid task status")
	ErrInvalidProgress  = errors.New("task progress must be between 0 and 100")
	ErrMissingSearchJob = errors.New("task has no search job ID")
	ErrMissingImportJob = errors.New("task has no import job ID")
)

// ImportTask tracks one brand product search followed by an optional
// product import. It is mutated by the poll scheduler while live and
// becomes immutable once archived to history.
type ImportTask struct {
	ID               uuid.UUID        `json:"id"`
	BrandID          string           `json:"brand_id"`
	BrandName        string           `json:"brand_name"`
	Keywords         []string         `json:"keywords,omitempty"`
	Limit            int              `json:"limit"`
	Status           TaskStatus       `json:"status"`
	Progress         int              `json:"progress"`
	ImportProgress   int              `json:"import_progress"`
	SearchResults    []ProductSummary `json:"search_results,omitempty"`
	SelectedProducts []string         `json:"selected_products,omitempty"`
	SearchJobID      string           `json:"search_job_id,omitempty"`
	ImportJobID      string           `json:"import_job_id,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// NewImportTask creates a new ImportTask in the searching state.
// It generates a new UUID for the task ID and sets the creation/update
// timestamps. Returns an error if validation fails.
func NewImportTask(brandID, brandName string, keywords []string, limit int) (*ImportTask, error) {
	now := time.Now().UTC()
	task := &ImportTask{
		ID:          uuid.New(),
		BrandID:     brandID,
		BrandName:   brandName,
		Keywords:    keywords,
		Limit:       limit,
		Status:      TaskStatusSearching,
		CreatedAt:   now,
		LastUpdated: now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the ImportTask has valid data.
// Returns an error if any field fails validation.
func (t *ImportTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.BrandID == "" {
		return ErrEmptyBrandID
	}

	if t.BrandName == "" {
		return ErrEmptyBrandName
	}

	if t.Limit <= 0 {
		return ErrInvalidLimit
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidStatus
	}

	if t.Progress < 0 || t.Progress > 100 ||
		t.ImportProgress < 0 || t.ImportProgress > 100 {
		return ErrInvalidProgress
	}

	return nil
}

// IsLive reports whether the task is in a non-terminal state and may
// still receive updates from a poll loop.
func (t *ImportTask) IsLive() bool {
	return t.Status == TaskStatusSearching || t.Status == TaskStatusImporting
}

// IsTerminal reports whether the task has reached a final state.
// Terminal transitions are one-way: no further polling occurs afterward.
func (t *ImportTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// UpdateStatus updates the task's status and refreshes LastUpdated.
// Returns an error if the new status is invalid or if the task is
// already in a terminal state.
func (t *ImportTask) UpdateStatus(status TaskStatus) error {
	if !isValidTaskStatus(status) {
		return ErrInvalidStatus
	}

	if t.IsTerminal() {
		return ErrInvalidStatus
	}

	t.Status = status
	t.LastUpdated = time.Now().UTC()
	return nil
}

// Age returns the time elapsed since the task last received an update.
// Staleness judgments for resume and cleanup are based on this value.
func (t *ImportTask) Age(now time.Time) time.Duration {
	return now.Sub(t.LastUpdated)
}

// Clone returns a deep copy of the task. The scheduler hands clones to
// callbacks so observers cannot mutate the record it owns.
func (t *ImportTask) Clone() *ImportTask {
	clone := *t

	if t.Keywords != nil {
		clone.Keywords = append([]string(nil), t.Keywords...)
	}
	if t.SearchResults != nil {
		clone.SearchResults = append([]ProductSummary(nil), t.SearchResults...)
	}
	if t.SelectedProducts != nil {
		clone.SelectedProducts = append([]string(nil), t.SelectedProducts...)
	}

	return &clone
}

// isValidTaskStatus checks if the provided status is one of the defined
// valid task statuses.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusSearching, TaskStatusImporting, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
