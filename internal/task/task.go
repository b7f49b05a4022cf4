package task

import (
	"context"

	"github.com/google/uuid"

	"github.com/brandsync/brandsync-api/internal/domain"
)

// Phase identifies which sub-process of a task a poll loop tracks.
// Each phase has its own remote job and its own loop.
type Phase string

// Possible phase values
const (
	PhaseSearch Phase = "search"
	PhaseImport Phase = "import"
)

// PollKey identifies one poll loop: at most one active loop exists per
// key at any time.
type PollKey struct {
	TaskID uuid.UUID
	Phase  Phase
}

// Remote job status values reported by the backend status accessors.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// FailureReason classifies why a task resolved to failed. The task's
// status is the same for all reasons; the reason lets callers and
// remediation tooling tell them apart without parsing message text.
type FailureReason string

// Possible failure reasons
const (
	// ReasonRemoteFailed means the backend job itself reported failure.
	ReasonRemoteFailed FailureReason = "remote_failed"

	// ReasonTimedOut means no terminal state was observed within the
	// stuck-task window.
	ReasonTimedOut FailureReason = "timed_out"

	// ReasonAttemptsExhausted means the attempt budget ran out before a
	// terminal state was observed.
	ReasonAttemptsExhausted FailureReason = "attempts_exhausted"

	// ReasonLookupFailed means the post-completion product lookup failed.
	ReasonLookupFailed FailureReason = "lookup_failed"
)

// SearchStatus is the remote search-status accessor's report for a
// search job.
type SearchStatus struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ImportStatus is the remote import-progress accessor's report for an
// import job.
type ImportStatus struct {
	Status       string   `json:"status"`
	Progress     int      `json:"progress"`
	Success      int      `json:"success"`
	Failed       int      `json:"failed"`
	Errors       []string `json:"errors,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// BackendClient is the remote accessor surface the scheduler polls.
// Implementations live in internal/platform/backend; tests substitute
// fakes.
type BackendClient interface {
	// SearchJobStatus reports the state of a search job.
	SearchJobStatus(ctx context.Context, jobID string) (*SearchStatus, error)

	// ImportJobStatus reports the state of an import job.
	ImportJobStatus(ctx context.Context, jobID string) (*ImportStatus, error)

	// ProductsByBrand returns the materialized product list backing a
	// completed search, filtered by product status.
	ProductsByBrand(ctx context.Context, brandID, status string, limit int) ([]domain.ProductSummary, error)
}

// Callbacks are invoked synchronously from within a poll iteration to
// push task lifecycle changes to the caller. Any field may be nil.
type Callbacks struct {
	// OnTaskUpdate receives the task after a non-terminal update.
	OnTaskUpdate func(id uuid.UUID, task *domain.ImportTask)

	// OnTaskComplete receives a human-readable completion summary.
	OnTaskComplete func(id uuid.UUID, message string)

	// OnTaskFailed receives the typed failure reason and message.
	OnTaskFailed func(id uuid.UUID, reason FailureReason, message string)
}

// RecoveryStats summarizes scheduler and store state for ops tooling.
type RecoveryStats struct {
	ActiveLoops  int `json:"active_loops"`
	LiveTasks    int `json:"live_tasks"`
	StuckTasks   int `json:"stuck_tasks"`
	HistoryCount int `json:"history_count"`
}

// RecoverOptions controls a stuck-task remediation pass.
type RecoverOptions struct {
	// MaxAge overrides the staleness threshold; zero uses the
	// coordinator's default.
	MaxAge string `json:"max_age,omitempty"`

	// DryRun reports what would be remediated without changing state.
	DryRun bool `json:"dry_run,omitempty"`
}

// RecoveryCoordinator detects and remediates stuck tasks. It consumes
// scheduler and store state; implementations are wired by ops tooling
// and are outside this package.
type RecoveryCoordinator interface {
	GetRecoveryStats(ctx context.Context) (*RecoveryStats, error)
	RecoverStuckTasks(ctx context.Context, opts RecoverOptions) (int, error)
	ForceResetAllTasks(ctx context.Context) error
	CleanupOrphanedData(ctx context.Context) (int, error)
}
