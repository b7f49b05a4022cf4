package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandsync/brandsync-api/internal/domain"
	"github.com/brandsync/brandsync-api/internal/events"
)

// searchProductStatus is the product status filter used when
// materializing the result set of a completed search: the backend
// stages searched products as drafts until a user imports them.
const searchProductStatus = "draft"

// importProgressCeiling caps observed import progress while polling is
// still in flight; 100 is only allowed on confirmed completion.
const importProgressCeiling = 95

// SchedulerConfig holds tuning knobs for the poll scheduler.
type SchedulerConfig struct {
	// Interval between poll attempts. If zero, defaults to 2s.
	Interval time.Duration

	// MaxAttempts bounds non-terminal responses per loop before the
	// task fails with an attempts-exhausted reason. If zero, defaults
	// to 300 (~10 minutes at the default interval).
	MaxAttempts int

	// StuckTimeout bounds the wall-clock age of a loop regardless of
	// remote status. If zero, defaults to 10 minutes.
	StuckTimeout time.Duration

	// TerminalLinger is how long a terminal record stays visible in the
	// active snapshot before removal, so callers can observe the final
	// status. If zero, defaults to 30s.
	TerminalLinger time.Duration
}

// DefaultSchedulerConfig returns a SchedulerConfig with the default
// polling budget.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:       2 * time.Second,
		MaxAttempts:    300,
		StuckTimeout:   10 * time.Minute,
		TerminalLinger: 30 * time.Second,
	}
}

// pollLoop is one active polling state machine. Cancelling its context
// prevents the next iteration from firing; a remote response that lands
// after cancellation is discarded before being applied.
type pollLoop struct {
	key       PollKey
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// PollScheduler drives zero or more independent polling loops to
// completion without blocking callers. It enforces at most one loop per
// (task id, phase), a bounded attempt budget, and a stuck-task timeout.
//
// Loops run as goroutines; per key, iterations are strictly sequential
// because the next timer is armed only after the previous attempt's
// outcome is known. Loops for different keys are fully independent.
type PollScheduler struct {
	store     *Store
	backend   BackendClient
	emitter   events.EventEmitter
	callbacks Callbacks
	config    SchedulerConfig
	logger    *slog.Logger

	mu       sync.Mutex
	loops    map[PollKey]*pollLoop
	removals map[uuid.UUID]*time.Timer
}

// NewPollScheduler creates a PollScheduler. The emitter may be nil if
// no event subscribers are wired.
func NewPollScheduler(
	store *Store,
	backend BackendClient,
	emitter events.EventEmitter,
	callbacks Callbacks,
	config SchedulerConfig,
	logger *slog.Logger,
) *PollScheduler {
	if config.Interval <= 0 {
		config.Interval = 2 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 300
	}
	if config.StuckTimeout <= 0 {
		config.StuckTimeout = 10 * time.Minute
	}
	if config.TerminalLinger <= 0 {
		config.TerminalLinger = 30 * time.Second
	}

	return &PollScheduler{
		store:     store,
		backend:   backend,
		emitter:   emitter,
		callbacks: callbacks,
		config:    config,
		logger:    logger.With("component", "poll_scheduler"),
		loops:     make(map[PollKey]*pollLoop),
		removals:  make(map[uuid.UUID]*time.Timer),
	}
}

// StartSearchPolling begins polling the task's search job. The task
// must carry a SearchJobID; if it does not, the call logs and returns
// without arming a loop. Any existing search loop for the task is
// cancelled first, so at most one loop exists per key.
func (s *PollScheduler) StartSearchPolling(task *domain.ImportTask) {
	if task.SearchJobID == "" {
		s.logger.Warn("cannot start search polling without a search job ID", "task_id", task.ID)
		return
	}
	s.startLoop(PollKey{TaskID: task.ID, Phase: PhaseSearch}, task.SearchJobID)
}

// StartImportPolling begins polling the task's import job. The task
// must carry an ImportJobID; if it does not, the call logs and returns
// without arming a loop. Any existing import loop for the task is
// cancelled first.
func (s *PollScheduler) StartImportPolling(task *domain.ImportTask) {
	if task.ImportJobID == "" {
		s.logger.Warn("cannot start import polling without an import job ID", "task_id", task.ID)
		return
	}
	s.startLoop(PollKey{TaskID: task.ID, Phase: PhaseImport}, task.ImportJobID)
}

// StopPolling cancels the loop for the given key. Cancelling a
// non-existent loop is a no-op.
func (s *PollScheduler) StopPolling(key PollKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLoopLocked(key)
}

// StopTaskPolling cancels both phase loops for the given task.
func (s *PollScheduler) StopTaskPolling(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLoopLocked(PollKey{TaskID: id, Phase: PhaseSearch})
	s.stopLoopLocked(PollKey{TaskID: id, Phase: PhaseImport})
}

// StopAllPolling cancels every active loop and any pending terminal
// removals.
func (s *PollScheduler) StopAllPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.loops {
		s.stopLoopLocked(key)
	}
	for id, timer := range s.removals {
		timer.Stop()
		delete(s.removals, id)
	}
}

// ActivePollCount returns the number of currently armed loops.
func (s *PollScheduler) ActivePollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

// ActiveKeys returns the keys of all currently armed loops, for
// recovery tooling that needs to introspect the scheduler.
func (s *PollScheduler) ActiveKeys() []PollKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]PollKey, 0, len(s.loops))
	for key := range s.loops {
		keys = append(keys, key)
	}
	return keys
}

// ResumePolling re-arms polling after a process restart, given the
// snapshot loaded from the store. Timers are never persisted, only the
// data needed to reconstruct them: a live task whose last update is
// recent enough gets a fresh loop for its phase; one older than the
// stuck-task timeout is treated as abandoned and left inert.
//
// Terminal records found in the snapshot are purged immediately. Their
// linger removal timer did not survive the restart, and nothing else
// evicts terminal entries from the active set.
func (s *PollScheduler) ResumePolling(tasks []*domain.ImportTask) {
	ctx := context.Background()
	now := time.Now().UTC()
	resumed := 0
	purged := 0

	for _, t := range tasks {
		if t.IsTerminal() {
			s.store.SaveToHistory(ctx, t)
			s.store.RemoveTask(ctx, t.ID)
			purged++
			continue
		}

		staleness := t.Age(now)
		if staleness > s.config.StuckTimeout {
			s.logger.Info("skipping stale task on resume",
				"task_id", t.ID,
				"status", t.Status,
				"staleness", staleness.String())
			continue
		}

		switch {
		case t.Status == domain.TaskStatusSearching && t.SearchJobID != "":
			s.StartSearchPolling(t)
			resumed++
		case t.Status == domain.TaskStatusImporting && t.ImportJobID != "":
			s.StartImportPolling(t)
			resumed++
		}
	}

	s.logger.Info("resumed polling after restart",
		"snapshot_count", len(tasks),
		"resumed_count", resumed,
		"purged_terminal_count", purged)
}

// startLoop arms a new loop for the key, cancelling any existing one
// with the same key first.
func (s *PollScheduler) startLoop(key PollKey, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancel-then-arm guarantees at most one loop per key: the old
	// loop's context is dead before the new one is visible.
	s.stopLoopLocked(key)

	ctx, cancel := context.WithCancel(context.Background())
	loop := &pollLoop{
		key:       key,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	s.loops[key] = loop

	s.logger.Info("starting poll loop",
		"task_id", key.TaskID,
		"phase", key.Phase,
		"job_id", jobID)

	go s.run(ctx, loop, jobID)
}

// stopLoopLocked cancels and forgets the loop for the key. Callers hold
// s.mu.
func (s *PollScheduler) stopLoopLocked(key PollKey) {
	loop, ok := s.loops[key]
	if !ok {
		return
	}

	loop.cancel()
	delete(s.loops, key)

	s.logger.Debug("stopped poll loop", "task_id", key.TaskID, "phase", key.Phase)
}

// forgetLoop removes the loop entry after it resolves on its own. The
// entry may already have been replaced by a newer loop for the same
// key; only the exact loop is removed.
func (s *PollScheduler) forgetLoop(loop *pollLoop) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.loops[loop.key]; ok && current == loop {
		current.cancel()
		delete(s.loops, loop.key)
	}
}

// run is the polling state machine for one key. Each iteration checks
// the wall-clock stuck timeout, queries the remote status accessor, and
// either resolves the task or re-arms the timer for the next attempt.
func (s *PollScheduler) run(ctx context.Context, loop *pollLoop, jobID string) {
	defer close(loop.done)
	defer s.forgetLoop(loop)

	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		// The stuck check runs independently of remote status: a remote
		// job that reports "pending" forever still resolves here.
		if time.Since(loop.startedAt) > s.config.StuckTimeout {
			s.failTask(ctx, loop.key, ReasonTimedOut,
				fmt.Sprintf("%s did not finish within %s", loop.key.Phase, s.config.StuckTimeout))
			return
		}

		done := s.pollOnce(ctx, loop.key, jobID, attempts)

		// A response that lands after cancellation must not be applied.
		if ctx.Err() != nil {
			return
		}
		if done {
			return
		}

		attempts++
		if attempts >= s.config.MaxAttempts {
			s.failTask(ctx, loop.key, ReasonAttemptsExhausted,
				fmt.Sprintf("%s still not finished after %d status checks", loop.key.Phase, attempts))
			return
		}

		timer.Reset(s.config.Interval)
	}
}

// pollOnce performs a single status check. It returns true when the
// loop is resolved (terminal outcome applied) and false when the loop
// should re-arm for another attempt. Transport errors are transient:
// they are logged and count against the attempt budget only.
func (s *PollScheduler) pollOnce(ctx context.Context, key PollKey, jobID string, attempt int) bool {
	switch key.Phase {
	case PhaseSearch:
		return s.pollSearch(ctx, key, jobID, attempt)
	case PhaseImport:
		return s.pollImport(ctx, key, jobID, attempt)
	default:
		s.logger.Error("unknown poll phase", "task_id", key.TaskID, "phase", key.Phase)
		return true
	}
}

func (s *PollScheduler) pollSearch(ctx context.Context, key PollKey, jobID string, attempt int) bool {
	status, err := s.backend.SearchJobStatus(ctx, jobID)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		s.logger.Debug("search status check failed, will retry",
			"task_id", key.TaskID, "job_id", jobID, "attempt", attempt, "error", err)
		return false
	}

	switch status.Status {
	case JobStatusCompleted:
		s.completeSearch(ctx, key)
		return true
	case JobStatusFailed:
		msg := status.ErrorMessage
		if msg == "" {
			msg = "search job failed"
		}
		s.failTask(ctx, key, ReasonRemoteFailed, msg)
		return true
	default:
		return false
	}
}

func (s *PollScheduler) pollImport(ctx context.Context, key PollKey, jobID string, attempt int) bool {
	status, err := s.backend.ImportJobStatus(ctx, jobID)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		s.logger.Debug("import status check failed, will retry",
			"task_id", key.TaskID, "job_id", jobID, "attempt", attempt, "error", err)
		return false
	}

	switch status.Status {
	case JobStatusCompleted:
		s.completeImport(ctx, key, status)
		return true
	case JobStatusFailed:
		msg := status.ErrorMessage
		if msg == "" {
			msg = "import job failed"
		}
		s.failTask(ctx, key, ReasonRemoteFailed, msg)
		return true
	default:
		s.applyImportProgress(ctx, key, status.Progress)
		return false
	}
}

// applyImportProgress records interim import progress, clamped to the
// in-flight ceiling and kept monotonically non-decreasing within the
// phase.
func (s *PollScheduler) applyImportProgress(ctx context.Context, key PollKey, progress int) {
	if progress < 0 {
		return
	}
	if progress > importProgressCeiling {
		progress = importProgressCeiling
	}

	updated, ok := s.store.UpdateTask(ctx, key.TaskID, func(t *domain.ImportTask) {
		if progress > t.ImportProgress {
			t.ImportProgress = progress
		}
	})
	if !ok {
		return
	}

	s.notifyUpdate(ctx, updated)
}

// completeSearch resolves a search loop whose remote job reported
// completion: it materializes the result set via the product lookup,
// marks the task completed, and archives it. A lookup failure fails the
// task instead of leaving it silently stuck, since there is no further
// polling opportunity to retry it.
func (s *PollScheduler) completeSearch(ctx context.Context, key PollKey) {
	current, ok := s.store.GetTask(ctx, key.TaskID)
	if !ok {
		s.logger.Warn("search completed for unknown task", "task_id", key.TaskID)
		return
	}

	products, err := s.backend.ProductsByBrand(ctx, current.BrandID, searchProductStatus, current.Limit)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.failTask(ctx, key, ReasonLookupFailed,
			fmt.Sprintf("search finished but loading results failed: %v", err))
		return
	}

	updated, ok := s.store.UpdateTask(ctx, key.TaskID, func(t *domain.ImportTask) {
		t.Status = domain.TaskStatusCompleted
		t.Progress = 100
		t.SearchResults = products
		t.ErrorMessage = ""
	})
	if !ok {
		return
	}

	s.store.SaveToHistory(ctx, updated)

	message := fmt.Sprintf("Found %d products for %s", len(products), updated.BrandName)
	s.notifyComplete(ctx, updated, message)
	s.scheduleRemoval(key.TaskID)
}

// completeImport resolves an import loop whose remote job reported
// completion. Progress jumps to 100 only here, never from an interim
// report.
func (s *PollScheduler) completeImport(ctx context.Context, key PollKey, status *ImportStatus) {
	updated, ok := s.store.UpdateTask(ctx, key.TaskID, func(t *domain.ImportTask) {
		t.Status = domain.TaskStatusCompleted
		t.ImportProgress = 100
		t.ErrorMessage = ""
	})
	if !ok {
		s.logger.Warn("import completed for unknown task", "task_id", key.TaskID)
		return
	}

	s.store.SaveToHistory(ctx, updated)

	message := fmt.Sprintf("Import finished: %d successful, %d failed", status.Success, status.Failed)
	s.notifyComplete(ctx, updated, message)
	s.scheduleRemoval(key.TaskID)
}

// failTask applies a terminal failed transition for the key's task,
// archives it, and notifies callers. Timed-out and attempts-exhausted
// resolutions share this path with remote-reported failures; the typed
// reason is the only distinction.
func (s *PollScheduler) failTask(ctx context.Context, key PollKey, reason FailureReason, message string) {
	updated, ok := s.store.UpdateTask(ctx, key.TaskID, func(t *domain.ImportTask) {
		t.Status = domain.TaskStatusFailed
		t.ErrorMessage = message
	})
	if !ok {
		s.logger.Warn("failure for unknown task",
			"task_id", key.TaskID, "phase", key.Phase, "reason", reason)
		return
	}

	s.logger.Info("task failed",
		"task_id", key.TaskID,
		"phase", key.Phase,
		"reason", reason,
		"message", message)

	s.store.SaveToHistory(ctx, updated)
	s.notifyFailed(ctx, updated, reason, message)
	s.scheduleRemoval(key.TaskID)
}

// scheduleRemoval removes the task from the active snapshot after the
// linger window, so its terminal status stays observable briefly. The
// history write has already happened by the time this is armed.
func (s *PollScheduler) scheduleRemoval(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.removals[id]; ok {
		timer.Stop()
	}

	s.removals[id] = time.AfterFunc(s.config.TerminalLinger, func() {
		s.store.RemoveTask(context.Background(), id)

		s.mu.Lock()
		delete(s.removals, id)
		s.mu.Unlock()
	})
}

func (s *PollScheduler) notifyUpdate(ctx context.Context, task *domain.ImportTask) {
	if s.callbacks.OnTaskUpdate != nil {
		s.callbacks.OnTaskUpdate(task.ID, task)
	}
	s.emit(ctx, events.EventTaskUpdated, task.ID, task)
}

func (s *PollScheduler) notifyComplete(ctx context.Context, task *domain.ImportTask, message string) {
	if s.callbacks.OnTaskComplete != nil {
		s.callbacks.OnTaskComplete(task.ID, message)
	}
	s.emit(ctx, events.EventTaskCompleted, task.ID, map[string]string{"message": message})
	s.emit(ctx, events.EventNotice, task.ID, message)
}

func (s *PollScheduler) notifyFailed(ctx context.Context, task *domain.ImportTask, reason FailureReason, message string) {
	if s.callbacks.OnTaskFailed != nil {
		s.callbacks.OnTaskFailed(task.ID, reason, message)
	}
	s.emit(ctx, events.EventTaskFailed, task.ID, map[string]string{
		"reason":  string(reason),
		"message": message,
	})
	s.emit(ctx, events.EventNotice, task.ID, message)
}

func (s *PollScheduler) emit(ctx context.Context, eventType string, taskID uuid.UUID, payload interface{}) {
	if s.emitter == nil {
		return
	}

	event, err := events.NewTaskEvent(eventType, taskID, payload)
	if err != nil {
		s.logger.Error("failed to build event", "event_type", eventType, "error", err)
		return
	}

	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit event", "event_type", eventType, "error", err)
	}
}
