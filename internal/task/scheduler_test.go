package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandsync/brandsync-api/internal/domain"
)

// fastConfig returns a scheduler config with short timers so loop
// behavior can be observed within test timeouts.
func fastConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:       5 * time.Millisecond,
		MaxAttempts:    300,
		StuckTimeout:   10 * time.Minute,
		TerminalLinger: time.Hour,
	}
}

// failureRecorder collects OnTaskFailed invocations.
type failureRecorder struct {
	mu       sync.Mutex
	failures []recordedFailure
	notify   chan struct{}
}

type recordedFailure struct {
	id      uuid.UUID
	reason  FailureReason
	message string
}

func newFailureRecorder() *failureRecorder {
	return &failureRecorder{notify: make(chan struct{}, 16)}
}

func (r *failureRecorder) callback() func(uuid.UUID, FailureReason, string) {
	return func(id uuid.UUID, reason FailureReason, message string) {
		r.mu.Lock()
		r.failures = append(r.failures, recordedFailure{id: id, reason: reason, message: message})
		r.mu.Unlock()
		r.notify <- struct{}{}
	}
}

func (r *failureRecorder) wait(t *testing.T) recordedFailure {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnTaskFailed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[len(r.failures)-1]
}

func newLiveTask(t *testing.T, s *Store) *domain.ImportTask {
	t.Helper()
	task := makeTask(t, "Canada Pet Care")
	task.SearchJobID = "search-job-1"
	s.AddTask(context.Background(), task)
	return task
}

func TestPollScheduler_StartValidation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	sched := NewPollScheduler(s, NewMockBackend(), nil, Callbacks{}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	t.Run("search polling requires a search job ID", func(t *testing.T) {
		task := makeTask(t, "Brand One")
		sched.StartSearchPolling(task)
		assert.Zero(t, sched.ActivePollCount())
	})

	t.Run("import polling requires an import job ID", func(t *testing.T) {
		task := makeTask(t, "Brand One")
		sched.StartImportPolling(task)
		assert.Zero(t, sched.ActivePollCount())
	})
}

func TestPollScheduler_AtMostOneLoopPerKey(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()

	var mu sync.Mutex
	polledJobs := []string{}
	backend.SearchStatusFn = func(ctx context.Context, jobID string) (*SearchStatus, error) {
		mu.Lock()
		polledJobs = append(polledJobs, jobID)
		mu.Unlock()
		return &SearchStatus{Status: JobStatusPending}, nil
	}

	sched := NewPollScheduler(s, backend, nil, Callbacks{}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	task := newLiveTask(t, s)
	sched.StartSearchPolling(task)
	require.Equal(t, 1, sched.ActivePollCount())

	// Re-arming the same key replaces the old loop rather than adding
	// a second one.
	task.SearchJobID = "search-job-2"
	sched.StartSearchPolling(task)
	assert.Equal(t, 1, sched.ActivePollCount())

	// After the swap the old loop must stop issuing checks: wait for a
	// few new-job polls, then verify the tail is new-job only.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		count := 0
		for _, job := range polledJobs {
			if job == "search-job-2" {
				count++
			}
		}
		return count >= 3
	}, 5*time.Second, time.Millisecond)

	mu.Lock()
	tail := append([]string(nil), polledJobs[len(polledJobs)-2:]...)
	mu.Unlock()
	for _, job := range tail {
		assert.Equal(t, "search-job-2", job)
	}

	// Different phases are independent keys.
	task.ImportJobID = "import-job-1"
	sched.StartImportPolling(task)
	assert.Equal(t, 2, sched.ActivePollCount())
}

func TestPollScheduler_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	sched := NewPollScheduler(s, NewMockBackend(), nil, Callbacks{}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	// Cancelling loops that do not exist is a no-op.
	sched.StopPolling(PollKey{TaskID: uuid.New(), Phase: PhaseSearch})
	sched.StopTaskPolling(uuid.New())
	sched.StopAllPolling()

	task := newLiveTask(t, s)
	sched.StartSearchPolling(task)
	require.Equal(t, 1, sched.ActivePollCount())

	sched.StopTaskPolling(task.ID)
	assert.Zero(t, sched.ActivePollCount())
	sched.StopTaskPolling(task.ID)
	assert.Zero(t, sched.ActivePollCount())
}

func TestPollScheduler_AttemptsExhausted(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()
	backend.ScriptSearch(&SearchStatus{Status: JobStatusPending}, nil)

	failures := newFailureRecorder()
	cfg := fastConfig()
	cfg.MaxAttempts = 3

	sched := NewPollScheduler(s, backend, nil, Callbacks{OnTaskFailed: failures.callback()}, cfg, testLogger())
	defer sched.StopAllPolling()

	task := newLiveTask(t, s)
	sched.StartSearchPolling(task)

	failure := failures.wait(t)
	assert.Equal(t, task.ID, failure.id)
	assert.Equal(t, ReasonAttemptsExhausted, failure.reason)
	assert.Contains(t, failure.message, "3 status checks")

	// The loop stopped scheduling further attempts.
	require.Eventually(t, func() bool { return sched.ActivePollCount() == 0 }, 5*time.Second, time.Millisecond)
	calls := backend.SearchCalls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, backend.SearchCalls())

	stored, ok := s.GetTask(context.Background(), task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)

	history, _ := s.LoadHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, task.ID, history[0].ID)
}

func TestPollScheduler_TransientErrorsCountAgainstBudget(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()
	backend.ScriptSearch(nil, errors.New("connection reset"))
	backend.ScriptSearch(nil, errors.New("connection reset"))
	backend.ScriptSearch(&SearchStatus{Status: JobStatusCompleted}, nil)
	backend.ProductsFn = func(ctx context.Context, brandID, status string, limit int) ([]domain.ProductSummary, error) {
		return []domain.ProductSummary{{SourceProductID: "p1"}}, nil
	}

	completed := make(chan string, 1)
	sched := NewPollScheduler(s, backend, nil, Callbacks{
		OnTaskComplete: func(id uuid.UUID, message string) { completed <- message },
	}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	task := newLiveTask(t, s)
	sched.StartSearchPolling(task)

	// Two transient errors must not fail the task; the third attempt
	// succeeds.
	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not complete after transient errors")
	}

	stored, ok := s.GetTask(context.Background(), task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
}

func TestPollScheduler_StuckTimeout(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()
	// The remote reports pending forever; the wall-clock check must
	// still resolve the loop.
	backend.ScriptSearch(&SearchStatus{Status: JobStatusPending}, nil)

	failures := newFailureRecorder()
	cfg := fastConfig()
	cfg.StuckTimeout = 25 * time.Millisecond

	sched := NewPollScheduler(s, backend, nil, Callbacks{OnTaskFailed: failures.callback()}, cfg, testLogger())
	defer sched.StopAllPolling()

	task := newLiveTask(t, s)
	sched.StartSearchPolling(task)

	failure := failures.wait(t)
	assert.Equal(t, ReasonTimedOut, failure.reason)

	stored, ok := s.GetTask(context.Background(), task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
}

func TestPollScheduler_SearchScenario(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()
	backend.ScriptSearch(&SearchStatus{Status: JobStatusPending}, nil)
	backend.ScriptSearch(&SearchStatus{Status: JobStatusPending}, nil)
	backend.ScriptSearch(&SearchStatus{Status: JobStatusPending}, nil)
	backend.ScriptSearch(&SearchStatus{Status: JobStatusCompleted}, nil)

	backend.ProductsFn = func(ctx context.Context, brandID, status string, limit int) ([]domain.ProductSummary, error) {
		assert.Equal(t, "brand-1", brandID)
		assert.Equal(t, "draft", status)
		assert.Equal(t, 50, limit)

		products := make([]domain.ProductSummary, 37)
		for i := range products {
			products[i] = domain.ProductSummary{SourceProductID: fmt.Sprintf("p%d", i)}
		}
		return products, nil
	}

	completed := make(chan string, 1)
	sched := NewPollScheduler(s, backend, nil, Callbacks{
		OnTaskComplete: func(id uuid.UUID, message string) { completed <- message },
	}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	task := newLiveTask(t, s)
	sched.StartSearchPolling(task)

	var message string
	select {
	case message = <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("search did not complete")
	}
	assert.Contains(t, message, "37 products")

	stored, ok := s.GetTask(context.Background(), task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Len(t, stored.SearchResults, 37)

	history, _ := s.LoadHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, task.ID, history[0].ID)
	assert.Equal(t, domain.TaskStatusCompleted, history[0].Status)
}

func TestPollScheduler_SearchLookupFailure(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()
	backend.ScriptSearch(&SearchStatus{Status: JobStatusCompleted}, nil)
	backend.ProductsFn = func(ctx context.Context, brandID, status string, limit int) ([]domain.ProductSummary, error) {
		return nil, errors.New("backend unavailable")
	}

	failures := newFailureRecorder()
	sched := NewPollScheduler(s, backend, nil, Callbacks{OnTaskFailed: failures.callback()}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	task := newLiveTask(t, s)
	sched.StartSearchPolling(task)

	failure := failures.wait(t)
	assert.Equal(t, ReasonLookupFailed, failure.reason)
	assert.Contains(t, failure.message, "backend unavailable")

	stored, ok := s.GetTask(context.Background(), task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
}

func TestPollScheduler_ImportScenario(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()
	backend.ScriptImport(&ImportStatus{Status: JobStatusRunning, Progress: 40}, nil)
	backend.ScriptImport(&ImportStatus{Status: JobStatusCompleted, Success: 8, Failed: 2}, nil)

	var mu sync.Mutex
	progressSeen := []int{}
	completed := make(chan string, 1)

	sched := NewPollScheduler(s, backend, nil, Callbacks{
		OnTaskUpdate: func(id uuid.UUID, task *domain.ImportTask) {
			mu.Lock()
			progressSeen = append(progressSeen, task.ImportProgress)
			mu.Unlock()
		},
		OnTaskComplete: func(id uuid.UUID, message string) { completed <- message },
	}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	task := makeTask(t, "Dreo")
	require.NoError(t, task.UpdateStatus(domain.TaskStatusImporting))
	task.ImportJobID = "job-9"
	s.AddTask(context.Background(), task)

	sched.StartImportPolling(task)

	var message string
	select {
	case message = <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("import did not complete")
	}
	assert.Contains(t, message, "8 successful, 2 failed")

	mu.Lock()
	require.NotEmpty(t, progressSeen)
	assert.Equal(t, 40, progressSeen[0])
	mu.Unlock()

	stored, ok := s.GetTask(context.Background(), task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.ImportProgress)
}

func TestPollScheduler_ImportProgressClamp(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()
	backend.ScriptImport(&ImportStatus{Status: JobStatusRunning, Progress: 99}, nil)

	progress := make(chan int, 16)
	sched := NewPollScheduler(s, backend, nil, Callbacks{
		OnTaskUpdate: func(id uuid.UUID, task *domain.ImportTask) {
			progress <- task.ImportProgress
		},
	}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	task := makeTask(t, "Dreo")
	require.NoError(t, task.UpdateStatus(domain.TaskStatusImporting))
	task.ImportJobID = "job-9"
	s.AddTask(context.Background(), task)

	sched.StartImportPolling(task)

	select {
	case p := <-progress:
		// While polling is in flight, observed progress is capped below
		// 100 so the task never looks done prematurely.
		assert.Equal(t, 95, p)
	case <-time.After(5 * time.Second):
		t.Fatal("no progress update observed")
	}
}

func TestPollScheduler_RemoteFailure(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()
	backend.ScriptImport(&ImportStatus{Status: JobStatusFailed, ErrorMessage: "quota exceeded"}, nil)

	failures := newFailureRecorder()
	sched := NewPollScheduler(s, backend, nil, Callbacks{OnTaskFailed: failures.callback()}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	task := makeTask(t, "Dreo")
	require.NoError(t, task.UpdateStatus(domain.TaskStatusImporting))
	task.ImportJobID = "job-9"
	s.AddTask(context.Background(), task)

	sched.StartImportPolling(task)

	failure := failures.wait(t)
	assert.Equal(t, ReasonRemoteFailed, failure.reason)
	assert.Equal(t, "quota exceeded", failure.message)
}

func TestPollScheduler_ResumePolling(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	sched := NewPollScheduler(s, NewMockBackend(), nil, Callbacks{}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	fresh := makeTask(t, "Fresh Brand")
	fresh.SearchJobID = "job-fresh"
	fresh.LastUpdated = time.Now().UTC().Add(-time.Minute)

	stale := makeTask(t, "Stale Brand")
	stale.SearchJobID = "job-stale"
	stale.LastUpdated = time.Now().UTC().Add(-15 * time.Minute)

	importing := makeTask(t, "Importing Brand")
	require.NoError(t, importing.UpdateStatus(domain.TaskStatusImporting))
	importing.ImportJobID = "job-import"
	importing.LastUpdated = time.Now().UTC().Add(-time.Minute)

	noJob := makeTask(t, "No Job Brand")
	noJob.LastUpdated = time.Now().UTC().Add(-time.Minute)

	terminal := makeTask(t, "Done Brand")
	require.NoError(t, terminal.UpdateStatus(domain.TaskStatusCompleted))
	terminal.SearchJobID = "job-done"
	terminal.LastUpdated = time.Now().UTC()

	tasks := []*domain.ImportTask{fresh, stale, importing, noJob, terminal}
	s.SaveTasks(context.Background(), tasks)

	sched.ResumePolling(tasks)

	// Only the fresh searching task and the fresh importing task get
	// loops; the stale one is left inert.
	assert.Equal(t, 2, sched.ActivePollCount())

	keys := sched.ActiveKeys()
	assert.Contains(t, keys, PollKey{TaskID: fresh.ID, Phase: PhaseSearch})
	assert.Contains(t, keys, PollKey{TaskID: importing.ID, Phase: PhaseImport})
}

func TestPollScheduler_ResumePurgesTerminalRecords(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	sched := NewPollScheduler(s, NewMockBackend(), nil, Callbacks{}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	// A restart inside the removal linger window leaves terminal records
	// in the snapshot with no timer to evict them.
	completed := makeTask(t, "Done Brand")
	require.NoError(t, completed.UpdateStatus(domain.TaskStatusCompleted))
	completed.SearchJobID = "job-done"

	failed := makeTask(t, "Failed Brand")
	require.NoError(t, failed.UpdateStatus(domain.TaskStatusFailed))
	failed.LastUpdated = time.Now().UTC().Add(-time.Hour)

	live := makeTask(t, "Live Brand")
	live.SearchJobID = "job-live"
	live.LastUpdated = time.Now().UTC().Add(-time.Minute)

	tasks := []*domain.ImportTask{completed, failed, live}
	s.SaveTasks(context.Background(), tasks)

	sched.ResumePolling(tasks)

	// Terminal records leave the active set regardless of age; the live
	// one keeps its loop.
	remaining := s.LoadTasks(context.Background())
	require.Len(t, remaining, 1)
	assert.Equal(t, live.ID, remaining[0].ID)
	assert.Equal(t, 1, sched.ActivePollCount())

	// Their final state stays observable through history.
	history, _ := s.LoadHistory(context.Background())
	ids := make([]uuid.UUID, 0, len(history))
	for _, h := range history {
		ids = append(ids, h.ID)
	}
	assert.Contains(t, ids, completed.ID)
	assert.Contains(t, ids, failed.ID)
}

func TestPollScheduler_LateResponseDiscarded(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()

	inFlight := make(chan struct{})
	release := make(chan struct{})
	backend.SearchStatusFn = func(ctx context.Context, jobID string) (*SearchStatus, error) {
		close(inFlight)
		<-release
		return &SearchStatus{Status: JobStatusCompleted}, nil
	}

	completed := make(chan string, 1)
	sched := NewPollScheduler(s, backend, nil, Callbacks{
		OnTaskComplete: func(id uuid.UUID, message string) { completed <- message },
	}, fastConfig(), testLogger())
	defer sched.StopAllPolling()

	task := newLiveTask(t, s)
	sched.StartSearchPolling(task)

	// Cancel while the remote request is in flight, then let the
	// response land. It must be discarded, not applied.
	<-inFlight
	sched.StopTaskPolling(task.ID)
	close(release)

	select {
	case <-completed:
		t.Fatal("late response was applied after cancellation")
	case <-time.After(50 * time.Millisecond):
	}

	stored, ok := s.GetTask(context.Background(), task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusSearching, stored.Status)
}

func TestPollScheduler_TerminalLingerRemoval(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, NewMockKV())
	backend := NewMockBackend()
	backend.ScriptSearch(&SearchStatus{Status: JobStatusCompleted}, nil)

	cfg := fastConfig()
	cfg.TerminalLinger = 150 * time.Millisecond

	completed := make(chan string, 1)
	sched := NewPollScheduler(s, backend, nil, Callbacks{
		OnTaskComplete: func(id uuid.UUID, message string) { completed <- message },
	}, cfg, testLogger())
	defer sched.StopAllPolling()

	task := newLiveTask(t, s)
	sched.StartSearchPolling(task)

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("search did not complete")
	}

	// The terminal record stays visible briefly, then disappears from
	// the active set while remaining in history.
	_, visible := s.GetTask(context.Background(), task.ID)
	assert.True(t, visible)

	require.Eventually(t, func() bool {
		_, ok := s.GetTask(context.Background(), task.ID)
		return !ok
	}, 5*time.Second, 5*time.Millisecond)

	history, _ := s.LoadHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, task.ID, history[0].ID)
}
