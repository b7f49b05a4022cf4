package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandsync/brandsync-api/internal/domain"
	"github.com/brandsync/brandsync-api/internal/store"
)

// StoreConfig holds tuning knobs for the task store.
type StoreConfig struct {
	// HistoryLimit caps the history log; inserting beyond it evicts the
	// oldest entries. If zero, defaults to 50.
	HistoryLimit int

	// CleanupInterval gates CleanupOldTasks: it is a no-op unless this
	// much time has passed since the last cleanup. If zero, defaults to 24h.
	CleanupInterval time.Duration

	// StaleAge is how long a live task may go without updates before
	// cleanup considers its session gone. If zero, defaults to 6h.
	StaleAge time.Duration
}

// DefaultStoreConfig returns a StoreConfig with the default limits.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		HistoryLimit:    50,
		CleanupInterval: 24 * time.Hour,
		StaleAge:        6 * time.Hour,
	}
}

// snapshotDoc is the persisted active-task snapshot: the full current
// set of live records written as one document.
type snapshotDoc struct {
	Tasks   []*domain.ImportTask `json:"tasks"`
	SavedAt time.Time            `json:"saved_at"`
}

// historyDoc is the persisted bounded history log.
type historyDoc struct {
	Tasks       []*domain.ImportTask `json:"tasks"`
	LastCleanup time.Time            `json:"last_cleanup"`
}

// Store provides crash-safe durable storage for the active-task
// snapshot and the bounded history log on top of a synchronous
// key-value document store.
//
// Persistence failures never propagate: reads degrade to empty
// collections and writes to logged no-ops, so a failing store can slow
// the scheduler down but never crash it. The load helpers return
// explicit errors; the public methods map those errors to empty
// defaults.
//
// Read-modify-write sequences are serialized by an internal mutex, so
// concurrent poll loops within one process cannot race on the snapshot.
// Writers in other processes are not coordinated: the last writer wins.
type Store struct {
	kv     store.KV
	config StoreConfig
	logger *slog.Logger

	mu sync.Mutex

	// now is stubbed in tests to control cleanup clock judgments.
	now func() time.Time
}

// NewStore creates a task Store over the given key-value store.
func NewStore(kv store.KV, config StoreConfig, logger *slog.Logger) *Store {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 24 * time.Hour
	}
	if config.StaleAge <= 0 {
		config.StaleAge = 6 * time.Hour
	}

	return &Store{
		kv:     kv,
		config: config,
		logger: logger.With("component", "task_store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SaveTasks overwrites the entire active-task snapshot. Records without
// a LastUpdated value are stamped at write time.
func (s *Store) SaveTasks(ctx context.Context, tasks []*domain.ImportTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveSnapshotLocked(ctx, tasks)
}

// LoadTasks returns the active-task snapshot. A missing or unreadable
// snapshot yields an empty slice, never an error: the decision to treat
// corruption as empty is made here, not hidden in the read path.
func (s *Store) LoadTasks(ctx context.Context) []*domain.ImportTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadSnapshot(ctx)
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.logger.Warn("active snapshot unreadable, treating as empty", "error", err)
		}
		return []*domain.ImportTask{}
	}

	return doc.Tasks
}

// GetTask returns the task with the given id from the active snapshot.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*domain.ImportTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, false
	}

	for _, t := range doc.Tasks {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return nil, false
}

// AddTask inserts the task into the active snapshot, replacing any
// prior record with the same id.
func (s *Store) AddTask(ctx context.Context, task *domain.ImportTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadSnapshot(ctx)
	if err != nil {
		doc = snapshotDoc{}
	}

	tasks := make([]*domain.ImportTask, 0, len(doc.Tasks)+1)
	for _, t := range doc.Tasks {
		if t.ID != task.ID {
			tasks = append(tasks, t)
		}
	}
	tasks = append(tasks, task.Clone())

	s.saveSnapshotLocked(ctx, tasks)
}

// UpdateTask applies a partial update to the task with the given id and
// refreshes its LastUpdated timestamp. Returns the updated record, or
// false if the task is not in the active snapshot.
func (s *Store) UpdateTask(ctx context.Context, id uuid.UUID, mutate func(*domain.ImportTask)) (*domain.ImportTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, false
	}

	for _, t := range doc.Tasks {
		if t.ID != id {
			continue
		}

		mutate(t)
		t.LastUpdated = s.now()
		s.saveSnapshotLocked(ctx, doc.Tasks)
		return t.Clone(), true
	}

	return nil, false
}

// RemoveTask deletes the task with the given id from the active
// snapshot. Removing an unknown id is a no-op.
func (s *Store) RemoveTask(ctx context.Context, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadSnapshot(ctx)
	if err != nil {
		return
	}

	tasks := make([]*domain.ImportTask, 0, len(doc.Tasks))
	removed := false
	for _, t := range doc.Tasks {
		if t.ID == id {
			removed = true
			continue
		}
		tasks = append(tasks, t)
	}

	if removed {
		s.saveSnapshotLocked(ctx, tasks)
	}
}

// SaveToHistory upserts the task into the history log by id, newest
// first, and truncates to the configured capacity. LastCleanup is not
// touched here; only CleanupOldTasks advances it.
func (s *Store) SaveToHistory(ctx context.Context, task *domain.ImportTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadHistory(ctx)
	if err != nil {
		doc = historyDoc{}
	}

	doc.Tasks = upsertHistory(doc.Tasks, task.Clone(), s.config.HistoryLimit)
	s.saveHistoryLocked(ctx, doc)
}

// LoadHistory returns the archived tasks (newest first) and the time of
// the last cleanup run. Missing or unreadable history yields empty
// values, same contract as LoadTasks.
func (s *Store) LoadHistory(ctx context.Context) ([]*domain.ImportTask, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadHistory(ctx)
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.logger.Warn("history unreadable, treating as empty", "error", err)
		}
		return []*domain.ImportTask{}, time.Time{}
	}

	return doc.Tasks, doc.LastCleanup
}

// CleanupOldTasks evicts live tasks from the active snapshot whose last
// update is older than the stale threshold, archiving their last-known
// state to history. It is a no-op unless a full cleanup interval has
// elapsed since the previous run. This is a best-effort leak guard for
// sessions that disappeared mid-task, not a correctness mechanism.
// Returns the number of evicted tasks.
func (s *Store) CleanupOldTasks(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	history, err := s.loadHistory(ctx)
	if err != nil {
		history = historyDoc{}
	}
	if !history.LastCleanup.IsZero() && now.Sub(history.LastCleanup) < s.config.CleanupInterval {
		return 0
	}

	snapshot, err := s.loadSnapshot(ctx)
	if err != nil {
		snapshot = snapshotDoc{}
	}

	kept := make([]*domain.ImportTask, 0, len(snapshot.Tasks))
	evicted := 0
	for _, t := range snapshot.Tasks {
		if t.IsLive() && t.Age(now) > s.config.StaleAge {
			s.logger.Info("evicting stale live task",
				"task_id", t.ID,
				"status", t.Status,
				"age", t.Age(now).String())

			history.Tasks = upsertHistory(history.Tasks, t.Clone(), s.config.HistoryLimit)
			evicted++
			continue
		}
		kept = append(kept, t)
	}

	if evicted > 0 {
		s.saveSnapshotLocked(ctx, kept)
	}

	history.LastCleanup = now
	s.saveHistoryLocked(ctx, history)

	return evicted
}

// ClearAll erases both the snapshot and the history. Used only for
// operator-triggered recovery, never by normal flow.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, store.KeyActiveTasks); err != nil {
		s.logger.Error("failed to clear active snapshot", "error", err)
	}
	if err := s.kv.Delete(ctx, store.KeyTaskHistory); err != nil {
		s.logger.Error("failed to clear history", "error", err)
	}
}

// loadSnapshot reads and decodes the active snapshot document. Callers
// hold s.mu.
func (s *Store) loadSnapshot(ctx context.Context) (snapshotDoc, error) {
	raw, err := s.kv.Get(ctx, store.KeyActiveTasks)
	if err != nil {
		return snapshotDoc{}, err
	}

	var doc snapshotDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return snapshotDoc{}, fmt.Errorf("%w: %v", store.ErrCorruptDocument, err)
	}
	if doc.Tasks == nil {
		doc.Tasks = []*domain.ImportTask{}
	}

	return doc, nil
}

// saveSnapshotLocked encodes and writes the active snapshot. Records
// without a LastUpdated value are stamped now. Callers hold s.mu.
func (s *Store) saveSnapshotLocked(ctx context.Context, tasks []*domain.ImportTask) {
	now := s.now()
	for _, t := range tasks {
		if t.LastUpdated.IsZero() {
			t.LastUpdated = now
		}
	}

	doc := snapshotDoc{Tasks: tasks, SavedAt: now}
	raw, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("failed to encode active snapshot", "error", err, "task_count", len(tasks))
		return
	}

	if err := s.kv.Set(ctx, store.KeyActiveTasks, raw); err != nil {
		s.logger.Error("failed to persist active snapshot", "error", err, "task_count", len(tasks))
	}
}

// loadHistory reads and decodes the history document. Callers hold s.mu.
func (s *Store) loadHistory(ctx context.Context) (historyDoc, error) {
	raw, err := s.kv.Get(ctx, store.KeyTaskHistory)
	if err != nil {
		return historyDoc{}, err
	}

	var doc historyDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return historyDoc{}, fmt.Errorf("%w: %v", store.ErrCorruptDocument, err)
	}
	if doc.Tasks == nil {
		doc.Tasks = []*domain.ImportTask{}
	}

	return doc, nil
}

// saveHistoryLocked encodes and writes the history document. Callers
// hold s.mu.
func (s *Store) saveHistoryLocked(ctx context.Context, doc historyDoc) {
	raw, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("failed to encode history", "error", err, "task_count", len(doc.Tasks))
		return
	}

	if err := s.kv.Set(ctx, store.KeyTaskHistory, raw); err != nil {
		s.logger.Error("failed to persist history", "error", err, "task_count", len(doc.Tasks))
	}
}

// upsertHistory inserts the task at the front of the history sequence,
// removing any prior entry with the same id and truncating to limit.
func upsertHistory(tasks []*domain.ImportTask, task *domain.ImportTask, limit int) []*domain.ImportTask {
	result := make([]*domain.ImportTask, 0, len(tasks)+1)
	result = append(result, task)
	for _, t := range tasks {
		if t.ID != task.ID {
			result = append(result, t)
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}
