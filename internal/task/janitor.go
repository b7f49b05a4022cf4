package task

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Janitor periodically runs the store's cleanup pass on a cron
// schedule. The store itself enforces the cleanup interval gate, so the
// schedule only controls how often the gate is checked.
type Janitor struct {
	store    *Store
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJanitor creates a Janitor that checks the cleanup gate on the
// given cron schedule (e.g. "@hourly").
func NewJanitor(store *Store, schedule string, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:    store,
		schedule: schedule,
		logger:   logger.With("component", "task_janitor"),
	}
}

// Start registers the cleanup job and starts the cron runner.
func (j *Janitor) Start() error {
	c := cron.New()

	_, err := c.AddFunc(j.schedule, func() {
		evicted := j.store.CleanupOldTasks(context.Background())
		if evicted > 0 {
			j.logger.Info("cleanup evicted stale tasks", "evicted_count", evicted)
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	j.cron = c

	j.logger.Info("task janitor started", "schedule", j.schedule)
	return nil
}

// Stop halts the cron runner. A janitor that was never started is a
// no-op.
func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}
