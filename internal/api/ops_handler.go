package api

import (
	"log/slog"
	"net/http"

	"github.com/brandsync/brandsync-api/internal/api/shared"
	"github.com/brandsync/brandsync-api/internal/task"
)

// PollingResponse reports the scheduler's active loop count.
type PollingResponse struct {
	ActivePollCount int `json:"active_poll_count"`
}

// RecoveredResponse reports how many records a remediation pass touched.
type RecoveredResponse struct {
	Recovered int `json:"recovered"`
}

// CleanedResponse reports how many orphaned records were removed.
type CleanedResponse struct {
	Cleaned int `json:"cleaned"`
}

// OpsHandler exposes operational endpoints: polling introspection and
// the stuck-task recovery boundary. The recovery coordinator is
// optional; endpoints that need it respond 503 when none is wired.
type OpsHandler struct {
	poller   TaskPoller
	recovery task.RecoveryCoordinator
	logger   *slog.Logger
}

// NewOpsHandler creates a new OpsHandler. recovery may be nil.
func NewOpsHandler(poller TaskPoller, recovery task.RecoveryCoordinator, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{
		poller:   poller,
		recovery: recovery,
		logger:   logger.With("component", "ops_handler"),
	}
}

// GetPolling handles GET /api/ops/polling.
func (h *OpsHandler) GetPolling(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, PollingResponse{
		ActivePollCount: h.poller.ActivePollCount(),
	})
}

// GetRecoveryStats handles GET /api/ops/recovery/stats.
func (h *OpsHandler) GetRecoveryStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireRecovery(w, r) {
		return
	}

	stats, err := h.recovery.GetRecoveryStats(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to collect recovery stats", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// RecoverStuckTasks handles POST /api/ops/recovery/stuck.
func (h *OpsHandler) RecoverStuckTasks(w http.ResponseWriter, r *http.Request) {
	if !h.requireRecovery(w, r) {
		return
	}

	var opts task.RecoverOptions
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &opts); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
	}

	recovered, err := h.recovery.RecoverStuckTasks(r.Context(), opts)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to recover stuck tasks", err)
		return
	}

	h.logger.Info("stuck task recovery run", "recovered_count", recovered, "dry_run", opts.DryRun)
	shared.RespondWithJSON(w, r, http.StatusOK, RecoveredResponse{Recovered: recovered})
}

// ForceReset handles POST /api/ops/recovery/reset.
func (h *OpsHandler) ForceReset(w http.ResponseWriter, r *http.Request) {
	if !h.requireRecovery(w, r) {
		return
	}

	if err := h.recovery.ForceResetAllTasks(r.Context()); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to reset tasks", err)
		return
	}

	h.logger.Warn("all tasks force-reset")
	w.WriteHeader(http.StatusNoContent)
}

// CleanupOrphans handles POST /api/ops/recovery/orphans.
func (h *OpsHandler) CleanupOrphans(w http.ResponseWriter, r *http.Request) {
	if !h.requireRecovery(w, r) {
		return
	}

	cleaned, err := h.recovery.CleanupOrphanedData(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to clean up orphaned data", err)
		return
	}

	h.logger.Info("orphan cleanup run", "cleaned_count", cleaned)
	shared.RespondWithJSON(w, r, http.StatusOK, CleanedResponse{Cleaned: cleaned})
}

func (h *OpsHandler) requireRecovery(w http.ResponseWriter, r *http.Request) bool {
	if h.recovery == nil {
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Recovery coordinator not configured")
		return false
	}
	return true
}
