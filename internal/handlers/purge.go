package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Dedupe looks back at most one month; keep a margin beyond that.
const minRetentionDays = 62

// === History retention ===

// PurgeHistoryHandler deletes notification history older than
// older_than_days. Signed like SendHandler, but unavailable without a secret.
func (h *Handler) PurgeHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		writeError(w, http.StatusForbidden, "Purge requires WEBHOOK_SECRET")
		return
	}
	if !validateSharedSecret(r, h.webhookSecret) {
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var req struct {
		OlderThanDays int `json:"older_than_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.OlderThanDays < minRetentionDays {
		writeError(w, http.StatusBadRequest, "older_than_days must be at least 62")
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -req.OlderThanDays)
	n, err := h.Store.PurgeHistory(r.Context(), cutoff)
	if err != nil {
		h.log.Error("failed to purge history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to purge history")
		return
	}

	h.log.Info("notification history purged", zap.Time("before", cutoff), zap.Int64("deleted", n))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
}
