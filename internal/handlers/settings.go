package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"finance-push-go/internal/models"
	"finance-push-go/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetSettingsHandler returns the caller's settings, or the defaults if none
// were stored yet.
func (h *Handler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	userID := CurrentUserID(r)
	st, err := h.Store.GetSettings(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		st = models.DefaultSettings(userID)
	} else if err != nil {
		h.log.Error("failed to load settings", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// UpdateSettingsHandler applies a partial update: fields absent from the body
// keep their current value.
func (h *Handler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	userID := CurrentUserID(r)

	st, err := h.Store.EnsureSettings(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to load settings", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	st.UserID = userID
	if err := st.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.Store.UpdateSettings(r.Context(), st)
	if err != nil {
		h.log.Error("failed to update settings", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// HistoryHandler lists the caller's most recent notifications.
func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.Store.ListHistory(r.Context(), CurrentUserID(r), limit)
	if err != nil {
		h.log.Error("failed to list history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
