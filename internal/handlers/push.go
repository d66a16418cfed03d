package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"finance-push-go/internal/models"
	"finance-push-go/internal/push"
)

const maxDeviceName = 100

// VAPIDPublicKeyHandler returns the key browsers pass as applicationServerKey.
func (h *Handler) VAPIDPublicKeyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"publicKey": h.Keys.PublicKeyString(),
	})
}

// SubscribeHandler saves the PushSubscription a browser produced and makes
// sure the user has notification settings.
func (h *Handler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	userID := CurrentUserID(r)

	var req struct {
		webpush.Subscription
		DeviceName string `json:"device_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	sub := models.PushSubscription{
		UserID:     userID,
		Endpoint:   strings.TrimSpace(req.Endpoint),
		P256dh:     strings.TrimSpace(req.Keys.P256dh),
		Auth:       strings.TrimSpace(req.Keys.Auth),
		DeviceName: truncate(strings.TrimSpace(req.DeviceName), maxDeviceName),
	}
	if err := push.ValidateSubscription(sub); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.Store.UpsertSubscription(r.Context(), sub)
	if err != nil {
		h.log.Error("failed to save subscription", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save subscription")
		return
	}
	if _, err := h.Store.EnsureSettings(r.Context(), userID); err != nil {
		h.log.Error("failed to create default settings", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save subscription")
		return
	}

	h.log.Info("push subscription saved",
		zap.String("user_id", userID),
		zap.Int64("subscription_id", saved.ID),
		zap.String("endpoint_origin", push.EndpointOrigin(saved.Endpoint)),
	)
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	subs, err := h.Store.ListSubscriptionsByUser(r.Context(), CurrentUserID(r))
	if err != nil {
		h.log.Error("failed to list subscriptions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list subscriptions")
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// DeleteSubscriptionHandler removes one of the caller's devices. Ids the
// caller does not own are treated as already gone.
func (h *Handler) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid subscription id")
		return
	}

	userID := CurrentUserID(r)
	subs, err := h.Store.ListSubscriptionsByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to list subscriptions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete subscription")
		return
	}

	for _, s := range subs {
		if s.ID != id {
			continue
		}
		if err := h.Store.DeleteSubscription(r.Context(), id); err != nil {
			h.log.Error("failed to delete subscription", zap.Int64("subscription_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to delete subscription")
			return
		}
		h.log.Info("push subscription removed", zap.String("user_id", userID), zap.Int64("subscription_id", id))
		break
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestNotificationHandler sends a test push to every device of the caller.
func (h *Handler) TestNotificationHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.Sender.Send(r.Context(), CurrentUserID(r), models.Message{
		Title: "🔔 Test notification",
		Body:  "Push notifications are working on this device.",
		Data:  models.TestData{},
	})
	if err != nil {
		h.log.Error("test notification failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to send notification")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type sendRequest struct {
	UserID string          `json:"user_id"`
	Title  string          `json:"title"`
	Body   string          `json:"body"`
	Type   string          `json:"type"`
	URL    string          `json:"url"`
	Data   json.RawMessage `json:"data"`
}

// SendHandler is the internal entry point other services use to push an
// event-driven notification to a user.
func (h *Handler) SendHandler(w http.ResponseWriter, r *http.Request) {
	if !validateSharedSecret(r, h.webhookSecret) {
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	msg, err := req.message()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.Sender.Send(r.Context(), req.UserID, msg)
	if err != nil {
		h.log.Error("send failed", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to send notification")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// message validates req and normalizes its user id.
func (req *sendRequest) message() (models.Message, error) {
	id, err := uuid.Parse(req.UserID)
	if err != nil {
		return models.Message{}, errors.New("user_id must be a UUID")
	}
	req.UserID = id.String()
	if strings.TrimSpace(req.Title) == "" {
		return models.Message{}, errors.New("title is required")
	}

	category := models.CategoryTest
	if req.Type != "" {
		c, err := models.ParseCategory(req.Type)
		if err != nil {
			return models.Message{}, err
		}
		category = c
	}

	data, err := models.DecodeNotificationData(category, req.Data)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{Title: req.Title, Body: req.Body, URL: req.URL, Data: data}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
