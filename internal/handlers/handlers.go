package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"finance-push-go/internal/models"
	"finance-push-go/internal/push"
	"finance-push-go/internal/store"
)

// Store is the persistence the HTTP API touches.
type Store interface {
	store.SubscriptionStore
	store.SettingsStore
	store.HistoryStore
}

// Sender delivers a message to every device of a user.
type Sender interface {
	Send(ctx context.Context, userID string, msg models.Message) (*models.DeliveryReport, error)
}

type Options struct {
	// JWTSecret verifies HS256 bearer tokens from the auth backend.
	JWTSecret string
	// WebhookSecret signs POST /api/push/send; empty disables the check.
	WebhookSecret string
	// Ping reports dependency health for /healthz.
	Ping func(ctx context.Context) error
}

type Handler struct {
	Store  Store
	Sender Sender
	Keys   *push.VAPIDKeys

	jwtSecret     []byte
	webhookSecret string
	ping          func(ctx context.Context) error
	log           *zap.Logger
}

func NewHandler(s Store, sender Sender, keys *push.VAPIDKeys, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:         s,
		Sender:        sender,
		Keys:          keys,
		jwtSecret:     []byte(opts.JWTSecret),
		webhookSecret: opts.WebhookSecret,
		ping:          opts.Ping,
		log:           log,
	}
}

// Routes returns the API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /api/push/vapid-public-key", h.VAPIDPublicKeyHandler)
	mux.HandleFunc("GET /healthz", h.HealthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Signed by the finance backend
	mux.HandleFunc("POST /api/push/send", h.SendHandler)
	mux.HandleFunc("POST /api/push/admin/purge-history", h.PurgeHistoryHandler)

	// Authenticated user routes
	mux.HandleFunc("POST /api/push/subscriptions", h.AuthMiddleware(h.SubscribeHandler))
	mux.HandleFunc("GET /api/push/subscriptions", h.AuthMiddleware(h.ListSubscriptionsHandler))
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", h.AuthMiddleware(h.DeleteSubscriptionHandler))
	mux.HandleFunc("GET /api/push/settings", h.AuthMiddleware(h.GetSettingsHandler))
	mux.HandleFunc("PUT /api/push/settings", h.AuthMiddleware(h.UpdateSettingsHandler))
	mux.HandleFunc("GET /api/push/history", h.AuthMiddleware(h.HistoryHandler))
	mux.HandleFunc("POST /api/push/test", h.AuthMiddleware(h.TestNotificationHandler))

	return h.logRequests(mux)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
