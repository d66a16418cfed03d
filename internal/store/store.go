package store

import (
	"context"
	"errors"
	"time"

	"finance-push-go/internal/models"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// SubscriptionStore persists push subscriptions keyed by (user, endpoint).
type SubscriptionStore interface {
	// UpsertSubscription inserts or, on (user_id, endpoint) conflict, updates keys and name.
	UpsertSubscription(ctx context.Context, sub models.PushSubscription) (models.PushSubscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.PushSubscription, error)
	// DeleteSubscription is idempotent.
	DeleteSubscription(ctx context.Context, id int64) error
}

// SettingsStore handles per-user notification settings.
type SettingsStore interface {
	// EnsureSettings creates default settings if the user has none and returns the current row.
	EnsureSettings(ctx context.Context, userID string) (models.NotificationSettings, error)
	GetSettings(ctx context.Context, userID string) (models.NotificationSettings, error)
	UpdateSettings(ctx context.Context, s models.NotificationSettings) (models.NotificationSettings, error)
	// ListSettings returns settings of users that have at least one subscription.
	ListSettings(ctx context.Context) ([]models.NotificationSettings, error)
}

// HistoryStore is the append-only notification history.
type HistoryStore interface {
	RecordHistory(ctx context.Context, entry models.HistoryEntry) error
	HistoryExists(ctx context.Context, userID string, category models.Category, since time.Time) (bool, error)
	ListHistory(ctx context.Context, userID string, limit int) ([]models.HistoryEntry, error)
	PurgeHistory(ctx context.Context, before time.Time) (int64, error)
}

// InsightsStore reads budget and transaction aggregates owned by the finance
// side of the application.
type InsightsStore interface {
	BudgetUsage(ctx context.Context, userID string, from, to time.Time) ([]models.BudgetUsage, error)
	TransactionCount(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// Store is everything the push service persists.
type Store interface {
	SubscriptionStore
	SettingsStore
	HistoryStore
	InsightsStore
}
