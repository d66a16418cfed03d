package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"finance-push-go/internal/models"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunMigrations creates tables if they don't exist and applies schema updates
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	migrations := []string{
		`ALTER TABLE push_subscriptions ADD COLUMN IF NOT EXISTS device_name TEXT NOT NULL DEFAULT '';`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Subscription methods

const subscriptionColumns = `id, user_id, endpoint, p256dh, auth, device_name, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (models.PushSubscription, error) {
	var sub models.PushSubscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.DeviceName, &sub.CreatedAt, &sub.UpdatedAt)
	return sub, err
}

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub models.PushSubscription) (models.PushSubscription, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, device_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 ON CONFLICT (user_id, endpoint) DO UPDATE
		 SET p256dh = EXCLUDED.p256dh,
		     auth = EXCLUDED.auth,
		     device_name = COALESCE(NULLIF(EXCLUDED.device_name, ''), push_subscriptions.device_name),
		     updated_at = NOW()
		 RETURNING `+subscriptionColumns,
		sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.DeviceName,
	)
	saved, err := scanSubscription(row)
	if err != nil {
		return models.PushSubscription{}, fmt.Errorf("upsert subscription: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []models.PushSubscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) DeleteSubscription(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id)
	return err
}

// Settings methods

const settingsColumns = `user_id, morning_enabled, morning_hour, evening_enabled, evening_hour,
	budget_alert_enabled, monthly_enabled, monthly_day, timezone, updated_at`

func scanSettings(row rowScanner) (models.NotificationSettings, error) {
	var st models.NotificationSettings
	err := row.Scan(&st.UserID, &st.MorningEnabled, &st.MorningHour, &st.EveningEnabled, &st.EveningHour,
		&st.BudgetAlertEnabled, &st.MonthlyEnabled, &st.MonthlyDay, &st.Timezone, &st.UpdatedAt)
	return st, err
}

func (s *PostgresStore) EnsureSettings(ctx context.Context, userID string) (models.NotificationSettings, error) {
	d := models.DefaultSettings(userID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_settings (user_id, morning_enabled, morning_hour, evening_enabled, evening_hour,
		     budget_alert_enabled, monthly_enabled, monthly_day, timezone, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		d.UserID, d.MorningEnabled, d.MorningHour, d.EveningEnabled, d.EveningHour,
		d.BudgetAlertEnabled, d.MonthlyEnabled, d.MonthlyDay, d.Timezone,
	)
	if err != nil {
		return models.NotificationSettings{}, fmt.Errorf("ensure settings: %w", err)
	}
	return s.GetSettings(ctx, userID)
}

func (s *PostgresStore) GetSettings(ctx context.Context, userID string) (models.NotificationSettings, error) {
	st, err := scanSettings(s.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM notification_settings WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotificationSettings{}, ErrNotFound
	}
	return st, err
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, st models.NotificationSettings) (models.NotificationSettings, error) {
	saved, err := scanSettings(s.db.QueryRowContext(ctx,
		`INSERT INTO notification_settings (user_id, morning_enabled, morning_hour, evening_enabled, evening_hour,
		     budget_alert_enabled, monthly_enabled, monthly_day, timezone, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET morning_enabled = EXCLUDED.morning_enabled,
		     morning_hour = EXCLUDED.morning_hour,
		     evening_enabled = EXCLUDED.evening_enabled,
		     evening_hour = EXCLUDED.evening_hour,
		     budget_alert_enabled = EXCLUDED.budget_alert_enabled,
		     monthly_enabled = EXCLUDED.monthly_enabled,
		     monthly_day = EXCLUDED.monthly_day,
		     timezone = EXCLUDED.timezone,
		     updated_at = NOW()
		 RETURNING `+settingsColumns,
		st.UserID, st.MorningEnabled, st.MorningHour, st.EveningEnabled, st.EveningHour,
		st.BudgetAlertEnabled, st.MonthlyEnabled, st.MonthlyDay, st.Timezone,
	))
	if err != nil {
		return models.NotificationSettings{}, fmt.Errorf("update settings: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) ListSettings(ctx context.Context) ([]models.NotificationSettings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+settingsColumns+` FROM notification_settings ns
		 WHERE EXISTS (SELECT 1 FROM push_subscriptions ps WHERE ps.user_id = ns.user_id)
		 ORDER BY user_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.NotificationSettings
	for rows.Next() {
		st, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// History methods

func (s *PostgresStore) RecordHistory(ctx context.Context, e models.HistoryEntry) error {
	sentAt := e.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_history (user_id, category, sent_at, title, body) VALUES ($1, $2, $3, $4, $5)`,
		e.UserID, string(e.Category), sentAt, e.Title, e.Body,
	)
	return err
}

func (s *PostgresStore) HistoryExists(ctx context.Context, userID string, category models.Category, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM notification_history
		     WHERE user_id = $1 AND category = $2 AND sent_at >= $3
		 )`,
		userID, string(category), since,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ListHistory(ctx context.Context, userID string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, category, sent_at, title, body FROM notification_history
		 WHERE user_id = $1 ORDER BY sent_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.HistoryEntry{}
	for rows.Next() {
		var e models.HistoryEntry
		var category string
		if err := rows.Scan(&e.ID, &e.UserID, &category, &e.SentAt, &e.Title, &e.Body); err != nil {
			return nil, err
		}
		e.Category = models.Category(category)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeHistory deletes history rows sent before cutoff and reports how many
// went. Dedupe only looks back a month, so anything older is free to go.
func (s *PostgresStore) PurgeHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_history WHERE sent_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return res.RowsAffected()
}
