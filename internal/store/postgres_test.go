package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"finance-push-go/internal/models"
)

const testUser = "3f6c2a52-1f0e-4a8e-9b43-3c1d1f9a2b10"

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresStoreFromDB(db), mock
}

var subscriptionCols = []string{"id", "user_id", "endpoint", "p256dh", "auth", "device_name", "created_at", "updated_at"}

func TestUpsertSubscriptionUsesConflictClause(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO push_subscriptions .* ON CONFLICT \(user_id, endpoint\) DO UPDATE`).
		WithArgs(testUser, "https://push.example.com/abc", "pk", "au", "Pixel").
		WillReturnRows(sqlmock.NewRows(subscriptionCols).
			AddRow(int64(7), testUser, "https://push.example.com/abc", "pk", "au", "Pixel", now, now))

	saved, err := s.UpsertSubscription(context.Background(), models.PushSubscription{
		UserID:     testUser,
		Endpoint:   "https://push.example.com/abc",
		P256dh:     "pk",
		Auth:       "au",
		DeviceName: "Pixel",
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), saved.ID)
	require.Equal(t, "Pixel", saved.DeviceName)
}

func TestListSubscriptionsByUser(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM push_subscriptions WHERE user_id = \$1`).
		WithArgs(testUser).
		WillReturnRows(sqlmock.NewRows(subscriptionCols).
			AddRow(int64(1), testUser, "https://a.example/1", "k1", "a1", "", now, now).
			AddRow(int64(2), testUser, "https://b.example/2", "k2", "a2", "Laptop", now, now))

	subs, err := s.ListSubscriptionsByUser(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, "https://b.example/2", subs[1].Endpoint)
}

func TestDeleteSubscriptionIsIdempotent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM push_subscriptions WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteSubscription(context.Background(), 42))
}

var settingsCols = []string{"user_id", "morning_enabled", "morning_hour", "evening_enabled", "evening_hour",
	"budget_alert_enabled", "monthly_enabled", "monthly_day", "timezone", "updated_at"}

func TestEnsureSettingsInsertsDefaults(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO notification_settings .* ON CONFLICT \(user_id\) DO NOTHING`).
		WithArgs(testUser, true, 9, true, 20, true, true, 1, "UTC").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM notification_settings WHERE user_id = \$1`).
		WithArgs(testUser).
		WillReturnRows(sqlmock.NewRows(settingsCols).
			AddRow(testUser, true, 9, true, 20, true, true, 1, "UTC", now))

	st, err := s.EnsureSettings(context.Background(), testUser)
	require.NoError(t, err)
	require.Equal(t, 9, st.MorningHour)
	require.Equal(t, "UTC", st.Timezone)
}

func TestGetSettingsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM notification_settings WHERE user_id = \$1`).
		WithArgs(testUser).
		WillReturnRows(sqlmock.NewRows(settingsCols))

	_, err := s.GetSettings(context.Background(), testUser)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryExistsQueriesWindow(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT EXISTS \(\s*SELECT 1 FROM notification_history`).
		WithArgs(testUser, "morning_budget_check", since).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.HistoryExists(context.Background(), testUser, models.CategoryMorningBudgetCheck, since)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecordHistory(t *testing.T) {
	s, mock := newMockStore(t)
	sentAt := time.Date(2026, 10, 18, 9, 5, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO notification_history`).
		WithArgs(testUser, "evening_expense_reminder", sentAt, "t", "b").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.RecordHistory(context.Background(), models.HistoryEntry{
		UserID:   testUser,
		Category: models.CategoryEveningExpenseReminder,
		SentAt:   sentAt,
		Title:    "t",
		Body:     "b",
	}))
}

func TestBudgetUsage(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery(`FROM budgets b`).
		WithArgs(testUser, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"category", "amount", "spent"}).
			AddRow("Food", 500.0, 460.0).
			AddRow("Travel", 300.0, 10.0))

	usage, err := s.BudgetUsage(context.Background(), testUser, from, to)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	require.InDelta(t, 92.0, usage[0].PercentUsed(), 0.01)
}

func TestTransactionCount(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions`).
		WithArgs(testUser, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.TransactionCount(context.Background(), testUser, from, to)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestRunMigrations(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS push_subscriptions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE push_subscriptions ADD COLUMN IF NOT EXISTS device_name`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.RunMigrations(context.Background()))
}

func TestPurgeHistory(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM notification_history WHERE sent_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := s.PurgeHistory(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(12), n)
}
