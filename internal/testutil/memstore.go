package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"finance-push-go/internal/models"
	"finance-push-go/internal/store"
)

var _ store.Store = (*MemoryStore)(nil)

// MemoryStore implements store.Store in memory. Budget usage and
// transaction counts are canned per user.
type MemoryStore struct {
	mu        sync.Mutex
	nextSubID int64
	nextHist  int64
	subs      map[int64]models.PushSubscription
	settings  map[string]models.NotificationSettings
	history   []models.HistoryEntry
	usage     map[string][]models.BudgetUsage
	txCount   map[string]int

	// Err, when set, is returned by every method.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:     make(map[int64]models.PushSubscription),
		settings: make(map[string]models.NotificationSettings),
		usage:    make(map[string][]models.BudgetUsage),
		txCount:  make(map[string]int),
	}
}

// SetBudgetUsage fixes what BudgetUsage returns for userID.
func (m *MemoryStore) SetBudgetUsage(userID string, usage ...models.BudgetUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[userID] = usage
}

// SetTransactionCount fixes what TransactionCount returns for userID.
func (m *MemoryStore) SetTransactionCount(userID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount[userID] = n
}

// PutSettings stores s as-is, bypassing validation.
func (m *MemoryStore) PutSettings(s models.NotificationSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.UserID] = s
}

// History returns every recorded entry in insertion order.
func (m *MemoryStore) History() []models.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.HistoryEntry(nil), m.history...)
}

func (m *MemoryStore) UpsertSubscription(_ context.Context, sub models.PushSubscription) (models.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return models.PushSubscription{}, m.Err
	}

	now := time.Now().UTC()
	for id, existing := range m.subs {
		if existing.UserID == sub.UserID && existing.Endpoint == sub.Endpoint {
			existing.P256dh = sub.P256dh
			existing.Auth = sub.Auth
			if sub.DeviceName != "" {
				existing.DeviceName = sub.DeviceName
			}
			existing.UpdatedAt = now
			m.subs[id] = existing
			return existing, nil
		}
	}

	m.nextSubID++
	sub.ID = m.nextSubID
	sub.CreatedAt = now
	sub.UpdatedAt = now
	m.subs[sub.ID] = sub
	return sub, nil
}

func (m *MemoryStore) ListSubscriptionsByUser(_ context.Context, userID string) ([]models.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []models.PushSubscription{}
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteSubscription(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.subs, id)
	return nil
}

func (m *MemoryStore) EnsureSettings(_ context.Context, userID string) (models.NotificationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return models.NotificationSettings{}, m.Err
	}
	s, ok := m.settings[userID]
	if !ok {
		s = models.DefaultSettings(userID)
		s.UpdatedAt = time.Now().UTC()
		m.settings[userID] = s
	}
	return s, nil
}

func (m *MemoryStore) GetSettings(_ context.Context, userID string) (models.NotificationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return models.NotificationSettings{}, m.Err
	}
	s, ok := m.settings[userID]
	if !ok {
		return models.NotificationSettings{}, store.ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) UpdateSettings(_ context.Context, s models.NotificationSettings) (models.NotificationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return models.NotificationSettings{}, m.Err
	}
	s.UpdatedAt = time.Now().UTC()
	m.settings[s.UserID] = s
	return s, nil
}

func (m *MemoryStore) ListSettings(_ context.Context) ([]models.NotificationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	subscribed := make(map[string]bool)
	for _, s := range m.subs {
		subscribed[s.UserID] = true
	}
	var out []models.NotificationSettings
	for userID, s := range m.settings {
		if subscribed[userID] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) RecordHistory(_ context.Context, entry models.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.nextHist++
	entry.ID = m.nextHist
	m.history = append(m.history, entry)
	return nil
}

func (m *MemoryStore) HistoryExists(_ context.Context, userID string, category models.Category, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	for _, h := range m.history {
		if h.UserID == userID && h.Category == category && !h.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListHistory(_ context.Context, userID string, limit int) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []models.HistoryEntry{}
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].UserID != userID {
			continue
		}
		out = append(out, m.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) PurgeHistory(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	kept := m.history[:0]
	for _, h := range m.history {
		if !h.SentAt.Before(before) {
			kept = append(kept, h)
		}
	}
	n := int64(len(m.history) - len(kept))
	m.history = kept
	return n, nil
}

func (m *MemoryStore) BudgetUsage(_ context.Context, userID string, _, _ time.Time) ([]models.BudgetUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]models.BudgetUsage(nil), m.usage[userID]...), nil
}

func (m *MemoryStore) TransactionCount(_ context.Context, userID string, _, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.txCount[userID], nil
}
