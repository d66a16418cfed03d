// Package scheduler decides when each user's time-of-day notifications are due
// and hands them to the push dispatcher. Dedupe relies solely on notification
// history, so Tick may run more often than notifications fire.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finance-push-go/internal/models"
)

const (
	defaultConcurrency = 4

	// budget_exceeded alerts are held back overnight.
	quietHoursStart = 22
	quietHoursEnd   = 7
)

// Sender delivers a message to every device of a user.
type Sender interface {
	Send(ctx context.Context, userID string, msg models.Message) (*models.DeliveryReport, error)
}

// SettingsLister lists users eligible for scheduled notifications.
type SettingsLister interface {
	ListSettings(ctx context.Context) ([]models.NotificationSettings, error)
}

// HistoryChecker answers "was category already sent since t".
type HistoryChecker interface {
	HistoryExists(ctx context.Context, userID string, category models.Category, since time.Time) (bool, error)
}

// Insights supplies the finance aggregates used to compose content.
type Insights interface {
	BudgetUsage(ctx context.Context, userID string, from, to time.Time) ([]models.BudgetUsage, error)
	TransactionCount(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// TickSummary counts what one tick did.
type TickSummary struct {
	Users      int `json:"users"`
	Dispatched int `json:"dispatched"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

func (s *TickSummary) add(o TickSummary) {
	s.Dispatched += o.Dispatched
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

type Scheduler struct {
	settings    SettingsLister
	history     HistoryChecker
	insights    Insights
	sender      Sender
	concurrency int
	log         *zap.Logger
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithConcurrency bounds how many users are processed in parallel.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func New(settings SettingsLister, history HistoryChecker, insights Insights, sender Sender, opts ...Option) *Scheduler {
	s := &Scheduler{
		settings:    settings,
		history:     history,
		insights:    insights,
		sender:      sender,
		concurrency: defaultConcurrency,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick evaluates every user against now. Users run in parallel; a single
// user's categories run in order. Cancelling ctx stops before the next
// (user, category) unit; finished units stay committed.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickSummary, error) {
	all, err := s.settings.ListSettings(ctx)
	if err != nil {
		return TickSummary{}, err
	}

	var (
		mu      sync.Mutex
		summary = TickSummary{Users: len(all)}
		g       errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, st := range all {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := s.processUser(ctx, st, now)
			mu.Lock()
			summary.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return summary, ctx.Err()
}

func (s *Scheduler) processUser(ctx context.Context, st models.NotificationSettings, now time.Time) TickSummary {
	var res TickSummary
	log := s.log.With(zap.String("user_id", st.UserID))

	loc := s.location(st, log)
	local := now.In(loc)

	for _, c := range dueCategories(st, local) {
		if ctx.Err() != nil {
			return res
		}
		clog := log.With(zap.String("category", string(c)))

		since := periodStart(c, local)
		sent, err := s.history.HistoryExists(ctx, st.UserID, c, since.UTC())
		if err != nil {
			clog.Error("history lookup failed", zap.Error(err))
			res.Failed++
			continue
		}
		if sent {
			res.Skipped++
			continue
		}

		msg, ok, err := s.compose(ctx, st.UserID, c, local)
		if err != nil {
			clog.Error("compose notification failed", zap.Error(err))
			res.Failed++
			continue
		}
		if !ok {
			continue
		}

		report, err := s.sender.Send(ctx, st.UserID, msg)
		if err != nil {
			clog.Error("dispatch failed", zap.Error(err))
			res.Failed++
			continue
		}
		if report.Total == 0 {
			// Last device removed since ListSettings ran.
			clog.Debug("no subscriptions left, nothing dispatched")
			res.Skipped++
			continue
		}
		dispatchesTotal.WithLabelValues(string(c)).Inc()
		res.Dispatched++
		clog.Info("scheduled notification dispatched",
			zap.Int("sent", report.Sent),
			zap.Int("total", report.Total),
		)
	}
	return res
}

func (s *Scheduler) location(st models.NotificationSettings, log *zap.Logger) *time.Location {
	if st.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(st.Timezone)
	if err != nil {
		log.Warn("unknown timezone, using UTC", zap.String("timezone", st.Timezone))
		return time.UTC
	}
	return loc
}

// dueCategories lists the categories whose time bucket contains local.
func dueCategories(st models.NotificationSettings, local time.Time) []models.Category {
	hour := local.Hour()
	var due []models.Category

	if st.MorningEnabled && hour == st.MorningHour {
		due = append(due, models.CategoryMorningBudgetCheck)
	}
	if st.EveningEnabled && hour == st.EveningHour {
		due = append(due, models.CategoryEveningExpenseReminder)
	}
	if st.BudgetAlertEnabled && hour >= quietHoursEnd && hour < quietHoursStart {
		due = append(due, models.CategoryBudgetExceeded)
	}
	if st.MonthlyEnabled && hour == st.MorningHour && local.Day() == monthlyDay(st.MonthlyDay, local) {
		due = append(due, models.CategoryMonthlyRecurring)
	}
	return due
}

// monthlyDay clamps the configured day to the length of local's month, so
// day 31 fires on the 30th in April and the 28th/29th in February.
func monthlyDay(day int, local time.Time) int {
	last := time.Date(local.Year(), local.Month()+1, 0, 0, 0, 0, 0, local.Location()).Day()
	return max(1, min(day, last))
}

// periodStart returns the beginning of the dedupe window for c.
func periodStart(c models.Category, local time.Time) time.Time {
	if c == models.CategoryMonthlyRecurring {
		return startOfMonth(local)
	}
	return startOfDay(local)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
