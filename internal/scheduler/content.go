package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"finance-push-go/internal/models"
)

const (
	warnPercent     = 80.0
	exceededPercent = 100.0
)

// compose builds the message for c. ok is false when there is nothing to say
// (budget_exceeded with no budget over its limit).
func (s *Scheduler) compose(ctx context.Context, userID string, c models.Category, local time.Time) (models.Message, bool, error) {
	switch c {
	case models.CategoryMorningBudgetCheck:
		usage, err := s.monthUsage(ctx, userID, local)
		if err != nil {
			return models.Message{}, false, err
		}
		return morningMessage(usage), true, nil

	case models.CategoryEveningExpenseReminder:
		from := startOfDay(local)
		n, err := s.insights.TransactionCount(ctx, userID, from.UTC(), from.AddDate(0, 0, 1).UTC())
		if err != nil {
			return models.Message{}, false, fmt.Errorf("transaction count: %w", err)
		}
		return eveningMessage(n), true, nil

	case models.CategoryBudgetExceeded:
		usage, err := s.monthUsage(ctx, userID, local)
		if err != nil {
			return models.Message{}, false, err
		}
		msg, ok := exceededMessage(usage)
		return msg, ok, nil

	case models.CategoryMonthlyRecurring:
		return monthlyMessage(local), true, nil
	}
	return models.Message{}, false, fmt.Errorf("category %s is not scheduled", c)
}

func (s *Scheduler) monthUsage(ctx context.Context, userID string, local time.Time) ([]models.BudgetUsage, error) {
	from := startOfMonth(local)
	usage, err := s.insights.BudgetUsage(ctx, userID, from.UTC(), from.AddDate(0, 1, 0).UTC())
	if err != nil {
		return nil, fmt.Errorf("budget usage: %w", err)
	}
	return usage, nil
}

// overThreshold returns budgets at or above pct, highest first.
func overThreshold(usage []models.BudgetUsage, pct float64) []models.BudgetUsage {
	var out []models.BudgetUsage
	for _, u := range usage {
		if u.PercentUsed() >= pct {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PercentUsed() > out[j].PercentUsed() })
	return out
}

func morningMessage(usage []models.BudgetUsage) models.Message {
	hot := overThreshold(usage, warnPercent)
	if len(hot) == 0 {
		return models.Message{
			Title: "☀️ Good morning!",
			Body:  "All your budgets are on track. Have a great day!",
			URL:   "/budgets",
			Data:  models.MorningBudgetCheckData{},
		}
	}

	top := hot[0]
	body := fmt.Sprintf("%s budget is at %.0f%% used.", top.Category, top.PercentUsed())
	if extra := len(hot) - 1; extra > 0 {
		body += fmt.Sprintf(" %d more %s close to the limit.", extra, plural(extra, "budget is", "budgets are"))
	}
	return models.Message{
		Title: "⚠️ Budget check: watch your spending",
		Body:  body,
		URL:   "/budgets",
		Data: models.MorningBudgetCheckData{
			BudgetCategory: top.Category,
			PercentUsed:    top.PercentUsed(),
		},
	}
}

func eveningMessage(count int) models.Message {
	data := models.EveningExpenseReminderData{TransactionCount: count}
	if count == 0 {
		return models.Message{
			Title: "📝 Log today's expenses",
			Body:  "You haven't recorded any transactions today. Take a minute to add them.",
			URL:   "/transactions/new",
			Data:  data,
		}
	}
	return models.Message{
		Title: "✅ Nice work today",
		Body:  fmt.Sprintf("You recorded %d %s today.", count, plural(count, "transaction", "transactions")),
		URL:   "/transactions",
		Data:  data,
	}
}

func exceededMessage(usage []models.BudgetUsage) (models.Message, bool) {
	over := overThreshold(usage, exceededPercent)
	if len(over) == 0 {
		return models.Message{}, false
	}
	top := over[0]
	body := fmt.Sprintf("%s is over budget: %.0f%% of the limit used.", top.Category, top.PercentUsed())
	if extra := len(over) - 1; extra > 0 {
		body += fmt.Sprintf(" %d other %s over.", extra, plural(extra, "budget is", "budgets are"))
	}
	return models.Message{
		Title: "🚨 Budget exceeded",
		Body:  body,
		URL:   "/budgets",
		Data: models.BudgetExceededData{
			BudgetCategory: top.Category,
			PercentUsed:    top.PercentUsed(),
		},
	}, true
}

func monthlyMessage(local time.Time) models.Message {
	return models.Message{
		Title: "🔁 Recurring payments",
		Body:  fmt.Sprintf("Time to review your recurring bills and subscriptions for %s.", local.Format("January 2006")),
		URL:   "/recurring",
		Data:  models.MonthlyRecurringData{Month: local.Format("2006-01")},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
