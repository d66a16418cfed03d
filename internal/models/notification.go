package models

import (
	"fmt"
	"time"
)

// Category identifies a kind of notification. It is also the dedupe key in history.
type Category string

const (
	CategoryMorningBudgetCheck     Category = "morning_budget_check"
	CategoryEveningExpenseReminder Category = "evening_expense_reminder"
	CategoryBudgetExceeded         Category = "budget_exceeded"
	CategoryMonthlyRecurring       Category = "monthly_recurring_reminder"
	CategoryTest                   Category = "test"
)

// ParseCategory validates a category name coming from outside the process.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryMorningBudgetCheck, CategoryEveningExpenseReminder,
		CategoryBudgetExceeded, CategoryMonthlyRecurring, CategoryTest:
		return c, nil
	}
	return "", fmt.Errorf("unknown notification type %q", s)
}

// NotificationSettings holds one user's toggles and schedule.
type NotificationSettings struct {
	UserID             string    `json:"user_id"`
	MorningEnabled     bool      `json:"morning_enabled"`
	MorningHour        int       `json:"morning_hour"`
	EveningEnabled     bool      `json:"evening_enabled"`
	EveningHour        int       `json:"evening_hour"`
	BudgetAlertEnabled bool      `json:"budget_alert_enabled"`
	MonthlyEnabled     bool      `json:"monthly_enabled"`
	MonthlyDay         int       `json:"monthly_day"`
	Timezone           string    `json:"timezone"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings created with a user's first subscription.
func DefaultSettings(userID string) NotificationSettings {
	return NotificationSettings{
		UserID:             userID,
		MorningEnabled:     true,
		MorningHour:        9,
		EveningEnabled:     true,
		EveningHour:        20,
		BudgetAlertEnabled: true,
		MonthlyEnabled:     true,
		MonthlyDay:         1,
		Timezone:           "UTC",
	}
}

// Validate checks ranges and that the timezone is loadable.
func (s NotificationSettings) Validate() error {
	if s.MorningHour < 0 || s.MorningHour > 23 {
		return fmt.Errorf("morning_hour must be between 0 and 23, got %d", s.MorningHour)
	}
	if s.EveningHour < 0 || s.EveningHour > 23 {
		return fmt.Errorf("evening_hour must be between 0 and 23, got %d", s.EveningHour)
	}
	if s.MonthlyDay < 1 || s.MonthlyDay > 31 {
		return fmt.Errorf("monthly_day must be between 1 and 31, got %d", s.MonthlyDay)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q", s.Timezone)
	}
	return nil
}

// HistoryEntry is an append-only record of a send attempt.
type HistoryEntry struct {
	ID       int64     `json:"id"`
	UserID   string    `json:"user_id"`
	Category Category  `json:"category"`
	SentAt   time.Time `json:"sent_at"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
}

// Message is what the dispatcher fans out to a user's devices.
type Message struct {
	Title string
	Body  string
	URL   string // opened on click; empty uses the dispatcher default
	Data  NotificationData
}

// Category returns the category carried by the message data.
func (m Message) Category() Category {
	if m.Data == nil {
		return CategoryTest
	}
	return m.Data.Category()
}
