package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DataVersion is bumped whenever a variant's fields change incompatibly.
const DataVersion = 1

// NotificationData is the closed set of per-category payloads clients switch on.
type NotificationData interface {
	Category() Category
}

type MorningBudgetCheckData struct {
	BudgetCategory string  `json:"budget_category,omitempty"`
	PercentUsed    float64 `json:"percent_used,omitempty"`
}

type EveningExpenseReminderData struct {
	TransactionCount int `json:"transaction_count"`
}

type BudgetExceededData struct {
	BudgetCategory string  `json:"budget_category"`
	PercentUsed    float64 `json:"percent_used"`
}

type MonthlyRecurringData struct {
	Month string `json:"month"` // YYYY-MM in the user's timezone
}

type TestData struct{}

func (MorningBudgetCheckData) Category() Category     { return CategoryMorningBudgetCheck }
func (EveningExpenseReminderData) Category() Category { return CategoryEveningExpenseReminder }
func (BudgetExceededData) Category() Category         { return CategoryBudgetExceeded }
func (MonthlyRecurringData) Category() Category       { return CategoryMonthlyRecurring }
func (TestData) Category() Category                   { return CategoryTest }

// EncodeData flattens a variant into the wire object {type, v, url, ...fields}.
func EncodeData(d NotificationData, url string) (map[string]any, error) {
	if d == nil {
		d = TestData{}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", d.Category(), err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("flatten %s data: %w", d.Category(), err)
	}
	out["type"] = string(d.Category())
	out["v"] = DataVersion
	if url != "" {
		out["url"] = url
	}
	return out, nil
}

// DecodeNotificationData parses caller-supplied data into the variant for category.
// Unknown fields are rejected.
func DecodeNotificationData(category Category, raw json.RawMessage) (NotificationData, error) {
	empty := len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))

	decode := func(dst any) error {
		if empty {
			return nil
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("invalid data for %s: %w", category, err)
		}
		return nil
	}

	var d NotificationData
	switch category {
	case CategoryMorningBudgetCheck:
		v := MorningBudgetCheckData{}
		if err := decode(&v); err != nil {
			return nil, err
		}
		d = v
	case CategoryEveningExpenseReminder:
		v := EveningExpenseReminderData{}
		if err := decode(&v); err != nil {
			return nil, err
		}
		d = v
	case CategoryBudgetExceeded:
		v := BudgetExceededData{}
		if err := decode(&v); err != nil {
			return nil, err
		}
		d = v
	case CategoryMonthlyRecurring:
		v := MonthlyRecurringData{}
		if err := decode(&v); err != nil {
			return nil, err
		}
		d = v
	case CategoryTest:
		v := TestData{}
		if err := decode(&v); err != nil {
			return nil, err
		}
		d = v
	default:
		return nil, fmt.Errorf("unknown notification type %q", category)
	}
	return d, nil
}
