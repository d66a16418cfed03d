package models

// BudgetUsage is one budget's spend for the current period, as reported by
// the finance side of the application.
type BudgetUsage struct {
	Category string  `json:"category"`
	Spent    float64 `json:"spent"`
	Limit    float64 `json:"limit"`
}

// PercentUsed returns spent/limit as a percentage. Budgets without a limit report 0.
func (b BudgetUsage) PercentUsed() float64 {
	if b.Limit <= 0 {
		return 0
	}
	return b.Spent / b.Limit * 100
}
