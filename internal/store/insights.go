package store

import (
	"context"
	"time"

	"finance-push-go/internal/models"
)

// The budgets and transactions tables belong to the finance side of the
// application; this file only reads them.

func (s *PostgresStore) BudgetUsage(ctx context.Context, userID string, from, to time.Time) ([]models.BudgetUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.category, b.amount, COALESCE(SUM(t.amount), 0)
		 FROM budgets b
		 LEFT JOIN transactions t
		   ON t.user_id = b.user_id
		  AND t.category = b.category
		  AND t.type = 'expense'
		  AND t.occurred_at >= $2 AND t.occurred_at < $3
		 WHERE b.user_id = $1
		 GROUP BY b.category, b.amount
		 ORDER BY b.category`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BudgetUsage
	for rows.Next() {
		var u models.BudgetUsage
		if err := rows.Scan(&u.Category, &u.Limit, &u.Spent); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TransactionCount(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3`,
		userID, from, to,
	).Scan(&n)
	return n, err
}
