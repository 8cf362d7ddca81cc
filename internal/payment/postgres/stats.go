package postgres

import (
	"context"
	"math"

	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/jmoiron/sqlx"
)

// StatsRepository reads the dashboard summary with plain SQL.
type StatsRepository struct {
	db *sqlx.DB
}

var _ payment.StatsReader = (*StatsRepository)(nil)

func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

const statsQuery = `
SELECT
	COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) AS successful,
	COALESCE(SUM(CASE WHEN status = 'success' THEN amount ELSE 0 END), 0) AS successful_amount
FROM payments
WHERE merchant_id = ?`

type statsRow struct {
	Total            int64 `db:"total"`
	Successful       int64 `db:"successful"`
	SuccessfulAmount int64 `db:"successful_amount"`
}

func (r *StatsRepository) ForMerchant(ctx context.Context, merchantID string) (*payment.Stats, error) {
	var row statsRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(statsQuery), merchantID); err != nil {
		return nil, err
	}

	stats := &payment.Stats{
		TotalTransactions: row.Total,
		TotalAmount:       row.SuccessfulAmount,
	}
	if row.Total > 0 {
		stats.SuccessRate = math.Round(float64(row.Successful)/float64(row.Total)*10000) / 100
	}
	return stats, nil
}
