package reports

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the aggregate queries behind the financial rollups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// effectiveAmount mirrors Payment.EffectiveAmount: the final amount when
// set, otherwise the original. Every mint path writes final_amount and no
// record carries a zero amount, so zero can only mean an imported row from
// before the ledger tracked penalties.
const effectiveAmount = `CASE WHEN final_amount <> 0 THEN final_amount ELSE original_amount END`

// Rollups aggregates the ledger per currency. An empty month means
// all-time; otherwise month is YYYY-MM and the revenue/expense buckets are
// filtered by their settlement timestamps. Pending figures ignore the
// month: they are the outstanding balance right now.
func (r *Repository) Rollups(ctx context.Context, month string) ([]Rollup, error) {
	rows, err := r.pool.Query(ctx, `SELECT currency,
COALESCE(SUM(CASE WHEN payment_type = 'client_charge' AND received
	AND ($1 = '' OR to_char(received_at, 'YYYY-MM') = $1)
	THEN `+effectiveAmount+` END), 0) AS revenue,
COALESCE(SUM(CASE WHEN payment_type <> 'client_charge' AND paid
	AND ($1 = '' OR to_char(paid_at, 'YYYY-MM') = $1)
	THEN `+effectiveAmount+` END), 0) AS expenses,
COALESCE(SUM(CASE WHEN payment_type = 'client_charge' AND NOT received
	THEN `+effectiveAmount+` END), 0) AS pending_client_income,
COALESCE(SUM(CASE WHEN payment_type = 'editor_payout' AND NOT paid
	THEN `+effectiveAmount+` END), 0) AS pending_editor_payout
FROM payments
GROUP BY currency
ORDER BY currency`, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rollup
	for rows.Next() {
		var roll Rollup
		err := rows.Scan(&roll.Currency, &roll.Revenue, &roll.Expenses,
			&roll.PendingClientIncome, &roll.PendingEditorPayout)
		if err != nil {
			return nil, err
		}
		roll.NetProfit = roll.Revenue - roll.Expenses
		out = append(out, roll)
	}
	return out, rows.Err()
}
