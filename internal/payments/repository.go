package payments

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelhouse/reelhouse/internal/platform/db"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const paymentColumns = `id, payment_type, project_id, work_item_id, editor_id, client_id, description,
original_amount, penalty_amount, final_amount, currency, paid, paid_at, received, received_at,
payment_screenshot, deadline_crossed, days_late, settlement_id, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var paymentType string
	err := row.Scan(&p.ID, &paymentType, &p.ProjectID, &p.WorkItemID, &p.EditorID, &p.ClientID,
		&p.Description, &p.OriginalAmount, &p.PenaltyAmount, &p.FinalAmount, &p.Currency,
		&p.Paid, &p.PaidAt, &p.Received, &p.ReceivedAt, &p.PaymentScreenshot,
		&p.DeadlineCrossed, &p.DaysLate, &p.SettlementID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, err
	}
	p.Type = PaymentType(paymentType)
	return p, nil
}

func insertPayment(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, payment Payment) (Payment, error) {
	err := q.QueryRow(ctx, `INSERT INTO payments
(payment_type, project_id, work_item_id, editor_id, client_id, description, original_amount,
penalty_amount, final_amount, currency, paid, paid_at, received, received_at, payment_screenshot,
deadline_crossed, days_late, settlement_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
RETURNING id`,
		string(payment.Type), payment.ProjectID, payment.WorkItemID, payment.EditorID, payment.ClientID,
		payment.Description, payment.OriginalAmount, payment.PenaltyAmount, payment.FinalAmount,
		payment.Currency, payment.Paid, payment.PaidAt, payment.Received, payment.ReceivedAt,
		payment.PaymentScreenshot, payment.DeadlineCrossed, payment.DaysLate, payment.SettlementID,
		payment.CreatedAt, payment.UpdatedAt).Scan(&payment.ID)
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// Insert creates a new ledger record.
func (r *Repository) Insert(ctx context.Context, payment Payment) (Payment, error) {
	return insertPayment(ctx, r.pool, payment)
}

// Get loads one ledger record.
func (r *Repository) Get(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, shared.NewNotFoundError("payment", strconv.FormatInt(id, 10))
		}
		return Payment{}, err
	}
	return p, nil
}

// GetMany loads the selected records.
func (r *Repository) GetMany(ctx context.Context, ids []int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByProject returns all ledger records of a project.
func (r *Repository) ListByProject(ctx context.Context, projectID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE project_id=$1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PayoutByWorkItem loads the editor payout tied to one work item.
func (r *Repository) PayoutByWorkItem(ctx context.Context, workItemID int64) (Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE work_item_id=$1 AND payment_type=$2`,
		workItemID, string(TypeEditorPayout)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, shared.NewNotFoundError("payout for work item", strconv.FormatInt(workItemID, 10))
		}
		return Payment{}, err
	}
	return p, nil
}

// SetPaid transitions one record to paid. Guarded at the row level so a
// concurrent settle of the same id loses cleanly.
func (r *Repository) SetPaid(ctx context.Context, id int64, at time.Time, proof string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payments SET paid=true, paid_at=$1,
payment_screenshot=COALESCE(NULLIF($2, ''), payment_screenshot), updated_at=$1
WHERE id=$3 AND paid=false`, at, proof, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewStateError("paid", "payment is already settled")
	}
	return nil
}

// SetReceived transitions one paid record to received.
func (r *Repository) SetReceived(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payments SET received=true, received_at=$1, updated_at=$1
WHERE id=$2 AND paid=true AND received=false`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewStateError("received", "payment is already received or not yet paid")
	}
	return nil
}

// ApplyPenalty stamps the late penalty once. The guard clauses make a
// repeated application a no-op at the row level.
func (r *Repository) ApplyPenalty(ctx context.Context, id int64, penalty, final float64, daysLate int, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE payments SET penalty_amount=$1, final_amount=$2,
deadline_crossed=true, days_late=$3, updated_at=$4
WHERE id=$5 AND paid=false AND deadline_crossed=false`, penalty, final, daysLate, at, id)
	return err
}

// AcceptAtomic flips the project to accepted and inserts the acceptance
// ledger within one transaction. The guarded update makes a repeated or
// racing accept lose at the row level, and a failed insert rolls the flag
// back with the records.
func (r *Repository) AcceptAtomic(ctx context.Context, in AtomicAccept) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE projects SET accepted=true, updated_at=$1
WHERE id=$2 AND accepted=false AND closed=false`, in.At, in.ProjectID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.NewStateError("accepted", "project is already accepted or closed")
		}
		for _, rec := range in.Records {
			if _, err := insertPayment(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// SettleAtomic transitions every id in the batch and inserts the
// synthesized adjustment records within one RepeatableRead transaction.
// If any row refuses its guard, the whole batch rolls back.
func (r *Repository) SettleAtomic(ctx context.Context, in AtomicSettle) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, id := range in.IDs {
		var tag pgconn.CommandTag
		switch in.Kind {
		case SettleEditor:
			tag, err = tx.Exec(ctx, `UPDATE payments SET paid=true, paid_at=$1,
payment_screenshot=COALESCE(NULLIF($2, ''), payment_screenshot), settlement_id=$3, updated_at=$1
WHERE id=$4 AND paid=false`, in.At, in.Proof, in.SettlementID, id)
		case SettleClient:
			tag, err = tx.Exec(ctx, `UPDATE payments SET paid=true, paid_at=COALESCE(paid_at, $1),
received=true, received_at=$1,
payment_screenshot=COALESCE(NULLIF($2, ''), payment_screenshot), settlement_id=$3, updated_at=$1
WHERE id=$4 AND received=false`, in.At, in.Proof, in.SettlementID, id)
		}
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.NewStateError("settled", "payment "+strconv.FormatInt(id, 10)+" is already settled")
		}
	}
	for _, synth := range in.Synthesized {
		if _, err := insertPayment(ctx, tx, synth); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
