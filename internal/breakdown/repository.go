package breakdown

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelhouse/reelhouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence for work items.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, project_id, work_type, assigned_editor, percentage, amount, deadline,
admin_approved, client_approved, status, share_details, links, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var status string
	err := row.Scan(&it.ID, &it.ProjectID, &it.WorkType, &it.AssignedEditor, &it.Percentage,
		&it.Amount, &it.Deadline, &it.AdminApproved, &it.ClientApproved, &status,
		&it.ShareDetails, &it.Links, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	it.Status = ItemStatus(status)
	return it, nil
}

// InsertItem creates a new work item.
func (r *Repository) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO work_items
(project_id, work_type, assigned_editor, percentage, amount, deadline, admin_approved, client_approved, status, share_details, links, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		item.ProjectID, item.WorkType, item.AssignedEditor, item.Percentage, item.Amount,
		item.Deadline, item.AdminApproved, item.ClientApproved, string(item.Status),
		item.ShareDetails, item.Links, item.CreatedAt, item.UpdatedAt).Scan(&item.ID)
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// UpdateItem persists all editable fields.
func (r *Repository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE work_items SET
work_type=$1, assigned_editor=$2, percentage=$3, amount=$4, deadline=$5,
admin_approved=$6, client_approved=$7, status=$8, share_details=$9, links=$10, updated_at=$11
WHERE id=$12`,
		item.WorkType, item.AssignedEditor, item.Percentage, item.Amount, item.Deadline,
		item.AdminApproved, item.ClientApproved, string(item.Status), item.ShareDetails,
		item.Links, item.UpdatedAt, item.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("work item", strconv.FormatInt(item.ID, 10))
	}
	return nil
}

// DeleteItem removes a work item.
func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM work_items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("work item", strconv.FormatInt(id, 10))
	}
	return nil
}

// GetItem loads one work item.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.NewNotFoundError("work item", strconv.FormatInt(id, 10))
		}
		return Item{}, err
	}
	return item, nil
}

// ListByProject returns all items of a project ordered by creation.
func (r *Repository) ListByProject(ctx context.Context, projectID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM work_items WHERE project_id=$1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ReplaceAmounts writes recomputed amounts in one transaction.
func (r *Repository) ReplaceAmounts(ctx context.Context, items []Item) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, item := range items {
		if _, err := tx.Exec(ctx, `UPDATE work_items SET amount=$1, updated_at=NOW() WHERE id=$2`, item.Amount, item.ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
