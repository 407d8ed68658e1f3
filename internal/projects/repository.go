package projects

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelhouse/reelhouse/internal/breakdown"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence for projects.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const projectColumns = `id, client_id, title, currency, client_amount, amount,
accepted, closed, closed_at, deadline, hidden_at, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.ClientID, &p.Title, &p.Currency, &p.ClientAmount, &p.Amount,
		&p.Accepted, &p.Closed, &p.ClosedAt, &p.Deadline, &p.HiddenAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// Insert creates a new project row.
func (r *Repository) Insert(ctx context.Context, project Project) (Project, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO projects
(client_id, title, currency, client_amount, amount, deadline, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		project.ClientID, project.Title, project.Currency, project.ClientAmount, project.Amount,
		project.Deadline, project.CreatedAt, project.UpdatedAt).Scan(&project.ID)
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

// Get loads one project by id.
func (r *Repository) Get(ctx context.Context, id int64) (Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, shared.NewNotFoundError("project", strconv.FormatInt(id, 10))
		}
		return Project{}, err
	}
	return p, nil
}

// List returns visible projects, newest first. Archived rows stay out of
// the default listing.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects
WHERE hidden_at IS NULL ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
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

// UpdateAmounts persists the money fields.
func (r *Repository) UpdateAmounts(ctx context.Context, id int64, clientAmount, amount float64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE projects SET client_amount=$1, amount=$2, updated_at=$3
WHERE id=$4 AND closed=false`, clientAmount, amount, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewStateError("closed", "a closed project is immutable")
	}
	return nil
}

// MarkClosed flips the closed flag once.
func (r *Repository) MarkClosed(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE projects SET closed=true, closed_at=$1, updated_at=$1
WHERE id=$2 AND closed=false`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewStateError("closed", "project is already closed")
	}
	return nil
}

// ProjectState exposes the lifecycle facts the work breakdown needs.
func (r *Repository) ProjectState(ctx context.Context, projectID int64) (breakdown.ProjectState, error) {
	p, err := r.Get(ctx, projectID)
	if err != nil {
		return breakdown.ProjectState{}, err
	}
	return breakdown.ProjectState{
		ID:       p.ID,
		Amount:   p.Amount,
		Currency: p.Currency,
		Accepted: p.Accepted,
		Closed:   p.Closed,
	}, nil
}

// ProjectClosed reports whether a project has been closed. Client charges
// become payable only then.
func (r *Repository) ProjectClosed(ctx context.Context, projectID int64) (bool, error) {
	p, err := r.Get(ctx, projectID)
	if err != nil {
		return false, err
	}
	return p.Closed, nil
}

// HideClosedBefore archives projects that closed before the cutoff.
// Returns the ids it touched so the sweep can log them.
func (r *Repository) HideClosedBefore(ctx context.Context, cutoff, at time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `UPDATE projects SET hidden_at=$1, updated_at=$1
WHERE closed=true AND hidden_at IS NULL AND closed_at < $2
RETURNING id`, at, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PurgeHiddenBefore permanently deletes projects archived before the
// cutoff, together with their dependent rows.
func (r *Repository) PurgeHiddenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM projects WHERE hidden_at IS NOT NULL AND hidden_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
