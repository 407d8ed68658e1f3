package submissions

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelhouse/reelhouse/internal/payments"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence for submissions and
// corrections.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const submissionColumns = `id, work_item_id, project_id, editor_id, kind, file_url, file_name,
message, status, submitted_at, late, days_late, created_at`

func scanSubmission(row pgx.Row) (Submission, error) {
	var s Submission
	err := row.Scan(&s.ID, &s.WorkItemID, &s.ProjectID, &s.EditorID, &s.Kind, &s.FileURL, &s.FileName,
		&s.Message, &s.Status, &s.SubmittedAt, &s.Late, &s.DaysLate, &s.CreatedAt)
	if err != nil {
		return Submission{}, err
	}
	return s, nil
}

// InsertSubmission appends one delivery.
func (r *Repository) InsertSubmission(ctx context.Context, sub Submission) (Submission, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO submissions
(work_item_id, project_id, editor_id, kind, file_url, file_name, message, status,
submitted_at, late, days_late, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`,
		sub.WorkItemID, sub.ProjectID, sub.EditorID, sub.Kind, sub.FileURL, sub.FileName,
		sub.Message, sub.Status, sub.SubmittedAt, sub.Late, sub.DaysLate, sub.CreatedAt).Scan(&sub.ID)
	if err != nil {
		return Submission{}, err
	}
	return sub, nil
}

// MarkApproved stamps the latest delivery of an item approved once the
// dual signoff completes.
func (r *Repository) MarkApproved(ctx context.Context, workItemID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE submissions SET status='approved'
WHERE id = (SELECT id FROM submissions WHERE work_item_id=$1 ORDER BY id DESC LIMIT 1)`, workItemID)
	return err
}

// ListByWorkItem returns the delivery history of one item, oldest first.
func (r *Repository) ListByWorkItem(ctx context.Context, workItemID int64) ([]Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE work_item_id=$1 ORDER BY id`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatenessFor reports the first deadline crossing recorded for an item.
// Zero value when every delivery so far was on time, or when nothing has
// been delivered yet.
func (r *Repository) LatenessFor(ctx context.Context, workItemID int64) (payments.Lateness, error) {
	var late payments.Lateness
	err := r.pool.QueryRow(ctx, `SELECT late, days_late FROM submissions
WHERE work_item_id=$1 AND late=true ORDER BY id LIMIT 1`, workItemID).
		Scan(&late.DeadlineCrossed, &late.DaysLate)
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.Lateness{}, nil
	}
	if err != nil {
		return payments.Lateness{}, err
	}
	return late, nil
}

// CountByWorkItem reports how many deliveries an item has.
func (r *Repository) CountByWorkItem(ctx context.Context, workItemID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE work_item_id=$1`, workItemID).Scan(&n)
	return n, err
}

const correctionColumns = `id, work_item_id, author_id, detail, voice_file, media_files,
resolved, resolved_at, created_at`

func scanCorrection(row pgx.Row) (Correction, error) {
	var c Correction
	err := row.Scan(&c.ID, &c.WorkItemID, &c.AuthorID, &c.Detail, &c.VoiceFile, &c.MediaFiles,
		&c.Resolved, &c.ResolvedAt, &c.CreatedAt)
	if err != nil {
		return Correction{}, err
	}
	return c, nil
}

// InsertCorrection appends reviewer feedback.
func (r *Repository) InsertCorrection(ctx context.Context, c Correction) (Correction, error) {
	if c.MediaFiles == nil {
		c.MediaFiles = []string{}
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO corrections
(work_item_id, author_id, detail, voice_file, media_files, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		c.WorkItemID, c.AuthorID, c.Detail, c.VoiceFile, c.MediaFiles, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return Correction{}, err
	}
	return c, nil
}

// GetCorrection loads one feedback entry.
func (r *Repository) GetCorrection(ctx context.Context, id int64) (Correction, error) {
	c, err := scanCorrection(r.pool.QueryRow(ctx,
		`SELECT `+correctionColumns+` FROM corrections WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Correction{}, shared.NewNotFoundError("correction", strconv.FormatInt(id, 10))
		}
		return Correction{}, err
	}
	return c, nil
}

// ListCorrections returns all feedback for one item, oldest first.
func (r *Repository) ListCorrections(ctx context.Context, workItemID int64) ([]Correction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+correctionColumns+` FROM corrections WHERE work_item_id=$1 ORDER BY id`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Correction
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveCorrection flips the resolved flag once.
func (r *Repository) ResolveCorrection(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE corrections SET resolved=true, resolved_at=$1
WHERE id=$2 AND resolved=false`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewStateError("resolved", "correction is already resolved")
	}
	return nil
}
