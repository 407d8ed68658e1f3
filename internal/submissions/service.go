package submissions

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/reelhouse/reelhouse/internal/breakdown"
	"github.com/reelhouse/reelhouse/internal/payments"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// RepositoryPort defines data access methods for submissions and
// corrections.
type RepositoryPort interface {
	InsertSubmission(ctx context.Context, sub Submission) (Submission, error)
	ListByWorkItem(ctx context.Context, workItemID int64) ([]Submission, error)
	CountByWorkItem(ctx context.Context, workItemID int64) (int, error)
	InsertCorrection(ctx context.Context, c Correction) (Correction, error)
	GetCorrection(ctx context.Context, id int64) (Correction, error)
	ListCorrections(ctx context.Context, workItemID int64) ([]Correction, error)
	ResolveCorrection(ctx context.Context, id int64, at time.Time) error
}

// WorkItemPort exposes the breakdown operations a delivery touches.
type WorkItemPort interface {
	GetItem(ctx context.Context, itemID int64) (breakdown.Item, error)
	MarkUnderReview(ctx context.Context, itemID int64) (breakdown.Item, error)
}

// PenaltyPort lets a late delivery stamp the flat penalty on the item's
// payout.
type PenaltyPort interface {
	ApplyLatePenalty(ctx context.Context, workItemID int64, late payments.Lateness) (payments.Payment, error)
}

// AuditPort records best-effort audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages deliveries and review corrections.
type Service struct {
	repo    RepositoryPort
	items   WorkItemPort
	penalty PenaltyPort
	audit   AuditPort
	emitter shared.EventEmitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, items WorkItemPort, penalty PenaltyPort, audit AuditPort, emitter shared.EventEmitter, logger *slog.Logger) *Service {
	if emitter == nil {
		emitter = shared.NopEmitter{}
	}
	return &Service{repo: repo, items: items, penalty: penalty, audit: audit, emitter: emitter, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID, description string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:     actorID,
		Action:      action,
		Entity:      "submission",
		EntityID:    entityID,
		Description: description,
		At:          s.now(),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// Submit records a delivery for a work item. Only the assigned editor may
// deliver. The first submission moves the item under review; later ones
// append without changing status. Lateness is judged against the item
// deadline at the moment of submission, and a late first crossing stamps
// the flat penalty on the payout exactly once. The penalty is never
// retroactive: a payout already settled keeps its paid amount.
func (s *Service) Submit(ctx context.Context, actor shared.Identity, in SubmitInput) (Submission, error) {
	if err := in.Validate(); err != nil {
		return Submission{}, err
	}
	item, err := s.items.GetItem(ctx, in.WorkItemID)
	if err != nil {
		return Submission{}, err
	}
	if item.Declined() {
		return Submission{}, shared.NewStateError(string(item.Status), "a declined work item cannot accept submissions")
	}
	if actor.Role == shared.RoleEditor && actor.UserID != item.AssignedEditor {
		return Submission{}, shared.NewPolicyError("only the assigned editor may submit work")
	}
	now := s.now()
	late := payments.EvaluateLateness(now, item.Deadline)
	count, err := s.repo.CountByWorkItem(ctx, in.WorkItemID)
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{
		WorkItemID:  item.ID,
		ProjectID:   item.ProjectID,
		EditorID:    item.AssignedEditor,
		Kind:        in.NormalizedKind(),
		FileURL:     in.FileURL,
		FileName:    in.FileName,
		Message:     in.Message,
		Status:      StatusPending,
		SubmittedAt: now,
		Late:        late.DeadlineCrossed,
		DaysLate:    late.DaysLate,
		CreatedAt:   now,
	}
	created, err := s.repo.InsertSubmission(ctx, sub)
	if err != nil {
		return Submission{}, err
	}
	if count == 0 {
		if _, err := s.items.MarkUnderReview(ctx, item.ID); err != nil {
			return Submission{}, err
		}
	}
	if late.DeadlineCrossed {
		// Before acceptance no payout exists yet; that is not an error,
		// the payout will carry the penalty when it is created.
		if _, err := s.penalty.ApplyLatePenalty(ctx, item.ID, late); err != nil && !shared.IsNotFound(err) {
			return Submission{}, err
		}
	}
	s.recordAudit(ctx, actor.UserID, "submission.created", strconv.FormatInt(created.ID, 10), in.FileURL)
	return created, nil
}

// List returns the delivery history of a work item, oldest first.
func (s *Service) List(ctx context.Context, workItemID int64) ([]Submission, error) {
	if _, err := s.items.GetItem(ctx, workItemID); err != nil {
		return nil, err
	}
	return s.repo.ListByWorkItem(ctx, workItemID)
}

// AddCorrection attaches reviewer feedback to a work item. Corrections do
// not rewind the item status; the editor answers with a new submission.
func (s *Service) AddCorrection(ctx context.Context, actor shared.Identity, in CorrectionInput) (Correction, error) {
	if err := in.Validate(); err != nil {
		return Correction{}, err
	}
	item, err := s.items.GetItem(ctx, in.WorkItemID)
	if err != nil {
		return Correction{}, err
	}
	if item.Declined() {
		return Correction{}, shared.NewStateError(string(item.Status), "a declined work item cannot accept corrections")
	}
	now := s.now()
	created, err := s.repo.InsertCorrection(ctx, Correction{
		WorkItemID: item.ID,
		AuthorID:   actor.UserID,
		Detail:     in.Detail,
		VoiceFile:  in.VoiceFile,
		MediaFiles: in.MediaFiles,
		CreatedAt:  now,
	})
	if err != nil {
		return Correction{}, err
	}
	s.recordAudit(ctx, actor.UserID, "correction.added", strconv.FormatInt(created.ID, 10), in.Detail)
	s.emitter.Emit(ctx, shared.NewEvent(shared.EventCorrectionAdded, "work_item",
		strconv.FormatInt(item.ID, 10), map[string]any{"correction_id": created.ID}))
	return created, nil
}

// ResolveCorrection marks one feedback entry handled. Only the assigned
// editor resolves, and resolution alone never advances the work item.
func (s *Service) ResolveCorrection(ctx context.Context, actor shared.Identity, correctionID int64) (Correction, error) {
	c, err := s.repo.GetCorrection(ctx, correctionID)
	if err != nil {
		return Correction{}, err
	}
	if c.Resolved {
		return Correction{}, shared.NewStateError("resolved", "correction is already resolved")
	}
	item, err := s.items.GetItem(ctx, c.WorkItemID)
	if err != nil {
		return Correction{}, err
	}
	if actor.Role == shared.RoleEditor && actor.UserID != item.AssignedEditor {
		return Correction{}, shared.NewPolicyError("only the assigned editor may resolve corrections")
	}
	now := s.now()
	if err := s.repo.ResolveCorrection(ctx, correctionID, now); err != nil {
		return Correction{}, err
	}
	c.Resolved = true
	c.ResolvedAt = &now
	s.recordAudit(ctx, actor.UserID, "correction.resolved", strconv.FormatInt(correctionID, 10), "")
	return c, nil
}

// ListCorrections returns all feedback for a work item, oldest first.
func (s *Service) ListCorrections(ctx context.Context, workItemID int64) ([]Correction, error) {
	if _, err := s.items.GetItem(ctx, workItemID); err != nil {
		return nil, err
	}
	return s.repo.ListCorrections(ctx, workItemID)
}
