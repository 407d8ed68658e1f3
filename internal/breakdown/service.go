package breakdown

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/reelhouse/reelhouse/internal/shared"
)

// RepositoryPort defines data access methods for work breakdown items.
type RepositoryPort interface {
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, id int64) error
	GetItem(ctx context.Context, id int64) (Item, error)
	ListByProject(ctx context.Context, projectID int64) ([]Item, error)
	ReplaceAmounts(ctx context.Context, items []Item) error
}

// ProjectGate exposes the project state the gate decisions depend on.
type ProjectGate interface {
	ProjectState(ctx context.Context, projectID int64) (ProjectState, error)
}

// AuditPort records best-effort audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReviewSink is told when an item gathers both signoffs so the latest
// submission can be stamped approved.
type ReviewSink interface {
	MarkApproved(ctx context.Context, workItemID int64) error
}

// Service orchestrates the work breakdown allocator and the dual approval
// gate.
type Service struct {
	repo     RepositoryPort
	projects ProjectGate
	audit    AuditPort
	review   ReviewSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, projects ProjectGate, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, projects: projects, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithReviewSink attaches the submission tracker. Optional: without it a
// dual approval simply leaves the delivery history untouched.
func (s *Service) WithReviewSink(sink ReviewSink) {
	s.review = sink
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Identity, action, entityID, description string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:     actor.UserID,
		Action:      action,
		Entity:      "work_item",
		EntityID:    entityID,
		Description: description,
		At:          s.now(),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) mutableProject(ctx context.Context, projectID int64) (ProjectState, error) {
	project, err := s.projects.ProjectState(ctx, projectID)
	if err != nil {
		return ProjectState{}, err
	}
	if project.Closed {
		return ProjectState{}, shared.NewStateError("closed", "breakdown of a closed project is immutable")
	}
	return project, nil
}

// AddItem creates a work breakdown item with its amount derived from the
// project's current allocated budget.
func (s *Service) AddItem(ctx context.Context, actor shared.Identity, in AddItemInput) (Item, error) {
	if in.WorkType == "" {
		return Item{}, shared.NewValidationError("workType", in.WorkType, "work type is required")
	}
	if in.Percentage <= 0 || in.Percentage > 100 {
		return Item{}, shared.NewValidationError("percentage", in.Percentage, "percentage must be between 0 and 100")
	}
	project, err := s.mutableProject(ctx, in.ProjectID)
	if err != nil {
		return Item{}, err
	}
	now := s.now()
	item := Item{
		ProjectID:      in.ProjectID,
		WorkType:       in.WorkType,
		AssignedEditor: in.AssignedEditor,
		Percentage:     in.Percentage,
		Amount:         ItemAmount(project.Amount, in.Percentage),
		Deadline:       in.Deadline,
		Status:         StatusPending,
		ShareDetails:   in.ShareDetails,
		Links:          in.Links,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.repo.InsertItem(ctx, item)
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actor, "work_item.added", strconv.FormatInt(created.ID, 10), created.WorkType)
	return created, nil
}

// UpdateItem edits an item. A percentage change recomputes only this item's
// amount against the current budget; the remainder is never redistributed
// among the other items.
func (s *Service) UpdateItem(ctx context.Context, actor shared.Identity, in UpdateItemInput) (Item, error) {
	item, err := s.repo.GetItem(ctx, in.ItemID)
	if err != nil {
		return Item{}, err
	}
	if item.Declined() {
		return Item{}, shared.NewStateError(string(item.Status), "declined work items cannot be edited")
	}
	project, err := s.mutableProject(ctx, item.ProjectID)
	if err != nil {
		return Item{}, err
	}
	if in.WorkType != nil {
		if item.WorkType == WorkTypeFinalRender && *in.WorkType != WorkTypeFinalRender {
			return Item{}, shared.NewPolicyError("the Final Render item cannot be retyped")
		}
		item.WorkType = *in.WorkType
	}
	if in.AssignedEditor != nil {
		item.AssignedEditor = *in.AssignedEditor
	}
	if in.Percentage != nil {
		if *in.Percentage <= 0 || *in.Percentage > 100 {
			return Item{}, shared.NewValidationError("percentage", *in.Percentage, "percentage must be between 0 and 100")
		}
		item.Percentage = *in.Percentage
	}
	if in.Deadline != nil {
		item.Deadline = *in.Deadline
	}
	if in.ShareDetails != nil {
		item.ShareDetails = *in.ShareDetails
	}
	if in.Links != nil {
		item.Links = in.Links
	}
	item.Amount = ItemAmount(project.Amount, item.Percentage)
	item.UpdatedAt = s.now()
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actor, "work_item.updated", strconv.FormatInt(item.ID, 10), item.WorkType)
	return item, nil
}

// RemoveItem deletes an item. The Final Render anchor item is protected
// from removal regardless of project mode.
func (s *Service) RemoveItem(ctx context.Context, actor shared.Identity, itemID int64) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.WorkType == WorkTypeFinalRender {
		return shared.NewPolicyError("the Final Render item cannot be removed")
	}
	if _, err := s.mutableProject(ctx, item.ProjectID); err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "work_item.removed", strconv.FormatInt(itemID, 10), item.WorkType)
	return nil
}

// RecalculateForBudget recomputes every item amount after the project's
// allocated budget changed.
func (s *Service) RecalculateForBudget(ctx context.Context, projectID int64, budget float64) error {
	items, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return s.repo.ReplaceAmounts(ctx, Recalculate(budget, items))
}

// Approve records one side of the dual signoff. Admin and client approve
// independently and in any order; an approval is never unset.
func (s *Service) Approve(ctx context.Context, actor shared.Identity, itemID int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	if item.Declined() {
		return Item{}, shared.NewPolicyError("cannot approve a declined work item")
	}
	switch actor.Role {
	case shared.RoleAdmin:
		item.AdminApproved = true
	case shared.RoleClient:
		item.ClientApproved = true
	default:
		return Item{}, shared.NewPolicyError("only the admin or the client may approve a work item")
	}
	item.UpdatedAt = s.now()
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return Item{}, err
	}
	if item.AdminApproved && item.ClientApproved && s.review != nil {
		if err := s.review.MarkApproved(ctx, item.ID); err != nil && s.logger != nil {
			s.logger.Warn("mark submission approved failed",
				slog.Int64("item_id", item.ID), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actor, "work_item.approved", strconv.FormatInt(item.ID, 10), string(actor.Role))
	return item, nil
}

// Decline lets the assigned editor refuse the item. Terminal: the item is
// excluded from progress weighting and forecloses further submissions.
func (s *Service) Decline(ctx context.Context, actor shared.Identity, itemID int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	if actor.Role != shared.RoleEditor || actor.UserID != item.AssignedEditor {
		return Item{}, shared.NewPolicyError("only the assigned editor may decline a work item")
	}
	switch item.Status {
	case StatusPending, StatusUnderReview:
	default:
		return Item{}, shared.NewStateError(string(item.Status), "work item cannot be declined in its current state")
	}
	item.Status = StatusDeclined
	item.UpdatedAt = s.now()
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actor, "work_item.declined", strconv.FormatInt(item.ID, 10), item.WorkType)
	return item, nil
}

// StartWork moves a pending item to in_progress. Only the assigned editor
// may start.
func (s *Service) StartWork(ctx context.Context, actor shared.Identity, itemID int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	if actor.Role != shared.RoleEditor || actor.UserID != item.AssignedEditor {
		return Item{}, shared.NewPolicyError("only the assigned editor may start a work item")
	}
	if item.Status != StatusPending {
		return Item{}, shared.NewStateError(string(item.Status), "work item is not pending")
	}
	item.Status = StatusInProgress
	item.UpdatedAt = s.now()
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// MarkUnderReview transitions an item on its first submission. Invoked by
// the submission tracker, not exposed over HTTP.
func (s *Service) MarkUnderReview(ctx context.Context, itemID int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	switch item.Status {
	case StatusUnderReview:
		return item, nil
	case StatusPending, StatusInProgress:
	default:
		return Item{}, shared.NewStateError(string(item.Status), "work item cannot enter review")
	}
	item.Status = StatusUnderReview
	item.UpdatedAt = s.now()
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// GetItem loads a single item.
func (s *Service) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

// ListItems returns the breakdown of a project.
func (s *Service) ListItems(ctx context.Context, projectID int64) ([]Item, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// Progress recomputes overall completion from current approvals on every
// query. Never cached: a correction could invalidate a stale figure.
func (s *Service) Progress(ctx context.Context, projectID int64) (float64, error) {
	items, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return Progress(items), nil
}

// ValidateForAcceptance checks that the project's non-declined percentages
// sum to 100 within tolerance before the project may be accepted.
func (s *Service) ValidateForAcceptance(ctx context.Context, projectID int64) ([]Item, error) {
	items, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := ValidatePercentages(items); err != nil {
		return nil, err
	}
	return items, nil
}
