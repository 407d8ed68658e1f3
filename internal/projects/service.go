package projects

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/reelhouse/reelhouse/internal/breakdown"
	"github.com/reelhouse/reelhouse/internal/money"
	"github.com/reelhouse/reelhouse/internal/payments"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// RepositoryPort defines data access methods for projects.
type RepositoryPort interface {
	Insert(ctx context.Context, project Project) (Project, error)
	Get(ctx context.Context, id int64) (Project, error)
	List(ctx context.Context, limit, offset int) ([]Project, error)
	UpdateAmounts(ctx context.Context, id int64, clientAmount, amount float64, at time.Time) error
	MarkClosed(ctx context.Context, id int64, at time.Time) error
}

// BreakdownPort exposes the work breakdown operations acceptance and
// closing depend on.
type BreakdownPort interface {
	ValidateForAcceptance(ctx context.Context, projectID int64) ([]breakdown.Item, error)
	RecalculateForBudget(ctx context.Context, projectID int64, budget float64) error
	ListItems(ctx context.Context, projectID int64) ([]breakdown.Item, error)
}

// LedgerPort materializes payment records on lifecycle transitions. The
// acceptance ledger and the accepted flag commit together: a refused
// record leaves the project unaccepted with nothing written.
type LedgerPort interface {
	MaterializeAcceptance(ctx context.Context, projectID int64, payouts []payments.PayoutInput, charge *payments.ChargeInput) error
}

// LatenessPort reports the deadline outcome of an item's deliveries, so a
// payout minted at acceptance carries the penalty for work already
// delivered late.
type LatenessPort interface {
	LatenessFor(ctx context.Context, workItemID int64) (payments.Lateness, error)
}

// AuditPort records best-effort audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the project lifecycle.
type Service struct {
	repo      RepositoryPort
	breakdown BreakdownPort
	ledger    LedgerPort
	lateness  LatenessPort
	audit     AuditPort
	emitter   shared.EventEmitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, bd BreakdownPort, ledger LedgerPort, audit AuditPort, emitter shared.EventEmitter, logger *slog.Logger) *Service {
	if emitter == nil {
		emitter = shared.NopEmitter{}
	}
	return &Service{repo: repo, breakdown: bd, ledger: ledger, audit: audit, emitter: emitter, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLateness attaches the delivery lateness lookup used at acceptance.
func (s *Service) WithLateness(lateness LatenessPort) {
	s.lateness = lateness
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, projectID int64, description string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:     actorID,
		Action:      action,
		Entity:      "project",
		EntityID:    strconv.FormatInt(projectID, 10),
		Description: description,
		At:          s.now(),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// Create registers a new project. It starts unaccepted: no work breakdown
// items exist until the breakdown is drafted and the project accepted.
func (s *Service) Create(ctx context.Context, actor shared.Identity, in CreateProjectInput) (Project, error) {
	if err := in.Validate(); err != nil {
		return Project{}, err
	}
	now := s.now()
	project := Project{
		ClientID:     in.ClientID,
		Title:        in.Title,
		Currency:     money.NormalizeCurrency(in.Currency),
		ClientAmount: money.Round2(in.ClientAmount),
		Amount:       money.Round2(in.Amount),
		Deadline:     in.Deadline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.repo.Insert(ctx, project)
	if err != nil {
		return Project{}, err
	}
	s.recordAudit(ctx, actor.UserID, "project.created", created.ID, created.Title)
	return created, nil
}

// UpdateAmounts edits the client amount and the allocated budget. A budget
// change recomputes every work item's amount from its own percentage; the
// split itself is never rebalanced.
func (s *Service) UpdateAmounts(ctx context.Context, actor shared.Identity, in UpdateAmountsInput) (Project, error) {
	project, err := s.repo.Get(ctx, in.ProjectID)
	if err != nil {
		return Project{}, err
	}
	if project.Closed {
		return Project{}, shared.NewStateError("closed", "a closed project is immutable")
	}
	clientAmount := project.ClientAmount
	amount := project.Amount
	if in.ClientAmount != nil {
		if *in.ClientAmount < 0 {
			return Project{}, shared.NewValidationError("clientAmount", *in.ClientAmount, "client amount must not be negative")
		}
		clientAmount = money.Round2(*in.ClientAmount)
	}
	budgetChanged := false
	if in.Amount != nil {
		if *in.Amount < 0 {
			return Project{}, shared.NewValidationError("amount", *in.Amount, "allocated amount must not be negative")
		}
		amount = money.Round2(*in.Amount)
		budgetChanged = amount != project.Amount
	}
	now := s.now()
	if err := s.repo.UpdateAmounts(ctx, project.ID, clientAmount, amount, now); err != nil {
		return Project{}, err
	}
	if budgetChanged {
		if err := s.breakdown.RecalculateForBudget(ctx, project.ID, amount); err != nil {
			return Project{}, err
		}
	}
	project.ClientAmount = clientAmount
	project.Amount = amount
	project.UpdatedAt = now
	s.recordAudit(ctx, actor.UserID, "project.amounts_updated", project.ID, "")
	return project, nil
}

// Accept finalizes the work breakdown and materializes the ledger: one
// editor payout per non-declined item and a single client charge for the
// client amount. A payout for an item already delivered late is minted
// with its penalty folded in. Fails when the non-declined percentages do
// not sum to 100 within tolerance, or when any item lacks an assigned
// editor; a failure leaves the project unaccepted and the ledger empty.
func (s *Service) Accept(ctx context.Context, actor shared.Identity, projectID int64) (Project, error) {
	project, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	if project.Closed {
		return Project{}, shared.NewStateError("closed", "a closed project cannot be accepted")
	}
	if project.Accepted {
		return Project{}, shared.NewStateError("accepted", "project is already accepted")
	}
	items, err := s.breakdown.ValidateForAcceptance(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	var payouts []payments.PayoutInput
	for _, item := range items {
		if item.Declined() {
			continue
		}
		if item.AssignedEditor == 0 {
			return Project{}, shared.NewNotFoundError("assigned editor for work item", strconv.FormatInt(item.ID, 10))
		}
		var late payments.Lateness
		if s.lateness != nil {
			late, err = s.lateness.LatenessFor(ctx, item.ID)
			if err != nil {
				return Project{}, err
			}
		}
		payouts = append(payouts, payments.PayoutInput{
			ProjectID:  projectID,
			WorkItemID: item.ID,
			EditorID:   item.AssignedEditor,
			Amount:     item.Amount,
			Currency:   project.Currency,
			Late:       late,
		})
	}
	var charge *payments.ChargeInput
	if project.ClientAmount > 0 {
		charge = &payments.ChargeInput{
			ProjectID: projectID,
			ClientID:  project.ClientID,
			Amount:    project.ClientAmount,
			Currency:  project.Currency,
		}
	}
	if err := s.ledger.MaterializeAcceptance(ctx, projectID, payouts, charge); err != nil {
		return Project{}, err
	}
	project.Accepted = true
	project.UpdatedAt = s.now()
	s.recordAudit(ctx, actor.UserID, "project.accepted", projectID, project.Title)
	s.emitter.Emit(ctx, shared.NewEvent(shared.EventProjectAccepted, "project", strconv.FormatInt(projectID, 10), nil))
	return project, nil
}

// Close marks the project closed. Manual, admin-only, and irreversible.
// Completion is re-verified at the moment of closing rather than trusting
// any earlier progress read: a correction between the UI read and this
// call must block the close.
func (s *Service) Close(ctx context.Context, actor shared.Identity, projectID int64) (Project, error) {
	project, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	if project.Closed {
		return Project{}, shared.NewStateError("closed", "project is already closed")
	}
	if !project.Accepted {
		return Project{}, shared.NewStateError("unaccepted", "project has not been accepted")
	}
	items, err := s.breakdown.ListItems(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	progress := breakdown.Progress(items)
	if len(items) == 0 || progress < 100 {
		return Project{}, shared.NewStateError(
			"in_progress", "project is not fully approved: progress "+strconv.FormatFloat(progress, 'f', 1, 64)+"%")
	}
	now := s.now()
	if err := s.repo.MarkClosed(ctx, projectID, now); err != nil {
		return Project{}, err
	}
	project.Closed = true
	project.ClosedAt = &now
	project.UpdatedAt = now
	s.recordAudit(ctx, actor.UserID, "project.closed", projectID, project.Title)
	s.emitter.Emit(ctx, shared.NewEvent(shared.EventProjectClosed, "project", strconv.FormatInt(projectID, 10), nil))
	return project, nil
}

// Get loads one project.
func (s *Service) Get(ctx context.Context, id int64) (Project, error) {
	return s.repo.Get(ctx, id)
}

// List returns visible projects, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// Progress recomputes completion on every query.
func (s *Service) Progress(ctx context.Context, projectID int64) (float64, error) {
	if _, err := s.repo.Get(ctx, projectID); err != nil {
		return 0, err
	}
	items, err := s.breakdown.ListItems(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return breakdown.Progress(items), nil
}
