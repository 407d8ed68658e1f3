package payments

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/reelhouse/reelhouse/internal/money"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// RepositoryPort defines data access methods for the payment ledger.
type RepositoryPort interface {
	Insert(ctx context.Context, payment Payment) (Payment, error)
	Get(ctx context.Context, id int64) (Payment, error)
	GetMany(ctx context.Context, ids []int64) ([]Payment, error)
	ListByProject(ctx context.Context, projectID int64) ([]Payment, error)
	PayoutByWorkItem(ctx context.Context, workItemID int64) (Payment, error)
	SetPaid(ctx context.Context, id int64, at time.Time, proof string) error
	SetReceived(ctx context.Context, id int64, at time.Time) error
	ApplyPenalty(ctx context.Context, id int64, penalty, final float64, daysLate int, at time.Time) error
	AcceptAtomic(ctx context.Context, in AtomicAccept) error
	SettleAtomic(ctx context.Context, in AtomicSettle) error
}

// AtomicAccept is the all-or-nothing write project acceptance hands to the
// repository. The accepted flag flips and every ledger record lands in the
// same transaction, or nothing changes.
type AtomicAccept struct {
	ProjectID int64
	At        time.Time
	Records   []Payment
}

// AtomicSettle is the all-or-nothing write a bulk settlement hands to the
// repository. Either every id transitions and the synthesized record lands,
// or nothing does.
type AtomicSettle struct {
	Kind         SettlementKind
	IDs          []int64
	SettlementID uuid.UUID
	At           time.Time
	Proof        string
	Synthesized  []Payment
}

// AuditPort records best-effort audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RollupInvalidator bumps the cached financial rollups after settlement.
type RollupInvalidator interface {
	Bump(ctx context.Context) error
}

// ProjectGate reports whether a project is closed. Client charges are
// created at acceptance but become payable only after closure.
type ProjectGate interface {
	ProjectClosed(ctx context.Context, projectID int64) (bool, error)
}

// Service handles ledger business logic.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	emitter shared.EventEmitter
	rollups RollupInvalidator
	gate    ProjectGate
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort, emitter shared.EventEmitter, rollups RollupInvalidator, logger *slog.Logger) *Service {
	if emitter == nil {
		emitter = shared.NopEmitter{}
	}
	return &Service{repo: repo, audit: audit, emitter: emitter, rollups: rollups, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithProjectGate attaches the closure check for client charges.
func (s *Service) WithProjectGate(gate ProjectGate) {
	s.gate = gate
}

func (s *Service) chargePayable(ctx context.Context, p Payment) error {
	if p.Type != TypeClientCharge || s.gate == nil || p.ProjectID == 0 {
		return nil
	}
	closed, err := s.gate.ProjectClosed(ctx, p.ProjectID)
	if err != nil {
		return err
	}
	if !closed {
		return shared.NewStateError("open", "client charge is payable only after the project closes")
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID, description string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:     actorID,
		Action:      action,
		Entity:      "payment",
		EntityID:    entityID,
		Description: description,
		At:          s.now(),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) bumpRollups(ctx context.Context) {
	if s.rollups == nil {
		return
	}
	if err := s.rollups.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("rollup cache bump failed", slog.Any("error", err))
	}
}

func buildPayout(in PayoutInput, now time.Time) (Payment, error) {
	if in.EditorID == 0 {
		return Payment{}, shared.NewNotFoundError("assigned editor", "")
	}
	if in.Amount <= 0 {
		return Payment{}, shared.NewValidationError("amount", in.Amount, "payout amount must be positive")
	}
	original := money.Round2(in.Amount)
	penalty := PenaltyFor(original, in.Late.DeadlineCrossed)
	return Payment{
		Type:            TypeEditorPayout,
		ProjectID:       in.ProjectID,
		WorkItemID:      in.WorkItemID,
		EditorID:        in.EditorID,
		OriginalAmount:  original,
		PenaltyAmount:   penalty,
		FinalAmount:     money.Round2(original - penalty),
		Currency:        money.NormalizeCurrency(in.Currency),
		DeadlineCrossed: in.Late.DeadlineCrossed,
		DaysLate:        in.Late.DaysLate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func buildClientCharge(in ChargeInput, now time.Time) (Payment, error) {
	if in.ClientID == 0 {
		return Payment{}, shared.NewNotFoundError("client", "")
	}
	if in.Amount <= 0 {
		return Payment{}, shared.NewValidationError("amount", in.Amount, "charge amount must be positive")
	}
	amount := money.Round2(in.Amount)
	return Payment{
		Type:           TypeClientCharge,
		ProjectID:      in.ProjectID,
		ClientID:       in.ClientID,
		OriginalAmount: amount,
		FinalAmount:    amount,
		Currency:       money.NormalizeCurrency(in.Currency),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CreatePayout materializes an editor payout from a work breakdown item,
// applying the flat late penalty when the qualifying submission was late.
func (s *Service) CreatePayout(ctx context.Context, in PayoutInput) (Payment, error) {
	payment, err := buildPayout(in, s.now())
	if err != nil {
		return Payment{}, err
	}
	return s.repo.Insert(ctx, payment)
}

// CreateClientCharge materializes the single client charge for a project,
// created at acceptance time and payable only after closure.
func (s *Service) CreateClientCharge(ctx context.Context, in ChargeInput) (Payment, error) {
	payment, err := buildClientCharge(in, s.now())
	if err != nil {
		return Payment{}, err
	}
	return s.repo.Insert(ctx, payment)
}

// MaterializeAcceptance mints the acceptance ledger for a project: one
// editor payout per input, plus the client charge when one is given. Every
// record is validated before anything is written, and the accepted flag
// flips in the same transaction as the inserts, so a refused record or a
// failed write leaves the project unaccepted with an empty ledger.
func (s *Service) MaterializeAcceptance(ctx context.Context, projectID int64, payouts []PayoutInput, charge *ChargeInput) error {
	now := s.now()
	records := make([]Payment, 0, len(payouts)+1)
	for _, in := range payouts {
		rec, err := buildPayout(in, now)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if charge != nil {
		rec, err := buildClientCharge(*charge, now)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return s.repo.AcceptAtomic(ctx, AtomicAccept{ProjectID: projectID, At: now, Records: records})
}

// CreateManual records an admin-initiated bonus, deduction, or out-of-band
// payout/charge. Deductions are coerced to a negative sign; all other
// amounts are stored as provided.
func (s *Service) CreateManual(ctx context.Context, actor shared.Identity, in ManualInput) (Payment, error) {
	if !in.Type.Valid() {
		return Payment{}, shared.NewValidationError("type", string(in.Type), "unknown payment type")
	}
	if in.Amount == 0 {
		return Payment{}, shared.NewValidationError("amount", in.Amount, "amount must be non-zero")
	}
	amount := money.Round2(in.Amount)
	if in.Type == TypeDeduction {
		amount = -math.Abs(amount)
	}
	now := s.now()
	payment := Payment{
		Type:           in.Type,
		ProjectID:      in.ProjectID,
		EditorID:       in.EditorID,
		ClientID:       in.ClientID,
		Description:    in.Description,
		OriginalAmount: amount,
		FinalAmount:    amount,
		Currency:       money.NormalizeCurrency(in.Currency),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.MarkPaidImmediately {
		payment.Paid = true
		payment.PaidAt = &now
		if in.Type.Incoming() {
			payment.Received = true
			payment.ReceivedAt = &now
		}
	}
	created, err := s.repo.Insert(ctx, payment)
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, actor.UserID, "payment.manual_created", strconv.FormatInt(created.ID, 10), in.Description)
	if created.Paid {
		s.bumpRollups(ctx)
	}
	return created, nil
}

// ApplyLatePenalty stamps the flat penalty onto a work item's payout after
// a late submission. Computed once: an already-penalised or already-paid
// payout is left untouched.
func (s *Service) ApplyLatePenalty(ctx context.Context, workItemID int64, late Lateness) (Payment, error) {
	payout, err := s.repo.PayoutByWorkItem(ctx, workItemID)
	if err != nil {
		return Payment{}, err
	}
	if !late.DeadlineCrossed || payout.Paid || payout.DeadlineCrossed {
		return payout, nil
	}
	penalty := PenaltyFor(payout.OriginalAmount, true)
	final := money.Round2(payout.OriginalAmount - penalty)
	if err := s.repo.ApplyPenalty(ctx, payout.ID, penalty, final, late.DaysLate, s.now()); err != nil {
		return Payment{}, err
	}
	payout.PenaltyAmount = penalty
	payout.FinalAmount = final
	payout.DeadlineCrossed = true
	payout.DaysLate = late.DaysLate
	return payout, nil
}

// MarkPaid transitions a single record to paid with an optional proof
// reference. Monotonic: re-invoking on a paid record is a StateError.
func (s *Service) MarkPaid(ctx context.Context, actor shared.Identity, id int64, proof string) (Payment, error) {
	payment, err := s.repo.Get(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if payment.Paid {
		return Payment{}, shared.NewStateError("paid", "payment is already settled")
	}
	if err := s.chargePayable(ctx, payment); err != nil {
		return Payment{}, err
	}
	now := s.now()
	if err := s.repo.SetPaid(ctx, id, now, proof); err != nil {
		return Payment{}, err
	}
	payment.Paid = true
	payment.PaidAt = &now
	payment.PaymentScreenshot = proof
	s.recordAudit(ctx, actor.UserID, "payment.paid", strconv.FormatInt(id, 10), "")
	s.emitter.Emit(ctx, shared.NewEvent(shared.EventPaymentSettled, "payment", strconv.FormatInt(id, 10), nil))
	s.bumpRollups(ctx)
	return payment, nil
}

// MarkReceived confirms incoming money arrived. Requires the record to be
// paid first; received is never unset.
func (s *Service) MarkReceived(ctx context.Context, actor shared.Identity, id int64) (Payment, error) {
	payment, err := s.repo.Get(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if !payment.Paid {
		return Payment{}, shared.NewStateError("unpaid", "payment must be marked paid before received")
	}
	if payment.Received {
		return Payment{}, shared.NewStateError("received", "payment is already received")
	}
	now := s.now()
	if err := s.repo.SetReceived(ctx, id, now); err != nil {
		return Payment{}, err
	}
	payment.Received = true
	payment.ReceivedAt = &now
	s.recordAudit(ctx, actor.UserID, "payment.received", strconv.FormatInt(id, 10), "")
	s.bumpRollups(ctx)
	return payment, nil
}

// Get loads one ledger record.
func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	return s.repo.Get(ctx, id)
}

// ListByProject returns the ledger records of one project.
func (s *Service) ListByProject(ctx context.Context, projectID int64) ([]Payment, error) {
	return s.repo.ListByProject(ctx, projectID)
}
