package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelhouse/reelhouse/internal/shared"
)

type mockRepository struct {
	payments map[int64]Payment
	accepted map[int64]bool
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{payments: make(map[int64]Payment), accepted: make(map[int64]bool), nextID: 1}
}

func (m *mockRepository) Insert(_ context.Context, payment Payment) (Payment, error) {
	payment.ID = m.nextID
	m.nextID++
	m.payments[payment.ID] = payment
	return payment, nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return Payment{}, shared.NewNotFoundError("payment", strconv.FormatInt(id, 10))
	}
	return p, nil
}

func (m *mockRepository) GetMany(_ context.Context, ids []int64) ([]Payment, error) {
	var out []Payment
	for _, id := range ids {
		if p, ok := m.payments[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) ListByProject(_ context.Context, projectID int64) ([]Payment, error) {
	var out []Payment
	for id := int64(1); id < m.nextID; id++ {
		if p, ok := m.payments[id]; ok && p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) PayoutByWorkItem(_ context.Context, workItemID int64) (Payment, error) {
	for id := int64(1); id < m.nextID; id++ {
		if p, ok := m.payments[id]; ok && p.WorkItemID == workItemID && p.Type == TypeEditorPayout {
			return p, nil
		}
	}
	return Payment{}, shared.NewNotFoundError("payout for work item", strconv.FormatInt(workItemID, 10))
}

func (m *mockRepository) SetPaid(_ context.Context, id int64, at time.Time, proof string) error {
	p, ok := m.payments[id]
	if !ok || p.Paid {
		return shared.NewStateError("paid", "payment is already settled")
	}
	p.Paid = true
	p.PaidAt = &at
	if proof != "" {
		p.PaymentScreenshot = proof
	}
	m.payments[id] = p
	return nil
}

func (m *mockRepository) SetReceived(_ context.Context, id int64, at time.Time) error {
	p, ok := m.payments[id]
	if !ok || !p.Paid || p.Received {
		return shared.NewStateError("received", "payment is already received or not yet paid")
	}
	p.Received = true
	p.ReceivedAt = &at
	m.payments[id] = p
	return nil
}

func (m *mockRepository) ApplyPenalty(_ context.Context, id int64, penalty, final float64, daysLate int, _ time.Time) error {
	p, ok := m.payments[id]
	if !ok || p.Paid || p.DeadlineCrossed {
		return nil
	}
	p.PenaltyAmount = penalty
	p.FinalAmount = final
	p.DeadlineCrossed = true
	p.DaysLate = daysLate
	m.payments[id] = p
	return nil
}

// AcceptAtomic mirrors the transactional acceptance: the guard runs first
// and the records land only when it passes.
func (m *mockRepository) AcceptAtomic(_ context.Context, in AtomicAccept) error {
	if m.accepted[in.ProjectID] {
		return shared.NewStateError("accepted", "project is already accepted or closed")
	}
	m.accepted[in.ProjectID] = true
	for _, rec := range in.Records {
		rec.ID = m.nextID
		m.nextID++
		m.payments[rec.ID] = rec
	}
	return nil
}

// SettleAtomic mirrors the row-guarded transaction: transitions are staged
// on a copy and committed only if every id passes its guard.
func (m *mockRepository) SettleAtomic(_ context.Context, in AtomicSettle) error {
	staged := make(map[int64]Payment, len(in.IDs))
	for _, id := range in.IDs {
		p, ok := m.payments[id]
		if !ok {
			return shared.NewNotFoundError("payment", strconv.FormatInt(id, 10))
		}
		switch in.Kind {
		case SettleEditor:
			if p.Paid {
				return shared.NewStateError("settled", "payment "+strconv.FormatInt(id, 10)+" is already settled")
			}
			at := in.At
			p.Paid = true
			p.PaidAt = &at
			if in.Proof != "" {
				p.PaymentScreenshot = in.Proof
			}
		case SettleClient:
			if p.Received {
				return shared.NewStateError("settled", "payment "+strconv.FormatInt(id, 10)+" is already settled")
			}
			at := in.At
			if !p.Paid {
				p.Paid = true
				p.PaidAt = &at
			}
			p.Received = true
			p.ReceivedAt = &at
			if in.Proof != "" {
				p.PaymentScreenshot = in.Proof
			}
		}
		sid := in.SettlementID
		p.SettlementID = &sid
		staged[id] = p
	}
	for id, p := range staged {
		m.payments[id] = p
	}
	for _, synth := range in.Synthesized {
		synth.ID = m.nextID
		m.nextID++
		m.payments[synth.ID] = synth
	}
	return nil
}

type countingBumper struct {
	bumps int
}

func (b *countingBumper) Bump(context.Context) error {
	b.bumps++
	return nil
}

func newTestService(t *testing.T) (*Service, *mockRepository, *countingBumper) {
	t.Helper()
	repo := newMockRepository()
	bumper := &countingBumper{}
	svc := NewService(repo, nil, nil, bumper, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) })
	return svc, repo, bumper
}

var testAdmin = shared.Identity{UserID: 1, Role: shared.RoleAdmin}

func TestCreatePayout(t *testing.T) {
	svc, _, _ := newTestService(t)

	t.Run("on time carries no penalty", func(t *testing.T) {
		p, err := svc.CreatePayout(context.Background(), PayoutInput{
			ProjectID: 1, WorkItemID: 10, EditorID: 7, Amount: 5000, Currency: "inr",
		})
		require.NoError(t, err)
		assert.Equal(t, 5000.0, p.OriginalAmount)
		assert.Equal(t, 0.0, p.PenaltyAmount)
		assert.Equal(t, 5000.0, p.FinalAmount)
		assert.Equal(t, "INR", p.Currency)
		assert.False(t, p.Paid)
	})

	t.Run("late crossing applies the flat penalty", func(t *testing.T) {
		p, err := svc.CreatePayout(context.Background(), PayoutInput{
			ProjectID: 1, WorkItemID: 11, EditorID: 7, Amount: 5000, Currency: "INR",
			Late: Lateness{DeadlineCrossed: true, DaysLate: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, 1000.0, p.PenaltyAmount)
		assert.Equal(t, 4000.0, p.FinalAmount)
		assert.True(t, p.DeadlineCrossed)
		assert.Equal(t, 2, p.DaysLate)
	})

	t.Run("missing editor", func(t *testing.T) {
		_, err := svc.CreatePayout(context.Background(), PayoutInput{ProjectID: 1, WorkItemID: 12, Amount: 100})
		assert.True(t, shared.IsNotFound(err))
	})
}

func TestEffectiveAmount(t *testing.T) {
	penalised := Payment{OriginalAmount: 10000, FinalAmount: 8000}
	assert.Equal(t, 8000.0, penalised.EffectiveAmount())

	// Legacy row without a final amount falls back to the original.
	imported := Payment{OriginalAmount: 10000}
	assert.Equal(t, 10000.0, imported.EffectiveAmount())
}

func TestMaterializeAcceptance(t *testing.T) {
	t.Run("late delivery mints the payout with its penalty", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		err := svc.MaterializeAcceptance(context.Background(), 1, []PayoutInput{
			{ProjectID: 1, WorkItemID: 10, EditorID: 7, Amount: 10000, Currency: "INR",
				Late: Lateness{DeadlineCrossed: true, DaysLate: 2}},
		}, nil)
		require.NoError(t, err)

		payout, err := repo.PayoutByWorkItem(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 2000.0, payout.PenaltyAmount)
		assert.Equal(t, 8000.0, payout.FinalAmount)
		assert.True(t, payout.DeadlineCrossed)
		assert.Equal(t, 2, payout.DaysLate)
	})

	t.Run("a refused record writes nothing", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		err := svc.MaterializeAcceptance(context.Background(), 2, []PayoutInput{
			{ProjectID: 2, WorkItemID: 20, EditorID: 7, Amount: 0, Currency: "INR"},
		}, &ChargeInput{ProjectID: 2, ClientID: 3, Amount: 5000, Currency: "INR"})
		var verr *shared.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Empty(t, repo.payments)
		assert.False(t, repo.accepted[2])
	})

	t.Run("repeat acceptance is a state conflict", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		payouts := []PayoutInput{{ProjectID: 3, WorkItemID: 30, EditorID: 7, Amount: 1000, Currency: "INR"}}
		require.NoError(t, svc.MaterializeAcceptance(context.Background(), 3, payouts, nil))
		err := svc.MaterializeAcceptance(context.Background(), 3, payouts, nil)
		var serr *shared.StateError
		require.True(t, errors.As(err, &serr))
	})
}

func TestApplyLatePenalty(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, err := svc.CreatePayout(context.Background(), PayoutInput{
		ProjectID: 1, WorkItemID: 10, EditorID: 7, Amount: 5000, Currency: "INR",
	})
	require.NoError(t, err)

	late := Lateness{DeadlineCrossed: true, DaysLate: 1}
	p, err := svc.ApplyLatePenalty(context.Background(), 10, late)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, p.PenaltyAmount)
	assert.Equal(t, 4000.0, p.FinalAmount)

	// Applied once: a second late submission does not stack.
	p, err = svc.ApplyLatePenalty(context.Background(), 10, Lateness{DeadlineCrossed: true, DaysLate: 5})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, p.PenaltyAmount)
	assert.Equal(t, 1, p.DaysLate)

	// Never retroactive: a paid payout keeps its amount.
	other, err := svc.CreatePayout(context.Background(), PayoutInput{
		ProjectID: 1, WorkItemID: 20, EditorID: 7, Amount: 3000, Currency: "INR",
	})
	require.NoError(t, err)
	_, err = svc.MarkPaid(context.Background(), testAdmin, other.ID, "")
	require.NoError(t, err)
	p, err = svc.ApplyLatePenalty(context.Background(), 20, late)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.PenaltyAmount)
	assert.Equal(t, 3000.0, repo.payments[other.ID].FinalAmount)
}

func TestCreateManual(t *testing.T) {
	svc, _, bumper := newTestService(t)

	t.Run("deduction is coerced negative", func(t *testing.T) {
		p, err := svc.CreateManual(context.Background(), testAdmin, ManualInput{
			Type: TypeDeduction, Amount: 250, Currency: "USD",
		})
		require.NoError(t, err)
		assert.Equal(t, -250.0, p.OriginalAmount)
		assert.Equal(t, -250.0, p.FinalAmount)
	})

	t.Run("mark paid immediately sets received for incoming", func(t *testing.T) {
		p, err := svc.CreateManual(context.Background(), testAdmin, ManualInput{
			Type: TypeClientCharge, ClientID: 3, Amount: 900, Currency: "USD", MarkPaidImmediately: true,
		})
		require.NoError(t, err)
		assert.True(t, p.Paid)
		assert.True(t, p.Received)
		assert.NotNil(t, p.ReceivedAt)
		assert.Positive(t, bumper.bumps)
	})

	t.Run("outgoing stays unreceived", func(t *testing.T) {
		p, err := svc.CreateManual(context.Background(), testAdmin, ManualInput{
			Type: TypeBonus, EditorID: 7, Amount: 100, Currency: "USD", MarkPaidImmediately: true,
		})
		require.NoError(t, err)
		assert.True(t, p.Paid)
		assert.False(t, p.Received)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		_, err := svc.CreateManual(context.Background(), testAdmin, ManualInput{Type: TypeBonus, Currency: "USD"})
		var verr *shared.ValidationError
		require.True(t, errors.As(err, &verr))
	})
}

func TestMarkPaidAndReceived(t *testing.T) {
	svc, _, _ := newTestService(t)
	charge, err := svc.CreateClientCharge(context.Background(), ChargeInput{
		ProjectID: 1, ClientID: 3, Amount: 8000, Currency: "INR",
	})
	require.NoError(t, err)

	// Received before paid is rejected.
	_, err = svc.MarkReceived(context.Background(), testAdmin, charge.ID)
	var serr *shared.StateError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "unpaid", serr.Current)

	paid, err := svc.MarkPaid(context.Background(), testAdmin, charge.ID, "upi-ref-991")
	require.NoError(t, err)
	assert.True(t, paid.Paid)
	assert.Equal(t, "upi-ref-991", paid.PaymentScreenshot)

	// Monotonic: paid cannot be re-paid.
	_, err = svc.MarkPaid(context.Background(), testAdmin, charge.ID, "")
	require.True(t, errors.As(err, &serr))

	received, err := svc.MarkReceived(context.Background(), testAdmin, charge.ID)
	require.NoError(t, err)
	assert.True(t, received.Received)

	_, err = svc.MarkReceived(context.Background(), testAdmin, charge.ID)
	require.True(t, errors.As(err, &serr))
}
