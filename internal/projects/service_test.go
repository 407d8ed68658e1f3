package projects

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

	"github.com/reelhouse/reelhouse/internal/breakdown"
	"github.com/reelhouse/reelhouse/internal/payments"
	"github.com/reelhouse/reelhouse/internal/shared"
)

type mockRepository struct {
	projects map[int64]Project
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{projects: make(map[int64]Project), nextID: 1}
}

func (m *mockRepository) Insert(_ context.Context, project Project) (Project, error) {
	project.ID = m.nextID
	m.nextID++
	m.projects[project.ID] = project
	return project, nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return Project{}, shared.NewNotFoundError("project", strconv.FormatInt(id, 10))
	}
	return p, nil
}

func (m *mockRepository) List(_ context.Context, limit, offset int) ([]Project, error) {
	var out []Project
	for id := m.nextID - 1; id >= 1; id-- {
		if p, ok := m.projects[id]; ok && p.HiddenAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) UpdateAmounts(_ context.Context, id int64, clientAmount, amount float64, at time.Time) error {
	p, ok := m.projects[id]
	if !ok || p.Closed {
		return shared.NewStateError("closed", "a closed project is immutable")
	}
	p.ClientAmount = clientAmount
	p.Amount = amount
	p.UpdatedAt = at
	m.projects[id] = p
	return nil
}

func (m *mockRepository) MarkClosed(_ context.Context, id int64, at time.Time) error {
	p, ok := m.projects[id]
	if !ok || p.Closed {
		return shared.NewStateError("closed", "project is already closed")
	}
	p.Closed = true
	p.ClosedAt = &at
	p.UpdatedAt = at
	m.projects[id] = p
	return nil
}

type mockBreakdown struct {
	items       map[int64][]breakdown.Item
	recalcCalls []float64
}

func newMockBreakdown() *mockBreakdown {
	return &mockBreakdown{items: make(map[int64][]breakdown.Item)}
}

func (m *mockBreakdown) ValidateForAcceptance(_ context.Context, projectID int64) ([]breakdown.Item, error) {
	items := m.items[projectID]
	if err := breakdown.ValidatePercentages(items); err != nil {
		return nil, err
	}
	return items, nil
}

func (m *mockBreakdown) RecalculateForBudget(_ context.Context, projectID int64, budget float64) error {
	m.recalcCalls = append(m.recalcCalls, budget)
	return nil
}

func (m *mockBreakdown) ListItems(_ context.Context, projectID int64) ([]breakdown.Item, error) {
	return m.items[projectID], nil
}

type mockLedger struct {
	repo    *mockRepository
	payouts []payments.PayoutInput
	charges []payments.ChargeInput
	fail    error
}

// MaterializeAcceptance mirrors the transactional write: every record is
// validated and the accepted guard checked before anything lands.
func (m *mockLedger) MaterializeAcceptance(_ context.Context, projectID int64, payouts []payments.PayoutInput, charge *payments.ChargeInput) error {
	if m.fail != nil {
		return m.fail
	}
	for _, in := range payouts {
		if in.Amount <= 0 {
			return shared.NewValidationError("amount", in.Amount, "payout amount must be positive")
		}
	}
	p, ok := m.repo.projects[projectID]
	if !ok || p.Accepted || p.Closed {
		return shared.NewStateError("accepted", "project is already accepted or closed")
	}
	p.Accepted = true
	m.repo.projects[projectID] = p
	m.payouts = append(m.payouts, payouts...)
	if charge != nil {
		m.charges = append(m.charges, *charge)
	}
	return nil
}

type mockLateness struct {
	byItem map[int64]payments.Lateness
}

func (m *mockLateness) LatenessFor(_ context.Context, workItemID int64) (payments.Lateness, error) {
	return m.byItem[workItemID], nil
}

func newTestService(t *testing.T) (*Service, *mockRepository, *mockBreakdown, *mockLedger) {
	t.Helper()
	repo := newMockRepository()
	bd := newMockBreakdown()
	ledger := &mockLedger{repo: repo}
	svc := NewService(repo, bd, ledger, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC) })
	return svc, repo, bd, ledger
}

var admin = shared.Identity{UserID: 1, Role: shared.RoleAdmin}

func seedProject(t *testing.T, svc *Service) Project {
	t.Helper()
	p, err := svc.Create(context.Background(), admin, CreateProjectInput{
		ClientID:     3,
		Title:        "Product Launch Film",
		Currency:     "inr",
		ClientAmount: 15000,
		Amount:       10000,
		Deadline:     time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

func TestCreateNormalizesCurrency(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	p := seedProject(t, svc)
	assert.Equal(t, "INR", p.Currency)
	assert.False(t, p.Accepted)
	assert.False(t, p.Closed)
}

func TestUpdateAmountsRecalculatesBreakdown(t *testing.T) {
	svc, _, bd, _ := newTestService(t)
	p := seedProject(t, svc)

	budget := 20000.0
	updated, err := svc.UpdateAmounts(context.Background(), admin, UpdateAmountsInput{
		ProjectID: p.ID, Amount: &budget,
	})
	require.NoError(t, err)
	assert.Equal(t, 20000.0, updated.Amount)
	require.Len(t, bd.recalcCalls, 1)
	assert.Equal(t, 20000.0, bd.recalcCalls[0])

	// Same budget again: no recompute triggered.
	_, err = svc.UpdateAmounts(context.Background(), admin, UpdateAmountsInput{
		ProjectID: p.ID, Amount: &budget,
	})
	require.NoError(t, err)
	assert.Len(t, bd.recalcCalls, 1)
}

func TestAcceptMaterializesLedger(t *testing.T) {
	svc, repo, bd, ledger := newTestService(t)
	p := seedProject(t, svc)
	bd.items[p.ID] = []breakdown.Item{
		{ID: 1, ProjectID: p.ID, WorkType: "Edit", AssignedEditor: 7, Percentage: 60, Amount: 6000},
		{ID: 2, ProjectID: p.ID, WorkType: breakdown.WorkTypeFinalRender, AssignedEditor: 8, Percentage: 40, Amount: 4000},
	}

	accepted, err := svc.Accept(context.Background(), admin, p.ID)
	require.NoError(t, err)
	assert.True(t, accepted.Accepted)

	require.Len(t, ledger.payouts, 2)
	assert.Equal(t, int64(7), ledger.payouts[0].EditorID)
	assert.Equal(t, 6000.0, ledger.payouts[0].Amount)
	assert.Equal(t, "INR", ledger.payouts[0].Currency)

	require.Len(t, ledger.charges, 1)
	assert.Equal(t, 15000.0, ledger.charges[0].Amount)
	assert.Equal(t, int64(3), ledger.charges[0].ClientID)

	// Accepting twice is a state conflict.
	_, err = svc.Accept(context.Background(), admin, p.ID)
	var serr *shared.StateError
	require.True(t, errors.As(err, &serr))
	assert.True(t, repo.projects[p.ID].Accepted)
}

func TestAcceptRejectsIncompleteBreakdown(t *testing.T) {
	svc, repo, bd, ledger := newTestService(t)
	p := seedProject(t, svc)
	bd.items[p.ID] = []breakdown.Item{
		{ID: 1, ProjectID: p.ID, WorkType: "Edit", AssignedEditor: 7, Percentage: 30, Amount: 3000},
	}

	_, err := svc.Accept(context.Background(), admin, p.ID)
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 30.0, verr.Value)

	// Nothing materialized, project untouched.
	assert.Empty(t, ledger.payouts)
	assert.Empty(t, ledger.charges)
	assert.False(t, repo.projects[p.ID].Accepted)
}

func TestAcceptRequiresAssignedEditors(t *testing.T) {
	svc, _, bd, ledger := newTestService(t)
	p := seedProject(t, svc)
	bd.items[p.ID] = []breakdown.Item{
		{ID: 1, ProjectID: p.ID, WorkType: "Edit", Percentage: 100, Amount: 10000},
	}

	_, err := svc.Accept(context.Background(), admin, p.ID)
	require.True(t, shared.IsNotFound(err))
	assert.Empty(t, ledger.payouts)
}

func TestAcceptSkipsDeclinedItems(t *testing.T) {
	svc, _, bd, ledger := newTestService(t)
	p := seedProject(t, svc)
	bd.items[p.ID] = []breakdown.Item{
		{ID: 1, ProjectID: p.ID, AssignedEditor: 7, Percentage: 100, Amount: 10000},
		{ID: 2, ProjectID: p.ID, Percentage: 50, Status: breakdown.StatusDeclined},
	}

	_, err := svc.Accept(context.Background(), admin, p.ID)
	require.NoError(t, err)
	require.Len(t, ledger.payouts, 1)
	assert.Equal(t, int64(1), ledger.payouts[0].WorkItemID)
}

func TestAcceptCarriesDeliveryLateness(t *testing.T) {
	svc, _, bd, ledger := newTestService(t)
	svc.WithLateness(&mockLateness{byItem: map[int64]payments.Lateness{
		1: {DeadlineCrossed: true, DaysLate: 2},
	}})
	p := seedProject(t, svc)
	bd.items[p.ID] = []breakdown.Item{
		{ID: 1, ProjectID: p.ID, AssignedEditor: 7, Percentage: 100, Amount: 10000},
	}

	_, err := svc.Accept(context.Background(), admin, p.ID)
	require.NoError(t, err)

	// The item was delivered two days past its deadline before acceptance,
	// so the payout is minted with that crossing attached.
	require.Len(t, ledger.payouts, 1)
	assert.True(t, ledger.payouts[0].Late.DeadlineCrossed)
	assert.Equal(t, 2, ledger.payouts[0].Late.DaysLate)
}

func TestAcceptLeavesNoPartialState(t *testing.T) {
	t.Run("zero budget mints nothing", func(t *testing.T) {
		svc, repo, bd, ledger := newTestService(t)
		p, err := svc.Create(context.Background(), admin, CreateProjectInput{
			ClientID: 3, Title: "Unbudgeted Teaser", Currency: "INR",
			ClientAmount: 5000, Amount: 0,
			Deadline: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		bd.items[p.ID] = []breakdown.Item{
			{ID: 1, ProjectID: p.ID, AssignedEditor: 7, Percentage: 100, Amount: 0},
		}

		_, err = svc.Accept(context.Background(), admin, p.ID)
		var verr *shared.ValidationError
		require.True(t, errors.As(err, &verr))

		assert.False(t, repo.projects[p.ID].Accepted)
		assert.Empty(t, ledger.payouts)
		assert.Empty(t, ledger.charges)
	})

	t.Run("ledger failure leaves project unaccepted", func(t *testing.T) {
		svc, repo, bd, ledger := newTestService(t)
		p := seedProject(t, svc)
		bd.items[p.ID] = []breakdown.Item{
			{ID: 1, ProjectID: p.ID, AssignedEditor: 7, Percentage: 100, Amount: 10000},
		}
		ledger.fail = errors.New("insert refused")

		_, err := svc.Accept(context.Background(), admin, p.ID)
		require.Error(t, err)
		assert.False(t, repo.projects[p.ID].Accepted)

		// The same call succeeds once the ledger recovers.
		ledger.fail = nil
		accepted, err := svc.Accept(context.Background(), admin, p.ID)
		require.NoError(t, err)
		assert.True(t, accepted.Accepted)
	})
}

func TestClose(t *testing.T) {
	svc, repo, bd, _ := newTestService(t)
	p := seedProject(t, svc)
	bd.items[p.ID] = []breakdown.Item{
		{ID: 1, ProjectID: p.ID, AssignedEditor: 7, Percentage: 100, Amount: 10000},
	}

	_, err := svc.Accept(context.Background(), admin, p.ID)
	require.NoError(t, err)

	// Not fully approved yet.
	_, err = svc.Close(context.Background(), admin, p.ID)
	var serr *shared.StateError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "in_progress", serr.Current)

	bd.items[p.ID][0].AdminApproved = true
	bd.items[p.ID][0].ClientApproved = true

	closed, err := svc.Close(context.Background(), admin, p.ID)
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	require.NotNil(t, closed.ClosedAt)

	// Irreversible and conflict on repeat.
	_, err = svc.Close(context.Background(), admin, p.ID)
	require.True(t, errors.As(err, &serr))

	// Closed projects refuse amount edits.
	budget := 1.0
	_, err = svc.UpdateAmounts(context.Background(), admin, UpdateAmountsInput{ProjectID: p.ID, Amount: &budget})
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 10000.0, repo.projects[p.ID].Amount)
}

func TestCloseRequiresAcceptance(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	p := seedProject(t, svc)

	_, err := svc.Close(context.Background(), admin, p.ID)
	var serr *shared.StateError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "unaccepted", serr.Current)
}
