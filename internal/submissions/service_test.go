package submissions

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
	submissions map[int64]Submission
	corrections map[int64]Correction
	nextSubID   int64
	nextCorrID  int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		submissions: make(map[int64]Submission),
		corrections: make(map[int64]Correction),
		nextSubID:   1,
		nextCorrID:  1,
	}
}

func (m *mockRepository) InsertSubmission(_ context.Context, sub Submission) (Submission, error) {
	sub.ID = m.nextSubID
	m.nextSubID++
	m.submissions[sub.ID] = sub
	return sub, nil
}

func (m *mockRepository) ListByWorkItem(_ context.Context, workItemID int64) ([]Submission, error) {
	var out []Submission
	for id := int64(1); id < m.nextSubID; id++ {
		if s, ok := m.submissions[id]; ok && s.WorkItemID == workItemID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockRepository) CountByWorkItem(_ context.Context, workItemID int64) (int, error) {
	n := 0
	for _, s := range m.submissions {
		if s.WorkItemID == workItemID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) InsertCorrection(_ context.Context, c Correction) (Correction, error) {
	c.ID = m.nextCorrID
	m.nextCorrID++
	m.corrections[c.ID] = c
	return c, nil
}

func (m *mockRepository) GetCorrection(_ context.Context, id int64) (Correction, error) {
	c, ok := m.corrections[id]
	if !ok {
		return Correction{}, shared.NewNotFoundError("correction", strconv.FormatInt(id, 10))
	}
	return c, nil
}

func (m *mockRepository) ListCorrections(_ context.Context, workItemID int64) ([]Correction, error) {
	var out []Correction
	for id := int64(1); id < m.nextCorrID; id++ {
		if c, ok := m.corrections[id]; ok && c.WorkItemID == workItemID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepository) ResolveCorrection(_ context.Context, id int64, at time.Time) error {
	c, ok := m.corrections[id]
	if !ok || c.Resolved {
		return shared.NewStateError("resolved", "correction is already resolved")
	}
	c.Resolved = true
	c.ResolvedAt = &at
	m.corrections[id] = c
	return nil
}

type mockItems struct {
	items       map[int64]breakdown.Item
	reviewMarks []int64
}

func (m *mockItems) GetItem(_ context.Context, itemID int64) (breakdown.Item, error) {
	item, ok := m.items[itemID]
	if !ok {
		return breakdown.Item{}, shared.NewNotFoundError("work item", strconv.FormatInt(itemID, 10))
	}
	return item, nil
}

func (m *mockItems) MarkUnderReview(_ context.Context, itemID int64) (breakdown.Item, error) {
	item := m.items[itemID]
	item.Status = breakdown.StatusUnderReview
	m.items[itemID] = item
	m.reviewMarks = append(m.reviewMarks, itemID)
	return item, nil
}

type mockPenalty struct {
	calls []payments.Lateness
	err   error
}

func (m *mockPenalty) ApplyLatePenalty(_ context.Context, _ int64, late payments.Lateness) (payments.Payment, error) {
	if m.err != nil {
		return payments.Payment{}, m.err
	}
	m.calls = append(m.calls, late)
	return payments.Payment{}, nil
}

var (
	testClock = time.Date(2025, 7, 10, 18, 0, 0, 0, time.UTC)
	editor    = shared.Identity{UserID: 7, Role: shared.RoleEditor}
	admin     = shared.Identity{UserID: 1, Role: shared.RoleAdmin}
)

func newTestService(t *testing.T) (*Service, *mockRepository, *mockItems, *mockPenalty) {
	t.Helper()
	repo := newMockRepository()
	items := &mockItems{items: map[int64]breakdown.Item{
		10: {
			ID:             10,
			ProjectID:      1,
			WorkType:       "Edit",
			AssignedEditor: 7,
			Status:         breakdown.StatusInProgress,
			Deadline:       testClock.Add(24 * time.Hour),
		},
	}}
	penalty := &mockPenalty{}
	svc := NewService(repo, items, penalty, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return testClock })
	return svc, repo, items, penalty
}

func TestSubmitFirstMovesUnderReview(t *testing.T) {
	svc, _, items, penalty := newTestService(t)

	sub, err := svc.Submit(context.Background(), editor, SubmitInput{WorkItemID: 10, FileURL: "https://files/v1"})
	require.NoError(t, err)
	assert.False(t, sub.Late)
	assert.Equal(t, KindLink, sub.Kind)
	assert.Equal(t, StatusPending, sub.Status)
	assert.Equal(t, []int64{10}, items.reviewMarks)
	assert.Empty(t, penalty.calls)

	// A resubmission appends without touching the status again.
	_, err = svc.Submit(context.Background(), editor, SubmitInput{WorkItemID: 10, FileURL: "https://files/v2"})
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, items.reviewMarks)

	history, err := svc.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSubmitLateStampsPenaltyOnce(t *testing.T) {
	svc, _, items, penalty := newTestService(t)
	item := items.items[10]
	item.Deadline = testClock.Add(-36 * time.Hour)
	items.items[10] = item

	sub, err := svc.Submit(context.Background(), editor, SubmitInput{WorkItemID: 10, FileURL: "https://files/v1"})
	require.NoError(t, err)
	assert.True(t, sub.Late)
	assert.Equal(t, 2, sub.DaysLate)
	require.Len(t, penalty.calls, 1)
	assert.Equal(t, 2, penalty.calls[0].DaysLate)
}

func TestSubmitLateBeforePayoutExists(t *testing.T) {
	svc, _, items, penalty := newTestService(t)
	item := items.items[10]
	item.Deadline = testClock.Add(-time.Hour)
	items.items[10] = item
	penalty.err = shared.NewNotFoundError("payout for work item", "10")

	// No payout yet is not an error: the payout created at acceptance
	// will carry the penalty itself.
	sub, err := svc.Submit(context.Background(), editor, SubmitInput{WorkItemID: 10, FileURL: "https://files/v1"})
	require.NoError(t, err)
	assert.True(t, sub.Late)
	assert.Equal(t, 1, sub.DaysLate)
}

func TestSubmitPolicies(t *testing.T) {
	svc, _, items, _ := newTestService(t)

	t.Run("only the assigned editor", func(t *testing.T) {
		stranger := shared.Identity{UserID: 9, Role: shared.RoleEditor}
		_, err := svc.Submit(context.Background(), stranger, SubmitInput{WorkItemID: 10, FileURL: "https://x"})
		var perr *shared.PolicyError
		require.True(t, errors.As(err, &perr))
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := svc.Submit(context.Background(), editor, SubmitInput{WorkItemID: 10, Kind: "torrent", FileURL: "https://x"})
		var verr *shared.ValidationError
		require.True(t, errors.As(err, &verr))
	})

	t.Run("declined item refuses submissions", func(t *testing.T) {
		item := items.items[10]
		item.Status = breakdown.StatusDeclined
		items.items[10] = item
		defer func() {
			item.Status = breakdown.StatusInProgress
			items.items[10] = item
		}()
		_, err := svc.Submit(context.Background(), editor, SubmitInput{WorkItemID: 10, FileURL: "https://x"})
		var serr *shared.StateError
		require.True(t, errors.As(err, &serr))
	})

	t.Run("delivery url required", func(t *testing.T) {
		_, err := svc.Submit(context.Background(), editor, SubmitInput{WorkItemID: 10})
		var verr *shared.ValidationError
		require.True(t, errors.As(err, &verr))
	})
}

func TestCorrections(t *testing.T) {
	svc, _, items, _ := newTestService(t)

	c, err := svc.AddCorrection(context.Background(), admin, CorrectionInput{
		WorkItemID: 10, Detail: "color balance off in second act",
	})
	require.NoError(t, err)
	assert.False(t, c.Resolved)

	// Adding a correction never rewinds the item status.
	assert.Equal(t, breakdown.StatusInProgress, items.items[10].Status)

	// Only the assigned editor resolves.
	stranger := shared.Identity{UserID: 9, Role: shared.RoleEditor}
	_, err = svc.ResolveCorrection(context.Background(), stranger, c.ID)
	var perr *shared.PolicyError
	require.True(t, errors.As(err, &perr))

	resolved, err := svc.ResolveCorrection(context.Background(), editor, c.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedAt)

	// Resolution alone does not advance the work item.
	assert.Equal(t, breakdown.StatusInProgress, items.items[10].Status)

	_, err = svc.ResolveCorrection(context.Background(), editor, c.ID)
	var serr *shared.StateError
	require.True(t, errors.As(err, &serr))
}
