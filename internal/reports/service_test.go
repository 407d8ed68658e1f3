package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelhouse/reelhouse/internal/shared"
)

type mockRepo struct {
	rollups []Rollup
	calls   int
}

func (m *mockRepo) Rollups(_ context.Context, month string) ([]Rollup, error) {
	m.calls++
	return m.rollups, nil
}

func newCachedService(t *testing.T, repo *mockRepo) (*Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(repo, cache), cache
}

func TestSummaryCaches(t *testing.T) {
	repo := &mockRepo{rollups: []Rollup{
		{Currency: "INR", Revenue: 15000, Expenses: 9000, PendingClientIncome: 5000, PendingEditorPayout: 2000},
		{Currency: "USD", Revenue: 300, Expenses: 120},
	}}
	svc, _ := newCachedService(t, repo)

	summary, err := svc.Summary(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, summary.Rollups, 2)
	assert.Equal(t, 6000.0, summary.Rollups[0].NetProfit)
	assert.Equal(t, 180.0, summary.Rollups[1].NetProfit)
	assert.Equal(t, 1, repo.calls)

	// Second read comes from the cache.
	_, err = svc.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)
}

func TestSummaryBumpInvalidates(t *testing.T) {
	repo := &mockRepo{rollups: []Rollup{{Currency: "INR", Revenue: 100}}}
	svc, cache := newCachedService(t, repo)

	_, err := svc.Summary(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	require.NoError(t, cache.Bump(context.Background()))

	repo.rollups = []Rollup{{Currency: "INR", Revenue: 200}}
	summary, err := svc.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
	assert.Equal(t, 200.0, summary.Rollups[0].Revenue)
}

func TestSummaryMonthScopesKeys(t *testing.T) {
	repo := &mockRepo{rollups: []Rollup{{Currency: "INR"}}}
	svc, _ := newCachedService(t, repo)

	_, err := svc.Summary(context.Background(), "2025-06")
	require.NoError(t, err)
	_, err = svc.Summary(context.Background(), "2025-07")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestSummaryRejectsBadMonth(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newCachedService(t, repo)

	for _, month := range []string{"2025", "06-2025", "2025-13", "2025-6"} {
		_, err := svc.Summary(context.Background(), month)
		var verr *shared.ValidationError
		require.True(t, errors.As(err, &verr), "month %q", month)
	}
	assert.Zero(t, repo.calls)
}

func TestSummaryWithoutRedis(t *testing.T) {
	repo := &mockRepo{rollups: []Rollup{{Currency: "EUR", Revenue: 10}}}
	svc := NewService(repo, NewCache(nil, time.Minute))

	// Degrades to direct loads when no cache backend is wired.
	for i := 0; i < 2; i++ {
		summary, err := svc.Summary(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, summary.Rollups, 1)
	}
	assert.Equal(t, 2, repo.calls)
}
