package reports

import (
	"context"
	"regexp"

	"golang.org/x/sync/singleflight"

	"github.com/reelhouse/reelhouse/internal/money"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// RepositoryPort exposes the aggregate queries the service relies on.
type RepositoryPort interface {
	Rollups(ctx context.Context, month string) ([]Rollup, error)
}

// Service coordinates rollup queries with the versioned cache. Concurrent
// identical requests collapse onto a single query.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	group singleflight.Group
}

// NewService wires a repository with a cache helper.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Summary returns per-currency rollups. month is YYYY-MM, or empty for
// all-time. Every figure is recomputed from the ledger when the cache
// misses; cached answers are invalidated on every settlement bump.
func (s *Service) Summary(ctx context.Context, month string) (Summary, error) {
	if month != "" && !monthPattern.MatchString(month) {
		return Summary{}, shared.NewValidationError("month", month, "month must be formatted YYYY-MM")
	}
	key, err := s.cache.BuildKey(ctx, keySummary(month))
	if err != nil {
		return Summary{}, err
	}
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var summary Summary
		err := s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
			rollups, err := s.repo.Rollups(ctx, month)
			if err != nil {
				return nil, err
			}
			for i := range rollups {
				rollups[i].Revenue = money.Round2(rollups[i].Revenue)
				rollups[i].Expenses = money.Round2(rollups[i].Expenses)
				rollups[i].NetProfit = money.Round2(rollups[i].Revenue - rollups[i].Expenses)
				rollups[i].PendingClientIncome = money.Round2(rollups[i].PendingClientIncome)
				rollups[i].PendingEditorPayout = money.Round2(rollups[i].PendingEditorPayout)
			}
			return Summary{Month: month, Rollups: rollups}, nil
		})
		return summary, err
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}
