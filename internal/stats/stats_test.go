package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/cache"
	"github.com/opensource-finance/shrike/internal/domain"
)

// fakeRepo serves canned aggregates. Only the UsageStore surface is
// implemented; embedding keeps the rest of the Repository interface.
type fakeRepo struct {
	domain.Repository

	currentTotal    int64
	currentDeclined int64
	currentReview   int64
	prevTotal       int64
	prevDeclined    int64
	avgMs           float64

	monthStart time.Time
	calls      int
}

func (f *fakeRepo) CountDecisionsInRange(ctx context.Context, tenantID string, decision domain.Decision, from, to time.Time) (int64, error) {
	f.calls++
	current := from.Equal(f.monthStart)
	switch decision {
	case "":
		if current {
			return f.currentTotal, nil
		}
		return f.prevTotal, nil
	case domain.DecisionDecline:
		if current {
			return f.currentDeclined, nil
		}
		return f.prevDeclined, nil
	case domain.DecisionReview:
		return f.currentReview, nil
	}
	return 0, nil
}

func (f *fakeRepo) AvgResponseTimeSince(ctx context.Context, tenantID, endpoint string, since time.Time) (float64, error) {
	f.calls++
	return f.avgMs, nil
}

// failingCache errors on every operation.
type failingCache struct{}

func (failingCache) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	return nil, errors.New("cache down")
}

func (failingCache) Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration) error {
	return errors.New("cache down")
}

func (failingCache) Delete(ctx context.Context, tenantID, key string) error {
	return errors.New("cache down")
}

func (failingCache) IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
	return 0, errors.New("cache down")
}

func (failingCache) Ping(ctx context.Context) error { return errors.New("cache down") }
func (failingCache) Close() error                   { return nil }

func newFakeRepo(now time.Time) *fakeRepo {
	return &fakeRepo{
		monthStart: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("ComputesAggregates", func(t *testing.T) {
		repo := newFakeRepo(now)
		repo.currentTotal = 100
		repo.currentDeclined = 10
		repo.currentReview = 5
		repo.prevTotal = 80
		repo.prevDeclined = 8
		repo.avgMs = 42.5

		svc := NewService(repo, nil, nil)
		svc.now = func() time.Time { return now }

		d, err := svc.Dashboard(ctx, "tenant-001")
		if err != nil {
			t.Fatalf("Dashboard failed: %v", err)
		}

		if d.TotalDecisions != 100 || d.DeclinedDecisions != 10 || d.ReviewDecisions != 5 {
			t.Errorf("counts mismatch: %+v", d)
		}
		if d.TotalDeltaPct != 25 {
			t.Errorf("expected total delta 25%%, got %v", d.TotalDeltaPct)
		}
		if d.DeclinedDeltaPct != 25 {
			t.Errorf("expected declined delta 25%%, got %v", d.DeclinedDeltaPct)
		}
		if d.AvgResponseTimeMs != 42.5 {
			t.Errorf("expected avg 42.5, got %v", d.AvgResponseTimeMs)
		}
		if !d.GeneratedAt.Equal(now) {
			t.Errorf("expected GeneratedAt %s, got %s", now, d.GeneratedAt)
		}
	})

	t.Run("ZeroDeltaWhenPreviousMonthEmpty", func(t *testing.T) {
		repo := newFakeRepo(now)
		repo.currentTotal = 50

		svc := NewService(repo, nil, nil)
		svc.now = func() time.Time { return now }

		d, err := svc.Dashboard(ctx, "tenant-001")
		if err != nil {
			t.Fatalf("Dashboard failed: %v", err)
		}
		if d.TotalDeltaPct != 0 || d.DeclinedDeltaPct != 0 {
			t.Errorf("expected zero deltas, got %v/%v", d.TotalDeltaPct, d.DeclinedDeltaPct)
		}
	})

	t.Run("SecondCallServedFromCache", func(t *testing.T) {
		repo := newFakeRepo(now)
		repo.currentTotal = 7

		svc := NewService(repo, cache.NewLRUCache(10), nil)
		svc.now = func() time.Time { return now }

		if _, err := svc.Dashboard(ctx, "tenant-001"); err != nil {
			t.Fatalf("Dashboard failed: %v", err)
		}
		callsAfterFirst := repo.calls

		d, err := svc.Dashboard(ctx, "tenant-001")
		if err != nil {
			t.Fatalf("Dashboard failed: %v", err)
		}
		if repo.calls != callsAfterFirst {
			t.Errorf("expected cache hit, repo called %d more times", repo.calls-callsAfterFirst)
		}
		if d.TotalDecisions != 7 {
			t.Errorf("cached dashboard mismatch: %+v", d)
		}
	})

	t.Run("CacheIsTenantScoped", func(t *testing.T) {
		repo := newFakeRepo(now)
		svc := NewService(repo, cache.NewLRUCache(10), nil)
		svc.now = func() time.Time { return now }

		_, _ = svc.Dashboard(ctx, "tenant-001")
		callsAfterFirst := repo.calls

		if _, err := svc.Dashboard(ctx, "tenant-002"); err != nil {
			t.Fatalf("Dashboard failed: %v", err)
		}
		if repo.calls == callsAfterFirst {
			t.Error("expected fresh computation for a different tenant")
		}
	})

	t.Run("CacheFailureDegradesToComputation", func(t *testing.T) {
		repo := newFakeRepo(now)
		repo.currentTotal = 3

		svc := NewService(repo, failingCache{}, nil)
		svc.now = func() time.Time { return now }

		d, err := svc.Dashboard(ctx, "tenant-001")
		if err != nil {
			t.Fatalf("Dashboard failed: %v", err)
		}
		if d.TotalDecisions != 3 {
			t.Errorf("expected computed dashboard, got %+v", d)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		svc := NewService(newFakeRepo(now), nil, nil)
		if _, err := svc.Dashboard(ctx, ""); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}
