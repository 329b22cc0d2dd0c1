// Package stats computes tenant dashboard aggregates from the ledger and
// usage logs. Results are cached briefly; stale figures are acceptable here
// in a way they never are for scoring signals.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

const (
	cacheKey = "stats:dashboard"
	cacheTTL = 60 * time.Second
)

// Dashboard holds the aggregate figures for one tenant.
type Dashboard struct {
	// Current calendar month (UTC).
	TotalDecisions    int64 `json:"totalDecisions"`
	DeclinedDecisions int64 `json:"declinedDecisions"`
	ReviewDecisions   int64 `json:"reviewDecisions"`

	// Percent change versus the previous calendar month. Zero when the
	// previous month has no data.
	TotalDeltaPct    float64 `json:"totalDeltaPct"`
	DeclinedDeltaPct float64 `json:"declinedDeltaPct"`

	// Mean scoring latency over the trailing 24 hours.
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// Service computes dashboards with a read-through cache.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a stats service. The cache is optional.
func NewService(repo domain.Repository, cache domain.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Dashboard returns the tenant's aggregates, serving from cache when a
// fresh entry exists. Cache failures degrade to a direct computation.
func (s *Service) Dashboard(ctx context.Context, tenantID string) (*Dashboard, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	if s.cache != nil {
		data, err := s.cache.Get(ctx, tenantID, cacheKey)
		if err != nil {
			s.logger.Warn("stats cache read failed", "tenant_id", tenantID, "error", err)
		} else if data != nil {
			var cached Dashboard
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	dashboard, err := s.compute(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(dashboard); err == nil {
			if err := s.cache.Set(ctx, tenantID, cacheKey, data, cacheTTL); err != nil {
				s.logger.Warn("stats cache write failed", "tenant_id", tenantID, "error", err)
			}
		}
	}

	return dashboard, nil
}

func (s *Service) compute(ctx context.Context, tenantID string) (*Dashboard, error) {
	now := s.now().UTC()

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevMonthStart := monthStart.AddDate(0, -1, 0)

	total, err := s.repo.CountDecisionsInRange(ctx, tenantID, "", monthStart, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}

	declined, err := s.repo.CountDecisionsInRange(ctx, tenantID, domain.DecisionDecline, monthStart, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count declines: %w", err)
	}

	review, err := s.repo.CountDecisionsInRange(ctx, tenantID, domain.DecisionReview, monthStart, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}

	prevTotal, err := s.repo.CountDecisionsInRange(ctx, tenantID, "", prevMonthStart, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count previous month decisions: %w", err)
	}

	prevDeclined, err := s.repo.CountDecisionsInRange(ctx, tenantID, domain.DecisionDecline, prevMonthStart, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count previous month declines: %w", err)
	}

	avgMs, err := s.repo.AvgResponseTimeSince(ctx, tenantID, "/v1/score", now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to average response time: %w", err)
	}

	return &Dashboard{
		TotalDecisions:    total,
		DeclinedDecisions: declined,
		ReviewDecisions:   review,
		TotalDeltaPct:     deltaPct(total, prevTotal),
		DeclinedDeltaPct:  deltaPct(declined, prevDeclined),
		AvgResponseTimeMs: avgMs,
		GeneratedAt:       now,
	}, nil
}

func deltaPct(current, previous int64) float64 {
	if previous == 0 {
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}
