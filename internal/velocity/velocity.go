// Package velocity provides the transaction frequency and daily spend
// signals. Both are trailing range queries over the ledger, recomputed from
// the store of record on every call rather than kept in a rolling counter.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Service computes velocity and daily-aggregate signals for accounts.
type Service struct {
	ledger domain.Ledger
	now    func() time.Time
}

// NewService creates a new signal service.
func NewService(ledger domain.Ledger) *Service {
	return &Service{
		ledger: ledger,
		now:    time.Now,
	}
}

// WithClock overrides the service's time source. The velocity window and
// the UTC day boundary are both derived from it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Count returns the number of ledger transactions for the (tenant, account)
// pair created within [now - window, now]. "now" is wall clock at call
// time; the caller-supplied transaction timestamp plays no part here, so
// back-dated or replayed transactions cannot shift the window.
func (s *Service) Count(ctx context.Context, tenantID, accountID string, window time.Duration) (int64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("tenantID and accountID are required")
	}
	if window <= 0 {
		return 0, fmt.Errorf("window must be positive")
	}

	since := s.now().UTC().Add(-window)

	count, err := s.ledger.CountTransactionsSince(ctx, tenantID, accountID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

// DailyTotal returns the sum of amounts for the (tenant, account) pair
// created during the current UTC calendar day. The day boundary is a single
// reference clock for all tenants. Returns zero when no rows exist.
// Summation happens here with exact decimal arithmetic.
func (s *Service) DailyTotal(ctx context.Context, tenantID, accountID string) (decimal.Decimal, error) {
	if tenantID == "" || accountID == "" {
		return decimal.Zero, fmt.Errorf("tenantID and accountID are required")
	}

	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	amounts, err := s.ledger.ListAmountsInRange(ctx, tenantID, accountID, dayStart, dayEnd)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list daily amounts: %w", err)
	}

	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}

	return total, nil
}
