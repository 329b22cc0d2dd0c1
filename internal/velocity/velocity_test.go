package velocity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/shrike/internal/domain"
)

type fakeLedger struct {
	countSince time.Time
	count      int64
	rangeFrom  time.Time
	rangeTo    time.Time
	amounts    []decimal.Decimal
	err        error
}

func (f *fakeLedger) InsertTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	return nil
}

func (f *fakeLedger) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) ListTransactions(ctx context.Context, tenantID string, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) CountTransactionsSince(ctx context.Context, tenantID, accountID string, since time.Time) (int64, error) {
	f.countSince = since
	return f.count, f.err
}

func (f *fakeLedger) ListAmountsInRange(ctx context.Context, tenantID, accountID string, from, to time.Time) ([]decimal.Decimal, error) {
	f.rangeFrom = from
	f.rangeTo = to
	return f.amounts, f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCount(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	t.Run("WindowIsWallClock", func(t *testing.T) {
		ledger := &fakeLedger{count: 4}
		svc := NewService(ledger).WithClock(fixedClock(now))

		count, err := svc.Count(context.Background(), "tenant-001", "acc-001", 5*time.Minute)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 4 {
			t.Errorf("expected 4, got %d", count)
		}

		wantSince := now.Add(-5 * time.Minute)
		if !ledger.countSince.Equal(wantSince) {
			t.Errorf("expected since %s, got %s", wantSince, ledger.countSince)
		}
	})

	t.Run("RequiresIdentifiers", func(t *testing.T) {
		svc := NewService(&fakeLedger{})
		if _, err := svc.Count(context.Background(), "", "acc", time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := svc.Count(context.Background(), "tenant", "", time.Minute); err == nil {
			t.Error("expected error for empty accountID")
		}
	})

	t.Run("RejectsNonPositiveWindow", func(t *testing.T) {
		svc := NewService(&fakeLedger{})
		if _, err := svc.Count(context.Background(), "tenant", "acc", 0); err == nil {
			t.Error("expected error for zero window")
		}
	})

	t.Run("PropagatesLedgerError", func(t *testing.T) {
		svc := NewService(&fakeLedger{err: errors.New("db down")})
		if _, err := svc.Count(context.Background(), "tenant", "acc", time.Minute); err == nil {
			t.Error("expected error from ledger")
		}
	})
}

func TestDailyTotal(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	t.Run("SumsExactly", func(t *testing.T) {
		// 0.1 + 0.2 must be exactly 0.3, not 0.30000000000000004.
		ledger := &fakeLedger{amounts: []decimal.Decimal{
			decimal.RequireFromString("0.1"),
			decimal.RequireFromString("0.2"),
		}}
		svc := NewService(ledger).WithClock(fixedClock(now))

		total, err := svc.DailyTotal(context.Background(), "tenant-001", "acc-001")
		if err != nil {
			t.Fatalf("DailyTotal failed: %v", err)
		}
		if total.String() != "0.3" {
			t.Errorf("expected exact 0.3, got %s", total)
		}
	})

	t.Run("UTCCalendarDayBounds", func(t *testing.T) {
		ledger := &fakeLedger{}
		svc := NewService(ledger).WithClock(fixedClock(now))

		if _, err := svc.DailyTotal(context.Background(), "tenant-001", "acc-001"); err != nil {
			t.Fatalf("DailyTotal failed: %v", err)
		}

		wantFrom := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
		wantTo := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
		if !ledger.rangeFrom.Equal(wantFrom) || !ledger.rangeTo.Equal(wantTo) {
			t.Errorf("expected [%s, %s), got [%s, %s)", wantFrom, wantTo, ledger.rangeFrom, ledger.rangeTo)
		}
	})

	t.Run("EmptyDayIsZero", func(t *testing.T) {
		svc := NewService(&fakeLedger{}).WithClock(fixedClock(now))

		total, err := svc.DailyTotal(context.Background(), "tenant-001", "acc-001")
		if err != nil {
			t.Fatalf("DailyTotal failed: %v", err)
		}
		if !total.IsZero() {
			t.Errorf("expected zero, got %s", total)
		}
	})
}
