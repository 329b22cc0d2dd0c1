package blacklist

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/shrike/internal/domain"
)

// fakeStore matches against an in-memory (type, value) set.
type fakeStore struct {
	entries map[domain.BlacklistType]map[string]*domain.BlacklistEntry
	err     error
	lookups []domain.BlacklistType
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[domain.BlacklistType]map[string]*domain.BlacklistEntry)}
}

func (f *fakeStore) add(typ domain.BlacklistType, value, reason string) {
	if f.entries[typ] == nil {
		f.entries[typ] = make(map[string]*domain.BlacklistEntry)
	}
	f.entries[typ][value] = &domain.BlacklistEntry{
		ID: "bl-" + value, Type: typ, Value: value, Reason: reason, Active: true,
	}
}

func (f *fakeStore) MatchBlacklistEntry(ctx context.Context, tenantID string, typ domain.BlacklistType, value string) (*domain.BlacklistEntry, error) {
	f.lookups = append(f.lookups, typ)
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[typ][value], nil
}

func (f *fakeStore) CreateBlacklistEntry(ctx context.Context, tenantID string, entry *domain.BlacklistEntry) error {
	return nil
}

func (f *fakeStore) GetBlacklistEntry(ctx context.Context, tenantID string, entryID string) (*domain.BlacklistEntry, error) {
	return nil, nil
}

func (f *fakeStore) ListBlacklistEntries(ctx context.Context, tenantID string, filter domain.BlacklistFilter) ([]*domain.BlacklistEntry, error) {
	return nil, nil
}

func (f *fakeStore) UpdateBlacklistEntry(ctx context.Context, tenantID string, entry *domain.BlacklistEntry) error {
	return nil
}

func (f *fakeStore) DeleteBlacklistEntry(ctx context.Context, tenantID string, entryID string) error {
	return nil
}

func TestMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("NoMatches", func(t *testing.T) {
		m := NewMatcher(newFakeStore())
		matches, err := m.Match(ctx, "tenant-001", domain.BlacklistCandidates{
			AccountID: "acc-001", MerchantID: "merch-001", IP: "192.0.2.1", Country: "US",
		})
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if len(matches) != 0 {
			t.Errorf("expected no matches, got %d", len(matches))
		}
	})

	t.Run("MultipleMatchesInFixedOrder", func(t *testing.T) {
		store := newFakeStore()
		store.add(domain.BlacklistCountry, "KP", "Sanctioned")
		store.add(domain.BlacklistAccountID, "acc-bad", "Chargebacks")

		m := NewMatcher(store)
		matches, err := m.Match(ctx, "tenant-001", domain.BlacklistCandidates{
			AccountID: "acc-bad", Country: "KP",
		})
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(matches))
		}
		// Account comes before country regardless of store iteration order.
		if matches[0].Type != domain.BlacklistAccountID || matches[1].Type != domain.BlacklistCountry {
			t.Errorf("matches out of order: %s, %s", matches[0].Type, matches[1].Type)
		}
	})

	t.Run("EmptyCandidatesSkipped", func(t *testing.T) {
		store := newFakeStore()
		m := NewMatcher(store)

		if _, err := m.Match(ctx, "tenant-001", domain.BlacklistCandidates{AccountID: "acc-001"}); err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if len(store.lookups) != 1 || store.lookups[0] != domain.BlacklistAccountID {
			t.Errorf("expected one ACCOUNT_ID lookup, got %v", store.lookups)
		}
	})

	t.Run("PropagatesStoreError", func(t *testing.T) {
		store := newFakeStore()
		store.err = errors.New("db down")

		m := NewMatcher(store)
		if _, err := m.Match(ctx, "tenant-001", domain.BlacklistCandidates{AccountID: "acc-001"}); err == nil {
			t.Error("expected error from store")
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		m := NewMatcher(newFakeStore())
		if _, err := m.Match(ctx, "", domain.BlacklistCandidates{AccountID: "acc-001"}); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}
