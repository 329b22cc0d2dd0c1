// Package blacklist provides tenant denylist matching.
package blacklist

import (
	"context"
	"fmt"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Matcher checks transaction fields against a tenant's denylist.
type Matcher struct {
	store domain.BlacklistStore
}

// NewMatcher creates a new denylist matcher.
func NewMatcher(store domain.BlacklistStore) *Matcher {
	return &Matcher{store: store}
}

// Match returns every active entry matching a supplied (type, value) pair
// for the tenant. Matching is exact-value and case-sensitive; empty
// candidate values are skipped, never matched. Checks run in a fixed order
// so the resulting rule trail is deterministic.
func (m *Matcher) Match(ctx context.Context, tenantID string, candidates domain.BlacklistCandidates) ([]*domain.BlacklistEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	checks := []struct {
		typ   domain.BlacklistType
		value string
	}{
		{domain.BlacklistAccountID, candidates.AccountID},
		{domain.BlacklistMerchantID, candidates.MerchantID},
		{domain.BlacklistIP, candidates.IP},
		{domain.BlacklistCountry, candidates.Country},
	}

	var matches []*domain.BlacklistEntry
	for _, check := range checks {
		if check.value == "" {
			continue
		}

		entry, err := m.store.MatchBlacklistEntry(ctx, tenantID, check.typ, check.value)
		if err != nil {
			return nil, fmt.Errorf("blacklist lookup failed for %s: %w", check.typ, err)
		}
		if entry != nil {
			matches = append(matches, entry)
		}
	}

	return matches, nil
}
