package domain

import "time"

// BlacklistType enumerates the transaction fields a denylist entry can match.
type BlacklistType string

const (
	BlacklistAccountID  BlacklistType = "ACCOUNT_ID"
	BlacklistMerchantID BlacklistType = "MERCHANT_ID"
	BlacklistIP         BlacklistType = "IP"
	BlacklistCountry    BlacklistType = "COUNTRY"
)

// ValidBlacklistType reports whether t is one of the known entry types.
func ValidBlacklistType(t BlacklistType) bool {
	switch t {
	case BlacklistAccountID, BlacklistMerchantID, BlacklistIP, BlacklistCountry:
		return true
	}
	return false
}

// BlacklistEntry is a tenant-scoped denylist entry. (tenant, type, value)
// is unique; only active entries participate in matching.
type BlacklistEntry struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenantId"`
	Type      BlacklistType `json:"type"`
	Value     string        `json:"value"`
	Reason    string        `json:"reason,omitempty"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// BlacklistFilter narrows tenant blacklist listings.
type BlacklistFilter struct {
	Type   BlacklistType
	Active *bool
}

// BlacklistCandidates holds the transaction fields checked against the
// denylist. Empty values are skipped, never matched.
type BlacklistCandidates struct {
	AccountID  string
	MerchantID string
	IP         string
	Country    string
}
