package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is the append-only transaction store of record. These four
// primitives (insert, point read, range count, day listing) are everything
// the scoring core needs from persistence.
type Ledger interface {
	// InsertTransaction appends a record. The store assigns Transaction.ID
	// when it is empty. Records are never mutated afterwards.
	InsertTransaction(ctx context.Context, tenantID string, tx *Transaction) error

	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context, tenantID string, filter TransactionFilter) ([]*Transaction, error)

	// CountTransactionsSince returns the number of records for the
	// (tenant, account) pair with created_at >= since.
	CountTransactionsSince(ctx context.Context, tenantID, accountID string, since time.Time) (int64, error)

	// ListAmountsInRange returns the amounts of records for the
	// (tenant, account) pair with from <= created_at < to. Summation happens
	// in the caller with exact decimal arithmetic.
	ListAmountsInRange(ctx context.Context, tenantID, accountID string, from, to time.Time) ([]decimal.Decimal, error)
}

// BlacklistStore owns denylist entries. The scoring core only consumes
// MatchBlacklistEntry; the CRUD surface is the tenant-facing collaborator.
type BlacklistStore interface {
	CreateBlacklistEntry(ctx context.Context, tenantID string, entry *BlacklistEntry) error
	GetBlacklistEntry(ctx context.Context, tenantID string, entryID string) (*BlacklistEntry, error)
	ListBlacklistEntries(ctx context.Context, tenantID string, filter BlacklistFilter) ([]*BlacklistEntry, error)
	UpdateBlacklistEntry(ctx context.Context, tenantID string, entry *BlacklistEntry) error
	DeleteBlacklistEntry(ctx context.Context, tenantID string, entryID string) error

	// MatchBlacklistEntry returns the active entry for the exact
	// (tenant, type, value) triple, or nil when there is no match.
	MatchBlacklistEntry(ctx context.Context, tenantID string, typ BlacklistType, value string) (*BlacklistEntry, error)
}

// CustomRuleStore owns tenant-defined CEL rules.
type CustomRuleStore interface {
	SaveCustomRule(ctx context.Context, tenantID string, rule *CustomRule) error
	ListCustomRules(ctx context.Context, tenantID string) ([]*CustomRule, error)
	DeleteCustomRule(ctx context.Context, tenantID string, ruleID string) error
}

// UsageLog is one API request metering record, written off the request path.
type UsageLog struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"statusCode"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UsageStore owns request metering and the aggregates behind the dashboard.
type UsageStore interface {
	InsertUsageLog(ctx context.Context, tenantID string, log *UsageLog) error

	// CountDecisionsInRange counts ledger records in [from, to) for the
	// tenant, optionally filtered by decision ("" counts everything).
	CountDecisionsInRange(ctx context.Context, tenantID string, decision Decision, from, to time.Time) (int64, error)

	// AvgResponseTimeSince averages usage-log latency for an endpoint.
	AvgResponseTimeSince(ctx context.Context, tenantID, endpoint string, since time.Time) (float64, error)
}

// Repository aggregates all persistence concerns behind one implementation.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	Ledger
	BlacklistStore
	CustomRuleStore
	UsageStore

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
