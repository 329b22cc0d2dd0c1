package repository

// Schema definitions for the Shrike database.
// Compatible with both SQLite and PostgreSQL.
//
// Monetary columns are stored as exact decimal strings; aggregation happens
// in Go with decimal arithmetic, so no float coercion touches amounts.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    external_txn_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    merchant_id TEXT NOT NULL DEFAULT '',
    ip TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    available_balance TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    risk_score INTEGER NOT NULL,
    decision TEXT NOT NULL,
    triggered_rules TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(tenant_id, account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_decision ON transactions(tenant_id, decision);
`

const schemaBlacklistEntries = `
CREATE TABLE IF NOT EXISTS blacklist_entries (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    type TEXT NOT NULL,
    value TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (tenant_id, type, value)
);

CREATE INDEX IF NOT EXISTS idx_blacklist_tenant ON blacklist_entries(tenant_id);
CREATE INDEX IF NOT EXISTS idx_blacklist_match ON blacklist_entries(tenant_id, type, value, active);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    expression TEXT NOT NULL,
    score INTEGER NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_tenant ON custom_rules(tenant_id, enabled);
`

const schemaUsageLogs = `
CREATE TABLE IF NOT EXISTS api_usage_logs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    method TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    response_time_ms INTEGER NOT NULL,
    ip_address TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_tenant ON api_usage_logs(tenant_id, endpoint, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaBlacklistEntries,
		schemaCustomRules,
		schemaUsageLogs,
	}
}
