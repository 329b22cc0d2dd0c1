// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/shrike/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate entry")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// InsertTransaction appends a ledger record with tenant isolation.
// The record is never updated or deleted afterwards.
func (r *SQLRepository) InsertTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.TenantID = tenantID

	rules, err := json.Marshal(tx.TriggeredRules)
	if err != nil {
		return fmt.Errorf("failed to encode triggered rules: %w", err)
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, external_txn_id, account_id, merchant_id, ip, country,
			amount, currency, available_balance, timestamp, created_at,
			risk_score, decision, triggered_rules
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.ExternalTxnID, tx.AccountID,
		tx.MerchantID, tx.IP, tx.Country,
		tx.Amount.String(), tx.Currency, tx.AvailableBalance.String(),
		tx.Timestamp, tx.CreatedAt,
		tx.RiskScore, string(tx.Decision), string(rules),
	)
	return err
}

const transactionColumns = `id, tenant_id, external_txn_id, account_id, merchant_id, ip, country,
	amount, currency, available_balance, timestamp, created_at,
	risk_score, decision, triggered_rules`

func scanTransaction(scan func(dest ...any) error) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amount, balance, decision, rules string

	err := scan(
		&tx.ID, &tx.TenantID, &tx.ExternalTxnID, &tx.AccountID,
		&tx.MerchantID, &tx.IP, &tx.Country,
		&amount, &tx.Currency, &balance,
		&tx.Timestamp, &tx.CreatedAt,
		&tx.RiskScore, &decision, &rules,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount: %w", err)
	}
	tx.AvailableBalance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored balance: %w", err)
	}
	tx.Decision = domain.Decision(decision)
	if err := json.Unmarshal([]byte(rules), &tx.TriggeredRules); err != nil {
		return nil, fmt.Errorf("failed to parse triggered rules: %w", err)
	}

	return &tx, nil
}

// GetTransaction retrieves a ledger record by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ? AND id = ?`
	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID)

	tx, err := scanTransaction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// ListTransactions retrieves ledger records for a tenant, newest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID string, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.Decision != "" {
		query += ` AND decision = ?`
		args = append(args, string(filter.Decision))
	}

	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// CountTransactionsSince counts ledger records for the (tenant, account)
// pair created at or after the given instant. Backs the velocity signal.
func (r *SQLRepository) CountTransactionsSince(ctx context.Context, tenantID, accountID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM transactions
		WHERE tenant_id = ? AND account_id = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

// ListAmountsInRange returns the amounts of ledger records for the
// (tenant, account) pair with from <= created_at < to. Backs the daily
// aggregation signal; the caller sums with exact decimal arithmetic.
func (r *SQLRepository) ListAmountsInRange(ctx context.Context, tenantID, accountID string, from, to time.Time) ([]decimal.Decimal, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT amount FROM transactions
		WHERE tenant_id = ? AND account_id = ? AND created_at >= ? AND created_at < ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var amounts []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored amount: %w", err)
		}
		amounts = append(amounts, amount)
	}

	return amounts, rows.Err()
}

// CreateBlacklistEntry stores a denylist entry with tenant isolation.
func (r *SQLRepository) CreateBlacklistEntry(ctx context.Context, tenantID string, entry *domain.BlacklistEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	entry.TenantID = tenantID
	entry.CreatedAt = now
	entry.UpdatedAt = now

	query := `
		INSERT INTO blacklist_entries (id, tenant_id, type, value, reason, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, tenantID, string(entry.Type), entry.Value, entry.Reason,
		boolToInt(entry.Active), entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: (%s, %s) already blacklisted", ErrDuplicate, entry.Type, entry.Value)
	}
	return err
}

const blacklistColumns = `id, tenant_id, type, value, reason, active, created_at, updated_at`

func scanBlacklistEntry(scan func(dest ...any) error) (*domain.BlacklistEntry, error) {
	var e domain.BlacklistEntry
	var typ string
	var active int

	err := scan(&e.ID, &e.TenantID, &typ, &e.Value, &e.Reason, &active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Type = domain.BlacklistType(typ)
	e.Active = active == 1
	return &e, nil
}

// GetBlacklistEntry retrieves one entry with tenant isolation.
func (r *SQLRepository) GetBlacklistEntry(ctx context.Context, tenantID string, entryID string) (*domain.BlacklistEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + blacklistColumns + ` FROM blacklist_entries WHERE tenant_id = ? AND id = ?`
	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, entryID)

	entry, err := scanBlacklistEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// ListBlacklistEntries retrieves a tenant's entries, newest first.
func (r *SQLRepository) ListBlacklistEntries(ctx context.Context, tenantID string, filter domain.BlacklistFilter) ([]*domain.BlacklistEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + blacklistColumns + ` FROM blacklist_entries WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Active != nil {
		query += ` AND active = ?`
		args = append(args, boolToInt(*filter.Active))
	}

	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.BlacklistEntry
	for rows.Next() {
		entry, err := scanBlacklistEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// UpdateBlacklistEntry rewrites an entry's mutable fields.
func (r *SQLRepository) UpdateBlacklistEntry(ctx context.Context, tenantID string, entry *domain.BlacklistEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	entry.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE blacklist_entries
		SET type = ?, value = ?, reason = ?, active = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(entry.Type), entry.Value, entry.Reason, boolToInt(entry.Active),
		entry.UpdatedAt, tenantID, entry.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: (%s, %s) already blacklisted", ErrDuplicate, entry.Type, entry.Value)
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBlacklistEntry removes an entry with tenant isolation.
func (r *SQLRepository) DeleteBlacklistEntry(ctx context.Context, tenantID string, entryID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx,
		r.rebind(`DELETE FROM blacklist_entries WHERE tenant_id = ? AND id = ?`),
		tenantID, entryID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// MatchBlacklistEntry returns the active entry for the exact
// (tenant, type, value) triple, or nil when nothing matches. Matching is
// exact-value and case-sensitive.
func (r *SQLRepository) MatchBlacklistEntry(ctx context.Context, tenantID string, typ domain.BlacklistType, value string) (*domain.BlacklistEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + blacklistColumns + ` FROM blacklist_entries
		WHERE tenant_id = ? AND type = ? AND value = ? AND active = 1`
	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, string(typ), value)

	entry, err := scanBlacklistEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// SaveCustomRule stores or updates a tenant-defined rule.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, tenantID string, rule *domain.CustomRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.TenantID = tenantID
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO custom_rules (id, tenant_id, name, expression, score, severity, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			expression = excluded.expression,
			score = excluded.score,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Expression, rule.Score,
		string(rule.Severity), boolToInt(rule.Enabled), rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// ListCustomRules retrieves a tenant's enabled rules.
func (r *SQLRepository) ListCustomRules(ctx context.Context, tenantID string) ([]*domain.CustomRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, expression, score, severity, enabled, created_at, updated_at
		FROM custom_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		var severity string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Expression,
			&rule.Score, &severity, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Severity = domain.Severity(severity)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteCustomRule disables a rule by setting enabled = 0.
func (r *SQLRepository) DeleteCustomRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE custom_rules SET enabled = 0, updated_at = ? WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertUsageLog records one API request metering row.
func (r *SQLRepository) InsertUsageLog(ctx context.Context, tenantID string, log *domain.UsageLog) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO api_usage_logs (id, tenant_id, endpoint, method, status_code, response_time_ms, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		log.ID, tenantID, log.Endpoint, log.Method, log.StatusCode,
		log.ResponseTimeMs, log.IPAddress, log.CreatedAt,
	)
	return err
}

// CountDecisionsInRange counts ledger records in [from, to) for a tenant,
// optionally filtered by decision.
func (r *SQLRepository) CountDecisionsInRange(ctx context.Context, tenantID string, decision domain.Decision, from, to time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM transactions WHERE tenant_id = ? AND created_at >= ? AND created_at < ?`
	args := []any{tenantID, from, to}

	if decision != "" {
		query += ` AND decision = ?`
		args = append(args, string(decision))
	}

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&count)
	return count, err
}

// AvgResponseTimeSince averages usage-log latency for an endpoint.
// Returns 0 when there are no rows.
func (r *SQLRepository) AvgResponseTimeSince(ctx context.Context, tenantID, endpoint string, since time.Time) (float64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COALESCE(AVG(response_time_ms), 0) FROM api_usage_logs
		WHERE tenant_id = ? AND endpoint = ? AND created_at >= ?
	`

	var avg float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, endpoint, since).Scan(&avg)
	return avg, err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation detects unique-constraint failures from either driver
// without importing driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
