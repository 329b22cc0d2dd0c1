// Package domain defines the core types and interfaces for Shrike.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Decision is the final recommendation for a scored transaction.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionDecline Decision = "DECLINE"
)

// Transaction is the ledger record written after every scoring decision.
// Records are immutable once created; the scoring path never updates or
// deletes them.
type Transaction struct {
	// Core identifiers
	ID            string `json:"id"`
	TenantID      string `json:"tenantId"`
	ExternalTxnID string `json:"externalTxnId"`

	// Subject
	AccountID  string `json:"accountId"`
	MerchantID string `json:"merchantId,omitempty"`
	IP         string `json:"ip,omitempty"`
	Country    string `json:"country,omitempty"`

	// Economics
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`

	// Temporal. Timestamp is the caller-supplied time kept for audit only;
	// CreatedAt is server-assigned and is what the velocity and daily
	// aggregation queries range over.
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Outcome
	RiskScore      int             `json:"riskScore"`
	Decision       Decision        `json:"decision"`
	TriggeredRules []TriggeredRule `json:"triggeredRules"`
}

// ScoreRequest is the API request payload for POST /v1/score.
type ScoreRequest struct {
	ExternalTxnID    string          `json:"external_txn_id"`
	AccountID        string          `json:"account_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	MerchantID       string          `json:"merchant_id,omitempty"`
	IP               string          `json:"ip,omitempty"`
	Country          string          `json:"country,omitempty"`
	Timestamp        string          `json:"timestamp,omitempty"`
}

// Validate checks required fields and value ranges. Requests that fail
// validation never reach the rule engine.
func (r *ScoreRequest) Validate() error {
	if r.ExternalTxnID == "" {
		return fmt.Errorf("external_txn_id is required")
	}
	if r.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if r.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be a positive number")
	}
	if r.AvailableBalance.IsNegative() {
		return fmt.Errorf("available_balance must be non-negative")
	}
	if r.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, r.Timestamp); err != nil {
			return fmt.Errorf("timestamp must be a valid ISO-8601 string")
		}
	}
	return nil
}

// ParsedTimestamp returns the caller-supplied timestamp, or the given
// fallback when none was provided. Validate must have been called first.
func (r *ScoreRequest) ParsedTimestamp(fallback time.Time) time.Time {
	if r.Timestamp == "" {
		return fallback
	}
	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return fallback
	}
	return ts.UTC()
}

// ScoreResult is the API response for a scored transaction.
type ScoreResult struct {
	RequestID      string          `json:"request_id"`
	Decision       Decision        `json:"decision"`
	RiskScore      int             `json:"risk_score"`
	TriggeredRules []TriggeredRule `json:"triggered_rules"`
	ProcessedAt    time.Time       `json:"processed_at"`
}

// TransactionFilter narrows tenant transaction listings.
type TransactionFilter struct {
	Decision Decision
	Limit    int
	Offset   int
}
