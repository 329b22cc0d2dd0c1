package domain

import "time"

// RuleName identifies a built-in scoring rule.
type RuleName string

const (
	RuleBlacklist         RuleName = "BLACKLIST"
	RuleInsufficientFunds RuleName = "INSUFFICIENT_FUNDS"
	RuleVelocity          RuleName = "VELOCITY"
	RuleDailyLimit        RuleName = "DAILY_LIMIT"
)

// Severity grades a triggered rule.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// TriggeredRule records one signal that fired during evaluation. It is
// embedded in the Transaction record and never persisted independently.
// Reason text is built deterministically from the rule's inputs so that
// identical inputs always produce identical output.
type TriggeredRule struct {
	Rule     RuleName `json:"rule"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

// CustomRule is a tenant-defined additive rule. Its CEL expression is
// evaluated against the transaction after the built-in pipeline; when it
// returns true the rule's score is added and a TriggeredRule is appended.
type CustomRule struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	Score      int       `json:"score"`
	Severity   Severity  `json:"severity"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}
