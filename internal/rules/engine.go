// Package rules implements the transaction risk-scoring engine.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/shrike/internal/blacklist"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/velocity"
)

// hardDeclineFloor is the minimum score reported when a hard-decline rule
// (blacklist match or insufficient funds) fires.
const hardDeclineFloor = 90

// maxScore caps the reported risk score.
const maxScore = 100

// Engine combines the denylist, velocity, and daily-spend signals into a
// risk score and decision, then commits the outcome to the ledger. It holds
// no cross-request state; the configuration is copied at construction and
// never changes.
type Engine struct {
	cfg     domain.ScoringConfig
	matcher *blacklist.Matcher
	signals *velocity.Service
	ledger  domain.Ledger
	custom  *CustomEngine

	// Daily limits converted once from whole currency units.
	dailyMedium decimal.Decimal
	dailyHigh   decimal.Decimal

	now func() time.Time
}

// NewEngine creates a scoring engine. Invalid configuration fails here, at
// construction time, never per-request. The custom engine is optional.
func NewEngine(cfg domain.ScoringConfig, matcher *blacklist.Matcher, signals *velocity.Service, ledger domain.Ledger, custom *CustomEngine) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}
	if matcher == nil || signals == nil || ledger == nil {
		return nil, fmt.Errorf("matcher, signals, and ledger are required")
	}

	return &Engine{
		cfg:         cfg,
		matcher:     matcher,
		signals:     signals,
		ledger:      ledger,
		custom:      custom,
		dailyMedium: decimal.NewFromInt(cfg.DailyLimitMedium),
		dailyHigh:   decimal.NewFromInt(cfg.DailyLimitHigh),
		now:         time.Now,
	}, nil
}

// Score evaluates one transaction. All rules are evaluated in a fixed
// order even after a hard decline, so the caller sees the complete rule
// trail. The response is returned only after the ledger write succeeds;
// any signal query or write failure aborts the request with no partial
// result. The stored transaction is returned alongside the result so the
// caller can reference its ledger ID.
func (e *Engine) Score(ctx context.Context, tenantID string, req *domain.ScoreRequest) (*domain.ScoreResult, *domain.Transaction, error) {
	if tenantID == "" {
		return nil, nil, fmt.Errorf("tenantID is required")
	}

	// The three signal reads have no data dependency on each other.
	var (
		wg       sync.WaitGroup
		matches  []*domain.BlacklistEntry
		velCount int64
		dailySum decimal.Decimal

		matchErr, velErr, dailyErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		matches, matchErr = e.matcher.Match(ctx, tenantID, domain.BlacklistCandidates{
			AccountID:  req.AccountID,
			MerchantID: req.MerchantID,
			IP:         req.IP,
			Country:    req.Country,
		})
	}()
	go func() {
		defer wg.Done()
		velCount, velErr = e.signals.Count(ctx, tenantID, req.AccountID, e.cfg.VelocityWindow)
	}()
	go func() {
		defer wg.Done()
		dailySum, dailyErr = e.signals.DailyTotal(ctx, tenantID, req.AccountID)
	}()
	wg.Wait()

	if err := errors.Join(matchErr, velErr, dailyErr); err != nil {
		return nil, nil, fmt.Errorf("signal query failed: %w", err)
	}

	var (
		triggered   []domain.TriggeredRule
		score       int
		hardDecline bool
	)

	// Rule 1: blacklist. Matches force a decline; the score floor is
	// applied during decision derivation, not here.
	for _, match := range matches {
		hardDecline = true
		triggered = append(triggered, domain.TriggeredRule{
			Rule:     domain.RuleBlacklist,
			Severity: domain.SeverityCritical,
			Reason:   blacklistReason(match),
		})
	}

	// Rule 2: balance sufficiency.
	if req.Amount.GreaterThan(req.AvailableBalance) {
		hardDecline = true
		triggered = append(triggered, domain.TriggeredRule{
			Rule:     domain.RuleInsufficientFunds,
			Severity: domain.SeverityCritical,
			Reason:   insufficientFundsReason(req.Amount, req.AvailableBalance),
		})
	}

	// Rule 3: velocity. Bands are mutually exclusive, highest wins.
	if velCount > e.cfg.VelocityThresholdHigh {
		score += e.cfg.VelocityRiskHigh
		triggered = append(triggered, domain.TriggeredRule{
			Rule:     domain.RuleVelocity,
			Severity: domain.SeverityHigh,
			Reason:   velocityReason("High", velCount, e.cfg.VelocityWindow, e.cfg.VelocityThresholdHigh),
		})
	} else if velCount > e.cfg.VelocityThresholdMedium {
		score += e.cfg.VelocityRiskMedium
		triggered = append(triggered, domain.TriggeredRule{
			Rule:     domain.RuleVelocity,
			Severity: domain.SeverityMedium,
			Reason:   velocityReason("Medium", velCount, e.cfg.VelocityWindow, e.cfg.VelocityThresholdMedium),
		})
	}

	// Rule 4: daily limit against the projected total. The incoming
	// transaction has not been written yet, so its amount is added here.
	projected := dailySum.Add(req.Amount)
	if projected.GreaterThan(e.dailyHigh) {
		score += e.cfg.DailyLimitRiskHigh
		triggered = append(triggered, domain.TriggeredRule{
			Rule:     domain.RuleDailyLimit,
			Severity: domain.SeverityHigh,
			Reason:   dailyLimitReason("high", projected, e.dailyHigh),
		})
	} else if projected.GreaterThan(e.dailyMedium) {
		score += e.cfg.DailyLimitRiskMedium
		triggered = append(triggered, domain.TriggeredRule{
			Rule:     domain.RuleDailyLimit,
			Severity: domain.SeverityMedium,
			Reason:   dailyLimitReason("medium", projected, e.dailyMedium),
		})
	}

	// Tenant custom rules run after the built-ins and only add to the
	// accumulated score.
	if e.custom != nil {
		hits := e.custom.Evaluate(ctx, tenantID, customActivation(req, velCount, dailySum, projected))
		for _, hit := range hits {
			score += hit.Score
			triggered = append(triggered, domain.TriggeredRule{
				Rule:     domain.RuleName(hit.Name),
				Severity: hit.Severity,
				Reason:   hit.Reason,
			})
		}
	}

	// Decision derivation.
	var decision domain.Decision
	switch {
	case hardDecline:
		decision = domain.DecisionDecline
		if score < hardDeclineFloor {
			score = hardDeclineFloor
		}
	case score >= e.cfg.DeclineThreshold:
		decision = domain.DecisionDecline
	case score >= e.cfg.ReviewThreshold:
		decision = domain.DecisionReview
	default:
		decision = domain.DecisionApprove
	}
	if score > maxScore {
		score = maxScore
	}

	processedAt := e.now().UTC()

	tx := &domain.Transaction{
		TenantID:         tenantID,
		ExternalTxnID:    req.ExternalTxnID,
		AccountID:        req.AccountID,
		MerchantID:       req.MerchantID,
		IP:               req.IP,
		Country:          req.Country,
		Amount:           req.Amount,
		Currency:         req.Currency,
		AvailableBalance: req.AvailableBalance,
		Timestamp:        req.ParsedTimestamp(processedAt),
		CreatedAt:        processedAt,
		RiskScore:        score,
		Decision:         decision,
		TriggeredRules:   triggered,
	}

	// The audit record outlives the caller: a dropped connection must not
	// leave a scored-but-unrecorded transaction, or later velocity and
	// daily figures would be wrong.
	writeCtx := context.WithoutCancel(ctx)
	if err := e.ledger.InsertTransaction(writeCtx, tenantID, tx); err != nil {
		return nil, nil, fmt.Errorf("ledger write failed: %w", err)
	}

	if triggered == nil {
		triggered = []domain.TriggeredRule{}
	}

	result := &domain.ScoreResult{
		RequestID:      uuid.New().String(),
		Decision:       decision,
		RiskScore:      score,
		TriggeredRules: triggered,
		ProcessedAt:    processedAt,
	}

	return result, tx, nil
}

func blacklistReason(entry *domain.BlacklistEntry) string {
	reason := entry.Reason
	if reason == "" {
		reason = "No reason provided"
	}
	return fmt.Sprintf("%s %q is blacklisted: %s", entry.Type, entry.Value, reason)
}

func insufficientFundsReason(amount, balance decimal.Decimal) string {
	return fmt.Sprintf("Transaction amount (%s) exceeds available balance (%s)", amount, balance)
}

func velocityReason(band string, count int64, window time.Duration, threshold int64) string {
	return fmt.Sprintf("%s velocity: %d transactions in last %s (threshold: %d)", band, count, window, threshold)
}

func dailyLimitReason(band string, projected, limit decimal.Decimal) string {
	return fmt.Sprintf("Projected daily total (%s) exceeds %s threshold (%s)", projected, band, limit)
}
