package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/shrike/internal/domain"
)

// CustomEngine compiles and evaluates tenant-authored CEL rules. Rules are
// boolean predicates over the transaction and its computed signals; a true
// result adds the rule's configured score on top of the built-in rules.
// Compiled programs are held per tenant and hot-reloadable.
type CustomEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string][]*compiledCustomRule // keyed by tenant ID
	logger   *slog.Logger
}

type compiledCustomRule struct {
	rule    *domain.CustomRule
	program cel.Program
}

// Hit is one custom rule that evaluated to true.
type Hit struct {
	Name     string
	Score    int
	Severity domain.Severity
	Reason   string
}

// NewCustomEngine creates a custom rule engine with the transaction
// evaluation environment.
func NewCustomEngine(logger *slog.Logger) (*CustomEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("account_id", cel.StringType),
		cel.Variable("merchant_id", cel.StringType),
		cel.Variable("ip", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("available_balance", cel.DoubleType),
		cel.Variable("velocity_count", cel.IntType),
		cel.Variable("daily_total", cel.DoubleType),
		cel.Variable("projected_daily_total", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{
		env:      env,
		compiled: make(map[string][]*compiledCustomRule),
		logger:   logger,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *CustomEngine) ValidateRule(rule *domain.CustomRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	_, err := e.compile(rule)
	return err
}

// ReloadTenant replaces the loaded rules for one tenant. Any compile
// failure rejects the whole batch and leaves the previous set in place.
// Rules are ordered by name so evaluation output is deterministic.
func (e *CustomEngine) ReloadTenant(tenantID string, rules []*domain.CustomRule) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	compiled := make([]*compiledCustomRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		cr, err := e.compile(rule)
		if err != nil {
			return err
		}
		compiled = append(compiled, cr)
	}

	sort.Slice(compiled, func(i, j int) bool {
		return compiled[i].rule.Name < compiled[j].rule.Name
	})

	e.mu.Lock()
	if len(compiled) == 0 {
		delete(e.compiled, tenantID)
	} else {
		e.compiled[tenantID] = compiled
	}
	e.mu.Unlock()

	return nil
}

// Evaluate runs the tenant's loaded rules against the activation and
// returns the hits in rule-name order. A rule whose evaluation errors is
// skipped: a broken tenant expression must not block scoring.
func (e *CustomEngine) Evaluate(ctx context.Context, tenantID string, activation map[string]any) []Hit {
	e.mu.RLock()
	rules := e.compiled[tenantID]
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	var hits []Hit
	for _, cr := range rules {
		out, _, err := cr.program.ContextEval(ctx, activation)
		if err != nil {
			e.logger.Warn("custom rule evaluation failed",
				"tenant_id", tenantID,
				"rule", cr.rule.Name,
				"error", err)
			continue
		}

		matched, ok := out.(types.Bool)
		if !ok || !bool(matched) {
			continue
		}

		hits = append(hits, Hit{
			Name:     cr.rule.Name,
			Score:    cr.rule.Score,
			Severity: cr.rule.Severity,
			Reason:   fmt.Sprintf("Custom rule %q matched", cr.rule.Name),
		})
	}

	return hits
}

// RulesCount returns the number of loaded rules for a tenant.
func (e *CustomEngine) RulesCount(tenantID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled[tenantID])
}

func (e *CustomEngine) compile(rule *domain.CustomRule) (*compiledCustomRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.Name, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.Name, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.Name, err)
	}

	return &compiledCustomRule{rule: rule, program: program}, nil
}

// customActivation flattens the request and signal values into the CEL
// variable set. Decimal values are downcast to float64; custom rules are
// heuristics, not the system of record.
func customActivation(req *domain.ScoreRequest, velocityCount int64, dailyTotal, projected decimal.Decimal) map[string]any {
	amount := req.Amount.InexactFloat64()
	balance := req.AvailableBalance.InexactFloat64()

	return map[string]any{
		"tx": map[string]any{
			"external_txn_id": req.ExternalTxnID,
			"account_id":      req.AccountID,
			"merchant_id":     req.MerchantID,
			"ip":              req.IP,
			"country":         req.Country,
			"amount":          amount,
			"currency":        req.Currency,
		},
		"amount":                amount,
		"currency":              req.Currency,
		"account_id":            req.AccountID,
		"merchant_id":           req.MerchantID,
		"ip":                    req.IP,
		"country":               req.Country,
		"available_balance":     balance,
		"velocity_count":        velocityCount,
		"daily_total":           dailyTotal.InexactFloat64(),
		"projected_daily_total": projected.InexactFloat64(),
	}
}
