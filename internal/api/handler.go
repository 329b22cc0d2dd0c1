package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/metrics"
	"github.com/opensource-finance/shrike/internal/repository"
	"github.com/opensource-finance/shrike/internal/rules"
	"github.com/opensource-finance/shrike/internal/stats"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	custom  *rules.CustomEngine
	stats   *stats.Service
	metrics *metrics.Metrics
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, custom *rules.CustomEngine, statsSvc *stats.Service, m *metrics.Metrics, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		custom:  custom,
		stats:   statsSvc,
		metrics: m,
		version: version,
	}
}

// Score handles POST /v1/score requests.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	result, tx, err := h.engine.Score(ctx, tenantID, &req)
	if err != nil {
		// A scoring failure means a signal store or the ledger was
		// unreachable. Nothing was recorded; the caller may retry.
		slog.Error("scoring failed",
			"tenant_id", tenantID,
			"external_txn_id", req.ExternalTxnID,
			"error", err,
		)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "scoring dependency unavailable",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.ScoreRequests.WithLabelValues(tenantID, string(result.Decision)).Inc()
		h.metrics.ScoreDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())
	}

	h.publishDecision(r, tenantID, result, tx)

	slog.Info("transaction scored",
		"tenant_id", tenantID,
		"transaction_id", tx.ID,
		"request_id", result.RequestID,
		"decision", result.Decision,
		"risk_score", result.RiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) publishDecision(r *http.Request, tenantID string, result *domain.ScoreResult, tx *domain.Transaction) {
	if h.bus == nil {
		return
	}

	event := domain.DecisionEvent{
		TransactionID: tx.ID,
		RequestID:     result.RequestID,
		TenantID:      tenantID,
		AccountID:     tx.AccountID,
		Decision:      result.Decision,
		RiskScore:     result.RiskScore,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	if err := h.bus.Publish(r.Context(), tenantID, domain.TopicDecision, payload); err != nil {
		slog.Warn("failed to publish decision event",
			"tenant_id", tenantID,
			"transaction_id", tx.ID,
			"error", err,
		)
	}
}

// GetTransaction retrieves a ledger record by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		writeError(w, err, "transaction")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListTransactions lists ledger records for the tenant, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	filter := domain.TransactionFilter{
		Decision: domain.Decision(r.URL.Query().Get("decision")),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}

	txs, err := h.repo.ListTransactions(ctx, tenantID, filter)
	if err != nil {
		writeError(w, err, "transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

// BlacklistEntryRequest is the request body for creating or updating a
// denylist entry.
type BlacklistEntryRequest struct {
	Type   domain.BlacklistType `json:"type"`
	Value  string               `json:"value"`
	Reason string               `json:"reason,omitempty"`
	Active *bool                `json:"active,omitempty"`
}

// CreateBlacklistEntry handles POST /v1/blacklist.
func (h *Handler) CreateBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req BlacklistEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if !domain.ValidBlacklistType(req.Type) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type must be one of ACCOUNT_ID, MERCHANT_ID, IP, COUNTRY",
		})
		return
	}
	if req.Value == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "value is required",
		})
		return
	}

	entry := &domain.BlacklistEntry{
		TenantID: tenantID,
		Type:     req.Type,
		Value:    req.Value,
		Reason:   req.Reason,
		Active:   true,
	}
	if req.Active != nil {
		entry.Active = *req.Active
	}

	if err := h.repo.CreateBlacklistEntry(ctx, tenantID, entry); err != nil {
		writeError(w, err, "blacklist entry")
		return
	}

	slog.Info("blacklist entry created",
		"tenant_id", tenantID,
		"entry_id", entry.ID,
		"type", entry.Type,
	)
	writeJSON(w, http.StatusCreated, entry)
}

// GetBlacklistEntry handles GET /v1/blacklist/{id}.
func (h *Handler) GetBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	entryID := chi.URLParam(r, "id")

	entry, err := h.repo.GetBlacklistEntry(ctx, tenantID, entryID)
	if err != nil {
		writeError(w, err, "blacklist entry")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// ListBlacklistEntries handles GET /v1/blacklist.
func (h *Handler) ListBlacklistEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	filter := domain.BlacklistFilter{
		Type: domain.BlacklistType(r.URL.Query().Get("type")),
	}
	if active := r.URL.Query().Get("active"); active != "" {
		v := active == "true"
		filter.Active = &v
	}

	entries, err := h.repo.ListBlacklistEntries(ctx, tenantID, filter)
	if err != nil {
		writeError(w, err, "blacklist entries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// UpdateBlacklistEntry handles PUT /v1/blacklist/{id}. Only reason and
// active are mutable; type and value are fixed at creation.
func (h *Handler) UpdateBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	entryID := chi.URLParam(r, "id")

	var req BlacklistEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	entry, err := h.repo.GetBlacklistEntry(ctx, tenantID, entryID)
	if err != nil {
		writeError(w, err, "blacklist entry")
		return
	}

	entry.Reason = req.Reason
	if req.Active != nil {
		entry.Active = *req.Active
	}

	if err := h.repo.UpdateBlacklistEntry(ctx, tenantID, entry); err != nil {
		writeError(w, err, "blacklist entry")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// DeleteBlacklistEntry handles DELETE /v1/blacklist/{id}.
func (h *Handler) DeleteBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	entryID := chi.URLParam(r, "id")

	if err := h.repo.DeleteBlacklistEntry(ctx, tenantID, entryID); err != nil {
		writeError(w, err, "blacklist entry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "blacklist entry deleted",
	})
}

// CustomRuleRequest is the request body for creating a custom rule.
type CustomRuleRequest struct {
	Name       string          `json:"name"`
	Expression string          `json:"expression"`
	Score      int             `json:"score"`
	Severity   domain.Severity `json:"severity,omitempty"`
	Enabled    bool            `json:"enabled"`
}

// CreateCustomRule handles POST /v1/rules. The expression is compiled
// before saving so an invalid rule never reaches the database.
func (h *Handler) CreateCustomRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CustomRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}
	if req.Score <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "score must be positive",
		})
		return
	}

	rule := &domain.CustomRule{
		TenantID:   tenantID,
		Name:       req.Name,
		Expression: req.Expression,
		Score:      req.Score,
		Severity:   req.Severity,
		Enabled:    req.Enabled,
	}
	if rule.Severity == "" {
		rule.Severity = domain.SeverityMedium
	}

	if err := h.custom.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveCustomRule(ctx, tenantID, rule); err != nil {
		writeError(w, err, "custom rule")
		return
	}

	slog.Info("custom rule created",
		"tenant_id", tenantID,
		"rule_id", rule.ID,
		"name", rule.Name,
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /v1/rules/reload to apply changes.",
	})
}

// ListCustomRules handles GET /v1/rules.
func (h *Handler) ListCustomRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	ruleList, err := h.repo.ListCustomRules(ctx, tenantID)
	if err != nil {
		writeError(w, err, "custom rules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  ruleList,
		"count":  len(ruleList),
		"loaded": h.custom.RulesCount(tenantID),
	})
}

// DeleteCustomRule handles DELETE /v1/rules/{id}. The rule is disabled and
// the tenant's loaded set is refreshed immediately.
func (h *Handler) DeleteCustomRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteCustomRule(ctx, tenantID, ruleID); err != nil {
		writeError(w, err, "custom rule")
		return
	}

	ruleList, err := h.repo.ListCustomRules(ctx, tenantID)
	if err == nil {
		if err := h.custom.ReloadTenant(tenantID, ruleList); err != nil {
			slog.Error("failed to reload rules after delete",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted and engine reloaded",
	})
}

// ReloadCustomRules handles POST /v1/rules/reload.
func (h *Handler) ReloadCustomRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	ruleList, err := h.repo.ListCustomRules(ctx, tenantID)
	if err != nil {
		writeError(w, err, "custom rules")
		return
	}

	if err := h.custom.ReloadTenant(tenantID, ruleList); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("custom rules reloaded",
		"tenant_id", tenantID,
		"count", len(ruleList),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(ruleList),
	})
}

// Stats handles GET /v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	dashboard, err := h.stats.Dashboard(ctx, tenantID)
	if err != nil {
		writeError(w, err, "stats")
		return
	}

	writeJSON(w, http.StatusOK, dashboard)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps repository sentinel errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": what + " not found",
		})
	case errors.Is(err, repository.ErrDuplicate):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": what + " already exists",
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
