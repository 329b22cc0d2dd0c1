// Package worker provides async consumers for the event bus: usage-log
// persistence and decline alerting, both off the request path.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/metrics"
)

// Worker consumes decision and usage events from the EventBus.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to consume events for.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, m *metrics.Metrics, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		metrics: m,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the decision and usage topics for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return fmt.Errorf("at least one tenant is required")
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenant(tenantID); err != nil {
			w.logger.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	w.logger.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

func (w *Worker) startTenant(tenantID string) error {
	decisionSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicDecision, w.handleDecision)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, decisionSub)

	usageSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicUsage, w.handleUsage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, usageSub)

	w.logger.Info("tenant worker started", "tenant_id", tenantID)

	return nil
}

// handleDecision watches the decision stream and raises an alert for every
// DECLINE.
func (w *Worker) handleDecision(ctx context.Context, msg *domain.Message) error {
	var event domain.DecisionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.logger.Error("failed to parse decision event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if event.Decision != domain.DecisionDecline {
		return nil
	}

	if w.metrics != nil {
		w.metrics.Alerts.WithLabelValues(event.TenantID).Inc()
	}

	w.logger.Warn("transaction declined",
		"tenant_id", event.TenantID,
		"transaction_id", event.TransactionID,
		"request_id", event.RequestID,
		"account_id", event.AccountID,
		"risk_score", event.RiskScore,
	)

	return nil
}

// handleUsage persists one API usage record.
func (w *Worker) handleUsage(ctx context.Context, msg *domain.Message) error {
	var log domain.UsageLog
	if err := json.Unmarshal(msg.Payload, &log); err != nil {
		w.logger.Error("failed to parse usage event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := w.repo.InsertUsageLog(ctx, msg.TenantID, &log); err != nil {
		w.logger.Error("failed to persist usage log",
			"tenant_id", msg.TenantID,
			"endpoint", log.Endpoint,
			"error", err,
		)
		return err
	}

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.logger.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
