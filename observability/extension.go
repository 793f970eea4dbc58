// Package observability provides a metrics extension for the credit
// ledger that records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/creditledger/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnTransactionAdmitted  = (*MetricsExtension)(nil)
	_ plugin.OnTransactionCompleted = (*MetricsExtension)(nil)
	_ plugin.OnTransactionFailed    = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseConfirmed    = (*MetricsExtension)(nil)
	_ plugin.OnBalanceChanged       = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientBalance  = (*MetricsExtension)(nil)
	_ plugin.OnAgentRegistered      = (*MetricsExtension)(nil)
	_ plugin.OnProjectionDrift      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide ledger metrics.
// Register it as a Ledger plugin to automatically track credit flow.
type MetricsExtension struct {
	factory MetricFactory

	// Transaction metrics
	TransactionsAdmitted  Counter
	TransactionsCompleted Counter
	TransactionsFailed    Counter

	// Purchase metrics
	PurchasesConfirmed  Counter
	ConfirmationLatency Histogram

	// Balance metrics
	BalanceChanges      Counter
	InsufficientBalance Counter

	// Agent metrics
	AgentsRegistered Counter

	// Audit metrics
	ProjectionDrift Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Transaction metrics
		TransactionsAdmitted:  factory.Counter("creditledger.transaction.admitted"),
		TransactionsCompleted: factory.Counter("creditledger.transaction.completed"),
		TransactionsFailed:    factory.Counter("creditledger.transaction.failed"),

		// Purchase metrics
		PurchasesConfirmed:  factory.Counter("creditledger.purchase.confirmed"),
		ConfirmationLatency: factory.Histogram("creditledger.purchase.confirmation_latency_ms"),

		// Balance metrics
		BalanceChanges:      factory.Counter("creditledger.balance.changes"),
		InsufficientBalance: factory.Counter("creditledger.balance.insufficient"),

		// Agent metrics
		AgentsRegistered: factory.Counter("creditledger.agent.registered"),

		// Audit metrics
		ProjectionDrift: factory.Counter("creditledger.audit.drift"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Transaction lifecycle hooks
// ──────────────────────────────────────────────────

// OnTransactionAdmitted implements plugin.OnTransactionAdmitted.
func (m *MetricsExtension) OnTransactionAdmitted(_ context.Context, _ interface{}) error {
	m.TransactionsAdmitted.Inc()
	return nil
}

// OnTransactionCompleted implements plugin.OnTransactionCompleted.
func (m *MetricsExtension) OnTransactionCompleted(_ context.Context, _ interface{}) error {
	m.TransactionsCompleted.Inc()
	return nil
}

// OnTransactionFailed implements plugin.OnTransactionFailed.
func (m *MetricsExtension) OnTransactionFailed(_ context.Context, _ interface{}, _ string) error {
	m.TransactionsFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Purchase lifecycle hooks
// ──────────────────────────────────────────────────

// OnPurchaseConfirmed implements plugin.OnPurchaseConfirmed.
func (m *MetricsExtension) OnPurchaseConfirmed(_ context.Context, _ interface{}, elapsed time.Duration) error {
	m.PurchasesConfirmed.Inc()
	m.ConfirmationLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnBalanceChanged implements plugin.OnBalanceChanged.
func (m *MetricsExtension) OnBalanceChanged(_ context.Context, _, _ string, _ int64) error {
	m.BalanceChanges.Inc()
	return nil
}

// OnInsufficientBalance implements plugin.OnInsufficientBalance.
func (m *MetricsExtension) OnInsufficientBalance(_ context.Context, _, _ string, _, _ int64) error {
	m.InsufficientBalance.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Agent hooks
// ──────────────────────────────────────────────────

// OnAgentRegistered implements plugin.OnAgentRegistered.
func (m *MetricsExtension) OnAgentRegistered(_ context.Context, _ interface{}) error {
	m.AgentsRegistered.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Audit hooks
// ──────────────────────────────────────────────────

// OnProjectionDrift implements plugin.OnProjectionDrift.
func (m *MetricsExtension) OnProjectionDrift(_ context.Context, _ interface{}) error {
	m.ProjectionDrift.Inc()
	return nil
}
