// Package audithook bridges credit ledger lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/creditledger/agent"
	"github.com/xraph/creditledger/plugin"
	"github.com/xraph/creditledger/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnTransactionAdmitted  = (*Extension)(nil)
	_ plugin.OnTransactionCompleted = (*Extension)(nil)
	_ plugin.OnTransactionFailed    = (*Extension)(nil)
	_ plugin.OnPurchaseConfirmed    = (*Extension)(nil)
	_ plugin.OnInsufficientBalance  = (*Extension)(nil)
	_ plugin.OnAgentRegistered      = (*Extension)(nil)
	_ plugin.OnProjectionDrift      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges credit ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Transaction lifecycle hooks
// ──────────────────────────────────────────────────

// OnTransactionAdmitted implements plugin.OnTransactionAdmitted.
func (e *Extension) OnTransactionAdmitted(ctx context.Context, payload interface{}) error {
	id, kvs := transactionFields(payload)
	return e.record(ctx, ActionTransactionAdmitted, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, id, CategoryCredit, nil, kvs...)
}

// OnTransactionCompleted implements plugin.OnTransactionCompleted.
func (e *Extension) OnTransactionCompleted(ctx context.Context, payload interface{}) error {
	id, kvs := transactionFields(payload)
	return e.record(ctx, ActionTransactionCompleted, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, id, CategoryCredit, nil, kvs...)
}

// OnTransactionFailed implements plugin.OnTransactionFailed.
func (e *Extension) OnTransactionFailed(ctx context.Context, payload interface{}, reason string) error {
	id, kvs := transactionFields(payload)
	kvs = append(kvs, "failure_reason", reason)
	return e.record(ctx, ActionTransactionFailed, SeverityWarning, OutcomeFailure,
		ResourceTransaction, id, CategoryCredit, nil, kvs...)
}

// ──────────────────────────────────────────────────
// Purchase lifecycle hooks
// ──────────────────────────────────────────────────

// OnPurchaseConfirmed implements plugin.OnPurchaseConfirmed.
func (e *Extension) OnPurchaseConfirmed(ctx context.Context, payload interface{}, elapsed time.Duration) error {
	id, kvs := transactionFields(payload)
	kvs = append(kvs, "confirmation_latency_ms", elapsed.Milliseconds())
	return e.record(ctx, ActionPurchaseConfirmed, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, id, CategoryPayment, nil, kvs...)
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnInsufficientBalance implements plugin.OnInsufficientBalance.
func (e *Extension) OnInsufficientBalance(ctx context.Context, ownerID, creditKind string, requested, available int64) error {
	return e.record(ctx, ActionInsufficientBalance, SeverityWarning, OutcomeFailure,
		ResourceBalance, ownerID, CategoryAccess, nil,
		"owner_id", ownerID,
		"credit_kind", creditKind,
		"requested", requested,
		"available", available,
	)
}

// ──────────────────────────────────────────────────
// Agent and audit hooks
// ──────────────────────────────────────────────────

// OnAgentRegistered implements plugin.OnAgentRegistered.
func (e *Extension) OnAgentRegistered(ctx context.Context, payload interface{}) error {
	var id string
	kvs := []any{"event", "agent_registered"}
	if a, ok := payload.(*agent.Agent); ok {
		id = a.ID.String()
		kvs = append(kvs, "owner_id", a.OwnerID, "name", a.Name, "token_id", a.TokenID)
	}
	return e.record(ctx, ActionAgentRegistered, SeverityInfo, OutcomeSuccess,
		ResourceAgent, id, CategoryCredit, nil, kvs...)
}

// OnProjectionDrift implements plugin.OnProjectionDrift.
func (e *Extension) OnProjectionDrift(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionProjectionDrift, SeverityCritical, OutcomeFailure,
		ResourceProjection, "", CategoryAudit, nil,
		"event", "projection_drift",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// transactionFields extracts the resource ID and metadata pairs from a
// transaction payload when it carries the expected concrete type.
func transactionFields(payload interface{}) (string, []any) {
	tx, ok := payload.(*transaction.Transaction)
	if !ok {
		return "", nil
	}
	return tx.ID.String(), []any{
		"seq", tx.Seq,
		"kind", string(tx.Kind),
		"credit_kind", tx.CreditKind.String(),
		"owner_id", tx.OwnerID,
		"amount", tx.Amount,
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
