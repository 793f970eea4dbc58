// Package plugin provides an extensible plugin system for the credit
// ledger. Plugins hook into lifecycle events to extend functionality;
// the pending -> completed/failed transition of every transaction is
// observable here, which is how callers subscribe instead of polling.
//
// Hook payloads are typed as interface{} so plugins do not create an
// import cycle with the root engine package. Concrete types are
// documented on each hook.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Transaction lifecycle hooks
// ──────────────────────────────────────────────────

// OnTransactionAdmitted is called after a transaction passes validation
// and is durably appended to the log. The payload is a
// *transaction.Transaction.
type OnTransactionAdmitted interface {
	Plugin
	OnTransactionAdmitted(ctx context.Context, tx interface{}) error
}

// OnTransactionCompleted is called on the pending -> completed
// transition, after the balance projection is updated. The payload is
// a *transaction.Transaction.
type OnTransactionCompleted interface {
	Plugin
	OnTransactionCompleted(ctx context.Context, tx interface{}) error
}

// OnTransactionFailed is called on the pending -> failed transition.
// Failure is an expected business outcome, not an error path.
type OnTransactionFailed interface {
	Plugin
	OnTransactionFailed(ctx context.Context, tx interface{}, reason string) error
}

// OnPurchaseConfirmed is called when the chain layer confirms a
// purchase and its credits land. The payload is a
// *transaction.Transaction carrying the external transaction hash.
type OnPurchaseConfirmed interface {
	Plugin
	OnPurchaseConfirmed(ctx context.Context, tx interface{}, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnBalanceChanged is called whenever a completed transaction moves an
// owner's balance.
type OnBalanceChanged interface {
	Plugin
	OnBalanceChanged(ctx context.Context, ownerID, creditKind string, balance int64) error
}

// OnInsufficientBalance is called when the validator rejects a debit
// that would overdraw the projected balance.
type OnInsufficientBalance interface {
	Plugin
	OnInsufficientBalance(ctx context.Context, ownerID, creditKind string, requested, available int64) error
}

// ──────────────────────────────────────────────────
// Registry and audit hooks
// ──────────────────────────────────────────────────

// OnAgentRegistered is called when a new agent is bound to an owner.
// The payload is an *agent.Agent.
type OnAgentRegistered interface {
	Plugin
	OnAgentRegistered(ctx context.Context, a interface{}) error
}

// OnProjectionDrift is called when a consistency audit finds the
// stored balances diverging from a replay of the log. The payload is
// a *creditledger.DriftReport.
type OnProjectionDrift interface {
	Plugin
	OnProjectionDrift(ctx context.Context, report interface{}) error
}
