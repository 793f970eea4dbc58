// Package transaction defines the append-only ledger transaction model.
//
// A Transaction is a tagged variant: every entry shares the common
// envelope (sequence, owner, credit kind, signed amount, status) and
// carries exactly one kind-specific payload.
package transaction

import (
	"time"

	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/types"
)

// Kind discriminates the transaction variant.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindUsage    Kind = "usage"
	KindTransfer Kind = "transfer"
)

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	return k == KindPurchase || k == KindUsage || k == KindTransfer
}

// Status is the transaction lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CanTransitionTo reports whether the status machine permits moving
// from s to next. Pending is the only state with outgoing edges;
// completed and failed are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusCompleted || next == StatusFailed
}

// Transaction is one immutable entry in the credit ledger log.
// Entries are only ever appended; after admission the sole permitted
// mutation is the single pending -> completed/failed transition.
// Corrections are expressed as new compensating entries.
type Transaction struct {
	types.Entity
	ID         id.TransactionID `json:"id"`
	Seq        uint64           `json:"seq"`
	Kind       Kind             `json:"kind"`
	CreditKind types.CreditKind `json:"credit_kind"`
	OwnerID    string           `json:"owner_id"`

	// Amount is signed: positive for purchases, negative for usage.
	// For transfers it is the positive magnitude moved; the record
	// carries both endpoints so the debit and credit land together.
	Amount int64 `json:"amount"`

	// Timestamp is monotonically non-decreasing across the log.
	// Seq is the authoritative order; Timestamp is for display and
	// time-window queries.
	Timestamp time.Time `json:"timestamp"`

	Status        Status     `json:"status"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`

	// Exactly one of the payloads below is non-nil, matching Kind.
	Purchase *PurchaseDetails `json:"purchase,omitempty"`
	Usage    *UsageDetails    `json:"usage,omitempty"`
	Transfer *TransferDetails `json:"transfer,omitempty"`
}

// PurchaseDetails is the purchase-specific payload.
type PurchaseDetails struct {
	// Cost is what the credits cost in native currency on chain.
	Cost types.Coin `json:"cost"`

	// ExternalTxHash links the purchase to its on-chain payment.
	// Optional until confirmation; once set, unique across all
	// purchases in the log.
	ExternalTxHash string `json:"external_tx_hash,omitempty"`
}

// UsageDetails is the usage-specific payload.
type UsageDetails struct {
	AgentID        id.AgentID `json:"agent_id"`
	OperationLabel string     `json:"operation_label,omitempty"`
}

// TransferDetails is the transfer-specific payload. Both agents must
// belong to the transaction's owner.
type TransferDetails struct {
	FromAgentID id.AgentID `json:"from_agent_id"`
	ToAgentID   id.AgentID `json:"to_agent_id"`
}

// IsPendingDebit reports whether the transaction is an admitted but
// not yet settled balance reduction. Pending debits count against the
// projected balance so concurrent submissions cannot double-spend.
func (t *Transaction) IsPendingDebit() bool {
	return t.Status == StatusPending && t.Amount < 0
}

// BalanceDelta returns the signed effect of a completed transaction on
// its owner's (OwnerID, CreditKind) balance. Transfers re-label credits
// between two agents of the same owner, so their owner-level delta is
// zero. Pending and failed transactions contribute nothing.
func (t *Transaction) BalanceDelta() int64 {
	if t.Status != StatusCompleted {
		return 0
	}
	if t.Kind == KindTransfer {
		return 0
	}
	return t.Amount
}

// Clone returns a deep copy. Stores hand out clones so callers can
// never mutate the log through a returned pointer.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		clone.CompletedAt = &at
	}
	if t.Purchase != nil {
		p := *t.Purchase
		clone.Purchase = &p
	}
	if t.Usage != nil {
		u := *t.Usage
		clone.Usage = &u
	}
	if t.Transfer != nil {
		tr := *t.Transfer
		clone.Transfer = &tr
	}
	return &clone
}
