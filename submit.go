package creditledger

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/agent"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

// ──────────────────────────────────────────────────
// Agent Registry
// ──────────────────────────────────────────────────

// RegisterAgent binds a minted agent NFT to its owner. The binding is
// what lets the validator enforce that transfers only move credits
// between agents of the same owner.
func (l *Ledger) RegisterAgent(ctx context.Context, ownerID, name, tokenID string) (*agent.Agent, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, newValidationError(ErrInvalidInput, "owner_id", "must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, newValidationError(ErrInvalidInput, "name", "must not be empty")
	}

	a := &agent.Agent{
		Entity:  types.NewEntity(),
		ID:      id.NewAgentID(),
		OwnerID: ownerID,
		Name:    name,
		TokenID: tokenID,
	}

	if err := l.store.CreateAgent(ctx, a); err != nil {
		return nil, err
	}

	l.plugins.EmitAgentRegistered(ctx, a)
	l.logger.Debug("agent registered",
		"agent_id", a.ID.String(),
		"owner_id", ownerID,
	)
	return a, nil
}

// GetAgent retrieves a registered agent by ID.
func (l *Ledger) GetAgent(ctx context.Context, agentID id.AgentID) (*agent.Agent, error) {
	return l.store.GetAgent(ctx, agentID)
}

// ListAgents returns all agents registered to an owner.
func (l *Ledger) ListAgents(ctx context.Context, ownerID string) ([]*agent.Agent, error) {
	return l.store.ListAgents(ctx, ownerID)
}

// ──────────────────────────────────────────────────
// Purchase
// ──────────────────────────────────────────────────

// Purchase admits a pending credit purchase. Credits do not land
// until the chain layer calls ConfirmPurchase; until then the entry
// dwells in pending and contributes nothing to the balance.
//
// externalTxHash may be empty when the on-chain payment has not been
// broadcast yet; if provided it must be unique across all purchases.
func (l *Ledger) Purchase(ctx context.Context, ownerID string, kind types.CreditKind, amount int64, cost types.Coin, externalTxHash string) (id.TransactionID, error) {
	if err := validateCommon(ownerID, kind); err != nil {
		return id.Nil, err
	}
	if amount <= 0 {
		return id.Nil, newValidationError(ErrInvalidAmountSign, "amount", "purchase amount must be positive, got %d", amount)
	}
	if externalTxHash != "" {
		existing, err := l.store.FindPurchaseByHash(ctx, externalTxHash)
		switch {
		case err == nil:
			return id.Nil, newValidationError(ErrDuplicateExternalTx, "external_tx_hash", "hash %s already recorded by %s", externalTxHash, existing.ID.String())
		case !errors.Is(err, ErrTransactionNotFound):
			return id.Nil, err
		}
	}

	l.mu.Lock()
	seq, ts := l.nextSeq()
	tx := &transaction.Transaction{
		Entity:     types.NewEntity(),
		ID:         id.NewTransactionID(),
		Seq:        seq,
		Kind:       transaction.KindPurchase,
		CreditKind: kind,
		OwnerID:    ownerID,
		Amount:     amount,
		Timestamp:  ts,
		Status:     transaction.StatusPending,
		Purchase: &transaction.PurchaseDetails{
			Cost:           cost,
			ExternalTxHash: externalTxHash,
		},
	}
	err := l.store.AppendTransaction(ctx, tx)
	l.mu.Unlock()

	if err != nil {
		if errors.Is(err, ErrDuplicateExternalTx) {
			return id.Nil, newValidationError(ErrDuplicateExternalTx, "external_tx_hash", "hash %s already recorded", externalTxHash)
		}
		return id.Nil, err
	}

	l.plugins.EmitTransactionAdmitted(ctx, tx)
	l.logger.Debug("purchase admitted",
		"tx_id", tx.ID.String(),
		"owner_id", ownerID,
		"credit_kind", kind.String(),
		"amount", amount,
	)
	return tx.ID, nil
}

// ──────────────────────────────────────────────────
// Usage
// ──────────────────────────────────────────────────

// BillUsage charges credits for an agent operation. units is the
// positive quantity consumed; the log stores the negative delta. The
// charge settles inside the admission critical section, so the
// returned transaction is already completed.
//
// The projected balance check subtracts other admitted pending debits
// from the completed balance, so two concurrent charges can never
// jointly overdraw an account.
func (l *Ledger) BillUsage(ctx context.Context, ownerID string, agentID id.AgentID, kind types.CreditKind, units int64, operationLabel string) (id.TransactionID, error) {
	if err := validateCommon(ownerID, kind); err != nil {
		return id.Nil, err
	}
	if units <= 0 {
		return id.Nil, newValidationError(ErrInvalidAmountSign, "units", "usage units must be positive, got %d", units)
	}
	if _, err := l.resolveOwnedAgent(ctx, ownerID, agentID, "agent_id", ErrAgentOwnerMismatch); err != nil {
		return id.Nil, err
	}

	l.mu.Lock()
	projected, err := l.projectedBalance(ctx, ownerID, kind)
	if err != nil {
		l.mu.Unlock()
		return id.Nil, err
	}
	if projected < units {
		l.mu.Unlock()
		l.plugins.EmitInsufficientBalance(ctx, ownerID, kind.String(), units, projected)
		return id.Nil, newValidationError(ErrInsufficientBalance, "units", "requested %d, projected balance %d", units, projected)
	}

	seq, ts := l.nextSeq()
	tx := &transaction.Transaction{
		Entity:     types.NewEntity(),
		ID:         id.NewTransactionID(),
		Seq:        seq,
		Kind:       transaction.KindUsage,
		CreditKind: kind,
		OwnerID:    ownerID,
		Amount:     -units,
		Timestamp:  ts,
		Status:     transaction.StatusPending,
		Usage: &transaction.UsageDetails{
			AgentID:        agentID,
			OperationLabel: operationLabel,
		},
	}
	tx, balance, err := l.settleLocked(ctx, tx)
	l.mu.Unlock()
	if err != nil {
		return id.Nil, err
	}

	l.plugins.EmitTransactionAdmitted(ctx, tx)
	l.plugins.EmitTransactionCompleted(ctx, tx)
	l.plugins.EmitBalanceChanged(ctx, ownerID, kind.String(), balance)
	l.logger.Debug("usage billed",
		"tx_id", tx.ID.String(),
		"owner_id", ownerID,
		"agent_id", agentID.String(),
		"credit_kind", kind.String(),
		"units", units,
		"balance", balance,
	)
	return tx.ID, nil
}

// ──────────────────────────────────────────────────
// Transfer
// ──────────────────────────────────────────────────

// Transfer re-labels credits between two agents of the same owner.
// The single log record carries both endpoints, so the debit and
// credit are atomic by construction and the owner-level balance is
// unchanged. The magnitude must still be covered by the projected
// balance: an owner cannot shuffle credits they do not hold.
func (l *Ledger) Transfer(ctx context.Context, ownerID string, fromAgentID, toAgentID id.AgentID, kind types.CreditKind, amount int64) (id.TransactionID, error) {
	if err := validateCommon(ownerID, kind); err != nil {
		return id.Nil, err
	}
	if amount <= 0 {
		return id.Nil, newValidationError(ErrInvalidAmountSign, "amount", "transfer amount must be positive, got %d", amount)
	}
	if fromAgentID.String() == toAgentID.String() {
		return id.Nil, newValidationError(ErrInvalidTransferTarget, "to_agent_id", "transfer endpoints must differ")
	}
	if _, err := l.resolveOwnedAgent(ctx, ownerID, fromAgentID, "from_agent_id", ErrInvalidTransferTarget); err != nil {
		return id.Nil, err
	}
	if _, err := l.resolveOwnedAgent(ctx, ownerID, toAgentID, "to_agent_id", ErrInvalidTransferTarget); err != nil {
		return id.Nil, err
	}

	l.mu.Lock()
	projected, err := l.projectedBalance(ctx, ownerID, kind)
	if err != nil {
		l.mu.Unlock()
		return id.Nil, err
	}
	if projected < amount {
		l.mu.Unlock()
		l.plugins.EmitInsufficientBalance(ctx, ownerID, kind.String(), amount, projected)
		return id.Nil, newValidationError(ErrInsufficientBalance, "amount", "requested %d, projected balance %d", amount, projected)
	}

	seq, ts := l.nextSeq()
	tx := &transaction.Transaction{
		Entity:     types.NewEntity(),
		ID:         id.NewTransactionID(),
		Seq:        seq,
		Kind:       transaction.KindTransfer,
		CreditKind: kind,
		OwnerID:    ownerID,
		Amount:     amount,
		Timestamp:  ts,
		Status:     transaction.StatusPending,
		Transfer: &transaction.TransferDetails{
			FromAgentID: fromAgentID,
			ToAgentID:   toAgentID,
		},
	}
	tx, balance, err := l.settleLocked(ctx, tx)
	l.mu.Unlock()
	if err != nil {
		return id.Nil, err
	}

	l.plugins.EmitTransactionAdmitted(ctx, tx)
	l.plugins.EmitTransactionCompleted(ctx, tx)
	l.logger.Debug("transfer settled",
		"tx_id", tx.ID.String(),
		"owner_id", ownerID,
		"from_agent_id", fromAgentID.String(),
		"to_agent_id", toAgentID.String(),
		"credit_kind", kind.String(),
		"amount", amount,
		"balance", balance,
	)
	return tx.ID, nil
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func validateCommon(ownerID string, kind types.CreditKind) error {
	if strings.TrimSpace(ownerID) == "" {
		return newValidationError(ErrInvalidInput, "owner_id", "must not be empty")
	}
	if !kind.Valid() {
		return newValidationError(ErrInvalidCreditKind, "credit_kind", "unknown kind %q", string(kind))
	}
	return nil
}

// resolveOwnedAgent loads an agent and checks it belongs to ownerID.
// mismatch is the sentinel wrapped when the agent exists under another
// owner; usage and transfers reject with different taxonomy entries.
func (l *Ledger) resolveOwnedAgent(ctx context.Context, ownerID string, agentID id.AgentID, field string, mismatch error) (*agent.Agent, error) {
	if agentID.IsNil() {
		return nil, newValidationError(ErrInvalidInput, field, "must not be empty")
	}
	a, err := l.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != ownerID {
		return nil, newValidationError(mismatch, field, "agent %s belongs to a different owner", agentID.String())
	}
	return a, nil
}

// projectedBalance returns the completed balance minus admitted
// pending debits. Callers must hold l.mu.
func (l *Ledger) projectedBalance(ctx context.Context, ownerID string, kind types.CreditKind) (int64, error) {
	balance := int64(0)
	acct, err := l.store.GetAccount(ctx, ownerID, kind)
	switch {
	case err == nil:
		balance = acct.Balance
	case errors.Is(err, ErrAccountNotFound):
		// Lazily created account, balance zero.
	default:
		return 0, err
	}

	pending, err := l.store.SumPendingDebits(ctx, ownerID, kind)
	if err != nil {
		return 0, err
	}
	return balance - pending, nil
}

// settleLocked appends tx, marks it completed, and folds its delta
// into the balance projection. Callers must hold l.mu. The returned
// transaction reflects the completed state.
func (l *Ledger) settleLocked(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, int64, error) {
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return nil, 0, err
	}
	if err := l.store.MarkTransactionCompleted(ctx, tx.ID, "", tx.Timestamp); err != nil {
		return nil, 0, err
	}
	tx.Status = transaction.StatusCompleted
	at := tx.Timestamp
	tx.CompletedAt = &at

	balance, err := l.applyDeltaLocked(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	return tx, balance, nil
}

// applyDeltaLocked folds a completed transaction into the projection
// and returns the resulting balance. Callers must hold l.mu.
func (l *Ledger) applyDeltaLocked(ctx context.Context, tx *transaction.Transaction) (int64, error) {
	acct, err := l.store.GetAccount(ctx, tx.OwnerID, tx.CreditKind)
	if errors.Is(err, ErrAccountNotFound) {
		acct = &account.Account{
			Entity:  types.NewEntity(),
			OwnerID: tx.OwnerID,
			Kind:    tx.CreditKind,
		}
		err = nil
	}
	if err != nil {
		return 0, err
	}

	acct.Balance += tx.BalanceDelta()
	acct.LastSeq = tx.Seq
	acct.Touch()
	if err := l.store.UpsertAccount(ctx, acct); err != nil {
		return 0, err
	}
	return acct.Balance, nil
}
