package creditledger

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/transaction"
)

// ConfirmPurchase settles a pending purchase once the chain layer has
// verified the on-chain payment. The credits land atomically with the
// pending -> completed transition.
//
// Confirming with the hash the purchase already carries is idempotent:
// re-sending a confirmation never double-credits. A hash that another
// purchase already carries is rejected with ErrDuplicateExternalTx.
func (l *Ledger) ConfirmPurchase(ctx context.Context, txID id.TransactionID, externalTxHash string) error {
	if strings.TrimSpace(externalTxHash) == "" {
		return newValidationError(ErrInvalidInput, "external_tx_hash", "must not be empty")
	}

	tx, err := l.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Kind != transaction.KindPurchase || tx.Purchase == nil {
		return newValidationError(ErrInvalidInput, "tx_id", "%s is not a purchase", txID.String())
	}

	switch tx.Status {
	case transaction.StatusCompleted:
		if tx.Purchase.ExternalTxHash == externalTxHash {
			return nil // already confirmed with this hash
		}
		return ErrInvalidStateTransition
	case transaction.StatusFailed:
		return ErrInvalidStateTransition
	case transaction.StatusPending:
		// fall through
	}

	if tx.Purchase.ExternalTxHash != "" && tx.Purchase.ExternalTxHash != externalTxHash {
		return ErrHashMismatch
	}
	existing, findErr := l.store.FindPurchaseByHash(ctx, externalTxHash)
	switch {
	case findErr == nil:
		if existing.Seq != tx.Seq {
			return newValidationError(ErrDuplicateExternalTx, "external_tx_hash", "hash %s already recorded by %s", externalTxHash, existing.ID.String())
		}
	case !errors.Is(findErr, ErrTransactionNotFound):
		return findErr
	}

	l.mu.Lock()
	at := l.clock()
	if at.Before(l.lastTS) {
		at = l.lastTS
	}
	if err := l.store.MarkTransactionCompleted(ctx, txID, externalTxHash, at); err != nil {
		l.mu.Unlock()
		return err
	}
	tx.Status = transaction.StatusCompleted
	tx.CompletedAt = &at
	tx.Purchase.ExternalTxHash = externalTxHash

	balance, err := l.applyDeltaLocked(ctx, tx)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	elapsed := at.Sub(tx.Timestamp)
	l.plugins.EmitPurchaseConfirmed(ctx, tx, elapsed)
	l.plugins.EmitTransactionCompleted(ctx, tx)
	l.plugins.EmitBalanceChanged(ctx, tx.OwnerID, tx.CreditKind.String(), balance)
	l.logger.Info("purchase confirmed",
		"tx_id", txID.String(),
		"owner_id", tx.OwnerID,
		"credit_kind", tx.CreditKind.String(),
		"amount", tx.Amount,
		"external_tx_hash", externalTxHash,
		"balance", balance,
	)
	return nil
}

// FailPurchase marks a pending purchase failed. No credits move; the
// entry stays in the log as a record of the attempt. Failure is an
// expected business outcome (payment rejected on chain), not an error
// path.
func (l *Ledger) FailPurchase(ctx context.Context, txID id.TransactionID, reason string) error {
	tx, err := l.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Kind != transaction.KindPurchase {
		return newValidationError(ErrInvalidInput, "tx_id", "%s is not a purchase", txID.String())
	}
	if tx.Status != transaction.StatusPending {
		return ErrInvalidStateTransition
	}

	l.mu.Lock()
	at := l.clock()
	if at.Before(l.lastTS) {
		at = l.lastTS
	}
	err = l.store.MarkTransactionFailed(ctx, txID, reason, at)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	tx.Status = transaction.StatusFailed
	tx.FailureReason = reason
	l.plugins.EmitTransactionFailed(ctx, tx, reason)
	l.logger.Info("purchase failed",
		"tx_id", txID.String(),
		"owner_id", tx.OwnerID,
		"reason", reason,
	)
	return nil
}

// GetTransaction retrieves a transaction by its reference ID.
func (l *Ledger) GetTransaction(ctx context.Context, txID id.TransactionID) (*transaction.Transaction, error) {
	return l.store.GetTransaction(ctx, txID)
}
