package creditledger

import (
	"context"
	"time"

	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

// Replay folds the transaction log from fromSeq (inclusive) into a
// map of balance deltas. Replaying from the first sequence reproduces
// the full balance table; replaying from a later point yields the
// deltas that sequence range contributed. Only completed transactions
// move balances; pending and failed entries fold to zero.
func (l *Ledger) Replay(ctx context.Context, fromSeq uint64) (map[account.Key]int64, error) {
	balances := make(map[account.Key]int64)
	err := l.store.ScanTransactions(ctx, fromSeq, func(tx *transaction.Transaction) error {
		key := account.Key{OwnerID: tx.OwnerID, Kind: tx.CreditKind}
		if delta := tx.BalanceDelta(); delta != 0 {
			balances[key] += delta
		} else if _, seen := balances[key]; !seen && tx.Status == transaction.StatusCompleted {
			// Keep zero-delta owners (e.g. transfer-only) visible so
			// rebuilds still produce their account rows.
			balances[key] = 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// RebuildBalances replays the whole log and overwrites the stored
// balance projection with the result. This is the recovery path after
// a crash between a log append and its projection write: the log is
// the source of truth and the projection is disposable.
func (l *Ledger) RebuildBalances(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances, err := l.Replay(ctx, 0)
	if err != nil {
		return err
	}
	lastSeq, err := l.store.LastSeq(ctx)
	if err != nil {
		return err
	}

	accounts := make([]*account.Account, 0, len(balances))
	for key, balance := range balances {
		accounts = append(accounts, &account.Account{
			Entity:  types.NewEntity(),
			OwnerID: key.OwnerID,
			Kind:    key.Kind,
			Balance: balance,
			LastSeq: lastSeq,
		})
	}
	if err := l.store.ReplaceBalances(ctx, accounts); err != nil {
		return err
	}

	l.logger.Info("balances rebuilt from log",
		"accounts", len(accounts),
		"last_seq", lastSeq,
	)
	return nil
}

// DriftReport is the outcome of one projection audit.
type DriftReport struct {
	CheckedAt   time.Time    `json:"checked_at"`
	LastSeq     uint64       `json:"last_seq"`
	Divergences []Divergence `json:"divergences,omitempty"`
}

// Divergence is one account whose stored balance disagrees with the
// replayed value.
type Divergence struct {
	Key      account.Key `json:"key"`
	Stored   int64       `json:"stored"`
	Replayed int64       `json:"replayed"`
}

// VerifyProjection replays the full log and compares the result
// against the stored balance table. It runs inside the admission
// critical section so no settlement can land between the replay pass
// and the stored-balance read. Incremental projection and replay must
// agree for every account; any divergence is reported, not repaired
// (see RebuildBalances).
func (l *Ledger) VerifyProjection(ctx context.Context) (*DriftReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	replayed, err := l.Replay(ctx, 0)
	if err != nil {
		return nil, err
	}
	stored, err := l.store.ListAccounts(ctx, "")
	if err != nil {
		return nil, err
	}
	lastSeq, err := l.store.LastSeq(ctx)
	if err != nil {
		return nil, err
	}

	report := &DriftReport{
		CheckedAt: l.clock(),
		LastSeq:   lastSeq,
	}

	storedByKey := make(map[account.Key]int64, len(stored))
	for _, a := range stored {
		storedByKey[a.Key()] = a.Balance
	}

	for key, want := range replayed {
		if got := storedByKey[key]; got != want {
			report.Divergences = append(report.Divergences, Divergence{
				Key:      key,
				Stored:   got,
				Replayed: want,
			})
		}
		delete(storedByKey, key)
	}
	// Accounts with a nonzero stored balance but no log history are
	// drift too.
	for key, got := range storedByKey {
		if got != 0 {
			report.Divergences = append(report.Divergences, Divergence{
				Key:      key,
				Stored:   got,
				Replayed: 0,
			})
		}
	}

	return report, nil
}
