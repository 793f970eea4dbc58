package creditledger

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

// ──────────────────────────────────────────────────
// History
// ──────────────────────────────────────────────────

// History returns transactions matching the filter, newest first by
// timestamp with ties broken by descending sequence.
func (l *Ledger) History(ctx context.Context, f transaction.Filter) ([]*transaction.Transaction, error) {
	return l.store.ListTransactions(ctx, f)
}

// ──────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────

// Balance returns the completed credit balance for one owner and kind.
// Owners the log has never touched read as zero.
func (l *Ledger) Balance(ctx context.Context, ownerID string, kind types.CreditKind) (int64, error) {
	if err := validateCommon(ownerID, kind); err != nil {
		return 0, err
	}
	acct, err := l.store.GetAccount(ctx, ownerID, kind)
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// BalanceSummary returns an owner's balances across both credit kinds.
func (l *Ledger) BalanceSummary(ctx context.Context, ownerID string) (account.BalanceSummary, error) {
	summary := account.BalanceSummary{OwnerID: ownerID}
	accounts, err := l.store.ListAccounts(ctx, ownerID)
	if err != nil {
		return summary, err
	}
	for _, a := range accounts {
		switch a.Kind {
		case types.CreditCompute:
			summary.Compute = a.Balance
		case types.CreditStorage:
			summary.Storage = a.Balance
		}
	}
	return summary, nil
}

// ──────────────────────────────────────────────────
// Analytics
// ──────────────────────────────────────────────────

// Analytics is a fold of an owner's completed history over a time
// window. An empty window yields the zero value of every field, never
// an error.
type Analytics struct {
	OwnerID string    `json:"owner_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`

	// TotalPurchased counts credits from confirmed purchases.
	TotalPurchased int64 `json:"total_purchased"`

	// TotalConsumed counts credits burned by usage, as a positive
	// magnitude.
	TotalConsumed int64 `json:"total_consumed"`

	// ConsumptionByAgent splits TotalConsumed by billed agent.
	ConsumptionByAgent map[string]int64 `json:"consumption_by_agent"`

	// DistributionByCreditKind splits TotalConsumed by credit kind.
	DistributionByCreditKind map[types.CreditKind]int64 `json:"distribution_by_credit_kind"`
}

// OwnerAnalytics folds the owner's completed transactions inside
// [start, end) into spending totals for the dashboard.
func (l *Ledger) OwnerAnalytics(ctx context.Context, ownerID string, start, end time.Time) (*Analytics, error) {
	txs, err := l.store.ListTransactions(ctx, transaction.Filter{
		OwnerID: ownerID,
		Status:  transaction.StatusCompleted,
		Start:   start,
		End:     end,
	})
	if err != nil {
		return nil, err
	}

	result := &Analytics{
		OwnerID:                  ownerID,
		Start:                    start,
		End:                      end,
		ConsumptionByAgent:       make(map[string]int64),
		DistributionByCreditKind: make(map[types.CreditKind]int64),
	}

	for _, tx := range txs {
		switch tx.Kind {
		case transaction.KindPurchase:
			result.TotalPurchased += tx.Amount
		case transaction.KindUsage:
			consumed := -tx.Amount
			result.TotalConsumed += consumed
			if tx.Usage != nil {
				result.ConsumptionByAgent[tx.Usage.AgentID.String()] += consumed
			}
			result.DistributionByCreditKind[tx.CreditKind] += consumed
		case transaction.KindTransfer:
			// Balance-neutral, excluded from spending totals.
		}
	}

	return result, nil
}
