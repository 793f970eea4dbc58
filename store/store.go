package store

import (
	"context"
	"time"

	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/agent"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

// Store is the unified storage interface for the credit ledger.
// Instead of embedding sub-interfaces, all methods are declared
// explicitly to avoid naming conflicts.
//
// The transaction log is append-only: AppendTransaction is the only
// way an entry enters the log, and MarkTransactionCompleted and
// MarkTransactionFailed are the only permitted mutations afterwards.
// Balance rows are a derived projection the engine maintains.
type Store interface {
	// Transaction log methods
	AppendTransaction(ctx context.Context, tx *transaction.Transaction) error
	GetTransaction(ctx context.Context, txID id.TransactionID) (*transaction.Transaction, error)
	GetTransactionBySeq(ctx context.Context, seq uint64) (*transaction.Transaction, error)
	LastSeq(ctx context.Context) (uint64, error)
	// ScanTransactions streams the log in ascending sequence order
	// starting at fromSeq (inclusive). The fold stops early if fn
	// returns an error.
	ScanTransactions(ctx context.Context, fromSeq uint64, fn func(*transaction.Transaction) error) error
	ListTransactions(ctx context.Context, f transaction.Filter) ([]*transaction.Transaction, error)
	MarkTransactionCompleted(ctx context.Context, txID id.TransactionID, externalTxHash string, at time.Time) error
	MarkTransactionFailed(ctx context.Context, txID id.TransactionID, reason string, at time.Time) error
	FindPurchaseByHash(ctx context.Context, externalTxHash string) (*transaction.Transaction, error)
	SumPendingDebits(ctx context.Context, ownerID string, kind types.CreditKind) (int64, error)

	// Balance projection methods
	GetAccount(ctx context.Context, ownerID string, kind types.CreditKind) (*account.Account, error)
	UpsertAccount(ctx context.Context, a *account.Account) error
	// ListAccounts returns the balance rows for one owner, or for all
	// owners when ownerID is empty (used by consistency audits).
	ListAccounts(ctx context.Context, ownerID string) ([]*account.Account, error)
	// ReplaceBalances atomically swaps the whole projection, used by
	// replay-driven rebuilds.
	ReplaceBalances(ctx context.Context, accounts []*account.Account) error

	// Agent registry methods
	CreateAgent(ctx context.Context, a *agent.Agent) error
	GetAgent(ctx context.Context, agentID id.AgentID) (*agent.Agent, error)
	ListAgents(ctx context.Context, ownerID string) ([]*agent.Agent, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
