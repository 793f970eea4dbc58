// Package creditledger provides an append-only credit accounting
// ledger for Go applications.
//
// The ledger is designed as a library, not a service. Import it
// directly into your Go application. It provides:
//
//   - An append-only transaction log with monotonic sequence numbers
//   - Derived per-owner balances for compute and storage credits
//   - Pending purchases settled by on-chain payment confirmation
//   - Overdraft protection against the projected balance
//   - Credit transfers between AI agents of the same owner
//   - History queries with filtering, text search, and pagination
//   - Spending analytics folded from the completed history
//   - Replay-based projection audits and crash recovery
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/creditledger"
//	    "github.com/xraph/creditledger/store/memory"
//	)
//
//	l := creditledger.New(memory.New())
//
//	// Start the ledger (migrates the store, seeds watermarks,
//	// launches the projection audit worker)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Purchases mint credits. A purchase is admitted pending and settles
// only when the chain layer confirms the payment:
//
//	txID, err := l.Purchase(ctx, ownerID, types.CreditCompute, 100,
//	    types.A0GI(5_000_000_000), "")
//	// later, when the payment lands on chain:
//	err = l.ConfirmPurchase(ctx, txID, "0xabc123...")
//
// Usage burns credits against a registered agent and settles
// immediately, guarded by the projected balance:
//
//	_, err := l.BillUsage(ctx, ownerID, agentID, types.CreditCompute, 3, "inference")
//
// Transfers re-label credits between two agents of the same owner in a
// single atomic record:
//
//	_, err := l.Transfer(ctx, ownerID, fromAgent, toAgent, types.CreditStorage, 10)
//
// Balances and history are derived views over the log:
//
//	balance, err := l.Balance(ctx, ownerID, types.CreditCompute)
//	txs, err := l.History(ctx, transaction.Filter{OwnerID: ownerID, Limit: 50})
//
// # Consistency
//
// The log is the source of truth; balances are a projection. Replay of
// the full log always reproduces the stored balances, and the engine
// audits this periodically. After a crash, RebuildBalances restores
// the projection from the log.
//
// All credit amounts use integer arithmetic. The Coin type carries
// on-chain costs in the smallest native unit.
//
// # TypeID
//
// Entities use TypeID for globally unique, type-safe identifiers:
//
//	txn_01h2xcejqtf2nbrexx3vqjhp41  // Transaction ID
//	agt_01h455vb4pex5vsknk084sn02q  // Agent ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package creditledger
