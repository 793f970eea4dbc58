package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/agent"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

func newPurchase(seq uint64, owner, hash string, amount int64) *transaction.Transaction {
	return &transaction.Transaction{
		Entity:     types.NewEntity(),
		ID:         id.NewTransactionID(),
		Seq:        seq,
		Kind:       transaction.KindPurchase,
		CreditKind: types.CreditCompute,
		OwnerID:    owner,
		Amount:     amount,
		Timestamp:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Second),
		Status:     transaction.StatusPending,
		Purchase:   &transaction.PurchaseDetails{Cost: types.A0GI(amount), ExternalTxHash: hash},
	}
}

func newUsage(seq uint64, owner string, units int64, status transaction.Status) *transaction.Transaction {
	return &transaction.Transaction{
		Entity:     types.NewEntity(),
		ID:         id.NewTransactionID(),
		Seq:        seq,
		Kind:       transaction.KindUsage,
		CreditKind: types.CreditCompute,
		OwnerID:    owner,
		Amount:     -units,
		Timestamp:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Second),
		Status:     status,
		Usage:      &transaction.UsageDetails{AgentID: id.NewAgentID(), OperationLabel: "inference"},
	}
}

func TestAppendTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("RejectsDuplicateSeq", func(t *testing.T) {
		s := New()
		if err := s.AppendTransaction(ctx, newPurchase(1, "owner_1", "", 10)); err != nil {
			t.Fatalf("AppendTransaction() error = %v", err)
		}
		if err := s.AppendTransaction(ctx, newPurchase(1, "owner_1", "", 10)); !errors.Is(err, creditledger.ErrAppendFailed) {
			t.Errorf("duplicate seq error = %v, want ErrAppendFailed", err)
		}
	})

	t.Run("RejectsDuplicateHash", func(t *testing.T) {
		s := New()
		if err := s.AppendTransaction(ctx, newPurchase(1, "owner_1", "0xabc", 10)); err != nil {
			t.Fatalf("AppendTransaction() error = %v", err)
		}
		if err := s.AppendTransaction(ctx, newPurchase(2, "owner_1", "0xabc", 10)); !errors.Is(err, creditledger.ErrDuplicateExternalTx) {
			t.Errorf("duplicate hash error = %v, want ErrDuplicateExternalTx", err)
		}
	})

	t.Run("RejectsAfterClose", func(t *testing.T) {
		s := New()
		if err := s.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := s.AppendTransaction(ctx, newPurchase(1, "owner_1", "", 10)); !errors.Is(err, creditledger.ErrStoreClosed) {
			t.Errorf("append after close error = %v, want ErrStoreClosed", err)
		}
	})

	t.Run("ClonesOnWriteAndRead", func(t *testing.T) {
		s := New()
		tx := newPurchase(1, "owner_1", "0xabc", 10)
		if err := s.AppendTransaction(ctx, tx); err != nil {
			t.Fatalf("AppendTransaction() error = %v", err)
		}

		// Mutating the caller's copy or a returned copy must not touch
		// the log.
		tx.Purchase.ExternalTxHash = "0xtampered"
		got, err := s.GetTransaction(ctx, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction() error = %v", err)
		}
		got.Amount = 999

		again, _ := s.GetTransaction(ctx, tx.ID)
		if again.Purchase.ExternalTxHash != "0xabc" || again.Amount != 10 {
			t.Errorf("stored entry mutated: %+v", again)
		}
	})
}

func TestMarkTransaction(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC)

	t.Run("CompleteThenFailRejected", func(t *testing.T) {
		s := New()
		tx := newPurchase(1, "owner_1", "", 10)
		if err := s.AppendTransaction(ctx, tx); err != nil {
			t.Fatalf("AppendTransaction() error = %v", err)
		}
		if err := s.MarkTransactionCompleted(ctx, tx.ID, "0xabc", at); err != nil {
			t.Fatalf("MarkTransactionCompleted() error = %v", err)
		}
		if err := s.MarkTransactionFailed(ctx, tx.ID, "late failure", at); !errors.Is(err, creditledger.ErrInvalidStateTransition) {
			t.Errorf("fail after complete error = %v, want ErrInvalidStateTransition", err)
		}

		got, _ := s.GetTransaction(ctx, tx.ID)
		if got.Status != transaction.StatusCompleted {
			t.Errorf("status = %s, want %s", got.Status, transaction.StatusCompleted)
		}
		if got.Purchase.ExternalTxHash != "0xabc" {
			t.Errorf("hash = %q, want %q", got.Purchase.ExternalTxHash, "0xabc")
		}
	})

	t.Run("CompletionHashClaimedByOther", func(t *testing.T) {
		s := New()
		first := newPurchase(1, "owner_1", "0xabc", 10)
		second := newPurchase(2, "owner_1", "", 10)
		if err := s.AppendTransaction(ctx, first); err != nil {
			t.Fatalf("AppendTransaction() error = %v", err)
		}
		if err := s.AppendTransaction(ctx, second); err != nil {
			t.Fatalf("AppendTransaction() error = %v", err)
		}
		if err := s.MarkTransactionCompleted(ctx, second.ID, "0xabc", at); !errors.Is(err, creditledger.ErrDuplicateExternalTx) {
			t.Errorf("claimed hash error = %v, want ErrDuplicateExternalTx", err)
		}
	})

	t.Run("UnknownTransaction", func(t *testing.T) {
		s := New()
		if err := s.MarkTransactionCompleted(ctx, id.NewTransactionID(), "", at); !errors.Is(err, creditledger.ErrTransactionNotFound) {
			t.Errorf("unknown tx error = %v, want ErrTransactionNotFound", err)
		}
	})
}

func TestFindPurchaseByHash(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx := newPurchase(1, "owner_1", "0xabc", 10)
	if err := s.AppendTransaction(ctx, tx); err != nil {
		t.Fatalf("AppendTransaction() error = %v", err)
	}

	got, err := s.FindPurchaseByHash(ctx, "0xabc")
	if err != nil {
		t.Fatalf("FindPurchaseByHash() error = %v", err)
	}
	if got.ID.String() != tx.ID.String() {
		t.Errorf("found %s, want %s", got.ID, tx.ID)
	}

	if _, err := s.FindPurchaseByHash(ctx, "0xmissing"); !errors.Is(err, creditledger.ErrTransactionNotFound) {
		t.Errorf("missing hash error = %v, want ErrTransactionNotFound", err)
	}
	if _, err := s.FindPurchaseByHash(ctx, ""); !errors.Is(err, creditledger.ErrTransactionNotFound) {
		t.Errorf("empty hash error = %v, want ErrTransactionNotFound", err)
	}
}

func TestSumPendingDebits(t *testing.T) {
	ctx := context.Background()
	s := New()

	entries := []*transaction.Transaction{
		newUsage(1, "owner_1", 3, transaction.StatusPending),
		newUsage(2, "owner_1", 5, transaction.StatusPending),
		newUsage(3, "owner_1", 7, transaction.StatusCompleted), // settled, excluded
		newUsage(4, "owner_2", 11, transaction.StatusPending),  // other owner
		newPurchase(5, "owner_1", "", 100),                     // pending credit, excluded
	}
	for _, tx := range entries {
		if err := s.AppendTransaction(ctx, tx); err != nil {
			t.Fatalf("AppendTransaction(seq %d) error = %v", tx.Seq, err)
		}
	}

	total, err := s.SumPendingDebits(ctx, "owner_1", types.CreditCompute)
	if err != nil {
		t.Fatalf("SumPendingDebits() error = %v", err)
	}
	if total != 8 {
		t.Errorf("SumPendingDebits() = %d, want 8", total)
	}

	other, err := s.SumPendingDebits(ctx, "owner_1", types.CreditStorage)
	if err != nil {
		t.Fatalf("SumPendingDebits() error = %v", err)
	}
	if other != 0 {
		t.Errorf("SumPendingDebits(storage) = %d, want 0", other)
	}
}

func TestScanAndLastSeq(t *testing.T) {
	ctx := context.Background()
	s := New()

	if last, err := s.LastSeq(ctx); err != nil || last != 0 {
		t.Fatalf("LastSeq() on empty log = %d, %v, want 0, nil", last, err)
	}

	for seq := uint64(1); seq <= 5; seq++ {
		if err := s.AppendTransaction(ctx, newPurchase(seq, "owner_1", "", 10)); err != nil {
			t.Fatalf("AppendTransaction(seq %d) error = %v", seq, err)
		}
	}

	last, err := s.LastSeq(ctx)
	if err != nil || last != 5 {
		t.Fatalf("LastSeq() = %d, %v, want 5, nil", last, err)
	}

	var seqs []uint64
	if err := s.ScanTransactions(ctx, 3, func(tx *transaction.Transaction) error {
		seqs = append(seqs, tx.Seq)
		return nil
	}); err != nil {
		t.Fatalf("ScanTransactions() error = %v", err)
	}
	if len(seqs) != 3 || seqs[0] != 3 || seqs[2] != 5 {
		t.Errorf("scan from 3 visited %v, want [3 4 5]", seqs)
	}

	// A callback error stops the scan.
	stop := errors.New("stop")
	if err := s.ScanTransactions(ctx, 0, func(*transaction.Transaction) error {
		return stop
	}); !errors.Is(err, stop) {
		t.Errorf("ScanTransactions() error = %v, want callback error", err)
	}
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	s := New()

	key := account.Key{OwnerID: "owner_1", Kind: types.CreditCompute}
	if _, err := s.GetAccount(ctx, key.OwnerID, key.Kind); !errors.Is(err, creditledger.ErrAccountNotFound) {
		t.Errorf("missing account error = %v, want ErrAccountNotFound", err)
	}

	acct := &account.Account{
		Entity:  types.NewEntity(),
		OwnerID: "owner_1",
		Kind:    types.CreditCompute,
		Balance: 100,
		LastSeq: 7,
	}
	if err := s.UpsertAccount(ctx, acct); err != nil {
		t.Fatalf("UpsertAccount() error = %v", err)
	}

	got, err := s.GetAccount(ctx, "owner_1", types.CreditCompute)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.Balance != 100 || got.LastSeq != 7 {
		t.Errorf("account = %+v", got)
	}

	// Upsert overwrites.
	acct.Balance = 97
	if err := s.UpsertAccount(ctx, acct); err != nil {
		t.Fatalf("UpsertAccount() error = %v", err)
	}
	got, _ = s.GetAccount(ctx, "owner_1", types.CreditCompute)
	if got.Balance != 97 {
		t.Errorf("balance after upsert = %d, want 97", got.Balance)
	}

	storage := &account.Account{Entity: types.NewEntity(), OwnerID: "owner_1", Kind: types.CreditStorage, Balance: 50}
	other := &account.Account{Entity: types.NewEntity(), OwnerID: "owner_2", Kind: types.CreditCompute, Balance: 5}
	for _, a := range []*account.Account{storage, other} {
		if err := s.UpsertAccount(ctx, a); err != nil {
			t.Fatalf("UpsertAccount() error = %v", err)
		}
	}

	mine, err := s.ListAccounts(ctx, "owner_1")
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListAccounts(owner_1) len = %d, want 2", len(mine))
	}

	all, err := s.ListAccounts(ctx, "")
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListAccounts(all) len = %d, want 3", len(all))
	}

	// ReplaceBalances swaps the whole projection.
	if err := s.ReplaceBalances(ctx, []*account.Account{other}); err != nil {
		t.Fatalf("ReplaceBalances() error = %v", err)
	}
	if _, err := s.GetAccount(ctx, "owner_1", types.CreditCompute); !errors.Is(err, creditledger.ErrAccountNotFound) {
		t.Errorf("replaced-away account error = %v, want ErrAccountNotFound", err)
	}
	if got, err := s.GetAccount(ctx, "owner_2", types.CreditCompute); err != nil || got.Balance != 5 {
		t.Errorf("surviving account = %+v, %v", got, err)
	}
}

func TestAgents(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := &agent.Agent{
		Entity:  types.NewEntity(),
		ID:      id.NewAgentID(),
		OwnerID: "owner_1",
		Name:    "worker",
		TokenID: "nft-7001",
	}
	if err := s.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	if err := s.CreateAgent(ctx, a); !errors.Is(err, creditledger.ErrAgentExists) {
		t.Errorf("duplicate agent error = %v, want ErrAgentExists", err)
	}

	got, err := s.GetAgent(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if got.Name != "worker" {
		t.Errorf("agent = %+v", got)
	}

	if _, err := s.GetAgent(ctx, id.NewAgentID()); !errors.Is(err, creditledger.ErrAgentNotFound) {
		t.Errorf("missing agent error = %v, want ErrAgentNotFound", err)
	}

	agents, err := s.ListAgents(ctx, "owner_1")
	if err != nil {
		t.Fatalf("ListAgents() error = %v", err)
	}
	if len(agents) != 1 {
		t.Errorf("ListAgents() len = %d, want 1", len(agents))
	}
	if agents, _ := s.ListAgents(ctx, "owner_2"); len(agents) != 0 {
		t.Errorf("ListAgents(owner_2) len = %d, want 0", len(agents))
	}
}
