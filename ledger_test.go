package creditledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/agent"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store/memory"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

// fakeClock is a deterministic time source that advances by one second
// per reading.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// Rewind moves the clock backwards. Subsequent readings resume from
// the rewound point.
func (c *fakeClock) Rewind(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(-d)
}

// scanHookStore runs a callback after the log scan completes, so tests
// can race a settlement against the audit's stored-balance read.
type scanHookStore struct {
	*memory.Store
	afterScan func()
}

func (s *scanHookStore) ScanTransactions(ctx context.Context, fromSeq uint64, fn func(*transaction.Transaction) error) error {
	err := s.Store.ScanTransactions(ctx, fromSeq, fn)
	if hook := s.afterScan; hook != nil {
		s.afterScan = nil
		hook()
	}
	return err
}

// failingHashStore injects a read failure into the purchase hash index.
type failingHashStore struct {
	*memory.Store
	findErr error
}

func (s *failingHashStore) FindPurchaseByHash(ctx context.Context, externalTxHash string) (*transaction.Transaction, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Store.FindPurchaseByHash(ctx, externalTxHash)
}

func newTestLedger(t *testing.T) (*creditledger.Ledger, *memory.Store, *fakeClock) {
	t.Helper()

	store := memory.New()
	clock := newFakeClock()
	l := creditledger.New(store,
		creditledger.WithClock(clock.Now),
		creditledger.WithAuditInterval(0),
	)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l, store, clock
}

func registerAgent(t *testing.T, l *creditledger.Ledger, ownerID, name string) *agent.Agent {
	t.Helper()

	a, err := l.RegisterAgent(context.Background(), ownerID, name, "nft-"+name)
	if err != nil {
		t.Fatalf("RegisterAgent(%s, %s) error = %v", ownerID, name, err)
	}
	return a
}

// fundOwner purchases and confirms credits so tests start from a known
// balance.
func fundOwner(t *testing.T, l *creditledger.Ledger, ownerID string, kind types.CreditKind, amount int64, hash string) id.TransactionID {
	t.Helper()

	ctx := context.Background()
	txID, err := l.Purchase(ctx, ownerID, kind, amount, types.A0GI(amount*1_000_000_000), "")
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if err := l.ConfirmPurchase(ctx, txID, hash); err != nil {
		t.Fatalf("ConfirmPurchase() error = %v", err)
	}
	return txID
}

func TestPurchaseLifecycle(t *testing.T) {
	t.Run("PendingPurchaseDoesNotCredit", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		txID, err := l.Purchase(ctx, "owner_1", types.CreditStorage, 100, types.USDC(49_000_000), "")
		if err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}

		balance, err := l.Balance(ctx, "owner_1", types.CreditStorage)
		if err != nil {
			t.Fatalf("Balance() error = %v", err)
		}
		if balance != 0 {
			t.Errorf("balance before confirmation = %d, want 0", balance)
		}

		tx, err := l.GetTransaction(ctx, txID)
		if err != nil {
			t.Fatalf("GetTransaction() error = %v", err)
		}
		if tx.Status != transaction.StatusPending {
			t.Errorf("status = %s, want %s", tx.Status, transaction.StatusPending)
		}
	})

	t.Run("ConfirmationCreditsBalance", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		txID, err := l.Purchase(ctx, "owner_1", types.CreditStorage, 100, types.USDC(49_000_000), "")
		if err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}
		if err := l.ConfirmPurchase(ctx, txID, "0xabc"); err != nil {
			t.Fatalf("ConfirmPurchase() error = %v", err)
		}

		balance, err := l.Balance(ctx, "owner_1", types.CreditStorage)
		if err != nil {
			t.Fatalf("Balance() error = %v", err)
		}
		if balance != 100 {
			t.Errorf("balance = %d, want 100", balance)
		}

		tx, err := l.GetTransaction(ctx, txID)
		if err != nil {
			t.Fatalf("GetTransaction() error = %v", err)
		}
		if tx.Status != transaction.StatusCompleted {
			t.Errorf("status = %s, want %s", tx.Status, transaction.StatusCompleted)
		}
		if tx.CompletedAt == nil {
			t.Error("CompletedAt not set")
		}
		if tx.Purchase.ExternalTxHash != "0xabc" {
			t.Errorf("hash = %q, want %q", tx.Purchase.ExternalTxHash, "0xabc")
		}
	})

	t.Run("ReconfirmSameHashIsNoOp", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		txID := fundOwner(t, l, "owner_1", types.CreditCompute, 50, "0xabc")

		if err := l.ConfirmPurchase(ctx, txID, "0xabc"); err != nil {
			t.Fatalf("re-confirmation error = %v, want nil", err)
		}

		balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute)
		if balance != 50 {
			t.Errorf("balance after re-confirmation = %d, want 50 (no double credit)", balance)
		}
	})

	t.Run("DuplicateHashRejected", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		fundOwner(t, l, "owner_1", types.CreditCompute, 50, "0xabc")

		// Admitting a purchase that claims a used hash fails outright.
		if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), "0xabc"); !errors.Is(err, creditledger.ErrDuplicateExternalTx) {
			t.Errorf("Purchase(used hash) error = %v, want ErrDuplicateExternalTx", err)
		}

		// Confirming a different purchase with the used hash fails too.
		second, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), "")
		if err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}
		if err := l.ConfirmPurchase(ctx, second, "0xabc"); !errors.Is(err, creditledger.ErrDuplicateExternalTx) {
			t.Errorf("ConfirmPurchase(used hash) error = %v, want ErrDuplicateExternalTx", err)
		}

		balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute)
		if balance != 50 {
			t.Errorf("balance = %d, want 50", balance)
		}
	})

	t.Run("HashLookupFailureSurfaces", func(t *testing.T) {
		wrapped := &failingHashStore{Store: memory.New()}
		clock := newFakeClock()
		l := creditledger.New(wrapped,
			creditledger.WithClock(clock.Now),
			creditledger.WithAuditInterval(0),
		)
		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		t.Cleanup(func() { _ = l.Stop() })

		txID, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), "")
		if err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}

		// A broken hash index is a storage failure, not proof of
		// uniqueness.
		wrapped.findErr = creditledger.ErrStoreNotReady
		if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), "0xabc"); !errors.Is(err, creditledger.ErrStoreNotReady) {
			t.Errorf("Purchase() error = %v, want ErrStoreNotReady", err)
		}
		if err := l.ConfirmPurchase(ctx, txID, "0xabc"); !errors.Is(err, creditledger.ErrStoreNotReady) {
			t.Errorf("ConfirmPurchase() error = %v, want ErrStoreNotReady", err)
		}
		if balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute); balance != 0 {
			t.Errorf("balance after failed lookups = %d, want 0", balance)
		}

		// The same submissions succeed once the index is readable again.
		wrapped.findErr = nil
		if err := l.ConfirmPurchase(ctx, txID, "0xabc"); err != nil {
			t.Fatalf("ConfirmPurchase() after recovery error = %v", err)
		}
		if balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute); balance != 10 {
			t.Errorf("balance = %d, want 10", balance)
		}
	})

	t.Run("HashMismatchRejected", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		txID, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), "0xdeclared")
		if err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}
		if err := l.ConfirmPurchase(ctx, txID, "0xother"); !errors.Is(err, creditledger.ErrHashMismatch) {
			t.Errorf("ConfirmPurchase(wrong hash) error = %v, want ErrHashMismatch", err)
		}
	})

	t.Run("FailedPurchaseIsTerminal", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		txID, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), "")
		if err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}
		if err := l.FailPurchase(ctx, txID, "payment rejected on chain"); err != nil {
			t.Fatalf("FailPurchase() error = %v", err)
		}

		tx, _ := l.GetTransaction(ctx, txID)
		if tx.Status != transaction.StatusFailed {
			t.Errorf("status = %s, want %s", tx.Status, transaction.StatusFailed)
		}
		if tx.FailureReason != "payment rejected on chain" {
			t.Errorf("failure reason = %q", tx.FailureReason)
		}

		if err := l.ConfirmPurchase(ctx, txID, "0xlate"); !errors.Is(err, creditledger.ErrInvalidStateTransition) {
			t.Errorf("ConfirmPurchase(failed tx) error = %v, want ErrInvalidStateTransition", err)
		}
		if err := l.FailPurchase(ctx, txID, "again"); !errors.Is(err, creditledger.ErrInvalidStateTransition) {
			t.Errorf("FailPurchase(failed tx) error = %v, want ErrInvalidStateTransition", err)
		}

		balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute)
		if balance != 0 {
			t.Errorf("balance = %d, want 0", balance)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		if _, err := l.Purchase(ctx, "", types.CreditCompute, 10, types.A0GI(1), ""); !errors.Is(err, creditledger.ErrInvalidInput) {
			t.Errorf("empty owner error = %v, want ErrInvalidInput", err)
		}
		if _, err := l.Purchase(ctx, "owner_1", "bandwidth", 10, types.A0GI(1), ""); !errors.Is(err, creditledger.ErrInvalidCreditKind) {
			t.Errorf("bad kind error = %v, want ErrInvalidCreditKind", err)
		}
		if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 0, types.A0GI(1), ""); !errors.Is(err, creditledger.ErrInvalidAmountSign) {
			t.Errorf("zero amount error = %v, want ErrInvalidAmountSign", err)
		}
		if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, -5, types.A0GI(1), ""); !errors.Is(err, creditledger.ErrInvalidAmountSign) {
			t.Errorf("negative amount error = %v, want ErrInvalidAmountSign", err)
		}
	})
}

func TestBillUsage(t *testing.T) {
	t.Run("DebitsBalance", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		worker := registerAgent(t, l, "owner_1", "worker")
		fundOwner(t, l, "owner_1", types.CreditCompute, 10, "0x1")

		txID, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 3, "inference")
		if err != nil {
			t.Fatalf("BillUsage() error = %v", err)
		}

		balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute)
		if balance != 7 {
			t.Errorf("balance = %d, want 7", balance)
		}

		// The log stores the negative delta and settles immediately.
		tx, err := l.GetTransaction(ctx, txID)
		if err != nil {
			t.Fatalf("GetTransaction() error = %v", err)
		}
		if tx.Amount != -3 {
			t.Errorf("stored amount = %d, want -3", tx.Amount)
		}
		if tx.Status != transaction.StatusCompleted {
			t.Errorf("status = %s, want %s", tx.Status, transaction.StatusCompleted)
		}
		if tx.Usage == nil || tx.Usage.OperationLabel != "inference" {
			t.Errorf("usage details = %+v", tx.Usage)
		}
	})

	t.Run("OverdraftRejected", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		worker := registerAgent(t, l, "owner_1", "worker")
		fundOwner(t, l, "owner_1", types.CreditCompute, 10, "0x1")

		if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 3, "inference"); err != nil {
			t.Fatalf("BillUsage() error = %v", err)
		}
		if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 8, "inference"); !errors.Is(err, creditledger.ErrInsufficientBalance) {
			t.Errorf("overdraft error = %v, want ErrInsufficientBalance", err)
		}

		// The rejection leaves the log untouched.
		balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute)
		if balance != 7 {
			t.Errorf("balance = %d, want 7", balance)
		}
	})

	t.Run("PendingPurchaseDoesNotCover", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		worker := registerAgent(t, l, "owner_1", "worker")
		if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 100, types.A0GI(1), ""); err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}

		if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 1, "inference"); !errors.Is(err, creditledger.ErrInsufficientBalance) {
			t.Errorf("usage against pending credits error = %v, want ErrInsufficientBalance", err)
		}
	})

	t.Run("KindsAreIsolated", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		worker := registerAgent(t, l, "owner_1", "worker")
		fundOwner(t, l, "owner_1", types.CreditStorage, 100, "0x1")

		if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 1, "inference"); !errors.Is(err, creditledger.ErrInsufficientBalance) {
			t.Errorf("compute usage against storage credits error = %v, want ErrInsufficientBalance", err)
		}
	})

	t.Run("UnknownAgentRejected", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		fundOwner(t, l, "owner_1", types.CreditCompute, 10, "0x1")

		if _, err := l.BillUsage(ctx, "owner_1", id.NewAgentID(), types.CreditCompute, 1, "inference"); !errors.Is(err, creditledger.ErrAgentNotFound) {
			t.Errorf("unknown agent error = %v, want ErrAgentNotFound", err)
		}
	})

	t.Run("ForeignAgentRejected", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		other := registerAgent(t, l, "owner_2", "intruder")
		fundOwner(t, l, "owner_1", types.CreditCompute, 10, "0x1")

		if _, err := l.BillUsage(ctx, "owner_1", other.ID, types.CreditCompute, 1, "inference"); !errors.Is(err, creditledger.ErrAgentOwnerMismatch) {
			t.Errorf("foreign agent error = %v, want ErrAgentOwnerMismatch", err)
		}
	})
}

func TestTransfer(t *testing.T) {
	t.Run("ConservesOwnerBalance", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		from := registerAgent(t, l, "owner_1", "from")
		to := registerAgent(t, l, "owner_1", "to")
		fundOwner(t, l, "owner_1", types.CreditStorage, 100, "0x1")

		txID, err := l.Transfer(ctx, "owner_1", from.ID, to.ID, types.CreditStorage, 40)
		if err != nil {
			t.Fatalf("Transfer() error = %v", err)
		}

		balance, _ := l.Balance(ctx, "owner_1", types.CreditStorage)
		if balance != 100 {
			t.Errorf("balance after transfer = %d, want 100 (transfers are balance neutral)", balance)
		}

		tx, err := l.GetTransaction(ctx, txID)
		if err != nil {
			t.Fatalf("GetTransaction() error = %v", err)
		}
		if tx.Status != transaction.StatusCompleted {
			t.Errorf("status = %s, want %s", tx.Status, transaction.StatusCompleted)
		}
		if tx.BalanceDelta() != 0 {
			t.Errorf("BalanceDelta() = %d, want 0", tx.BalanceDelta())
		}
		if tx.Transfer == nil || tx.Transfer.FromAgentID.String() != from.ID.String() || tx.Transfer.ToAgentID.String() != to.ID.String() {
			t.Errorf("transfer details = %+v", tx.Transfer)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		from := registerAgent(t, l, "owner_1", "from")
		to := registerAgent(t, l, "owner_1", "to")
		foreign := registerAgent(t, l, "owner_2", "foreign")
		fundOwner(t, l, "owner_1", types.CreditStorage, 100, "0x1")

		tests := []struct {
			name    string
			from    id.AgentID
			to      id.AgentID
			amount  int64
			wantErr error
		}{
			{"SameEndpoint", from.ID, from.ID, 10, creditledger.ErrInvalidTransferTarget},
			{"ForeignDestination", from.ID, foreign.ID, 10, creditledger.ErrInvalidTransferTarget},
			{"ForeignSource", foreign.ID, to.ID, 10, creditledger.ErrInvalidTransferTarget},
			{"ZeroAmount", from.ID, to.ID, 0, creditledger.ErrInvalidAmountSign},
			{"NegativeAmount", from.ID, to.ID, -5, creditledger.ErrInvalidAmountSign},
			{"ExceedsBalance", from.ID, to.ID, 101, creditledger.ErrInsufficientBalance},
			{"UnknownAgent", id.NewAgentID(), to.ID, 10, creditledger.ErrAgentNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := l.Transfer(ctx, "owner_1", tt.from, tt.to, types.CreditStorage, tt.amount)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Transfer() error = %v, want %v", err, tt.wantErr)
				}
			})
		}

		// None of the rejected transfers moved anything.
		balance, _ := l.Balance(ctx, "owner_1", types.CreditStorage)
		if balance != 100 {
			t.Errorf("balance = %d, want 100", balance)
		}
	})
}

func TestSequenceAndTimestamps(t *testing.T) {
	t.Run("SequencesAreMonotonic", func(t *testing.T) {
		l, store, _ := newTestLedger(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), ""); err != nil {
				t.Fatalf("Purchase() error = %v", err)
			}
		}

		var seqs []uint64
		err := store.ScanTransactions(ctx, 0, func(tx *transaction.Transaction) error {
			seqs = append(seqs, tx.Seq)
			return nil
		})
		if err != nil {
			t.Fatalf("ScanTransactions() error = %v", err)
		}
		for i, seq := range seqs {
			if want := uint64(i + 1); seq != want {
				t.Errorf("seqs[%d] = %d, want %d", i, seq, want)
			}
		}
	})

	t.Run("TimestampsNeverRegress", func(t *testing.T) {
		l, store, clock := newTestLedger(t)
		ctx := context.Background()

		if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), ""); err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}

		// Wall clock jumps backwards; admission timestamps must not.
		clock.Rewind(time.Hour)
		if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), ""); err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}

		first, err := store.GetTransactionBySeq(ctx, 1)
		if err != nil {
			t.Fatalf("GetTransactionBySeq(1) error = %v", err)
		}
		second, err := store.GetTransactionBySeq(ctx, 2)
		if err != nil {
			t.Fatalf("GetTransactionBySeq(2) error = %v", err)
		}
		if second.Timestamp.Before(first.Timestamp) {
			t.Errorf("timestamp regressed: seq 1 at %v, seq 2 at %v", first.Timestamp, second.Timestamp)
		}
	})

	t.Run("WatermarksSurviveRestart", func(t *testing.T) {
		store := memory.New()
		clock := newFakeClock()
		ctx := context.Background()

		l := creditledger.New(store,
			creditledger.WithClock(clock.Now),
			creditledger.WithAuditInterval(0),
		)
		if err := l.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		for i := 0; i < 3; i++ {
			if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), ""); err != nil {
				t.Fatalf("Purchase() error = %v", err)
			}
		}

		// A second engine over the same store resumes numbering from the
		// log tail. Stop is skipped so the shared store stays open.
		l2 := creditledger.New(store,
			creditledger.WithClock(clock.Now),
			creditledger.WithAuditInterval(0),
		)
		if err := l2.Start(ctx); err != nil {
			t.Fatalf("restart Start() error = %v", err)
		}
		if _, err := l2.Purchase(ctx, "owner_1", types.CreditCompute, 10, types.A0GI(1), ""); err != nil {
			t.Fatalf("Purchase() after restart error = %v", err)
		}

		last, err := store.LastSeq(ctx)
		if err != nil {
			t.Fatalf("LastSeq() error = %v", err)
		}
		if last != 4 {
			t.Errorf("LastSeq() = %d, want 4", last)
		}
	})
}

func TestHistory(t *testing.T) {
	seed := func(t *testing.T) (*creditledger.Ledger, *agent.Agent, *agent.Agent) {
		t.Helper()
		l, _, _ := newTestLedger(t)
		worker := registerAgent(t, l, "owner_1", "worker")
		archiver := registerAgent(t, l, "owner_1", "archiver")
		fundOwner(t, l, "owner_1", types.CreditCompute, 100, "0x1")
		fundOwner(t, l, "owner_1", types.CreditStorage, 50, "0x2")
		ctx := context.Background()
		if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 3, "inference"); err != nil {
			t.Fatalf("BillUsage() error = %v", err)
		}
		if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditStorage, 5, "dataset-upload"); err != nil {
			t.Fatalf("BillUsage() error = %v", err)
		}
		if _, err := l.Transfer(ctx, "owner_1", worker.ID, archiver.ID, types.CreditCompute, 10); err != nil {
			t.Fatalf("Transfer() error = %v", err)
		}
		return l, worker, archiver
	}

	t.Run("NewestFirst", func(t *testing.T) {
		l, _, _ := seed(t)

		txs, err := l.History(context.Background(), transaction.Filter{OwnerID: "owner_1"})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(txs) != 5 {
			t.Fatalf("len = %d, want 5", len(txs))
		}
		for i := 1; i < len(txs); i++ {
			prev, cur := txs[i-1], txs[i]
			if cur.Timestamp.After(prev.Timestamp) {
				t.Errorf("history out of order at %d: %v before %v", i, prev.Timestamp, cur.Timestamp)
			}
			if cur.Timestamp.Equal(prev.Timestamp) && cur.Seq > prev.Seq {
				t.Errorf("tie at %d not broken by descending seq", i)
			}
		}
	})

	t.Run("FilterByKindAndStatus", func(t *testing.T) {
		l, _, _ := seed(t)
		ctx := context.Background()

		usage, err := l.History(ctx, transaction.Filter{OwnerID: "owner_1", Kind: transaction.KindUsage})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(usage) != 2 {
			t.Errorf("usage entries = %d, want 2", len(usage))
		}

		compute, err := l.History(ctx, transaction.Filter{OwnerID: "owner_1", CreditKind: types.CreditCompute})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(compute) != 3 {
			t.Errorf("compute entries = %d, want 3", len(compute))
		}

		completed, err := l.History(ctx, transaction.Filter{OwnerID: "owner_1", Status: transaction.StatusCompleted})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(completed) != 5 {
			t.Errorf("completed entries = %d, want 5", len(completed))
		}
	})

	t.Run("Pagination", func(t *testing.T) {
		l, _, _ := seed(t)
		ctx := context.Background()

		page1, err := l.History(ctx, transaction.Filter{OwnerID: "owner_1", Limit: 2})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		page2, err := l.History(ctx, transaction.Filter{OwnerID: "owner_1", Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(page1) != 2 || len(page2) != 2 {
			t.Fatalf("page sizes = %d, %d, want 2, 2", len(page1), len(page2))
		}
		if page1[0].ID.String() == page2[0].ID.String() {
			t.Error("pages overlap")
		}
	})

	t.Run("TextSearch", func(t *testing.T) {
		l, worker, archiver := seed(t)
		ctx := context.Background()

		// Case-insensitive match on the operation label.
		byLabel, err := l.History(ctx, transaction.Filter{OwnerID: "owner_1", TextSearch: "INFERENCE"})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(byLabel) != 1 {
			t.Fatalf("label search hits = %d, want 1", len(byLabel))
		}
		if byLabel[0].Usage == nil || byLabel[0].Usage.OperationLabel != "inference" {
			t.Errorf("label search hit = %+v", byLabel[0])
		}

		// An agent ID matches its usage entries and transfer endpoints.
		byWorker, err := l.History(ctx, transaction.Filter{OwnerID: "owner_1", TextSearch: worker.ID.String()})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(byWorker) != 3 {
			t.Errorf("worker search hits = %d, want 3 (two usages, one transfer)", len(byWorker))
		}

		byArchiver, err := l.History(ctx, transaction.Filter{OwnerID: "owner_1", TextSearch: archiver.ID.String()})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(byArchiver) != 1 {
			t.Errorf("archiver search hits = %d, want 1", len(byArchiver))
		}

		// Purchases carry no searchable fields.
		for _, tx := range byWorker {
			if tx.Kind == transaction.KindPurchase {
				t.Errorf("purchase %s matched a text search", tx.ID)
			}
		}
	})
}

func TestAnalytics(t *testing.T) {
	t.Run("FoldsCompletedHistory", func(t *testing.T) {
		l, _, clock := newTestLedger(t)
		ctx := context.Background()

		worker := registerAgent(t, l, "owner_1", "worker")
		archiver := registerAgent(t, l, "owner_1", "archiver")
		start := clock.Now()

		fundOwner(t, l, "owner_1", types.CreditCompute, 100, "0x1")
		fundOwner(t, l, "owner_1", types.CreditStorage, 50, "0x2")
		if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 3, "inference"); err != nil {
			t.Fatalf("BillUsage() error = %v", err)
		}
		if _, err := l.BillUsage(ctx, "owner_1", archiver.ID, types.CreditStorage, 5, "dataset-upload"); err != nil {
			t.Fatalf("BillUsage() error = %v", err)
		}
		if _, err := l.Transfer(ctx, "owner_1", worker.ID, archiver.ID, types.CreditCompute, 10); err != nil {
			t.Fatalf("Transfer() error = %v", err)
		}
		// A pending purchase must not count.
		if _, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 999, types.A0GI(1), ""); err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}
		end := clock.Now().Add(time.Hour)

		stats, err := l.OwnerAnalytics(ctx, "owner_1", start, end)
		if err != nil {
			t.Fatalf("OwnerAnalytics() error = %v", err)
		}
		if stats.TotalPurchased != 150 {
			t.Errorf("TotalPurchased = %d, want 150", stats.TotalPurchased)
		}
		if stats.TotalConsumed != 8 {
			t.Errorf("TotalConsumed = %d, want 8", stats.TotalConsumed)
		}
		if got := stats.ConsumptionByAgent[worker.ID.String()]; got != 3 {
			t.Errorf("ConsumptionByAgent[worker] = %d, want 3", got)
		}
		if got := stats.ConsumptionByAgent[archiver.ID.String()]; got != 5 {
			t.Errorf("ConsumptionByAgent[archiver] = %d, want 5", got)
		}
		if got := stats.DistributionByCreditKind[types.CreditCompute]; got != 3 {
			t.Errorf("DistributionByCreditKind[compute] = %d, want 3", got)
		}
		if got := stats.DistributionByCreditKind[types.CreditStorage]; got != 5 {
			t.Errorf("DistributionByCreditKind[storage] = %d, want 5", got)
		}
	})

	t.Run("EmptyWindowYieldsZeros", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		fundOwner(t, l, "owner_1", types.CreditCompute, 100, "0x1")

		// A window far before any activity.
		start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		stats, err := l.OwnerAnalytics(ctx, "owner_1", start, start.Add(time.Hour))
		if err != nil {
			t.Fatalf("OwnerAnalytics() error = %v", err)
		}
		if stats.TotalPurchased != 0 || stats.TotalConsumed != 0 {
			t.Errorf("empty window stats = %+v, want zeros", stats)
		}
		if len(stats.ConsumptionByAgent) != 0 || len(stats.DistributionByCreditKind) != 0 {
			t.Errorf("empty window maps = %+v, want empty", stats)
		}
	})
}

func TestBalanceSummary(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	fundOwner(t, l, "owner_1", types.CreditCompute, 100, "0x1")
	fundOwner(t, l, "owner_1", types.CreditStorage, 50, "0x2")

	summary, err := l.BalanceSummary(ctx, "owner_1")
	if err != nil {
		t.Fatalf("BalanceSummary() error = %v", err)
	}
	if summary.Compute != 100 || summary.Storage != 50 {
		t.Errorf("summary = %+v, want compute 100, storage 50", summary)
	}

	// Untouched owners read as all zeros.
	empty, err := l.BalanceSummary(ctx, "owner_unknown")
	if err != nil {
		t.Fatalf("BalanceSummary() error = %v", err)
	}
	if empty.Compute != 0 || empty.Storage != 0 {
		t.Errorf("unknown owner summary = %+v, want zeros", empty)
	}
}

func TestProjectionAudit(t *testing.T) {
	t.Run("CleanAfterActivity", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		worker := registerAgent(t, l, "owner_1", "worker")
		archiver := registerAgent(t, l, "owner_1", "archiver")
		fundOwner(t, l, "owner_1", types.CreditCompute, 100, "0x1")
		if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 3, "inference"); err != nil {
			t.Fatalf("BillUsage() error = %v", err)
		}
		if _, err := l.Transfer(ctx, "owner_1", worker.ID, archiver.ID, types.CreditCompute, 10); err != nil {
			t.Fatalf("Transfer() error = %v", err)
		}
		// Pending and failed entries fold to zero.
		failing, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 999, types.A0GI(1), "")
		if err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}
		if err := l.FailPurchase(ctx, failing, "rejected"); err != nil {
			t.Fatalf("FailPurchase() error = %v", err)
		}

		report, err := l.VerifyProjection(ctx)
		if err != nil {
			t.Fatalf("VerifyProjection() error = %v", err)
		}
		if len(report.Divergences) != 0 {
			t.Errorf("divergences = %+v, want none", report.Divergences)
		}
	})

	t.Run("DetectsCorruption", func(t *testing.T) {
		l, store, _ := newTestLedger(t)
		ctx := context.Background()

		fundOwner(t, l, "owner_1", types.CreditCompute, 100, "0x1")

		// Tamper with the stored projection behind the engine's back.
		acct, err := store.GetAccount(ctx, "owner_1", types.CreditCompute)
		if err != nil {
			t.Fatalf("GetAccount() error = %v", err)
		}
		acct.Balance = 1_000_000
		if err := store.UpsertAccount(ctx, acct); err != nil {
			t.Fatalf("UpsertAccount() error = %v", err)
		}

		report, err := l.VerifyProjection(ctx)
		if err != nil {
			t.Fatalf("VerifyProjection() error = %v", err)
		}
		if len(report.Divergences) != 1 {
			t.Fatalf("divergences = %+v, want exactly one", report.Divergences)
		}
		d := report.Divergences[0]
		if d.Key != (account.Key{OwnerID: "owner_1", Kind: types.CreditCompute}) {
			t.Errorf("divergence key = %+v", d.Key)
		}
		if d.Stored != 1_000_000 || d.Replayed != 100 {
			t.Errorf("divergence = %+v, want stored 1000000, replayed 100", d)
		}
	})

	t.Run("RebuildRestoresProjection", func(t *testing.T) {
		l, store, _ := newTestLedger(t)
		ctx := context.Background()

		worker := registerAgent(t, l, "owner_1", "worker")
		fundOwner(t, l, "owner_1", types.CreditCompute, 100, "0x1")
		if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 3, "inference"); err != nil {
			t.Fatalf("BillUsage() error = %v", err)
		}

		// Simulate a lost projection write.
		if err := store.ReplaceBalances(ctx, nil); err != nil {
			t.Fatalf("ReplaceBalances() error = %v", err)
		}
		if balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute); balance != 0 {
			t.Fatalf("balance after wipe = %d, want 0", balance)
		}

		if err := l.RebuildBalances(ctx); err != nil {
			t.Fatalf("RebuildBalances() error = %v", err)
		}

		balance, err := l.Balance(ctx, "owner_1", types.CreditCompute)
		if err != nil {
			t.Fatalf("Balance() error = %v", err)
		}
		if balance != 97 {
			t.Errorf("rebuilt balance = %d, want 97", balance)
		}

		report, err := l.VerifyProjection(ctx)
		if err != nil {
			t.Fatalf("VerifyProjection() error = %v", err)
		}
		if len(report.Divergences) != 0 {
			t.Errorf("divergences after rebuild = %+v, want none", report.Divergences)
		}
	})

	t.Run("SerializesWithSettlement", func(t *testing.T) {
		wrapped := &scanHookStore{Store: memory.New()}
		clock := newFakeClock()
		l := creditledger.New(wrapped,
			creditledger.WithClock(clock.Now),
			creditledger.WithAuditInterval(0),
		)
		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		t.Cleanup(func() { _ = l.Stop() })

		txID, err := l.Purchase(ctx, "owner_1", types.CreditCompute, 100, types.A0GI(1), "")
		if err != nil {
			t.Fatalf("Purchase() error = %v", err)
		}

		// Fire a confirmation between the audit's replay pass and its
		// stored-balance read. The audit holds the admission critical
		// section, so the settlement must wait and the audit must see a
		// consistent pair of reads.
		confirmed := make(chan error, 1)
		wrapped.afterScan = func() {
			go func() { confirmed <- l.ConfirmPurchase(ctx, txID, "0xabc") }()
			time.Sleep(50 * time.Millisecond)
		}

		report, err := l.VerifyProjection(ctx)
		if err != nil {
			t.Fatalf("VerifyProjection() error = %v", err)
		}
		if len(report.Divergences) != 0 {
			t.Errorf("divergences = %+v, want none for a consistent ledger", report.Divergences)
		}

		if err := <-confirmed; err != nil {
			t.Fatalf("ConfirmPurchase() error = %v", err)
		}
		if balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute); balance != 100 {
			t.Errorf("balance after settlement = %d, want 100", balance)
		}

		report, err = l.VerifyProjection(ctx)
		if err != nil {
			t.Fatalf("VerifyProjection() error = %v", err)
		}
		if len(report.Divergences) != 0 {
			t.Errorf("divergences after settlement = %+v, want none", report.Divergences)
		}
	})

	t.Run("ReplayFromOffset", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()

		fundOwner(t, l, "owner_1", types.CreditCompute, 100, "0x1") // seq 1
		fundOwner(t, l, "owner_1", types.CreditCompute, 50, "0x2")  // seq 2

		deltas, err := l.Replay(ctx, 2)
		if err != nil {
			t.Fatalf("Replay() error = %v", err)
		}
		key := account.Key{OwnerID: "owner_1", Kind: types.CreditCompute}
		if deltas[key] != 50 {
			t.Errorf("partial replay delta = %d, want 50", deltas[key])
		}
	})
}

// TestDashboardScenario walks the dashboard flow end to end: spend
// against a funded compute balance, hit the overdraft guard, then buy
// and confirm storage credits with hash idempotency on the way.
func TestDashboardScenario(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	worker := registerAgent(t, l, "owner_1", "worker")
	fundOwner(t, l, "owner_1", types.CreditCompute, 10, "0xseed")

	if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 3, "inference"); err != nil {
		t.Fatalf("BillUsage(3) error = %v", err)
	}
	if balance, _ := l.Balance(ctx, "owner_1", types.CreditCompute); balance != 7 {
		t.Fatalf("balance = %d, want 7", balance)
	}

	if _, err := l.BillUsage(ctx, "owner_1", worker.ID, types.CreditCompute, 8, "training"); !errors.Is(err, creditledger.ErrInsufficientBalance) {
		t.Fatalf("BillUsage(8) error = %v, want ErrInsufficientBalance", err)
	}

	storageTx, err := l.Purchase(ctx, "owner_1", types.CreditStorage, 100, types.USDC(49_000_000), "")
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if balance, _ := l.Balance(ctx, "owner_1", types.CreditStorage); balance != 0 {
		t.Fatalf("storage balance while pending = %d, want 0", balance)
	}

	if err := l.ConfirmPurchase(ctx, storageTx, "0xabc"); err != nil {
		t.Fatalf("ConfirmPurchase() error = %v", err)
	}
	if balance, _ := l.Balance(ctx, "owner_1", types.CreditStorage); balance != 100 {
		t.Fatalf("storage balance = %d, want 100", balance)
	}

	// A second purchase cannot settle with the same payment.
	rival, err := l.Purchase(ctx, "owner_1", types.CreditStorage, 100, types.USDC(49_000_000), "")
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if err := l.ConfirmPurchase(ctx, rival, "0xabc"); !errors.Is(err, creditledger.ErrDuplicateExternalTx) {
		t.Fatalf("rival confirmation error = %v, want ErrDuplicateExternalTx", err)
	}

	// Re-sending the original confirmation stays a no-op.
	if err := l.ConfirmPurchase(ctx, storageTx, "0xabc"); err != nil {
		t.Fatalf("re-confirmation error = %v, want nil", err)
	}
	if balance, _ := l.Balance(ctx, "owner_1", types.CreditStorage); balance != 100 {
		t.Fatalf("storage balance after replays = %d, want 100", balance)
	}

	report, err := l.VerifyProjection(ctx)
	if err != nil {
		t.Fatalf("VerifyProjection() error = %v", err)
	}
	if len(report.Divergences) != 0 {
		t.Fatalf("divergences = %+v, want none", report.Divergences)
	}
}

func TestAgentRegistry(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	a, err := l.RegisterAgent(ctx, "owner_1", "worker", "nft-7001")
	if err != nil {
		t.Fatalf("RegisterAgent() error = %v", err)
	}
	if a.OwnerID != "owner_1" || a.Name != "worker" || a.TokenID != "nft-7001" {
		t.Errorf("agent = %+v", a)
	}

	got, err := l.GetAgent(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if got.ID.String() != a.ID.String() {
		t.Errorf("GetAgent() ID = %s, want %s", got.ID, a.ID)
	}

	if _, err := l.RegisterAgent(ctx, "owner_1", "archiver", "nft-7002"); err != nil {
		t.Fatalf("RegisterAgent() error = %v", err)
	}
	agents, err := l.ListAgents(ctx, "owner_1")
	if err != nil {
		t.Fatalf("ListAgents() error = %v", err)
	}
	if len(agents) != 2 {
		t.Errorf("ListAgents() len = %d, want 2", len(agents))
	}

	if _, err := l.RegisterAgent(ctx, "", "worker", ""); !errors.Is(err, creditledger.ErrInvalidInput) {
		t.Errorf("empty owner error = %v, want ErrInvalidInput", err)
	}
	if _, err := l.RegisterAgent(ctx, "owner_1", "  ", ""); !errors.Is(err, creditledger.ErrInvalidInput) {
		t.Errorf("blank name error = %v, want ErrInvalidInput", err)
	}
}
