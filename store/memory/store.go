// Package memory provides an in-memory store for tests and demos.
// The log lives in an append-only slice; balances and agents live in
// maps guarded by a single RWMutex.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/agent"
	"github.com/xraph/creditledger/id"
	ledgerstore "github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

// Ensure Store implements the full interface at compile time.
var _ ledgerstore.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Transaction log, index i holds the entry with Seq == log[i].Seq
	// in ascending order.
	log   []*transaction.Transaction
	byID  map[string]*transaction.Transaction
	bySeq map[uint64]*transaction.Transaction

	// Purchase hash uniqueness index.
	byHash map[string]*transaction.Transaction

	// Balance projection keyed by account.Key.
	accounts map[account.Key]*account.Account

	// Agent registry.
	agents map[string]*agent.Agent

	closed bool
}

func New() *Store {
	return &Store{
		log:      make([]*transaction.Transaction, 0),
		byID:     make(map[string]*transaction.Transaction),
		bySeq:    make(map[uint64]*transaction.Transaction),
		byHash:   make(map[string]*transaction.Transaction),
		accounts: make(map[account.Key]*account.Account),
		agents:   make(map[string]*agent.Agent),
	}
}

// Transaction log implementation

func (s *Store) AppendTransaction(_ context.Context, tx *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return creditledger.ErrStoreClosed
	}
	if _, exists := s.bySeq[tx.Seq]; exists {
		return creditledger.ErrAppendFailed
	}
	if tx.Purchase != nil && tx.Purchase.ExternalTxHash != "" {
		if _, exists := s.byHash[tx.Purchase.ExternalTxHash]; exists {
			return creditledger.ErrDuplicateExternalTx
		}
	}

	stored := tx.Clone()
	s.log = append(s.log, stored)
	s.byID[stored.ID.String()] = stored
	s.bySeq[stored.Seq] = stored
	if stored.Purchase != nil && stored.Purchase.ExternalTxHash != "" {
		s.byHash[stored.Purchase.ExternalTxHash] = stored
	}
	return nil
}

func (s *Store) GetTransaction(_ context.Context, txID id.TransactionID) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tx, ok := s.byID[txID.String()]; ok {
		return tx.Clone(), nil
	}
	return nil, creditledger.ErrTransactionNotFound
}

func (s *Store) GetTransactionBySeq(_ context.Context, seq uint64) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tx, ok := s.bySeq[seq]; ok {
		return tx.Clone(), nil
	}
	return nil, creditledger.ErrTransactionNotFound
}

func (s *Store) LastSeq(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.log) == 0 {
		return 0, nil
	}
	return s.log[len(s.log)-1].Seq, nil
}

func (s *Store) ScanTransactions(_ context.Context, fromSeq uint64, fn func(*transaction.Transaction) error) error {
	s.mu.RLock()
	snapshot := make([]*transaction.Transaction, 0, len(s.log))
	for _, tx := range s.log {
		if tx.Seq >= fromSeq {
			snapshot = append(snapshot, tx.Clone())
		}
	}
	s.mu.RUnlock()

	for _, tx := range snapshot {
		if err := fn(tx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListTransactions(_ context.Context, f transaction.Filter) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	result := make([]*transaction.Transaction, 0)
	for _, tx := range s.log {
		if f.Matches(tx) {
			result = append(result, tx.Clone())
		}
	}
	s.mu.RUnlock()

	transaction.SortNewestFirst(result)
	return f.Paginate(result), nil
}

func (s *Store) MarkTransactionCompleted(_ context.Context, txID id.TransactionID, externalTxHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[txID.String()]
	if !ok {
		return creditledger.ErrTransactionNotFound
	}
	if !tx.Status.CanTransitionTo(transaction.StatusCompleted) {
		return creditledger.ErrInvalidStateTransition
	}
	if externalTxHash != "" {
		if existing, exists := s.byHash[externalTxHash]; exists && existing.Seq != tx.Seq {
			return creditledger.ErrDuplicateExternalTx
		}
		if tx.Purchase == nil {
			return creditledger.ErrInvalidInput
		}
		tx.Purchase.ExternalTxHash = externalTxHash
		s.byHash[externalTxHash] = tx
	}

	tx.Status = transaction.StatusCompleted
	completedAt := at
	tx.CompletedAt = &completedAt
	tx.Touch()
	return nil
}

func (s *Store) MarkTransactionFailed(_ context.Context, txID id.TransactionID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[txID.String()]
	if !ok {
		return creditledger.ErrTransactionNotFound
	}
	if !tx.Status.CanTransitionTo(transaction.StatusFailed) {
		return creditledger.ErrInvalidStateTransition
	}

	tx.Status = transaction.StatusFailed
	tx.FailureReason = reason
	failedAt := at
	tx.CompletedAt = &failedAt
	tx.Touch()
	return nil
}

func (s *Store) FindPurchaseByHash(_ context.Context, externalTxHash string) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if externalTxHash == "" {
		return nil, creditledger.ErrTransactionNotFound
	}
	if tx, ok := s.byHash[externalTxHash]; ok {
		return tx.Clone(), nil
	}
	return nil, creditledger.ErrTransactionNotFound
}

func (s *Store) SumPendingDebits(_ context.Context, ownerID string, kind types.CreditKind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, tx := range s.log {
		if tx.OwnerID != ownerID || tx.CreditKind != kind {
			continue
		}
		if tx.IsPendingDebit() {
			total += -tx.Amount
		}
	}
	return total, nil
}

// Balance projection implementation

func (s *Store) GetAccount(_ context.Context, ownerID string, kind types.CreditKind) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[account.Key{OwnerID: ownerID, Kind: kind}]; ok {
		return a.Clone(), nil
	}
	return nil, creditledger.ErrAccountNotFound
}

func (s *Store) UpsertAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return creditledger.ErrStoreClosed
	}
	s.accounts[a.Key()] = a.Clone()
	return nil
}

func (s *Store) ListAccounts(_ context.Context, ownerID string) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if ownerID == "" || a.OwnerID == ownerID {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (s *Store) ReplaceBalances(_ context.Context, accounts []*account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make(map[account.Key]*account.Account, len(accounts))
	for _, a := range accounts {
		replacement[a.Key()] = a.Clone()
	}
	s.accounts = replacement
	return nil
}

// Agent registry implementation

func (s *Store) CreateAgent(_ context.Context, a *agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[a.ID.String()]; exists {
		return creditledger.ErrAgentExists
	}
	s.agents[a.ID.String()] = a.Clone()
	return nil
}

func (s *Store) GetAgent(_ context.Context, agentID id.AgentID) (*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.agents[agentID.String()]; ok {
		return a.Clone(), nil
	}
	return nil, creditledger.ErrAgentNotFound
}

func (s *Store) ListAgents(_ context.Context, ownerID string) ([]*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*agent.Agent, 0)
	for _, a := range s.agents {
		if a.OwnerID == ownerID {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
