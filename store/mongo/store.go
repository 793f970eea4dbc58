package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/agent"
	"github.com/xraph/creditledger/id"
	ledgerstore "github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

// Collection name constants.
const (
	colTransactions = "creditledger_transactions"
	colAccounts     = "creditledger_accounts"
	colAgents       = "creditledger_agents"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all ledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("creditledger/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Transaction log ====================

func (s *Store) AppendTransaction(ctx context.Context, tx *transaction.Transaction) error {
	m := toTransactionModel(tx)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		// The partial unique index on external_tx_hash rejects a
		// second purchase carrying a hash already in the log.
		if m.ExternalTxHash != "" {
			if existing, findErr := s.FindPurchaseByHash(ctx, m.ExternalTxHash); findErr == nil && existing.Seq != tx.Seq {
				return creditledger.ErrDuplicateExternalTx
			}
		}
		return fmt.Errorf("%w: %w", creditledger.ErrAppendFailed, err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, txID id.TransactionID) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": txID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, creditledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("creditledger/mongo: get transaction: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) GetTransactionBySeq(ctx context.Context, seq uint64) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"seq": int64(seq)}). //nolint:gosec // sequences never approach the int64 boundary
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, creditledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("creditledger/mongo: get transaction by seq: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "seq", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("creditledger/mongo: last seq: %w", err)
	}
	return uint64(m.Seq), nil //nolint:gosec // stored sequences are never negative
}

func (s *Store) ScanTransactions(ctx context.Context, fromSeq uint64, fn func(*transaction.Transaction) error) error {
	var models []transactionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"seq": bson.M{"$gte": int64(fromSeq)}}). //nolint:gosec // sequences never approach the int64 boundary
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("creditledger/mongo: scan transactions: %w", err)
	}

	for i := range models {
		tx, convErr := fromTransactionModel(&models[i])
		if convErr != nil {
			return convErr
		}
		if fnErr := fn(tx); fnErr != nil {
			return fnErr
		}
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, f transaction.Filter) ([]*transaction.Transaction, error) {
	var models []transactionModel

	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.CreditKind != "" {
		filter["credit_kind"] = f.CreditKind.String()
	}
	if f.Kind != "" {
		filter["kind"] = string(f.Kind)
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if !f.Start.IsZero() {
		filter["timestamp"] = bson.M{"$gte": f.Start}
	}
	if !f.End.IsZero() {
		if ts, ok := filter["timestamp"].(bson.M); ok {
			ts["$lt"] = f.End
		} else {
			filter["timestamp"] = bson.M{"$lt": f.End}
		}
	}
	if f.TextSearch != "" {
		needle := bson.M{"$regex": regexp.QuoteMeta(f.TextSearch), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"kind": string(transaction.KindUsage), "usage_agent_id": needle},
			bson.M{"kind": string(transaction.KindUsage), "operation_label": needle},
			bson.M{"kind": string(transaction.KindTransfer), "from_agent_id": needle},
			bson.M{"kind": string(transaction.KindTransfer), "to_agent_id": needle},
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}})

	if f.Limit > 0 {
		q = q.Limit(int64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Skip(int64(f.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("creditledger/mongo: list transactions: %w", err)
	}

	result := make([]*transaction.Transaction, len(models))
	for i := range models {
		tx, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = tx
	}
	return result, nil
}

func (s *Store) MarkTransactionCompleted(ctx context.Context, txID id.TransactionID, externalTxHash string, at time.Time) error {
	if externalTxHash != "" {
		if existing, findErr := s.FindPurchaseByHash(ctx, externalTxHash); findErr == nil && existing.ID.String() != txID.String() {
			return creditledger.ErrDuplicateExternalTx
		}
	}

	q := s.mdb.NewUpdate((*transactionModel)(nil)).
		Filter(bson.M{"_id": txID.String(), "status": string(transaction.StatusPending)}).
		Set("status", string(transaction.StatusCompleted)).
		Set("completed_at", at).
		Set("updated_at", at)
	if externalTxHash != "" {
		q = q.Set("external_tx_hash", externalTxHash)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("creditledger/mongo: mark completed: %w", err)
	}
	if res.MatchedCount() == 0 {
		// The status guard makes a missing document and an
		// already-settled one look alike; a lookup tells them apart.
		if _, getErr := s.GetTransaction(ctx, txID); getErr != nil {
			return getErr
		}
		return creditledger.ErrInvalidStateTransition
	}
	return nil
}

func (s *Store) MarkTransactionFailed(ctx context.Context, txID id.TransactionID, reason string, at time.Time) error {
	res, err := s.mdb.NewUpdate((*transactionModel)(nil)).
		Filter(bson.M{"_id": txID.String(), "status": string(transaction.StatusPending)}).
		Set("status", string(transaction.StatusFailed)).
		Set("failure_reason", reason).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("creditledger/mongo: mark failed: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, getErr := s.GetTransaction(ctx, txID); getErr != nil {
			return getErr
		}
		return creditledger.ErrInvalidStateTransition
	}
	return nil
}

func (s *Store) FindPurchaseByHash(ctx context.Context, externalTxHash string) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"kind":             string(transaction.KindPurchase),
			"external_tx_hash": externalTxHash,
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, creditledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("creditledger/mongo: find purchase by hash: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) SumPendingDebits(ctx context.Context, ownerID string, kind types.CreditKind) (int64, error) {
	pipeline := bson.A{
		bson.M{
			"$match": bson.M{
				"owner_id":    ownerID,
				"credit_kind": kind.String(),
				"status":      string(transaction.StatusPending),
				"amount":      bson.M{"$lt": 0},
			},
		},
		bson.M{
			"$group": bson.M{
				"_id":   nil,
				"total": bson.M{"$sum": "$amount"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colTransactions).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("creditledger/mongo: sum pending debits: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("creditledger/mongo: sum pending debits decode: %w", err)
	}

	if len(results) == 0 {
		return 0, nil
	}
	// Debit amounts are stored negative; callers want the magnitude.
	return -results[0].Total, nil
}

// ==================== Balance projection ====================

func (s *Store) GetAccount(ctx context.Context, ownerID string, kind types.CreditKind) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountDocID(ownerID, kind)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, creditledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("creditledger/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) UpsertAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.DocID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":        m.DocID,
			"owner_id":   m.OwnerID,
			"kind":       m.Kind,
			"balance":    m.Balance,
			"last_seq":   m.LastSeq,
			"created_at": m.CreatedAt,
			"updated_at": m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("creditledger/mongo: upsert account: %w", err)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*account.Account, error) {
	var models []accountModel

	filter := bson.M{}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "owner_id", Value: 1}, {Key: "kind", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("creditledger/mongo: list accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		result[i] = fromAccountModel(&models[i])
	}
	return result, nil
}

func (s *Store) ReplaceBalances(ctx context.Context, accounts []*account.Account) error {
	if _, err := s.mdb.NewDelete((*accountModel)(nil)).
		Filter(bson.M{}).
		Exec(ctx); err != nil {
		return fmt.Errorf("creditledger/mongo: clear accounts: %w", err)
	}

	for _, a := range accounts {
		m := toAccountModel(a)
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("creditledger/mongo: insert account: %w", err)
		}
	}
	return nil
}

// ==================== Agent registry ====================

func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	m := toAgentModel(a)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if existing, getErr := s.GetAgent(ctx, a.ID); getErr == nil && existing != nil {
			return creditledger.ErrAgentExists
		}
		return fmt.Errorf("creditledger/mongo: create agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, agentID id.AgentID) (*agent.Agent, error) {
	var m agentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": agentID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, creditledger.ErrAgentNotFound
		}
		return nil, fmt.Errorf("creditledger/mongo: get agent: %w", err)
	}
	return fromAgentModel(&m)
}

func (s *Store) ListAgents(ctx context.Context, ownerID string) ([]*agent.Agent, error) {
	var models []agentModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"owner_id": ownerID}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("creditledger/mongo: list agents: %w", err)
	}

	result := make([]*agent.Agent, len(models))
	for i := range models {
		a, convErr := fromAgentModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		result[i] = a
	}
	return result, nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all ledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTransactions: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "external_tx_hash", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"external_tx_hash": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "credit_kind", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}},
		},
		colAccounts: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "kind", Value: 1}}},
		},
		colAgents: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
