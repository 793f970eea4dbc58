package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/agent"
	"github.com/xraph/creditledger/id"
	ledgerstore "github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("creditledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("creditledger/postgres: migration failed: %w", err)
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
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
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
	m := new(transactionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", txID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, creditledger.ErrTransactionNotFound
		}
		return nil, err
	}
	return fromTransactionModel(m)
}

func (s *Store) GetTransactionBySeq(ctx context.Context, seq uint64) (*transaction.Transaction, error) {
	m := new(transactionModel)
	err := s.pg.NewSelect(m).
		Where("seq = $1", int64(seq)). //nolint:gosec // sequences never approach the int64 boundary
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, creditledger.ErrTransactionNotFound
		}
		return nil, err
	}
	return fromTransactionModel(m)
}

func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var last int64
	err := s.pg.NewRaw(`
		SELECT COALESCE(MAX(seq), 0) FROM creditledger_transactions
	`).Scan(ctx, &last)
	if err != nil {
		return 0, err
	}
	return uint64(last), nil //nolint:gosec // stored sequences are never negative
}

func (s *Store) ScanTransactions(ctx context.Context, fromSeq uint64, fn func(*transaction.Transaction) error) error {
	var models []transactionModel
	err := s.pg.NewSelect(&models).
		Where("seq >= $1", int64(fromSeq)). //nolint:gosec // sequences never approach the int64 boundary
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return err
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	next := func() int {
		argIdx++
		return argIdx
	}

	if f.OwnerID != "" {
		q = q.Where(fmt.Sprintf("owner_id = $%d", next()), f.OwnerID)
	}
	if f.CreditKind != "" {
		q = q.Where(fmt.Sprintf("credit_kind = $%d", next()), f.CreditKind.String())
	}
	if f.Kind != "" {
		q = q.Where(fmt.Sprintf("kind = $%d", next()), string(f.Kind))
	}
	if f.Status != "" {
		q = q.Where(fmt.Sprintf("status = $%d", next()), string(f.Status))
	}
	if !f.Start.IsZero() {
		q = q.Where(fmt.Sprintf("timestamp >= $%d", next()), f.Start)
	}
	if !f.End.IsZero() {
		q = q.Where(fmt.Sprintf("timestamp < $%d", next()), f.End)
	}
	if f.TextSearch != "" {
		needle := "%" + strings.ToLower(f.TextSearch) + "%"
		n := next()
		q = q.Where(fmt.Sprintf(`(
			(kind = 'usage' AND (LOWER(usage_agent_id) LIKE $%d OR LOWER(operation_label) LIKE $%d))
			OR (kind = 'transfer' AND (LOWER(from_agent_id) LIKE $%d OR LOWER(to_agent_id) LIKE $%d))
		)`, n, n, n, n), needle)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	q = q.OrderExpr("timestamp DESC, seq DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

	q := s.pg.NewUpdate((*transactionModel)(nil)).
		Set("status = ?", string(transaction.StatusCompleted)).
		Set("completed_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = $1", txID.String()).
		Where("status = $2", string(transaction.StatusPending))
	if externalTxHash != "" {
		q = q.Set("external_tx_hash = ?", externalTxHash)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// The status guard makes a missing row and an already-settled
		// row look alike; a lookup tells them apart.
		if _, getErr := s.GetTransaction(ctx, txID); getErr != nil {
			return getErr
		}
		return creditledger.ErrInvalidStateTransition
	}
	return nil
}

func (s *Store) MarkTransactionFailed(ctx context.Context, txID id.TransactionID, reason string, at time.Time) error {
	res, err := s.pg.NewUpdate((*transactionModel)(nil)).
		Set("status = ?", string(transaction.StatusFailed)).
		Set("failure_reason = ?", reason).
		Set("updated_at = ?", at).
		Where("id = $1", txID.String()).
		Where("status = $2", string(transaction.StatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, getErr := s.GetTransaction(ctx, txID); getErr != nil {
			return getErr
		}
		return creditledger.ErrInvalidStateTransition
	}
	return nil
}

func (s *Store) FindPurchaseByHash(ctx context.Context, externalTxHash string) (*transaction.Transaction, error) {
	m := new(transactionModel)
	err := s.pg.NewSelect(m).
		Where("kind = $1", string(transaction.KindPurchase)).
		Where("external_tx_hash = $2", externalTxHash).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, creditledger.ErrTransactionNotFound
		}
		return nil, err
	}
	return fromTransactionModel(m)
}

func (s *Store) SumPendingDebits(ctx context.Context, ownerID string, kind types.CreditKind) (int64, error) {
	var total int64
	err := s.pg.NewRaw(`
		SELECT COALESCE(SUM(-amount), 0) FROM creditledger_transactions
		WHERE owner_id = $1 AND credit_kind = $2 AND status = $3 AND amount < 0
	`, ownerID, kind.String(), string(transaction.StatusPending)).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ==================== Balance projection ====================

func (s *Store) GetAccount(ctx context.Context, ownerID string, kind types.CreditKind) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("owner_id = $1", ownerID).
		Where("kind = $2", kind.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, creditledger.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m), nil
}

func (s *Store) UpsertAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	_, err := s.pg.NewInsert(m).
		OnConflict("(owner_id, kind) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("last_seq = EXCLUDED.last_seq").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*account.Account, error) {
	var models []accountModel
	q := s.pg.NewSelect(&models)
	if ownerID != "" {
		q = q.Where("owner_id = $1", ownerID)
	}
	q = q.OrderExpr("owner_id ASC, kind ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		result[i] = fromAccountModel(&models[i])
	}
	return result, nil
}

func (s *Store) ReplaceBalances(ctx context.Context, accounts []*account.Account) error {
	if _, err := s.pg.NewDelete((*accountModel)(nil)).
		Where("1 = 1").
		Exec(ctx); err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}

	models := make([]accountModel, len(accounts))
	for i, a := range accounts {
		models[i] = *toAccountModel(a)
	}
	_, err := s.pg.NewInsert(&models).Exec(ctx)
	return err
}

// ==================== Agent registry ====================

func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	m := toAgentModel(a)
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if existing, getErr := s.GetAgent(ctx, a.ID); getErr == nil && existing != nil {
			return creditledger.ErrAgentExists
		}
		return err
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, agentID id.AgentID) (*agent.Agent, error) {
	m := new(agentModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", agentID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, creditledger.ErrAgentNotFound
		}
		return nil, err
	}
	return fromAgentModel(m)
}

func (s *Store) ListAgents(ctx context.Context, ownerID string) ([]*agent.Agent, error) {
	var models []agentModel
	err := s.pg.NewSelect(&models).
		Where("owner_id = $1", ownerID).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
