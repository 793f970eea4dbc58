package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/creditledger/account"
	"github.com/xraph/creditledger/agent"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/transaction"
	"github.com/xraph/creditledger/types"
)

// ==================== Transaction models ====================

// transactionModel flattens the tagged-variant Transaction into one
// row. Variant payload columns are empty strings or zeros for the
// variants that do not carry them; Kind tells readers which set is
// meaningful.
type transactionModel struct {
	grove.BaseModel `grove:"table:creditledger_transactions"`

	ID            string     `grove:"id,pk"`
	Seq           int64      `grove:"seq"`
	Kind          string     `grove:"kind"`
	CreditKind    string     `grove:"credit_kind"`
	OwnerID       string     `grove:"owner_id"`
	Amount        int64      `grove:"amount"`
	Timestamp     time.Time  `grove:"timestamp"`
	Status        string     `grove:"status"`
	CompletedAt   *time.Time `grove:"completed_at"`
	FailureReason string     `grove:"failure_reason"`

	// Purchase payload
	CostAmount     int64  `grove:"cost_amount"`
	CostDenom      string `grove:"cost_denom"`
	ExternalTxHash string `grove:"external_tx_hash"`

	// Usage payload
	UsageAgentID   string `grove:"usage_agent_id"`
	OperationLabel string `grove:"operation_label"`

	// Transfer payload
	FromAgentID string `grove:"from_agent_id"`
	ToAgentID   string `grove:"to_agent_id"`

	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toTransactionModel(tx *transaction.Transaction) *transactionModel {
	m := &transactionModel{
		ID:            tx.ID.String(),
		Seq:           int64(tx.Seq), //nolint:gosec // sequences never approach the int64 boundary
		Kind:          string(tx.Kind),
		CreditKind:    tx.CreditKind.String(),
		OwnerID:       tx.OwnerID,
		Amount:        tx.Amount,
		Timestamp:     tx.Timestamp,
		Status:        string(tx.Status),
		CompletedAt:   tx.CompletedAt,
		FailureReason: tx.FailureReason,
		CreatedAt:     tx.CreatedAt,
		UpdatedAt:     tx.UpdatedAt,
	}

	if tx.Purchase != nil {
		m.CostAmount = tx.Purchase.Cost.Amount
		m.CostDenom = tx.Purchase.Cost.Denom
		m.ExternalTxHash = tx.Purchase.ExternalTxHash
	}
	if tx.Usage != nil {
		m.UsageAgentID = tx.Usage.AgentID.String()
		m.OperationLabel = tx.Usage.OperationLabel
	}
	if tx.Transfer != nil {
		m.FromAgentID = tx.Transfer.FromAgentID.String()
		m.ToAgentID = tx.Transfer.ToAgentID.String()
	}

	return m
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}

	tx := &transaction.Transaction{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            txID,
		Seq:           uint64(m.Seq), //nolint:gosec // stored sequences are never negative
		Kind:          transaction.Kind(m.Kind),
		CreditKind:    types.CreditKind(m.CreditKind),
		OwnerID:       m.OwnerID,
		Amount:        m.Amount,
		Timestamp:     m.Timestamp,
		Status:        transaction.Status(m.Status),
		CompletedAt:   m.CompletedAt,
		FailureReason: m.FailureReason,
	}

	switch tx.Kind {
	case transaction.KindPurchase:
		tx.Purchase = &transaction.PurchaseDetails{
			Cost:           types.Coin{Amount: m.CostAmount, Denom: m.CostDenom},
			ExternalTxHash: m.ExternalTxHash,
		}
	case transaction.KindUsage:
		agentID, parseErr := id.ParseAgentID(m.UsageAgentID)
		if parseErr != nil {
			return nil, parseErr
		}
		tx.Usage = &transaction.UsageDetails{
			AgentID:        agentID,
			OperationLabel: m.OperationLabel,
		}
	case transaction.KindTransfer:
		fromID, parseErr := id.ParseAgentID(m.FromAgentID)
		if parseErr != nil {
			return nil, parseErr
		}
		toID, parseErr := id.ParseAgentID(m.ToAgentID)
		if parseErr != nil {
			return nil, parseErr
		}
		tx.Transfer = &transaction.TransferDetails{
			FromAgentID: fromID,
			ToAgentID:   toID,
		}
	}

	return tx, nil
}

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:creditledger_accounts"`

	OwnerID   string    `grove:"owner_id,pk"`
	Kind      string    `grove:"kind,pk"`
	Balance   int64     `grove:"balance"`
	LastSeq   int64     `grove:"last_seq"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		OwnerID:   a.OwnerID,
		Kind:      a.Kind.String(),
		Balance:   a.Balance,
		LastSeq:   int64(a.LastSeq), //nolint:gosec // sequences never approach the int64 boundary
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		OwnerID: m.OwnerID,
		Kind:    types.CreditKind(m.Kind),
		Balance: m.Balance,
		LastSeq: uint64(m.LastSeq), //nolint:gosec // stored sequences are never negative
	}
}

// ==================== Agent models ====================

type agentModel struct {
	grove.BaseModel `grove:"table:creditledger_agents"`

	ID        string    `grove:"id,pk"`
	OwnerID   string    `grove:"owner_id"`
	Name      string    `grove:"name"`
	TokenID   string    `grove:"token_id"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toAgentModel(a *agent.Agent) *agentModel {
	return &agentModel{
		ID:        a.ID.String(),
		OwnerID:   a.OwnerID,
		Name:      a.Name,
		TokenID:   a.TokenID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromAgentModel(m *agentModel) (*agent.Agent, error) {
	agentID, err := id.ParseAgentID(m.ID)
	if err != nil {
		return nil, err
	}

	return &agent.Agent{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      agentID,
		OwnerID: m.OwnerID,
		Name:    m.Name,
		TokenID: m.TokenID,
	}, nil
}
