package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the credit ledger store.
var Migrations = migrate.NewGroup("creditledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_creditledger_transactions",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS creditledger_transactions (
    id               TEXT PRIMARY KEY,
    seq              BIGINT NOT NULL,
    kind             TEXT NOT NULL DEFAULT '',
    credit_kind      TEXT NOT NULL DEFAULT '',
    owner_id         TEXT NOT NULL DEFAULT '',
    amount           BIGINT NOT NULL DEFAULT 0,
    timestamp        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    status           TEXT NOT NULL DEFAULT 'pending',
    completed_at     TIMESTAMPTZ,
    failure_reason   TEXT NOT NULL DEFAULT '',
    cost_amount      BIGINT NOT NULL DEFAULT 0,
    cost_denom       TEXT NOT NULL DEFAULT '',
    external_tx_hash TEXT NOT NULL DEFAULT '',
    usage_agent_id   TEXT NOT NULL DEFAULT '',
    operation_label  TEXT NOT NULL DEFAULT '',
    from_agent_id    TEXT NOT NULL DEFAULT '',
    to_agent_id      TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_creditledger_txns_seq ON creditledger_transactions (seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_creditledger_txns_hash ON creditledger_transactions (external_tx_hash) WHERE external_tx_hash != '';
CREATE INDEX IF NOT EXISTS idx_creditledger_txns_owner_kind ON creditledger_transactions (owner_id, credit_kind, status);
CREATE INDEX IF NOT EXISTS idx_creditledger_txns_timestamp ON creditledger_transactions (timestamp);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS creditledger_transactions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_creditledger_accounts",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS creditledger_accounts (
    owner_id   TEXT NOT NULL,
    kind       TEXT NOT NULL,
    balance    BIGINT NOT NULL DEFAULT 0,
    last_seq   BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (owner_id, kind)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS creditledger_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_creditledger_agents",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS creditledger_agents (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL DEFAULT '',
    name       TEXT NOT NULL DEFAULT '',
    token_id   TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_creditledger_agents_owner ON creditledger_agents (owner_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS creditledger_agents`)
				return err
			},
		},
	)
}
