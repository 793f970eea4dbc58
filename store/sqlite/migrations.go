package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the credit ledger store (SQLite).
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
    seq              INTEGER NOT NULL,
    kind             TEXT NOT NULL DEFAULT '',
    credit_kind      TEXT NOT NULL DEFAULT '',
    owner_id         TEXT NOT NULL DEFAULT '',
    amount           INTEGER NOT NULL DEFAULT 0,
    timestamp        TEXT NOT NULL DEFAULT (datetime('now')),
    status           TEXT NOT NULL DEFAULT 'pending',
    completed_at     TEXT,
    failure_reason   TEXT NOT NULL DEFAULT '',
    cost_amount      INTEGER NOT NULL DEFAULT 0,
    cost_denom       TEXT NOT NULL DEFAULT '',
    external_tx_hash TEXT NOT NULL DEFAULT '',
    usage_agent_id   TEXT NOT NULL DEFAULT '',
    operation_label  TEXT NOT NULL DEFAULT '',
    from_agent_id    TEXT NOT NULL DEFAULT '',
    to_agent_id      TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
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
    balance    INTEGER NOT NULL DEFAULT 0,
    last_seq   INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
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
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
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
