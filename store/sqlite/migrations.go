package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	Name    string
	Version string
	Up      string
}

// Migrations lists the schema changes in the order they are applied.
var Migrations = []migration{
	{
		Name:    "create_loanbook_clients",
		Version: "20250101000001",
		Up: `
CREATE TABLE IF NOT EXISTS loanbook_clients (
    id                      TEXT PRIMARY KEY,
    name                    TEXT NOT NULL DEFAULT '',
    nickname                TEXT NOT NULL DEFAULT '',
    balance                 INTEGER NOT NULL DEFAULT 0,
    currency                TEXT NOT NULL DEFAULT 'php',
    status                  TEXT NOT NULL DEFAULT 'NoData',
    is_private              INTEGER NOT NULL DEFAULT 0,
    pin                     TEXT NOT NULL DEFAULT '',
    current_disbursement_id TEXT NOT NULL DEFAULT '',
    created_at              TEXT NOT NULL DEFAULT '',
    updated_at              TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_loanbook_clients_name ON loanbook_clients (name);
CREATE INDEX IF NOT EXISTS idx_loanbook_clients_status ON loanbook_clients (status);
`,
	},
	{
		Name:    "create_loanbook_disbursements",
		Version: "20250101000002",
		Up: `
CREATE TABLE IF NOT EXISTS loanbook_disbursements (
    id            TEXT PRIMARY KEY,
    client_id     TEXT NOT NULL,
    amount        INTEGER NOT NULL,
    interest      INTEGER NOT NULL DEFAULT 0,
    penalty       INTEGER NOT NULL DEFAULT 0,
    currency      TEXT NOT NULL DEFAULT 'php',
    months_to_pay INTEGER NOT NULL,
    issued_at     TEXT NOT NULL,
    deadline      TEXT NOT NULL,
    kind          TEXT NOT NULL DEFAULT 'Release',
    remarks       TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'OnGoing',
    previous_id   TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL DEFAULT '',
    updated_at    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_loanbook_disbursements_client ON loanbook_disbursements (client_id, issued_at);
CREATE INDEX IF NOT EXISTS idx_loanbook_disbursements_status ON loanbook_disbursements (status);
`,
	},
	{
		Name:    "create_loanbook_payments",
		Version: "20250101000003",
		Up: `
CREATE TABLE IF NOT EXISTS loanbook_payments (
    id              TEXT PRIMARY KEY,
    client_id       TEXT NOT NULL,
    disbursement_id TEXT NOT NULL,
    amount          INTEGER NOT NULL CHECK (amount > 0),
    currency        TEXT NOT NULL DEFAULT 'php',
    paid_at         TEXT NOT NULL,
    recorded_by     TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT '',
    updated_at      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_loanbook_payments_client ON loanbook_payments (client_id, paid_at);
CREATE INDEX IF NOT EXISTS idx_loanbook_payments_disbursement ON loanbook_payments (disbursement_id);
CREATE INDEX IF NOT EXISTS idx_loanbook_payments_paid_at ON loanbook_payments (paid_at);
`,
	},
	{
		Name:    "create_loanbook_users",
		Version: "20250101000004",
		Up: `
CREATE TABLE IF NOT EXISTS loanbook_users (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    pin        TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL DEFAULT ''
);
`,
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS loanbook_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`)
	if err != nil {
		return err
	}

	for _, m := range Migrations {
		var applied bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM loanbook_migrations WHERE version = ?)`, m.Version).Scan(&applied)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO loanbook_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
