package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
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
    balance                 BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    currency                TEXT NOT NULL DEFAULT 'php',
    status                  TEXT NOT NULL DEFAULT 'NoData',
    is_private              BOOLEAN NOT NULL DEFAULT FALSE,
    pin                     TEXT NOT NULL DEFAULT '',
    current_disbursement_id TEXT NOT NULL DEFAULT '',
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    client_id     TEXT NOT NULL REFERENCES loanbook_clients (id),
    amount        BIGINT NOT NULL,
    interest      BIGINT NOT NULL DEFAULT 0,
    penalty       BIGINT NOT NULL DEFAULT 0,
    currency      TEXT NOT NULL DEFAULT 'php',
    months_to_pay INT NOT NULL CHECK (months_to_pay BETWEEN 1 AND 6),
    issued_at     TIMESTAMPTZ NOT NULL,
    deadline      TIMESTAMPTZ NOT NULL,
    kind          TEXT NOT NULL DEFAULT 'Release',
    remarks       TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'OnGoing',
    previous_id   TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_loanbook_disbursements_client ON loanbook_disbursements (client_id, issued_at DESC);
CREATE INDEX IF NOT EXISTS idx_loanbook_disbursements_status ON loanbook_disbursements (status);
`,
	},
	{
		Name:    "create_loanbook_payments",
		Version: "20250101000003",
		Up: `
CREATE TABLE IF NOT EXISTS loanbook_payments (
    id              TEXT PRIMARY KEY,
    client_id       TEXT NOT NULL REFERENCES loanbook_clients (id),
    disbursement_id TEXT NOT NULL REFERENCES loanbook_disbursements (id),
    amount          BIGINT NOT NULL CHECK (amount > 0),
    currency        TEXT NOT NULL DEFAULT 'php',
    paid_at         TIMESTAMPTZ NOT NULL,
    recorded_by     TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_loanbook_payments_client ON loanbook_payments (client_id, paid_at DESC);
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
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS loanbook_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return err
	}

	for _, m := range Migrations {
		var applied bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM loanbook_migrations WHERE version = $1)`, m.Version).Scan(&applied)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, m.Up); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO loanbook_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%s: %w", m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}
