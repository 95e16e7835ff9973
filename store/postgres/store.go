// Package postgres implements store.Store on PostgreSQL through pgx.
// Transactions run SERIALIZABLE and serialization failures are retried.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	loanstore "github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/user"
)

// compile-time interface check
var _ loanstore.Store = (*Store)(nil)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("loanbook/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("loanbook/postgres: %w: %w", loanbook.ErrStoreUnavailable, err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, maxAttempts: loanstore.DefaultMaxAttempts}
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := migrate(ctx, s.pool); err != nil {
		return fmt.Errorf("loanbook/postgres: %w: %w", loanbook.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", loanbook.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Client Store ====================

func (s *Store) CreateClient(ctx context.Context, c *client.Client) error {
	m := toClientModel(c)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO loanbook_clients (`+clientColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.Name, m.Nickname, m.Balance, m.Currency, m.Status, m.IsPrivate, m.PIN,
		m.CurrentDisbursementID, m.CreatedAt, m.UpdatedAt)
	return mapWriteErr(err)
}

func (s *Store) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	return getClient(ctx, s.pool, clientID)
}

func (s *Store) ListClients(ctx context.Context, opts client.ListOpts) ([]*client.Client, error) {
	var b queryBuilder
	if opts.Status != "" {
		b.where("status = %s", string(opts.Status))
	}
	if opts.Search != "" {
		like := "%" + strings.ToLower(opts.Search) + "%"
		b.where("(LOWER(name) LIKE %[1]s OR LOWER(nickname) LIKE %[1]s)", like)
	}

	q := `SELECT ` + clientColumns + ` FROM loanbook_clients` + b.clause() +
		` ORDER BY name COLLATE "C" ASC, id ASC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*client.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ==================== Disbursement Store ====================

func (s *Store) GetDisbursement(ctx context.Context, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	return getDisbursement(ctx, s.pool, disbursementID)
}

func (s *Store) ListDisbursements(ctx context.Context, opts disbursement.ListOpts) ([]*disbursement.Disbursement, error) {
	var b queryBuilder
	if !opts.ClientID.IsNil() {
		b.where("client_id = %s", opts.ClientID.String())
	}
	if opts.Status != "" {
		b.where("status = %s", string(opts.Status))
	}

	q := `SELECT ` + disbursementColumns + ` FROM loanbook_disbursements` + b.clause() +
		` ORDER BY issued_at DESC, id DESC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*disbursement.Disbursement
	for rows.Next() {
		d, err := scanDisbursement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ==================== Payment Store ====================

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return getPayment(ctx, s.pool, paymentID)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	var b queryBuilder
	if !opts.ClientID.IsNil() {
		b.where("client_id = %s", opts.ClientID.String())
	}
	if !opts.DisbursementID.IsNil() {
		b.where("disbursement_id = %s", opts.DisbursementID.String())
	}
	if !opts.From.IsZero() {
		b.where("paid_at >= %s", opts.From)
	}
	if !opts.To.IsZero() {
		b.where("paid_at < %s", opts.To)
	}

	q := `SELECT ` + paymentColumns + ` FROM loanbook_payments` + b.clause() +
		` ORDER BY paid_at DESC, id DESC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO loanbook_users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID.String(), u.Name, u.PIN, u.CreatedAt, u.UpdatedAt)
	return mapWriteErr(err)
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM loanbook_users WHERE id = $1`, userID.String()))
	if isNoRows(err) {
		return nil, loanbook.ErrUserNotFound
	}
	return u, err
}

// ==================== Transactions ====================

// RunInTx runs fn in a SERIALIZABLE transaction. Serialization failures and
// deadlocks rerun fn up to the configured number of attempts.
func (s *Store) RunInTx(ctx context.Context, fn loanstore.TxFunc) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %w", loanbook.ErrTxConflict, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn loanstore.TxFunc) (err error) {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("%w: begin: %w", loanbook.ErrStoreUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = pgTx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &tx{q: pgTx}); err != nil {
		return err
	}
	return pgTx.Commit(ctx)
}

type tx struct {
	q querier
}

func (t *tx) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	return getClient(ctx, t.q, clientID)
}

func (t *tx) UpdateClient(ctx context.Context, c *client.Client) error {
	m := toClientModel(c)
	tag, err := t.q.Exec(ctx, `
UPDATE loanbook_clients SET name = $2, nickname = $3, balance = $4, currency = $5, status = $6,
    is_private = $7, pin = $8, current_disbursement_id = $9, updated_at = $10
WHERE id = $1`,
		m.ID, m.Name, m.Nickname, m.Balance, m.Currency, m.Status, m.IsPrivate, m.PIN,
		m.CurrentDisbursementID, m.UpdatedAt)
	return affected(tag, err, loanbook.ErrClientNotFound)
}

func (t *tx) GetDisbursement(ctx context.Context, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	return getDisbursement(ctx, t.q, disbursementID)
}

func (t *tx) CreateDisbursement(ctx context.Context, d *disbursement.Disbursement) error {
	m := toDisbursementModel(d)
	_, err := t.q.Exec(ctx, `INSERT INTO loanbook_disbursements (`+disbursementColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		m.ID, m.ClientID, m.Amount, m.Interest, m.Penalty, m.Currency, m.MonthsToPay,
		m.IssuedAt, m.Deadline, m.Kind, m.Remarks, m.Status, m.PreviousID, m.CreatedAt, m.UpdatedAt)
	return mapWriteErr(err)
}

func (t *tx) UpdateDisbursement(ctx context.Context, d *disbursement.Disbursement) error {
	m := toDisbursementModel(d)
	tag, err := t.q.Exec(ctx, `
UPDATE loanbook_disbursements SET interest = $2, penalty = $3, months_to_pay = $4, issued_at = $5,
    deadline = $6, kind = $7, remarks = $8, status = $9, previous_id = $10, updated_at = $11
WHERE id = $1`,
		m.ID, m.Interest, m.Penalty, m.MonthsToPay, m.IssuedAt, m.Deadline, m.Kind, m.Remarks,
		m.Status, m.PreviousID, m.UpdatedAt)
	return affected(tag, err, loanbook.ErrDisbursementNotFound)
}

func (t *tx) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return getPayment(ctx, t.q, paymentID)
}

func (t *tx) CreatePayment(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	_, err := t.q.Exec(ctx,
		`INSERT INTO loanbook_payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ClientID, m.DisbursementID, m.Amount, m.Currency, m.PaidAt, m.RecordedBy,
		m.CreatedAt, m.UpdatedAt)
	return mapWriteErr(err)
}

func (t *tx) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	tag, err := t.q.Exec(ctx,
		`UPDATE loanbook_payments SET amount = $2, currency = $3, paid_at = $4, updated_at = $5 WHERE id = $1`,
		m.ID, m.Amount, m.Currency, m.PaidAt, m.UpdatedAt)
	return affected(tag, err, loanbook.ErrPaymentNotFound)
}

func (t *tx) DeletePayment(ctx context.Context, paymentID id.PaymentID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM loanbook_payments WHERE id = $1`, paymentID.String())
	return affected(tag, err, loanbook.ErrPaymentNotFound)
}

// ==================== Shared queries ====================

func getClient(ctx context.Context, q querier, clientID id.ClientID) (*client.Client, error) {
	c, err := scanClient(q.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM loanbook_clients WHERE id = $1`, clientID.String()))
	if isNoRows(err) {
		return nil, loanbook.ErrClientNotFound
	}
	return c, err
}

func getDisbursement(ctx context.Context, q querier, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	d, err := scanDisbursement(q.QueryRow(ctx,
		`SELECT `+disbursementColumns+` FROM loanbook_disbursements WHERE id = $1`, disbursementID.String()))
	if isNoRows(err) {
		return nil, loanbook.ErrDisbursementNotFound
	}
	return d, err
}

func getPayment(ctx context.Context, q querier, paymentID id.PaymentID) (*payment.Payment, error) {
	p, err := scanPayment(q.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM loanbook_payments WHERE id = $1`, paymentID.String()))
	if isNoRows(err) {
		return nil, loanbook.ErrPaymentNotFound
	}
	return p, err
}

// queryBuilder numbers positional parameters as conditions are added. Each
// condition formats its placeholder with %s (or %[1]s when repeated).
type queryBuilder struct {
	conds []string
	args  []any
}

func (b *queryBuilder) where(cond string, arg any) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, fmt.Sprintf(cond, fmt.Sprintf("$%d", len(b.args))))
}

func (b *queryBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func limitClause(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", offset)
	}
	return sb.String()
}

func affected(tag pgconn.CommandTag, err error, notFound error) error {
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", loanbook.ErrAlreadyExists, err)
	}
	return err
}

// isSerializationFailure reports serialization_failure and deadlock_detected.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
