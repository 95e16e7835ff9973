// Package sqlite implements store.Store on an embedded SQLite database
// through modernc.org/sqlite. Transactions begin IMMEDIATE, so writers are
// serialized by the database lock and a busy database is retried.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements store.Store using SQLite.
type Store struct {
	db          *sql.DB
	maxAttempts int
}

// Open opens the database at path. ":memory:" opens a private in-memory
// database on a single connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("loanbook/sqlite: open: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return New(db), nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	params := []string{"_pragma=busy_timeout(5000)"}
	if !strings.Contains(path, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	return path + sep + strings.Join(params, "&")
}

// New wraps an open database. The caller should have opened it with
// _txlock=immediate.
func New(db *sql.DB) *Store {
	return &Store{db: db, maxAttempts: loanstore.DefaultMaxAttempts}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := migrate(ctx, s.db); err != nil {
		return fmt.Errorf("loanbook/sqlite: %w: %w", loanbook.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", loanbook.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Client Store ====================

func (s *Store) CreateClient(ctx context.Context, c *client.Client) error {
	return insertClient(ctx, s.db, c)
}

func (s *Store) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	return getClient(ctx, s.db, clientID)
}

func (s *Store) ListClients(ctx context.Context, opts client.ListOpts) ([]*client.Client, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.Search != "" {
		like := "%" + strings.ToLower(opts.Search) + "%"
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(nickname) LIKE ?)")
		args = append(args, like, like)
	}

	q := `SELECT ` + clientColumns + ` FROM loanbook_clients` + whereClause(where) +
		` ORDER BY name ASC, id ASC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
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
	return getDisbursement(ctx, s.db, disbursementID)
}

func (s *Store) ListDisbursements(ctx context.Context, opts disbursement.ListOpts) ([]*disbursement.Disbursement, error) {
	var (
		where []string
		args  []any
	)
	if !opts.ClientID.IsNil() {
		where = append(where, "client_id = ?")
		args = append(args, opts.ClientID.String())
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}

	q := `SELECT ` + disbursementColumns + ` FROM loanbook_disbursements` + whereClause(where) +
		` ORDER BY issued_at DESC, id DESC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
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
	return getPayment(ctx, s.db, paymentID)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	var (
		where []string
		args  []any
	)
	if !opts.ClientID.IsNil() {
		where = append(where, "client_id = ?")
		args = append(args, opts.ClientID.String())
	}
	if !opts.DisbursementID.IsNil() {
		where = append(where, "disbursement_id = ?")
		args = append(args, opts.DisbursementID.String())
	}
	if !opts.From.IsZero() {
		where = append(where, "paid_at >= ?")
		args = append(args, formatTime(opts.From))
	}
	if !opts.To.IsZero() {
		where = append(where, "paid_at < ?")
		args = append(args, formatTime(opts.To))
	}

	q := `SELECT ` + paymentColumns + ` FROM loanbook_payments` + whereClause(where) +
		` ORDER BY paid_at DESC, id DESC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loanbook_users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
		u.ID.String(), u.Name, u.PIN, formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	return mapWriteErr(err)
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM loanbook_users WHERE id = ?`, userID.String()))
	if isNoRows(err) {
		return nil, loanbook.ErrUserNotFound
	}
	return u, err
}

// ==================== Transactions ====================

// RunInTx runs fn inside an IMMEDIATE transaction. A busy database is
// retried up to the configured number of attempts.
func (s *Store) RunInTx(ctx context.Context, fn loanstore.TxFunc) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if !isBusy(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %w", loanbook.ErrTxConflict, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn loanstore.TxFunc) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return err
		}
		return fmt.Errorf("%w: begin: %w", loanbook.ErrStoreUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &tx{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type tx struct {
	q querier
}

func (t *tx) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	return getClient(ctx, t.q, clientID)
}

func (t *tx) UpdateClient(ctx context.Context, c *client.Client) error {
	m := toClientModel(c)
	res, err := t.q.ExecContext(ctx, `
UPDATE loanbook_clients SET name = ?, nickname = ?, balance = ?, currency = ?, status = ?,
    is_private = ?, pin = ?, current_disbursement_id = ?, updated_at = ?
WHERE id = ?`,
		m.Name, m.Nickname, m.Balance, m.Currency, m.Status, m.IsPrivate, m.PIN,
		m.CurrentDisbursementID, m.UpdatedAt, m.ID)
	return affected(res, err, loanbook.ErrClientNotFound)
}

func (t *tx) GetDisbursement(ctx context.Context, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	return getDisbursement(ctx, t.q, disbursementID)
}

func (t *tx) CreateDisbursement(ctx context.Context, d *disbursement.Disbursement) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO loanbook_disbursements (`+disbursementColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toDisbursementModel(d).args()...)
	return mapWriteErr(err)
}

func (t *tx) UpdateDisbursement(ctx context.Context, d *disbursement.Disbursement) error {
	m := toDisbursementModel(d)
	res, err := t.q.ExecContext(ctx, `
UPDATE loanbook_disbursements SET interest = ?, penalty = ?, months_to_pay = ?, issued_at = ?,
    deadline = ?, kind = ?, remarks = ?, status = ?, previous_id = ?, updated_at = ?
WHERE id = ?`,
		m.Interest, m.Penalty, m.MonthsToPay, m.IssuedAt, m.Deadline, m.Kind, m.Remarks,
		m.Status, m.PreviousID, m.UpdatedAt, m.ID)
	return affected(res, err, loanbook.ErrDisbursementNotFound)
}

func (t *tx) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return getPayment(ctx, t.q, paymentID)
}

func (t *tx) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO loanbook_payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toPaymentModel(p).args()...)
	return mapWriteErr(err)
}

func (t *tx) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	res, err := t.q.ExecContext(ctx,
		`UPDATE loanbook_payments SET amount = ?, currency = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
		m.Amount, m.Currency, m.PaidAt, m.UpdatedAt, m.ID)
	return affected(res, err, loanbook.ErrPaymentNotFound)
}

func (t *tx) DeletePayment(ctx context.Context, paymentID id.PaymentID) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM loanbook_payments WHERE id = ?`, paymentID.String())
	return affected(res, err, loanbook.ErrPaymentNotFound)
}

// ==================== Shared queries ====================

func insertClient(ctx context.Context, q querier, c *client.Client) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO loanbook_clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toClientModel(c).args()...)
	return mapWriteErr(err)
}

func getClient(ctx context.Context, q querier, clientID id.ClientID) (*client.Client, error) {
	c, err := scanClient(q.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM loanbook_clients WHERE id = ?`, clientID.String()))
	if isNoRows(err) {
		return nil, loanbook.ErrClientNotFound
	}
	return c, err
}

func getDisbursement(ctx context.Context, q querier, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	d, err := scanDisbursement(q.QueryRowContext(ctx,
		`SELECT `+disbursementColumns+` FROM loanbook_disbursements WHERE id = ?`, disbursementID.String()))
	if isNoRows(err) {
		return nil, loanbook.ErrDisbursementNotFound
	}
	return d, err
}

func getPayment(ctx context.Context, q querier, paymentID id.PaymentID) (*payment.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM loanbook_payments WHERE id = ?`, paymentID.String()))
	if isNoRows(err) {
		return nil, loanbook.ErrPaymentNotFound
	}
	return p, err
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func limitClause(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = -1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, max(offset, 0))
}

func affected(res sql.Result, err error, notFound error) error {
	if err != nil {
		return mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %w", loanbook.ErrAlreadyExists, err)
	}
	return err
}

// isBusy reports whether err is SQLite lock contention.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
