// Package store defines the storage contract every loanbook backend
// implements: point reads and listings outside a transaction, and
// snapshot-isolated read-then-write transactions through RunInTx.
package store

import (
	"context"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/user"
)

// DefaultMaxAttempts is how many times a backend runs a transaction body
// before giving up with loanbook.ErrTxConflict.
const DefaultMaxAttempts = 5

// Tx is the view of the store inside a transaction. Reads observe a single
// snapshot plus the transaction's own writes. Nothing written through a Tx is
// visible to other callers until the body returns nil.
type Tx interface {
	GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error)
	UpdateClient(ctx context.Context, c *client.Client) error

	GetDisbursement(ctx context.Context, disbursementID id.DisbursementID) (*disbursement.Disbursement, error)
	CreateDisbursement(ctx context.Context, d *disbursement.Disbursement) error
	UpdateDisbursement(ctx context.Context, d *disbursement.Disbursement) error

	GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error)
	CreatePayment(ctx context.Context, p *payment.Payment) error
	UpdatePayment(ctx context.Context, p *payment.Payment) error
	DeletePayment(ctx context.Context, paymentID id.PaymentID) error
}

// TxFunc is a transaction body. It may run more than once when the backend
// detects a conflicting writer, so it must not have side effects outside tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the unified storage interface for all loanbook entities.
type Store interface {
	// Client methods
	CreateClient(ctx context.Context, c *client.Client) error
	GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error)
	ListClients(ctx context.Context, opts client.ListOpts) ([]*client.Client, error)

	// Disbursement methods
	GetDisbursement(ctx context.Context, disbursementID id.DisbursementID) (*disbursement.Disbursement, error)
	ListDisbursements(ctx context.Context, opts disbursement.ListOpts) ([]*disbursement.Disbursement, error)

	// Payment methods
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error)
	ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error)

	// User methods
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, userID id.UserID) (*user.User, error)

	// RunInTx runs fn atomically. A body that returns an error rolls back
	// every write it made and the error is returned unchanged.
	RunInTx(ctx context.Context, fn TxFunc) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Page applies offset and limit to an already ordered slice.
func Page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
