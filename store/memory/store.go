// Package memory implements store.Store in process memory. Transactions are
// optimistic: each document carries a version, a transaction records the
// versions it read, and commit fails with a conflict if any of them moved.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/user"
)

type collection string

const (
	clients       collection = "Clients"
	disbursements collection = "Disbursement"
	payments      collection = "DailyList"
	users         collection = "Users"
)

type key struct {
	coll collection
	id   string
}

type document struct {
	value   any
	version uint64
}

// Store is an in-memory store.Store.
type Store struct {
	mu      sync.RWMutex
	docs    map[key]document
	version uint64
	closed  bool

	maxAttempts int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts bounds how often a conflicting transaction is retried.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		docs:        make(map[key]document),
		maxAttempts: store.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

// ──────────────────────────────────────────────────
// Client methods
// ──────────────────────────────────────────────────

func (s *Store) CreateClient(_ context.Context, c *client.Client) error {
	cp := *c
	return s.insert(key{clients, c.ID.String()}, &cp)
}

func (s *Store) GetClient(_ context.Context, clientID id.ClientID) (*client.Client, error) {
	v, err := s.get(key{clients, clientID.String()}, loanbook.ErrClientNotFound)
	if err != nil {
		return nil, err
	}
	return cloneClient(v), nil
}

func (s *Store) ListClients(_ context.Context, opts client.ListOpts) ([]*client.Client, error) {
	var out []*client.Client
	err := s.scan(clients, func(v any) {
		c := cloneClient(v)
		if opts.Matches(c) {
			out = append(out, c)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return store.Page(out, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Disbursement methods
// ──────────────────────────────────────────────────

func (s *Store) GetDisbursement(_ context.Context, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	v, err := s.get(key{disbursements, disbursementID.String()}, loanbook.ErrDisbursementNotFound)
	if err != nil {
		return nil, err
	}
	return cloneDisbursement(v), nil
}

func (s *Store) ListDisbursements(_ context.Context, opts disbursement.ListOpts) ([]*disbursement.Disbursement, error) {
	var out []*disbursement.Disbursement
	err := s.scan(disbursements, func(v any) {
		d := cloneDisbursement(v)
		if opts.Matches(d) {
			out = append(out, d)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return store.Page(out, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Payment methods
// ──────────────────────────────────────────────────

func (s *Store) GetPayment(_ context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	v, err := s.get(key{payments, paymentID.String()}, loanbook.ErrPaymentNotFound)
	if err != nil {
		return nil, err
	}
	return clonePayment(v), nil
}

func (s *Store) ListPayments(_ context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	var out []*payment.Payment
	err := s.scan(payments, func(v any) {
		p := clonePayment(v)
		if opts.Matches(p) {
			out = append(out, p)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].PaidAt.After(out[j].PaidAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return store.Page(out, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// User methods
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	cp := *u
	return s.insert(key{users, u.ID.String()}, &cp)
}

func (s *Store) GetUser(_ context.Context, userID id.UserID) (*user.User, error) {
	v, err := s.get(key{users, userID.String()}, loanbook.ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	cp := *v.(*user.User)
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// RunInTx runs fn against a private snapshot and commits its writes if no
// document it read changed meanwhile. Conflicts rerun fn up to the configured
// number of attempts.
func (s *Store) RunInTx(ctx context.Context, fn store.TxFunc) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.isClosed() {
			return loanbook.ErrStoreClosed
		}

		t := newTx(s)
		if err := fn(ctx, t); err != nil {
			return err
		}

		switch err := s.commit(t); {
		case err == nil:
			return nil
		case err == errConflict:
			continue
		default:
			return err
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts", loanbook.ErrTxConflict, s.maxAttempts)
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	if s.isClosed() {
		return loanbook.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Store) insert(k key, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return loanbook.ErrStoreClosed
	}
	if _, exists := s.docs[k]; exists {
		return loanbook.ErrAlreadyExists
	}
	s.version++
	s.docs[k] = document{value: v, version: s.version}
	return nil
}

func (s *Store) get(k key, notFound error) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, loanbook.ErrStoreClosed
	}
	doc, ok := s.docs[k]
	if !ok {
		return nil, notFound
	}
	return doc.value, nil
}

// scan calls fn for every document of coll under the read lock. fn must copy
// what it keeps.
func (s *Store) scan(coll collection, fn func(v any)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return loanbook.ErrStoreClosed
	}
	for k, doc := range s.docs {
		if k.coll == coll {
			fn(doc.value)
		}
	}
	return nil
}

func cloneClient(v any) *client.Client {
	cp := *v.(*client.Client)
	return &cp
}

func cloneDisbursement(v any) *disbursement.Disbursement {
	cp := *v.(*disbursement.Disbursement)
	return &cp
}

func clonePayment(v any) *payment.Payment {
	cp := *v.(*payment.Payment)
	return &cp
}
