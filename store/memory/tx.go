package memory

import (
	"context"
	"errors"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/store"
)

var errConflict = errors.New("memory: write conflict")

type readEntry struct {
	value   any
	version uint64 // 0 when the document did not exist
}

type writeOp int

const (
	opCreate writeOp = iota
	opUpdate
	opDelete
)

type pendingWrite struct {
	op    writeOp
	value any
}

type tx struct {
	s      *Store
	reads  map[key]readEntry
	writes map[key]pendingWrite
	order  []key
}

var _ store.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		s:      s,
		reads:  make(map[key]readEntry),
		writes: make(map[key]pendingWrite),
	}
}

// read returns the transaction's view of k. The first read of a key pins its
// version; later reads return the same value so the body sees one snapshot.
func (t *tx) read(k key) (any, bool) {
	if w, ok := t.writes[k]; ok {
		if w.op == opDelete {
			return nil, false
		}
		return w.value, true
	}
	if r, ok := t.reads[k]; ok {
		return r.value, r.version != 0
	}

	t.s.mu.RLock()
	doc, ok := t.s.docs[k]
	t.s.mu.RUnlock()

	if !ok {
		t.reads[k] = readEntry{}
		return nil, false
	}
	t.reads[k] = readEntry{value: doc.value, version: doc.version}
	return doc.value, true
}

func (t *tx) write(k key, op writeOp, v any) {
	if prev, ok := t.writes[k]; ok && prev.op == opCreate && op == opUpdate {
		op = opCreate
	}
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = pendingWrite{op: op, value: v}
}

func (t *tx) update(k key, v any, notFound error) error {
	if _, ok := t.read(k); !ok {
		return notFound
	}
	t.write(k, opUpdate, v)
	return nil
}

func (t *tx) create(k key, v any) error {
	if _, ok := t.read(k); ok {
		return loanbook.ErrAlreadyExists
	}
	t.write(k, opCreate, v)
	return nil
}

func (t *tx) GetClient(_ context.Context, clientID id.ClientID) (*client.Client, error) {
	v, ok := t.read(key{clients, clientID.String()})
	if !ok {
		return nil, loanbook.ErrClientNotFound
	}
	return cloneClient(v), nil
}

func (t *tx) UpdateClient(_ context.Context, c *client.Client) error {
	cp := *c
	return t.update(key{clients, c.ID.String()}, &cp, loanbook.ErrClientNotFound)
}

func (t *tx) GetDisbursement(_ context.Context, disbursementID id.DisbursementID) (*disbursement.Disbursement, error) {
	v, ok := t.read(key{disbursements, disbursementID.String()})
	if !ok {
		return nil, loanbook.ErrDisbursementNotFound
	}
	return cloneDisbursement(v), nil
}

func (t *tx) CreateDisbursement(_ context.Context, d *disbursement.Disbursement) error {
	cp := *d
	return t.create(key{disbursements, d.ID.String()}, &cp)
}

func (t *tx) UpdateDisbursement(_ context.Context, d *disbursement.Disbursement) error {
	cp := *d
	return t.update(key{disbursements, d.ID.String()}, &cp, loanbook.ErrDisbursementNotFound)
}

func (t *tx) GetPayment(_ context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	v, ok := t.read(key{payments, paymentID.String()})
	if !ok {
		return nil, loanbook.ErrPaymentNotFound
	}
	return clonePayment(v), nil
}

func (t *tx) CreatePayment(_ context.Context, p *payment.Payment) error {
	cp := *p
	return t.create(key{payments, p.ID.String()}, &cp)
}

func (t *tx) UpdatePayment(_ context.Context, p *payment.Payment) error {
	cp := *p
	return t.update(key{payments, p.ID.String()}, &cp, loanbook.ErrPaymentNotFound)
}

func (t *tx) DeletePayment(_ context.Context, paymentID id.PaymentID) error {
	k := key{payments, paymentID.String()}
	if _, ok := t.read(k); !ok {
		return loanbook.ErrPaymentNotFound
	}
	t.write(k, opDelete, nil)
	return nil
}

// commit validates every pinned read version and applies the write set
// atomically.
func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return loanbook.ErrStoreClosed
	}

	for k, r := range t.reads {
		if s.docs[k].version != r.version {
			return errConflict
		}
	}

	for _, k := range t.order {
		w := t.writes[k]
		if w.op == opDelete {
			delete(s.docs, k)
			continue
		}
		s.version++
		s.docs[k] = document{value: w.value, version: s.version}
	}
	return nil
}
