package loanbook

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/types"
	"github.com/xraph/loanbook/user"
)

// CreateClient stores a new client with a zero balance and NoData status.
// Private clients must have a PIN, which is stored as a bcrypt hash.
func (e *Engine) CreateClient(ctx context.Context, p client.Profile) (*client.Client, error) {
	if err := e.validateProfile(&p); err != nil {
		return nil, err
	}
	if p.IsPrivate && p.PIN == "" {
		return nil, invalid("pin", "is required for private clients")
	}

	now := e.now()
	c := &client.Client{
		Entity:    types.NewEntity(now),
		ID:        id.NewClientID(),
		Name:      p.Name,
		Nickname:  p.Nickname,
		Balance:   types.Zero(e.currency),
		Status:    status.NoData,
		IsPrivate: p.IsPrivate,
	}
	if p.PIN != "" {
		hash, err := gate.Hash(p.PIN)
		if err != nil {
			return nil, err
		}
		c.PIN = hash
	}

	if err := e.store.CreateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("loanbook: create client: %w", err)
	}

	e.logger.Info("client created", "client_id", c.ID.String(), "private", c.IsPrivate)
	e.plugins.EmitClientCreated(ctx, c)
	return c, nil
}

// UpdateClientProfile replaces a client's name, nickname, and privacy. An
// empty PIN keeps the stored one.
func (e *Engine) UpdateClientProfile(ctx context.Context, sess Session, pin string, clientID id.ClientID, p client.Profile) (*client.Client, error) {
	var hash string
	f, err := e.confirm(ctx, sess, pin, func() error {
		if clientID.IsNil() {
			return invalid("client_id", "is required")
		}
		if err := e.validateProfile(&p); err != nil {
			return err
		}
		if p.PIN == "" {
			return nil
		}
		h, err := gate.Hash(p.PIN)
		if err != nil {
			return err
		}
		hash = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	var c *client.Client
	err = e.commit(ctx, f, func(ctx context.Context, tx store.Tx) error {
		cl, err := tx.GetClient(ctx, clientID)
		if err != nil {
			return err
		}
		cl.Name = p.Name
		cl.Nickname = p.Nickname
		cl.IsPrivate = p.IsPrivate
		if hash != "" {
			cl.PIN = hash
		}
		if cl.IsPrivate && cl.PIN == "" {
			return invalid("pin", "is required for private clients")
		}
		cl.Touch(e.now())
		if err := tx.UpdateClient(ctx, cl); err != nil {
			return err
		}
		c = cl
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("client updated", "client_id", c.ID.String(), "user_id", sess.UserID.String())
	e.plugins.EmitClientUpdated(ctx, c)
	return c, nil
}

// ClientView returns a client with its current loan and that loan's
// payments. Private clients need their own PIN. The client is reconciled
// first unless it was reconciled within the status cooldown.
func (e *Engine) ClientView(ctx context.Context, clientID id.ClientID, clientPIN string) (*ClientView, error) {
	c, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if c.IsPrivate {
		if err := e.VerifyClientPin(ctx, clientID, clientPIN); err != nil {
			return nil, err
		}
	}

	if c.HasLoan() && e.cooldown.due(clientID, e.now()) {
		if _, changed, err := e.Reconcile(ctx, clientID); err != nil {
			return nil, err
		} else if changed {
			if c, err = e.store.GetClient(ctx, clientID); err != nil {
				return nil, err
			}
		}
	}

	view := &ClientView{Client: c, Payments: []*payment.Payment{}}
	if !c.HasLoan() {
		return view, nil
	}
	if view.Disbursement, err = e.store.GetDisbursement(ctx, c.CurrentDisbursementID); err != nil {
		return nil, err
	}
	payments, err := e.store.ListPayments(ctx, payment.ListOpts{DisbursementID: c.CurrentDisbursementID})
	if err != nil {
		return nil, err
	}
	if payments != nil {
		view.Payments = payments
	}
	return view, nil
}

// GetClient returns a client without reconciling it.
func (e *Engine) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	return e.store.GetClient(ctx, clientID)
}

// ListClients lists clients ordered by name.
func (e *Engine) ListClients(ctx context.Context, opts client.ListOpts) ([]*client.Client, error) {
	opts.Search = strings.TrimSpace(opts.Search)
	return e.store.ListClients(ctx, opts)
}

// ListDisbursements lists disbursements newest first.
func (e *Engine) ListDisbursements(ctx context.Context, opts disbursement.ListOpts) ([]*disbursement.Disbursement, error) {
	return e.store.ListDisbursements(ctx, opts)
}

// ListPayments lists payments newest first.
func (e *Engine) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	return e.store.ListPayments(ctx, opts)
}

// CreateUser adds a staff user whose PIN confirms ledger changes.
func (e *Engine) CreateUser(ctx context.Context, name, pin string) (*user.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return nil, invalid("pin", "is required")
	}
	hash, err := gate.Hash(pin)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		Entity: types.NewEntity(e.now()),
		ID:     id.NewUserID(),
		Name:   name,
		PIN:    hash,
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("loanbook: create user: %w", err)
	}
	e.logger.Info("user created", "user_id", u.ID.String(), "name", u.Name)
	return u, nil
}
