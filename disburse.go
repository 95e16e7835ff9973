package loanbook

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/types"
)

// Disburse releases a new loan. The client's balance must be zero; it
// becomes the disbursed amount and the new disbursement becomes the client's
// current one.
func (e *Engine) Disburse(ctx context.Context, sess Session, pin string, req DisburseRequest) (*disbursement.Disbursement, error) {
	f, err := e.confirm(ctx, sess, pin, func() error { return e.validateDisburse(&req) })
	if err != nil {
		return nil, err
	}

	var (
		c    *client.Client
		d    *disbursement.Disbursement
		from status.Status
	)
	err = e.commit(ctx, f, func(ctx context.Context, tx store.Tx) error {
		cl, err := tx.GetClient(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if err := e.ledgerCurrency(cl); err != nil {
			return err
		}
		if !cl.Balance.IsZero() {
			return fmt.Errorf("%w: client %s owes %s", ErrBalanceNotZero, cl.ID, cl.Balance)
		}

		now := e.now()
		nd := newDisbursement(now, cl.ID, req.Amount, req.Terms, disbursement.KindRelease)

		from = cl.Status
		cl.Balance = req.Amount
		cl.Status = status.OnGoing
		cl.CurrentDisbursementID = nd.ID
		if _, err := resolve(cl, nd, now); err != nil {
			return err
		}

		if err := tx.CreateDisbursement(ctx, nd); err != nil {
			return err
		}
		cl.Touch(now)
		if err := tx.UpdateClient(ctx, cl); err != nil {
			return err
		}
		c, d = cl, nd
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("loan disbursed",
		"client_id", c.ID.String(),
		"disbursement_id", d.ID.String(),
		"amount", d.Amount.String(),
		"deadline", d.Deadline,
		"user_id", sess.UserID.String(),
	)
	e.cooldown.mark(c.ID, e.now())
	e.plugins.EmitDisbursed(ctx, c, d)
	e.statusChanged(ctx, c.ID, from, c.Status)
	return d, nil
}

// Reconstruct restructures a client's outstanding balance into a new Recon
// disbursement under new terms. The balance itself is carried over unchanged
// and the replaced disbursement is left as it was.
func (e *Engine) Reconstruct(ctx context.Context, sess Session, pin string, req ReconRequest) (*disbursement.Disbursement, error) {
	f, err := e.confirm(ctx, sess, pin, func() error { return e.validateRecon(&req) })
	if err != nil {
		return nil, err
	}

	var (
		c       *client.Client
		d, prev *disbursement.Disbursement
		from    status.Status
	)
	err = e.commit(ctx, f, func(ctx context.Context, tx store.Tx) error {
		cl, err := tx.GetClient(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if err := e.ledgerCurrency(cl); err != nil {
			return err
		}
		if !cl.Balance.IsPositive() {
			return fmt.Errorf("%w: client %s balance is %s", ErrNothingToReconstruct, cl.ID, cl.Balance)
		}
		old, err := current(ctx, tx, cl)
		if err != nil {
			return err
		}

		now := e.now()
		nd := newDisbursement(now, cl.ID, cl.Balance, req.Terms, disbursement.KindRecon)
		if old != nil {
			nd.PreviousID = old.ID
		}

		from = cl.Status
		cl.Status = status.Recon
		cl.CurrentDisbursementID = nd.ID
		if _, err := resolve(cl, nd, now); err != nil {
			return err
		}

		if err := tx.CreateDisbursement(ctx, nd); err != nil {
			return err
		}
		cl.Touch(now)
		if err := tx.UpdateClient(ctx, cl); err != nil {
			return err
		}
		c, d, prev = cl, nd, old
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("loan reconstructed",
		"client_id", c.ID.String(),
		"disbursement_id", d.ID.String(),
		"previous_id", d.PreviousID.String(),
		"amount", d.Amount.String(),
		"status", string(c.Status),
		"user_id", sess.UserID.String(),
	)
	e.cooldown.mark(c.ID, e.now())
	e.plugins.EmitReconstructed(ctx, c, d, prev)
	e.statusChanged(ctx, c.ID, from, c.Status)
	return d, nil
}

// UpdateDisbursementTerms replaces the terms of a client's current
// disbursement. The amount cannot change. A new deadline may move the loan
// in or out of Overdue, so the client is reconciled in the same transaction.
func (e *Engine) UpdateDisbursementTerms(ctx context.Context, sess Session, pin string, disbursementID id.DisbursementID, terms disbursement.Terms) (*disbursement.Disbursement, error) {
	f, err := e.confirm(ctx, sess, pin, func() error {
		if disbursementID.IsNil() {
			return invalid("disbursement_id", "is required")
		}
		return e.terms(&terms)
	})
	if err != nil {
		return nil, err
	}

	var (
		c    *client.Client
		d    *disbursement.Disbursement
		from status.Status
	)
	err = e.commit(ctx, f, func(ctx context.Context, tx store.Tx) error {
		dd, err := tx.GetDisbursement(ctx, disbursementID)
		if err != nil {
			return err
		}
		cl, err := tx.GetClient(ctx, dd.ClientID)
		if err != nil {
			return err
		}
		if cl.CurrentDisbursementID.String() != dd.ID.String() {
			return fmt.Errorf("%w: %s", ErrNotCurrentDisbursement, dd.ID)
		}

		from = cl.Status
		dd.Interest = terms.Interest
		dd.MonthsToPay = terms.MonthsToPay
		dd.IssuedAt = terms.IssuedAt
		dd.Deadline = terms.Deadline
		if terms.Remarks != "" {
			dd.Remarks = terms.Remarks
		}

		now := e.now()
		if _, err := resolve(cl, dd, now); err != nil {
			return err
		}
		dd.Touch(now)
		if err := tx.UpdateDisbursement(ctx, dd); err != nil {
			return err
		}
		cl.Touch(now)
		if err := tx.UpdateClient(ctx, cl); err != nil {
			return err
		}
		c, d = cl, dd
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("loan terms updated",
		"client_id", c.ID.String(),
		"disbursement_id", d.ID.String(),
		"months_to_pay", d.MonthsToPay,
		"deadline", d.Deadline,
		"user_id", sess.UserID.String(),
	)
	e.cooldown.mark(c.ID, e.now())
	e.plugins.EmitTermsUpdated(ctx, d)
	e.statusChanged(ctx, c.ID, from, c.Status)
	return d, nil
}

func newDisbursement(now time.Time, clientID id.ClientID, amount types.Money, t disbursement.Terms, kind disbursement.Kind) *disbursement.Disbursement {
	remarks := t.Remarks
	if remarks == "" {
		remarks = string(kind)
	}
	st := status.OnGoing
	if kind == disbursement.KindRecon {
		st = status.Recon
	}
	return &disbursement.Disbursement{
		Entity:      types.NewEntity(now),
		ID:          id.NewDisbursementID(),
		ClientID:    clientID,
		Amount:      amount,
		Interest:    t.Interest,
		MonthsToPay: t.MonthsToPay,
		IssuedAt:    t.IssuedAt,
		Deadline:    t.Deadline,
		Kind:        kind,
		Remarks:     remarks,
		Status:      st,
		Penalty:     types.Zero(amount.Currency),
	}
}

// ledgerCurrency rejects stored balances kept in another currency.
func (e *Engine) ledgerCurrency(c *client.Client) error {
	if c.Balance.Currency != "" && c.Balance.Currency != e.currency {
		return fmt.Errorf("%w: client %s balance in %q, ledger uses %q",
			ErrInvariant, c.ID, c.Balance.Currency, e.currency)
	}
	return nil
}
