package loanbook

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/types"
)

// Pay records a daily payment against the client's current disbursement and
// lowers the balance by its amount.
func (e *Engine) Pay(ctx context.Context, sess Session, pin string, req PayRequest) (*payment.Payment, error) {
	f, err := e.confirm(ctx, sess, pin, func() error { return e.validatePay(&req) })
	if err != nil {
		return nil, err
	}

	var (
		c    *client.Client
		p    *payment.Payment
		from status.Status
	)
	err = e.commit(ctx, f, func(ctx context.Context, tx store.Tx) error {
		cl, err := tx.GetClient(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if !cl.HasLoan() {
			return fmt.Errorf("%w: client %s", ErrNoActiveDisbursement, cl.ID)
		}
		if !req.DisbursementID.IsNil() && req.DisbursementID.String() != cl.CurrentDisbursementID.String() {
			return fmt.Errorf("%w: %s", ErrNotCurrentDisbursement, req.DisbursementID)
		}
		if err := e.ledgerCurrency(cl); err != nil {
			return err
		}
		if req.Amount.Amount > cl.Balance.Amount {
			return fmt.Errorf("%w: paying %s against %s", ErrPaymentExceedsBalance, req.Amount, cl.Balance)
		}
		d, err := tx.GetDisbursement(ctx, cl.CurrentDisbursementID)
		if err != nil {
			return err
		}
		if !e.allowLate && !d.Covers(req.PaidAt) {
			return fmt.Errorf("%w: %s not within %s to %s", ErrPaymentOutsideTerm,
				req.PaidAt.Format("2006-01-02"), d.IssuedAt.Format("2006-01-02"), d.Deadline.Format("2006-01-02"))
		}

		now := e.now()
		np := &payment.Payment{
			Entity:         types.NewEntity(now),
			ID:             id.NewPaymentID(),
			ClientID:       cl.ID,
			DisbursementID: d.ID,
			Amount:         req.Amount,
			PaidAt:         req.PaidAt,
			RecordedBy:     sess.UserID,
		}

		from = cl.Status
		cl.Balance = cl.Balance.Subtract(req.Amount)
		if req.Penalty.IsPositive() {
			d.Penalty = d.Penalty.Add(req.Penalty)
		}
		if _, err := resolve(cl, d, now); err != nil {
			return err
		}

		if err := tx.CreatePayment(ctx, np); err != nil {
			return err
		}
		if err := e.save(ctx, tx, cl, d, now); err != nil {
			return err
		}
		c, p = cl, np
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment recorded",
		"client_id", c.ID.String(),
		"disbursement_id", p.DisbursementID.String(),
		"payment_id", p.ID.String(),
		"amount", p.Amount.String(),
		"balance", c.Balance.String(),
		"status", string(c.Status),
		"user_id", sess.UserID.String(),
	)
	e.cooldown.mark(c.ID, e.now())
	e.plugins.EmitPaymentRecorded(ctx, c, p)
	e.statusChanged(ctx, c.ID, from, c.Status)
	return p, nil
}

// EditPayment changes a payment's amount and moves the balance by the
// difference. Setting an amount of zero is rejected; delete the payment
// instead.
func (e *Engine) EditPayment(ctx context.Context, sess Session, pin string, paymentID id.PaymentID, amount types.Money) (*payment.Payment, error) {
	f, err := e.confirm(ctx, sess, pin, func() error {
		if paymentID.IsNil() {
			return invalid("payment_id", "is required")
		}
		if err := e.money("amount", &amount); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return invalid("amount", "must be greater than zero")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		c    *client.Client
		p    *payment.Payment
		old  types.Money
		from status.Status
	)
	err = e.commit(ctx, f, func(ctx context.Context, tx store.Tx) error {
		pp, cl, d, err := e.loadPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		limit := cl.Balance.Add(pp.Amount)
		if amount.Amount > limit.Amount {
			return fmt.Errorf("%w: paying %s against %s", ErrPaymentExceedsBalance, amount, limit)
		}

		now := e.now()
		from = cl.Status
		old = pp.Amount
		cl.Balance = limit.Subtract(amount)
		pp.Amount = amount
		if _, err := resolve(cl, d, now); err != nil {
			return err
		}

		pp.Touch(now)
		if err := tx.UpdatePayment(ctx, pp); err != nil {
			return err
		}
		if err := e.save(ctx, tx, cl, d, now); err != nil {
			return err
		}
		c, p = cl, pp
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment edited",
		"client_id", c.ID.String(),
		"payment_id", p.ID.String(),
		"old_amount", old.String(),
		"amount", p.Amount.String(),
		"balance", c.Balance.String(),
		"user_id", sess.UserID.String(),
	)
	e.cooldown.mark(c.ID, e.now())
	e.plugins.EmitPaymentEdited(ctx, c, p, old)
	e.statusChanged(ctx, c.ID, from, c.Status)
	return p, nil
}

// DeletePayment removes a payment and returns its amount to the balance,
// which can move a Paid client back to an outstanding status.
func (e *Engine) DeletePayment(ctx context.Context, sess Session, pin string, paymentID id.PaymentID) error {
	f, err := e.confirm(ctx, sess, pin, func() error {
		if paymentID.IsNil() {
			return invalid("payment_id", "is required")
		}
		return nil
	})
	if err != nil {
		return err
	}

	var (
		c    *client.Client
		p    *payment.Payment
		from status.Status
	)
	err = e.commit(ctx, f, func(ctx context.Context, tx store.Tx) error {
		pp, cl, d, err := e.loadPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}

		now := e.now()
		from = cl.Status
		cl.Balance = cl.Balance.Add(pp.Amount)
		if _, err := resolve(cl, d, now); err != nil {
			return err
		}

		if err := tx.DeletePayment(ctx, pp.ID); err != nil {
			return err
		}
		if err := e.save(ctx, tx, cl, d, now); err != nil {
			return err
		}
		c, p = cl, pp
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("payment deleted",
		"client_id", c.ID.String(),
		"payment_id", p.ID.String(),
		"amount", p.Amount.String(),
		"balance", c.Balance.String(),
		"user_id", sess.UserID.String(),
	)
	e.cooldown.mark(c.ID, e.now())
	e.plugins.EmitPaymentDeleted(ctx, c, p)
	e.statusChanged(ctx, c.ID, from, c.Status)
	return nil
}

// loadPayment reads a payment with its client and disbursement and checks
// that it belongs to the client's current loan.
func (e *Engine) loadPayment(ctx context.Context, tx store.Tx, paymentID id.PaymentID) (*payment.Payment, *client.Client, *disbursement.Disbursement, error) {
	p, err := tx.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := tx.GetClient(ctx, p.ClientID)
	if err != nil {
		return nil, nil, nil, err
	}
	if p.DisbursementID.String() != c.CurrentDisbursementID.String() {
		return nil, nil, nil, fmt.Errorf("%w: payment %s is on %s", ErrNotCurrentDisbursement, p.ID, p.DisbursementID)
	}
	if err := e.ledgerCurrency(c); err != nil {
		return nil, nil, nil, err
	}
	d, err := tx.GetDisbursement(ctx, p.DisbursementID)
	if err != nil {
		return nil, nil, nil, err
	}
	return p, c, d, nil
}

// save writes a client and its current disbursement.
func (e *Engine) save(ctx context.Context, tx store.Tx, c *client.Client, d *disbursement.Disbursement, now time.Time) error {
	d.Touch(now)
	if err := tx.UpdateDisbursement(ctx, d); err != nil {
		return err
	}
	c.Touch(now)
	return tx.UpdateClient(ctx, c)
}
