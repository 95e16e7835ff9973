package loanbook

import (
	"strings"
	"time"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/types"
)

// Session identifies the staff user behind a mutating call. Every mutation
// takes one explicitly; the engine keeps no ambient login state.
type Session struct {
	UserID id.UserID `json:"user_id"`
	Name   string    `json:"name"`
}

func (s Session) validate() error {
	if s.UserID.IsNil() {
		return ErrNoSession
	}
	return nil
}

// DisburseRequest releases a new loan to a client whose balance is zero.
type DisburseRequest struct {
	ClientID id.ClientID        `json:"client_id"`
	Amount   types.Money        `json:"amount"`
	Terms    disbursement.Terms `json:"terms"`
}

// ReconRequest restructures a client's outstanding balance under new terms.
type ReconRequest struct {
	ClientID id.ClientID        `json:"client_id"`
	Terms    disbursement.Terms `json:"terms"`
}

// PayRequest records one daily payment.
type PayRequest struct {
	ClientID id.ClientID `json:"client_id"`
	// DisbursementID, when set, must be the client's current disbursement.
	DisbursementID id.DisbursementID `json:"disbursement_id"`
	Amount         types.Money       `json:"amount"`
	// PaidAt defaults to the engine clock.
	PaidAt time.Time `json:"paid_at"`
	// Penalty is added to the disbursement's recorded penalty. It never
	// changes the balance.
	Penalty types.Money `json:"penalty"`
}

// ClientView is a client with its current loan and that loan's payments,
// newest first.
type ClientView struct {
	Client       *client.Client             `json:"client"`
	Disbursement *disbursement.Disbursement `json:"disbursement,omitempty"`
	Payments     []*payment.Payment         `json:"payments"`
}

// ──────────────────────────────────────────────────
// Form validation
// ──────────────────────────────────────────────────

// money fills in the engine currency and rejects any other.
func (e *Engine) money(field string, m *types.Money) error {
	if m.Currency == "" {
		m.Currency = e.currency
	}
	m.Currency = strings.ToLower(m.Currency)
	if m.Currency != e.currency {
		return invalid(field, "currency %q, ledger uses %q", m.Currency, e.currency)
	}
	return nil
}

// terms validates t and fills in its computed deadline.
func (e *Engine) terms(t *disbursement.Terms) error {
	var errs MultiError

	if t.MonthsToPay < disbursement.MinMonths || t.MonthsToPay > disbursement.MaxMonths {
		errs.Add(invalid("months_to_pay", "must be between %d and %d", disbursement.MinMonths, disbursement.MaxMonths))
	}
	if t.IssuedAt.IsZero() {
		errs.Add(invalid("issued_at", "is required"))
	}
	if err := e.money("interest", &t.Interest); err != nil {
		errs.Add(err)
	} else if t.Interest.IsNegative() {
		errs.Add(invalid("interest", "must not be negative"))
	}
	if errs.HasErrors() {
		return errs.ErrOrNil()
	}

	if t.Deadline.IsZero() {
		deadline, err := disbursement.ComputeDeadline(t.IssuedAt, t.MonthsToPay)
		if err != nil {
			return invalid("deadline", "%v", err)
		}
		t.Deadline = deadline
	} else {
		// A loan is due through the whole deadline day.
		t.Deadline = disbursement.EndOfDay(t.Deadline)
		if !t.Deadline.After(t.IssuedAt) {
			return invalid("deadline", "must be after the issue date")
		}
	}
	t.Remarks = strings.TrimSpace(t.Remarks)
	return nil
}

func (e *Engine) validateDisburse(req *DisburseRequest) error {
	if req.ClientID.IsNil() {
		return invalid("client_id", "is required")
	}
	if err := e.money("amount", &req.Amount); err != nil {
		return err
	}
	if !req.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	return e.terms(&req.Terms)
}

func (e *Engine) validateRecon(req *ReconRequest) error {
	if req.ClientID.IsNil() {
		return invalid("client_id", "is required")
	}
	return e.terms(&req.Terms)
}

func (e *Engine) validatePay(req *PayRequest) error {
	if req.ClientID.IsNil() {
		return invalid("client_id", "is required")
	}
	if err := e.money("amount", &req.Amount); err != nil {
		return err
	}
	if !req.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if err := e.money("penalty", &req.Penalty); err != nil {
		return err
	}
	if req.Penalty.IsNegative() {
		return invalid("penalty", "must not be negative")
	}
	if req.PaidAt.IsZero() {
		req.PaidAt = e.now()
	}
	return nil
}

func (e *Engine) validateProfile(p *client.Profile) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Nickname = strings.TrimSpace(p.Nickname)
	p.PIN = strings.TrimSpace(p.PIN)
	if p.Name == "" {
		return invalid("name", "is required")
	}
	return nil
}
