// Package disbursement defines loan issuances and their term arithmetic.
package disbursement

import (
	"time"

	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
)

// Kind distinguishes a fresh loan from a restructured balance.
type Kind string

const (
	// KindRelease is a new loan issued against a zero balance.
	KindRelease Kind = "Release"
	// KindRecon carries an outstanding balance forward under new terms.
	KindRecon Kind = "Recon"
)

// Term limits for MonthsToPay.
const (
	MinMonths = 1
	MaxMonths = 6
)

// Disbursement is one loan issuance. Interest and Penalty are recorded for
// reporting and never enter the client balance.
type Disbursement struct {
	types.Entity
	ID          id.DisbursementID `json:"id"`
	ClientID    id.ClientID       `json:"client_id"`
	Amount      types.Money       `json:"amount"`
	Interest    types.Money       `json:"interest"`
	MonthsToPay int               `json:"months_to_pay"`
	IssuedAt    time.Time         `json:"issued_at"`
	Deadline    time.Time         `json:"deadline"`
	Kind        Kind              `json:"kind"`
	Remarks     string            `json:"remarks"`
	Status      status.Status     `json:"status"`
	Penalty     types.Money       `json:"penalty"`
	PreviousID  id.DisbursementID `json:"previous_id,omitempty"`
}

// Restructured reports whether the disbursement came from a Recon.
func (d *Disbursement) Restructured() bool {
	return d.Kind == KindRecon
}

// Covers reports whether t falls inside the loan term, bounds inclusive.
func (d *Disbursement) Covers(t time.Time) bool {
	return !t.Before(d.IssuedAt) && !t.After(d.Deadline)
}

// Terms are the operator-supplied loan conditions shared by Disburse,
// Reconstruct, and term edits.
type Terms struct {
	Interest    types.Money `json:"interest"`
	MonthsToPay int         `json:"months_to_pay"`
	IssuedAt    time.Time   `json:"issued_at"`
	// Deadline defaults to ComputeDeadline(IssuedAt, MonthsToPay) when zero.
	Deadline time.Time `json:"deadline"`
	Remarks  string    `json:"remarks"`
}
