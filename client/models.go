// Package client defines the borrower record.
package client

import (
	"fmt"

	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
)

// Client is a borrower. Balance and Status are owned by the loan engine and
// change only inside a store transaction.
type Client struct {
	types.Entity
	ID                    id.ClientID       `json:"id"`
	Name                  string            `json:"name"`
	Nickname              string            `json:"nickname,omitempty"`
	Balance               types.Money       `json:"balance"`
	Status                status.Status     `json:"status"`
	IsPrivate             bool              `json:"is_private"`
	PIN                   string            `json:"-"`
	CurrentDisbursementID id.DisbursementID `json:"current_disbursement_id"`
}

// HasLoan reports whether the client has ever been issued a disbursement.
func (c *Client) HasLoan() bool {
	return !c.CurrentDisbursementID.IsNil()
}

// Check verifies the balance/status invariants. It is run on every client the
// engine is about to write.
func (c *Client) Check() error {
	if c.Balance.IsNegative() {
		return fmt.Errorf("client %s: negative balance %s", c.ID, c.Balance)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("client %s: invalid status %q", c.ID, c.Status)
	}
	if !c.HasLoan() {
		if c.Status != status.NoData || !c.Balance.IsZero() {
			return fmt.Errorf("client %s: %s with balance %s and no disbursement", c.ID, c.Status, c.Balance)
		}
		return nil
	}
	if c.Balance.IsZero() != (c.Status == status.Paid) {
		return fmt.Errorf("client %s: status %s does not match balance %s", c.ID, c.Status, c.Balance)
	}
	return nil
}

// Profile holds the operator-editable fields of a client.
type Profile struct {
	Name      string `json:"name"`
	Nickname  string `json:"nickname"`
	IsPrivate bool   `json:"is_private"`
	PIN       string `json:"pin,omitempty"`
}

