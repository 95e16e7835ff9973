// Package payment defines the daily payment ledger.
package payment

import (
	"time"

	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/types"
)

// Payment is one daily payment against a disbursement. Amount is always
// positive.
type Payment struct {
	types.Entity
	ID             id.PaymentID      `json:"id"`
	ClientID       id.ClientID       `json:"client_id"`
	DisbursementID id.DisbursementID `json:"disbursement_id"`
	Amount         types.Money       `json:"amount"`
	PaidAt         time.Time         `json:"paid_at"`
	RecordedBy     id.UserID         `json:"recorded_by"`
}
