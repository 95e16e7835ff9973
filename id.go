package loanbook

import "github.com/xraph/loanbook/id"

// ID is the identifier type for all loanbook entities.
type ID = id.ID

// Entity ID aliases.
type (
	ClientID       = id.ClientID
	DisbursementID = id.DisbursementID
	PaymentID      = id.PaymentID
	UserID         = id.UserID
)
