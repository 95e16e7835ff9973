package payment

import (
	"time"

	"github.com/xraph/loanbook/id"
)

// ListOpts filters payment listings. Results are ordered newest first by PaidAt.
type ListOpts struct {
	ClientID       id.ClientID
	DisbursementID id.DisbursementID
	// From and To bound PaidAt, inclusive of From and exclusive of To.
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Matches reports whether p passes the filter. Backends without a query
// language use it directly.
func (o ListOpts) Matches(p *Payment) bool {
	if !o.ClientID.IsNil() && p.ClientID != o.ClientID {
		return false
	}
	if !o.DisbursementID.IsNil() && p.DisbursementID != o.DisbursementID {
		return false
	}
	if !o.From.IsZero() && p.PaidAt.Before(o.From) {
		return false
	}
	if !o.To.IsZero() && !p.PaidAt.Before(o.To) {
		return false
	}
	return true
}
