package disbursement

import (
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/status"
)

// ListOpts filters disbursement listings. Results are ordered newest first by
// IssuedAt.
type ListOpts struct {
	ClientID id.ClientID
	Status   status.Status
	Limit    int
	Offset   int
}

// Matches reports whether d passes the filter.
func (o ListOpts) Matches(d *Disbursement) bool {
	if !o.ClientID.IsNil() && d.ClientID != o.ClientID {
		return false
	}
	return o.Status == "" || d.Status == o.Status
}
