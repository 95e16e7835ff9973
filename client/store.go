package client

import (
	"strings"

	"github.com/xraph/loanbook/status"
)

// ListOpts filters client listings. Results are ordered by Name.
type ListOpts struct {
	// Search matches a case-insensitive substring of Name or Nickname.
	Search string
	Status status.Status
	Limit  int
	Offset int
}

// Matches reports whether c passes the filter. Backends without a query
// language use it directly.
func (o ListOpts) Matches(c *Client) bool {
	if o.Status != "" && c.Status != o.Status {
		return false
	}
	if o.Search == "" {
		return true
	}
	q := strings.ToLower(o.Search)
	return strings.Contains(strings.ToLower(c.Name), q) ||
		strings.Contains(strings.ToLower(c.Nickname), q)
}
