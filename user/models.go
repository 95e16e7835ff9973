// Package user defines staff users, the subjects of PIN confirmation.
package user

import (
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/types"
)

// User is a staff member allowed to record ledger changes. PIN holds either a
// bcrypt hash or, for records imported from older systems, the plain PIN.
type User struct {
	types.Entity
	ID   id.UserID `json:"id"`
	Name string    `json:"name"`
	PIN  string    `json:"-"`
}
