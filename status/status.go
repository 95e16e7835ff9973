// Package status defines the loan status shared by clients and disbursements
// and the rule that derives it from balance and deadline.
package status

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a client or of its current disbursement.
type Status string

const (
	// NoData marks a client that has never received a disbursement.
	NoData Status = "NoData"
	// OnGoing marks a loan with an outstanding balance inside its term.
	OnGoing Status = "OnGoing"
	// Recon marks a restructured loan with an outstanding balance inside its term.
	Recon Status = "Recon"
	// Overdue marks a loan whose deadline passed with a balance still owed.
	Overdue Status = "Overdue"
	// Paid marks a loan whose balance reached zero.
	Paid Status = "Paid"
)

// Parse maps stored status strings, including legacy spellings, onto the
// canonical values. The empty string and "Active" were written for freshly
// issued disbursements and map to OnGoing.
func Parse(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active", "ongoing":
		return OnGoing, nil
	case "nodata":
		return NoData, nil
	case "recon":
		return Recon, nil
	case "overdue":
		return Overdue, nil
	case "paid":
		return Paid, nil
	default:
		return "", fmt.Errorf("status: unknown value %q", s)
	}
}

// Valid reports whether s is one of the canonical values.
func (s Status) Valid() bool {
	switch s {
	case NoData, OnGoing, Recon, Overdue, Paid:
		return true
	}
	return false
}

// Outstanding reports whether a loan in this status still has a balance owed.
func (s Status) Outstanding() bool {
	return s == OnGoing || s == Recon || s == Overdue
}

// Resolve derives the status of a loan. The first matching rule wins:
//
//  1. a balance of zero or less is Paid
//  2. a deadline in the past is Overdue, even for restructured loans
//  3. a restructured loan is Recon, anything else OnGoing
//
// A zero deadline never triggers rule 2.
func Resolve(balance int64, deadline, now time.Time, restructured bool) Status {
	if balance <= 0 {
		return Paid
	}
	if !deadline.IsZero() && now.After(deadline) {
		return Overdue
	}
	if restructured {
		return Recon
	}
	return OnGoing
}
