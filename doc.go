// Package loanbook is a micro-lending ledger for Go applications.
//
// It tracks borrowers, the loans released to them, and the daily payments
// that bring each balance down to zero. Every change to a balance happens
// inside one store transaction together with the records it depends on, so
// concurrent staff sessions never observe or produce a half-applied change.
//
// # Quick Start
//
//	s := memory.New()
//	lb := loanbook.New(s, loanbook.WithLogger(slog.Default()))
//	if err := lb.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer lb.Stop()
//
//	staff, _ := lb.CreateUser(ctx, "Maria", "1234")
//	sess := loanbook.Session{UserID: staff.ID, Name: staff.Name}
//
//	c, _ := lb.CreateClient(ctx, client.Profile{Name: "Juan dela Cruz"})
//	d, err := lb.Disburse(ctx, sess, "1234", loanbook.DisburseRequest{
//	    ClientID: c.ID,
//	    Amount:   loanbook.PHP(500000),
//	    Terms:    disbursement.Terms{MonthsToPay: 2, IssuedAt: time.Now()},
//	})
//
// # Loan lifecycle
//
// A client starts with a zero balance in status NoData. Disburse sets the
// balance to the released amount, Pay lowers it, EditPayment and
// DeletePayment move it by the difference, and Reconstruct carries an
// outstanding balance into a new loan under new terms. The status of the
// client and of its current disbursement is always derived from the balance
// and the deadline:
//
//	balance 0            → Paid
//	past the deadline    → Overdue
//	restructured loan    → Recon
//	otherwise            → OnGoing
//
// Interest and penalties are recorded on the disbursement but never enter
// the balance.
//
// # PIN confirmation
//
// Every mutating call takes a Session naming the staff user and that user's
// PIN. The request is validated first and the PIN checked second, so a PIN
// is never spent on a request that cannot be committed. Failed PINs are
// throttled per user; see gate.Policy.
//
// # Stores
//
// store/memory, store/sqlite, store/postgres, and store/mongo implement
// store.Store. Conflicting transactions are retried inside the store and
// surface as ErrTxConflict when they keep conflicting.
//
// # TypeID
//
// All entities use TypeID identifiers:
//
//	cli_01h2xcejqtf2nbrexx3vqjhp41  // Client
//	dsb_01h2xcejqtf2nbrexx3vqjhp41  // Disbursement
//	pay_01h455vb4pex5vsknk084sn02q  // Payment
//	usr_01h455vb4pex5vsknk084sn02q  // User
package loanbook
