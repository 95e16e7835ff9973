// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/types"
	"github.com/xraph/loanbook/user"
)

// Factory returns a fresh, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"ClientRoundTrip", testClientRoundTrip},
		{"NotFound", testNotFound},
		{"DuplicateCreate", testDuplicateCreate},
		{"ListClients", testListClients},
		{"TxCommit", testTxCommit},
		{"TxRollback", testTxRollback},
		{"TxReadsOwnWrites", testTxReadsOwnWrites},
		{"PaymentLifecycle", testPaymentLifecycle},
		{"ListPayments", testListPayments},
		{"ListDisbursements", testListDisbursements},
		{"UserRoundTrip", testUserRoundTrip},
		{"ConcurrentIncrements", testConcurrentIncrements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// NewClient returns an unsaved client with a fresh ID.
func NewClient(name string) *client.Client {
	return &client.Client{
		Entity:  types.NewEntity(base),
		ID:      id.NewClientID(),
		Name:    name,
		Balance: types.PHP(0),
		Status:  status.NoData,
	}
}

func newDisbursement(c *client.Client, amount int64, issued time.Time) *disbursement.Disbursement {
	deadline, _ := disbursement.ComputeDeadline(issued, 2)
	return &disbursement.Disbursement{
		Entity:      types.NewEntity(issued),
		ID:          id.NewDisbursementID(),
		ClientID:    c.ID,
		Amount:      types.PHP(amount),
		Interest:    types.PHP(amount / 10),
		MonthsToPay: 2,
		IssuedAt:    issued,
		Deadline:    deadline,
		Kind:        disbursement.KindRelease,
		Remarks:     string(disbursement.KindRelease),
		Status:      status.OnGoing,
		Penalty:     types.PHP(0),
	}
}

func newPayment(c *client.Client, d *disbursement.Disbursement, amount int64, at time.Time) *payment.Payment {
	return &payment.Payment{
		Entity:         types.NewEntity(at),
		ID:             id.NewPaymentID(),
		ClientID:       c.ID,
		DisbursementID: d.ID,
		Amount:         types.PHP(amount),
		PaidAt:         at,
		RecordedBy:     id.NewUserID(),
	}
}

// issue disburses amount to c inside one transaction.
func issue(t *testing.T, s store.Store, c *client.Client, amount int64) *disbursement.Disbursement {
	t.Helper()
	d := newDisbursement(c, amount, base)
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GetClient(ctx, c.ID)
		if err != nil {
			return err
		}
		if err := tx.CreateDisbursement(ctx, d); err != nil {
			return err
		}
		cur.Balance = d.Amount
		cur.Status = status.OnGoing
		cur.CurrentDisbursementID = d.ID
		return tx.UpdateClient(ctx, cur)
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return d
}

func mustCreateClient(t *testing.T, s store.Store, name string) *client.Client {
	t.Helper()
	c := NewClient(name)
	if err := s.CreateClient(context.Background(), c); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	return c
}

func testClientRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := NewClient("Maria Santos")
	c.Nickname = "Maring"
	c.IsPrivate = true
	c.PIN = "4321"
	if err := s.CreateClient(ctx, c); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	got, err := s.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.ID != c.ID || got.Name != c.Name || got.Nickname != c.Nickname {
		t.Errorf("identity mismatch: got %+v", got)
	}
	if !got.IsPrivate || got.PIN != "4321" {
		t.Errorf("privacy fields lost: private=%v pin=%q", got.IsPrivate, got.PIN)
	}
	if got.Status != status.NoData || !got.Balance.IsZero() {
		t.Errorf("new client: status=%s balance=%s", got.Status, got.Balance)
	}
	if !got.CurrentDisbursementID.IsNil() {
		t.Errorf("expected no current disbursement, got %s", got.CurrentDisbursementID)
	}
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.GetClient(ctx, id.NewClientID()); !errors.Is(err, loanbook.ErrClientNotFound) {
		t.Errorf("GetClient: got %v", err)
	}
	if _, err := s.GetDisbursement(ctx, id.NewDisbursementID()); !errors.Is(err, loanbook.ErrDisbursementNotFound) {
		t.Errorf("GetDisbursement: got %v", err)
	}
	if _, err := s.GetPayment(ctx, id.NewPaymentID()); !errors.Is(err, loanbook.ErrPaymentNotFound) {
		t.Errorf("GetPayment: got %v", err)
	}
	if _, err := s.GetUser(ctx, id.NewUserID()); !errors.Is(err, loanbook.ErrUserNotFound) {
		t.Errorf("GetUser: got %v", err)
	}

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetClient(ctx, id.NewClientID())
		return err
	})
	if !errors.Is(err, loanbook.ErrClientNotFound) {
		t.Errorf("tx GetClient: got %v", err)
	}
}

func testDuplicateCreate(t *testing.T, s store.Store) {
	c := mustCreateClient(t, s, "Dup")
	if err := s.CreateClient(context.Background(), c); !errors.Is(err, loanbook.ErrAlreadyExists) {
		t.Errorf("got %v, want ErrAlreadyExists", err)
	}
}

func testListClients(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, name := range []string{"Carlos", "Ana", "Bea", "Anabel"} {
		mustCreateClient(t, s, name)
	}

	all, err := s.ListClients(ctx, client.ListOpts{})
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	want := []string{"Ana", "Anabel", "Bea", "Carlos"}
	if len(all) != len(want) {
		t.Fatalf("got %d clients, want %d", len(all), len(want))
	}
	for i, name := range want {
		if all[i].Name != name {
			t.Errorf("position %d: got %s, want %s", i, all[i].Name, name)
		}
	}

	found, err := s.ListClients(ctx, client.ListOpts{Search: "ana"})
	if err != nil {
		t.Fatalf("ListClients search: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("search: got %d, want 2", len(found))
	}

	page, err := s.ListClients(ctx, client.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListClients page: %v", err)
	}
	if len(page) != 2 || page[0].Name != "Anabel" {
		t.Errorf("page: got %d items", len(page))
	}

	none, err := s.ListClients(ctx, client.ListOpts{Status: status.Overdue})
	if err != nil {
		t.Fatalf("ListClients status: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("status filter: got %d, want 0", len(none))
	}
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := mustCreateClient(t, s, "Commit")
	d := issue(t, s, c, 500000)

	got, err := s.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance.Amount != 500000 || got.Status != status.OnGoing || got.CurrentDisbursementID != d.ID {
		t.Errorf("client after commit: %+v", got)
	}

	gotD, err := s.GetDisbursement(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotD.Amount.Amount != 500000 || gotD.Kind != disbursement.KindRelease || gotD.MonthsToPay != 2 {
		t.Errorf("disbursement after commit: %+v", gotD)
	}
	if !gotD.Deadline.Equal(d.Deadline) || !gotD.IssuedAt.Equal(d.IssuedAt) {
		t.Errorf("dates: issued %v deadline %v", gotD.IssuedAt, gotD.Deadline)
	}
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := mustCreateClient(t, s, "Rollback")
	boom := errors.New("boom")
	d := newDisbursement(c, 100000, base)

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GetClient(ctx, c.ID)
		if err != nil {
			return err
		}
		if err := tx.CreateDisbursement(ctx, d); err != nil {
			return err
		}
		cur.Balance = d.Amount
		cur.Status = status.OnGoing
		cur.CurrentDisbursementID = d.ID
		if err := tx.UpdateClient(ctx, cur); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want body error", err)
	}

	got, err := s.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Balance.IsZero() || got.Status != status.NoData {
		t.Errorf("client changed after rollback: %+v", got)
	}
	if _, err := s.GetDisbursement(ctx, d.ID); !errors.Is(err, loanbook.ErrDisbursementNotFound) {
		t.Errorf("disbursement visible after rollback: %v", err)
	}
}

func testTxReadsOwnWrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := mustCreateClient(t, s, "Own")
	d := issue(t, s, c, 100000)
	p := newPayment(c, d, 2500, base.Add(24*time.Hour))

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}
		got, err := tx.GetPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		if got.Amount.Amount != 2500 {
			t.Errorf("own write: got %s", got.Amount)
		}
		if err := tx.DeletePayment(ctx, p.ID); err != nil {
			return err
		}
		if _, err := tx.GetPayment(ctx, p.ID); !errors.Is(err, loanbook.ErrPaymentNotFound) {
			t.Errorf("deleted payment still visible: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
}

func testPaymentLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := mustCreateClient(t, s, "Payer")
	d := issue(t, s, c, 100000)
	p := newPayment(c, d, 5000, base.Add(24*time.Hour))

	run := func(fn store.TxFunc) {
		t.Helper()
		if err := s.RunInTx(ctx, fn); err != nil {
			t.Fatalf("RunInTx: %v", err)
		}
	}

	run(func(ctx context.Context, tx store.Tx) error { return tx.CreatePayment(ctx, p) })

	got, err := s.GetPayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if got.Amount.Amount != 5000 || got.DisbursementID != d.ID || got.RecordedBy != p.RecordedBy {
		t.Errorf("payment: %+v", got)
	}

	run(func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GetPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		cur.Amount = types.PHP(7000)
		return tx.UpdatePayment(ctx, cur)
	})
	got, err = s.GetPayment(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Amount.Amount != 7000 {
		t.Errorf("after update: %s", got.Amount)
	}

	run(func(ctx context.Context, tx store.Tx) error { return tx.DeletePayment(ctx, p.ID) })
	if _, err := s.GetPayment(ctx, p.ID); !errors.Is(err, loanbook.ErrPaymentNotFound) {
		t.Errorf("after delete: %v", err)
	}

	err = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.DeletePayment(ctx, p.ID) })
	if !errors.Is(err, loanbook.ErrPaymentNotFound) {
		t.Errorf("double delete: %v", err)
	}
}

func testListPayments(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := mustCreateClient(t, s, "Daily")
	d := issue(t, s, c, 100000)
	other := mustCreateClient(t, s, "Other")
	od := issue(t, s, other, 100000)

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for day := 1; day <= 3; day++ {
			if err := tx.CreatePayment(ctx, newPayment(c, d, int64(day)*100, base.AddDate(0, 0, day))); err != nil {
				return err
			}
		}
		return tx.CreatePayment(ctx, newPayment(other, od, 999, base.AddDate(0, 0, 2)))
	})
	if err != nil {
		t.Fatal(err)
	}

	mine, err := s.ListPayments(ctx, payment.ListOpts{ClientID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 3 {
		t.Fatalf("by client: got %d, want 3", len(mine))
	}
	if mine[0].Amount.Amount != 300 || mine[2].Amount.Amount != 100 {
		t.Errorf("expected newest first, got %s..%s", mine[0].Amount, mine[2].Amount)
	}

	day2 := base.AddDate(0, 0, 2)
	sameDay, err := s.ListPayments(ctx, payment.ListOpts{From: disbursement.EndOfDay(day2).Add(-24*time.Hour + time.Second), To: disbursement.EndOfDay(day2).Add(time.Second)})
	if err != nil {
		t.Fatal(err)
	}
	if len(sameDay) != 2 {
		t.Errorf("by day: got %d, want 2", len(sameDay))
	}

	byLoan, err := s.ListPayments(ctx, payment.ListOpts{DisbursementID: od.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(byLoan) != 1 || byLoan[0].Amount.Amount != 999 {
		t.Errorf("by disbursement: %+v", byLoan)
	}
}

func testListDisbursements(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := mustCreateClient(t, s, "History")
	first := issue(t, s, c, 100000)

	second := newDisbursement(c, 100000, base.AddDate(0, 1, 0))
	second.Kind = disbursement.KindRecon
	second.Remarks = string(disbursement.KindRecon)
	second.Status = status.Recon
	second.PreviousID = first.ID
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateDisbursement(ctx, second)
	})
	if err != nil {
		t.Fatal(err)
	}

	list, err := s.ListDisbursements(ctx, disbursement.ListOpts{ClientID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[0].PreviousID != first.ID || list[0].Kind != disbursement.KindRecon {
		t.Errorf("newest first with PreviousID: %+v", list[0])
	}

	recon, err := s.ListDisbursements(ctx, disbursement.ListOpts{Status: status.Recon})
	if err != nil {
		t.Fatal(err)
	}
	if len(recon) != 1 {
		t.Errorf("status filter: got %d, want 1", len(recon))
	}
}

func testUserRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := &user.User{Entity: types.NewEntity(base), ID: id.NewUserID(), Name: "teller", PIN: "1234"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Name != "teller" || got.PIN != "1234" {
		t.Errorf("user: %+v", got)
	}
}

// testConcurrentIncrements checks that read-modify-write transactions on one
// document never lose updates.
func testConcurrentIncrements(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := mustCreateClient(t, s, "Counter")
	issue(t, s, c, 1000)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				cur, err := tx.GetClient(ctx, c.ID)
				if err != nil {
					return err
				}
				cur.Balance = cur.Balance.Add(types.PHP(1))
				return tx.UpdateClient(ctx, cur)
			})
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			} else if !loanbook.IsRetryable(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance.Amount != int64(1000+committed) {
		t.Errorf("lost update: balance %d after %d commits", got.Balance.Amount, committed)
	}
	if committed == 0 {
		t.Error("no transaction committed")
	}
}
