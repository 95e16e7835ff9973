package loanbook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/store/memory"
	"github.com/xraph/loanbook/types"
)

const staffPIN = "1234"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	lb    *loanbook.Engine
	clock *clock
	sess  loanbook.Session
}

func newHarness(t *testing.T, opts ...loanbook.Option) *harness {
	t.Helper()

	clk := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]loanbook.Option{
		loanbook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		loanbook.WithClock(clk.Now),
		loanbook.WithSweepInterval(0),
	}, opts...)

	ctx := context.Background()
	lb := loanbook.New(memory.New(), opts...)
	if err := lb.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = lb.Stop() })

	u, err := lb.CreateUser(ctx, "Maria", staffPIN)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{
		t:     t,
		ctx:   ctx,
		lb:    lb,
		clock: clk,
		sess:  loanbook.Session{UserID: u.ID, Name: u.Name},
	}
}

func (h *harness) client(name string) *client.Client {
	h.t.Helper()
	c, err := h.lb.CreateClient(h.ctx, client.Profile{Name: name})
	if err != nil {
		h.t.Fatal(err)
	}
	return c
}

func (h *harness) disburse(clientID id.ClientID, amount int64, months int) *disbursement.Disbursement {
	h.t.Helper()
	d, err := h.lb.Disburse(h.ctx, h.sess, staffPIN, loanbook.DisburseRequest{
		ClientID: clientID,
		Amount:   types.PHP(amount),
		Terms:    disbursement.Terms{MonthsToPay: months, IssuedAt: h.clock.Now()},
	})
	if err != nil {
		h.t.Fatal(err)
	}
	return d
}

func (h *harness) pay(clientID id.ClientID, amount int64) *payment.Payment {
	h.t.Helper()
	p, err := h.lb.Pay(h.ctx, h.sess, staffPIN, loanbook.PayRequest{
		ClientID: clientID,
		Amount:   types.PHP(amount),
	})
	if err != nil {
		h.t.Fatal(err)
	}
	return p
}

func (h *harness) expect(clientID id.ClientID, balance int64, st status.Status) {
	h.t.Helper()
	c, err := h.lb.GetClient(h.ctx, clientID)
	if err != nil {
		h.t.Fatal(err)
	}
	if c.Balance.Amount != balance {
		h.t.Errorf("balance = %d, want %d", c.Balance.Amount, balance)
	}
	if c.Status != st {
		h.t.Errorf("status = %s, want %s", c.Status, st)
	}
	if !c.HasLoan() {
		return
	}
	d, err := h.lb.Store().GetDisbursement(h.ctx, c.CurrentDisbursementID)
	if err != nil {
		h.t.Fatal(err)
	}
	if d.Status != st {
		h.t.Errorf("disbursement status = %s, want %s", d.Status, st)
	}
}

func TestBalanceFollowsPayments(t *testing.T) {
	h := newHarness(t)
	c := h.client("Juan")
	h.expect(c.ID, 0, status.NoData)

	d := h.disburse(c.ID, 500000, 2)
	h.expect(c.ID, 500000, status.OnGoing)

	p1 := h.pay(c.ID, 100000)
	p2 := h.pay(c.ID, 100000)
	h.pay(c.ID, 50000)
	h.expect(c.ID, 250000, status.OnGoing)

	if _, err := h.lb.EditPayment(h.ctx, h.sess, staffPIN, p1.ID, types.PHP(20000)); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 330000, status.OnGoing)

	if err := h.lb.DeletePayment(h.ctx, h.sess, staffPIN, p2.ID); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 430000, status.OnGoing)

	payments, err := h.lb.ListPayments(h.ctx, payment.ListOpts{DisbursementID: d.ID})
	if err != nil {
		t.Fatal(err)
	}
	var paid int64
	for _, p := range payments {
		paid += p.Amount.Amount
	}
	if got := d.Amount.Amount - paid; got != 430000 {
		t.Errorf("amount - payments = %d, want 430000", got)
	}

	h.pay(c.ID, 430000)
	h.expect(c.ID, 0, status.Paid)
}

func TestConcurrentDisburse(t *testing.T) {
	h := newHarness(t)
	c := h.client("Ana")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.lb.Disburse(h.ctx, h.sess, staffPIN, loanbook.DisburseRequest{
				ClientID: c.ID,
				Amount:   types.PHP(100000),
				Terms:    disbursement.Terms{MonthsToPay: 1, IssuedAt: h.clock.Now()},
			})
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, loanbook.ErrBalanceNotZero):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("ok=%d rejected=%d, want 1 and 1", ok, rejected)
	}
	h.expect(c.ID, 100000, status.OnGoing)

	ds, err := h.lb.ListDisbursements(h.ctx, disbursement.ListOpts{ClientID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 1 {
		t.Errorf("disbursements = %d, want 1", len(ds))
	}
}

func TestDisburseRequiresZeroBalance(t *testing.T) {
	h := newHarness(t)
	c := h.client("Ben")
	h.disburse(c.ID, 100000, 1)

	_, err := h.lb.Disburse(h.ctx, h.sess, staffPIN, loanbook.DisburseRequest{
		ClientID: c.ID,
		Amount:   types.PHP(100000),
		Terms:    disbursement.Terms{MonthsToPay: 1, IssuedAt: h.clock.Now()},
	})
	if !errors.Is(err, loanbook.ErrBalanceNotZero) {
		t.Fatalf("got %v, want ErrBalanceNotZero", err)
	}
	if loanbook.KindOf(err) != loanbook.KindPrecondition {
		t.Errorf("kind = %s, want precondition", loanbook.KindOf(err))
	}

	h.pay(c.ID, 100000)
	h.disburse(c.ID, 200000, 3)
	h.expect(c.ID, 200000, status.OnGoing)
}

func TestDisburseComputesDeadline(t *testing.T) {
	h := newHarness(t)
	c := h.client("Carla")

	issued := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	d, err := h.lb.Disburse(h.ctx, h.sess, staffPIN, loanbook.DisburseRequest{
		ClientID: c.ID,
		Amount:   types.PHP(100000),
		Terms:    disbursement.Terms{MonthsToPay: 1, IssuedAt: issued},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 2, 28, 23, 59, 59, 0, time.UTC)
	if !d.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", d.Deadline, want)
	}
	if d.Kind != disbursement.KindRelease || d.Remarks != "Release" {
		t.Errorf("kind = %s remarks = %q", d.Kind, d.Remarks)
	}
}

func TestSuppliedDeadlineRunsToEndOfDay(t *testing.T) {
	h := newHarness(t)
	c := h.client("Cora")

	// A date-only deadline arrives as midnight.
	d, err := h.lb.Disburse(h.ctx, h.sess, staffPIN, loanbook.DisburseRequest{
		ClientID: c.ID,
		Amount:   types.PHP(100000),
		Terms: disbursement.Terms{
			MonthsToPay: 1,
			IssuedAt:    h.clock.Now(),
			Deadline:    time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)
	if !d.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", d.Deadline, want)
	}

	h.clock.Set(time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC))
	if st, _, err := h.lb.Reconcile(h.ctx, c.ID); err != nil || st != status.OnGoing {
		t.Fatalf("reconcile on deadline day = %s, %v; want OnGoing", st, err)
	}
	h.pay(c.ID, 10000)
	h.expect(c.ID, 90000, status.OnGoing)

	// Updated terms follow the same rule.
	d, err = h.lb.UpdateDisbursementTerms(h.ctx, h.sess, staffPIN, d.ID, disbursement.Terms{
		MonthsToPay: 2,
		IssuedAt:    d.IssuedAt,
		Deadline:    time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	want = time.Date(2025, 4, 30, 23, 59, 59, 0, time.UTC)
	if !d.Deadline.Equal(want) {
		t.Errorf("updated deadline = %v, want %v", d.Deadline, want)
	}

	h.clock.Set(time.Date(2025, 5, 1, 0, 0, 1, 0, time.UTC))
	if st, _, err := h.lb.Reconcile(h.ctx, c.ID); err != nil || st != status.Overdue {
		t.Errorf("reconcile after deadline day = %s, %v; want Overdue", st, err)
	}
}

func TestValidationRunsBeforePin(t *testing.T) {
	h := newHarness(t)
	c := h.client("Dan")

	tests := []struct {
		name string
		req  loanbook.DisburseRequest
	}{
		{"zero amount", loanbook.DisburseRequest{ClientID: c.ID, Amount: types.PHP(0), Terms: disbursement.Terms{MonthsToPay: 1, IssuedAt: h.clock.Now()}}},
		{"months too long", loanbook.DisburseRequest{ClientID: c.ID, Amount: types.PHP(100), Terms: disbursement.Terms{MonthsToPay: 7, IssuedAt: h.clock.Now()}}},
		{"no issue date", loanbook.DisburseRequest{ClientID: c.ID, Amount: types.PHP(100), Terms: disbursement.Terms{MonthsToPay: 1}}},
		{"negative interest", loanbook.DisburseRequest{ClientID: c.ID, Amount: types.PHP(100), Terms: disbursement.Terms{MonthsToPay: 1, IssuedAt: h.clock.Now(), Interest: types.PHP(-1)}}},
		{"other currency", loanbook.DisburseRequest{ClientID: c.ID, Amount: types.USD(100), Terms: disbursement.Terms{MonthsToPay: 1, IssuedAt: h.clock.Now()}}},
		{"deadline before issue", loanbook.DisburseRequest{ClientID: c.ID, Amount: types.PHP(100), Terms: disbursement.Terms{MonthsToPay: 1, IssuedAt: h.clock.Now(), Deadline: h.clock.Now().AddDate(0, 0, -1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A wrong PIN must not be reached: validation fails first.
			_, err := h.lb.Disburse(h.ctx, h.sess, "0000", tt.req)
			if loanbook.KindOf(err) != loanbook.KindValidation {
				t.Fatalf("got %v (%s), want validation error", err, loanbook.KindOf(err))
			}
		})
	}
	h.expect(c.ID, 0, status.NoData)
}

func TestNoSession(t *testing.T) {
	h := newHarness(t)
	c := h.client("Eve")

	_, err := h.lb.Pay(h.ctx, loanbook.Session{}, staffPIN, loanbook.PayRequest{ClientID: c.ID, Amount: types.PHP(1)})
	if !errors.Is(err, loanbook.ErrNoSession) {
		t.Fatalf("got %v, want ErrNoSession", err)
	}
}

func TestWrongPinLeavesLedgerUntouched(t *testing.T) {
	h := newHarness(t)
	c := h.client("Fe")
	h.disburse(c.ID, 100000, 1)

	_, err := h.lb.Pay(h.ctx, h.sess, "1235", loanbook.PayRequest{ClientID: c.ID, Amount: types.PHP(1000)})
	if !errors.Is(err, gate.ErrMismatch) {
		t.Fatalf("got %v, want ErrMismatch", err)
	}
	if !loanbook.IsAuthFailed(err) {
		t.Error("IsAuthFailed = false")
	}
	h.expect(c.ID, 100000, status.OnGoing)
}

func TestVerifyPinTrimsWhitespace(t *testing.T) {
	h := newHarness(t)

	if err := h.lb.VerifyPin(h.ctx, h.sess.UserID, " 1234 "); err != nil {
		t.Errorf("padded PIN: %v", err)
	}
	if err := h.lb.VerifyPin(h.ctx, h.sess.UserID, "1235"); loanbook.KindOf(err) != loanbook.KindAuth {
		t.Errorf("wrong PIN: got %v, want auth failure", err)
	}
	if err := h.lb.VerifyPin(h.ctx, id.NewUserID(), "1234"); !errors.Is(err, gate.ErrMismatch) {
		t.Errorf("unknown user: got %v, want ErrMismatch", err)
	}
}

func TestPinLockout(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t,
		loanbook.WithPinPolicy(gate.Policy{MaxFailures: 2, Window: time.Hour}),
		loanbook.WithPlugin(rec),
	)

	for range 2 {
		if err := h.lb.VerifyPin(h.ctx, h.sess.UserID, "0000"); !errors.Is(err, gate.ErrMismatch) {
			t.Fatalf("got %v, want ErrMismatch", err)
		}
	}
	if err := h.lb.VerifyPin(h.ctx, h.sess.UserID, staffPIN); !errors.Is(err, gate.ErrLocked) {
		t.Fatalf("got %v, want ErrLocked", err)
	}
	if got := rec.count("pin_rejected"); got != 3 {
		t.Errorf("pin rejections = %d, want 3", got)
	}
}

func TestPayRules(t *testing.T) {
	h := newHarness(t)
	c := h.client("Gil")

	_, err := h.lb.Pay(h.ctx, h.sess, staffPIN, loanbook.PayRequest{ClientID: c.ID, Amount: types.PHP(100)})
	if !errors.Is(err, loanbook.ErrNoActiveDisbursement) {
		t.Fatalf("no loan: got %v", err)
	}

	d := h.disburse(c.ID, 100000, 1)

	tests := []struct {
		name string
		req  loanbook.PayRequest
		want error
	}{
		{"exceeds balance", loanbook.PayRequest{ClientID: c.ID, Amount: types.PHP(100001)}, loanbook.ErrPaymentExceedsBalance},
		{"before issue", loanbook.PayRequest{ClientID: c.ID, Amount: types.PHP(100), PaidAt: d.IssuedAt.Add(-time.Hour)}, loanbook.ErrPaymentOutsideTerm},
		{"after deadline", loanbook.PayRequest{ClientID: c.ID, Amount: types.PHP(100), PaidAt: d.Deadline.Add(time.Second)}, loanbook.ErrPaymentOutsideTerm},
		{"other disbursement", loanbook.PayRequest{ClientID: c.ID, DisbursementID: id.NewDisbursementID(), Amount: types.PHP(100)}, loanbook.ErrNotCurrentDisbursement},
		{"unknown client", loanbook.PayRequest{ClientID: id.NewClientID(), Amount: types.PHP(100)}, loanbook.ErrClientNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.lb.Pay(h.ctx, h.sess, staffPIN, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
	h.expect(c.ID, 100000, status.OnGoing)

	// Bounds are inclusive.
	if _, err := h.lb.Pay(h.ctx, h.sess, staffPIN, loanbook.PayRequest{
		ClientID: c.ID, DisbursementID: d.ID, Amount: types.PHP(100), PaidAt: d.Deadline,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestLatePayments(t *testing.T) {
	h := newHarness(t, loanbook.WithLatePayments(true))
	c := h.client("Hana")
	d := h.disburse(c.ID, 100000, 1)

	if _, err := h.lb.Pay(h.ctx, h.sess, staffPIN, loanbook.PayRequest{
		ClientID: c.ID, Amount: types.PHP(100000), PaidAt: d.Deadline.AddDate(0, 0, 3),
	}); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 0, status.Paid)
}

func TestPenaltyNeverTouchesBalance(t *testing.T) {
	h := newHarness(t)
	c := h.client("Ivan")
	d := h.disburse(c.ID, 100000, 1)

	if _, err := h.lb.Pay(h.ctx, h.sess, staffPIN, loanbook.PayRequest{
		ClientID: c.ID, Amount: types.PHP(1000), Penalty: types.PHP(500),
	}); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 99000, status.OnGoing)

	got, err := h.lb.Store().GetDisbursement(h.ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Penalty.Amount != 500 {
		t.Errorf("penalty = %d, want 500", got.Penalty.Amount)
	}
}

func TestEditPayment(t *testing.T) {
	h := newHarness(t)
	c := h.client("Jo")
	h.disburse(c.ID, 100000, 1)
	p := h.pay(c.ID, 10000)

	t.Run("same amount", func(t *testing.T) {
		if _, err := h.lb.EditPayment(h.ctx, h.sess, staffPIN, p.ID, types.PHP(10000)); err != nil {
			t.Fatal(err)
		}
		h.expect(c.ID, 90000, status.OnGoing)
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := h.lb.EditPayment(h.ctx, h.sess, staffPIN, p.ID, types.PHP(0))
		if loanbook.KindOf(err) != loanbook.KindValidation {
			t.Fatalf("got %v, want validation error", err)
		}
	})

	t.Run("above balance plus old amount", func(t *testing.T) {
		_, err := h.lb.EditPayment(h.ctx, h.sess, staffPIN, p.ID, types.PHP(100001))
		if !errors.Is(err, loanbook.ErrPaymentExceedsBalance) {
			t.Fatalf("got %v, want ErrPaymentExceedsBalance", err)
		}
	})

	t.Run("up to paid", func(t *testing.T) {
		if _, err := h.lb.EditPayment(h.ctx, h.sess, staffPIN, p.ID, types.PHP(100000)); err != nil {
			t.Fatal(err)
		}
		h.expect(c.ID, 0, status.Paid)
	})

	t.Run("back down", func(t *testing.T) {
		if _, err := h.lb.EditPayment(h.ctx, h.sess, staffPIN, p.ID, types.PHP(40000)); err != nil {
			t.Fatal(err)
		}
		h.expect(c.ID, 60000, status.OnGoing)
	})
}

func TestDeleteThenRepay(t *testing.T) {
	h := newHarness(t)
	c := h.client("Kiko")
	h.disburse(c.ID, 50000, 1)
	p := h.pay(c.ID, 50000)
	h.expect(c.ID, 0, status.Paid)

	if err := h.lb.DeletePayment(h.ctx, h.sess, staffPIN, p.ID); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 50000, status.OnGoing)

	if _, err := h.lb.Store().GetPayment(h.ctx, p.ID); !errors.Is(err, loanbook.ErrPaymentNotFound) {
		t.Errorf("deleted payment: got %v, want ErrPaymentNotFound", err)
	}

	h.pay(c.ID, 50000)
	h.expect(c.ID, 0, status.Paid)
}

func TestReconstruct(t *testing.T) {
	h := newHarness(t)
	c := h.client("Lito")

	_, err := h.lb.Reconstruct(h.ctx, h.sess, staffPIN, loanbook.ReconRequest{
		ClientID: c.ID,
		Terms:    disbursement.Terms{MonthsToPay: 2, IssuedAt: h.clock.Now()},
	})
	if !errors.Is(err, loanbook.ErrNothingToReconstruct) {
		t.Fatalf("zero balance: got %v, want ErrNothingToReconstruct", err)
	}

	old := h.disburse(c.ID, 200000, 1)
	oldPay := h.pay(c.ID, 80000)

	d, err := h.lb.Reconstruct(h.ctx, h.sess, staffPIN, loanbook.ReconRequest{
		ClientID: c.ID,
		Terms:    disbursement.Terms{MonthsToPay: 2, IssuedAt: h.clock.Now(), Interest: types.PHP(6000)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Amount.Amount != 120000 {
		t.Errorf("amount = %d, want 120000", d.Amount.Amount)
	}
	if d.Kind != disbursement.KindRecon || d.Remarks != "Recon" || d.Status != status.Recon {
		t.Errorf("kind=%s remarks=%q status=%s", d.Kind, d.Remarks, d.Status)
	}
	if d.PreviousID.String() != old.ID.String() {
		t.Errorf("previous = %s, want %s", d.PreviousID, old.ID)
	}
	h.expect(c.ID, 120000, status.Recon)

	// The replaced loan is frozen.
	_, err = h.lb.Pay(h.ctx, h.sess, staffPIN, loanbook.PayRequest{
		ClientID: c.ID, DisbursementID: old.ID, Amount: types.PHP(100),
	})
	if !errors.Is(err, loanbook.ErrNotCurrentDisbursement) {
		t.Errorf("pay old loan: got %v, want ErrNotCurrentDisbursement", err)
	}
	if err := h.lb.DeletePayment(h.ctx, h.sess, staffPIN, oldPay.ID); !errors.Is(err, loanbook.ErrNotCurrentDisbursement) {
		t.Errorf("delete old payment: got %v, want ErrNotCurrentDisbursement", err)
	}

	h.pay(c.ID, 120000)
	h.expect(c.ID, 0, status.Paid)
}

func TestReconStatusSurvivesEdits(t *testing.T) {
	h := newHarness(t)
	c := h.client("Nena")
	h.disburse(c.ID, 100000, 1)
	h.pay(c.ID, 20000)

	if _, err := h.lb.Reconstruct(h.ctx, h.sess, staffPIN, loanbook.ReconRequest{
		ClientID: c.ID,
		Terms:    disbursement.Terms{MonthsToPay: 2, IssuedAt: h.clock.Now()},
	}); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 80000, status.Recon)

	p := h.pay(c.ID, 80000)
	h.expect(c.ID, 0, status.Paid)

	if _, err := h.lb.EditPayment(h.ctx, h.sess, staffPIN, p.ID, types.PHP(40000)); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 40000, status.Recon)

	p2 := h.pay(c.ID, 40000)
	h.expect(c.ID, 0, status.Paid)

	if err := h.lb.DeletePayment(h.ctx, h.sess, staffPIN, p2.ID); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 40000, status.Recon)

	if err := h.lb.DeletePayment(h.ctx, h.sess, staffPIN, p.ID); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 80000, status.Recon)
}

func TestOverdueOverridesRecon(t *testing.T) {
	h := newHarness(t)
	c := h.client("Mila")
	h.disburse(c.ID, 100000, 1)
	if _, err := h.lb.Reconstruct(h.ctx, h.sess, staffPIN, loanbook.ReconRequest{
		ClientID: c.ID,
		Terms:    disbursement.Terms{MonthsToPay: 1, IssuedAt: h.clock.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	h.clock.Set(h.clock.Now().AddDate(0, 2, 0))
	st, changed, err := h.lb.Reconcile(h.ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st != status.Overdue || !changed {
		t.Fatalf("status=%s changed=%v, want Overdue true", st, changed)
	}
	h.expect(c.ID, 100000, status.Overdue)

	if _, changed, _ := h.lb.Reconcile(h.ctx, c.ID); changed {
		t.Error("second reconcile changed status")
	}
}

func TestUpdateTermsMovesOutOfOverdue(t *testing.T) {
	h := newHarness(t)
	c := h.client("Nora")
	d := h.disburse(c.ID, 100000, 1)

	h.clock.Set(d.Deadline.Add(time.Hour))
	if _, _, err := h.lb.Reconcile(h.ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	h.expect(c.ID, 100000, status.Overdue)

	got, err := h.lb.UpdateDisbursementTerms(h.ctx, h.sess, staffPIN, d.ID, disbursement.Terms{
		MonthsToPay: 3,
		IssuedAt:    d.IssuedAt,
		Remarks:     "extended",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Amount.Amount != 100000 || got.MonthsToPay != 3 || got.Remarks != "extended" {
		t.Errorf("terms not applied: %+v", got)
	}
	h.expect(c.ID, 100000, status.OnGoing)
}

func TestClientView(t *testing.T) {
	h := newHarness(t)
	c := h.client("Oscar")

	view, err := h.lb.ClientView(h.ctx, c.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if view.Disbursement != nil || len(view.Payments) != 0 {
		t.Errorf("view of new client: %+v", view)
	}

	d := h.disburse(c.ID, 100000, 1)
	h.pay(c.ID, 1000)
	h.clock.Set(h.clock.Now().Add(time.Hour))
	h.pay(c.ID, 2000)

	// Reading past the deadline reconciles.
	h.clock.Set(d.Deadline.Add(24 * time.Hour))
	view, err = h.lb.ClientView(h.ctx, c.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if view.Client.Status != status.Overdue || view.Disbursement.Status != status.Overdue {
		t.Errorf("status = %s/%s, want Overdue", view.Client.Status, view.Disbursement.Status)
	}
	if len(view.Payments) != 2 || view.Payments[0].Amount.Amount != 2000 {
		t.Errorf("payments = %d, newest first expected", len(view.Payments))
	}
}

func TestPrivateClientView(t *testing.T) {
	h := newHarness(t)

	if _, err := h.lb.CreateClient(h.ctx, client.Profile{Name: "Pia", IsPrivate: true}); loanbook.KindOf(err) != loanbook.KindValidation {
		t.Fatalf("private without PIN: got %v", err)
	}

	c, err := h.lb.CreateClient(h.ctx, client.Profile{Name: "Pia", IsPrivate: true, PIN: "9876"})
	if err != nil {
		t.Fatal(err)
	}
	if c.PIN == "9876" {
		t.Error("client PIN stored in plain text")
	}

	if _, err := h.lb.ClientView(h.ctx, c.ID, "1111"); !errors.Is(err, gate.ErrMismatch) {
		t.Errorf("wrong PIN: got %v, want ErrMismatch", err)
	}
	if _, err := h.lb.ClientView(h.ctx, c.ID, " 9876"); err != nil {
		t.Errorf("right PIN: %v", err)
	}
}

func TestUpdateClientProfile(t *testing.T) {
	h := newHarness(t)
	c := h.client("Quino")

	got, err := h.lb.UpdateClientProfile(h.ctx, h.sess, staffPIN, c.ID, client.Profile{
		Name: " Quino Santos ", Nickname: "Q", IsPrivate: true, PIN: "5555",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Quino Santos" || got.Nickname != "Q" || !got.IsPrivate {
		t.Errorf("profile = %+v", got)
	}
	if err := h.lb.VerifyClientPin(h.ctx, c.ID, "5555"); err != nil {
		t.Errorf("new client PIN: %v", err)
	}

	// An empty PIN keeps the stored one.
	if _, err := h.lb.UpdateClientProfile(h.ctx, h.sess, staffPIN, c.ID, client.Profile{
		Name: "Quino Santos", IsPrivate: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := h.lb.VerifyClientPin(h.ctx, c.ID, "5555"); err != nil {
		t.Errorf("kept client PIN: %v", err)
	}
}

func TestListClients(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"Rosa", "Ramon", "Sara"} {
		h.client(name)
	}
	got, err := h.lb.ListClients(h.ctx, client.ListOpts{Search: " ra "})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "Ramon" || got[1].Name != "Sara" {
		t.Errorf("search = %v", names(got))
	}
}

func TestSweep(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, loanbook.WithPlugin(rec), loanbook.WithSweepConcurrency(2))

	short := h.client("Tess")
	long := h.client("Ursula")
	h.client("Victor")
	paid := h.client("Wendy")

	h.disburse(short.ID, 10000, 1)
	h.disburse(long.ID, 10000, 6)
	h.disburse(paid.ID, 10000, 1)
	h.pay(paid.ID, 10000)

	h.clock.Set(h.clock.Now().AddDate(0, 2, 0))
	if err := h.lb.Sweep(h.ctx); err != nil {
		t.Fatal(err)
	}

	h.expect(short.ID, 10000, status.Overdue)
	h.expect(long.ID, 10000, status.OnGoing)
	h.expect(paid.ID, 0, status.Paid)

	if got := rec.count("status_changed"); got < 1 {
		t.Errorf("status changes = %d", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.scanned != 4 || rec.changed != 1 {
		t.Errorf("sweep scanned=%d changed=%d, want 4 and 1", rec.scanned, rec.changed)
	}
}

func TestPluginsSeeLedgerEvents(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, loanbook.WithPlugin(rec))
	c := h.client("Xena")
	h.disburse(c.ID, 10000, 1)
	p := h.pay(c.ID, 10000)
	if err := h.lb.DeletePayment(h.ctx, h.sess, staffPIN, p.ID); err != nil {
		t.Fatal(err)
	}

	for event, want := range map[string]int{
		"client_created":  1,
		"disbursed":       1,
		"payment":         1,
		"payment_deleted": 1,
		// NoData → OnGoing → Paid → OnGoing
		"status_changed": 3,
	} {
		if got := rec.count(event); got != want {
			t.Errorf("%s = %d, want %d", event, got, want)
		}
	}
}

func names(cs []*client.Client) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

// recorder counts the hooks it receives.
type recorder struct {
	mu      sync.Mutex
	events  map[string]int
	scanned int
	changed int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string]int)
	}
	r.events[event]++
	return nil
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[event]
}

func (r *recorder) OnClientCreated(context.Context, *client.Client) error {
	return r.add("client_created")
}

func (r *recorder) OnDisbursed(context.Context, *client.Client, *disbursement.Disbursement) error {
	return r.add("disbursed")
}

func (r *recorder) OnPaymentRecorded(context.Context, *client.Client, *payment.Payment) error {
	return r.add("payment")
}

func (r *recorder) OnPaymentDeleted(context.Context, *client.Client, *payment.Payment) error {
	return r.add("payment_deleted")
}

func (r *recorder) OnStatusChanged(context.Context, id.ClientID, status.Status, status.Status) error {
	return r.add("status_changed")
}

func (r *recorder) OnPinRejected(context.Context, gate.Subject, error) error {
	return r.add("pin_rejected")
}

func (r *recorder) OnSweepCompleted(_ context.Context, scanned, changed int, _ time.Duration) error {
	r.mu.Lock()
	r.scanned, r.changed = scanned, changed
	r.mu.Unlock()
	return r.add("sweep")
}
