package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/api"
	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/store/memory"
)

const pin = "2468"

type fixture struct {
	t      *testing.T
	srv    http.Handler
	userID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lb := loanbook.New(memory.New(),
		loanbook.WithLogger(logger),
		loanbook.WithSweepInterval(0),
		loanbook.WithPinPolicy(gate.Policy{MaxFailures: 2, Window: time.Hour}),
	)
	ctx := context.Background()
	if err := lb.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = lb.Stop() })

	u, err := lb.CreateUser(ctx, "Teller", pin)
	if err != nil {
		t.Fatal(err)
	}
	srv := api.NewServer(lb, api.WithLogger(logger), api.WithBasePath("/loanbook")).Handler()
	return &fixture{t: t, srv: srv, userID: u.ID.String()}
}

func (f *fixture) do(method, path string, body any, headers map[string]string) (int, map[string]any) {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			f.t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, "/loanbook"+path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			f.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, out
}

func (f *fixture) staff(p string) map[string]string {
	return map[string]string{api.HeaderUserID: f.userID, api.HeaderPIN: p}
}

func (f *fixture) createClient(body map[string]any) string {
	f.t.Helper()
	code, out := f.do(http.MethodPost, "/clients", body, nil)
	if code != http.StatusCreated {
		f.t.Fatalf("create client: %d %v", code, out)
	}
	return out["id"].(string)
}

func balance(t *testing.T, view map[string]any) float64 {
	t.Helper()
	c := view["client"].(map[string]any)
	return c["balance"].(map[string]any)["amount"].(float64)
}

func TestLoanLifecycle(t *testing.T) {
	f := newFixture(t)
	clientID := f.createClient(map[string]any{"name": "Lorna"})

	code, out := f.do(http.MethodPost, "/clients/"+clientID+"/disburse", map[string]any{
		"amount":        "5,000.00",
		"months_to_pay": 2,
		"issued_at":     time.Now().Format(time.RFC3339),
	}, f.staff(pin))
	if code != http.StatusCreated {
		t.Fatalf("disburse: %d %v", code, out)
	}
	disbursementID := out["id"].(string)

	code, out = f.do(http.MethodPost, "/clients/"+clientID+"/payments", map[string]any{
		"amount":          "150.50",
		"disbursement_id": disbursementID,
	}, f.staff(pin))
	if code != http.StatusCreated {
		t.Fatalf("pay: %d %v", code, out)
	}
	paymentID := out["id"].(string)

	code, out = f.do(http.MethodGet, "/clients/"+clientID, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("view: %d %v", code, out)
	}
	if got := balance(t, out); got != 484950 {
		t.Errorf("balance = %v, want 484950", got)
	}

	code, out = f.do(http.MethodPut, "/payments/"+paymentID, map[string]any{"amount": "50"}, f.staff(pin))
	if code != http.StatusOK {
		t.Fatalf("edit: %d %v", code, out)
	}

	code, out = f.do(http.MethodGet, "/payments?client_id="+clientID, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("list payments: %d %v", code, out)
	}
	if total := out["total"].(map[string]any)["amount"].(float64); total != 5000 {
		t.Errorf("total = %v, want 5000", total)
	}

	if code, out = f.do(http.MethodDelete, "/payments/"+paymentID, nil, f.staff(pin)); code != http.StatusNoContent {
		t.Fatalf("delete: %d %v", code, out)
	}
	_, out = f.do(http.MethodGet, "/clients/"+clientID, nil, nil)
	if got := balance(t, out); got != 500000 {
		t.Errorf("balance after delete = %v, want 500000", got)
	}

	code, out = f.do(http.MethodPost, "/clients/"+clientID+"/recon", map[string]any{
		"months_to_pay": 3,
		"issued_at":     time.Now().Format(time.RFC3339),
	}, f.staff(pin))
	if code != http.StatusCreated || out["kind"] != "Recon" {
		t.Fatalf("recon: %d %v", code, out)
	}

	code, out = f.do(http.MethodGet, "/clients/"+clientID+"/disbursements", nil, nil)
	if code != http.StatusOK || len(out["disbursements"].([]any)) != 2 {
		t.Fatalf("disbursements: %d %v", code, out)
	}
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t)
	clientID := f.createClient(map[string]any{"name": "Mario"})
	issued := time.Now().Format(time.RFC3339)

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		headers map[string]string
		want    int
	}{
		{"no session", http.MethodPost, "/clients/" + clientID + "/disburse", map[string]any{"amount": "1"}, nil, http.StatusUnauthorized},
		{"bad amount", http.MethodPost, "/clients/" + clientID + "/disburse", map[string]any{"amount": "abc", "months_to_pay": 1, "issued_at": issued}, f.staff(pin), http.StatusUnprocessableEntity},
		{"too many months", http.MethodPost, "/clients/" + clientID + "/disburse", map[string]any{"amount": "10", "months_to_pay": 9, "issued_at": issued}, f.staff(pin), http.StatusUnprocessableEntity},
		{"no balance to pay", http.MethodPost, "/clients/" + clientID + "/payments", map[string]any{"amount": "10"}, f.staff(pin), http.StatusConflict},
		{"nothing to recon", http.MethodPost, "/clients/" + clientID + "/recon", map[string]any{"months_to_pay": 1, "issued_at": issued}, f.staff(pin), http.StatusConflict},
		{"unknown client", http.MethodGet, "/clients/cli_01h455vb4pex5vsknk084sn02q", nil, nil, http.StatusNotFound},
		{"malformed client", http.MethodGet, "/clients/nope", nil, nil, http.StatusNotFound},
		{"wrong pin", http.MethodPost, "/pin/verify", map[string]any{"pin": "0000"}, f.staff("0000"), http.StatusUnauthorized},
		{"second wrong pin", http.MethodPost, "/pin/verify", map[string]any{"pin": "0000"}, f.staff("0000"), http.StatusUnauthorized},
		{"locked", http.MethodPost, "/pin/verify", map[string]any{"pin": pin}, f.staff(pin), http.StatusLocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := f.do(tt.method, tt.path, tt.body, tt.headers)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%v)", code, tt.want, out)
			}
		})
	}
}

func TestPrivateClient(t *testing.T) {
	f := newFixture(t)
	clientID := f.createClient(map[string]any{"name": "Nina", "is_private": true, "pin": "1357"})

	if code, _ := f.do(http.MethodGet, "/clients/"+clientID, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("no client PIN: %d", code)
	}
	code, out := f.do(http.MethodGet, "/clients/"+clientID, nil, map[string]string{api.HeaderClientPIN: "1357"})
	if code != http.StatusOK {
		t.Fatalf("client PIN: %d %v", code, out)
	}
	if _, leaked := out["client"].(map[string]any)["pin"]; leaked {
		t.Error("client PIN serialized")
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, out := f.do(http.MethodGet, "/health", nil, nil)
	if code != http.StatusOK || out["status"] != "ok" {
		t.Errorf("health: %d %v", code, out)
	}
}
