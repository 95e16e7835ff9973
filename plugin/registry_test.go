package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/status"
)

type recorder struct {
	name    string
	created atomic.Int32
	changed atomic.Int32
	fail    error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnClientCreated(context.Context, *client.Client) error {
	r.created.Add(1)
	return r.fail
}

func (r *recorder) OnStatusChanged(_ context.Context, _ id.ClientID, _, _ status.Status) error {
	r.changed.Add(1)
	return r.fail
}

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnClientCreated(ctx context.Context, _ *client.Client) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterDuplicate(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(&recorder{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&recorder{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("count: got %d", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Error("Get lookup mismatch")
	}
}

func TestDispatchOnlyToImplementers(t *testing.T) {
	r := quietRegistry()
	rec := &recorder{name: "rec"}
	if err := r.Register(rec); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(slowPlugin{}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	r.EmitStatusChanged(ctx, id.NewClientID(), status.OnGoing, status.Paid)
	r.EmitStatusChanged(ctx, id.NewClientID(), status.Paid, status.OnGoing)
	r.EmitSweepCompleted(ctx, 3, 1, time.Millisecond)

	if got := rec.changed.Load(); got != 2 {
		t.Errorf("status changes: got %d, want 2", got)
	}
	if len(r.List()) != 2 {
		t.Errorf("list: got %d", len(r.List()))
	}
}

func TestHookErrorsDoNotPropagate(t *testing.T) {
	r := quietRegistry()
	first := &recorder{name: "first", fail: errors.New("boom")}
	second := &recorder{name: "second"}
	_ = r.Register(first)
	_ = r.Register(second)

	r.EmitClientCreated(context.Background(), &client.Client{ID: id.NewClientID()})

	if first.created.Load() != 1 || second.created.Load() != 1 {
		t.Errorf("every plugin should be called: %d %d", first.created.Load(), second.created.Load())
	}
}

func TestHookTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	_ = r.Register(slowPlugin{})

	start := time.Now()
	r.EmitClientCreated(context.Background(), &client.Client{ID: id.NewClientID()})
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}
