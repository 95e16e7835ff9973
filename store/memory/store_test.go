package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/store/memory"
	"github.com/xraph/loanbook/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestConflictExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	s := memory.New(memory.WithMaxAttempts(2))
	c := storetest.NewClient("Contended")
	if err := s.CreateClient(ctx, c); err != nil {
		t.Fatal(err)
	}

	calls := 0
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		calls++
		cur, err := tx.GetClient(ctx, c.ID)
		if err != nil {
			return err
		}
		// A writer outside this transaction moves the document every time.
		inner := s.RunInTx(ctx, func(ctx context.Context, tx2 store.Tx) error {
			other, err := tx2.GetClient(ctx, c.ID)
			if err != nil {
				return err
			}
			other.Nickname += "x"
			return tx2.UpdateClient(ctx, other)
		})
		if inner != nil {
			return inner
		}
		cur.Name = "changed"
		return tx.UpdateClient(ctx, cur)
	})
	if !errors.Is(err, loanbook.ErrTxConflict) {
		t.Fatalf("got %v, want ErrTxConflict", err)
	}
	if calls != 2 {
		t.Errorf("body ran %d times, want 2", calls)
	}

	got, err := s.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name == "changed" {
		t.Error("conflicting write was applied")
	}
}

func TestClosed(t *testing.T) {
	s := memory.New()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, loanbook.ErrStoreClosed) {
		t.Errorf("Ping: got %v", err)
	}
	err := s.RunInTx(context.Background(), func(context.Context, store.Tx) error { return nil })
	if !errors.Is(err, loanbook.ErrStoreClosed) {
		t.Errorf("RunInTx: got %v", err)
	}
}
