package loanbook

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/store"
)

// resolve brings the statuses of c and its current disbursement d in line
// with the balance and deadline, then checks the client invariants. It
// reports whether either status changed. d is nil for a client that never
// had a loan.
func resolve(c *client.Client, d *disbursement.Disbursement, now time.Time) (bool, error) {
	changed := false
	if d != nil {
		next := status.Resolve(c.Balance.Amount, d.Deadline, now, d.Restructured())
		if c.Status != next {
			c.Status = next
			changed = true
		}
		if d.Status != next {
			d.Status = next
			changed = true
		}
	}
	if err := c.Check(); err != nil {
		return changed, fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return changed, nil
}

// current loads c's current disbursement inside tx, or nil when it has none.
func current(ctx context.Context, tx store.Tx, c *client.Client) (*disbursement.Disbursement, error) {
	if !c.HasLoan() {
		return nil, nil
	}
	return tx.GetDisbursement(ctx, c.CurrentDisbursementID)
}

// Reconcile re-derives a client's status from its balance and deadline and
// writes the client and its current disbursement only when a status changed.
func (e *Engine) Reconcile(ctx context.Context, clientID id.ClientID) (status.Status, bool, error) {
	var (
		from, to status.Status
		changed  bool
	)
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetClient(ctx, clientID)
		if err != nil {
			return err
		}
		d, err := current(ctx, tx, c)
		if err != nil {
			return err
		}

		from = c.Status
		now := e.now()
		changed, err = resolve(c, d, now)
		if err != nil {
			return err
		}
		to = c.Status
		if !changed {
			return nil
		}

		d.Touch(now)
		if err := tx.UpdateDisbursement(ctx, d); err != nil {
			return err
		}
		c.Touch(now)
		return tx.UpdateClient(ctx, c)
	})
	if err != nil {
		return "", false, err
	}

	e.cooldown.mark(clientID, e.now())
	if from != to {
		e.statusChanged(ctx, clientID, from, to)
	}
	return to, changed, nil
}

func (e *Engine) statusChanged(ctx context.Context, clientID id.ClientID, from, to status.Status) {
	if from == to {
		return
	}
	e.logger.Info("client status changed",
		"client_id", clientID.String(),
		"from", string(from),
		"to", string(to),
	)
	e.plugins.EmitStatusChanged(ctx, clientID, from, to)
}

// Sweep reconciles every client with a bounded number of workers. Failures
// on single clients do not stop the pass; they are collected and returned
// together.
func (e *Engine) Sweep(ctx context.Context) error {
	start := time.Now()

	clients, err := e.store.ListClients(ctx, client.ListOpts{})
	if err != nil {
		return fmt.Errorf("loanbook: sweep: list clients: %w", err)
	}

	var (
		changed atomic.Int64
		mu      sync.Mutex
		errs    MultiError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.sweepConcurrency)
	for _, c := range clients {
		if !c.HasLoan() {
			continue
		}
		clientID := c.ID
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			_, ok, err := e.Reconcile(gctx, clientID)
			if err != nil {
				mu.Lock()
				errs.Add(fmt.Errorf("client %s: %w", clientID, err))
				mu.Unlock()
				return nil
			}
			if ok {
				changed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs.Add(err)
	}

	elapsed := time.Since(start)
	e.logger.Info("sweep completed",
		"scanned", len(clients),
		"changed", changed.Load(),
		"failed", len(errs.Errors),
		"elapsed", elapsed,
	)
	e.plugins.EmitSweepCompleted(ctx, len(clients), int(changed.Load()), elapsed)
	return errs.ErrOrNil()
}

// sweepWorker runs Sweep on every tick until Stop.
func (e *Engine) sweepWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), e.sweepInterval)
			if err := e.Sweep(ctx); err != nil {
				e.logger.Error("sweep failed", "error", err)
			}
			cancel()
		}
	}
}

// cooldown remembers when each client was last reconciled so read paths do
// not reconcile the same client over and over.
type cooldown struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func newCooldown(window time.Duration) *cooldown {
	return &cooldown{window: window, last: make(map[string]time.Time)}
}

func (c *cooldown) mark(clientID id.ClientID, now time.Time) {
	if c.window <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[clientID.String()] = now
}

// due reports whether clientID has not been reconciled within the window.
func (c *cooldown) due(clientID id.ClientID, now time.Time) bool {
	if c.window <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.last[clientID.String()]
	if !ok {
		return true
	}
	if now.Sub(last) >= c.window || now.Before(last) {
		delete(c.last, clientID.String())
		return true
	}
	return false
}
