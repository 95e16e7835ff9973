package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages registered plugins. Hook implementations are cached per
// interface at registration so dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit            []OnInit
	onShutdown        []OnShutdown
	onClientCreated   []OnClientCreated
	onClientUpdated   []OnClientUpdated
	onDisbursed       []OnDisbursed
	onReconstructed   []OnReconstructed
	onTermsUpdated    []OnTermsUpdated
	onPaymentRecorded []OnPaymentRecorded
	onPaymentEdited   []OnPaymentEdited
	onPaymentDeleted  []OnPaymentDeleted
	onStatusChanged   []OnStatusChanged
	onPinRejected     []OnPinRejected
	onSweepCompleted  []OnSweepCompleted
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnClientCreated); ok {
		r.onClientCreated = append(r.onClientCreated, v)
		hooks = append(hooks, "OnClientCreated")
	}
	if v, ok := p.(OnClientUpdated); ok {
		r.onClientUpdated = append(r.onClientUpdated, v)
		hooks = append(hooks, "OnClientUpdated")
	}
	if v, ok := p.(OnDisbursed); ok {
		r.onDisbursed = append(r.onDisbursed, v)
		hooks = append(hooks, "OnDisbursed")
	}
	if v, ok := p.(OnReconstructed); ok {
		r.onReconstructed = append(r.onReconstructed, v)
		hooks = append(hooks, "OnReconstructed")
	}
	if v, ok := p.(OnTermsUpdated); ok {
		r.onTermsUpdated = append(r.onTermsUpdated, v)
		hooks = append(hooks, "OnTermsUpdated")
	}
	if v, ok := p.(OnPaymentRecorded); ok {
		r.onPaymentRecorded = append(r.onPaymentRecorded, v)
		hooks = append(hooks, "OnPaymentRecorded")
	}
	if v, ok := p.(OnPaymentEdited); ok {
		r.onPaymentEdited = append(r.onPaymentEdited, v)
		hooks = append(hooks, "OnPaymentEdited")
	}
	if v, ok := p.(OnPaymentDeleted); ok {
		r.onPaymentDeleted = append(r.onPaymentDeleted, v)
		hooks = append(hooks, "OnPaymentDeleted")
	}
	if v, ok := p.(OnStatusChanged); ok {
		r.onStatusChanged = append(r.onStatusChanged, v)
		hooks = append(hooks, "OnStatusChanged")
	}
	if v, ok := p.(OnPinRejected); ok {
		r.onPinRejected = append(r.onPinRejected, v)
		hooks = append(hooks, "OnPinRejected")
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
		hooks = append(hooks, "OnSweepCompleted")
	}

	r.logger.Info("plugin registered", "name", p.Name(), "hooks", hooks)
	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit on every plugin that implements it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", snapshot(r, r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown on every plugin that implements it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitClientCreated emits a client created event.
func (r *Registry) EmitClientCreated(ctx context.Context, c *client.Client) {
	emit(ctx, r, "OnClientCreated", snapshot(r, r.onClientCreated), func(p OnClientCreated) error {
		return p.OnClientCreated(ctx, c)
	})
}

// EmitClientUpdated emits a client updated event.
func (r *Registry) EmitClientUpdated(ctx context.Context, c *client.Client) {
	emit(ctx, r, "OnClientUpdated", snapshot(r, r.onClientUpdated), func(p OnClientUpdated) error {
		return p.OnClientUpdated(ctx, c)
	})
}

// EmitDisbursed emits a disbursed event.
func (r *Registry) EmitDisbursed(ctx context.Context, c *client.Client, d *disbursement.Disbursement) {
	emit(ctx, r, "OnDisbursed", snapshot(r, r.onDisbursed), func(p OnDisbursed) error {
		return p.OnDisbursed(ctx, c, d)
	})
}

// EmitReconstructed emits a reconstructed event.
func (r *Registry) EmitReconstructed(ctx context.Context, c *client.Client, d, previous *disbursement.Disbursement) {
	emit(ctx, r, "OnReconstructed", snapshot(r, r.onReconstructed), func(p OnReconstructed) error {
		return p.OnReconstructed(ctx, c, d, previous)
	})
}

// EmitTermsUpdated emits a terms updated event.
func (r *Registry) EmitTermsUpdated(ctx context.Context, d *disbursement.Disbursement) {
	emit(ctx, r, "OnTermsUpdated", snapshot(r, r.onTermsUpdated), func(p OnTermsUpdated) error {
		return p.OnTermsUpdated(ctx, d)
	})
}

// EmitPaymentRecorded emits a payment recorded event.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, c *client.Client, pay *payment.Payment) {
	emit(ctx, r, "OnPaymentRecorded", snapshot(r, r.onPaymentRecorded), func(p OnPaymentRecorded) error {
		return p.OnPaymentRecorded(ctx, c, pay)
	})
}

// EmitPaymentEdited emits a payment edited event.
func (r *Registry) EmitPaymentEdited(ctx context.Context, c *client.Client, pay *payment.Payment, oldAmount types.Money) {
	emit(ctx, r, "OnPaymentEdited", snapshot(r, r.onPaymentEdited), func(p OnPaymentEdited) error {
		return p.OnPaymentEdited(ctx, c, pay, oldAmount)
	})
}

// EmitPaymentDeleted emits a payment deleted event.
func (r *Registry) EmitPaymentDeleted(ctx context.Context, c *client.Client, pay *payment.Payment) {
	emit(ctx, r, "OnPaymentDeleted", snapshot(r, r.onPaymentDeleted), func(p OnPaymentDeleted) error {
		return p.OnPaymentDeleted(ctx, c, pay)
	})
}

// EmitStatusChanged emits a status changed event.
func (r *Registry) EmitStatusChanged(ctx context.Context, clientID id.ClientID, from, to status.Status) {
	emit(ctx, r, "OnStatusChanged", snapshot(r, r.onStatusChanged), func(p OnStatusChanged) error {
		return p.OnStatusChanged(ctx, clientID, from, to)
	})
}

// EmitPinRejected emits a PIN rejected event.
func (r *Registry) EmitPinRejected(ctx context.Context, subject gate.Subject, err error) {
	emit(ctx, r, "OnPinRejected", snapshot(r, r.onPinRejected), func(p OnPinRejected) error {
		return p.OnPinRejected(ctx, subject, err)
	})
}

// EmitSweepCompleted emits a sweep completed event.
func (r *Registry) EmitSweepCompleted(ctx context.Context, scanned, changed int, elapsed time.Duration) {
	emit(ctx, r, "OnSweepCompleted", snapshot(r, r.onSweepCompleted), func(p OnSweepCompleted) error {
		return p.OnSweepCompleted(ctx, scanned, changed, elapsed)
	})
}

func snapshot[T Plugin](r *Registry, hooks []T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return hooks
}

// emit calls fn for each plugin. Failures are logged and never reach the
// caller: the ledger change they describe is already committed.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
