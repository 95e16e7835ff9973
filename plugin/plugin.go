// Package plugin provides lifecycle hooks into the loan engine. A plugin
// implements Plugin plus any subset of the hook interfaces below; the
// Registry discovers which ones at registration time.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Client hooks
// ──────────────────────────────────────────────────

// OnClientCreated is called after a client is stored.
type OnClientCreated interface {
	Plugin
	OnClientCreated(ctx context.Context, c *client.Client) error
}

// OnClientUpdated is called after a client's profile changed.
type OnClientUpdated interface {
	Plugin
	OnClientUpdated(ctx context.Context, c *client.Client) error
}

// ──────────────────────────────────────────────────
// Loan hooks
// ──────────────────────────────────────────────────

// OnDisbursed is called after a new loan is released.
type OnDisbursed interface {
	Plugin
	OnDisbursed(ctx context.Context, c *client.Client, d *disbursement.Disbursement) error
}

// OnReconstructed is called after an outstanding balance was restructured.
// previous is the disbursement that was replaced.
type OnReconstructed interface {
	Plugin
	OnReconstructed(ctx context.Context, c *client.Client, d, previous *disbursement.Disbursement) error
}

// OnTermsUpdated is called after a disbursement's terms were edited.
type OnTermsUpdated interface {
	Plugin
	OnTermsUpdated(ctx context.Context, d *disbursement.Disbursement) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded is called after a daily payment is recorded.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, c *client.Client, p *payment.Payment) error
}

// OnPaymentEdited is called after a payment amount changed.
type OnPaymentEdited interface {
	Plugin
	OnPaymentEdited(ctx context.Context, c *client.Client, p *payment.Payment, oldAmount types.Money) error
}

// OnPaymentDeleted is called after a payment was removed.
type OnPaymentDeleted interface {
	Plugin
	OnPaymentDeleted(ctx context.Context, c *client.Client, p *payment.Payment) error
}

// ──────────────────────────────────────────────────
// Status and credential hooks
// ──────────────────────────────────────────────────

// OnStatusChanged is called when reconciliation moved a client to a new
// status.
type OnStatusChanged interface {
	Plugin
	OnStatusChanged(ctx context.Context, clientID id.ClientID, from, to status.Status) error
}

// OnPinRejected is called when a PIN check failed or the subject is locked.
type OnPinRejected interface {
	Plugin
	OnPinRejected(ctx context.Context, subject gate.Subject, err error) error
}

// OnSweepCompleted is called after a full reconciliation pass.
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, scanned, changed int, elapsed time.Duration) error
}
