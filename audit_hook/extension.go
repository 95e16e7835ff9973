// Package audithook turns loanbook ledger events into audit events.
//
// Backends implement the small Recorder interface; LogRecorder writes events
// to a slog.Logger.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/plugin"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnClientCreated   = (*Extension)(nil)
	_ plugin.OnClientUpdated   = (*Extension)(nil)
	_ plugin.OnDisbursed       = (*Extension)(nil)
	_ plugin.OnReconstructed   = (*Extension)(nil)
	_ plugin.OnTermsUpdated    = (*Extension)(nil)
	_ plugin.OnPaymentRecorded = (*Extension)(nil)
	_ plugin.OnPaymentEdited   = (*Extension)(nil)
	_ plugin.OnPaymentDeleted  = (*Extension)(nil)
	_ plugin.OnStatusChanged   = (*Extension)(nil)
	_ plugin.OnPinRejected     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audited ledger change.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes audit events to a logger at Info, or Warn for
// anything above info severity.
type LogRecorder struct {
	Logger *slog.Logger
}

// Record implements Recorder.
func (r LogRecorder) Record(ctx context.Context, event *AuditEvent) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if event.Severity != SeverityInfo {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "audit",
		"action", event.Action,
		"resource", event.Resource,
		"resource_id", event.ResourceID,
		"outcome", event.Outcome,
		"metadata", event.Metadata,
	)
	return nil
}

// Extension records an audit event for every ledger change.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Client hooks
// ──────────────────────────────────────────────────

// OnClientCreated implements plugin.OnClientCreated.
func (e *Extension) OnClientCreated(ctx context.Context, c *client.Client) error {
	return e.record(ctx, ActionClientCreated, SeverityInfo, OutcomeSuccess,
		ResourceClient, c.ID.String(), CategoryClient, nil,
		"name", c.Name,
		"private", c.IsPrivate,
	)
}

// OnClientUpdated implements plugin.OnClientUpdated.
func (e *Extension) OnClientUpdated(ctx context.Context, c *client.Client) error {
	return e.record(ctx, ActionClientUpdated, SeverityInfo, OutcomeSuccess,
		ResourceClient, c.ID.String(), CategoryClient, nil,
		"name", c.Name,
		"private", c.IsPrivate,
	)
}

// ──────────────────────────────────────────────────
// Loan hooks
// ──────────────────────────────────────────────────

// OnDisbursed implements plugin.OnDisbursed.
func (e *Extension) OnDisbursed(ctx context.Context, c *client.Client, d *disbursement.Disbursement) error {
	return e.record(ctx, ActionLoanDisbursed, SeverityInfo, OutcomeSuccess,
		ResourceDisbursement, d.ID.String(), CategoryLending, nil,
		"client_id", c.ID.String(),
		"amount", d.Amount.String(),
		"interest", d.Interest.String(),
		"months_to_pay", d.MonthsToPay,
		"deadline", d.Deadline,
	)
}

// OnReconstructed implements plugin.OnReconstructed.
func (e *Extension) OnReconstructed(ctx context.Context, c *client.Client, d, previous *disbursement.Disbursement) error {
	prev := ""
	if previous != nil {
		prev = previous.ID.String()
	}
	return e.record(ctx, ActionLoanReconstructed, SeverityWarning, OutcomeSuccess,
		ResourceDisbursement, d.ID.String(), CategoryLending, nil,
		"client_id", c.ID.String(),
		"previous_id", prev,
		"amount", d.Amount.String(),
		"deadline", d.Deadline,
	)
}

// OnTermsUpdated implements plugin.OnTermsUpdated.
func (e *Extension) OnTermsUpdated(ctx context.Context, d *disbursement.Disbursement) error {
	return e.record(ctx, ActionLoanTermsUpdated, SeverityWarning, OutcomeSuccess,
		ResourceDisbursement, d.ID.String(), CategoryLending, nil,
		"client_id", d.ClientID.String(),
		"months_to_pay", d.MonthsToPay,
		"deadline", d.Deadline,
		"remarks", d.Remarks,
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, c *client.Client, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentRecorded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"client_id", c.ID.String(),
		"disbursement_id", p.DisbursementID.String(),
		"amount", p.Amount.String(),
		"balance", c.Balance.String(),
		"recorded_by", p.RecordedBy.String(),
	)
}

// OnPaymentEdited implements plugin.OnPaymentEdited. Edits rewrite history,
// so they are audited at warning severity.
func (e *Extension) OnPaymentEdited(ctx context.Context, c *client.Client, p *payment.Payment, oldAmount types.Money) error {
	return e.record(ctx, ActionPaymentEdited, SeverityWarning, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"client_id", c.ID.String(),
		"old_amount", oldAmount.String(),
		"amount", p.Amount.String(),
		"balance", c.Balance.String(),
	)
}

// OnPaymentDeleted implements plugin.OnPaymentDeleted.
func (e *Extension) OnPaymentDeleted(ctx context.Context, c *client.Client, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentDeleted, SeverityWarning, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"client_id", c.ID.String(),
		"amount", p.Amount.String(),
		"balance", c.Balance.String(),
	)
}

// ──────────────────────────────────────────────────
// Status and credential hooks
// ──────────────────────────────────────────────────

// OnStatusChanged implements plugin.OnStatusChanged.
func (e *Extension) OnStatusChanged(ctx context.Context, clientID id.ClientID, from, to status.Status) error {
	severity := SeverityInfo
	if to == status.Overdue {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionStatusChanged, severity, OutcomeSuccess,
		ResourceClient, clientID.String(), CategoryLending, nil,
		"from", string(from),
		"to", string(to),
	)
}

// OnPinRejected implements plugin.OnPinRejected.
func (e *Extension) OnPinRejected(ctx context.Context, subject gate.Subject, err error) error {
	severity := SeverityWarning
	if errors.Is(err, gate.ErrLocked) {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionPinRejected, severity, OutcomeFailure,
		ResourceCredential, subject.ID, CategoryAccess, err,
		"subject_kind", string(subject.Kind),
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprint(kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
