// Package observability provides a metrics extension for loanbook that
// records ledger event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/plugin"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnClientCreated   = (*MetricsExtension)(nil)
	_ plugin.OnDisbursed       = (*MetricsExtension)(nil)
	_ plugin.OnReconstructed   = (*MetricsExtension)(nil)
	_ plugin.OnTermsUpdated    = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded = (*MetricsExtension)(nil)
	_ plugin.OnPaymentEdited   = (*MetricsExtension)(nil)
	_ plugin.OnPaymentDeleted  = (*MetricsExtension)(nil)
	_ plugin.OnStatusChanged   = (*MetricsExtension)(nil)
	_ plugin.OnPinRejected     = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger-wide metrics. Register it as a loanbook
// plugin.
type MetricsExtension struct {
	// Client metrics
	ClientsCreated Counter

	// Loan metrics
	Disbursed           Counter
	DisbursedAmount     Histogram
	Reconstructed       Counter
	ReconstructedAmount Histogram
	TermsUpdated        Counter

	// Payment metrics
	PaymentsRecorded Counter
	PaymentAmount    Histogram
	PaymentsEdited   Counter
	PaymentsDeleted  Counter

	// Status metrics
	BecameOverdue Counter
	BecamePaid    Counter
	Reopened      Counter

	// Credential metrics
	PinMismatches Counter
	PinLockouts   Counter

	// Sweep metrics
	Sweeps       Counter
	SweepChanged Counter
	SweepLatency Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		ClientsCreated: factory.Counter("loanbook.client.created"),

		Disbursed:           factory.Counter("loanbook.loan.disbursed"),
		DisbursedAmount:     factory.Histogram("loanbook.loan.disbursed.amount"),
		Reconstructed:       factory.Counter("loanbook.loan.reconstructed"),
		ReconstructedAmount: factory.Histogram("loanbook.loan.reconstructed.amount"),
		TermsUpdated:        factory.Counter("loanbook.loan.terms_updated"),

		PaymentsRecorded: factory.Counter("loanbook.payment.recorded"),
		PaymentAmount:    factory.Histogram("loanbook.payment.amount"),
		PaymentsEdited:   factory.Counter("loanbook.payment.edited"),
		PaymentsDeleted:  factory.Counter("loanbook.payment.deleted"),

		BecameOverdue: factory.Counter("loanbook.status.overdue"),
		BecamePaid:    factory.Counter("loanbook.status.paid"),
		Reopened:      factory.Counter("loanbook.status.reopened"),

		PinMismatches: factory.Counter("loanbook.pin.mismatch"),
		PinLockouts:   factory.Counter("loanbook.pin.locked"),

		Sweeps:       factory.Counter("loanbook.sweep.runs"),
		SweepChanged: factory.Counter("loanbook.sweep.changed"),
		SweepLatency: factory.Histogram("loanbook.sweep.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnClientCreated implements plugin.OnClientCreated.
func (m *MetricsExtension) OnClientCreated(_ context.Context, _ *client.Client) error {
	m.ClientsCreated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Loan hooks
// ──────────────────────────────────────────────────

// OnDisbursed implements plugin.OnDisbursed.
func (m *MetricsExtension) OnDisbursed(_ context.Context, _ *client.Client, d *disbursement.Disbursement) error {
	m.Disbursed.Inc()
	m.DisbursedAmount.Observe(major(d.Amount))
	return nil
}

// OnReconstructed implements plugin.OnReconstructed.
func (m *MetricsExtension) OnReconstructed(_ context.Context, _ *client.Client, d, _ *disbursement.Disbursement) error {
	m.Reconstructed.Inc()
	m.ReconstructedAmount.Observe(major(d.Amount))
	return nil
}

// OnTermsUpdated implements plugin.OnTermsUpdated.
func (m *MetricsExtension) OnTermsUpdated(_ context.Context, _ *disbursement.Disbursement) error {
	m.TermsUpdated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, _ *client.Client, p *payment.Payment) error {
	m.PaymentsRecorded.Inc()
	m.PaymentAmount.Observe(major(p.Amount))
	return nil
}

// OnPaymentEdited implements plugin.OnPaymentEdited.
func (m *MetricsExtension) OnPaymentEdited(_ context.Context, _ *client.Client, _ *payment.Payment, _ types.Money) error {
	m.PaymentsEdited.Inc()
	return nil
}

// OnPaymentDeleted implements plugin.OnPaymentDeleted.
func (m *MetricsExtension) OnPaymentDeleted(_ context.Context, _ *client.Client, _ *payment.Payment) error {
	m.PaymentsDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Status, credential, and sweep hooks
// ──────────────────────────────────────────────────

// OnStatusChanged implements plugin.OnStatusChanged.
func (m *MetricsExtension) OnStatusChanged(_ context.Context, _ id.ClientID, from, to status.Status) error {
	switch {
	case to == status.Overdue:
		m.BecameOverdue.Inc()
	case to == status.Paid:
		m.BecamePaid.Inc()
	case from == status.Paid && to.Outstanding():
		m.Reopened.Inc()
	}
	return nil
}

// OnPinRejected implements plugin.OnPinRejected.
func (m *MetricsExtension) OnPinRejected(_ context.Context, _ gate.Subject, err error) error {
	if errors.Is(err, gate.ErrLocked) {
		m.PinLockouts.Inc()
	} else {
		m.PinMismatches.Inc()
	}
	return nil
}

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, _, changed int, elapsed time.Duration) error {
	m.Sweeps.Inc()
	m.SweepChanged.Add(float64(changed))
	m.SweepLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// major converts minor units to major units for histograms.
func major(m types.Money) float64 {
	return float64(m.Amount) / 100
}
