package loanbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/plugin"
	"github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/types"
)

// Engine is the loan ledger. It owns every write to client balances and
// statuses and performs each one inside a single store transaction.
type Engine struct {
	store   store.Store
	gate    *gate.Gate
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time

	// Background sweeper
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	cooldown *cooldown

	// Configuration
	currency         string
	allowLate        bool
	autoMigrate      bool
	pinPolicy        gate.Policy
	sweepInterval    time.Duration
	sweepConcurrency int
	statusCooldown   time.Duration
}

// New creates a new Engine on s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:            s,
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		now:              time.Now,
		stopChan:         make(chan struct{}),
		currency:         types.DefaultCurrency,
		autoMigrate:      true,
		pinPolicy:        gate.DefaultPolicy(),
		sweepInterval:    time.Hour,
		sweepConcurrency: 8,
		statusCooldown:   time.Minute,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.gate = gate.New(gate.SourceFunc(e.secret), e.pinPolicy)
	e.cooldown = newCooldown(e.statusCooldown)
	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces time.Now. Tests use it to move across deadlines.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCurrency sets the ledger currency. Requests in any other currency are
// rejected.
func WithCurrency(currency string) Option {
	return func(e *Engine) { e.currency = types.Zero(currency).Currency }
}

// WithLatePayments allows payments dated outside the loan term.
func WithLatePayments(allow bool) Option {
	return func(e *Engine) { e.allowLate = allow }
}

// WithPinPolicy sets the failed-PIN throttling policy.
func WithPinPolicy(p gate.Policy) Option {
	return func(e *Engine) { e.pinPolicy = p }
}

// WithSweepInterval sets how often the background sweeper reconciles every
// client. Zero disables the sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) { e.sweepInterval = d }
}

// WithSweepConcurrency bounds how many clients a sweep reconciles at once.
func WithSweepConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sweepConcurrency = n
		}
	}
}

// WithStatusCooldown sets how long a read-path reconciliation of one client
// suppresses the next.
func WithStatusCooldown(d time.Duration) Option {
	return func(e *Engine) { e.statusCooldown = d }
}

// WithAutoMigrate controls whether Start migrates the store.
func WithAutoMigrate(enabled bool) Option {
	return func(e *Engine) { e.autoMigrate = enabled }
}

// Start migrates the store, initializes plugins, and starts the sweeper.
func (e *Engine) Start(ctx context.Context) error {
	if e.autoMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	if e.sweepInterval > 0 {
		e.wg.Add(1)
		go e.sweepWorker()
	}

	e.logger.Info("loanbook started",
		"currency", e.currency,
		"sweep_interval", e.sweepInterval,
		"status_cooldown", e.statusCooldown,
		"late_payments", e.allowLate,
	)
	return nil
}

// Stop stops the sweeper, notifies plugins, and closes the store.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Currency returns the ledger currency.
func (e *Engine) Currency() string { return e.currency }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// ──────────────────────────────────────────────────
// PIN confirmation
// ──────────────────────────────────────────────────

// VerifyPin checks a staff user's PIN.
func (e *Engine) VerifyPin(ctx context.Context, userID id.UserID, pin string) error {
	return e.verify(ctx, gate.Subject{Kind: gate.SubjectUser, ID: userID.String()}, pin)
}

// VerifyClientPin checks a private client's PIN.
func (e *Engine) VerifyClientPin(ctx context.Context, clientID id.ClientID, pin string) error {
	return e.verify(ctx, gate.Subject{Kind: gate.SubjectClient, ID: clientID.String()}, pin)
}

func (e *Engine) verify(ctx context.Context, subject gate.Subject, pin string) error {
	err := e.gate.Verify(ctx, subject, pin)
	if err != nil && (errors.Is(err, gate.ErrMismatch) || errors.Is(err, gate.ErrLocked)) {
		e.logger.Warn("pin rejected", "subject", subject.String(), "error", err)
		e.plugins.EmitPinRejected(ctx, subject, err)
	}
	return err
}

// secret feeds the gate from the store.
func (e *Engine) secret(ctx context.Context, subject gate.Subject) (string, error) {
	switch subject.Kind {
	case gate.SubjectUser:
		userID, err := id.ParseUserID(subject.ID)
		if err != nil {
			return "", gate.ErrUnknownSubject
		}
		u, err := e.store.GetUser(ctx, userID)
		if IsNotFound(err) {
			return "", gate.ErrUnknownSubject
		}
		if err != nil {
			return "", err
		}
		return u.PIN, nil

	case gate.SubjectClient:
		clientID, err := id.ParseClientID(subject.ID)
		if err != nil {
			return "", gate.ErrUnknownSubject
		}
		c, err := e.store.GetClient(ctx, clientID)
		if IsNotFound(err) {
			return "", gate.ErrUnknownSubject
		}
		if err != nil {
			return "", err
		}
		return c.PIN, nil
	}
	return "", gate.ErrUnknownSubject
}

// confirm runs a mutating request up to PIN confirmation: the form is
// validated first, so a PIN is only asked for requests that can be committed.
func (e *Engine) confirm(ctx context.Context, sess Session, pin string, validate func() error) (*gate.Flow, error) {
	f := gate.NewFlow()

	if err := sess.validate(); err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	if err := advance(f, gate.EventValidated, gate.EventPrompt); err != nil {
		return nil, err
	}

	if err := e.VerifyPin(ctx, sess.UserID, pin); err != nil {
		_ = advance(f, gate.EventReject)
		return nil, err
	}
	if err := advance(f, gate.EventConfirm); err != nil {
		return nil, err
	}
	return f, nil
}

// commit runs fn as the Committing step of f.
func (e *Engine) commit(ctx context.Context, f *gate.Flow, fn store.TxFunc) error {
	if err := advance(f, gate.EventCommit); err != nil {
		return err
	}
	if err := e.store.RunInTx(ctx, fn); err != nil {
		_ = advance(f, gate.EventFail)
		return err
	}
	return advance(f, gate.EventSucceed)
}

func advance(f *gate.Flow, events ...gate.Event) error {
	for _, ev := range events {
		if _, err := f.Fire(ev); err != nil {
			return fmt.Errorf("%w: %w", ErrInvariant, err)
		}
	}
	return nil
}
