// Package gate confirms staff and private-client PINs before sensitive
// ledger operations, and throttles subjects that keep failing.
package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	// ErrMismatch is returned when the candidate PIN does not match, or when
	// the subject has no stored secret.
	ErrMismatch = errors.New("gate: incorrect PIN")
	// ErrLocked is returned while a subject is throttled after repeated failures.
	ErrLocked = errors.New("gate: too many failed attempts")
	// ErrUnknownSubject is returned by a Source when the subject does not exist.
	ErrUnknownSubject = errors.New("gate: unknown subject")
)

// SubjectKind separates staff users from private clients.
type SubjectKind string

// Subject kinds.
const (
	SubjectUser   SubjectKind = "user"
	SubjectClient SubjectKind = "client"
)

// Subject identifies whose secret a PIN is checked against.
type Subject struct {
	Kind SubjectKind
	ID   string
}

func (s Subject) String() string { return string(s.Kind) + ":" + s.ID }

// Source fetches the stored secret of a subject.
type Source interface {
	Secret(ctx context.Context, subject Subject) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, subject Subject) (string, error)

// Secret implements Source.
func (f SourceFunc) Secret(ctx context.Context, subject Subject) (string, error) {
	return f(ctx, subject)
}

// Policy bounds failed attempts per subject. MaxFailures failures are allowed
// in a burst; after that one more attempt is admitted every
// Window/MaxFailures. A zero MaxFailures disables throttling.
type Policy struct {
	MaxFailures int
	Window      time.Duration
}

// DefaultPolicy allows five failures, then one attempt per three minutes.
func DefaultPolicy() Policy {
	return Policy{MaxFailures: 5, Window: 15 * time.Minute}
}

// Gate verifies PINs against a Source.
type Gate struct {
	source Source
	policy Policy

	mu       sync.Mutex
	failures map[Subject]*rate.Limiter
}

// New creates a Gate.
func New(source Source, policy Policy) *Gate {
	return &Gate{
		source:   source,
		policy:   policy,
		failures: make(map[Subject]*rate.Limiter),
	}
}

// Verify checks candidate against the subject's stored secret. Both values
// are whitespace-trimmed. Stored bcrypt hashes are compared with bcrypt,
// anything else with constant-time equality.
func (g *Gate) Verify(ctx context.Context, subject Subject, candidate string) error {
	if g.locked(subject) {
		return fmt.Errorf("%w: %s", ErrLocked, subject)
	}

	stored, err := g.source.Secret(ctx, subject)
	switch {
	case errors.Is(err, ErrUnknownSubject):
		g.fail(subject)
		return fmt.Errorf("%w: %s", ErrMismatch, subject)
	case err != nil:
		return fmt.Errorf("gate: load secret for %s: %w", subject, err)
	}

	if !Match(stored, candidate) {
		g.fail(subject)
		return fmt.Errorf("%w: %s", ErrMismatch, subject)
	}

	g.reset(subject)
	return nil
}

// VerifyUser checks a staff user's PIN.
func (g *Gate) VerifyUser(ctx context.Context, userID, candidate string) error {
	return g.Verify(ctx, Subject{Kind: SubjectUser, ID: userID}, candidate)
}

// VerifyClient checks a private client's PIN.
func (g *Gate) VerifyClient(ctx context.Context, clientID, candidate string) error {
	return g.Verify(ctx, Subject{Kind: SubjectClient, ID: clientID}, candidate)
}

// Match reports whether candidate matches stored. An empty stored secret
// never matches.
func Match(stored, candidate string) bool {
	stored = strings.TrimSpace(stored)
	candidate = strings.TrimSpace(candidate)
	if stored == "" || candidate == "" {
		return false
	}
	if IsHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// IsHash reports whether s looks like a bcrypt hash.
func IsHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Hash returns a bcrypt hash of the trimmed PIN.
func Hash(pin string) (string, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return "", errors.New("gate: empty PIN")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("gate: hash PIN: %w", err)
	}
	return string(h), nil
}

func (g *Gate) locked(s Subject) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	lim, ok := g.failures[s]
	return ok && lim.Tokens() < 1
}

func (g *Gate) fail(s Subject) {
	if g.policy.MaxFailures <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	lim, ok := g.failures[s]
	if !ok {
		every := g.policy.Window / time.Duration(g.policy.MaxFailures)
		lim = rate.NewLimiter(rate.Every(every), g.policy.MaxFailures)
		g.failures[s] = lim
	}
	lim.Allow()
}

func (g *Gate) reset(s Subject) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, s)
}
