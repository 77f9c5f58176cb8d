// Package ticket issues and validates the short-lived credentials that
// authorize a WebSocket upgrade. Tickets are process-local: the issuing
// request and the upgrade attempt complete within seconds, typically from
// the same client, so cross-process replication buys nothing.
package ticket

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/knowandlove/classquiz-go/models"
)

// DefaultTTL bounds how long an issued ticket stays valid
const DefaultTTL = 30 * time.Second

// Result is the outcome of validating a ticket
type Result struct {
	Valid     bool
	SubjectID string
	SessionID string
}

// Authenticator issues single-use upgrade tickets
type Authenticator struct {
	mu      sync.Mutex
	tickets map[string]*models.Ticket
	ttl     time.Duration

	// allowReuse skips the single-use check. Explicitly configured,
	// never inferred from the environment; local testing only.
	allowReuse bool

	now func() time.Time
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithTTL overrides the default ticket lifetime
func WithTTL(ttl time.Duration) Option {
	return func(a *Authenticator) { a.ttl = ttl }
}

// WithReuseAllowed relaxes the single-use check for non-production use
func WithReuseAllowed() Option {
	return func(a *Authenticator) { a.allowReuse = true }
}

// WithClock overrides the time source for tests
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// NewAuthenticator creates an empty ticket authenticator
func NewAuthenticator(opts ...Option) *Authenticator {
	a := &Authenticator{
		tickets: make(map[string]*models.Ticket),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue creates a fresh ticket, optionally bound to a subject and a
// session, and returns its opaque token
func (a *Authenticator) Issue(subjectID, sessionID string) *models.Ticket {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	token := hex.EncodeToString(b)

	t := &models.Ticket{
		Token:     token,
		SubjectID: subjectID,
		SessionID: sessionID,
		ExpiresAt: a.now().Add(a.ttl),
	}

	a.mu.Lock()
	a.tickets[token] = t
	a.mu.Unlock()

	return t
}

// Validate checks a presented token. Unknown, expired, and (in the strict
// posture) already-used tickets all fail. A successful strict validation
// burns the ticket so it cannot authorize a second upgrade.
func (a *Authenticator) Validate(token string) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.tickets[token]
	if !ok {
		return Result{}
	}

	if a.now().After(t.ExpiresAt) {
		delete(a.tickets, token)
		return Result{}
	}

	if t.Used && !a.allowReuse {
		return Result{}
	}
	t.Used = true

	return Result{Valid: true, SubjectID: t.SubjectID, SessionID: t.SessionID}
}

// Sweep removes expired tickets and returns how many were dropped.
// Run on a minutes-scale interval; cleanup cost stays proportional to
// the ticket table, not to traffic.
func (a *Authenticator) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	swept := 0
	for token, t := range a.tickets {
		if now.After(t.ExpiresAt) {
			delete(a.tickets, token)
			swept++
		}
	}

	return swept
}
