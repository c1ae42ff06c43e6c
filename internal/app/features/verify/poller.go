// internal/app/features/verify/poller.go

// Package verify watches a pending principal's email confirmation and
// advances the onboarding flow exactly once when it lands.
package verify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/memberlink/memberlink/internal/app/system/tasks"
	"github.com/memberlink/memberlink/internal/app/system/timeouts"
)

// ErrCooldown is returned when a resend is requested before the
// previous one's cooldown has elapsed.
var ErrCooldown = errors.New("verify: resend cooldown active")

// Backend is the slice of the API client the poller needs.
type Backend interface {
	VerificationStatus(ctx context.Context, token string) (bool, error)
	ResendVerification(ctx context.Context, token string) error
	SignOut(ctx context.Context, token string) error
}

// SessionStore clears the pending session when the user abandons the
// address they signed up with.
type SessionStore interface {
	ClearSession(ctx context.Context) error
}

// Poller polls the backend for email confirmation. Status checks that
// fail are logged and retried on the next tick; the flow never aborts
// on a transient error.
type Poller struct {
	API   Backend
	Store SessionStore
	Log   *zap.Logger

	// PollInterval is the gap between status checks. DisplayDelay is
	// how long the success state stays on screen before OnVerified.
	PollInterval time.Duration
	DisplayDelay time.Duration

	// OnVerified fires exactly once, DisplayDelay after confirmation.
	OnVerified func()
	// OnRestart fires after UseDifferentEmail tears the session down.
	OnRestart func()

	// Cooldown limits resends; the default allows one per minute.
	Cooldown *rate.Limiter

	mu      sync.Mutex
	token   string
	handle  *tasks.Handle
	delay   *tasks.Handle
	ctx     context.Context
	cancel  context.CancelFunc
	advance *sync.Once
}

// NewPoller creates a poller with the standard cadence: a status check
// every 3 seconds, a 2 second success display, and one resend per
// minute.
func NewPoller(backend Backend, store SessionStore, logger *zap.Logger) *Poller {
	return &Poller{
		API:          backend,
		Store:        store,
		Log:          logger,
		PollInterval: 3 * time.Second,
		DisplayDelay: 2 * time.Second,
		Cooldown:     rate.NewLimiter(rate.Every(60*time.Second), 1),
		advance:      new(sync.Once),
	}
}

// Start begins polling for the pending session identified by token.
// Starting an already-running poller restarts it for the new token.
func (p *Poller) Start(ctx context.Context, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	p.token = token
	p.advance = new(sync.Once)
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.handle = tasks.Start(p.ctx, tasks.Job{
		Name:     "verification-poll",
		Interval: p.PollInterval,
		Run:      p.check,
	}, p.Log)

	p.Log.Info("verification polling started")
}

// Stop cancels the poll loop and any pending success-display timer.
// Safe to call at any time, any number of times.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.handle = nil
	p.delay = nil
}

// CheckNow performs an immediate status check outside the tick
// schedule, for a user-driven refresh.
func (p *Poller) CheckNow(ctx context.Context) error {
	return p.check(ctx)
}

func (p *Poller) check(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	advance := p.advance
	p.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	verified, err := p.API.VerificationStatus(reqCtx, token)
	if err != nil {
		return err
	}
	if !verified {
		return nil
	}

	advance.Do(func() {
		p.Log.Info("email verified")

		p.mu.Lock()
		defer p.mu.Unlock()

		// Stop the tick loop but keep p.ctx alive for the display
		// delay; only Stop tears that down.
		if p.handle != nil {
			p.handle.Cancel()
			p.handle = nil
		}
		delayCtx := p.ctx
		if delayCtx == nil {
			delayCtx = context.Background()
		}
		p.delay = tasks.After(delayCtx, p.DisplayDelay, func() {
			if p.OnVerified != nil {
				p.OnVerified()
			}
		})
	})
	return nil
}

// Resend asks the provider to send another confirmation email. At most
// one resend per cooldown window; extras return ErrCooldown without
// touching the network. The window starts only on a successful resend,
// so a backend failure leaves the user free to retry immediately.
func (p *Poller) Resend(ctx context.Context) error {
	res := p.Cooldown.Reserve()
	if !res.OK() || res.Delay() > 0 {
		res.Cancel()
		return ErrCooldown
	}

	p.mu.Lock()
	token := p.token
	p.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	if err := p.API.ResendVerification(reqCtx, token); err != nil {
		res.Cancel()
		p.Log.Warn("resend verification failed", zap.Error(err))
		return err
	}
	p.Log.Info("verification email resent")
	return nil
}

// UseDifferentEmail abandons the pending principal: polling stops, the
// backend session is revoked best-effort, and local credentials are
// cleared before OnRestart returns the user to sign-in.
func (p *Poller) UseDifferentEmail(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.stopLocked()
	p.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	if err := p.API.SignOut(reqCtx, token); err != nil {
		// Revocation failure must not trap the user on this screen.
		p.Log.Warn("sign-out during email change failed", zap.Error(err))
	}

	if err := p.Store.ClearSession(reqCtx); err != nil {
		return err
	}

	if p.OnRestart != nil {
		p.OnRestart()
	}
	return nil
}
