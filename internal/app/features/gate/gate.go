// internal/app/features/gate/gate.go

// Package gate is the session gate that runs at app launch: it races
// the stored-session check against the splash ceiling, redirects
// authenticated principals off the sign-in surface, and brings up the
// realtime channel for the session.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memberlink/memberlink/internal/app/realtime"
	"github.com/memberlink/memberlink/internal/app/system/navigation"
	"github.com/memberlink/memberlink/internal/app/system/tasks"
	"github.com/memberlink/memberlink/internal/domain/models"
)

// SessionStore loads the persisted session, if any.
type SessionStore interface {
	LoadSession(ctx context.Context) (models.Session, bool, error)
	ClearSession(ctx context.Context) error
}

// Channel is the slice of the realtime manager the gate needs.
type Channel interface {
	Connect(ctx context.Context, principalID string) error
	Disconnect()
	OnNotification(id string, fn realtime.Listener)
	OffNotification(id string)
}

// Splash controls the launch screen.
type Splash interface {
	Dismiss()
}

// Gate decides where the app lands after the splash screen.
//
// The stored-session check and the splash ceiling run as a race: the
// splash comes down as soon as the check answers, but never later than
// the ceiling. The check keeps running past the ceiling; its verdict
// is applied whenever it lands. A check that errors is treated as
// unauthenticated so a corrupt credential file can never lock the user
// out of the sign-in screen.
type Gate struct {
	Store   SessionStore
	Nav     navigation.Navigator
	Channel Channel
	Splash  Splash
	Log     *zap.Logger

	// SplashCeiling bounds how long the splash may stay up waiting for
	// the session check.
	SplashCeiling time.Duration

	mu          sync.Mutex
	session     models.Session
	loaded      bool
	listenerIDs []string
	redirect    sync.Once
	dismiss     sync.Once
	ready       chan struct{}
}

// New creates a gate with the standard 3 second splash ceiling.
func New(store SessionStore, nav navigation.Navigator, channel Channel, splash Splash, logger *zap.Logger) *Gate {
	return &Gate{
		Store:         store,
		Nav:           nav,
		Channel:       channel,
		Splash:        splash,
		Log:           logger,
		SplashCeiling: 3 * time.Second,
		ready:         make(chan struct{}),
	}
}

// Ready returns a channel closed once the splash has been dismissed.
func (g *Gate) Ready() <-chan struct{} {
	return g.ready
}

// Run performs the launch sequence. route is the screen the app opened
// on. Run returns once the splash is down; the session verdict may be
// applied later if the check outlasts the ceiling.
func (g *Gate) Run(ctx context.Context, route navigation.Target) {
	checked := make(chan struct{})

	go func() {
		defer close(checked)
		g.check(ctx, route)
	}()

	ceiling := tasks.After(ctx, g.SplashCeiling, func() {})
	defer ceiling.Cancel()

	select {
	case <-checked:
	case <-ceiling.Done():
		g.Log.Debug("splash ceiling reached before session check")
	case <-ctx.Done():
	}

	g.dismissSplash()
}

// check loads the session and applies the routing verdict. It always
// dismisses the splash when it finishes, covering the branch where the
// check answers before the ceiling.
func (g *Gate) check(ctx context.Context, route navigation.Target) {
	defer g.dismissSplash()

	sess, ok, err := g.Store.LoadSession(ctx)
	if err != nil {
		// Fail open: an unreadable store means sign-in, not a dead app.
		g.Log.Warn("session check failed, treating as signed out", zap.Error(err))
		return
	}
	if !ok || !sess.Authenticated() {
		g.Log.Debug("no stored session")
		return
	}

	g.mu.Lock()
	g.session = sess
	g.loaded = true
	g.mu.Unlock()

	// Redirect only off the unauthenticated surface. A principal deep
	// in the app stays where they are.
	if navigation.IsUnauthenticatedRoute(route) {
		g.redirect.Do(func() {
			g.Nav.Replace(navigation.RouteHome, nil)
		})
	}

	g.startChannel(ctx, sess)
}

func (g *Gate) dismissSplash() {
	g.dismiss.Do(func() {
		g.Splash.Dismiss()
		close(g.ready)
	})
}

// HandleRouteChange re-applies the gate when the host switches routes,
// covering deep links into the sign-in surface after launch. It reads
// the store again rather than trusting the launch snapshot, so a
// session persisted after launch (wizard completion) redirects and
// brings the channel up without an app restart.
func (g *Gate) HandleRouteChange(ctx context.Context, route navigation.Target) {
	sess, ok, err := g.Store.LoadSession(ctx)
	if err != nil {
		// Same fail-open rule as launch.
		g.Log.Warn("route-change session check failed, treating as signed out", zap.Error(err))
		return
	}
	if !ok || !sess.Authenticated() {
		return
	}

	g.mu.Lock()
	g.session = sess
	g.loaded = true
	g.mu.Unlock()

	if navigation.IsUnauthenticatedRoute(route) {
		g.Nav.Replace(navigation.RouteHome, nil)
	}

	g.startChannel(ctx, sess)
}

// Session returns the loaded session and whether one was found.
func (g *Gate) Session() (models.Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session, g.loaded
}

/*─────────────────────────────────────────────────────────────────────────────*
| Realtime channel                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// startChannel connects the push channel and registers the gate's two
// listeners: one logs foreground deliveries, one routes notification
// taps. A connect failure is logged and the app runs without push;
// listeners already registered mean the channel is up and this is a
// no-op, so repeated route changes never double deliveries.
func (g *Gate) startChannel(ctx context.Context, sess models.Session) {
	g.mu.Lock()
	up := len(g.listenerIDs) > 0
	g.mu.Unlock()
	if up {
		return
	}

	if err := g.Channel.Connect(ctx, sess.Profile.ID); err != nil {
		g.Log.Warn("realtime connect failed", zap.Error(err))
		return
	}

	foregroundID := uuid.NewString()
	tapID := uuid.NewString()

	g.Channel.OnNotification(foregroundID, func(ev models.NotificationEvent) {
		g.Log.Info("notification received",
			zap.String("title", ev.Title),
			zap.String("type", ev.Type))
	})
	g.Channel.OnNotification(tapID, func(ev models.NotificationEvent) {
		if ev.RelatedItem == "" {
			return
		}
		g.Nav.Navigate(navigation.RouteNotifications, navigation.Params{
			"item": ev.RelatedItem,
		})
	})

	g.mu.Lock()
	g.listenerIDs = []string{foregroundID, tapID}
	g.mu.Unlock()
}

// Close removes the gate's listeners and drops the channel. Listener
// removal happens even when the disconnect fails, so a re-opened gate
// never doubles deliveries.
func (g *Gate) Close() {
	g.mu.Lock()
	ids := g.listenerIDs
	g.listenerIDs = nil
	g.mu.Unlock()

	for _, id := range ids {
		g.Channel.OffNotification(id)
	}
	g.Channel.Disconnect()
}

// SignOut clears the stored session and tears the channel down, then
// sends the user to sign-in.
func (g *Gate) SignOut(ctx context.Context) error {
	g.Close()

	if err := g.Store.ClearSession(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	g.session = models.Session{}
	g.loaded = false
	g.mu.Unlock()

	g.Nav.Replace(navigation.RouteSignIn, nil)
	return nil
}
