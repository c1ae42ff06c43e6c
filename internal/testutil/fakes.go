// Package testutil provides fakes for the engine's device-side and
// backend dependencies.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/memberlink/memberlink/internal/app/realtime"
	"github.com/memberlink/memberlink/internal/app/system/geo"
	"github.com/memberlink/memberlink/internal/app/system/navigation"
	"github.com/memberlink/memberlink/internal/domain/models"
)

// NavCall records one navigator invocation.
type NavCall struct {
	Op     string // "back", "navigate", "replace"
	Target navigation.Target
	Params navigation.Params
}

// FakeNavigator records navigation calls for assertion.
type FakeNavigator struct {
	mu    sync.Mutex
	Calls []NavCall
}

func (n *FakeNavigator) GoBack() {
	n.record(NavCall{Op: "back"})
}

func (n *FakeNavigator) Navigate(target navigation.Target, params navigation.Params) {
	n.record(NavCall{Op: "navigate", Target: target, Params: params})
}

func (n *FakeNavigator) Replace(target navigation.Target, params navigation.Params) {
	n.record(NavCall{Op: "replace", Target: target, Params: params})
}

func (n *FakeNavigator) record(c NavCall) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, c)
}

// Recorded returns a snapshot of the calls so far.
func (n *FakeNavigator) Recorded() []NavCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NavCall, len(n.Calls))
	copy(out, n.Calls)
	return out
}

// FakeSplash counts dismissals.
type FakeSplash struct {
	mu        sync.Mutex
	Dismissed int
}

func (s *FakeSplash) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Dismissed++
}

// Count returns how many times the splash was dismissed.
func (s *FakeSplash) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Dismissed
}

// FakeChannel is an in-memory realtime channel.
type FakeChannel struct {
	mu        sync.Mutex
	Connected bool
	Principal string
	ConnectN  int
	listeners map[string]realtime.Listener

	// ConnectErr, when set, makes Connect fail.
	ConnectErr error
}

func (c *FakeChannel) Connect(ctx context.Context, principalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.Connected = true
	c.Principal = principalID
	c.ConnectN++
	return nil
}

func (c *FakeChannel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Connected = false
}

func (c *FakeChannel) OnNotification(id string, fn realtime.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = make(map[string]realtime.Listener)
	}
	c.listeners[id] = fn
}

func (c *FakeChannel) OffNotification(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

// ListenerCount returns how many listeners are registered.
func (c *FakeChannel) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Emit delivers an event to every registered listener.
func (c *FakeChannel) Emit(ev models.NotificationEvent) {
	c.mu.Lock()
	fns := make([]realtime.Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// FakeLocation is a scriptable location provider.
type FakeLocation struct {
	Denied bool
	Coords models.Coordinates
	Err    error
}

func (l *FakeLocation) RequestPermission(ctx context.Context) error {
	if l.Denied {
		return geo.ErrPermissionDenied
	}
	return nil
}

func (l *FakeLocation) Current(ctx context.Context) (models.Coordinates, error) {
	if l.Err != nil {
		return models.Coordinates{}, l.Err
	}
	return l.Coords, nil
}

// FakeGeocoder resolves lookups from a script. A lookup whose key has
// an entry in Block waits on that channel before returning, so tests
// can force results to land out of order.
type FakeGeocoder struct {
	mu sync.Mutex
	// Results maps Key(lat, lon) to the draft returned.
	Results map[string]models.AddressDraft
	// Block maps Key(lat, lon) to a gate the lookup waits on.
	Block map[string]chan struct{}
	Calls int
}

func (g *FakeGeocoder) Reverse(ctx context.Context, lat, lon float64) (models.AddressDraft, error) {
	key := Key(lat, lon)

	g.mu.Lock()
	g.Calls++
	d, ok := g.Results[key]
	gate := g.Block[key]
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.AddressDraft{}, ctx.Err()
		}
	}
	if !ok {
		d = models.AddressDraft{City: key, Latitude: lat, Longitude: lon}
	}
	return d, nil
}

// Key formats coordinates the way FakeGeocoder.Results is keyed.
func Key(lat, lon float64) string {
	return fmt.Sprintf("%.1f,%.1f", lat, lon)
}
