// internal/app/realtime/realtime.go

// Package realtime maintains the push channel to the backend and fans
// incoming notification events out to registered listeners.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/memberlink/memberlink/internal/domain/models"
)

// Listener receives notification events from the channel.
type Listener func(models.NotificationEvent)

// LocalNotifier surfaces a notification on the device.
type LocalNotifier interface {
	Notify(title, message string)
}

// Manager owns the websocket connection to the realtime backend.
// Connect is idempotent and Disconnect always leaves the manager ready
// to reconnect. Channel failures are logged, never propagated; the app
// must keep working without the push channel.
type Manager struct {
	url      string
	dialer   *websocket.Dialer
	notifier LocalNotifier
	policy   *bluemonday.Policy
	log      *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	listeners map[string]Listener
}

// NewManager creates a manager dialing url (e.g. "wss://api.example.org/ws").
func NewManager(url string, notifier LocalNotifier, logger *zap.Logger) *Manager {
	return &Manager{
		url:       url,
		dialer:    websocket.DefaultDialer,
		notifier:  notifier,
		policy:    bluemonday.StrictPolicy(),
		log:       logger,
		listeners: make(map[string]Listener),
	}
}

type joinMessage struct {
	Event       string `json:"event"`
	PrincipalID string `json:"principalId"`
}

// Connect dials the backend and joins the principal's room. Calling it
// while already connected is a no-op.
func (m *Manager) Connect(ctx context.Context, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return nil
	}

	conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(joinMessage{Event: "join", PrincipalID: principalID}); err != nil {
		conn.Close()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.conn = conn
	m.cancel = cancel

	go m.readLoop(loopCtx, conn)

	m.log.Info("realtime channel connected", zap.String("principal", principalID))
	return nil
}

// Disconnect closes the channel and clears the connection so a later
// Connect starts fresh. Safe to call when not connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.conn == nil {
		return
	}
	m.cancel()
	m.conn.Close()
	m.conn = nil
	m.cancel = nil
	m.log.Info("realtime channel disconnected")
}

// Connected reports whether the channel is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// OnNotification registers a listener under id, replacing any existing
// listener with the same id.
func (m *Manager) OnNotification(id string, fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[id] = fn
}

// OffNotification removes the listener registered under id.
func (m *Manager) OffNotification(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			if ctx.Err() == nil {
				m.log.Warn("realtime read failed", zap.Error(err))
				m.mu.Lock()
				if m.conn == conn {
					m.closeLocked()
				}
				m.mu.Unlock()
			}
			return
		}

		var event models.NotificationEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			m.log.Warn("realtime event malformed", zap.Error(err))
			continue
		}
		m.dispatch(event)
	}
}

// dispatch sanitizes the event then delivers it to the local notifier
// and every registered listener. Fan-out runs outside the lock so a
// listener may unregister itself.
func (m *Manager) dispatch(event models.NotificationEvent) {
	event.Title = m.policy.Sanitize(event.Title)
	event.Message = m.policy.Sanitize(event.Message)

	if m.notifier != nil {
		m.notifier.Notify(event.Title, event.Message)
	}

	m.mu.Lock()
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}
