// internal/domain/models/notification.go
package models

// NotificationEvent is an ephemeral inbound event from the realtime
// channel. It is fanned out to registered listeners and to the device
// local-notification side effect; it is never persisted.
type NotificationEvent struct {
	Title       string `json:"title"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	RelatedItem string `json:"relatedItem"`
}
