// Package notify delivers best-effort, out-of-band notices to grantees when
// a credential is shared with them. Delivery failure is never surfaced to
// the sharing caller; sharing success is independent of notification
// success.
package notify

import "context"

// Notification describes a single share notice.
type Notification struct {
	ToEmail         string
	FromDisplayName string
	CredentialTitle string
}

// Relay sends share notifications.
type Relay interface {
	Notify(ctx context.Context, n Notification) error
}

// Noop discards every notification. Used when no relay is configured.
type Noop struct{}

func (Noop) Notify(ctx context.Context, n Notification) error { return nil }
