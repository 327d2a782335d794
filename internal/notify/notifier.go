// Package notify delivers budget alerts to the user out of band.
package notify

import "context"

// Notifier pushes an alert message to whatever channel the user
// configured. Delivery is best effort; callers must not fail the
// operation that raised the alert when delivery fails.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
