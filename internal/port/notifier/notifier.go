// Package notifier defines the notification port (interface) and capabilities.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// ErrNoRecipient is returned when a notification has no deliverable address.
var ErrNoRecipient = errors.New("notifier: no recipient")

// Notification is the payload sent through a Notifier.
type Notification struct {
	To       string            `json:"to"`
	Template string            `json:"template"` // e.g. "lease.sent_to_tenant", "lease.signed"
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Data     map[string]string `json:"data,omitempty"`
}

// Capabilities declares which features a notifier supports.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	DirectMessages bool `json:"direct_messages"`
}

// Notifier is the port interface for sending notifications.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "email").
	Name() string

	// Capabilities returns what this notifier supports.
	Capabilities() Capabilities

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}
