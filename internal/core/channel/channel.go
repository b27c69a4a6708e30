// Package channel defines the outbound delivery contract shared by every
// messaging surface, plus the router that dispatches to the concrete clients.
package channel

import (
	"context"
	"strings"
)

// Channel is an external messaging surface with its own payload shape and
// delivery API.
type Channel string

const (
	WhatsApp  Channel = "whatsapp"
	Instagram Channel = "instagram"
)

// Parse maps a path segment or config value onto a known channel.
func Parse(s string) (Channel, bool) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case WhatsApp:
		return WhatsApp, true
	case Instagram:
		return Instagram, true
	}
	return "", false
}

func (c Channel) String() string { return string(c) }

// SendResult is returned by a successful delivery.
type SendResult struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id"`
}

// Sender delivers outbound content to an external identity on a channel.
// Failures are *DeliveryError values.
type Sender interface {
	Send(ctx context.Context, ch Channel, tenantID, recipient, content string) (SendResult, error)
}

// Credentials are the per-tenant secrets a client needs to call its provider.
type Credentials struct {
	AccountID   string
	AccessToken string
}

// CredentialStore looks up the outbound credentials of a tenant on a channel.
type CredentialStore interface {
	OutboundCredentials(ctx context.Context, tenantID string, ch Channel) (Credentials, error)
}

// Client is implemented by each provider integration.
type Client interface {
	SendText(ctx context.Context, creds Credentials, recipient, text string) (string, error)
}
