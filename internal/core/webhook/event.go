// Package webhook turns provider-native webhook envelopes into canonical
// events. All provider-specific branching lives here; the rest of the
// pipeline only sees InboundMessage and StatusUpdate.
package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
)

// ErrInvalidPayload marks an envelope that matches no known schema.
var ErrInvalidPayload = errors.New("invalid webhook payload")

var validate = validator.New()

// Kind tags the canonical event variants.
type Kind string

const (
	KindInboundMessage Kind = "inbound_message"
	KindStatusUpdate   Kind = "status_update"
)

// MessageType is the canonical message type shared by every channel.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeImage       MessageType = "image"
	TypeVideo       MessageType = "video"
	TypeAudio       MessageType = "audio"
	TypeDocument    MessageType = "document"
	TypeLocation    MessageType = "location"
	TypeInteractive MessageType = "interactive"
	TypeSticker     MessageType = "sticker"
	TypeUnsupported MessageType = "unsupported"
)

// Event is implemented by InboundMessage and StatusUpdate only.
type Event interface {
	Kind() Kind
	// Subject is the external identity the event is about; the dispatch
	// partition key is derived from it.
	Subject() string
}

// InboundMessage is one message sent by a contact to a tenant.
type InboundMessage struct {
	Channel           channel.Channel        `json:"channel"`
	AccountID         string                 `json:"account_id"`
	DisplayPhone      string                 `json:"display_phone,omitempty"`
	ProviderMessageID string                 `json:"provider_message_id"`
	From              string                 `json:"from"`
	ContactName       string                 `json:"contact_name,omitempty"`
	Type              MessageType            `json:"type"`
	Content           string                 `json:"content"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Timestamp         time.Time              `json:"timestamp"`
}

func (InboundMessage) Kind() Kind { return KindInboundMessage }
func (m InboundMessage) Subject() string { return m.From }

// StatusUpdate reports the delivery state of an outbound message.
type StatusUpdate struct {
	Channel           channel.Channel `json:"channel"`
	AccountID         string          `json:"account_id"`
	ProviderMessageID string          `json:"provider_message_id"`
	Recipient         string          `json:"recipient"`
	Status            string          `json:"status"`
	Timestamp         time.Time       `json:"timestamp"`
	ErrorCode         int             `json:"error_code,omitempty"`
	ErrorTitle        string          `json:"error_title,omitempty"`
}

func (StatusUpdate) Kind() Kind { return KindStatusUpdate }
func (s StatusUpdate) Subject() string { return s.Recipient }

// Envelope is the parse result of one webhook request body.
type Envelope struct {
	Channel    channel.Channel
	AccountIDs []string
	Events     []Event
	// Ignored counts entries that were understood but carry nothing to
	// process (account updates, echoes, reactions, read receipts).
	Ignored int
}

// Parser is the per-provider normalization boundary.
type Parser interface {
	Channel() channel.Channel
	// AccountIDs extracts routing identifiers without validating the body.
	AccountIDs(raw []byte) []string
	Parse(raw []byte) (*Envelope, error)
}

// ParserFor returns the parser of a channel.
func ParserFor(ch channel.Channel) (Parser, bool) {
	switch ch {
	case channel.WhatsApp:
		return WhatsAppParser{}, true
	case channel.Instagram:
		return InstagramParser{}, true
	}
	return nil, false
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

func appendUnique(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
