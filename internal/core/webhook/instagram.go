package webhook

import (
	"encoding/json"
	"time"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
)

// InstagramParser understands Instagram Messaging webhook envelopes.
type InstagramParser struct{}

type igEnvelope struct {
	Object string    `json:"object" validate:"required,eq=instagram"`
	Entry  []igEntry `json:"entry" validate:"required,min=1,dive"`
}

type igEntry struct {
	ID        string        `json:"id" validate:"required"`
	Time      int64         `json:"time"`
	Messaging []igMessaging `json:"messaging" validate:"dive"`
}

type igMessaging struct {
	Sender struct {
		ID string `json:"id" validate:"required"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64      `json:"timestamp"`
	Message   *igMessage `json:"message,omitempty"`
	Postback  *struct {
		MID     string `json:"mid"`
		Title   string `json:"title"`
		Payload string `json:"payload"`
	} `json:"postback,omitempty"`
}

type igMessage struct {
	MID         string `json:"mid"`
	Text        string `json:"text"`
	IsEcho      bool   `json:"is_echo,omitempty"`
	IsDeleted   bool   `json:"is_deleted,omitempty"`
	Attachments []struct {
		Type    string `json:"type"`
		Payload struct {
			URL string `json:"url"`
		} `json:"payload"`
	} `json:"attachments,omitempty"`
	QuickReply *struct {
		Payload string `json:"payload"`
	} `json:"quick_reply,omitempty"`
	ReplyTo map[string]interface{} `json:"reply_to,omitempty"`
}

func (InstagramParser) Channel() channel.Channel { return channel.Instagram }

func (InstagramParser) AccountIDs(raw []byte) []string {
	var env igEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	var ids []string
	for _, e := range env.Entry {
		ids = appendUnique(ids, e.ID)
	}
	return ids
}

func (p InstagramParser) Parse(raw []byte) (*Envelope, error) {
	var env igEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, invalid("decode: %v", err)
	}
	if err := validate.Struct(env); err != nil {
		return nil, invalid("%v", err)
	}

	out := &Envelope{Channel: channel.Instagram, AccountIDs: p.AccountIDs(raw)}
	for _, entry := range env.Entry {
		for _, ev := range entry.Messaging {
			msg, ok := normalizeInstagram(entry.ID, ev)
			if !ok {
				out.Ignored++
				continue
			}
			out.Events = append(out.Events, msg)
		}
	}
	return out, nil
}

// normalizeInstagram maps postbacks, quick replies, attachments and plain
// text onto the canonical message. Echoes of our own sends, deletions and
// read/delivery receipts are not ingested.
func normalizeInstagram(accountID string, ev igMessaging) (InboundMessage, bool) {
	msg := InboundMessage{
		Channel:   channel.Instagram,
		AccountID: accountID,
		From:      ev.Sender.ID,
		Timestamp: unixMillis(ev.Timestamp),
		Metadata:  map[string]interface{}{},
	}
	if ev.Sender.ID == accountID {
		return msg, false
	}

	switch {
	case ev.Postback != nil:
		msg.ProviderMessageID = ev.Postback.MID
		msg.Type, msg.Content = TypeText, ev.Postback.Title
		msg.Metadata["button"] = map[string]string{"id": ev.Postback.Payload, "title": ev.Postback.Title}

	case ev.Message != nil && (ev.Message.IsEcho || ev.Message.IsDeleted):
		return msg, false

	case ev.Message != nil && len(ev.Message.Attachments) > 0:
		m := ev.Message
		msg.ProviderMessageID = m.MID
		att := m.Attachments[0]
		switch att.Type {
		case "image":
			msg.Type = TypeImage
		case "video", "ig_reel", "reel":
			msg.Type = TypeVideo
		case "audio":
			msg.Type = TypeAudio
		case "file":
			msg.Type = TypeDocument
		default:
			msg.Type = TypeUnsupported
			msg.Metadata["provider_type"] = att.Type
		}
		msg.Content = att.Payload.URL
		msg.Metadata["media_url"] = att.Payload.URL
		if m.Text != "" {
			msg.Metadata["caption"] = m.Text
		}

	case ev.Message != nil && ev.Message.MID != "":
		m := ev.Message
		msg.ProviderMessageID = m.MID
		msg.Type, msg.Content = TypeText, m.Text
		if m.QuickReply != nil {
			msg.Metadata["quick_reply"] = map[string]string{"payload": m.QuickReply.Payload}
		}
		if m.ReplyTo != nil {
			msg.Metadata["reply_to"] = m.ReplyTo
		}

	default:
		return msg, false
	}

	if msg.ProviderMessageID == "" {
		return msg, false
	}
	return msg, true
}

func unixMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
