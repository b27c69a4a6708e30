package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
)

// WhatsAppParser understands WhatsApp Cloud API webhook envelopes.
type WhatsAppParser struct{}

type waEnvelope struct {
	Object string    `json:"object" validate:"required,eq=whatsapp_business_account"`
	Entry  []waEntry `json:"entry" validate:"required,min=1,dive"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes" validate:"dive"`
}

type waChange struct {
	Field string  `json:"field" validate:"required"`
	Value waValue `json:"value"`
}

type waContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

type waValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []waContact `json:"contacts"`
	Messages []waMessage `json:"messages" validate:"dive"`
	Statuses []waStatus  `json:"statuses" validate:"dive"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
	Animated bool   `json:"animated,omitempty"`
}

type waReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type waMessage struct {
	From      string                 `json:"from" validate:"required"`
	ID        string                 `json:"id" validate:"required"`
	Timestamp string                 `json:"timestamp"`
	Type      string                 `json:"type" validate:"required"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *waMedia `json:"image,omitempty"`
	Video    *waMedia `json:"video,omitempty"`
	Audio    *waMedia `json:"audio,omitempty"`
	Document *waMedia `json:"document,omitempty"`
	Sticker  *waMedia `json:"sticker,omitempty"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Name      string  `json:"name,omitempty"`
		Address   string  `json:"address,omitempty"`
	} `json:"location,omitempty"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
	Interactive *struct {
		Type        string   `json:"type"`
		ButtonReply *waReply `json:"button_reply,omitempty"`
		ListReply   *waReply `json:"list_reply,omitempty"`
		NfmReply    *struct {
			Name         string `json:"name"`
			Body         string `json:"body"`
			ResponseJSON string `json:"response_json"`
		} `json:"nfm_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Contacts []struct {
		Name struct {
			FormattedName string `json:"formatted_name"`
		} `json:"name"`
		Phones []struct {
			Phone string `json:"phone"`
		} `json:"phones"`
	} `json:"contacts,omitempty"`
}

type waStatus struct {
	ID          string `json:"id" validate:"required"`
	Status      string `json:"status" validate:"required"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors,omitempty"`
}

func (WhatsAppParser) Channel() channel.Channel { return channel.WhatsApp }

// AccountIDs returns the phone-number ids and business-account ids of a body,
// phone-number ids first.
func (WhatsAppParser) AccountIDs(raw []byte) []string {
	var env waEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	var ids []string
	for _, e := range env.Entry {
		for _, c := range e.Changes {
			ids = appendUnique(ids, c.Value.Metadata.PhoneNumberID)
		}
	}
	for _, e := range env.Entry {
		ids = appendUnique(ids, e.ID)
	}
	return ids
}

func (p WhatsAppParser) Parse(raw []byte) (*Envelope, error) {
	var env waEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, invalid("decode: %v", err)
	}
	if err := validate.Struct(env); err != nil {
		return nil, invalid("%v", err)
	}

	out := &Envelope{Channel: channel.WhatsApp, AccountIDs: p.AccountIDs(raw)}
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				out.Ignored++
				continue
			}
			v := change.Value
			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range v.Messages {
				msg, ok := normalizeWhatsApp(m)
				if !ok {
					out.Ignored++
					continue
				}
				msg.AccountID = v.Metadata.PhoneNumberID
				msg.DisplayPhone = v.Metadata.DisplayPhoneNumber
				msg.ContactName = contactName(names, v.Contacts, m.From)
				out.Events = append(out.Events, msg)
			}
			for _, s := range v.Statuses {
				su := StatusUpdate{
					Channel:           channel.WhatsApp,
					AccountID:         v.Metadata.PhoneNumberID,
					ProviderMessageID: s.ID,
					Recipient:         s.RecipientID,
					Status:            strings.ToLower(s.Status),
					Timestamp:         unixSeconds(s.Timestamp),
				}
				if len(s.Errors) > 0 {
					su.ErrorCode = s.Errors[0].Code
					su.ErrorTitle = s.Errors[0].Title
				}
				out.Events = append(out.Events, su)
			}
		}
	}
	return out, nil
}

// normalizeWhatsApp is the single switch over WhatsApp message variants.
// Reactions are acknowledged but not ingested.
// contactName picks the profile of the sender. A lone contact whose wa_id is
// formatted differently from the sender still names it.
func contactName(names map[string]string, contacts []waContact, from string) string {
	if name, ok := names[from]; ok {
		return name
	}
	if len(contacts) == 1 {
		return contacts[0].Profile.Name
	}
	return ""
}

func normalizeWhatsApp(m waMessage) (InboundMessage, bool) {
	msg := InboundMessage{
		Channel:           channel.WhatsApp,
		ProviderMessageID: m.ID,
		From:              m.From,
		Timestamp:         unixSeconds(m.Timestamp),
		Metadata:          map[string]interface{}{},
	}
	if m.Context != nil {
		msg.Metadata["context"] = m.Context
	}

	switch {
	case m.Type == "reaction":
		return msg, false

	case m.Type == "text" && m.Text != nil:
		msg.Type, msg.Content = TypeText, m.Text.Body

	case m.Type == "image" && m.Image != nil:
		media(&msg, TypeImage, m.Image)
	case m.Type == "video" && m.Video != nil:
		media(&msg, TypeVideo, m.Video)
	case m.Type == "audio" && m.Audio != nil:
		media(&msg, TypeAudio, m.Audio)
		msg.Metadata["voice"] = m.Audio.Voice
	case m.Type == "document" && m.Document != nil:
		media(&msg, TypeDocument, m.Document)
		msg.Metadata["filename"] = m.Document.Filename
	case m.Type == "sticker" && m.Sticker != nil:
		media(&msg, TypeSticker, m.Sticker)
		msg.Metadata["animated"] = m.Sticker.Animated

	case m.Type == "location" && m.Location != nil:
		msg.Type = TypeLocation
		loc, _ := json.Marshal(map[string]float64{"latitude": m.Location.Latitude, "longitude": m.Location.Longitude})
		msg.Content = string(loc)
		msg.Metadata["name"] = m.Location.Name
		msg.Metadata["address"] = m.Location.Address

	case m.Type == "button" && m.Button != nil:
		msg.Type, msg.Content = TypeText, m.Button.Text
		msg.Metadata["button"] = map[string]string{"id": m.Button.Payload, "title": m.Button.Text}

	case m.Type == "interactive" && m.Interactive != nil:
		it := m.Interactive
		switch {
		case it.ButtonReply != nil:
			msg.Type, msg.Content = TypeText, it.ButtonReply.Title
			msg.Metadata["button"] = map[string]string{"id": it.ButtonReply.ID, "title": it.ButtonReply.Title}
		case it.ListReply != nil:
			msg.Type, msg.Content = TypeText, it.ListReply.Title
			msg.Metadata["list"] = map[string]string{"id": it.ListReply.ID, "title": it.ListReply.Title, "description": it.ListReply.Description}
		case it.NfmReply != nil:
			msg.Type, msg.Content = TypeInteractive, it.NfmReply.Body
			var data map[string]interface{}
			_ = json.Unmarshal([]byte(it.NfmReply.ResponseJSON), &data)
			msg.Metadata["interactive_type"] = "nfm_reply"
			msg.Metadata["nfm_reply"] = map[string]interface{}{"flow_name": it.NfmReply.Name, "response": data}
			if msg.Content == "" {
				msg.Content = "[Flow: " + it.NfmReply.Name + "]"
			}
		default:
			unsupported(&msg, "interactive:"+it.Type)
		}

	case m.Type == "contacts" && len(m.Contacts) > 0:
		names := make([]string, 0, len(m.Contacts))
		shared := make([]map[string]interface{}, 0, len(m.Contacts))
		for _, c := range m.Contacts {
			phones := make([]string, 0, len(c.Phones))
			for _, p := range c.Phones {
				phones = append(phones, p.Phone)
			}
			names = append(names, c.Name.FormattedName)
			shared = append(shared, map[string]interface{}{"name": c.Name.FormattedName, "phones": phones})
		}
		msg.Type = TypeText
		msg.Content = "[Contato compartilhado: " + strings.Join(names, ", ") + "]"
		msg.Metadata["contacts"] = shared

	default:
		unsupported(&msg, m.Type)
	}
	return msg, true
}

func media(msg *InboundMessage, t MessageType, m *waMedia) {
	msg.Type = t
	msg.Content = m.Caption
	msg.Metadata["media_id"] = m.ID
	msg.Metadata["mime_type"] = m.MimeType
	if m.SHA256 != "" {
		msg.Metadata["sha256"] = m.SHA256
	}
	if m.Caption != "" {
		msg.Metadata["caption"] = m.Caption
	}
}

func unsupported(msg *InboundMessage, providerType string) {
	msg.Type = TypeUnsupported
	msg.Content = fmt.Sprintf("[Tipo nao suportado: %s]", providerType)
	msg.Metadata["provider_type"] = providerType
}

func unixSeconds(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(n, 0).UTC()
}
