package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/agent"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/notification"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/webhook"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/repositories"
)

var errDuplicate = errors.New("duplicate provider message id")

// AgentRunner is the automated attendant invoked for unlocked conversations.
type AgentRunner interface {
	HandleMessage(ctx context.Context, t *agent.Turn) agent.Outcome
}

// IngestResult describes what one inbound message changed.
type IngestResult struct {
	Duplicate           bool
	Contact             *models.Contact
	Conversation        *models.Conversation
	Message             *models.Message
	ConversationCreated bool
	AgentOutcome        *agent.Outcome
}

// IngestService consumes the inbound_message lane.
type IngestService struct {
	db       *gorm.DB
	tenants  *repositories.TenantRepo
	messages *repositories.MessageRepo
	notifier *notification.Service
	agent    AgentRunner
	now      func() time.Time
}

func NewIngestService(db *gorm.DB, notifier *notification.Service, runner AgentRunner) *IngestService {
	return &IngestService{
		db:       db,
		tenants:  repositories.NewTenantRepo(db),
		messages: repositories.NewMessageRepo(db),
		notifier: notifier,
		agent:    runner,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *IngestService) GetType() string { return JobIngestMessage }

// Handle decodes an InboundJob and ingests it.
func (s *IngestService) Handle(ctx context.Context, job *jobs.Job) error {
	var payload InboundJob
	if err := decode(job, &payload); err != nil {
		return err
	}
	_, err := s.Ingest(ctx, payload.TenantID, payload.Message)
	return err
}

// Ingest persists one inbound message and, when the conversation is not
// locked, hands it to the agent. Redelivery of a known provider message id is
// a no-op.
func (s *IngestService) Ingest(ctx context.Context, tenantID string, in webhook.InboundMessage) (*IngestResult, error) {
	tid, err := parseTenant(tenantID)
	if err != nil {
		return nil, err
	}
	if in.ProviderMessageID == "" || in.From == "" {
		return nil, jobs.Permanent(fmt.Errorf("inbound message without id or sender"))
	}

	logger := log.With().
		Str("tenant_id", tenantID).
		Str("channel", in.Channel.String()).
		Str("provider_message_id", in.ProviderMessageID).
		Logger()

	exists, err := s.messages.ExistsByProviderID(ctx, tid, in.ProviderMessageID)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		logger.Debug().Msg("Duplicate delivery ignored")
		return &IngestResult{Duplicate: true}, nil
	}

	ts := in.Timestamp.UTC()
	if in.Timestamp.IsZero() {
		ts = s.now()
	}

	res := &IngestResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contact, _, err := repositories.NewContactRepo(tx).FindOrCreate(ctx, &models.Contact{
			TenantID:    tid,
			Channel:     in.Channel.String(),
			ExternalID:  in.From,
			PhoneNumber: phoneOf(in.Channel, in.From),
			Name:        in.ContactName,
		})
		if err != nil {
			return err
		}

		convs := repositories.NewConversationRepo(tx)
		conv, created, err := convs.FindOrCreateActive(ctx, &models.Conversation{
			TenantID:      tid,
			ContactID:     contact.ID,
			Channel:       in.Channel.String(),
			Status:        models.ConversationBotHandling,
			Priority:      models.PriorityMedium,
			LastMessageAt: &ts,
		})
		if err != nil {
			return err
		}
		if !created {
			if err := convs.Touch(ctx, tid, conv.ID, ts); err != nil {
				return fmt.Errorf("touch conversation: %w", err)
			}
			if conv.LastMessageAt == nil || conv.LastMessageAt.Before(ts) {
				conv.LastMessageAt = &ts
			}
		}

		msg := &models.Message{
			TenantID:          tid,
			ConversationID:    conv.ID,
			Direction:         models.DirectionInbound,
			Type:              string(in.Type),
			Content:           in.Content,
			ProviderMessageID: in.ProviderMessageID,
			Status:            models.MessageReceived,
			Timestamp:         ts,
			Metadata:          toJSON(in.Metadata),
		}
		inserted, err := repositories.NewMessageRepo(tx).InsertIgnore(ctx, msg)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicate
		}

		conv.Contact = contact
		res.Contact, res.Conversation, res.Message, res.ConversationCreated = contact, conv, msg, created
		return nil
	})
	if errors.Is(err, errDuplicate) {
		logger.Debug().Msg("Duplicate delivery lost the insert race")
		return &IngestResult{Duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingest message: %w", err)
	}

	conv := res.Conversation
	if res.ConversationCreated {
		s.notifier.ConversationNew(tenantID, conv.Unit, conv)
	}
	s.notifier.MessageNew(tenantID, conv.Unit, res.Message)

	logger.Info().
		Str("conversation_id", conv.ID.String()).
		Str("type", string(in.Type)).
		Bool("agent_locked", conv.AgentLocked).
		Msg("Inbound message stored")

	if conv.AgentLocked || s.agent == nil {
		return res, nil
	}
	outcome := s.agent.HandleMessage(ctx, s.turn(ctx, tid, res, in))
	res.AgentOutcome = &outcome
	return res, nil
}

func (s *IngestService) turn(ctx context.Context, tid uuid.UUID, res *IngestResult, in webhook.InboundMessage) *agent.Turn {
	t := &agent.Turn{
		TenantID:       tid.String(),
		ConversationID: res.Conversation.ID.String(),
		ContactID:      res.Contact.ID.String(),
		Channel:        in.Channel,
		Recipient:      res.Contact.ExternalID,
		ContactName:    res.Contact.Name,
		Unit:           res.Conversation.Unit,
		MessageType:    in.Type,
		Content:        in.Content,
		Metadata:       in.Metadata,
	}
	if tenant, err := s.tenants.GetByID(ctx, tid); err == nil {
		t.SystemPrompt = tenant.AgentSystemPrompt
	} else {
		log.Warn().Err(err).Str("tenant_id", t.TenantID).Msg("Tenant prompt unavailable, using default")
	}
	return t
}

func phoneOf(ch channel.Channel, externalID string) string {
	if ch == channel.WhatsApp {
		return externalID
	}
	return ""
}

func toJSON(v interface{}) datatypes.JSON {
	switch m := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		if len(m) == 0 {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Msg("metadata not serializable, dropped")
		return nil
	}
	return datatypes.JSON(b)
}
