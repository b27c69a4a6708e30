package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/agent"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/notification"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/repositories"
)

// MessageService records outbound messages and serves conversation history.
type MessageService struct {
	db       *gorm.DB
	messages *repositories.MessageRepo
	convs    *repositories.ConversationRepo
	notifier *notification.Service
	now      func() time.Time
}

func NewMessageService(db *gorm.DB, notifier *notification.Service) *MessageService {
	return &MessageService{
		db:       db,
		messages: repositories.NewMessageRepo(db),
		convs:    repositories.NewConversationRepo(db),
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SaveOutbound stores an agent reply and bumps the conversation's activity.
func (s *MessageService) SaveOutbound(ctx context.Context, out agent.OutboundMessage) error {
	tid, err := uuid.Parse(out.TenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}
	cid, err := uuid.Parse(out.ConversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}

	status := models.MessageSent
	meta := map[string]interface{}{"source": "agent", "rule": out.Rule}
	if out.Failed {
		status = models.MessageFailed
		meta["error"] = out.Error
	}

	now := s.now()
	msg := &models.Message{
		TenantID:          tid,
		ConversationID:    cid,
		Direction:         models.DirectionOutbound,
		Type:              "text",
		Content:           out.Content,
		ProviderMessageID: out.ProviderMessageID,
		Status:            status,
		Timestamp:         now,
		Metadata:          toJSON(meta),
	}

	var unit string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convs := repositories.NewConversationRepo(tx)
		conv, err := convs.GetByID(ctx, tid, cid)
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		unit = conv.Unit
		if err := repositories.NewMessageRepo(tx).Create(ctx, msg); err != nil {
			return fmt.Errorf("save outbound message: %w", err)
		}
		return convs.Touch(ctx, tid, cid, now)
	})
	if err != nil {
		return err
	}

	s.notifier.MessageNew(out.TenantID, unit, msg)
	if out.Failed {
		log.Warn().Str("conversation_id", out.ConversationID).Str("error", out.Error).Msg("Agent reply not delivered")
	}
	return nil
}

// History returns a conversation's messages, oldest first.
func (s *MessageService) History(ctx context.Context, tenantID, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if _, err := s.convs.GetByID(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, tenantID, conversationID, limit)
}
