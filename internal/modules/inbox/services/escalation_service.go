package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/agent"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/audit"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/notification"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/repositories"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/database"
)

// ErrInvalidTransition is returned when an escalation cannot move to the
// requested status from its current one.
var ErrInvalidTransition = errors.New("invalid escalation status transition")

// TranscriptTurn is one message of a conversation held elsewhere before the
// escalation.
type TranscriptTurn struct {
	Role      string     `json:"role" validate:"required,oneof=user assistant agent"`
	Content   string     `json:"content" validate:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type EscalationRequest struct {
	TenantID          string                  `json:"-"`
	Channel           string                  `json:"channel" validate:"required,oneof=whatsapp instagram"`
	ContactIdentifier string                  `json:"contact_identifier" validate:"required"`
	ContactName       string                  `json:"contact_name"`
	Reason            models.EscalationReason `json:"reason" validate:"required,oneof=user_requested agent_unable complex_query complaint sales_opportunity urgency other"`
	Detail            string                  `json:"detail"`
	Priority          models.Priority         `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Unit              string                  `json:"unit"`
	PriorTranscript   []TranscriptTurn        `json:"prior_transcript" validate:"omitempty,dive"`
	AgentContext      map[string]interface{}  `json:"agent_context"`
	Actor             string                  `json:"actor"`
}

type EscalationResult struct {
	Escalation          *models.Escalation   `json:"escalation"`
	Conversation        *models.Conversation `json:"conversation"`
	Contact             *models.Contact      `json:"contact"`
	ConversationCreated bool                 `json:"conversation_created"`
}

type EscalationStats struct {
	ByStatus map[string]int64 `json:"by_status"`
	ByReason map[string]int64 `json:"by_reason"`
}

// EscalationService hands conversations to humans and manages the agent lock.
type EscalationService struct {
	db          *gorm.DB
	escalations *repositories.EscalationRepo
	convs       *repositories.ConversationRepo
	contacts    *repositories.ContactRepo
	notifier    *notification.Service
	audit       *audit.Service
	now         func() time.Time
}

func NewEscalationService(db *gorm.DB, notifier *notification.Service, auditService *audit.Service) *EscalationService {
	return &EscalationService{
		db:          db,
		escalations: repositories.NewEscalationRepo(db),
		convs:       repositories.NewConversationRepo(db),
		contacts:    repositories.NewContactRepo(db),
		notifier:    notifier,
		audit:       auditService,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateEscalation locks the contact's active conversation (creating it if
// needed), records the escalation and imports any prior transcript. An
// already escalated conversation is reused.
func (s *EscalationService) CreateEscalation(ctx context.Context, req EscalationRequest) (*EscalationResult, error) {
	tid, err := uuid.Parse(req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	ch, ok := channel.Parse(req.Channel)
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", req.Channel)
	}
	if req.Priority == "" {
		req.Priority = models.PriorityHigh
	}
	if req.Actor == "" {
		req.Actor = "system"
	}
	now := s.now()

	res := &EscalationResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contacts := repositories.NewContactRepo(tx)
		contact, err := contacts.FindByIdentifier(ctx, tid, req.ContactIdentifier)
		if errors.Is(err, repositories.ErrNotFound) {
			contact, _, err = contacts.FindOrCreate(ctx, &models.Contact{
				TenantID:    tid,
				Channel:     ch.String(),
				ExternalID:  req.ContactIdentifier,
				PhoneNumber: phoneOf(ch, req.ContactIdentifier),
				Name:        req.ContactName,
			})
		}
		if err != nil {
			return fmt.Errorf("find contact: %w", err)
		}

		convs := repositories.NewConversationRepo(tx)
		conv, created, err := convs.FindOrCreateActive(ctx, &models.Conversation{
			TenantID:      tid,
			ContactID:     contact.ID,
			Channel:       contact.Channel,
			Status:        models.ConversationOpen,
			AgentLocked:   true,
			AgentLockedAt: &now,
			AgentLockedBy: req.Actor,
			Priority:      req.Priority,
			Unit:          req.Unit,
			LastMessageAt: &now,
		})
		if err != nil {
			return err
		}
		if !created {
			fields := map[string]interface{}{
				"status":          gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", models.ConversationBotHandling, models.ConversationOpen),
				"agent_locked":    true,
				"agent_locked_at": now,
				"agent_locked_by": req.Actor,
				"priority":        req.Priority,
				"last_message_at": now,
			}
			if req.Unit != "" {
				fields["unit"] = req.Unit
			}
			if err := convs.Update(ctx, tid, conv.ID, fields); err != nil {
				return fmt.Errorf("lock conversation: %w", err)
			}
			if conv, err = convs.GetByID(ctx, tid, conv.ID); err != nil {
				return err
			}
		}

		esc := &models.Escalation{
			TenantID:       tid,
			ConversationID: conv.ID,
			Reason:         req.Reason,
			Detail:         req.Detail,
			Status:         models.EscalationPending,
			Unit:           conv.Unit,
			AgentContext:   toJSON(req.AgentContext),
		}
		if err := repositories.NewEscalationRepo(tx).Create(ctx, esc); err != nil {
			return fmt.Errorf("create escalation: %w", err)
		}

		imported := transcriptMessages(tid, conv.ID, req.PriorTranscript, now)
		if err := repositories.NewMessageRepo(tx).CreateBatch(ctx, imported); err != nil {
			return fmt.Errorf("import transcript: %w", err)
		}

		conv.Contact = contact
		res.Escalation, res.Conversation, res.Contact, res.ConversationCreated = esc, conv, contact, created
		return nil
	})
	if err != nil {
		return nil, err
	}

	conv := res.Conversation
	if res.ConversationCreated {
		s.notifier.ConversationNew(req.TenantID, conv.Unit, conv)
	} else {
		s.notifier.ConversationUpdated(req.TenantID, conv.Unit, conv)
	}
	res.Escalation.Conversation = conv
	s.notifier.EscalationNew(req.TenantID, conv.Unit, res.Escalation)

	log.Info().
		Str("tenant_id", req.TenantID).
		Str("conversation_id", conv.ID.String()).
		Str("escalation_id", res.Escalation.ID.String()).
		Str("reason", string(req.Reason)).
		Int("imported", len(req.PriorTranscript)).
		Msg("Conversation escalated")
	return res, nil
}

// transcriptMessages keeps the transcript order; turns without a timestamp
// get now-(n-i)s so they stay strictly increasing and before now.
func transcriptMessages(tenantID, conversationID uuid.UUID, turns []TranscriptTurn, now time.Time) []models.Message {
	out := make([]models.Message, 0, len(turns))
	n := len(turns)
	for i, turn := range turns {
		ts := now.Add(-time.Duration(n-i) * time.Second)
		if turn.Timestamp != nil {
			ts = turn.Timestamp.UTC()
		}
		direction := models.DirectionOutbound
		if turn.Role == "user" {
			direction = models.DirectionInbound
		}
		out = append(out, models.Message{
			TenantID:       tenantID,
			ConversationID: conversationID,
			Direction:      direction,
			Type:           "text",
			Content:        turn.Content,
			Status:         models.MessageDelivered,
			Timestamp:      ts,
			Metadata:       toJSON(map[string]interface{}{"imported_from": "escalation", "role": turn.Role}),
		})
	}
	return out
}

// Escalate lets the agent hand a conversation over.
func (s *EscalationService) Escalate(ctx context.Context, req agent.EscalationRequest) error {
	_, err := s.CreateEscalation(ctx, EscalationRequest{
		TenantID:          req.TenantID,
		Channel:           req.Channel.String(),
		ContactIdentifier: req.ContactIdentifier,
		ContactName:       req.ContactName,
		Reason:            models.EscalationReason(req.Reason),
		Detail:            req.Detail,
		Unit:              req.Unit,
		AgentContext:      req.AgentContext,
		Actor:             "agent",
	})
	return err
}

// ToggleLock sets the agent lock of a conversation. Repeating the same value
// is harmless.
func (s *EscalationService) ToggleLock(ctx context.Context, tenantID, conversationID uuid.UUID, locked bool, actor string) (*models.Conversation, error) {
	if err := s.convs.SetLock(ctx, tenantID, conversationID, locked, actor, s.now()); err != nil {
		return nil, err
	}
	conv, err := s.convs.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		action := "unlock"
		if locked {
			action = "lock"
		}
		err := s.audit.LogChange(ctx, tenantID.String(), actor, action, "conversation", conversationID.String(),
			nil, map[string]interface{}{"agent_locked": locked})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to audit lock toggle")
		}
	}
	s.notifier.ConversationUpdated(tenantID.String(), conv.Unit, conv)
	return conv, nil
}

// IsLocked reports whether the agent may not answer a contact right now.
// Unknown contacts and contacts without an active conversation are unlocked.
func (s *EscalationService) IsLocked(ctx context.Context, tenantID uuid.UUID, contactIdentifier string) (bool, error) {
	contact, err := s.contacts.FindByIdentifier(ctx, tenantID, contactIdentifier)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	conv, err := s.convs.FindActive(ctx, tenantID, contact.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conv.AgentLocked, nil
}

var allowedFrom = map[models.EscalationStatus][]models.EscalationStatus{
	models.EscalationInProgress: {models.EscalationPending},
	models.EscalationResolved:   {models.EscalationPending, models.EscalationInProgress},
	models.EscalationCancelled:  {models.EscalationPending, models.EscalationInProgress},
}

// UpdateStatus moves an escalation through pending → in_progress → resolved,
// or to cancelled.
func (s *EscalationService) UpdateStatus(ctx context.Context, tenantID, escalationID uuid.UUID, status models.EscalationStatus, actor string) (*models.Escalation, error) {
	from, ok := allowedFrom[status]
	if !ok {
		return nil, ErrInvalidTransition
	}
	current, err := s.escalations.GetByID(ctx, tenantID, escalationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fields := map[string]interface{}{"status": status}
	switch status {
	case models.EscalationInProgress:
		fields["attended_by"] = actor
		fields["attended_at"] = now
	default:
		fields["resolved_at"] = now
	}

	// Taking an escalation also takes its conversation; both move or neither.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := repositories.NewEscalationRepo(tx).Transition(ctx, tenantID, escalationID, from, fields)
		if err != nil {
			return err
		}
		if !moved {
			return ErrInvalidTransition
		}
		if status != models.EscalationInProgress {
			return nil
		}
		err = repositories.NewConversationRepo(tx).Update(ctx, tenantID, current.ConversationID,
			map[string]interface{}{"status": models.ConversationInProgress})
		if err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if status == models.EscalationInProgress {
		if conv, err := s.convs.GetByID(ctx, tenantID, current.ConversationID); err == nil {
			s.notifier.ConversationUpdated(tenantID.String(), conv.Unit, conv)
		}
	}

	if s.audit != nil {
		err := s.audit.LogChange(ctx, tenantID.String(), actor, "status_change", "escalation", escalationID.String(),
			map[string]interface{}{"status": current.Status}, map[string]interface{}{"status": status})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to audit escalation status change")
		}
	}
	return s.escalations.GetByID(ctx, tenantID, escalationID)
}

func (s *EscalationService) List(ctx context.Context, filter repositories.EscalationFilter) (*database.Page[models.Escalation], error) {
	return s.escalations.List(ctx, filter)
}

func (s *EscalationService) Stats(ctx context.Context, tenantID uuid.UUID) (*EscalationStats, error) {
	byStatus, err := s.escalations.CountBy(ctx, tenantID, "status")
	if err != nil {
		return nil, err
	}
	byReason, err := s.escalations.CountBy(ctx, tenantID, "reason")
	if err != nil {
		return nil, err
	}
	return &EscalationStats{ByStatus: byStatus, ByReason: byReason}, nil
}

// CloseConversation ends a conversation; the contact's next message opens a
// new one.
func (s *EscalationService) CloseConversation(ctx context.Context, tenantID, conversationID uuid.UUID, actor string) (*models.Conversation, error) {
	if err := s.convs.Close(ctx, tenantID, conversationID, s.now()); err != nil {
		return nil, err
	}
	conv, err := s.convs.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		if err := s.audit.LogChange(ctx, tenantID.String(), actor, "close", "conversation", conversationID.String(), nil, nil); err != nil {
			log.Warn().Err(err).Msg("Failed to audit conversation close")
		}
	}
	s.notifier.ConversationUpdated(tenantID.String(), conv.Unit, conv)
	return conv, nil
}

func (s *EscalationService) ListConversations(ctx context.Context, filter repositories.ConversationFilter) (*database.Page[models.Conversation], error) {
	return s.convs.List(ctx, filter)
}
