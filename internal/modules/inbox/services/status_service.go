package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/notification"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/webhook"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/repositories"
)

var providerStatuses = map[string]models.MessageStatus{
	"sent":      models.MessageSent,
	"delivered": models.MessageDelivered,
	"read":      models.MessageRead,
	"failed":    models.MessageFailed,
}

// StatusService consumes the status_update lane.
type StatusService struct {
	messages *repositories.MessageRepo
	convs    *repositories.ConversationRepo
	notifier *notification.Service
}

// ErrUnknownMessage means no saved message carries the reported provider id.
var ErrUnknownMessage = errors.New("status for unknown message")

func NewStatusService(db *gorm.DB, notifier *notification.Service) *StatusService {
	return &StatusService{
		messages: repositories.NewMessageRepo(db),
		convs:    repositories.NewConversationRepo(db),
		notifier: notifier,
	}
}

func (s *StatusService) GetType() string { return JobApplyStatus }

func (s *StatusService) Handle(ctx context.Context, job *jobs.Job) error {
	var payload StatusJob
	if err := decode(job, &payload); err != nil {
		return err
	}
	_, err := s.Apply(ctx, payload.TenantID, payload.Status)
	if errors.Is(err, ErrUnknownMessage) && job.Attempts >= job.MaxAttempts {
		// the message was never saved here; give up without dead-lettering
		log.Warn().
			Str("tenant_id", payload.TenantID).
			Str("provider_message_id", payload.Status.ProviderMessageID).
			Str("status", payload.Status.Status).
			Int("attempts", job.Attempts).
			Msg("Status for unknown message dropped")
		return nil
	}
	return err
}

// Apply moves an outbound message forward to the reported status. Backward
// moves and unknown statuses are ignored. A status for a message not saved
// yet returns ErrUnknownMessage so the job is retried after the send commits.
func (s *StatusService) Apply(ctx context.Context, tenantID string, su webhook.StatusUpdate) (bool, error) {
	tid, err := parseTenant(tenantID)
	if err != nil {
		return false, err
	}
	status, ok := providerStatuses[strings.ToLower(su.Status)]
	if !ok {
		log.Debug().Str("status", su.Status).Msg("Unknown delivery status ignored")
		return false, nil
	}

	msg, err := s.messages.FindByProviderID(ctx, tid, su.ProviderMessageID)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", ErrUnknownMessage, su.ProviderMessageID)
	}
	if err != nil {
		return false, fmt.Errorf("find message: %w", err)
	}

	advanced, err := s.messages.AdvanceStatus(ctx, msg, status)
	if err != nil {
		return false, fmt.Errorf("update message status: %w", err)
	}
	if !advanced {
		return false, nil
	}

	if status == models.MessageFailed {
		log.Warn().
			Str("tenant_id", tenantID).
			Str("provider_message_id", su.ProviderMessageID).
			Int("error_code", su.ErrorCode).
			Str("error", su.ErrorTitle).
			Msg("Outbound message failed at provider")
	}
	var unit string
	if conv, err := s.convs.GetByID(ctx, tid, msg.ConversationID); err == nil {
		unit = conv.Unit
	}
	s.notifier.MessageStatus(tenantID, unit, msg)
	return true, nil
}
