package notification

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	EventConversationNew     = "conversation:new"
	EventConversationUpdated = "conversation:updated"
	EventEscalationNew       = "escalation:new"
	EventMessageNew          = "message:new"
	EventMessageStatus       = "message:status"
)

// Publisher is satisfied by Hub.
type Publisher interface {
	Publish(ev Event, rooms ...string) int
}

func TenantRoom(tenantID string) string {
	return fmt.Sprintf("tenant:%s", tenantID)
}

func UnitRoom(tenantID, unit string) string {
	return fmt.Sprintf("tenant:%s:unit:%s", tenantID, unit)
}

// Rooms lists the rooms an event of a tenant (and optional unit) goes to.
func Rooms(tenantID, unit string) []string {
	rooms := []string{TenantRoom(tenantID)}
	if unit != "" {
		rooms = append(rooms, UnitRoom(tenantID, unit))
	}
	return rooms
}

// Service emits domain events with the full entity snapshot as payload.
type Service struct {
	hub Publisher
}

func NewService(hub Publisher) *Service {
	return &Service{hub: hub}
}

func (s *Service) emit(name, tenantID, unit string, snapshot interface{}) {
	if s == nil || s.hub == nil {
		return
	}
	n := s.hub.Publish(Event{Name: name, TenantID: tenantID, Data: snapshot}, Rooms(tenantID, unit)...)
	log.Debug().Str("event", name).Str("tenant_id", tenantID).Int("subscribers", n).Msg("Notification emitted")
}

func (s *Service) ConversationNew(tenantID, unit string, conversation interface{}) {
	s.emit(EventConversationNew, tenantID, unit, conversation)
}

func (s *Service) ConversationUpdated(tenantID, unit string, conversation interface{}) {
	s.emit(EventConversationUpdated, tenantID, unit, conversation)
}

func (s *Service) EscalationNew(tenantID, unit string, escalation interface{}) {
	s.emit(EventEscalationNew, tenantID, unit, escalation)
}

func (s *Service) MessageNew(tenantID, unit string, message interface{}) {
	s.emit(EventMessageNew, tenantID, unit, message)
}

func (s *Service) MessageStatus(tenantID, unit string, message interface{}) {
	s.emit(EventMessageStatus, tenantID, unit, message)
}
