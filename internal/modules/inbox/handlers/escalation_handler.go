package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/repositories"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/services"
)

type EscalationHandler struct {
	escalations *services.EscalationService
	messages    *services.MessageService
}

func NewEscalationHandler(escalations *services.EscalationService, messages *services.MessageService) *EscalationHandler {
	return &EscalationHandler{escalations: escalations, messages: messages}
}

type statusRequest struct {
	Status models.EscalationStatus `json:"status" validate:"required,oneof=in_progress resolved cancelled"`
}

type lockRequest struct {
	Locked *bool `json:"locked" validate:"required"`
}

// CreateEscalation godoc
// @Summary Hand a contact's conversation to a human
// @Description Locks the agent, records the escalation and imports the prior transcript
// @Tags Escalations
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param payload body services.EscalationRequest true "Escalation"
// @Success 201 {object} services.EscalationResult
// @Failure 400 {object} map[string]interface{}
// @Router /api/escalations [post]
func (h *EscalationHandler) CreateEscalation(c *fiber.Ctx) error {
	var req services.EscalationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return validationError(c, err)
	}
	req.TenantID = tenantOf(c).String()
	if req.Actor == "" {
		req.Actor = actorOf(c)
	}

	res, err := h.escalations.CreateEscalation(c.UserContext(), req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// ListEscalations godoc
// @Summary List escalations
// @Tags Escalations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param status query string false "pending, in_progress, resolved or cancelled"
// @Param reason query string false "Reason"
// @Param unit query string false "Unit"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /api/escalations [get]
func (h *EscalationHandler) ListEscalations(c *fiber.Ctx) error {
	page, err := h.escalations.List(c.UserContext(), repositories.EscalationFilter{
		TenantID: tenantOf(c),
		Status:   models.EscalationStatus(c.Query("status")),
		Reason:   models.EscalationReason(c.Query("reason")),
		Unit:     c.Query("unit"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(page)
}

// EscalationStats godoc
// @Summary Escalation counts by status and reason
// @Tags Escalations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Success 200 {object} services.EscalationStats
// @Router /api/escalations/stats [get]
func (h *EscalationHandler) EscalationStats(c *fiber.Ctx) error {
	stats, err := h.escalations.Stats(c.UserContext(), tenantOf(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(stats)
}

// UpdateEscalationStatus godoc
// @Summary Move an escalation through its workflow
// @Tags Escalations
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Escalation ID"
// @Param payload body statusRequest true "New status"
// @Success 200 {object} models.Escalation
// @Failure 409 {object} map[string]interface{}
// @Router /api/escalations/{id}/status [patch]
func (h *EscalationHandler) UpdateEscalationStatus(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "invalid escalation id")
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	esc, err := h.escalations.UpdateStatus(c.UserContext(), tenantOf(c), id, req.Status, actorOf(c))
	if errors.Is(err, services.ErrInvalidTransition) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(esc)
}

// ToggleLock godoc
// @Summary Lock or unlock the automated agent on a conversation
// @Tags Conversations
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Param payload body lockRequest true "Lock state"
// @Success 200 {object} models.Conversation
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/conversations/{id}/lock [patch]
func (h *EscalationHandler) ToggleLock(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "invalid conversation id")
	}
	var req lockRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	conv, err := h.escalations.ToggleLock(c.UserContext(), tenantOf(c), id, *req.Locked, actorOf(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(conv)
}

// LockStatus godoc
// @Summary Whether the agent is locked for a contact
// @Tags Conversations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param contact query string true "Phone number or channel user id"
// @Success 200 {object} map[string]interface{}
// @Router /api/contacts/lock-status [get]
func (h *EscalationHandler) LockStatus(c *fiber.Ctx) error {
	contact := c.Query("contact")
	if contact == "" {
		return badRequest(c, "contact is required")
	}
	locked, err := h.escalations.IsLocked(c.UserContext(), tenantOf(c), contact)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"contact": contact, "locked": locked})
}

// ListConversations godoc
// @Summary List conversations
// @Tags Conversations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param status query string false "Status"
// @Param locked query bool false "Only locked or unlocked"
// @Param unit query string false "Unit"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /api/conversations [get]
func (h *EscalationHandler) ListConversations(c *fiber.Ctx) error {
	filter := repositories.ConversationFilter{
		TenantID: tenantOf(c),
		Status:   models.ConversationStatus(c.Query("status")),
		Unit:     c.Query("unit"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	}
	if v := c.Query("locked"); v != "" {
		locked := c.QueryBool("locked")
		filter.AgentLocked = &locked
	}
	page, err := h.escalations.ListConversations(c.UserContext(), filter)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(page)
}

// ConversationMessages godoc
// @Summary Messages of a conversation, oldest first
// @Tags Conversations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Param limit query int false "Max messages"
// @Success 200 {array} models.Message
// @Router /api/conversations/{id}/messages [get]
func (h *EscalationHandler) ConversationMessages(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "invalid conversation id")
	}
	msgs, err := h.messages.History(c.UserContext(), tenantOf(c), id, c.QueryInt("limit", 100))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(msgs)
}

// CloseConversation godoc
// @Summary Close a conversation
// @Tags Conversations
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.Conversation
// @Router /api/conversations/{id}/close [post]
func (h *EscalationHandler) CloseConversation(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "invalid conversation id")
	}
	conv, err := h.escalations.CloseConversation(c.UserContext(), tenantOf(c), id, actorOf(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(conv)
}
