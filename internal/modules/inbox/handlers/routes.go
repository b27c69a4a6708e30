package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Handlers groups everything RegisterRoutes mounts. Nil handlers are skipped.
type Handlers struct {
	Webhook    *WebhookHandler
	Escalation *EscalationHandler
	Admin      *AdminHandler
	Realtime   *RealtimeHandler
	Channel    *ChannelHandler
	Health     *HealthHandler
}

func RegisterRoutes(app *fiber.App, h Handlers) {
	if h.Health != nil {
		app.Get("/health", h.Health.GetHealth)
	}
	if h.Webhook != nil {
		app.Get("/webhooks/:provider", h.Webhook.Verify)
		app.Post("/webhooks/:provider", h.Webhook.Receive)
	}

	api := app.Group("/api", RequireTenant())
	if h.Escalation != nil {
		api.Post("/escalations", h.Escalation.CreateEscalation)
		api.Get("/escalations", h.Escalation.ListEscalations)
		api.Get("/escalations/stats", h.Escalation.EscalationStats)
		api.Patch("/escalations/:id/status", h.Escalation.UpdateEscalationStatus)

		api.Get("/conversations", h.Escalation.ListConversations)
		api.Get("/conversations/:id/messages", h.Escalation.ConversationMessages)
		api.Patch("/conversations/:id/lock", h.Escalation.ToggleLock)
		api.Post("/conversations/:id/close", h.Escalation.CloseConversation)
		api.Get("/contacts/lock-status", h.Escalation.LockStatus)
	}
	if h.Admin != nil {
		api.Get("/queue/dead", h.Admin.ListDeadJobs)
		api.Post("/queue/dead/:id/requeue", h.Admin.RequeueJob)
		api.Post("/queue/jobs/:id/cancel", h.Admin.CancelJob)
		api.Get("/queue/stats", h.Admin.QueueStats)
		api.Get("/webhook-events", h.Admin.ListWebhookEvents)
	}
	if h.Realtime != nil {
		api.Get("/realtime", h.Realtime.Stream)
	}
	if h.Channel != nil {
		api.Get("/channels/whatsapp/qr", h.Channel.WhatsAppQR)
	}
}
