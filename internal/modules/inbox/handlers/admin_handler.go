package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/audit"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/database"
)

// QueueAdmin is the operator view of the dispatch queue.
type QueueAdmin interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*jobs.Job, error)
	ListDead(ctx context.Context, tenantID string, limit, offset int) ([]jobs.Job, int64, error)
	Requeue(ctx context.Context, jobID uuid.UUID) (*jobs.Job, error)
	Cancel(ctx context.Context, jobID uuid.UUID) error
	Stats(ctx context.Context, tenantID string) (*jobs.JobStats, error)
}

// WebhookEventReader pages through recorded webhook bodies.
type WebhookEventReader interface {
	GetWebhookEvents(ctx context.Context, filter audit.WebhookEventFilter) (*database.Page[audit.WebhookEvent], error)
}

type AdminHandler struct {
	queue  QueueAdmin
	events WebhookEventReader
}

func NewAdminHandler(queue QueueAdmin, events WebhookEventReader) *AdminHandler {
	return &AdminHandler{queue: queue, events: events}
}

// ListDeadJobs godoc
// @Summary Dead-lettered dispatch jobs
// @Tags Queue
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /api/queue/dead [get]
func (h *AdminHandler) ListDeadJobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	items, total, err := h.queue.ListDead(c.UserContext(), tenantOf(c).String(), limit, offset)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"items": items, "total": total, "limit": limit, "offset": offset})
}

// RequeueJob godoc
// @Summary Move a dead job back to its lane
// @Tags Queue
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Job ID"
// @Success 200 {object} jobs.Job
// @Failure 404 {object} map[string]interface{}
// @Router /api/queue/dead/{id}/requeue [post]
func (h *AdminHandler) RequeueJob(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	job, err := h.queue.GetJob(c.UserContext(), id)
	if err == nil && job.TenantID != tenantOf(c).String() {
		err = jobs.ErrJobNotFound
	}
	if err == nil {
		job, err = h.queue.Requeue(c.UserContext(), id)
	}
	if errors.Is(err, jobs.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "dead job not found"})
	}
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(job)
}

// CancelJob godoc
// @Summary Withdraw a job that has not started
// @Description Pending and retrying jobs only; later jobs of the same contact are released
// @Tags Queue
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/queue/jobs/{id}/cancel [post]
func (h *AdminHandler) CancelJob(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	job, err := h.queue.GetJob(c.UserContext(), id)
	if err == nil && job.TenantID != tenantOf(c).String() {
		err = jobs.ErrJobNotFound
	}
	if err == nil {
		err = h.queue.Cancel(c.UserContext(), id)
	}
	if errors.Is(err, jobs.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "waiting job not found"})
	}
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "status": jobs.StatusCancelled})
}

// QueueStats godoc
// @Summary Dispatch queue counters
// @Tags Queue
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Success 200 {object} jobs.JobStats
// @Router /api/queue/stats [get]
func (h *AdminHandler) QueueStats(c *fiber.Ctx) error {
	stats, err := h.queue.Stats(c.UserContext(), tenantOf(c).String())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(stats)
}

// ListWebhookEvents godoc
// @Summary Received webhook bodies
// @Tags Webhook
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param provider query string false "whatsapp or instagram"
// @Param failed query bool false "Only bodies that failed processing"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /api/webhook-events [get]
func (h *AdminHandler) ListWebhookEvents(c *fiber.Ctx) error {
	page, err := h.events.GetWebhookEvents(c.UserContext(), audit.WebhookEventFilter{
		TenantID:   tenantOf(c).String(),
		Provider:   c.Query("provider"),
		OnlyFailed: c.QueryBool("failed"),
		Page:       c.QueryInt("page", 1),
		PageSize:   c.QueryInt("page_size", 20),
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(page)
}
