package handlers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/repositories"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActor    = "X-Actor"
	localTenant    = "tenant_id"
)

var validate = validator.New()

// RequireTenant reads the tenant of an admin API call from X-Tenant-ID.
func RequireTenant() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(strings.TrimSpace(c.Get(HeaderTenantID)))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing or invalid " + HeaderTenantID + " header",
			})
		}
		c.Locals(localTenant, id)
		return c.Next()
	}
}

func tenantOf(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(localTenant).(uuid.UUID)
	return id
}

func actorOf(c *fiber.Ctx) string {
	if actor := strings.TrimSpace(c.Get(HeaderActor)); actor != "" {
		return actor
	}
	return "operator"
}

func pathID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// validationError flattens validator errors into field → rule.
func validationError(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badRequest(c, err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "validation failed",
		"fields": fields,
	})
}

func serviceError(c *fiber.Ctx, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	if errors.Is(err, repositories.ErrConversationClosed) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
