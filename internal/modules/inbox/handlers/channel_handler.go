package handlers

import (
	"context"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
)

// ChannelLookup returns a tenant's registered account on a channel.
type ChannelLookup interface {
	PrimaryChannel(ctx context.Context, tenantID uuid.UUID, ch channel.Channel) (*models.TenantChannel, error)
}

type ChannelHandler struct {
	channels ChannelLookup
}

func NewChannelHandler(channels ChannelLookup) *ChannelHandler {
	return &ChannelHandler{channels: channels}
}

// WhatsAppQR godoc
// @Summary Click-to-chat QR code for the tenant's WhatsApp number
// @Tags Channels
// @Produce png
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param text query string false "Prefilled message"
// @Param size query int false "Pixels (128-1024)"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]interface{}
// @Router /api/channels/whatsapp/qr [get]
func (h *ChannelHandler) WhatsAppQR(c *fiber.Ctx) error {
	tc, err := h.channels.PrimaryChannel(c.UserContext(), tenantOf(c), channel.WhatsApp)
	if err != nil {
		return serviceError(c, err)
	}
	phone := digits(tc.DisplayPhone)
	if phone == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "whatsapp number not configured"})
	}

	link := "https://wa.me/" + phone
	if text := c.Query("text"); text != "" {
		link += "?text=" + url.QueryEscape(text)
	}
	size := c.QueryInt("size", 256)
	if size < 128 || size > 1024 {
		size = 256
	}

	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode QR code")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate QR code"})
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
