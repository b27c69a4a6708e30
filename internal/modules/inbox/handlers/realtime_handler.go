package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/notification"
)

// Subscriber joins notification rooms.
type Subscriber interface {
	Subscribe(rooms ...string) (<-chan notification.Event, func())
}

type RealtimeHandler struct {
	hub       Subscriber
	heartbeat time.Duration
}

func NewRealtimeHandler(hub Subscriber, heartbeat time.Duration) *RealtimeHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &RealtimeHandler{hub: hub, heartbeat: heartbeat}
}

// Stream godoc
// @Summary Real-time operator events
// @Description Server-Sent Events of the tenant room, plus the unit rooms given in ?units=a,b
// @Tags Realtime
// @Produce text/event-stream
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param units query string false "Comma separated units"
// @Success 200 {string} string
// @Router /api/realtime [get]
func (h *RealtimeHandler) Stream(c *fiber.Ctx) error {
	tenantID := tenantOf(c).String()
	rooms := []string{notification.TenantRoom(tenantID)}
	for _, unit := range strings.Split(c.Query("units"), ",") {
		if unit = strings.TrimSpace(unit); unit != "" {
			rooms = append(rooms, notification.UnitRoom(tenantID, unit))
		}
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	events, cancel := h.hub.Subscribe(rooms...)
	log.Info().Str("tenant_id", tenantID).Strs("rooms", rooms).Msg("Realtime client connected")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		if writeEvent(w, "connected", fiber.Map{"rooms": rooms}) != nil {
			return
		}
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(w, ev.Name, ev); err != nil {
					log.Debug().Err(err).Str("tenant_id", tenantID).Msg("Realtime client gone")
					return
				}
			case <-ticker.C:
				if err := writeEvent(w, "heartbeat", fiber.Map{"at": time.Now().UTC()}); err != nil {
					log.Debug().Err(err).Str("tenant_id", tenantID).Msg("Realtime client gone")
					return
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, name string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return w.Flush()
}
