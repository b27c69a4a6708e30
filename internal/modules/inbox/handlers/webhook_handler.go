package handlers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/audit"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/signature"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/webhook"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/services"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/utils"
)

// EventReceived is the acknowledgement body providers expect.
const EventReceived = "EVENT_RECEIVED"

// TenantResolver maps request signals to a tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, sig tenant.Signals) (tenant.Credentials, tenant.Method, error)
}

// Enqueuer accepts dispatch work.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}, opts jobs.EnqueueOptions) (*jobs.Job, error)
}

// WebhookRecorder appends received webhook bodies to the audit log.
type WebhookRecorder interface {
	RecordWebhook(ctx context.Context, event *audit.WebhookEvent) error
}

type WebhookConfig struct {
	VerifyToken     string
	ResolveTimeout  time.Duration
	DispatchTimeout time.Duration
}

// WebhookHandler is the provider-facing gateway. It authenticates, answers
// and hands the body to a background dispatch; nothing after the answer can
// change the response.
type WebhookHandler struct {
	resolver TenantResolver
	queue    Enqueuer
	recorder WebhookRecorder
	cfg      WebhookConfig
	inflight sync.WaitGroup
}

func NewWebhookHandler(resolver TenantResolver, queue Enqueuer, recorder WebhookRecorder, cfg WebhookConfig) *WebhookHandler {
	if cfg.ResolveTimeout <= 0 || cfg.ResolveTimeout > 3*time.Second {
		cfg.ResolveTimeout = 3 * time.Second
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	return &WebhookHandler{resolver: resolver, queue: queue, recorder: recorder, cfg: cfg}
}

func tenantSlug(c *fiber.Ctx) string {
	if slug := c.Get("X-Tenant-Slug"); slug != "" {
		return slug
	}
	return c.Query("tenant")
}

func queryEither(c *fiber.Ctx, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.Query("hub." + name)
}

// Verify godoc
// @Summary Webhook subscription handshake
// @Description Echoes the challenge when the verify token matches the tenant's (or the global) token
// @Tags Webhook
// @Produce plain
// @Param provider path string true "whatsapp or instagram"
// @Param hub.mode query string false "subscribe"
// @Param hub.verify_token query string false "verify token"
// @Param hub.challenge query string false "challenge"
// @Success 200 {string} string
// @Failure 403 {string} string
// @Router /webhooks/{provider} [get]
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	ch, ok := channel.Parse(c.Params("provider"))
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}

	mode := queryEither(c, "mode")
	token := queryEither(c, "verify_token")
	challenge := queryEither(c, "challenge")

	want := h.cfg.VerifyToken
	if slug := tenantSlug(c); slug != "" {
		ctx, cancel := context.WithTimeout(c.UserContext(), h.cfg.ResolveTimeout)
		defer cancel()
		creds, _, err := h.resolver.Resolve(ctx, tenant.Signals{Channel: ch, Slug: slug})
		if err != nil {
			log.Warn().Err(err).Str("slug", slug).Msg("Handshake for unknown tenant")
			return c.SendStatus(fiber.StatusForbidden)
		}
		want = creds.VerifyToken
	}

	if mode != "subscribe" || !signature.VerifyToken(token, want) {
		log.Warn().Str("channel", ch.String()).Str("mode", mode).Msg("Webhook handshake rejected")
		return c.SendStatus(fiber.StatusForbidden)
	}
	log.Info().Str("channel", ch.String()).Msg("Webhook handshake verified")
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// Receive godoc
// @Summary Provider event receiver
// @Description Verifies the X-Hub-Signature-256 header and acknowledges immediately; events are processed asynchronously
// @Tags Webhook
// @Accept json
// @Produce plain
// @Param provider path string true "whatsapp or instagram"
// @Param X-Hub-Signature-256 header string true "sha256=<hex>"
// @Success 200 {string} string "EVENT_RECEIVED"
// @Failure 403 {string} string
// @Failure 404 {string} string
// @Router /webhooks/{provider} [post]
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	ch, ok := channel.Parse(c.Params("provider"))
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}
	parser, ok := webhook.ParserFor(ch)
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}

	// fasthttp reuses the request buffer once the handler returns.
	raw := append([]byte(nil), c.Body()...)
	header := c.Get(signature.Header)
	if header == "" {
		log.Warn().Str("channel", ch.String()).Str("ip", c.IP()).Msg("Webhook without signature")
		return c.SendStatus(fiber.StatusForbidden)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.cfg.ResolveTimeout)
	creds, method, err := h.resolver.Resolve(ctx, tenant.Signals{
		Channel:    ch,
		Slug:       tenantSlug(c),
		AccountIDs: parser.AccountIDs(raw),
	})
	cancel()
	if err != nil {
		// Acknowledged so the provider stops retrying.
		log.Warn().Err(err).Str("channel", ch.String()).Msg("Webhook tenant unresolved, dropped")
		return ack(c)
	}

	if err := signature.Verify(raw, header, creds.AppSecret); err != nil {
		log.Warn().Err(err).
			Str("channel", ch.String()).
			Str("tenant_id", creds.TenantID).
			Msg("Webhook signature rejected")
		return c.SendStatus(fiber.StatusForbidden)
	}

	log.Debug().
		Str("channel", ch.String()).
		Str("tenant_id", creds.TenantID).
		Str("method", string(method)).
		Int("bytes", len(raw)).
		Msg("Webhook accepted")

	h.inflight.Add(1)
	go h.dispatch(creds, parser, raw)
	return ack(c)
}

func ack(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(EventReceived)
}

// dispatch parses, records and enqueues one accepted body. It runs detached
// from the request.
func (h *WebhookHandler) dispatch(creds tenant.Credentials, parser webhook.Parser, raw []byte) {
	defer h.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("tenant_id", creds.TenantID).
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("Webhook dispatch panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.DispatchTimeout)
	defer cancel()

	tenantID := creds.TenantID
	record := &audit.WebhookEvent{
		TenantID:       &tenantID,
		Provider:       parser.Channel().String(),
		Payload:        string(raw),
		SignatureValid: true,
	}

	env, err := parser.Parse(raw)
	if err != nil {
		record.Error = err.Error()
		h.record(ctx, record)
		log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("body", utils.Preview(string(raw), 200)).
			Msg("Webhook payload rejected")
		return
	}

	record.EventType = eventType(env)
	record.EventCount = len(env.Events)

	var failed []error
	for _, ev := range env.Events {
		if err := h.enqueue(ctx, tenantID, ev); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		joined := errors.Join(failed...)
		record.Error = joined.Error()
		log.Error().Err(joined).
			Str("tenant_id", tenantID).
			Int("failed", len(failed)).
			Int("events", len(env.Events)).
			Msg("Webhook events not enqueued")
	} else {
		record.Processed = true
	}
	h.record(ctx, record)

	log.Info().
		Str("tenant_id", tenantID).
		Str("channel", env.Channel.String()).
		Int("events", len(env.Events)).
		Int("ignored", env.Ignored).
		Msg("Webhook dispatched")
}

func (h *WebhookHandler) enqueue(ctx context.Context, tenantID string, ev webhook.Event) error {
	opts := jobs.EnqueueOptions{
		TenantID:     tenantID,
		PartitionKey: services.PartitionKey(tenantID, ev),
	}
	switch e := ev.(type) {
	case webhook.InboundMessage:
		opts.Lane = jobs.LaneInboundMessage
		_, err := h.queue.Enqueue(ctx, services.JobIngestMessage, services.InboundJob{TenantID: tenantID, Message: e}, opts)
		return err
	case webhook.StatusUpdate:
		opts.Lane = jobs.LaneStatusUpdate
		_, err := h.queue.Enqueue(ctx, services.JobApplyStatus, services.StatusJob{TenantID: tenantID, Status: e}, opts)
		return err
	}
	return fmt.Errorf("unknown event %T", ev)
}

func (h *WebhookHandler) record(ctx context.Context, ev *audit.WebhookEvent) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.RecordWebhook(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("Failed to record webhook event")
	}
}

func eventType(env *webhook.Envelope) string {
	var inbound, statuses int
	for _, ev := range env.Events {
		switch ev.Kind() {
		case webhook.KindInboundMessage:
			inbound++
		case webhook.KindStatusUpdate:
			statuses++
		}
	}
	switch {
	case inbound > 0 && statuses > 0:
		return "mixed"
	case inbound > 0:
		return string(webhook.KindInboundMessage)
	case statuses > 0:
		return string(webhook.KindStatusUpdate)
	}
	return "none"
}

// Wait blocks until in-flight dispatches finish or ctx ends.
func (h *WebhookHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
