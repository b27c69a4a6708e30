package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Router implements Sender by dispatching to the client registered for a
// channel. Each tenant gets its own token bucket so one busy tenant cannot
// exhaust the provider throughput of the others.
type Router struct {
	creds   CredentialStore
	clients map[Channel]Client

	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRouter creates a router limited to perSecond messages per tenant.
func NewRouter(creds CredentialStore, perSecond int) *Router {
	if perSecond <= 0 {
		perSecond = 80
	}
	return &Router{
		creds:     creds,
		clients:   make(map[Channel]Client),
		perSecond: rate.Limit(perSecond),
		burst:     perSecond,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Register binds a provider client to a channel.
func (r *Router) Register(ch Channel, client Client) {
	r.clients[ch] = client
	log.Info().Str("channel", ch.String()).Msg("✅ Registered channel client")
}

func (r *Router) Send(ctx context.Context, ch Channel, tenantID, recipient, content string) (SendResult, error) {
	client, ok := r.clients[ch]
	if !ok {
		return SendResult{}, &DeliveryError{Kind: Permanent, Channel: ch, Message: "no client registered for channel"}
	}
	if recipient == "" {
		return SendResult{}, &DeliveryError{Kind: Permanent, Channel: ch, Message: "recipient is empty"}
	}

	creds, err := r.creds.OutboundCredentials(ctx, tenantID, ch)
	if err != nil {
		return SendResult{}, &DeliveryError{Kind: Permanent, Channel: ch, Message: "channel credentials unavailable", Err: err}
	}

	if err := r.limiter(tenantID).Wait(ctx); err != nil {
		return SendResult{}, NewTransient(ch, fmt.Errorf("rate limiter: %w", err))
	}

	id, err := client.SendText(ctx, creds, recipient, content)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{Success: true, ProviderMessageID: id}, nil
}

func (r *Router) limiter(tenantID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(r.perSecond, r.burst)
		r.limiters[tenantID] = l
	}
	return l
}
