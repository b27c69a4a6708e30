// Package agent is the automated attendant: for every inbound message on an
// unlocked conversation it runs an ordered rule chain and falls back to a human
// hand-off when anything goes wrong.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/llm"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/webhook"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/utils"
)

// Escalation reasons raised by the agent.
const (
	ReasonUserRequested = "user_requested"
	ReasonAgentUnable   = "agent_unable"
)

// Turn is one inbound message handed to the engine.
type Turn struct {
	TenantID       string
	ConversationID string
	ContactID      string
	Channel        channel.Channel
	Recipient      string
	ContactName    string
	Unit           string
	MessageType    webhook.MessageType
	Content        string
	Metadata       map[string]interface{}
	// SystemPrompt is the tenant's agent prompt; empty uses the default persona.
	SystemPrompt string
}

// EscalationRequest asks for a human to take over the conversation.
type EscalationRequest struct {
	TenantID          string
	ConversationID    string
	Channel           channel.Channel
	ContactIdentifier string
	ContactName       string
	Reason            string
	Detail            string
	Unit              string
	AgentContext      map[string]interface{}
}

// Escalator creates the escalation and locks the conversation.
type Escalator interface {
	Escalate(ctx context.Context, req EscalationRequest) error
}

// OutboundMessage is a reply the engine tried to deliver.
type OutboundMessage struct {
	TenantID          string
	ConversationID    string
	Channel           channel.Channel
	Content           string
	ProviderMessageID string
	Failed            bool
	Error             string
	Rule              string
}

// MessageStore persists replies and bumps the conversation's activity.
type MessageStore interface {
	SaveOutbound(ctx context.Context, msg OutboundMessage) error
}

// Memory is the per-conversation turn history.
type Memory interface {
	Append(ctx context.Context, tenantID, conversationID string, role llm.Role, content string) error
	History(ctx context.Context, tenantID, conversationID string) ([]llm.Turn, error)
	Clear(ctx context.Context, tenantID, conversationID string) error
}

// Rule is one step of the chain. The first rule whose Match returns true
// handles the turn; an error from Handle triggers the fallback.
type Rule struct {
	Name   string
	Match  func(t *Turn) bool
	Handle func(ctx context.Context, t *Turn) error
}

// Outcome describes what the engine did with a turn.
type Outcome struct {
	Rule     string
	Fallback bool
	Err      error
}

type Config struct {
	CompletionTimeout time.Duration
	// MemoryContentLimit caps the runes of an inbound turn stored in memory.
	MemoryContentLimit int
	ChunkSize          int
	// Unsupported lists message types the agent cannot handle per channel.
	// Nil means audio on every channel.
	Unsupported map[channel.Channel][]webhook.MessageType
}

func DefaultConfig() Config {
	return Config{
		CompletionTimeout:  25 * time.Second,
		MemoryContentLimit: 1000,
		ChunkSize:          950,
		Unsupported: map[channel.Channel][]webhook.MessageType{
			channel.WhatsApp:  {webhook.TypeAudio},
			channel.Instagram: {webhook.TypeAudio},
		},
	}
}

type Engine struct {
	provider  llm.Provider
	sender    channel.Sender
	memory    Memory
	messages  MessageStore
	escalator Escalator
	cfg       Config
	rules     []Rule
}

func NewEngine(
	provider llm.Provider,
	sender channel.Sender,
	memory Memory,
	messages MessageStore,
	escalator Escalator,
	cfg Config,
) *Engine {
	def := DefaultConfig()
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = def.CompletionTimeout
	}
	if cfg.MemoryContentLimit <= 0 {
		cfg.MemoryContentLimit = def.MemoryContentLimit
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Unsupported == nil {
		cfg.Unsupported = def.Unsupported
	}

	e := &Engine{
		provider:  provider,
		sender:    sender,
		memory:    memory,
		messages:  messages,
		escalator: escalator,
		cfg:       cfg,
	}
	e.rules = []Rule{
		{Name: "abuse", Match: e.matchAbuse, Handle: e.handleAbuse},
		{Name: "command", Match: e.matchCommand, Handle: e.handleCommand},
		{Name: "unsupported_media", Match: e.matchUnsupported, Handle: e.handleUnsupported},
		{Name: "human_request", Match: e.matchHumanRequest, Handle: e.handleHumanRequest},
		{Name: "completion", Match: func(*Turn) bool { return true }, Handle: e.handleCompletion},
	}
	return e
}

// Rules returns the chain in evaluation order.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// HandleMessage runs the chain for one turn. It never returns an error: any
// failure ends in the fallback hand-off.
func (e *Engine) HandleMessage(ctx context.Context, t *Turn) Outcome {
	logger := log.With().
		Str("tenant_id", t.TenantID).
		Str("conversation_id", t.ConversationID).
		Str("channel", t.Channel.String()).
		Logger()

	for _, rule := range e.rules {
		if !rule.Match(t) {
			continue
		}

		err := safeHandle(ctx, rule, t)
		if err == nil {
			logger.Debug().Str("rule", rule.Name).Msg("Agent handled message")
			return Outcome{Rule: rule.Name}
		}

		logger.Error().Err(err).Str("rule", rule.Name).Msg("Agent rule failed, escalating")
		e.fallback(ctx, t, rule.Name, err, logger)
		return Outcome{Rule: rule.Name, Fallback: true, Err: err}
	}
	return Outcome{}
}

func safeHandle(ctx context.Context, rule Rule, t *Turn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panic: %v", rule.Name, r)
		}
	}()
	return rule.Handle(ctx, t)
}

// fallback escalates and replies. The reply goes out even when the escalation
// cannot be created.
func (e *Engine) fallback(ctx context.Context, t *Turn, ruleName string, cause error, logger zerolog.Logger) {
	req := e.escalation(t, ReasonAgentUnable, DetailAgentUnable)
	req.AgentContext["error"] = cause.Error()
	req.AgentContext["rule"] = ruleName
	if err := e.escalator.Escalate(ctx, req); err != nil {
		logger.Error().Err(err).Msg("Fallback escalation failed")
	}
	if err := e.reply(ctx, t, "fallback", ReplyFallback); err != nil {
		logger.Error().Err(err).Msg("Fallback reply failed")
	}
}

func (e *Engine) matchAbuse(t *Turn) bool {
	return DetectInjection(t.Content)
}

func (e *Engine) handleAbuse(ctx context.Context, t *Turn) error {
	return e.reply(ctx, t, "abuse", ReplyNotUnderstood)
}

func command(t *Turn) string {
	return strings.ToLower(strings.TrimSpace(t.Content))
}

func (e *Engine) matchCommand(t *Turn) bool {
	switch command(t) {
	case CommandClearMemory, CommandCancel:
		return true
	}
	return false
}

func (e *Engine) handleCommand(ctx context.Context, t *Turn) error {
	if command(t) == CommandCancel {
		return e.reply(ctx, t, "command", ReplyCancelled)
	}
	if err := e.memory.Clear(ctx, t.TenantID, t.ConversationID); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return e.reply(ctx, t, "command", ReplyMemoryCleared)
}

func (e *Engine) matchUnsupported(t *Turn) bool {
	if t.MessageType == webhook.TypeUnsupported {
		return true
	}
	for _, typ := range e.cfg.Unsupported[t.Channel] {
		if typ == t.MessageType {
			return true
		}
	}
	return false
}

func (e *Engine) handleUnsupported(ctx context.Context, t *Turn) error {
	if t.MessageType == webhook.TypeAudio {
		return e.reply(ctx, t, "unsupported_media", ReplyAudioUnsupported)
	}
	return e.reply(ctx, t, "unsupported_media", ReplyMediaUnsupported)
}

func (e *Engine) matchHumanRequest(t *Turn) bool {
	return DetectHumanRequest(t.Content)
}

// handleHumanRequest fails only when the escalation fails; a hand-off reply
// that cannot be delivered must not escalate a second time.
func (e *Engine) handleHumanRequest(ctx context.Context, t *Turn) error {
	req := e.escalation(t, ReasonUserRequested, DetailUserRequested)
	if history, err := e.memory.History(ctx, t.TenantID, t.ConversationID); err == nil {
		req.AgentContext["history"] = history
	}
	if err := e.escalator.Escalate(ctx, req); err != nil {
		return fmt.Errorf("escalate: %w", err)
	}
	if err := e.reply(ctx, t, "human_request", ReplyHandOff); err != nil {
		log.Warn().Err(err).Str("conversation_id", t.ConversationID).Msg("Hand-off reply not delivered")
	}
	return nil
}

func (e *Engine) handleCompletion(ctx context.Context, t *Turn) error {
	content := t.Content
	if strings.TrimSpace(content) == "" {
		content = "[" + string(t.MessageType) + "]"
	}
	content = StripPII(Truncate(content, e.cfg.MemoryContentLimit))

	if err := e.memory.Append(ctx, t.TenantID, t.ConversationID, llm.RoleUser, content); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}
	history, err := e.memory.History(ctx, t.TenantID, t.ConversationID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CompletionTimeout)
	defer cancel()

	start := time.Now()
	answer, err := e.provider.Complete(cctx, SystemPrompt(t.SystemPrompt), history)
	if err != nil {
		return fmt.Errorf("%s completion: %w", e.provider.Name(), err)
	}
	answer = SanitizeOutput(answer)
	if answer == "" {
		return llm.ErrEmptyCompletion
	}
	log.Debug().
		Str("provider", e.provider.Name()).
		Dur("duration", time.Since(start)).
		Str("preview", utils.Preview(answer, 80)).
		Msg("Completion received")

	for _, chunk := range SplitMessage(answer, e.cfg.ChunkSize) {
		if err := e.reply(ctx, t, "completion", chunk); err != nil {
			return err
		}
	}

	if err := e.memory.Append(ctx, t.TenantID, t.ConversationID, llm.RoleAssistant, answer); err != nil {
		log.Warn().Err(err).Str("conversation_id", t.ConversationID).Msg("Failed to store assistant turn")
	}
	return nil
}

func (e *Engine) escalation(t *Turn, reason, detail string) EscalationRequest {
	return EscalationRequest{
		TenantID:          t.TenantID,
		ConversationID:    t.ConversationID,
		Channel:           t.Channel,
		ContactIdentifier: t.Recipient,
		ContactName:       t.ContactName,
		Reason:            reason,
		Detail:            detail,
		Unit:              t.Unit,
		AgentContext: map[string]interface{}{
			"last_message": t.Content,
			"message_type": string(t.MessageType),
		},
	}
}

// reply delivers text and records it. A record failure after a successful
// send is logged only, so the contact never gets the same answer twice.
func (e *Engine) reply(ctx context.Context, t *Turn, ruleName, text string) error {
	res, sendErr := e.sender.Send(ctx, t.Channel, t.TenantID, t.Recipient, text)
	if sendErr == nil && !res.Success {
		sendErr = errors.New("channel reported unsuccessful delivery")
	}

	msg := OutboundMessage{
		TenantID:          t.TenantID,
		ConversationID:    t.ConversationID,
		Channel:           t.Channel,
		Content:           text,
		ProviderMessageID: res.ProviderMessageID,
		Rule:              ruleName,
	}
	if sendErr != nil {
		msg.Failed = true
		msg.Error = sendErr.Error()
	}
	if err := e.messages.SaveOutbound(ctx, msg); err != nil {
		log.Error().Err(err).Str("conversation_id", t.ConversationID).Msg("Failed to save outbound message")
	}

	if sendErr != nil {
		return fmt.Errorf("send reply: %w", sendErr)
	}
	return nil
}
