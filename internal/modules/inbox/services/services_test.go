package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/agent"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/audit"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/notification"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/webhook"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/repositories"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/database/dbtest"
)

type recordingAgent struct {
	mu    sync.Mutex
	turns []*agent.Turn
}

func (r *recordingAgent) HandleMessage(_ context.Context, t *agent.Turn) agent.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, t)
	return agent.Outcome{Rule: "completion"}
}

func (r *recordingAgent) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

type fixture struct {
	db          *gorm.DB
	tenant      *models.Tenant
	hub         *notification.Hub
	runner      *recordingAgent
	ingest      *IngestService
	status      *StatusService
	messages    *MessageService
	escalations *EscalationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t, append(models.All(), &audit.AuditLog{})...)
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX idx_conversations_active ON conversations(tenant_id, contact_id) WHERE status <> 'closed'").Error)

	tn := &models.Tenant{Slug: "acme", Name: "Acme", AgentSystemPrompt: "Atenda a Acme."}
	require.NoError(t, repositories.NewTenantRepo(db).Create(context.Background(), tn))

	hub := notification.NewHub(64)
	notifier := notification.NewService(hub)
	runner := &recordingAgent{}
	return &fixture{
		db:          db,
		tenant:      tn,
		hub:         hub,
		runner:      runner,
		ingest:      NewIngestService(db, notifier, runner),
		status:      NewStatusService(db, notifier),
		messages:    NewMessageService(db, notifier),
		escalations: NewEscalationService(db, notifier, audit.NewService(db)),
	}
}

func inbound(id, from, text string) webhook.InboundMessage {
	return webhook.InboundMessage{
		Channel:           channel.WhatsApp,
		AccountID:         "PNID-1",
		ProviderMessageID: id,
		From:              from,
		ContactName:       "Maria",
		Type:              webhook.TypeText,
		Content:           text,
		Timestamp:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()

	first, err := f.ingest.Ingest(ctx, tid, inbound("wamid.1", "5511999990000", "oi"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.True(t, first.ConversationCreated)

	again, err := f.ingest.Ingest(ctx, tid, inbound("wamid.1", "5511999990000", "oi"))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	assert.EqualValues(t, 1, countRows(t, f.db, &models.Message{}))
	assert.EqualValues(t, 1, countRows(t, f.db, &models.Contact{}))
	assert.Equal(t, 1, f.runner.calls())
}

func TestIngestReusesActiveConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()

	a, err := f.ingest.Ingest(ctx, tid, inbound("wamid.1", "5511999990000", "oi"))
	require.NoError(t, err)
	later := inbound("wamid.2", "5511999990000", "tudo bem?")
	later.Timestamp = later.Timestamp.Add(time.Minute)
	b, err := f.ingest.Ingest(ctx, tid, later)
	require.NoError(t, err)

	assert.Equal(t, a.Conversation.ID, b.Conversation.ID)
	assert.False(t, b.ConversationCreated)
	conv, err := repositories.NewConversationRepo(f.db).GetByID(ctx, f.tenant.ID, a.Conversation.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessageAt)
	assert.True(t, conv.LastMessageAt.Equal(later.Timestamp))
	assert.Equal(t, models.ConversationBotHandling, conv.Status)
}

func TestIngestOpensNewConversationAfterClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()

	a, err := f.ingest.Ingest(ctx, tid, inbound("wamid.1", "5511999990000", "oi"))
	require.NoError(t, err)
	_, err = f.escalations.CloseConversation(ctx, f.tenant.ID, a.Conversation.ID, "operator-1")
	require.NoError(t, err)

	b, err := f.ingest.Ingest(ctx, tid, inbound("wamid.2", "5511999990000", "voltei"))
	require.NoError(t, err)
	assert.True(t, b.ConversationCreated)
	assert.NotEqual(t, a.Conversation.ID, b.Conversation.ID)
	assert.Equal(t, a.Contact.ID, b.Contact.ID)
}

func TestIngestPassesTenantPromptToAgent(t *testing.T) {
	f := newFixture(t)
	_, err := f.ingest.Ingest(context.Background(), f.tenant.ID.String(), inbound("wamid.1", "5511999990000", "oi"))
	require.NoError(t, err)

	require.Equal(t, 1, f.runner.calls())
	turn := f.runner.turns[0]
	assert.Equal(t, "Atenda a Acme.", turn.SystemPrompt)
	assert.Equal(t, "5511999990000", turn.Recipient)
	assert.Equal(t, "oi", turn.Content)
}

func TestIngestSkipsAgentWhenLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()

	_, err := f.escalations.CreateEscalation(ctx, EscalationRequest{
		TenantID:          tid,
		Channel:           "whatsapp",
		ContactIdentifier: "5511999990000",
		Reason:            models.ReasonComplaint,
	})
	require.NoError(t, err)

	res, err := f.ingest.Ingest(ctx, tid, inbound("wamid.1", "5511999990000", "oi"))
	require.NoError(t, err)
	assert.True(t, res.Conversation.AgentLocked)
	assert.Nil(t, res.AgentOutcome)
	assert.Equal(t, 0, f.runner.calls())
	assert.EqualValues(t, 1, countRows(t, f.db, &models.Message{}))
}

func TestIngestRejectsBadTenant(t *testing.T) {
	f := newFixture(t)
	_, err := f.ingest.Ingest(context.Background(), "not-a-uuid", inbound("wamid.1", "5511999990000", "oi"))
	require.Error(t, err)
}

func TestIngestNotifiesOperators(t *testing.T) {
	f := newFixture(t)
	tid := f.tenant.ID.String()
	events, cancel := f.hub.Subscribe(notification.TenantRoom(tid))
	defer cancel()

	_, err := f.ingest.Ingest(context.Background(), tid, inbound("wamid.1", "5511999990000", "oi"))
	require.NoError(t, err)

	var names []string
	for len(names) < 2 {
		select {
		case ev := <-events:
			names = append(names, ev.Name)
		case <-time.After(time.Second):
			t.Fatalf("only got %v", names)
		}
	}
	assert.Equal(t, []string{notification.EventConversationNew, notification.EventMessageNew}, names)
}

func TestMessageEventsReachUnitRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()

	res, err := f.ingest.Ingest(ctx, tid, inbound("wamid.in", "5511999990000", "oi"))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Conversation{}).Where("id = ?", res.Conversation.ID).Update("unit", "rj").Error)

	events, cancel := f.hub.Subscribe(notification.UnitRoom(tid, "rj"))
	defer cancel()
	next := func() string {
		select {
		case ev := <-events:
			return ev.Name
		case <-time.After(time.Second):
			t.Fatal("no event on unit room")
			return ""
		}
	}

	_, err = f.ingest.Ingest(ctx, tid, inbound("wamid.in2", "5511999990000", "tudo bem?"))
	require.NoError(t, err)
	assert.Equal(t, notification.EventMessageNew, next())

	require.NoError(t, f.messages.SaveOutbound(ctx, agent.OutboundMessage{
		TenantID:          tid,
		ConversationID:    res.Conversation.ID.String(),
		Channel:           channel.WhatsApp,
		Content:           "Olá!",
		ProviderMessageID: "wamid.out",
		Rule:              "completion",
	}))
	assert.Equal(t, notification.EventMessageNew, next())

	ok, err := f.status.Apply(ctx, tid, webhook.StatusUpdate{Channel: channel.WhatsApp, ProviderMessageID: "wamid.out", Status: "delivered"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, notification.EventMessageStatus, next())
}

func TestStatusOnlyMovesForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()

	res, err := f.ingest.Ingest(ctx, tid, inbound("wamid.in", "5511999990000", "oi"))
	require.NoError(t, err)
	require.NoError(t, f.messages.SaveOutbound(ctx, agent.OutboundMessage{
		TenantID:          tid,
		ConversationID:    res.Conversation.ID.String(),
		Channel:           channel.WhatsApp,
		Content:           "Olá!",
		ProviderMessageID: "wamid.out",
		Rule:              "completion",
	}))

	update := func(status string) bool {
		ok, err := f.status.Apply(ctx, tid, webhook.StatusUpdate{Channel: channel.WhatsApp, ProviderMessageID: "wamid.out", Recipient: "5511999990000", Status: status})
		require.NoError(t, err)
		return ok
	}
	assert.True(t, update("read"))
	assert.False(t, update("delivered"))
	assert.False(t, update("bogus"))

	msg, err := repositories.NewMessageRepo(f.db).FindByProviderID(ctx, f.tenant.ID, "wamid.out")
	require.NoError(t, err)
	assert.Equal(t, models.MessageRead, msg.Status)

	ok, err := f.status.Apply(ctx, tid, webhook.StatusUpdate{ProviderMessageID: "wamid.unknown", Status: "read"})
	assert.ErrorIs(t, err, ErrUnknownMessage)
	assert.False(t, ok)
}

func TestStatusBeforeOutboundIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()

	res, err := f.ingest.Ingest(ctx, tid, inbound("wamid.in", "5511999990000", "oi"))
	require.NoError(t, err)

	payload, err := json.Marshal(StatusJob{TenantID: tid, Status: webhook.StatusUpdate{
		Channel: channel.WhatsApp, ProviderMessageID: "wamid.early", Recipient: "5511999990000", Status: "delivered",
	}})
	require.NoError(t, err)
	job := &jobs.Job{Type: JobApplyStatus, Payload: payload, Attempts: 1, MaxAttempts: 3}

	// the status outran the send
	assert.ErrorIs(t, f.status.Handle(ctx, job), ErrUnknownMessage)

	require.NoError(t, f.messages.SaveOutbound(ctx, agent.OutboundMessage{
		TenantID:          tid,
		ConversationID:    res.Conversation.ID.String(),
		Channel:           channel.WhatsApp,
		Content:           "Olá!",
		ProviderMessageID: "wamid.early",
		Rule:              "completion",
	}))
	job.Attempts = 2
	require.NoError(t, f.status.Handle(ctx, job))

	msg, err := repositories.NewMessageRepo(f.db).FindByProviderID(ctx, f.tenant.ID, "wamid.early")
	require.NoError(t, err)
	assert.Equal(t, models.MessageDelivered, msg.Status)
}

func TestStatusForNeverSavedMessageIsDroppedOnLastAttempt(t *testing.T) {
	f := newFixture(t)
	tid := f.tenant.ID.String()

	payload, err := json.Marshal(StatusJob{TenantID: tid, Status: webhook.StatusUpdate{
		Channel: channel.WhatsApp, ProviderMessageID: "wamid.elsewhere", Status: "read",
	}})
	require.NoError(t, err)

	job := &jobs.Job{Type: JobApplyStatus, Payload: payload, Attempts: 3, MaxAttempts: 3}
	assert.NoError(t, f.status.Handle(context.Background(), job))
}

func TestSaveOutboundRecordsFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()

	res, err := f.ingest.Ingest(ctx, tid, inbound("wamid.in", "5511999990000", "oi"))
	require.NoError(t, err)
	require.NoError(t, f.messages.SaveOutbound(ctx, agent.OutboundMessage{
		TenantID:       tid,
		ConversationID: res.Conversation.ID.String(),
		Channel:        channel.WhatsApp,
		Content:        "Olá!",
		Failed:         true,
		Error:          "token expired",
		Rule:           "completion",
	}))

	history, err := f.messages.History(ctx, f.tenant.ID, res.Conversation.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.DirectionInbound, history[0].Direction)
	assert.Equal(t, models.MessageFailed, history[1].Status)
	assert.Contains(t, string(history[1].Metadata), "token expired")
}

func TestCreateEscalationForUnknownContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()
	events, cancel := f.hub.Subscribe(notification.TenantRoom(tid))
	defer cancel()

	res, err := f.escalations.CreateEscalation(ctx, EscalationRequest{
		TenantID:          tid,
		Channel:           "whatsapp",
		ContactIdentifier: "5511988887777",
		ContactName:       "João",
		Reason:            models.ReasonSalesOpportunity,
		Unit:              "vendas",
		PriorTranscript: []TranscriptTurn{
			{Role: "user", Content: "quero comprar"},
			{Role: "assistant", Content: "vou chamar alguém"},
			{Role: "user", Content: "ok"},
		},
	})
	require.NoError(t, err)

	assert.True(t, res.ConversationCreated)
	assert.Equal(t, models.EscalationPending, res.Escalation.Status)
	assert.Equal(t, models.ConversationOpen, res.Conversation.Status)
	assert.True(t, res.Conversation.AgentLocked)
	assert.Equal(t, models.PriorityHigh, res.Conversation.Priority)
	assert.Equal(t, "vendas", res.Conversation.Unit)
	assert.Equal(t, "5511988887777", res.Contact.PhoneNumber)

	history, err := f.messages.History(ctx, f.tenant.ID, res.Conversation.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "quero comprar", history[0].Content)
	assert.Equal(t, models.DirectionInbound, history[0].Direction)
	assert.Equal(t, models.DirectionOutbound, history[1].Direction)
	assert.Equal(t, "ok", history[2].Content)
	assert.True(t, history[0].Timestamp.Before(history[1].Timestamp))
	assert.True(t, history[1].Timestamp.Before(history[2].Timestamp))
	assert.Contains(t, string(history[0].Metadata), `"imported_from":"escalation"`)

	var names []string
	for len(names) < 2 {
		select {
		case ev := <-events:
			names = append(names, ev.Name)
		case <-time.After(time.Second):
			t.Fatalf("only got %v", names)
		}
	}
	assert.Equal(t, []string{notification.EventConversationNew, notification.EventEscalationNew}, names)
}

func TestCreateEscalationReusesBotConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()

	in, err := f.ingest.Ingest(ctx, tid, inbound("wamid.1", "5511999990000", "oi"))
	require.NoError(t, err)

	res, err := f.escalations.CreateEscalation(ctx, EscalationRequest{
		TenantID:          tid,
		Channel:           "whatsapp",
		ContactIdentifier: "5511999990000",
		Reason:            models.ReasonUserRequested,
		Priority:          models.PriorityUrgent,
	})
	require.NoError(t, err)
	assert.False(t, res.ConversationCreated)
	assert.Equal(t, in.Conversation.ID, res.Conversation.ID)
	assert.Equal(t, models.ConversationOpen, res.Conversation.Status)
	assert.Equal(t, models.PriorityUrgent, res.Conversation.Priority)
	assert.True(t, res.Conversation.AgentLocked)

	// A second escalation keeps the status an operator already moved on to.
	require.NoError(t, repositories.NewConversationRepo(f.db).Update(ctx, f.tenant.ID, res.Conversation.ID,
		map[string]interface{}{"status": models.ConversationInProgress}))
	again, err := f.escalations.CreateEscalation(ctx, EscalationRequest{
		TenantID:          tid,
		Channel:           "whatsapp",
		ContactIdentifier: "5511999990000",
		Reason:            models.ReasonComplaint,
	})
	require.NoError(t, err)
	assert.Equal(t, res.Conversation.ID, again.Conversation.ID)
	assert.Equal(t, models.ConversationInProgress, again.Conversation.Status)
	assert.EqualValues(t, 2, countRows(t, f.db, &models.Escalation{}))
}

func TestEscalateFromAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.escalations.Escalate(ctx, agent.EscalationRequest{
		TenantID:          f.tenant.ID.String(),
		Channel:           channel.Instagram,
		ContactIdentifier: "igsid-42",
		Reason:            agent.ReasonAgentUnable,
		AgentContext:      map[string]interface{}{"error": "timeout"},
	})
	require.NoError(t, err)

	locked, err := f.escalations.IsLocked(ctx, f.tenant.ID, "igsid-42")
	require.NoError(t, err)
	assert.True(t, locked)

	page, err := f.escalations.List(ctx, repositories.EscalationFilter{TenantID: f.tenant.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, models.ReasonAgentUnable, page.Items[0].Reason)
	assert.Contains(t, string(page.Items[0].AgentContext), "timeout")
}

func TestCreateEscalationRejectsUnknownChannel(t *testing.T) {
	f := newFixture(t)
	_, err := f.escalations.CreateEscalation(context.Background(), EscalationRequest{
		TenantID:          f.tenant.ID.String(),
		Channel:           "telegram",
		ContactIdentifier: "x",
		Reason:            models.ReasonOther,
	})
	require.Error(t, err)
}

func TestToggleLockAndIsLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	locked, err := f.escalations.IsLocked(ctx, f.tenant.ID, "5511000000000")
	require.NoError(t, err)
	assert.False(t, locked, "unknown contact")

	in, err := f.ingest.Ingest(ctx, f.tenant.ID.String(), inbound("wamid.1", "5511999990000", "oi"))
	require.NoError(t, err)

	conv, err := f.escalations.ToggleLock(ctx, f.tenant.ID, in.Conversation.ID, true, "operator-1")
	require.NoError(t, err)
	assert.True(t, conv.AgentLocked)
	assert.Equal(t, "operator-1", conv.AgentLockedBy)

	_, err = f.escalations.ToggleLock(ctx, f.tenant.ID, in.Conversation.ID, true, "operator-1")
	require.NoError(t, err)

	locked, err = f.escalations.IsLocked(ctx, f.tenant.ID, "5511999990000")
	require.NoError(t, err)
	assert.True(t, locked)

	conv, err = f.escalations.ToggleLock(ctx, f.tenant.ID, in.Conversation.ID, false, "operator-1")
	require.NoError(t, err)
	assert.False(t, conv.AgentLocked)
	assert.Nil(t, conv.AgentLockedAt)

	_, err = f.escalations.ToggleLock(ctx, uuid.New(), in.Conversation.ID, true, "operator-1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	var logs int64
	require.NoError(t, f.db.Model(&audit.AuditLog{}).Where("entity = ?", "conversation").Count(&logs).Error)
	assert.EqualValues(t, 3, logs)
}

func TestIsLockedAfterCloseIsFalse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.escalations.CreateEscalation(ctx, EscalationRequest{
		TenantID:          f.tenant.ID.String(),
		Channel:           "whatsapp",
		ContactIdentifier: "5511999990000",
		Reason:            models.ReasonUrgency,
	})
	require.NoError(t, err)
	_, err = f.escalations.CloseConversation(ctx, f.tenant.ID, res.Conversation.ID, "operator-1")
	require.NoError(t, err)

	locked, err := f.escalations.IsLocked(ctx, f.tenant.ID, "5511999990000")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestEscalationStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.escalations.CreateEscalation(ctx, EscalationRequest{
		TenantID:          f.tenant.ID.String(),
		Channel:           "whatsapp",
		ContactIdentifier: "5511999990000",
		Reason:            models.ReasonComplexQuery,
	})
	require.NoError(t, err)
	id := res.Escalation.ID

	esc, err := f.escalations.UpdateStatus(ctx, f.tenant.ID, id, models.EscalationInProgress, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscalationInProgress, esc.Status)
	assert.Equal(t, "operator-1", esc.AttendedBy)
	require.NotNil(t, esc.AttendedAt)

	conv, err := repositories.NewConversationRepo(f.db).GetByID(ctx, f.tenant.ID, res.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationInProgress, conv.Status)

	_, err = f.escalations.UpdateStatus(ctx, f.tenant.ID, id, models.EscalationInProgress, "operator-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	esc, err = f.escalations.UpdateStatus(ctx, f.tenant.ID, id, models.EscalationResolved, "operator-1")
	require.NoError(t, err)
	require.NotNil(t, esc.ResolvedAt)

	_, err = f.escalations.UpdateStatus(ctx, f.tenant.ID, id, models.EscalationCancelled, "operator-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.escalations.UpdateStatus(ctx, f.tenant.ID, id, models.EscalationPending, "operator-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stats, err := f.escalations.Stats(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ByStatus["resolved"])
	assert.EqualValues(t, 1, stats.ByReason["complex_query"])
}

func TestTakingEscalationKeepsClosedConversationClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.tenant.ID.String()
	convs := repositories.NewConversationRepo(f.db)

	res, err := f.escalations.CreateEscalation(ctx, EscalationRequest{
		TenantID:          tid,
		Channel:           "whatsapp",
		ContactIdentifier: "5511999990000",
		Reason:            models.ReasonComplaint,
	})
	require.NoError(t, err)
	_, err = f.escalations.CloseConversation(ctx, f.tenant.ID, res.Conversation.ID, "operator-1")
	require.NoError(t, err)

	_, err = f.escalations.UpdateStatus(ctx, f.tenant.ID, res.Escalation.ID, models.EscalationInProgress, "operator-1")
	assert.ErrorIs(t, err, repositories.ErrConversationClosed)

	closed, err := convs.GetByID(ctx, f.tenant.ID, res.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	// the contact writes again, so a newer conversation is active
	next, err := f.ingest.Ingest(ctx, tid, inbound("wamid.9", "5511999990000", "alguem ai?"))
	require.NoError(t, err)
	require.True(t, next.ConversationCreated)

	_, err = f.escalations.UpdateStatus(ctx, f.tenant.ID, res.Escalation.ID, models.EscalationInProgress, "operator-1")
	assert.ErrorIs(t, err, repositories.ErrConversationClosed)

	var esc models.Escalation
	require.NoError(t, f.db.First(&esc, "id = ?", res.Escalation.ID).Error)
	assert.Equal(t, models.EscalationPending, esc.Status, "rolled back with the conversation")
	assert.Empty(t, esc.AttendedBy)

	active, err := convs.GetByID(ctx, f.tenant.ID, next.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationBotHandling, active.Status)

	resolved, err := f.escalations.UpdateStatus(ctx, f.tenant.ID, res.Escalation.ID, models.EscalationResolved, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscalationResolved, resolved.Status)
}

func TestToggleLockOnClosedConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.escalations.CreateEscalation(ctx, EscalationRequest{
		TenantID:          f.tenant.ID.String(),
		Channel:           "whatsapp",
		ContactIdentifier: "5511999990000",
		Reason:            models.ReasonUrgency,
	})
	require.NoError(t, err)
	_, err = f.escalations.CloseConversation(ctx, f.tenant.ID, res.Conversation.ID, "operator-1")
	require.NoError(t, err)

	_, err = f.escalations.ToggleLock(ctx, f.tenant.ID, res.Conversation.ID, false, "operator-1")
	assert.ErrorIs(t, err, repositories.ErrConversationClosed)

	conv, err := repositories.NewConversationRepo(f.db).GetByID(ctx, f.tenant.ID, res.Conversation.ID)
	require.NoError(t, err)
	assert.True(t, conv.AgentLocked)

	_, err = f.escalations.ToggleLock(ctx, f.tenant.ID, uuid.New(), false, "operator-1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestPartitionKey(t *testing.T) {
	ev := inbound("wamid.1", "5511999990000", "oi")
	assert.Equal(t, "t1:whatsapp:5511999990000", PartitionKey("t1", ev))
	su := webhook.StatusUpdate{Channel: channel.Instagram, Recipient: "igsid"}
	assert.Equal(t, "t1:instagram:igsid", PartitionKey("t1", su))
}
