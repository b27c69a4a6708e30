package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/audit"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/repositories"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/services"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/database/dbtest"
)

type api struct {
	app    *fiber.App
	tenant *models.Tenant
	queue  *jobs.Service
}

func newAPI(t *testing.T) *api {
	t.Helper()
	all := append(models.All(), &audit.AuditLog{}, &audit.WebhookEvent{}, &jobs.Job{})
	db := dbtest.Open(t, all...)

	ctx := context.Background()
	tenants := repositories.NewTenantRepo(db)
	tn := &models.Tenant{Slug: "acme", Name: "Acme"}
	require.NoError(t, tenants.Create(ctx, tn))
	require.NoError(t, tenants.AddChannel(ctx, &models.TenantChannel{
		TenantID:          tn.ID,
		Channel:           "whatsapp",
		ProviderAccountID: "PN1",
		DisplayPhone:      "+55 11 5555-0000",
		Active:            true,
	}))

	auditService := audit.NewService(db)
	queue := jobs.NewService(db, jobs.DefaultRetryPolicy())
	app := fiber.New()
	RegisterRoutes(app, Handlers{
		Escalation: NewEscalationHandler(
			services.NewEscalationService(db, nil, auditService),
			services.NewMessageService(db, nil),
		),
		Admin:   NewAdminHandler(queue, auditService),
		Channel: NewChannelHandler(tenants),
		Health:  NewHealthHandler(nil),
	})
	return &api{app: app, tenant: tn, queue: queue}
}

func (a *api) do(t *testing.T, method, target string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenantID, a.tenant.ID.String())
	req.Header.Set(HeaderActor, "operator-1")
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func TestAPIRequiresTenantHeader(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/escalations", nil)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEscalationLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(t, http.MethodPost, "/api/escalations", map[string]interface{}{
		"channel":            "whatsapp",
		"contact_identifier": "5511999990000",
		"reason":             "complaint",
		"unit":               "sac",
		"prior_transcript": []map[string]string{
			{"role": "user", "content": "meu pedido atrasou"},
		},
	})
	require.Equal(t, fiber.StatusCreated, code, string(body))

	var created services.EscalationResult
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.Conversation.AgentLocked)
	assert.Equal(t, "operator-1", created.Conversation.AgentLockedBy)

	code, body = a.do(t, http.MethodGet, "/api/contacts/lock-status?contact=5511999990000", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"contact":"5511999990000","locked":true}`, string(body))

	convID := created.Conversation.ID.String()
	code, body = a.do(t, http.MethodPatch, "/api/conversations/"+convID+"/lock", map[string]bool{"locked": false})
	require.Equal(t, fiber.StatusOK, code, string(body))

	code, body = a.do(t, http.MethodGet, "/api/contacts/lock-status?contact=5511999990000", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"contact":"5511999990000","locked":false}`, string(body))

	code, body = a.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages", nil)
	require.Equal(t, fiber.StatusOK, code)
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "meu pedido atrasou", msgs[0].Content)

	escID := created.Escalation.ID.String()
	code, _ = a.do(t, http.MethodPatch, "/api/escalations/"+escID+"/status", map[string]string{"status": "resolved"})
	require.Equal(t, fiber.StatusOK, code)
	code, _ = a.do(t, http.MethodPatch, "/api/escalations/"+escID+"/status", map[string]string{"status": "in_progress"})
	assert.Equal(t, fiber.StatusConflict, code)

	code, body = a.do(t, http.MethodGet, "/api/escalations/stats", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), `"resolved":1`)

	code, body = a.do(t, http.MethodGet, "/api/escalations?status=resolved", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), `"total_count":1`)
}

func TestCreateEscalationValidation(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(t, http.MethodPost, "/api/escalations", map[string]interface{}{
		"channel": "telegram",
		"reason":  "bored",
	})
	require.Equal(t, fiber.StatusBadRequest, code)

	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "oneof", resp.Fields["Channel"])
	assert.Equal(t, "required", resp.Fields["ContactIdentifier"])
	assert.Equal(t, "oneof", resp.Fields["Reason"])
}

func TestToggleLockUnknownConversation(t *testing.T) {
	a := newAPI(t)
	code, _ := a.do(t, http.MethodPatch, "/api/conversations/0f8fad5b-d9cb-469f-a165-70867728950e/lock", map[string]bool{"locked": true})
	assert.Equal(t, fiber.StatusNotFound, code)

	code, _ = a.do(t, http.MethodPatch, "/api/conversations/not-a-uuid/lock", map[string]bool{"locked": true})
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodPatch, "/api/conversations/0f8fad5b-d9cb-469f-a165-70867728950e/lock", map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestClosedConversationIsReadOnly(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(t, http.MethodPost, "/api/escalations", map[string]interface{}{
		"channel":            "whatsapp",
		"contact_identifier": "5511977776666",
		"reason":             "urgency",
	})
	require.Equal(t, fiber.StatusCreated, code, string(body))
	var created services.EscalationResult
	require.NoError(t, json.Unmarshal(body, &created))
	convID := created.Conversation.ID.String()

	code, _ = a.do(t, http.MethodPost, "/api/conversations/"+convID+"/close", nil)
	require.Equal(t, fiber.StatusOK, code)

	code, _ = a.do(t, http.MethodPatch, "/api/conversations/"+convID+"/lock", map[string]bool{"locked": false})
	assert.Equal(t, fiber.StatusConflict, code)

	code, _ = a.do(t, http.MethodPatch, "/api/escalations/"+created.Escalation.ID.String()+"/status", map[string]string{"status": "in_progress"})
	assert.Equal(t, fiber.StatusConflict, code)
}

func TestQueueEndpoints(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()

	job, err := a.queue.Enqueue(ctx, services.JobIngestMessage, map[string]string{"k": "v"}, jobs.EnqueueOptions{
		Lane:         jobs.LaneInboundMessage,
		TenantID:     a.tenant.ID.String(),
		PartitionKey: "p1",
	})
	require.NoError(t, err)

	code, body := a.do(t, http.MethodGet, "/api/queue/dead", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), `"total":0`)

	code, _ = a.do(t, http.MethodPost, "/api/queue/dead/"+job.ID.String()+"/requeue", nil)
	assert.Equal(t, fiber.StatusNotFound, code, "job is not dead")

	code, body = a.do(t, http.MethodPost, "/api/queue/jobs/"+job.ID.String()+"/cancel", nil)
	require.Equal(t, fiber.StatusOK, code, string(body))
	assert.Contains(t, string(body), `"status":"cancelled"`)
	code, _ = a.do(t, http.MethodPost, "/api/queue/jobs/"+job.ID.String()+"/cancel", nil)
	assert.Equal(t, fiber.StatusNotFound, code, "already cancelled")

	other, err := a.queue.Enqueue(ctx, services.JobIngestMessage, map[string]string{"k": "v"}, jobs.EnqueueOptions{
		Lane:     jobs.LaneInboundMessage,
		TenantID: "0f8fad5b-d9cb-469f-a165-70867728950e",
	})
	require.NoError(t, err)
	code, _ = a.do(t, http.MethodPost, "/api/queue/jobs/"+other.ID.String()+"/cancel", nil)
	assert.Equal(t, fiber.StatusNotFound, code, "another tenant's job")

	code, _ = a.do(t, http.MethodGet, "/api/queue/stats", nil)
	assert.Equal(t, fiber.StatusOK, code)

	code, _ = a.do(t, http.MethodGet, "/api/webhook-events?failed=true", nil)
	assert.Equal(t, fiber.StatusOK, code)
}

func TestWhatsAppQR(t *testing.T) {
	a := newAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/channels/whatsapp/qr?text=oi", nil)
	req.Header.Set(HeaderTenantID, a.tenant.ID.String())
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, _ := io.ReadAll(resp.Body)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
