package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/webhook"
)

// Job types carried on the dispatch lanes.
const (
	JobIngestMessage = "ingest_message"
	JobApplyStatus   = "apply_status"
)

// InboundJob is the queued form of one inbound message.
type InboundJob struct {
	TenantID string                 `json:"tenant_id"`
	Message  webhook.InboundMessage `json:"message"`
}

// StatusJob is the queued form of one delivery status update.
type StatusJob struct {
	TenantID string               `json:"tenant_id"`
	Status   webhook.StatusUpdate `json:"status"`
}

// PartitionKey keeps one contact's events in arrival order.
func PartitionKey(tenantID string, ev webhook.Event) string {
	var ch string
	switch e := ev.(type) {
	case webhook.InboundMessage:
		ch = e.Channel.String()
	case webhook.StatusUpdate:
		ch = e.Channel.String()
	}
	return tenantID + ":" + ch + ":" + ev.Subject()
}

func decode(job *jobs.Job, dest interface{}) error {
	if err := json.Unmarshal(job.Payload, dest); err != nil {
		return jobs.Permanent(fmt.Errorf("decode %s payload: %w", job.Type, err))
	}
	return nil
}

func parseTenant(id string) (uuid.UUID, error) {
	tid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, jobs.Permanent(fmt.Errorf("invalid tenant id %q: %w", id, err))
	}
	return tid, nil
}
