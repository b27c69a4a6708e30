package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
)

// SendAPIClient delivers Instagram direct messages through the Messenger
// Platform Send API. The recipient is the Instagram-scoped user id (IGSID).
type SendAPIClient struct {
	baseURL string
	client  *http.Client
}

type Config struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

func NewSendAPIClient(cfg Config) *SendAPIClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v21.0"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SendAPIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIVersion,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// SendText posts a text message on behalf of the tenant's Instagram account.
func (c *SendAPIClient) SendText(ctx context.Context, creds channel.Credentials, recipient, text string) (string, error) {
	if creds.AccessToken == "" {
		return "", &channel.DeliveryError{Kind: channel.Permanent, Channel: channel.Instagram, Message: "access token missing"}
	}

	account := creds.AccountID
	if account == "" {
		account = "me"
	}

	var body sendRequest
	body.Recipient.ID = recipient
	body.Message.Text = text
	raw, err := json.Marshal(body)
	if err != nil {
		return "", &channel.DeliveryError{Kind: channel.Permanent, Channel: channel.Instagram, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+account+"/messages", bytes.NewReader(raw))
	if err != nil {
		return "", &channel.DeliveryError{Kind: channel.Permanent, Channel: channel.Instagram, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", channel.NewTransient(channel.Instagram, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", channel.GraphFailure(channel.Instagram, resp.StatusCode, respBody)
	}

	var out sendResponse
	if err := json.Unmarshal(respBody, &out); err != nil || out.MessageID == "" {
		return "", &channel.DeliveryError{Kind: channel.Transient, Channel: channel.Instagram, Message: "response carried no message id"}
	}
	return out.MessageID, nil
}
