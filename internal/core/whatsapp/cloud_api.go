// internal/core/whatsapp/cloud_api.go
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
)

// CloudAPIClient sends messages through the WhatsApp Cloud API (official Business API).
// Documentation: https://developers.facebook.com/docs/whatsapp/cloud-api
type CloudAPIClient struct {
	baseURL    string // https://graph.facebook.com/{version}
	apiVersion string
	client     *http.Client
}

// CloudAPIConfig holds configuration for the WhatsApp Cloud API
type CloudAPIConfig struct {
	BaseURL    string // override for tests, default graph.facebook.com
	APIVersion string // e.g. "v21.0"
	Timeout    time.Duration
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// NewCloudAPIClient creates a new WhatsApp Cloud API client
func NewCloudAPIClient(config CloudAPIConfig) *CloudAPIClient {
	if config.APIVersion == "" {
		config.APIVersion = "v21.0"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://graph.facebook.com"
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &CloudAPIClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/") + "/" + config.APIVersion,
		apiVersion: config.APIVersion,
		client:     &http.Client{Timeout: config.Timeout},
	}
}

// SendText sends a text message from the tenant's phone number id and
// returns the wamid assigned by the provider.
func (c *CloudAPIClient) SendText(ctx context.Context, creds channel.Credentials, to, text string) (string, error) {
	if creds.AccountID == "" || creds.AccessToken == "" {
		return "", &channel.DeliveryError{Kind: channel.Permanent, Channel: channel.WhatsApp, Message: "phone number id or access token missing"}
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                cleanPhoneNumber(to),
		"type":              "text",
		"text": map[string]interface{}{
			"preview_url": false,
			"body":        text,
		},
	}

	var out sendResponse
	if err := c.sendRequest(ctx, creds.AccessToken, "/"+creds.AccountID+"/messages", payload, &out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 {
		return "", &channel.DeliveryError{Kind: channel.Transient, Channel: channel.WhatsApp, Message: "response carried no message id"}
	}
	return out.Messages[0].ID, nil
}

// sendRequest posts payload and decodes a 2xx body into out. Every failure
// comes back as a *channel.DeliveryError.
func (c *CloudAPIClient) sendRequest(ctx context.Context, token, endpoint string, payload, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return &channel.DeliveryError{Kind: channel.Permanent, Channel: channel.WhatsApp, Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return &channel.DeliveryError{Kind: channel.Permanent, Channel: channel.WhatsApp, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return channel.NewTransient(channel.WhatsApp, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return channel.GraphFailure(channel.WhatsApp, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &channel.DeliveryError{Kind: channel.Transient, Channel: channel.WhatsApp, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}

	log.Debug().Str("endpoint", endpoint).Msg("✅ Cloud API request successful")
	return nil
}

// cleanPhoneNumber strips JID suffixes and the leading + sign.
func cleanPhoneNumber(phone string) string {
	if i := strings.IndexByte(phone, '@'); i > 0 {
		phone = phone[:i]
	}
	return strings.TrimPrefix(strings.TrimSpace(phone), "+")
}
