package channel

import (
	"encoding/json"
	"strings"
)

// GraphError is the error envelope returned by every Meta Graph API endpoint.
type GraphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// GraphFailure turns a non-2xx Graph API response into a classified DeliveryError.
func GraphFailure(ch Channel, status int, body []byte) *DeliveryError {
	var ge GraphError
	_ = json.Unmarshal(body, &ge)

	msg := ge.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return &DeliveryError{
		Kind:       Classify(status, ge.Error.Code),
		Channel:    ch,
		StatusCode: status,
		Code:       ge.Error.Code,
		Message:    msg,
	}
}
