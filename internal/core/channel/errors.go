package channel

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind separates failures a caller may retry from those it must not.
type ErrorKind string

const (
	Permanent ErrorKind = "permanent"
	Transient ErrorKind = "transient"
)

// DeliveryError is the only error type returned by Sender implementations.
type DeliveryError struct {
	Kind       ErrorKind
	Channel    Channel
	StatusCode int
	Code       int
	Message    string
	Err        error
}

func (e *DeliveryError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s delivery failed on %s (code %d): %s", e.Kind, e.Channel, e.Code, msg)
	}
	return fmt.Sprintf("%s delivery failed on %s: %s", e.Kind, e.Channel, msg)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a delivery failure that will not succeed on retry.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == Permanent
}

// IsTransient reports whether err is a retryable delivery failure.
func IsTransient(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == Transient
}

// Graph API error codes that mean "slow down" rather than "never".
var throttleCodes = map[int]bool{
	4:      true, // application request limit
	80007:  true, // instagram rate limit
	130429: true, // cloud api throughput reached
	131048: true, // spam rate limit
	131056: true, // pair rate limit
}

// Classify maps an HTTP status and provider error code onto an error kind.
func Classify(status, code int) ErrorKind {
	switch {
	case throttleCodes[code]:
		return Transient
	case status == http.StatusTooManyRequests, status >= 500, status == 0:
		return Transient
	default:
		return Permanent
	}
}

// NewTransient wraps a network level failure.
func NewTransient(ch Channel, err error) *DeliveryError {
	return &DeliveryError{Kind: Transient, Channel: ch, Err: err}
}
