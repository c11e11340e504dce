package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FetchError is the only error shape API reads surface to callers.
type FetchError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsAborted reports whether err comes from a cancelled request. Aborted requests are never shown to users.
func IsAborted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// AsFetchError converts any error into the FetchError shape. Transport failures get status 0.
func AsFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Status: 0, Message: err.Error()}
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

func newFetchError(status int, body []byte) *FetchError {
	msg := messageFromBody(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &FetchError{Status: status, Message: msg}
}

func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	// Field validation errors come back as {"field": ["reason", ...]}
	var parts []string
	for field, v := range payload {
		if list, ok := v.([]any); ok && len(list) > 0 {
			if s, ok := list[0].(string); ok {
				parts = append(parts, field+": "+s)
			}
		}
	}
	return strings.Join(parts, "; ")
}
