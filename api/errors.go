package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"timebank/chat"
	"timebank/rating"
)

// Kind classifies a failed call for the page.
type Kind string

const (
	KindNotAuthenticated Kind = "not_authenticated"
	KindForbidden        Kind = "forbidden"
	KindNetwork          Kind = "network"
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
)

// Error is the only error type the client returns besides context errors.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("api: ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NotAuthenticated is returned before any request when no credential is set.
func NotAuthenticated() *Error {
	return &Error{Kind: KindNotAuthenticated}
}

// Validation wraps a local validation failure so it renders like a server one.
func Validation(message string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: cause}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// Retryable reports whether repeating the call may succeed.
func Retryable(err error) bool {
	return IsKind(err, KindNetwork)
}

var defaultMessages = map[Kind]string{
	KindNotAuthenticated: "Please log in.",
	KindForbidden:        "You can no longer do that. The handshake has been refreshed.",
	KindNetwork:          "Network error. Please try again.",
	KindValidation:       "Please check your input and try again.",
	KindNotFound:         "That handshake no longer exists.",
}

// UserMessage renders err as text for the user. Server-provided text wins for
// everything except transport failures.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "Cancelled."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return defaultMessages[KindNetwork]
	}
	var e *Error
	if !errors.As(err, &e) {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			return "Message cannot be empty."
		case errors.Is(err, rating.ErrInvalidSubmission):
			return defaultMessages[KindValidation]
		}
		return "Something went wrong."
	}
	if e.Message != "" && e.Kind != KindNetwork {
		return e.Message
	}
	return defaultMessages[e.Kind]
}

// fromStatus maps an HTTP failure to the taxonomy.
func fromStatus(status int, body []byte) *Error {
	e := &Error{Status: status, Message: serverMessage(body)}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindNotAuthenticated
	case status == http.StatusForbidden, status == http.StatusConflict:
		e.Kind = KindForbidden
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status >= 500:
		e.Kind = KindNetwork
	default:
		e.Kind = KindValidation
	}
	return e
}

// serverMessage extracts the human text from an error body. The backend uses
// {"error": ...}, {"detail": ...} or field maps like {"hours": ["..."]}.
func serverMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message"} {
		if raw, ok := payload[key]; ok {
			if s := flatten(raw); s != "" {
				return s
			}
		}
	}
	for key, raw := range payload {
		if s := flatten(raw); s != "" {
			return key + ": " + s
		}
	}
	return ""
}

func flatten(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, " "))
	}
	return ""
}
