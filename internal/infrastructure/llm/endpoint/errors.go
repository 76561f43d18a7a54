package endpoint

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StatusError is a non-2xx answer from a model endpoint.
type StatusError struct {
	Provider   string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s status: %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s status: %s: %s", e.Provider, e.Status, body)
}

// ReplyError is an error reported inside a 2xx body.
type ReplyError struct {
	Provider string
	Code     any
	Message  string
}

func (e *ReplyError) Error() string {
	if e.Code == nil {
		return fmt.Sprintf("%s reported error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s reported error %v: %s", e.Provider, e.Code, e.Message)
}

// ReplyErrorFrom turns the raw "error" member of a response into a
// *ReplyError. Absent or null members give nil. Objects contribute their
// code and message; any other JSON value is used verbatim as the message.
func ReplyErrorFrom(provider string, raw json.RawMessage) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var obj struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	}
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal(raw, &obj) == nil {
		if obj.Message == "" {
			obj.Message = trimmed
		}
		return &ReplyError{Provider: provider, Code: obj.Code, Message: obj.Message}
	}

	var text string
	if json.Unmarshal(raw, &text) == nil {
		return &ReplyError{Provider: provider, Message: text}
	}
	return &ReplyError{Provider: provider, Message: trimmed}
}
