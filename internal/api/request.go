package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/RichardoC/libelnet-chat/internal/models"
)

type chatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

// decodeChatRequest parses and validates a relay request body. Nothing is
// returned unless every message is valid.
func decodeChatRequest(body io.Reader) ([]models.WireMessage, error) {
	dec := json.NewDecoder(body)
	var payload json.RawMessage
	if err := dec.Decode(&payload); err != nil {
		return nil, bodyError(err)
	}
	// The body must hold exactly one JSON value.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return nil, bodyError(err)
	}
	var req chatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		// valid JSON, but not an object
		return nil, validationError(msgMissingArray)
	}

	raw := bytes.TrimSpace(req.Messages)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, validationError(msgMissingArray)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &Error{Kind: KindValidation, Message: msgInvalidJSON, Err: err}
	}
	if len(items) == 0 {
		return nil, validationError(msgMissingArray)
	}

	msgs := make([]models.WireMessage, 0, len(items))
	for _, item := range items {
		var fields map[string]any
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			return nil, validationError(msgInvalidFormat)
		}
		content, ok := fields["content"].(string)
		if isBlank(fields["role"]) || !ok || content == "" {
			return nil, validationError(msgInvalidFormat)
		}
		role, ok := fields["role"].(string)
		if !ok || !models.Role(role).Valid() {
			return nil, validationError(msgInvalidRole)
		}
		msgs = append(msgs, models.WireMessage{Role: models.Role(role), Content: content})
	}
	return msgs, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &Error{Kind: KindValidation, Message: msgTooLarge, Err: err}
	}
	return &Error{Kind: KindValidation, Message: msgInvalidJSON, Err: err}
}

// isBlank reports whether a decoded field counts as absent: missing, null,
// false, zero or the empty string.
func isBlank(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	}
	return false
}
