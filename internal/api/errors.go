package api

import (
	"errors"
	"net/http"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindRateLimit
	KindUpstream
	KindConfig
)

const (
	msgRateLimited   = "Rate limit exceeded. Please try again later."
	msgUpstream      = "Failed to generate response"
	msgInternal      = "Internal server error"
	msgInvalidJSON   = "Invalid JSON payload"
	msgMissingArray  = "Invalid request body: messages array is required"
	msgInvalidFormat = "Invalid message format"
	msgInvalidRole   = "Invalid message role"
	msgTooLarge      = "Request body too large"
)

// Error is the single error type handlers return to clients. Kind decides the
// status; Message is what the client may see; Err is kept for the logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func rateLimitError() *Error {
	return &Error{Kind: KindRateLimit, Message: msgRateLimited}
}

func upstreamError(err error) *Error {
	return &Error{Kind: KindUpstream, Message: msgUpstream, Err: err}
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
}

// errorResponse maps any error to the status and message sent to the
// client. Upstream and config detail is only exposed outside production.
func errorResponse(err error, production bool) (int, string) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError, msgInternal
	}

	switch apiErr.Kind {
	case KindValidation:
		return http.StatusBadRequest, apiErr.Message
	case KindRateLimit:
		return http.StatusTooManyRequests, msgRateLimited
	case KindUpstream, KindConfig:
		if production || apiErr.Err == nil {
			return http.StatusInternalServerError, apiErr.Message
		}
		return http.StatusInternalServerError, apiErr.Message + ": " + apiErr.Err.Error()
	default:
		return http.StatusInternalServerError, msgInternal
	}
}
