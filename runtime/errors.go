package phototheory

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Stable error codes carried in the error envelope.
const (
	CodeBadRequest       = "app.bad_request"
	CodeNotFound         = "app.not_found"
	CodeMethodNotAllowed = "app.method_not_allowed"
	CodeConflict         = "app.conflict"
	CodeTooLarge         = "app.too_large"
	CodeRateLimited      = "app.rate_limited"
	CodeTimeout          = "app.timeout"
	CodeUnavailable      = "app.unavailable"
	CodeInternal         = "app.internal"
)

const (
	messageInvalidJSON        = "invalid json"
	messageInvalidQueryString = "invalid query string"
	messageNotFound           = "not found"
	messageMethodNotAllowed   = "method not allowed"
	messageRequestTooLarge    = "request too large"
	messageResponseTooLarge   = "response too large"
	messageTimeout            = "request timeout"
	messageInternal           = "internal error"
)

// AppError is a client-safe error with a stable error code.
type AppError struct {
	Code    string
	Message string
	// Headers are added to the error response, e.g. retry-after.
	Headers map[string][]string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an AppError.
func NewError(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// BadRequest, NotFound and Conflict are shorthands for the common client errors.
func BadRequest(message string) *AppError { return NewError(CodeBadRequest, message) }

func NotFound(message string) *AppError { return NewError(CodeNotFound, message) }

func Conflict(message string) *AppError { return NewError(CodeConflict, message) }

var statusByCode = map[string]int{
	CodeBadRequest:       400,
	CodeNotFound:         404,
	CodeMethodNotAllowed: 405,
	CodeTimeout:          408,
	CodeConflict:         409,
	CodeTooLarge:         413,
	CodeRateLimited:      429,
	CodeUnavailable:      503,
	CodeInternal:         500,
}

// statusForErrorCode maps unknown codes to 500.
func statusForErrorCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return 500
}

// errorEnvelope is the JSON body of every error response.
type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func errorResponse(code, message string, headers map[string][]string, requestID string) Response {
	var env errorEnvelope
	env.Error.Code, env.Error.Message, env.Error.RequestID = code, message, requestID
	body, _ := json.Marshal(env)

	headers = canonicalizeHeaders(headers)
	headers["content-type"] = []string{"application/json; charset=utf-8"}
	return Response{Status: statusForErrorCode(code), Headers: headers, Body: body}
}

// asAppError treats anything that is not an *AppError as app.internal with a generic message,
// so internal details never reach the client.
func asAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewError(CodeInternal, messageInternal)
}

func responseForError(err error, requestID string) Response {
	appErr := asAppError(err)
	return errorResponse(appErr.Code, appErr.Message, appErr.Headers, requestID)
}

func errorCodeForError(err error) string {
	return asAppError(err).Code
}
