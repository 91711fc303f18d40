package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the closed set of error variants the service returns.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindConflict
	KindTooManyRequests
	KindValidation
	KindTimeout
)

// Machine-readable error codes.
const (
	CodeNotFound        = "not_found"
	CodeBadRequest      = "bad_request"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeConflict        = "conflict"
	CodeTooManyRequests = "too_many_requests"
	CodeInternal        = "internal_server_error"
	CodeGatewayTimeout  = "gateway_timeout"
	CodeValidation      = "validation"
	CodeTokenExpired    = "token_expired"
	CodeTokenInvalid    = "token_invalid"
	CodeTokenRevoked    = "token_revoked"
)

var kindInfo = map[Kind]struct {
	status int
	code   string
	msg    string
}{
	KindInternal:        {http.StatusInternalServerError, CodeInternal, "Internal server error"},
	KindNotFound:        {http.StatusNotFound, CodeNotFound, "Not found"},
	KindBadRequest:      {http.StatusBadRequest, CodeBadRequest, "Bad request"},
	KindUnauthorized:    {http.StatusUnauthorized, CodeUnauthorized, "Unauthorized"},
	KindForbidden:       {http.StatusForbidden, CodeForbidden, "Forbidden"},
	KindConflict:        {http.StatusConflict, CodeConflict, "Conflict"},
	KindTooManyRequests: {http.StatusTooManyRequests, CodeTooManyRequests, "Too many requests"},
	KindValidation:      {http.StatusBadRequest, CodeValidation, "Validation failed"},
	KindTimeout:         {http.StatusGatewayTimeout, CodeGatewayTimeout, "Gateway Timeout"},
}

// Error is the typed error returned by every service operation and decoded
// back by SDKClient. It implements the error interface and can be used both
// by the server (to write HTTP responses) and by the SDK client.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Details map[string]any

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Fatal reports whether the error is a server fault.
func (e *Error) Fatal() bool { return e.Status >= 500 }

// Option customises an Error built by a factory.
type Option func(*Error)

// WithCode overrides the default code for the kind.
func WithCode(code string) Option {
	return func(e *Error) { e.Code = code }
}

// WithDetails attaches structured details.
func WithDetails(d map[string]any) Option {
	return func(e *Error) { e.Details = d }
}

// WithCause records the underlying error for logs. It is never rendered.
func WithCause(err error) Option {
	return func(e *Error) { e.cause = err }
}

// New builds an Error of the given kind. An empty msg uses the kind's
// default message.
func New(kind Kind, msg string, opts ...Option) *Error {
	info, ok := kindInfo[kind]
	if !ok {
		info = kindInfo[KindInternal]
		kind = KindInternal
	}
	if msg == "" {
		msg = info.msg
	}
	e := &Error{Kind: kind, Status: info.status, Code: info.code, Message: msg}
	for _, o := range opts {
		o(e)
	}
	return e
}

func NotFound(msg string, opts ...Option) *Error   { return New(KindNotFound, msg, opts...) }
func BadRequest(msg string, opts ...Option) *Error { return New(KindBadRequest, msg, opts...) }
func Unauthorized(msg string, opts ...Option) *Error {
	return New(KindUnauthorized, msg, opts...)
}
func Forbidden(msg string, opts ...Option) *Error { return New(KindForbidden, msg, opts...) }
func Conflict(msg string, opts ...Option) *Error  { return New(KindConflict, msg, opts...) }
func TooManyRequests(msg string, opts ...Option) *Error {
	return New(KindTooManyRequests, msg, opts...)
}
func Validation(details map[string]any) *Error {
	return New(KindValidation, "", WithDetails(details))
}
func Timeout() *Error { return New(KindTimeout, "") }

// Internal wraps an unexpected error. The cause is kept for logging while
// the client only sees the generic message.
func Internal(err error) *Error {
	return New(KindInternal, "", WithCause(err))
}

// As extracts an *Error from err, wrapping anything else as Internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsCode reports whether err is an *Error carrying code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// ErrorBody is the "error" member of the wire envelope.
type ErrorBody struct {
	Status     string         `json:"status"`
	StatusCode int            `json:"status_code"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// Meta is the "meta" member of the wire envelope.
type Meta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEnvelope is the JSON document for every error response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
	Meta  Meta      `json:"meta"`
}

// Envelope renders e for the wire.
func (e *Error) Envelope(requestID string, now time.Time) ErrorEnvelope {
	status := "fail"
	if e.Fatal() {
		status = "error"
	}
	return ErrorEnvelope{
		Error: ErrorBody{
			Status:     status,
			StatusCode: e.Status,
			Code:       e.Code,
			Message:    e.Message,
			Details:    e.Details,
		},
		Meta: Meta{RequestID: requestID, Timestamp: now.UTC()},
	}
}

// WriteError writes e as a JSON error envelope.
func (e *Error) WriteError(w http.ResponseWriter, requestID string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	if ra, ok := e.Details["retryAfter"]; ok {
		w.Header().Set("Retry-After", fmt.Sprint(ra))
	}
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.Envelope(requestID, time.Now()))
}

// parseErrorResponse turns a non-2xx response into an *Error. Bodies that
// are not an envelope fall back to the status code.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var env ErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		return &Error{
			Kind:    kindForStatus(resp.StatusCode, env.Error.Code),
			Status:  resp.StatusCode,
			Code:    env.Error.Code,
			Message: env.Error.Message,
			Details: env.Error.Details,
		}
	}

	e := New(kindForStatus(resp.StatusCode, ""), "")
	e.Status = resp.StatusCode
	e.Message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return e
}

func kindForStatus(status int, code string) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest:
		if code == CodeValidation {
			return KindValidation
		}
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindTooManyRequests
	case http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindInternal
	}
}
