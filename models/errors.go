package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrorKind classifies an acquisition failure. The string value is the
// stable code exposed in API responses.
type ErrorKind string

// Acquisition error kinds.
const (
	KindNavigation ErrorKind = "NAVIGATION_FAILED"
	KindTimeout    ErrorKind = "UPSTREAM_TIMEOUT"
	KindWafBlocked ErrorKind = "WAF_BLOCKED"
	KindParse      ErrorKind = "PARSE_FAILED"
	KindClient     ErrorKind = "CLIENT_ERROR"
)

// Error codes produced by the API layer itself.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeNotFound     = "FUND_NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// PreviewLimit bounds the upstream body excerpt carried by an error.
const PreviewLimit = 500

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code          string    `json:"code"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// AcquisitionError is the single error type every acquisition stage returns.
// Kind selects the failure class; the remaining fields are filled when known.
type AcquisitionError struct {
	Kind          ErrorKind
	Message       string
	Operation     string        // step that failed, e.g. "consume BindHistoryInfo"
	Timeout       time.Duration // budget that ran out, TimeoutError only
	Preview       string        // bounded upstream body excerpt
	CorrelationID string
	Timestamp     time.Time
	Err           error // wrapped original error
}

func (e *AcquisitionError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Operation != "" {
		b.WriteString(" [" + e.Operation + "]")
	}
	b.WriteString(": " + e.Message)
	if e.Timeout > 0 {
		fmt.Fprintf(&b, " (timeout %s)", e.Timeout)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *AcquisitionError) ToDetail() *ErrorDetail {
	return &ErrorDetail{
		Code:          string(e.Kind),
		Message:       e.Message,
		CorrelationID: e.CorrelationID,
		Timestamp:     e.Timestamp,
	}
}

func newError(kind ErrorKind, op, msg string, err error) *AcquisitionError {
	return &AcquisitionError{
		Kind:          kind,
		Message:       msg,
		Operation:     op,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Err:           err,
	}
}

// NewNavigationError reports a page that could not be loaded.
func NewNavigationError(op, msg string, err error) *AcquisitionError {
	return newError(KindNavigation, op, msg, err)
}

// NewTimeoutError reports a budget that ran out before data appeared.
func NewTimeoutError(op string, timeout time.Duration, msg string) *AcquisitionError {
	e := newError(KindTimeout, op, msg, nil)
	e.Timeout = timeout
	return e
}

// NewWafBlockedError reports markup where data was expected.
func NewWafBlockedError(op, body string) *AcquisitionError {
	msg := "upstream returned markup instead of data"
	if title := MarkupTitle(body); title != "" {
		msg += fmt.Sprintf(" (page title %q)", title)
	}
	e := newError(KindWafBlocked, op, msg, nil)
	e.Preview = Preview(body)
	return e
}

// NewParseError reports an unexpected payload shape.
func NewParseError(op, msg, body string, err error) *AcquisitionError {
	e := newError(KindParse, op, msg, err)
	e.Preview = Preview(body)
	return e
}

// NewClientError reports an interaction or automation failure.
func NewClientError(op, msg string, err error) *AcquisitionError {
	return newError(KindClient, op, msg, err)
}

// AsAcquisitionError unwraps err to an *AcquisitionError if it holds one.
func AsAcquisitionError(err error) (*AcquisitionError, bool) {
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err is an AcquisitionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ae, ok := AsAcquisitionError(err)
	return ok && ae.Kind == kind
}

// IsMarkup reports whether a body is HTML rather than data. It is the only
// place a WAF block is recognised.
func IsMarkup(body string) bool {
	s := strings.TrimLeft(body, " \t\r\n\uFEFF")
	return strings.HasPrefix(s, "<")
}

// Preview returns at most PreviewLimit runes of body.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= PreviewLimit {
		return body
	}
	runes := []rune(body)
	return string(runes[:PreviewLimit])
}
