package ads

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Kind is the closed set of error categories surfaced by this package.
// Every failure a caller can observe is one of these four; the retry
// engine and the pipeline dispatch on Kind exhaustively.
type Kind int

const (
	// KindAuthentication covers credential and permission failures (401/403).
	// Never retried.
	KindAuthentication Kind = iota
	// KindValidation covers bad input shape or missing required fields
	// (400/404 and local pre-flight checks). Never retried.
	KindValidation
	// KindRateLimit covers upstream throttling (429). Always retried,
	// honoring a server-provided backoff hint when present.
	KindRateLimit
	// KindAPI covers everything else: 5xx, transport failures, unknown
	// statuses. Retried only for 5xx and recognized transport codes.
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "AuthenticationError"
	case KindValidation:
		return "ValidationError"
	case KindRateLimit:
		return "RateLimitError"
	default:
		return "ApiError"
	}
}

// Error is the typed error carried across the upload pipeline.
type Error struct {
	Kind       Kind
	Message    string
	HTTPCode   int
	APICode    string
	RetryAfter time.Duration // >0 only when the server supplied a hint
}

func (e *Error) Error() string {
	if e.HTTPCode > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.HTTPCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Validationf builds a KindValidation error.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Authenticationf builds a KindAuthentication error.
func Authenticationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthentication, Message: fmt.Sprintf(format, args...)}
}

// APIErrorf builds a KindAPI error with an upstream status and code.
func APIErrorf(httpCode int, apiCode, format string, args ...interface{}) *Error {
	return &Error{Kind: KindAPI, HTTPCode: httpCode, APICode: apiCode, Message: fmt.Sprintf(format, args...)}
}

// errorBody is the upstream JSON error envelope. Parsed defensively:
// any shape mismatch simply yields fewer details, never a failure.
type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			RetryDelay      string `json:"retryDelay"`
			FieldViolations []struct {
				Field       string `json:"field"`
				Description string `json:"description"`
			} `json:"fieldViolations"`
		} `json:"details"`
	} `json:"error"`
}

// Classify maps an HTTP status, the Retry-After header value, and the raw
// response body into a typed Error. It never fails: an unparseable body
// degrades to the raw message.
func Classify(statusCode int, retryAfterHeader string, body []byte) *Error {
	var parsed errorBody
	_ = json.Unmarshal(body, &parsed)

	msg := parsed.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = "no response body"
	}
	apiCode := parsed.Error.Status

	switch {
	case statusCode == 400:
		if details := fieldViolationSummary(parsed); details != "" {
			msg = msg + " (" + details + ")"
		}
		return &Error{Kind: KindValidation, HTTPCode: statusCode, APICode: apiCode, Message: msg}
	case statusCode == 401:
		return &Error{Kind: KindAuthentication, HTTPCode: statusCode, APICode: apiCode, Message: msg}
	case statusCode == 403:
		hint := "check that the developer token is approved, the authenticated user has access to this account, and the account is not a manager account when uploading directly"
		return &Error{Kind: KindAuthentication, HTTPCode: statusCode, APICode: apiCode, Message: msg + "; " + hint}
	case statusCode == 404:
		return &Error{Kind: KindValidation, HTTPCode: statusCode, APICode: apiCode, Message: msg}
	case statusCode == 429:
		return &Error{
			Kind:       KindRateLimit,
			HTTPCode:   statusCode,
			APICode:    apiCode,
			Message:    msg,
			RetryAfter: retryAfterHint(retryAfterHeader, parsed),
		}
	case statusCode >= 500:
		return &Error{Kind: KindAPI, HTTPCode: statusCode, APICode: apiCode, Message: msg}
	default:
		if apiCode == "" {
			apiCode = "UNKNOWN"
		}
		return &Error{Kind: KindAPI, HTTPCode: statusCode, APICode: apiCode, Message: msg}
	}
}

func fieldViolationSummary(parsed errorBody) string {
	var parts []string
	for _, d := range parsed.Error.Details {
		for _, v := range d.FieldViolations {
			if v.Field != "" && v.Description != "" {
				parts = append(parts, v.Field+": "+v.Description)
			} else if v.Description != "" {
				parts = append(parts, v.Description)
			}
		}
	}
	return strings.Join(parts, "; ")
}

// retryAfterHint extracts the server backoff hint, preferring the
// Retry-After header (whole seconds) over a retryDelay body detail ("5s").
func retryAfterHint(header string, parsed errorBody) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	for _, d := range parsed.Error.Details {
		if d.RetryDelay == "" {
			continue
		}
		if dur, err := time.ParseDuration(d.RetryDelay); err == nil && dur > 0 {
			return dur
		}
	}
	return 0
}

// ClassifyTransport maps a transport-level failure (no HTTP response at
// all) into a typed Error. The APICode identifies the failure class so
// the retry engine can decide eligibility.
func ClassifyTransport(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	code := "UNKNOWN"
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		code = "ENOTFOUND"
		if dnsErr.IsTemporary {
			code = "EAI_AGAIN"
		}
	case errors.As(err, &netErr) && netErr.Timeout():
		code = "ETIMEDOUT"
	case errors.Is(err, syscall.ECONNRESET):
		code = "ECONNRESET"
	case errors.Is(err, syscall.ECONNREFUSED):
		code = "ECONNREFUSED"
	case errors.Is(err, syscall.EPIPE):
		code = "EPIPE"
	}

	return &Error{Kind: KindAPI, APICode: code, Message: err.Error()}
}
