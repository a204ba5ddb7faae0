package ads

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatusTable(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{400, KindValidation},
		{401, KindAuthentication},
		{403, KindAuthentication},
		{404, KindValidation},
		{429, KindRateLimit},
		{500, KindAPI},
		{502, KindAPI},
		{503, KindAPI},
		{504, KindAPI},
	}

	for _, tc := range cases {
		e := Classify(tc.status, "", []byte(`{"error":{"message":"boom"}}`))
		assert.Equal(t, tc.kind, e.Kind, "status %d", tc.status)
		assert.Equal(t, tc.status, e.HTTPCode)
	}
}

func TestClassifyUnknownStatus(t *testing.T) {
	e := Classify(418, "", nil)
	assert.Equal(t, KindAPI, e.Kind)
	assert.Equal(t, 418, e.HTTPCode)
	assert.Equal(t, "UNKNOWN", e.APICode)
}

func TestClassify403IncludesRemediationHint(t *testing.T) {
	e := Classify(403, "", []byte(`{"error":{"message":"permission denied","status":"PERMISSION_DENIED"}}`))
	assert.Equal(t, KindAuthentication, e.Kind)
	assert.Contains(t, e.Message, "permission denied")
	assert.Contains(t, e.Message, "developer token")
	assert.Equal(t, "PERMISSION_DENIED", e.APICode)
}

func TestClassify400EnrichesFieldViolations(t *testing.T) {
	body := []byte(`{"error":{"message":"invalid request","details":[{"fieldViolations":[{"field":"conversions[0].conversionDateTime","description":"must not be in the future"}]}]}}`)
	e := Classify(400, "", body)
	assert.Equal(t, KindValidation, e.Kind)
	assert.Contains(t, e.Message, "conversions[0].conversionDateTime")
	assert.Contains(t, e.Message, "must not be in the future")
}

func TestClassifyRateLimitRetryAfterHeader(t *testing.T) {
	e := Classify(429, "5", []byte(`{"error":{"message":"slow down"}}`))
	require.Equal(t, KindRateLimit, e.Kind)
	assert.Equal(t, 5*time.Second, e.RetryAfter)
}

func TestClassifyRateLimitRetryDelayBody(t *testing.T) {
	body := []byte(`{"error":{"message":"slow down","details":[{"retryDelay":"2s"}]}}`)
	e := Classify(429, "", body)
	require.Equal(t, KindRateLimit, e.Kind)
	assert.Equal(t, 2*time.Second, e.RetryAfter)
}

func TestClassifyRateLimitNoHint(t *testing.T) {
	e := Classify(429, "", nil)
	assert.Equal(t, time.Duration(0), e.RetryAfter)
}

func TestClassifyGarbageBodyDoesNotPanic(t *testing.T) {
	e := Classify(500, "", []byte("<html>Internal Server Error</html>"))
	assert.Equal(t, KindAPI, e.Kind)
	assert.Contains(t, e.Message, "Internal Server Error")

	e = Classify(400, "", nil)
	assert.Equal(t, KindValidation, e.Kind)
	assert.Equal(t, "no response body", e.Message)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyTransportTimeout(t *testing.T) {
	e := ClassifyTransport(timeoutError{})
	assert.Equal(t, KindAPI, e.Kind)
	assert.Equal(t, "ETIMEDOUT", e.APICode)
	assert.Equal(t, 0, e.HTTPCode)
}

func TestClassifyTransportUnknown(t *testing.T) {
	e := ClassifyTransport(fmt.Errorf("something odd happened"))
	assert.Equal(t, KindAPI, e.Kind)
	assert.Equal(t, "UNKNOWN", e.APICode)
}

func TestClassifyTransportPassesThroughTypedErrors(t *testing.T) {
	original := Validationf("bad input")
	wrapped := fmt.Errorf("request failed: %w", original)

	e := ClassifyTransport(wrapped)
	assert.Same(t, original, e)
}

func TestErrorString(t *testing.T) {
	e := &Error{Kind: KindRateLimit, HTTPCode: 429, Message: "slow down"}
	assert.Equal(t, "RateLimitError (HTTP 429): slow down", e.Error())

	e = Validationf("missing field %s", "orderId")
	assert.Equal(t, "ValidationError: missing field orderId", e.Error())
}
