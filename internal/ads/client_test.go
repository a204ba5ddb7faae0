package ads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(serverURL string) *Client {
	return &Client{
		baseURL:        serverURL,
		developerToken: "dev-token-123",
		loginAccountID: "9998887770",
		httpClient:     &http.Client{Timeout: 5 * time.Second},
	}
}

func TestUploadConversions(t *testing.T) {
	var gotPath string
	var gotReq UploadRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "dev-token-123", r.Header.Get("X-Developer-Token"))
		assert.Equal(t, "9998887770", r.Header.Get("X-Login-Account"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(UploadResponse{
			Results: []ConversionResult{{ConversionAction: "accounts/123/conversionActions/555"}},
		})
	}))
	defer server.Close()

	client := testClient(server.URL)
	resp, err := client.UploadConversions(context.Background(), "1234567890", UploadRequest{
		Conversions:          []ConversionRecord{{ConversionAction: "accounts/123/conversionActions/555"}},
		PartialFailurePolicy: PartialFailurePolicyContinue,
	})
	require.NoError(t, err)

	assert.Equal(t, "/accounts/1234567890:uploadConversions", gotPath)
	assert.Equal(t, PartialFailurePolicyContinue, gotReq.PartialFailurePolicy)
	require.Len(t, resp.Results, 1)
}

func TestUploadConversionsAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid credentials","status":"UNAUTHENTICATED"}}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.UploadConversions(context.Background(), "1234567890", UploadRequest{})
	require.Error(t, err)

	ae, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindAuthentication, ae.Kind)
	assert.Equal(t, 401, ae.HTTPCode)
	assert.Equal(t, "UNAUTHENTICATED", ae.APICode)
}

func TestUploadConversionsRateLimitWithRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.UploadConversions(context.Background(), "1234567890", UploadRequest{})
	require.Error(t, err)

	ae, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindRateLimit, ae.Kind)
	assert.Equal(t, 3*time.Second, ae.RetryAfter)
}

func TestUploadConversionsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := testClient(server.URL)
	_, err := client.UploadConversions(context.Background(), "1234567890", UploadRequest{})
	require.Error(t, err)

	ae, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindAPI, ae.Kind)
	assert.Equal(t, 0, ae.HTTPCode)
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/1234567890/search", r.URL.Path)

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "conversion_action")

		json.NewEncoder(w).Encode(SearchResponse{Results: []SearchRow{
			{ConversionAction: &ConversionActionRow{ResourceName: "accounts/1234567890/conversionActions/555", ID: "555", Name: "Purchase"}},
		}})
	}))
	defer server.Close()

	client := testClient(server.URL)
	actions, err := client.ListConversionActions(context.Background(), "1234567890")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "Purchase", actions[0].Name)
}

func TestListManagedAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SearchResponse{Results: []SearchRow{
			{Account: &AccountRow{ID: "1111111111", Name: "Storefront"}},
			{Account: &AccountRow{ID: "2222222222", Name: "App"}},
			{}, // rows without an account block are skipped
		}})
	}))
	defer server.Close()

	client := testClient(server.URL)
	accounts, err := client.ListManagedAccounts(context.Background(), "9998887770")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Storefront", accounts[0].Name)
}

func TestUploadConversionsBadResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.UploadConversions(context.Background(), "1234567890", UploadRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse upload response")
}
