package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/ignite/conversion-relay/internal/config"
)

// HTTPDoer is the interface for executing HTTP requests. *http.Client
// satisfies it; tests inject fakes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the conversion-upload API. It does not retry; the
// retry engine wraps whole operations so a batch upload retries as a
// unit. Every failing call returns a typed *Error.
type Client struct {
	baseURL        string
	developerToken string
	loginAccountID string
	httpClient     HTTPDoer
}

// NewClient creates an API client whose transport refreshes OAuth2
// access tokens from the configured refresh token.
func NewClient(cfg config.AdsConfig) *Client {
	oc := &oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuth.TokenURL},
	}
	ts := oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.OAuth.RefreshToken})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = cfg.Timeout()

	return &Client{
		baseURL:        cfg.BaseURL,
		developerToken: cfg.DeveloperToken,
		loginAccountID: cfg.LoginAccountID,
		httpClient:     httpClient,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// doRequest performs an authenticated JSON request. Non-2xx responses
// come back as a classified *Error; transport failures likewise.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Developer-Token", c.developerToken)
	if c.loginAccountID != "" {
		req.Header.Set("X-Login-Account", c.loginAccountID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, Classify(resp.StatusCode, resp.Header.Get("Retry-After"), respBody)
	}

	return respBody, nil
}

// UploadConversions sends one batch of conversions to
// POST /accounts/{accountID}:uploadConversions.
func (c *Client) UploadConversions(ctx context.Context, accountID string, req UploadRequest) (*UploadResponse, error) {
	path := fmt.Sprintf("/accounts/%s:uploadConversions", accountID)

	respBody, err := c.doRequest(ctx, http.MethodPost, path, req)
	if err != nil {
		return nil, err
	}

	var response UploadResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}

	return &response, nil
}

// Search runs a read-only lookup query against
// POST /accounts/{accountID}/search.
func (c *Client) Search(ctx context.Context, accountID, query string) ([]SearchRow, error) {
	path := fmt.Sprintf("/accounts/%s/search", accountID)

	respBody, err := c.doRequest(ctx, http.MethodPost, path, SearchRequest{Query: query})
	if err != nil {
		return nil, err
	}

	var response SearchResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return response.Results, nil
}

// ListManagedAccounts returns the accounts selectable as upload targets
// under the authenticated (manager) account.
func (c *Client) ListManagedAccounts(ctx context.Context, accountID string) ([]AccountRow, error) {
	rows, err := c.Search(ctx, accountID, "SELECT account.id, account.descriptive_name, account.manager FROM accessible_accounts")
	if err != nil {
		return nil, err
	}

	var accounts []AccountRow
	for _, row := range rows {
		if row.Account != nil {
			accounts = append(accounts, *row.Account)
		}
	}
	return accounts, nil
}

// ListConversionActions returns the conversion action resources defined
// on the account.
func (c *Client) ListConversionActions(ctx context.Context, accountID string) ([]ConversionActionRow, error) {
	rows, err := c.Search(ctx, accountID, "SELECT conversion_action.resource_name, conversion_action.id, conversion_action.name FROM conversion_action")
	if err != nil {
		return nil, err
	}

	var actions []ConversionActionRow
	for _, row := range rows {
		if row.ConversionAction != nil {
			actions = append(actions, *row.ConversionAction)
		}
	}
	return actions, nil
}
