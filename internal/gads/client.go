// Package gads is the Google Ads REST API client used for offline click
// conversion uploads. It speaks two endpoints: the OAuth2 token endpoint
// (refresh-token grant) and the Ads API (upload, mutate, search).
package gads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/ignite/gads-reporter/internal/config"
	"github.com/ignite/gads-reporter/internal/diaglog"
	"github.com/ignite/gads-reporter/internal/kvstore"
	"github.com/ignite/gads-reporter/internal/pkg/httpretry"
)

// Client is the Google Ads API client for a single credential set.
// Construct one per operation from the merged credentials; the token cache
// behind it is shared process-wide, so rebuilding clients is cheap.
type Client struct {
	creds      Credentials
	apiBaseURL string
	apiVersion string
	tokenURL   string
	cache      kvstore.Store
	dlog       *diaglog.Logger
	httpClient httpretry.HTTPDoer

	lastError string
	lastDebug string
}

// NewClient creates a Google Ads client from the given credentials.
func NewClient(creds Credentials, cfg config.GoogleAdsConfig, cache kvstore.Store, dlog *diaglog.Logger) *Client {
	creds.CustomerID = NormalizeCustomerID(creds.CustomerID)
	creds.LoginCustomerID = NormalizeCustomerID(creds.LoginCustomerID)
	return &Client{
		creds:      creds,
		apiBaseURL: cfg.APIBaseURL,
		apiVersion: cfg.APIVersion,
		tokenURL:   cfg.TokenURL,
		cache:      cache,
		dlog:       dlog,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// NormalizeCustomerID strips the dashes Google shows in account IDs
// ("123-456-7890" → "1234567890"); the API accepts only the bare digits.
func NormalizeCustomerID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

// ConversionActionResourceName builds the resource identifier an upload
// points its conversions at.
func ConversionActionResourceName(customerID, actionID string) string {
	return fmt.Sprintf("customers/%s/conversionActions/%s", NormalizeCustomerID(customerID), actionID)
}

// LastError returns the human-readable message from the most recent
// token-refresh failure.
func (c *Client) LastError() string { return c.lastError }

// LastDebug returns the raw HTTP status + body from the most recent
// token-refresh failure, for diagnostics.
func (c *Client) LastDebug() string { return c.lastDebug }

// apiURL builds a customer-scoped Ads API URL, e.g.
// apiURL("customers/123:uploadClickConversions").
func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.apiBaseURL, c.apiVersion, path)
}

// doAPIRequest performs an authenticated JSON POST against the Ads API and
// returns the status code and raw body. The login-customer-id header is
// attached only when non-empty: sending it empty is a protocol error for
// MCC-scoped accounts.
func (c *Client) doAPIRequest(ctx context.Context, token, path string, body interface{}) (int, []byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(path), bytes.NewReader(jsonBody))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", c.creds.DeveloperToken)
	if c.creds.LoginCustomerID != "" {
		req.Header.Set("login-customer-id", c.creds.LoginCustomerID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// UploadClickConversion uploads a single click conversion as a
// partial-failure batch of one.
func (c *Client) UploadClickConversion(ctx context.Context, gclid, conversionActionResource, conversionDateTime string, value float64, currencyCode string) UploadResult {
	token := c.AccessToken(ctx)
	if token == "" {
		return UploadResult{
			Success:         false,
			Error:           c.lastError,
			CredentialError: true,
		}
	}

	reqBody := uploadRequest{
		Conversions: []clickConversion{{
			Gclid:              gclid,
			ConversionAction:   conversionActionResource,
			ConversionDateTime: conversionDateTime,
			ConversionValue:    value,
			CurrencyCode:       currencyCode,
		}},
		PartialFailure: true,
	}

	path := fmt.Sprintf("customers/%s:uploadClickConversions", c.creds.CustomerID)
	status, body, err := c.doAPIRequest(ctx, token, path, reqBody)
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}
	}

	if status != http.StatusOK {
		return UploadResult{
			Success: false,
			Error:   fmt.Sprintf("upload failed (HTTP %d): %s", status, extractAPIError(body)),
		}
	}

	var resp uploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return UploadResult{Success: false, Error: fmt.Sprintf("parsing upload response: %v", err)}
	}
	if resp.PartialFailureError != nil && resp.PartialFailureError.Message != "" {
		return UploadResult{Success: false, Error: resp.PartialFailureError.Message}
	}

	return UploadResult{Success: true}
}

// TestConnection validates the credential set in two phases. Phase 1 forces
// a fresh token refresh (bypassing the cache) to prove the OAuth triplet is
// valid. Phase 2 runs only when a conversion action ID was supplied: it
// fetches that action's name and category; any failure there means the
// developer token, customer ID, login customer ID, or action ID itself is
// wrong, so it is still classified as a credential error.
func (c *Client) TestConnection(ctx context.Context) TestConnectionResult {
	token := c.RefreshAccessToken(ctx)
	if token == "" {
		return TestConnectionResult{
			Success:         false,
			Error:           c.lastError,
			CredentialError: true,
			Debug:           c.lastDebug,
		}
	}

	if c.creds.ConversionActionID == "" {
		return TestConnectionResult{Success: true}
	}

	query := fmt.Sprintf(
		"SELECT conversion_action.id, conversion_action.name, conversion_action.category FROM conversion_action WHERE conversion_action.id = %s",
		c.creds.ConversionActionID)

	path := fmt.Sprintf("customers/%s/googleAds:search", c.creds.CustomerID)
	status, body, err := c.doAPIRequest(ctx, token, path, searchRequest{Query: query})
	if err != nil {
		return TestConnectionResult{Success: false, Error: err.Error(), CredentialError: true}
	}

	if status != http.StatusOK {
		return TestConnectionResult{
			Success:         false,
			Error:           extractAPIError(body),
			CredentialError: true,
			Debug:           fmt.Sprintf("HTTP %d: %s", status, string(body)),
		}
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TestConnectionResult{Success: false, Error: fmt.Sprintf("parsing search response: %v", err), CredentialError: true}
	}
	if len(resp.Results) == 0 {
		return TestConnectionResult{
			Success:         false,
			Error:           fmt.Sprintf("conversion action %s not found in account %s", c.creds.ConversionActionID, c.creds.CustomerID),
			CredentialError: true,
		}
	}

	action := resp.Results[0].ConversionAction
	return TestConnectionResult{
		Success:                  true,
		ConversionActionName:     action.Name,
		ConversionActionCategory: action.Category,
	}
}

var resourceIDPattern = regexp.MustCompile(`/(\d+)$`)

// CreateConversionAction creates an upload-clicks conversion action, unless
// one with the same name already exists. Lookup failures are treated as
// "not found" so a flaky search never blocks creation.
func (c *Client) CreateConversionAction(ctx context.Context, name string, defaultValue float64, currencyCode, category string) CreateActionResult {
	token := c.AccessToken(ctx)
	if token == "" {
		return CreateActionResult{
			Success:         false,
			Error:           c.lastError,
			CredentialError: true,
		}
	}

	if existing := c.findActionByName(ctx, token, name); existing != "" {
		return CreateActionResult{
			Success: false,
			Error:   fmt.Sprintf("a conversion action named %q already exists (id %s)", name, existing),
		}
	}

	if category == "" {
		category = "DEFAULT"
	}
	reqBody := mutateRequest{
		Operations: []mutateOperation{{
			Create: conversionActionCreate{
				Name:     name,
				Type:     "UPLOAD_CLICKS",
				Category: category,
				Status:   "ENABLED",
				ValueSettings: valueSettings{
					DefaultValue:          defaultValue,
					AlwaysUseDefaultValue: true,
					DefaultCurrencyCode:   currencyCode,
				},
			},
		}},
	}

	path := fmt.Sprintf("customers/%s/conversionActions:mutate", c.creds.CustomerID)
	status, body, err := c.doAPIRequest(ctx, token, path, reqBody)
	if err != nil {
		return CreateActionResult{Success: false, Error: err.Error()}
	}
	if status != http.StatusOK {
		return CreateActionResult{
			Success: false,
			Error:   fmt.Sprintf("create failed (HTTP %d): %s", status, extractAPIError(body)),
		}
	}

	var resp mutateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CreateActionResult{Success: false, Error: fmt.Sprintf("parsing mutate response: %v", err)}
	}
	if len(resp.Results) == 0 {
		return CreateActionResult{Success: false, Error: "mutate returned no results"}
	}

	m := resourceIDPattern.FindStringSubmatch(resp.Results[0].ResourceName)
	if m == nil {
		return CreateActionResult{
			Success: false,
			Error:   fmt.Sprintf("could not extract action id from resource name %q", resp.Results[0].ResourceName),
		}
	}

	return CreateActionResult{Success: true, ConversionActionID: m[1]}
}

// findActionByName returns the id of a conversion action with exactly this
// name, or "" when absent or when the lookup fails for any reason.
func (c *Client) findActionByName(ctx context.Context, token, name string) string {
	escaped := strings.ReplaceAll(name, `'`, `\'`)
	query := fmt.Sprintf(
		"SELECT conversion_action.id, conversion_action.name FROM conversion_action WHERE conversion_action.name = '%s'", escaped)

	path := fmt.Sprintf("customers/%s/googleAds:search", c.creds.CustomerID)
	status, body, err := c.doAPIRequest(ctx, token, path, searchRequest{Query: query})
	if err != nil || status != http.StatusOK {
		return ""
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Results) == 0 {
		return ""
	}
	return resp.Results[0].ConversionAction.ID
}

// FetchConversionActionDetails loads a conversion action's name and category
// by id. Failures are plain errors; this path populates a form, it does not
// validate credentials.
func (c *Client) FetchConversionActionDetails(ctx context.Context, actionID string) ActionDetailsResult {
	token := c.AccessToken(ctx)
	if token == "" {
		return ActionDetailsResult{Success: false, Error: c.lastError}
	}

	query := fmt.Sprintf(
		"SELECT conversion_action.id, conversion_action.name, conversion_action.category FROM conversion_action WHERE conversion_action.id = %s", actionID)

	path := fmt.Sprintf("customers/%s/googleAds:search", c.creds.CustomerID)
	status, body, err := c.doAPIRequest(ctx, token, path, searchRequest{Query: query})
	if err != nil {
		return ActionDetailsResult{Success: false, Error: err.Error()}
	}
	if status != http.StatusOK {
		return ActionDetailsResult{
			Success: false,
			Error:   fmt.Sprintf("lookup failed (HTTP %d): %s", status, extractAPIError(body)),
		}
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ActionDetailsResult{Success: false, Error: fmt.Sprintf("parsing search response: %v", err)}
	}
	if len(resp.Results) == 0 {
		return ActionDetailsResult{Success: false, Error: fmt.Sprintf("conversion action %s not found", actionID)}
	}

	action := resp.Results[0].ConversionAction
	return ActionDetailsResult{Success: true, Name: action.Name, Category: action.Category}
}

// extractAPIError pulls the error message out of a Google Ads error body,
// falling back to the raw body.
func extractAPIError(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if msg == "" {
		msg = "unknown API error"
	}
	return msg
}
