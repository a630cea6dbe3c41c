package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deskflow/orchestrator/internal/domain"
)

// Client is the HTTP client for the ticketing backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new ticketing client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type offeringsResponse struct {
	Offerings []domain.Offering `json:"offerings"`
}

type createRecordRequest struct {
	OfferingID string             `json:"offering_id"`
	Values     domain.FieldValues `json:"values"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListOfferings retrieves the requestable catalog.
func (c *Client) ListOfferings(ctx context.Context) ([]domain.Offering, error) {
	var resp offeringsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/offerings", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Offerings, nil
}

// GetFieldSchema retrieves the declared field schema for an offering.
func (c *Client) GetFieldSchema(ctx context.Context, offeringID string) (*domain.OfferingSchema, error) {
	var schema domain.OfferingSchema
	path := fmt.Sprintf("/api/offerings/%s/schema", offeringID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// CreateRecord submits a service request.
func (c *Client) CreateRecord(ctx context.Context, offeringID string, values domain.FieldValues) (*domain.CreatedRecord, error) {
	var record domain.CreatedRecord
	req := createRecordRequest{OfferingID: offeringID, Values: values}
	if err := c.doJSON(ctx, http.MethodPost, "/api/records", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// WhoAmI returns the identity bound to the current credentials.
func (c *Client) WhoAmI(ctx context.Context) (*domain.Identity, error) {
	var identity domain.Identity
	if err := c.doJSON(ctx, http.MethodGet, "/api/me", nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// Probe checks auth liveness against the backend.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.WhoAmI(ctx)
	return err
}

// doJSON issues a JSON request and decodes the response into out (if non-nil).
// Transport failures and 5xx map to domain.ErrToolUnavailable; 401/403 map to
// domain.ErrUnauthorized.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrToolUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: ticketing returned %d", domain.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: ticketing returned %d", domain.ErrToolUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("ticketing error %d: %s", resp.StatusCode, errResp.Error.Message)
		}
		return fmt.Errorf("ticketing error %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
