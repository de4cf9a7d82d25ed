// internal/common/ocr/client.go

// Package ocr talks to the income-extraction service that reads salary
// slips. The service is an optional collaborator; callers check Available
// before relying on it and degrade to declared income when it is off.
package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "loan-workers/internal/common/errors"
	httpclient "loan-workers/internal/common/http"
)

// Client extracts income figures from salary slip documents over HTTP.
type Client struct {
	baseURL    string
	enabled    bool
	httpClient *httpclient.Client
}

type extractRequest struct {
	DocumentRef string `json:"documentRef"`
}

type extractResponse struct {
	Income *float64 `json:"income"`
}

// NewClient builds an OCR client. A disabled client reports itself as
// unavailable and never issues requests.
func NewClient(baseURL string, enabled bool, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		enabled:    enabled && baseURL != "",
		httpClient: httpclient.NewClient(timeout),
	}
}

// Available reports whether income extraction can be attempted at all.
func (c *Client) Available() bool {
	return c.enabled
}

// ExtractIncome submits a salary slip reference and returns the monthly
// income the service read from it. A nil value with a nil error means the
// service responded but found no readable income figure.
func (c *Client) ExtractIncome(ctx context.Context, salarySlipRef string) (*float64, error) {
	if !c.enabled {
		return nil, apperrors.NewOCRUnavailableError(fmt.Errorf("ocr client is disabled"))
	}

	jsonData, err := json.Marshal(extractRequest{DocumentRef: salarySlipRef})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extract request: %w", err)
	}

	url := fmt.Sprintf("%s/extract-income", c.baseURL)
	resp, err := c.httpClient.PostJSON(ctx, url, jsonData)
	if err != nil {
		return nil, apperrors.NewOCRUnavailableError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewOCRUnavailableError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewOCRUnavailableError(
			fmt.Errorf("extract-income returned status %d: %s", resp.StatusCode, string(body)))
	}

	var extractResp extractResponse
	if err := json.Unmarshal(body, &extractResp); err != nil {
		return nil, apperrors.NewOCRUnavailableError(fmt.Errorf("failed to unmarshal response: %w", err))
	}

	return extractResp.Income, nil
}
