// internal/common/render/client.go

// Package render talks to the document rendering service that produces the
// contract and repayment schedule artifacts for approved applications.
package render

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

// Client renders documents over HTTP and returns opaque artifact references.
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
}

type renderRequest struct {
	Document string      `json:"document"`
	Payload  interface{} `json:"payload"`
}

type renderResponse struct {
	ArtifactRef string `json:"artifactRef"`
}

// NewClient builds a render client against the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpclient.NewClient(timeout),
	}
}

// Render submits a named document with its payload and returns the stored
// artifact reference.
func (c *Client) Render(ctx context.Context, document string, payload interface{}) (string, error) {
	jsonData, err := json.Marshal(renderRequest{Document: document, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("failed to marshal render request: %w", err)
	}

	url := fmt.Sprintf("%s/render", c.baseURL)
	resp, err := c.httpClient.PostJSON(ctx, url, jsonData)
	if err != nil {
		return "", apperrors.NewRenderUnavailableError(document, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewRenderUnavailableError(document, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", apperrors.NewRenderUnavailableError(document,
			fmt.Errorf("render returned status %d: %s", resp.StatusCode, string(body)))
	}

	var renderResp renderResponse
	if err := json.Unmarshal(body, &renderResp); err != nil {
		return "", apperrors.NewRenderUnavailableError(document, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if renderResp.ArtifactRef == "" {
		return "", apperrors.NewRenderUnavailableError(document, fmt.Errorf("empty artifact reference in response"))
	}

	return renderResp.ArtifactRef, nil
}
