package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Fraudgate API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// FraudgateClient is a pure HTTP client for the Fraudgate scoring API.
type FraudgateClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewFraudgateClient creates a new client for the Fraudgate API.
func NewFraudgateClient(cfg Config) *FraudgateClient {
	return &FraudgateClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *FraudgateClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ScoreTransaction submits one transaction for scoring.
func (c *FraudgateClient) ScoreTransaction(ctx context.Context, tx map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/score", nil, tx)
}

// GetAuditRecord fetches the audit record for a scored transaction.
func (c *FraudgateClient) GetAuditRecord(ctx context.Context, transactionID string) (json.RawMessage, error) {
	path := "/v1/audit/" + url.PathEscape(transactionID)
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// ListAuditRecords pages through the audit ledger.
func (c *FraudgateClient) ListAuditRecords(ctx context.Context, cursor string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/audit", q, nil)
}

// VerifyChain asks the service to verify the audit hash chain.
func (c *FraudgateClient) VerifyChain(ctx context.Context, from, to uint64) (json.RawMessage, error) {
	body := map[string]uint64{}
	if from > 0 {
		body["from"] = from
	}
	if to > 0 {
		body["to"] = to
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/audit/verify", nil, body)
}

// GetStats returns pipeline and ledger statistics.
func (c *FraudgateClient) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/stats", nil, nil)
}
