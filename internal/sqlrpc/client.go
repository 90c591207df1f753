// Package sqlrpc calls the privileged exec_sql RPC of a PostgREST endpoint.
package sqlrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when URL or service key is missing.
var ErrNotConfigured = errors.New("sql rpc not configured")

// Executor runs SQL with elevated privileges.
type Executor interface {
	ExecSQL(ctx context.Context, sql string) error
}

// Client implements Executor against {baseURL}/rest/v1/rpc/exec_sql.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewClient creates a client. timeout of zero means 30 seconds.
func NewClient(baseURL, serviceKey string, timeout time.Duration) (*Client, error) {
	if baseURL == "" || serviceKey == "" {
		return nil, ErrNotConfigured
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type execRequest struct {
	SQLQuery string `json:"sql_query"`
}

type rpcError struct {
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
	Code    string `json:"code"`
}

// ExecSQL posts sql to the exec_sql function.
func (c *Client) ExecSQL(ctx context.Context, sql string) error {
	body, err := json.Marshal(execRequest{SQLQuery: sql})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/exec_sql", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var rerr rpcError
	if json.Unmarshal(raw, &rerr) == nil && rerr.Message != "" {
		return fmt.Errorf("exec_sql failed (%d): %s", resp.StatusCode, rerr.Message)
	}
	return fmt.Errorf("exec_sql failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
