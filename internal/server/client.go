package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/quietbeacon/epi/internal/search"
	"github.com/quietbeacon/epi/internal/types"
)

// Client connects to a remote IndexServer
type Client struct {
	httpClient *http.Client
	socketPath string
}

// NewClient creates a new client connection to the index server using the default socket path
func NewClient() *Client {
	return NewClientWithSocket(GetSocketPath())
}

// NewClientWithSocket creates a new client connection to the index server with a custom socket path
func NewClientWithSocket(socketPath string) *Client {
	// HTTP client that dials the Unix socket regardless of URL host
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 30 * time.Second,
	}

	return &Client{
		httpClient: httpClient,
		socketPath: socketPath,
	}
}

// IsServerRunning checks if the server is accessible
func (c *Client) IsServerRunning() bool {
	_, err := c.Ping()
	return err == nil
}

// Ping sends a health check to the server
func (c *Client) Ping() (*PingResponse, error) {
	resp, err := c.httpClient.Post("http://unix/ping", "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s", string(body))
	}

	var pingResp PingResponse
	if err := json.NewDecoder(resp.Body).Decode(&pingResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &pingResp, nil
}

// GetStatus retrieves the current store status
func (c *Client) GetStatus() (*StoreStatus, error) {
	resp, err := c.httpClient.Get("http://unix/status")
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s", string(body))
	}

	var status StoreStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}

	return &status, nil
}

// Lookup performs a procedure lookup on the remote store
func (c *Client) Lookup(query string, maxResults int) ([]search.Result, error) {
	req := LookupRequest{
		Query:      query,
		MaxResults: maxResults,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post("http://unix/lookup", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s", string(body))
	}

	var lookupResp LookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookupResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if lookupResp.Error != "" {
		return nil, fmt.Errorf("lookup error: %s", lookupResp.Error)
	}

	return lookupResp.Results, nil
}

// GetProcedure retrieves one procedure by id
func (c *Client) GetProcedure(id string) (*types.Procedure, error) {
	req := ProcedureRequest{
		ID: id,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post("http://unix/procedure", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to get procedure: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s", string(body))
	}

	var procResp ProcedureResponse
	if err := json.NewDecoder(resp.Body).Decode(&procResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if procResp.Error != "" {
		return nil, fmt.Errorf("procedure error: %s", procResp.Error)
	}

	return procResp.Procedure, nil
}

// GetChildren retrieves the direct children of a procedure
func (c *Client) GetChildren(id string) ([]*types.Procedure, error) {
	req := ChildrenRequest{
		ID: id,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post("http://unix/children", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s", string(body))
	}

	var childResp ChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&childResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if childResp.Error != "" {
		return nil, fmt.Errorf("children error: %s", childResp.Error)
	}

	return childResp.Children, nil
}

// GetCategories lists the top-level procedures
func (c *Client) GetCategories() ([]*types.Procedure, error) {
	resp, err := c.httpClient.Get("http://unix/categories")
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s", string(body))
	}

	var catResp CategoriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&catResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if catResp.Error != "" {
		return nil, fmt.Errorf("categories error: %s", catResp.Error)
	}

	return catResp.Categories, nil
}

// GetOutline returns every procedure in authored order, parents before
// children, for hierarchy rendering
func (c *Client) GetOutline() ([]*types.Procedure, error) {
	resp, err := c.httpClient.Get("http://unix/outline")
	if err != nil {
		return nil, fmt.Errorf("failed to get outline: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s", string(body))
	}

	var outlineResp OutlineResponse
	if err := json.NewDecoder(resp.Body).Decode(&outlineResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if outlineResp.Error != "" {
		return nil, fmt.Errorf("outline error: %s", outlineResp.Error)
	}

	return outlineResp.Procedures, nil
}

// Reload asks the server to rebuild the store from its sources
func (c *Client) Reload() (*ReloadResponse, error) {
	resp, err := c.httpClient.Post("http://unix/reload", "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to reload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s", string(body))
	}

	var reloadResp ReloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&reloadResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !reloadResp.Success {
		return nil, fmt.Errorf("reload failed: %s", reloadResp.Message)
	}

	return &reloadResp, nil
}

// GetStats retrieves store statistics from the server
func (c *Client) GetStats() (*StatsResponse, error) {
	resp, err := c.httpClient.Post("http://unix/stats", "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error: %s", string(body))
	}

	var statsResp StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&statsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if statsResp.Error != "" {
		return nil, fmt.Errorf("stats error: %s", statsResp.Error)
	}

	return &statsResp, nil
}

// Shutdown requests the server to shut down
func (c *Client) Shutdown(force bool) error {
	req := ShutdownRequest{
		Force: force,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post("http://unix/shutdown", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", string(body))
	}

	var shutdownResp ShutdownResponse
	if err := json.NewDecoder(resp.Body).Decode(&shutdownResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !shutdownResp.Success {
		return fmt.Errorf("shutdown failed: %s", shutdownResp.Message)
	}

	return nil
}

// WaitForReady waits until the store is ready or timeout
func (c *Client) WaitForReady(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for store to be ready")
		case <-ticker.C:
			status, err := c.GetStatus()
			if err != nil {
				continue
			}
			if status.Ready {
				return nil
			}
		}
	}
}
