package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Wallet represents a registered wallet that the server syncs.
type Wallet struct {
	ID           string        `json:"id"`
	Network      string        `json:"network"`
	Addresses    []string      `json:"addresses"`
	SyncInterval time.Duration `json:"sync_interval"`
	LastSyncTime *time.Time    `json:"last_sync_time,omitempty"`
	Status       string        `json:"status"` // active, paused
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// RegisterParams describes a wallet to register. Zero Network and
// SyncInterval take the server defaults.
type RegisterParams struct {
	ID           string
	Network      string
	Addresses    []string
	SyncInterval time.Duration
}

// Client is the HTTP client for the txledger service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new ledger service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Register tells the server to start syncing a wallet.
func (c *Client) Register(ctx context.Context, p RegisterParams) (*Wallet, error) {
	reqBody := map[string]any{
		"id":        p.ID,
		"addresses": p.Addresses,
	}
	if p.Network != "" {
		reqBody["network"] = p.Network
	}
	if p.SyncInterval > 0 {
		reqBody["sync_interval"] = p.SyncInterval.String()
	}

	var apiWallet walletResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/wallets", reqBody, http.StatusCreated, &apiWallet); err != nil {
		return nil, err
	}

	c.logger.Debug("wallet registered", "wallet_id", p.ID, "sync_interval", apiWallet.SyncInterval)
	return responseToWallet(&apiWallet)
}

// Unregister tells the server to stop syncing a wallet and forget it.
func (c *Client) Unregister(ctx context.Context, walletID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, walletPath(walletID), nil, http.StatusNoContent, nil); err != nil {
		return err
	}
	c.logger.Debug("wallet unregistered", "wallet_id", walletID)
	return nil
}

// Get retrieves the registration details for a specific wallet.
func (c *Client) Get(ctx context.Context, walletID string) (*Wallet, error) {
	var apiWallet walletResponse
	if err := c.doJSON(ctx, http.MethodGet, walletPath(walletID), nil, http.StatusOK, &apiWallet); err != nil {
		return nil, err
	}
	return responseToWallet(&apiWallet)
}

// List retrieves all registered wallets.
func (c *Client) List(ctx context.Context) ([]*Wallet, error) {
	var response struct {
		Wallets []walletResponse `json:"wallets"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/wallets", nil, http.StatusOK, &response); err != nil {
		return nil, err
	}

	// Convert API responses to domain wallets
	wallets := make([]*Wallet, len(response.Wallets))
	for i, apiWallet := range response.Wallets {
		wallet, err := responseToWallet(&apiWallet)
		if err != nil {
			return nil, fmt.Errorf("failed to parse wallet %s: %w", apiWallet.ID, err)
		}
		wallets[i] = wallet
	}

	return wallets, nil
}

// TriggerSync asks the server to sync a wallet now instead of waiting for
// its next scheduled run.
func (c *Client) TriggerSync(ctx context.Context, walletID string) error {
	return c.doJSON(ctx, http.MethodPost, walletPath(walletID)+"/sync", nil, http.StatusAccepted, nil)
}

// Health returns nil when the server reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
}

// walletResponse is the API response format for a wallet.
// The server returns sync_interval as a string (e.g. "30s").
type walletResponse struct {
	ID           string     `json:"id"`
	Network      string     `json:"network"`
	Addresses    []string   `json:"addresses"`
	SyncInterval string     `json:"sync_interval"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// responseToWallet converts an API response to a domain Wallet.
func responseToWallet(resp *walletResponse) (*Wallet, error) {
	syncInterval, err := time.ParseDuration(resp.SyncInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid sync_interval %q: %w", resp.SyncInterval, err)
	}

	return &Wallet{
		ID:           resp.ID,
		Network:      resp.Network,
		Addresses:    resp.Addresses,
		SyncInterval: syncInterval,
		LastSyncTime: resp.LastSyncTime,
		Status:       resp.Status,
		CreatedAt:    resp.CreatedAt,
		UpdatedAt:    resp.UpdatedAt,
	}, nil
}

func walletPath(walletID string) string {
	return "/api/v1/wallets/" + url.PathEscape(walletID)
}

// doJSON sends body (if any) as JSON and decodes the response into out
// (if any) when the status matches want.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, want int, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}
