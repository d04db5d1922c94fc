// Package dte talks to the external fiscal document service (facturación
// electrónica). The ERP core only depends on the Builder interface; the
// HTTP client here is one implementation of it.
package dte

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrDraftUnusable is the deterministic failure signal for a draft the
// builder cannot turn into a document. Callers treat it differently from
// transport failures: an unusable draft aborts invoicing before a folio is
// consumed.
var ErrDraftUnusable = errors.New("dte: draft cannot produce a usable document")

// InvoiceDraft is the document header handed to the builder. The folio is
// already assigned by the caller's allocator.
type InvoiceDraft struct {
	TenantID    string  `json:"tenant_id"`
	DTEType     int     `json:"dte_type"`
	Folio       int64   `json:"folio"`
	ClientRUT   string  `json:"client_rut"`
	ClientName  string  `json:"client_name"`
	NetAmount   float64 `json:"net_amount"`
	TaxAmount   float64 `json:"tax_amount"`
	TotalAmount float64 `json:"total_amount"`
	IssuedAt    string  `json:"issued_at"`
}

// LineItem is one billed line of the draft.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// Builder constructs and submits fiscal documents.
type Builder interface {
	// BuildDocument renders the signed document blob for a draft. It
	// returns ErrDraftUnusable when the draft can never produce a valid
	// document, and other errors for transient failures.
	BuildDocument(ctx context.Context, draft InvoiceDraft, items []LineItem) ([]byte, error)
	// Submit sends a built document to the fiscal authority and returns
	// its tracking id.
	Submit(ctx context.Context, document []byte) (string, error)
}

// Client is the HTTP implementation of Builder against the facturación
// gateway. It caches the gateway token and refreshes it shortly before
// expiry.
type Client struct {
	baseURL     string
	apiKey      string
	apiSecret   string
	tokenCache  string
	tokenExpire time.Time
	mu          sync.RWMutex
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.tokenCache != "" && time.Now().Before(c.tokenExpire) {
		token := c.tokenCache
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed the token while we waited.
	if c.tokenCache != "" && time.Now().Before(c.tokenExpire) {
		return c.tokenCache, nil
	}

	body, _ := json.Marshal(map[string]string{
		"api_key":    c.apiKey,
		"api_secret": c.apiSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request gateway token: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("gateway returned empty token (status %d)", resp.StatusCode)
	}

	c.tokenCache = result.Token
	// Refresh 60 seconds early to avoid racing the expiry.
	c.tokenExpire = time.Now().Add(time.Duration(result.ExpiresIn-60) * time.Second)
	return c.tokenCache, nil
}

func (c *Client) BuildDocument(ctx context.Context, draft InvoiceDraft, items []LineItem) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"draft": draft,
		"items": items,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/dte/build", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document build: %w", err)
	}
	defer resp.Body.Close()

	// 422 is the gateway's deterministic "this draft can never be built"
	// answer; everything else non-2xx is transient.
	if resp.StatusCode == http.StatusUnprocessableEntity {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrDraftUnusable, string(detail))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document build failed with status %d", resp.StatusCode)
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read document blob: %w", err)
	}
	return blob, nil
}

func (c *Client) Submit(ctx context.Context, document []byte) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/dte/submit", bytes.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("document submission failed with status %d", resp.StatusCode)
	}

	var result struct {
		TrackID string `json:"track_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	return result.TrackID, nil
}
