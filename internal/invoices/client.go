// Package invoices provides a client for the invoice-scraper sidecar
// service, which fetches updated boletos and Pix codes from the creditor
// portals.
package invoices

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

// Invoice is one open invoice as reported by the sidecar.
type Invoice struct {
	InvoiceID   string `json:"invoiceId"`
	AmountCents int64  `json:"amountCents"`
	DueDate     string `json:"dueDate"` // YYYY-MM-DD
	BoletoURL   string `json:"boletoUrl,omitempty"`
	BoletoLine  string `json:"boletoLine,omitempty"`
	PixCode     string `json:"pixCode,omitempty"`
	Status      string `json:"status"` // open, paid, disputed
}

// LookupRequest asks the sidecar for a debtor's open invoices.
type LookupRequest struct {
	Document string `json:"document"` // CPF/CNPJ digits
	Phone    string `json:"phone,omitempty"`
	Timeout  int    `json:"timeout,omitempty"` // milliseconds, default 30000
}

// LookupResponse is the sidecar's answer.
type LookupResponse struct {
	Success   bool      `json:"success"`
	Invoices  []Invoice `json:"invoices"`
	ScrapedAt string    `json:"scrapedAt"`
	Error     string    `json:"error,omitempty"`
}

// SecondCopyRequest asks for a freshly issued boleto for an invoice.
type SecondCopyRequest struct {
	InvoiceID string `json:"invoiceId"`
	Timeout   int    `json:"timeout,omitempty"`
}

// SecondCopyResponse carries the reissued payment document.
type SecondCopyResponse struct {
	Success    bool   `json:"success"`
	InvoiceID  string `json:"invoiceId"`
	BoletoURL  string `json:"boletoUrl,omitempty"`
	BoletoLine string `json:"boletoLine,omitempty"`
	PixCode    string `json:"pixCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HealthResponse is the sidecar health check payload.
type HealthResponse struct {
	Status  string `json:"status"` // ok, degraded, error
	Version string `json:"version"`
	Uptime  int    `json:"uptime"` // seconds
}

// Client is an HTTP client for the invoice-scraper sidecar.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new invoice-scraper sidecar client. baseURL is the
// sidecar service URL, e.g. "http://localhost:3100".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Health checks the health of the sidecar.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("invoices: create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoices: health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("invoices: health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("invoices: decode health response: %w", err)
	}

	return &health, nil
}

// Lookup fetches a debtor's open invoices from the creditor portal.
func (c *Client) Lookup(ctx context.Context, req LookupRequest) (*LookupResponse, error) {
	if req.Document == "" {
		return nil, fmt.Errorf("invoices: document is required")
	}
	if req.Timeout == 0 {
		req.Timeout = 30000
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("invoices: marshal request: %w", err)
	}

	c.logger.Debug("looking up invoices", "phone", req.Phone)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/invoices/lookup", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invoices: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoices: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result LookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invoices: decode response: %w", err)
	}

	if !result.Success {
		c.logger.Warn("invoice lookup failed", "error", result.Error)
	} else {
		c.logger.Info("invoice lookup succeeded", "invoices", len(result.Invoices))
	}

	return &result, nil
}

// SecondCopy requests a freshly issued boleto and Pix code for an invoice.
func (c *Client) SecondCopy(ctx context.Context, req SecondCopyRequest) (*SecondCopyResponse, error) {
	if req.InvoiceID == "" {
		return nil, fmt.Errorf("invoices: invoice id is required")
	}
	if req.Timeout == 0 {
		req.Timeout = 30000
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("invoices: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/invoices/second-copy", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invoices: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoices: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result SecondCopyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invoices: decode response: %w", err)
	}

	return &result, nil
}

// OpenInvoices is a convenience method that returns only open invoices.
func (c *Client) OpenInvoices(ctx context.Context, document string) ([]Invoice, error) {
	resp, err := c.Lookup(ctx, LookupRequest{Document: document})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("invoices: lookup failed: %s", resp.Error)
	}

	var open []Invoice
	for _, inv := range resp.Invoices {
		if inv.Status == "open" {
			open = append(open, inv)
		}
	}
	return open, nil
}
