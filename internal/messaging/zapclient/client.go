// Package zapclient wraps the ZapSend WhatsApp Business API used to
// deliver outbound replies and campaign messages.
package zapclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

const (
	defaultBaseURL   = "https://api.zapsend.com.br/v1"
	defaultUserAgent = "cobranca-messaging/0.1"
)

// Config controls how the ZapSend client behaves.
type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	MaxSkew       time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
	UserAgent     string
}

// Client wraps the ZapSend REST endpoints the platform uses.
type Client struct {
	apiKey        string
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
	maxSkew       time.Duration
	logger        *slog.Logger
	userAgent     string
}

// SendTextRequest is one outbound WhatsApp text message.
type SendTextRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (r SendTextRequest) validate() error {
	if strings.TrimSpace(r.To) == "" {
		return errors.New("zapclient: recipient required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("zapclient: text required")
	}
	return nil
}

// MessageResponse is the provider's acknowledgment of a send.
type MessageResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	To        string `json:"to"`
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("zapclient: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	maxSkew := cfg.MaxSkew
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		backoff:       backoff,
		maxSkew:       maxSkew,
		logger:        logger,
		userAgent:     userAgent,
	}, nil
}

// SendText delivers one text message to a WhatsApp number.
func (c *Client) SendText(ctx context.Context, req SendTextRequest) (*MessageResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("zapclient: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/messages", body)
	if err != nil {
		return nil, err
	}
	return decodeDataWrapper[MessageResponse](data)
}

// GetMessageStatus fetches the delivery status of a previous send.
func (c *Client) GetMessageStatus(ctx context.Context, messageID string) (*MessageResponse, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, errors.New("zapclient: message id required")
	}
	data, err := c.invoke(ctx, http.MethodGet, "/messages/"+messageID, nil)
	if err != nil {
		return nil, err
	}
	return decodeDataWrapper[MessageResponse](data)
}

// VerifyWebhookSignature validates ZapSend webhook signatures. The provider
// signs "timestamp.payload" with HMAC-SHA256 and sends the hex digest.
func (c *Client) VerifyWebhookSignature(timestamp, signature string, payload []byte) error {
	if c.webhookSecret == "" {
		return errors.New("zapclient: webhook secret not configured")
	}
	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("zapclient: missing signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("zapclient: invalid signature timestamp: %w", err)
	}
	sentAt := time.Unix(sec, 0)
	if diff := time.Since(sentAt); diff > c.maxSkew || diff < -c.maxSkew {
		return fmt.Errorf("zapclient: signature timestamp skew %s exceeds limit", diff)
	}
	unsigned := ts + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(unsigned))
	expected := hex.EncodeToString(mac.Sum(nil))
	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("zapclient: missing signature header")
	}
	if !hmac.Equal([]byte(expected), []byte(actual)) {
		return errors.New("zapclient: signature mismatch")
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("zapclient: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("zapclient: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("zapclient: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("zapclient: request failed without response")
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("zapsend retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	if status >= 500 && status <= 599 {
		return true
	}
	return false
}

type apiError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("zapclient: %s (status=%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("zapclient: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &apiError{StatusCode: status, Message: string(body)}
	}
	parsed.StatusCode = status
	return &parsed
}

func decodeDataWrapper[T any](body []byte) (*T, error) {
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("zapclient: decode response: %w", err)
	}
	return &wrapper.Data, nil
}
