package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultUserAgent = "school-whatsapp-hub/0.1"
	sendTextPath     = "/send/text"
)

var tracer = otel.Tracer("school.internal.messaging.gatewayclient")

// Config controls how the gateway client behaves. MaxRetries of zero means
// one retry; a negative value disables retries.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client wraps the WhatsApp gateway REST endpoints used by the inbox.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	userAgent  string
}

// New creates a configured Client. Sends time out after 10s and are retried
// once on transient failures unless configured otherwise.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("gatewayclient: token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gatewayclient: base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	switch {
	case maxRetries < 0:
		maxRetries = 0
	case maxRetries == 0:
		maxRetries = 1
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
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
		token:      cfg.Token,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// SendTextRequest is the body of a text send.
type SendTextRequest struct {
	Number   string `json:"number"`
	Text     string `json:"text"`
	Delay    int    `json:"delay"`
	ReadChat bool   `json:"readchat"`
}

func (r SendTextRequest) validate() error {
	if strings.TrimSpace(r.Number) == "" {
		return errors.New("gatewayclient: number required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("gatewayclient: text required")
	}
	return nil
}

// SendResult is the outcome of a successful send.
type SendResult struct {
	MessageID string
	Raw       json.RawMessage
}

// SendText posts a text message to a phone number.
func (c *Client) SendText(ctx context.Context, req SendTextRequest) (*SendResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "gatewayclient.send_text")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gatewayclient: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, sendTextPath, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return nil, err
	}
	if apiErr := decodeBodyError(data); apiErr != nil {
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "gateway rejected send")
		return nil, apiErr
	}
	id := ExtractMessageID(data)
	span.SetAttributes(attribute.String("whatsapp.message_id", id))
	return &SendResult{MessageID: id, Raw: data}, nil
}

// ExtractMessageID finds the vendor message id in a send response, trying
// "id", then "messageid", then "key.id". It returns "" when none is present.
func ExtractMessageID(body []byte) string {
	var resp struct {
		ID        flexID `json:"id"`
		MessageID flexID `json:"messageid"`
		Key       *struct {
			ID flexID `json:"id"`
		} `json:"key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if id := strings.TrimSpace(string(resp.ID)); id != "" {
		return id
	}
	if id := strings.TrimSpace(string(resp.MessageID)); id != "" {
		return id
	}
	if resp.Key != nil {
		return strings.TrimSpace(string(resp.Key.ID))
	}
	return ""
}

// flexID tolerates ids sent as numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == 'n' || data[0] == '{' || data[0] == '[' {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	*f = flexID(data)
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
			return nil, fmt.Errorf("gatewayclient: build request: %w", err)
		}
		req.Header.Set("token", c.token)
		req.Header.Set("Accept", "application/json")
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
				return nil, fmt.Errorf("gatewayclient: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("gatewayclient: read response: %w", readErr)
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
	return nil, errors.New("gatewayclient: request failed without response")
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
	c.logger.Warn("whatsapp gateway retry",
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
	return status >= 500 && status <= 599
}

// APIError is returned when the gateway rejects a request.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error,omitempty"`
	Detail     string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("gatewayclient: %s (status=%d)", e.Message, e.StatusCode)
	case e.Detail != "":
		return fmt.Sprintf("gatewayclient: %s (status=%d)", e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("gatewayclient: http status %d", e.StatusCode)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return shouldRetry(e.StatusCode, nil)
}

func decodeAPIError(status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{StatusCode: status, Detail: strings.TrimSpace(string(body))}
	}
	parsed.StatusCode = status
	return &parsed
}

// decodeBodyError catches gateways that answer 200 with an error member.
func decodeBodyError(body []byte) error {
	var parsed struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Error) == 0 {
		return nil
	}
	raw := bytes.TrimSpace(parsed.Error)
	if bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) || bytes.Equal(raw, []byte(`""`)) {
		return nil
	}
	msg := string(raw)
	var s string
	if json.Unmarshal(raw, &s) == nil {
		msg = s
	}
	return &APIError{StatusCode: http.StatusOK, Message: msg}
}
