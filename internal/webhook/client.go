package webhook

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
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Pixelshelf-Signature"
	HeaderTimestamp = "X-Pixelshelf-Timestamp"
	HeaderEvent     = "X-Pixelshelf-Event"
	HeaderDelivery  = "X-Pixelshelf-Delivery"

	signaturePrefix = "sha256="

	DefaultTolerance = 5 * time.Minute
)

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// DeliveryError describes the last failed attempt of a delivery.
type DeliveryError struct {
	StatusCode int
	Attempts   int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook delivery failed after %d attempt(s): receiver returned status=%d", e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("webhook delivery failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Permanent reports a rejection that retrying will not fix.
func (e *DeliveryError) Permanent() bool {
	return e.StatusCode != 0 && !retryableStatus(e.StatusCode)
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    max(1, cfg.MaxAttempts),
		initialBackoff: initialBackoff,
		maxBackoff:     max(initialBackoff, cfg.MaxBackoff),
		now:            time.Now,
	}
}

// Sign computes the signature header value over "<timestamp>.<body>".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify is the receiver side of Sign. Timestamps further than tolerance from
// now, in either direction, are rejected so captured deliveries cannot be
// replayed. A non-positive tolerance means DefaultTolerance.
func Verify(secret, timestamp, signature string, body []byte, tolerance time.Duration) bool {
	return verifyAt(time.Now(), secret, timestamp, signature, body, tolerance)
}

func verifyAt(now time.Time, secret, timestamp, signature string, body []byte, tolerance time.Duration) bool {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if age := now.Sub(time.Unix(unix, 0)); age > tolerance || age < -tolerance {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(secret, timestamp, body)))
}

// Send POSTs payload to endpoint. deliveryID is stable across retries so
// receivers can drop duplicates. An empty endpoint is a no-op.
func (c *Client) Send(ctx context.Context, endpoint, event, deliveryID string, payload any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().UTC().Unix(), 10)
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set(HeaderTimestamp, timestamp)
	headers.Set(HeaderSignature, Sign(c.signingSecret, timestamp, body))
	headers.Set(HeaderEvent, event)
	if deliveryID != "" {
		headers.Set(HeaderDelivery, deliveryID)
	}

	failure := &DeliveryError{}
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		failure.Attempts = attempt

		wait, err := c.attempt(ctx, endpoint, headers, body, failure)
		if err == nil {
			return nil
		}
		failure.Err = err
		if attempt == c.maxAttempts || failure.Permanent() || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
			failure.Err = ctx.Err()
			return failure
		case <-time.After(max(wait, c.backoff(attempt))):
		}
	}
	return failure
}

// attempt performs one POST. On failure it returns the wait the receiver asked
// for via Retry-After, if any.
func (c *Client) attempt(ctx context.Context, endpoint string, headers http.Header, body []byte, failure *DeliveryError) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		failure.StatusCode = 0
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return 0, nil
	}
	failure.StatusCode = resp.StatusCode
	return min(retryAfter(resp.Header.Get("Retry-After")), c.maxBackoff), errors.New(resp.Status)
}

func (c *Client) backoff(attempt int) time.Duration {
	wait := c.initialBackoff
	for i := 1; i < attempt && wait < c.maxBackoff; i++ {
		wait *= 2
	}
	return min(wait, c.maxBackoff)
}

func retryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 400 && status < 500:
		return false
	default:
		return true
	}
}

func retryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
