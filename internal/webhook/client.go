// Package webhook delivers signed export lifecycle notifications.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Stackistry-Signature"
	HeaderTimestamp = "X-Stackistry-Timestamp"
	HeaderEvent     = "X-Stackistry-Event"

	EventExportCompleted = "export.completed"
	EventExportFailed    = "export.failed"
)

// OutputRef describes one rendered output in a delivered event: where it
// landed (a filesystem path or object key) and its basic shape.
type OutputRef struct {
	StepID   string `json:"step_id"`
	Format   string `json:"format"`
	Location string `json:"location"`
	Bytes    int    `json:"bytes"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Event is the body of one webhook delivery. Name is repeated in the
// X-Stackistry-Event header so receivers can route without parsing.
type Event struct {
	Name        string      `json:"event"`
	JobID       string      `json:"job_id"`
	Status      string      `json:"status"`
	SourceType  string      `json:"source_type"`
	ObjectKey   string      `json:"object_key"`
	RequestedAt time.Time   `json:"requested_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Outputs     []OutputRef `json:"outputs,omitempty"`
	Error       string      `json:"error,omitempty"`
}

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
}

func NewClient(cfg Config) *Client {
	c := &Client{
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = time.Second
	}
	if c.maxBackoff < c.initialBackoff {
		c.maxBackoff = c.initialBackoff
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c.httpClient = &http.Client{Timeout: timeout}
	return c
}

// Deliver posts the event to the endpoint, retrying transient failures with
// doubling backoff. A blank endpoint means the job has no webhook and is
// not an error. The signature covers "<unix-timestamp>.<body>".
func (c *Client) Deliver(ctx context.Context, endpoint string, evt Event) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s for job %s: %w", evt.Name, evt.JobID, err)
	}
	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	signature := c.sign(timestamp, body)

	var lastErr error
	backoff := c.initialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = c.post(ctx, endpoint, evt.Name, timestamp, signature, body)
		if lastErr == nil {
			return nil
		}
		if attempt >= c.maxAttempts {
			return fmt.Errorf("deliver %s for job %s failed after %d attempts: %w",
				evt.Name, evt.JobID, c.maxAttempts, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint, event, timestamp, signature string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("receiver returned status=%d", resp.StatusCode)
	}
	return nil
}

func (c *Client) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.signingSecret))
	fmt.Fprintf(mac, "%s.", timestamp)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
