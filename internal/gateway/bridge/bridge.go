// Package bridge is the HTTP client side of the gateway: it submits task text
// to the inner agent, polls SALUTE telemetry from the reports directory, and
// delivers best-effort cancels.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	aerr "aegis/internal/errors"
	"aegis/internal/logging"
	"aegis/internal/salute"
)

// cancelSentinel is the message the inner agent interprets as a cancel
// request on an existing context.
const cancelSentinel = "CANCEL: Stop the current task immediately."

const cancelTimeout = 10 * time.Second

// Config holds the inner-agent connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	ReportsDir string
}

// Bridge talks to the inner agent. Stateless apart from the shared HTTP
// client and the telemetry store.
type Bridge struct {
	config  Config
	client  *http.Client
	reports *salute.Store
	logger  logging.Logger
}

// New returns a bridge for the given inner-agent connection.
func New(config Config, logger logging.Logger) *Bridge {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	return &Bridge{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		reports: salute.NewStore(config.ReportsDir),
		logger:  logging.OrNop(logger),
	}
}

// Reply is the inner agent's response to a submitted message.
type Reply struct {
	// ContextID is the inner agent's conversation handle, reused for
	// follow-ups and cancels.
	ContextID string
	Message   string
}

// Submit sends the task text to the inner agent on a fresh context.
// Transient transport failures are retried with backoff.
func (b *Bridge) Submit(ctx context.Context, text string) (*Reply, error) {
	return aerr.RetryWithResult(ctx, aerr.DefaultRetryConfig(), b.logger,
		func(ctx context.Context) (*Reply, error) {
			return b.send(ctx, text, "", b.config.Timeout)
		})
}

// SubmitFollowup sends a follow-up turn on an existing agent context.
func (b *Bridge) SubmitFollowup(ctx context.Context, text, agentContextID string) (*Reply, error) {
	return aerr.RetryWithResult(ctx, aerr.DefaultRetryConfig(), b.logger,
		func(ctx context.Context) (*Reply, error) {
			return b.send(ctx, text, agentContextID, b.config.Timeout)
		})
}

// Cancel asks the inner agent to stop work on the given context. Best-effort:
// errors are logged and swallowed; the registry cancel is authoritative.
func (b *Bridge) Cancel(ctx context.Context, agentContextID string) {
	if agentContextID == "" {
		return
	}
	if _, err := b.send(ctx, cancelSentinel, agentContextID, cancelTimeout); err != nil {
		b.logger.Warn("cancel delivery failed: %v", err)
	}
}

// ReadLatestTelemetry returns the newest SALUTE report for the role, or for
// any role when roleID is empty. A missing or unreadable report returns nil.
func (b *Bridge) ReadLatestTelemetry(roleID string) *salute.Report {
	report, err := b.reports.ReadLatest(roleID)
	if err != nil {
		b.logger.Debug("telemetry read skipped: %v", err)
		return nil
	}
	return report
}

func (b *Bridge) send(ctx context.Context, text, agentContextID string, timeout time.Duration) (*Reply, error) {
	payload, err := json.Marshal(map[string]string{
		"text":    text,
		"context": agentContextID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal agent request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.config.BaseURL+"/api_message", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.config.APIKey != "" {
		req.Header.Set("X-API-KEY", b.config.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, aerr.NewTransientError(err, "inner agent unreachable: "+err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, aerr.NewPermanentError(
			fmt.Errorf("agent returned 401"),
			"inner agent rejected credentials")
	}
	if resp.StatusCode != http.StatusOK {
		detail := string(body)
		if len(detail) > 200 {
			detail = detail[:200]
		}
		err := fmt.Errorf("inner agent error %d: %s", resp.StatusCode, detail)
		if aerr.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, aerr.NewTransientError(err, err.Error())
		}
		return nil, err
	}

	var parsed struct {
		Context string `json:"context"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse agent response: %w", err)
	}
	return &Reply{ContextID: parsed.Context, Message: parsed.Message}, nil
}
