// Package commander is the uplink to the human operator: outbound
// escalations and status reports, inbound field-update commands. The wire
// is JSON over HTTP; transient failures retry with exponential backoff.
package commander

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region interface

// StatusReport is the periodic operational summary pushed to the operator.
type StatusReport struct {
	SymbolID    string             `json:"symbol_id"`
	Status      symbol.Status      `json:"status"`
	Alert       symbol.AlertLevel  `json:"alert"`
	Version     int                `json:"version"`
	Drift       float64            `json:"drift"`
	Risk        float64            `json:"risk"`
	CycleCount  int                `json:"cycle_count"`
	KeyFindings []string           `json:"key_findings,omitempty"`
	ReportedAt  time.Time          `json:"reported_at"`
}

// Commander abstracts the operator channel so the loop can run against a
// real endpoint or a test double.
type Commander interface {
	// SendMessage delivers one queued message. The bool is an explicit
	// acknowledgment from the far side; false without error means the
	// operator endpoint refused the message this time. Callers retry it on
	// later cycles until the delivery-attempt cap.
	SendMessage(ctx context.Context, msg symbol.CommanderMessage) (bool, error)

	// CheckForCommands polls for operator-issued field updates.
	CheckForCommands(ctx context.Context) ([]symbol.FieldUpdate, error)

	// ReportStatus pushes the operational summary. Best effort.
	ReportStatus(ctx context.Context, report StatusReport) error
}

// #endregion interface

// #region http-client

// ClientOptions tunes the HTTP commander.
type ClientOptions struct {
	BaseURL    string
	AuthToken  string
	Timeout    time.Duration // per-attempt; 0 selects 10s
	MaxElapsed time.Duration // total retry window; 0 selects 30s
	HTTPClient *http.Client  // nil selects a default client
}

// Client talks JSON to the operator endpoint.
type Client struct {
	opts ClientOptions
	hc   *http.Client
}

// NewClient validates options and builds the HTTP commander.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("commander base url required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxElapsed == 0 {
		opts.MaxElapsed = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{opts: opts, hc: hc}, nil
}

type ackEnvelope struct {
	Acknowledged bool   `json:"acknowledged"`
	Reason       string `json:"reason,omitempty"`
}

type commandsEnvelope struct {
	Updates []symbol.FieldUpdate `json:"updates"`
}

// SendMessage posts one message to /messages and returns the far-side ack.
func (c *Client) SendMessage(ctx context.Context, msg symbol.CommanderMessage) (bool, error) {
	var ack ackEnvelope
	err := c.postWithRetry(ctx, "/messages", msg, &ack)
	if err != nil {
		return false, err
	}
	return ack.Acknowledged, nil
}

// CheckForCommands polls /commands for pending field updates.
func (c *Client) CheckForCommands(ctx context.Context) ([]symbol.FieldUpdate, error) {
	var env commandsEnvelope
	if err := c.getWithRetry(ctx, "/commands", &env); err != nil {
		return nil, err
	}
	return env.Updates, nil
}

// ReportStatus posts the summary to /status.
func (c *Client) ReportStatus(ctx context.Context, report StatusReport) error {
	if report.ReportedAt.IsZero() {
		report.ReportedAt = time.Now().UTC()
	}
	return c.postWithRetry(ctx, "/status", report, nil)
}

// #endregion http-client

// #region transport

func (c *Client) postWithRetry(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.opts.BaseURL+path, bytes.NewReader(raw))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, out)
	})
}

func (c *Client) getWithRetry(ctx context.Context, path string, out any) error {
	return c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.opts.BaseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return c.do(req, out)
	})
}

func (c *Client) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.opts.MaxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func (c *Client) do(req *http.Request, out any) error {
	if c.opts.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.AuthToken)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("commander request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("commander server error: %s", resp.Status)
	case resp.StatusCode >= 400:
		// Client errors won't heal with retries.
		return backoff.Permanent(fmt.Errorf("commander rejected request: %s", resp.Status))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode commander response: %w", err))
	}
	return nil
}

// #endregion transport

// #region fake

// Fake is the in-memory commander used by loop and runtime tests.
type Fake struct {
	Sent       []symbol.CommanderMessage
	Reports    []StatusReport
	QueuedCmds []symbol.FieldUpdate

	AckResult bool
	SendErr   error
	CheckErr  error
	ReportErr error
}

// NewFake acks everything by default.
func NewFake() *Fake {
	return &Fake{AckResult: true}
}

func (f *Fake) SendMessage(_ context.Context, msg symbol.CommanderMessage) (bool, error) {
	if f.SendErr != nil {
		return false, f.SendErr
	}
	f.Sent = append(f.Sent, msg)
	return f.AckResult, nil
}

// CheckForCommands drains the queued updates.
func (f *Fake) CheckForCommands(context.Context) ([]symbol.FieldUpdate, error) {
	if f.CheckErr != nil {
		return nil, f.CheckErr
	}
	cmds := f.QueuedCmds
	f.QueuedCmds = nil
	return cmds, nil
}

func (f *Fake) ReportStatus(_ context.Context, report StatusReport) error {
	if f.ReportErr != nil {
		return f.ReportErr
	}
	f.Reports = append(f.Reports, report)
	return nil
}

// #endregion fake
