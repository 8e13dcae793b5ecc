package mediator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ahrav/osmdbt-courier/pkg/common/logger"
)

// ClientConfig holds the mediator connection options.
type ClientConfig struct {
	URL       string
	ServiceID string
	Timeout   time.Duration
	Retries   int
}

// Client talks to the arstotzka mediator over HTTP. Transient failures on
// each operation are retried with exponential backoff.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a mediator client.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: log,
	}
}

// ReserveAccess acquires the cross-service lease for this service.
func (c *Client) ReserveAccess(ctx context.Context) error {
	path := fmt.Sprintf("/service/%s/lock", c.cfg.ServiceID)
	_, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return fmt.Errorf("reserving access: %w", err)
	}
	return nil
}

// CreateAction records a new action carrying the end sequence state.
func (c *Client) CreateAction(ctx context.Context, state uint64) (uuid.UUID, error) {
	body := map[string]any{
		"serviceId": c.cfg.ServiceID,
		"state":     state,
	}

	resp, err := c.do(ctx, http.MethodPost, "/action", body)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating action: %w", err)
	}

	var created struct {
		ActionID uuid.UUID `json:"actionId"`
	}
	if err := json.Unmarshal(resp, &created); err != nil {
		return uuid.Nil, fmt.Errorf("decoding create action response: %w", err)
	}
	return created.ActionID, nil
}

// UpdateAction transitions the action to a terminal status.
func (c *Client) UpdateAction(ctx context.Context, actionID uuid.UUID, status ActionStatus, metadata map[string]any) error {
	body := map[string]any{"status": status}
	if metadata != nil {
		body["metadata"] = metadata
	}

	path := fmt.Sprintf("/action/%s", actionID)
	if _, err := c.do(ctx, http.MethodPatch, path, body); err != nil {
		return fmt.Errorf("updating action %s: %w", actionID, err)
	}
	return nil
}

// RemoveLock releases the lease.
func (c *Client) RemoveLock(ctx context.Context) error {
	path := fmt.Sprintf("/service/%s/lock", c.cfg.ServiceID)
	if _, err := c.do(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("removing lock: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	var respBody []byte

	operation := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("mediator %s %s: status %d", method, path, resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("mediator %s %s: status %d: %s", method, path, resp.StatusCode, data))
		}

		respBody = data
		return nil
	}

	expBackoff := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.Retries))

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, err
	}
	return respBody, nil
}
