// Package httpapi implements the remote cart contract over a JSON HTTP API.
// It owns the status-code to sentinel-error mapping so the engine never
// sees transport details.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/cartsync/internal/errs"
	"github.com/and161185/cartsync/internal/remote"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string // opaque bearer token; auth is the collaborator's concern
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client talks to the remote cart resource.
type Client struct {
	base  string
	token string
	hc    *http.Client
	log   *zap.Logger
}

var _ remote.Remote = (*Client)(nil)

// New constructs a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("httpapi: empty base URL")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("httpapi: bad base URL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:  opts.BaseURL,
		token: opts.Token,
		hc:    &http.Client{Timeout: timeout},
		log:   log,
	}, nil
}

// Apply executes one per-item mutation via POST /cart/mutations.
func (c *Client) Apply(ctx context.Context, m remote.Mutation) (remote.Ack, error) {
	var out ackResponse
	if err := c.do(ctx, http.MethodPost, "/cart/mutations", toWireMutation(m), &out); err != nil {
		return remote.Ack{}, err
	}
	return remote.Ack{Seq: out.Seq}, nil
}

// GetState pulls the full authoritative cart via GET /cart.
func (c *Client) GetState(ctx context.Context) (remote.State, error) {
	var out stateBody
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &out); err != nil {
		return remote.State{}, err
	}
	return fromWireState(out)
}

// PutState overwrites the server cart via PUT /cart.
func (c *Client) PutState(ctx context.Context, st remote.State) error {
	return c.do(ctx, http.MethodPut, "/cart", toWireState(st), nil)
}

// Events long-polls server-initiated change events since the given time.
func (c *Client) Events(ctx context.Context, since time.Time) ([]remote.Event, error) {
	path := "/cart/events?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	var out eventsBody
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	evs := make([]remote.Event, 0, len(out.Events))
	for _, e := range out.Events {
		evs = append(evs, remote.Event{
			Type:   remote.EventType(e.Type),
			ItemID: e.ItemID,
			At:     e.At,
		})
	}
	return evs, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("httpapi: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", errs.ErrNetwork, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := mapStatus(resp); err != nil {
		c.log.Debug("remote call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// Malformed server payload is unexpected; propagate for top-level handling.
		return fmt.Errorf("httpapi: decode %s %s: %w", method, path, err)
	}
	return nil
}

func mapStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusNotFound:
		// 404 on a mutation means the item vanished server-side: divergence.
		return fmt.Errorf("%w: server returned %d: %s", errs.ErrConflict, resp.StatusCode, readDetail(resp))
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: server returned %d: %s", errs.ErrValidation, resp.StatusCode, readDetail(resp))
	default:
		return fmt.Errorf("%w: server returned %d: %s", errs.ErrNetwork, resp.StatusCode, readDetail(resp))
	}
}

func readDetail(resp *http.Response) string {
	b, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil || len(b) == 0 {
		return resp.Status
	}
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(b)
}
