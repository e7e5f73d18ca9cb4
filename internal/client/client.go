// Package client speaks the backend's GraphQL-over-HTTP protocol. Every call
// is bounded by the configured timeout; identical in-flight queries share one
// round trip.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DevBaseURL     = "http://localhost:8000"
	DefaultTimeout = 15 * time.Second
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	log      *zap.Logger
	group    singleflight.Group
}

func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoint: base + "/graphql",
		timeout:  timeout,
		http:     hc,
		log:      log,
	}
}

func (c *Client) Endpoint() string { return c.endpoint }

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// query runs a read and coalesces it with any identical one in flight.
func (c *Client) query(ctx context.Context, op, q string, vars map[string]any) (json.RawMessage, error) {
	key := op
	if len(vars) > 0 {
		b, _ := json.Marshal(vars)
		key = op + ":" + string(b)
	}
	// The shared round trip must not die with whichever caller started it;
	// do still bounds it with the client timeout.
	ch := c.group.DoChan(key, func() (any, error) {
		return c.do(context.WithoutCancel(ctx), op, q, vars)
	})
	select {
	case <-ctx.Done():
		return nil, classify(ctx, op, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.log.Debug("coalesced request", zap.String("op", op))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

func (c *Client) do(ctx context.Context, op, q string, vars map[string]any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if vars == nil {
		vars = map[string]any{}
	}
	body, err := json.Marshal(request{Query: q, Variables: vars})
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Op: op, Message: "encode request: " + err.Error(), Err: err}
	}

	reqID := uuid.NewString()
	start := time.Now()
	data, err := c.roundTrip(ctx, op, reqID, body)
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("request_id", reqID),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		kind, _ := KindOf(err)
		c.log.Debug("backend request failed", append(fields, zap.Stringer("kind", kind), zap.Error(err))...)
		return nil, err
	}
	c.log.Debug("backend request", fields...)
	return data, nil
}

func (c *Client) roundTrip(ctx context.Context, op, reqID string, body []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", reqID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &Error{Kind: KindTransport, Op: op, Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if ctx.Err() != nil {
			return nil, classify(ctx, op, err)
		}
		return nil, &Error{Kind: KindProtocol, Op: op, Message: "decode response: " + err.Error(), Err: err}
	}
	if len(env.Errors) > 0 {
		return nil, &Error{Kind: KindProtocol, Op: op, Message: env.Errors[0].Message}
	}
	return env.Data, nil
}

func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: context.DeadlineExceeded}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// decodeField pulls one root field out of a data object, preserving numbers
// as json.Number.
func decodeField(op string, data json.RawMessage, field string, out any) error {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return &Error{Kind: KindProtocol, Op: op, Message: "decode data: " + err.Error(), Err: err}
	}
	raw, ok := root[field]
	if !ok {
		return &Error{Kind: KindProtocol, Op: op, Message: fmt.Sprintf("response has no %q field", field)}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &Error{Kind: KindProtocol, Op: op, Message: fmt.Sprintf("decode %s: %v", field, err), Err: err}
	}
	return nil
}
