// Package railgun is the JSON/HTTP client for the remote record service.
//
// Every call is a JSON-bodied POST. Failures are reported as
// *TransportError (the request never completed) or *RejectionError (the
// service answered with a non-2xx status).
package railgun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/schema"
)

// DefaultOrigin is the backend origin used when none is configured.
const DefaultOrigin = "http://127.0.0.1:8888"

// maxErrorBody caps how much of a rejection body is kept.
const maxErrorBody = 4 << 10

// ReadRequest is the "read" member of a /read body.
type ReadRequest struct {
	Filters      *Filter  `json:"filters,omitempty"`
	ReturnFields []string `json:"return_fields"`
	Pagination   int      `json:"pagination"`
	Page         int      `json:"page,omitempty"`
}

// UpdateRequest is the /update body.
type UpdateRequest struct {
	Schema   string         `json:"schema"`
	Entity   string         `json:"entity"`
	EntityID schema.ID      `json:"entity_id"`
	Data     map[string]any `json:"data"`
}

// CreateRequest is the /create body.
type CreateRequest struct {
	Schema string         `json:"schema"`
	Entity string         `json:"entity"`
	Data   map[string]any `json:"data"`
}

type telescopeRequest struct {
	Schema string `json:"schema"`
	Entity string `json:"entity,omitempty"`
}

type readBody struct {
	Schema string      `json:"schema"`
	Entity string      `json:"entity"`
	Read   ReadRequest `json:"read"`
}

// Client talks to one backend origin.
type Client struct {
	origin string
	http   *http.Client
	token  string
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for origin. An empty origin selects DefaultOrigin.
func New(origin string, opts ...Option) *Client {
	if origin == "" {
		origin = DefaultOrigin
	}
	c := &Client{
		origin: strings.TrimRight(origin, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Origin returns the backend origin.
func (c *Client) Origin() string { return c.origin }

// Telescope fetches the full schema descriptor.
func (c *Client) Telescope(ctx context.Context, schemaCode string) (*schema.Snapshot, error) {
	body, err := c.post(ctx, "telescope", telescopeRequest{Schema: schemaCode})
	if err != nil {
		return nil, err
	}
	return schema.Decode(body, schemaCode)
}

// TelescopeEntity fetches the descriptor of a single entity type.
func (c *Client) TelescopeEntity(ctx context.Context, schemaCode, entity string) (*schema.EntityDescriptor, error) {
	body, err := c.post(ctx, "telescope", telescopeRequest{Schema: schemaCode, Entity: entity})
	if err != nil {
		return nil, err
	}
	return schema.DecodeEntity(entity, body)
}

// Read fetches rows of one entity type. snap is used to decode reference
// fields into schema.Reference values.
func (c *Client) Read(ctx context.Context, snap *schema.Snapshot, entity string, req ReadRequest) ([]schema.Row, error) {
	body, err := c.post(ctx, "read", readBody{Schema: snap.Code(), Entity: entity, Read: req})
	if err != nil {
		return nil, err
	}
	return schema.DecodeRows(snap, entity, body)
}

// Update writes field values of one record.
func (c *Client) Update(ctx context.Context, req UpdateRequest) error {
	_, err := c.post(ctx, "update", req)
	return err
}

// Create inserts a record and returns the created record when the service
// echoes it back. An empty or non-object response yields a nil row.
func (c *Client) Create(ctx context.Context, req CreateRequest) (schema.Row, error) {
	body, err := c.post(ctx, "create", req)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var row schema.Row
	if err := dec.Decode(&row); err != nil {
		return nil, nil
	}
	return row, nil
}

func (c *Client) post(ctx context.Context, op string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("railgun %s: encoding request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.origin+"/"+op, bytes.NewReader(buf))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	c.logger.Debug("railgun request",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &RejectionError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
