// Package meta talks to the Meta Graph API: a generic authenticated GET,
// the fetchers the backfill pipeline needs, and the OAuth token exchange.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/socialpulse/connector/pkg/config"
	"github.com/socialpulse/connector/pkg/logging"
	"github.com/socialpulse/connector/pkg/telemetry"
)

// GraphError is the error payload the Graph API embeds in a 200 response
// body. Transport succeeded; the provider rejected the request.
type GraphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	TraceID   string `json:"fbtrace_id"`
	RawBody   []byte `json:"-"`
	GraphPath string `json:"-"`
}

// Error implements the error interface
func (e *GraphError) Error() string {
	return fmt.Sprintf("graph API error on %s: %s (type=%s, code=%d)", e.GraphPath, e.Message, e.Type, e.Code)
}

// Client issues requests against the Graph API
type Client struct {
	cfg      *config.MetaConfig
	http     *http.Client
	pageSize int
	logger   *zap.Logger
}

// New creates a new Graph API client
func New(cfg *config.MetaConfig, pageSize int) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: 30 * time.Second},
		pageSize: pageSize,
		logger:   logging.GetLogger().With(zap.String("component", "meta-client")),
	}
}

// Get issues an authenticated GET against the Graph API and returns the raw
// JSON body. The body's shape is not validated here beyond the provider
// error check; decoding is the caller's concern.
func (c *Client) Get(ctx context.Context, path, accessToken string, params map[string]string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "meta.get")
	defer span.End()

	q := url.Values{}
	q.Set("access_token", accessToken)
	for k, v := range params {
		q.Set(k, v)
	}

	return c.doGet(ctx, fmt.Sprintf("%s/%s?%s", c.cfg.GraphURL, path, q.Encode()), path)
}

// doGet fetches a fully built URL and surfaces provider error payloads as
// *GraphError. graphPath is only used for error context; the full URL may
// carry credentials.
func (c *Client) doGet(ctx context.Context, fullURL, graphPath string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", graphPath, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request %s failed: %w", graphPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph response for %s: %w", graphPath, err)
	}

	var envelope struct {
		Error *GraphError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode graph response for %s: %w", graphPath, err)
	}
	if envelope.Error != nil {
		envelope.Error.RawBody = body
		envelope.Error.GraphPath = graphPath
		return nil, envelope.Error
	}

	return json.RawMessage(body), nil
}
