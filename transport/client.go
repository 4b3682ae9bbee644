package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const defaultTimeout = 30 * time.Second

// maxResponseBytes bounds how much of a remote response is read.
const maxResponseBytes = 4 << 20

// ClientConfig holds HTTP source configuration.
type ClientConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client talks to the remote network services over HTTP. A single Client
// implements PriceSource, DataSource and StateSource; each sub-connection
// consumes only its own interface.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var (
	_ PriceSource = (*Client)(nil)
	_ DataSource  = (*Client)(nil)
	_ StateSource = (*Client)(nil)
)

// NewClient creates an HTTP source for the given endpoint.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Connect verifies the remote endpoint is reachable.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}

// Ping probes the health endpoint and returns the round-trip latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.do(ctx, http.MethodGet, "/health", nil); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Close releases idle connections. The Client itself is stateless and can
// be reconnected afterwards.
func (c *Client) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) LatestPrice(ctx context.Context, symbol string) (PricePoint, error) {
	var point PricePoint
	err := c.getJSON(ctx, "/ftso/prices/"+url.PathEscape(symbol), &point)
	return point, err
}

func (c *Client) PriceSeries(ctx context.Context, symbol string, from, to time.Time, step time.Duration) ([]PricePoint, error) {
	path := fmt.Sprintf("/ftso/prices/%s/series?from=%d&to=%d&step=%d",
		url.PathEscape(symbol), from.Unix(), to.Unix(), int64(step/time.Second))
	var points []PricePoint
	err := c.getJSON(ctx, path, &points)
	return points, err
}

func (c *Client) Providers(ctx context.Context) ([]ProviderRecord, error) {
	var providers []ProviderRecord
	err := c.getJSON(ctx, "/ftso/providers", &providers)
	return providers, err
}

func (c *Client) SubmitPrice(ctx context.Context, sub PriceSubmission) (string, error) {
	return c.postForTxHash(ctx, "/ftso/submissions", sub)
}

func (c *Client) ExternalData(ctx context.Context, blockchain, path string) (ExternalPayload, error) {
	var payload ExternalPayload
	err := c.getJSON(ctx, "/fdc/data/"+url.PathEscape(blockchain)+"?path="+url.QueryEscape(path), &payload)
	return payload, err
}

func (c *Client) SubmitData(ctx context.Context, sub DataSubmission) (string, error) {
	return c.postForTxHash(ctx, "/fdc/submissions", sub)
}

func (c *Client) StateProof(ctx context.Context, blockchain, address string, opts ProofOptions) (ProofRecord, error) {
	path := fmt.Sprintf("/state/%s/%s/proof", url.PathEscape(blockchain), url.PathEscape(address))
	if opts.ProofType != "" || opts.BlockHeight != 0 {
		path += fmt.Sprintf("?proofType=%s&blockHeight=%d", url.QueryEscape(opts.ProofType), opts.BlockHeight)
	}
	var record ProofRecord
	err := c.getJSON(ctx, path, &record)
	return record, err
}

func (c *Client) SubmitProof(ctx context.Context, sub ProofSubmission) (string, error) {
	return c.postForTxHash(ctx, "/state/submissions", sub)
}

func (c *Client) QueryState(ctx context.Context, q StateQuery) (QueryRecord, error) {
	body, err := c.do(ctx, http.MethodPost, "/state/query", q)
	if err != nil {
		return QueryRecord{}, err
	}
	var record QueryRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return QueryRecord{}, fmt.Errorf("decode query result: %w", err)
	}
	return record, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *Client) postForTxHash(ctx context.Context, path string, payload interface{}) (string, error) {
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return "", err
	}
	txHash := gjson.GetBytes(body, "txHash")
	if !txHash.Exists() {
		return "", fmt.Errorf("submission response missing txHash")
	}
	return txHash.String(), nil
}

// do issues one request and unwraps the {result, error} envelope, returning
// the raw result bytes.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return nil, fmt.Errorf("remote error (%d): %s", resp.StatusCode, msg.String())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if result := gjson.GetBytes(body, "result"); result.Exists() {
		return []byte(result.Raw), nil
	}
	return body, nil
}
