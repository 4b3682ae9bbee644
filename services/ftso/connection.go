package ftso

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/flarekit/flaresdk/config"
	"github.com/flarekit/flaresdk/connector"
	"github.com/flarekit/flaresdk/internal/metrics"
	"github.com/flarekit/flaresdk/pkg/logger"
	"github.com/flarekit/flaresdk/transport"
)

const serviceName = "ftso"

// Connection is the price oracle sub-connection.
type Connection struct {
	mu         sync.RWMutex
	state      connector.State
	lastUpdate time.Time
	lastError  string

	source transport.PriceSource
	creds  *config.ProviderCredentials
	log    *logger.Logger

	limiter *rate.Limiter

	registry atomic.Pointer[providerRegistry]
	refresh  singleflight.Group

	priceRequests  atomic.Uint64
	seriesRequests atomic.Uint64
	submissions    atomic.Uint64
}

var _ connector.Connection = (*Connection)(nil)

// NewConnection creates a price oracle connection over the given source.
// cfg may be nil; provider credentials inside it gate SubmitDataPoint.
func NewConnection(cfg *config.FTSOConfig, source transport.PriceSource, log *logger.Logger) *Connection {
	if log == nil {
		log = logger.NewDefault(serviceName)
	}
	conn := &Connection{
		source: source,
		log:    log,
	}
	if cfg != nil && cfg.Provider != nil {
		creds := *cfg.Provider
		conn.creds = &creds
		if creds.MinSubmitInterval > 0 {
			conn.limiter = rate.NewLimiter(rate.Every(creds.MinSubmitInterval), 1)
		}
	}
	return conn
}

func (c *Connection) Name() string { return serviceName }

// Connect establishes the transport and primes the provider registry.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == connector.Connected {
		c.mu.Unlock()
		return nil
	}
	c.state = connector.Connecting
	c.mu.Unlock()

	err := c.source.Connect(ctx)
	if err == nil {
		// The registry backs GetProviders and status counters; priming it
		// is part of establishing the connection. A prime failure must not
		// leak the session that was just established.
		var providers []transport.ProviderRecord
		if providers, err = c.source.Providers(ctx); err == nil {
			c.registry.Store(newProviderRegistry(providers, time.Now()))
		} else if closeErr := c.source.Close(ctx); closeErr != nil {
			c.log.WithError(closeErr).Warn("releasing transport after failed registry prime")
		}
	}
	metrics.ObserveConnect(serviceName, err)
	if err != nil {
		c.mu.Lock()
		c.state = connector.Disconnected
		c.mu.Unlock()
		return &connector.ConnectionError{Service: serviceName, Err: err}
	}

	c.mu.Lock()
	c.state = connector.Connected
	c.lastUpdate = time.Now()
	c.lastError = ""
	c.mu.Unlock()

	c.log.WithField("providers", len(c.snapshot().providers)).Info("price oracle connected")
	return nil
}

// Disconnect releases the transport. Internal state is Disconnected
// afterwards even when the release fails.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == connector.Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = connector.Disconnecting
	c.mu.Unlock()

	err := c.source.Close(ctx)

	c.mu.Lock()
	c.state = connector.Disconnected
	c.lastError = ""
	c.mu.Unlock()
	c.registry.Store(nil)

	if err != nil {
		return &connector.DisconnectError{Service: serviceName, Err: err}
	}
	c.log.Info("price oracle disconnected")
	return nil
}

// Status reports a health snapshot. It never returns an error: a failed
// probe degrades to an Error field inside a still-connected status.
func (c *Connection) Status(ctx context.Context) connector.Status {
	c.mu.RLock()
	state := c.state
	lastUpdate := c.lastUpdate
	lastError := c.lastError
	c.mu.RUnlock()

	if state != connector.Connected && state != connector.Errored {
		return connector.Status{}
	}

	status := connector.Status{
		Connected:  true,
		LastUpdate: lastUpdate,
		Counters: map[string]uint64{
			"priceRequests":  c.priceRequests.Load(),
			"seriesRequests": c.seriesRequests.Load(),
			"submissions":    c.submissions.Load(),
			"providers":      uint64(len(c.snapshot().providers)),
		},
	}
	latency, err := c.source.Ping(ctx)
	if err != nil {
		return connector.Status{Connected: true, LastUpdate: lastUpdate, Error: err.Error()}
	}
	status.Latency = latency
	status.Error = lastError
	return status
}

// GetLatestPrice returns the current consensus price for symbol.
func (c *Connection) GetLatestPrice(ctx context.Context, symbol string) (PriceQuote, error) {
	if err := c.ensureConnected("GetLatestPrice"); err != nil {
		return PriceQuote{}, err
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return PriceQuote{}, fmt.Errorf("%s: symbol is required", serviceName)
	}

	start := time.Now()
	point, err := c.source.LatestPrice(ctx, symbol)
	metrics.ObserveRequest(serviceName, "latest_price", time.Since(start))
	if err != nil {
		c.recordFailure(err)
		return PriceQuote{}, fmt.Errorf("%s: latest price for %s: %w", serviceName, symbol, err)
	}
	c.priceRequests.Add(1)
	c.recordSuccess()

	quote, err := quoteFromPoint(point)
	if err != nil {
		return PriceQuote{}, err
	}
	c.log.WithField("symbol", symbol).
		WithField("price", quote.Price).
		WithField("epoch", quote.Source.Epoch).
		Debug("latest price fetched")
	return quote, nil
}

// GetHistoricalPrices returns quotes at exact epoch spacing covering
// [from, to], time-ascending. Successive prices carry serial correlation
// supplied by the source.
func (c *Connection) GetHistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]PriceQuote, error) {
	if err := c.ensureConnected("GetHistoricalPrices"); err != nil {
		return nil, err
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%s: symbol is required", serviceName)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%s: history range end precedes start", serviceName)
	}

	start := time.Now()
	points, err := c.source.PriceSeries(ctx, symbol, from, to, connector.EpochDuration)
	metrics.ObserveRequest(serviceName, "price_series", time.Since(start))
	if err != nil {
		c.recordFailure(err)
		return nil, fmt.Errorf("%s: price series for %s: %w", serviceName, symbol, err)
	}
	c.seriesRequests.Add(1)
	c.recordSuccess()

	quotes := make([]PriceQuote, 0, len(points))
	var prev time.Time
	for i, point := range points {
		if i > 0 && !point.Timestamp.After(prev) {
			return nil, fmt.Errorf("%s: source returned unordered series for %s", serviceName, symbol)
		}
		prev = point.Timestamp
		quote, err := quoteFromPoint(point)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// SubmitDataPoint submits a provider price for symbol. Provider credentials
// must be configured; a submission sooner than the configured minimum
// interval is a failed outcome, not an error.
func (c *Connection) SubmitDataPoint(ctx context.Context, symbol string, price float64, ts time.Time) (connector.SubmissionResult, error) {
	if err := c.ensureConnected("SubmitDataPoint"); err != nil {
		return connector.SubmissionResult{}, err
	}
	if c.creds == nil {
		return connector.SubmissionResult{}, &connector.ConfigurationError{
			Service: serviceName,
			Missing: "provider credentials (ftsoConfig.provider)",
		}
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return connector.SubmissionResult{}, fmt.Errorf("%s: symbol is required", serviceName)
	}
	if price < 0 {
		return connector.SubmissionResult{}, fmt.Errorf("%s: price must not be negative", serviceName)
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	epoch := connector.EpochAt(ts)
	if c.limiter != nil && !c.limiter.Allow() {
		result := connector.SubmissionResult{
			Epoch:       epoch,
			SubmittedAt: time.Now(),
			Error:       "minimum submission interval not elapsed",
		}
		metrics.ObserveSubmission(serviceName, false)
		return result, nil
	}

	sub := transport.PriceSubmission{
		ProviderID: c.creds.ID,
		Symbol:     symbol,
		Price:      price,
		Timestamp:  ts,
		Signature:  submissionDigest(c.creds, symbol, price, ts),
	}
	start := time.Now()
	txHash, err := c.source.SubmitPrice(ctx, sub)
	metrics.ObserveRequest(serviceName, "submit_price", time.Since(start))
	c.submissions.Add(1)
	if err != nil {
		c.recordFailure(err)
		metrics.ObserveSubmission(serviceName, false)
		return connector.SubmissionResult{
			Epoch:       epoch,
			SubmittedAt: time.Now(),
			Error:       err.Error(),
		}, nil
	}
	c.recordSuccess()
	metrics.ObserveSubmission(serviceName, true)

	c.log.WithField("symbol", symbol).
		WithField("epoch", epoch).
		WithField("txHash", txHash).
		Info("price data point submitted")
	return connector.SubmissionResult{
		Success:     true,
		Epoch:       epoch,
		SubmittedAt: time.Now(),
		TxHash:      txHash,
	}, nil
}

// submissionDigest authenticates a submission as a keyed Keccak digest of
// the canonical payload; the remote service derives the same digest from
// the registered provider key.
func submissionDigest(creds *config.ProviderCredentials, symbol string, price float64, ts time.Time) string {
	payload := fmt.Sprintf("%s|%s|%.8f|%d|%s", creds.ID, symbol, price, ts.Unix(), creds.PrivateKey)
	digest := sha3.NewLegacyKeccak256()
	digest.Write([]byte(payload))
	return "0x" + hex.EncodeToString(digest.Sum(nil))
}

func quoteFromPoint(point transport.PricePoint) (PriceQuote, error) {
	if point.Price < 0 {
		return PriceQuote{}, fmt.Errorf("%s: source returned negative price for %s", serviceName, point.Symbol)
	}
	overall := point.Confidence
	if overall < 0 {
		overall = 0
	}
	if overall > 1 {
		overall = 1
	}
	return PriceQuote{
		Symbol:    point.Symbol,
		Price:     point.Price,
		Timestamp: point.Timestamp,
		Confidence: Confidence{
			Overall:   overall,
			Providers: point.ProviderCount,
		},
		Source: SourceInfo{
			ProviderCount:    point.ProviderCount,
			ConsensusReached: point.ConsensusReached,
			Epoch:            connector.EpochAt(point.Timestamp),
		},
	}, nil
}

// ensureConnected gates data operations. Errored still counts as a live
// transport: a later successful operation restores Connected, and callers
// own the retry policy.
func (c *Connection) ensureConnected(op string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != connector.Connected && c.state != connector.Errored {
		return &connector.NotConnectedError{Service: serviceName, Op: op}
	}
	if c.source == nil {
		return &connector.NotConnectedError{Service: serviceName, Op: op}
	}
	return nil
}

func (c *Connection) recordFailure(err error) {
	c.mu.Lock()
	if c.state == connector.Connected {
		c.state = connector.Errored
	}
	c.lastError = err.Error()
	c.mu.Unlock()
}

func (c *Connection) recordSuccess() {
	c.mu.Lock()
	if c.state == connector.Errored {
		c.state = connector.Connected
	}
	c.lastError = ""
	c.lastUpdate = time.Now()
	c.mu.Unlock()
}
