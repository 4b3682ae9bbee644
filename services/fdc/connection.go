package fdc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/flarekit/flaresdk/config"
	"github.com/flarekit/flaresdk/connector"
	"github.com/flarekit/flaresdk/internal/metrics"
	"github.com/flarekit/flaresdk/pkg/logger"
	"github.com/flarekit/flaresdk/transport"
)

const (
	serviceName = "fdc"

	verificationMethod = "threshold-signature"
	defaultProtocol    = "fdc-v2"

	// confidenceDivisor scales the signature surplus into a confidence
	// score: sigs / (threshold * 1.5), capped at 1.
	confidenceDivisor = 1.5
)

// Connection is the data attestation sub-connection.
type Connection struct {
	mu         sync.RWMutex
	state      connector.State
	lastUpdate time.Time
	lastError  string
	chains     *catalog

	source   transport.DataSource
	protocol string
	log      *logger.Logger

	dataRequests  atomic.Uint64
	verifications atomic.Uint64
	submissions   atomic.Uint64
}

var _ connector.Connection = (*Connection)(nil)

// NewConnection creates a data attestation connection over the given
// source. cfg may be nil.
func NewConnection(cfg *config.FDCConfig, source transport.DataSource, log *logger.Logger) *Connection {
	if log == nil {
		log = logger.NewDefault(serviceName)
	}
	protocol := defaultProtocol
	if cfg != nil && strings.TrimSpace(cfg.Protocol) != "" {
		protocol = cfg.Protocol
	}
	return &Connection{
		source:   source,
		protocol: protocol,
		log:      log,
	}
}

func (c *Connection) Name() string { return serviceName }

// Connect establishes the transport and installs the static chain catalog.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == connector.Connected {
		c.mu.Unlock()
		return nil
	}
	c.state = connector.Connecting
	c.mu.Unlock()

	err := c.source.Connect(ctx)
	metrics.ObserveConnect(serviceName, err)
	if err != nil {
		c.mu.Lock()
		c.state = connector.Disconnected
		c.mu.Unlock()
		return &connector.ConnectionError{Service: serviceName, Err: err}
	}

	c.mu.Lock()
	c.chains = newCatalog()
	c.state = connector.Connected
	c.lastUpdate = time.Now()
	c.lastError = ""
	chainCount := len(c.chains.chains)
	c.mu.Unlock()

	c.log.WithField("chains", chainCount).Info("data attestation service connected")
	return nil
}

// Disconnect releases the transport; state is Disconnected afterwards even
// on release failure.
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
	c.chains = nil
	c.lastError = ""
	c.mu.Unlock()

	if err != nil {
		return &connector.DisconnectError{Service: serviceName, Err: err}
	}
	c.log.Info("data attestation service disconnected")
	return nil
}

// Status reports a health snapshot and never returns an error.
func (c *Connection) Status(ctx context.Context) connector.Status {
	c.mu.RLock()
	state := c.state
	lastUpdate := c.lastUpdate
	lastError := c.lastError
	chainCount := 0
	if c.chains != nil {
		chainCount = len(c.chains.chains)
	}
	c.mu.RUnlock()

	if state != connector.Connected && state != connector.Errored {
		return connector.Status{}
	}

	latency, err := c.source.Ping(ctx)
	if err != nil {
		return connector.Status{Connected: true, LastUpdate: lastUpdate, Error: err.Error()}
	}
	return connector.Status{
		Connected:  true,
		Latency:    latency,
		LastUpdate: lastUpdate,
		Error:      lastError,
		Counters: map[string]uint64{
			"dataRequests":    c.dataRequests.Load(),
			"verifications":   c.verifications.Load(),
			"submissions":     c.submissions.Load(),
			"supportedChains": uint64(chainCount),
		},
	}
}

// RequestExternalData fetches attested data from an external chain path.
// The attestation summary is valid exactly when the signature count meets
// the threshold at fetch time.
func (c *Connection) RequestExternalData(ctx context.Context, blockchain, path string) (Record, error) {
	if err := c.ensureConnected("RequestExternalData"); err != nil {
		return Record{}, err
	}
	blockchain = strings.TrimSpace(blockchain)
	if blockchain == "" || strings.TrimSpace(path) == "" {
		return Record{}, fmt.Errorf("%s: blockchain and path are required", serviceName)
	}

	start := time.Now()
	payload, err := c.source.ExternalData(ctx, blockchain, path)
	metrics.ObserveRequest(serviceName, "external_data", time.Since(start))
	if err != nil {
		c.recordFailure(err)
		return Record{}, fmt.Errorf("%s: external data %s%s: %w", serviceName, blockchain, path, err)
	}
	c.dataRequests.Add(1)
	c.recordSuccess()

	record := Record{
		Blockchain: blockchain,
		Path:       payload.Path,
		Payload:    payload.Data,
		Timestamp:  payload.Timestamp,
		Attestation: AttestationSummary{
			Signatures: payload.SignatureCount,
			Threshold:  payload.Threshold,
			Valid:      payload.SignatureCount >= payload.Threshold,
		},
		RequestID: uuid.NewString(),
	}
	c.log.WithField("blockchain", blockchain).
		WithField("path", path).
		WithField("requestId", record.RequestID).
		Debug("external data fetched")
	return record, nil
}

// VerifyExternalData re-validates a record's threshold attestation. A
// failed verification is an expected outcome carried in the result, not an
// error.
func (c *Connection) VerifyExternalData(ctx context.Context, record Record) (Verification, error) {
	chains, err := c.catalogSnapshot("VerifyExternalData")
	if err != nil {
		return Verification{}, err
	}
	c.verifications.Add(1)

	detail := VerificationDetail{
		SignaturesVerified: record.Attestation.Signatures,
		Threshold:          record.Attestation.Threshold,
		Method:             verificationMethod,
		SourceChain:        record.Blockchain,
		Finality:           chains.finalityFor(record.Blockchain),
		Protocol:           c.protocol,
	}
	result := Verification{
		RequestID: record.RequestID,
		Timestamp: time.Now(),
		Detail:    detail,
	}

	switch {
	case !record.Attestation.Valid:
		result.Error = "attestation marked invalid at fetch time"
	case record.Attestation.Signatures < record.Attestation.Threshold:
		result.Error = "signature count below threshold"
	case len(record.Payload) == 0 || !gjson.ValidBytes(record.Payload):
		result.Error = "payload is not well-formed JSON"
	default:
		result.Verified = true
		confidence := float64(record.Attestation.Signatures) /
			(float64(record.Attestation.Threshold) * confidenceDivisor)
		if confidence > 1 {
			confidence = 1
		}
		result.Confidence = confidence
	}

	metrics.ObserveVerification(serviceName, result.Verified)
	if !result.Verified {
		c.log.WithField("requestId", record.RequestID).
			WithField("reason", result.Error).
			Debug("external data verification failed")
	}
	return result, nil
}

// SubmitExternalData relays a verified record onward. Submission succeeds
// only for records whose verification passed.
func (c *Connection) SubmitExternalData(ctx context.Context, vr VerifiedRecord) (connector.SubmissionResult, error) {
	if err := c.ensureConnected("SubmitExternalData"); err != nil {
		return connector.SubmissionResult{}, err
	}
	c.submissions.Add(1)

	now := time.Now()
	epoch := connector.EpochAt(now)
	if !vr.Verification.Verified {
		metrics.ObserveSubmission(serviceName, false)
		return connector.SubmissionResult{
			Epoch:       epoch,
			SubmittedAt: now,
			Error:       "record has not passed attestation verification",
		}, nil
	}

	sub := transport.DataSubmission{
		RequestID:  vr.Record.RequestID,
		Blockchain: vr.Record.Blockchain,
		Path:       vr.Record.Path,
		Symbol:     priceSymbol(vr.Record.Path),
		Payload:    vr.Record.Payload,
	}
	start := time.Now()
	txHash, err := c.source.SubmitData(ctx, sub)
	metrics.ObserveRequest(serviceName, "submit_data", time.Since(start))
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

	c.log.WithField("requestId", vr.Record.RequestID).
		WithField("symbol", sub.Symbol).
		WithField("txHash", txHash).
		Info("verified data submitted")
	return connector.SubmissionResult{
		Success:     true,
		Epoch:       epoch,
		SubmittedAt: time.Now(),
		TxHash:      txHash,
	}, nil
}

// SupportedBlockchains returns the chain catalog installed at connect time.
func (c *Connection) SupportedBlockchains() ([]Chain, error) {
	chains, err := c.catalogSnapshot("SupportedBlockchains")
	if err != nil {
		return nil, err
	}
	return chains.copyChains(), nil
}

// IsBlockchainSupported reports whether the catalog contains the chain,
// matching case-insensitively on name and exactly on chain id.
func (c *Connection) IsBlockchainSupported(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.chains == nil {
		return false
	}
	_, ok := c.chains.lookup(id)
	return ok
}

// DataPath formats a canonical /blockchain/dataType/specificPath address.
// It is a pure helper with no side effects.
func DataPath(blockchain, dataType, specificPath string) string {
	parts := []string{
		strings.ToLower(strings.Trim(strings.TrimSpace(blockchain), "/")),
		strings.Trim(strings.TrimSpace(dataType), "/"),
		strings.Trim(strings.TrimSpace(specificPath), "/"),
	}
	return "/" + strings.Join(parts, "/")
}

// priceSymbol extracts <symbol> from a /price/<symbol> path segment, or
// returns "".
func priceSymbol(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if strings.EqualFold(segment, "price") && i+1 < len(segments) {
			return strings.ToUpper(segments[i+1])
		}
	}
	return ""
}

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

// catalogSnapshot returns the installed catalog under the same critical
// section as the state check, so a concurrent Disconnect cannot clear the
// catalog between the gate and the read.
func (c *Connection) catalogSnapshot(op string) (*catalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != connector.Connected && c.state != connector.Errored {
		return nil, &connector.NotConnectedError{Service: serviceName, Op: op}
	}
	if c.source == nil || c.chains == nil {
		return nil, &connector.NotConnectedError{Service: serviceName, Op: op}
	}
	return c.chains, nil
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
