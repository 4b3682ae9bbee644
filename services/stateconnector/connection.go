package stateconnector

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flarekit/flaresdk/config"
	"github.com/flarekit/flaresdk/connector"
	"github.com/flarekit/flaresdk/internal/metrics"
	"github.com/flarekit/flaresdk/pkg/logger"
	"github.com/flarekit/flaresdk/transport"
)

const (
	serviceName = "state-connector"

	// requiredFraction is the supermajority share of returned signatures a
	// proof must carry to count as finalized.
	requiredFraction = 0.67

	// attestationValidity is how long a query attestation stays acceptable.
	attestationValidity = 24 * time.Hour

	// minAttestationSignatures is the fixed minimum quorum accepted by
	// VerifyAttestation. It is independent of any registered validator set.
	minAttestationSignatures = 3

	insufficientSignatures = "Insufficient attestation signatures"
)

// Connection is the state proof sub-connection.
type Connection struct {
	mu         sync.RWMutex
	state      connector.State
	lastUpdate time.Time
	lastError  string

	source           transport.StateSource
	defaultProofType string
	log              *logger.Logger

	proofRequests atomic.Uint64
	queries       atomic.Uint64
	submissions   atomic.Uint64
}

var _ connector.Connection = (*Connection)(nil)

// NewConnection creates a state proof connection over the given source.
// cfg may be nil.
func NewConnection(cfg *config.StateConnectorConfig, source transport.StateSource, log *logger.Logger) *Connection {
	if log == nil {
		log = logger.NewDefault(serviceName)
	}
	proofType := "account"
	if cfg != nil && strings.TrimSpace(cfg.DefaultProofType) != "" {
		proofType = cfg.DefaultProofType
	}
	return &Connection{
		source:           source,
		defaultProofType: proofType,
		log:              log,
	}
}

func (c *Connection) Name() string { return serviceName }

// Connect establishes the transport.
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
	c.state = connector.Connected
	c.lastUpdate = time.Now()
	c.lastError = ""
	c.mu.Unlock()

	c.log.Info("state connector connected")
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
	c.lastError = ""
	c.mu.Unlock()

	if err != nil {
		return &connector.DisconnectError{Service: serviceName, Err: err}
	}
	c.log.Info("state connector disconnected")
	return nil
}

// Status reports a health snapshot and never returns an error.
func (c *Connection) Status(ctx context.Context) connector.Status {
	c.mu.RLock()
	state := c.state
	lastUpdate := c.lastUpdate
	lastError := c.lastError
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
			"proofRequests": c.proofRequests.Load(),
			"queries":       c.queries.Load(),
			"submissions":   c.submissions.Load(),
		},
	}
}

// GetExternalState requests a state proof for an address. The required
// attestation count is the two-thirds supermajority ceiling of the returned
// signature set, and Finalized is computed from it.
func (c *Connection) GetExternalState(ctx context.Context, blockchain, address string, opts ProofOptions) (Proof, error) {
	if err := c.ensureConnected("GetExternalState"); err != nil {
		return Proof{}, err
	}
	blockchain = strings.TrimSpace(blockchain)
	address = strings.TrimSpace(address)
	if blockchain == "" || address == "" {
		return Proof{}, fmt.Errorf("%s: blockchain and address are required", serviceName)
	}
	if opts.ProofType == "" {
		opts.ProofType = c.defaultProofType
	}

	start := time.Now()
	record, err := c.source.StateProof(ctx, blockchain, address, transport.ProofOptions{
		ProofType:   opts.ProofType,
		BlockHeight: opts.BlockHeight,
	})
	metrics.ObserveRequest(serviceName, "state_proof", time.Since(start))
	if err != nil {
		c.recordFailure(err)
		return Proof{}, fmt.Errorf("%s: state proof %s/%s: %w", serviceName, blockchain, address, err)
	}
	c.proofRequests.Add(1)
	c.recordSuccess()

	attestations := len(record.Signatures)
	required := requiredAttestations(attestations)
	proof := Proof{
		Blockchain: record.Blockchain,
		Address:    record.Address,
		RequestID:  uuid.NewString(),
		State: StateSnapshot{
			Account:  record.Account,
			Contract: record.Contract,
		},
		Proof: ProofBlock{
			Height:     record.BlockHeight,
			Hash:       record.BlockHash,
			Timestamp:  record.Timestamp,
			Type:       record.ProofType,
			Signatures: append([]transport.SignatureRecord(nil), record.Signatures...),
		},
		Meta: ProofMetadata{
			Attestations: attestations,
			Required:     required,
			Finalized:    attestations >= required,
		},
	}
	c.log.WithField("blockchain", blockchain).
		WithField("address", address).
		WithField("attestations", attestations).
		Debug("state proof fetched")
	return proof, nil
}

// SubmitStateProof relays a proof onward. A proof short of its required
// signature count is rejected as a failed outcome.
func (c *Connection) SubmitStateProof(ctx context.Context, proof Proof) (connector.SubmissionResult, error) {
	if err := c.ensureConnected("SubmitStateProof"); err != nil {
		return connector.SubmissionResult{}, err
	}
	c.submissions.Add(1)

	now := time.Now()
	epoch := connector.EpochAt(now)
	if len(proof.Proof.Signatures) < proof.Meta.Required {
		metrics.ObserveSubmission(serviceName, false)
		return connector.SubmissionResult{
			Epoch:       epoch,
			SubmittedAt: now,
			Error:       insufficientSignatures,
		}, nil
	}

	start := time.Now()
	txHash, err := c.source.SubmitProof(ctx, transport.ProofSubmission{
		RequestID:  proof.RequestID,
		Blockchain: proof.Blockchain,
		Address:    proof.Address,
		BlockHash:  proof.Proof.Hash,
		Signatures: len(proof.Proof.Signatures),
	})
	metrics.ObserveRequest(serviceName, "submit_proof", time.Since(start))
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

	c.log.WithField("requestId", proof.RequestID).
		WithField("txHash", txHash).
		Info("state proof submitted")
	return connector.SubmissionResult{
		Success:     true,
		Epoch:       epoch,
		SubmittedAt: time.Now(),
		TxHash:      txHash,
	}, nil
}

// QueryStateWithAttestation answers a typed state query with a signed
// attestation valid for 24 hours.
func (c *Connection) QueryStateWithAttestation(ctx context.Context, req QueryRequest) (AttestationResponse, error) {
	if err := c.ensureConnected("QueryStateWithAttestation"); err != nil {
		return AttestationResponse{}, err
	}
	if err := validateQuery(req); err != nil {
		return AttestationResponse{}, err
	}

	start := time.Now()
	record, err := c.source.QueryState(ctx, transport.StateQuery{
		Blockchain: req.Blockchain,
		Address:    req.Address,
		Type:       string(req.Type),
		TxHash:     req.TxHash,
		CallMethod: req.CallMethod,
		CallData:   req.CallData,
	})
	metrics.ObserveRequest(serviceName, "query_state", time.Since(start))
	if err != nil {
		c.recordFailure(err)
		return AttestationResponse{}, fmt.Errorf("%s: state query %s/%s: %w", serviceName, req.Blockchain, req.Address, err)
	}
	c.queries.Add(1)
	c.recordSuccess()

	payload, err := payloadForQuery(req.Type, record)
	if err != nil {
		return AttestationResponse{}, err
	}

	issuedAt := record.Timestamp
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	resp := AttestationResponse{
		RequestID:  uuid.NewString(),
		Blockchain: req.Blockchain,
		Address:    req.Address,
		Query:      req,
		Payload:    payload,
		Attestation: Attestation{
			Signatures: append([]transport.SignatureRecord(nil), record.Signatures...),
			IssuedAt:   issuedAt,
			ValidUntil: issuedAt.Add(attestationValidity),
		},
		Metadata: map[string]string{
			"queryType": string(req.Type),
		},
	}
	c.log.WithField("blockchain", req.Blockchain).
		WithField("queryType", string(req.Type)).
		Debug("attested state query answered")
	return resp, nil
}

// VerifyAttestation reports whether a response is still acceptable: the
// validity window must be open and the signer set must meet the fixed
// minimum quorum.
func (c *Connection) VerifyAttestation(resp AttestationResponse) bool {
	valid := time.Now().Before(resp.Attestation.ValidUntil) &&
		len(resp.Attestation.Signatures) >= minAttestationSignatures
	metrics.ObserveVerification(serviceName, valid)
	return valid
}

// requiredAttestations is the supermajority ceiling over n signatures,
// floored at 1 so an empty signature set can never count as finalized.
func requiredAttestations(n int) int {
	required := int(math.Ceil(requiredFraction * float64(n)))
	if required < 1 {
		required = 1
	}
	return required
}

func validateQuery(req QueryRequest) error {
	if strings.TrimSpace(req.Blockchain) == "" || strings.TrimSpace(req.Address) == "" {
		return fmt.Errorf("%s: blockchain and address are required", serviceName)
	}
	switch req.Type {
	case QueryAccountState:
	case QueryTransactionVerification:
		if strings.TrimSpace(req.TxHash) == "" {
			return fmt.Errorf("%s: txHash is required for %s", serviceName, req.Type)
		}
	case QueryContractCall:
		if strings.TrimSpace(req.CallMethod) == "" {
			return fmt.Errorf("%s: callMethod is required for %s", serviceName, req.Type)
		}
	default:
		return fmt.Errorf("%s: unknown query type %q", serviceName, req.Type)
	}
	return nil
}

// payloadForQuery selects the payload variant matching the query type.
func payloadForQuery(queryType QueryType, record transport.QueryRecord) (QueryPayload, error) {
	switch queryType {
	case QueryAccountState:
		if record.Account == nil {
			return QueryPayload{}, fmt.Errorf("%s: source omitted account payload", serviceName)
		}
		return QueryPayload{Account: record.Account}, nil
	case QueryTransactionVerification:
		if record.Transaction == nil {
			return QueryPayload{}, fmt.Errorf("%s: source omitted transaction payload", serviceName)
		}
		return QueryPayload{Transaction: record.Transaction}, nil
	case QueryContractCall:
		if record.Call == nil {
			return QueryPayload{}, fmt.Errorf("%s: source omitted call payload", serviceName)
		}
		return QueryPayload{Call: record.Call}, nil
	default:
		return QueryPayload{}, fmt.Errorf("%s: unknown query type %q", serviceName, queryType)
	}
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
