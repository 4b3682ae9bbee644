// Package transport abstracts the remote Flare-side services behind
// request/response capability interfaces, one per sub-connection. Two
// implementations exist side by side: Client speaks HTTP to a remote
// endpoint, Simulated is a deterministic in-process source for tests and
// offline probing.
package transport

import (
	"context"
	"encoding/json"
	"time"
)

// Conn is the lifecycle shared by every source. Connect establishes the
// remote session, Ping probes health and reports round-trip latency, Close
// releases the session.
type Conn interface {
	Connect(ctx context.Context) error
	Ping(ctx context.Context) (time.Duration, error)
	Close(ctx context.Context) error
}

// PriceSource serves the price-consensus oracle.
type PriceSource interface {
	Conn
	LatestPrice(ctx context.Context, symbol string) (PricePoint, error)
	// PriceSeries returns points aligned exactly to the step grid over
	// [from, to]. Successive points carry serial correlation: each price is
	// a bounded multiplicative perturbation of its predecessor.
	PriceSeries(ctx context.Context, symbol string, from, to time.Time, step time.Duration) ([]PricePoint, error)
	Providers(ctx context.Context) ([]ProviderRecord, error)
	SubmitPrice(ctx context.Context, sub PriceSubmission) (txHash string, err error)
}

// DataSource serves the external-data attestation service.
type DataSource interface {
	Conn
	ExternalData(ctx context.Context, blockchain, path string) (ExternalPayload, error)
	SubmitData(ctx context.Context, sub DataSubmission) (txHash string, err error)
}

// StateSource serves the account/transaction state-proof service.
type StateSource interface {
	Conn
	StateProof(ctx context.Context, blockchain, address string, opts ProofOptions) (ProofRecord, error)
	SubmitProof(ctx context.Context, sub ProofSubmission) (txHash string, err error)
	QueryState(ctx context.Context, q StateQuery) (QueryRecord, error)
}

// PricePoint is one consensus price observation.
type PricePoint struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	Timestamp        time.Time `json:"timestamp"`
	Confidence       float64   `json:"confidence"`
	ProviderCount    int       `json:"providerCount"`
	ConsensusReached bool      `json:"consensusReached"`
}

// ProviderRecord describes one registered price data provider.
type ProviderRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Reliability float64  `json:"reliability"`
	Accuracy    float64  `json:"accuracy"`
	VotePower   float64  `json:"votePower"`
	Symbols     []string `json:"symbols"`
}

// PriceSubmission is a signed price data point from a registered provider.
type PriceSubmission struct {
	ProviderID string    `json:"providerId"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
	Signature  string    `json:"signature"`
}

// ExternalPayload is raw attested data fetched from an external chain path.
type ExternalPayload struct {
	Blockchain     string          `json:"blockchain"`
	Path           string          `json:"path"`
	Data           json.RawMessage `json:"data"`
	Timestamp      time.Time       `json:"timestamp"`
	SignatureCount int             `json:"signatureCount"`
	Threshold      int             `json:"threshold"`
}

// DataSubmission relays a verified external-data record onward.
type DataSubmission struct {
	RequestID  string          `json:"requestId"`
	Blockchain string          `json:"blockchain"`
	Path       string          `json:"path"`
	Symbol     string          `json:"symbol,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// ProofOptions select what a state proof should cover.
type ProofOptions struct {
	ProofType   string `json:"proofType,omitempty"`
	BlockHeight uint64 `json:"blockHeight,omitempty"`
}

// SignatureRecord is one ordered signer/signature pair of an attestation.
type SignatureRecord struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// AccountState is the account variant of a state snapshot.
type AccountState struct {
	Balance     string `json:"balance"`
	Nonce       uint64 `json:"nonce"`
	CodeHash    string `json:"codeHash,omitempty"`
	StorageRoot string `json:"storageRoot,omitempty"`
}

// ContractState is the contract-storage variant of a state snapshot.
type ContractState struct {
	CodeHash string            `json:"codeHash"`
	Storage  map[string]string `json:"storage,omitempty"`
}

// TransactionConfirmation is the transaction-verification variant of a
// state query response.
type TransactionConfirmation struct {
	Hash          string `json:"hash"`
	Confirmed     bool   `json:"confirmed"`
	Confirmations int    `json:"confirmations"`
	BlockHeight   uint64 `json:"blockHeight"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	Value         string `json:"value,omitempty"`
}

// ContractCallResult is the contract-call variant of a state query response.
type ContractCallResult struct {
	Method     string          `json:"method"`
	ReturnData json.RawMessage `json:"returnData"`
}

// ProofRecord is a raw state proof as returned by the remote service. At
// most one of Account and Contract is set, selected by ProofType.
type ProofRecord struct {
	Blockchain  string            `json:"blockchain"`
	Address     string            `json:"address"`
	BlockHeight uint64            `json:"blockHeight"`
	BlockHash   string            `json:"blockHash"`
	Timestamp   time.Time         `json:"timestamp"`
	ProofType   string            `json:"proofType"`
	Signatures  []SignatureRecord `json:"signatures"`
	Account     *AccountState     `json:"account,omitempty"`
	Contract    *ContractState    `json:"contract,omitempty"`
}

// ProofSubmission relays a state proof onward.
type ProofSubmission struct {
	RequestID  string `json:"requestId"`
	Blockchain string `json:"blockchain"`
	Address    string `json:"address"`
	BlockHash  string `json:"blockHash"`
	Signatures int    `json:"signatures"`
}

// StateQuery asks for attested state. Type selects which optional request
// fields apply.
type StateQuery struct {
	Blockchain string `json:"blockchain"`
	Address    string `json:"address"`
	Type       string `json:"type"`
	TxHash     string `json:"txHash,omitempty"`
	CallMethod string `json:"callMethod,omitempty"`
	CallData   string `json:"callData,omitempty"`
}

// QueryRecord is the raw signed answer to a state query. Exactly one of the
// payload variants is set, matching the query type.
type QueryRecord struct {
	Account     *AccountState            `json:"account,omitempty"`
	Transaction *TransactionConfirmation `json:"transaction,omitempty"`
	Call        *ContractCallResult      `json:"call,omitempty"`
	Signatures  []SignatureRecord        `json:"signatures"`
	Timestamp   time.Time                `json:"timestamp"`
}
