// Package stateconnector provides the state proof connection. It requests
// account and transaction state with cryptographic attestation, checks
// attestation validity and expiry, and relays accepted proofs onward.
package stateconnector

import (
	"time"

	"github.com/flarekit/flaresdk/transport"
)

// QueryType selects the shape of a state query and its response payload.
type QueryType string

const (
	QueryAccountState            QueryType = "ACCOUNT_STATE"
	QueryTransactionVerification QueryType = "TRANSACTION_VERIFICATION"
	QueryContractCall            QueryType = "CONTRACT_CALL"
)

// ProofOptions select what a requested proof should cover.
type ProofOptions struct {
	ProofType   string `json:"proofType,omitempty"`
	BlockHeight uint64 `json:"blockHeight,omitempty"`
}

// ProofBlock is the cryptographic part of a state proof.
type ProofBlock struct {
	Height     uint64                      `json:"height"`
	Hash       string                      `json:"hash"`
	Timestamp  time.Time                   `json:"timestamp"`
	Type       string                      `json:"type"`
	Signatures []transport.SignatureRecord `json:"signatures"`
}

// ProofMetadata carries the attestation accounting for a proof.
// Finalized holds exactly when Attestations meets Required.
type ProofMetadata struct {
	Attestations int  `json:"attestations"`
	Required     int  `json:"required"`
	Finalized    bool `json:"finalized"`
}

// StateSnapshot is the proven state, tagged by the proof type: exactly one
// variant is set.
type StateSnapshot struct {
	Account  *transport.AccountState  `json:"account,omitempty"`
	Contract *transport.ContractState `json:"contract,omitempty"`
}

// Proof is account or contract state together with its cryptographic proof.
type Proof struct {
	Blockchain string        `json:"blockchain"`
	Address    string        `json:"address"`
	RequestID  string        `json:"requestId"`
	State      StateSnapshot `json:"state"`
	Proof      ProofBlock    `json:"proof"`
	Meta       ProofMetadata `json:"metadata"`
}

// QueryRequest asks for attested state. TxHash applies to
// TRANSACTION_VERIFICATION, CallMethod/CallData to CONTRACT_CALL.
type QueryRequest struct {
	Blockchain string    `json:"blockchain"`
	Address    string    `json:"address"`
	Type       QueryType `json:"type"`
	TxHash     string    `json:"txHash,omitempty"`
	CallMethod string    `json:"callMethod,omitempty"`
	CallData   string    `json:"callData,omitempty"`
}

// QueryPayload is the response payload, tagged by the query type: exactly
// one variant is set.
type QueryPayload struct {
	Account     *transport.AccountState            `json:"account,omitempty"`
	Transaction *transport.TransactionConfirmation `json:"transaction,omitempty"`
	Call        *transport.ContractCallResult      `json:"call,omitempty"`
}

// Attestation is the ordered signer set backing a query response, with its
// validity window. ValidUntil is always after IssuedAt.
type Attestation struct {
	Signatures []transport.SignatureRecord `json:"signatures"`
	IssuedAt   time.Time                   `json:"issuedAt"`
	ValidUntil time.Time                   `json:"validUntil"`
}

// AttestationResponse is a signed answer to a state query.
type AttestationResponse struct {
	RequestID   string            `json:"requestId"`
	Blockchain  string            `json:"blockchain"`
	Address     string            `json:"address"`
	Query       QueryRequest      `json:"query"`
	Payload     QueryPayload      `json:"payload"`
	Attestation Attestation       `json:"attestation"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
