// Package fdc provides the data attestation connection. It fetches data
// from external chains, verifies the threshold attestation covering it,
// relays verified records onward and answers catalog queries about the
// chains the attestation service can address.
package fdc

import (
	"encoding/json"
	"time"
)

// AttestationSummary summarizes the threshold signature covering a record.
// Valid holds exactly when Signatures meets the threshold.
type AttestationSummary struct {
	Signatures int  `json:"signatures"`
	Threshold  int  `json:"threshold"`
	Valid      bool `json:"valid"`
}

// Record is raw attested data fetched from an external chain path.
type Record struct {
	Blockchain  string             `json:"blockchain"`
	Path        string             `json:"path"`
	Payload     json.RawMessage    `json:"payload"`
	Timestamp   time.Time          `json:"timestamp"`
	Attestation AttestationSummary `json:"attestation"`
	RequestID   string             `json:"requestId"`
}

// VerificationDetail explains how a record was verified.
type VerificationDetail struct {
	SignaturesVerified int           `json:"signaturesVerified"`
	Threshold          int           `json:"threshold"`
	Method             string        `json:"method"`
	SourceChain        string        `json:"sourceChain"`
	Finality           time.Duration `json:"finality"`
	Protocol           string        `json:"protocol"`
}

// Verification is the outcome of verifying a Record. Verified=true implies
// an empty Error.
type Verification struct {
	RequestID  string             `json:"requestId"`
	Verified   bool               `json:"verified"`
	Confidence float64            `json:"confidence"`
	Timestamp  time.Time          `json:"timestamp"`
	Detail     VerificationDetail `json:"detail"`
	Error      string             `json:"error,omitempty"`
}

// VerifiedRecord pairs a record with its verification outcome for
// submission.
type VerifiedRecord struct {
	Record       Record       `json:"record"`
	Verification Verification `json:"verification"`
}

// Chain is one catalog entry for a supported source chain.
type Chain struct {
	Name        string        `json:"name"`
	ChainID     string        `json:"chainId"`
	Operations  []string      `json:"operations"`
	AvgFinality time.Duration `json:"avgFinality"`
}
