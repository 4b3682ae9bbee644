package stateconnector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flarekit/flaresdk/connector"
	"github.com/flarekit/flaresdk/transport"
)

func connectedConn(t *testing.T) *Connection {
	t.Helper()
	conn := NewConnection(nil, transport.NewSimulated(31), nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return conn
}

func signatures(n int) []transport.SignatureRecord {
	sigs := make([]transport.SignatureRecord, n)
	for i := range sigs {
		sigs[i] = transport.SignatureRecord{
			Signer:    fmt.Sprintf("0xsigner%02d", i),
			Signature: fmt.Sprintf("0xsig%02d", i),
		}
	}
	return sigs
}

func TestRequiredAttestationsIsSupermajorityCeiling(t *testing.T) {
	// The floor at 1 keeps an empty signature set from counting as quorum.
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 3, 4: 3, 6: 5, 9: 7, 10: 7, 100: 67}
	for n, want := range cases {
		if got := requiredAttestations(n); got != want {
			t.Fatalf("requiredAttestations(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestSubmitStateProofRejectsEmptySignatureSet(t *testing.T) {
	conn := connectedConn(t)

	proof := Proof{
		Blockchain: "ethereum",
		Address:    "0xabc",
		RequestID:  "req-0",
		Proof:      ProofBlock{Hash: "0xblock"},
		Meta: ProofMetadata{
			Attestations: 0,
			Required:     requiredAttestations(0),
		},
	}
	if proof.Meta.Attestations >= proof.Meta.Required {
		t.Fatalf("empty signature set must not reach quorum: %#v", proof.Meta)
	}
	result, err := conn.SubmitStateProof(context.Background(), proof)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Success {
		t.Fatalf("unsigned proof must not submit: %#v", result)
	}
	if result.Error != "Insufficient attestation signatures" {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestGetExternalState(t *testing.T) {
	conn := connectedConn(t)

	proof, err := conn.GetExternalState(context.Background(), "ethereum", "0xabc", ProofOptions{})
	if err != nil {
		t.Fatalf("get external state: %v", err)
	}
	if proof.RequestID == "" || proof.Proof.Hash == "" {
		t.Fatalf("incomplete proof: %#v", proof)
	}
	if proof.State.Account == nil {
		t.Fatalf("account proof should carry an account snapshot")
	}
	wantRequired := requiredAttestations(proof.Meta.Attestations)
	if proof.Meta.Required != wantRequired {
		t.Fatalf("required = %d, want %d", proof.Meta.Required, wantRequired)
	}
	// Finality is computed from signatures against the threshold, not
	// asserted unconditionally.
	wantFinalized := proof.Meta.Attestations >= proof.Meta.Required
	if proof.Meta.Finalized != wantFinalized {
		t.Fatalf("finalized flag inconsistent: %#v", proof.Meta)
	}
}

func TestGetExternalStateContractVariant(t *testing.T) {
	conn := connectedConn(t)

	proof, err := conn.GetExternalState(context.Background(), "ethereum", "0xabc", ProofOptions{ProofType: "contract"})
	if err != nil {
		t.Fatalf("get external state: %v", err)
	}
	if proof.State.Contract == nil || proof.State.Account != nil {
		t.Fatalf("contract proof should carry exactly the contract snapshot: %#v", proof.State)
	}
}

func TestSubmitStateProofRejectsInsufficientSignatures(t *testing.T) {
	conn := connectedConn(t)

	proof := Proof{
		Blockchain: "ethereum",
		Address:    "0xabc",
		RequestID:  "req-1",
		Proof:      ProofBlock{Signatures: signatures(4)},
		Meta:       ProofMetadata{Attestations: 4, Required: 5},
	}
	result, err := conn.SubmitStateProof(context.Background(), proof)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Success {
		t.Fatalf("under-signed proof must not submit: %#v", result)
	}
	if result.Error != "Insufficient attestation signatures" {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestSubmitStateProofAcceptsSufficientSignatures(t *testing.T) {
	conn := connectedConn(t)

	proof := Proof{
		Blockchain: "ethereum",
		Address:    "0xabc",
		RequestID:  "req-2",
		Proof:      ProofBlock{Hash: "0xblock", Signatures: signatures(7)},
		Meta:       ProofMetadata{Attestations: 7, Required: 5},
	}
	result, err := conn.SubmitStateProof(context.Background(), proof)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Success || result.TxHash == "" {
		t.Fatalf("expected successful submission: %#v", result)
	}
}

func TestQueryStateWithAttestationVariants(t *testing.T) {
	conn := connectedConn(t)
	ctx := context.Background()

	account, err := conn.QueryStateWithAttestation(ctx, QueryRequest{
		Blockchain: "ethereum",
		Address:    "0xabc",
		Type:       QueryAccountState,
	})
	if err != nil {
		t.Fatalf("account query: %v", err)
	}
	if account.Payload.Account == nil || account.Payload.Transaction != nil || account.Payload.Call != nil {
		t.Fatalf("account payload variant wrong: %#v", account.Payload)
	}
	if !account.Attestation.ValidUntil.After(account.Attestation.IssuedAt) {
		t.Fatalf("expiry must follow issuance: %#v", account.Attestation)
	}
	if got := account.Attestation.ValidUntil.Sub(account.Attestation.IssuedAt); got != 24*time.Hour {
		t.Fatalf("validity window = %v, want 24h", got)
	}

	tx, err := conn.QueryStateWithAttestation(ctx, QueryRequest{
		Blockchain: "ethereum",
		Address:    "0xabc",
		Type:       QueryTransactionVerification,
		TxHash:     "0xdeadbeef",
	})
	if err != nil {
		t.Fatalf("tx query: %v", err)
	}
	if tx.Payload.Transaction == nil || tx.Payload.Transaction.Hash != "0xdeadbeef" {
		t.Fatalf("transaction payload variant wrong: %#v", tx.Payload)
	}

	call, err := conn.QueryStateWithAttestation(ctx, QueryRequest{
		Blockchain: "ethereum",
		Address:    "0xabc",
		Type:       QueryContractCall,
		CallMethod: "balanceOf",
	})
	if err != nil {
		t.Fatalf("call query: %v", err)
	}
	if call.Payload.Call == nil || call.Payload.Call.Method != "balanceOf" {
		t.Fatalf("call payload variant wrong: %#v", call.Payload)
	}
}

func TestQueryValidation(t *testing.T) {
	conn := connectedConn(t)
	ctx := context.Background()

	cases := []QueryRequest{
		{Address: "0xabc", Type: QueryAccountState},                               // no blockchain
		{Blockchain: "ethereum", Address: "0xabc", Type: "BALANCE_SHEET"},         // unknown type
		{Blockchain: "ethereum", Address: "0xabc", Type: QueryTransactionVerification}, // no tx hash
		{Blockchain: "ethereum", Address: "0xabc", Type: QueryContractCall},       // no method
	}
	for i, req := range cases {
		if _, err := conn.QueryStateWithAttestation(ctx, req); err == nil {
			t.Fatalf("case %d: expected validation error for %#v", i, req)
		}
	}
}

func TestVerifyAttestation(t *testing.T) {
	conn := connectedConn(t)
	now := time.Now()

	fresh := AttestationResponse{Attestation: Attestation{
		Signatures: signatures(5),
		IssuedAt:   now,
		ValidUntil: now.Add(time.Hour),
	}}
	if !conn.VerifyAttestation(fresh) {
		t.Fatalf("fresh attestation with quorum should verify")
	}

	expired := AttestationResponse{Attestation: Attestation{
		Signatures: signatures(10),
		IssuedAt:   now.Add(-25 * time.Hour),
		ValidUntil: now.Add(-time.Hour),
	}}
	if conn.VerifyAttestation(expired) {
		t.Fatalf("expired attestation must fail regardless of signature count")
	}

	underQuorum := AttestationResponse{Attestation: Attestation{
		Signatures: signatures(2),
		IssuedAt:   now,
		ValidUntil: now.Add(time.Hour),
	}}
	if conn.VerifyAttestation(underQuorum) {
		t.Fatalf("two signatures are below the minimum quorum")
	}

	exactQuorum := AttestationResponse{Attestation: Attestation{
		Signatures: signatures(3),
		IssuedAt:   now,
		ValidUntil: now.Add(time.Hour),
	}}
	if !conn.VerifyAttestation(exactQuorum) {
		t.Fatalf("three signatures meet the minimum quorum")
	}
}

func TestOperationsRequireConnect(t *testing.T) {
	conn := NewConnection(nil, transport.NewSimulated(1), nil)

	var notConnected *connector.NotConnectedError
	if _, err := conn.GetExternalState(context.Background(), "ethereum", "0xabc", ProofOptions{}); !errors.As(err, &notConnected) {
		t.Fatalf("expected NotConnectedError, got %v", err)
	}
	if status := conn.Status(context.Background()); status.Connected {
		t.Fatalf("pristine connection reports connected")
	}
}
