package fdc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flarekit/flaresdk/connector"
	"github.com/flarekit/flaresdk/transport"
)

func connectedConn(t *testing.T) *Connection {
	t.Helper()
	conn := NewConnection(nil, transport.NewSimulated(21), nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return conn
}

func validRecord() Record {
	payload, _ := json.Marshal(map[string]interface{}{"symbol": "ETH", "value": 3011.4})
	return Record{
		Blockchain: "ethereum",
		Path:       "/ethereum/price/ETH",
		Payload:    payload,
		Timestamp:  time.Now(),
		Attestation: AttestationSummary{
			Signatures: 7,
			Threshold:  5,
			Valid:      true,
		},
		RequestID: "req-1",
	}
}

func TestStatusBeforeConnect(t *testing.T) {
	conn := NewConnection(nil, transport.NewSimulated(1), nil)
	status := conn.Status(context.Background())
	if status.Connected || status.Error != "" || status.Counters != nil {
		t.Fatalf("pristine status must be bare: %#v", status)
	}
}

func TestRequestExternalData(t *testing.T) {
	conn := connectedConn(t)

	record, err := conn.RequestExternalData(context.Background(), "ethereum", "/price/ETH")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if record.RequestID == "" {
		t.Fatalf("missing request id")
	}
	wantValid := record.Attestation.Signatures >= record.Attestation.Threshold
	if record.Attestation.Valid != wantValid {
		t.Fatalf("valid flag inconsistent with counts: %#v", record.Attestation)
	}
	if len(record.Payload) == 0 {
		t.Fatalf("empty payload")
	}
}

func TestVerifyExternalData(t *testing.T) {
	conn := connectedConn(t)

	result, err := conn.VerifyExternalData(context.Background(), validRecord())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Verified || result.Error != "" {
		t.Fatalf("expected verified result: %#v", result)
	}
	want := 7.0 / (5.0 * 1.5)
	if result.Confidence < want-1e-9 || result.Confidence > want+1e-9 {
		t.Fatalf("confidence = %v, want %v", result.Confidence, want)
	}
	if result.Detail.Method != "threshold-signature" || result.Detail.Protocol != "fdc-v2" {
		t.Fatalf("unexpected detail tags: %#v", result.Detail)
	}
	if result.Detail.Finality != 15*time.Minute {
		t.Fatalf("ethereum finality = %v, want 15m", result.Detail.Finality)
	}
}

func TestVerifyConfidenceIsCapped(t *testing.T) {
	conn := connectedConn(t)
	record := validRecord()
	record.Attestation.Signatures = 50

	result, err := conn.VerifyExternalData(context.Background(), record)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Confidence != 1 {
		t.Fatalf("confidence should cap at 1, got %v", result.Confidence)
	}
}

func TestVerifyRejectsBelowThreshold(t *testing.T) {
	conn := connectedConn(t)
	record := validRecord()
	record.Attestation.Signatures = 4
	record.Attestation.Valid = false

	result, err := conn.VerifyExternalData(context.Background(), record)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Verified || result.Confidence != 0 || result.Error == "" {
		t.Fatalf("expected failed verification: %#v", result)
	}
}

func TestVerifyRejectsMalformedPayload(t *testing.T) {
	conn := connectedConn(t)
	record := validRecord()
	record.Payload = []byte("not json {")

	result, err := conn.VerifyExternalData(context.Background(), record)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Verified {
		t.Fatalf("malformed payload must not verify: %#v", result)
	}
}

func TestVerifyUnknownChainFallsBackToConservativeFinality(t *testing.T) {
	conn := connectedConn(t)
	record := validRecord()
	record.Blockchain = "unknownchain"

	result, err := conn.VerifyExternalData(context.Background(), record)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Detail.Finality != time.Hour {
		t.Fatalf("fallback finality = %v, want 1h", result.Detail.Finality)
	}
}

func TestSubmitRequiresVerification(t *testing.T) {
	conn := connectedConn(t)

	record := validRecord()
	result, err := conn.SubmitExternalData(context.Background(), VerifiedRecord{
		Record:       record,
		Verification: Verification{Verified: false, Error: "below threshold"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Success || result.Error == "" {
		t.Fatalf("unverified record must not submit: %#v", result)
	}
}

func TestSubmitVerifiedRecord(t *testing.T) {
	conn := connectedConn(t)

	record := validRecord()
	verification, err := conn.VerifyExternalData(context.Background(), record)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	result, err := conn.SubmitExternalData(context.Background(), VerifiedRecord{
		Record:       record,
		Verification: verification,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Success || result.TxHash == "" {
		t.Fatalf("expected successful submission: %#v", result)
	}
}

func TestCatalogQueries(t *testing.T) {
	conn := connectedConn(t)

	chains, err := conn.SupportedBlockchains()
	if err != nil {
		t.Fatalf("supported blockchains: %v", err)
	}
	if len(chains) == 0 {
		t.Fatalf("catalog should be populated at connect")
	}
	for _, chain := range chains {
		if chain.AvgFinality <= 0 {
			t.Fatalf("non-positive finality: %#v", chain)
		}
	}

	// Case-insensitive on name, exact on chain id.
	for _, id := range []string{"ethereum", "Ethereum", "ETHEREUM", "eth-mainnet"} {
		if !conn.IsBlockchainSupported(id) {
			t.Fatalf("%q should be supported", id)
		}
	}
	if conn.IsBlockchainSupported("dogecoin") {
		t.Fatalf("dogecoin should not be supported")
	}
	if conn.IsBlockchainSupported("ETH-MAINNET") {
		t.Fatalf("chain id match must be exact")
	}
}

func TestOperationsRequireConnect(t *testing.T) {
	conn := NewConnection(nil, transport.NewSimulated(2), nil)

	var notConnected *connector.NotConnectedError
	if _, err := conn.RequestExternalData(context.Background(), "ethereum", "/price/ETH"); !errors.As(err, &notConnected) {
		t.Fatalf("expected NotConnectedError, got %v", err)
	}
	if _, err := conn.SupportedBlockchains(); !errors.As(err, &notConnected) {
		t.Fatalf("expected NotConnectedError, got %v", err)
	}
	if conn.IsBlockchainSupported("ethereum") {
		t.Fatalf("no chain is supported before connect")
	}
}

func TestVerifyDuringReconnectCycleNeverPanics(t *testing.T) {
	conn := connectedConn(t)
	record := validRecord()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var notConnected *connector.NotConnectedError
			for j := 0; j < 500; j++ {
				_, err := conn.VerifyExternalData(context.Background(), record)
				if err != nil && !errors.As(err, &notConnected) {
					t.Errorf("unexpected error during teardown window: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if err := conn.Disconnect(context.Background()); err != nil {
					t.Errorf("disconnect: %v", err)
					return
				}
				if err := conn.Connect(context.Background()); err != nil {
					t.Errorf("connect: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDataPath(t *testing.T) {
	cases := []struct {
		blockchain, dataType, specific, want string
	}{
		{"ethereum", "price", "ETH", "/ethereum/price/ETH"},
		{"Bitcoin", "block", "latest", "/bitcoin/block/latest"},
		{"/xrpl/", "/account/", "/r123/", "/xrpl/account/r123"},
	}
	for _, tc := range cases {
		if got := DataPath(tc.blockchain, tc.dataType, tc.specific); got != tc.want {
			t.Fatalf("DataPath(%q,%q,%q) = %q, want %q", tc.blockchain, tc.dataType, tc.specific, got, tc.want)
		}
	}
}

func TestPriceSymbolExtraction(t *testing.T) {
	if got := priceSymbol("/ethereum/price/eth"); got != "ETH" {
		t.Fatalf("symbol = %q", got)
	}
	if got := priceSymbol("/ethereum/block/latest"); got != "" {
		t.Fatalf("unexpected symbol %q for non-price path", got)
	}
}

func ExampleConnection_VerifyExternalData() {
	conn := NewConnection(nil, transport.NewSimulated(4), nil)
	if err := conn.Connect(context.Background()); err != nil {
		fmt.Println(err)
		return
	}
	record, _ := conn.RequestExternalData(context.Background(), "ethereum", "/price/ETH")
	result, _ := conn.VerifyExternalData(context.Background(), record)
	fmt.Println(result.Verified, result.Detail.Method)
	// Output:
	// true threshold-signature
}
