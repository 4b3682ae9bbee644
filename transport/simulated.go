package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// MaxSeriesDrift bounds the multiplicative perturbation between successive
// points of a simulated price series.
const MaxSeriesDrift = 0.02

// Simulated is a deterministic in-process source. A fixed seed yields a
// reproducible stream, which makes it usable both as a test double and as
// the backend for simulated:// endpoints.
type Simulated struct {
	mu        sync.Mutex
	rng       *rand.Rand
	connected bool
	latency   time.Duration
}

var (
	_ PriceSource = (*Simulated)(nil)
	_ DataSource  = (*Simulated)(nil)
	_ StateSource = (*Simulated)(nil)
)

// NewSimulated creates a simulated source seeded for reproducibility.
func NewSimulated(seed int64) *Simulated {
	return &Simulated{rng: rand.New(rand.NewSource(seed))}
}

// WithLatency makes every call pause for d, standing in for network
// round-trip time.
func (s *Simulated) WithLatency(d time.Duration) *Simulated {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
	return s
}

func (s *Simulated) Connect(ctx context.Context) error {
	if err := s.pause(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *Simulated) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pause(ctx); err != nil {
		return 0, err
	}
	if err := s.assertConnected(); err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	if elapsed == 0 {
		elapsed = time.Millisecond
	}
	return elapsed, nil
}

func (s *Simulated) Close(ctx context.Context) error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *Simulated) LatestPrice(ctx context.Context, symbol string) (PricePoint, error) {
	if err := s.call(ctx); err != nil {
		return PricePoint{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	base := basePrice(symbol)
	price := base * (1 + (s.rng.Float64()*2-1)*0.01)
	confidence := 0.9 + s.rng.Float64()*0.1
	return PricePoint{
		Symbol:           symbol,
		Price:            price,
		Timestamp:        time.Now(),
		Confidence:       confidence,
		ProviderCount:    8 + s.rng.Intn(12),
		ConsensusReached: confidence >= 0.6,
	}, nil
}

func (s *Simulated) PriceSeries(ctx context.Context, symbol string, from, to time.Time, step time.Duration) ([]PricePoint, error) {
	if err := s.call(ctx); err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("series step must be positive")
	}
	if to.Before(from) {
		return nil, fmt.Errorf("series range end precedes start")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := int(to.Sub(from)/step) + 1
	points := make([]PricePoint, 0, count)
	price := basePrice(symbol)
	for i := 0; i < count; i++ {
		confidence := 0.9 + s.rng.Float64()*0.1
		points = append(points, PricePoint{
			Symbol:           symbol,
			Price:            price,
			Timestamp:        from.Add(time.Duration(i) * step),
			Confidence:       confidence,
			ProviderCount:    8 + s.rng.Intn(12),
			ConsensusReached: confidence >= 0.6,
		})
		// Serial correlation: the next price drifts from this one.
		price *= 1 + (s.rng.Float64()*2-1)*MaxSeriesDrift
	}
	return points, nil
}

func (s *Simulated) Providers(ctx context.Context) ([]ProviderRecord, error) {
	if err := s.call(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	names := []string{"Aurora Signal", "Borealis Data", "Cinder Oracle", "Delta Feeds", "Emberwatch"}
	providers := make([]ProviderRecord, 0, len(names))
	for i, name := range names {
		providers = append(providers, ProviderRecord{
			ID:          fmt.Sprintf("provider-%d", i+1),
			Name:        name,
			Reliability: 0.85 + s.rng.Float64()*0.15,
			Accuracy:    0.9 + s.rng.Float64()*0.1,
			VotePower:   float64(1000 + s.rng.Intn(9000)),
			Symbols:     []string{"FLR/USD", "BTC/USD", "ETH/USD", "XRP/USD"},
		})
	}
	return providers, nil
}

func (s *Simulated) SubmitPrice(ctx context.Context, sub PriceSubmission) (string, error) {
	if err := s.call(ctx); err != nil {
		return "", err
	}
	return s.txHash(), nil
}

func (s *Simulated) ExternalData(ctx context.Context, blockchain, path string) (ExternalPayload, error) {
	if err := s.call(ctx); err != nil {
		return ExternalPayload{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var data json.RawMessage
	if symbol := priceSymbolFromPath(path); symbol != "" {
		data, _ = json.Marshal(map[string]interface{}{
			"symbol":   strings.ToUpper(symbol),
			"value":    basePrice(symbol) * (1 + (s.rng.Float64()*2-1)*0.01),
			"decimals": 8,
		})
	} else {
		data, _ = json.Marshal(map[string]interface{}{
			"height": 1_000_000 + s.rng.Intn(5_000_000),
			"hash":   "0x" + s.hexLocked(32),
		})
	}

	threshold := 5
	return ExternalPayload{
		Blockchain:     blockchain,
		Path:           path,
		Data:           data,
		Timestamp:      time.Now(),
		SignatureCount: threshold + s.rng.Intn(5),
		Threshold:      threshold,
	}, nil
}

func (s *Simulated) SubmitData(ctx context.Context, sub DataSubmission) (string, error) {
	if err := s.call(ctx); err != nil {
		return "", err
	}
	return s.txHash(), nil
}

func (s *Simulated) StateProof(ctx context.Context, blockchain, address string, opts ProofOptions) (ProofRecord, error) {
	if err := s.call(ctx); err != nil {
		return ProofRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	height := opts.BlockHeight
	if height == 0 {
		height = uint64(2_000_000 + s.rng.Intn(8_000_000))
	}
	record := ProofRecord{
		Blockchain:  blockchain,
		Address:     address,
		BlockHeight: height,
		BlockHash:   "0x" + s.hexLocked(32),
		Timestamp:   time.Now(),
		ProofType:   opts.ProofType,
		Signatures:  s.signaturesLocked(7 + s.rng.Intn(3)),
	}
	if record.ProofType == "" {
		record.ProofType = "account"
	}
	switch record.ProofType {
	case "contract":
		record.Contract = &ContractState{
			CodeHash: "0x" + s.hexLocked(32),
			Storage:  map[string]string{"0x0": "0x" + s.hexLocked(8)},
		}
	default:
		record.Account = &AccountState{
			Balance:     fmt.Sprintf("%d", s.rng.Int63n(1_000_000_000)),
			Nonce:       uint64(s.rng.Intn(10_000)),
			CodeHash:    "0x" + s.hexLocked(32),
			StorageRoot: "0x" + s.hexLocked(32),
		}
	}
	return record, nil
}

func (s *Simulated) SubmitProof(ctx context.Context, sub ProofSubmission) (string, error) {
	if err := s.call(ctx); err != nil {
		return "", err
	}
	return s.txHash(), nil
}

func (s *Simulated) QueryState(ctx context.Context, q StateQuery) (QueryRecord, error) {
	if err := s.call(ctx); err != nil {
		return QueryRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record := QueryRecord{
		Signatures: s.signaturesLocked(4 + s.rng.Intn(4)),
		Timestamp:  time.Now(),
	}
	switch q.Type {
	case "TRANSACTION_VERIFICATION":
		record.Transaction = &TransactionConfirmation{
			Hash:          q.TxHash,
			Confirmed:     true,
			Confirmations: 12 + s.rng.Intn(100),
			BlockHeight:   uint64(2_000_000 + s.rng.Intn(8_000_000)),
			From:          "0x" + s.hexLocked(20),
			To:            q.Address,
			Value:         fmt.Sprintf("%d", s.rng.Int63n(1_000_000)),
		}
	case "CONTRACT_CALL":
		out, _ := json.Marshal(map[string]string{"value": "0x" + s.hexLocked(8)})
		record.Call = &ContractCallResult{
			Method:     q.CallMethod,
			ReturnData: out,
		}
	default:
		record.Account = &AccountState{
			Balance:  fmt.Sprintf("%d", s.rng.Int63n(1_000_000_000)),
			Nonce:    uint64(s.rng.Intn(10_000)),
			CodeHash: "0x" + s.hexLocked(32),
		}
	}
	return record, nil
}

func (s *Simulated) call(ctx context.Context) error {
	if err := s.pause(ctx); err != nil {
		return err
	}
	return s.assertConnected()
}

func (s *Simulated) assertConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return fmt.Errorf("simulated transport not connected")
	}
	return nil
}

func (s *Simulated) pause(ctx context.Context) error {
	s.mu.Lock()
	latency := s.latency
	s.mu.Unlock()
	if latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(latency):
		return nil
	}
}

func (s *Simulated) txHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "0x" + s.hexLocked(32)
}

func (s *Simulated) hexLocked(n int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, n*2)
	for i := range b {
		b[i] = digits[s.rng.Intn(len(digits))]
	}
	return string(b)
}

func (s *Simulated) signaturesLocked(n int) []SignatureRecord {
	sigs := make([]SignatureRecord, 0, n)
	for i := 0; i < n; i++ {
		sigs = append(sigs, SignatureRecord{
			Signer:    "0x" + s.hexLocked(20),
			Signature: "0x" + s.hexLocked(65),
		})
	}
	return sigs
}

// basePrice derives a stable reference price for a symbol so repeated calls
// stay in the same neighbourhood.
func basePrice(symbol string) float64 {
	switch strings.ToUpper(strings.SplitN(symbol, "/", 2)[0]) {
	case "BTC":
		return 60_000
	case "ETH":
		return 3_000
	case "XRP":
		return 0.5
	case "FLR":
		return 0.025
	case "SGB":
		return 0.008
	}
	h := fnv.New32a()
	h.Write([]byte(strings.ToUpper(symbol)))
	return 1 + float64(h.Sum32()%100_000)/1_000
}

// priceSymbolFromPath extracts <symbol> from a /price/<symbol> path
// segment, or returns "".
func priceSymbolFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if strings.EqualFold(segment, "price") && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}
