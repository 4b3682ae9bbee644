// Package ftso provides the price oracle connection. It fetches consensus
// prices, derives confidence intervals from them, submits provider data
// points and maintains a cached registry of data providers.
package ftso

import "time"

// Confidence describes how much of the provider set agreed on a price.
type Confidence struct {
	Overall   float64 `json:"overall"`
	Providers int     `json:"providers"`
}

// SourceInfo describes the consensus round a quote came from.
type SourceInfo struct {
	ProviderCount    int   `json:"providerCount"`
	ConsensusReached bool  `json:"consensusReached"`
	Epoch            int64 `json:"epoch"`
}

// PriceQuote is a consensus price at an instant.
type PriceQuote struct {
	Symbol     string     `json:"symbol"`
	Price      float64    `json:"price"`
	Timestamp  time.Time  `json:"timestamp"`
	Confidence Confidence `json:"confidence"`
	Source     SourceInfo `json:"source"`
}

// Band is one confidence band around a price.
type Band struct {
	Level float64 `json:"level"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ConfidenceInterval is the uncertainty envelope around a quote: nested
// bands at increasing confidence levels, each containing the current price.
type ConfidenceInterval struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Bands     []Band    `json:"bands"`
}

// Provider is a registered data provider of the price consensus.
type Provider struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Reliability float64  `json:"reliability"`
	Accuracy    float64  `json:"accuracy"`
	VotePower   float64  `json:"votePower"`
	Symbols     []string `json:"symbols"`
}
