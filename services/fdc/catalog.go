package fdc

import (
	"strings"
	"time"
)

// defaultFinality is the conservative fallback for chains missing from the
// catalog.
const defaultFinality = time.Hour

// supportedChains is the static catalog of source chains the attestation
// service can address. Average finality is per chain; operation kinds name
// the attestation requests the service accepts for it.
func supportedChains() []Chain {
	return []Chain{
		{
			Name:        "Bitcoin",
			ChainID:     "btc-mainnet",
			Operations:  []string{"payment", "balance", "block-height"},
			AvgFinality: 60 * time.Minute,
		},
		{
			Name:        "Ethereum",
			ChainID:     "eth-mainnet",
			Operations:  []string{"payment", "balance", "block-height", "transaction", "contract-state"},
			AvgFinality: 15 * time.Minute,
		},
		{
			Name:        "XRP Ledger",
			ChainID:     "xrp-mainnet",
			Operations:  []string{"payment", "balance", "block-height"},
			AvgFinality: 10 * time.Second,
		},
		{
			Name:        "Avalanche",
			ChainID:     "avax-mainnet",
			Operations:  []string{"payment", "balance", "transaction", "contract-state"},
			AvgFinality: 3 * time.Second,
		},
	}
}

// catalog is an immutable snapshot installed at connect time.
type catalog struct {
	chains []Chain
}

func newCatalog() *catalog {
	return &catalog{chains: supportedChains()}
}

// lookup matches case-insensitively on chain name and exactly on chain id.
func (c *catalog) lookup(id string) (Chain, bool) {
	for _, chain := range c.chains {
		if chain.ChainID == id || strings.EqualFold(chain.Name, id) {
			return chain, true
		}
	}
	return Chain{}, false
}

// finalityFor returns the catalog finality for the chain, or the
// conservative default when the chain is unknown.
func (c *catalog) finalityFor(id string) time.Duration {
	if chain, ok := c.lookup(id); ok {
		return chain.AvgFinality
	}
	return defaultFinality
}

func (c *catalog) copyChains() []Chain {
	out := make([]Chain, len(c.chains))
	copy(out, c.chains)
	for i := range out {
		out[i].Operations = append([]string(nil), out[i].Operations...)
	}
	return out
}
