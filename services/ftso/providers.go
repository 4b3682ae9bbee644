package ftso

import (
	"context"
	"fmt"
	"time"

	"github.com/flarekit/flaresdk/internal/metrics"
	"github.com/flarekit/flaresdk/transport"
)

// registryTTL is how long a provider registry snapshot stays fresh.
const registryTTL = time.Hour

// providerRegistry is an immutable snapshot of the provider set. Refreshes
// replace the whole snapshot; readers never observe partial updates.
type providerRegistry struct {
	fetchedAt time.Time
	providers []Provider
}

func newProviderRegistry(records []transport.ProviderRecord, fetchedAt time.Time) *providerRegistry {
	providers := make([]Provider, 0, len(records))
	for _, r := range records {
		providers = append(providers, Provider{
			ID:          r.ID,
			Name:        r.Name,
			Reliability: clamp01(r.Reliability),
			Accuracy:    clamp01(r.Accuracy),
			VotePower:   max0(r.VotePower),
			Symbols:     append([]string(nil), r.Symbols...),
		})
	}
	return &providerRegistry{fetchedAt: fetchedAt, providers: providers}
}

// GetProviders returns the cached provider registry, refreshing it first
// when the snapshot is older than an hour. Concurrent refreshes collapse
// into a single transport call.
func (c *Connection) GetProviders(ctx context.Context) ([]Provider, error) {
	if err := c.ensureConnected("GetProviders"); err != nil {
		return nil, err
	}

	if reg := c.registry.Load(); reg != nil && time.Since(reg.fetchedAt) < registryTTL {
		return copyProviders(reg.providers), nil
	}

	_, err, _ := c.refresh.Do("providers", func() (interface{}, error) {
		// Re-check under the group: a concurrent caller may have already
		// refreshed while this one waited.
		if reg := c.registry.Load(); reg != nil && time.Since(reg.fetchedAt) < registryTTL {
			return nil, nil
		}
		start := time.Now()
		records, err := c.source.Providers(ctx)
		metrics.ObserveRequest(serviceName, "providers", time.Since(start))
		if err != nil {
			c.recordFailure(err)
			return nil, fmt.Errorf("%s: refresh provider registry: %w", serviceName, err)
		}
		c.recordSuccess()
		c.registry.Store(newProviderRegistry(records, time.Now()))
		c.log.WithField("providers", len(records)).Debug("provider registry refreshed")
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	reg := c.registry.Load()
	if reg == nil {
		return nil, fmt.Errorf("%s: provider registry unavailable", serviceName)
	}
	return copyProviders(reg.providers), nil
}

// snapshot returns the current registry snapshot, or an empty one.
func (c *Connection) snapshot() *providerRegistry {
	if reg := c.registry.Load(); reg != nil {
		return reg
	}
	return &providerRegistry{}
}

func copyProviders(providers []Provider) []Provider {
	out := make([]Provider, len(providers))
	copy(out, providers)
	for i := range out {
		out[i].Symbols = append([]string(nil), out[i].Symbols...)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
