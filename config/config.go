// Package config holds the configuration surface consumed by the network
// connections. Configuration is loaded from a YAML file, optionally
// overridden from the environment, and merged block-by-block on
// reconfiguration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// SimulatedScheme marks an endpoint served by the in-process simulated
// transport instead of a remote HTTP service.
const SimulatedScheme = "simulated://"

// Config is the full configuration for a network supervisor and its three
// sub-connections.
type Config struct {
	Endpoint string `yaml:"endpoint" env:"FLARE_ENDPOINT"`
	APIKey   string `yaml:"apiKey" env:"FLARE_API_KEY"`
	LogLevel string `yaml:"logLevel" env:"FLARE_LOG_LEVEL"`

	FTSO           *FTSOConfig           `yaml:"ftsoConfig"`
	FDC            *FDCConfig            `yaml:"fdcConfig"`
	StateConnector *StateConnectorConfig `yaml:"stateConnectorConfig"`
}

// FTSOConfig configures the price oracle connection. Provider credentials
// are optional and gate data-point submission.
type FTSOConfig struct {
	Timeout  time.Duration        `yaml:"timeout"`
	Provider *ProviderCredentials `yaml:"provider"`
}

// ProviderCredentials identify a registered data provider allowed to submit
// price data points.
type ProviderCredentials struct {
	ID                string        `yaml:"id" env:"FLARE_PROVIDER_ID"`
	PrivateKey        string        `yaml:"privateKey" env:"FLARE_PROVIDER_KEY"`
	VotePower         float64       `yaml:"votePower"`
	RewardAddress     string        `yaml:"rewardAddress"`
	MinSubmitInterval time.Duration `yaml:"minSubmitInterval"`
}

// FDCConfig configures the data attestation connection.
type FDCConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Protocol string        `yaml:"protocol"`
}

// StateConnectorConfig configures the state proof connection.
type StateConnectorConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	DefaultProofType string        `yaml:"defaultProofType"`
}

// Partial is a configuration delta. Empty scalars keep the current value;
// a non-nil block replaces the matching block wholesale.
type Partial struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	LogLevel string `yaml:"logLevel"`

	FTSO           *FTSOConfig           `yaml:"ftsoConfig"`
	FDC            *FDCConfig            `yaml:"fdcConfig"`
	StateConnector *StateConnectorConfig `yaml:"stateConnectorConfig"`
}

// LoadFromPath reads a YAML configuration file.
func LoadFromPath(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from FLARE_* environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields this layer depends on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	if !c.Simulated() && strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("apiKey is required for endpoint %s", c.Endpoint)
	}
	if p := c.ProviderCredentials(); p != nil {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.PrivateKey) == "" {
			return fmt.Errorf("ftsoConfig.provider requires both id and privateKey")
		}
		if p.VotePower < 0 {
			return fmt.Errorf("ftsoConfig.provider.votePower must not be negative")
		}
	}
	return nil
}

// Simulated reports whether the endpoint addresses the in-process simulated
// transport.
func (c Config) Simulated() bool {
	return strings.HasPrefix(c.Endpoint, SimulatedScheme)
}

// ProviderCredentials returns the configured provider credentials, or nil.
func (c Config) ProviderCredentials() *ProviderCredentials {
	if c.FTSO == nil {
		return nil
	}
	return c.FTSO.Provider
}

// Merge applies a partial configuration and returns the result. Scalars are
// replaced only when set; sub-config blocks are replaced wholesale when
// present, matching how reconfiguration is delivered by callers.
func (c Config) Merge(p Partial) Config {
	merged := c
	if strings.TrimSpace(p.Endpoint) != "" {
		merged.Endpoint = p.Endpoint
	}
	if strings.TrimSpace(p.APIKey) != "" {
		merged.APIKey = p.APIKey
	}
	if strings.TrimSpace(p.LogLevel) != "" {
		merged.LogLevel = p.LogLevel
	}
	if p.FTSO != nil {
		block := *p.FTSO
		merged.FTSO = &block
	}
	if p.FDC != nil {
		block := *p.FDC
		merged.FDC = &block
	}
	if p.StateConnector != nil {
		block := *p.StateConnector
		merged.StateConnector = &block
	}
	return merged
}
