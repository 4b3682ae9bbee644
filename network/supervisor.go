// Package network provides the supervisor that owns the three Flare
// sub-connections as one unit: a single initialize/status/disconnect
// lifecycle across the price oracle, the data attestation service and the
// state connector.
package network

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/flarekit/flaresdk/config"
	"github.com/flarekit/flaresdk/connector"
	"github.com/flarekit/flaresdk/pkg/logger"
	"github.com/flarekit/flaresdk/services/fdc"
	"github.com/flarekit/flaresdk/services/ftso"
	"github.com/flarekit/flaresdk/services/stateconnector"
	"github.com/flarekit/flaresdk/transport"
)

const supervisorName = "network"

// Sources bundles one transport per sub-connection.
type Sources struct {
	Price transport.PriceSource
	Data  transport.DataSource
	State transport.StateSource
}

// SourceFactory builds the three transports for a configuration. Tests
// inject their own via WithSources.
type SourceFactory func(cfg config.Config) (Sources, error)

// Status aggregates the three sub-connection snapshots.
type Status struct {
	PriceOracle     connector.Status `json:"priceOracle"`
	DataAttestation connector.Status `json:"dataAttestation"`
	StateConnector  connector.Status `json:"stateConnector"`
}

// Supervisor owns the three sub-connections. It is the only object
// application code touches directly.
type Supervisor struct {
	mu      sync.Mutex
	cfg     config.Config
	log     *logger.Logger
	factory SourceFactory

	price *ftso.Connection
	data  *fdc.Connection
	state *stateconnector.Connection
}

// New creates a supervisor for the given configuration.
func New(cfg config.Config, log *logger.Logger) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", supervisorName, err)
	}
	if log == nil {
		log = logger.New(supervisorName, cfg.LogLevel)
	}
	return &Supervisor{
		cfg:     cfg,
		log:     log,
		factory: defaultSources,
	}, nil
}

// WithSources replaces the transport factory. Call before Initialize.
func (s *Supervisor) WithSources(factory SourceFactory) *Supervisor {
	s.mu.Lock()
	s.factory = factory
	s.mu.Unlock()
	return s
}

// Initialize connects the price oracle, then the data attestation service,
// then the state connector, in that order. The first failure aborts the
// call; sub-connections established before the failure stay tracked so a
// later Disconnect releases them.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Supervisor) initializeLocked(ctx context.Context) error {
	sources, err := s.factory(s.cfg)
	if err != nil {
		return fmt.Errorf("%s: build transports: %w", supervisorName, err)
	}

	s.price = ftso.NewConnection(s.cfg.FTSO, sources.Price, logger.New("ftso", s.cfg.LogLevel))
	s.data = fdc.NewConnection(s.cfg.FDC, sources.Data, logger.New("fdc", s.cfg.LogLevel))
	s.state = stateconnector.NewConnection(s.cfg.StateConnector, sources.State, logger.New("state-connector", s.cfg.LogLevel))

	if err := s.price.Connect(ctx); err != nil {
		return fmt.Errorf("%s: initialize price oracle: %w", supervisorName, err)
	}
	if err := s.data.Connect(ctx); err != nil {
		return fmt.Errorf("%s: initialize data attestation: %w", supervisorName, err)
	}
	if err := s.state.Connect(ctx); err != nil {
		return fmt.Errorf("%s: initialize state connector: %w", supervisorName, err)
	}

	s.log.WithField("endpoint", s.cfg.Endpoint).Info("network connections initialized")
	return nil
}

// GetConnectionStatus reports all three sub-connection snapshots,
// substituting a bare disconnected status for any sub-connection never
// created. It never returns an error.
func (s *Supervisor) GetConnectionStatus(ctx context.Context) Status {
	s.mu.Lock()
	price, data, state := s.price, s.data, s.state
	s.mu.Unlock()

	var status Status
	if price != nil {
		status.PriceOracle = price.Status(ctx)
	}
	if data != nil {
		status.DataAttestation = data.Status(ctx)
	}
	if state != nil {
		status.StateConnector = state.Status(ctx)
	}
	return status
}

// Disconnect tears down all three sub-connections, tolerating ones never
// created, and clears the supervisor's references.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked(ctx)
}

func (s *Supervisor) disconnectLocked(ctx context.Context) error {
	var errs []error
	if s.price != nil {
		errs = append(errs, s.price.Disconnect(ctx))
	}
	if s.data != nil {
		errs = append(errs, s.data.Disconnect(ctx))
	}
	if s.state != nil {
		errs = append(errs, s.state.Disconnect(ctx))
	}
	s.price, s.data, s.state = nil, nil, nil

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: disconnect: %w", supervisorName, err)
	}
	s.log.Info("network connections released")
	return nil
}

// UpdateConfig merges a partial configuration and rebuilds all three
// connections against it. Configuration never changes on a live
// connection: the supervisor fully disconnects, then reinitializes.
func (s *Supervisor) UpdateConfig(ctx context.Context, partial config.Partial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.cfg.Merge(partial)
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("%s: reconfigure: %w", supervisorName, err)
	}

	if err := s.disconnectLocked(ctx); err != nil {
		return err
	}
	s.cfg = merged
	return s.initializeLocked(ctx)
}

// PriceOracle returns the price oracle sub-connection.
func (s *Supervisor) PriceOracle() (*ftso.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.price == nil {
		return nil, &connector.NotConnectedError{Service: supervisorName, Op: "PriceOracle", Require: "Initialize"}
	}
	return s.price, nil
}

// DataAttestation returns the data attestation sub-connection.
func (s *Supervisor) DataAttestation() (*fdc.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, &connector.NotConnectedError{Service: supervisorName, Op: "DataAttestation", Require: "Initialize"}
	}
	return s.data, nil
}

// StateProofs returns the state connector sub-connection.
func (s *Supervisor) StateProofs() (*stateconnector.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, &connector.NotConnectedError{Service: supervisorName, Op: "StateProofs", Require: "Initialize"}
	}
	return s.state, nil
}

// defaultSources builds one transport per sub-connection: independent
// simulated sources for simulated:// endpoints, independent HTTP clients
// otherwise, so releasing one connection never tears down another.
func defaultSources(cfg config.Config) (Sources, error) {
	if cfg.Simulated() {
		seed := simulationSeed(cfg.Endpoint)
		return Sources{
			Price: transport.NewSimulated(seed),
			Data:  transport.NewSimulated(seed + 1),
			State: transport.NewSimulated(seed + 2),
		}, nil
	}

	build := func(timeout time.Duration) (*transport.Client, error) {
		return transport.NewClient(transport.ClientConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  timeout,
		})
	}

	var ftsoTimeout, fdcTimeout, stateTimeout time.Duration
	if cfg.FTSO != nil {
		ftsoTimeout = cfg.FTSO.Timeout
	}
	if cfg.FDC != nil {
		fdcTimeout = cfg.FDC.Timeout
	}
	if cfg.StateConnector != nil {
		stateTimeout = cfg.StateConnector.Timeout
	}

	price, err := build(ftsoTimeout)
	if err != nil {
		return Sources{}, err
	}
	data, err := build(fdcTimeout)
	if err != nil {
		return Sources{}, err
	}
	state, err := build(stateTimeout)
	if err != nil {
		return Sources{}, err
	}
	return Sources{Price: price, Data: data, State: state}, nil
}

// simulationSeed derives a stable seed from the endpoint so a simulated
// network behaves reproducibly across restarts.
func simulationSeed(endpoint string) int64 {
	h := fnv.New64a()
	h.Write([]byte(endpoint))
	return int64(h.Sum64() & 0x7fffffff)
}
