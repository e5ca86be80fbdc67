// Package config defines the declarative surface the engine is configured
// with: networks, contracts, database, and tuning options.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object loaded from a YAML (or TOML) file.
type Config struct {
	SchemaPath string           `yaml:"schema,omitempty"`
	Networks   []NetworkConfig  `yaml:"networks"`
	Contracts  []ContractConfig `yaml:"contracts"`
	Database   DatabaseConfig   `yaml:"database"`
	Options    OptionsConfig    `yaml:"options"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// NetworkConfig describes one chain the engine syncs against.
type NetworkConfig struct {
	Name    string `yaml:"name"`
	ChainID uint64 `yaml:"chainId"`
	// Transport is the RPC endpoint URL (http(s):// or ws(s)://) the
	// engine dials for this network.
	Transport             string `yaml:"transport"`
	PollingInterval       string `yaml:"pollingInterval,omitempty"`
	MaxRequestsPerSecond  int    `yaml:"maxRequestsPerSecond,omitempty"`
	MaxConcurrentRequests int64  `yaml:"maxConcurrentRequests,omitempty"`
	Retry                 RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig controls backoff for a network's RPC requests.
type RetryConfig struct {
	MaxAttempts  int    `yaml:"maxAttempts,omitempty"`
	InitialDelay string `yaml:"initialDelay,omitempty"`
	MaxDelay     string `yaml:"maxDelay,omitempty"`
}

// ContractConfig describes one address (or factory) being indexed.
type ContractConfig struct {
	Name                      string        `yaml:"name"`
	Network                   string        `yaml:"network"`
	ABI                       string        `yaml:"abi"`
	Address                   string        `yaml:"address,omitempty"`
	Factory                   *FactoryConfig `yaml:"factory,omitempty"`
	StartBlock                uint64        `yaml:"startBlock"`
	EndBlock                  *uint64       `yaml:"endBlock,omitempty"`
	Filter                    []string      `yaml:"filter,omitempty"`
	IncludeTransactionReceipts bool         `yaml:"includeTransactionReceipts,omitempty"`
}

// FactoryConfig describes a dynamically-discovered set of child addresses.
type FactoryConfig struct {
	Address              string `yaml:"address"`
	EventSelector         string `yaml:"eventSelector"`
	ChildAddressLocation  string `yaml:"childAddressLocation"` // topic1 | topic2 | topic3 | offsetN
}

// DatabaseConfig selects the storage backend and its connection parameters.
type DatabaseConfig struct {
	Kind             string `yaml:"kind"` // sqlite | postgres
	ConnectionString string `yaml:"connectionString,omitempty"`
	Directory        string `yaml:"directory,omitempty"`
	UserNamespace    string `yaml:"userNamespace,omitempty"`

	JournalMode string `yaml:"journalMode,omitempty"`
	Synchronous string `yaml:"synchronous,omitempty"`
	BusyTimeout string `yaml:"busyTimeout,omitempty"`
	CacheSizeKB int     `yaml:"cacheSizeKb,omitempty"`
	MaxOpenConns int    `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns int    `yaml:"maxIdleConns,omitempty"`
}

// OptionsConfig holds engine-wide tuning knobs.
type OptionsConfig struct {
	MaxBlockRange     uint64 `yaml:"maxBlockRange,omitempty"`
	FinalityBlockCount uint64 `yaml:"finalityBlockCount,omitempty"`
	LeaseTTL          string `yaml:"leaseTtl,omitempty"`
	HeartbeatInterval string `yaml:"heartbeatInterval,omitempty"`
	MaxConcurrency    int    `yaml:"maxConcurrency,omitempty"`
}

// LoggingConfig controls the ambient logger.
type LoggingConfig struct {
	Level       string `yaml:"level,omitempty"`
	Development bool   `yaml:"development,omitempty"`
}

// MetricsConfig controls the optional Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Address string `yaml:"address,omitempty"`
}

// ApplyDefaults fills in zero-valued fields with the engine's defaults.
// Mirrors the teacher's per-section ApplyDefaults convention so the loader
// can be called with a partially specified file.
func (c *Config) ApplyDefaults() {
	if c.SchemaPath == "" {
		c.SchemaPath = "schema.yaml"
	}
	for i := range c.Networks {
		c.Networks[i].applyDefaults()
	}
	c.Database.applyDefaults()
	c.Options.applyDefaults()
	c.Logging.applyDefaults()
	c.Metrics.applyDefaults()
}

func (n *NetworkConfig) applyDefaults() {
	if n.PollingInterval == "" {
		n.PollingInterval = "1s"
	}
	if n.MaxRequestsPerSecond == 0 {
		n.MaxRequestsPerSecond = 50
	}
	if n.MaxConcurrentRequests == 0 {
		n.MaxConcurrentRequests = 8
	}
	n.Retry.applyDefaults()
}

func (r *RetryConfig) applyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialDelay == "" {
		r.InitialDelay = "250ms"
	}
	if r.MaxDelay == "" {
		r.MaxDelay = "30s"
	}
}

func (d *DatabaseConfig) applyDefaults() {
	if d.Kind == "" {
		d.Kind = "sqlite"
	}
	if d.Directory == "" {
		d.Directory = ".ponder"
	}
	if d.UserNamespace == "" {
		d.UserNamespace = "public"
	}
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == "" {
		d.BusyTimeout = "5000"
	}
	if d.CacheSizeKB == 0 {
		d.CacheSizeKB = -64000
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = 1
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = 1
	}
}

func (o *OptionsConfig) applyDefaults() {
	if o.MaxBlockRange == 0 {
		o.MaxBlockRange = 2000
	}
	if o.FinalityBlockCount == 0 {
		o.FinalityBlockCount = 30
	}
	if o.LeaseTTL == "" {
		o.LeaseTTL = "60s"
	}
	if o.HeartbeatInterval == "" {
		o.HeartbeatInterval = "10s"
	}
	if o.MaxConcurrency == 0 {
		o.MaxConcurrency = 10
	}
}

func (l *LoggingConfig) applyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
}

func (m *MetricsConfig) applyDefaults() {
	if m.Address == "" {
		m.Address = ":9090"
	}
}

// Validate checks the configuration for internal consistency, returning the
// first error found.
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("config: at least one network is required")
	}

	networkNames := make(map[string]struct{}, len(c.Networks))
	for _, n := range c.Networks {
		if err := n.validate(); err != nil {
			return err
		}
		if _, dup := networkNames[n.Name]; dup {
			return fmt.Errorf("config: duplicate network name %q", n.Name)
		}
		networkNames[n.Name] = struct{}{}
	}

	if len(c.Contracts) == 0 {
		return fmt.Errorf("config: at least one contract is required")
	}

	for _, contract := range c.Contracts {
		if err := contract.validate(networkNames); err != nil {
			return err
		}
	}

	if err := c.Database.validate(); err != nil {
		return err
	}

	return nil
}

func (n NetworkConfig) validate() error {
	if n.Name == "" {
		return fmt.Errorf("config: network name is required")
	}
	if n.ChainID == 0 {
		return fmt.Errorf("config: network %q: chainId is required", n.Name)
	}
	if n.Transport == "" {
		return fmt.Errorf("config: network %q: transport is required", n.Name)
	}
	if _, err := time.ParseDuration(n.PollingInterval); err != nil {
		return fmt.Errorf("config: network %q: invalid pollingInterval: %w", n.Name, err)
	}
	return nil
}

func (c ContractConfig) validate(networkNames map[string]struct{}) error {
	if c.Name == "" {
		return fmt.Errorf("config: contract name is required")
	}
	if _, ok := networkNames[c.Network]; !ok {
		return fmt.Errorf("config: contract %q: unknown network %q", c.Name, c.Network)
	}
	if c.ABI == "" {
		return fmt.Errorf("config: contract %q: abi is required", c.Name)
	}
	if c.Address == "" && c.Factory == nil {
		return fmt.Errorf("config: contract %q: one of address or factory is required", c.Name)
	}
	if c.Address != "" && c.Factory != nil {
		return fmt.Errorf("config: contract %q: address and factory are mutually exclusive", c.Name)
	}
	if c.Factory != nil {
		if err := c.Factory.validate(); err != nil {
			return fmt.Errorf("config: contract %q: %w", c.Name, err)
		}
	}
	return nil
}

func (f FactoryConfig) validate() error {
	if f.Address == "" {
		return fmt.Errorf("factory address is required")
	}
	if f.EventSelector == "" {
		return fmt.Errorf("factory eventSelector is required")
	}
	switch f.ChildAddressLocation {
	case "topic1", "topic2", "topic3":
	default:
		if len(f.ChildAddressLocation) == 0 {
			return fmt.Errorf("factory childAddressLocation is required")
		}
	}
	return nil
}

func (d DatabaseConfig) validate() error {
	switch d.Kind {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: database.kind must be sqlite or postgres, got %q", d.Kind)
	}
	if d.Kind == "postgres" && d.ConnectionString == "" {
		return fmt.Errorf("config: database.connectionString is required for postgres")
	}
	return nil
}
