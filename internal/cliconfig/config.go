package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultRPCURL is the public mainnet endpoint.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// Config holds CLI configuration for dropship.
type Config struct {
	RPCURL            string
	RequestsPerSecond float64
	Commitment        string

	Mint         string
	TokenProgram string
	Decimals     int
	Mode         string
	Strategy     string

	FeePayerKey  string
	AuthorityKey string
	Passphrase   string

	Recipients        string
	PostgresDSN       string
	SnapshotTable     string
	SnapshotTestTable string
	Date              string
	TestMode          bool

	// SpoolDir is set by the watch command; spooled files replace the
	// recipients source.
	SpoolDir string

	ClaimProgram string
	PoolProgram  string
	LookupTables string

	MaxPerEnvelope int
	MaxPerSub      int
	MaxDirectives  int
	UnitLimit      int
	UnitPrice      int

	SkipPreflight  bool
	MaxRetries     int
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	ChunkRetries   int
	Pacing         time.Duration

	IdempotentCreate bool
	RegisterPool     bool

	ReportDir        string
	ReportWebhook    string
	ReportWebhookKey string
	MetricsAddr      string
	LogLevel         string
	LogJSON          bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		RPCURL:            DefaultRPCURL,
		RequestsPerSecond: 10,
		Commitment:        "confirmed",
		Decimals:          -1, // read from the mint
		Mode:              "transfer",
		Strategy:          "legacy",
		SnapshotTable:     "snapshot",
		SnapshotTestTable: "snapshot_test",
		MaxPerSub:         5,
		MaxDirectives:     32,
		UnitLimit:         1_000_000,
		UnitPrice:         10_000_000,
		MaxRetries:        5,
		ConfirmTimeout:    60 * time.Second,
		PollInterval:      2 * time.Second,
		ChunkRetries:      3,
		Pacing:            time.Second,
		IdempotentCreate:  true,
		RegisterPool:      true,
		ReportDir:         "reports",
		LogLevel:          "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Mint == "" {
		return fmt.Errorf("mint is required")
	}
	if c.FeePayerKey == "" {
		return fmt.Errorf("fee-payer is required")
	}
	if c.AuthorityKey == "" {
		c.AuthorityKey = c.FeePayerKey
	}
	if c.Recipients == "" && c.PostgresDSN == "" && c.SpoolDir == "" {
		return fmt.Errorf("recipients file or postgres-dsn is required")
	}
	if c.Recipients != "" && c.PostgresDSN != "" {
		return fmt.Errorf("recipients and postgres-dsn are mutually exclusive")
	}

	c.RPCURL = strings.TrimSuffix(c.RPCURL, "/")
	if c.RPCURL == "" {
		c.RPCURL = DefaultRPCURL
	}

	if c.Mode == "compress" && c.PoolProgram == "" {
		return fmt.Errorf("compress mode requires pool-program")
	}
	if c.Mode == "claim" && c.ClaimProgram == "" {
		return fmt.Errorf("claim mode requires claim-program")
	}
	if c.Decimals > 255 {
		return fmt.Errorf("decimals must be at most 255")
	}
	if c.UnitLimit < 0 || c.UnitLimit > 1<<32-1 || c.UnitPrice < 0 {
		return fmt.Errorf("compute unit limit and price must be non-negative")
	}
	if c.ConfirmTimeout <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("confirm timeout and poll interval must be positive")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	return nil
}

// LookupTableList splits the comma-separated lookup table addresses.
func (c Config) LookupTableList() []string {
	var out []string
	for _, s := range strings.Split(c.LookupTables, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if non-negative and flag not changed. Zero is
// meaningful for retry counts, so only negative values are ignored.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || *value < 0 || s.changed[flag] {
		return
	}
	*dst = *value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
