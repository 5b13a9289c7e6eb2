package dropship

import (
	"crypto/ed25519"
	"fmt"
	"net/url"
	"time"

	"github.com/bft-labs/dropship/internal/app"
	"github.com/bft-labs/dropship/internal/domain"
)

// Config holds the configuration of a distribution.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// RPCURL is the ledger JSON-RPC endpoint. Unused when WithLedger is given.
	RPCURL            string
	RequestsPerSecond float64
	RPCHeaders        map[string]string

	// Commitment is the target commitment: processed, confirmed or finalized.
	Commitment string

	// Mint is the base58 mint address. TokenProgram and Decimals are read
	// from the mint account when empty or negative.
	Mint         string
	TokenProgram string
	Decimals     int

	Mode     string
	Strategy string

	// FeePayer pays fees and account creation. Authority owns the source
	// holding account; it defaults to FeePayer.
	FeePayer  ed25519.PrivateKey
	Authority ed25519.PrivateKey

	ClaimProgram string
	PoolProgram  string
	LookupTables []string

	// MaxPerEnvelope of zero picks the mode's default, which keeps an
	// envelope within the ledger's packet size.
	MaxPerEnvelope int
	MaxPerSub      int
	MaxDirectives  int
	UnitLimit      uint32
	UnitPrice      uint64

	SkipPreflight  bool
	MaxRetries     int
	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	ChunkRetries int
	RetryInitial time.Duration
	RetryMax     time.Duration
	Pacing       time.Duration

	IdempotentCreate bool

	// RegisterPool makes compress runs register the mint's pool first.
	RegisterPool bool

	// RecipientsFile is read when no WithRecipientSource option is given.
	RecipientsFile string
	Date           string
	TestMode       bool

	// ReportDir receives the report and rerun list of every run.
	ReportDir string

	// ReportWebhook, when set, receives every finished report as a
	// multipart POST authenticated with ReportWebhookKey.
	ReportWebhook    string
	ReportWebhookKey string
}

// DefaultConfig returns a Config with sensible default values.
// At minimum, Mint, FeePayer and a recipient source must be set.
func DefaultConfig() Config {
	return Config{
		RPCURL:            "https://api.mainnet-beta.solana.com",
		RequestsPerSecond: 10,
		Commitment:        "confirmed",
		Decimals:          -1,
		Mode:              string(app.ModeTransfer),
		Strategy:          string(app.StrategyLegacy),
		MaxPerSub:         5,
		MaxDirectives:     32,
		UnitLimit:         1_000_000,
		UnitPrice:         10_000_000,
		MaxRetries:        5,
		ConfirmTimeout:    60 * time.Second,
		PollInterval:      2 * time.Second,
		ChunkRetries:      3,
		RetryInitial:      app.DefaultBackoffInitial,
		RetryMax:          app.DefaultBackoffMax,
		Pacing:            time.Second,
		IdempotentCreate:  true,
		RegisterPool:      true,
		ReportDir:         "reports",
	}
}

// SetDefaults fills zero durations and limits with default values.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.Commitment == "" {
		c.Commitment = d.Commitment
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = d.RequestsPerSecond
	}
	if c.MaxPerEnvelope <= 0 {
		c.MaxPerEnvelope = app.Mode(c.Mode).DefaultEntriesPerEnvelope()
	}
	if c.MaxPerSub <= 0 {
		c.MaxPerSub = d.MaxPerSub
	}
	if c.MaxDirectives <= 0 {
		c.MaxDirectives = d.MaxDirectives
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = d.ConfirmTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = d.RetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = d.RetryMax
	}
	if c.Authority == nil {
		c.Authority = c.FeePayer
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if _, err := domain.ParseAddress(c.Mint); err != nil {
		return fmt.Errorf("%w: mint: %v", domain.ErrInvalidConfig, err)
	}
	if len(c.FeePayer) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: fee payer key is required", domain.ErrInvalidConfig)
	}
	if len(c.Authority) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: authority key is invalid", domain.ErrInvalidConfig)
	}
	if _, ok := domain.ParseCommitment(c.Commitment); !ok {
		return fmt.Errorf("%w: unknown commitment %q", domain.ErrInvalidConfig, c.Commitment)
	}
	mode, err := app.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	if _, err := app.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if c.Decimals > 255 {
		return fmt.Errorf("%w: decimals %d out of range", domain.ErrInvalidConfig, c.Decimals)
	}

	optional := map[string]string{
		"token program": c.TokenProgram,
		"claim program": c.ClaimProgram,
		"pool program":  c.PoolProgram,
	}
	for name, v := range optional {
		if v == "" {
			continue
		}
		if _, err := domain.ParseAddress(v); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, name, err)
		}
	}
	for _, v := range c.LookupTables {
		if _, err := domain.ParseAddress(v); err != nil {
			return fmt.Errorf("%w: lookup table: %v", domain.ErrInvalidConfig, err)
		}
	}

	if c.ReportWebhook != "" {
		u, err := url.Parse(c.ReportWebhook)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: report webhook must be an http(s) URL", domain.ErrInvalidConfig)
		}
	}

	switch {
	case mode == app.ModeClaim && c.ClaimProgram == "":
		return fmt.Errorf("%w: claim mode requires a claim program", domain.ErrInvalidConfig)
	case mode == app.ModeCompress && c.PoolProgram == "":
		return fmt.Errorf("%w: compress mode requires a pool program", domain.ErrInvalidConfig)
	}
	return nil
}
