package app

import (
	"fmt"
	"time"

	"github.com/bft-labs/dropship/internal/domain"
)

// Mode selects the on-chain operation used to move tokens.
type Mode string

const (
	// ModeTransfer moves tokens out of the custodial holding account with
	// one transfer directive per recipient.
	ModeTransfer Mode = "transfer"

	// ModeClaim invokes the claim program once per recipient; recipients
	// co-sign and negative amounts burn.
	ModeClaim Mode = "claim"

	// ModeCompress sends one batched directive per sub-group into the
	// registered liquidity pool. No holding accounts are created.
	ModeCompress Mode = "compress"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTransfer, ModeClaim, ModeCompress:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidConfig, s)
}

// CoSigned reports whether recipients must sign their own directives.
func (m Mode) CoSigned() bool { return m == ModeClaim }

// SupportsDebit reports whether debit entries can be expressed.
func (m Mode) SupportsDebit() bool { return m == ModeClaim }

// CreatesAccounts reports whether recipients need holding accounts.
func (m Mode) CreatesAccounts() bool { return m != ModeCompress }

// DefaultEntriesPerEnvelope is the entry limit per envelope that keeps a
// legacy message within the ledger packet size when every recipient needs
// a holding account. Claim entries also carry a recipient signature.
func (m Mode) DefaultEntriesPerEnvelope() int {
	switch m {
	case ModeClaim:
		return 4
	case ModeCompress:
		return 15
	default:
		return 8
	}
}

// Strategy selects how envelopes are transmitted and confirmed.
type Strategy string

const (
	// StrategyLegacy sends a legacy message once and blocks until the
	// target commitment or the confirmation timeout.
	StrategyLegacy Strategy = "legacy"

	// StrategyVersioned sends a versioned message and rebroadcasts it on a
	// bounded number of poll rounds.
	StrategyVersioned Strategy = "versioned"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyLegacy, StrategyVersioned:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown submission strategy %q", domain.ErrInvalidConfig, s)
}

// Budget holds the execution-budget directive values.
// They are static per run, not derived from chunk size.
type Budget struct {
	UnitLimit uint32
	UnitPrice uint64
}

// Limits bounds chunk and envelope sizes.
type Limits struct {
	MaxEntriesPerEnvelope     int
	MaxEntriesPerSubDirective int
	MaxDirectives             int
}

// SubmitOptions controls the Submitter.
type SubmitOptions struct {
	Strategy         Strategy
	SkipPreflight    bool
	MaxRetries       int
	TargetCommitment domain.Commitment
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
}

// RunContext is the explicit, immutable configuration of one run.
// It is built once before the run starts and passed by value to every
// component.
type RunContext struct {
	RunID string

	Mint         domain.Address
	TokenProgram domain.Address
	Decimals     uint8
	Mode         Mode

	// FeePayer pays fees and account creation. Authority owns the source
	// holding account and signs transfers (or verifies claims). They may be
	// the same key.
	FeePayer  domain.Address
	Authority domain.Address

	Budget Budget
	Limits Limits
	Submit SubmitOptions

	IdempotentCreate bool
	RegisterPool     bool

	Pacing       time.Duration
	ChunkRetries int
	RetryInitial time.Duration
	RetryMax     time.Duration

	Date     string
	TestMode bool
}

// Validate checks the run context before any network call.
func (rc RunContext) Validate() error {
	switch {
	case rc.Mint.IsZero():
		return fmt.Errorf("%w: mint is required", domain.ErrInvalidConfig)
	case rc.TokenProgram.IsZero():
		return fmt.Errorf("%w: token program is required", domain.ErrInvalidConfig)
	case rc.FeePayer.IsZero() || rc.Authority.IsZero():
		return fmt.Errorf("%w: fee payer and authority are required", domain.ErrInvalidConfig)
	case rc.Limits.MaxEntriesPerEnvelope <= 0 || rc.Limits.MaxEntriesPerSubDirective <= 0:
		return fmt.Errorf("%w: chunk limits must be positive", domain.ErrInvalidInput)
	case rc.Limits.MaxDirectives <= 2:
		return fmt.Errorf("%w: max directives must exceed the two budget directives", domain.ErrInvalidInput)
	case rc.Submit.MaxRetries < 0 || rc.ChunkRetries < 0:
		return fmt.Errorf("%w: retry counts must not be negative", domain.ErrInvalidConfig)
	case rc.Submit.ConfirmTimeout <= 0 || rc.Submit.PollInterval <= 0:
		return fmt.Errorf("%w: confirm timeout and poll interval must be positive", domain.ErrInvalidConfig)
	}
	if _, err := ParseMode(string(rc.Mode)); err != nil {
		return err
	}
	if _, err := ParseStrategy(string(rc.Submit.Strategy)); err != nil {
		return err
	}
	return nil
}

// CustodialSigners returns the fixed signer set: fee payer first, then the
// authority when it is a different key.
func (rc RunContext) CustodialSigners() []domain.Address {
	if rc.Authority == rc.FeePayer {
		return []domain.Address{rc.FeePayer}
	}
	return []domain.Address{rc.FeePayer, rc.Authority}
}
