package ports

import (
	"context"

	"github.com/bft-labs/dropship/internal/domain"
)

// Ledger is the RPC boundary to the distributed ledger. Each call is an
// opaque remote operation with its own timeout and error surface; failures
// should be returned as *domain.LedgerError where possible.
type Ledger interface {
	// AccountExists reports whether an account exists at addr.
	AccountExists(ctx context.Context, addr domain.Address) (bool, error)

	// LatestBlockhash returns a fresh sequencing token.
	LatestBlockhash(ctx context.Context, commitment domain.Commitment) (domain.Blockhash, error)

	// SendEnvelope transmits a signed envelope and returns its signature.
	// Preflight rejections are returned as errors.
	SendEnvelope(ctx context.Context, env domain.SignedEnvelope, opts domain.SendOptions) (domain.Signature, error)

	// SignatureStatus reports how far a submitted signature has progressed.
	SignatureStatus(ctx context.Context, sig domain.Signature) (domain.SignatureStatus, error)
}

// MintInspector is an optional Ledger capability used to auto-detect the
// token program and decimals of a mint.
type MintInspector interface {
	MintInfo(ctx context.Context, mint domain.Address) (domain.MintInfo, error)
}

// Compiler compiles an envelope into a signable message.
type Compiler interface {
	// Compile lays out env against blockhash. versioned selects the
	// versioned message format.
	Compile(env domain.Envelope, blockhash domain.Blockhash, versioned bool) (domain.CompiledEnvelope, error)
}

// AddressDeriver derives deterministic ledger addresses.
type AddressDeriver interface {
	// HoldingAccount returns the per-owner holding account for mint.
	HoldingAccount(owner, mint, tokenProgram domain.Address) (domain.Address, error)

	// PoolAccount returns the liquidity pool account registered for mint.
	PoolAccount(mint domain.Address) (domain.Address, error)
}
