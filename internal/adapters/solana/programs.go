// Package solana adapts the ledger ports to the Solana JSON-RPC API and
// wire format.
package solana

import (
	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"

	"github.com/bft-labs/dropship/internal/domain"
)

// PacketLimit is the largest serialized transaction the ledger accepts.
const PacketLimit = 1232

// Well-known program ids.
var (
	SystemProgramID          = sol.SystemProgramID
	TokenProgramID           = sol.TokenProgramID
	Token2022ProgramID       = sol.Token2022ProgramID
	AssociatedTokenProgramID = sol.SPLAssociatedTokenAccountProgramID
	ComputeBudgetProgramID   = sol.ComputeBudget
)

// PDA seeds.
var (
	seedGlobal       = []byte("global")
	seedPool         = []byte("pool")
	seedCPIAuthority = []byte("cpi_authority")
)

// createIdempotentTag selects CreateIdempotent in the associated token
// account program; plain Create carries no data.
const createIdempotentTag byte = 1

// Anchor method discriminators of the claim and pool programs.
var (
	claimDiscriminator      = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "claim")
	compressDiscriminator   = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "compress")
	createPoolDiscriminator = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "create_token_pool")
)

func pk(a domain.Address) sol.PublicKey {
	return sol.PublicKeyFromBytes(a[:])
}

func addr(p sol.PublicKey) domain.Address {
	return domain.Address(p)
}
