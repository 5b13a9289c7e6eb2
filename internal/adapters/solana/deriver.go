package solana

import (
	"fmt"

	sol "github.com/gagliardetto/solana-go"

	"github.com/bft-labs/dropship/internal/domain"
)

// Deriver computes program-derived account addresses.
type Deriver struct {
	poolProgram sol.PublicKey
}

// NewDeriver creates a deriver. poolProgram owns the liquidity pools of
// compress mode and may be zero when pools are not used.
func NewDeriver(poolProgram domain.Address) *Deriver {
	return &Deriver{poolProgram: pk(poolProgram)}
}

// HoldingAccount returns the associated token account of owner for mint
// under tokenProgram.
func (d *Deriver) HoldingAccount(owner, mint, tokenProgram domain.Address) (domain.Address, error) {
	a, _, err := sol.FindProgramAddress([][]byte{owner[:], tokenProgram[:], mint[:]}, AssociatedTokenProgramID)
	if err != nil {
		return domain.Address{}, fmt.Errorf("associated token account: %w", err)
	}
	return addr(a), nil
}

// PoolAccount returns the pool account of mint.
func (d *Deriver) PoolAccount(mint domain.Address) (domain.Address, error) {
	if d.poolProgram.IsZero() {
		return domain.Address{}, fmt.Errorf("%w: pool program not configured", domain.ErrInvalidConfig)
	}
	a, _, err := sol.FindProgramAddress([][]byte{seedPool, mint[:]}, d.poolProgram)
	if err != nil {
		return domain.Address{}, fmt.Errorf("pool account: %w", err)
	}
	return addr(a), nil
}

func findPDA(program sol.PublicKey, seeds ...[]byte) (sol.PublicKey, error) {
	a, _, err := sol.FindProgramAddress(seeds, program)
	return a, err
}
