package app

import (
	"fmt"

	"github.com/bft-labs/dropship/internal/domain"
)

// Builder assembles envelopes for a run.
type Builder struct {
	rc RunContext
}

// NewBuilder creates a builder bound to rc.
func NewBuilder(rc RunContext) *Builder {
	return &Builder{rc: rc}
}

// Build assembles the envelope for ch. resolutions must be aligned with
// ch.Entries; they are ignored in modes that create no accounts.
//
// Layout: budget-limit, budget-price, then per entry an optional account
// creation followed by its transfer or claim. In compress mode the entries
// become one directive per sub-group instead.
func (b *Builder) Build(ch domain.Chunk, resolutions []domain.Resolution, src domain.SourceState) (domain.Envelope, error) {
	if ch.Size() == 0 {
		return domain.Envelope{}, fmt.Errorf("%w: chunk %d is empty", domain.ErrInvalidInput, ch.Index)
	}
	if b.rc.Mode.CreatesAccounts() && len(resolutions) != ch.Size() {
		return domain.Envelope{}, fmt.Errorf("chunk %d: %d resolutions for %d entries", ch.Index, len(resolutions), ch.Size())
	}

	env := domain.Envelope{
		ChunkIndex: ch.Index,
		Directives: b.budget(),
		Signers:    b.rc.CustodialSigners(),
		Entries:    ch.Entries,
	}

	switch b.rc.Mode {
	case ModeCompress:
		for g := range ch.SubGroups {
			legs, err := b.legs(ch.Group(g), nil)
			if err != nil {
				return domain.Envelope{}, err
			}
			env.Directives = append(env.Directives, domain.Directive{
				Kind:         domain.DirectiveCompress,
				Payer:        b.rc.FeePayer,
				Authority:    b.rc.Authority,
				Source:       src.Holding,
				Mint:         b.rc.Mint,
				Decimals:     b.rc.Decimals,
				TokenProgram: b.rc.TokenProgram,
				Legs:         legs,
			})
		}
	default:
		kind := domain.DirectiveTransfer
		if b.rc.Mode == ModeClaim {
			kind = domain.DirectiveClaim
		}
		for i, e := range ch.Entries {
			res := resolutions[i]
			if res.Create != nil {
				env.Directives = append(env.Directives, *res.Create)
			}
			legs, err := b.legs([]domain.Entry{e}, []domain.Resolution{res})
			if err != nil {
				return domain.Envelope{}, err
			}
			env.Directives = append(env.Directives, domain.Directive{
				Kind:         kind,
				Payer:        b.rc.FeePayer,
				Authority:    b.rc.Authority,
				Source:       src.Holding,
				Mint:         b.rc.Mint,
				Decimals:     b.rc.Decimals,
				TokenProgram: b.rc.TokenProgram,
				Legs:         legs,
			})
		}
		if b.rc.Mode.CoSigned() {
			env.Signers = appendUnique(env.Signers, recipients(ch.Entries)...)
		}
	}

	if env.Count() > b.rc.Limits.MaxDirectives {
		return domain.Envelope{}, fmt.Errorf("%w: chunk %d needs %d directives, ceiling is %d",
			domain.ErrEnvelopeTooLarge, ch.Index, env.Count(), b.rc.Limits.MaxDirectives)
	}
	return env, nil
}

// Setup wraps custodial directives (source account creation, pool
// registration) in an envelope with the run's budget and signers.
func (b *Builder) Setup(directives ...domain.Directive) domain.Envelope {
	return domain.Envelope{
		ChunkIndex: -1,
		Directives: append(b.budget(), directives...),
		Signers:    b.rc.CustodialSigners(),
	}
}

// SourceCreation returns the directive creating the authority's holding account.
func (b *Builder) SourceCreation(holding domain.Address) domain.Directive {
	return domain.Directive{
		Kind:         domain.DirectiveCreateAccount,
		Payer:        b.rc.FeePayer,
		Owner:        b.rc.Authority,
		Account:      holding,
		Mint:         b.rc.Mint,
		TokenProgram: b.rc.TokenProgram,
		Idempotent:   b.rc.IdempotentCreate,
	}
}

// PoolRegistration returns the directive registering pool for the mint.
func (b *Builder) PoolRegistration(pool domain.Address) domain.Directive {
	return domain.Directive{
		Kind:         domain.DirectiveRegisterPool,
		Payer:        b.rc.FeePayer,
		Account:      pool,
		Mint:         b.rc.Mint,
		TokenProgram: b.rc.TokenProgram,
	}
}

// ExpectedCount returns the directive count Build produces for ch given how
// many of its entries need account creation.
func (b *Builder) ExpectedCount(ch domain.Chunk, creations int) int {
	if b.rc.Mode == ModeCompress {
		return 2 + len(ch.SubGroups)
	}
	return 2 + ch.Size() + creations
}

func (b *Builder) budget() []domain.Directive {
	return []domain.Directive{
		{Kind: domain.DirectiveBudgetLimit, Units: b.rc.Budget.UnitLimit},
		{Kind: domain.DirectiveBudgetPrice, MicroPrice: b.rc.Budget.UnitPrice},
	}
}

func (b *Builder) legs(entries []domain.Entry, res []domain.Resolution) ([]domain.Leg, error) {
	legs := make([]domain.Leg, len(entries))
	for i, e := range entries {
		units, err := e.BaseUnits(b.rc.Decimals)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.Seq, err)
		}
		legs[i] = domain.Leg{
			Recipient: e.Recipient,
			BaseUnits: units,
			Direction: e.Direction,
		}
		if res != nil {
			legs[i].Holding = res[i].Address
		}
	}
	return legs, nil
}

func recipients(entries []domain.Entry) []domain.Address {
	out := make([]domain.Address, len(entries))
	for i, e := range entries {
		out[i] = e.Recipient
	}
	return out
}

func appendUnique(dst []domain.Address, addrs ...domain.Address) []domain.Address {
	seen := make(map[domain.Address]bool, len(dst)+len(addrs))
	for _, a := range dst {
		seen[a] = true
	}
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		dst = append(dst, a)
	}
	return dst
}
