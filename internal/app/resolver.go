package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// Resolver determines whether recipients' holding accounts exist and
// yields creation directives for the ones that do not.
type Resolver struct {
	ledger     ports.Ledger
	deriver    ports.AddressDeriver
	payer      domain.Address
	idempotent bool
	logger     ports.Logger
}

// NewResolver creates a resolver whose creation directives are paid by payer.
func NewResolver(ledger ports.Ledger, deriver ports.AddressDeriver, payer domain.Address, idempotent bool, logger ports.Logger) *Resolver {
	return &Resolver{
		ledger:     ledger,
		deriver:    deriver,
		payer:      payer,
		idempotent: idempotent,
		logger:     logger,
	}
}

// Resolve looks up the holding account of recipient for (tokenProgram, mint).
// The creation directive is advisory: the account may still be created by
// someone else before submission.
func (r *Resolver) Resolve(ctx context.Context, tokenProgram, mint, recipient domain.Address) (domain.Resolution, error) {
	return r.resolve(tokenProgram, mint, recipient, func(holding domain.Address) (bool, error) {
		return r.ledger.AccountExists(ctx, holding)
	})
}

func (r *Resolver) resolve(tokenProgram, mint, recipient domain.Address, lookup func(domain.Address) (bool, error)) (domain.Resolution, error) {
	holding, err := r.deriver.HoldingAccount(recipient, mint, tokenProgram)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("derive holding account for %s: %w", recipient, err)
	}
	exists, err := lookup(holding)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("lookup holding account %s: %w", holding, err)
	}

	res := domain.Resolution{Recipient: recipient, Address: holding, Tag: domain.AlreadyExisted}
	if !exists {
		res.Tag = domain.Created
		res.Create = &domain.Directive{
			Kind:         domain.DirectiveCreateAccount,
			Payer:        r.payer,
			Owner:        recipient,
			Account:      holding,
			Mint:         mint,
			TokenProgram: tokenProgram,
			Idempotent:   r.idempotent,
		}
	}
	return res, nil
}

// ResolveChunk resolves every entry of ch, in order. A recipient repeated
// within the chunk is looked up once and only its first occurrence carries
// a creation directive.
func (r *Resolver) ResolveChunk(ctx context.Context, rc RunContext, ch domain.Chunk) ([]domain.Resolution, error) {
	return r.resolveChunk(rc, ch, func(holding domain.Address) (bool, error) {
		return r.ledger.AccountExists(ctx, holding)
	})
}

// AssumeMissing resolves ch as if no holding account existed yet. It never
// reads the ledger.
func (r *Resolver) AssumeMissing(rc RunContext, ch domain.Chunk) ([]domain.Resolution, error) {
	return r.resolveChunk(rc, ch, func(domain.Address) (bool, error) { return false, nil })
}

func (r *Resolver) resolveChunk(rc RunContext, ch domain.Chunk, lookup func(domain.Address) (bool, error)) ([]domain.Resolution, error) {
	out := make([]domain.Resolution, len(ch.Entries))
	seen := make(map[domain.Address]domain.Resolution, len(ch.Entries))
	for i, e := range ch.Entries {
		if prev, ok := seen[e.Recipient]; ok {
			prev.Create = nil
			prev.Tag = domain.AlreadyExisted
			out[i] = prev
			continue
		}
		res, err := r.resolve(rc.TokenProgram, rc.Mint, e.Recipient, lookup)
		if err != nil {
			return nil, err
		}
		if res.Create != nil {
			r.logger.Debug("holding account missing",
				ports.Int("chunk", ch.Index),
				ports.Stringer("recipient", e.Recipient),
				ports.Stringer("account", res.Address),
			)
		}
		seen[e.Recipient] = res
		out[i] = res
	}
	return out, nil
}
