package app

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// ChunkPlan describes how one chunk would be submitted.
type ChunkPlan struct {
	Index     int             `json:"index"`
	Entries   int             `json:"entries"`
	SubGroups int             `json:"sub_groups"`
	Amount    decimal.Decimal `json:"amount"`

	// MinDirectives assumes every holding account exists, MaxDirectives
	// that none does.
	MinDirectives int `json:"min_directives"`
	MaxDirectives int `json:"max_directives"`

	// OverCeiling is set when MaxDirectives exceeds the ledger ceiling.
	OverCeiling bool `json:"over_ceiling,omitempty"`

	// MaxBytes is the signed size of the envelope when every holding
	// account is created. OverPacket is set when that does not fit the
	// ledger's packet. Both stay zero when the plan has no Sizer.
	MaxBytes   int  `json:"max_bytes,omitempty"`
	OverPacket bool `json:"over_packet,omitempty"`
}

// Sizer compiles planned envelopes to measure them.
type Sizer struct {
	Deriver  ports.AddressDeriver
	Compiler ports.Compiler
}

// Plan is the offline chunk layout of a run.
type Plan struct {
	Mode    Mode             `json:"mode"`
	Total   int              `json:"total"`
	Amount  decimal.Decimal  `json:"amount"`
	Chunks  []ChunkPlan      `json:"chunks"`
	Skipped []domain.Skipped `json:"skipped"`
}

// PlanRun computes the chunk layout for entries without touching the
// ledger. Every kept amount is checked for base-unit representability.
// A non-nil sizer also measures each chunk's worst-case envelope.
func PlanRun(rc RunContext, entries []domain.Entry, sizer *Sizer, logger ports.Logger) (Plan, error) {
	chunks, skipped, err := NewChunker(rc.Mode.SupportsDebit(), logger).
		Chunk(entries, rc.Limits.MaxEntriesPerEnvelope, rc.Limits.MaxEntriesPerSubDirective)
	if err != nil {
		return Plan{}, err
	}

	b := NewBuilder(rc)
	plan := Plan{Mode: rc.Mode, Total: len(entries), Skipped: skipped}
	for _, ch := range chunks {
		cp := ChunkPlan{
			Index:     ch.Index,
			Entries:   ch.Size(),
			SubGroups: len(ch.SubGroups),
		}
		for _, e := range ch.Entries {
			if _, err := e.BaseUnits(rc.Decimals); err != nil {
				return Plan{}, fmt.Errorf("entry %d: %w", e.Seq, err)
			}
			cp.Amount = cp.Amount.Add(e.Amount)
		}
		cp.MinDirectives = b.ExpectedCount(ch, 0)
		if rc.Mode.CreatesAccounts() {
			cp.MaxDirectives = b.ExpectedCount(ch, distinctRecipients(ch.Entries))
		} else {
			cp.MaxDirectives = cp.MinDirectives
		}
		cp.OverCeiling = cp.MaxDirectives > rc.Limits.MaxDirectives
		if sizer != nil {
			if cp.MaxBytes, cp.OverPacket, err = sizer.measure(rc, ch, logger); err != nil {
				return Plan{}, fmt.Errorf("chunk %d: %w", ch.Index, err)
			}
		}
		plan.Amount = plan.Amount.Add(cp.Amount)
		plan.Chunks = append(plan.Chunks, cp)
	}
	return plan, nil
}

func distinctRecipients(entries []domain.Entry) int {
	return len(appendUnique(nil, recipients(entries)...))
}

// measure compiles the envelope of ch with every holding account missing
// and returns its signed size, and whether that exceeds the packet.
func (s *Sizer) measure(rc RunContext, ch domain.Chunk, logger ports.Logger) (int, bool, error) {
	src, err := s.Deriver.HoldingAccount(rc.Authority, rc.Mint, rc.TokenProgram)
	if err != nil {
		return 0, false, fmt.Errorf("derive source holding account: %w", err)
	}
	var res []domain.Resolution
	if rc.Mode.CreatesAccounts() {
		res, err = NewResolver(nil, s.Deriver, rc.FeePayer, rc.IdempotentCreate, logger).AssumeMissing(rc, ch)
		if err != nil {
			return 0, false, err
		}
	}

	unbounded := rc
	unbounded.Limits.MaxDirectives = math.MaxInt
	env, err := NewBuilder(unbounded).Build(ch, res, domain.SourceState{Holding: src})
	if err != nil {
		return 0, false, err
	}
	compiled, err := s.Compiler.Compile(env, domain.Blockhash{}, rc.Submit.Strategy == StrategyVersioned)
	var sizeErr *domain.SizeError
	if errors.As(err, &sizeErr) {
		return sizeErr.Size, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("compile: %w", err)
	}
	return compiled.Size, false, nil
}
