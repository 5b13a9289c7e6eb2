package app

import "github.com/bft-labs/dropship/internal/domain"

// EventEmitter receives run progress. Implementations must be safe to call
// from the orchestrator goroutine and must not block.
type EventEmitter interface {
	OnPhaseChange(previous, current Phase, reason string)
	OnChunkOutcome(outcome domain.ChunkOutcome)
	OnEntriesSkipped(skipped []domain.Skipped)
	OnSubmitAttempt(chunk int, kind domain.ErrorKind)
}

// Emitters fans events out to several emitters.
type Emitters []EventEmitter

func (e Emitters) OnPhaseChange(previous, current Phase, reason string) {
	for _, em := range e {
		em.OnPhaseChange(previous, current, reason)
	}
}

func (e Emitters) OnChunkOutcome(outcome domain.ChunkOutcome) {
	for _, em := range e {
		em.OnChunkOutcome(outcome)
	}
}

func (e Emitters) OnEntriesSkipped(skipped []domain.Skipped) {
	for _, em := range e {
		em.OnEntriesSkipped(skipped)
	}
}

func (e Emitters) OnSubmitAttempt(chunk int, kind domain.ErrorKind) {
	for _, em := range e {
		em.OnSubmitAttempt(chunk, kind)
	}
}
