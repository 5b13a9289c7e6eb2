package app

import (
	"fmt"
	"sync"

	"github.com/bft-labs/dropship/internal/ports"
)

// Phase is the stage a run is in.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseLoadRecipients
	PhaseEnsureSourceAccount
	PhaseEnsurePoolRegistered
	PhaseProcessChunks
	PhaseDone
	PhaseHalted
	PhaseFailed
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "Init"
	case PhaseLoadRecipients:
		return "LoadRecipients"
	case PhaseEnsureSourceAccount:
		return "EnsureSourceAccount"
	case PhaseEnsurePoolRegistered:
		return "EnsurePoolRegistered"
	case PhaseProcessChunks:
		return "ProcessChunks"
	case PhaseDone:
		return "Done"
	case PhaseHalted:
		return "Halted"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseHalted || p == PhaseFailed
}

// Progress tracks the phase of a single run.
type Progress struct {
	mu      sync.RWMutex
	phase   Phase
	logger  ports.Logger
	emitter EventEmitter
}

// NewProgress creates a progress tracker in PhaseInit.
func NewProgress(logger ports.Logger, emitter EventEmitter) *Progress {
	return &Progress{
		phase:   PhaseInit,
		logger:  logger,
		emitter: emitter,
	}
}

// Phase returns the current phase.
func (p *Progress) Phase() Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// TransitionTo moves to next. Phases only advance in declaration order,
// pool registration may be skipped, and any non-terminal phase may end in
// Halted or Failed.
func (p *Progress) TransitionTo(next Phase, reason string) error {
	p.mu.Lock()
	prev := p.phase

	if !validTransition(prev, next) {
		p.mu.Unlock()
		return fmt.Errorf("invalid phase transition %s -> %s", prev, next)
	}

	p.phase = next
	p.mu.Unlock()

	// Emit event outside of lock
	if p.emitter != nil {
		p.emitter.OnPhaseChange(prev, next, reason)
	}

	p.logger.Info("phase transition",
		ports.Stringer("from", prev),
		ports.Stringer("to", next),
		ports.String("reason", reason),
	)
	return nil
}

func validTransition(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case PhaseHalted, PhaseFailed:
		return true
	case PhaseProcessChunks:
		return from == PhaseEnsureSourceAccount || from == PhaseEnsurePoolRegistered
	case PhaseDone:
		return from == PhaseProcessChunks
	default:
		return to == from+1
	}
}
