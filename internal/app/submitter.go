package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// Submitter signs envelopes, transmits them and waits for confirmation.
// It mutates no shared state; ledger changes are only observed through
// signature status.
type Submitter struct {
	ledger   ports.Ledger
	compiler ports.Compiler
	logger   ports.Logger
	now      func() time.Time
}

// NewSubmitter creates a submitter.
func NewSubmitter(ledger ports.Ledger, compiler ports.Compiler, logger ports.Logger) *Submitter {
	return &Submitter{
		ledger:   ledger,
		compiler: compiler,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit signs env with signer and submits it using opts.Strategy.
//
// If the ledger rejects the envelope because a holding account it creates
// already exists, in preflight or on execution, the creation directives are
// dropped and the remainder is submitted once more; a confirmation then
// reports RaceLost.
func (s *Submitter) Submit(ctx context.Context, env domain.Envelope, signer Signer, opts SubmitOptions) domain.Outcome {
	out := s.submitOnce(ctx, env, signer, opts)
	if out.Kind != domain.KindAccountAlreadyExists || env.Creations() == 0 {
		return out
	}

	s.logger.Info("holding account created concurrently, resubmitting without creation directives",
		ports.Int("chunk", env.ChunkIndex),
		ports.Int("creations", env.Creations()),
	)
	retry := s.submitOnce(ctx, env.WithoutCreations(), signer, opts)
	retry.Attempts += out.Attempts
	if retry.Confirmed() {
		retry.RaceLost = true
	}
	return retry
}

// Status returns the current status of a previously submitted signature.
func (s *Submitter) Status(ctx context.Context, sig domain.Signature) (domain.SignatureStatus, error) {
	return s.ledger.SignatureStatus(ctx, sig)
}

func (s *Submitter) submitOnce(ctx context.Context, env domain.Envelope, signer Signer, opts SubmitOptions) domain.Outcome {
	switch opts.Strategy {
	case StrategyVersioned:
		return s.sendAndPoll(ctx, env, signer, opts)
	default:
		return s.sendAndConfirm(ctx, env, signer, opts)
	}
}

// sendAndConfirm transmits once and blocks until the target commitment or
// the confirmation timeout.
func (s *Submitter) sendAndConfirm(ctx context.Context, env domain.Envelope, signer Signer, opts SubmitOptions) domain.Outcome {
	out := domain.Outcome{Envelope: env}

	signed, err := s.prepare(ctx, env, signer, false, opts.TargetCommitment)
	if err != nil {
		return s.fail(out, err)
	}

	out.Attempts = 1
	sig, err := s.ledger.SendEnvelope(ctx, signed, domain.SendOptions{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: opts.TargetCommitment,
		MaxRetries:          opts.MaxRetries,
	})
	if err != nil {
		return s.fail(out, err)
	}
	out.Signature = sig

	deadline := s.now().Add(opts.ConfirmTimeout)
	for {
		st, err := s.ledger.SignatureStatus(ctx, sig)
		switch {
		case err != nil:
			s.logger.Debug("status query failed", ports.Stringer("signature", sig), ports.Err(err))
		case st.Err != nil:
			return s.fail(out, st.Err)
		case st.Reached(opts.TargetCommitment):
			return out
		}
		if !s.now().Before(deadline) {
			return s.fail(out, &domain.KindError{
				Kind: domain.KindTimeout,
				Err:  fmt.Errorf("signature %s not %s after %s", sig, opts.TargetCommitment, opts.ConfirmTimeout),
			})
		}
		if err := sleepCtx(ctx, opts.PollInterval); err != nil {
			return s.fail(out, err)
		}
	}
}

// sendAndPoll transmits a versioned message and rebroadcasts the same
// signed bytes on each poll round, up to opts.MaxRetries extra rounds.
func (s *Submitter) sendAndPoll(ctx context.Context, env domain.Envelope, signer Signer, opts SubmitOptions) domain.Outcome {
	out := domain.Outcome{Envelope: env}

	signed, err := s.prepare(ctx, env, signer, true, opts.TargetCommitment)
	if err != nil {
		return s.fail(out, err)
	}
	out.Signature = signed.ID()

	var lastErr error
	for round := 0; round <= opts.MaxRetries; round++ {
		out.Attempts++
		_, err := s.ledger.SendEnvelope(ctx, signed, domain.SendOptions{
			SkipPreflight:       opts.SkipPreflight || round > 0,
			PreflightCommitment: opts.TargetCommitment,
		})
		if err != nil {
			kind := ClassifyFor(env, err)
			if !kind.Retryable() {
				return s.fail(out, err)
			}
			lastErr = err
			s.logger.Debug("rebroadcast failed", ports.Int("round", round), ports.Err(err))
		}

		if err := sleepCtx(ctx, opts.PollInterval); err != nil {
			return s.fail(out, err)
		}
		st, err := s.ledger.SignatureStatus(ctx, out.Signature)
		switch {
		case err != nil:
			lastErr = err
		case st.Err != nil:
			return s.fail(out, st.Err)
		case st.Reached(opts.TargetCommitment):
			return out
		}
	}

	if lastErr != nil && Classify(lastErr) == domain.KindTransientNetwork {
		return s.fail(out, lastErr)
	}
	return s.fail(out, &domain.KindError{
		Kind: domain.KindTimeout,
		Err:  fmt.Errorf("signature %s not %s after %d rounds", out.Signature, opts.TargetCommitment, opts.MaxRetries+1),
	})
}

// prepare fetches a fresh blockhash, compiles env and signs it with every
// required signer in message order.
func (s *Submitter) prepare(ctx context.Context, env domain.Envelope, signer Signer, versioned bool, commitment domain.Commitment) (domain.SignedEnvelope, error) {
	hash, err := s.ledger.LatestBlockhash(ctx, commitment)
	if err != nil {
		return domain.SignedEnvelope{}, fmt.Errorf("latest blockhash: %w", err)
	}
	compiled, err := s.compiler.Compile(env, hash, versioned)
	if err != nil {
		return domain.SignedEnvelope{}, &domain.KindError{Kind: domain.KindUnclassified, Err: fmt.Errorf("compile: %w", err)}
	}
	signed := domain.SignedEnvelope{
		CompiledEnvelope: compiled,
		Signatures:       make([]domain.Signature, len(compiled.Signers)),
	}
	for i, addr := range compiled.Signers {
		sig, err := signer.Sign(addr, compiled.Message)
		if err != nil {
			return domain.SignedEnvelope{}, &domain.KindError{Kind: domain.KindUnclassified, Err: err}
		}
		signed.Signatures[i] = sig
	}
	return signed, nil
}

func (s *Submitter) fail(out domain.Outcome, err error) domain.Outcome {
	out.Kind = ClassifyFor(out.Envelope, err)
	out.Detail = err.Error()
	if le, ok := err.(*domain.LedgerError); ok && len(le.Logs) > 0 {
		out.Detail = le.Text()
	}
	if out.Kind == domain.KindNone {
		out.Kind = domain.KindUnclassified
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
