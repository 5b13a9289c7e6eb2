package app

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bft-labs/dropship/internal/domain"
)

func submitEnv(t *testing.T, chain *fakeChain, n int) domain.Envelope {
	t.Helper()
	_, env, _ := buildChunk(t, testRunContext(ModeTransfer), chain, entries(n, "1"))
	return env
}

func TestSubmitter_Confirms(t *testing.T) {
	for _, strategy := range []Strategy{StrategyLegacy, StrategyVersioned} {
		t.Run(string(strategy), func(t *testing.T) {
			chain := newFakeChain()
			env := submitEnv(t, chain, 3)
			opts := testRunContext(ModeTransfer).Submit
			opts.Strategy = strategy

			out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey, authorityKey), opts)
			if !out.Confirmed() {
				t.Fatalf("outcome = %s (%s), want confirmed", out.Kind, out.Detail)
			}
			if out.Signature.IsZero() {
				t.Error("confirmed outcome has no signature")
			}
			if out.RaceLost {
				t.Error("RaceLost set without a race")
			}
		})
	}
}

func TestSubmitter_SignsWithEveryRequiredSigner(t *testing.T) {
	chain := newFakeChain()
	env := submitEnv(t, chain, 1)

	s := NewSubmitter(chain, chain, mockLogger{})
	signed, err := s.prepare(context.Background(), env, NewKeyring(payerKey, authorityKey), false, domain.CommitmentConfirmed)
	if err != nil {
		t.Fatalf("prepare() error = %v", err)
	}
	if len(signed.Signatures) != len(env.Signers) {
		t.Fatalf("signatures = %d, want %d", len(signed.Signatures), len(env.Signers))
	}
	for i, addr := range env.Signers {
		if !ed25519.Verify(ed25519.PublicKey(addr[:]), signed.Message, signed.Signatures[i][:]) {
			t.Errorf("signature %d does not verify for %s", i, addr)
		}
	}
}

func TestSubmitter_MissingSigner(t *testing.T) {
	chain := newFakeChain()
	env := submitEnv(t, chain, 1)

	out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey), testRunContext(ModeTransfer).Submit)
	if out.Kind != domain.KindUnclassified {
		t.Errorf("Kind = %s, want unclassified", out.Kind)
	}
	if len(chain.Sent()) != 0 {
		t.Error("envelope was sent without all signatures")
	}
}

// An account created by someone else between resolution and submission
// must not fail the chunk.
func TestSubmitter_AlreadyInUseResubmitsWithoutCreations(t *testing.T) {
	chain := newFakeChain()
	env := submitEnv(t, chain, 3)
	if env.Creations() != 3 {
		t.Fatalf("creations = %d, want 3", env.Creations())
	}
	chain.onSend = func(n int, env domain.Envelope) error {
		if env.Creations() > 0 {
			return &domain.LedgerError{
				Code:    -32002,
				Message: "Transaction simulation failed: Error processing Instruction 2: custom program error: 0x0",
				Logs:    []string{"Allocate: account Address { address: X, base: None } already in use"},
			}
		}
		return nil
	}

	out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey, authorityKey), testRunContext(ModeTransfer).Submit)
	if !out.Confirmed() {
		t.Fatalf("outcome = %s (%s), want confirmed", out.Kind, out.Detail)
	}
	if !out.RaceLost {
		t.Error("RaceLost = false, want true")
	}
	if out.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", out.Attempts)
	}
	sent := chain.Sent()
	if len(sent) != 2 || sent[1].Creations() != 0 || sent[1].Count() != 2+3 {
		t.Errorf("resubmitted envelope = %+v", sent[len(sent)-1].Directives)
	}
}

func firstCreation(env domain.Envelope) int {
	for i, d := range env.Directives {
		if d.Kind == domain.DirectiveCreateAccount {
			return i
		}
	}
	return -1
}

func customFailure(index int, code uint32) *domain.LedgerError {
	return &domain.LedgerError{
		Message: fmt.Sprintf("Error processing Instruction %d: custom program error: 0x%x", index, code),
		Failed:  &domain.InstructionFailure{Index: index, Custom: &code},
	}
}

// With preflight skipped, a lost creation race only shows up as the
// execution error of the landed transaction.
func TestSubmitter_ExecutedRaceResubmitsWithoutCreations(t *testing.T) {
	for _, strategy := range []Strategy{StrategyLegacy, StrategyVersioned} {
		t.Run(string(strategy), func(t *testing.T) {
			chain := newFakeChain()
			env := submitEnv(t, chain, 3)
			chain.onExecute = func(env domain.Envelope) *domain.LedgerError {
				if i := firstCreation(env); i >= 0 {
					return customFailure(i, 0)
				}
				return nil
			}
			opts := testRunContext(ModeTransfer).Submit
			opts.Strategy = strategy
			opts.SkipPreflight = true

			out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey, authorityKey), opts)
			if !out.Confirmed() {
				t.Fatalf("outcome = %s (%s), want confirmed", out.Kind, out.Detail)
			}
			if !out.RaceLost {
				t.Error("RaceLost = false, want true")
			}
			sent := chain.Sent()
			if last := sent[len(sent)-1]; last.Creations() != 0 || last.Count() != 2+3 {
				t.Errorf("resubmitted envelope = %+v", last.Directives)
			}
		})
	}
}

func TestSubmitter_ExecutionErrorOutsideCreationIsTerminal(t *testing.T) {
	chain := newFakeChain()
	env := submitEnv(t, chain, 1)
	transfer := len(env.Directives) - 1
	chain.onExecute = func(domain.Envelope) *domain.LedgerError { return customFailure(transfer, 0) }
	opts := testRunContext(ModeTransfer).Submit
	opts.SkipPreflight = true

	out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey, authorityKey), opts)
	if out.Kind != domain.KindUnclassified {
		t.Errorf("Kind = %s, want unclassified", out.Kind)
	}
	if n := len(chain.Sent()); n != 1 {
		t.Errorf("sends = %d, want 1", n)
	}
}

func TestSubmitter_AccountLockIsTransient(t *testing.T) {
	chain := newFakeChain()
	env := submitEnv(t, chain, 2)
	chain.onExecute = func(domain.Envelope) *domain.LedgerError {
		return &domain.LedgerError{Message: "account in use by a concurrent transaction"}
	}

	out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey, authorityKey), testRunContext(ModeTransfer).Submit)
	if out.Kind != domain.KindTransientNetwork {
		t.Errorf("Kind = %s, want transient", out.Kind)
	}
	if n := len(chain.Sent()); n != 1 || chain.Sent()[0].Creations() != 2 {
		t.Error("account lock conflict dropped the creation directives")
	}
}

func TestSubmitter_LegacyTimeout(t *testing.T) {
	chain := newFakeChain()
	chain.silent = true
	env := submitEnv(t, chain, 1)
	opts := testRunContext(ModeTransfer).Submit
	opts.ConfirmTimeout = 5 * time.Millisecond

	out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey, authorityKey), opts)
	if out.Kind != domain.KindTimeout {
		t.Errorf("Kind = %s, want timeout", out.Kind)
	}
	if out.Signature.IsZero() {
		t.Error("timed out outcome lost its signature")
	}
}

func TestSubmitter_VersionedRebroadcasts(t *testing.T) {
	chain := newFakeChain()
	chain.silent = true
	env := submitEnv(t, chain, 1)
	opts := testRunContext(ModeTransfer).Submit
	opts.Strategy = StrategyVersioned
	opts.MaxRetries = 3

	out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey, authorityKey), opts)
	if out.Kind != domain.KindTimeout {
		t.Errorf("Kind = %s, want timeout", out.Kind)
	}
	if out.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", out.Attempts)
	}
	if n := len(chain.Sent()); n != 4 {
		t.Errorf("broadcasts = %d, want 4", n)
	}
}

func TestSubmitter_TerminalKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"insufficient funds", &domain.LedgerError{Code: -32002, Message: "custom program error: 0x1", Logs: []string{"Program log: Error: insufficient funds"}}, domain.KindInsufficientFunds},
		{"preflight", &domain.LedgerError{Code: -32002, Message: "Transaction simulation failed: invalid account data"}, domain.KindPreflightRejected},
		{"transient", &domain.LedgerError{Message: "connection refused", Transport: true}, domain.KindTransientNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newFakeChain()
			chain.onSend = func(int, domain.Envelope) error { return tt.err }
			env := submitEnv(t, chain, 1)

			out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey, authorityKey), testRunContext(ModeTransfer).Submit)
			if out.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", out.Kind, tt.want)
			}
			if out.Detail == "" {
				t.Error("failed outcome has no detail")
			}
		})
	}
}

func TestSubmitter_PreflightDetailKeepsLogs(t *testing.T) {
	chain := newFakeChain()
	chain.onSend = func(int, domain.Envelope) error {
		return &domain.LedgerError{Code: -32002, Message: "simulation failed", Logs: []string{"Program log: bad mint"}}
	}
	env := submitEnv(t, chain, 1)

	out := NewSubmitter(chain, chain, mockLogger{}).Submit(context.Background(), env, NewKeyring(payerKey, authorityKey), testRunContext(ModeTransfer).Submit)
	if out.Detail != "simulation failed\nProgram log: bad mint" {
		t.Errorf("Detail = %q", out.Detail)
	}
}

func TestSleepCtx_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx() = %v, want context.Canceled", err)
	}
}
