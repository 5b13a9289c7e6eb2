package app

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

func testKey(b byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{b}, ed25519.SeedSize))
}

func testAddr(b byte) domain.Address {
	var a domain.Address
	a[0] = 0xA0
	a[31] = b
	return a
}

func entries(n int, amount string) []domain.Entry {
	out := make([]domain.Entry, n)
	for i := range out {
		out[i] = domain.Entry{
			Seq:       i,
			Recipient: testAddr(byte(i)),
			Amount:    decimal.RequireFromString(amount),
			Direction: domain.Credit,
		}
	}
	return out
}

var (
	payerKey     = testKey(1)
	authorityKey = testKey(2)
	testMint     = testAddr(200)
	testProgram  = testAddr(201)
)

func testRunContext(mode Mode) RunContext {
	return RunContext{
		RunID:        "test-run",
		Mint:         testMint,
		TokenProgram: testProgram,
		Decimals:     6,
		Mode:         mode,
		FeePayer:     AddressOf(payerKey),
		Authority:    AddressOf(authorityKey),
		Budget:       Budget{UnitLimit: 1_000_000, UnitPrice: 10_000_000},
		Limits:       Limits{MaxEntriesPerEnvelope: 15, MaxEntriesPerSubDirective: 5, MaxDirectives: 32},
		Submit: SubmitOptions{
			Strategy:         StrategyLegacy,
			MaxRetries:       2,
			TargetCommitment: domain.CommitmentConfirmed,
			ConfirmTimeout:   50 * time.Millisecond,
			PollInterval:     time.Millisecond,
		},
		RegisterPool: mode == ModeCompress,
		ChunkRetries: 2,
		RetryInitial: time.Millisecond,
		RetryMax:     2 * time.Millisecond,
	}
}

// fakeChain implements ports.Ledger, ports.Compiler and ports.AddressDeriver
// over an in-memory account set.
type fakeChain struct {
	mu       sync.Mutex
	accounts map[domain.Address]bool
	compiled map[string]domain.Envelope
	landed   map[domain.Signature]domain.Envelope
	sent     []domain.Envelope
	hashes   uint64

	// onSend decides the result of the n-th send (0-based). A nil result
	// lands the envelope.
	onSend func(n int, env domain.Envelope) error

	// onExecute decides whether a landed envelope failed execution. The
	// error is reported through SignatureStatus, as with skipped preflight.
	onExecute func(env domain.Envelope) *domain.LedgerError
	failed    map[domain.Signature]*domain.LedgerError

	// silent makes landed envelopes invisible to status queries.
	silent bool

	existsCalls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		accounts: make(map[domain.Address]bool),
		compiled: make(map[string]domain.Envelope),
		landed:   make(map[domain.Signature]domain.Envelope),
		failed:   make(map[domain.Signature]*domain.LedgerError),
	}
}

func (f *fakeChain) AccountExists(ctx context.Context, addr domain.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	return f.accounts[addr], nil
}

func (f *fakeChain) LatestBlockhash(ctx context.Context, c domain.Commitment) (domain.Blockhash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes++
	var h domain.Blockhash
	binary.LittleEndian.PutUint64(h[:], f.hashes)
	return h, nil
}

func (f *fakeChain) Compile(env domain.Envelope, hash domain.Blockhash, versioned bool) (domain.CompiledEnvelope, error) {
	msg := []byte(fmt.Sprintf("chunk=%d directives=%d hash=%s", env.ChunkIndex, env.Count(), hash))
	f.mu.Lock()
	f.compiled[string(msg)] = env
	f.mu.Unlock()
	return domain.CompiledEnvelope{Message: msg, Signers: env.Signers, Versioned: versioned, Blockhash: hash}, nil
}

func (f *fakeChain) SendEnvelope(ctx context.Context, signed domain.SignedEnvelope, opts domain.SendOptions) (domain.Signature, error) {
	f.mu.Lock()
	env := f.compiled[string(signed.Message)]
	n := len(f.sent)
	f.sent = append(f.sent, env)
	onSend := f.onSend
	f.mu.Unlock()

	if onSend != nil {
		if err := onSend(n, env); err != nil {
			return domain.Signature{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.landed[signed.ID()] = env
	if f.onExecute != nil {
		if le := f.onExecute(env); le != nil {
			f.failed[signed.ID()] = le
			return signed.ID(), nil
		}
	}
	for _, d := range env.Directives {
		if d.Kind == domain.DirectiveCreateAccount || d.Kind == domain.DirectiveRegisterPool {
			f.accounts[d.Account] = true
		}
	}
	return signed.ID(), nil
}

func (f *fakeChain) SignatureStatus(ctx context.Context, sig domain.Signature) (domain.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.landed[sig]; !ok || f.silent {
		return domain.SignatureStatus{}, nil
	}
	return domain.SignatureStatus{Found: true, Commitment: domain.CommitmentFinalized, Err: f.failed[sig]}, nil
}

func (f *fakeChain) HoldingAccount(owner, mint, tokenProgram domain.Address) (domain.Address, error) {
	return domain.Address(sha256.Sum256(append(append(owner[:], tokenProgram[:]...), mint[:]...))), nil
}

func (f *fakeChain) PoolAccount(mint domain.Address) (domain.Address, error) {
	return domain.Address(sha256.Sum256(append([]byte("pool"), mint[:]...))), nil
}

func (f *fakeChain) Sent() []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Envelope(nil), f.sent...)
}

// fakeSource serves a fixed row list.
type fakeSource struct {
	rows []domain.RawEntry
	err  error
}

func (s fakeSource) Fetch(ctx context.Context, date string, testMode bool) ([]domain.RawEntry, error) {
	return s.rows, s.err
}

// recordingEmitter tracks events for testing.
type recordingEmitter struct {
	mu       sync.Mutex
	phases   []Phase
	outcomes []domain.ChunkOutcome
	skipped  int
	attempts int
}

func (r *recordingEmitter) OnPhaseChange(previous, current Phase, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, current)
}

func (r *recordingEmitter) OnChunkOutcome(o domain.ChunkOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingEmitter) OnEntriesSkipped(s []domain.Skipped) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped += len(s)
}

func (r *recordingEmitter) OnSubmitAttempt(chunk int, kind domain.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
}

func (r *recordingEmitter) Phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.phases...)
}

func newTestOrchestrator(rc RunContext, chain *fakeChain, src ports.RecipientSource, em EventEmitter) *Orchestrator {
	return NewOrchestrator(rc, OrchestratorDeps{
		Source:   src,
		Ledger:   chain,
		Compiler: chain,
		Deriver:  chain,
		Keyring:  NewKeyring(payerKey, authorityKey),
		Logger:   mockLogger{},
		Emitter:  em,
	})
}
