package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// HaltCanceled is the halt reason recorded when the run context is canceled.
const HaltCanceled = "canceled"

// Orchestrator drives one distribution run through its phases. It is
// single-use: a second Run returns ErrAlreadyRunning.
type Orchestrator struct {
	rc        RunContext
	source    ports.RecipientSource
	ledger    ports.Ledger
	deriver   ports.AddressDeriver
	keyring   *Keyring
	logger    ports.Logger
	emitter   EventEmitter
	chunker   *Chunker
	resolver  *Resolver
	builder   *Builder
	submitter *Submitter
	progress  *Progress
	now       func() time.Time

	mu       sync.Mutex
	running  bool
	outcomes []domain.ChunkOutcome
}

// OrchestratorDeps are the ports an Orchestrator runs against.
type OrchestratorDeps struct {
	Source   ports.RecipientSource
	Ledger   ports.Ledger
	Compiler ports.Compiler
	Deriver  ports.AddressDeriver
	Keyring  *Keyring
	Logger   ports.Logger
	Emitter  EventEmitter
}

// NewOrchestrator creates an orchestrator for rc.
func NewOrchestrator(rc RunContext, deps OrchestratorDeps) *Orchestrator {
	if rc.RunID == "" {
		rc.RunID = uuid.NewString()
	}
	keyring := deps.Keyring
	if keyring == nil {
		keyring = NewKeyring()
	}
	return &Orchestrator{
		rc:        rc,
		source:    deps.Source,
		ledger:    deps.Ledger,
		deriver:   deps.Deriver,
		keyring:   keyring,
		logger:    deps.Logger,
		emitter:   deps.Emitter,
		chunker:   NewChunker(rc.Mode.SupportsDebit(), deps.Logger),
		resolver:  NewResolver(deps.Ledger, deps.Deriver, rc.FeePayer, rc.IdempotentCreate, deps.Logger),
		builder:   NewBuilder(rc),
		submitter: NewSubmitter(deps.Ledger, deps.Compiler, deps.Logger),
		progress:  NewProgress(deps.Logger, deps.Emitter),
		now:       time.Now,
	}
}

// RunID returns the identifier of the run.
func (o *Orchestrator) RunID() string { return o.rc.RunID }

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase { return o.progress.Phase() }

// Outcomes returns the chunk outcomes recorded so far.
func (o *Orchestrator) Outcomes() []domain.ChunkOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.ChunkOutcome(nil), o.outcomes...)
}

// Run loads recipients from the source and distributes to them.
//
// Chunk failures are recorded in the report and never returned. The
// returned error is non-nil only for run-level failures: invalid input or
// configuration, an unavailable source account, insufficient funds, or
// cancellation. The report is valid in every case.
func (o *Orchestrator) Run(ctx context.Context) (domain.Report, error) {
	return o.run(ctx, nil)
}

// RunEntries distributes to entries instead of reading the source.
func (o *Orchestrator) RunEntries(ctx context.Context, entries []domain.Entry) (domain.Report, error) {
	if entries == nil {
		entries = []domain.Entry{}
	}
	return o.run(ctx, entries)
}

func (o *Orchestrator) run(ctx context.Context, entries []domain.Entry) (domain.Report, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return domain.Report{}, domain.ErrAlreadyRunning
	}
	o.running = true
	o.mu.Unlock()

	report := domain.Report{
		RunID:     o.rc.RunID,
		Mint:      o.rc.Mint,
		StartedAt: o.now(),
	}
	finish := func(phase Phase, reason string, err error) (domain.Report, error) {
		report.FinishedAt = o.now()
		report.Chunks = o.Outcomes()
		if phase == PhaseHalted {
			report.HaltReason = reason
		}
		_ = o.progress.TransitionTo(phase, reason)
		return report, err
	}

	if err := o.rc.Validate(); err != nil {
		return finish(PhaseFailed, err.Error(), err)
	}
	for _, s := range o.rc.CustodialSigners() {
		if !o.keyring.Has(s) {
			err := fmt.Errorf("%w: %s", domain.ErrMissingSigner, s)
			return finish(PhaseFailed, err.Error(), err)
		}
	}

	// LoadRecipients
	_ = o.progress.TransitionTo(PhaseLoadRecipients, "")
	if entries == nil {
		var err error
		entries, err = o.load(ctx)
		if err != nil {
			return finish(PhaseFailed, err.Error(), err)
		}
	}
	report.Total = len(entries)
	chunks, skipped, err := o.chunker.Chunk(entries, o.rc.Limits.MaxEntriesPerEnvelope, o.rc.Limits.MaxEntriesPerSubDirective)
	if err != nil {
		return finish(PhaseFailed, err.Error(), err)
	}
	report.Skipped = skipped
	if len(skipped) > 0 && o.emitter != nil {
		o.emitter.OnEntriesSkipped(skipped)
	}
	o.logger.Info("recipients loaded",
		ports.String("run_id", o.rc.RunID),
		ports.Int("entries", len(entries)),
		ports.Int("skipped", len(skipped)),
		ports.Int("chunks", len(chunks)),
		ports.Uint64("unit_price", o.rc.Budget.UnitPrice),
	)

	// EnsureSourceAccount
	_ = o.progress.TransitionTo(PhaseEnsureSourceAccount, "")
	src, err := o.ensureSource(ctx)
	if err != nil {
		return finish(PhaseFailed, err.Error(), err)
	}

	// EnsurePoolRegistered
	if o.rc.RegisterPool {
		_ = o.progress.TransitionTo(PhaseEnsurePoolRegistered, "")
		if err := o.ensurePool(ctx, &src); err != nil {
			return finish(PhaseFailed, err.Error(), err)
		}
	}

	// ProcessChunks
	_ = o.progress.TransitionTo(PhaseProcessChunks, "")
	for i, ch := range chunks {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("run canceled between chunks", ports.Int("next_chunk", ch.Index))
			o.notAttempted(&report, chunks[i:])
			return finish(PhaseHalted, HaltCanceled, err)
		}
		if i > 0 && o.rc.Pacing > 0 {
			if err := sleepCtx(ctx, o.rc.Pacing); err != nil {
				o.notAttempted(&report, chunks[i:])
				return finish(PhaseHalted, HaltCanceled, err)
			}
		}

		co := o.processChunk(ctx, ch, src)
		o.record(&report, ch, co)

		if co.Kind == domain.KindInsufficientFunds {
			o.logger.Error("source cannot fund further chunks, halting",
				ports.Int("chunk", ch.Index),
				ports.String("detail", co.Detail),
			)
			o.notAttempted(&report, chunks[i+1:])
			return finish(PhaseHalted, co.Kind.String(),
				fmt.Errorf("chunk %d: %w", ch.Index, domain.ErrInsufficientFunds))
		}
	}

	o.logger.Info("run complete",
		ports.String("run_id", o.rc.RunID),
		ports.Int("succeeded", report.Succeeded),
		ports.Int("failed", len(report.Failed)),
		ports.Int("skipped", len(report.Skipped)),
	)
	return finish(PhaseDone, "", nil)
}

func (o *Orchestrator) load(ctx context.Context) ([]domain.Entry, error) {
	if o.source == nil {
		return nil, fmt.Errorf("%w: no recipient source configured", domain.ErrInvalidConfig)
	}
	raws, err := o.source.Fetch(ctx, o.rc.Date, o.rc.TestMode)
	if err != nil {
		return nil, fmt.Errorf("fetch recipients: %w", err)
	}
	return domain.NormalizeAll(raws, o.keyring.RecipientParser(o.rc.Mode.CoSigned()))
}

// ensureSource gets or creates the authority's holding account. Claim mode
// mints to recipients and has no source account.
func (o *Orchestrator) ensureSource(ctx context.Context) (domain.SourceState, error) {
	var src domain.SourceState
	if o.rc.Mode == ModeClaim {
		o.logger.Debug("claim mode, no source holding account")
		return src, nil
	}

	holding, err := o.deriver.HoldingAccount(o.rc.Authority, o.rc.Mint, o.rc.TokenProgram)
	if err != nil {
		return src, fmt.Errorf("%w: derive: %v", domain.ErrSourceAccount, err)
	}
	src.Holding = holding

	exists, err := o.ledger.AccountExists(ctx, holding)
	if err != nil {
		return src, fmt.Errorf("%w: lookup %s: %v", domain.ErrSourceAccount, holding, err)
	}
	if exists {
		o.logger.Info("source holding account found", ports.Stringer("account", holding))
		return src, nil
	}

	env := o.builder.Setup(o.builder.SourceCreation(holding))
	out := o.submitter.Submit(context.WithoutCancel(ctx), env, o.keyring, o.rc.Submit)
	switch {
	case out.Confirmed():
		src.HoldingCreated = true
		o.logger.Info("source holding account created",
			ports.Stringer("account", holding),
			ports.Stringer("signature", out.Signature),
		)
		return src, nil
	case out.Kind == domain.KindAccountAlreadyExists:
		o.logger.Info("source holding account created concurrently", ports.Stringer("account", holding))
		return src, nil
	}
	if out.Kind == domain.KindInsufficientFunds {
		return src, fmt.Errorf("%w: create %s: %w: %s", domain.ErrSourceAccount, holding, domain.ErrInsufficientFunds, out.Detail)
	}
	return src, fmt.Errorf("%w: create %s: %s: %s", domain.ErrSourceAccount, holding, out.Kind, out.Detail)
}

// ensurePool registers the mint's pool unless it already exists.
func (o *Orchestrator) ensurePool(ctx context.Context, src *domain.SourceState) error {
	pool, err := o.deriver.PoolAccount(o.rc.Mint)
	if err != nil {
		return fmt.Errorf("derive pool: %w", err)
	}
	src.Pool = pool

	exists, err := o.ledger.AccountExists(ctx, pool)
	if err != nil {
		return fmt.Errorf("lookup pool %s: %w", pool, err)
	}
	if exists {
		src.PoolRegistered = true
		o.logger.Info("pool already registered", ports.Stringer("pool", pool))
		return nil
	}

	env := o.builder.Setup(o.builder.PoolRegistration(pool))
	out := o.submitter.Submit(context.WithoutCancel(ctx), env, o.keyring, o.rc.Submit)
	switch {
	case out.Confirmed():
		src.PoolRegistered = true
		src.PoolCreated = true
		o.logger.Info("pool registered",
			ports.Stringer("pool", pool),
			ports.Stringer("signature", out.Signature),
		)
		return nil
	case out.Kind == domain.KindAccountAlreadyExists:
		src.PoolRegistered = true
		o.logger.Info("pool registered concurrently", ports.Stringer("pool", pool))
		return nil
	}
	return fmt.Errorf("register pool %s: %s: %s", pool, out.Kind, out.Detail)
}

// processChunk resolves, builds and submits ch, retrying Timeout and
// TransientNetworkError outcomes up to ChunkRetries times. Submission runs
// on a context detached from cancellation; only the retry backoff observes
// ctx.
func (o *Orchestrator) processChunk(ctx context.Context, ch domain.Chunk, src domain.SourceState) domain.ChunkOutcome {
	subCtx := context.WithoutCancel(ctx)
	bo := newBackoff(o.rc.RetryInitial, o.rc.RetryMax)

	var out domain.Outcome
	var resolutions []domain.Resolution
	attempts := 0
	var lastSig domain.Signature
	for try := 0; ; try++ {
		if try > 0 && !lastSig.IsZero() && o.landed(subCtx, lastSig) {
			o.logger.Info("previous submission landed late",
				ports.Int("chunk", ch.Index),
				ports.Stringer("signature", lastSig),
			)
			out = domain.Outcome{Signature: lastSig}
			resolutions = nil
			break
		}

		out, resolutions = o.attempt(subCtx, ch, src)
		attempts += max(out.Attempts, 1)
		if o.emitter != nil {
			o.emitter.OnSubmitAttempt(ch.Index, out.Kind)
		}
		if out.Confirmed() || !out.Kind.Retryable() || try >= o.rc.ChunkRetries {
			break
		}

		o.logger.Warn("chunk submission failed, retrying",
			ports.Int("chunk", ch.Index),
			ports.Int("try", try+1),
			ports.Stringer("kind", out.Kind),
			ports.Duration("backoff", bo.Current()),
			ports.String("detail", out.Detail),
		)
		if !out.Signature.IsZero() {
			lastSig = out.Signature
		}
		if err := bo.Sleep(ctx); err != nil {
			break
		}
	}

	if out.RaceLost {
		domain.LoseRace(resolutions)
	}
	co := domain.ChunkOutcome{
		Index:     ch.Index,
		Size:      ch.Size(),
		Status:    domain.ChunkConfirmed,
		Signature: out.Signature,
		Kind:      out.Kind,
		Attempts:  attempts,
		RaceLost:  out.RaceLost,
		Detail:    out.Detail,
	}
	if !out.Confirmed() {
		co.Status = domain.ChunkFailed
		o.logger.Error("chunk failed",
			ports.Int("chunk", ch.Index),
			ports.Stringer("kind", out.Kind),
			ports.Int("attempts", attempts),
			ports.String("detail", out.Detail),
		)
	} else {
		co.AccountsCreated = domain.CountTag(resolutions, domain.Created)
		o.logger.Info("chunk confirmed",
			ports.Int("chunk", ch.Index),
			ports.Int("entries", ch.Size()),
			ports.Stringer("signature", out.Signature),
			ports.Int("accounts_created", co.AccountsCreated),
			ports.Int("race_lost", domain.CountTag(resolutions, domain.RaceLost)),
		)
	}
	return co
}

// attempt performs one resolve, build and submit cycle.
func (o *Orchestrator) attempt(ctx context.Context, ch domain.Chunk, src domain.SourceState) (domain.Outcome, []domain.Resolution) {
	var resolutions []domain.Resolution
	if o.rc.Mode.CreatesAccounts() {
		var err error
		resolutions, err = o.resolver.ResolveChunk(ctx, o.rc, ch)
		if err != nil {
			return failedOutcome(err), nil
		}
	}
	env, err := o.builder.Build(ch, resolutions, src)
	if err != nil {
		out := failedOutcome(err)
		if errors.Is(err, domain.ErrEnvelopeTooLarge) || errors.Is(err, domain.ErrInvalidInput) {
			out.Kind = domain.KindUnclassified
		}
		return out, resolutions
	}
	return o.submitter.Submit(ctx, env, o.keyring, o.rc.Submit), resolutions
}

func (o *Orchestrator) landed(ctx context.Context, sig domain.Signature) bool {
	st, err := o.submitter.Status(ctx, sig)
	if err != nil {
		return false
	}
	return st.Reached(o.rc.Submit.TargetCommitment)
}

func (o *Orchestrator) record(report *domain.Report, ch domain.Chunk, co domain.ChunkOutcome) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, co)
	o.mu.Unlock()

	if co.Status == domain.ChunkConfirmed {
		report.Succeeded += ch.Size()
		for _, e := range ch.Entries {
			if e.Direction == domain.Credit {
				report.Distributed = report.Distributed.Add(e.Amount)
			}
		}
	} else {
		for _, e := range ch.Entries {
			report.Failed = append(report.Failed, domain.FailedEntry{Entry: e, Kind: co.Kind, Reason: co.Detail})
		}
	}
	if o.emitter != nil {
		o.emitter.OnChunkOutcome(co)
	}
}

func (o *Orchestrator) notAttempted(report *domain.Report, rest []domain.Chunk) {
	for _, ch := range rest {
		co := domain.ChunkOutcome{Index: ch.Index, Size: ch.Size(), Status: domain.ChunkNotAttempted}
		o.mu.Lock()
		o.outcomes = append(o.outcomes, co)
		o.mu.Unlock()
		report.NotAttempted = append(report.NotAttempted, ch.Entries...)
		if o.emitter != nil {
			o.emitter.OnChunkOutcome(co)
		}
	}
}

func failedOutcome(err error) domain.Outcome {
	kind := Classify(err)
	if kind == domain.KindNone {
		kind = domain.KindUnclassified
	}
	return domain.Outcome{Kind: kind, Detail: err.Error()}
}
