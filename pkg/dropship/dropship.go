package dropship

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/dropship/internal/adapters/fs"
	httpadapter "github.com/bft-labs/dropship/internal/adapters/http"
	"github.com/bft-labs/dropship/internal/adapters/solana"
	"github.com/bft-labs/dropship/internal/app"
	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
	"github.com/bft-labs/dropship/pkg/log"
)

// Plan is the offline chunk layout of a run.
type Plan = app.Plan

// lookupTableReader is implemented by ledgers that can read address
// lookup tables.
type lookupTableReader interface {
	LookupTable(ctx context.Context, table domain.Address) ([]domain.Address, error)
}

// Dropship distributes a token balance to a recipient list.
// Use New() to create an instance, then Run() for each distribution.
type Dropship struct {
	cfg    Config
	opts   options
	logger ports.Logger

	mint         domain.Address
	claimProgram domain.Address
	poolProgram  domain.Address

	// runMu serializes runs; a source account must not be spent from
	// concurrently.
	runMu sync.Mutex

	mu       sync.Mutex
	mintInfo *domain.MintInfo
	compiler ports.Compiler
	lastRun  string
}

// New creates a Dropship with the given configuration.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Dropship, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	d := &Dropship{
		cfg:          cfg,
		logger:       logger,
		mint:         domain.MustParseAddress(cfg.Mint),
		claimProgram: optionalAddress(cfg.ClaimProgram),
		poolProgram:  optionalAddress(cfg.PoolProgram),
	}

	if cfg.TokenProgram != "" && cfg.Decimals >= 0 {
		d.mintInfo = &domain.MintInfo{
			TokenProgram: domain.MustParseAddress(cfg.TokenProgram),
			Decimals:     uint8(cfg.Decimals),
		}
	}

	if o.ledger == nil {
		commitment, _ := domain.ParseCommitment(cfg.Commitment)
		o.ledger = solana.NewClient(cfg.RPCURL,
			solana.WithRateLimit(cfg.RequestsPerSecond, int(cfg.RequestsPerSecond)+1),
			solana.WithCommitment(commitment),
			solana.WithHeaders(cfg.RPCHeaders),
			solana.WithLogger(logger),
		)
	}
	if o.deriver == nil {
		o.deriver = solana.NewDeriver(d.poolProgram)
	}
	if o.source == nil && cfg.RecipientsFile != "" {
		o.source = fs.NewFileSource(cfg.RecipientsFile)
	}
	if o.reports == nil && cfg.ReportDir != "" {
		o.reports = fs.NewReportFileRepository(cfg.ReportDir)
	}
	if o.notifier == nil && cfg.ReportWebhook != "" {
		o.notifier = httpadapter.NewNotifier(cfg.ReportWebhook, cfg.ReportWebhookKey, nil, logger)
	}
	d.compiler = o.compiler
	d.opts = o
	return d, nil
}

// Run distributes to the configured recipient source and stores the report.
//
// Chunk failures are recorded in the report; the error is non-nil only for
// run-level failures (see app.Orchestrator.Run). The report is returned in
// every case once the run has started.
func (d *Dropship) Run(ctx context.Context) (Report, error) {
	if d.opts.source == nil {
		return Report{}, fmt.Errorf("%w: no recipient source", domain.ErrInvalidConfig)
	}
	return d.RunSource(ctx, d.opts.source)
}

// RunSource is Run with an explicit recipient source.
func (d *Dropship) RunSource(ctx context.Context, source RecipientSource) (Report, error) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	rc, keyring, err := d.prepare(ctx)
	if err != nil {
		return Report{}, err
	}
	compiler, err := d.compilerFor(ctx)
	if err != nil {
		return Report{}, err
	}

	orch := app.NewOrchestrator(rc, app.OrchestratorDeps{
		Source:   source,
		Ledger:   d.opts.ledger,
		Compiler: compiler,
		Deriver:  d.opts.deriver,
		Keyring:  keyring,
		Logger:   d.logger,
		Emitter:  app.Emitters(d.opts.handlers),
	})
	d.mu.Lock()
	d.lastRun = orch.RunID()
	d.mu.Unlock()

	report, runErr := orch.Run(ctx)
	if d.opts.reports != nil && report.RunID != "" {
		path, err := d.opts.reports.Save(context.WithoutCancel(ctx), report)
		if err != nil {
			d.logger.Error("failed to save report", ports.String("run_id", report.RunID), ports.Err(err))
			runErr = errors.Join(runErr, fmt.Errorf("save report: %w", err))
		} else {
			d.logger.Info("report saved", ports.String("path", path))
		}
	}

	if d.opts.notifier != nil && report.RunID != "" {
		if err := d.opts.notifier.Notify(context.WithoutCancel(ctx), report); err != nil {
			d.logger.Warn("failed to deliver report", ports.String("run_id", report.RunID), ports.Err(err))
		}
	}

	s := report.Summary()
	d.logger.Info("run finished",
		ports.String("run_id", report.RunID),
		ports.Int("total", report.Total),
		ports.Int("succeeded", s.Succeeded),
		ports.Int("failed", len(s.Failed)),
		ports.Int("skipped", s.Skipped),
		ports.Int("not_attempted", len(report.NotAttempted)),
		ports.String("halt_reason", report.HaltReason))
	return report, runErr
}

// Plan reads the recipient source and computes the chunk layout without
// touching the ledger. Decimals must be configured.
func (d *Dropship) Plan(ctx context.Context) (Plan, error) {
	if d.opts.source == nil {
		return Plan{}, fmt.Errorf("%w: no recipient source", domain.ErrInvalidConfig)
	}
	if d.cfg.Decimals < 0 {
		return Plan{}, fmt.Errorf("%w: planning requires decimals", domain.ErrInvalidConfig)
	}

	rc := d.runContext(domain.MintInfo{Decimals: uint8(d.cfg.Decimals)})
	keyring := d.keyring()

	raws, err := d.opts.source.Fetch(ctx, rc.Date, rc.TestMode)
	if err != nil {
		return Plan{}, fmt.Errorf("load recipients: %w", err)
	}
	entries, err := domain.NormalizeAll(raws, keyring.RecipientParser(rc.Mode.CoSigned()))
	if err != nil {
		return Plan{}, err
	}
	return app.PlanRun(rc, entries, &app.Sizer{Deriver: d.opts.deriver, Compiler: d.planCompiler()}, d.logger)
}

// planCompiler returns the configured compiler, or one without lookup
// tables so planning stays offline. Sizes measured without tables are an
// upper bound.
func (d *Dropship) planCompiler() ports.Compiler {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.compiler != nil {
		return d.compiler
	}
	return solana.NewCompiler(
		solana.WithClaimProgram(d.claimProgram),
		solana.WithPoolProgram(d.poolProgram),
	)
}

// LastRunID returns the identifier of the most recent run, if any.
func (d *Dropship) LastRunID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRun
}

// Serve initializes plugins and blocks until ctx is done, then shuts them
// down in reverse order.
func (d *Dropship) Serve(ctx context.Context) error {
	cfg := PluginConfig{Logger: d.logger, Run: d.RunSource}
	if _, ok := d.opts.reports.(*fs.ReportFileRepository); ok {
		cfg.ReportDir = d.cfg.ReportDir
	}

	started := make([]Plugin, 0, len(d.opts.plugins))
	var initErr error
	for _, p := range d.opts.plugins {
		if err := p.Initialize(ctx, cfg); err != nil {
			d.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			initErr = err
			break
		}
		d.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
		started = append(started, p)
	}

	if initErr == nil {
		<-ctx.Done()
	}

	shutdownCtx := context.WithoutCancel(ctx)
	for i := len(started) - 1; i >= 0; i-- {
		p := started[i]
		if err := p.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
		} else {
			d.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}
	return initErr
}

// prepare resolves mint metadata and builds the run context and keyring.
func (d *Dropship) prepare(ctx context.Context) (app.RunContext, *app.Keyring, error) {
	info, err := d.resolveMint(ctx)
	if err != nil {
		return app.RunContext{}, nil, err
	}
	return d.runContext(info), d.keyring(), nil
}

func (d *Dropship) resolveMint(ctx context.Context) (domain.MintInfo, error) {
	d.mu.Lock()
	cached := d.mintInfo
	d.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	inspector, ok := d.opts.ledger.(ports.MintInspector)
	if !ok {
		return domain.MintInfo{}, fmt.Errorf("%w: token program and decimals are required when the ledger cannot read mints", domain.ErrInvalidConfig)
	}
	info, err := inspector.MintInfo(ctx, d.mint)
	if err != nil {
		return domain.MintInfo{}, fmt.Errorf("read mint: %w", err)
	}
	if d.cfg.TokenProgram != "" {
		info.TokenProgram = domain.MustParseAddress(d.cfg.TokenProgram)
	}
	if d.cfg.Decimals >= 0 {
		info.Decimals = uint8(d.cfg.Decimals)
	}
	d.logger.Info("mint resolved",
		ports.Stringer("mint", d.mint),
		ports.Stringer("token_program", info.TokenProgram),
		ports.Int("decimals", int(info.Decimals)))

	d.mu.Lock()
	d.mintInfo = &info
	d.mu.Unlock()
	return info, nil
}

// compilerFor returns the configured compiler, building the default one
// (with lookup tables read from the ledger) on first use.
func (d *Dropship) compilerFor(ctx context.Context) (ports.Compiler, error) {
	d.mu.Lock()
	c := d.compiler
	d.mu.Unlock()
	if c != nil {
		return c, nil
	}

	opts := []solana.CompilerOption{
		solana.WithClaimProgram(d.claimProgram),
		solana.WithPoolProgram(d.poolProgram),
	}
	if len(d.cfg.LookupTables) > 0 && d.cfg.Strategy == string(app.StrategyVersioned) {
		reader, ok := d.opts.ledger.(lookupTableReader)
		if !ok {
			return nil, fmt.Errorf("%w: ledger cannot read lookup tables", domain.ErrInvalidConfig)
		}
		tables := make(map[domain.Address][]domain.Address, len(d.cfg.LookupTables))
		for _, t := range d.cfg.LookupTables {
			addr := domain.MustParseAddress(t)
			entries, err := reader.LookupTable(ctx, addr)
			if err != nil {
				return nil, fmt.Errorf("read lookup table: %w", err)
			}
			tables[addr] = entries
			d.logger.Info("lookup table loaded", ports.String("table", t), ports.Int("addresses", len(entries)))
		}
		opts = append(opts, solana.WithLookupTables(tables))
	}

	c = solana.NewCompiler(opts...)
	d.mu.Lock()
	d.compiler = c
	d.mu.Unlock()
	return c, nil
}

func (d *Dropship) runContext(info domain.MintInfo) app.RunContext {
	cfg := d.cfg
	commitment, _ := domain.ParseCommitment(cfg.Commitment)
	mode := app.Mode(cfg.Mode)
	return app.RunContext{
		Mint:         d.mint,
		TokenProgram: info.TokenProgram,
		Decimals:     info.Decimals,
		Mode:         mode,
		FeePayer:     app.AddressOf(cfg.FeePayer),
		Authority:    app.AddressOf(cfg.Authority),
		Budget:       app.Budget{UnitLimit: cfg.UnitLimit, UnitPrice: cfg.UnitPrice},
		Limits: app.Limits{
			MaxEntriesPerEnvelope:     cfg.MaxPerEnvelope,
			MaxEntriesPerSubDirective: cfg.MaxPerSub,
			MaxDirectives:             cfg.MaxDirectives,
		},
		Submit: app.SubmitOptions{
			Strategy:         app.Strategy(cfg.Strategy),
			SkipPreflight:    cfg.SkipPreflight,
			MaxRetries:       cfg.MaxRetries,
			TargetCommitment: commitment,
			ConfirmTimeout:   cfg.ConfirmTimeout,
			PollInterval:     cfg.PollInterval,
		},
		IdempotentCreate: cfg.IdempotentCreate,
		RegisterPool:     cfg.RegisterPool && mode == app.ModeCompress,
		Pacing:           cfg.Pacing,
		ChunkRetries:     cfg.ChunkRetries,
		RetryInitial:     cfg.RetryInitial,
		RetryMax:         cfg.RetryMax,
		Date:             cfg.Date,
		TestMode:         cfg.TestMode,
	}
}

// keyring returns a fresh keyring holding the custodial keys. Claim runs
// add recipient keys to it while loading.
func (d *Dropship) keyring() *app.Keyring {
	return app.NewKeyring(d.cfg.FeePayer, d.cfg.Authority)
}

func optionalAddress(s string) domain.Address {
	if s == "" {
		return domain.Address{}
	}
	return domain.MustParseAddress(s)
}
