package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/dropship/internal/adapters/metrics"
	"github.com/bft-labs/dropship/internal/adapters/postgres"
	"github.com/bft-labs/dropship/internal/cliconfig"
	"github.com/bft-labs/dropship/internal/ports"
	"github.com/bft-labs/dropship/pkg/dropship"
	logpkg "github.com/bft-labs/dropship/pkg/log"
	"github.com/bft-labs/dropship/plugins/reportcleanup"
	"github.com/bft-labs/dropship/plugins/spoolwatcher"
)

const helpDescription = `
Distribute a token balance to a list of recipients on Solana.

Highlights:
  - Splits the list into ledger-sized envelopes and submits them in order.
  - Creates missing holding accounts, skips zero amounts, retries transient failures.
  - Writes a report and a rerun list for everything that did not land.
  - Recipients come from a JSON, CSV or YAML file, or a postgres snapshot table.
`

var exampleUsage = strings.TrimSpace(`
  dropship --mint <mint> --fee-payer ~/.config/solana/id.json --recipients airdrop.csv
  dropship plan --mint <mint> --fee-payer ~/.config/solana/id.json --decimals 6 --recipients airdrop.csv
  dropship watch /var/spool/dropship --config $HOME/.dropship/config.toml
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return dropship.Version
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "dropship",
		Short:         "Bulk token distribution for Solana",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd, &cfg, cfgPath); err != nil {
			return err
		}
		return runOnce(cfg)
	}
	root.RunE = runCmd

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one distribution and write its report (default)",
		Args:  cobra.NoArgs,
		RunE:  runCmd,
	})

	root.AddCommand(&cobra.Command{
		Use:   "plan",
		Short: "Print the chunk layout of the recipient list without touching the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			return printPlan(cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "watch <dir>",
		Short: "Run a distribution for every recipient file dropped into dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.SpoolDir = args[0]
			if err := loadConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			return watch(cfg)
		},
	})

	f := root.PersistentFlags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.dropship/config.toml)")

	f.StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL, "ledger JSON-RPC endpoint")
	f.Float64Var(&cfg.RequestsPerSecond, "rps", cfg.RequestsPerSecond, "maximum RPC requests per second")
	f.StringVar(&cfg.Commitment, "commitment", cfg.Commitment, "target commitment: processed, confirmed or finalized")

	f.StringVar(&cfg.Mint, "mint", cfg.Mint, "mint address of the distributed token")
	f.StringVar(&cfg.TokenProgram, "token-program", cfg.TokenProgram, "token program (read from the mint when empty)")
	f.IntVar(&cfg.Decimals, "decimals", cfg.Decimals, "mint decimals (read from the mint when negative)")
	f.StringVar(&cfg.Mode, "mode", cfg.Mode, "distribution mode: transfer, claim or compress")
	f.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "envelope format: legacy or versioned")

	f.StringVar(&cfg.FeePayerKey, "fee-payer", cfg.FeePayerKey, "fee payer keyfile, base58 secret or mnemonic")
	f.StringVar(&cfg.AuthorityKey, "authority", cfg.AuthorityKey, "source authority keyfile, base58 secret or mnemonic (default: fee payer)")

	f.StringVar(&cfg.Recipients, "recipients", cfg.Recipients, "recipient file (.json, .csv, .yaml)")
	f.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "postgres DSN of the snapshot database")
	f.StringVar(&cfg.SnapshotTable, "snapshot-table", cfg.SnapshotTable, "snapshot table name")
	f.StringVar(&cfg.SnapshotTestTable, "snapshot-test-table", cfg.SnapshotTestTable, "snapshot table read in test mode")
	f.StringVar(&cfg.Date, "date", cfg.Date, "snapshot date filter")
	f.BoolVar(&cfg.TestMode, "test", cfg.TestMode, "read the test snapshot table")

	f.StringVar(&cfg.ClaimProgram, "claim-program", cfg.ClaimProgram, "claim program id (claim mode)")
	f.StringVar(&cfg.PoolProgram, "pool-program", cfg.PoolProgram, "compression pool program id (compress mode)")
	f.StringVar(&cfg.LookupTables, "lookup-tables", cfg.LookupTables, "comma-separated address lookup tables (versioned strategy)")

	f.IntVar(&cfg.MaxPerEnvelope, "max-per-envelope", cfg.MaxPerEnvelope, "entries per envelope (0 uses the mode default)")
	f.IntVar(&cfg.MaxPerSub, "max-per-sub", cfg.MaxPerSub, "entries per sub-directive")
	f.IntVar(&cfg.MaxDirectives, "max-directives", cfg.MaxDirectives, "directive ceiling per envelope")
	f.IntVar(&cfg.UnitLimit, "cu-limit", cfg.UnitLimit, "compute unit limit per envelope")
	f.IntVar(&cfg.UnitPrice, "cu-price", cfg.UnitPrice, "compute unit price in micro-lamports")

	f.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "skip preflight simulation")
	f.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "node-side resend attempts")
	f.DurationVar(&cfg.ConfirmTimeout, "confirm-timeout", cfg.ConfirmTimeout, "confirmation timeout per envelope")
	f.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "signature status poll interval")
	f.IntVar(&cfg.ChunkRetries, "chunk-retries", cfg.ChunkRetries, "retries of a chunk after a transient failure")
	f.DurationVar(&cfg.Pacing, "pacing", cfg.Pacing, "pause between chunks")

	f.BoolVar(&cfg.IdempotentCreate, "idempotent-create", cfg.IdempotentCreate, "use idempotent holding account creation")
	f.BoolVar(&cfg.RegisterPool, "register-pool", cfg.RegisterPool, "register the mint pool before compressing")

	f.StringVar(&cfg.ReportDir, "report-dir", cfg.ReportDir, "directory receiving reports and rerun lists")
	f.StringVar(&cfg.ReportWebhook, "report-webhook", cfg.ReportWebhook, "URL receiving every finished report")
	f.StringVar(&cfg.ReportWebhookKey, "report-webhook-key", cfg.ReportWebhookKey, "bearer token for the report webhook")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve prometheus metrics on this address")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	f.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "log in JSON instead of console format")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dropship:", err)
		os.Exit(1)
	}
}

// loadConfig applies file and environment settings under flags that were
// set explicitly, then validates.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	// DROPSHIP_* override the file but not explicit flags.
	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}

	return cfg.Validate()
}

// app bundles the long-lived pieces a command needs.
type app struct {
	logger  *logpkg.ZerologAdapter
	ds      *dropship.Dropship
	emitter *metrics.Emitter
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", ports.Err(err))
		}
	}
}

func build(ctx context.Context, cfg cliconfig.Config, extra ...dropship.Option) (*app, error) {
	base, err := logpkg.NewConsoleLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return nil, err
	}
	logger := base.With(logpkg.String("mint", cfg.Mint), logpkg.String("mode", cfg.Mode))

	feePayer, err := cliconfig.LoadSigner(cfg.FeePayerKey, cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("fee payer: %w", err)
	}
	authority, err := cliconfig.LoadSigner(cfg.AuthorityKey, cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}

	libCfg := dropship.Config{
		RPCURL:            cfg.RPCURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Commitment:        cfg.Commitment,
		Mint:              cfg.Mint,
		TokenProgram:      cfg.TokenProgram,
		Decimals:          cfg.Decimals,
		Mode:              cfg.Mode,
		Strategy:          cfg.Strategy,
		FeePayer:          feePayer,
		Authority:         authority,
		ClaimProgram:      cfg.ClaimProgram,
		PoolProgram:       cfg.PoolProgram,
		LookupTables:      cfg.LookupTableList(),
		MaxPerEnvelope:    cfg.MaxPerEnvelope,
		MaxPerSub:         cfg.MaxPerSub,
		MaxDirectives:     cfg.MaxDirectives,
		UnitLimit:         uint32(cfg.UnitLimit),
		UnitPrice:         uint64(cfg.UnitPrice),
		SkipPreflight:     cfg.SkipPreflight,
		MaxRetries:        cfg.MaxRetries,
		ConfirmTimeout:    cfg.ConfirmTimeout,
		PollInterval:      cfg.PollInterval,
		ChunkRetries:      cfg.ChunkRetries,
		Pacing:            cfg.Pacing,
		IdempotentCreate:  cfg.IdempotentCreate,
		RegisterPool:      cfg.RegisterPool,
		RecipientsFile:    cfg.Recipients,
		Date:              cfg.Date,
		TestMode:          cfg.TestMode,
		ReportDir:         cfg.ReportDir,
		ReportWebhook:     cfg.ReportWebhook,
		ReportWebhookKey:  cfg.ReportWebhookKey,
	}

	a := &app{logger: logger}
	opts := []dropship.Option{dropship.WithLogger(logger)}

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return postgres.Close(db) })

		src, err := postgres.NewSnapshotSource(db, cfg.SnapshotTable,
			postgres.WithTestTable(cfg.SnapshotTestTable),
			postgres.WithLogger(logger))
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, dropship.WithRecipientSource(src))
	}

	if cfg.MetricsAddr != "" {
		a.emitter = metrics.NewEmitter()
		opts = append(opts, dropship.WithEventHandler(a.emitter))
	}

	ds, err := dropship.New(libCfg, append(opts, extra...)...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create dropship: %w", err)
	}
	a.ds = ds
	return a, nil
}

// serveMetrics starts the metrics listener when one is configured.
func (a *app) serveMetrics(ctx context.Context, addr string) {
	if a.emitter == nil {
		return
	}
	go func() {
		if err := a.emitter.Serve(ctx, addr, a.logger); err != nil {
			a.logger.Error("metrics listener stopped", ports.Err(err))
		}
	}()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runOnce(cfg cliconfig.Config) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.serveMetrics(ctx, cfg.MetricsAddr)

	report, err := a.ds.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("run interrupted", ports.String("run_id", report.RunID))
	}
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 || len(report.NotAttempted) > 0 {
		return fmt.Errorf("run %s incomplete: %d failed, %d not attempted",
			report.RunID, len(report.Failed), len(report.NotAttempted))
	}
	return nil
}

func printPlan(cfg cliconfig.Config) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.ds.Plan(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func watch(cfg cliconfig.Config) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := build(ctx, cfg,
		spoolwatcher.WithSpoolWatcher(spoolwatcher.DefaultConfig(cfg.SpoolDir)),
		reportcleanup.WithDefaultReportCleanup(),
	)
	if err != nil {
		return err
	}
	defer a.Close()
	a.serveMetrics(ctx, cfg.MetricsAddr)

	a.logger.Info("watching spool directory", ports.String("dir", cfg.SpoolDir))
	if err := a.ds.Serve(ctx); err != nil {
		return err
	}
	a.logger.Info("received signal, stopped")
	return nil
}
