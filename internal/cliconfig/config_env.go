package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (DROPSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("rpc-url", os.Getenv("DROPSHIP_RPC_URL"), &cfg.RPCURL)
	s.setString("commitment", os.Getenv("DROPSHIP_COMMITMENT"), &cfg.Commitment)
	s.setString("mint", os.Getenv("DROPSHIP_MINT"), &cfg.Mint)
	s.setString("token-program", os.Getenv("DROPSHIP_TOKEN_PROGRAM"), &cfg.TokenProgram)
	s.setString("mode", os.Getenv("DROPSHIP_MODE"), &cfg.Mode)
	s.setString("strategy", os.Getenv("DROPSHIP_STRATEGY"), &cfg.Strategy)
	s.setString("fee-payer", os.Getenv("DROPSHIP_FEE_PAYER"), &cfg.FeePayerKey)
	s.setString("authority", os.Getenv("DROPSHIP_AUTHORITY"), &cfg.AuthorityKey)
	s.setString("recipients", os.Getenv("DROPSHIP_RECIPIENTS"), &cfg.Recipients)
	s.setString("postgres-dsn", os.Getenv("DROPSHIP_POSTGRES_DSN"), &cfg.PostgresDSN)
	s.setString("snapshot-table", os.Getenv("DROPSHIP_SNAPSHOT_TABLE"), &cfg.SnapshotTable)
	s.setString("snapshot-test-table", os.Getenv("DROPSHIP_SNAPSHOT_TEST_TABLE"), &cfg.SnapshotTestTable)
	s.setString("date", os.Getenv("DROPSHIP_DATE"), &cfg.Date)
	s.setString("claim-program", os.Getenv("DROPSHIP_CLAIM_PROGRAM"), &cfg.ClaimProgram)
	s.setString("pool-program", os.Getenv("DROPSHIP_POOL_PROGRAM"), &cfg.PoolProgram)
	s.setString("lookup-tables", os.Getenv("DROPSHIP_LOOKUP_TABLES"), &cfg.LookupTables)
	s.setString("report-dir", os.Getenv("DROPSHIP_REPORT_DIR"), &cfg.ReportDir)
	s.setString("report-webhook", os.Getenv("DROPSHIP_REPORT_WEBHOOK"), &cfg.ReportWebhook)
	s.setString("report-webhook-key", os.Getenv("DROPSHIP_REPORT_WEBHOOK_KEY"), &cfg.ReportWebhookKey)
	s.setString("metrics-addr", os.Getenv("DROPSHIP_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", os.Getenv("DROPSHIP_LOG_LEVEL"), &cfg.LogLevel)

	// Never a flag: mnemonic passphrases stay out of shell history.
	s.setString("", os.Getenv("DROPSHIP_MNEMONIC_PASSPHRASE"), &cfg.Passphrase)

	if err := s.setFloatFromString("rps", os.Getenv("DROPSHIP_RPS"), &cfg.RequestsPerSecond); err != nil {
		return err
	}

	ints := []struct {
		flag, env string
		dst       *int
	}{
		{"decimals", "DROPSHIP_DECIMALS", &cfg.Decimals},
		{"max-per-envelope", "DROPSHIP_MAX_PER_ENVELOPE", &cfg.MaxPerEnvelope},
		{"max-per-sub", "DROPSHIP_MAX_PER_SUB_DIRECTIVE", &cfg.MaxPerSub},
		{"max-directives", "DROPSHIP_MAX_DIRECTIVES", &cfg.MaxDirectives},
		{"cu-limit", "DROPSHIP_COMPUTE_UNIT_LIMIT", &cfg.UnitLimit},
		{"cu-price", "DROPSHIP_COMPUTE_UNIT_PRICE", &cfg.UnitPrice},
		{"max-retries", "DROPSHIP_MAX_RETRIES", &cfg.MaxRetries},
		{"chunk-retries", "DROPSHIP_CHUNK_RETRIES", &cfg.ChunkRetries},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, os.Getenv(i.env), i.dst); err != nil {
			return err
		}
	}

	if err := s.setDuration("confirm-timeout", os.Getenv("DROPSHIP_CONFIRM_TIMEOUT"), &cfg.ConfirmTimeout); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("DROPSHIP_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("pacing", os.Getenv("DROPSHIP_PACING"), &cfg.Pacing); err != nil {
		return err
	}

	s.setBoolFromString("test", os.Getenv("DROPSHIP_TEST_MODE"), &cfg.TestMode)
	s.setBoolFromString("skip-preflight", os.Getenv("DROPSHIP_SKIP_PREFLIGHT"), &cfg.SkipPreflight)
	s.setBoolFromString("idempotent-create", os.Getenv("DROPSHIP_IDEMPOTENT_CREATE"), &cfg.IdempotentCreate)
	s.setBoolFromString("register-pool", os.Getenv("DROPSHIP_REGISTER_POOL"), &cfg.RegisterPool)
	s.setBoolFromString("log-json", os.Getenv("DROPSHIP_LOG_JSON"), &cfg.LogJSON)

	return nil
}
