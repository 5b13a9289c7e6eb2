package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
// Integer fields are pointers so an explicit zero (no retries) can be told
// apart from an absent key.
type FileConfig struct {
	RPCURL            string  `toml:"rpc_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Commitment        string  `toml:"commitment"`

	Mint         string `toml:"mint"`
	TokenProgram string `toml:"token_program"`
	Decimals     *int   `toml:"decimals"`
	Mode         string `toml:"mode"`
	Strategy     string `toml:"strategy"`

	FeePayerKey  string `toml:"fee_payer"`
	AuthorityKey string `toml:"authority"`

	Recipients        string `toml:"recipients"`
	PostgresDSN       string `toml:"postgres_dsn"`
	SnapshotTable     string `toml:"snapshot_table"`
	SnapshotTestTable string `toml:"snapshot_test_table"`
	TestMode          *bool  `toml:"test_mode"`

	ClaimProgram string `toml:"claim_program"`
	PoolProgram  string `toml:"pool_program"`
	LookupTables string `toml:"lookup_tables"`

	MaxPerEnvelope *int `toml:"max_per_envelope"`
	MaxPerSub      *int `toml:"max_per_sub_directive"`
	MaxDirectives  *int `toml:"max_directives"`
	UnitLimit      *int `toml:"compute_unit_limit"`
	UnitPrice      *int `toml:"compute_unit_price"`

	SkipPreflight  *bool  `toml:"skip_preflight"`
	MaxRetries     *int   `toml:"max_retries"`
	ConfirmTimeout string `toml:"confirm_timeout"`
	PollInterval   string `toml:"poll_interval"`
	ChunkRetries   *int   `toml:"chunk_retries"`
	Pacing         string `toml:"pacing"`

	IdempotentCreate *bool `toml:"idempotent_create"`
	RegisterPool     *bool `toml:"register_pool"`

	ReportDir        string `toml:"report_dir"`
	ReportWebhook    string `toml:"report_webhook"`
	ReportWebhookKey string `toml:"report_webhook_key"`
	MetricsAddr      string `toml:"metrics_addr"`
	LogLevel         string `toml:"log_level"`
	LogJSON          *bool  `toml:"log_json"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.dropship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".dropship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("rpc-url", fc.RPCURL, &cfg.RPCURL)
	s.setFloat("rps", fc.RequestsPerSecond, &cfg.RequestsPerSecond)
	s.setString("commitment", fc.Commitment, &cfg.Commitment)

	s.setString("mint", fc.Mint, &cfg.Mint)
	s.setString("token-program", fc.TokenProgram, &cfg.TokenProgram)
	s.setInt("decimals", fc.Decimals, &cfg.Decimals)
	s.setString("mode", fc.Mode, &cfg.Mode)
	s.setString("strategy", fc.Strategy, &cfg.Strategy)

	s.setString("fee-payer", fc.FeePayerKey, &cfg.FeePayerKey)
	s.setString("authority", fc.AuthorityKey, &cfg.AuthorityKey)

	s.setString("recipients", fc.Recipients, &cfg.Recipients)
	s.setString("postgres-dsn", fc.PostgresDSN, &cfg.PostgresDSN)
	s.setString("snapshot-table", fc.SnapshotTable, &cfg.SnapshotTable)
	s.setString("snapshot-test-table", fc.SnapshotTestTable, &cfg.SnapshotTestTable)
	s.setBool("test", fc.TestMode, &cfg.TestMode)

	s.setString("claim-program", fc.ClaimProgram, &cfg.ClaimProgram)
	s.setString("pool-program", fc.PoolProgram, &cfg.PoolProgram)
	s.setString("lookup-tables", fc.LookupTables, &cfg.LookupTables)

	s.setInt("max-per-envelope", fc.MaxPerEnvelope, &cfg.MaxPerEnvelope)
	s.setInt("max-per-sub", fc.MaxPerSub, &cfg.MaxPerSub)
	s.setInt("max-directives", fc.MaxDirectives, &cfg.MaxDirectives)
	s.setInt("cu-limit", fc.UnitLimit, &cfg.UnitLimit)
	s.setInt("cu-price", fc.UnitPrice, &cfg.UnitPrice)

	s.setBool("skip-preflight", fc.SkipPreflight, &cfg.SkipPreflight)
	s.setInt("max-retries", fc.MaxRetries, &cfg.MaxRetries)
	s.setInt("chunk-retries", fc.ChunkRetries, &cfg.ChunkRetries)
	if err := s.setDuration("confirm-timeout", fc.ConfirmTimeout, &cfg.ConfirmTimeout); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("pacing", fc.Pacing, &cfg.Pacing); err != nil {
		return err
	}

	s.setBool("idempotent-create", fc.IdempotentCreate, &cfg.IdempotentCreate)
	s.setBool("register-pool", fc.RegisterPool, &cfg.RegisterPool)

	s.setString("report-dir", fc.ReportDir, &cfg.ReportDir)
	s.setString("report-webhook", fc.ReportWebhook, &cfg.ReportWebhook)
	s.setString("report-webhook-key", fc.ReportWebhookKey, &cfg.ReportWebhookKey)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setBool("log-json", fc.LogJSON, &cfg.LogJSON)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
