package cliconfig

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"DROPSHIP_RPC_URL":           "http://localhost:8899",
				"DROPSHIP_MINT":              "mint",
				"DROPSHIP_MODE":              "compress",
				"DROPSHIP_RPS":               "2.5",
				"DROPSHIP_DECIMALS":          "6",
				"DROPSHIP_MAX_RETRIES":       "0",
				"DROPSHIP_CONFIRM_TIMEOUT":   "30s",
				"DROPSHIP_SKIP_PREFLIGHT":    "1",
				"DROPSHIP_IDEMPOTENT_CREATE": "false",
				"DROPSHIP_LOOKUP_TABLES":     "a,b",
			},
			changed: map[string]bool{},
			initial: Config{MaxRetries: 5, IdempotentCreate: true},
			expected: Config{
				RPCURL:            "http://localhost:8899",
				Mint:              "mint",
				Mode:              "compress",
				RequestsPerSecond: 2.5,
				Decimals:          6,
				MaxRetries:        0,
				ConfirmTimeout:    30 * time.Second,
				SkipPreflight:     true,
				IdempotentCreate:  false,
				LookupTables:      "a,b",
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"DROPSHIP_MINT":     "env-mint",
				"DROPSHIP_PACING":   "5s",
				"DROPSHIP_DECIMALS": "9",
			},
			changed:  map[string]bool{"mint": true, "decimals": true},
			initial:  Config{Mint: "flag-mint", Decimals: 6},
			expected: Config{Mint: "flag-mint", Decimals: 6, Pacing: 5 * time.Second},
		},
		{
			name: "report webhook",
			envVars: map[string]string{
				"DROPSHIP_REPORT_WEBHOOK":     "https://hooks.example.com/runs",
				"DROPSHIP_REPORT_WEBHOOK_KEY": "k",
			},
			changed:  map[string]bool{},
			expected: Config{ReportWebhook: "https://hooks.example.com/runs", ReportWebhookKey: "k"},
		},
		{
			name:     "passphrase is env only",
			envVars:  map[string]string{"DROPSHIP_MNEMONIC_PASSPHRASE": "hunter2"},
			changed:  map[string]bool{},
			expected: Config{Passphrase: "hunter2"},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"DROPSHIP_POLL_INTERVAL": "not-a-duration"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"DROPSHIP_CHUNK_RETRIES": "many"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid float",
			envVars: map[string]string{"DROPSHIP_RPS": "fast"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)
			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, cfg); diff != "" {
				t.Errorf("ApplyEnvConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Precedence order: flags > env > file > defaults.
func TestConfigPrecedence(t *testing.T) {
	retries := 7
	fileConf := FileConfig{
		Mint:         "file-mint",
		Mode:         "claim",
		Strategy:     "versioned",
		ChunkRetries: &retries,
	}

	t.Setenv("DROPSHIP_MODE", "compress")
	t.Setenv("DROPSHIP_STRATEGY", "legacy")

	changed := map[string]bool{"strategy": true}
	cfg := DefaultConfig()
	cfg.Strategy = "versioned"

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.Strategy != "versioned" {
		t.Errorf("Strategy = %v, want versioned (flag should win)", cfg.Strategy)
	}
	if cfg.Mode != "compress" {
		t.Errorf("Mode = %v, want compress (env should override file)", cfg.Mode)
	}
	if cfg.Mint != "file-mint" {
		t.Errorf("Mint = %v, want file-mint (file should set)", cfg.Mint)
	}
	if cfg.ChunkRetries != 7 {
		t.Errorf("ChunkRetries = %v, want 7 (file should set)", cfg.ChunkRetries)
	}
	if cfg.MaxPerEnvelope != 0 {
		t.Errorf("MaxPerEnvelope = %v, want default 0", cfg.MaxPerEnvelope)
	}
}
