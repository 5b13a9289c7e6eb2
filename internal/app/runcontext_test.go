package app

import (
	"errors"
	"testing"

	"github.com/bft-labs/dropship/internal/domain"
)

func TestRunContext_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunContext)
		want   error
	}{
		{"valid", func(*RunContext) {}, nil},
		{"no mint", func(rc *RunContext) { rc.Mint = domain.Address{} }, domain.ErrInvalidConfig},
		{"no payer", func(rc *RunContext) { rc.FeePayer = domain.Address{} }, domain.ErrInvalidConfig},
		{"zero envelope limit", func(rc *RunContext) { rc.Limits.MaxEntriesPerEnvelope = 0 }, domain.ErrInvalidInput},
		{"ceiling too small", func(rc *RunContext) { rc.Limits.MaxDirectives = 2 }, domain.ErrInvalidInput},
		{"negative retries", func(rc *RunContext) { rc.ChunkRetries = -1 }, domain.ErrInvalidConfig},
		{"bad mode", func(rc *RunContext) { rc.Mode = "airdrop" }, domain.ErrInvalidConfig},
		{"bad strategy", func(rc *RunContext) { rc.Submit.Strategy = "v2" }, domain.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := testRunContext(ModeTransfer)
			tt.mutate(&rc)
			err := rc.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunContext_CustodialSigners(t *testing.T) {
	rc := testRunContext(ModeTransfer)
	if got := rc.CustodialSigners(); len(got) != 2 || got[0] != rc.FeePayer {
		t.Errorf("signers = %v", got)
	}
	rc.Authority = rc.FeePayer
	if got := rc.CustodialSigners(); len(got) != 1 {
		t.Errorf("shared key signers = %v", got)
	}
}

func TestMode(t *testing.T) {
	tests := []struct {
		mode                     Mode
		coSigned, debit, creates bool
	}{
		{ModeTransfer, false, false, true},
		{ModeClaim, true, true, true},
		{ModeCompress, false, false, false},
	}
	for _, tt := range tests {
		if tt.mode.CoSigned() != tt.coSigned || tt.mode.SupportsDebit() != tt.debit || tt.mode.CreatesAccounts() != tt.creates {
			t.Errorf("%s capabilities mismatch", tt.mode)
		}
	}
}
