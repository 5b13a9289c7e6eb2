package dropship

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dropship/internal/adapters/solana"
	"github.com/bft-labs/dropship/internal/domain"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// fakeLedger confirms everything it is sent. Every account exists.
type fakeLedger struct {
	mu        sync.Mutex
	mintCalls int
	sent      int
}

func (l *fakeLedger) AccountExists(ctx context.Context, addr domain.Address) (bool, error) {
	return true, nil
}

func (l *fakeLedger) LatestBlockhash(ctx context.Context, c domain.Commitment) (domain.Blockhash, error) {
	return domain.Blockhash{1}, nil
}

func (l *fakeLedger) SendEnvelope(ctx context.Context, s domain.SignedEnvelope, opts domain.SendOptions) (domain.Signature, error) {
	l.mu.Lock()
	l.sent++
	l.mu.Unlock()
	return s.ID(), nil
}

func (l *fakeLedger) SignatureStatus(ctx context.Context, sig domain.Signature) (domain.SignatureStatus, error) {
	return domain.SignatureStatus{Found: true, Commitment: domain.CommitmentFinalized}, nil
}

func (l *fakeLedger) MintInfo(ctx context.Context, mint domain.Address) (domain.MintInfo, error) {
	l.mu.Lock()
	l.mintCalls++
	l.mu.Unlock()
	return domain.MintInfo{TokenProgram: domain.Address(sha256.Sum256([]byte("token"))), Decimals: 6}, nil
}

// bareLedger hides MintInfo.
type bareLedger struct{ inner *fakeLedger }

func (b bareLedger) AccountExists(ctx context.Context, a domain.Address) (bool, error) {
	return b.inner.AccountExists(ctx, a)
}

func (b bareLedger) LatestBlockhash(ctx context.Context, c domain.Commitment) (domain.Blockhash, error) {
	return b.inner.LatestBlockhash(ctx, c)
}

func (b bareLedger) SendEnvelope(ctx context.Context, s domain.SignedEnvelope, o domain.SendOptions) (domain.Signature, error) {
	return b.inner.SendEnvelope(ctx, s, o)
}

func (b bareLedger) SignatureStatus(ctx context.Context, sig domain.Signature) (domain.SignatureStatus, error) {
	return b.inner.SignatureStatus(ctx, sig)
}

type fakeCompiler struct{}

func (fakeCompiler) Compile(env domain.Envelope, hash domain.Blockhash, versioned bool) (domain.CompiledEnvelope, error) {
	msg := []byte(fmt.Sprintf("chunk=%d n=%d", env.ChunkIndex, env.Count()))
	return domain.CompiledEnvelope{Message: msg, Signers: env.Signers, Versioned: versioned, Blockhash: hash}, nil
}

type listSource []domain.RawEntry

func (s listSource) Fetch(ctx context.Context, date string, testMode bool) ([]domain.RawEntry, error) {
	return s, nil
}

type memReports struct {
	mu      sync.Mutex
	reports []domain.Report
}

func (m *memReports) Save(ctx context.Context, r domain.Report) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return "mem://" + r.RunID, nil
}

type memNotifier struct {
	mu    sync.Mutex
	runs  []string
	fails bool
}

func (m *memNotifier) Notify(ctx context.Context, r domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r.RunID)
	if m.fails {
		return errors.New("webhook down")
	}
	return nil
}

func recipients(n int) listSource {
	out := make(listSource, n)
	for i := range out {
		a := domain.Address(sha256.Sum256([]byte(fmt.Sprintf("recipient-%d", i))))
		out[i] = domain.RawEntry{Recipient: a.String(), Amount: decimal.NewFromInt(int64(i + 1))}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Mint = testMint
	cfg.FeePayer = ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	cfg.Pacing = 0
	cfg.PollInterval = time.Millisecond
	cfg.ReportDir = ""
	return cfg
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mint", func(c *Config) { c.Mint = "nope" }},
		{"no fee payer", func(c *Config) { c.FeePayer = nil; c.Authority = nil }},
		{"bad commitment", func(c *Config) { c.Commitment = "eventually" }},
		{"bad mode", func(c *Config) { c.Mode = "airdrop" }},
		{"bad strategy", func(c *Config) { c.Strategy = "yolo" }},
		{"claim without program", func(c *Config) { c.Mode = "claim" }},
		{"compress without program", func(c *Config) { c.Mode = "compress" }},
		{"bad lookup table", func(c *Config) { c.LookupTables = []string{"x"} }},
		{"bad token program", func(c *Config) { c.TokenProgram = "0" }},
		{"bad report webhook", func(c *Config) { c.ReportWebhook = "ftp://example.com/hook" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDropship_Run(t *testing.T) {
	ledger := &fakeLedger{}
	reports := &memReports{}
	d, err := New(testConfig(),
		WithLedger(ledger),
		WithCompiler(fakeCompiler{}),
		WithRecipientSource(recipients(20)),
		WithReportRepository(reports),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		report, err := d.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() #%d error = %v", i, err)
		}
		if report.Succeeded != 20 || len(report.Failed) != 0 {
			t.Errorf("Run() #%d succeeded = %d failed = %d, want 20/0", i, report.Succeeded, len(report.Failed))
		}
		if d.LastRunID() != report.RunID {
			t.Errorf("LastRunID() = %q, want %q", d.LastRunID(), report.RunID)
		}
	}

	if ledger.mintCalls != 1 {
		t.Errorf("MintInfo called %d times, want 1 (cached)", ledger.mintCalls)
	}
	if ledger.sent != 6 {
		t.Errorf("sent %d envelopes, want 6 (three chunks per run)", ledger.sent)
	}
	if len(reports.reports) != 2 || reports.reports[0].RunID == reports.reports[1].RunID {
		t.Errorf("saved reports = %d, want two distinct runs", len(reports.reports))
	}
}

func TestDropship_RunNotifies(t *testing.T) {
	for _, fails := range []bool{false, true} {
		notifier := &memNotifier{fails: fails}
		d, err := New(testConfig(),
			WithLedger(&fakeLedger{}),
			WithCompiler(fakeCompiler{}),
			WithRecipientSource(recipients(3)),
			WithReportNotifier(notifier),
		)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		report, err := d.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v (notifier failing: %v)", err, fails)
		}
		if len(notifier.runs) != 1 || notifier.runs[0] != report.RunID {
			t.Errorf("notified runs = %v, want [%s]", notifier.runs, report.RunID)
		}
	}
}

func TestDropship_RunNeedsMintMetadata(t *testing.T) {
	d, err := New(testConfig(),
		WithLedger(bareLedger{inner: &fakeLedger{}}),
		WithCompiler(fakeCompiler{}),
		WithRecipientSource(recipients(1)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := d.Run(context.Background()); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Run() error = %v, want ErrInvalidConfig", err)
	}

	cfg := testConfig()
	cfg.TokenProgram = testMint
	cfg.Decimals = 0
	d, err = New(cfg,
		WithLedger(bareLedger{inner: &fakeLedger{}}),
		WithCompiler(fakeCompiler{}),
		WithRecipientSource(recipients(1)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := d.Run(context.Background()); err != nil {
		t.Errorf("Run() with configured mint metadata error = %v", err)
	}
}

func TestDropship_RunWithoutSource(t *testing.T) {
	d, err := New(testConfig(), WithLedger(&fakeLedger{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := d.Run(context.Background()); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Run() error = %v, want ErrInvalidConfig", err)
	}
}

func TestDropship_Plan(t *testing.T) {
	cfg := testConfig()
	d, err := New(cfg, WithLedger(&fakeLedger{}), WithRecipientSource(recipients(20)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := d.Plan(context.Background()); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Plan() without decimals error = %v, want ErrInvalidConfig", err)
	}

	cfg.Decimals = 6
	d, err = New(cfg, WithLedger(&fakeLedger{}), WithRecipientSource(recipients(20)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	plan, err := d.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Total != 20 || len(plan.Chunks) != 3 {
		t.Fatalf("Plan() total = %d chunks = %d, want 20/3", plan.Total, len(plan.Chunks))
	}
	for i, want := range []int{8, 8, 4} {
		c := plan.Chunks[i]
		if c.Entries != want {
			t.Errorf("chunk %d entries = %d, want %d", i, c.Entries, want)
		}
		if c.MaxBytes == 0 || c.MaxBytes > solana.PacketLimit || c.OverPacket {
			t.Errorf("chunk %d = %d bytes (over packet: %v), want within %d", i, c.MaxBytes, c.OverPacket, solana.PacketLimit)
		}
	}

	cfg.MaxPerEnvelope = 12
	d, err = New(cfg, WithLedger(&fakeLedger{}), WithRecipientSource(recipients(20)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	plan, err = d.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() with 12 per envelope error = %v", err)
	}
	if c := plan.Chunks[0]; !c.OverPacket || c.MaxBytes <= solana.PacketLimit {
		t.Errorf("chunk of 12 = %d bytes (over packet: %v), want over %d", c.MaxBytes, c.OverPacket, solana.PacketLimit)
	}
	if !plan.Amount.Equal(decimal.NewFromInt(210)) {
		t.Errorf("Plan() amount = %s, want 210", plan.Amount)
	}
}

// recordingPlugin runs its source once on initialization.
type recordingPlugin struct {
	name   string
	events *[]string
	source RecipientSource
	report Report
	err    error
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) Initialize(ctx context.Context, cfg PluginConfig) error {
	*p.events = append(*p.events, "init "+p.name)
	if p.source != nil {
		p.report, p.err = cfg.Run(ctx, p.source)
	}
	return nil
}

func (p *recordingPlugin) Shutdown(ctx context.Context) error {
	*p.events = append(*p.events, "shutdown "+p.name)
	return nil
}

func TestDropship_Serve(t *testing.T) {
	var events []string
	first := &recordingPlugin{name: "first", events: &events, source: recipients(3)}
	second := &recordingPlugin{name: "second", events: &events}

	d, err := New(testConfig(),
		WithLedger(&fakeLedger{}),
		WithCompiler(fakeCompiler{}),
		WithPlugin(first),
		WithPlugin(second),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	want := []string{"init first", "init second", "shutdown second", "shutdown first"}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("plugin events = %v, want %v", events, want)
	}
	if first.err != nil || first.report.Succeeded != 3 {
		t.Errorf("plugin run = %d succeeded, err %v; want 3, nil", first.report.Succeeded, first.err)
	}
}

func TestIsVersionCompatible(t *testing.T) {
	tests := []struct {
		version, min string
		want         bool
	}{
		{"1.1.0", "1.0.0", true},
		{"1.0.0", "1.0.0", true},
		{"1.0.0", "1.0.1", false},
		{"2.0.0", "1.9.9", true},
		{"0.9.0", "1.0.0", false},
	}
	for _, tt := range tests {
		if got := isVersionCompatible(tt.version, tt.min); got != tt.want {
			t.Errorf("isVersionCompatible(%q, %q) = %v, want %v", tt.version, tt.min, got, tt.want)
		}
	}
}
