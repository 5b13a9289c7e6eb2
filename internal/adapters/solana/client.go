package solana

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
	"github.com/bft-labs/dropship/pkg/log"
)

// Default client settings.
const (
	DefaultRequestsPerSecond = 10
	DefaultBreakerFailures   = 5
	DefaultBreakerTimeout    = 30 * time.Second
)

// mint account layout: decimals follow the authority option and supply.
const mintDecimalsOffset = 44

// Client implements the ledger ports over Solana JSON-RPC. Requests are
// throttled and guarded by a circuit breaker that opens on consecutive
// transport failures.
type Client struct {
	rpc        *rpc.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	commitment rpc.CommitmentType
	logger     ports.Logger
}

type clientConfig struct {
	rps             float64
	burst           int
	breakerFailures uint32
	breakerTimeout  time.Duration
	commitment      domain.Commitment
	headers         map[string]string
	httpClient      *http.Client
	logger          ports.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *clientConfig) {
		c.rps = rps
		c.burst = burst
	}
}

// WithBreaker sets how many consecutive transport failures open the
// breaker and how long it stays open.
func WithBreaker(failures uint32, timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.breakerFailures = failures
		c.breakerTimeout = timeout
	}
}

// WithCommitment sets the commitment used for reads.
func WithCommitment(cm domain.Commitment) ClientOption {
	return func(c *clientConfig) { c.commitment = cm }
}

// WithHeaders adds HTTP headers to every request (API keys).
func WithHeaders(h map[string]string) ClientOption {
	return func(c *clientConfig) { c.headers = h }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l ports.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

// NewClient creates a client for the RPC endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	cfg := clientConfig{
		rps:             DefaultRequestsPerSecond,
		burst:           DefaultRequestsPerSecond,
		breakerFailures: DefaultBreakerFailures,
		breakerTimeout:  DefaultBreakerTimeout,
		commitment:      domain.CommitmentConfirmed,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		logger:          log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	limit := rate.Inf
	if cfg.rps > 0 {
		limit = rate.Limit(cfg.rps)
	}
	if cfg.burst < 1 {
		cfg.burst = 1
	}

	c := &Client{
		rpc: rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
			HTTPClient:    cfg.httpClient,
			CustomHeaders: cfg.headers,
		})),
		limiter:    rate.NewLimiter(limit, cfg.burst),
		commitment: commitmentType(cfg.commitment),
		logger:     cfg.logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "solana-rpc",
		Timeout: cfg.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("rpc circuit breaker state change",
				ports.String("breaker", name),
				ports.Stringer("from", from),
				ports.Stringer("to", to),
			)
		},
		IsSuccessful: answered,
	})
	return c
}

// call throttles fn and runs it through the breaker.
func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return toLedgerError(method, err)
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return toLedgerError(method, err)
}

// AccountExists reports whether addr holds an account.
func (c *Client) AccountExists(ctx context.Context, addr domain.Address) (bool, error) {
	var exists bool
	err := c.call(ctx, "getAccountInfo", func(ctx context.Context) error {
		_, err := c.rpc.GetAccountInfoWithOpts(ctx, pk(addr), &rpc.GetAccountInfoOpts{
			Encoding:   sol.EncodingBase64,
			Commitment: c.commitment,
		})
		switch {
		case errors.Is(err, rpc.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// accountData returns the owner and raw data of an existing account.
func (c *Client) accountData(ctx context.Context, a domain.Address) (sol.PublicKey, []byte, error) {
	var owner sol.PublicKey
	var data []byte
	err := c.call(ctx, "getAccountInfo", func(ctx context.Context) error {
		out, err := c.rpc.GetAccountInfoWithOpts(ctx, pk(a), &rpc.GetAccountInfoOpts{
			Encoding:   sol.EncodingBase64,
			Commitment: c.commitment,
		})
		if err != nil {
			return err
		}
		owner = out.Value.Owner
		data = out.Value.Data.GetBinary()
		return nil
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return owner, nil, fmt.Errorf("account %s not found", a)
	}
	return owner, data, err
}

// MintInfo reads the token program and decimals of a mint.
func (c *Client) MintInfo(ctx context.Context, mint domain.Address) (domain.MintInfo, error) {
	owner, data, err := c.accountData(ctx, mint)
	if err != nil {
		return domain.MintInfo{}, fmt.Errorf("mint %s: %w", mint, err)
	}
	if !owner.Equals(TokenProgramID) && !owner.Equals(Token2022ProgramID) {
		return domain.MintInfo{}, fmt.Errorf("%w: mint %s is owned by %s, not a token program", domain.ErrInvalidConfig, mint, owner)
	}
	if len(data) <= mintDecimalsOffset {
		return domain.MintInfo{}, fmt.Errorf("mint %s: account data too short (%d bytes)", mint, len(data))
	}
	return domain.MintInfo{TokenProgram: addr(owner), Decimals: data[mintDecimalsOffset]}, nil
}

// LookupTable reads the addresses stored in an address lookup table.
func (c *Client) LookupTable(ctx context.Context, table domain.Address) ([]domain.Address, error) {
	_, data, err := c.accountData(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("lookup table %s: %w", table, err)
	}
	state, err := addresslookuptable.DecodeAddressLookupTableState(data)
	if err != nil {
		return nil, fmt.Errorf("lookup table %s: %w", table, err)
	}
	if !state.IsActive() {
		return nil, fmt.Errorf("%w: lookup table %s is deactivated", domain.ErrInvalidConfig, table)
	}
	out := make([]domain.Address, len(state.Addresses))
	for i, a := range state.Addresses {
		out[i] = addr(a)
	}
	return out, nil
}

// LatestBlockhash returns a recent blockhash at commitment.
func (c *Client) LatestBlockhash(ctx context.Context, cm domain.Commitment) (domain.Blockhash, error) {
	var hash domain.Blockhash
	err := c.call(ctx, "getLatestBlockhash", func(ctx context.Context) error {
		out, err := c.rpc.GetLatestBlockhash(ctx, commitmentType(cm))
		if err != nil {
			return err
		}
		hash = domain.Blockhash(out.Value.Blockhash)
		return nil
	})
	return hash, err
}

// SendEnvelope transmits a signed envelope.
func (c *Client) SendEnvelope(ctx context.Context, s domain.SignedEnvelope, opts domain.SendOptions) (domain.Signature, error) {
	raw, err := wireTransaction(s)
	if err != nil {
		return domain.Signature{}, err
	}
	retries := uint(max(opts.MaxRetries, 0))
	var sig domain.Signature
	err = c.call(ctx, "sendTransaction", func(ctx context.Context) error {
		out, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
			Encoding:            sol.EncodingBase64,
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: commitmentType(opts.PreflightCommitment),
			MaxRetries:          &retries,
		})
		if err != nil {
			return err
		}
		sig = domain.Signature(out)
		return nil
	})
	return sig, err
}

// wireTransaction serializes s: the signatures in signer order followed by
// the compiled message.
func wireTransaction(s domain.SignedEnvelope) ([]byte, error) {
	tx := sol.Transaction{Signatures: make([]sol.Signature, len(s.Signatures))}
	if err := tx.Message.UnmarshalWithDecoder(bin.NewBinDecoder(s.Message)); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	for i, sig := range s.Signatures {
		tx.Signatures[i] = sol.Signature(sig)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return raw, nil
}

// SignatureStatus returns the ledger's view of sig.
func (c *Client) SignatureStatus(ctx context.Context, sig domain.Signature) (domain.SignatureStatus, error) {
	var st domain.SignatureStatus
	err := c.call(ctx, "getSignatureStatuses", func(ctx context.Context) error {
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sol.Signature(sig))
		if err != nil {
			return err
		}
		if len(out.Value) == 0 || out.Value[0] == nil {
			return nil
		}
		v := out.Value[0]
		st.Found = true
		st.Commitment = fromConfirmationStatus(v.ConfirmationStatus)
		if v.Err != nil {
			st.Err = txError(v.Err)
		}
		return nil
	})
	return st, err
}

func commitmentType(c domain.Commitment) rpc.CommitmentType {
	switch c {
	case domain.CommitmentProcessed:
		return rpc.CommitmentProcessed
	case domain.CommitmentFinalized:
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

func fromConfirmationStatus(s rpc.ConfirmationStatusType) domain.Commitment {
	switch s {
	case rpc.ConfirmationStatusFinalized:
		return domain.CommitmentFinalized
	case rpc.ConfirmationStatusConfirmed:
		return domain.CommitmentConfirmed
	default:
		return domain.CommitmentProcessed
	}
}
