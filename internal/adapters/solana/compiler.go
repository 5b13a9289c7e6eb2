package solana

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/bft-labs/dropship/internal/domain"
)

// Compiler turns envelopes into signed-ready Solana messages.
type Compiler struct {
	claimProgram sol.PublicKey
	poolProgram  sol.PublicKey
	tables       map[sol.PublicKey]sol.PublicKeySlice
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithClaimProgram sets the program invoked by claim directives.
func WithClaimProgram(p domain.Address) CompilerOption {
	return func(c *Compiler) { c.claimProgram = pk(p) }
}

// WithPoolProgram sets the program invoked by compress and pool
// registration directives.
func WithPoolProgram(p domain.Address) CompilerOption {
	return func(c *Compiler) { c.poolProgram = pk(p) }
}

// WithLookupTables sets the address lookup tables used by versioned
// messages, keyed by table address.
func WithLookupTables(tables map[domain.Address][]domain.Address) CompilerOption {
	return func(c *Compiler) {
		c.tables = make(map[sol.PublicKey]sol.PublicKeySlice, len(tables))
		for table, entries := range tables {
			keys := make(sol.PublicKeySlice, len(entries))
			for i, e := range entries {
				keys[i] = pk(e)
			}
			c.tables[pk(table)] = keys
		}
	}
}

// NewCompiler creates a compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile builds the message for env against blockhash. The fee payer is
// the first envelope signer. Versioned messages use the v0 format and the
// configured lookup tables.
//
// Instructions keep the directive order, so an instruction index reported
// by the ledger is also an index into env.Directives. A message whose
// signed transaction would exceed PacketLimit fails with a
// *domain.SizeError.
func (c *Compiler) Compile(env domain.Envelope, blockhash domain.Blockhash, versioned bool) (domain.CompiledEnvelope, error) {
	if len(env.Signers) == 0 {
		return domain.CompiledEnvelope{}, fmt.Errorf("envelope %d has no fee payer", env.ChunkIndex)
	}

	ixs := make([]sol.Instruction, 0, len(env.Directives))
	for i, d := range env.Directives {
		ix, err := c.instruction(d)
		if err != nil {
			return domain.CompiledEnvelope{}, fmt.Errorf("directive %d (%s): %w", i, d.Kind, err)
		}
		ixs = append(ixs, ix)
	}

	opts := []sol.TransactionOption{sol.TransactionPayer(pk(env.Signers[0]))}
	if versioned && len(c.tables) > 0 {
		opts = append(opts, sol.TransactionAddressTables(c.tables))
	}
	tx, err := sol.NewTransaction(ixs, sol.Hash(blockhash), opts...)
	if err != nil {
		return domain.CompiledEnvelope{}, fmt.Errorf("new transaction: %w", err)
	}
	if versioned {
		tx.Message.SetVersion(sol.MessageVersionV0)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return domain.CompiledEnvelope{}, fmt.Errorf("marshal message: %w", err)
	}
	signers := tx.Message.Signers()
	size := wireSize(len(signers), len(msg))
	if size > PacketLimit {
		return domain.CompiledEnvelope{}, fmt.Errorf("envelope %d with %d directives: %w",
			env.ChunkIndex, len(env.Directives), &domain.SizeError{Size: size, Limit: PacketLimit})
	}

	out := domain.CompiledEnvelope{
		Message:   msg,
		Signers:   make([]domain.Address, len(signers)),
		Versioned: versioned,
		Blockhash: blockhash,
		Size:      size,
	}
	for i, s := range signers {
		out.Signers[i] = addr(s)
	}
	return out, nil
}

// wireSize is the serialized length of a transaction carrying a message of
// msgLen bytes and one signature per signer.
func wireSize(signers, msgLen int) int {
	var count []byte
	_ = bin.EncodeCompactU16Length(&count, signers)
	return len(count) + signers*sol.SignatureLength + msgLen
}

func (c *Compiler) instruction(d domain.Directive) (sol.Instruction, error) {
	switch d.Kind {
	case domain.DirectiveBudgetLimit:
		return computebudget.NewSetComputeUnitLimitInstruction(d.Units).ValidateAndBuild()

	case domain.DirectiveBudgetPrice:
		return computebudget.NewSetComputeUnitPriceInstruction(d.MicroPrice).ValidateAndBuild()

	case domain.DirectiveCreateAccount:
		return createAccount(d)

	case domain.DirectiveTransfer:
		return transferChecked(d)

	case domain.DirectiveClaim:
		return c.claim(d)

	case domain.DirectiveCompress:
		return c.compress(d)

	case domain.DirectiveRegisterPool:
		return c.registerPool(d)
	}
	return nil, fmt.Errorf("unsupported directive kind %d", d.Kind)
}

// createAccount creates the associated holding account of d.Owner. The
// library builder covers plain creation under the classic token program;
// it has neither the idempotent variant nor a token program parameter, so
// those are encoded here.
func createAccount(d domain.Directive) (sol.Instruction, error) {
	if !d.Idempotent && pk(d.TokenProgram).Equals(TokenProgramID) {
		ix, err := associatedtokenaccount.NewCreateInstruction(pk(d.Payer), pk(d.Owner), pk(d.Mint)).ValidateAndBuild()
		if err != nil {
			return nil, err
		}
		if derived := ix.Accounts()[1].PublicKey; !derived.Equals(pk(d.Account)) {
			return nil, fmt.Errorf("holding account %s does not match derived %s", d.Account, derived)
		}
		return ix, nil
	}

	var data []byte
	if d.Idempotent {
		data = []byte{createIdempotentTag}
	}
	return sol.NewInstruction(AssociatedTokenProgramID, sol.AccountMetaSlice{
		sol.Meta(pk(d.Payer)).WRITE().SIGNER(),
		sol.Meta(pk(d.Account)).WRITE(),
		sol.Meta(pk(d.Owner)),
		sol.Meta(pk(d.Mint)),
		sol.Meta(SystemProgramID),
		sol.Meta(pk(d.TokenProgram)),
	}, data), nil
}

// transferChecked encodes TransferChecked for d.TokenProgram. Token-2022
// shares the classic layout, so the library instruction is re-addressed.
func transferChecked(d domain.Directive) (sol.Instruction, error) {
	if len(d.Legs) != 1 {
		return nil, fmt.Errorf("transfer needs exactly one leg, got %d", len(d.Legs))
	}
	leg := d.Legs[0]
	ix, err := token.NewTransferCheckedInstruction(
		leg.BaseUnits,
		d.Decimals,
		pk(d.Source),
		pk(d.Mint),
		pk(leg.Holding),
		pk(d.Authority),
		nil,
	).ValidateAndBuild()
	if err != nil {
		return nil, err
	}
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}
	return sol.NewInstruction(pk(d.TokenProgram), ix.Accounts(), data), nil
}

type claimArgs struct {
	Discriminator bin.TypeID
	Amount        uint64
	Burn          bool
}

func (c *Compiler) claim(d domain.Directive) (sol.Instruction, error) {
	if c.claimProgram.IsZero() {
		return nil, fmt.Errorf("%w: claim program not configured", domain.ErrInvalidConfig)
	}
	if len(d.Legs) != 1 {
		return nil, fmt.Errorf("claim needs exactly one leg, got %d", len(d.Legs))
	}
	leg := d.Legs[0]
	global, err := findPDA(c.claimProgram, seedGlobal)
	if err != nil {
		return nil, err
	}

	data, err := borsh(claimArgs{
		Discriminator: claimDiscriminator,
		Amount:        leg.BaseUnits,
		Burn:          leg.Direction == domain.Debit,
	})
	if err != nil {
		return nil, fmt.Errorf("encode claim: %w", err)
	}
	return sol.NewInstruction(c.claimProgram, sol.AccountMetaSlice{
		sol.Meta(pk(d.Payer)).WRITE().SIGNER(),
		sol.Meta(pk(leg.Recipient)).SIGNER(),
		sol.Meta(pk(d.Mint)).WRITE(),
		sol.Meta(global),
		sol.Meta(pk(leg.Holding)).WRITE(),
		sol.Meta(pk(d.TokenProgram)),
		sol.Meta(SystemProgramID),
	}, data), nil
}

type compressArgs struct {
	Discriminator bin.TypeID
	Recipients    []sol.PublicKey
	Amounts       []uint64
}

// compress moves the legs' amounts from the source holding account into
// the mint's pool, credited to each recipient. The pool program is this
// module's own Anchor program; see registerPool for the account it owns.
func (c *Compiler) compress(d domain.Directive) (sol.Instruction, error) {
	pool, cpi, err := c.poolAccounts(d.Mint)
	if err != nil {
		return nil, err
	}

	args := compressArgs{
		Discriminator: compressDiscriminator,
		Recipients:    make([]sol.PublicKey, len(d.Legs)),
		Amounts:       make([]uint64, len(d.Legs)),
	}
	for i, leg := range d.Legs {
		args.Recipients[i] = pk(leg.Recipient)
		args.Amounts[i] = leg.BaseUnits
	}
	data, err := borsh(args)
	if err != nil {
		return nil, fmt.Errorf("encode compress: %w", err)
	}

	return sol.NewInstruction(c.poolProgram, sol.AccountMetaSlice{
		sol.Meta(pk(d.Payer)).WRITE().SIGNER(),
		sol.Meta(pk(d.Authority)).SIGNER(),
		sol.Meta(cpi),
		sol.Meta(pk(d.Source)).WRITE(),
		sol.Meta(pk(d.Mint)),
		sol.Meta(pool).WRITE(),
		sol.Meta(pk(d.TokenProgram)),
		sol.Meta(SystemProgramID),
	}, data), nil
}

func (c *Compiler) registerPool(d domain.Directive) (sol.Instruction, error) {
	pool, cpi, err := c.poolAccounts(d.Mint)
	if err != nil {
		return nil, err
	}
	if !d.Account.IsZero() && pk(d.Account) != pool {
		return nil, fmt.Errorf("pool account %s does not match derived %s", d.Account, pool)
	}
	return sol.NewInstruction(c.poolProgram, sol.AccountMetaSlice{
		sol.Meta(pk(d.Payer)).WRITE().SIGNER(),
		sol.Meta(pool).WRITE(),
		sol.Meta(pk(d.Mint)),
		sol.Meta(cpi),
		sol.Meta(pk(d.TokenProgram)),
		sol.Meta(SystemProgramID),
	}, createPoolDiscriminator[:]), nil
}

func (c *Compiler) poolAccounts(mint domain.Address) (pool, cpi sol.PublicKey, err error) {
	if c.poolProgram.IsZero() {
		return pool, cpi, fmt.Errorf("%w: pool program not configured", domain.ErrInvalidConfig)
	}
	if pool, err = findPDA(c.poolProgram, seedPool, mint[:]); err != nil {
		return pool, cpi, err
	}
	cpi, err = findPDA(c.poolProgram, seedCPIAuthority)
	return pool, cpi, err
}

func borsh(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
