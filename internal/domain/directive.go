package domain

// DirectiveKind enumerates the directives an envelope can carry.
type DirectiveKind int

const (
	DirectiveBudgetLimit DirectiveKind = iota
	DirectiveBudgetPrice
	DirectiveCreateAccount
	DirectiveTransfer
	DirectiveClaim
	DirectiveCompress
	DirectiveRegisterPool
)

// String returns a human-readable representation of the kind.
func (k DirectiveKind) String() string {
	switch k {
	case DirectiveBudgetLimit:
		return "budget-limit"
	case DirectiveBudgetPrice:
		return "budget-price"
	case DirectiveCreateAccount:
		return "create-account"
	case DirectiveTransfer:
		return "transfer"
	case DirectiveClaim:
		return "claim"
	case DirectiveCompress:
		return "compress"
	case DirectiveRegisterPool:
		return "register-pool"
	default:
		return "unknown"
	}
}

// Directive is one instruction within an envelope. Which fields are
// meaningful depends on Kind; adapters compile it to the wire format.
type Directive struct {
	Kind DirectiveKind

	// Units is the execution budget limit (DirectiveBudgetLimit).
	Units uint32

	// MicroPrice is the per-unit price (DirectiveBudgetPrice).
	MicroPrice uint64

	// Payer funds account creation and pool registration.
	Payer Address

	// Mint and Decimals identify the token being moved.
	Mint     Address
	Decimals uint8

	// TokenProgram owns Mint and every holding account.
	TokenProgram Address

	// Authority signs transfers out of Source, or the claim directive.
	Authority Address

	// Source is the custodial source holding account.
	Source Address

	// Owner and Account describe the holding account to create.
	Owner   Address
	Account Address

	// Idempotent selects the create variant that tolerates existence.
	Idempotent bool

	// Legs are the credit/debit legs of a transfer, claim or compress.
	Legs []Leg
}

// Leg moves BaseUnits between the source and one recipient.
type Leg struct {
	Recipient Address
	Holding   Address
	BaseUnits uint64
	Direction Direction
}
