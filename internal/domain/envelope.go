package domain

// Envelope is a single submittable bundle. Directives run in order and the
// ledger accepts or rejects them atomically.
type Envelope struct {
	ChunkIndex int
	Directives []Directive

	// Signers is the required signing set: custodial signers first,
	// followed by co-signing recipients in entry order.
	Signers []Address

	// Entries are the distribution lines this envelope settles.
	Entries []Entry
}

// Count returns the number of directives.
func (e Envelope) Count() int {
	return len(e.Directives)
}

// Creations returns the number of account creation directives.
func (e Envelope) Creations() int {
	n := 0
	for _, d := range e.Directives {
		if d.Kind == DirectiveCreateAccount {
			n++
		}
	}
	return n
}

// WithoutCreations returns a copy with every account creation directive
// removed. Used after losing an account-creation race.
func (e Envelope) WithoutCreations() Envelope {
	out := e
	out.Directives = make([]Directive, 0, len(e.Directives))
	for _, d := range e.Directives {
		if d.Kind == DirectiveCreateAccount {
			continue
		}
		out.Directives = append(out.Directives, d)
	}
	return out
}

// Commitment is the confirmation depth of a submission.
type Commitment int

const (
	CommitmentProcessed Commitment = iota
	CommitmentConfirmed
	CommitmentFinalized
)

// String returns the ledger name of the commitment level.
func (c Commitment) String() string {
	switch c {
	case CommitmentProcessed:
		return "processed"
	case CommitmentConfirmed:
		return "confirmed"
	case CommitmentFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// ParseCommitment parses processed|confirmed|finalized.
func ParseCommitment(s string) (Commitment, bool) {
	switch s {
	case "processed":
		return CommitmentProcessed, true
	case "confirmed":
		return CommitmentConfirmed, true
	case "finalized":
		return CommitmentFinalized, true
	}
	return CommitmentConfirmed, false
}

// CompiledEnvelope is an envelope compiled against a blockhash.
// Message is the exact byte string every signer signs.
type CompiledEnvelope struct {
	Message   []byte
	Signers   []Address
	Versioned bool
	Blockhash Blockhash

	// Size is the serialized length of the signed envelope.
	Size int
}

// SignedEnvelope carries one signature per CompiledEnvelope.Signers entry.
type SignedEnvelope struct {
	CompiledEnvelope
	Signatures []Signature
}

// ID returns the envelope's submission identifier (its first signature).
func (s SignedEnvelope) ID() Signature {
	if len(s.Signatures) == 0 {
		return Signature{}
	}
	return s.Signatures[0]
}

// SendOptions controls one transmission.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	MaxRetries          int
}

// SignatureStatus is the ledger's view of a submitted signature.
type SignatureStatus struct {
	// Found is false while the ledger has no record of the signature.
	Found bool

	// Commitment is the depth reached so far.
	Commitment Commitment

	// Err is set when execution failed on-chain.
	Err *LedgerError
}

// Reached reports whether the status satisfies target.
func (s SignatureStatus) Reached(target Commitment) bool {
	return s.Found && s.Err == nil && s.Commitment >= target
}
