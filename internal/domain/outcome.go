package domain

// ErrorKind classifies a submission result.
type ErrorKind int

const (
	// KindNone means the envelope was confirmed.
	KindNone ErrorKind = iota
	KindInsufficientFunds
	KindAccountAlreadyExists
	KindPreflightRejected
	KindTimeout
	KindTransientNetwork
	// KindUnclassified is any failure none of the other kinds describe.
	// It is terminal for the chunk and never retried.
	KindUnclassified
)

// String returns a human-readable representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInsufficientFunds:
		return "insufficient-funds"
	case KindAccountAlreadyExists:
		return "account-already-exists"
	case KindPreflightRejected:
		return "preflight-rejected"
	case KindTimeout:
		return "timeout"
	case KindTransientNetwork:
		return "transient-network-error"
	case KindUnclassified:
		return "unclassified"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Retryable reports whether the orchestrator may resubmit the chunk.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindTransientNetwork
}

// Outcome is the result of submitting one envelope.
type Outcome struct {
	Envelope  Envelope
	Signature Signature
	Kind      ErrorKind
	Attempts  int

	// RaceLost is set when a creation directive lost an already-exists
	// race and the envelope was confirmed without it.
	RaceLost bool

	// Detail is the raw diagnostic for failures (message and logs).
	Detail string
}

// Confirmed reports whether the envelope reached the target commitment.
func (o Outcome) Confirmed() bool {
	return o.Kind == KindNone
}

// ChunkStatus is the final state of a chunk within a run.
type ChunkStatus string

const (
	ChunkConfirmed    ChunkStatus = "confirmed"
	ChunkFailed       ChunkStatus = "failed"
	ChunkNotAttempted ChunkStatus = "not-attempted"
)

// ChunkOutcome records what happened to one chunk.
type ChunkOutcome struct {
	Index     int         `json:"index"`
	Size      int         `json:"size"`
	Status    ChunkStatus `json:"status"`
	Signature Signature   `json:"signature,omitempty"`
	Kind      ErrorKind   `json:"kind"`
	Attempts  int         `json:"attempts"`
	RaceLost  bool        `json:"race_lost,omitempty"`
	Detail    string      `json:"detail,omitempty"`

	// AccountsCreated counts holding accounts the confirmed envelope
	// created. Accounts dropped after a lost race are not counted.
	AccountsCreated int `json:"accounts_created,omitempty"`
}
