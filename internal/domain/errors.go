package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent error conditions in the dropship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrInvalidInput is returned for an empty or malformed entry list or
	// non-positive limits. It is fatal and raised before any network call.
	ErrInvalidInput = errors.New("dropship: invalid input")

	// ErrEnvelopeTooLarge is returned when a built envelope exceeds the
	// ledger's directive ceiling or packet size. Correct chunk limits make
	// it unreachable.
	ErrEnvelopeTooLarge = errors.New("dropship: envelope too large")

	// ErrInsufficientFunds halts a run: the source account cannot fund
	// any further chunk.
	ErrInsufficientFunds = errors.New("dropship: insufficient funds")

	// ErrSourceAccount is returned when the source holding account is
	// missing and could not be created.
	ErrSourceAccount = errors.New("dropship: source holding account unavailable")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("dropship: invalid configuration")

	// ErrAlreadyRunning is returned when Run is called on a running instance.
	ErrAlreadyRunning = errors.New("dropship: already running")

	// ErrMissingSigner is returned when a required signer has no key.
	ErrMissingSigner = errors.New("dropship: missing signer key")
)

// LedgerError is the error surface of the ledger RPC boundary.
// Adapters convert their transport and RPC errors into this shape so the
// core can classify them without knowing the wire format.
type LedgerError struct {
	// Code is the RPC error code (0 when not applicable).
	Code int

	// Message is the RPC or transport error text.
	Message string

	// Logs carries program logs from a failed simulation or execution.
	Logs []string

	// Transport is true when the request never produced an RPC answer
	// (connection refused, timeout, HTTP 429/5xx, breaker open).
	Transport bool

	// Failed identifies the directive that failed execution, when the
	// ledger reported one.
	Failed *InstructionFailure
}

// InstructionFailure is an execution error attributed to one instruction of
// a compiled envelope. Index follows the envelope's directive order.
type InstructionFailure struct {
	Index int
	// Custom is the program-defined error code; nil for builtin errors.
	Custom *uint32
}

// CustomCode reports whether the failure carries program error code.
func (f *InstructionFailure) CustomCode(code uint32) bool {
	return f != nil && f.Custom != nil && *f.Custom == code
}

func (e *LedgerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("ledger error %d: %s", e.Code, e.Message)
	}
	return "ledger error: " + e.Message
}

// Text joins the message and logs for substring matching.
func (e *LedgerError) Text() string {
	if len(e.Logs) == 0 {
		return e.Message
	}
	return e.Message + "\n" + strings.Join(e.Logs, "\n")
}

// SizeError reports a compiled envelope larger than the ledger accepts.
type SizeError struct {
	Size  int
	Limit int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: %d bytes, limit %d", ErrEnvelopeTooLarge.Error(), e.Size, e.Limit)
}

// Is lets errors.Is(err, ErrEnvelopeTooLarge) match.
func (e *SizeError) Is(target error) bool { return target == ErrEnvelopeTooLarge }

// KindError attaches an ErrorKind to an underlying error.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInsufficientFunds) match a classified failure.
func (e *KindError) Is(target error) bool {
	return e.Kind == KindInsufficientFunds && target == ErrInsufficientFunds
}
