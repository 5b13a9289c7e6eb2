package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Address identifies an account on the ledger (a 32-byte public key).
// Its text form is base58.
type Address [32]byte

// ParseAddress decodes a base58 account address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("%w: address %q: %v", ErrInvalidInput, s, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("%w: address %q decodes to %d bytes", ErrInvalidInput, s, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is ParseAddress for constants; it panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Signature is the unique identifier of a submitted envelope.
type Signature [64]byte

// String returns the base58 form.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) {
	if s.IsZero() {
		return []byte{}, nil
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text is the
// zero signature.
func (s *Signature) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = Signature{}
		return nil
	}
	parsed, err := ParseSignature(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSignature decodes a base58 signature.
func ParseSignature(str string) (Signature, error) {
	var s Signature
	b, err := base58.Decode(str)
	if err != nil {
		return s, fmt.Errorf("signature %q: %w", str, err)
	}
	if len(b) != len(s) {
		return s, fmt.Errorf("signature %q decodes to %d bytes", str, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// Blockhash is the sequencing token an envelope is compiled against.
type Blockhash [32]byte

// String returns the base58 form.
func (h Blockhash) String() string {
	return base58.Encode(h[:])
}
