package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction says whether an entry credits or debits the recipient.
type Direction int

const (
	Credit Direction = iota
	Debit
)

// String returns a human-readable representation of the direction.
func (d Direction) String() string {
	switch d {
	case Credit:
		return "credit"
	case Debit:
		return "debit"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// RawEntry is one row as delivered by a recipient source, before
// normalization. Only Recipient and Amount are required.
type RawEntry struct {
	// ID is the source row identifier, if any.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Recipient is either a base58 account address or a recipient signing
	// credential, depending on the deployment mode.
	Recipient string `json:"recipient" yaml:"recipient"`

	// Amount is in whole-token units. A negative amount encodes a debit.
	Amount decimal.Decimal `json:"amount" yaml:"amount"`

	// Date is the snapshot date of the row, if any.
	Date string `json:"date,omitempty" yaml:"date,omitempty"`
}

// Entry is a normalized distribution line. Amount is never negative;
// the sign of the source amount is carried by Direction.
type Entry struct {
	// Seq is the position of the entry in the source list.
	Seq int `json:"seq"`

	// SourceID is RawEntry.ID, kept for operators.
	SourceID string `json:"source_id,omitempty"`

	// Recipient is the recipient wallet address.
	Recipient Address `json:"recipient"`

	// Amount is the absolute amount in whole-token units.
	Amount decimal.Decimal `json:"amount"`

	Direction Direction `json:"direction"`
}

// RecipientParser turns a raw recipient identifier into an address.
// In co-signing modes it also registers the recipient's key.
type RecipientParser func(raw string) (Address, error)

// Normalize converts a raw row into an Entry, moving the amount sign into
// Direction.
func Normalize(seq int, raw RawEntry, parse RecipientParser) (Entry, error) {
	id := strings.TrimSpace(raw.Recipient)
	if id == "" {
		return Entry{}, fmt.Errorf("%w: row %d has no recipient", ErrInvalidInput, seq)
	}
	if parse == nil {
		parse = ParseAddress
	}
	addr, err := parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("row %d: %w", seq, err)
	}

	e := Entry{
		Seq:       seq,
		SourceID:  raw.ID,
		Recipient: addr,
		Amount:    raw.Amount.Abs(),
		Direction: Credit,
	}
	if raw.Amount.IsNegative() {
		e.Direction = Debit
	}
	return e, nil
}

// NormalizeAll normalizes a source list, preserving order.
func NormalizeAll(raws []RawEntry, parse RecipientParser) ([]Entry, error) {
	out := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		e, err := Normalize(i, raw, parse)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Positive reports whether the entry moves a non-zero amount.
func (e Entry) Positive() bool {
	return e.Amount.IsPositive()
}

// BaseUnits scales the amount by 10^decimals into the mint's smallest unit.
// The result must be integral and fit in a uint64.
func (e Entry) BaseUnits(decimals uint8) (uint64, error) {
	return ToBaseUnits(e.Amount, decimals)
}

var maxUint64 = decimal.NewFromUint64(math.MaxUint64)

// ToBaseUnits scales amount by 10^decimals.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidInput, amount)
	}
	scaled := amount.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: amount %s has more than %d decimal places", ErrInvalidInput, amount, decimals)
	}
	if scaled.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("%w: amount %s overflows base units", ErrInvalidInput, amount)
	}
	return scaled.BigInt().Uint64(), nil
}
