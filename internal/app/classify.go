package app

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/bft-labs/dropship/internal/domain"
)

// codeSimulationFailed is the JSON-RPC code for a failed preflight simulation.
const codeSimulationFailed = -32002

// customAccountInUse is the system program's AccountAlreadyInUse code, the
// execution error of a creation whose account already exists.
const customAccountInUse = 0

var (
	// SPL token error 1 is InsufficientFunds.
	splInsufficientFunds = regexp.MustCompile(`custom program error: 0x1\b`)

	insufficientMarkers = []string{
		"insufficient funds",
		"insufficient lamports",
		"insufficienttokens",
		"attempt to debit an account but found no record of a prior credit",
	}
	expiredMarkers = []string{
		"blockhash not found",
		"block height exceeded",
		"transaction expired",
	}
	// HTTP statuses only count when worded as such; bare numbers also
	// occur in program logs and error codes.
	httpTransient = regexp.MustCompile(`\b(http|status|status code)[: ]+(429|502|503|504)\b|\b(429|502|503|504) (too many requests|bad gateway|service unavailable|gateway timeout)\b`)

	transientMarkers = []string{
		"connection refused",
		"connection reset",
		"no such host",
		"i/o timeout",
		"unexpected eof",
		"too many requests",
		"node is behind",
		"circuit breaker is open",
	}
)

// Classify maps a submission error to an ErrorKind. nil maps to KindNone.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindNone
	}
	var ke *domain.KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.KindTransientNetwork
	}

	text := err.Error()
	var le *domain.LedgerError
	isLedger := errors.As(err, &le)
	if isLedger {
		text = le.Text()
	}
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, insufficientMarkers) || splInsufficientFunds.MatchString(lower):
		return domain.KindInsufficientFunds
	case strings.Contains(lower, "already in use"):
		return domain.KindAccountAlreadyExists
	case containsAny(lower, expiredMarkers):
		return domain.KindTimeout
	case isLedger && le.Transport, strings.Contains(lower, "account in use"):
		return domain.KindTransientNetwork
	case strings.Contains(lower, "too large"):
		// Oversized transactions are refused before simulation.
		return domain.KindPreflightRejected
	case isLedger && le.Code == codeSimulationFailed,
		strings.Contains(lower, "simulation failed"),
		strings.Contains(lower, "preflight"):
		return domain.KindPreflightRejected
	case containsAny(lower, transientMarkers), httpTransient.MatchString(lower):
		return domain.KindTransientNetwork
	default:
		return domain.KindUnclassified
	}
}

// ClassifyFor is Classify with the envelope whose submission produced err.
// A creation directive failing with the system program's account-in-use
// code lost a creation race, even when no log says so.
func ClassifyFor(env domain.Envelope, err error) domain.ErrorKind {
	var le *domain.LedgerError
	if errors.As(err, &le) && le.Failed.CustomCode(customAccountInUse) {
		i := le.Failed.Index
		if i >= 0 && i < len(env.Directives) && env.Directives[i].Kind == domain.DirectiveCreateAccount {
			return domain.KindAccountAlreadyExists
		}
	}
	return Classify(err)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
