package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/sony/gobreaker"

	"github.com/bft-labs/dropship/internal/domain"
)

// answered reports whether err came back from the RPC node as a JSON-RPC
// answer, as opposed to a transport failure.
func answered(err error) bool {
	if err == nil || errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr)
}

// toLedgerError converts errors returned by the RPC client into the
// ledger error surface. Context errors are returned wrapped so that callers
// can still match them.
func toLedgerError(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", method, err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.LedgerError{Message: method + ": circuit breaker is open: " + err.Error(), Transport: true}
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		le := &domain.LedgerError{
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
			Logs:    logsOf(rpcErr.Data),
		}
		if m, ok := rpcErr.Data.(map[string]interface{}); ok && m["err"] != nil {
			le.Failed = txError(m["err"]).Failed
		}
		return le
	}
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return &domain.LedgerError{
			Message:   fmt.Sprintf("%s: http %d: %s", method, httpErr.Code, httpErr.Error()),
			Transport: true,
		}
	}
	return &domain.LedgerError{Message: method + ": " + err.Error(), Transport: true}
}

// logsOf extracts program logs from the data of a failed simulation.
func logsOf(data interface{}) []string {
	m, ok := data.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := m["logs"].([]interface{})
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			logs = append(logs, s)
		}
	}
	return logs
}

// txError converts an on-chain transaction error into a LedgerError
// worded like the node's simulation failures.
func txError(v interface{}) *domain.LedgerError {
	switch e := v.(type) {
	case string:
		if e == "AccountInUse" {
			// Another in-flight transaction holds a write lock on one of
			// the accounts. Nothing was created.
			return &domain.LedgerError{Message: "account in use by a concurrent transaction"}
		}
		return &domain.LedgerError{Message: e}
	case map[string]interface{}:
		if ie, ok := e["InstructionError"].([]interface{}); ok && len(ie) == 2 {
			if idx, ok := number(ie[0]); ok {
				f := &domain.InstructionFailure{Index: int(idx)}
				switch detail := ie[1].(type) {
				case map[string]interface{}:
					if code, ok := number(detail["Custom"]); ok {
						c := uint32(code)
						f.Custom = &c
						return &domain.LedgerError{
							Message: fmt.Sprintf("Error processing Instruction %d: custom program error: 0x%x", f.Index, c),
							Failed:  f,
						}
					}
				case string:
					return &domain.LedgerError{
						Message: fmt.Sprintf("Error processing Instruction %d: %s", f.Index, detail),
						Failed:  f,
					}
				}
			}
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return &domain.LedgerError{Message: fmt.Sprint(v)}
	}
	return &domain.LedgerError{Message: string(b)}
}

func number(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
