package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FailedEntry is an entry whose chunk failed terminally.
type FailedEntry struct {
	Entry  Entry     `json:"entry"`
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

// Report is the aggregate result of a run. It is sufficient to rebuild the
// subset of recipients that still needs servicing.
type Report struct {
	RunID      string    `json:"run_id"`
	Mint       Address   `json:"mint"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Total        int           `json:"total"`
	Succeeded    int           `json:"succeeded"`
	Skipped      []Skipped     `json:"skipped"`
	Failed       []FailedEntry `json:"failed"`
	NotAttempted []Entry       `json:"not_attempted"`

	Chunks []ChunkOutcome `json:"chunks"`

	// HaltReason is set when the run stopped before processing every chunk.
	HaltReason string `json:"halt_reason,omitempty"`

	// Distributed sums the amounts of confirmed credit entries.
	Distributed decimal.Decimal `json:"distributed"`
}

// Summary is the compact exit contract of a run.
type Summary struct {
	Succeeded int           `json:"succeeded"`
	Failed    []FailedEntry `json:"failed"`
	Skipped   int           `json:"skipped"`
}

// Summary returns the compact form of the report.
func (r Report) Summary() Summary {
	return Summary{
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Skipped:   len(r.Skipped),
	}
}

// RerunEntries returns failed and not-attempted entries in source order.
// Feeding them back as a recipient list re-runs only what is missing.
func (r Report) RerunEntries() []Entry {
	out := make([]Entry, 0, len(r.Failed)+len(r.NotAttempted))
	i, j := 0, 0
	for i < len(r.Failed) || j < len(r.NotAttempted) {
		switch {
		case j >= len(r.NotAttempted):
			out = append(out, r.Failed[i].Entry)
			i++
		case i >= len(r.Failed):
			out = append(out, r.NotAttempted[j])
			j++
		case r.Failed[i].Entry.Seq <= r.NotAttempted[j].Seq:
			out = append(out, r.Failed[i].Entry)
			i++
		default:
			out = append(out, r.NotAttempted[j])
			j++
		}
	}
	return out
}
