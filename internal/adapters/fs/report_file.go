package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/dropship/internal/domain"
)

// ReportFileRepository implements ports.ReportRepository with JSON files.
// Each run writes report-<run-id>.json and, when anything is left to do,
// rerun-<run-id>.json in a format FileSource reads back.
type ReportFileRepository struct {
	dir string
}

// NewReportFileRepository creates a repository writing into dir.
func NewReportFileRepository(dir string) *ReportFileRepository {
	return &ReportFileRepository{dir: dir}
}

// Save persists report and returns the report path.
func (r *ReportFileRepository) Save(ctx context.Context, report domain.Report) (string, error) {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return "", err
	}

	path := r.ReportPath(report.RunID)
	if err := writeJSON(path, report); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	rerun := report.RerunEntries()
	if len(rerun) == 0 {
		return path, nil
	}
	rows := make([]domain.RawEntry, len(rerun))
	for i, e := range rerun {
		amount := e.Amount
		if e.Direction == domain.Debit {
			amount = amount.Neg()
		}
		rows[i] = domain.RawEntry{ID: e.SourceID, Recipient: e.Recipient.String(), Amount: amount}
	}
	if err := writeJSON(r.RerunPath(report.RunID), rows); err != nil {
		return "", fmt.Errorf("write rerun list: %w", err)
	}
	return path, nil
}

// ReportPath returns the report path for runID.
func (r *ReportFileRepository) ReportPath(runID string) string {
	return filepath.Join(r.dir, "report-"+runID+".json")
}

// RerunPath returns the rerun list path for runID.
func (r *ReportFileRepository) RerunPath(runID string) string {
	return filepath.Join(r.dir, "rerun-"+runID+".json")
}

// writeJSON writes v atomically (temp file, then rename).
func writeJSON(path string, v interface{}) error {
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
