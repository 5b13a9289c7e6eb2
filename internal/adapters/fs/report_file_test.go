package fs

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dropship/internal/domain"
)

func TestReportFileRepository_Save(t *testing.T) {
	dir := t.TempDir()
	repo := NewReportFileRepository(dir)

	failed := domain.Entry{Seq: 1, SourceID: "b", Recipient: domain.MustParseAddress(bob), Amount: decimal.NewFromInt(2), Direction: domain.Debit}
	pending := domain.Entry{Seq: 2, Recipient: domain.MustParseAddress(alice), Amount: decimal.NewFromInt(3)}
	report := domain.Report{
		RunID:        "run-1",
		Total:        3,
		Succeeded:    1,
		Failed:       []domain.FailedEntry{{Entry: failed, Kind: domain.KindUnclassified, Reason: "boom"}},
		NotAttempted: []domain.Entry{pending},
		HaltReason:   "insufficient-funds",
	}

	path, err := repo.Save(context.Background(), report)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != repo.ReportPath("run-1") {
		t.Errorf("Save() path = %q, want %q", path, repo.ReportPath("run-1"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if decoded["run_id"] != "run-1" || decoded["halt_reason"] != "insufficient-funds" {
		t.Errorf("report = %v", decoded)
	}

	// The rerun list is readable as a recipient source.
	rows, err := NewFileSource(repo.RerunPath("run-1")).Fetch(context.Background(), "", false)
	if err != nil {
		t.Fatalf("read rerun list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rerun rows = %d, want 2", len(rows))
	}
	if rows[0].Recipient != bob || !rows[0].Amount.Equal(decimal.NewFromInt(-2)) || rows[0].ID != "b" {
		t.Errorf("rerun[0] = %+v, want debit of 2 to bob", rows[0])
	}
	if rows[1].Recipient != alice || !rows[1].Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("rerun[1] = %+v, want credit of 3 to alice", rows[1])
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestReportFileRepository_NoRerunWhenComplete(t *testing.T) {
	repo := NewReportFileRepository(t.TempDir())
	if _, err := repo.Save(context.Background(), domain.Report{RunID: "done", Total: 1, Succeeded: 1}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(repo.RerunPath("done")); !os.IsNotExist(err) {
		t.Errorf("rerun list written for a complete run: %v", err)
	}
}
