package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bft-labs/dropship/internal/domain"
)

// dryRunDB builds statements without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=127.0.0.1 dbname=none"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func TestNewSnapshotSource_RejectsBadIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		tbl  string
	}{
		{name: "table injection", tbl: "snapshot; drop table x"},
		{name: "empty table", tbl: ""},
		{name: "bad test table", tbl: "snapshot", opts: []Option{WithTestTable("t-1")}},
		{name: "bad column", tbl: "snapshot", opts: []Option{WithColumns(Columns{Recipient: "a b", Amount: "points"})}},
		{name: "missing amount column", tbl: "snapshot", opts: []Option{WithColumns(Columns{Recipient: "priv_key"})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSnapshotSource(nil, tt.tbl, tt.opts...)
			if !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("NewSnapshotSource() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestSnapshotSource_Query(t *testing.T) {
	db := dryRunDB(t)
	src, err := NewSnapshotSource(db, "public.snapshot", WithTestTable("snapshot_test"))
	if err != nil {
		t.Fatalf("NewSnapshotSource() error = %v", err)
	}

	var rows []snapshotRow
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return src.query(tx, "public.snapshot", "2024-05-01").Scan(&rows)
	})

	for _, want := range []string{
		`COALESCE("priv_key"::text, '') AS recipient`,
		`COALESCE("points"::text, '') AS amount`,
		`"public"."snapshot"`,
		`"date" = '2024-05-01'`,
		`ORDER BY "id"`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("query %q does not contain %q", sql, want)
		}
	}
}

func TestSnapshotSource_QueryWithoutDate(t *testing.T) {
	db := dryRunDB(t)
	src, err := NewSnapshotSource(db, "snapshot", WithColumns(Columns{Recipient: "address", Amount: "amount"}))
	if err != nil {
		t.Fatalf("NewSnapshotSource() error = %v", err)
	}

	var rows []snapshotRow
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return src.query(tx, "snapshot", "2024-05-01").Scan(&rows)
	})
	if strings.Contains(sql, "WHERE") || strings.Contains(sql, "ORDER BY") {
		t.Errorf("query %q filters or orders without date and id columns", sql)
	}
	if !strings.Contains(sql, "'' AS id") {
		t.Errorf("query %q does not select an empty id", sql)
	}
}

func TestSnapshotSource_TestModeRequiresTable(t *testing.T) {
	src, err := NewSnapshotSource(dryRunDB(t), "snapshot")
	if err != nil {
		t.Fatalf("NewSnapshotSource() error = %v", err)
	}
	if _, err := src.Fetch(context.Background(), "", true); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Fetch(testMode) error = %v, want ErrInvalidConfig", err)
	}
}

func TestSnapshotSource_Describe(t *testing.T) {
	src := &SnapshotSource{}
	tests := []struct {
		name       string
		err        error
		wantConfig bool
	}{
		{"undefined table", fmt.Errorf("scan: %w", &pgconn.PgError{Code: codeUndefinedTable}), true},
		{"undefined column", &pgconn.PgError{Code: codeUndefinedColumn, Message: `column "points" does not exist`}, true},
		{"other pg error", &pgconn.PgError{Code: "57014"}, false},
		{"connection error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := src.describe(tt.err, "snapshot")
			if errors.Is(got, domain.ErrInvalidConfig) != tt.wantConfig {
				t.Errorf("describe() = %v, want config error %v", got, tt.wantConfig)
			}
			if !tt.wantConfig && !errors.Is(got, tt.err) {
				t.Errorf("describe() = %v does not wrap %v", got, tt.err)
			}
		})
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Open(\"\") error = %v, want ErrInvalidConfig", err)
	}
}
