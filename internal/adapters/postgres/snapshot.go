// Package postgres reads recipient snapshots from a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
	"github.com/bft-labs/dropship/pkg/log"
)

// Postgres error codes.
const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Columns names the snapshot table columns. ID and Date are optional.
type Columns struct {
	ID        string
	Recipient string
	Amount    string
	Date      string
}

// DefaultColumns matches the snapshot table layout: id, priv_key, points, date.
func DefaultColumns() Columns {
	return Columns{ID: "id", Recipient: "priv_key", Amount: "points", Date: "date"}
}

// SnapshotSource implements ports.RecipientSource over a snapshot table.
type SnapshotSource struct {
	db        *gorm.DB
	table     string
	testTable string
	cols      Columns
	logger    ports.Logger
}

// Option configures a SnapshotSource.
type Option func(*SnapshotSource)

// WithTestTable sets the table read in test mode.
func WithTestTable(name string) Option {
	return func(s *SnapshotSource) { s.testTable = name }
}

// WithColumns overrides the column names.
func WithColumns(c Columns) Option {
	return func(s *SnapshotSource) { s.cols = c }
}

// WithLogger sets the logger.
func WithLogger(l ports.Logger) Option {
	return func(s *SnapshotSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", domain.ErrInvalidConfig)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewSnapshotSource creates a source reading table through db.
func NewSnapshotSource(db *gorm.DB, table string, opts ...Option) (*SnapshotSource, error) {
	s := &SnapshotSource{
		db:     db,
		table:  table,
		cols:   DefaultColumns(),
		logger: log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, name := range []string{s.table, s.cols.Recipient, s.cols.Amount} {
		if !identPattern.MatchString(name) {
			return nil, fmt.Errorf("%w: invalid snapshot identifier %q", domain.ErrInvalidConfig, name)
		}
	}
	for _, name := range []string{s.testTable, s.cols.ID, s.cols.Date} {
		if name != "" && !identPattern.MatchString(name) {
			return nil, fmt.Errorf("%w: invalid snapshot identifier %q", domain.ErrInvalidConfig, name)
		}
	}
	return s, nil
}

type snapshotRow struct {
	ID        string
	Recipient string
	Amount    string
	Date      string
}

// Fetch reads the rows for date (all rows when date is empty). In test
// mode the test table is read instead.
func (s *SnapshotSource) Fetch(ctx context.Context, date string, testMode bool) ([]domain.RawEntry, error) {
	table := s.table
	if testMode {
		if s.testTable == "" {
			return nil, fmt.Errorf("%w: test mode requires a snapshot test table", domain.ErrInvalidConfig)
		}
		table = s.testTable
	}

	var rows []snapshotRow
	if err := s.query(s.db.WithContext(ctx), table, date).Scan(&rows).Error; err != nil {
		return nil, s.describe(err, table)
	}

	out := make([]domain.RawEntry, 0, len(rows))
	for _, r := range rows {
		amount, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot row %s: amount %q: %v", domain.ErrInvalidInput, r.ID, r.Amount, err)
		}
		out = append(out, domain.RawEntry{
			ID:        r.ID,
			Recipient: strings.TrimSpace(r.Recipient),
			Amount:    amount,
			Date:      r.Date,
		})
	}

	s.logger.Info("loaded snapshot",
		ports.String("table", table),
		ports.String("date", date),
		ports.Int("rows", len(out)))
	return out, nil
}

func (s *SnapshotSource) query(tx *gorm.DB, table, date string) *gorm.DB {
	q := tx.Table(table).Select(s.selectList())
	if date != "" && s.cols.Date != "" {
		q = q.Where(quoteIdent(s.cols.Date)+" = ?", date)
	}
	if s.cols.ID != "" {
		q = q.Order(quoteIdent(s.cols.ID))
	}
	return q
}

func (s *SnapshotSource) selectList() string {
	col := func(name, alias string) string {
		if name == "" {
			return "'' AS " + alias
		}
		return fmt.Sprintf("COALESCE(%s::text, '') AS %s", quoteIdent(name), alias)
	}
	return strings.Join([]string{
		col(s.cols.ID, "id"),
		col(s.cols.Recipient, "recipient"),
		col(s.cols.Amount, "amount"),
		col(s.cols.Date, "date"),
	}, ", ")
}

func (s *SnapshotSource) describe(err error, table string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable:
			return fmt.Errorf("%w: snapshot table %q does not exist", domain.ErrInvalidConfig, table)
		case codeUndefinedColumn:
			return fmt.Errorf("%w: snapshot table %q: %s", domain.ErrInvalidConfig, table, pgErr.Message)
		}
	}
	return fmt.Errorf("query snapshot table %q: %w", table, err)
}

func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, ".")
}
