// Package fs implements ports over the local filesystem.
package fs

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/dropship/internal/domain"
)

// Column aliases accepted for each field, in priority order.
var (
	recipientKeys = []string{"recipient", "address", "wallet", "priv_key", "private_key"}
	amountKeys    = []string{"amount", "points"}
	dateKeys      = []string{"date", "snapshot_date"}
	idKeys        = []string{"id"}
)

// FileSource implements ports.RecipientSource over a JSON, CSV or YAML file.
// JSON and YAML files hold a list of objects; CSV files have a header row.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading path. The format follows the
// file extension.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file path.
func (s *FileSource) Path() string { return s.path }

// Fetch reads all rows. When date is set, rows carrying a different date
// are dropped; rows without a date are kept. testMode has no effect: a
// fixture file is already a test list.
func (s *FileSource) Fetch(ctx context.Context, date string, testMode bool) ([]domain.RawEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	switch ext := strings.ToLower(filepath.Ext(s.path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&rows)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &rows)
	case ".csv":
		rows, err = readCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: unsupported recipient file type %q", domain.ErrInvalidInput, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidInput, s.path, err)
	}

	out := make([]domain.RawEntry, 0, len(rows))
	for i, row := range rows {
		e, err := toRawEntry(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", domain.ErrInvalidInput, s.path, i, err)
		}
		if date != "" && e.Date != "" && e.Date != date {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func readCSV(r io.Reader) ([]map[string]interface{}, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var rows []map[string]interface{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(header))
		for i, v := range rec {
			if i < len(header) {
				row[header[i]] = v
			}
		}
		rows = append(rows, row)
	}
}

func toRawEntry(row map[string]interface{}) (domain.RawEntry, error) {
	var e domain.RawEntry
	recipient, ok := pick(row, recipientKeys)
	if !ok {
		return e, fmt.Errorf("no recipient column (%s)", strings.Join(recipientKeys, ", "))
	}
	e.Recipient = recipient

	amount, ok := pick(row, amountKeys)
	if !ok {
		return e, fmt.Errorf("no amount column (%s)", strings.Join(amountKeys, ", "))
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return e, fmt.Errorf("amount %q: %v", amount, err)
	}
	e.Amount = d

	e.Date, _ = pick(row, dateKeys)
	e.ID, _ = pick(row, idKeys)
	return e, nil
}

// pick returns the first non-empty value among keys.
func pick(row map[string]interface{}, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			return s, true
		}
	}
	return "", false
}
