package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/datasage-io/datasage/internal/errs"
)

// ReadCSV parses a CSV stream into a Table. The first record is the header;
// headers are normalized into safe identifiers and de-duplicated with numeric
// suffixes. Rows whose field count does not match the header are skipped:
// ingestion is best-effort and a few malformed lines must not fail an upload.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errs.New(errs.ErrKindInvalidInput, "empty file: no header row")
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "unreadable CSV header", err)
	}
	if len(header) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "header row has no columns")
	}

	columns := normalizeHeader(header)

	t := &Table{Columns: columns}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Misquoted or truncated line: skip it rather than fail the upload.
			continue
		}
		if len(rec) != len(columns) {
			continue
		}
		row := make([]string, len(rec))
		for i, cell := range rec {
			row[i] = strings.TrimSpace(cell)
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// normalizeHeader converts raw headers into lowercase underscore identifiers
// and de-duplicates repeats with numeric suffixes ("city", "city_1", ...).
func normalizeHeader(header []string) []Column {
	counters := make(map[string]int, len(header))
	columns := make([]Column, 0, len(header))

	for _, original := range header {
		name := NormalizeName(original)
		if name == "" {
			name = "column"
		}
		if n := counters[name]; n > 0 {
			counters[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			counters[name] = 1
		}
		columns = append(columns, Column{Name: name, Original: strings.TrimSpace(original)})
	}
	return columns
}

// NormalizeName converts an arbitrary string into a safe lowercase
// identifier: whitespace and punctuation become single underscores, anything
// outside [a-z0-9_] is dropped.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
