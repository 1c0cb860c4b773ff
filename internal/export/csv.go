// Package export renders query results as CSV while keeping SQL NULL and
// the empty string distinguishable: NULL becomes a bare empty field, the
// empty string becomes a quoted one (""). The standard encoder collapses
// both to the same bytes, so this one is written out by hand.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/datasage-io/datasage/internal/errs"
)

// EncodeRows writes a header line followed by one line per row, columns in
// the given order. Cells absent from a row map encode as NULL.
func EncodeRows(w io.Writer, columns []string, rows []map[string]any) error {
	if len(columns) == 0 {
		return errs.New(errs.ErrKindInvalidInput, "no columns to export")
	}

	bw := bufio.NewWriter(w)

	for i, col := range columns {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteString(encodeField(col, false))
	}
	bw.WriteByte('\n')

	for _, row := range rows {
		for i, col := range columns {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(encodeCell(row[col]))
		}
		bw.WriteByte('\n')
	}

	if err := bw.Flush(); err != nil {
		return errs.Wrap(errs.ErrKindRuntime, "write export", err)
	}
	return nil
}

// encodeCell renders one value. nil is NULL: an unquoted empty field.
func encodeCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return encodeField(t, true)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return encodeField(fmt.Sprintf("%v", t), true)
	}
}

// encodeField quotes a string field when needed. quoteEmpty forces the empty
// string to render as "" so it stays distinct from NULL.
func encodeField(s string, quoteEmpty bool) string {
	if s == "" {
		if quoteEmpty {
			return `""`
		}
		return s
	}
	if !strings.ContainsAny(s, `",`+"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// DecodeRows parses CSV produced by EncodeRows back into columns and rows,
// mapping bare empty fields to nil and quoted empty fields to "". Quoted
// fields may span lines, so the input is parsed as one stream rather than
// line by line.
func DecodeRows(r io.Reader) ([]string, []map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindInvalidInput, "read export", err)
	}

	records, err := parseRecords(string(data))
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errs.New(errs.ErrKindInvalidInput, "export is empty")
	}

	columns := make([]string, len(records[0]))
	for i, f := range records[0] {
		columns[i] = f.text
	}

	rows := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(columns) {
			return nil, nil, errs.New(errs.ErrKindInvalidInput, "export row width does not match header")
		}
		row := make(map[string]any, len(columns))
		for i, f := range rec {
			if f.null {
				row[columns[i]] = nil
			} else {
				row[columns[i]] = f.text
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

type field struct {
	text string
	null bool
}

// parseRecords walks the whole document once: commas and newlines delimit
// only outside quotes, doubled quotes escape inside them.
func parseRecords(data string) ([][]field, error) {
	var records [][]field
	var record []field
	var sb strings.Builder

	quoted := false    // currently inside a quoted field
	wasQuoted := false // current field started with a quote

	endField := func() {
		text := sb.String()
		record = append(record, field{text: text, null: text == "" && !wasQuoted})
		sb.Reset()
		wasQuoted = false
	}
	endRecord := func() {
		endField()
		records = append(records, record)
		record = nil
	}

	i := 0
	for i < len(data) {
		c := data[i]
		if quoted {
			if c == '"' {
				if i+1 < len(data) && data[i+1] == '"' {
					sb.WriteByte('"')
					i += 2
					continue
				}
				quoted = false
				i++
				continue
			}
			sb.WriteByte(c)
			i++
			continue
		}

		switch c {
		case '"':
			quoted = true
			wasQuoted = true
		case ',':
			endField()
		case '\r':
			// swallowed; records end on \n
		case '\n':
			endRecord()
		default:
			sb.WriteByte(c)
		}
		i++
	}
	if quoted {
		return nil, errs.New(errs.ErrKindInvalidInput, "unterminated quoted field")
	}
	if sb.Len() > 0 || wasQuoted || len(record) > 0 {
		endRecord()
	}
	return records, nil
}
