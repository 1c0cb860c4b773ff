// Package engine runs validated SQL against an in-memory SQLite database
// holding the single registered dataset relation. Registration replaces the
// relation wholesale; there is no persistence across process restarts.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/datasage-io/datasage/internal/dataset"
	"github.com/datasage-io/datasage/internal/errs"
	"github.com/datasage-io/datasage/internal/logger"
	"github.com/datasage-io/datasage/internal/profile"
)

// QueryResult is one executed query's output: ordered column names, rows as
// name-keyed maps, and how long execution took.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Duration time.Duration    `json:"duration"`
}

// Engine owns one in-memory database and the registered relation in it.
type Engine struct {
	db       *sql.DB
	relation string
	log      *logger.Logger
}

// New opens a fresh in-memory database.
func New(relation string, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.New(nil)
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindRuntime, "open in-memory database", err)
	}
	// A single connection keeps the in-memory database alive and visible to
	// every statement; separate pool connections would each see their own
	// empty database.
	db.SetMaxOpenConns(1)
	return &Engine{db: db, relation: relation, log: log}, nil
}

// Close releases the database. The relation's contents are gone after this.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Register replaces the relation with the given table. Column affinities
// come from the profiled declared types; empty cells become NULL.
func (e *Engine) Register(ctx context.Context, t *dataset.Table, schema *profile.Schema) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ErrKindRuntime, "begin registration", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(e.relation))); err != nil {
		return e.mapError("drop previous relation", err)
	}

	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = quoteIdent(c.Name) + " " + affinity(c.Declared)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(e.relation), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return e.mapError("create relation", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(schema.Columns)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(e.relation), placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return e.mapError("prepare insert", err)
	}
	defer stmt.Close()

	args := make([]any, len(schema.Columns))
	for _, row := range t.Rows {
		for i := range schema.Columns {
			args[i] = cellValue(row[i], schema.Columns[i].Declared)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return e.mapError("insert row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.ErrKindRuntime, "commit registration", err)
	}

	e.log.With().Str("relation", e.relation).Int("rows", len(t.Rows)).Logger().
		Info("relation registered")
	return nil
}

// Execute runs one validated statement and scans the full result set.
func (e *Engine) Execute(ctx context.Context, query string) (*QueryResult, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, e.mapError("execute query", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, e.mapError("scan results", err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// scanRows reads every row into name-keyed maps, preserving column order
// separately since Go maps do not.
func scanRows(rows *sql.Rows) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: cols, Rows: []map[string]any{}}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// normalizeValue converts driver byte slices to strings so results are
// JSON-friendly; everything else passes through (int64, float64, nil).
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// affinity maps a declared type to a SQLite column affinity.
func affinity(t profile.DeclaredType) string {
	switch t {
	case profile.TypeInteger:
		return "INTEGER"
	case profile.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// cellValue converts one CSV cell into a bind argument. Empty cells are
// NULL; numeric columns get parsed values, falling back to the raw text for
// malformed cells so no row is lost to a stray value.
func cellValue(cell string, t profile.DeclaredType) any {
	if cell == "" {
		return nil
	}
	switch t {
	case profile.TypeInteger:
		if n, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64); err == nil {
			return n
		}
	case profile.TypeFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
			return f
		}
	}
	return cell
}

// mapError classifies a driver error into the shared taxonomy by message
// shape: unknown columns and functions are binder errors, a missing table is
// a catalog error, a cancelled context is a timeout, the rest is runtime.
// The native error stays attached as the cause for logs, never for clients.
func (e *Engine) mapError(op string, err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindTimeout, op+": query timed out", err)
	case strings.Contains(msg, "no such column") || strings.Contains(msg, "no such function"):
		return errs.Wrap(errs.ErrKindBinder, op+": query references something the dataset does not have", err)
	case strings.Contains(msg, "no such table"):
		return errs.Wrap(errs.ErrKindCatalog, op+": relation is not registered", err)
	default:
		return errs.Wrap(errs.ErrKindRuntime, op+": query execution failed", err)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
