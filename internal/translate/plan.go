package translate

import (
	"fmt"
	"strings"

	"github.com/datasage-io/datasage/internal/profile"
)

// plan accumulates the clauses contributed by intent matchers and renders
// them into a single SELECT statement.
type plan struct {
	selectCols  []string
	aggs        []aggregation
	groupBy     []string
	where       []predicate
	orderBy     []order
	limit       int
	rank        *rankIntent
	assumptions []string
}

// rankIntent is a "top N" / "bottom N" request. Its ORDER BY target is not
// known at match time (a bare "top 5 regions" only gets its count column in
// finalize), so the intent is carried on the plan and resolved there.
type rankIntent struct {
	n    int
	desc bool
}

type aggregation struct {
	fn     string // COUNT, SUM, AVG, MAX, MIN
	column string // "*" only for COUNT
}

// alias is the output column name for the aggregate.
func (a aggregation) alias() string {
	if a.column == "*" {
		return "count"
	}
	return strings.ToLower(a.fn) + "_" + a.column
}

type predicate struct {
	column string
	op     string
	value  string
	isExpr bool // value is a SQL expression, not a literal to quote
	isNum  bool // value is a numeric literal
}

type order struct {
	column string
	desc   bool
}

func newPlan(defaultLimit int) *plan {
	return &plan{limit: defaultLimit}
}

func (p *plan) addGroupBy(col string) {
	for _, g := range p.groupBy {
		if g == col {
			return
		}
	}
	p.groupBy = append(p.groupBy, col)
}

// finalize normalizes clause composition after the matcher fold:
// a grouped plan with no aggregate becomes a count per group, a ranking
// intent resolves its ORDER BY target and row cap, and a grouped aggregate
// with no explicit order is sorted by the aggregate descending so grouped
// answers come out largest-first.
func (p *plan) finalize(schema *profile.Schema) {
	if len(p.groupBy) > 0 && len(p.aggs) == 0 {
		p.aggs = append(p.aggs, aggregation{fn: "COUNT", column: "*"})
	}

	if p.rank != nil {
		p.limit = p.rank.n
		target := ""
		if len(p.aggs) > 0 {
			target = p.aggs[0].alias()
		} else if col := defaultMetric(schema); col != nil {
			target = col.Name
		}
		if target != "" {
			p.orderBy = append(p.orderBy, order{column: target, desc: p.rank.desc})
		}
	}

	if len(p.groupBy) > 0 && len(p.orderBy) == 0 && len(p.aggs) > 0 {
		p.orderBy = append(p.orderBy, order{column: p.aggs[0].alias(), desc: true})
	}
}

// render produces the final SQL text. Clause order is fixed and every
// identifier is quoted, so rendering is deterministic for a given plan.
func (p *plan) render(relation string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")

	items := make([]string, 0, len(p.groupBy)+len(p.aggs)+len(p.selectCols))
	for _, g := range p.groupBy {
		items = append(items, quoteIdent(g))
	}
	for _, a := range p.aggs {
		target := "*"
		if a.column != "*" {
			target = quoteIdent(a.column)
		}
		items = append(items, fmt.Sprintf("%s(%s) AS %s", a.fn, target, quoteIdent(a.alias())))
	}
	if len(p.aggs) == 0 {
		for _, c := range p.selectCols {
			if !containsString(items, quoteIdent(c)) {
				items = append(items, quoteIdent(c))
			}
		}
	}
	if len(items) == 0 {
		items = append(items, "*")
	}
	sb.WriteString(strings.Join(items, ", "))

	sb.WriteString(" FROM ")
	sb.WriteString(relation)

	if len(p.where) > 0 {
		parts := make([]string, 0, len(p.where))
		for _, w := range p.where {
			parts = append(parts, renderPredicate(w))
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if len(p.groupBy) > 0 {
		quoted := make([]string, len(p.groupBy))
		for i, g := range p.groupBy {
			quoted[i] = quoteIdent(g)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(quoted, ", "))
	}

	if len(p.orderBy) > 0 {
		parts := make([]string, len(p.orderBy))
		for i, o := range p.orderBy {
			dir := "ASC"
			if o.desc {
				dir = "DESC"
			}
			parts[i] = quoteIdent(o.column) + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	fmt.Fprintf(&sb, " LIMIT %d", p.limit)
	return sb.String()
}

func renderPredicate(w predicate) string {
	col := quoteIdent(w.column)
	switch {
	case w.isExpr:
		return fmt.Sprintf("%s %s %s", col, w.op, w.value)
	case w.isNum:
		return fmt.Sprintf("%s %s %s", col, w.op, w.value)
	default:
		return fmt.Sprintf("%s %s '%s'", col, w.op, escapeString(w.value))
	}
}

// quoteIdent wraps a SQL identifier in double-quotes (ANSI standard),
// doubling any embedded quote.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// escapeString doubles single quotes inside a string literal.
func escapeString(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
