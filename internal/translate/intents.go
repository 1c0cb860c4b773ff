package translate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datasage-io/datasage/internal/profile"
)

// clause is one intent's contribution to the query plan.
type clause interface {
	apply(p *plan)
}

// matcher is one independent intent recognizer. Each scans the tokenized
// question for its own vocabulary and either returns a bound clause or nil.
type matcher struct {
	name  string
	match func(q *tokenizedQuestion, schema *profile.Schema) clause
}

// intentMatchers is the ordered list the translator folds over. Order is
// part of the contract: it fixes tie-breaks and therefore determinism.
var intentMatchers = []matcher{
	{name: "aggregation", match: matchAggregation},
	{name: "grouping", match: matchGrouping},
	{name: "filter", match: matchFilter},
	{name: "ranking", match: matchRanking},
	{name: "time_window", match: matchTimeWindow},
	{name: "projection", match: matchProjection},
}

// --- aggregation ---

type aggClause struct {
	agg aggregation
}

func (c aggClause) apply(p *plan) {
	p.aggs = append(p.aggs, c.agg)
}

// aggVocab maps aggregate functions to the question phrases that select
// them, checked in this fixed order.
var aggVocab = []struct {
	fn      string
	phrases [][]string
}{
	{"COUNT", [][]string{{"how", "many"}, {"number", "of"}, {"count"}}},
	{"SUM", [][]string{{"sum"}, {"total"}}},
	{"AVG", [][]string{{"average"}, {"avg"}, {"mean"}}},
	{"MAX", [][]string{{"maximum"}, {"max"}, {"highest"}}},
	{"MIN", [][]string{{"minimum"}, {"min"}, {"lowest"}}},
}

func matchAggregation(q *tokenizedQuestion, schema *profile.Schema) clause {
	var fn string
	for _, v := range aggVocab {
		for _, phrase := range v.phrases {
			if q.containsPhrase(phrase...) {
				fn = v.fn
				break
			}
		}
		if fn != "" {
			break
		}
	}
	if fn == "" {
		return nil
	}
	if fn == "COUNT" {
		return aggClause{aggregation{fn: "COUNT", column: "*"}}
	}

	// Bind the aggregate target: the first question phrase that names a
	// numeric or metric column, else the schema's default metric.
	if col := firstMentionedColumn(q, schema, aggregatable); col != nil {
		return aggClause{aggregation{fn: fn, column: col.Name}}
	}
	if col := defaultMetric(schema); col != nil {
		return aggClause{aggregation{fn: fn, column: col.Name}}
	}
	return nil
}

// firstMentionedColumn scans the question left to right (bigrams before
// unigrams at each position) for a column mention satisfying ok.
func firstMentionedColumn(q *tokenizedQuestion, schema *profile.Schema, ok func(*profile.ColumnDescriptor) bool) *profile.ColumnDescriptor {
	for i := range q.tokens {
		if i+1 < len(q.tokens) {
			if col := bindColumn(q.tokens[i]+" "+q.tokens[i+1], schema); col != nil && ok(col) {
				return col
			}
		}
		tok := q.tokens[i]
		if isStopword(tok) || isNumericPhrase(tok) {
			continue
		}
		if col := bindColumn(tok, schema); col != nil && ok(col) {
			return col
		}
	}
	return nil
}

// --- grouping ---

type groupClause struct {
	column string
}

func (c groupClause) apply(p *plan) {
	p.addGroupBy(c.column)
}

// groupKeywords introduce a grouping dimension: "by region", "per city",
// "which service".
var groupKeywords = []string{"by", "per", "which"}

func matchGrouping(q *tokenizedQuestion, schema *profile.Schema) clause {
	for i, tok := range q.tokens {
		if !containsString(groupKeywords, tok) || i+1 >= len(q.tokens) {
			continue
		}
		// Bigram first so "by product type" binds product_type.
		if i+2 < len(q.tokens) {
			if col := bindColumn(q.tokens[i+1]+" "+q.tokens[i+2], schema); col != nil && groupable(col) {
				return groupClause{col.Name}
			}
		}
		if col := bindColumn(q.tokens[i+1], schema); col != nil && groupable(col) {
			return groupClause{col.Name}
		}
	}
	return nil
}

// --- filtering ---

type filterClause struct {
	preds       []predicate
	assumptions []string
}

func (c filterClause) apply(p *plan) {
	p.where = append(p.where, c.preds...)
	p.assumptions = append(p.assumptions, c.assumptions...)
}

var (
	equalityRe   = regexp.MustCompile(`\b([a-z0-9_ ]+?)\s+(?:is|equals)\s+([a-z0-9_.-]+)`)
	comparisonRe = regexp.MustCompile(`\b(over|above|under|below|more than|less than|greater than|at least|at most)\s+(\d+(?:\.\d+)?)\b`)
	betweenRe    = regexp.MustCompile(`\bbetween\s+(\S+)\s+and\s+(\S+)\b`)
)

var comparisonOps = map[string]string{
	"over": ">", "above": ">", "more than": ">", "greater than": ">",
	"under": "<", "below": "<", "less than": "<",
	"at least": ">=", "at most": "<=",
}

func matchFilter(q *tokenizedQuestion, schema *profile.Schema) clause {
	var c filterClause
	bound := make(map[string]struct{})

	addPred := func(pred predicate) {
		if _, dup := bound[pred.column]; dup {
			return
		}
		bound[pred.column] = struct{}{}
		c.preds = append(c.preds, pred)
	}

	// Explicit equality: "where city is mumbai".
	for _, m := range equalityRe.FindAllStringSubmatch(q.lower, -1) {
		col := bindColumn(lastWords(m[1], 2), schema)
		if col == nil {
			col = bindColumn(lastWords(m[1], 1), schema)
		}
		if col == nil {
			continue
		}
		value := m[2]
		// Prefer the column's own sampled casing when it matches.
		for _, v := range col.SampleValues {
			if similarity(strings.ToLower(value), strings.ToLower(v)) >= valueMatchThreshold {
				value = v
				break
			}
		}
		addPred(predicate{column: col.Name, op: "=", value: value})
	}

	// Entity binding: phrases that look like sampled cell values become
	// equality filters ("incidents in New Delhi" → city = 'New Delhi').
	// Longer phrases first so multi-word entities win over their fragments.
	for n := 3; n >= 1; n-- {
		for _, gram := range q.ngrams(n) {
			if n == 1 && (isStopword(gram) || isNumericPhrase(gram)) {
				continue
			}
			b := bindValue(gram, schema)
			if b == nil {
				continue
			}
			if _, dup := bound[b.column.Name]; dup {
				continue
			}
			addPred(predicate{column: b.column.Name, op: "=", value: b.value})
			c.assumptions = append(c.assumptions,
				fmt.Sprintf("assumed %q refers to %s = %q", gram, b.column.Name, b.value))
		}
	}

	// Numeric comparison: "orders over 100".
	if m := comparisonRe.FindStringSubmatch(q.lower); m != nil {
		op := comparisonOps[m[1]]
		col := firstMentionedColumn(q, schema, aggregatable)
		if col == nil {
			col = defaultMetric(schema)
		}
		if col != nil {
			addPred(predicate{column: col.Name, op: op, value: m[2], isNum: true})
		}
	}

	// Range: "between 2024-01-01 and 2024-03-31" on the temporal column,
	// or a numeric range on the default metric.
	if m := betweenRe.FindStringSubmatch(q.lower); m != nil {
		lo, hi := strings.Trim(m[1], ",."), strings.Trim(m[2], ",.")
		switch {
		case looksLikeDate(lo) && looksLikeDate(hi):
			if col := schema.FirstSemantic(profile.SemanticTemporal); col != nil {
				c.preds = append(c.preds,
					predicate{column: col.Name, op: ">=", value: lo},
					predicate{column: col.Name, op: "<=", value: hi},
				)
			}
		case isNumericPhrase(lo) && isNumericPhrase(hi):
			if col := defaultMetric(schema); col != nil {
				c.preds = append(c.preds,
					predicate{column: col.Name, op: ">=", value: lo, isNum: true},
					predicate{column: col.Name, op: "<=", value: hi, isNum: true},
				)
			}
		}
	}

	if len(c.preds) == 0 {
		return nil
	}
	return c
}

// lastWords returns the last n space-separated words of s.
func lastWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

var dateTokenRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$|^\d{2}/\d{2}/\d{4}$`)

func looksLikeDate(s string) bool {
	return dateTokenRe.MatchString(s)
}

// --- ranking ---

type rankClause struct {
	n      int
	desc   bool
	dim    string // groupable column named right after "top N", may be empty
	metric string // aggregatable column named after "by", may be empty
}

// apply records the rank and fills in whatever the earlier matchers left
// open: "top 5 cities by revenue" contributes the city grouping and the
// revenue sum when no aggregation or grouping clause claimed them first.
func (c rankClause) apply(p *plan) {
	p.rank = &rankIntent{n: c.n, desc: c.desc}
	if c.dim != "" {
		p.addGroupBy(c.dim)
	}
	if c.metric != "" && len(p.aggs) == 0 {
		p.aggs = append(p.aggs, aggregation{fn: "SUM", column: c.metric})
	}
}

func matchRanking(q *tokenizedQuestion, schema *profile.Schema) clause {
	for i, tok := range q.tokens {
		if tok != "top" && tok != "bottom" {
			continue
		}
		if i+1 >= len(q.tokens) {
			continue
		}
		n, err := strconv.Atoi(q.tokens[i+1])
		if err != nil || n <= 0 {
			continue
		}
		c := rankClause{n: n, desc: tok == "top"}

		// The noun after N is usually the ranked dimension.
		if i+3 < len(q.tokens) {
			if col := bindColumn(q.tokens[i+2]+" "+q.tokens[i+3], schema); col != nil && groupable(col) {
				c.dim = col.Name
			}
		}
		if c.dim == "" && i+2 < len(q.tokens) {
			if col := bindColumn(q.tokens[i+2], schema); col != nil && groupable(col) {
				c.dim = col.Name
			}
		}

		// "by <metric>" names what the ranking is measured on.
		for j, t := range q.tokens {
			if t != "by" || j+1 >= len(q.tokens) {
				continue
			}
			if col := bindColumn(q.tokens[j+1], schema); col != nil && aggregatable(col) {
				c.metric = col.Name
				break
			}
		}
		return c
	}
	return nil
}

// --- time window ---

type timeWindowClause struct {
	pred predicate
}

func (c timeWindowClause) apply(p *plan) {
	p.where = append(p.where, c.pred)
}

var (
	relativeWindowRe = regexp.MustCompile(`\b(?:last|past)\s+(\d+)\s+(day|week|month|year)s?\b`)
	singleWindowRe   = regexp.MustCompile(`\b(?:last|past)\s+(day|week|month|year)\b`)
)

func matchTimeWindow(q *tokenizedQuestion, schema *profile.Schema) clause {
	col := schema.FirstSemantic(profile.SemanticTemporal)
	if col == nil {
		return nil
	}

	var n int
	var unit string
	if m := relativeWindowRe.FindStringSubmatch(q.lower); m != nil {
		n, _ = strconv.Atoi(m[1])
		unit = m[2]
	} else if m := singleWindowRe.FindStringSubmatch(q.lower); m != nil {
		n, unit = 1, m[1]
	} else {
		return nil
	}

	var expr string
	switch unit {
	case "day":
		expr = fmt.Sprintf("date('now', '-%d days')", n)
	case "week":
		expr = fmt.Sprintf("date('now', '-%d days')", n*7)
	case "month":
		expr = fmt.Sprintf("date('now', '-%d months')", n)
	case "year":
		expr = fmt.Sprintf("date('now', '-%d years')", n)
	}

	return timeWindowClause{predicate{column: col.Name, op: ">=", value: expr, isExpr: true}}
}

// --- projection ---

type projClause struct {
	columns []string
}

// apply only fills the select list for plain (non-aggregated, non-grouped)
// plans; aggregated plans derive their output from group and aggregate
// clauses instead.
func (c projClause) apply(p *plan) {
	if len(p.aggs) > 0 || len(p.groupBy) > 0 {
		return
	}
	for _, col := range c.columns {
		if !containsString(p.selectCols, col) {
			p.selectCols = append(p.selectCols, col)
		}
	}
}

// matchProjection collects explicit column mentions in question order using
// exact/alias binding only; fuzzy mentions are too weak to drive output
// shape on their own.
func matchProjection(q *tokenizedQuestion, schema *profile.Schema) clause {
	var cols []string
	seen := make(map[string]struct{})

	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		cols = append(cols, name)
	}

	for i := range q.tokens {
		if i+1 < len(q.tokens) {
			if col := exactColumn(q.tokens[i]+" "+q.tokens[i+1], schema); col != nil {
				add(col.Name)
				continue
			}
		}
		tok := q.tokens[i]
		if isStopword(tok) || isNumericPhrase(tok) {
			continue
		}
		if col := exactColumn(tok, schema); col != nil {
			add(col.Name)
		}
	}

	if len(cols) == 0 {
		return nil
	}
	return projClause{columns: cols}
}

// exactColumn binds by exact normalized name or singular/plural alias only.
func exactColumn(phrase string, schema *profile.Schema) *profile.ColumnDescriptor {
	norm := strings.ReplaceAll(strings.TrimSpace(phrase), " ", "_")
	for i := range schema.Columns {
		name := schema.Columns[i].Name
		if name == norm || name+"s" == norm || norm+"s" == name {
			return &schema.Columns[i]
		}
	}
	return nil
}
