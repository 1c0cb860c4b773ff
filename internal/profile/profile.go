// Package profile infers per-column declared and semantic types from a
// bounded sample of an uploaded dataset. Profiling is best-effort: a column
// nothing can be made of degrades to string/other, and profiling never fails
// an otherwise valid upload.
package profile

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/datasage-io/datasage/internal/dataset"
)

// Config bounds the profiling sample.
type Config struct {
	// SampleRows is the number of leading rows inspected per column.
	SampleRows int
	// TopValueCount caps the frequent-value sample kept on each descriptor.
	TopValueCount int
}

// DefaultConfig returns the standard profiling bounds.
func DefaultConfig() Config {
	return Config{SampleRows: 200, TopValueCount: 5}
}

// typeVoteThreshold is the share of non-empty sampled values that must parse
// as a candidate type for it to win the majority vote.
const typeVoteThreshold = 0.6

// highCardinalityRatio marks a numeric column as a metric when its sampled
// distinct ratio is at least this high and no name rule fired first.
const highCardinalityRatio = 0.9

// Semantic name-token vocabularies, checked in the order the rules run.
// Matching is per underscore-separated token, with substring matching for
// the longer, unambiguous words (so "orderdate" still reads as temporal).
var (
	temporalTokens   = []string{"date", "time", "timestamp", "datetime", "created", "updated", "occurred", "day", "month", "year", "week"}
	identifierTokens = []string{"id", "uuid", "guid", "code", "key", "sku", "ref"}
	geographyTokens  = []string{"city", "country", "state", "region", "location", "place", "town", "province", "district", "area", "address", "zip", "postal", "latitude", "longitude"}
	metricTokens     = []string{"amount", "count", "price", "total", "sum", "revenue", "sales", "cost", "fee", "quantity", "qty", "value", "score", "rate", "salary", "profit", "income", "balance"}
)

// dateLayouts are the calendar formats the vote recognises, most common first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
}

// Profile builds the Schema for a parsed table. It reads at most
// cfg.SampleRows leading rows per column and never mutates the table.
func Profile(t *dataset.Table, cfg Config) *Schema {
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = DefaultConfig().SampleRows
	}
	if cfg.TopValueCount <= 0 {
		cfg.TopValueCount = DefaultConfig().TopValueCount
	}

	sampleEnd := len(t.Rows)
	if sampleEnd > cfg.SampleRows {
		sampleEnd = cfg.SampleRows
	}

	schema := &Schema{RowCount: len(t.Rows)}
	for i, col := range t.Columns {
		values := make([]string, 0, sampleEnd)
		for _, row := range t.Rows[:sampleEnd] {
			values = append(values, row[i])
		}
		schema.Columns = append(schema.Columns, profileColumn(col, values, cfg.TopValueCount))
	}
	return schema
}

func profileColumn(col dataset.Column, sample []string, topK int) ColumnDescriptor {
	nonEmpty := make([]string, 0, len(sample))
	for _, v := range sample {
		if v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}

	desc := ColumnDescriptor{Name: col.Name, Original: col.Original}

	if len(nonEmpty) == 0 {
		// Nothing to vote on: permissive fallback, upload still succeeds.
		desc.Declared = TypeString
		desc.Semantic = SemanticOther
		return desc
	}

	desc.Declared = voteDeclaredType(nonEmpty)
	desc.Semantic = classifySemantic(col.Name, desc.Declared, nonEmpty)
	desc.SampleValues = topValues(nonEmpty, topK)
	return desc
}

// voteDeclaredType runs the majority vote over non-empty sampled values.
// Integer is checked before float because every integer also parses as a
// float; boolean before date because neither subsumes the other.
func voteDeclaredType(values []string) DeclaredType {
	var ints, floats, bools, dates int
	for _, v := range values {
		if parsesInteger(v) {
			ints++
		}
		if parsesFloat(v) {
			floats++
		}
		if parsesBoolean(v) {
			bools++
		}
		if parsesDate(v) {
			dates++
		}
	}

	wins := func(count int) bool {
		return float64(count) >= typeVoteThreshold*float64(len(values))
	}

	switch {
	case wins(ints):
		return TypeInteger
	case wins(floats):
		return TypeFloat
	case wins(bools):
		return TypeBoolean
	case wins(dates):
		return TypeDate
	default:
		return TypeString
	}
}

// classifySemantic applies the ordered name heuristics; first match wins.
// Name rules outrank content: "user_id" stays an identifier even when every
// value is numeric.
func classifySemantic(name string, declared DeclaredType, nonEmpty []string) SemanticType {
	switch {
	case nameHasToken(name, temporalTokens):
		return SemanticTemporal
	case nameHasToken(name, identifierTokens):
		return SemanticIdentifier
	case nameHasToken(name, geographyTokens):
		return SemanticGeography
	case nameHasToken(name, metricTokens):
		return SemanticMetric
	case declared.IsNumeric() && distinctRatio(nonEmpty) >= highCardinalityRatio:
		return SemanticMetric
	case declared == TypeDate:
		return SemanticTemporal
	case declared == TypeString:
		return SemanticCategorical
	default:
		return SemanticOther
	}
}

func nameHasToken(name string, vocab []string) bool {
	tokens := strings.Split(name, "_")
	for _, kw := range vocab {
		for _, tok := range tokens {
			if tok == kw {
				return true
			}
		}
		// Longer keywords are safe to substring-match ("orderdate", "unitprice").
		if len(kw) >= 4 && strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func distinctRatio(values []string) float64 {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return float64(len(seen)) / float64(len(values))
}

// topValues returns the k most frequent sampled values, most frequent first,
// ties broken by first appearance so the result is deterministic.
func topValues(values []string, k int) []string {
	counts := make(map[string]int, len(values))
	firstSeen := make(map[string]int, len(values))
	order := make([]string, 0, len(values))

	for i, v := range values {
		if _, ok := counts[v]; !ok {
			firstSeen[v] = i
			order = append(order, v)
		}
		counts[v]++
	}

	sort.SliceStable(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return firstSeen[order[a]] < firstSeen[order[b]]
	})

	if len(order) > k {
		order = order[:k]
	}
	return order
}

// --- value parsers ---

func parsesInteger(v string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	return err == nil
}

func parsesFloat(v string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil
}

var booleanWords = map[string]struct{}{
	"true": {}, "false": {}, "yes": {}, "no": {}, "t": {}, "f": {}, "y": {}, "n": {},
}

func parsesBoolean(v string) bool {
	_, ok := booleanWords[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

func parsesDate(v string) bool {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
