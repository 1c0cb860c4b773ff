package translate

import (
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/datasage-io/datasage/internal/dataset"
	"github.com/datasage-io/datasage/internal/profile"
)

// valueMatchThreshold is the minimum similarity for a question phrase to be
// read as a cell value of some column.
const valueMatchThreshold = 0.75

// bindColumn resolves a question phrase to a schema column: exact normalized
// match first, then a trivial singular/plural alias, then bounded
// edit-distance fuzzy match. Ties always resolve to the first schema-order
// candidate, a deterministic tie-break rather than a guess.
func bindColumn(phrase string, schema *profile.Schema) *profile.ColumnDescriptor {
	norm := dataset.NormalizeName(phrase)
	if norm == "" {
		return nil
	}

	for i := range schema.Columns {
		if schema.Columns[i].Name == norm {
			return &schema.Columns[i]
		}
	}

	for i := range schema.Columns {
		name := schema.Columns[i].Name
		if name+"s" == norm || norm+"s" == name {
			return &schema.Columns[i]
		}
	}

	// Fuzzy only for phrases long enough to carry signal.
	if len(norm) < 3 {
		return nil
	}
	bestIdx := -1
	bestDist := int(^uint(0) >> 1)
	for i := range schema.Columns {
		name := schema.Columns[i].Name
		d := levenshtein.ComputeDistance(norm, name)
		if d <= fuzzyBudget(norm, name) && d < bestDist {
			bestIdx = i
			bestDist = d
		}
	}
	if bestIdx >= 0 {
		return &schema.Columns[bestIdx]
	}
	return nil
}

// fuzzyBudget is the edit distance tolerated between a phrase and a column
// name: one edit for short names, two for longer ones.
func fuzzyBudget(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n <= 5 {
		return 1
	}
	return 2
}

// valueBinding is a question phrase resolved to a sampled cell value of a
// specific column.
type valueBinding struct {
	column *profile.ColumnDescriptor
	value  string // the raw sampled value, original casing
	score  float64
}

// bindValue finds which column's sampled values a phrase most plausibly
// refers to ("mumbai" → city = 'Mumbai'). Numeric phrases and numeric
// columns are excluded: numbers belong to comparisons, not equality binding.
// Iteration is schema order and sample order, strict improvement only, so the
// first best candidate wins deterministically.
func bindValue(phrase string, schema *profile.Schema) *valueBinding {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" || isNumericPhrase(phrase) {
		return nil
	}
	lowered := strings.ToLower(phrase)

	var best *valueBinding
	for i := range schema.Columns {
		col := &schema.Columns[i]
		if col.Declared.IsNumeric() || col.Declared == profile.TypeBoolean {
			continue
		}
		for _, v := range col.SampleValues {
			score := similarity(lowered, strings.ToLower(v))
			if best == nil || score > best.score {
				best = &valueBinding{column: col, value: v, score: score}
			}
		}
	}
	if best != nil && best.score >= valueMatchThreshold {
		return best
	}
	return nil
}

// similarity scores a question phrase a against a cell value b, both
// lowercased: exact 1.0, containment 0.9, otherwise a normalized
// edit-distance ratio. A phrase inside a value always counts ("internet"
// finds "internet connectivity"); a value inside a phrase only counts when
// it covers at least half of it, so a long n-gram cannot claim every short
// value it happens to include.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) >= 3 && len(b) >= 3 {
		if strings.Contains(b, a) {
			return 0.9
		}
		if strings.Contains(a, b) && len(b)*2 >= len(a) {
			return 0.9
		}
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(d)/float64(longest)
}

func isNumericPhrase(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// groupable reports whether a column may serve as a GROUP BY dimension.
func groupable(col *profile.ColumnDescriptor) bool {
	switch col.Semantic {
	case profile.SemanticCategorical, profile.SemanticTemporal, profile.SemanticGeography:
		return true
	default:
		return false
	}
}

// aggregatable reports whether a column may serve as an aggregate target.
func aggregatable(col *profile.ColumnDescriptor) bool {
	return col.Semantic == profile.SemanticMetric || col.Declared.IsNumeric()
}

// defaultMetric picks the aggregate target when the question names none:
// the first metric column in schema order, else the first numeric one.
func defaultMetric(schema *profile.Schema) *profile.ColumnDescriptor {
	if col := schema.FirstSemantic(profile.SemanticMetric); col != nil {
		return col
	}
	return schema.FirstNumeric()
}
