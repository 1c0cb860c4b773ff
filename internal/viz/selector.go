// Package viz picks chart shapes for query results. Selection is a pure
// function of the rows and column order: the same result always yields the
// same charts, and an empty result yields a single no-data marker instead of
// an error.
package viz

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Family is the chart family a spec belongs to.
type Family string

const (
	FamilyLine         Family = "line"
	FamilyBar          Family = "bar"
	FamilyDistribution Family = "distribution"
	FamilyNoData       Family = "no_data"
)

// Point is one plotted label/value pair.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ChartSpec describes one chart. Derived from a result set, never persisted.
type ChartSpec struct {
	Family      Family  `json:"family"`
	Title       string  `json:"title"`
	LabelColumn string  `json:"label_column,omitempty"`
	ValueColumn string  `json:"value_column,omitempty"`
	Points      []Point `json:"points,omitempty"`
}

// Config names the selection thresholds so the heuristic stays auditable.
type Config struct {
	// NumericThreshold is the share of sampled cells that must parse as
	// finite numbers for a column to count as numeric.
	NumericThreshold float64
	// IntegralThreshold is the share of sampled numeric values that must be
	// whole numbers for the result to read as pre-aggregated.
	IntegralThreshold float64
	// NumericSampleCap bounds the leading sample for the numeric test.
	NumericSampleCap int
	// TemporalSampleCap bounds the leading sample for the date test.
	TemporalSampleCap int
	// PreAggregatedRowCap is the row count at or under which a result with a
	// numeric column reads as pre-aggregated.
	PreAggregatedRowCap int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		NumericThreshold:    0.6,
		IntegralThreshold:   0.8,
		NumericSampleCap:    20,
		TemporalSampleCap:   10,
		PreAggregatedRowCap: 20,
	}
}

// temporalNameTokens mark a column as temporal by name alone.
var temporalNameTokens = []string{"date", "time", "timestamp", "day", "month", "year", "week"}

// chartDateLayouts are the formats the temporal content test recognises.
var chartDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
}

// Selector applies one Config.
type Selector struct {
	cfg Config
}

// NewSelector builds a selector; zero thresholds fall back to defaults.
func NewSelector(cfg Config) *Selector {
	def := DefaultConfig()
	if cfg.NumericThreshold <= 0 {
		cfg.NumericThreshold = def.NumericThreshold
	}
	if cfg.IntegralThreshold <= 0 {
		cfg.IntegralThreshold = def.IntegralThreshold
	}
	if cfg.NumericSampleCap <= 0 {
		cfg.NumericSampleCap = def.NumericSampleCap
	}
	if cfg.TemporalSampleCap <= 0 {
		cfg.TemporalSampleCap = def.TemporalSampleCap
	}
	if cfg.PreAggregatedRowCap <= 0 {
		cfg.PreAggregatedRowCap = def.PreAggregatedRowCap
	}
	return &Selector{cfg: cfg}
}

// Select maps a result set to chart specs.
func (s *Selector) Select(rows []map[string]any, columnOrder []string) []ChartSpec {
	if len(rows) == 0 || len(columnOrder) == 0 {
		return []ChartSpec{{Family: FamilyNoData, Title: "No data"}}
	}

	numeric := make(map[string]bool, len(columnOrder))
	temporal := make(map[string]bool, len(columnOrder))
	for _, col := range columnOrder {
		numeric[col] = s.isNumericColumn(rows, col)
		temporal[col] = s.isTemporalColumn(rows, col)
	}

	label := pickLabel(columnOrder, numeric, temporal)
	hasTemporal := false
	for _, col := range columnOrder {
		if temporal[col] {
			hasTemporal = true
			break
		}
	}

	var numericCols []string
	for _, col := range columnOrder {
		if numeric[col] {
			numericCols = append(numericCols, col)
		}
	}

	if len(numericCols) == 0 {
		return []ChartSpec{s.distributionChart(rows, label)}
	}

	preAggregated := s.isPreAggregated(rows, columnOrder, numericCols)

	family := FamilyBar
	if hasTemporal {
		family = FamilyLine
	}

	valueCols := make([]string, 0, len(numericCols))
	for _, col := range numericCols {
		if col != label {
			valueCols = append(valueCols, col)
		}
	}
	if len(valueCols) == 0 {
		// The sole numeric column doubles as the label.
		valueCols = numericCols
	}

	charts := make([]ChartSpec, 0, len(valueCols))
	for _, col := range valueCols {
		charts = append(charts, s.valueChart(rows, family, label, col, preAggregated))
	}
	return charts
}

// pickLabel chooses the label column: first temporal, else first
// non-numeric, else the first column.
func pickLabel(columnOrder []string, numeric, temporal map[string]bool) string {
	for _, col := range columnOrder {
		if temporal[col] {
			return col
		}
	}
	for _, col := range columnOrder {
		if !numeric[col] {
			return col
		}
	}
	return columnOrder[0]
}

// distributionChart counts occurrences per distinct label value.
func (s *Selector) distributionChart(rows []map[string]any, label string) ChartSpec {
	counts := make(map[string]int)
	var order []string
	for _, row := range rows {
		key := labelText(row[label])
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	points := make([]Point, len(order))
	for i, key := range order {
		points[i] = Point{Label: key, Value: float64(counts[key])}
	}
	return ChartSpec{
		Family:      FamilyDistribution,
		Title:       fmt.Sprintf("Distribution of %s", label),
		LabelColumn: label,
		Points:      points,
	}
}

// valueChart plots one numeric column against the label: raw per-row values
// when the result is pre-aggregated, summed per distinct label otherwise.
func (s *Selector) valueChart(rows []map[string]any, family Family, label, value string, preAggregated bool) ChartSpec {
	spec := ChartSpec{
		Family:      family,
		Title:       fmt.Sprintf("%s by %s", value, label),
		LabelColumn: label,
		ValueColumn: value,
	}

	if preAggregated {
		for _, row := range rows {
			v, ok := asFloat(row[value])
			if !ok {
				continue
			}
			spec.Points = append(spec.Points, Point{Label: labelText(row[label]), Value: v})
		}
		return spec
	}

	sums := make(map[string]float64)
	var order []string
	for _, row := range rows {
		v, ok := asFloat(row[value])
		if !ok {
			continue
		}
		key := labelText(row[label])
		if _, seen := sums[key]; !seen {
			order = append(order, key)
		}
		sums[key] += v
	}
	for _, key := range order {
		spec.Points = append(spec.Points, Point{Label: key, Value: sums[key]})
	}
	return spec
}

// isPreAggregated decides whether the rows already look like grouped summary
// values: a column literally named "count", a small result with a numeric
// column, or mostly integral numeric cells.
func (s *Selector) isPreAggregated(rows []map[string]any, columnOrder, numericCols []string) bool {
	for _, col := range columnOrder {
		if strings.EqualFold(col, "count") {
			return true
		}
	}
	if len(rows) <= s.cfg.PreAggregatedRowCap && len(numericCols) > 0 {
		return true
	}

	sampled, integral := 0, 0
	for _, col := range numericCols {
		for i, row := range rows {
			if i >= s.cfg.NumericSampleCap {
				break
			}
			v, ok := asFloat(row[col])
			if !ok {
				continue
			}
			sampled++
			if v == math.Trunc(v) {
				integral++
			}
		}
	}
	return sampled > 0 && float64(integral) >= s.cfg.IntegralThreshold*float64(sampled)
}

// isNumericColumn samples leading rows and tests the numeric share.
func (s *Selector) isNumericColumn(rows []map[string]any, col string) bool {
	sampled, numeric := 0, 0
	for i, row := range rows {
		if i >= s.cfg.NumericSampleCap {
			break
		}
		v, present := row[col]
		if v == nil || !present {
			continue
		}
		sampled++
		if f, ok := asFloat(v); ok && !math.IsInf(f, 0) && !math.IsNaN(f) {
			numeric++
		}
	}
	return sampled > 0 && float64(numeric) >= s.cfg.NumericThreshold*float64(sampled)
}

// isTemporalColumn tests the name tokens first, then samples content.
func (s *Selector) isTemporalColumn(rows []map[string]any, col string) bool {
	lower := strings.ToLower(col)
	for _, tok := range temporalNameTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}

	sampled, dates := 0, 0
	for i, row := range rows {
		if i >= s.cfg.TemporalSampleCap {
			break
		}
		v, present := row[col]
		if v == nil || !present {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return false
		}
		sampled++
		if parsesChartDate(str) {
			dates++
		}
	}
	return sampled > 0 && float64(dates) >= s.cfg.NumericThreshold*float64(sampled)
}

func parsesChartDate(v string) bool {
	v = strings.TrimSpace(v)
	for _, layout := range chartDateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// asFloat converts a result cell to a float64 when it is numeric, including
// numeric text.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// labelText renders a label cell; nulls plot under "Unknown".
func labelText(v any) string {
	switch t := v.(type) {
	case nil:
		return "Unknown"
	case string:
		if t == "" {
			return "Unknown"
		}
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
