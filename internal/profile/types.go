package profile

// DeclaredType is the storage type inferred for a column by majority vote
// over sampled values.
type DeclaredType string

const (
	TypeInteger DeclaredType = "integer"
	TypeFloat   DeclaredType = "float"
	TypeBoolean DeclaredType = "boolean"
	TypeDate    DeclaredType = "date"
	TypeString  DeclaredType = "string"
)

// IsNumeric reports whether the declared type is integer or float.
func (t DeclaredType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// SemanticType is a coarse classification of a column's meaning, inferred
// from its name and sampled values. It is distinct from the storage type:
// a numeric "user_id" is an identifier, not a metric.
type SemanticType string

const (
	SemanticIdentifier  SemanticType = "identifier"
	SemanticTemporal    SemanticType = "temporal"
	SemanticGeography   SemanticType = "geography"
	SemanticMetric      SemanticType = "metric"
	SemanticCategorical SemanticType = "categorical"
	SemanticOther       SemanticType = "other"
)

// ColumnDescriptor describes one profiled column. Immutable once produced.
type ColumnDescriptor struct {
	Name         string       `json:"name"`
	Original     string       `json:"original_name,omitempty"`
	Declared     DeclaredType `json:"declared_type"`
	Semantic     SemanticType `json:"semantic_type"`
	SampleValues []string     `json:"sample_values"` // most frequent raw values, bounded
}

// Schema is the ordered profile of the single active dataset. It is created
// whole on upload and replaced whole on the next upload, never mutated.
type Schema struct {
	Columns  []ColumnDescriptor `json:"columns"`
	RowCount int                `json:"row_count"`
}

// Column returns the descriptor for the given normalized name, or nil.
func (s *Schema) Column(name string) *ColumnDescriptor {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}

// FirstSemantic returns the first column (schema order) with the given
// semantic type, or nil.
func (s *Schema) FirstSemantic(sem SemanticType) *ColumnDescriptor {
	for i := range s.Columns {
		if s.Columns[i].Semantic == sem {
			return &s.Columns[i]
		}
	}
	return nil
}

// FirstNumeric returns the first column (schema order) with a numeric
// declared type, or nil.
func (s *Schema) FirstNumeric() *ColumnDescriptor {
	for i := range s.Columns {
		if s.Columns[i].Declared.IsNumeric() {
			return &s.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the normalized column names in schema order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
