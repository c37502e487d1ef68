package domain

import "time"

// FieldType selects the coercion applied to a field during normalization.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeInteger  FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeCurrency FieldType = "currency"
)

// Rule maps one output field to a CSS selector within the record scope.
// Attribute "" or "text" extracts node text; any other value extracts
// that HTML attribute.
type Rule struct {
	Name      string    `yaml:"name" json:"name"`
	Selector  string    `yaml:"selector" json:"selector"`
	Attribute string    `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Type      FieldType `yaml:"type,omitempty" json:"type,omitempty"`
}

// RuleSet defines one page schema. Container, when set, is a repeating
// scope selector: each match yields one record, with field selectors
// evaluated relative to it. Field order is the export column order.
type RuleSet struct {
	Container string `yaml:"container,omitempty" json:"container,omitempty"`
	Fields    []Rule `yaml:"fields" json:"fields"`
}

// FieldNames returns the declared field names in rule order.
func (rs RuleSet) FieldNames() []string {
	names := make([]string, 0, len(rs.Fields))
	for _, r := range rs.Fields {
		names = append(names, r.Name)
	}
	return names
}

// Attempt records the outcome of a single fetch attempt, for diagnostics.
type Attempt struct {
	Time       time.Time     `json:"time"`
	StatusCode int           `json:"status_code,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Err        string        `json:"error,omitempty"`
}

// FetchResult is the outcome of a successful fetch. Immutable once
// returned; owned by the caller.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
	Attempts   int
	Log        []Attempt
}

// RawRecord holds raw extracted strings before normalization. A field
// whose selector matched nothing is simply absent from Fields.
type RawRecord struct {
	URL         string            `json:"url"`
	Fields      map[string]string `json:"fields"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// Record is a canonical record: field name to typed value. Values are
// string, int64, float64 or nil. Field order lives on the Batch schema.
type Record map[string]any

// Batch is an ordered sequence of records sharing one schema. The
// schema fixes column order for tabular export.
type Batch struct {
	Fields  []string `json:"fields"`
	Records []Record `json:"records"`
}

// Append adds a record to the batch.
func (b *Batch) Append(rec Record) {
	b.Records = append(b.Records, rec)
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Records)
}
