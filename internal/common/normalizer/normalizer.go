package normalizer

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/webharvest/go-harvester/internal/common/cleaner"
	"github.com/webharvest/go-harvester/internal/domain"
)

var (
	wsRun        = regexp.MustCompile(`\s+`)
	currencyJunk = regexp.MustCompile(`[^0-9.\-]`)
	groupSep     = strings.NewReplacer(",", "", " ", "", " ", "")
)

// Normalizer converts raw extracted fields into typed canonical records
type Normalizer struct {
	cleaner *cleaner.Cleaner
}

// NewNormalizer creates a new normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{cleaner: cleaner.NewStrictCleaner()}
}

// Normalize converts a RawRecord into a canonical record. The output
// has exactly the fields declared in the rule set; a field that is
// missing, empty after cleaning, or fails coercion becomes nil. A
// record is never dropped for a single bad field.
func (n *Normalizer) Normalize(raw *domain.RawRecord, rules domain.RuleSet) domain.Record {
	rec := make(domain.Record, len(rules.Fields))

	for _, rule := range rules.Fields {
		value, ok := raw.Fields[rule.Name]
		if !ok {
			rec[rule.Name] = nil
			continue
		}

		text := n.cleanText(value)
		if text == "" {
			rec[rule.Name] = nil
			continue
		}

		rec[rule.Name] = coerce(text, rule.Type)
	}

	return rec
}

// cleanText strips markup, decodes HTML entities and collapses
// whitespace runs.
func (n *Normalizer) cleanText(s string) string {
	s = n.cleaner.Clean(s)
	s = html.UnescapeString(s)
	s = wsRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// coerce applies the rule's type to a cleaned string. Failure yields
// nil rather than an error.
func coerce(s string, typ domain.FieldType) any {
	switch typ {
	case domain.TypeInteger:
		return parseInt(s)
	case domain.TypeFloat:
		return parseFloat(s)
	case domain.TypeCurrency:
		return parseCurrency(s)
	default:
		return s
	}
}

func parseInt(s string) any {
	v, err := strconv.ParseInt(groupSep.Replace(s), 10, 64)
	if err != nil {
		return nil
	}
	return v
}

func parseFloat(s string) any {
	v, err := strconv.ParseFloat(groupSep.Replace(s), 64)
	if err != nil {
		return nil
	}
	return v
}

// parseCurrency drops currency symbols and grouping before parsing,
// so "$1,299.99" and "1 299 VND" both coerce.
func parseCurrency(s string) any {
	stripped := currencyJunk.ReplaceAllString(groupSep.Replace(s), "")
	if stripped == "" {
		return nil
	}
	v, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return nil
	}
	return v
}
