package extractor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/webharvest/go-harvester/internal/domain"
)

// compiledField pairs a rule with its compiled selector.
type compiledField struct {
	rule domain.Rule
	sel  cascadia.Selector
}

// Compiled is a validated, ready-to-apply rule set. Selectors are
// compiled once at load time so a malformed selector is a load error,
// never a per-document surprise.
type Compiled struct {
	rules     domain.RuleSet
	container cascadia.Selector
	fields    []compiledField
}

// Compile validates a rule set and compiles its selectors.
func Compile(rules domain.RuleSet) (*Compiled, error) {
	if len(rules.Fields) == 0 {
		return nil, &domain.ExtractionError{Err: errors.New("rule set has no fields")}
	}

	c := &Compiled{rules: rules}

	if rules.Container != "" {
		sel, err := cascadia.Compile(rules.Container)
		if err != nil {
			return nil, &domain.ExtractionError{Field: "container", Selector: rules.Container, Err: err}
		}
		c.container = sel
	}

	seen := make(map[string]bool, len(rules.Fields))
	for _, r := range rules.Fields {
		if strings.TrimSpace(r.Name) == "" {
			return nil, &domain.ExtractionError{Selector: r.Selector, Err: errors.New("empty field name")}
		}
		if seen[r.Name] {
			return nil, &domain.ExtractionError{Field: r.Name, Err: errors.New("duplicate field name")}
		}
		seen[r.Name] = true

		switch r.Type {
		case "", domain.TypeText, domain.TypeInteger, domain.TypeFloat, domain.TypeCurrency:
		default:
			return nil, &domain.ExtractionError{Field: r.Name, Err: fmt.Errorf("unknown field type %q", r.Type)}
		}

		sel, err := cascadia.Compile(r.Selector)
		if err != nil {
			return nil, &domain.ExtractionError{Field: r.Name, Selector: r.Selector, Err: err}
		}
		c.fields = append(c.fields, compiledField{rule: r, sel: sel})
	}

	return c, nil
}

// Rules returns the rule set this extractor was compiled from.
func (c *Compiled) Rules() domain.RuleSet { return c.rules }

// Extract applies the rule set to a parsed document. With a container
// selector, each matched container yields one record with field
// selectors scoped to it; otherwise the whole document yields one
// record. A field whose selector matches nothing is left absent; a
// missing field never discards the record.
func (c *Compiled) Extract(doc *goquery.Document, pageURL string) []*domain.RawRecord {
	if c.container == nil {
		return []*domain.RawRecord{c.extractOne(doc.Selection, pageURL)}
	}

	var records []*domain.RawRecord
	doc.FindMatcher(c.container).Each(func(_ int, scope *goquery.Selection) {
		records = append(records, c.extractOne(scope, pageURL))
	})
	return records
}

func (c *Compiled) extractOne(scope *goquery.Selection, pageURL string) *domain.RawRecord {
	fields := make(map[string]string, len(c.fields))
	for _, f := range c.fields {
		match := scope.FindMatcher(f.sel).First()
		if match.Length() == 0 {
			continue
		}
		switch f.rule.Attribute {
		case "", "text":
			fields[f.rule.Name] = match.Text()
		default:
			if v, ok := match.Attr(f.rule.Attribute); ok {
				fields[f.rule.Name] = v
			}
		}
	}
	return &domain.RawRecord{
		URL:         pageURL,
		Fields:      fields,
		ExtractedAt: time.Now(),
	}
}
