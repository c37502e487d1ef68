package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/webharvest/go-harvester/internal/domain"
)

// RulesFile is the YAML shape of a harvest schema file:
//
//	container: "div.listing-item"
//	fields:
//	  - name: title
//	    selector: "h2 a"
//	  - name: price
//	    selector: "span.price"
//	    type: currency
//	  - name: link
//	    selector: "h2 a"
//	    attribute: href
type RulesFile struct {
	Container string        `yaml:"container"`
	Fields    []domain.Rule `yaml:"fields"`
}

// LoadRules reads and validates a rule set from a YAML file. Selector
// validity is checked later at compile time; this only enforces shape.
func LoadRules(path string) (domain.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("read rules file: %w", err)
	}

	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return domain.RuleSet{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	if len(rf.Fields) == 0 {
		return domain.RuleSet{}, fmt.Errorf("rules file %s: no fields declared", path)
	}

	return domain.RuleSet{
		Container: rf.Container,
		Fields:    rf.Fields,
	}, nil
}
