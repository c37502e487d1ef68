package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webharvest/go-harvester/internal/domain"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeRules(t, `
container: "li.item"
fields:
  - name: title
    selector: "h2 a"
  - name: price
    selector: "span.price"
    type: currency
  - name: link
    selector: "h2 a"
    attribute: href
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, "li.item", rules.Container)
	require.Len(t, rules.Fields, 3)
	assert.Equal(t, []string{"title", "price", "link"}, rules.FieldNames())
	assert.Equal(t, domain.TypeCurrency, rules.Fields[1].Type)
	assert.Equal(t, "href", rules.Fields[2].Attribute)
}

func TestLoadRulesNoContainer(t *testing.T) {
	path := writeRules(t, `
fields:
  - name: headline
    selector: h1
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Empty(t, rules.Container)
	require.Len(t, rules.Fields, 1)
}

func TestLoadRulesEmptyFields(t *testing.T) {
	path := writeRules(t, `container: "div"`)

	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestLoadRulesBadYAML(t *testing.T) {
	path := writeRules(t, "fields: [unclosed")

	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
