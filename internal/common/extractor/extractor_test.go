package extractor

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webharvest/go-harvester/internal/domain"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestCompileRejectsEmptyRuleSet(t *testing.T) {
	_, err := Compile(domain.RuleSet{})
	var xerr *domain.ExtractionError
	require.ErrorAs(t, err, &xerr)
}

func TestCompileRejectsMalformedSelector(t *testing.T) {
	_, err := Compile(domain.RuleSet{Fields: []domain.Rule{
		{Name: "title", Selector: "div[["},
	}})
	var xerr *domain.ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "title", xerr.Field)
}

func TestCompileRejectsDuplicateNames(t *testing.T) {
	_, err := Compile(domain.RuleSet{Fields: []domain.Rule{
		{Name: "title", Selector: "h1"},
		{Name: "title", Selector: "h2"},
	}})
	require.Error(t, err)
}

func TestCompileRejectsUnknownType(t *testing.T) {
	_, err := Compile(domain.RuleSet{Fields: []domain.Rule{
		{Name: "price", Selector: "span", Type: "decimal"},
	}})
	require.Error(t, err)
}

func TestExtractWholeDocument(t *testing.T) {
	c, err := Compile(domain.RuleSet{Fields: []domain.Rule{
		{Name: "title", Selector: "h1"},
		{Name: "link", Selector: "a.more", Attribute: "href"},
	}})
	require.NoError(t, err)

	doc := parseDoc(t, `<html><body>
		<h1>Hello</h1>
		<a class="more" href="/next">more</a>
	</body></html>`)

	records := c.Extract(doc, "http://example.com/page")
	require.Len(t, records, 1)
	assert.Equal(t, "Hello", records[0].Fields["title"])
	assert.Equal(t, "/next", records[0].Fields["link"])
	assert.Equal(t, "http://example.com/page", records[0].URL)
}

func TestExtractRepeatingContainer(t *testing.T) {
	c, err := Compile(domain.RuleSet{
		Container: "li.item",
		Fields: []domain.Rule{
			{Name: "name", Selector: "span.name"},
			{Name: "price", Selector: "span.price"},
		},
	})
	require.NoError(t, err)

	doc := parseDoc(t, `<ul>
		<li class="item"><span class="name">A</span><span class="price">$1</span></li>
		<li class="item"><span class="name">B</span><span class="price">$2</span></li>
		<li class="item"><span class="name">C</span></li>
	</ul>`)

	records := c.Extract(doc, "http://example.com")
	require.Len(t, records, 3)
	assert.Equal(t, "A", records[0].Fields["name"])
	assert.Equal(t, "$2", records[1].Fields["price"])

	// Missing match never discards the record; the field is just absent.
	_, ok := records[2].Fields["price"]
	assert.False(t, ok)
	assert.Equal(t, "C", records[2].Fields["name"])
}

func TestExtractMissingFieldKeepsRecord(t *testing.T) {
	c, err := Compile(domain.RuleSet{Fields: []domain.Rule{
		{Name: "title", Selector: "h1"},
		{Name: "price", Selector: "span.price"},
	}})
	require.NoError(t, err)

	doc := parseDoc(t, `<html><body><h1>Only title here</h1></body></html>`)

	records := c.Extract(doc, "http://example.com")
	require.Len(t, records, 1)
	assert.Equal(t, "Only title here", records[0].Fields["title"])
	_, ok := records[0].Fields["price"]
	assert.False(t, ok)
}
