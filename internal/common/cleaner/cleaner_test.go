package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanStripsScripts(t *testing.T) {
	c := NewCleaner()
	out := c.Clean(`<p>hello</p><script>alert(1)</script>`)
	assert.Equal(t, "<p>hello</p>", out)
}

func TestCleanToText(t *testing.T) {
	c := NewStrictCleaner()
	out := c.CleanToText(`<div><b>bold</b> and plain</div>`)
	assert.Equal(t, "bold and plain", out)
}

func TestCleanFields(t *testing.T) {
	c := NewStrictCleaner()
	out := c.CleanFields(map[string]string{
		"title": `<h1 onclick="x()">Title</h1>`,
		"plain": "untouched",
	})
	assert.Equal(t, "Title", out["title"])
	assert.Equal(t, "untouched", out["plain"])
}
