package source

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLTitle(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"simple", "<html><head><title>Knapsack</title></head></html>", "Knapsack"},
		{"whitespace", "<title>\n  TSP  \n</title>", "TSP"},
		{"missing", "<html><body>no title</body></html>", ""},
		{"empty", "<title></title>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, htmlTitle([]byte(tt.page)))
		})
	}
}

func TestMainContent(t *testing.T) {
	t.Run("prefers main", func(t *testing.T) {
		got := mainContent([]byte(`<body><nav>menu</nav><main><p>problem</p></main></body>`))
		assert.Contains(t, got, "problem")
		assert.NotContains(t, got, "menu")
	})

	t.Run("strips chrome from body", func(t *testing.T) {
		got := mainContent([]byte(`<body><header>top</header><p>text</p><script>x()</script><footer>end</footer></body>`))
		assert.Contains(t, got, "text")
		assert.NotContains(t, got, "top")
		assert.NotContains(t, got, "x()")
		assert.NotContains(t, got, "end")
	})
}

func TestCleanMarkdown(t *testing.T) {
	assert.Equal(t, "a\n\n\nb", cleanMarkdown("a\n\n\n\n\n\nb"))
	assert.Equal(t, "a\nb", cleanMarkdown("a   \r\nb\n\n"))
}

func TestMarkdownTitle(t *testing.T) {
	assert.Equal(t, "Graph colouring", markdownTitle("intro\n# Graph colouring\n## Input"))
	assert.Equal(t, "", markdownTitle("## Only second level"))
}

func TestConverter_FallsBackForShortPages(t *testing.T) {
	c := NewConverter()
	base, err := url.Parse("https://example.com/p")
	require.NoError(t, err)

	out, err := c.Convert([]byte(`<html><head><title>Bin packing</title></head><body><main><h1>Bin packing</h1><p>Pack items.</p></main></body></html>`), base)
	require.NoError(t, err)
	assert.Equal(t, "Bin packing", out.Title)
	assert.Contains(t, out.Markdown, "Pack items.")
}

func TestConverter_NilURL(t *testing.T) {
	out, err := NewConverter().Convert([]byte(`<p>Just a paragraph.</p>`), nil)
	require.NoError(t, err)
	assert.Contains(t, out.Markdown, "Just a paragraph.")
}
