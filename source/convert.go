package source

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var (
	excessiveLinesRe = regexp.MustCompile(`\n{4,}`)
	trailingSpaceRe  = regexp.MustCompile(`[ \t]+\n`)
)

// Converted is an HTML page reduced to markdown.
type Converted struct {
	Title    string
	Markdown string
}

// Converter turns problem description pages into markdown. Readability picks
// the article body; pages it cannot handle fall back to the <main>/<article>
// element or a stripped <body>.
type Converter struct {
	converter *md.Converter
}

// NewConverter creates a Converter with GitHub-flavored output.
func NewConverter() *Converter {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return &Converter{converter: conv}
}

// Convert reduces page to markdown. pageURL resolves relative links and may
// be nil.
func (c *Converter) Convert(page []byte, pageURL *url.URL) (*Converted, error) {
	if pageURL == nil {
		pageURL = &url.URL{}
	}

	title := htmlTitle(page)
	body := ""

	article, err := readability.FromReader(bytes.NewReader(page), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		body = article.Content
		if title == "" {
			title = strings.TrimSpace(article.Title)
		}
	} else {
		body = mainContent(page)
	}

	markdown, err := c.converter.ConvertString(body)
	if err != nil {
		return nil, err
	}
	markdown = cleanMarkdown(markdown)

	if title == "" {
		title = markdownTitle(markdown)
	}
	return &Converted{Title: title, Markdown: markdown}, nil
}

func htmlTitle(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	if n := findElement(doc, "title"); n != nil && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	return ""
}

func mainContent(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return string(page)
	}
	for _, tag := range []string{"main", "article"} {
		if n := findElement(doc, tag); n != nil {
			return render(n)
		}
	}
	removeElements(doc, map[string]bool{
		"nav": true, "header": true, "footer": true, "aside": true, "script": true,
		"style": true, "noscript": true, "iframe": true, "form": true,
	})
	if body := findElement(doc, "body"); body != nil {
		return render(body)
	}
	return string(page)
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func removeElements(n *html.Node, tags map[string]bool) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && tags[c.Data] {
			n.RemoveChild(c)
		} else {
			removeElements(c, tags)
		}
		c = next
	}
}

func render(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func cleanMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = excessiveLinesRe.ReplaceAllString(s, "\n\n\n")
	return strings.TrimSpace(s)
}

func markdownTitle(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
