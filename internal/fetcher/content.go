// File: internal/fetcher/content.go
package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// mainContentSelectors are tried in order; the first match that yields
// meaningful text becomes the content region. When none matches, the full
// body is the fallback.
var mainContentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#content",
	"#main-content",
	".article-body",
	".post-content",
	".entry-content",
}

// strippedSelectors are removed before any text is extracted.
const strippedSelectors = "script, style, noscript, iframe, svg, nav, footer, form"

// pageContent is the text view of one fetched HTML document.
type pageContent struct {
	Title           string
	MetaDescription string
	Text            string
}

// extractPageContent parses HTML and returns the visible text of the primary
// content region, plus title and meta description.
func extractPageContent(html string) (pageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return pageContent{}, err
	}

	doc.Find(strippedSelectors).Remove()

	out := pageContent{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		out.MetaDescription = strings.TrimSpace(desc)
	}

	region := doc.Find("body")
	for _, sel := range mainContentSelectors {
		if candidate := doc.Find(sel).First(); candidate.Length() > 0 {
			if text := collapseWhitespace(candidate.Text()); len(text) >= 100 {
				out.Text = text
				return out, nil
			}
		}
	}
	out.Text = collapseWhitespace(region.Text())
	return out, nil
}

// collapseWhitespace flattens runs of whitespace into single spaces so the
// pattern rules downstream see uniform text.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
