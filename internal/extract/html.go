package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// noiseSelectors are stripped before text extraction. They hold navigation,
// chrome, and scripting rather than article content.
var noiseSelectors = []string{
	"script", "style", "noscript", "iframe", "svg", "form",
	"nav", "header", "footer", "aside",
}

// contentSelectors are tried in order; the first match that yields enough
// text wins. Falling through, the whole body is used.
var contentSelectors = []string{
	"article", "main", "[role=main]", "#content", ".content", ".post", ".article-body",
}

// extractHTML pulls the title and readable text out of an HTML document.
func extractHTML(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// Severely malformed markup. Strip tags and keep whatever text is left.
		return "", sanitizeFallback(body), nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(strings.Join(noiseSelectors, ", ")).Remove()

	var root *goquery.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 && len(strings.Fields(s.Text())) >= 40 {
			root = s
			break
		}
	}
	if root == nil {
		root = doc.Find("body").First()
		if root.Length() == 0 {
			root = doc.Selection
		}
	}

	text := blockText(root)
	if text == "" {
		text = sanitizeFallback(body)
	}

	return title, text, nil
}

// blockText walks block-level elements and joins their text as paragraphs,
// falling back to the selection's whole text when no blocks are present.
func blockText(root *goquery.Selection) string {
	var paras []string
	root.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, td").Each(func(i int, s *goquery.Selection) {
		// Skip containers whose text is already covered by a nested block.
		if s.Find("p, li, blockquote").Length() > 0 {
			return
		}
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			paras = append(paras, t)
		}
	})

	if len(paras) == 0 {
		return strings.Join(strings.Fields(root.Text()), " ")
	}
	return strings.Join(paras, "\n")
}

// sanitizeFallback strips all markup with bluemonday's strict policy and
// collapses the remaining whitespace.
func sanitizeFallback(body []byte) string {
	stripped := bluemonday.StrictPolicy().SanitizeBytes(body)
	return collapseWhitespace(string(stripped))
}
