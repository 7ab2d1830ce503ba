// Package document assembles a generation result into one standalone HTML page.
package document

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/playforge/internal/models"
)

const fragmentTitle = "Generated Content"

// Assemble merges markup, style and script into one complete document.
//
// Markup that already starts with a doctype or <html> is kept as is; CSS and JS
// are injected only when the document has no style or script block of its own.
// Anything else is treated as a body fragment and wrapped in a minimal shell.
func Assemble(result models.GenerationResult) string {
	if isFullDocument(result.HTML) {
		doc := result.HTML
		if result.CSS != "" && !hasBlock(doc, "style") {
			doc = injectStyle(doc, result.CSS)
		}
		if result.JS != "" && !hasBlock(doc, "script") {
			doc = injectScript(doc, result.JS)
		}
		return doc
	}

	return wrapFragment(result)
}

func isFullDocument(markup string) bool {
	lower := strings.ToLower(strings.TrimSpace(markup))
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}

func hasBlock(doc, tag string) bool {
	lower := asciiLower(doc)
	return strings.Contains(lower, "<"+tag+">") || strings.Contains(lower, "</"+tag+">")
}

func injectStyle(doc, css string) string {
	block := "<style>\n" + css + "\n</style>\n"
	if i := indexFold(doc, "</head>"); i != -1 {
		return doc[:i] + block + doc[i:]
	}
	if i := indexFold(doc, "</html>"); i != -1 {
		return doc[:i] + "<head><style>\n" + css + "\n</style></head>" + doc[i:]
	}
	return "<!DOCTYPE html><html><head><style>\n" + css + "\n</style></head><body>" + doc + "</body></html>"
}

func injectScript(doc, js string) string {
	if i := indexFold(doc, "</body>"); i != -1 {
		return doc[:i] + "<script>\n" + js + "\n</script>\n" + doc[i:]
	}
	if i := indexFold(doc, "</html>"); i != -1 {
		return doc[:i] + "<script>\n" + js + "\n</script>" + doc[i:]
	}
	return doc + "<script>\n" + js + "\n</script>"
}

func wrapFragment(result models.GenerationResult) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("    <meta charset=\"UTF-8\">\n")
	b.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("    <title>" + fragmentTitle + "</title>")
	if result.CSS != "" {
		b.WriteString("\n    <style>\n" + result.CSS + "\n    </style>")
	}
	b.WriteString("\n</head>\n<body>\n    ")
	b.WriteString(result.HTML)
	if result.JS != "" {
		b.WriteString("\n    <script>\n" + result.JS + "\n    </script>")
	}
	b.WriteString("\n</body>\n</html>")
	return b.String()
}

// indexFold finds a lowercase ASCII marker regardless of case. Only ASCII is
// folded so byte offsets in doc stay valid.
func indexFold(doc, marker string) int {
	return strings.Index(asciiLower(doc), marker)
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Title returns the text of the document's <title>, or "" when absent or unparseable
func Title(doc string) string {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Find("title").First().Text())
}
