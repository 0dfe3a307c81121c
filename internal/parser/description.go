package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText flattens the HTML the catalog uses in descriptions. Paragraphs
// and list items are separated by a blank line, <br> becomes a line break.
// Parsing is best-effort: input that fails to parse is returned trimmed.
func PlainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")

	blocks := doc.Find("p, li")
	if blocks.Length() == 0 {
		blocks = doc.Find("body")
	}

	var paras []string
	blocks.Each(func(_ int, s *goquery.Selection) {
		if t := collapseSpace(s.Text()); t != "" {
			paras = append(paras, t)
		}
	})
	return strings.Join(paras, "\n\n")
}

// collapseSpace squeezes runs of blanks inside each line and drops empty lines.
func collapseSpace(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
