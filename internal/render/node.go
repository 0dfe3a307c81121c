package render

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func element(tag atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: tag,
		Data:     tag.String(),
		Attr:     attrs,
	}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

// with appends children to n and returns n.
func with(n *html.Node, children ...*html.Node) *html.Node {
	for _, c := range children {
		if c != nil {
			n.AppendChild(c)
		}
	}
	return n
}

func textElement(tag atom.Atom, class string, s string) *html.Node {
	return with(element(tag, attr("class", class)), text(s))
}

func button(action, id, label string) *html.Node {
	return with(element(atom.Button,
		attr("type", "button"),
		attr("class", action),
		attr("data-action", action),
		attr("data-id", id),
	), text(label))
}

func cover(src, title string) *html.Node {
	alt := "Cover"
	if title != "" {
		alt = "Cover of " + title
	}
	return element(atom.Img,
		attr("class", "cover"),
		attr("src", ImageURL(src)),
		attr("alt", alt),
		attr("loading", "lazy"),
	)
}

// HTML serializes a node tree.
func HTML(n *html.Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return b.String(), nil
}
