// Package render projects favorites, search results and book details into
// HTML node trees. Every function builds a fresh tree from its input and
// never touches storage.
package render

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"bookshelf/internal/models"
)

const (
	UnknownAuthor    = "Unknown Author"
	AuthorSeparator  = ", "
	PlaceholderImage = "https://via.placeholder.com/128x195?text=No+Cover"

	PanelID    = "favorites"
	EmptyPanel = "No favorites yet."
)

// Panel state values exposed as data-state.
const (
	StateEmpty     = "empty"
	StatePopulated = "populated"
)

// AuthorText joins authors, falling back to UnknownAuthor.
func AuthorText(authors []string) string {
	var names []string
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			names = append(names, a)
		}
	}
	if len(names) == 0 {
		return UnknownAuthor
	}
	return strings.Join(names, AuthorSeparator)
}

// ImageURL returns src, or PlaceholderImage when src is empty.
func ImageURL(src string) string {
	if strings.TrimSpace(src) == "" {
		return PlaceholderImage
	}
	return src
}

// Panel builds the favorites panel for c.
func Panel(c models.Collection) *html.Node {
	root := element(atom.Div, attr("id", PanelID), attr("class", "favorites"))

	if len(c) == 0 {
		root.Attr = append(root.Attr, attr("data-state", StateEmpty))
		return with(root, textElement(atom.P, "empty", EmptyPanel))
	}

	root.Attr = append(root.Attr, attr("data-state", StatePopulated))
	list := element(atom.Ul, attr("class", "favorites-list"))
	for _, e := range c {
		list.AppendChild(favoriteItem(e))
	}
	return with(root, list)
}

func favoriteItem(e models.FavoriteEntry) *html.Node {
	info := with(element(atom.Div, attr("class", "info")),
		textElement(atom.H3, "title", e.Title),
		textElement(atom.P, "authors", AuthorText(e.Authors)),
	)
	return with(element(atom.Li, attr("class", "favorite"), attr("data-id", e.ID)),
		cover(e.Image, e.Title),
		info,
		button("remove", e.ID, "Remove"),
	)
}

// PanelHTML is Panel serialized to a string.
func PanelHTML(c models.Collection) (string, error) {
	return HTML(Panel(c))
}
