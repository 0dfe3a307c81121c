package render

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"bookshelf/internal/models"
)

const (
	ResultsID = "results"
	DetailsID = "details"

	NoResults     = "No results found."
	SearchFailed  = "Search failed. Please try again."
	DetailsFailed = "Error fetching details."
	UntitledBook  = "Untitled"
	NoDescription = "No description available."
)

// Additional data-state values for the results and details containers.
const (
	StateError  = "error"
	StateLoaded = "loaded"
)

// Results builds the search results container. Each card carries "details"
// and "add" actions tagged with the book ID.
func Results(books []models.BookSummary) *html.Node {
	root := element(atom.Div, attr("id", ResultsID), attr("class", "results"))
	if len(books) == 0 {
		root.Attr = append(root.Attr, attr("data-state", StateEmpty))
		return with(root, textElement(atom.P, "empty", NoResults))
	}

	root.Attr = append(root.Attr, attr("data-state", StatePopulated))
	for _, b := range books {
		title := b.Title
		if title == "" {
			title = UntitledBook
		}
		card := with(element(atom.Div, attr("class", "card"), attr("data-id", b.ID)),
			cover(b.Thumbnail, b.Title),
			textElement(atom.H3, "title", title),
			textElement(atom.P, "authors", AuthorText(b.Authors)),
			with(element(atom.Div, attr("class", "actions")),
				button("details", b.ID, "View details"),
				button("add", b.ID, "Add to favorites"),
			),
		)
		root.AppendChild(card)
	}
	return root
}

// SearchError is shown instead of Results when the catalog request failed.
func SearchError() *html.Node {
	return with(element(atom.Div,
		attr("id", ResultsID),
		attr("class", "results"),
		attr("data-state", StateError),
	), textElement(atom.P, "error", SearchFailed))
}

// Details builds the details panel of one book.
func Details(d models.BookDetails) *html.Node {
	title := d.Title
	if title == "" {
		title = UntitledBook
	}

	root := with(element(atom.Div,
		attr("id", DetailsID),
		attr("class", "details"),
		attr("data-state", StateLoaded),
		attr("data-id", d.ID),
	),
		cover(d.Thumbnail, d.Title),
		textElement(atom.H2, "title", title),
	)
	if d.Subtitle != "" {
		root.AppendChild(textElement(atom.P, "subtitle", d.Subtitle))
	}
	root.AppendChild(textElement(atom.P, "authors", AuthorText(d.Authors)))

	if meta := Meta(d); meta != "" {
		root.AppendChild(textElement(atom.P, "meta", meta))
	}
	if len(d.Categories) > 0 {
		root.AppendChild(textElement(atom.P, "categories", strings.Join(d.Categories, AuthorSeparator)))
	}

	description := d.Description
	if description == "" {
		description = NoDescription
	}
	desc := element(atom.Div, attr("class", "description"))
	for _, para := range strings.Split(description, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			desc.AppendChild(with(element(atom.P), text(para)))
		}
	}
	root.AppendChild(desc)

	actions := with(element(atom.Div, attr("class", "actions")), button("add", d.ID, "Add to favorites"))
	if d.InfoLink != "" {
		actions.AppendChild(with(element(atom.A,
			attr("href", d.InfoLink),
			attr("target", "_blank"),
			attr("rel", "noopener"),
		), text("More info")))
	}
	return with(root, actions)
}

// Meta joins publisher, date and page count of d.
func Meta(d models.BookDetails) string {
	var parts []string
	if d.Publisher != "" {
		parts = append(parts, d.Publisher)
	}
	if d.PublishedDate != "" {
		parts = append(parts, d.PublishedDate)
	}
	if d.PageCount > 0 {
		parts = append(parts, fmt.Sprintf("%d pages", d.PageCount))
	}
	return strings.Join(parts, " · ")
}

// DetailsError is shown when a details lookup failed.
func DetailsError() *html.Node {
	return with(element(atom.Div,
		attr("id", DetailsID),
		attr("class", "details"),
		attr("data-state", StateError),
	), textElement(atom.P, "error", DetailsFailed))
}
