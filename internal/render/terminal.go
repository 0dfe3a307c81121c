package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"bookshelf/internal/models"
)

var (
	termTitle   = lipgloss.NewStyle().Bold(true)
	termAuthors = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	termID      = lipgloss.NewStyle().Faint(true)
	termIndex   = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Width(4)
)

// Terminal renders the favorites panel for a terminal.
func Terminal(c models.Collection) string {
	if len(c) == 0 {
		return EmptyPanel + "\n"
	}

	var b strings.Builder
	for i, e := range c {
		title := e.Title
		if title == "" {
			title = UntitledBook
		}
		fmt.Fprintf(&b, "%s%s\n", termIndex.Render(fmt.Sprintf("%d.", i+1)), termTitle.Render(title))
		fmt.Fprintf(&b, "    %s\n", termAuthors.Render(AuthorText(e.Authors)))
		fmt.Fprintf(&b, "    %s\n", termID.Render("id: "+e.ID))
	}
	return b.String()
}

// TerminalResults renders search results for a terminal.
func TerminalResults(books []models.BookSummary) string {
	if len(books) == 0 {
		return NoResults + "\n"
	}

	var b strings.Builder
	for i, book := range books {
		title := book.Title
		if title == "" {
			title = UntitledBook
		}
		fmt.Fprintf(&b, "%s%s\n", termIndex.Render(fmt.Sprintf("%d.", i+1)), termTitle.Render(title))
		fmt.Fprintf(&b, "    %s\n", termAuthors.Render(AuthorText(book.Authors)))
		fmt.Fprintf(&b, "    %s\n", termID.Render("id: "+book.ID))
	}
	return b.String()
}
