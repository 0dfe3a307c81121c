package render

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshelf/internal/models"
)

func mustDoc(t *testing.T, fragment string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	require.NoError(t, err)
	return doc
}

func TestPanelEmptySnapshot(t *testing.T) {
	got, err := PanelHTML(nil)
	require.NoError(t, err)

	want := `<div id="favorites" class="favorites" data-state="empty"><p class="empty">No favorites yet.</p></div>`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("empty panel mismatch (-want +got):\n%s", diff)
	}
}

func TestPanelPopulatedSnapshot(t *testing.T) {
	got, err := PanelHTML(models.Collection{{ID: "A1", Title: "Foo", Authors: []string{"X"}}})
	require.NoError(t, err)

	want := `<div id="favorites" class="favorites" data-state="populated">` +
		`<ul class="favorites-list"><li class="favorite" data-id="A1">` +
		`<img class="cover" src="https://via.placeholder.com/128x195?text=No+Cover" alt="Cover of Foo" loading="lazy"/>` +
		`<div class="info"><h3 class="title">Foo</h3><p class="authors">X</p></div>` +
		`<button type="button" class="remove" data-action="remove" data-id="A1">Remove</button>` +
		`</li></ul></div>`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("populated panel mismatch (-want +got):\n%s", diff)
	}
}

func TestPanelMissingAuthorsUsesFallback(t *testing.T) {
	out, err := PanelHTML(models.Collection{{ID: "A1", Title: "Foo"}})
	require.NoError(t, err)

	doc := mustDoc(t, out)
	assert.Equal(t, UnknownAuthor, doc.Find("li[data-id='A1'] .authors").Text())
}

func TestPanelEntries(t *testing.T) {
	c := models.Collection{
		{ID: "A1", Title: "Foo", Authors: []string{"X", "Y"}, Image: "https://img/a1"},
		{ID: "B2", Authors: []string{" ", ""}},
	}

	out, err := PanelHTML(c)
	require.NoError(t, err)
	doc := mustDoc(t, out)

	items := doc.Find("li.favorite")
	require.Equal(t, 2, items.Length())

	first := items.Eq(0)
	assert.Equal(t, "A1", first.AttrOr("data-id", ""))
	assert.Equal(t, "https://img/a1", first.Find("img").AttrOr("src", ""))
	assert.Equal(t, "Foo", first.Find(".title").Text())
	assert.Equal(t, "X, Y", first.Find(".authors").Text())
	assert.Equal(t, "A1", first.Find("button[data-action='remove']").AttrOr("data-id", ""))

	second := items.Eq(1)
	assert.Equal(t, "", second.Find(".title").Text())
	assert.Equal(t, UnknownAuthor, second.Find(".authors").Text())
	assert.Equal(t, PlaceholderImage, second.Find("img").AttrOr("src", ""))
	assert.Equal(t, "Cover", second.Find("img").AttrOr("alt", ""))
}

func TestPanelEscapesContent(t *testing.T) {
	out, err := PanelHTML(models.Collection{{ID: `x" onclick="evil`, Title: "<script>alert(1)</script>"}})
	require.NoError(t, err)

	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, `onclick="evil"`)

	doc := mustDoc(t, out)
	assert.Equal(t, "<script>alert(1)</script>", doc.Find(".title").Text())
	assert.Equal(t, 0, doc.Find("script").Length())
}

func TestPanelIsPure(t *testing.T) {
	c := models.Collection{{ID: "A1", Title: "Foo", Authors: []string{"X"}}}
	before := append(models.Collection(nil), c...)

	first := Panel(c)
	second := Panel(c)

	assert.NotSame(t, first, second)
	assert.Equal(t, before, c)

	a, err := HTML(first)
	require.NoError(t, err)
	b, err := HTML(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAuthorText(t *testing.T) {
	assert.Equal(t, UnknownAuthor, AuthorText(nil))
	assert.Equal(t, UnknownAuthor, AuthorText([]string{}))
	assert.Equal(t, "X", AuthorText([]string{"X"}))
	assert.Equal(t, "X, Y", AuthorText([]string{"X", " Y "}))
}

func TestImageURL(t *testing.T) {
	assert.Equal(t, PlaceholderImage, ImageURL(""))
	assert.Equal(t, PlaceholderImage, ImageURL("  "))
	assert.Equal(t, "https://img", ImageURL("https://img"))
}

func TestResults(t *testing.T) {
	out, err := HTML(Results([]models.BookSummary{
		{ID: "A1", Title: "Foo", Authors: []string{"X"}},
		{ID: "B2"},
	}))
	require.NoError(t, err)
	doc := mustDoc(t, out)

	assert.Equal(t, StatePopulated, doc.Find("#results").AttrOr("data-state", ""))
	cards := doc.Find(".card")
	require.Equal(t, 2, cards.Length())
	assert.Equal(t, "A1", cards.Eq(0).Find("button[data-action='details']").AttrOr("data-id", ""))
	assert.Equal(t, "A1", cards.Eq(0).Find("button[data-action='add']").AttrOr("data-id", ""))
	assert.Equal(t, UntitledBook, cards.Eq(1).Find(".title").Text())
	assert.Equal(t, UnknownAuthor, cards.Eq(1).Find(".authors").Text())
}

func TestResultsEmptyAndErrorDiffer(t *testing.T) {
	empty, err := HTML(Results(nil))
	require.NoError(t, err)
	failed, err := HTML(SearchError())
	require.NoError(t, err)

	assert.Equal(t, StateEmpty, mustDoc(t, empty).Find("#results").AttrOr("data-state", ""))
	assert.Contains(t, empty, NoResults)
	assert.Equal(t, StateError, mustDoc(t, failed).Find("#results").AttrOr("data-state", ""))
	assert.Contains(t, failed, SearchFailed)
}

func TestDetails(t *testing.T) {
	out, err := HTML(Details(models.BookDetails{
		ID:            "A1",
		Title:         "Foo",
		Subtitle:      "A Tale",
		Authors:       []string{"X"},
		Description:   "First paragraph.\n\nSecond paragraph.",
		Publisher:     "Acme",
		PublishedDate: "2001",
		PageCount:     320,
		Categories:    []string{"Fiction"},
		InfoLink:      "https://books.example/a1",
	}))
	require.NoError(t, err)
	doc := mustDoc(t, out)

	d := doc.Find("#details")
	assert.Equal(t, StateLoaded, d.AttrOr("data-state", ""))
	assert.Equal(t, "Foo", d.Find("h2.title").Text())
	assert.Equal(t, "A Tale", d.Find(".subtitle").Text())
	assert.Equal(t, "Acme · 2001 · 320 pages", d.Find(".meta").Text())
	assert.Equal(t, "Fiction", d.Find(".categories").Text())
	assert.Equal(t, 2, d.Find(".description p").Length())
	assert.Equal(t, "A1", d.Find("button[data-action='add']").AttrOr("data-id", ""))
	assert.Equal(t, "https://books.example/a1", d.Find("a").AttrOr("href", ""))
}

func TestDetailsMinimal(t *testing.T) {
	out, err := HTML(Details(models.BookDetails{ID: "A1"}))
	require.NoError(t, err)
	doc := mustDoc(t, out)

	assert.Equal(t, UntitledBook, doc.Find("h2.title").Text())
	assert.Equal(t, UnknownAuthor, doc.Find(".authors").Text())
	assert.Equal(t, 0, doc.Find(".meta").Length())
	assert.Equal(t, 0, doc.Find("a").Length())
	assert.Equal(t, PlaceholderImage, doc.Find("img").AttrOr("src", ""))
}

func TestDetailsError(t *testing.T) {
	out, err := HTML(DetailsError())
	require.NoError(t, err)

	doc := mustDoc(t, out)
	assert.Equal(t, StateError, doc.Find("#details").AttrOr("data-state", ""))
	assert.Equal(t, DetailsFailed, doc.Find(".error").Text())
}

func TestTerminal(t *testing.T) {
	assert.Equal(t, EmptyPanel+"\n", Terminal(nil))

	out := Terminal(models.Collection{
		{ID: "A1", Title: "Foo", Authors: []string{"X"}},
		{ID: "B2"},
	})
	assert.Contains(t, out, "Foo")
	assert.Contains(t, out, "id: A1")
	assert.Contains(t, out, UntitledBook)
	assert.Contains(t, out, UnknownAuthor)
	assert.Less(t, strings.Index(out, "A1"), strings.Index(out, "B2"))
}

func TestTerminalResults(t *testing.T) {
	assert.Equal(t, NoResults+"\n", TerminalResults(nil))
	assert.Contains(t, TerminalResults([]models.BookSummary{{ID: "A1", Title: "Foo"}}), "id: A1")
}
