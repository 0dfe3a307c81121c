package models

// BookSummary is one search hit returned by the catalog.
type BookSummary struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
}

// BookDetails is the full volume record for a single book.
type BookDetails struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Description   string   `json:"description,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	InfoLink      string   `json:"info_link,omitempty"`
}

// Favorite converts the details into the entry stored in a favorites collection.
func (d BookDetails) Favorite() FavoriteEntry {
	var authors []string
	if len(d.Authors) > 0 {
		authors = append(authors, d.Authors...)
	}
	return FavoriteEntry{
		ID:      d.ID,
		Title:   d.Title,
		Authors: authors,
		Image:   d.Thumbnail,
	}
}
