package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"bookshelf/internal/models"
)

// volumeList matches GET /volumes?q=...
type volumeList struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

// volume matches GET /volumes/{id} and the entries of volumeList.
type volume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title         string   `json:"title"`
		Subtitle      string   `json:"subtitle"`
		Authors       []string `json:"authors"`
		Publisher     string   `json:"publisher"`
		PublishedDate string   `json:"publishedDate"`
		Description   string   `json:"description"`
		PageCount     int      `json:"pageCount"`
		Categories    []string `json:"categories"`
		ImageLinks    struct {
			SmallThumbnail string `json:"smallThumbnail"`
			Thumbnail      string `json:"thumbnail"`
		} `json:"imageLinks"`
		InfoLink string `json:"infoLink"`
	} `json:"volumeInfo"`
}

func (v volume) thumbnail() string {
	if v.VolumeInfo.ImageLinks.Thumbnail != "" {
		return NormalizeImageURL(v.VolumeInfo.ImageLinks.Thumbnail)
	}
	return NormalizeImageURL(v.VolumeInfo.ImageLinks.SmallThumbnail)
}

// ParseSearch decodes a volumes search response. A response without items is
// an empty result, not an error.
func ParseSearch(body io.Reader) ([]models.BookSummary, error) {
	var list volumeList
	if err := json.NewDecoder(body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	books := make([]models.BookSummary, 0, len(list.Items))
	for _, v := range list.Items {
		if v.ID == "" {
			continue
		}
		books = append(books, models.BookSummary{
			ID:        v.ID,
			Title:     strings.TrimSpace(v.VolumeInfo.Title),
			Authors:   cleanList(v.VolumeInfo.Authors),
			Thumbnail: v.thumbnail(),
		})
	}
	return books, nil
}

// ParseVolume decodes a single volume response.
func ParseVolume(body io.Reader) (models.BookDetails, error) {
	var v volume
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		return models.BookDetails{}, fmt.Errorf("decode volume: %w", err)
	}
	if v.ID == "" {
		return models.BookDetails{}, fmt.Errorf("decode volume: missing id")
	}

	info := v.VolumeInfo
	return models.BookDetails{
		ID:            v.ID,
		Title:         strings.TrimSpace(info.Title),
		Subtitle:      strings.TrimSpace(info.Subtitle),
		Authors:       cleanList(info.Authors),
		Description:   PlainText(info.Description),
		Publisher:     strings.TrimSpace(info.Publisher),
		PublishedDate: strings.TrimSpace(info.PublishedDate),
		PageCount:     info.PageCount,
		Categories:    cleanList(info.Categories),
		Thumbnail:     v.thumbnail(),
		InfoLink:      info.InfoLink,
	}, nil
}

// NormalizeImageURL upgrades catalog image links to https and drops the page
// curl effect.
func NormalizeImageURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http://") {
		u = "https://" + strings.TrimPrefix(u, "http://")
	}
	u = strings.ReplaceAll(u, "&edge=curl", "")
	return u
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
