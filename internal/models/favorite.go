package models

// FavoriteEntry is one saved book reference. Title, Authors and Image come from
// the catalog as-is and may be empty.
type FavoriteEntry struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Authors []string `json:"authors,omitempty"`
	Image   string   `json:"image,omitempty"`
}

// Collection is an ordered list of favorites with unique IDs.
type Collection []FavoriteEntry

// Index returns the position of id, or -1.
func (c Collection) Index(id string) int {
	for i, e := range c {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (c Collection) Contains(id string) bool {
	return c.Index(id) >= 0
}

// IDs returns the entry IDs in collection order.
func (c Collection) IDs() []string {
	ids := make([]string, 0, len(c))
	for _, e := range c {
		ids = append(ids, e.ID)
	}
	return ids
}

// Append returns a new collection with entry at the end, or c itself when the
// ID is already present.
func (c Collection) Append(entry FavoriteEntry) (Collection, bool) {
	if c.Contains(entry.ID) {
		return c, false
	}
	out := make(Collection, 0, len(c)+1)
	out = append(out, c...)
	return append(out, entry), true
}

// Without returns a new collection holding every entry except id.
func (c Collection) Without(id string) Collection {
	out := make(Collection, 0, len(c))
	for _, e := range c {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// Dedup keeps the first occurrence of every ID.
func (c Collection) Dedup() Collection {
	seen := make(map[string]struct{}, len(c))
	out := make(Collection, 0, len(c))
	for _, e := range c {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
