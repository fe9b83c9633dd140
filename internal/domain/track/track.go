// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"
)

// DateLayout is the release date layout used by the catalog service.
const DateLayout = "2006-01-02"

// Track represents an ambient sound recording in the catalog.
// Contains only information retrieved from the catalog service.
type Track struct {
	ID     int    // Catalog music ID
	Title  string // Track title
	Author string // Author / artist name
	Date   string // Release date (YYYY-MM-DD)
}

// ReleaseDate parses the release date.
// Returns the zero time and false if the date is missing or malformed.
func (t *Track) ReleaseDate() (time.Time, bool) {
	if t.Date == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, t.Date)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Matches reports whether the title contains term, case-insensitively.
// An empty term matches every track.
func (t *Track) Matches(term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), strings.ToLower(term))
}

// FindByID returns the track with the given ID.
func FindByID(tracks []Track, id int) (Track, bool) {
	for _, t := range tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}
