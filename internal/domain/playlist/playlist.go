// Package playlist provides the Playlist domain entity.
package playlist

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/ambientbox/internal/domain/track"
)

// ErrEmpty is returned when a playlist is created without tracks.
var ErrEmpty = errors.New("playlist is empty")

// Playlist is an ordered list of tracks with a navigation cursor.
// The cursor is always within [0, Len()-1].
// Playlist is not safe for concurrent use; the playback controller owns it.
type Playlist struct {
	tracks []track.Track
	index  int
}

// New creates a playlist positioned at the first track.
func New(tracks []track.Track) (*Playlist, error) {
	if len(tracks) == 0 {
		return nil, ErrEmpty
	}
	copied := make([]track.Track, len(tracks))
	copy(copied, tracks)
	return &Playlist{tracks: copied}, nil
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.tracks)
}

// Index returns the cursor position.
func (p *Playlist) Index() int {
	return p.index
}

// Current returns the track under the cursor.
func (p *Playlist) Current() track.Track {
	return p.tracks[p.index]
}

// Tracks returns a copy of the tracks.
func (p *Playlist) Tracks() []track.Track {
	result := make([]track.Track, len(p.tracks))
	copy(result, p.tracks)
	return result
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []int {
	ids := make([]int, len(p.tracks))
	for i, t := range p.tracks {
		ids[i] = t.ID
	}
	return ids
}

// IndexOf returns the position of the track with the given ID, or -1.
func (p *Playlist) IndexOf(id int) int {
	for i, t := range p.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Seek moves the cursor to index. Out of range indexes are rejected.
func (p *Playlist) Seek(index int) bool {
	if index < 0 || index >= len(p.tracks) {
		return false
	}
	p.index = index
	return true
}

// NextIndex returns the index after the cursor, wrapping to 0.
func (p *Playlist) NextIndex() int {
	if p.index >= len(p.tracks)-1 {
		return 0
	}
	return p.index + 1
}

// PreviousIndex returns the index before the cursor, wrapping to the last track.
func (p *Playlist) PreviousIndex() int {
	if p.index <= 0 {
		return len(p.tracks) - 1
	}
	return p.index - 1
}

// Next advances the cursor with wraparound and returns the new current track.
func (p *Playlist) Next() track.Track {
	p.index = p.NextIndex()
	return p.tracks[p.index]
}

// Previous retreats the cursor with wraparound and returns the new current track.
func (p *Playlist) Previous() track.Track {
	p.index = p.PreviousIndex()
	return p.tracks[p.index]
}
