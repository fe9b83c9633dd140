package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/ambientbox/internal/domain/track"
)

func abc() []track.Track {
	return []track.Track{
		{ID: 1, Title: "A"},
		{ID: 2, Title: "B"},
		{ID: 3, Title: "C"},
	}
}

func TestNew_Empty(t *testing.T) {
	p, err := New(nil)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNew_CopiesTracks(t *testing.T) {
	tracks := abc()
	p, err := New(tracks)
	require.NoError(t, err)

	tracks[0].Title = "mutated"
	assert.Equal(t, "A", p.Current().Title)
	assert.Equal(t, 0, p.Index())
	assert.Equal(t, 3, p.Len())
}

func TestPlaylist_TrackIDs(t *testing.T) {
	p, err := New(abc())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, p.TrackIDs())
}

func TestPlaylist_NextWraps(t *testing.T) {
	p, err := New(abc())
	require.NoError(t, err)

	assert.Equal(t, "B", p.Next().Title)
	assert.Equal(t, "C", p.Next().Title)
	assert.Equal(t, 2, p.Index())
	assert.Equal(t, "A", p.Next().Title)
	assert.Equal(t, 0, p.Index())
}

func TestPlaylist_PreviousWraps(t *testing.T) {
	p, err := New(abc())
	require.NoError(t, err)

	assert.Equal(t, "C", p.Previous().Title)
	assert.Equal(t, 2, p.Index())
	assert.Equal(t, "B", p.Previous().Title)
}

func TestPlaylist_CursorAlwaysInRange(t *testing.T) {
	for n := 1; n <= 5; n++ {
		tracks := make([]track.Track, n)
		for i := range tracks {
			tracks[i] = track.Track{ID: i}
		}
		p, err := New(tracks)
		require.NoError(t, err)

		for i := 0; i < 3*n; i++ {
			p.Next()
			assert.GreaterOrEqual(t, p.Index(), 0)
			assert.Less(t, p.Index(), n)
		}
		for i := 0; i < 3*n; i++ {
			p.Previous()
			assert.GreaterOrEqual(t, p.Index(), 0)
			assert.Less(t, p.Index(), n)
		}
	}
}

func TestPlaylist_SingleTrack(t *testing.T) {
	p, err := New([]track.Track{{ID: 9}})
	require.NoError(t, err)

	assert.Equal(t, 9, p.Next().ID)
	assert.Equal(t, 9, p.Previous().ID)
	assert.Equal(t, 0, p.Index())
}

func TestPlaylist_SeekAndIndexOf(t *testing.T) {
	p, err := New(abc())
	require.NoError(t, err)

	assert.Equal(t, 1, p.IndexOf(2))
	assert.Equal(t, -1, p.IndexOf(42))

	assert.True(t, p.Seek(2))
	assert.Equal(t, "C", p.Current().Title)
	assert.False(t, p.Seek(3))
	assert.False(t, p.Seek(-1))
	assert.Equal(t, 2, p.Index())
}
