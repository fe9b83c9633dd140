// Package widget serves the home-screen widget surface: remote widget
// clients connect over WebSocket, receive widget views and send tap actions.
package widget

import (
	"encoding/base64"
	"time"

	"github.com/osa030/ambientbox/internal/app/playback"
	"github.com/osa030/ambientbox/internal/infra/artwork"
)

// Action is a tappable region of the widget.
type Action string

const (
	ActionPlayPause    Action = "play_pause"
	ActionSkipNext     Action = "skip_next"
	ActionSkipPrevious Action = "skip_previous"
	ActionOpen         Action = "open"
)

// Message types
const (
	MsgTypeView   = "view"   // server -> client
	MsgTypeAction = "action" // client -> server
	MsgTypePing   = "ping"   // client -> server
	MsgTypePong   = "pong"   // server -> client
	MsgTypeError  = "error"  // server -> client
)

// View is what a widget renders.
type View struct {
	State      string   `json:"state"`
	Title      string   `json:"title,omitempty"`
	Author     string   `json:"author,omitempty"`
	Artwork    string   `json:"artwork,omitempty"` // base64 JPEG thumbnail
	Playing    bool     `json:"playing"`
	PositionMs int64    `json:"position_ms"`
	DurationMs int64    `json:"duration_ms"`
	Actions    []Action `json:"actions"`
}

// Message is the envelope exchanged with widget clients.
type Message struct {
	Type      string `json:"type"`
	View      *View  `json:"view,omitempty"`
	Action    Action `json:"action,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// buildView converts a snapshot to a widget view. thumb is the encoded
// artwork thumbnail, possibly empty.
func buildView(snap playback.Snapshot, thumb []byte) View {
	v := View{
		State:   snap.State.String(),
		Playing: snap.IsPlaying(),
		Actions: []Action{ActionOpen},
	}
	if snap.Track != nil && snap.State.HasTrack() {
		v.Title = snap.Track.Title
		v.Author = snap.Track.Author
		v.PositionMs = snap.Position.Milliseconds()
		v.DurationMs = snap.Duration.Milliseconds()
		if len(thumb) > 0 {
			v.Artwork = base64.StdEncoding.EncodeToString(thumb)
		}
	}
	if snap.Track != nil || snap.PlaylistLen > 0 {
		v.Actions = append(v.Actions, ActionPlayPause)
	}
	if snap.PlaylistLen > 1 {
		v.Actions = append(v.Actions, ActionSkipPrevious, ActionSkipNext)
	}
	return v
}

// thumbnailer caches the thumbnail of the most recent track.
type thumbnailer struct {
	size    uint
	trackID int
	thumb   []byte
}

func (t *thumbnailer) get(snap playback.Snapshot) []byte {
	if snap.Track == nil || len(snap.Artwork) == 0 {
		return nil
	}
	if t.thumb != nil && t.trackID == snap.Track.ID {
		return t.thumb
	}
	thumb, err := artwork.Thumbnail(snap.Artwork, t.size)
	if err != nil {
		return nil
	}
	t.trackID = snap.Track.ID
	t.thumb = thumb
	return thumb
}

func newMessage(typ string) Message {
	return Message{Type: typ, Timestamp: time.Now().UnixMilli()}
}
