package playback

import (
	"time"

	"github.com/osa030/ambientbox/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventStateChanged    EventType = iota // Controller state changed
	EventTrackChanged                     // A different track was loaded
	EventPositionChanged                  // Seek completed
	EventError                            // Prepare or decoder failure, state is Idle
	EventPlayRejected                     // Play refused while a prepare is in flight
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventTrackChanged:
		return "track_changed"
	case EventPositionChanged:
		return "position_changed"
	case EventError:
		return "error"
	case EventPlayRejected:
		return "play_rejected"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	State    State         // State after the event
	Previous State         // State before the event (EventStateChanged)
	Track    *track.Track  // Loaded track, or the rejected track for EventPlayRejected
	Position time.Duration // EventPositionChanged
	Failure  *Failure      // EventError
}

// Reason classifies a playback failure.
type Reason string

const (
	ReasonArtworkFetch   Reason = "artwork_fetch"
	ReasonAudioPrepare   Reason = "audio_prepare"
	ReasonDecoderRuntime Reason = "decoder_runtime"
)

// Failure describes why the controller last fell back to Idle.
type Failure struct {
	Reason  Reason
	TrackID int
	Err     string
	At      time.Time
}
