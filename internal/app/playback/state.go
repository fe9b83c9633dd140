// Package playback provides the playback controller: a single media session
// state machine that owns the decoder and mirrors its state to sinks.
package playback

// State represents the playback state.
type State int

const (
	StateIdle      State = iota // Nothing loaded, decoder reset
	StatePreparing              // Artwork and audio are loading
	StatePrepared               // Audio is ready, not started
	StatePlaying                // Decoder running
	StatePaused                 // Decoder paused
	StateStopped                // Track completed, decoder released
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StatePrepared:
		return "prepared"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HasTrack returns true if a track must be loaded in this state.
func (s State) HasTrack() bool {
	switch s {
	case StatePreparing, StatePrepared, StatePlaying, StatePaused:
		return true
	default:
		return false
	}
}

// IsActive returns true if playback is playing or paused.
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

var transitions = map[State][]State{
	StateIdle:      {StatePreparing},
	StatePreparing: {StatePrepared, StateIdle},
	StatePrepared:  {StatePlaying, StateIdle},
	StatePlaying:   {StatePaused, StateStopped, StateIdle},
	StatePaused:    {StatePlaying, StateIdle},
	StateStopped:   {StateIdle},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CompletionPolicy decides what happens when a track plays to the end.
type CompletionPolicy int

const (
	CompletionStop    CompletionPolicy = iota // Stay Stopped
	CompletionAdvance                         // Stop, then play the next playlist track
)

// ParseCompletionPolicy parses "stop" or "advance". Unknown values map to stop.
func ParseCompletionPolicy(s string) CompletionPolicy {
	if s == "advance" {
		return CompletionAdvance
	}
	return CompletionStop
}

// String returns the string representation of the policy.
func (p CompletionPolicy) String() string {
	switch p {
	case CompletionAdvance:
		return "advance"
	default:
		return "stop"
	}
}
