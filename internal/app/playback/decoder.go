package playback

import (
	"context"
	"net/http"
	"time"
)

// Source locates the audio of a track.
type Source struct {
	URL        string
	Header     http.Header
	Generation uint64 // Set by the controller; echoed back in DecoderEvent
}

// DecoderEventKind is the kind of an asynchronous decoder report.
type DecoderEventKind int

const (
	DecoderCompleted DecoderEventKind = iota // End of stream reached
	DecoderFailed                            // Runtime failure after prepare
)

// DecoderEvent is an asynchronous report from the decoder.
type DecoderEvent struct {
	Kind       DecoderEventKind
	Generation uint64
	Err        error
}

// Decoder is the media decoder/renderer. The controller is its only user.
type Decoder interface {
	// Prepare loads and buffers src. It blocks until the audio is ready.
	// When ctx is cancelled it must return ctx.Err() and keep nothing loaded.
	Prepare(ctx context.Context, src Source) error
	// Start begins or resumes rendering.
	Start() error
	// Pause suspends rendering.
	Pause() error
	// SeekTo moves the playback position.
	SeekTo(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	// Reset releases the loaded source. Safe to call when nothing is loaded.
	Reset()
	// Events reports completion and runtime errors.
	Events() <-chan DecoderEvent
	// Close releases the decoder for good.
	Close() error
}

// Catalog provides the remote resources of a track.
type Catalog interface {
	Picture(ctx context.Context, trackID int) ([]byte, error)
	AudioSource(trackID int) Source
}

// Publisher receives snapshots for the sinks, in transition order.
// Publish must not block for long; it is called with the controller lock held.
type Publisher interface {
	Publish(s Snapshot)
}
