package decoder

import (
	"context"
	"net/http"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/app/playback"
	"github.com/osa030/ambientbox/internal/infra/clock"
)

// Headless decodes tracks to learn their length and then plays them on the
// wall clock without an audio device. It backs servers without sound output.
type Headless struct {
	mu     sync.Mutex
	client *http.Client
	probe  func([]byte) (time.Duration, error)

	loaded     bool
	playing    bool
	duration   time.Duration
	offset     time.Duration // Position when last started, paused or seeked
	startedAt  time.Time     // Wall time of the last start
	generation uint64

	timerCancel func()

	emitter
}

// NewHeadless creates a headless decoder downloading audio with client.
func NewHeadless(client *http.Client) *Headless {
	if client == nil {
		client = http.DefaultClient
	}
	return &Headless{
		client:  client,
		probe:   probeMP3,
		emitter: newEmitter(),
	}
}

// Prepare downloads src and measures its duration.
func (h *Headless) Prepare(ctx context.Context, src playback.Source) error {
	data, err := fetch(ctx, h.client, src)
	if err != nil {
		return err
	}
	duration, err := h.probe(data)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	h.releaseLocked()
	h.loaded = true
	h.duration = duration
	h.generation = src.Generation

	zlog.Debug().Msgf("decoder: headless prepared: bytes=%d duration=%v generation=%d", len(data), duration, src.Generation)
	return nil
}

// Start resumes the wall-clock playback.
func (h *Headless) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded {
		return ErrNotLoaded
	}
	if h.playing {
		return nil
	}
	h.playing = true
	h.startedAt = clock.Now()
	h.armLocked()
	return nil
}

// Pause freezes the position.
func (h *Headless) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded {
		return ErrNotLoaded
	}
	if !h.playing {
		return nil
	}
	h.offset = h.positionLocked()
	h.playing = false
	h.disarmLocked()
	return nil
}

// SeekTo moves the position.
func (h *Headless) SeekTo(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded {
		return ErrNotLoaded
	}
	if pos < 0 {
		pos = 0
	}
	if pos > h.duration {
		pos = h.duration
	}
	h.offset = pos
	if h.playing {
		h.startedAt = clock.Now()
		h.armLocked()
	}
	return nil
}

// Position returns the current position.
func (h *Headless) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionLocked()
}

func (h *Headless) positionLocked() time.Duration {
	if !h.loaded {
		return 0
	}
	pos := h.offset
	if h.playing {
		pos += clock.Now().Sub(h.startedAt)
	}
	if pos > h.duration {
		pos = h.duration
	}
	return pos
}

// Duration returns the length of the loaded track.
func (h *Headless) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

// Reset releases the loaded track.
func (h *Headless) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseLocked()
}

func (h *Headless) releaseLocked() {
	h.disarmLocked()
	h.loaded = false
	h.playing = false
	h.duration = 0
	h.offset = 0
}

// armLocked schedules completion at the end of the track.
func (h *Headless) armLocked() {
	h.disarmLocked()
	remaining := h.duration - h.offset
	gen := h.generation
	h.timerCancel = clock.At(h.startedAt.Add(remaining), clock.DefaultResolution, func() {
		h.complete(gen)
	})
}

func (h *Headless) disarmLocked() {
	if h.timerCancel != nil {
		h.timerCancel()
		h.timerCancel = nil
	}
}

func (h *Headless) complete(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded || !h.playing || gen != h.generation {
		return
	}
	h.offset = h.duration
	h.playing = false
	h.timerCancel = nil
	h.emit(playback.DecoderEvent{Kind: playback.DecoderCompleted, Generation: gen})
}

// Events returns completion reports.
func (h *Headless) Events() <-chan playback.DecoderEvent {
	return h.events()
}

// Close releases the track.
func (h *Headless) Close() error {
	h.Reset()
	return nil
}
