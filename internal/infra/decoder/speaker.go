package decoder

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/app/playback"
)

// Output format of the speaker. Tracks are resampled to it.
const (
	outputSampleRate = beep.SampleRate(44100)
	outputBuffer     = time.Second / 10
	resampleQuality  = 4
)

var (
	speakerOnce  sync.Once
	speakerErr   error
	speakerReady atomic.Bool
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(outputSampleRate, outputSampleRate.N(outputBuffer))
		if speakerErr == nil {
			speakerReady.Store(true)
			zlog.Debug().Msgf("decoder: speaker initialized: rate=%d", outputSampleRate)
		}
	})
	return speakerErr
}

// Speaker decodes MP3 tracks and renders them on the default audio device.
type Speaker struct {
	mu     sync.Mutex
	client *http.Client

	streamer   beep.StreamSeekCloser
	format     beep.Format
	ctrl       *beep.Ctrl
	generation uint64

	emitter
}

// NewSpeaker creates a speaker decoder downloading audio with client.
func NewSpeaker(client *http.Client) *Speaker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Speaker{
		client:  client,
		emitter: newEmitter(),
	}
}

// Prepare downloads and decodes src, leaving it paused at the start.
func (s *Speaker) Prepare(ctx context.Context, src playback.Source) error {
	data, err := fetch(ctx, s.client, src)
	if err != nil {
		return err
	}
	streamer, format, err := decodeMP3(data)
	if err != nil {
		return err
	}
	if err := initSpeaker(); err != nil {
		streamer.Close()
		return errors.Wrap(err, "failed to initialize speaker")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		streamer.Close()
		return err
	}
	s.releaseLocked()

	var out beep.Streamer = streamer
	if format.SampleRate != outputSampleRate {
		out = beep.Resample(resampleQuality, format.SampleRate, outputSampleRate, streamer)
	}

	gen := src.Generation
	s.streamer = streamer
	s.format = format
	s.generation = gen
	s.ctrl = &beep.Ctrl{Streamer: out, Paused: true}

	speaker.Play(beep.Seq(s.ctrl, beep.Callback(func() {
		// Runs on the speaker goroutine.
		if err := streamer.Err(); err != nil {
			s.emit(playback.DecoderEvent{Kind: playback.DecoderFailed, Generation: gen, Err: err})
			return
		}
		s.emit(playback.DecoderEvent{Kind: playback.DecoderCompleted, Generation: gen})
	})))

	zlog.Debug().Msgf("decoder: prepared: bytes=%d rate=%d duration=%v generation=%d",
		len(data), format.SampleRate, format.SampleRate.D(streamer.Len()), gen)
	return nil
}

// Start resumes rendering.
func (s *Speaker) Start() error {
	return s.setPaused(false)
}

// Pause suspends rendering.
func (s *Speaker) Pause() error {
	return s.setPaused(true)
}

func (s *Speaker) setPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return ErrNotLoaded
	}
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// SeekTo moves the playback position.
func (s *Speaker) SeekTo(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return ErrNotLoaded
	}
	n := s.format.SampleRate.N(pos)
	if n > s.streamer.Len() {
		n = s.streamer.Len()
	}
	speaker.Lock()
	err := s.streamer.Seek(n)
	speaker.Unlock()
	if err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	return nil
}

// Position returns the playback position.
func (s *Speaker) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := s.format.SampleRate.D(s.streamer.Position())
	speaker.Unlock()
	return pos
}

// Duration returns the length of the loaded track.
func (s *Speaker) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return 0
	}
	return s.format.SampleRate.D(s.streamer.Len())
}

// Reset stops rendering and releases the loaded track.
func (s *Speaker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Speaker) releaseLocked() {
	if s.streamer == nil {
		return
	}
	speaker.Clear()
	if err := s.streamer.Close(); err != nil {
		zlog.Warn().Err(err).Msg("decoder: failed to close streamer")
	}
	s.streamer = nil
	s.ctrl = nil
	s.format = beep.Format{}
}

// Events returns completion and failure reports.
func (s *Speaker) Events() <-chan playback.DecoderEvent {
	return s.events()
}

// Close releases the track and the audio device.
func (s *Speaker) Close() error {
	s.Reset()
	if speakerReady.CompareAndSwap(true, false) {
		speaker.Close()
	}
	return nil
}
