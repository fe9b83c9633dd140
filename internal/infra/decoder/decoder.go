// Package decoder provides playback.Decoder implementations backed by beep.
package decoder

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"

	"github.com/osa030/ambientbox/internal/app/playback"
)

// Errors
var (
	ErrNotLoaded = errors.New("no source loaded")
)

// maxAudioBytes caps the size of a downloaded track.
const maxAudioBytes = 64 << 20

// eventBuffer is the capacity of the decoder event channel.
const eventBuffer = 8

// fetch downloads the audio of src into memory.
func fetch(ctx context.Context, client *http.Client, src playback.Source) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	for k, vs := range src.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("audio request failed: status=%d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read audio")
	}
	if len(data) > maxAudioBytes {
		return nil, errors.Newf("audio exceeds %d bytes", maxAudioBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty audio")
	}
	return data, nil
}

// memoryFile is a seekable in-memory audio file.
type memoryFile struct {
	*bytes.Reader
}

func (memoryFile) Close() error { return nil }

// decodeMP3 decodes buffered MP3 data into a seekable stream.
func decodeMP3(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	streamer, format, err := mp3.Decode(memoryFile{bytes.NewReader(data)})
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "failed to decode mp3")
	}
	return streamer, format, nil
}

// probeMP3 returns the duration of buffered MP3 data.
func probeMP3(data []byte) (time.Duration, error) {
	streamer, format, err := decodeMP3(data)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()
	return format.SampleRate.D(streamer.Len()), nil
}

// emitter delivers decoder events without blocking the audio path.
type emitter struct {
	ch chan playback.DecoderEvent
}

func newEmitter() emitter {
	return emitter{ch: make(chan playback.DecoderEvent, eventBuffer)}
}

func (e emitter) emit(ev playback.DecoderEvent) {
	select {
	case e.ch <- ev:
	default:
	}
}

func (e emitter) events() <-chan playback.DecoderEvent {
	return e.ch
}
