package sink

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/app/playback"
	"github.com/osa030/ambientbox/internal/infra/artwork"
	"github.com/osa030/ambientbox/internal/infra/config"
	"github.com/osa030/ambientbox/internal/infra/mpris"
	"github.com/osa030/ambientbox/internal/infra/notify"
	"github.com/osa030/ambientbox/internal/infra/widget"
)

// Controls is the controller surface the built-in sinks drive.
type Controls interface {
	Start() error
	Pause() error
	Stop() error
	TogglePlayPause(ctx context.Context) error
	PlayNext(ctx context.Context) error
	PlayPrevious(ctx context.Context) error
	Seek(pos time.Duration) error
	Snapshot() playback.Snapshot
}

// Deps holds what the built-in sinks are wired to.
type Deps struct {
	Controls     Controls
	Artwork      *artwork.Store
	Center       *notify.Center // Required by the notification sink
	Mux          *http.ServeMux // Required by the widget sink
	ControlToken string
}

type NotificationSettings struct {
	TimeoutMs *int `yaml:"timeout_ms" mapstructure:"timeout_ms" default:"-1" validate:"gte=-1"`
}

type MediaSessionSettings struct {
	Name     string `yaml:"name" mapstructure:"name" default:"ambientbox" validate:"required,alphanum"`
	Identity string `yaml:"identity" mapstructure:"identity" default:"Ambientbox" validate:"required"`
}

type WidgetSettings struct {
	Path        string `yaml:"path" mapstructure:"path" default:"/widget/ws" validate:"required,startswith=/"`
	ThumbnailPx uint   `yaml:"thumbnail_px" mapstructure:"thumbnail_px" default:"256" validate:"gte=32,lte=1024"`
}

// decodeSettings decodes a settings map into out, then applies defaults and
// validates it.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "invalid settings")
	}
	return nil
}

// NewSinksFromConfig creates the enabled sinks, in name order.
func NewSinksFromConfig(cfg *config.Config, deps Deps) ([]Sink, error) {
	if deps.Controls == nil {
		return nil, errors.New("sink controls are required")
	}

	names := make([]string, 0, len(cfg.Sinks))
	for name := range cfg.Sinks {
		names = append(names, name)
	}
	sort.Strings(names)

	var sinks []Sink
	for _, name := range names {
		if !cfg.IsSinkEnabled(name) {
			continue
		}
		settings := cfg.SinkSettings(name)
		zlog.Debug().Msgf("creating sink: name=%s settings=%+v", name, settings)

		s, err := newSink(name, settings, deps)
		if err != nil {
			CloseAll(sinks)
			return nil, errors.Wrapf(err, "failed to create sink %s", name)
		}
		sinks = append(sinks, s)
		zlog.Info().Msgf("registered sink: name=%s", name)
	}
	return sinks, nil
}

func newSink(name string, settings map[string]any, deps Deps) (Sink, error) {
	switch name {
	case config.SinkNotification:
		var s NotificationSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		if deps.Center == nil {
			return nil, errors.New("notification center is required")
		}
		var icons notify.IconStore
		if deps.Artwork != nil {
			icons = deps.Artwork
		}
		return notify.NewSink(deps.Center, deps.Controls, icons, notify.SinkConfig{Timeout: int32(*s.TimeoutMs)}), nil

	case config.SinkMediaSession:
		var s MediaSessionSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		var art mpris.ArtStore
		if deps.Artwork != nil {
			art = deps.Artwork
		}
		return mpris.New(s.Name, s.Identity, deps.Controls, art)

	case config.SinkWidget:
		var s WidgetSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		if deps.Mux == nil {
			return nil, errors.New("http mux is required")
		}
		hub := widget.NewHub(deps.Controls, widget.Config{ThumbnailPx: s.ThumbnailPx, Token: deps.ControlToken})
		deps.Mux.Handle(s.Path, hub)
		zlog.Info().Msgf("widget endpoint: path=%s", s.Path)
		return hub, nil

	default:
		return nil, errors.Newf("unsupported sink: %s", name)
	}
}

// CloseAll closes every sink that holds resources.
func CloseAll(sinks []Sink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				zlog.Warn().Err(err).Msgf("failed to close sink: name=%s", s.Name())
			}
		}
	}
}
