//go:build linux

package mpris

import (
	"context"

	"github.com/quarckster/go-mpris-server/pkg/events"
	"github.com/quarckster/go-mpris-server/pkg/server"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/app/playback"
)

// Adapter connects the playback controller to MPRIS over D-Bus.
type Adapter struct {
	server *server.Server
	events *events.EventHandler
	player *playerAdapter
}

// New creates and starts a new MPRIS adapter. art may be nil.
func New(name, identity string, player Player, art ArtStore) (*Adapter, error) {
	a := &Adapter{
		player: newPlayerAdapter(player, art),
	}

	a.server = server.NewServer(name, &rootAdapter{identity: identity}, a.player)
	a.events = events.NewEventHandler(a.server)

	// Start the server in background
	go func() {
		if err := a.server.Listen(); err != nil {
			zlog.Warn().Err(err).Msg("mpris: server stopped")
		}
	}()

	return a, nil
}

// Name returns the sink name.
func (a *Adapter) Name() string {
	return "media_session"
}

// Update publishes the snapshot as session metadata and playback status.
func (a *Adapter) Update(_ context.Context, snap playback.Snapshot) error {
	a.player.set(snap)
	if err := a.events.Player.OnTitle(); err != nil {
		return err
	}
	return a.events.Player.OnPlayPause()
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	return a.server.Stop()
}
