//go:build !linux

package mpris

import (
	"context"

	"github.com/osa030/ambientbox/internal/app/playback"
)

// Adapter is a no-op on non-Linux platforms.
type Adapter struct{}

// New returns a no-op adapter on non-Linux platforms.
func New(_, _ string, _ Player, _ ArtStore) (*Adapter, error) {
	return &Adapter{}, nil
}

// Name returns the sink name.
func (a *Adapter) Name() string {
	return "media_session"
}

// Update is a no-op on non-Linux platforms.
func (a *Adapter) Update(_ context.Context, _ playback.Snapshot) error {
	return nil
}

// Close is a no-op on non-Linux platforms.
func (a *Adapter) Close() error {
	return nil
}
