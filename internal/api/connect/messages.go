package connect

import (
	"time"

	"github.com/osa030/ambientbox/internal/app/playback"
	"github.com/osa030/ambientbox/internal/domain/reminder"
	"github.com/osa030/ambientbox/internal/domain/track"
)

// Service and procedure names.
const (
	PlayerServiceName  = "ambient.v1.PlayerService"
	CatalogServiceName = "ambient.v1.CatalogService"

	PlayerPlayProcedure      = "/" + PlayerServiceName + "/Play"
	PlayerStartProcedure     = "/" + PlayerServiceName + "/Start"
	PlayerPauseProcedure     = "/" + PlayerServiceName + "/Pause"
	PlayerStopProcedure      = "/" + PlayerServiceName + "/Stop"
	PlayerSeekProcedure      = "/" + PlayerServiceName + "/Seek"
	PlayerNextProcedure      = "/" + PlayerServiceName + "/Next"
	PlayerPreviousProcedure  = "/" + PlayerServiceName + "/Previous"
	PlayerGetStateProcedure  = "/" + PlayerServiceName + "/GetState"
	PlayerSubscribeProcedure = "/" + PlayerServiceName + "/Subscribe"

	CatalogListMusicProcedure      = "/" + CatalogServiceName + "/ListMusic"
	CatalogListRemindersProcedure  = "/" + CatalogServiceName + "/ListReminders"
	CatalogUpdateReminderProcedure = "/" + CatalogServiceName + "/UpdateReminder"
	CatalogResetRemindersProcedure = "/" + CatalogServiceName + "/ResetReminders"
)

type TrackInfo struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Date   string `json:"date"`
}

type FailureInfo struct {
	Reason  string `json:"reason"`
	TrackID int    `json:"track_id"`
	Error   string `json:"error"`
	At      string `json:"at"`
}

// PlayerState is the wire form of a playback snapshot.
type PlayerState struct {
	Seq         uint64       `json:"seq"`
	State       string       `json:"state"`
	Track       *TrackInfo   `json:"track,omitempty"`
	HasArtwork  bool         `json:"has_artwork"`
	PositionMs  int64        `json:"position_ms"`
	DurationMs  int64        `json:"duration_ms"`
	Index       int          `json:"index"`
	PlaylistLen int          `json:"playlist_len"`
	Failure     *FailureInfo `json:"failure,omitempty"`
}

type PlayRequest struct {
	TrackID   int    `json:"track_id"`
	SortOrder string `json:"sort_order,omitempty"` // Playlist order, ascending by default
	Filter    string `json:"filter,omitempty"`     // Playlist title filter
}

type SeekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

type ListMusicRequest struct {
	SortOrder string `json:"sort_order,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

type ListMusicResponse struct {
	Tracks []TrackInfo `json:"tracks"`
}

type ReminderInfo struct {
	ID      int  `json:"id"`
	Hour    int  `json:"hour"`
	Minute  int  `json:"minute"`
	TrackID int  `json:"track_id"`
	Enabled bool `json:"enabled"`
}

type ListRemindersRequest struct {
	TrackID *int `json:"track_id,omitempty"`
}

type ListRemindersResponse struct {
	Reminders []ReminderInfo `json:"reminders"`
}

type UpdateReminderRequest struct {
	ReminderID int   `json:"reminder_id"`
	Hour       *int  `json:"hour,omitempty"`
	Minute     *int  `json:"minute,omitempty"`
	Enabled    *bool `json:"enabled,omitempty"`
}

func toTrackInfo(t track.Track) TrackInfo {
	return TrackInfo{ID: t.ID, Title: t.Title, Author: t.Author, Date: t.Date}
}

func toPlayerState(s playback.Snapshot) *PlayerState {
	out := &PlayerState{
		Seq:         s.Seq,
		State:       s.State.String(),
		HasArtwork:  len(s.Artwork) > 0,
		PositionMs:  s.Position.Milliseconds(),
		DurationMs:  s.Duration.Milliseconds(),
		Index:       s.Index,
		PlaylistLen: s.PlaylistLen,
	}
	if s.Track != nil {
		t := toTrackInfo(*s.Track)
		out.Track = &t
	}
	if s.Failure != nil {
		out.Failure = &FailureInfo{
			Reason:  string(s.Failure.Reason),
			TrackID: s.Failure.TrackID,
			Error:   s.Failure.Err,
			At:      s.Failure.At.Format(time.RFC3339),
		}
	}
	return out
}

func toReminderInfo(r reminder.Reminder) ReminderInfo {
	return ReminderInfo{ID: r.ID, Hour: r.Hour, Minute: r.Minute, TrackID: r.TrackID, Enabled: r.Enabled}
}

// Patch returns the reminder patch carried by the request.
func (r *UpdateReminderRequest) Patch() reminder.Patch {
	return reminder.Patch{Hour: r.Hour, Minute: r.Minute, Enabled: r.Enabled}
}
