package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/ambientbox/internal/app/playback"
	"github.com/osa030/ambientbox/internal/domain/reminder"
	"github.com/osa030/ambientbox/internal/infra/catalog"
)

// toConnectError maps application errors to Connect error codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	return connect.NewError(codeOf(err), err)
}

func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, playback.ErrPrepareInFlight):
		return connect.CodeAborted
	case errors.Is(err, playback.ErrNotStartable),
		errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrNotSeekable),
		errors.Is(err, playback.ErrNoPlaylist),
		errors.Is(err, playback.ErrInvalidTransition):
		return connect.CodeFailedPrecondition
	case errors.Is(err, playback.ErrTrackNotInPlaylist), errors.Is(err, errTrackNotFound), catalog.IsNotFound(err):
		return connect.CodeNotFound
	case errors.Is(err, playback.ErrClosed):
		return connect.CodeUnavailable
	case errors.Is(err, reminder.ErrInvalidHour),
		errors.Is(err, reminder.ErrInvalidMinute),
		errors.Is(err, reminder.ErrEmptyPatch),
		errors.Is(err, errInvalidArgument):
		return connect.CodeInvalidArgument
	}

	var apiErr *catalog.APIError
	if errors.As(err, &apiErr) {
		return connect.CodeUnavailable
	}
	return connect.CodeInternal
}

var (
	errTrackNotFound   = errors.New("track not found in catalog")
	errInvalidArgument = errors.New("invalid argument")
)
