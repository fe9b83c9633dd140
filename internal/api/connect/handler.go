package connect

import (
	"net/http"

	"connectrpc.com/connect"
)

// Mount registers both services on mux. Every handler uses the JSON codec
// and the control token interceptor.
func Mount(mux *http.ServeMux, player *PlayerService, catalogSvc *CatalogService, token string) {
	opts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(NewTokenInterceptor(token)),
	}

	mux.Handle(PlayerPlayProcedure, connect.NewUnaryHandler(PlayerPlayProcedure, player.Play, opts...))
	mux.Handle(PlayerStartProcedure, connect.NewUnaryHandler(PlayerStartProcedure, player.Start, opts...))
	mux.Handle(PlayerPauseProcedure, connect.NewUnaryHandler(PlayerPauseProcedure, player.Pause, opts...))
	mux.Handle(PlayerStopProcedure, connect.NewUnaryHandler(PlayerStopProcedure, player.Stop, opts...))
	mux.Handle(PlayerSeekProcedure, connect.NewUnaryHandler(PlayerSeekProcedure, player.Seek, opts...))
	mux.Handle(PlayerNextProcedure, connect.NewUnaryHandler(PlayerNextProcedure, player.Next, opts...))
	mux.Handle(PlayerPreviousProcedure, connect.NewUnaryHandler(PlayerPreviousProcedure, player.Previous, opts...))
	mux.Handle(PlayerGetStateProcedure, connect.NewUnaryHandler(PlayerGetStateProcedure, player.GetState, opts...))
	mux.Handle(PlayerSubscribeProcedure, connect.NewServerStreamHandler(PlayerSubscribeProcedure, player.Subscribe, opts...))

	mux.Handle(CatalogListMusicProcedure, connect.NewUnaryHandler(CatalogListMusicProcedure, catalogSvc.ListMusic, opts...))
	mux.Handle(CatalogListRemindersProcedure, connect.NewUnaryHandler(CatalogListRemindersProcedure, catalogSvc.ListReminders, opts...))
	mux.Handle(CatalogUpdateReminderProcedure, connect.NewUnaryHandler(CatalogUpdateReminderProcedure, catalogSvc.UpdateReminder, opts...))
	mux.Handle(CatalogResetRemindersProcedure, connect.NewUnaryHandler(CatalogResetRemindersProcedure, catalogSvc.ResetReminders, opts...))
}
