// Package main provides the playback control CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/ambientbox/internal/api/connect"
)

var (
	app    = kingpin.New("ambientbox-playerctl", "ambientbox playback control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set AMBIENT_CONTROL_TOKEN env)").Envar("AMBIENT_CONTROL_TOKEN").String()

	// play command
	playCmd    = app.Command("play", "Play a track with the catalog as playlist")
	playTrack  = playCmd.Arg("track-id", "Catalog music ID").Required().Int()
	playOrder  = playCmd.Flag("sort", "Playlist order").Default("ascending").Enum("ascending", "descending")
	playFilter = playCmd.Flag("filter", "Playlist title filter").String()

	// transport commands
	startCmd    = app.Command("start", "Start or resume playback").Alias("resume")
	pauseCmd    = app.Command("pause", "Pause playback")
	stopCmd     = app.Command("stop", "Stop playback")
	nextCmd     = app.Command("next", "Play the next track")
	previousCmd = app.Command("previous", "Play the previous track").Alias("prev")

	// seek command
	seekCmd = app.Command("seek", "Seek to a position")
	seekPos = seekCmd.Arg("position", "Position, e.g. 1m30s").Required().Duration()

	// status command
	statusCmd = app.Command("status", "Show the playback state")

	// watch command
	watchCmd = app.Command("watch", "Stream playback state changes")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := apiconnect.NewPlayerClient(http.DefaultClient, *server, *token)

	ctx := context.Background()

	var state *apiconnect.PlayerState
	var err error

	// Execute command
	switch command {
	case playCmd.FullCommand():
		state, err = client.Play(ctx, &apiconnect.PlayRequest{TrackID: *playTrack, SortOrder: *playOrder, Filter: *playFilter})
	case startCmd.FullCommand():
		state, err = client.Start(ctx)
	case pauseCmd.FullCommand():
		state, err = client.Pause(ctx)
	case stopCmd.FullCommand():
		state, err = client.Stop(ctx)
	case nextCmd.FullCommand():
		state, err = client.Next(ctx)
	case previousCmd.FullCommand():
		state, err = client.Previous(ctx)
	case seekCmd.FullCommand():
		state, err = client.Seek(ctx, &apiconnect.SeekRequest{PositionMs: seekPos.Milliseconds()})
	case statusCmd.FullCommand():
		state, err = client.GetState(ctx)
	case watchCmd.FullCommand():
		watch(ctx, client)
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printState(state)
}

func watch(ctx context.Context, client *apiconnect.PlayerClient) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := client.Subscribe(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer stream.Close()

	fmt.Println("Watching playback. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	for stream.Receive() {
		fmt.Printf("[%s] ", time.Now().Format("15:04:05"))
		printState(stream.Msg())
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}

func formatState(state string) string {
	switch state {
	case "idle":
		return "⏹  Idle"
	case "preparing":
		return "⏳ Preparing"
	case "prepared":
		return "⏸  Prepared"
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "stopped":
		return "⏹  Stopped"
	default:
		return "❓ Unknown"
	}
}

func printState(s *apiconnect.PlayerState) {
	if s == nil {
		return
	}
	fmt.Println(formatState(s.State))
	if s.Track != nil {
		fmt.Printf("  Track:    #%d %s - %s\n", s.Track.ID, s.Track.Title, s.Track.Author)
		if s.DurationMs > 0 {
			fmt.Printf("  Position: %s / %s\n", clock(s.PositionMs), clock(s.DurationMs))
		}
	}
	if s.PlaylistLen > 0 {
		fmt.Printf("  Playlist: %d of %d\n", s.Index+1, s.PlaylistLen)
	}
	if s.Failure != nil {
		at, err := time.Parse(time.RFC3339, s.Failure.At)
		when := s.Failure.At
		if err == nil {
			when = humanize.Time(at)
		}
		fmt.Printf("  Last error: %s on track #%d (%s): %s\n", s.Failure.Reason, s.Failure.TrackID, when, s.Failure.Error)
	}
}

func clock(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
