// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/ambientbox/internal/api/connect"
	"github.com/osa030/ambientbox/internal/app/playback"
	"github.com/osa030/ambientbox/internal/app/reminder"
	"github.com/osa030/ambientbox/internal/app/sink"
	"github.com/osa030/ambientbox/internal/infra/artwork"
	"github.com/osa030/ambientbox/internal/infra/catalog"
	"github.com/osa030/ambientbox/internal/infra/config"
	"github.com/osa030/ambientbox/internal/infra/decoder"
	"github.com/osa030/ambientbox/internal/infra/logger"
	"github.com/osa030/ambientbox/internal/infra/notify"
)

const appName = "ambientbox"

var (
	app        = kingpin.New("ambientbox-server", "ambientbox playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize console logger first so config errors are visible
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		printConfig(cfg)
		return
	}

	// Switch to file output: the flag wins over the config file
	file := cfg.Log.File
	if *logfile != "" {
		file = *logfile
	}
	if file != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = file
		loggerConfig.MaxSizeMB = cfg.Log.MaxSizeMB
		loggerConfig.MaxBackups = cfg.Log.MaxBackups
		loggerConfig.MaxAgeDays = cfg.Log.MaxAgeDays
		if closer, err = logger.Init(loggerConfig); err != nil {
			panic(fmt.Sprintf("Failed to initialize file logger: %v", err))
		}
	}
	defer closer.Close()

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create catalog client
	catalogClient, err := catalog.New(catalog.Config{
		Endpoint:     cfg.Catalog.Endpoint,
		APIKey:       cfg.Catalog.APIKey,
		Timeout:      cfg.CatalogTimeout(),
		ListCacheTTL: cfg.ListCacheTTL(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create catalog client")
	}

	// Create decoder; audio downloads are bounded by the prepare timeout
	var dec playback.Decoder
	switch cfg.Playback.Output {
	case config.OutputHeadless:
		dec = decoder.NewHeadless(&http.Client{})
	default:
		dec = decoder.NewSpeaker(&http.Client{})
	}
	zlog.Info().Msgf("Playback output: %s", cfg.Playback.Output)

	// Sinks are closed after the controller and the manager have stopped
	var built []sink.Sink
	defer func() { sink.CloseAll(built) }()

	// Create sink manager and playback controller
	sinks := sink.NewManager(sink.DefaultTimeout)
	defer sinks.Close()

	controller := playback.NewController(dec, catalogClient, sinks, playback.Config{
		AutoStart:      cfg.AutoStart(),
		Completion:     playback.ParseCompletionPolicy(cfg.Playback.Completion),
		PrepareTimeout: cfg.PrepareTimeout(),
	})
	defer controller.Close()
	go logEvents(controller.Events())

	// Create notification center
	notifier, err := notify.New(appName)
	if err != nil {
		return errors.Wrap(err, "failed to create notifier")
	}
	center := notify.NewCenter(notifier)
	go center.Run(ctx)

	// Create HTTP mux
	mux := http.NewServeMux()

	// Create sinks from config
	built, err = sink.NewSinksFromConfig(cfg, sink.Deps{
		Controls:     controller,
		Artwork:      artwork.NewStore(appName, artwork.DefaultSize),
		Center:       center,
		Mux:          mux,
		ControlToken: cfg.Server.ControlToken,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create sinks")
	}
	for _, s := range built {
		sinks.Register(s)
	}

	// Create reminder scheduler
	var resyncer apiconnect.Resyncer
	if cfg.Reminders.Enabled {
		scheduler := reminder.NewScheduler(catalogClient, controller, center, reminder.Config{
			Message:        cfg.Reminders.Message,
			Autoplay:       cfg.Reminders.Autoplay,
			ResyncInterval: cfg.ResyncInterval(),
		})
		resyncer = scheduler
		go scheduler.Run(ctx)
		go logReminders(ctx, scheduler.Events())
	}

	// Register RPC services
	apiconnect.Mount(mux,
		apiconnect.NewPlayerService(controller, catalogClient, sinks),
		apiconnect.NewCatalogService(catalogClient, resyncer),
		cfg.Server.ControlToken,
	)
	if cfg.Server.ControlToken == "" {
		zlog.Warn().Msg("server.control_token is empty, control API is unauthenticated")
	}

	// Determine server address
	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    serverAddr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		// Signal that we're about to start listening
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	// Stop playback and deliver the final snapshot so sinks clear before
	// they are closed
	if err := controller.Stop(); err != nil {
		zlog.Error().Msgf("Failed to stop playback: %v", err)
	}
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := sinks.Flush(flushCtx); err != nil {
		zlog.Warn().Err(err).Msg("Failed to flush sinks")
	}
	flushCancel()
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// logEvents logs controller events until the controller is closed.
func logEvents(events <-chan playback.Event) {
	for ev := range events {
		switch ev.Type {
		case playback.EventError:
			if ev.Failure != nil {
				zlog.Warn().Msgf("Playback error: reason=%s track=%d err=%s", ev.Failure.Reason, ev.Failure.TrackID, ev.Failure.Err)
			}
		case playback.EventPlayRejected:
			zlog.Info().Msg("Play request rejected: a track is being prepared")
		case playback.EventTrackChanged:
			if ev.Track != nil {
				zlog.Info().Msgf("Track changed: id=%d title=%s author=%s", ev.Track.ID, ev.Track.Title, ev.Track.Author)
			}
		default:
			zlog.Debug().Msgf("Playback event: type=%s state=%s", ev.Type, ev.State)
		}
	}
}

// logReminders logs fired reminders until ctx is done.
func logReminders(ctx context.Context, fired <-chan reminder.Fired) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-fired:
			zlog.Info().Msgf("Reminder fired: id=%d time=%s track=%s", f.Reminder.ID, f.Reminder.Clock(), f.Track.Title)
		}
	}
}

// printConfig prints the effective configuration summary.
func printConfig(cfg *config.Config) {
	fmt.Println("Config OK")
	fmt.Printf("  %-22s %s\n", "server.addr", cfg.Server.Addr)
	fmt.Printf("  %-22s %s\n", "catalog.endpoint", cfg.Catalog.Endpoint)
	fmt.Printf("  %-22s %s\n", "playback.output", cfg.Playback.Output)
	fmt.Printf("  %-22s %t\n", "playback.auto_start", cfg.AutoStart())
	fmt.Printf("  %-22s %s\n", "playback.completion", cfg.Playback.Completion)
	for _, name := range []string{config.SinkNotification, config.SinkMediaSession, config.SinkWidget} {
		fmt.Printf("  %-22s %t\n", "sinks."+name, cfg.IsSinkEnabled(name))
	}
	fmt.Printf("  %-22s %t\n", "reminders.enabled", cfg.Reminders.Enabled)
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
