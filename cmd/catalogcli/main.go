// Package main provides the catalog and reminder CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/ambientbox/internal/api/connect"
)

var (
	app    = kingpin.New("ambientbox-catalogcli", "ambientbox catalog and reminder client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set AMBIENT_CONTROL_TOKEN env)").Envar("AMBIENT_CONTROL_TOKEN").String()

	// music command
	musicCmd    = app.Command("music", "List the catalog").Alias("ls")
	musicOrder  = musicCmd.Flag("sort", "Release date order").Default("ascending").Enum("ascending", "descending")
	musicFilter = musicCmd.Flag("filter", "Title filter").String()

	// reminders command
	remindersCmd   = app.Command("reminders", "List reminders")
	remindersTrack = remindersCmd.Flag("track", "Only reminders of this music ID").Int()

	// set-reminder command
	setCmd     = app.Command("set-reminder", "Update a reminder")
	setID      = setCmd.Arg("reminder-id", "Reminder ID").Required().Int()
	setTime    = setCmd.Flag("time", "Time of day as HH:MM").String()
	setEnable  = setCmd.Flag("enable", "Enable the reminder").Bool()
	setDisable = setCmd.Flag("disable", "Disable the reminder").Bool()

	// reset-reminders command
	resetCmd = app.Command("reset-reminders", "Restore the default reminders")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := apiconnect.NewCatalogClient(http.DefaultClient, *server, *token)

	ctx := context.Background()

	// Execute command
	switch command {
	case musicCmd.FullCommand():
		listMusic(ctx, client)
	case remindersCmd.FullCommand():
		listReminders(ctx, client)
	case setCmd.FullCommand():
		setReminder(ctx, client)
	case resetCmd.FullCommand():
		if err := client.ResetReminders(ctx); err != nil {
			fail(err)
		}
		fmt.Println("Reminders reset to defaults")
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func listMusic(ctx context.Context, client *apiconnect.CatalogClient) {
	resp, err := client.ListMusic(ctx, &apiconnect.ListMusicRequest{SortOrder: *musicOrder, Filter: *musicFilter})
	if err != nil {
		fail(err)
	}

	fmt.Printf("Tracks (%s):\n", humanize.Comma(int64(len(resp.Tracks))))
	for _, t := range resp.Tracks {
		released := t.Date
		if d, err := time.Parse("2006-01-02", t.Date); err == nil {
			released = fmt.Sprintf("%s (%s)", t.Date, humanize.Time(d))
		}
		fmt.Printf("  %4d  %-30s %-20s %s\n", t.ID, t.Title, t.Author, released)
	}
}

func listReminders(ctx context.Context, client *apiconnect.CatalogClient) {
	req := &apiconnect.ListRemindersRequest{}
	if *remindersTrack != 0 {
		req.TrackID = remindersTrack
	}
	resp, err := client.ListReminders(ctx, req)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Reminders (%d):\n", len(resp.Reminders))
	for _, r := range resp.Reminders {
		status := "off"
		if r.Enabled {
			status = "on"
		}
		fmt.Printf("  %4d  %02d:%02d  track #%-4d %s\n", r.ID, r.Hour, r.Minute, r.TrackID, status)
	}
}

func setReminder(ctx context.Context, client *apiconnect.CatalogClient) {
	req := &apiconnect.UpdateReminderRequest{ReminderID: *setID}

	if *setTime != "" {
		t, err := time.Parse("15:04", *setTime)
		if err != nil {
			fail(fmt.Errorf("invalid time %q, expected HH:MM", *setTime))
		}
		hour, minute := t.Hour(), t.Minute()
		req.Hour = &hour
		req.Minute = &minute
	}
	switch {
	case *setEnable && *setDisable:
		fail(fmt.Errorf("--enable and --disable are mutually exclusive"))
	case *setEnable:
		v := true
		req.Enabled = &v
	case *setDisable:
		v := false
		req.Enabled = &v
	}

	r, err := client.UpdateReminder(ctx, req)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Updated reminder %d: %02d:%02d enabled=%t\n", r.ID, r.Hour, r.Minute, r.Enabled)
}
