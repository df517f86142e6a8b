// Package main provides the library management CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"

	"github.com/osa030/lanplay/internal/domain/track"
	"github.com/osa030/lanplay/internal/infra/apiclient"
)

var (
	app    = kingpin.New("lanplay-libcli", "lanplay library client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("LANPLAY_SERVER").String()

	// list command
	listCmd = app.Command("list", "List all songs").Alias("ls")

	// upload command
	uploadCmd   = app.Command("upload", "Upload audio files")
	uploadFiles = uploadCmd.Arg("files", "Audio files (mp3, m4a, wav, flac)").Required().ExistingFiles()

	// rename command
	renameCmd    = app.Command("rename", "Change a song's title and artist")
	renameID     = renameCmd.Arg("id", "Song ID").Required().Int64()
	renameTitle  = renameCmd.Arg("title", "New title").Required().String()
	renameArtist = renameCmd.Flag("artist", "New artist (unchanged when omitted)").String()

	// delete command
	deleteCmd = app.Command("delete", "Delete a song and its file").Alias("rm")
	deleteID  = deleteCmd.Arg("id", "Song ID").Required().Int64()

	// plays command
	playsCmd = app.Command("plays", "Show how often a song was played")
	playsID  = playsCmd.Arg("id", "Song ID").Required().Int64()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiclient.New(*server, nil)
	ctx := context.Background()

	var err error
	switch command {
	case listCmd.FullCommand():
		err = list(ctx, client)
	case uploadCmd.FullCommand():
		err = upload(ctx, client, *uploadFiles)
	case renameCmd.FullCommand():
		var artist *string
		if *renameArtist != "" {
			artist = renameArtist
		}
		err = rename(ctx, client, *renameID, *renameTitle, artist)
	case deleteCmd.FullCommand():
		err = remove(ctx, client, *deleteID)
	case playsCmd.FullCommand():
		err = plays(ctx, client, *playsID)
	}
	if err != nil {
		fmt.Printf("Error: %s\n", describeError(err))
		os.Exit(1)
	}
}

func list(ctx context.Context, client *apiclient.Client) error {
	songs, err := client.List(ctx)
	if err != nil {
		return err
	}
	if len(songs) == 0 {
		fmt.Println("No songs in the library")
		return nil
	}
	renderSongs(os.Stdout, songs)
	return nil
}

func upload(ctx context.Context, client *apiclient.Client, paths []string) error {
	created, err := client.Upload(ctx, paths...)
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %d songs:\n", len(created))
	renderSongs(os.Stdout, created)
	return nil
}

func rename(ctx context.Context, client *apiclient.Client, id int64, title string, artist *string) error {
	t, err := client.Rename(ctx, id, title, artist)
	if err != nil {
		return err
	}
	fmt.Printf("Renamed %d: %s - %s\n", t.ID, t.Artist, t.Title)
	return nil
}

func remove(ctx context.Context, client *apiclient.Client, id int64) error {
	if err := client.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted %d\n", id)
	return nil
}

func plays(ctx context.Context, client *apiclient.Client, id int64) error {
	n, err := client.PlayCount(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Song %d played %d times\n", id, n)
	return nil
}

// renderSongs writes songs as a table.
func renderSongs(w io.Writer, songs []track.Track) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Artist", "Length", "Format", "File"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ID", Align: text.AlignRight},
		{Name: "Title", WidthMax: 40},
		{Name: "Artist", WidthMax: 30},
		{Name: "Length", Align: text.AlignRight},
	})

	var total time.Duration
	for _, s := range songs {
		t.AppendRow(table.Row{s.ID, s.Title, s.Artist, formatLength(s.Length()), s.Format, s.Filename})
		total += s.Length()
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d songs", len(songs)), "", formatLength(total)})
	t.Render()
}

// formatLength formats d as m:ss, or h:mm:ss from an hour up. Zero is shown as "-".
func formatLength(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	secs := int(d / time.Second)
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// describeError prefers the server's message over the wrapped chain.
func describeError(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		if apiErr.Code != "" {
			return fmt.Sprintf("%s [%s]", apiErr.Message, apiErr.Code)
		}
		return apiErr.Message
	}
	return err.Error()
}
