// Package main provides the interactive player entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lanplay/internal/app/playback"
	"github.com/osa030/lanplay/internal/app/playlist"
	"github.com/osa030/lanplay/internal/domain/track"
	"github.com/osa030/lanplay/internal/infra/apiclient"
	"github.com/osa030/lanplay/internal/infra/logger"
	"github.com/osa030/lanplay/internal/infra/redis"
	"github.com/osa030/lanplay/internal/infra/speaker"
)

var (
	app           = kingpin.New("lanplay-player", "lanplay interactive player")
	server        = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("LANPLAY_SERVER").String()
	refresh       = app.Flag("refresh", "Library refresh interval").Default("10s").Duration()
	redisAddr     = app.Flag("redis", "Redis address for saved modes (optional)").Envar("REDIS_ADDR").String()
	redisPassword = app.Flag("redis-password", "Redis password").Envar("REDIS_PASSWORD").String()
	name          = app.Flag("name", "Player name used as the settings key").Default("default").String()
	epsilon       = app.Flag("end-epsilon", "Remaining time at which a track counts as ended").Default("300ms").Duration()
	verbose       = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile       = app.Flag("logfile", "Path to log file (default: stderr)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		App:    "player",
		Output: "stderr",
		Level:  "warn",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		fmt.Printf("Error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if !speaker.Available {
		fmt.Println("Error: this build has no audio output (rebuild with CGO_ENABLED=1)")
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := apiclient.New(*server, nil)

	engine := playback.NewEngine(speaker.New(nil), playback.Config{EndEpsilon: *epsilon})
	defer engine.Close()
	go engine.Run(ctx)

	ctrl := playlist.NewController(engine, playlist.Config{BaseURL: client.BaseURL()})
	defer ctrl.Close()

	tracks, err := client.List(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to reach server %s", client.BaseURL())
	}
	ctrl.SetTracks(ctx, tracks)
	fmt.Printf("Connected to %s (%d songs)\n", client.BaseURL(), len(tracks))

	settings := newModeStore(ctx)
	if settings != nil {
		restoreModes(ctx, ctrl, settings)
	}

	go refreshLoop(ctx, client, ctrl, *refresh)
	go watchEvents(ctx, client, ctrl, settings)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return repl(ctx, os.Stdin, os.Stdout, ctrl)
}

// newModeStore connects to Redis when an address is given.
func newModeStore(ctx context.Context) *redis.SettingsStore {
	if *redisAddr == "" {
		return nil
	}
	rdb, err := redis.Connect(ctx, redis.Config{Addr: *redisAddr, Password: *redisPassword})
	if err != nil {
		zlog.Warn().Msgf("Saved modes disabled: %v", err)
		return nil
	}
	return redis.NewSettingsStore(rdb)
}

func restoreModes(ctx context.Context, ctrl *playlist.Controller, settings *redis.SettingsStore) {
	saved, err := settings.Get(ctx, *name)
	if err != nil {
		zlog.Warn().Msgf("Failed to load saved modes: %v", err)
		return
	}
	repeat, ok := playlist.ParseRepeatMode(saved.RepeatMode)
	if !ok {
		zlog.Warn().Msgf("Ignoring saved repeat mode %q", saved.RepeatMode)
	}
	ctrl.SetModes(saved.Shuffle, repeat)
}

// refreshLoop polls the library so uploads and deletions reach the playlist.
func refreshLoop(ctx context.Context, client *apiclient.Client, ctrl *playlist.Controller, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tracks, err := client.List(ctx)
			if err != nil {
				zlog.Warn().Msgf("Library refresh failed: %v", err)
				continue
			}
			ctrl.SetTracks(ctx, tracks)
		}
	}
}

// watchEvents prints controller events, records plays and saves mode changes.
func watchEvents(ctx context.Context, client *apiclient.Client, ctrl *playlist.Controller, settings *redis.SettingsStore) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ctrl.Events():
			if !ok {
				return
			}
			switch e.Type {
			case playlist.EventTrackChanged:
				if e.Track == nil {
					fmt.Println("\n-- playlist is empty")
					continue
				}
				fmt.Printf("\n-- now: %s\n", describe(*e.Track))
				if e.Playing {
					if err := client.RecordPlay(ctx, e.Track.ID); err != nil {
						zlog.Debug().Msgf("Failed to record play of song %d: %v", e.Track.ID, err)
					}
				}
			case playlist.EventStateChanged:
				fmt.Printf("\n-- %s\n", playingLabel(e.Playing))
			case playlist.EventModeChanged:
				fmt.Printf("\n-- shuffle=%v repeat=%s\n", e.Shuffle, e.Repeat)
				if settings != nil {
					s := redis.Settings{RepeatMode: e.Repeat.String(), Shuffle: e.Shuffle}
					if err := settings.Set(ctx, *name, s); err != nil {
						zlog.Warn().Msgf("Failed to save modes: %v", err)
					}
				}
			case playlist.EventPlaybackFailed:
				fmt.Printf("\n-- playback failed: %v\n", e.Err)
			}
		}
	}
}

// repl reads commands from in until quit, EOF or ctx cancellation.
func repl(ctx context.Context, in io.Reader, out io.Writer, ctrl *playlist.Controller) error {
	fmt.Fprintln(out, "Type 'help' for commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(ctx, out, ctrl, line)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// execute runs one command line. It reports whether the player should exit.
func execute(ctx context.Context, out io.Writer, ctrl *playlist.Controller, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "play", "pause", "toggle", "p":
		if len(fields) > 1 {
			return false, playIndex(ctx, ctrl, fields[1])
		}
		return false, ctrl.TogglePlay(ctx)
	case "next", "n":
		return false, ctrl.Next(ctx)
	case "prev", "previous", "b":
		return false, ctrl.Previous(ctx)
	case "seek":
		if len(fields) < 2 {
			return false, errors.New("usage: seek <seconds>")
		}
		secs, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return false, errors.Newf("invalid position %q", fields[1])
		}
		return false, ctrl.Seek(time.Duration(secs * float64(time.Second)))
	case "shuffle", "s":
		ctrl.ToggleShuffle()
	case "repeat", "r":
		ctrl.ToggleRepeat()
	case "list", "ls":
		printList(out, ctrl.Snapshot())
	case "status", "st":
		printStatus(out, ctrl.Snapshot())
	case "help", "?":
		printHelp(out)
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, errors.Newf("unknown command %q", fields[0])
	}
	return false, nil
}

// playIndex plays the n-th (1-based) song of the active sequence.
func playIndex(ctx context.Context, ctrl *playlist.Controller, arg string) error {
	n, err := strconv.Atoi(arg)
	snap := ctrl.Snapshot()
	if err != nil || n < 1 || n > len(snap.Tracks) {
		return errors.Newf("no song at position %q", arg)
	}
	return ctrl.Play(ctx, snap.Tracks[n-1])
}

func printList(out io.Writer, snap playlist.Snapshot) {
	if len(snap.Tracks) == 0 {
		fmt.Fprintln(out, "No songs")
		return
	}
	for i, t := range snap.Tracks {
		marker := " "
		if i == snap.Index {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %3d. %s\n", marker, i+1, describe(t))
	}
	fmt.Fprintf(out, "%d songs, %s\n", len(snap.Tracks), clock(snap.Total))
}

func printStatus(out io.Writer, snap playlist.Snapshot) {
	if snap.Track == nil {
		fmt.Fprintln(out, "Nothing selected")
	} else {
		fmt.Fprintf(out, "%s: %s\n", playingLabel(snap.Playing), describe(*snap.Track))
		fmt.Fprintf(out, "  %s / %s\n", clock(snap.Position), clock(snap.Duration))
	}
	fmt.Fprintf(out, "  shuffle=%v repeat=%s songs=%d total=%s\n", snap.Shuffle, snap.Repeat, len(snap.Tracks), clock(snap.Total))
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `Commands:
  play [n]     toggle play/pause, or play song n of the list
  next         skip to the next song
  prev         previous song (restarts the current one after 3s)
  seek <secs>  jump to a position
  shuffle      toggle shuffle
  repeat       cycle repeat none -> all -> one
  list         show the play order
  status       show the current song
  quit         exit`)
}

func describe(t track.Track) string {
	s := t.Title
	if t.Artist != "" {
		s = t.Artist + " - " + s
	}
	if t.Duration > 0 {
		s += " [" + clock(t.Length()) + "]"
	}
	return s
}

func playingLabel(playing bool) string {
	if playing {
		return "Playing"
	}
	return "Paused"
}

// clock formats d as m:ss.
func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
