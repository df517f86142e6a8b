// Package main provides the library server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/lanplay/internal/api/rest"
	"github.com/osa030/lanplay/internal/app/enrich"
	"github.com/osa030/lanplay/internal/app/filter"
	"github.com/osa030/lanplay/internal/app/library"
	"github.com/osa030/lanplay/internal/domain/track"
	"github.com/osa030/lanplay/internal/infra/config"
	"github.com/osa030/lanplay/internal/infra/logger"
	"github.com/osa030/lanplay/internal/infra/postgres"
	"github.com/osa030/lanplay/internal/infra/spotify"
	"github.com/osa030/lanplay/internal/infra/tags"
)

var (
	app        = kingpin.New("lanplay-server", "lanplay music library server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	addr       = app.Flag("addr", "Listen address (overrides server.addr)").String()
	storageDir = app.Flag("storage", "Storage directory (overrides storage.dir)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
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

	// Handle list-filters command
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		App:    "server",
		Output: "stdout",
		Level:  "info",
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := loadConfig(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *storageDir != "" {
		cfg.Storage.Dir = *storageDir
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == "config/server.yaml" {
		zlog.Info().Msgf("Config file %s not found, using defaults", path)
		return config.Load("")
	}
	return config.Load(path)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the metadata store
	store, err := library.Open(cfg.Storage.Dir, cfg.Storage.Sidecar)
	if err != nil {
		return errors.Wrap(err, "failed to open library")
	}
	zlog.Info().Msgf("Library opened: dir=%s songs=%d", store.Dir(), store.Len())

	// Build the upload filter chain
	chain, err := filter.NewChainFromConfig(cfg, store)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	// Build the enrichment chain
	enricher, err := newEnricher(ctx, cfg)
	if err != nil {
		return err
	}

	uploads := library.NewService(store, chain, tags.NewReader(), enricher, library.ServiceConfig{
		MaxFiles: cfg.Upload.MaxFiles,
	})

	// Optional play history
	history := postgres.NewHistoryRepository(nil)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			zlog.Warn().Msgf("Play history disabled: %v", err)
		} else {
			defer db.Close()
			history = postgres.NewHistoryRepository(db)
		}
	}

	// Watch the storage directory for removed files
	if !cfg.Storage.NoWatch {
		watcher, err := library.NewWatcher(store, func(dropped []track.Track) {
			for _, t := range dropped {
				if err := history.Forget(ctx, t.ID); err != nil {
					zlog.Warn().Msgf("Failed to forget play history of song %d: %v", t.ID, err)
				}
			}
		})
		if err != nil {
			zlog.Warn().Msgf("Directory watching disabled: %v", err)
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	handler := rest.NewHandler(rest.Config{
		Library:   store,
		Uploader:  uploads,
		History:   history,
		Messages:  cfg,
		MaxMemory: int64(cfg.Upload.MaxMemoryMB) << 20,
		MaxUpload: uploads.MaxRequestBytes(),
	})

	// Determine server address
	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(handler.Routes(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		// Signal that we're about to start listening
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// newEnricher creates the enrichment chain. The Spotify client is only
// created when a spotify provider is configured.
func newEnricher(ctx context.Context, cfg *config.Config) (*enrich.ProviderChain, error) {
	var spotifyClient enrich.SpotifyClient
	if cfg.HasProvider("spotify") {
		c, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Spotify client")
		}
		spotifyClient = c
	}

	chain, err := enrich.NewProviderChainFromConfig(cfg, spotifyClient)
	if err != nil {
		return nil, errors.Wrap(err, "invalid enrich config")
	}
	if chain.Len() == 0 {
		zlog.Info().Msg("No enrichment providers configured, uploads keep their own tags")
	}
	return chain, nil
}

// printFilters prints available filters.
func printFilters() {
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
	dup := filter.NewDuplicateTrackFilter(nil)
	fmt.Printf("  %-30s - %s [codes: %s]\n", dup.Name(), dup.Description(), strings.Join(dup.ReturnCodes(), ", "))
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
