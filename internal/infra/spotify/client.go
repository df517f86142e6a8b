// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotFound is returned when a search yields no track.
var ErrNotFound = errors.New("spotify: no matching track")

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// TrackInfo is the subset of a Spotify track used for metadata enrichment.
type TrackInfo struct {
	ID       string
	Name     string
	Artists  []string
	Duration time.Duration
}

// Artist returns the artists joined with ", ".
func (t TrackInfo) Artist() string {
	return strings.Join(t.Artists, ", ")
}

// New creates a new Spotify client using the client credentials flow.
// No user authorization is needed since only the catalog search is used.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	return newClient(cc.Client(ctx), cfg.Market), nil
}

func newClient(httpClient *http.Client, market string, opts ...spotify.ClientOption) *Client {
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// SearchTrack finds the best catalog match for a title and optional artist.
func (c *Client) SearchTrack(ctx context.Context, title, artist string) (*TrackInfo, error) {
	query := buildQuery(title, artist)
	if query == "" {
		return nil, errors.New("search query is required")
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(1),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "query %q", query)
	}

	return convertTrack(&result.Tracks.Tracks[0]), nil
}

func convertTrack(t *spotify.FullTrack) *TrackInfo {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	return &TrackInfo{
		ID:       string(t.ID),
		Name:     t.Name,
		Artists:  artists,
		Duration: time.Duration(t.Duration) * time.Millisecond,
	}
}

// buildQuery uses Spotify field filters when the artist is known.
func buildQuery(title, artist string) string {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)
	switch {
	case title == "":
		return ""
	case artist == "":
		return title
	default:
		return fmt.Sprintf("track:%s artist:%s", title, artist)
	}
}

// retry retries an operation with exponential backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
