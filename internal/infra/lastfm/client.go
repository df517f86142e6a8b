// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrTrackNotFound is returned when Last.fm has no record of the track.
var ErrTrackNotFound = errors.New("last.fm: track not found")

// Last.fm error code for an unknown track.
const errCodeInvalidResource = 6

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Cache for track info, keyed by normalized artist and title
	trackInfoCache map[string]TrackInfo
	cacheMu        sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey string
}

// TrackInfo represents the track.getInfo result.
type TrackInfo struct {
	Name     string
	Artist   string
	Album    string
	Duration time.Duration
}

// GetInfoResponse represents the response from track.getInfo API.
type GetInfoResponse struct {
	Track struct {
		Name string `json:"name"`
		// Milliseconds, encoded as a string
		Duration string `json:"duration"`
		Artist   struct {
			Name string `json:"name"`
		} `json:"artist"`
		Album struct {
			Title string `json:"title"`
		} `json:"album"`
	} `json:"track"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        "https://ws.audioscrobbler.com/2.0/",
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		trackInfoCache: make(map[string]TrackInfo),
	}, nil
}

// GetTrackInfo retrieves track metadata by track name and artist.
// Reference: https://www.last.fm/api/show/track.getInfo
func (c *Client) GetTrackInfo(ctx context.Context, trackName, artistName string) (TrackInfo, error) {
	if trackName == "" || artistName == "" {
		return TrackInfo{}, errors.New("track name and artist name are required")
	}

	cacheKey := fmt.Sprintf("trackinfo:%s:%s", strings.ToLower(artistName), strings.ToLower(trackName))
	c.cacheMu.RLock()
	if info, ok := c.trackInfoCache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("using cached info for track: %s - %s", artistName, trackName)
		return info, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("method", "track.getInfo")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("autocorrect", "1")

	var response GetInfoResponse
	if err := c.call(ctx, params, &response); err != nil {
		return TrackInfo{}, err
	}

	info := TrackInfo{
		Name:   response.Track.Name,
		Artist: response.Track.Artist.Name,
		Album:  response.Track.Album.Title,
	}
	if ms, err := strconv.ParseInt(response.Track.Duration, 10, 64); err == nil && ms > 0 {
		info.Duration = time.Duration(ms) * time.Millisecond
	}

	c.cacheMu.Lock()
	c.trackInfoCache[cacheKey] = info
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("cached info for track: %s - %s (duration: %s)", artistName, trackName, info.Duration)

	return info, nil
}

// call performs a GET request against the API root and decodes the JSON body into out.
func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Check for Last.fm API errors
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		if apiError.Error == errCodeInvalidResource {
			return errors.Wrap(ErrTrackNotFound, apiError.Message)
		}
		return errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("last.fm API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
