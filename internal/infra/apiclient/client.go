// Package apiclient is an HTTP client for the library server API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lanplay/internal/domain/track"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Client talks to the library server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client for the server at baseURL.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List returns all songs.
func (c *Client) List(ctx context.Context) ([]track.Track, error) {
	var songs []track.Track
	if err := c.doJSON(ctx, http.MethodGet, "/api/songs", nil, &songs); err != nil {
		return nil, errors.Wrap(err, "failed to list songs")
	}
	return songs, nil
}

// Upload sends local files in one request.
func (c *Client) Upload(ctx context.Context, paths ...string) ([]track.Track, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range paths {
		if err := addFile(mw, p); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finish multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/songs/upload", &buf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var created []track.Track
	if err := c.send(req, &created); err != nil {
		return nil, errors.Wrap(err, "upload failed")
	}
	return created, nil
}

// Rename updates a song's title and, when artist is non-nil, its artist.
func (c *Client) Rename(ctx context.Context, id int64, title string, artist *string) (track.Track, error) {
	body := map[string]any{"title": title}
	if artist != nil {
		body["artist"] = *artist
	}
	var t track.Track
	if err := c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/api/songs/%d", id), body, &t); err != nil {
		return track.Track{}, errors.Wrapf(err, "failed to rename song %d", id)
	}
	return t, nil
}

// Delete removes a song.
func (c *Client) Delete(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/songs/%d", id), nil, nil); err != nil {
		return errors.Wrapf(err, "failed to delete song %d", id)
	}
	return nil
}

// RecordPlay reports that a song was played.
func (c *Client) RecordPlay(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/songs/%d/plays", id), nil, nil); err != nil {
		return errors.Wrapf(err, "failed to record play of song %d", id)
	}
	return nil
}

// PlayCount returns how often a song was played.
func (c *Client) PlayCount(ctx context.Context, id int64) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/songs/%d/plays", id), nil, &resp); err != nil {
		return 0, errors.Wrapf(err, "failed to get play count of song %d", id)
	}
	return resp.Count, nil
}

// AudioURL returns the URL the player loads for t.
func (c *Client) AudioURL(t track.Track) string {
	return track.AudioURL(c.baseURL, t)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			apiErr.Message, apiErr.Code = body.Error, body.Code
		}
		if resp.StatusCode == http.StatusNotFound {
			return errors.Mark(apiErr, ErrNotFound)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func addFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	name := filepath.Base(path)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="songs"; filename=%q`, name))
	if format, ok := track.FormatOf(name); ok {
		hdr.Set("Content-Type", format.ContentType())
	} else {
		hdr.Set("Content-Type", "application/octet-stream")
	}

	w, err := mw.CreatePart(hdr)
	if err != nil {
		return errors.Wrap(err, "failed to create multipart part")
	}
	if _, err := io.Copy(w, f); err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	return nil
}
