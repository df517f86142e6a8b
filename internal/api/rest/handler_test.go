package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lanplay/internal/app/filter"
	"github.com/osa030/lanplay/internal/app/library"
	"github.com/osa030/lanplay/internal/domain/track"
	"github.com/osa030/lanplay/internal/infra/tags"
)

type stubMessages struct{}

func (stubMessages) GetMessage(code string) string { return "msg:" + code }

type fakeHistory struct {
	mu     sync.Mutex
	counts map[int64]int64
}

func (f *fakeHistory) RecordPlay(ctx context.Context, songID int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[songID]++
	return nil
}

func (f *fakeHistory) PlayCount(ctx context.Context, songID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[songID], nil
}

func (f *fakeHistory) Forget(ctx context.Context, songID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, songID)
	return nil
}

type testServer struct {
	*httptest.Server
	store   *library.Store
	history *fakeHistory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := library.Open(t.TempDir(), "")
	require.NoError(t, err)

	chain := filter.NewChain()
	chain.Add(filter.NewFormatFilter())
	chain.Add(filter.NewSizeLimitFilter(1))
	svc := library.NewService(store, chain, tags.NewReader(), nil, library.ServiceConfig{MaxFiles: 2})

	history := &fakeHistory{counts: make(map[int64]int64)}
	h := NewHandler(Config{
		Library:  store,
		Uploader: svc,
		History:  history,
		Messages: stubMessages{},
	})

	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)
	return &testServer{Server: server, store: store, history: history}
}

type part struct {
	name        string
	contentType string
	content     string
}

func multipartBody(t *testing.T, field string, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+p.name+`"`)
		hdr.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = io.WriteString(w, p.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (s *testServer) do(t *testing.T, method, path, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) upload(t *testing.T, parts ...part) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, "songs", parts...)
	return s.do(t, http.MethodPost, "/api/songs/upload", ct, body)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) seed(t *testing.T, names ...string) []track.Track {
	t.Helper()
	parts := make([]part, len(names))
	for i, n := range names {
		parts[i] = part{name: n, contentType: "audio/mpeg", content: "data-" + n}
	}
	resp := s.upload(t, parts...)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[[]track.Track](t, resp)
}

func TestListSongs(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/songs", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Empty(t, decode[[]track.Track](t, resp))

	created := s.seed(t, "First.mp3", "Second.wav")
	resp = s.do(t, http.MethodGet, "/api/songs", "", nil)
	assert.Equal(t, created, decode[[]track.Track](t, resp))
}

func TestUploadSongs(t *testing.T) {
	s := newTestServer(t)

	resp := s.upload(t,
		part{name: "Night Drive.mp3", contentType: "audio/mpeg", content: "abc"},
		part{name: "rain.flac", contentType: "application/octet-stream", content: "def"},
	)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[[]track.Track](t, resp)
	require.Len(t, created, 2)
	assert.Equal(t, "Night Drive", created[0].Title)
	assert.Equal(t, track.DefaultArtist, created[0].Artist)
	assert.Equal(t, track.FormatMP3, created[0].Format)
	assert.Equal(t, "rain", created[1].Title)
	assert.Equal(t, track.FormatFLAC, created[1].Format)
	assert.Equal(t, 2, s.store.Len())
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		request  func(t *testing.T, s *testServer) *http.Response
		wantCode string
	}{
		{
			name: "no files in form",
			request: func(t *testing.T, s *testServer) *http.Response {
				body, ct := multipartBody(t, "other", part{name: "a.mp3", contentType: "audio/mpeg", content: "x"})
				return s.do(t, http.MethodPost, "/api/songs/upload", ct, body)
			},
			wantCode: "no_files",
		},
		{
			name: "not multipart",
			request: func(t *testing.T, s *testServer) *http.Response {
				return s.do(t, http.MethodPost, "/api/songs/upload", "application/json", strings.NewReader("{}"))
			},
			wantCode: "no_files",
		},
		{
			name: "too many files",
			request: func(t *testing.T, s *testServer) *http.Response {
				return s.upload(t,
					part{name: "a.mp3", contentType: "audio/mpeg", content: "a"},
					part{name: "b.mp3", contentType: "audio/mpeg", content: "b"},
					part{name: "c.mp3", contentType: "audio/mpeg", content: "c"},
				)
			},
			wantCode: "too_many_files",
		},
		{
			name: "unsupported format",
			request: func(t *testing.T, s *testServer) *http.Response {
				return s.upload(t, part{name: "clip.ogg", contentType: "audio/ogg", content: "x"})
			},
			wantCode: "unsupported_format",
		},
		{
			name: "wrong mime",
			request: func(t *testing.T, s *testServer) *http.Response {
				return s.upload(t, part{name: "a.mp3", contentType: "image/png", content: "x"})
			},
			wantCode: "unsupported_format",
		},
		{
			name: "too large",
			request: func(t *testing.T, s *testServer) *http.Response {
				return s.upload(t, part{name: "a.mp3", contentType: "audio/mpeg", content: strings.Repeat("x", 1<<20+1)})
			},
			wantCode: "file_too_large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			resp := tt.request(t, s)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			body := decode[ErrorResponse](t, resp)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, "msg:"+tt.wantCode, body.Error)
			assert.Equal(t, 0, s.store.Len())
		})
	}
}

func TestUploadBodyLimit(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantStatus int
		wantCode   string
	}{
		{name: "within limit", size: 1 << 10, wantStatus: http.StatusCreated},
		{name: "oversized body", size: 16 << 10, wantStatus: http.StatusBadRequest, wantCode: "file_too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := library.Open(t.TempDir(), "")
			require.NoError(t, err)
			// No size filter: only the body limit stands in the way.
			svc := library.NewService(store, filter.NewChain(), tags.NewReader(), nil, library.ServiceConfig{MaxFiles: 2})
			h := NewHandler(Config{
				Library:   store,
				Uploader:  svc,
				Messages:  stubMessages{},
				MaxUpload: 4 << 10,
			})

			body, ct := multipartBody(t, "songs", part{name: "a.mp3", contentType: "audio/mpeg", content: strings.Repeat("x", tt.size)})
			req := httptest.NewRequest(http.MethodPost, "/api/songs/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode == "" {
				assert.Equal(t, 1, store.Len())
				return
			}
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, "msg:"+tt.wantCode, resp.Error)
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestRenameSong(t *testing.T) {
	s := newTestServer(t)
	song := s.seed(t, "a.mp3")[0]
	path := "/api/songs/" + itoa(song.ID)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
		wantTitle  string
		wantArtist string
	}{
		{name: "title only", path: path, body: `{"title":"New"}`, wantStatus: http.StatusOK, wantTitle: "New", wantArtist: track.DefaultArtist},
		{name: "title and artist", path: path, body: `{"title":"New","artist":"Band"}`, wantStatus: http.StatusOK, wantTitle: "New", wantArtist: "Band"},
		{name: "empty title", path: path, body: `{"title":"  "}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_track"},
		{name: "unknown id", path: "/api/songs/999", body: `{"title":"x"}`, wantStatus: http.StatusNotFound, wantCode: "track_not_found"},
		{name: "bad id", path: "/api/songs/abc", body: `{"title":"x"}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_id"},
		{name: "bad json", path: path, body: `{"title":`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPatch, tt.path, "application/json", strings.NewReader(tt.body))
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, resp).Code)
				return
			}
			got := decode[track.Track](t, resp)
			assert.Equal(t, tt.wantTitle, got.Title)
			assert.Equal(t, tt.wantArtist, got.Artist)
		})
	}

	// The failed renames left the last good state in place
	stored, err := s.store.Get(song.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", stored.Title)
	assert.Equal(t, "Band", stored.Artist)
}

func TestDeleteSong(t *testing.T) {
	s := newTestServer(t)
	song := s.seed(t, "a.mp3")[0]
	path := "/api/songs/" + itoa(song.ID)

	resp := s.do(t, http.MethodDelete, path, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, s.store.Len())

	resp = s.do(t, http.MethodDelete, path, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "track_not_found", decode[ErrorResponse](t, resp).Code)

	resp = s.do(t, http.MethodGet, "/api/audio/"+song.StoredName(), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteSongKeptWhenFileCannotBeRemoved(t *testing.T) {
	s := newTestServer(t)
	song := s.seed(t, "a.mp3")[0]
	path := "/api/songs/" + itoa(song.ID)

	resp := s.do(t, http.MethodPost, path+"/plays", "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	stored := s.store.ListAll()[0].Path
	require.NoError(t, os.Remove(stored))
	require.NoError(t, os.Mkdir(stored, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stored, "inner"), []byte("x"), 0o644))

	resp = s.do(t, http.MethodDelete, path, "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "default_error", decode[ErrorResponse](t, resp).Code)
	assert.Equal(t, 1, s.store.Len())

	count, err := s.history.PlayCount(context.Background(), song.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "history is kept with the song")
}

func TestServeAudio(t *testing.T) {
	s := newTestServer(t)
	song := s.seed(t, "Song.mp3")[0]

	t.Run("full body", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/audio/"+song.StoredName(), "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "data-Song.mp3", string(data))
	})

	t.Run("range", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, s.URL+"/api/audio/"+song.StoredName(), nil)
		require.NoError(t, err)
		req.Header.Set("Range", "bytes=5-8")
		resp, err := s.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "Song", string(data))
	})

	t.Run("audio url", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, strings.TrimPrefix(track.AudioURL(s.URL, song), s.URL), "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown file", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/audio/metadata.json", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestPlays(t *testing.T) {
	s := newTestServer(t)
	song := s.seed(t, "a.mp3")[0]
	path := "/api/songs/" + itoa(song.ID) + "/plays"

	for range 2 {
		resp := s.do(t, http.MethodPost, path, "", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	resp := s.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, PlayCountResponse{ID: song.ID, Count: 2}, decode[PlayCountResponse](t, resp))

	resp = s.do(t, http.MethodPost, "/api/songs/42/plays", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Deleting the song forgets its history
	s.do(t, http.MethodDelete, "/api/songs/"+itoa(song.ID), "", nil)
	assert.Empty(t, s.history.counts)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "a.mp3")

	resp := s.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["songs"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodPut, "/api/songs", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
