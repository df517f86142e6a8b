// Package speaker provides the audio output used by the player.
package speaker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lanplay/internal/domain/track"
)

// fetch reads the whole source into memory so the decoder can seek freely.
// HTTP(S) URLs are downloaded; anything else is read as a local path.
func fetch(ctx context.Context, client *http.Client, source string) (*bytes.Reader, track.Format, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, "", errors.Wrapf(err, "invalid source %q", source)
	}

	name := source
	if u.Scheme == "http" || u.Scheme == "https" {
		name = u.Path
	}
	format, ok := track.FormatOf(name)
	if !ok {
		return nil, "", errors.Newf("cannot infer format of %q", source)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, "", errors.Wrap(err, "failed to read source")
		}
		return bytes.NewReader(data), format, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to create request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to fetch source")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Newf("fetching %s returned status %d", source, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to read source body")
	}
	return bytes.NewReader(data), format, nil
}
