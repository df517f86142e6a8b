//go:build !((linux && cgo) || windows || darwin)

package speaker

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lanplay/internal/infra/tags"
)

// Available indicates whether audio playback is supported in this build.
// Audio requires CGO for native sound libraries.
const Available = false

// ErrUnavailable is returned by Play when the build has no audio support.
var ErrUnavailable = errors.New("audio output requires a cgo build")

// Output decodes sources but cannot play them.
// Load still validates the source so the player reports unsupported files.
type Output struct {
	client   *http.Client
	duration time.Duration
	position time.Duration
}

// New creates an output for builds without audio support.
func New(client *http.Client) *Output {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Output{client: client}
}

func (o *Output) Load(ctx context.Context, source string, onEnded func()) error {
	data, format, err := fetch(ctx, o.client, source)
	if err != nil {
		return err
	}
	d, err := tags.Duration(data, format)
	if err != nil {
		return err
	}
	o.duration = d
	o.position = 0
	return nil
}

func (o *Output) Play(ctx context.Context) error {
	return ErrUnavailable
}

func (o *Output) Pause() {}

func (o *Output) Seek(pos time.Duration) error {
	o.position = pos
	return nil
}

func (o *Output) Position() time.Duration {
	return o.position
}

func (o *Output) Duration() time.Duration {
	return o.duration
}

func (o *Output) Close() error {
	return nil
}
