// Package playlist provides the ordered track sequence the player works on.
package playlist

import (
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"

	"github.com/osa030/lanplay/internal/domain/track"
)

// Playlist is an ordered sequence of tracks.
type Playlist struct {
	Tracks []track.Track
}

// New creates a playlist holding a copy of tracks.
func New(tracks []track.Track) *Playlist {
	cp := make([]track.Track, len(tracks))
	copy(cp, tracks)
	return &Playlist{Tracks: cp}
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}

// At returns the track at index i.
func (p *Playlist) At(i int) (track.Track, bool) {
	if i < 0 || i >= len(p.Tracks) {
		return track.Track{}, false
	}
	return p.Tracks[i], true
}

// IndexOf returns the position of the track with the given ID, or -1.
func (p *Playlist) IndexOf(id int64) int {
	_, idx, ok := lo.FindIndexOf(p.Tracks, func(t track.Track) bool {
		return t.ID == id
	})
	if !ok {
		return -1
	}
	return idx
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []int64 {
	return lo.Map(p.Tracks, func(t track.Track, _ int) int64 {
		return t.ID
	})
}

// TotalDuration returns the total duration of all tracks in seconds.
func (p *Playlist) TotalDuration() int64 {
	var total int64
	for _, t := range p.Tracks {
		total += int64(t.Duration)
	}
	return total
}

// SameOrder reports whether other holds the same track IDs in the same order.
func (p *Playlist) SameOrder(other *Playlist) bool {
	return slices.Equal(p.TrackIDs(), other.TrackIDs())
}

// Refreshed returns a copy of p in p's order, with every track replaced by the record
// of the same ID from latest. Tracks missing from latest are kept as they are.
func (p *Playlist) Refreshed(latest *Playlist) *Playlist {
	byID := lo.KeyBy(latest.Tracks, func(t track.Track) int64 {
		return t.ID
	})
	out := New(p.Tracks)
	for i, t := range out.Tracks {
		if fresh, ok := byID[t.ID]; ok {
			out.Tracks[i] = fresh
		}
	}
	return out
}

// Shuffled returns a new playlist holding a Fisher–Yates permutation of p.
func (p *Playlist) Shuffled(r *rand.Rand) *Playlist {
	out := New(p.Tracks)
	for i := len(out.Tracks) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		out.Tracks[i], out.Tracks[j] = out.Tracks[j], out.Tracks[i]
	}
	return out
}
