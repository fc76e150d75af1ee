// Package playlist provides the Playlist domain entity.
package playlist

import "github.com/osa030/tunesync/internal/domain/track"

// Playlist represents a user playlist.
type Playlist struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
	Tracks      []track.Track `json:"tracks,omitempty"`
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []track.ID {
	ids := make([]track.ID, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// IndexOf returns the position of the track with the given id, or -1.
func (p *Playlist) IndexOf(id track.ID) int {
	for i, t := range p.Tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether the playlist holds the track.
func (p *Playlist) Contains(id track.ID) bool {
	return p.IndexOf(id) >= 0
}

// WithTrack returns a copy of the track list with t appended, unless already present.
func (p *Playlist) WithTrack(t track.Track) []track.Track {
	if p.Contains(t.ID) {
		return p.Tracks
	}
	out := make([]track.Track, 0, len(p.Tracks)+1)
	out = append(out, p.Tracks...)
	return append(out, t)
}

// WithoutTrack returns a copy of the track list with every entry for id removed.
func (p *Playlist) WithoutTrack(id track.ID) []track.Track {
	out := make([]track.Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// TotalDuration returns the total duration of all tracks in seconds.
func (p *Playlist) TotalDuration() int64 {
	var total int64
	for _, t := range p.Tracks {
		total += int64(t.Duration.Seconds())
	}
	return total
}
