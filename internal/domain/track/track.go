// Package track provides the Track domain entity and its identity types.
package track

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// ID is an opaque track identifier.
// Remote services send it either as a JSON number or a JSON string;
// both forms decode into the same string value.
type ID string

// IDFromInt returns the ID for a numeric identifier.
func IDFromInt(n uint64) ID {
	return ID(strconv.FormatUint(n, 10))
}

// IsZero reports whether the id is absent.
func (id ID) IsZero() bool {
	return id == ""
}

func (id ID) String() string {
	return string(id)
}

// UnmarshalJSON accepts a string, a number or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return errors.Wrap(err, "failed to decode track id")
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "failed to decode track id")
	}
	*id = ID(n.String())
	return nil
}

// Track represents a playable media item.
type Track struct {
	ID          ID            `json:"id,omitempty"`
	URL         string        `json:"url,omitempty"`
	Title       string        `json:"title,omitempty"`
	Artists     []string      `json:"artists,omitempty"`
	Album       string        `json:"album,omitempty"`
	ArtworkURL  string        `json:"artwork,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Markets     []string      `json:"markets,omitempty"`
	IsPlayable  *bool         `json:"isPlayable,omitempty"` // nil when not reported by the source
	IsFavorite  bool          `json:"isFavorite"`
	PlaylistIDs []string      `json:"playlistIds,omitempty"` // playlists containing this track
}

// IsAvailableInMarket checks if the track is available in the specified market.
func (t *Track) IsAvailableInMarket(market string) bool {
	// IsPlayable takes precedence (Track Relinking support)
	if t.IsPlayable != nil {
		return *t.IsPlayable
	}

	for _, m := range t.Markets {
		if m == market {
			return true
		}
	}
	return false
}

// Key returns the primary identity of the track.
func (t *Track) Key() Key {
	switch {
	case !t.ID.IsZero():
		return ByID(t.ID)
	case t.URL != "":
		return ByURL(t.URL)
	default:
		return Key{}
	}
}

// InPlaylist reports whether the track is a member of the playlist.
func (t *Track) InPlaylist(playlistID string) bool {
	for _, id := range t.PlaylistIDs {
		if id == playlistID {
			return true
		}
	}
	return false
}
