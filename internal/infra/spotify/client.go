// Package spotify drives Spotify Connect playback and the Spotify user
// library.
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
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/osa030/tunesync/internal/app/poll"
	"github.com/osa030/tunesync/internal/domain/track"
)

// Scopes are the OAuth scopes the daemon needs.
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserLibraryModify,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
	RateLimit    float64 // requests per second, 0 for unlimited
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	// Access tokens are refreshed from the refresh token on demand
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}
	c := newClient(auth.Client(ctx, token), cfg.Market)
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
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
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

// Market returns the configured market.
func (c *Client) Market() string {
	return c.market
}

// retry runs fn with linear backoff while the error looks transient.
// Every attempt waits for the request rate limiter.
func (c *Client) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	return poll.Retry(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// convertTrack converts a Spotify FullTrack to a domain Track.
// The track's URL is its playable URI.
func (c *Client) convertTrack(t *spotify.FullTrack) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var artwork string
	if len(t.Album.Images) > 0 {
		artwork = t.Album.Images[0].URL
	}

	markets := make([]string, len(t.AvailableMarkets))
	for i, m := range t.AvailableMarkets {
		markets[i] = string(m)
	}

	// Responses requested with a market omit the market list
	if len(markets) == 0 && c.market != "" {
		markets = append(markets, c.market)
	}

	uri := string(t.URI)
	if uri == "" {
		uri = TrackURI(string(t.ID))
	}

	return track.Track{
		ID:         track.ID(t.ID),
		URL:        uri,
		Title:      t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		ArtworkURL: artwork,
		Duration:   time.Duration(t.Duration) * time.Millisecond,
		Markets:    markets,
		IsPlayable: t.IsPlayable,
	}
}

// TrackURI returns the playable URI for a track id.
func TrackURI(trackID string) string {
	return "spotify:track:" + trackID
}

// TrackURL returns the web URL for a track.
func TrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// PlaylistURL returns the web URL for a playlist.
func PlaylistURL(playlistID string) string {
	return fmt.Sprintf("https://open.spotify.com/playlist/%s", playlistID)
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	// spotify:<kind>:ID
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// https://open.spotify.com[/intl-XX]/<kind>/ID
	sep := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Already an ID
	return input
}

// trackSpotifyID returns the Spotify id for t, from its id or its URL.
func trackSpotifyID(t track.Track) spotify.ID {
	if !t.ID.IsZero() {
		return spotify.ID(extractTrackID(t.ID.String()))
	}
	return spotify.ID(extractTrackID(t.URL))
}
