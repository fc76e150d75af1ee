package spotify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/tunesync/internal/domain/player"
	"github.com/osa030/tunesync/internal/domain/track"
)

// EngineConfig holds Spotify Connect engine settings.
type EngineConfig struct {
	DeviceID       string `mapstructure:"device_id"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms" default:"1000" validate:"gte=100,lte=60000"`
}

// DecodeEngineConfig decodes and validates engine settings.
func DecodeEngineConfig(settings map[string]any) (EngineConfig, error) {
	var cfg EngineConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode spotify engine settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, errors.Wrap(err, "invalid spotify engine settings")
	}
	return cfg, nil
}

// Engine plays a client-side queue on a Spotify Connect device.
//
// Spotify has no clearable queue, so the engine keeps the queue itself
// and starts playback with the whole list as the context. Until then the
// queue is pending: Skip only moves the start cursor and the cursor is
// reported as the active index. Tracks added after playback started are
// also pushed to the device queue.
type Engine struct {
	client   *Client
	deviceID *spotify.ID
	interval time.Duration

	mu      sync.Mutex
	queue   []track.Track
	started bool
	cursor  int

	notifier player.Notifier
	lastURI  string
}

// NewEngine creates a Spotify Connect engine.
func NewEngine(client *Client, cfg EngineConfig) *Engine {
	e := &Engine{
		client:   client,
		interval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
	}
	if cfg.DeviceID != "" {
		id := spotify.ID(cfg.DeviceID)
		e.deviceID = &id
	}
	if e.interval <= 0 {
		e.interval = time.Second
	}
	return e
}

func (e *Engine) opts() *spotify.PlayOptions {
	return &spotify.PlayOptions{DeviceID: e.deviceID}
}

// Reset forgets the queue. The device keeps playing until the next Play.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = nil
	e.started = false
	e.cursor = 0
	return nil
}

// Add appends tracks to the queue.
func (e *Engine) Add(ctx context.Context, tracks []track.Track) error {
	e.mu.Lock()
	e.queue = append(e.queue, tracks...)
	started := e.started
	e.mu.Unlock()

	if !started {
		return nil
	}
	for _, t := range tracks {
		id := trackSpotifyID(t)
		err := e.client.retry(ctx, func(ctx context.Context) error {
			return e.client.client.QueueSongOpt(ctx, id, e.opts())
		})
		if err != nil {
			return errors.Wrapf(err, "spotify: queue track %s", id)
		}
	}
	return nil
}

// Skip moves to index. A pending queue only moves its start cursor; a
// started one jumps on the device.
func (e *Engine) Skip(ctx context.Context, index int) error {
	e.mu.Lock()
	if index < 0 || index >= len(e.queue) {
		n := len(e.queue)
		e.mu.Unlock()
		return errors.Newf("spotify: index %d out of range (queue length %d)", index, n)
	}
	if !e.started {
		e.cursor = index
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()
	return e.startAt(ctx, index)
}

// startAt plays the whole queue on the device from index.
func (e *Engine) startAt(ctx context.Context, index int) error {
	e.mu.Lock()
	if index < 0 || index >= len(e.queue) {
		n := len(e.queue)
		e.mu.Unlock()
		return errors.Newf("spotify: index %d out of range (queue length %d)", index, n)
	}
	uris := make([]spotify.URI, len(e.queue))
	for i, t := range e.queue {
		uris[i] = spotify.URI(uriOf(t))
	}
	e.mu.Unlock()

	opt := e.opts()
	opt.URIs = uris
	opt.PlaybackOffset = &spotify.PlaybackOffset{URI: uris[index]}
	err := e.client.retry(ctx, func(ctx context.Context) error {
		return e.client.client.PlayOpt(ctx, opt)
	})
	if err != nil {
		return errors.Wrapf(err, "spotify: play from index %d", index)
	}

	e.mu.Lock()
	e.started = true
	e.cursor = index
	e.mu.Unlock()
	return nil
}

// Play resumes playback, starting a pending queue at its cursor.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	start := !e.started && len(e.queue) > 0
	cursor := e.cursor
	e.mu.Unlock()

	if start {
		return e.startAt(ctx, cursor)
	}
	err := e.client.retry(ctx, func(ctx context.Context) error {
		return e.client.client.PlayOpt(ctx, e.opts())
	})
	return errors.Wrap(err, "spotify: resume")
}

// Pause pauses the device.
func (e *Engine) Pause(ctx context.Context) error {
	err := e.client.retry(ctx, func(ctx context.Context) error {
		return e.client.client.PauseOpt(ctx, e.opts())
	})
	return errors.Wrap(err, "spotify: pause")
}

// Queue returns the engine's queue.
func (e *Engine) Queue(ctx context.Context) ([]track.Track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]track.Track(nil), e.queue...), nil
}

// pending reports a queue that has not been started on the device.
func (e *Engine) pending() (cursor int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor, !e.started && len(e.queue) > 0
}

// ActiveIndex reports the start cursor of a pending queue, otherwise it
// locates the device's current item in the queue.
func (e *Engine) ActiveIndex(ctx context.Context) (int, bool, error) {
	if cursor, ok := e.pending(); ok {
		return cursor, true, nil
	}
	cp, err := e.currentlyPlaying(ctx)
	if err != nil {
		return -1, false, err
	}
	if cp == nil || cp.Item == nil {
		return -1, false, nil
	}
	idx := e.indexOf(string(cp.Item.URI))
	return idx, idx >= 0, nil
}

// State maps the device playback state. A pending queue is stopped
// whatever the device is doing.
func (e *Engine) State(ctx context.Context) (player.State, error) {
	if _, ok := e.pending(); ok {
		return player.StateStopped, nil
	}
	cp, err := e.currentlyPlaying(ctx)
	if err != nil {
		return player.StateIdle, err
	}
	switch {
	case cp == nil || cp.Item == nil:
		return player.StateIdle, nil
	case cp.Playing:
		return player.StatePlaying, nil
	default:
		return player.StatePaused, nil
	}
}

// Subscribe registers fn for active item changes. Changes are detected
// while Run is active.
func (e *Engine) Subscribe(fn func(player.ActiveTrackChanged)) func() {
	return e.notifier.Subscribe(fn)
}

// Run polls the device until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		e.checkActive(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) checkActive(ctx context.Context) {
	cp, err := e.currentlyPlaying(ctx)
	if err != nil {
		zlog.Debug().Err(err).Msg("spotify: currently playing failed")
		return
	}
	uri := ""
	if cp != nil && cp.Item != nil {
		uri = string(cp.Item.URI)
	}
	if uri == e.lastURI {
		return
	}
	e.lastURI = uri

	if uri == "" {
		e.notifier.Notify(player.ActiveTrackChanged{Index: -1})
		return
	}
	t := e.client.convertTrack(cp.Item)
	e.notifier.Notify(player.ActiveTrackChanged{Index: e.indexOf(uri), Track: &t})
}

func (e *Engine) currentlyPlaying(ctx context.Context) (*spotify.CurrentlyPlaying, error) {
	var cp *spotify.CurrentlyPlaying
	err := e.client.retry(ctx, func(ctx context.Context) error {
		var err error
		cp, err = e.client.client.PlayerCurrentlyPlaying(ctx, spotify.Market(e.client.market))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "spotify: currently playing")
	}
	return cp, nil
}

// indexOf finds uri in the queue, searching from the cursor forward so
// repeated tracks resolve to the upcoming copy.
func (e *Engine) indexOf(uri string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.queue)
	for k := 0; k < n; k++ {
		i := (e.cursor + k) % n
		if uriOf(e.queue[i]) == uri {
			return i
		}
	}
	return -1
}

func uriOf(t track.Track) string {
	if strings.HasPrefix(t.URL, "spotify:track:") {
		return t.URL
	}
	return TrackURI(string(trackSpotifyID(t)))
}
