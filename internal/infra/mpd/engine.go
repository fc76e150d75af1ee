package mpd

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fhs/gompd/v2/mpd"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/app/identity"
	"github.com/osa030/tunesync/internal/domain/player"
	"github.com/osa030/tunesync/internal/domain/track"
)

// conn is the subset of *mpd.Client the engine uses.
type conn interface {
	Clear() error
	Add(uri string) error
	Play(pos int) error
	Pause(pause bool) error
	Status() (mpd.Attrs, error)
	PlaylistInfo(start, end int) ([]mpd.Attrs, error)
	Close() error
}

// watcher is the subset of *mpd.Watcher the engine uses.
type watcher struct {
	events <-chan string
	errs   <-chan error
	close  func() error
}

// Engine is a playback engine backed by an MPD queue.
//
// MPD reports queue entries by file name only, in whatever encoding it
// stored them. Tracks added through the engine are remembered by
// normalized URL so queue reads can carry their ids again.
type Engine struct {
	cfg  Config
	dial func() (conn, error)
	idle func() (*watcher, error)

	mu   sync.Mutex
	conn conn

	knownMu sync.RWMutex
	known   map[string]track.Track

	notifier   player.Notifier
	lastSongID string
}

// New creates an engine for the given settings. No connection is made
// until the first call.
func New(cfg Config) *Engine {
	e := &Engine{
		cfg:   cfg,
		known: make(map[string]track.Track),
	}
	e.dial = func() (conn, error) {
		if cfg.Password != "" {
			return mpd.DialAuthenticated(cfg.Network, cfg.Addr, cfg.Password)
		}
		return mpd.Dial(cfg.Network, cfg.Addr)
	}
	e.idle = func() (*watcher, error) {
		w, err := mpd.NewWatcher(cfg.Network, cfg.Addr, cfg.Password, "player", "playlist")
		if err != nil {
			return nil, err
		}
		return &watcher{events: w.Event, errs: w.Error, close: w.Close}, nil
	}
	return e
}

// withConn runs fn on the shared connection, dialing on demand. A failed
// call drops the connection so the next call redials.
func (e *Engine) withConn(op string, fn func(c conn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		c, err := e.dial()
		if err != nil {
			return errors.Wrapf(err, "mpd: dial %s", e.cfg.Addr)
		}
		e.conn = c
	}
	if err := fn(e.conn); err != nil {
		_ = e.conn.Close()
		e.conn = nil
		return errors.Wrapf(err, "mpd: %s", op)
	}
	return nil
}

// Reset clears the MPD queue.
func (e *Engine) Reset(ctx context.Context) error {
	e.knownMu.Lock()
	e.known = make(map[string]track.Track)
	e.knownMu.Unlock()
	return e.withConn("clear", func(c conn) error { return c.Clear() })
}

// Add appends tracks to the MPD queue by URL.
func (e *Engine) Add(ctx context.Context, tracks []track.Track) error {
	e.knownMu.Lock()
	for _, t := range tracks {
		if t.URL != "" {
			e.known[identity.Normalize(t.URL)] = t
		}
	}
	e.knownMu.Unlock()

	return e.withConn("add", func(c conn) error {
		for _, t := range tracks {
			if t.URL == "" {
				return errors.Newf("track %s has no url", t.ID)
			}
			if err := c.Add(t.URL); err != nil {
				return err
			}
		}
		return nil
	})
}

// Skip starts playback at index.
func (e *Engine) Skip(ctx context.Context, index int) error {
	if index < 0 {
		return errors.Newf("mpd: invalid index %d", index)
	}
	return e.withConn("play pos", func(c conn) error { return c.Play(index) })
}

// Play resumes playback of the current item.
func (e *Engine) Play(ctx context.Context) error {
	return e.withConn("play", func(c conn) error { return c.Play(-1) })
}

// Pause pauses playback.
func (e *Engine) Pause(ctx context.Context) error {
	return e.withConn("pause", func(c conn) error { return c.Pause(true) })
}

// Queue returns the MPD queue.
func (e *Engine) Queue(ctx context.Context) ([]track.Track, error) {
	var infos []mpd.Attrs
	err := e.withConn("playlistinfo", func(c conn) error {
		var err error
		infos, err = c.PlaylistInfo(-1, -1)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]track.Track, len(infos))
	for i, a := range infos {
		out[i] = e.toTrack(a)
	}
	return out, nil
}

// ActiveIndex returns the queue position of the current song. A stopped
// MPD with a fresh queue has no current song yet but starts from the
// first entry, so it reports 0.
func (e *Engine) ActiveIndex(ctx context.Context) (int, bool, error) {
	st, err := e.status()
	if err != nil {
		return -1, false, err
	}
	if pos, ok := songPos(st); ok {
		return pos, true, nil
	}
	if st["state"] != "play" && st["state"] != "pause" && playlistLength(st) > 0 {
		return 0, true, nil
	}
	return -1, false, nil
}

// State maps the MPD player state.
func (e *Engine) State(ctx context.Context) (player.State, error) {
	st, err := e.status()
	if err != nil {
		return player.StateIdle, err
	}
	switch st["state"] {
	case "play":
		return player.StatePlaying, nil
	case "pause":
		return player.StatePaused, nil
	}
	if playlistLength(st) == 0 {
		return player.StateIdle, nil
	}
	return player.StateStopped, nil
}

// Subscribe registers fn for active song changes. Changes are detected
// while Run is active.
func (e *Engine) Subscribe(fn func(player.ActiveTrackChanged)) func() {
	return e.notifier.Subscribe(fn)
}

// Run watches MPD idle events until ctx is done, reconnecting the watcher
// when it fails.
func (e *Engine) Run(ctx context.Context) error {
	for {
		w, err := e.idle()
		if err != nil {
			zlog.Warn().Err(err).Msgf("mpd: watcher connect failed, addr=%s", e.cfg.Addr)
		} else {
			zlog.Info().Msgf("mpd: watching %s", e.cfg.Addr)
			err = e.watch(ctx, w)
			_ = w.close()
			if ctx.Err() != nil {
				return nil
			}
			zlog.Warn().Err(err).Msg("mpd: watcher stopped")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (e *Engine) watch(ctx context.Context, w *watcher) error {
	e.checkActive()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.errs:
			return errors.Wrap(err, "mpd: idle")
		case subsystem, ok := <-w.events:
			if !ok {
				return errors.New("mpd: watcher closed")
			}
			zlog.Debug().Msgf("mpd: idle event subsystem=%s", subsystem)
			e.checkActive()
		}
	}
}

// checkActive notifies subscribers when the current song changed.
func (e *Engine) checkActive() {
	st, err := e.status()
	if err != nil {
		zlog.Warn().Err(err).Msg("mpd: status failed")
		return
	}
	songID := st["songid"]
	if songID == e.lastSongID {
		return
	}
	e.lastSongID = songID

	pos, ok := songPos(st)
	if !ok {
		e.notifier.Notify(player.ActiveTrackChanged{Index: -1})
		return
	}

	var infos []mpd.Attrs
	err = e.withConn("playlistinfo", func(c conn) error {
		var err error
		infos, err = c.PlaylistInfo(pos, -1)
		return err
	})
	ev := player.ActiveTrackChanged{Index: pos}
	if err == nil && len(infos) > 0 {
		t := e.toTrack(infos[0])
		ev.Track = &t
	}
	e.notifier.Notify(ev)
}

func (e *Engine) status() (mpd.Attrs, error) {
	var st mpd.Attrs
	err := e.withConn("status", func(c conn) error {
		var err error
		st, err = c.Status()
		return err
	})
	return st, err
}

// Close closes the command connection.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}

func (e *Engine) toTrack(a mpd.Attrs) track.Track {
	file := a["file"]
	e.knownMu.RLock()
	known, ok := e.known[identity.Normalize(file)]
	e.knownMu.RUnlock()
	if ok {
		known.URL = file
		return known
	}

	t := track.Track{
		URL:      file,
		Title:    a["Title"],
		Album:    a["Album"],
		Duration: parseDuration(a),
	}
	if t.Title == "" {
		t.Title = identity.Filename(file)
	}
	if artist := a["Artist"]; artist != "" {
		t.Artists = []string{artist}
	}
	return t
}

func songPos(st mpd.Attrs) (int, bool) {
	s, ok := st["song"]
	if !ok {
		return -1, false
	}
	pos, err := strconv.Atoi(s)
	if err != nil || pos < 0 {
		return -1, false
	}
	return pos, true
}

func playlistLength(st mpd.Attrs) int {
	n, err := strconv.Atoi(st["playlistlength"])
	if err != nil {
		return 0
	}
	return n
}

func parseDuration(a mpd.Attrs) time.Duration {
	if s := a["duration"]; s != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	if s := a["Time"]; s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}
