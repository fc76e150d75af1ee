package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunesync/internal/app/library"
	"github.com/osa030/tunesync/internal/app/notification"
	"github.com/osa030/tunesync/internal/app/playback"
	"github.com/osa030/tunesync/internal/domain/player"
	"github.com/osa030/tunesync/internal/domain/track"
	"github.com/osa030/tunesync/internal/infra/config"
)

// memEngine applies every mutation immediately.
type memEngine struct {
	mu       sync.Mutex
	queue    []track.Track
	active   int
	state    player.State
	notifier player.Notifier
}

func newMemEngine() *memEngine { return &memEngine{active: -1} }

func (e *memEngine) Reset(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue, e.active = nil, -1
	return nil
}

func (e *memEngine) Add(_ context.Context, tracks []track.Track) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, tracks...)
	return nil
}

func (e *memEngine) Skip(_ context.Context, index int) error {
	e.mu.Lock()
	e.active = index
	t := e.queue[index]
	e.mu.Unlock()
	e.notifier.Notify(player.ActiveTrackChanged{Index: index, Track: &t})
	return nil
}

func (e *memEngine) Play(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = player.StatePlaying
	return nil
}

func (e *memEngine) Pause(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = player.StatePaused
	return nil
}

func (e *memEngine) Queue(context.Context) ([]track.Track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]track.Track(nil), e.queue...), nil
}

func (e *memEngine) ActiveIndex(context.Context) (int, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active, e.active >= 0, nil
}

func (e *memEngine) State(context.Context) (player.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

func (e *memEngine) Subscribe(fn func(player.ActiveTrackChanged)) func() {
	return e.notifier.Subscribe(fn)
}

type memRemote struct {
	mu    sync.Mutex
	favs  map[track.ID]bool
	items []track.Track
}

func (r *memRemote) ToggleFavorite(_ context.Context, id track.ID) (library.FavoriteState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.favs[id] = !r.favs[id]
	return library.FavoriteState{ID: id, IsFavorite: r.favs[id]}, nil
}

func (r *memRemote) AddPlaylistMembership(context.Context, string, track.ID) error    { return nil }
func (r *memRemote) RemovePlaylistMembership(context.Context, string, track.ID) error { return nil }

func (r *memRemote) FetchLibraryPage(context.Context, int, string) (library.Page, error) {
	return library.Page{Items: r.items, IsLastPage: true}, nil
}

type chanStream struct{ ch chan *notification.Notification }

func (s chanStream) Send(n *notification.Notification) error {
	s.ch <- n
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("engine:\n  type: mpd\n"))
	require.NoError(t, err)
	cfg.Playback.CooldownMs = 0
	cfg.Playback.QueueUpdateDelayMs = 0
	cfg.Playback.SettleIntervalMs = 1
	cfg.Playback.SettleTimeoutMs = 50
	cfg.Playback.AppendIntervalMs = 1
	cfg.Playback.FallbackTimeoutMs = 50
	return cfg
}

func newTestManager(t *testing.T, remote library.Remote) (*Manager, *memEngine) {
	t.Helper()
	engine := newMemEngine()
	m, err := NewManager(testConfig(t), Deps{Engine: engine, Remote: remote})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Close)
	return m, engine
}

func tracks(ids ...string) []track.Track {
	out := make([]track.Track, len(ids))
	for i, id := range ids {
		out[i] = track.Track{ID: track.ID(id), URL: "https://m/" + id + ".mp3"}
	}
	return out
}

func TestManager_PlaySelectedFromList(t *testing.T) {
	m, engine := newTestManager(t, nil)

	res := m.PlaySelectedFromList(context.Background(), playback.ListRequest{
		Tracks: tracks("1", "2", "3"), Index: 1, ContextID: "album",
	})
	require.Equal(t, playback.OutcomePlaying, res.Outcome)

	q, _ := engine.Queue(context.Background())
	assert.Equal(t, track.ID("2"), q[0].ID)
	assert.Equal(t, "album", m.State().ContextID)
	assert.True(t, m.State().UserActivated)
}

func TestManager_BroadcastsPlaybackEvents(t *testing.T) {
	m, _ := newTestManager(t, nil)
	stream := chanStream{ch: make(chan *notification.Notification, 64)}
	m.Notifications().Subscribe(stream)

	m.PlaySelectedFromList(context.Background(), playback.ListRequest{
		Tracks: tracks("1", "2"), Index: 0, ContextID: "a",
	})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-stream.ch:
			if n.Type == notification.TypeActiveTrack {
				assert.NotZero(t, n.SequenceNo)
				return
			}
		case <-deadline:
			t.Fatal("no active track notification")
		}
	}
}

func TestManager_LibraryDisabled(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.ToggleFavorite(ctx, track.Track{ID: "1"})
	assert.True(t, errors.Is(err, ErrLibraryDisabled))
	_, err = m.LoadLibraryPage(ctx, 1, "")
	assert.True(t, errors.Is(err, ErrLibraryDisabled))
	assert.True(t, errors.Is(m.AddToPlaylist(ctx, "p", track.Track{ID: "1"}), ErrLibraryDisabled))
	_, err = m.PlayFromPlaylist(ctx, "p", 0, false)
	assert.True(t, errors.Is(err, ErrLibraryDisabled))
}

func TestManager_ToggleActiveFavorite(t *testing.T) {
	remote := &memRemote{favs: map[track.ID]bool{}, items: tracks("1", "2")}
	m, _ := newTestManager(t, remote)
	ctx := context.Background()

	_, err := m.ToggleActiveFavorite(ctx)
	assert.True(t, errors.Is(err, ErrNoActiveTrack))

	res := m.PlayTrack(ctx, tracks("2")[0])
	require.Equal(t, playback.OutcomePlaying, res.Outcome)

	st, err := m.ToggleActiveFavorite(ctx)
	require.NoError(t, err)
	assert.Equal(t, track.ID("2"), st.ID)
	assert.True(t, st.IsFavorite)
}

func TestManager_ToggleFavoriteBroadcasts(t *testing.T) {
	remote := &memRemote{favs: map[track.ID]bool{}}
	m, _ := newTestManager(t, remote)
	stream := chanStream{ch: make(chan *notification.Notification, 8)}
	m.Notifications().Subscribe(stream)

	_, err := m.ToggleFavorite(context.Background(), track.Track{ID: "5"})
	require.NoError(t, err)

	n := <-stream.ch
	assert.Equal(t, notification.TypeFavorite, n.Type)
	require.NotNil(t, n.Favorite)
	assert.True(t, n.Favorite.IsFavorite)
}

func TestBuildFilterChain(t *testing.T) {
	cfg := testConfig(t)
	chain, err := buildFilterChain(cfg)
	require.NoError(t, err)
	assert.Len(t, chain.Filters(), 2)

	cfg.Filters = map[string]config.FilterConfig{
		"variant_filter": {Enabled: true},
		"length_filter":  {Enabled: true, Settings: map[string]any{"max": "10m"}},
	}
	for i := 0; i < 5; i++ {
		chain, err = buildFilterChain(cfg)
		require.NoError(t, err)
		var names []string
		for _, f := range chain.Filters() {
			names = append(names, f.Name())
		}
		assert.Equal(t, []string{"source_filter", "market_filter", "length_filter", "variant_filter"}, names)
	}

	cfg.Filters["length_filter"] = config.FilterConfig{
		Enabled: true, Settings: map[string]any{"min": "5m", "max": "2m"},
	}
	_, err = buildFilterChain(cfg)
	assert.Error(t, err)
}

func TestControllerConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("engine:\n  type: mpd\n"))
	require.NoError(t, err)
	c := controllerConfig(cfg)

	assert.Equal(t, 300*time.Millisecond, c.Cooldown)
	assert.Equal(t, 200*time.Millisecond, c.QueueUpdateDelay)
	assert.Equal(t, 1500*time.Millisecond, c.Settle.Timeout)
	assert.Equal(t, 100*time.Millisecond, c.Settle.Interval)
	assert.Equal(t, 1600*time.Millisecond, c.Append.Timeout)
	assert.Equal(t, 3*time.Second, c.Fallback.Timeout)
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m, err := NewManager(testConfig(t), Deps{Engine: newMemEngine()})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	m.Close()
	m.Close()
	select {
	case <-m.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestNewManager_RequiresEngine(t *testing.T) {
	_, err := NewManager(testConfig(t), Deps{})
	assert.Error(t, err)
}
