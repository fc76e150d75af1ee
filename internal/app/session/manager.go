// Package session wires the playback controller, the library synchronizer
// and subscriber notifications into one facade.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/app/filter"
	"github.com/osa030/tunesync/internal/app/guard"
	"github.com/osa030/tunesync/internal/app/library"
	"github.com/osa030/tunesync/internal/app/notification"
	"github.com/osa030/tunesync/internal/app/playback"
	"github.com/osa030/tunesync/internal/app/poll"
	"github.com/osa030/tunesync/internal/domain/playlist"
	"github.com/osa030/tunesync/internal/domain/track"
	"github.com/osa030/tunesync/internal/infra/config"
)

var (
	ErrLibraryDisabled = errors.New("no remote library configured")
	ErrNoActiveTrack   = errors.New("engine has no active track")
)

// runner is implemented by engines that need a background loop to detect
// active item changes.
type runner interface {
	Run(ctx context.Context) error
}

// Deps are the infrastructure the session runs on.
type Deps struct {
	Engine playback.Engine
	Remote library.Remote // nil disables library operations
	Ledger guard.Ledger   // nil means an in-memory ledger
}

// Manager is the daemon's single entry point for RPC handlers.
type Manager struct {
	config *config.Config

	controller   *playback.Controller
	library      *library.Synchronizer
	notification *notification.Manager
	filterChain  *filter.Chain
	engine       playback.Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	once   sync.Once
}

// NewManager creates a session manager.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if deps.Engine == nil {
		return nil, errors.New("session: engine is required")
	}

	chain, err := buildFilterChain(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:       cfg,
		filterChain:  chain,
		engine:       deps.Engine,
		notification: notification.NewManager(),
		controller:   playback.NewController(deps.Engine, chain, controllerConfig(cfg)),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	if deps.Remote != nil {
		ledger := deps.Ledger
		if ledger == nil {
			ledger = guard.NewMemoryLedger(cfg.Favorites.Retention())
		}
		m.library = library.NewSynchronizer(deps.Remote, ledger, library.Config{
			DebounceWindow: cfg.Favorites.Debounce(),
			ActiveHold:     cfg.Favorites.Hold(),
		})
	}
	return m, nil
}

func controllerConfig(cfg *config.Config) playback.Config {
	p := cfg.Playback
	c := playback.DefaultConfig()
	c.Cooldown = p.Cooldown()
	c.QueueUpdateDelay = p.QueueUpdateDelay()
	c.Settle = poll.Budget{Interval: p.SettleInterval(), Timeout: p.SettleTimeout()}
	c.Append = poll.Attempts(p.AppendAttempts, p.AppendInterval())
	c.Fallback = poll.Budget{Interval: p.SettleInterval(), Timeout: p.FallbackTimeout()}
	c.StrictSettle = p.StrictSettle
	return c
}

// buildFilterChain creates the playability chain. The source and market
// filters always run first; enabled registered filters follow in name
// order so a rejected track always reports the same code.
func buildFilterChain(cfg *config.Config) (*filter.Chain, error) {
	chain := filter.NewChain(
		filter.NewSourceFilter(),
		filter.NewMarketFilter(cfg.Spotify.Market),
	)
	registered := filter.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		if name == "source_filter" || !cfg.IsFilterEnabled(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := registered[name]()
		if err := f.ValidateConfig(cfg.FilterSettings(name)); err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("session: filter enabled: %s", name)
	}
	return chain, nil
}

// Start starts background loops. Library data is loaded asynchronously.
func (m *Manager) Start(ctx context.Context) error {
	m.wg.Add(1)
	go m.eventLoop()

	if r, ok := m.engine.(runner); ok {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := r.Run(m.ctx); err != nil {
				zlog.Error().Err(err).Msg("session: engine loop stopped")
			}
		}()
	}

	if m.library != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.preloadLibrary(m.ctx)
		}()
	}

	zlog.Info().Msgf("session: started engine=%s library=%s", m.config.Engine.Type, m.config.Library.Type)
	return nil
}

func (m *Manager) preloadLibrary(ctx context.Context) {
	if _, err := m.library.LoadPage(ctx, 1, ""); err != nil {
		zlog.Warn().Err(err).Msg("session: initial library page failed")
	}
	if _, err := m.library.LoadPlaylists(ctx); err != nil && !errors.Is(err, library.ErrRemoteUnavailable) {
		zlog.Warn().Err(err).Msg("session: playlist load failed")
	}
}

// eventLoop forwards controller events to subscribers.
func (m *Manager) eventLoop() {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: event loop panicked: %v", r)
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.controller.Events():
			zlog.Debug().Msgf("session: playback event type=%s tx=%s", ev.Type, ev.TransitionID)
			m.notification.Broadcast(notification.FromEvent(ev))
		}
	}
}

// Done is closed when the session has been closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops background loops and drops subscribers.
func (m *Manager) Close() {
	m.once.Do(func() {
		m.cancel()
		m.controller.Close()
		m.wg.Wait()
		m.notification.Close()
		close(m.done)
		zlog.Info().Msg("session: closed")
	})
}

// Notifications returns the notification manager.
func (m *Manager) Notifications() *notification.Manager {
	return m.notification
}

// State returns the current queue context snapshot.
func (m *Manager) State() playback.Snapshot {
	return m.controller.Snapshot()
}

// StateNotification builds the initial notification for a new subscriber.
func (m *Manager) StateNotification() *notification.Notification {
	snap := m.controller.Snapshot()
	return &notification.Notification{
		Type:  notification.TypeState,
		Phase: snap.Phase.String(),
		State: &snap,
	}
}

// PlaySelectedFromList starts playback of a list at the selected index.
func (m *Manager) PlaySelectedFromList(ctx context.Context, req playback.ListRequest) playback.Result {
	return m.controller.PlaySelectedFromList(ctx, req)
}

// PlayFromPlaylist plays a cached library playlist, using its id as the
// queue context id.
func (m *Manager) PlayFromPlaylist(ctx context.Context, playlistID string, index int, force bool) (playback.Result, error) {
	lib, err := m.lib()
	if err != nil {
		return playback.Result{}, err
	}
	p, err := lib.Playlist(playlistID)
	if err != nil {
		return playback.Result{}, err
	}
	return m.controller.PlaySelectedFromList(ctx, playback.ListRequest{
		Tracks:    p.Tracks,
		Index:     index,
		ContextID: p.ID,
		Force:     force,
	}), nil
}

// InitializeQueue preloads the engine queue.
func (m *Manager) InitializeQueue(ctx context.Context, req playback.InitRequest) playback.Result {
	return m.controller.InitializeQueue(ctx, req)
}

// LoadQueue replaces the engine queue without playing.
func (m *Manager) LoadQueue(ctx context.Context, tracks []track.Track, contextID string) playback.Result {
	return m.controller.LoadQueue(ctx, tracks, contextID)
}

// PlayTrack plays a single track.
func (m *Manager) PlayTrack(ctx context.Context, t track.Track) playback.Result {
	return m.controller.PlayTrack(ctx, t)
}

// Pause pauses the engine.
func (m *Manager) Pause(ctx context.Context) error {
	return m.controller.Pause(ctx)
}

// Resume resumes the engine.
func (m *Manager) Resume(ctx context.Context) error {
	return m.controller.Resume(ctx)
}

// Stop pauses the engine and clears the queue context.
func (m *Manager) Stop(ctx context.Context) error {
	return m.controller.Stop(ctx)
}

func (m *Manager) lib() (*library.Synchronizer, error) {
	if m.library == nil {
		return nil, ErrLibraryDisabled
	}
	return m.library, nil
}

// ToggleFavorite toggles the favorite flag of ref.
func (m *Manager) ToggleFavorite(ctx context.Context, ref track.Track) (library.FavoriteState, error) {
	lib, err := m.lib()
	if err != nil {
		return library.FavoriteState{}, err
	}
	st, err := lib.ToggleFavorite(ctx, ref)
	if err == nil {
		m.broadcastFavorite(st)
	}
	return st, err
}

// SetFavorite sets the favorite flag of ref.
func (m *Manager) SetFavorite(ctx context.Context, ref track.Track, want bool) (library.FavoriteState, error) {
	lib, err := m.lib()
	if err != nil {
		return library.FavoriteState{}, err
	}
	st, err := lib.SetFavorite(ctx, ref, want)
	if err == nil {
		m.broadcastFavorite(st)
	}
	return st, err
}

// ToggleActiveFavorite toggles the favorite flag of the engine's active item.
func (m *Manager) ToggleActiveFavorite(ctx context.Context) (library.FavoriteState, error) {
	lib, err := m.lib()
	if err != nil {
		return library.FavoriteState{}, err
	}
	active, err := m.activeTrack(ctx)
	if err != nil {
		return library.FavoriteState{}, err
	}
	st, err := lib.ToggleActiveFavorite(ctx, active)
	if err == nil {
		m.broadcastFavorite(st)
	}
	return st, err
}

func (m *Manager) activeTrack(ctx context.Context) (track.Track, error) {
	idx, ok, err := m.engine.ActiveIndex(ctx)
	if err != nil {
		return track.Track{}, errors.Mark(errors.Wrap(err, "active index"), playback.ErrEngine)
	}
	if !ok {
		return track.Track{}, ErrNoActiveTrack
	}
	queue, err := m.engine.Queue(ctx)
	if err != nil {
		return track.Track{}, errors.Mark(errors.Wrap(err, "queue"), playback.ErrEngine)
	}
	if idx < 0 || idx >= len(queue) {
		return track.Track{}, ErrNoActiveTrack
	}
	return queue[idx], nil
}

func (m *Manager) broadcastFavorite(st library.FavoriteState) {
	m.notification.Broadcast(&notification.Notification{
		Type:     notification.TypeFavorite,
		Favorite: &st,
	})
}

// AddToPlaylist adds ref to a playlist.
func (m *Manager) AddToPlaylist(ctx context.Context, playlistID string, ref track.Track) error {
	lib, err := m.lib()
	if err != nil {
		return err
	}
	return lib.AddToPlaylist(ctx, playlistID, ref)
}

// RemoveFromPlaylist removes ref from a playlist.
func (m *Manager) RemoveFromPlaylist(ctx context.Context, playlistID string, ref track.Track) error {
	lib, err := m.lib()
	if err != nil {
		return err
	}
	return lib.RemoveFromPlaylist(ctx, playlistID, ref)
}

// LoadLibraryPage loads one library page into the cache.
func (m *Manager) LoadLibraryPage(ctx context.Context, page int, search string) (library.Page, error) {
	lib, err := m.lib()
	if err != nil {
		return library.Page{}, err
	}
	return lib.LoadPage(ctx, page, search)
}

// LoadPlaylists refreshes the cached playlists from the remote.
func (m *Manager) LoadPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	lib, err := m.lib()
	if err != nil {
		return nil, err
	}
	return lib.LoadPlaylists(ctx)
}

// Favorites returns the cached favorite tracks.
func (m *Manager) Favorites() ([]track.Track, error) {
	lib, err := m.lib()
	if err != nil {
		return nil, err
	}
	return lib.Favorites(), nil
}
