package main

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/app/guard"
	"github.com/osa030/tunesync/internal/app/session"
	"github.com/osa030/tunesync/internal/infra/config"
	"github.com/osa030/tunesync/internal/infra/mpd"
	"github.com/osa030/tunesync/internal/infra/redis"
	"github.com/osa030/tunesync/internal/infra/spotify"
)

// closers releases resources in reverse order of acquisition.
type closers []io.Closer

func (c closers) Close() error {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			zlog.Warn().Err(err).Msg("Failed to release resource")
		}
	}
	return nil
}

// buildDeps connects the engine, the remote library and the debounce ledger
// selected in cfg. The returned closers must be closed even on error.
func buildDeps(ctx context.Context, cfg *config.Config) (session.Deps, closers, error) {
	var (
		deps session.Deps
		cl   closers
	)

	var spotifyClient *spotify.Client
	if cfg.Engine.Type == config.EngineSpotify || cfg.Library.Type == config.LibrarySpotify {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
			RateLimit:    cfg.Spotify.RateLimit,
		})
		if err != nil {
			return deps, cl, errors.Wrap(err, "failed to create Spotify client")
		}
		spotifyClient = client
	}

	switch cfg.Engine.Type {
	case config.EngineMPD:
		mpdCfg, err := mpd.DecodeConfig(cfg.Engine.Settings)
		if err != nil {
			return deps, cl, err
		}
		engine := mpd.New(mpdCfg)
		cl = append(cl, engine)
		deps.Engine = engine
		zlog.Info().Msgf("Using MPD engine: %s %s", mpdCfg.Network, mpdCfg.Addr)
	case config.EngineSpotify:
		engineCfg, err := spotify.DecodeEngineConfig(cfg.Engine.Settings)
		if err != nil {
			return deps, cl, err
		}
		deps.Engine = spotify.NewEngine(spotifyClient, engineCfg)
		zlog.Info().Msgf("Using Spotify Connect engine: device=%q", engineCfg.DeviceID)
	default:
		return deps, cl, errors.Newf("unknown engine type %q", cfg.Engine.Type)
	}

	if cfg.Library.Type == config.LibrarySpotify {
		deps.Remote = spotify.NewLibrary(spotifyClient, cfg.Library.PageSize)
		zlog.Info().Msg("Using Spotify library")
	}

	if cfg.Ledger.Type == config.LedgerRedis {
		ledger, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Ledger.Redis.Addr,
			Password: cfg.Ledger.Redis.Password,
			DB:       cfg.Ledger.Redis.DB,
			Prefix:   cfg.Ledger.Redis.Prefix,
		})
		if err != nil {
			return deps, cl, err
		}
		cl = append(cl, ledger)
		deps.Ledger = ledger
		zlog.Info().Msgf("Using Redis debounce ledger: %s", cfg.Ledger.Redis.Addr)
	} else {
		deps.Ledger = guard.NewMemoryLedger(cfg.Favorites.Retention())
	}

	return deps, cl, nil
}
