package guard

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Debouncer drops repeated actions on the same key inside a window.
// Actions on different keys never affect each other.
type Debouncer struct {
	ledger Ledger
	window time.Duration
}

// NewDebouncer creates a debouncer backed by ledger.
func NewDebouncer(ledger Ledger, window time.Duration) *Debouncer {
	return &Debouncer{
		ledger: ledger,
		window: window,
	}
}

// Do runs fn unless key was claimed within the window, in which case it
// returns ErrDebounced without calling fn. Ledger failures are logged and
// fn runs anyway.
func (d *Debouncer) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ok, err := d.ledger.Claim(ctx, key, d.window)
	if err != nil {
		zlog.Warn().Err(err).Msgf("guard: debounce ledger claim failed, key=%s", key)
		ok = true
	}
	if !ok {
		zlog.Debug().Msgf("guard: debounced key=%s", key)
		return ErrDebounced
	}

	defer func() {
		// Release must outlive a cancelled request context.
		if err := d.ledger.Release(context.WithoutCancel(ctx), key); err != nil {
			zlog.Warn().Err(err).Msgf("guard: debounce ledger release failed, key=%s", key)
		}
	}()

	return fn(ctx)
}
