package filter

import (
	"context"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/domain/track"
)

// Length filter return codes.
const (
	CodeTooShort      = "too_short"
	CodeTooLong       = "too_long"
	CodeLengthUnknown = "length_unknown"
)

// LengthConfig bounds the lengths of tracks rotated into the engine.
// Durations accept Go duration strings ("45s", "12m") or plain numbers
// of seconds. A zero bound is unset.
type LengthConfig struct {
	Min         time.Duration `mapstructure:"min"`
	Max         time.Duration `mapstructure:"max"`
	Unknown     string        `mapstructure:"unknown" default:"accept" validate:"oneof=accept reject"`
	SinglePlays bool          `mapstructure:"single_plays"`
}

// LengthFilter skips interludes, skits, or hour-long mixes when a list
// is mirrored into the engine. Explicit single plays pass unless
// single_plays is set.
type LengthFilter struct {
	config LengthConfig
}

// NewLengthFilter creates a length filter with the given window.
func NewLengthFilter(config LengthConfig) *LengthFilter {
	if config.Unknown == "" {
		config.Unknown = "accept"
	}
	return &LengthFilter{config: config}
}

func (f *LengthFilter) Name() string {
	return "length_filter"
}

func (f *LengthFilter) Description() string {
	return "Skips list tracks shorter or longer than the configured window"
}

func (f *LengthFilter) ReturnCodes() []string {
	return []string{CodeTooShort, CodeTooLong, CodeLengthUnknown}
}

func (f *LengthFilter) ValidateConfig(settings map[string]any) error {
	var config LengthConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			secondsToDuration,
		),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	switch {
	case config.Min < 0 || config.Max < 0:
		return errors.New("min and max must not be negative")
	case config.Max > 0 && config.Min > config.Max:
		return errors.Newf("min %v exceeds max %v", config.Min, config.Max)
	}

	f.config = config
	zlog.Info().Msgf("length filter config: min=%v max=%v unknown=%s single_plays=%v",
		config.Min, config.Max, config.Unknown, config.SinglePlays)
	return nil
}

func (f *LengthFilter) AppliesTo(origin Origin) bool {
	return origin == OriginList || (origin == OriginAdHoc && f.config.SinglePlays)
}

func (f *LengthFilter) Check(ctx context.Context, t track.Track) Result {
	d := t.Duration
	switch {
	case d <= 0:
		// Streams and untagged files report no length.
		if f.config.Unknown == "reject" {
			return Reject(CodeLengthUnknown)
		}
		return Accept()
	case f.config.Min > 0 && d < f.config.Min:
		zlog.Debug().Msgf("filter: %q is %v, shorter than %v", t.Title, d, f.config.Min)
		return Reject(CodeTooShort)
	case f.config.Max > 0 && d > f.config.Max:
		zlog.Debug().Msgf("filter: %q is %v, longer than %v", t.Title, d, f.config.Max)
		return Reject(CodeTooLong)
	}
	return Accept()
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDuration reads bare YAML numbers as seconds.
func secondsToDuration(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

func init() {
	Register("length_filter", func() Filter {
		return NewLengthFilter(LengthConfig{})
	})
}
