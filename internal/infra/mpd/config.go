// Package mpd drives a Music Player Daemon as the playback engine.
package mpd

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Config holds MPD connection settings, decoded from the engine settings map.
type Config struct {
	Network  string `mapstructure:"network" default:"tcp" validate:"oneof=tcp unix"`
	Addr     string `mapstructure:"addr" default:"localhost:6600" validate:"required"`
	Password string `mapstructure:"password"`
}

// DecodeConfig decodes and validates engine settings.
func DecodeConfig(settings map[string]any) (Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &cfg,
		TagName: "mapstructure",
	})
	if err != nil {
		return cfg, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return cfg, errors.Wrap(err, "failed to decode mpd settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, errors.Wrap(err, "invalid mpd settings")
	}
	return cfg, nil
}
