package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/domain/track"
)

// Variant kinds recognised in track titles.
const (
	VariantLive     = "live"
	VariantRemaster = "remaster"
	VariantEdit     = "edit"
	VariantVersion  = "version"
)

var variantPatterns = map[string][]*regexp.Regexp{
	VariantLive: {
		regexp.MustCompile(`\(live(\s+(at|from|in)\b[^)]*)?\)`), // "(Live)", "(Live at Budokan)"
		regexp.MustCompile(`\[live[^\]]*\]`),                    // "[Live]"
		regexp.MustCompile(`-\s*live(\s+(at|from|in)\b.*)?$`),   // "- Live at Wembley"
	},
	VariantRemaster: {
		regexp.MustCompile(`\d{4}\s+remaster(ed)?`),            // "- 2011 Remaster"
		regexp.MustCompile(`[(\[][^)\]]*remaster[^)\]]*[)\]]`), // "(Remastered 2023)"
		regexp.MustCompile(`-\s*remaster(ed)?`),                // "- Remastered"
	},
	VariantEdit: {
		regexp.MustCompile(`[(\[][^)\]]*\bedit[)\]]`), // "(Radio Edit)"
		regexp.MustCompile(`-\s*radio\s+edit`),        // "- Radio Edit"
	},
	VariantVersion: {
		regexp.MustCompile(`[(\[][^)\]]*\bversion[)\]]`), // "(Single Version)"
		regexp.MustCompile(`-\s*\w+\s+version$`),         // "- Acoustic Version"
	},
}

// VariantConfig represents the configuration for VariantFilter.
type VariantConfig struct {
	Exclude []string `mapstructure:"exclude" default:"[\"live\"]" validate:"min=1,dive,oneof=live remaster edit version"`
}

// VariantFilter rejects alternate takes of a song, such as live
// recordings or radio edits, when a list is rotated into the engine.
type VariantFilter struct {
	exclude []string
}

// NewVariantFilter creates a filter excluding the given variant kinds.
func NewVariantFilter(exclude ...string) *VariantFilter {
	return &VariantFilter{exclude: exclude}
}

func (f *VariantFilter) Name() string {
	return "variant_filter"
}

func (f *VariantFilter) Description() string {
	return "Skips live recordings, remasters, edits or alternate versions in lists"
}

func (f *VariantFilter) ReturnCodes() []string {
	return []string{"track_variant"}
}

func (f *VariantFilter) ValidateConfig(settings map[string]any) error {
	var config VariantConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
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
	for i, kind := range config.Exclude {
		config.Exclude[i] = strings.ToLower(strings.TrimSpace(kind))
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	f.exclude = config.Exclude
	zlog.Info().Msgf("variant filter config: exclude=%v", f.exclude)
	return nil
}

func (f *VariantFilter) AppliesTo(origin Origin) bool {
	return origin == OriginList
}

func (f *VariantFilter) Check(ctx context.Context, t track.Track) Result {
	if kind, ok := VariantOf(t.Title, f.exclude...); ok {
		zlog.Debug().Msgf("filter: %q is a %s variant", t.Title, kind)
		return Reject("track_variant")
	}
	return Accept()
}

// VariantOf reports the first of kinds whose pattern matches title.
func VariantOf(title string, kinds ...string) (string, bool) {
	normalized := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	for _, kind := range kinds {
		for _, p := range variantPatterns[kind] {
			if p.MatchString(normalized) {
				return kind, true
			}
		}
	}
	return "", false
}

func init() {
	Register("variant_filter", func() Filter {
		return NewVariantFilter()
	})
}
