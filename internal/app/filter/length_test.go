package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunesync/internal/domain/track"
)

func TestLengthFilter_Check(t *testing.T) {
	window := LengthConfig{Min: 45 * time.Second, Max: 12 * time.Minute}

	tests := []struct {
		name     string
		config   LengthConfig
		duration time.Duration
		wantCode string
	}{
		{name: "inside window", config: window, duration: 4 * time.Minute},
		{name: "interlude", config: window, duration: 20 * time.Second, wantCode: CodeTooShort},
		{name: "dj mix", config: window, duration: 58 * time.Minute, wantCode: CodeTooLong},
		{name: "bounds are inclusive", config: window, duration: 45 * time.Second},
		{name: "max unset", config: LengthConfig{Min: time.Minute}, duration: 3 * time.Hour},
		{name: "unknown accepted", config: window},
		{
			name:     "unknown rejected",
			config:   LengthConfig{Max: time.Hour, Unknown: "reject"},
			wantCode: CodeLengthUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewLengthFilter(tt.config)
			result := f.Check(context.Background(), track.Track{Title: "x", Duration: tt.duration})
			assert.Equal(t, tt.wantCode == "", result.Accepted)
			assert.Equal(t, tt.wantCode, result.Code)
		})
	}
}

func TestLengthFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		want     LengthConfig
		wantErr  bool
	}{
		{
			name: "defaults",
			want: LengthConfig{Unknown: "accept"},
		},
		{
			name:     "duration strings",
			settings: map[string]any{"min": "45s", "max": "12m", "unknown": "reject"},
			want:     LengthConfig{Min: 45 * time.Second, Max: 12 * time.Minute, Unknown: "reject"},
		},
		{
			name:     "numbers are seconds",
			settings: map[string]any{"min": 30, "max": 90.5, "single_plays": true},
			want:     LengthConfig{Min: 30 * time.Second, Max: 90500 * time.Millisecond, Unknown: "accept", SinglePlays: true},
		},
		{name: "min above max", settings: map[string]any{"min": "10m", "max": "2m"}, wantErr: true},
		{name: "negative", settings: map[string]any{"min": "-1s"}, wantErr: true},
		{name: "bad unknown policy", settings: map[string]any{"unknown": "skip"}, wantErr: true},
		{name: "bad duration", settings: map[string]any{"max": "forever"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewLengthFilter(LengthConfig{})
			err := f.ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.config)
		})
	}
}

func TestLengthFilter_Origins(t *testing.T) {
	ctx := context.Background()
	long := track.Track{URL: "/mix.flac", Duration: time.Hour}

	listOnly := NewLengthFilter(LengthConfig{Max: 12 * time.Minute})
	chain := NewChain(NewSourceFilter(), listOnly)
	assert.Equal(t, CodeTooLong, chain.Execute(ctx, long, OriginList).Code)
	assert.True(t, chain.Playable(ctx, long, OriginAdHoc), "an explicit single play is honoured")

	everywhere := NewLengthFilter(LengthConfig{Max: 12 * time.Minute, SinglePlays: true})
	chain = NewChain(NewSourceFilter(), everywhere)
	assert.Equal(t, CodeTooLong, chain.Execute(ctx, long, OriginAdHoc).Code)
}
