package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_FileIsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: "file"}, &buf, zerolog.InfoLevel)
	l.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line[zerolog.MessageFieldName])
	assert.NotContains(t, line, zerolog.CallerFieldName)
}

func TestNew_ConsoleIsText(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: "stdout"}, &buf, zerolog.InfoLevel)
	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	closer, err := Init(Config{Output: "file", File: path, Level: "debug"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = Init(Config{Output: "stderr"})
	})
	require.NoError(t, closer.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestInit_FileWithoutPath(t *testing.T) {
	_, err := Init(Config{Output: "file"})
	assert.Error(t, err)
}

func TestShortCaller(t *testing.T) {
	p := filepath.Join("a", "b", "c.go")
	assert.Equal(t, filepath.Join("b", "c.go")+":12", shortCaller(0, p, 12))
	assert.Equal(t, "c.go:3", shortCaller(0, "c.go", 3))
}
