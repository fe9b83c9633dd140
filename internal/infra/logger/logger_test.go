package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("verbose"))
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ambientbox.log")

	closer, err := Init(Config{Output: "file", Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	zlog.Info().Msg("hello file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello file"`)
}

func TestInit_FileWithoutPath(t *testing.T) {
	_, err := Init(Config{Output: "file"})
	assert.Error(t, err)
}

func TestInit_Console(t *testing.T) {
	closer, err := Init(Config{Output: "stderr", Level: "debug"})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
