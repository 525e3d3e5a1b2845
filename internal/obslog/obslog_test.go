package obslog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	Init(path, "debug")

	log.Info().Str("key", "value").Msg("hello")
	log.Logger = log.Output(os.Stdout) // restore before the next test's Init call

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "value", line["key"])
}

func TestInitFallsBackToInfoOnUnknownLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	Init(path, "not-a-real-level")

	log.Info().Msg("still logs at info")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "still logs at info")
}
