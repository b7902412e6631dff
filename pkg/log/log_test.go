package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewHandler(&buf, "info", FormatJSON))
	logger.Debug("hidden")
	logger.Info("shown", "module", "engine")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "engine", line["module"])
}

func TestNewHandler_TextAndTint(t *testing.T) {
	for _, format := range []string{FormatText, FormatTint, "unknown"} {
		var buf bytes.Buffer

		slog.New(NewHandler(&buf, "debug", format)).Debug("hello", "k", "v")

		assert.Contains(t, buf.String(), "hello", format)

		if format != FormatTint {
			assert.Contains(t, buf.String(), "k=v", format)
		}
	}
}
