package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredLines(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		log.SetOutput(os.Stderr)
	})

	var buf bytes.Buffer
	logger := SetupWithOptions("lottod", "test", Options{Writer: &buf, Level: slog.LevelDebug})
	Component(logger, "node").Debug("round advanced", slog.Uint64("round", 7))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "round advanced", line["message"])
	require.Equal(t, "lottod", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "node", line["component"])
	require.EqualValues(t, 7, line["round"])
	require.Contains(t, line, "timestamp")
}

func TestSetupBridgesStandardLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		log.SetOutput(os.Stderr)
	})

	var buf bytes.Buffer
	SetupWithOptions("lottod", "", Options{Writer: &buf})
	log.Print("from std")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "from std", line["message"])
	require.NotContains(t, line, "env")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)

	_, err = ParseLevel("verbose")
	require.Error(t, err)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("secret", "hunter2").Value.String())
	require.Equal(t, "", MaskField("secret", "").Value.String())
	require.Equal(t, "12", MaskField("cycle", "12").Value.String())
	require.Equal(t, "postgres://"+RedactedValue, MaskDSN("dsn", "postgres://user:pw@host/db").Value.String())
	require.Equal(t, RedactedValue, MaskDSN("dsn", "file:history.db").Value.String())
	require.Contains(t, RedactionAllowlist(), "round")
}
