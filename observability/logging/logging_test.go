package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "debug"))
	logger.Debug("escrow call committed", slog.String("operation", "pay"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "escrow call committed", line["message"])
	require.Equal(t, "pay", line["operation"])
	require.Contains(t, line, "timestamp")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestSetupWithOptionsWritesRotatingFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	file := filepath.Join(t.TempDir(), "escrowd.log")
	logger, closer := SetupWithOptions("escrowd", "test", Options{Level: "info", File: file})
	logger.Info("hello")
	require.NoError(t, closer.Close())
	require.FileExists(t, file)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer abc").Value.String())
	require.Equal(t, "pay", MaskField("Operation", "pay").Value.String())
	require.Equal(t, "", MaskField("secret", "").Value.String())
	require.Contains(t, RedactionAllowlist(), "escrowid")
}

func TestMaskCredential(t *testing.T) {
	require.Equal(t, "Bearer "+RedactedValue+"…wxyz", MaskCredential("Bearer abcdefghijklmnopqrstuvwxyz"))
	require.Equal(t, "Bearer "+RedactedValue, MaskCredential("Bearer short"))
	require.Equal(t, RedactedValue, MaskCredential("opaque"))
	require.Empty(t, MaskCredential("  "))
}
