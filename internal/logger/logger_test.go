package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type logEntry map[string]any

func TestLoggerInfoWithFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "info", Writer: buf})
	require.NoError(t, err)

	log = log.WithFields(map[string]any{"bundle": "pkgA", "category": "models"})
	log.Info("merged category")

	var entry logEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "merged category", entry["message"])
	require.Equal(t, "pkgA", entry["bundle"])
	require.Equal(t, "models", entry["category"])
	require.Equal(t, "info", entry["level"])
}

func TestLoggerWithAddsSingleField(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "debug", Writer: buf})
	require.NoError(t, err)

	log.With("namespace", "pkgB").Debug("rewritten")

	var entry logEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "pkgB", entry["namespace"])
	require.Equal(t, "debug", entry["level"])
}

func TestLoggerDebugRespectsLevel(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "info", Writer: buf})
	require.NoError(t, err)

	log.Debug("this should not appear")
	require.Equal(t, "", strings.TrimSpace(buf.String()))
}

func TestLoggerRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "chatty"})
	require.Error(t, err)
}

func TestLoggerErrorIncludesContext(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "debug", Writer: buf})
	require.NoError(t, err)

	log = log.WithFields(map[string]any{"phase": "reload"})
	log.Error(errors.New("boom"), "activation failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry logEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "activation failed", entry["message"])
	require.Equal(t, "reload", entry["phase"])
	require.Equal(t, "boom", entry["error"])
}

func TestNilLoggerIsSilent(t *testing.T) {
	t.Parallel()

	var log *Logger
	require.NotPanics(t, func() {
		log.Info("ignored")
		log.Warn("ignored")
		log.Error(errors.New("x"), "ignored")
		require.Nil(t, log.With("k", "v"))
		require.Nil(t, log.WithFields(map[string]any{"k": "v"}))
	})
}

func TestLoggerComponentAndFieldOrder(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "info", Writer: buf})
	require.NoError(t, err)

	log.Component("merger").WithFields(map[string]any{"zeta": 1, "alpha": "a", "cause": errors.New("bad")}).Warn("skipped")

	line := buf.String()
	require.Contains(t, line, `"component":"merger"`)
	require.Less(t, strings.Index(line, `"alpha"`), strings.Index(line, `"cause"`))
	require.Less(t, strings.Index(line, `"cause"`), strings.Index(line, `"zeta"`))

	var entry logEntry
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	require.Equal(t, "bad", entry["cause"])
	require.Equal(t, float64(1), entry["zeta"])
}
