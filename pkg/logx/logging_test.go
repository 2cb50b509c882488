package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestWriterFieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "relay"))

	log.Debug("hidden")
	log.Info("sent", Int("attempts", 2), Err(nil))
	log.Warn("failed", Err(errors.New("boom")), Bool("fallback", true))

	got := lines(t, &buf)
	require.Len(t, got, 2)
	require.Equal(t, "sent", got[0]["message"])
	require.Equal(t, "relay", got[0]["comp"])
	require.EqualValues(t, 2, got[0]["attempts"])
	require.NotContains(t, got[0], "err")
	require.True(t, strings.HasPrefix(got[0]["caller"].(string), "logging_test.go:"))
	require.Equal(t, "boom", got[1][zerolog.ErrorFieldName])
	require.Equal(t, true, got[1]["fallback"])
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	require.True(t, zero.IsZero())
	zero.Info("nothing happens")
	require.False(t, Nop().IsZero())
	require.False(t, zero.With(String("a", "b")).IsZero())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.WarnLevel, ParseLevel(" warning ", zerolog.InfoLevel))
	require.Equal(t, zerolog.TraceLevel, ParseLevel("trace", zerolog.InfoLevel))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("loud", zerolog.InfoLevel))
}

func TestServiceApplySwitchesSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	svc, log := New(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()
	derived := log.With(String("comp", "test"))

	derived.Info("dropped at error level")
	require.False(t, derived.Enabled(LevelInfo))

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	require.True(t, derived.Enabled(LevelDebug))
	derived.Debug("kept")
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(b), "dropped at error level")
	require.Contains(t, string(b), `"message":"kept"`)
	require.Contains(t, string(b), `"comp":"test"`)
}

func TestChatAndComponentFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").Component("dispatcher")

	log.Info("a", Chat(-100123, 0))
	log.Info("b", Chat(-100123, 7), Strs("sections", []string{"relay", "files"}))

	got := lines(t, &buf)
	require.Len(t, got, 2)
	require.Equal(t, "dispatcher", got[0]["component"])
	require.EqualValues(t, -100123, got[0]["chat_id"])
	require.NotContains(t, got[0], "thread_id")
	require.EqualValues(t, 7, got[1]["thread_id"])
	require.Equal(t, []any{"relay", "files"}, got[1]["sections"])
}

func TestFileSinkRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path, MaxSizeMB: 1, Backups: 3}})

	chunk := strings.Repeat("x", 700<<10)
	log.Info("first", String("pad", chunk))
	log.Info("second", String("pad", chunk))
	require.NoError(t, svc.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"message":"second"`)
	require.NotContains(t, string(b), `"message":"first"`)
}

func TestApplyKeepsFileWhenUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	cfg := Config{Level: "info", File: FileConfig{Enabled: true, Path: path, MaxSizeMB: 1}}
	svc, _ := New(cfg)
	defer svc.Close()

	first := svc.file
	svc.Apply(Config{Level: "debug", File: cfg.File})
	require.Same(t, first, svc.file)
	require.Equal(t, "debug", svc.Config().Level)

	svc.Apply(Config{Level: "debug"})
	require.Nil(t, svc.file)
}
