package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStamp_FormatsLikeOriginalStrftime(t *testing.T) {
	ts := time.Date(2026, 7, 31, 9, 5, 3, 0, time.UTC)
	assert.Equal(t, "20260731-090503", Stamp(ts))
}

func TestTranscript_WriteLineAppendsAndFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "transcript.log")
	tr, err := NewTranscript(path)
	require.NoError(t, err)
	defer tr.Close()

	tr.WriteLine("hello")
	tr.WriteLine("world\n")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(data))
}

func TestTranscript_PathReflectsArgument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.log")
	tr, err := NewTranscript(path)
	require.NoError(t, err)
	defer tr.Close()

	assert.Equal(t, path, tr.Path())
}

func TestTranscript_NilReceiverIsNoop(t *testing.T) {
	var tr *Transcript
	assert.NotPanics(t, func() {
		tr.WriteLine("ignored")
		assert.Equal(t, "", tr.Path())
		assert.NoError(t, tr.Close())
	})
}

func TestDebugEventLogger_EmitWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.jsonl")
	logger, err := NewDebugEventLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	logger.Emit("tool_start", "running Bash", map[string]any{"tool_name": "Bash"})
	logger.Emit("tool_done", "Bash finished", nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "tool_start", first["event"])
	assert.Equal(t, "running Bash", first["message"])
	assert.Equal(t, "Bash", first["tool_name"])
	assert.NotEmpty(t, first["timestamp"])
}

func TestDebugEventLogger_NilReceiverIsNoop(t *testing.T) {
	var logger *DebugEventLogger
	assert.NotPanics(t, func() {
		logger.Emit("event", "message", nil)
		assert.Equal(t, "", logger.Path())
		assert.NoError(t, logger.Close())
	})
}

func TestLogsDir_CreatesDirectoryUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := LogsDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".codinglm", "logs"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
