package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTool_LineNumberFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\ngamma\n"), 0o644))

	result := NewReadTool().Execute(context.Background(), map[string]any{"path": path})
	require.True(t, result.OK)
	assert.Equal(t, "     1\talpha\n     2\tbeta\n     3\tgamma", result.Output)
}

func TestReadTool_OffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0o644))

	result := NewReadTool().Execute(context.Background(), map[string]any{"path": path, "offset": float64(2), "limit": float64(2)})
	require.True(t, result.OK)
	assert.Equal(t, "     2\ttwo\n     3\tthree", result.Output)
}

func TestReadTool_MissingFile(t *testing.T) {
	result := NewReadTool().Execute(context.Background(), map[string]any{"path": "/nonexistent/file.txt"})
	require.False(t, result.OK)
	assert.Contains(t, result.Error, "File not found")
}

func TestReadTool_FilePathAlias(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi\n"), 0o644))

	result := NewReadTool().Execute(context.Background(), map[string]any{"file_path": path})
	require.True(t, result.OK)
}

func TestEditTool_RequiresUniqueMatchUnlessReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo foo foo"), 0o644))

	edit := NewEditTool()
	result := edit.Execute(context.Background(), map[string]any{"path": path, "old_string": "foo", "new_string": "bar"})
	require.False(t, result.OK)
	assert.Contains(t, result.Error, "appears 3 times")

	result = edit.Execute(context.Background(), map[string]any{"path": path, "old_string": "foo", "new_string": "bar", "replace_all": true})
	require.True(t, result.OK)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bar bar bar", string(data))
}

func TestEditTool_RoundTripRestoresFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	original := "hello unique-marker world"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	edit := NewEditTool()
	result := edit.Execute(context.Background(), map[string]any{"path": path, "old_string": "unique-marker", "new_string": "swapped"})
	require.True(t, result.OK)

	result = edit.Execute(context.Background(), map[string]any{"path": path, "old_string": "swapped", "new_string": "unique-marker"})
	require.True(t, result.OK)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestEditTool_AliasParameters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	result := NewEditTool().Execute(context.Background(), map[string]any{
		"file_path": path, "match": "abc", "replacement": "xyz",
	})
	require.True(t, result.OK)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(data))
}

func TestEditTool_MissingOldString(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	result := NewEditTool().Execute(context.Background(), map[string]any{"path": path, "old_string": "nope", "new_string": "xyz"})
	require.False(t, result.OK)
	assert.Contains(t, result.Error, "String not found")
}

func TestWriteTool_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "file.txt")

	result := NewWriteTool().Execute(context.Background(), map[string]any{"path": path, "content": "hello"})
	require.True(t, result.OK)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
