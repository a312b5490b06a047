// Package session manages the on-disk per-session artifacts: a plain-text
// transcript mirroring everything printed to the terminal, and a JSONL
// debug-event sink used for deterministic post-hoc analysis.
//
// Grounded on logging.py's TranscriptConsole/DebugEventLogger; the
// terminal-rendering half of TranscriptConsole (Rich's buffered
// export_text capture) belongs to the terminal renderer, not this
// package, so only the file-mirroring contract is reproduced here:
// anything written through Transcript.WriteLine also lands in the log
// file, flushed immediately so sessions survive a crash.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogsDir returns ~/.codinglm/logs, creating it if necessary.
func LogsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".codinglm", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create logs dir: %w", err)
	}
	return dir, nil
}

// Stamp formats a session id the way the original's
// datetime.now().strftime("%Y%m%d-%H%M%S") does.
func Stamp(t time.Time) string {
	return t.Format("20060102-150405")
}

// Transcript mirrors terminal output to an append-only file. A nil
// *Transcript (returned when transcripts are disabled) is safe to call
// methods on; they become no-ops, matching the original's
// `Optional[Path]`-gated TranscriptConsole.
type Transcript struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewTranscript opens (creating parent directories) path for appending.
func NewTranscript(path string) (*Transcript, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return &Transcript{file: f, path: path}, nil
}

func (t *Transcript) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// WriteLine appends text to the transcript, adding a trailing newline if
// absent, and flushes immediately (log_transcript_only).
func (t *Transcript) WriteLine(text string) {
	if t == nil || t.file == nil {
		return
	}
	if text == "" || text[len(text)-1] != '\n' {
		text += "\n"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file.WriteString(text)
	t.file.Sync()
}

func (t *Transcript) Close() error {
	if t == nil || t.file == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.file.Close()
	t.file = nil
	return err
}

// DebugEventLogger appends one JSON object per line: {timestamp, event,
// message, ...extra}. A nil *DebugEventLogger is a safe no-op, matching
// the CLI's optional `debug_logger`.
type DebugEventLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

func NewDebugEventLogger(path string) (*DebugEventLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create debug log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	return &DebugEventLogger{file: f, path: path}, nil
}

func (d *DebugEventLogger) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// Emit appends one record. fields is merged on top of the fixed
// timestamp/event/message keys; a nil map is fine.
func (d *DebugEventLogger) Emit(event, message string, fields map[string]any) {
	if d == nil || d.file == nil {
		return
	}

	payload := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"event":     event,
		"message":   message,
	}
	for k, v := range fields {
		payload[k] = v
	}

	line, err := json.Marshal(payload)
	if err != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.file.Write(line)
	d.file.Write([]byte("\n"))
	d.file.Sync()
}

func (d *DebugEventLogger) Close() error {
	if d == nil || d.file == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.file.Close()
	d.file = nil
	return err
}
