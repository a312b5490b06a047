package main

import (
	"fmt"
	"strings"

	"github.com/zai-org/codinglm/internal/compress"
	"github.com/zai-org/codinglm/internal/session"
)

// terminalSink renders turn.Sink events to stdout, mirroring everything it
// prints into the transcript when one is active. Markdown rendering and
// color are left to the terminal itself; this is the minimal plain-text
// contract the turn controller needs.
type terminalSink struct {
	transcript *session.Transcript
	streaming  bool
}

func newTerminalSink(t *session.Transcript) *terminalSink {
	return &terminalSink{transcript: t}
}

func (s *terminalSink) println(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	fmt.Println(line)
	s.transcript.WriteLine(line)
}

func (s *terminalSink) StreamDelta(text string) {
	if !s.streaming {
		fmt.Print("\nassistant> ")
		s.streaming = true
	}
	fmt.Print(text)
	s.transcript.WriteLine(text)
}

func (s *terminalSink) AssistantMessage(text string) {
	if s.streaming {
		fmt.Println()
		s.streaming = false
		return
	}
	s.println("\nassistant> %s", text)
}

func (s *terminalSink) ToolStart(name string) {
	if s.streaming {
		fmt.Println()
		s.streaming = false
	}
	s.println("  → %s", name)
}

func (s *terminalSink) ToolSuccess(name, output string, truncated bool, historyIndex int) {
	preview := output
	if len(preview) > compress.DisplayTruncateLength {
		preview = preview[:compress.DisplayTruncateLength]
	}
	s.println("  ✓ %s", name)
	if preview != "" {
		s.println("%s", indent(preview))
	}
	if truncated {
		s.println("    (output truncated for display; see /toolout %d for the full text)", historyIndex)
	}
}

func (s *terminalSink) ToolError(name, errMsg string) {
	s.println("  ✗ %s: %s", name, errMsg)
}

func (s *terminalSink) Warn(text string) {
	s.println("⚠ %s", text)
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}

// debugSink adapts session.DebugEventLogger to turn.DebugSink.
type debugSink struct {
	logger *session.DebugEventLogger
}

func (d *debugSink) Emit(event, message string, fields map[string]any) {
	d.logger.Emit(event, message, fields)
}

