package interrupt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// newUnusableSource builds a Source as New() would when stdin isn't a TTY
// (the case in every test environment): usable stays false and every
// operation becomes a safe no-op.
func newUnusableSource() *Source {
	return &Source{stop: make(chan struct{}), stopped: make(chan struct{})}
}

func TestSource_New_UnusableOnNonTTYStdin(t *testing.T) {
	// go test's stdin is never an interactive TTY, so New() must mark the
	// source unusable rather than fail or block.
	s := New()
	assert.False(t, s.usable)
}

func TestSource_StartStop_NoopWhenUnusable(t *testing.T) {
	s := newUnusableSource()

	s.Start()
	assert.False(t, s.started.Load(), "Start must not flip started when the terminal isn't usable")

	interrupted := s.Stop()
	assert.False(t, interrupted)
}

func TestSource_ShouldStop_FalseUntilLatched(t *testing.T) {
	s := newUnusableSource()
	assert.False(t, s.ShouldStop())

	s.interrupted.Store(true)
	assert.True(t, s.ShouldStop())
}

func TestSource_Stop_SafeWhenNeverStarted(t *testing.T) {
	s := newUnusableSource()
	assert.NotPanics(t, func() {
		s.Stop()
	})
}

func TestSource_Stop_ReportsLatchedInterrupt(t *testing.T) {
	s := newUnusableSource()
	s.interrupted.Store(true)
	assert.True(t, s.Stop())
}
