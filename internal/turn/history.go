package turn

import "sync"

// ToolHistoryEntry records one completed tool invocation for later
// inspection via the /toolout slash command, grounded on
// tools/history.py::ToolHistoryEntry.
type ToolHistoryEntry struct {
	Name   string
	CallID string
	OK     bool
	Output string
}

// maxToolHistoryEntries bounds the ring to the last N tool executions,
// matching tools/history.py::ToolHistory(max_entries=20).
const maxToolHistoryEntries = 20

// ToolHistory is a mutex-guarded, capacity-bounded log of the most recent
// tool calls made during a session: once more than maxToolHistoryEntries
// have been recorded, the oldest is dropped, mirroring the original's
// add() popping entries[0]. Indices are 1-based and count every entry
// ever added (not just the ones still resident), so "/toolout N" keeps
// referring to the same call even after older entries age out of the ring.
type ToolHistory struct {
	mu      sync.Mutex
	entries []ToolHistoryEntry
	dropped int // count of entries evicted from the front
	total   int // count of entries ever added
}

func NewToolHistory() *ToolHistory { return &ToolHistory{} }

// Add appends entry, evicting the oldest if the ring is over capacity, and
// returns the entry's 1-based index.
func (h *ToolHistory) Add(entry ToolHistoryEntry) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	h.total++
	if len(h.entries) > maxToolHistoryEntries {
		h.entries = h.entries[1:]
		h.dropped++
	}
	return h.total
}

// Get returns the entry at 1-based index, or ok=false if it is out of
// range or has already been evicted from the ring.
func (h *ToolHistory) Get(index int) (ToolHistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pos := index - h.dropped - 1
	if pos < 0 || pos >= len(h.entries) {
		return ToolHistoryEntry{}, false
	}
	return h.entries[pos], true
}

// Len returns the index of the most recently added entry (0 if none),
// which is what "/toolout" with no argument should default to.
func (h *ToolHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func (h *ToolHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	h.dropped = 0
	h.total = 0
}
