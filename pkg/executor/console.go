package executor

import (
	"sync"

	"github.com/entrhq/browsermcp/pkg/tools/browser"
)

// MaxConsoleEntries is how many console messages a page keeps.
const MaxConsoleEntries = 1000

// consoleBuffer keeps the most recent console messages.
type consoleBuffer struct {
	mu      sync.Mutex
	entries []browser.ConsoleEntry
	limit   int
}

func newConsoleBuffer(limit int) *consoleBuffer {
	if limit <= 0 {
		limit = MaxConsoleEntries
	}
	return &consoleBuffer{limit: limit}
}

func (b *consoleBuffer) add(entry browser.ConsoleEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	if over := len(b.entries) - b.limit; over > 0 {
		b.entries = append(b.entries[:0], b.entries[over:]...)
	}
}

func (b *consoleBuffer) snapshot() []browser.ConsoleEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]browser.ConsoleEntry, len(b.entries))
	copy(out, b.entries)
	return out
}
