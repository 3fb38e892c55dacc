package session

import (
	"sync"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
)

const (
	// MaxFailures bounds the network failure buffer.
	MaxFailures = 100
	// MaxConsoleEntries bounds the console buffer.
	MaxConsoleEntries = 100
)

// FailureBuffer collects failed requests until they are drained. When full it
// is reset in bulk rather than evicting one entry at a time.
type FailureBuffer struct {
	mu       sync.Mutex
	capacity int
	items    []browser.NetworkFailure
}

// NewFailureBuffer returns an empty buffer holding up to capacity records.
func NewFailureBuffer(capacity int) *FailureBuffer {
	return &FailureBuffer{capacity: capacity}
}

// Add appends f, first clearing the buffer if it is already full.
func (b *FailureBuffer) Add(f browser.NetworkFailure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.capacity {
		b.items = nil
	}
	b.items = append(b.items, f)
}

// Drain returns every record and empties the buffer in one step.
func (b *FailureBuffer) Drain() []browser.NetworkFailure {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

func (b *FailureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// ResetIfFull clears the buffer when it is at or over capacity and reports
// whether it did.
func (b *FailureBuffer) ResetIfFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) < b.capacity {
		return false
	}
	b.items = nil
	return true
}

// ConsoleBuffer keeps the most recent console entries, evicting the oldest
// one once full.
type ConsoleBuffer struct {
	mu       sync.Mutex
	capacity int
	items    []browser.ConsoleEntry
}

// NewConsoleBuffer returns an empty buffer holding up to capacity entries.
func NewConsoleBuffer(capacity int) *ConsoleBuffer {
	return &ConsoleBuffer{capacity: capacity}
}

func (b *ConsoleBuffer) Add(e browser.ConsoleEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, e)
	if over := len(b.items) - b.capacity; over > 0 {
		b.items = append(b.items[:0:0], b.items[over:]...)
	}
}

// Snapshot returns a copy of the buffered entries, oldest first.
func (b *ConsoleBuffer) Snapshot() []browser.ConsoleEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]browser.ConsoleEntry(nil), b.items...)
}

func (b *ConsoleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
