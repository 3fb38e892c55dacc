package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
)

func failure(i int) browser.NetworkFailure {
	return browser.NetworkFailure{URL: fmt.Sprintf("https://api.test/%d", i), Method: "GET", ErrorText: "net::ERR_CONNECTION_REFUSED"}
}

func TestFailureBuffer(t *testing.T) {
	t.Run("DrainEmpties", func(t *testing.T) {
		b := NewFailureBuffer(MaxFailures)
		b.Add(failure(1))
		b.Add(failure(2))

		want := []browser.NetworkFailure{failure(1), failure(2)}
		if diff := cmp.Diff(want, b.Drain()); diff != "" {
			t.Errorf("Drain() mismatch (-want +got):\n%s", diff)
		}
		assert.Empty(t, b.Drain())
		assert.Equal(t, 0, b.Len())
	})

	t.Run("BulkResetOnOverflow", func(t *testing.T) {
		b := NewFailureBuffer(3)
		for i := 0; i < 3; i++ {
			b.Add(failure(i))
		}
		assert.Equal(t, 3, b.Len())

		b.Add(failure(99))
		if diff := cmp.Diff([]browser.NetworkFailure{failure(99)}, b.Drain()); diff != "" {
			t.Errorf("after overflow (-want +got):\n%s", diff)
		}
	})

	t.Run("ResetIfFull", func(t *testing.T) {
		b := NewFailureBuffer(2)
		b.Add(failure(1))
		assert.False(t, b.ResetIfFull())
		assert.Equal(t, 1, b.Len())

		b.Add(failure(2))
		assert.True(t, b.ResetIfFull())
		assert.Equal(t, 0, b.Len())
	})
}

func TestConsoleBuffer(t *testing.T) {
	t.Run("FIFOEviction", func(t *testing.T) {
		b := NewConsoleBuffer(MaxConsoleEntries)
		for i := 0; i < MaxConsoleEntries+5; i++ {
			b.Add(browser.ConsoleEntry{Level: "log", Text: fmt.Sprint(i)})
		}
		got := b.Snapshot()
		assert.Len(t, got, MaxConsoleEntries)
		assert.Equal(t, "5", got[0].Text)
		assert.Equal(t, fmt.Sprint(MaxConsoleEntries+4), got[len(got)-1].Text)
	})

	t.Run("SnapshotIsCopy", func(t *testing.T) {
		b := NewConsoleBuffer(4)
		b.Add(browser.ConsoleEntry{Level: "warning", Text: "a"})
		snap := b.Snapshot()
		snap[0].Text = "mutated"
		assert.Equal(t, "a", b.Snapshot()[0].Text)
		assert.Equal(t, 1, b.Len())
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		b := NewConsoleBuffer(MaxConsoleEntries)
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					b.Add(browser.ConsoleEntry{Level: "log", Text: "x"})
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, MaxConsoleEntries, b.Len())
	})
}
