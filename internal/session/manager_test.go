package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
	"github.com/frontend-sniper/frontend-sniper/internal/browser/browsertest"
)

type stubResolver struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (r *stubResolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.url, nil
}

func (r *stubResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newManager(t *testing.T, pages int) (*Manager, *stubResolver, *browsertest.Dialer) {
	t.Helper()
	res := &stubResolver{url: "ws://chrome:3333/devtools/browser/abc"}
	d := browsertest.NewDialer()
	d.Pages = pages
	m := New(zaptest.NewLogger(t), res, d, time.Second)
	t.Cleanup(func() { _ = m.Close() })
	return m, res, d
}

func TestAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("ReusesFirstOpenPage", func(t *testing.T) {
		m, res, d := newManager(t, 2)
		assert.Equal(t, Disconnected, m.State())

		page, err := m.Acquire(ctx)
		require.NoError(t, err)

		conn := d.Last()
		first := conn.OpenPages()[0]
		assert.Equal(t, first.ID(), page.ID())
		assert.Equal(t, 1, first.Fronted())
		assert.Equal(t, 0, conn.Created())
		assert.Equal(t, browser.DesktopViewport, first.Viewport())
		assert.Equal(t, 1, first.Subscribers())
		assert.Equal(t, []string{res.url}, d.Dials())
		assert.Equal(t, ConnectedActive, m.State())
	})

	t.Run("CreatesPageWhenNoneOpen", func(t *testing.T) {
		m, _, d := newManager(t, 0)

		page, err := m.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, d.Last().Created())
		require.Len(t, d.Last().OpenPages(), 1)
		assert.Equal(t, page.ID(), d.Last().OpenPages()[0].ID())
	})

	t.Run("FastPathHasNoSideEffects", func(t *testing.T) {
		m, res, d := newManager(t, 1)

		p1, err := m.Acquire(ctx)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			p, err := m.Acquire(ctx)
			require.NoError(t, err)
			assert.Same(t, p1, p)
		}
		assert.Equal(t, 1, res.Calls())
		assert.Len(t, d.Conns(), 1)
		assert.Equal(t, 1, d.Last().OpenPages()[0].Fronted())
		assert.Equal(t, 1, d.Last().OpenPages()[0].Subscribers())
	})

	t.Run("ReconnectsAfterDrop", func(t *testing.T) {
		m, res, d := newManager(t, 1)

		_, err := m.Acquire(ctx)
		require.NoError(t, err)
		old := d.Last()
		oldPage := old.OpenPages()[0]

		old.Drop()
		assert.Equal(t, Disconnected, m.State())

		page, err := m.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Calls())
		require.Len(t, d.Conns(), 2)
		assert.True(t, old.IsClosed())
		assert.Equal(t, d.Last().OpenPages()[0].ID(), page.ID())
		assert.Equal(t, 0, oldPage.Subscribers())
		assert.Equal(t, ConnectedActive, m.State())
	})

	t.Run("ReattachesWhenPageClosed", func(t *testing.T) {
		m, res, d := newManager(t, 2)

		p1, err := m.Acquire(ctx)
		require.NoError(t, err)
		d.Last().OpenPages()[0].Close()
		assert.Equal(t, ConnectedIdle, m.State())

		p2, err := m.Acquire(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, p1.ID(), p2.ID())
		assert.Equal(t, 1, res.Calls())
		assert.Len(t, d.Conns(), 1)
	})

	t.Run("ListenersReplacedNotStacked", func(t *testing.T) {
		m, _, d := newManager(t, 1)

		_, err := m.Acquire(ctx)
		require.NoError(t, err)
		page := d.Last().OpenPages()[0]

		m.Invalidate()
		assert.Equal(t, 0, page.Subscribers())
		_, err = m.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Subscribers())

		page.EmitConsole(browser.ConsoleEntry{Level: "log", Text: "once"})
		assert.Len(t, m.ConsoleEntries(), 1)
	})

	t.Run("ResolveFailureIsFatal", func(t *testing.T) {
		m, res, d := newManager(t, 1)
		res.err = errors.New("connection refused")

		_, err := m.Acquire(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFatal)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Empty(t, d.Dials())
		assert.Equal(t, Disconnected, m.State())
	})

	t.Run("DialFailureIsFatal", func(t *testing.T) {
		m, _, d := newManager(t, 1)
		d.FailWith(errors.New("bad handshake"))

		_, err := m.Acquire(ctx)
		assert.ErrorIs(t, err, ErrFatal)
	})

	t.Run("ListingFailureIsFatal", func(t *testing.T) {
		m, _, d := newManager(t, 1)
		_, err := m.Acquire(ctx)
		require.NoError(t, err)

		d.Last().FailListing(errors.New("boom"))
		m.Invalidate()
		_, err = m.Acquire(ctx)
		assert.ErrorIs(t, err, ErrFatal)
	})
}

func TestMobilePersistsAcrossReattach(t *testing.T) {
	ctx := context.Background()
	m, _, d := newManager(t, 1)

	_, err := m.Acquire(ctx)
	require.NoError(t, err)

	vp, err := m.SetMobile(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, browser.MobileViewport, vp)
	assert.True(t, m.Mobile())

	d.Last().Drop()
	_, err = m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, browser.MobileViewport, d.Last().OpenPages()[0].Viewport())

	_, err = m.SetMobile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, browser.DesktopViewport, d.Last().OpenPages()[0].Viewport())
}

func TestSetMobileWithoutPage(t *testing.T) {
	m, _, _ := newManager(t, 1)
	_, err := m.SetMobile(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoPage)
	assert.False(t, m.Mobile())
}

func TestFailureBufferClearedOnAttachWhenFull(t *testing.T) {
	ctx := context.Background()
	m, _, d := newManager(t, 1)

	_, err := m.Acquire(ctx)
	require.NoError(t, err)
	page := d.Last().OpenPages()[0]
	for i := 0; i < MaxFailures; i++ {
		page.EmitFailure(browser.NetworkFailure{URL: fmt.Sprintf("https://cdn.test/%d.js", i), Method: "GET", ErrorText: "net::ERR_FAILED"})
	}
	require.Equal(t, MaxFailures, m.failures.Len())

	m.Invalidate()
	_, err = m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, m.failures.Len())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connected-idle", ConnectedIdle.String())
	assert.Equal(t, "connected-active", ConnectedActive.String())
	assert.Equal(t, "State(9)", State(9).String())
}
