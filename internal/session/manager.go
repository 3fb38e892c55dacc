// Package session owns the single browser connection and active page the
// bridge works against, and the log buffers fed by that page.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
)

// ErrFatal marks failures to reach the browser at all. Nothing can be served
// after one, so callers are expected to exit.
var ErrFatal = errors.New("browser unavailable")

// ErrNoPage is returned by page-level calls made before Acquire.
var ErrNoPage = errors.New("no active page")

// State is the lifecycle stage of a Manager.
type State int

const (
	Disconnected State = iota
	ConnectedIdle
	ConnectedActive
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectedIdle:
		return "connected-idle"
	case ConnectedActive:
		return "connected-active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Resolver yields the control-socket address of the browser.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Manager holds at most one connection and one active page. It is safe for
// concurrent use, though the dispatcher serializes calls anyway.
type Manager struct {
	logger   *zap.Logger
	resolver Resolver
	dialer   browser.Dialer
	timeout  time.Duration

	failures *FailureBuffer
	console  *ConsoleBuffer

	mu          sync.Mutex
	conn        browser.Conn
	page        browser.Page
	unsubscribe func()
	mobile      bool
}

// New returns a disconnected manager. timeout bounds each step of attaching
// to a page.
func New(logger *zap.Logger, resolver Resolver, dialer browser.Dialer, timeout time.Duration) *Manager {
	return &Manager{
		logger:   logger.Named("session"),
		resolver: resolver,
		dialer:   dialer,
		timeout:  timeout,
		failures: NewFailureBuffer(MaxFailures),
		console:  NewConsoleBuffer(MaxConsoleEntries),
	}
}

// Acquire returns the active page, reconnecting and reattaching as needed.
// Errors wrap ErrFatal.
func (m *Manager) Acquire(ctx context.Context) (browser.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil && !m.page.Closed() && m.conn != nil && m.conn.Alive() {
		return m.page, nil
	}
	if m.page != nil {
		m.logger.Info("Active page is gone, reattaching", zap.String("target_id", m.page.ID()))
	}
	m.detachLocked()

	if m.conn == nil || !m.conn.Alive() {
		if m.conn != nil {
			m.logger.Warn("Browser connection dropped, reconnecting")
			_ = m.conn.Close()
			m.conn = nil
		}
		if err := m.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	page, err := m.attachLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: attaching to page: %w", ErrFatal, err)
	}
	m.page = page
	return page, nil
}

func (m *Manager) connectLocked(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	wsURL, err := m.resolver.Resolve(rctx)
	if err != nil {
		return fmt.Errorf("%w: resolving endpoint: %w", ErrFatal, err)
	}
	conn, err := m.dialer.Dial(rctx, wsURL)
	if err != nil {
		return fmt.Errorf("%w: connecting to %s: %w", ErrFatal, wsURL, err)
	}
	m.conn = conn
	m.logger.Info("Connected to browser", zap.String("ws_url", wsURL))
	return nil
}

// attachLocked picks the first open page, or opens one, and wires the log
// collectors and viewport onto it.
func (m *Manager) attachLocked(ctx context.Context) (browser.Page, error) {
	actx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	infos, err := m.conn.Pages(actx)
	if err != nil {
		return nil, err
	}

	var page browser.Page
	if len(infos) > 0 {
		page, err = m.conn.Attach(actx, infos[0])
		if err != nil {
			return nil, err
		}
		if err := page.BringToFront(actx); err != nil {
			return nil, err
		}
	} else {
		page, err = m.conn.NewPage(actx)
		if err != nil {
			return nil, err
		}
	}

	if m.failures.ResetIfFull() {
		m.logger.Debug("Failure buffer was full, cleared on attach")
	}
	unsubscribe := page.Subscribe(browser.Listeners{
		OnFailure: m.failures.Add,
		OnConsole: m.console.Add,
	})

	vp := browser.DesktopViewport
	if m.mobile {
		vp = browser.MobileViewport
	}
	if err := page.SetViewport(actx, vp); err != nil {
		unsubscribe()
		return nil, err
	}
	m.unsubscribe = unsubscribe

	m.logger.Info("Attached to page",
		zap.String("target_id", page.ID()),
		zap.Bool("reused", len(infos) > 0),
		zap.Bool("mobile", m.mobile),
	)
	return page, nil
}

func (m *Manager) detachLocked() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.page = nil
}

// Invalidate forgets the active page, and the connection too if it is dead.
// The next Acquire starts over from there.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
	if m.conn != nil && !m.conn.Alive() {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// SetMobile switches the active page between the mobile and desktop presets.
// The choice sticks for pages attached later.
func (m *Manager) SetMobile(ctx context.Context, enable bool) (browser.Viewport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vp := browser.DesktopViewport
	if enable {
		vp = browser.MobileViewport
	}
	if m.page == nil {
		return vp, ErrNoPage
	}
	if err := m.page.SetViewport(ctx, vp); err != nil {
		return vp, err
	}
	m.mobile = enable
	return vp, nil
}

// Mobile reports whether the mobile preset is selected.
func (m *Manager) Mobile() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mobile
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.conn == nil || !m.conn.Alive():
		return Disconnected
	case m.page == nil || m.page.Closed():
		return ConnectedIdle
	}
	return ConnectedActive
}

// DrainFailures returns and clears the recorded network failures.
func (m *Manager) DrainFailures() []browser.NetworkFailure {
	return m.failures.Drain()
}

// ConsoleEntries returns the buffered console entries without clearing them.
func (m *Manager) ConsoleEntries() []browser.ConsoleEntry {
	return m.console.Snapshot()
}

// Close detaches and drops the connection. The browser keeps running.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
