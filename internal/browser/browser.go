// Package browser defines the capability surface the bridge needs from a
// remote browser and implements it on top of chromedp.
package browser

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound means a selector matched no element.
	ErrNotFound = errors.New("no element matches selector")
	// ErrNotEditable means the matched element cannot receive typed text.
	ErrNotEditable = errors.New("element is not an input target")
)

// Viewport is the emulated screen of a page.
type Viewport struct {
	Width             int64   `json:"width"`
	Height            int64   `json:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor"`
	Mobile            bool    `json:"mobile"`
	Touch             bool    `json:"touch"`
}

var (
	// DesktopViewport is applied every time a page is attached.
	DesktopViewport = Viewport{Width: 1920, Height: 1080, DeviceScaleFactor: 1}
	// MobileViewport is a phone-sized, touch-capable screen.
	MobileViewport = Viewport{Width: 375, Height: 812, DeviceScaleFactor: 3, Mobile: true, Touch: true}
)

// NetworkFailure records one request that failed to load.
type NetworkFailure struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	ErrorText string `json:"error"`
}

// ConsoleEntry records one console API call made by the page.
type ConsoleEntry struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Listeners receive page events. Callbacks run on the engine's event
// goroutine and must not block.
type Listeners struct {
	OnFailure func(NetworkFailure)
	OnConsole func(ConsoleEntry)
}

// ComputedStyle is a snapshot of the layout-relevant computed properties of
// one element, plus the window size it was computed against.
type ComputedStyle struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
	FontFamily      string `json:"fontFamily"`
	FontSize        string `json:"fontSize"`
	Display         string `json:"display"`
	Position        string `json:"position"`
	Margin          string `json:"margin"`
	Padding         string `json:"padding"`
	Width           string `json:"width"`
	Height          string `json:"height"`
	ZIndex          string `json:"zIndex"`
	ViewportWidth   int64  `json:"viewportWidth"`
	ViewportHeight  int64  `json:"viewportHeight"`
}

// PageInfo describes a page target before it is attached.
type PageInfo struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Dialer opens connections to a browser's control socket.
type Dialer interface {
	Dial(ctx context.Context, wsURL string) (Conn, error)
}

// Conn is a live link to one browser process.
type Conn interface {
	// Alive reports whether the control socket is still usable.
	Alive() bool
	// Pages lists the open page targets, most relevant first.
	Pages(ctx context.Context) ([]PageInfo, error)
	// Attach takes control of an existing page.
	Attach(ctx context.Context, info PageInfo) (Page, error)
	// NewPage opens a fresh tab.
	NewPage(ctx context.Context) (Page, error)
	// Close drops the control socket. The browser process keeps running.
	Close() error
}

// Page is one controlled tab. Deadlines on ctx bound every call.
type Page interface {
	ID() string
	Closed() bool
	BringToFront(ctx context.Context) error
	SetViewport(ctx context.Context, vp Viewport) error
	// Subscribe registers l for the page's failure and console events. The
	// returned func removes the registration.
	Subscribe(l Listeners) (unsubscribe func())

	// Navigate loads url and returns once the network is idle.
	Navigate(ctx context.Context, url string) error
	// Screenshot captures the visible viewport as JPEG.
	Screenshot(ctx context.Context, quality int) ([]byte, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	ScrollBy(ctx context.Context, x, y float64) error
	ScrollIntoView(ctx context.Context, selector string) error
	WaitForSelector(ctx context.Context, selector string) error
	// ComputedStyle returns nil without error when nothing matches.
	ComputedStyle(ctx context.Context, selector string) (*ComputedStyle, error)
	// Evaluate runs script and returns its JSON-encoded value. Exceptions
	// thrown by the script are returned as errors.
	Evaluate(ctx context.Context, script string) (json.RawMessage, error)
}
