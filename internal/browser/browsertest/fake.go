// Package browsertest provides an in-memory browser engine for tests of code
// built on package browser.
package browsertest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
)

// Element is a node in a fake page's DOM, addressed by its selector.
type Element struct {
	Tag      string
	Editable bool
	Style    browser.ComputedStyle
}

// Dialer hands out fake connections and records every dial.
type Dialer struct {
	// Pages seeds every new connection with this many open tabs.
	Pages int

	mu    sync.Mutex
	err   error
	dials []string
	conns []*Conn
}

// NewDialer returns a dialer whose connections start with no open tabs.
func NewDialer() *Dialer {
	return &Dialer{}
}

// FailWith makes subsequent dials return err. A nil err restores dialing.
func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *Dialer) Dial(ctx context.Context, wsURL string) (browser.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, wsURL)
	if d.err != nil {
		return nil, d.err
	}
	c := &Conn{alive: true}
	for i := 0; i < d.Pages; i++ {
		c.AddPage(fmt.Sprintf("https://example.test/%d", i))
	}
	d.conns = append(d.conns, c)
	return c, nil
}

// Dials returns the websocket URLs dialed so far.
func (d *Dialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}

// Conns returns every connection handed out so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Last returns the most recent connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Conn is a fake browser connection.
type Conn struct {
	mu      sync.Mutex
	alive   bool
	closed  bool
	pages   []*Page
	nextID  int
	created int
	listErr error
}

// AddPage opens a tab at url as if the user had opened it.
func (c *Conn) AddPage(url string) *Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addPageLocked(url)
}

func (c *Conn) addPageLocked(url string) *Page {
	c.nextID++
	p := newPage(c, fmt.Sprintf("T%d", c.nextID), url)
	c.pages = append(c.pages, p)
	return p
}

// Drop simulates the control socket going away.
func (c *Conn) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
}

// FailListing makes Pages return err.
func (c *Conn) FailListing(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

func (c *Conn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive && !c.closed
}

func (c *Conn) Pages(ctx context.Context) ([]browser.PageInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	infos := make([]browser.PageInfo, 0, len(c.pages))
	for _, p := range c.pages {
		infos = append(infos, browser.PageInfo{ID: p.id, URL: p.URL()})
	}
	return infos, nil
}

func (c *Conn) Attach(ctx context.Context, info browser.PageInfo) (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pages {
		if p.id == info.ID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no target with id %s", info.ID)
}

func (c *Conn) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	return c.addPageLocked("about:blank"), nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// OpenPages returns the tabs currently open.
func (c *Conn) OpenPages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// Created counts tabs opened through NewPage.
func (c *Conn) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) remove(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.pages {
		if q == p {
			c.pages = append(c.pages[:i], c.pages[i+1:]...)
			return
		}
	}
}

// Page is a fake tab with a flat selector-addressed DOM.
type Page struct {
	conn *Conn
	id   string

	mu          sync.Mutex
	closed      bool
	url         string
	viewport    browser.Viewport
	fronted     int
	listeners   map[int]browser.Listeners
	nextSub     int
	elements    map[string]*Element
	typed       map[string]string
	scrollX     float64
	scrollY     float64
	scrolledTo  []string
	clicks      []string
	unreachable map[string]string
	hook        func(op string) error
	eval        func(script string) (json.RawMessage, error)
}

func newPage(c *Conn, id, url string) *Page {
	return &Page{
		conn:        c,
		id:          id,
		url:         url,
		listeners:   make(map[int]browser.Listeners),
		elements:    make(map[string]*Element),
		typed:       make(map[string]string),
		unreachable: make(map[string]string),
	}
}

// SetElement places el in the DOM under selector.
func (p *Page) SetElement(selector string, el Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = &el
}

// SetUnreachable makes navigation to url fail with errorText, emitting a
// network failure first.
func (p *Page) SetUnreachable(url, errorText string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unreachable[url] = errorText
}

// SetHook installs fn to run at the start of every operation. A non-nil
// error fails the operation; fn may also panic.
func (p *Page) SetHook(fn func(op string) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hook = fn
}

// SetEvaluator replaces the script evaluator. The default returns null.
func (p *Page) SetEvaluator(fn func(script string) (json.RawMessage, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eval = fn
}

// Close simulates the user closing the tab.
func (p *Page) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.conn.remove(p)
}

// EmitFailure delivers f to every subscriber, as the engine would.
func (p *Page) EmitFailure(f browser.NetworkFailure) {
	for _, l := range p.subscribers() {
		if l.OnFailure != nil {
			l.OnFailure(f)
		}
	}
}

// EmitConsole delivers e to every subscriber.
func (p *Page) EmitConsole(e browser.ConsoleEntry) {
	for _, l := range p.subscribers() {
		if l.OnConsole != nil {
			l.OnConsole(e)
		}
	}
}

func (p *Page) subscribers() []browser.Listeners {
	p.mu.Lock()
	defer p.mu.Unlock()
	ls := make([]browser.Listeners, 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	return ls
}

// Subscribers counts live subscriptions.
func (p *Page) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// URL is the current location.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Viewport is the last viewport applied.
func (p *Page) Viewport() browser.Viewport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport
}

// Fronted counts BringToFront calls.
func (p *Page) Fronted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fronted
}

// Typed returns the text typed into selector.
func (p *Page) Typed(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[selector]
}

// Clicks returns the selectors clicked, in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Scroll returns the accumulated scroll offset.
func (p *Page) Scroll() (x, y float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollX, p.scrollY
}

// ScrolledTo returns the selectors scrolled into view, in order.
func (p *Page) ScrolledTo() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scrolledTo...)
}

func (p *Page) begin(op string) error {
	p.mu.Lock()
	closed, hook := p.closed, p.hook
	p.mu.Unlock()
	if closed {
		return errors.New("target closed")
	}
	if hook != nil {
		return hook(op)
	}
	return nil
}

func (p *Page) ID() string { return p.id }

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) BringToFront(ctx context.Context) error {
	if err := p.begin("bring_to_front"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fronted++
	return nil
}

func (p *Page) SetViewport(ctx context.Context, vp browser.Viewport) error {
	if err := p.begin("set_viewport"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = vp
	return nil
}

func (p *Page) Subscribe(l browser.Listeners) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSub++
	id := p.nextSub
	p.listeners[id] = l
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.begin("navigate"); err != nil {
		return err
	}
	p.mu.Lock()
	errText, bad := p.unreachable[url]
	p.mu.Unlock()
	if bad {
		p.EmitFailure(browser.NetworkFailure{URL: url, Method: "GET", ErrorText: errText})
		return fmt.Errorf("page load error %s", errText)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.scrollX, p.scrollY = 0, 0
	return nil
}

// Screenshot renders a blank JPEG the size of the viewport.
func (p *Page) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	if err := p.begin("screenshot"); err != nil {
		return nil, err
	}
	vp := p.Viewport()
	w, h := int(vp.Width), int(vp.Height)
	if w == 0 || h == 0 {
		w, h = 800, 600
	}
	img := imaging.New(w, h, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Page) lookup(selector string) (*Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok {
		return nil, fmt.Errorf("%w %q", browser.ErrNotFound, selector)
	}
	return el, nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.begin("click"); err != nil {
		return err
	}
	if _, err := p.lookup(selector); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	if err := p.begin("type"); err != nil {
		return err
	}
	el, err := p.lookup(selector)
	if err != nil {
		return err
	}
	if !el.Editable {
		return fmt.Errorf("%w: %q is <%s>", browser.ErrNotEditable, selector, el.Tag)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[selector] += text
	return nil
}

func (p *Page) ScrollBy(ctx context.Context, x, y float64) error {
	if err := p.begin("scroll"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrollX += x
	p.scrollY += y
	return nil
}

func (p *Page) ScrollIntoView(ctx context.Context, selector string) error {
	if err := p.begin("scroll"); err != nil {
		return err
	}
	if _, err := p.lookup(selector); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolledTo = append(p.scrolledTo, selector)
	return nil
}

// WaitForSelector returns once selector exists or ctx ends.
func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	if err := p.begin("wait_for_selector"); err != nil {
		return err
	}
	if _, err := p.lookup(selector); err == nil {
		return nil
	}
	<-ctx.Done()
	return fmt.Errorf("timed out waiting for %q: %w", selector, ctx.Err())
}

func (p *Page) ComputedStyle(ctx context.Context, selector string) (*browser.ComputedStyle, error) {
	if err := p.begin("get_computed_styles"); err != nil {
		return nil, err
	}
	el, err := p.lookup(selector)
	if errors.Is(err, browser.ErrNotFound) {
		return nil, nil
	}
	vp := p.Viewport()
	style := el.Style
	style.ViewportWidth = vp.Width
	style.ViewportHeight = vp.Height
	return &style, nil
}

func (p *Page) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	if err := p.begin("evaluate"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	eval := p.eval
	p.mu.Unlock()
	if eval == nil {
		return json.RawMessage("null"), nil
	}
	return eval(script)
}
