package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// maxTrackedRequests bounds the request-id index used to give failed
// requests their URL and method.
const maxTrackedRequests = 1024

// CDPDialer dials browsers with chromedp's remote allocator.
type CDPDialer struct {
	logger      *zap.Logger
	dialTimeout time.Duration
}

// NewCDPDialer returns a dialer logging through logger.
func NewCDPDialer(logger *zap.Logger, dialTimeout time.Duration) *CDPDialer {
	return &CDPDialer{logger: logger.Named("cdp"), dialTimeout: dialTimeout}
}

// Dial connects to the browser-level websocket at wsURL without opening a tab.
func (d *CDPDialer) Dial(ctx context.Context, wsURL string) (Conn, error) {
	// The allocator outlives ctx; the connection lives until Close.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), wsURL, chromedp.NoModifyURL)

	sugar := d.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
		chromedp.WithBrowserOption(chromedp.WithDialTimeout(d.dialTimeout)),
	)

	// Targets allocates the browser connection; it must see browserCtx itself
	// because the websocket is torn down when that context ends.
	if _, err := chromedp.Targets(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", wsURL, err)
	}
	if err := ctx.Err(); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	c := &cdpConn{
		logger:      d.logger,
		wsURL:       wsURL,
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		pages:       make(map[target.ID]*cdpPage),
	}

	b := chromedp.FromContext(browserCtx).Browser
	if err := target.SetDiscoverTargets(true).Do(cdp.WithExecutor(browserCtx, b)); err != nil {
		d.logger.Warn("Target discovery unavailable, closed tabs are detected lazily", zap.Error(err))
	}
	chromedp.ListenBrowser(browserCtx, c.onBrowserEvent)
	go func() {
		select {
		case <-b.LostConnection:
			c.dropped.Store(true)
			d.logger.Warn("Lost connection to browser", zap.String("ws_url", wsURL))
		case <-browserCtx.Done():
		}
	}()

	d.logger.Info("Connected to browser", zap.String("ws_url", wsURL))
	return c, nil
}

type cdpConn struct {
	logger      *zap.Logger
	wsURL       string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	dropped     atomic.Bool

	mu    sync.Mutex
	pages map[target.ID]*cdpPage
}

func (c *cdpConn) Alive() bool {
	return c.ctx.Err() == nil && !c.dropped.Load()
}

func (c *cdpConn) onBrowserEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetDestroyed:
		c.markClosed(e.TargetID, "destroyed")
	case *target.EventTargetCrashed:
		c.markClosed(e.TargetID, "crashed")
	}
}

func (c *cdpConn) markClosed(id target.ID, reason string) {
	c.mu.Lock()
	p, ok := c.pages[id]
	delete(c.pages, id)
	c.mu.Unlock()
	if ok {
		p.closed.Store(true)
		c.logger.Info("Page target gone", zap.String("target_id", string(id)), zap.String("reason", reason))
	}
}

func (c *cdpConn) Pages(ctx context.Context) ([]PageInfo, error) {
	tctx, cancel := bind(c.ctx, ctx)
	defer cancel()

	targets, err := chromedp.Targets(tctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	var pages []PageInfo
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		pages = append(pages, PageInfo{ID: string(t.TargetID), URL: t.URL, Title: t.Title})
	}
	return pages, nil
}

func (c *cdpConn) Attach(ctx context.Context, info PageInfo) (Page, error) {
	tabCtx, _ := chromedp.NewContext(c.ctx, chromedp.WithTargetID(target.ID(info.ID)))
	return c.open(ctx, tabCtx)
}

func (c *cdpConn) NewPage(ctx context.Context) (Page, error) {
	tabCtx, _ := chromedp.NewContext(c.ctx)
	return c.open(ctx, tabCtx)
}

// open attaches tabCtx to its target and enables the event domains the
// collectors and navigation rely on. The tab context is never cancelled:
// cancelling it would close a tab the user may still want.
func (c *cdpConn) open(ctx context.Context, tabCtx context.Context) (Page, error) {
	// The first Run binds the target's event loop to tabCtx.
	if err := chromedp.Run(tabCtx); err != nil {
		return nil, fmt.Errorf("failed to attach to page: %w", err)
	}

	p := &cdpPage{logger: c.logger, ctx: tabCtx}
	if err := p.run(ctx,
		network.Enable(),
		cdpruntime.Enable(),
		cdppage.Enable(),
		cdppage.SetLifecycleEventsEnabled(true),
	); err != nil {
		return nil, fmt.Errorf("failed to enable page domains: %w", err)
	}

	t := chromedp.FromContext(tabCtx).Target
	p.id = t.TargetID

	c.mu.Lock()
	c.pages[p.id] = p
	c.mu.Unlock()

	c.logger.Debug("Attached to page", zap.String("target_id", string(p.id)))
	return p, nil
}

func (c *cdpConn) Close() error {
	c.cancel()
	c.allocCancel()
	return nil
}

type cdpPage struct {
	logger *zap.Logger
	ctx    context.Context
	id     target.ID
	closed atomic.Bool
}

// bind derives a context from base that carries ctx's deadline. chromedp
// actions must run on a context holding the tab, not the caller's.
func bind(base, ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, dl)
	}
	return context.WithCancel(base)
}

func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := bind(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

func (p *cdpPage) ID() string { return string(p.id) }

func (p *cdpPage) Closed() bool {
	return p.closed.Load() || p.ctx.Err() != nil
}

func (p *cdpPage) BringToFront(ctx context.Context) error {
	return p.run(ctx, cdppage.BringToFront())
}

func (p *cdpPage) SetViewport(ctx context.Context, vp Viewport) error {
	err := p.run(ctx,
		emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, vp.DeviceScaleFactor, vp.Mobile),
		emulation.SetTouchEmulationEnabled(vp.Touch),
	)
	if err != nil {
		return fmt.Errorf("failed to set viewport %dx%d: %w", vp.Width, vp.Height, err)
	}
	return nil
}

func (p *cdpPage) Subscribe(l Listeners) func() {
	lctx, cancel := context.WithCancel(p.ctx)
	requests := newRequestIndex(maxTrackedRequests)

	chromedp.ListenTarget(lctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.Request != nil {
				requests.put(e.RequestID, e.Request.URL, e.Request.Method)
			}
		case *network.EventLoadingFinished:
			requests.take(e.RequestID)
		case *network.EventLoadingFailed:
			url, method := requests.take(e.RequestID)
			if l.OnFailure != nil {
				l.OnFailure(NetworkFailure{URL: url, Method: method, ErrorText: e.ErrorText})
			}
		case *cdpruntime.EventConsoleAPICalled:
			if l.OnConsole != nil {
				l.OnConsole(ConsoleEntry{Level: string(e.Type), Text: consoleText(e.Args)})
			}
		}
	})
	return cancel
}

// consoleText renders console arguments the way DevTools prints them,
// space separated.
func consoleText(args []*cdpruntime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, consoleArg(arg))
	}
	return strings.Join(parts, " ")
}

func consoleArg(arg *cdpruntime.RemoteObject) string {
	switch {
	case arg.UnserializableValue != "":
		return string(arg.UnserializableValue)
	case len(arg.Value) > 0:
		var s string
		if json.Unmarshal([]byte(arg.Value), &s) == nil {
			return s
		}
		// Numbers, booleans and null keep their JSON spelling.
		return string(arg.Value)
	case arg.Type == cdpruntime.TypeUndefined:
		return "undefined"
	case arg.Description != "":
		return arg.Description
	}
	return fmt.Sprintf("[%s]", arg.Type)
}

// idleWatch waits for the networkIdle lifecycle event of one document load,
// identified by its frame and loader. Events seen before the load is known
// are remembered so a fast page cannot slip past.
type idleWatch struct {
	mu    sync.Mutex
	seen  map[idleKey]bool
	want  idleKey
	armed bool
	done  chan struct{}
}

type idleKey struct {
	frame  cdp.FrameID
	loader cdp.LoaderID
}

func newIdleWatch() *idleWatch {
	return &idleWatch{seen: make(map[idleKey]bool), done: make(chan struct{})}
}

func (w *idleWatch) observe(e *cdppage.EventLifecycleEvent) {
	if e.Name != "networkIdle" {
		return
	}
	k := idleKey{e.FrameID, e.LoaderID}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		w.seen[k] = true
		return
	}
	if k == w.want {
		w.fire()
	}
}

func (w *idleWatch) expect(frame cdp.FrameID, loader cdp.LoaderID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.want = idleKey{frame, loader}
	w.armed = true
	if w.seen[w.want] {
		w.fire()
	}
	w.seen = nil
}

func (w *idleWatch) fire() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	tctx, cancel := bind(p.ctx, ctx)
	defer cancel()

	watch := newIdleWatch()
	chromedp.ListenTarget(tctx, func(ev any) {
		if e, ok := ev.(*cdppage.EventLifecycleEvent); ok {
			watch.observe(e)
		}
	})

	var frameID cdp.FrameID
	var loaderID cdp.LoaderID
	err := chromedp.Run(tctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var errorText string
		var err error
		frameID, loaderID, errorText, _, err = cdppage.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		return nil
	}))
	if err != nil {
		if tctx.Err() != nil {
			return fmt.Errorf("navigation to %s timed out: %w", url, tctx.Err())
		}
		return err
	}
	if loaderID == "" {
		// Same-document navigation: no new load to wait for.
		return nil
	}

	watch.expect(frameID, loaderID)
	select {
	case <-watch.done:
		return nil
	case <-tctx.Done():
		return fmt.Errorf("timed out waiting for network idle on %s: %w", url, tctx.Err())
	}
}

func (p *cdpPage) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// queryOne returns the first node matching selector without waiting for
// one to appear.
func (p *cdpPage) queryOne(ctx context.Context, selector string) (*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNotFound, selector)
	}
	return nodes[0], nil
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	node, err := p.queryOne(ctx, selector)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.MouseClickNode(node))
}

func (p *cdpPage) Type(ctx context.Context, selector, text string) error {
	node, err := p.queryOne(ctx, selector)
	if err != nil {
		return err
	}
	if !isEditable(node) {
		return fmt.Errorf("%w: %q is <%s>", ErrNotEditable, selector, strings.ToLower(node.NodeName))
	}
	ids := []cdp.NodeID{node.NodeID}
	return p.run(ctx,
		chromedp.Focus(ids, chromedp.ByNodeID),
		chromedp.SendKeys(ids, text, chromedp.ByNodeID),
	)
}

var nonTextInputs = map[string]bool{
	"button": true, "checkbox": true, "color": true, "file": true, "hidden": true,
	"image": true, "radio": true, "range": true, "reset": true, "submit": true,
}

func isEditable(n *cdp.Node) bool {
	switch strings.ToUpper(n.NodeName) {
	case "TEXTAREA":
		return true
	case "INPUT":
		typ, _ := n.Attribute("type")
		return !nonTextInputs[strings.ToLower(typ)]
	}
	if v, ok := n.Attribute("contenteditable"); ok {
		return v == "" || strings.EqualFold(v, "true") || strings.EqualFold(v, "plaintext-only")
	}
	return false
}

func (p *cdpPage) ScrollBy(ctx context.Context, x, y float64) error {
	var ok bool
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf("(window.scrollBy(%g, %g), true)", x, y), &ok))
}

func (p *cdpPage) ScrollIntoView(ctx context.Context, selector string) error {
	node, err := p.queryOne(ctx, selector)
	if err != nil {
		return err
	}
	return p.run(ctx, dom.ScrollIntoViewIfNeeded().WithNodeID(node.NodeID))
}

func (p *cdpPage) WaitForSelector(ctx context.Context, selector string) error {
	tctx, cancel := bind(p.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		if tctx.Err() != nil {
			return fmt.Errorf("timed out waiting for %q: %w", selector, tctx.Err())
		}
		return err
	}
	return nil
}

const computedStyleJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return "null";
	const s = window.getComputedStyle(el);
	return JSON.stringify({
		color: s.color,
		backgroundColor: s.backgroundColor,
		fontFamily: s.fontFamily,
		fontSize: s.fontSize,
		display: s.display,
		position: s.position,
		margin: s.margin,
		padding: s.padding,
		width: s.width,
		height: s.height,
		zIndex: s.zIndex,
		viewportWidth: window.innerWidth,
		viewportHeight: window.innerHeight,
	});
})()`

func (p *cdpPage) ComputedStyle(ctx context.Context, selector string) (*ComputedStyle, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	var raw string
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(computedStyleJS, sel), &raw)); err != nil {
		return nil, err
	}
	var style *ComputedStyle
	if err := json.Unmarshal([]byte(raw), &style); err != nil {
		return nil, fmt.Errorf("unexpected style payload: %w", err)
	}
	return style, nil
}

// evaluateJS runs the user script through eval so statements and
// expressions both work, awaits promises, and always hands back a JSON
// string.
const evaluateJS = `(async () => {
	const v = await eval(%s);
	const s = JSON.stringify(v === undefined ? null : v);
	return s === undefined ? "null" : s;
})()`

func (p *cdpPage) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	src, err := json.Marshal(script)
	if err != nil {
		return nil, err
	}
	var raw string
	awaitPromise := func(params *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(evaluateJS, src), &raw, awaitPromise)); err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// requestIndex remembers the URL and method of in-flight requests.
type requestIndex struct {
	mu    sync.Mutex
	limit int
	reqs  map[network.RequestID][2]string
}

func newRequestIndex(limit int) *requestIndex {
	return &requestIndex{limit: limit, reqs: make(map[network.RequestID][2]string)}
}

func (r *requestIndex) put(id network.RequestID, url, method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reqs) >= r.limit {
		// Long-lived pages with streaming requests never finish some of them.
		clear(r.reqs)
	}
	r.reqs[id] = [2]string{url, method}
}

func (r *requestIndex) take(id network.RequestID) (url, method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.reqs[id]
	delete(r.reqs, id)
	return v[0], v[1]
}
