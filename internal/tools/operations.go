package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
)

func decodeArgs(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func jsonResult(v any) (*Result, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return TextResult(string(data)), nil
}

func (d *Dispatcher) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = d.cfg.ActionTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

type navigateArgs struct {
	URL string `json:"url"`
}

func (d *Dispatcher) navigate(ctx context.Context, page browser.Page, raw json.RawMessage) (*Result, error) {
	var args navigateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("url", args.URL); err != nil {
		return nil, err
	}
	ctx, cancel := d.withTimeout(ctx, d.cfg.NavigationTimeout)
	defer cancel()
	if err := page.Navigate(ctx, args.URL); err != nil {
		return nil, err
	}
	return TextResult("Navigated to " + args.URL), nil
}

func (d *Dispatcher) screenshot(ctx context.Context, page browser.Page, _ json.RawMessage) (*Result, error) {
	ctx, cancel := d.withTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()
	data, err := page.Screenshot(ctx, d.cfg.ScreenshotQuality)
	if err != nil {
		return nil, err
	}
	data, err = fitJPEG(data, d.cfg.ScreenshotMaxDimension, d.cfg.ScreenshotQuality)
	if err != nil {
		return nil, err
	}
	return ImageResult(data, "image/jpeg"), nil
}

type selectorArgs struct {
	Selector string `json:"selector"`
}

func (d *Dispatcher) click(ctx context.Context, page browser.Page, raw json.RawMessage) (*Result, error) {
	var args selectorArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("selector", args.Selector); err != nil {
		return nil, err
	}
	ctx, cancel := d.withTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()
	if err := page.Click(ctx, args.Selector); err != nil {
		return nil, err
	}
	return TextResult("Clicked " + args.Selector), nil
}

type typeArgs struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

func (d *Dispatcher) typeText(ctx context.Context, page browser.Page, raw json.RawMessage) (*Result, error) {
	var args typeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("selector", args.Selector); err != nil {
		return nil, err
	}
	ctx, cancel := d.withTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()
	if err := page.Type(ctx, args.Selector, args.Text); err != nil {
		return nil, err
	}
	return TextResult("Typed into " + args.Selector), nil
}

type scrollArgs struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Selector string  `json:"selector"`
}

func (d *Dispatcher) scroll(ctx context.Context, page browser.Page, raw json.RawMessage) (*Result, error) {
	var args scrollArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	ctx, cancel := d.withTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()
	if args.Selector != "" {
		if err := page.ScrollIntoView(ctx, args.Selector); err != nil {
			return nil, err
		}
		return TextResult("Scrolled to " + args.Selector), nil
	}
	if err := page.ScrollBy(ctx, args.X, args.Y); err != nil {
		return nil, err
	}
	return TextResult(fmt.Sprintf("Scrolled by (%g, %g)", args.X, args.Y)), nil
}

type waitArgs struct {
	Selector string `json:"selector"`
	// Timeout is in milliseconds.
	Timeout float64 `json:"timeout"`
}

func (d *Dispatcher) waitForSelector(ctx context.Context, page browser.Page, raw json.RawMessage) (*Result, error) {
	var args waitArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("selector", args.Selector); err != nil {
		return nil, err
	}
	if args.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative")
	}
	timeout := d.cfg.WaitTimeout
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout * float64(time.Millisecond))
	}
	ctx, cancel := d.withTimeout(ctx, timeout)
	defer cancel()
	if err := page.WaitForSelector(ctx, args.Selector); err != nil {
		return nil, err
	}
	return TextResult("Found " + args.Selector), nil
}

func (d *Dispatcher) computedStyles(ctx context.Context, page browser.Page, raw json.RawMessage) (*Result, error) {
	var args selectorArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("selector", args.Selector); err != nil {
		return nil, err
	}
	ctx, cancel := d.withTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()
	style, err := page.ComputedStyle(ctx, args.Selector)
	if errors.Is(err, browser.ErrNotFound) || (err == nil && style == nil) {
		return TextResult("Element not found: " + args.Selector), nil
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(style)
}

func (d *Dispatcher) networkErrors(ctx context.Context, _ browser.Page, _ json.RawMessage) (*Result, error) {
	failures := d.session.DrainFailures()
	if len(failures) == 0 {
		return TextResult("No network errors recorded"), nil
	}
	return jsonResult(failures)
}

type mobileArgs struct {
	Enable bool `json:"enable"`
}

func (d *Dispatcher) mobileMode(ctx context.Context, _ browser.Page, raw json.RawMessage) (*Result, error) {
	var args mobileArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	ctx, cancel := d.withTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()
	vp, err := d.session.SetMobile(ctx, args.Enable)
	if err != nil {
		return nil, err
	}
	state := "disabled"
	if args.Enable {
		state = "enabled"
	}
	return TextResult(fmt.Sprintf("Mobile mode %s (%dx%d)", state, vp.Width, vp.Height)), nil
}

type evaluateArgs struct {
	Script string `json:"script"`
}

func (d *Dispatcher) evaluate(ctx context.Context, page browser.Page, raw json.RawMessage) (*Result, error) {
	var args evaluateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("script", args.Script); err != nil {
		return nil, err
	}
	ctx, cancel := d.withTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()
	value, err := page.Evaluate(ctx, args.Script)
	if err != nil {
		return nil, err
	}
	return TextResult(string(value)), nil
}

func (d *Dispatcher) consoleLogs(ctx context.Context, _ browser.Page, _ json.RawMessage) (*Result, error) {
	entries := d.session.ConsoleEntries()
	if len(entries) == 0 {
		return TextResult("No console logs recorded"), nil
	}
	return jsonResult(entries)
}
