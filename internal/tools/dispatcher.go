// Package tools maps tool calls onto browser operations and turns every
// outcome into a Result.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
	"github.com/frontend-sniper/frontend-sniper/internal/config"
	"github.com/frontend-sniper/frontend-sniper/internal/session"
)

// Session is what the dispatcher needs from the session manager.
type Session interface {
	Acquire(ctx context.Context) (browser.Page, error)
	SetMobile(ctx context.Context, enable bool) (browser.Viewport, error)
	DrainFailures() []browser.NetworkFailure
	ConsoleEntries() []browser.ConsoleEntry
}

type operation func(ctx context.Context, page browser.Page, args json.RawMessage) (*Result, error)

// Dispatcher runs tool calls one at a time against the session's page.
type Dispatcher struct {
	logger     *zap.Logger
	session    Session
	cfg        config.BrowserConfig
	normalizer *Normalizer
	onFatal    func(error)
	ops        map[string]operation

	mu sync.Mutex
}

// NewDispatcher wires the operation set. onFatal, when set, is called with
// errors that mean the browser cannot be reached at all.
func NewDispatcher(logger *zap.Logger, sess Session, cfg config.BrowserConfig, normalizer *Normalizer, onFatal func(error)) *Dispatcher {
	d := &Dispatcher{
		logger:     logger.Named("dispatch"),
		session:    sess,
		cfg:        cfg,
		normalizer: normalizer,
		onFatal:    onFatal,
	}
	d.ops = map[string]operation{
		"navigate":            d.navigate,
		"screenshot":          d.screenshot,
		"click":               d.click,
		"type":                d.typeText,
		"scroll":              d.scroll,
		"wait_for_selector":   d.waitForSelector,
		"get_computed_styles": d.computedStyles,
		"get_network_errors":  d.networkErrors,
		"mobile_mode":         d.mobileMode,
		"evaluate":            d.evaluate,
		"get_console_logs":    d.consoleLogs,
	}
	return d
}

// Dispatch runs the tool named rawName. It never returns nil and never
// panics; failures come back as error results.
//
// The caller's cancellation is ignored: once started, an operation runs
// until it finishes or hits its own timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, rawName string, args json.RawMessage) (res *Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	name := d.normalizer.Normalize(rawName)
	logger := d.logger.With(
		zap.String("call_id", uuid.NewString()),
		zap.String("tool", name),
	)
	if name != rawName {
		logger = logger.With(zap.String("raw_name", rawName))
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Dispatch panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = ErrorResult(name, fmt.Errorf("panic: %v", r))
		}
		logger.Debug("Tool call finished",
			zap.Bool("is_error", res.IsError),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	page, err := d.session.Acquire(ctx)
	if err != nil {
		logger.Error("Failed to acquire page", zap.Error(err))
		if errors.Is(err, session.ErrFatal) && d.onFatal != nil {
			d.onFatal(err)
		}
		return ErrorResult(name, err)
	}

	op, ok := d.ops[name]
	if !ok {
		logger.Warn("Unknown tool")
		return UnknownToolResult(name)
	}
	return d.invoke(ctx, logger, name, op, page, args)
}

// invoke is the single error boundary around operations.
func (d *Dispatcher) invoke(ctx context.Context, logger *zap.Logger, name string, op operation, page browser.Page, args json.RawMessage) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Tool panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = ErrorResult(name, fmt.Errorf("panic: %v", r))
		}
	}()

	res, err := op(ctx, page, args)
	if err != nil {
		logger.Warn("Tool failed", zap.Error(err))
		return ErrorResult(name, err)
	}
	if res == nil || len(res.Content) == 0 {
		return TextResult(name + " completed")
	}
	return res
}

// Has reports whether name, after normalization, names an operation.
func (d *Dispatcher) Has(name string) bool {
	_, ok := d.ops[d.normalizer.Normalize(name)]
	return ok
}

// Normalize maps a routed tool name to an operation name.
func (d *Dispatcher) Normalize(name string) string {
	return d.normalizer.Normalize(name)
}
