// internal/browser/client.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

const (
	// clickSettle lets navigation or re-render begin after a click.
	clickSettle = 500 * time.Millisecond

	probeTimeout      = 10 * time.Second
	affordanceTimeout = 2 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ErrNotConnected is returned by operations issued before Connect.
var ErrNotConnected = errors.New("browser is not connected")

// Client owns exactly one browser process and one page.
type Client struct {
	cfg         config.ChromeConfig
	baseURL     string
	recorder    *Recorder
	affordances Affordances
	logger      *zap.Logger

	mu          sync.Mutex
	connected   bool
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// NewClient creates a disconnected client. A nil recorder gets a fresh one;
// nil affordances are chosen from cfg (none when headless or disabled).
func NewClient(cfg config.ChromeConfig, baseURL string, recorder *Recorder, affordances Affordances, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")
	if recorder == nil {
		recorder = NewRecorder(logger)
	}
	if affordances == nil {
		if cfg.Headless || !cfg.Overlay {
			affordances = NopAffordances{}
		} else {
			affordances = DOMAffordances{}
		}
	}
	return &Client{
		cfg:         cfg,
		baseURL:     baseURL,
		recorder:    recorder,
		affordances: affordances,
		logger:      logger,
	}
}

// Connect launches the browser on the fixed debugging port, waits for it to
// settle, attaches the recorder and verifies the page responds.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	if err := ensurePortFree(c.cfg.DebugPort); err != nil {
		return err
	}

	// The browser must outlive any single caller context; Disconnect ends it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(c.cfg)...)
	sugar := c.logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(sugar.Debugf), chromedp.WithErrorf(sugar.Debugf))
	abort := func() {
		tabCancel()
		allocCancel()
	}

	c.logger.Info("Launching browser.",
		zap.Bool("headless", c.cfg.Headless),
		zap.Int("debug_port", c.cfg.DebugPort))
	if err := chromedp.Run(tabCtx); err != nil {
		abort()
		return fmt.Errorf("launching browser: %w", err)
	}

	if err := sleep(ctx, c.cfg.LaunchSettle); err != nil {
		abort()
		return err
	}

	if err := c.recorder.Attach(tabCtx); err != nil {
		abort()
		return fmt.Errorf("attaching to page: %w", err)
	}

	probeCtx, cancel := operationContext(tabCtx, ctx, probeTimeout)
	defer cancel()
	var state string
	err := chromedp.Run(probeCtx,
		chromedp.EmulateViewport(int64(c.cfg.Viewport.Width), int64(c.cfg.Viewport.Height)),
		chromedp.Evaluate(`document.readyState`, &state),
	)
	if err != nil {
		abort()
		return fmt.Errorf("browser liveness check failed: %w", err)
	}

	c.tabCtx, c.tabCancel, c.allocCancel = tabCtx, tabCancel, allocCancel
	c.connected = true
	c.logger.Info("Browser connected.")
	return nil
}

// Disconnect closes the page, detaches and terminates the browser. Every
// failure is logged and shutdown continues.
func (c *Client) Disconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false

	closeCtx, cancel := operationContext(c.tabCtx, context.WithoutCancel(ctx), shutdownTimeout)
	if err := chromedp.Run(closeCtx, page.Close()); err != nil {
		c.logger.Warn("Failed to close page.", zap.Error(err))
	}
	cancel()

	if err := chromedp.Cancel(c.tabCtx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("Failed to detach from browser.", zap.Error(err))
	}
	c.tabCancel()

	c.allocCancel()
	c.logger.Info("Browser disconnected.")
}

func (c *Client) target() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}
	return c.tabCtx, nil
}

// ResolveURL resolves a relative path against the configured base URL.
func (c *Client) ResolveURL(raw string) string {
	if c.baseURL == "" {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() {
		return raw
	}
	base, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/")
	if err != nil {
		return raw
	}
	return base.ResolveReference(&url.URL{
		Path:     strings.TrimPrefix(ref.Path, "/"),
		RawQuery: ref.RawQuery,
		Fragment: ref.Fragment,
	}).String()
}

// Navigate loads rawURL and waits for DOM ready and then the full load.
func (c *Client) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	tab, err := c.target()
	if err != nil {
		return err
	}
	target := c.ResolveURL(rawURL)
	opCtx, cancel := operationContext(tab, ctx, timeout)
	defer cancel()

	var complete bool
	err = chromedp.Run(opCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Poll(`document.readyState === "complete"`, &complete),
	)
	if err != nil {
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out after %s: %w", target, timeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", target, err)
	}
	return nil
}

// waitForSelector waits for selector to exist in the DOM.
func (c *Client) waitForSelector(ctx context.Context, tab context.Context, selector string, timeout time.Duration) error {
	opCtx, cancel := operationContext(tab, ctx, timeout)
	defer cancel()

	err := chromedp.Run(opCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return &schemas.ElementNotFoundError{Selector: selector, Timeout: timeout, Err: err}
	}
	return fmt.Errorf("waiting for selector %q: %w", selector, err)
}

// Click waits for selector, flashes it, pauses for slowMo, clicks it and
// then waits a short settle delay.
func (c *Client) Click(ctx context.Context, selector string, timeout time.Duration) error {
	tab, err := c.target()
	if err != nil {
		return err
	}
	if err := c.waitForSelector(ctx, tab, selector, timeout); err != nil {
		return err
	}

	c.highlight(ctx, tab, selector)
	if err := sleep(ctx, c.cfg.SlowMo); err != nil {
		return err
	}

	opCtx, cancel := operationContext(tab, ctx, timeout)
	defer cancel()
	if err := chromedp.Run(opCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click action failed for selector '%s': %w", selector, err)
	}
	return sleep(ctx, clickSettle)
}

// Type waits for selector and types text into it.
func (c *Client) Type(ctx context.Context, selector, text string, timeout time.Duration) error {
	tab, err := c.target()
	if err != nil {
		return err
	}
	if err := c.waitForSelector(ctx, tab, selector, timeout); err != nil {
		return err
	}
	if err := sleep(ctx, c.cfg.SlowMo); err != nil {
		return err
	}

	opCtx, cancel := operationContext(tab, ctx, timeout)
	defer cancel()
	if err := chromedp.Run(opCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type action failed for selector '%s': %w", selector, err)
	}
	return nil
}

// WaitForSelector waits for selector to appear. A timeout yields
// *schemas.ElementNotFoundError.
func (c *Client) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	tab, err := c.target()
	if err != nil {
		return err
	}
	return c.waitForSelector(ctx, tab, selector, timeout)
}

// ElementExists reports whether selector appears within timeout.
func (c *Client) ElementExists(ctx context.Context, selector string, timeout time.Duration) bool {
	tab, err := c.target()
	if err != nil {
		return false
	}
	return c.waitForSelector(ctx, tab, selector, timeout) == nil
}

// Screenshot writes a PNG of the full page to path. If the full-page capture
// fails, typically mid-navigation, the visible viewport is captured instead.
func (c *Client) Screenshot(ctx context.Context, path string, timeout time.Duration) error {
	tab, err := c.target()
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = schemas.DefaultScreenshotTimeout
	}
	opCtx, cancel := operationContext(tab, ctx, timeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(opCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		c.logger.Debug("Full page screenshot failed, capturing viewport.", zap.Error(err))
		if err := chromedp.Run(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
			return fmt.Errorf("capturing screenshot: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("writing screenshot %s: %w", path, err)
	}
	return nil
}

// Wait pauses unconditionally.
func (c *Client) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// ShowProgress refreshes the operator overlay.
func (c *Client) ShowProgress(ctx context.Context, state schemas.OverlayState) error {
	tab, err := c.target()
	if err != nil {
		return err
	}
	opCtx, cancel := operationContext(tab, ctx, affordanceTimeout)
	defer cancel()
	return c.affordances.ShowOverlay(opCtx, state)
}

func (c *Client) highlight(ctx context.Context, tab context.Context, selector string) {
	opCtx, cancel := operationContext(tab, ctx, affordanceTimeout)
	defer cancel()
	if err := c.affordances.Highlight(opCtx, selector); err != nil {
		c.logger.Debug("Highlight failed.", zap.String("selector", selector), zap.Error(err))
	}
}

// -- Diagnostics --

func (c *Client) ConsoleLogs() []schemas.ConsoleLog     { return c.recorder.ConsoleLogs() }
func (c *Client) ConsoleErrors() []string               { return c.recorder.ConsoleErrors() }
func (c *Client) NetworkErrors() []schemas.NetworkError { return c.recorder.NetworkErrors() }
func (c *Client) Exceptions() []schemas.PageException   { return c.recorder.Exceptions() }

// ClearLogs resets the diagnostics so they reflect only what follows.
func (c *Client) ClearLogs() { c.recorder.Clear() }
