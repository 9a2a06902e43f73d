// internal/browser/affordances.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// Affordances are visual cues for a human watching the run. They never
// influence the outcome of a step.
type Affordances interface {
	Highlight(ctx context.Context, selector string) error
	ShowOverlay(ctx context.Context, state schemas.OverlayState) error
}

// NopAffordances does nothing. Used for headless runs.
type NopAffordances struct{}

func (NopAffordances) Highlight(context.Context, string) error                 { return nil }
func (NopAffordances) ShowOverlay(context.Context, schemas.OverlayState) error { return nil }

// DOMAffordances draws the cues into the page with injected script. The
// context passed in must carry a chromedp target.
type DOMAffordances struct{}

const overlayID = "__flowcheck_overlay"

const highlightScript = `(function (sel) {
  var el = document.querySelector(sel);
  if (!el) { return false; }
  var prev = el.style.outline;
  el.style.outline = '3px solid #ff4757';
  el.style.outlineOffset = '2px';
  setTimeout(function () { el.style.outline = prev; }, 600);
  return true;
})(%s)`

const overlayScript = `(function (s) {
  var box = document.getElementById(%q);
  if (!box) {
    box = document.createElement('div');
    box.id = %q;
    box.style.cssText = 'position:fixed;top:12px;right:12px;z-index:2147483647;' +
      'background:rgba(20,24,33,.88);color:#fff;font:12px/1.5 monospace;' +
      'padding:8px 12px;border-radius:6px;pointer-events:none;max-width:360px';
    (document.body || document.documentElement).appendChild(box);
  }
  box.textContent = '';
  [s.testName, 'step ' + s.step + '/' + s.total, s.status, 'retries: ' + s.retries].forEach(function (line) {
    var row = document.createElement('div');
    row.textContent = line;
    box.appendChild(row);
  });
  return true;
})(%s)`

func (DOMAffordances) Highlight(ctx context.Context, selector string) error {
	script, err := buildHighlightScript(selector)
	if err != nil {
		return err
	}
	var found bool
	return chromedp.Run(ctx, chromedp.Evaluate(script, &found))
}

func (DOMAffordances) ShowOverlay(ctx context.Context, state schemas.OverlayState) error {
	script, err := buildOverlayScript(state)
	if err != nil {
		return err
	}
	var ok bool
	return chromedp.Run(ctx, chromedp.Evaluate(script, &ok))
}

func buildHighlightScript(selector string) (string, error) {
	arg, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encoding selector: %w", err)
	}
	return fmt.Sprintf(highlightScript, arg), nil
}

func buildOverlayScript(state schemas.OverlayState) (string, error) {
	arg, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encoding overlay state: %w", err)
	}
	return fmt.Sprintf(overlayScript, overlayID, overlayID, arg), nil
}
