// internal/browser/allocator.go
package browser

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

// ErrDebugPortInUse means another process already listens on the fixed
// debugging port. Only one run may drive a browser per host.
var ErrDebugPortInUse = errors.New("debug port already in use")

// AllocatorOptions builds the exec-allocator options for cfg. The browser is
// always bound to cfg.DebugPort.
func AllocatorOptions(cfg config.ChromeConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("hide-scrollbars", cfg.Headless),
		chromedp.Flag("mute-audio", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("auto-open-devtools-for-tabs", cfg.Devtools && !cfg.Headless),
		chromedp.Flag("remote-debugging-port", strconv.Itoa(cfg.DebugPort)),
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
	)

	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// ensurePortFree fails when something is already listening on port.
func ensurePortFree(port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("%w: 127.0.0.1:%d (is another run active?): %v", ErrDebugPortInUse, port, err)
	}
	return ln.Close()
}
