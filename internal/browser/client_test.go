// internal/browser/client_test.go
package browser

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

const browserTestTimeout = 90 * time.Second

// Only one browser at a time; each owns a debugging port.
var browserSlots = semaphore.NewWeighted(1)

func testChromeConfig() config.ChromeConfig {
	cfg := config.NewDefaultConfig().Chrome()
	cfg.LaunchSettle = 0
	return cfg
}

func findChrome(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("FLOWCHECK_CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome or Chromium binary available")
	return ""
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// newConnectedClient launches a headless browser and registers its shutdown.
func newConnectedClient(t *testing.T, baseURL string) (*Client, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	cfg := testChromeConfig()
	cfg.ExecutablePath = findChrome(t)
	cfg.DebugPort = freePort(t)

	ctx, cancel := context.WithTimeout(context.Background(), browserTestTimeout)
	t.Cleanup(cancel)
	require.NoError(t, browserSlots.Acquire(ctx, 1))
	t.Cleanup(func() { browserSlots.Release(1) })

	client := NewClient(cfg, baseURL, nil, nil, zaptest.NewLogger(t))
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { client.Disconnect(context.Background()) })
	return client, ctx
}

const fixturePage = `<!doctype html>
<html><body>
  <h1 id="title">Shop</h1>
  <input id="email" type="text">
  <button id="buy" onclick="document.getElementById('title').textContent='Bought'; fetch('/api/missing')">Buy</button>
  <button id="explode" onclick="console.error('checkout exploded')">Explode</button>
  <script>console.warn('page loaded with warnings');</script>
</body></html>`

func newFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/shop", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fixturePage)
	})
	mux.HandleFunc("/api/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient(testChromeConfig(), "", nil, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.ErrorIs(t, c.Navigate(ctx, "http://example.test", time.Second), ErrNotConnected)
	assert.ErrorIs(t, c.Click(ctx, "#a", time.Second), ErrNotConnected)
	assert.ErrorIs(t, c.Type(ctx, "#a", "x", time.Second), ErrNotConnected)
	assert.ErrorIs(t, c.Screenshot(ctx, filepath.Join(t.TempDir(), "a.png"), time.Second), ErrNotConnected)
	assert.False(t, c.ElementExists(ctx, "#a", time.Second))

	// Disconnect before Connect is a no-op.
	c.Disconnect(ctx)
}

func TestClient_ConnectRejectsBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testChromeConfig()
	cfg.DebugPort = ln.Addr().(*net.TCPAddr).Port
	c := NewClient(cfg, "", nil, nil, zaptest.NewLogger(t))

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrDebugPortInUse)
}

func TestClient_ResolveURL(t *testing.T) {
	tests := []struct {
		base, raw, want string
	}{
		{"", "/login", "/login"},
		{"http://localhost:3000", "/login", "http://localhost:3000/login"},
		{"http://localhost:3000/app/", "login?next=%2F", "http://localhost:3000/app/login?next=%2F"},
		{"http://localhost:3000/app", "/cart#items", "http://localhost:3000/app/cart#items"},
		{"http://localhost:3000", "https://other.example/x", "https://other.example/x"},
	}
	for _, tt := range tests {
		c := NewClient(testChromeConfig(), tt.base, nil, nil, nil)
		assert.Equal(t, tt.want, c.ResolveURL(tt.raw), "base=%q raw=%q", tt.base, tt.raw)
	}
}

func TestClient_Browser(t *testing.T) {
	srv := newFixtureServer(t)
	client, ctx := newConnectedClient(t, srv.URL)

	t.Run("NavigateAndInteract", func(t *testing.T) {
		require.NoError(t, client.Navigate(ctx, "/shop", 15*time.Second))
		require.NoError(t, client.Type(ctx, "#email", "buyer@example.test", 5*time.Second))
		require.NoError(t, client.Click(ctx, "#buy", 5*time.Second))

		assert.Eventually(t, func() bool {
			for _, n := range client.NetworkErrors() {
				if n.Status == http.StatusNotFound && n.Method == "GET" {
					return true
				}
			}
			return false
		}, 5*time.Second, 100*time.Millisecond)
		assert.True(t, client.ElementExists(ctx, "#title", time.Second))
	})

	t.Run("ConsoleErrorsAndClear", func(t *testing.T) {
		client.ClearLogs()
		require.NoError(t, client.Click(ctx, "#explode", 5*time.Second))
		assert.Eventually(t, func() bool {
			return len(client.ConsoleErrors()) > 0
		}, 5*time.Second, 100*time.Millisecond)
		assert.Contains(t, client.ConsoleErrors(), "checkout exploded")

		client.ClearLogs()
		assert.Empty(t, client.ConsoleErrors())
		assert.Empty(t, client.NetworkErrors())
	})

	t.Run("MissingSelector", func(t *testing.T) {
		start := time.Now()
		err := client.Click(ctx, "#does-not-exist", 300*time.Millisecond)
		require.Error(t, err)

		var notFound *schemas.ElementNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "#does-not-exist", notFound.Selector)
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.False(t, client.ElementExists(ctx, "#does-not-exist", 200*time.Millisecond))
	})

	t.Run("Screenshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "shot.png")
		require.NoError(t, client.Screenshot(ctx, path, 10*time.Second))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))
	})

	t.Run("Overlay", func(t *testing.T) {
		assert.NoError(t, client.ShowProgress(ctx, schemas.OverlayState{TestName: "Shop", Step: 1, Total: 2, Status: "Running"}))
	})
}
