// internal/browser/recorder.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// Recorder passively collects diagnostic signal from one page: console
// errors and warnings, HTTP responses with status >= 400, and uncaught
// exceptions. It is owned by a Client and cleared between attempts.
type Recorder struct {
	logger *zap.Logger
	now    func() time.Time

	mu         sync.RWMutex
	console    []schemas.ConsoleLog
	network    []schemas.NetworkError
	exceptions []schemas.PageException
	methods    map[network.RequestID]string
}

// NewRecorder creates an empty recorder.
func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		logger:  logger.Named("recorder"),
		now:     time.Now,
		methods: make(map[network.RequestID]string),
	}
}

// Attach registers the listeners on the page behind ctx and enables the CDP
// domains they need. Listeners live as long as ctx.
func (r *Recorder) Attach(ctx context.Context) error {
	chromedp.ListenTarget(ctx, r.handleEvent)
	if err := chromedp.Run(ctx, network.Enable(), runtime.Enable(), log.Enable()); err != nil {
		return fmt.Errorf("enabling diagnostic domains: %w", err)
	}
	r.logger.Debug("Recorder attached.")
	return nil
}

func (r *Recorder) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		r.handleRequestWillBeSent(e)
	case *network.EventResponseReceived:
		r.handleResponseReceived(e)
	case *network.EventLoadingFailed:
		r.forget(e.RequestID)
	case *runtime.EventConsoleAPICalled:
		r.handleConsoleAPICalled(e)
	case *log.EventEntryAdded:
		r.handleLogEntryAdded(e)
	case *runtime.EventExceptionThrown:
		r.handleExceptionThrown(e)
	}
}

func (r *Recorder) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	if e.Request == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[e.RequestID] = e.Request.Method
}

func (r *Recorder) forget(id network.RequestID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.methods, id)
}

func (r *Recorder) handleResponseReceived(e *network.EventResponseReceived) {
	r.mu.Lock()
	defer r.mu.Unlock()

	method := r.methods[e.RequestID]
	delete(r.methods, e.RequestID)
	if e.Response == nil || e.Response.Status < 400 {
		return
	}
	if method == "" {
		method = "GET"
	}
	r.network = append(r.network, schemas.NetworkError{
		URL:        e.Response.URL,
		Method:     method,
		Status:     int(e.Response.Status),
		StatusText: e.Response.StatusText,
		Timestamp:  r.now(),
	})
}

func (r *Recorder) handleConsoleAPICalled(e *runtime.EventConsoleAPICalled) {
	level, ok := consoleLevel(string(e.Type))
	if !ok {
		return
	}

	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		if arg == nil {
			continue
		}
		var val interface{}
		switch {
		case arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil:
			parts = append(parts, fmt.Sprintf("%v", val))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, fmt.Sprintf("[%s]", arg.Type))
		}
	}

	r.appendConsole(level, strings.Join(parts, " "), e.Timestamp)
}

func (r *Recorder) handleLogEntryAdded(e *log.EventEntryAdded) {
	if e.Entry == nil {
		return
	}
	level, ok := consoleLevel(string(e.Entry.Level))
	if !ok {
		return
	}
	r.appendConsole(level, e.Entry.Text, e.Entry.Timestamp)
}

func (r *Recorder) handleExceptionThrown(e *runtime.EventExceptionThrown) {
	d := e.ExceptionDetails
	if d == nil {
		return
	}

	message := d.Text
	stack := ""
	if d.Exception != nil && d.Exception.Description != "" {
		// V8 descriptions are "Name: message\n    at frame..." for Error objects.
		desc := d.Exception.Description
		first, _, hasFrames := strings.Cut(desc, "\n")
		message = first
		if hasFrames {
			stack = desc
		}
	}
	if stack == "" && d.StackTrace != nil {
		var b strings.Builder
		b.WriteString(message)
		for _, f := range d.StackTrace.CallFrames {
			name := f.FunctionName
			if name == "" {
				name = "<anonymous>"
			}
			fmt.Fprintf(&b, "\n    at %s (%s:%d:%d)", name, f.URL, f.LineNumber+1, f.ColumnNumber+1)
		}
		stack = b.String()
	}

	ts := timestampOf(e.Timestamp, r.now)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceptions = append(r.exceptions, schemas.PageException{Message: message, Stack: stack, Timestamp: ts})
	r.console = append(r.console, schemas.ConsoleLog{Level: "error", Text: message, Timestamp: ts})
}

func (r *Recorder) appendConsole(level, text string, ts *runtime.Timestamp) {
	entry := schemas.ConsoleLog{Level: level, Text: text, Timestamp: timestampOf(ts, r.now)}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.console = append(r.console, entry)
}

// consoleLevel keeps error and warning messages and normalizes their level.
func consoleLevel(t string) (string, bool) {
	switch strings.ToLower(t) {
	case "error", "assert":
		return "error", true
	case "warning", "warn":
		return "warning", true
	}
	return "", false
}

func timestampOf(ts *runtime.Timestamp, now func() time.Time) time.Time {
	if ts == nil {
		return now()
	}
	return ts.Time()
}

// -- Snapshots --

// ConsoleLogs returns a copy of the recorded console entries.
func (r *Recorder) ConsoleLogs() []schemas.ConsoleLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.ConsoleLog, len(r.console))
	copy(out, r.console)
	return out
}

// ConsoleErrors returns the text of every error-level console entry.
func (r *Recorder) ConsoleErrors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.console))
	for _, c := range r.console {
		if c.Level == "error" {
			out = append(out, c.Text)
		}
	}
	return out
}

// NetworkErrors returns a copy of the recorded failed responses.
func (r *Recorder) NetworkErrors() []schemas.NetworkError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.NetworkError, len(r.network))
	copy(out, r.network)
	return out
}

// Exceptions returns a copy of the recorded page exceptions.
func (r *Recorder) Exceptions() []schemas.PageException {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.PageException, len(r.exceptions))
	copy(out, r.exceptions)
	return out
}

// Clear drops everything recorded so far. In-flight request methods are
// kept so responses that arrive after a clear are still attributed.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.console = nil
	r.network = nil
	r.exceptions = nil
}
