package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	out     io.WriteCloser
	mu      sync.Mutex
	enabled bool
)

// DefaultPath is ~/.config/patternplay/debug.log.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "patternplay", "debug.log")
}

// Enable starts debug logging to path, truncating it. An empty path means
// DefaultPath.
func Enable(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	EnableWriter(f)
	return nil
}

// EnableWriter routes debug logging to w. Any previous destination is closed.
func EnableWriter(w io.WriteCloser) {
	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		out.Close()
	}
	out = w
	enabled = true
	write("debug", "=== debug logging started ===")
}

func Disable() {
	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		out.Close()
		out = nil
	}
	enabled = false
}

func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Log writes one line tagged with category. The file is written only once
// enabled; a configured Sentry client also gets the line as a breadcrumb.
func Log(category, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "debug",
			Category: category,
			Message:  msg,
			Level:    sentry.LevelDebug,
		}, nil)
	}
	mu.Lock()
	defer mu.Unlock()
	if !enabled || out == nil {
		return
	}
	write(category, msg)
}

func write(category, msg string) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(out, "[%s] %-10s %s\n", ts, category, msg)
	if f, ok := out.(*os.File); ok {
		f.Sync() // flush immediately so we see logs even on crash
	}
}

var counters = make(map[string]int)

// LogEvery logs only every n calls for the same category and format.
func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if n > 0 && count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
