// Package output fans rendered lines out to the configured sinks: stdout,
// per-chat log files, or a unified log file.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const unifiedName = "messages"

// Options configures a Router. Stdout may be nil to disable console output.
type Options struct {
	Stdout        io.Writer
	ToFile        bool
	Dir           string
	SeparateFiles bool
	Logger        *slog.Logger
}

// Router delivers each rendered line to zero, one or two sinks. Sink errors
// are logged and swallowed: a failed write must never abort the event that
// produced the line.
type Router struct {
	opts  Options
	mu    sync.Mutex
	sinks map[string]io.WriteCloser
}

// New creates a Router. File sinks are created lazily on first write, with
// parent directories created on demand.
func New(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		opts:  opts,
		sinks: make(map[string]io.WriteCloser),
	}
}

// Write routes one rendered line. A nil chatID goes to the unknown-chat file
// when separate files are enabled.
func (r *Router) Write(chatID *int64, line string) {
	if r.opts.Stdout != nil {
		if _, err := fmt.Fprintln(r.opts.Stdout, line); err != nil {
			r.opts.Logger.Error("stdout write failed", "error", err)
		}
	}
	if !r.opts.ToFile {
		return
	}
	path := r.filename(chatID)
	if _, err := io.WriteString(r.sink(path), line+"\n"); err != nil {
		r.opts.Logger.Error("log file write failed", "path", path, "error", err)
	}
}

// filename maps a chat id to its log file path.
func (r *Router) filename(chatID *int64) string {
	if !r.opts.SeparateFiles {
		return filepath.Join(r.opts.Dir, unifiedName+".log")
	}
	if chatID == nil {
		return filepath.Join(r.opts.Dir, "unknown.log")
	}
	return filepath.Join(r.opts.Dir, fmt.Sprintf("%d.log", *chatID))
}

// sink returns the cached rotating writer for path, creating it on first use.
func (r *Router) sink(path string) io.WriteCloser {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.sinks[path]; ok {
		return w
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    64, // megabytes
		MaxBackups: 3,
	}
	r.sinks[path] = w
	return w
}

// Close closes all open file sinks.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for path, w := range r.sinks {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", path, err)
		}
	}
	r.sinks = make(map[string]io.WriteCloser)
	return firstErr
}
