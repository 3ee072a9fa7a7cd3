package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ConsoleKey marks an entry that should also reach the operator's terminal.
// Everything else goes to the log file only.
const ConsoleKey = "console"

const timestampFormat = "2006-01-02 15:04:05"

type Options struct {
	File    string    // append target; empty means stderr only
	Level   string    // logrus level name, default info
	Console io.Writer // receives console-flagged messages; default os.Stdout
}

// New builds the process logger. The returned closer closes the log file.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	})

	level := logrus.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		lv, err := logrus.ParseLevel(s)
		if err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", s, err)
		}
		level = lv
	}
	log.SetLevel(level)

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(opts.File); path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		closer = f
	} else {
		log.SetOutput(os.Stderr)
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	log.AddHook(&consoleHook{w: console})
	return log, closer, nil
}

// Console flags an entry for terminal display.
func Console(l logrus.FieldLogger) *logrus.Entry {
	return l.WithField(ConsoleKey, true)
}

type consoleHook struct {
	mu sync.Mutex
	w  io.Writer
}

func (h *consoleHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *consoleHook) Fire(e *logrus.Entry) error {
	if v, ok := e.Data[ConsoleKey].(bool); !ok || !v {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, e.Message)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
