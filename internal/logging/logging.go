// Package logging builds the logrus logger shared by the allinone binaries.
//
// The logger is constructed once at process start and handed to each
// component; nothing in this module logs through a package-level logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Options configures the logger sinks.
type Options struct {
	// Level is a logrus level name (debug, info, warn, error).
	Level string

	// File, when set, receives every log line. It is created if missing and
	// always appended to.
	File string

	// Stderr also writes log lines to stderr.
	Stderr bool
}

// Init builds a logger for opts. The returned flush func closes the log file
// and must be called before the process exits.
func Init(opts Options) (*logrus.Logger, func() error, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var (
		writers []io.Writer
		file    *os.File
	)
	if opts.Stderr {
		writers = append(writers, os.Stderr)
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		file = f
		writers = append(writers, f)
	}

	logger := New(io.MultiWriter(writers...), level)

	flush := func() error {
		if file == nil {
			return nil
		}
		if err := file.Sync(); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to sync log file: %w", err)
		}
		return file.Close()
	}

	return logger, flush, nil
}

// New returns a logger writing text lines to w.
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableColors:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
		QuoteEmptyFields: true,
	})
	return logger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *logrus.Logger {
	return New(io.Discard, logrus.PanicLevel)
}
