// Package logging builds the prefixed *log.Logger values handed to each
// component. Output goes to stderr and, when a file is configured, to a
// size-rotated log file as well.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the shared log output.
type Options struct {
	// File is the rotating log path; empty disables file output
	File string
	// MaxSizeMB is the size at which the file is rotated
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept
	MaxBackups int
	// MaxAgeDays is how long rotated files are kept
	MaxAgeDays int
	// Quiet drops stderr output, leaving only the file
	Quiet bool
	// Stderr overrides os.Stderr; tests use it
	Stderr io.Writer
}

// Factory hands out loggers that share one output.
type Factory struct {
	out  io.Writer
	file *lumberjack.Logger
	mu   sync.Mutex
}

// New creates a Factory. Close releases the log file.
func New(opts Options) (*Factory, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	f := &Factory{}
	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, stderr)
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		f.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, f.file)
	}

	switch len(writers) {
	case 0:
		f.out = io.Discard
	case 1:
		f.out = writers[0]
	default:
		f.out = io.MultiWriter(writers...)
	}
	return f, nil
}

// Logger returns a logger whose lines start with "[component] ".
func (f *Factory) Logger(component string) *log.Logger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return log.New(f.out, prefix, log.LstdFlags)
}

// Rotate closes the current log file and starts a new one.
func (f *Factory) Rotate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Rotate()
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
