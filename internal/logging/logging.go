// Package logging builds the prefixed *log.Logger values handed to each component.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/moussadar/moussadar/internal/config"
)

// Factory hands out component loggers that share one output.
type Factory struct {
	out    io.Writer
	closer io.Closer
}

// NewFactory writes to a rotating file when cfg.File is set, otherwise to stderr.
// With a file configured, output is also copied to stderr when tee is true.
func NewFactory(cfg config.LogConfig, tee bool) (*Factory, error) {
	if cfg.File == "" {
		return &Factory{out: os.Stderr}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	var out io.Writer = rotator
	if tee {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	return &Factory{out: out, closer: rotator}, nil
}

// Writer exposes the shared output, e.g. for the HTTP access log.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// New returns a logger prefixed with "[component] ".
func (f *Factory) New(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Close flushes and closes the log file, if any.
func (f *Factory) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
