// Package logging builds the process logger: a rotating file, optionally teed to stderr
// and to an in-memory tail for the dashboard.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const Flags = log.LstdFlags | log.Lmicroseconds

type Options struct {
	File       string // empty disables the file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Stderr     bool
	Extra      []io.Writer
}

// New returns the logger and a Closer for the rotating file. With no destinations at all
// the logger discards its output.
func New(opts Options) (*log.Logger, io.Closer) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, rotating)
		closer = rotating
	}
	if opts.Stderr {
		writers = append(writers, os.Stderr)
	}
	writers = append(writers, opts.Extra...)

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}
	return log.New(out, "", Flags), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
