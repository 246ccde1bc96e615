// Package logger configures the process-wide log15 root logger.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/inconshreveable/log15"
)

// Init installs the root handler. Records below level are dropped. When
// path is set, records go to that file in logfmt, otherwise to stderr.
func Init(level, path string) error {
	lvl, err := log15.LvlFromString(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	var h log15.Handler
	if path != "" {
		h, err = log15.FileHandler(path, log15.LogfmtFormat())
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
	} else {
		h = log15.StreamHandler(os.Stderr, log15.TerminalFormat())
	}

	log15.Root().SetHandler(log15.LvlFilterHandler(lvl, h))
	return nil
}

// SetOutput sends every record at or above level to w in logfmt.
func SetOutput(w io.Writer, level log15.Lvl) {
	log15.Root().SetHandler(log15.LvlFilterHandler(level, log15.StreamHandler(w, log15.LogfmtFormat())))
}

// New returns a logger carrying ctx on every record.
func New(ctx ...interface{}) log15.Logger {
	return log15.Root().New(ctx...)
}

// Discard returns a logger that drops everything.
func Discard() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}
