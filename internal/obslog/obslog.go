// Package obslog configures the process-wide zerolog logger.
package obslog

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs the global zerolog logger, writing newline-delimited JSON
// to stdout by default. If logPath is non-empty, logs go to that file
// (append mode) instead, so an interactive terminal isn't interleaved
// with structured log lines; if the file can't be opened, it falls back
// to stdout and prints the error to stderr. Unrecognized levels fall back
// to info.
func Init(logPath string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "obslog: failed to open log file %q: %v\n", logPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}
