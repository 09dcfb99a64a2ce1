/*
PURPOSE:
  Provides a structured logger for workload-bench.
  Wraps slog for consistent output.

REQUIREMENTS:
  User-specified:
  - "Sane" CLI output. Not spammy.
  - Level and format selectable from the environment.

  Implementation-discovered:
  - Server stderr is logged at debug level, so the default must stay at info.
  - Logs go to stderr; stdout carries command output (list-tools, list-servers).

ARCHITECTURE INTEGRATION:
  - Used everywhere.
  - Configured once by internal/cli before any command runs.

ERROR HANDLING:
  - Unknown level names fall back to info; unknown formats fall back to text.

IMPLEMENTATION RULES:
  - Use `log/slog`.

USAGE:
  output.Configure(os.Stderr, "debug", "json")
  output.Logger.Info("message", "key", "value")

RELATED FILES:
  - internal/config/config.go (BENCH_LOG_LEVEL, BENCH_LOG_FORMAT)
*/

package output

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var Logger *slog.Logger

func init() {
	Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// SetLogger allows overriding the default logger (e.g. for testing or config changes)
func SetLogger(l *slog.Logger) {
	Logger = l
}

// ParseLevel maps a level name onto slog. The bool is false for names it
// does not recognise.
func ParseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace", "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "fatal":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// Configure replaces Logger with a handler writing to w at the given level.
// format is "json" or "text".
func Configure(w io.Writer, level, format string) {
	lvl, ok := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	SetLogger(slog.New(handler))
	if !ok {
		Logger.Warn("unknown log level, using info", "level", level)
	}
}
