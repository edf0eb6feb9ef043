// Package observability wires zerolog and Prometheus into the spawn service
// and its HTTP surface.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel selects the minimum log level.
const EnvLogLevel = "SPAWN_LOG_LEVEL"

// NewLogger builds the process logger tagged with app. A nil w selects a
// console writer on stdout.
func NewLogger(app string, level zerolog.Level, w io.Writer) zerolog.Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a level name to a zerolog level. The bool is false for
// empty or unknown names, in which case info is returned.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// ServiceLogger adapts a zerolog.Logger to the key/value logging surface of
// the lifecycle service.
type ServiceLogger struct {
	zl zerolog.Logger
}

// NewServiceLogger wraps zl.
func NewServiceLogger(zl zerolog.Logger) ServiceLogger {
	return ServiceLogger{zl: zl}
}

func (l ServiceLogger) Debug(msg string, args ...any) { emit(l.zl.Debug(), msg, args) }
func (l ServiceLogger) Info(msg string, args ...any)  { emit(l.zl.Info(), msg, args) }
func (l ServiceLogger) Warn(msg string, args ...any)  { emit(l.zl.Warn(), msg, args) }
func (l ServiceLogger) Error(msg string, args ...any) { emit(l.zl.Error(), msg, args) }

func emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	if len(args) > 0 {
		event = event.Fields(args)
	}
	event.Msg(msg)
}
