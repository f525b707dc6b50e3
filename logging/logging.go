// Package logging wraps zerolog with the one piece of formatting the
// engine's wire trace needs: a `[sec.ms] prefix arrow message` line
// matching the original implementation's trace output byte-for-byte,
// handed to zerolog as a pre-formatted message so the library still
// owns level filtering and writer selection (grounded on
// thiagojdb-adoctl/pkg/logger).
package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Direction labels the two arrows the original trace format uses:
// "->" for client-originated traffic (requests), "<=" for
// server-originated traffic (events).
type Direction string

const (
	DirClientToServer Direction = "->"
	DirServerToClient Direction = "<="
)

// Sink is the core.Logger core.State consumes (via Logf); it also
// implements core.Tracer through Trace, the wire-trace entry point.
type Sink struct {
	log    zerolog.Logger
	prefix string
}

// New builds a Sink writing to stdout with the given prefix (e.g. a
// per-client label) and level. Level follows zerolog's names:
// "trace", "debug", "info", "warn", "error", "fatal", "panic".
func New(prefix, level string) *Sink {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	l := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(parseLevel(level))
	return &Sink{log: l, prefix: prefix}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logf implements core.Logger: a plain diagnostic line, not a wire
// trace entry.
func (s *Sink) Logf(format string, args ...any) {
	s.log.Debug().Msg(fmt.Sprintf(format, args...))
}

// Trace emits one wire-format trace line: the compact
// "[sec.ms] prefix endpoint arrow interface#id.message(...)" form
// spec §6 and the original implementation both use, at zerolog's
// Trace level so it's silent unless explicitly enabled.
func (s *Sink) Trace(endpoint string, dir Direction, iface string, objectID uint32, message string, args string) {
	now := time.Now()
	sec := now.Unix()
	millis := now.Nanosecond() / 1_000_000
	line := fmt.Sprintf("[%7d.%03d] %s%-12s %s %s#%d.%s(%s)",
		sec, millis, s.prefix, endpoint, dir, iface, objectID, message, args)
	s.log.Trace().Msg(line)
}

// WithPrefix returns a Sink sharing the same zerolog logger but
// labeled for a different endpoint — e.g. one Sink per accepted
// client connection, matching the original implementation's
// per-client log_prefix.
func (s *Sink) WithPrefix(prefix string) *Sink {
	return &Sink{log: s.log, prefix: prefix}
}
