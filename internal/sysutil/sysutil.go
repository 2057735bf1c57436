// Package sysutil holds process-level helpers shared by the server binary:
// logger setup and service-manager notifications.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a level name to a zerolog level. Supported values
// (case-insensitive): trace, debug, info, warn, error, fatal, panic.
// Unknown or empty values yield info.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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

// SetupLogging sets the global level and replaces the global logger with
// one writing to w (stderr when nil). pretty switches to the human-readable
// console format for local runs.
func SetupLogging(level string, pretty bool, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	l := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = l
	return l
}

// IsTruthy reports whether an environment variable string should be considered true.
// Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// sdNotify is swapped in tests.
var sdNotify = daemon.SdNotify

// NotifyReady tells systemd (Type=notify units) that the server is
// accepting connections. Outside systemd it is a no-op.
func NotifyReady() {
	notify(daemon.SdNotifyReady)
}

// NotifyStopping tells systemd that graceful shutdown has begun.
func NotifyStopping() {
	notify(daemon.SdNotifyStopping)
}

func notify(state string) {
	sent, err := sdNotify(false, state)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("state", state).Msg("systemd notify failed")
	case sent:
		log.Debug().Str("state", state).Msg("systemd notified")
	}
}
