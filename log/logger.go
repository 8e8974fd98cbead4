// Package log wraps logrus behind a small leveled key/value interface.
//
// A process-wide root logger is configured once from the launcher; components
// receive a Logger (usually Root().WithField("module", ...)) through their
// constructors. Tests pass Discard().
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

// Config selects the output shape of a logger.
type Config struct {
	// Verbosity: 0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace.
	Verbosity int
	// Format is "text" or "json".
	Format string
	Color  bool
	// SentryDSN enables error reporting to Sentry when set.
	SentryDSN string
	Output    io.Writer
}

var root Logger = &LogWrapper{entry: logrus.NewEntry(logrus.StandardLogger())}

// Root returns the process-wide logger.
func Root() Logger { return root }

// SetRoot replaces the process-wide logger.
func SetRoot(l Logger) { root = l }

// Discard returns a logger that drops everything.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &LogWrapper{entry: logrus.NewEntry(l)}
}

// LevelFromVerbosity maps the numeric CLI verbosity onto a logrus level.
func LevelFromVerbosity(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.FatalLevel
	case v == 1:
		return logrus.ErrorLevel
	case v == 2:
		return logrus.WarnLevel
	case v == 3:
		return logrus.InfoLevel
	case v == 4:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// New builds a logger from cfg.
func New(cfg Config) (*LogWrapper, error) {
	l := logrus.New()
	l.SetLevel(LevelFromVerbosity(cfg.Verbosity))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	switch cfg.Format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   cfg.Color,
			DisableColors: !cfg.Color,
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: text, json)", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		l.AddHook(hook)
	}

	return &LogWrapper{entry: logrus.NewEntry(l)}, nil
}
