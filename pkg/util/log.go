package util

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// LogOptions configures a logger built by NewLogger.
type LogOptions struct {
	// Level is a logrus level name ("debug", "info", "warn", ...).
	// Empty means "warn".
	Level string

	// JSON switches to the JSON formatter.
	JSON bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger builds a logger for one run. There is no package-level logger:
// callers pass the returned logger (or entries derived from it) into each
// component.
func NewLogger(opts LogOptions) (*logrus.Logger, error) {
	level := opts.Level
	if level == "" {
		level = "warn"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   !isTerminal(out),
		})
	}
	return logger, nil
}

// DiscardLogger returns a logger that drops everything. Used as the default
// when a component is constructed without one.
func DiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// WithDevice returns an entry with device context.
func WithDevice(log logrus.FieldLogger, device string) logrus.FieldLogger {
	return log.WithField("device", device)
}

// WithOperation returns an entry with operation context.
func WithOperation(log logrus.FieldLogger, operation string) logrus.FieldLogger {
	return log.WithField("operation", operation)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
