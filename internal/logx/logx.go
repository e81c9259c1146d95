// Package logx centralizes the engine's structured logging on top of
// logrus, the logging library the rest of the retrieved simulator corpus
// reaches for (inference-sim's frontend in particular).
package logx

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a text-formatted logger writing to stderr at the given
// level name ("debug", "info", "warn", "error"); an unrecognized level
// falls back to info.
func New(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return l
}
