// Package logging wraps logrus the way the teacher's broker.go does: a
// constructor returns a configured *logrus.Logger, and callers attach
// structured fields per component rather than writing to a package-level
// global.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.Logger configured at the given level, logging JSON to
// stdout. An unrecognized level falls back to info, matching the teacher's
// tolerant flag parsing rather than failing hard on a bad config value.
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// ForComponent returns an Entry pre-tagged with a "component" field, the way
// broker-base, core and broker each tag their own log lines.
func ForComponent(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}
