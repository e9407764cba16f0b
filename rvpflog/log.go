// Package rvpflog wraps logrus behind a key/value structured logging
// call shape: Info(msg, "field", value, "field2", value2).
package rvpflog

import (
	"github.com/sirupsen/logrus"
)

// Logger is a structured, key/value logger scoped to one subsystem.
type Logger struct {
	entry *logrus.Entry
}

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// New returns a Logger tagged with subsystem (e.g. "store", "processor").
func New(subsystem string) *Logger {
	return &Logger{entry: base.WithField("subsystem", subsystem)}
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

// Info logs msg at info level with alternating key/value pairs in kv.
func (l *Logger) Info(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Info(msg)
}

// Warn logs msg at warn level with alternating key/value pairs in kv.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Warn(msg)
}

// Error logs msg at error level with alternating key/value pairs in kv.
func (l *Logger) Error(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Error(msg)
}

// Debug logs msg at debug level with alternating key/value pairs in kv.
func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Debug(msg)
}

// SetLevel adjusts the package-wide minimum logged level, e.g. "debug".
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}
