// Package logrus adapts a logrus entry to weave.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/weave"
)

var _ weave.Logger = Logger{}

// Logger writes weave events through E. Fields become logrus fields.
type Logger struct{ E *logrus.Entry }

// New wraps l. A nil l uses logrus.StandardLogger().
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f weave.Fields) { l.entry(f).Debug(msg) }
func (l Logger) Info(msg string, f weave.Fields)  { l.entry(f).Info(msg) }
func (l Logger) Warn(msg string, f weave.Fields)  { l.entry(f).Warn(msg) }
func (l Logger) Error(msg string, f weave.Fields) { l.entry(f).Error(msg) }

func (l Logger) entry(f weave.Fields) *logrus.Entry {
	e := l.E
	if e == nil {
		e = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(f) == 0 {
		return e
	}
	// weave uses "err" for errors; logrus formats ErrorKey specially
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			k = logrus.ErrorKey
		}
		out[k] = v
	}
	return e.WithFields(out)
}
