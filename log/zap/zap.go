// Package zap adapts a zap logger to weave.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/weave"
)

var _ weave.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l. A nil l discards everything.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f weave.Fields) { z.logger().Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f weave.Fields)  { z.logger().Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f weave.Fields)  { z.logger().Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f weave.Fields) { z.logger().Error(msg, fields(f)...) }

func (z Logger) logger() *zap.Logger {
	if z.L == nil {
		return zap.NewNop()
	}
	return z.L
}

// fields are sorted by key so output is stable.
func fields(f weave.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
