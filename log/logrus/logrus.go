// Package logrus adapts a *logrus.Entry to codecache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/codecache"
)

var _ codecache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every record with component=codecache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "codecache")}
}

func (l LogrusLogger) Debug(msg string, f codecache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f codecache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f codecache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f codecache.Fields) { l.with(f).Error(msg) }

// with moves an "err" error field to logrus.ErrorKey.
func (l LogrusLogger) with(f codecache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
