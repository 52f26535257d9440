package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/polycache"
)

var _ polycache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f polycache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f polycache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f polycache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f polycache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}

// Events logs cache events through l with component=polycache.
func Events(l *logrus.Logger) polycache.Listener {
	return polycache.LogEvents(LogrusLogger{E: l.WithField("component", "polycache")})
}
