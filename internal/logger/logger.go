package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus logger
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a JSON logger tagged with the service name
func New(serviceName, level string) *Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(os.Stdout)

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Logger: log, service: serviceName}
}

// Discard returns a logger that writes nothing, for tests
func Discard() *Logger {
	l := New("test", "error")
	l.SetOutput(io.Discard)
	return l
}

// Component returns an entry carrying the service and component fields
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithFields(logrus.Fields{"service": l.service, "component": name})
}

// Or returns l, or a default logger when l is nil
func Or(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return New("commissariat", "")
}
