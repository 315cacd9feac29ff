package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. level is one of logrus' level names
// (debug, info, warn, error); format is "json" or "text".
func Setup(level, format string) *logrus.Logger {
	return SetupWithOutput(level, format, os.Stderr)
}

// SetupWithOutput is Setup writing to w.
func SetupWithOutput(level, format string, w io.Writer) *logrus.Logger {
	l := logrus.StandardLogger()
	l.SetOutput(w)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
