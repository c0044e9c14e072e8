package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger configures the global logger. An unknown level or an
// unwritable log file leaves the previous logger untouched.
func InitLogger(level, format, output, file string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	out, err := openOutput(output, file)
	if err != nil {
		return err
	}

	l := logrus.New()
	l.SetLevel(logLevel)
	l.SetFormatter(newFormatter(format))
	l.SetOutput(out)

	Logger = l
	return nil
}

func newFormatter(format string) logrus.Formatter {
	if format == "text" {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		}
	}
	return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
}

func openOutput(output, file string) (io.Writer, error) {
	if output == "file" && file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", file, err)
		}
		return f, nil
	}
	return os.Stdout, nil
}

// GetLogger returns the global logger, initialized with defaults on
// first use
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}

// ComponentLogger returns an entry carrying the component name so log
// lines are attributable without per-call fields
func ComponentLogger(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}
