package utils

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger builds the process logger. An empty level falls back to LOG_LEVEL.
func InitLogger(level string) *logrus.Logger {
	Logger = logrus.New()

	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	Logger.SetLevel(parsed)

	Logger.SetOutput(os.Stdout)
	return Logger
}
