package lib

import (
	"io"
	"log"
	"os"
	"path"
	"time"

	"github.com/covalenthq/lumberjack"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

func rotatingFile(logDir, name string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path.Join(logDir, name),
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}
}

// NewLogger writes JSON lines to stdout and logs/server.log. The std logger used by
// the client wrappers in this package is redirected to the same file.
func NewLogger(logDir string, debug bool) *logrus.Logger {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("could not create log dir %s: %s\n", logDir, err.Error())
	}
	file := rotatingFile(logDir, "server.log")
	log.SetOutput(io.MultiWriter(os.Stdout, file))

	logger := logrus.New()
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.SetLevel(logrus.InfoLevel)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// APILogWriter tees gin's request log to logs/api.log.
func APILogWriter(logDir string) io.Writer {
	return io.MultiWriter(rotatingFile(logDir, "api.log"), os.Stdout)
}

func InitSentry(dsn, env string) error {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		AttachStacktrace: true,
	})
	if err != nil {
		log.Printf("[Sentry] init failed: %s\n", err.Error())
	}
	return err
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// LogError logs with structured context and reports to Sentry when it is initialized.
func LogError(logger logrus.FieldLogger, errorType string, err error, fields logrus.Fields) {
	logger.WithFields(fields).WithField("error_type", errorType).WithError(err).Error("Error occurred")
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		for k, v := range fields {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}
