package logger

import (
	"os"

	"go.uber.org/zap"
)

type CanonicalLogger struct {
	l *zap.Logger
}

// NewLoggerFromEnv creates a new logger based on the LOG_FORMAT environment variable.
// Supported LOG_FORMAT values:
//   - "console" or "development": Human-readable console output with colored levels, ISO8601 timestamps
//   - "json" or "production" (default): Structured JSON output for production environments
//
// The logger automatically skips one caller frame to report the actual calling code
// instead of the wrapper function location.
func NewLoggerFromEnv(component string) (*CanonicalLogger, error) {
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "production"
	}

	var cfg zap.Config
	if logFormat == "console" || logFormat == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	zapLogger, err := cfg.Build(
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("component", component)),
	)
	if err != nil {
		return nil, err
	}

	return &CanonicalLogger{
		l: zapLogger,
	}, nil
}

// NewNop returns a logger that discards everything. Useful as the default for
// embedded library use, where logging is opt-in.
func NewNop() *CanonicalLogger {
	return &CanonicalLogger{l: zap.NewNop()}
}

func (c *CanonicalLogger) Sync() {
	_ = c.l.Sync()
}

func (c *CanonicalLogger) Info(msg string, fields ...zap.Field) {
	c.l.Info(msg, fields...)
}

func (c *CanonicalLogger) Debug(msg string, fields ...zap.Field) {
	c.l.Debug(msg, fields...)
}

func (c *CanonicalLogger) Error(msg string, fields ...zap.Field) {
	c.l.Error(msg, fields...)
}

func (c *CanonicalLogger) Fatal(msg string, fields ...zap.Field) {
	c.l.Fatal(msg, fields...)
}

func (c *CanonicalLogger) WithError(err error) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.Error(err))}
}

func (c *CanonicalLogger) WithChannel(channel string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String(FieldChannel, channel))}
}

func (c *CanonicalLogger) WithClientID(id string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String(FieldClientID, id))}
}

func (c *CanonicalLogger) Component(name string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String("component", name))}
}
