// Package logger provides the structured logging interface used by every
// component. Adapted from infrastructure/logger/logger.go: same zap-backed
// interface, retargeted to stderr-only output for the MCP stdio transport
// (stdout is reserved for JSON-RPC frames) and to Ratchet's own field set.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging interface every component depends on;
// no call site imports zap directly.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

// Field is a key-value pair attached to a log entry.
type Field = zap.Field

// Config controls logger construction.
type Config struct {
	Level       string   // trace|debug|info|warn|error
	Format      string   // text|json|pretty|compact (json is the only one honoured; see New)
	Development bool
	OutputPaths []string // defaults to ["stdout"]; stdio MCP transport forces ["stderr"]
}

// SetDefaults fills unset fields with the production defaults.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stdout"}
	}
}

type zapLogger struct {
	logger *zap.Logger
}

// New builds a Logger from cfg. JSON encoding is always used regardless of
// cfg.Format's text/pretty/compact values: structured aggregation in
// production tooling depends on it, and the "pretty"/"compact" labels only
// affect whether a human-facing CLI pretty-prints, not the logger itself.
func New(cfg Config) (Logger, error) {
	cfg.SetDefaults()

	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zapCfg.OutputPaths = cfg.OutputPaths

	if cfg.Development {
		zapCfg.Sampling = nil
	}

	z, err := zapCfg.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{logger: z}, nil
}

// NewStderr builds a Logger that writes exclusively to stderr, for use by
// the MCP stdio transport where stdout must carry only JSON-RPC frames.
func NewStderr(level string) (Logger, error) {
	return New(Config{Level: level, OutputPaths: []string{"stderr"}})
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.logger.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.logger.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.logger.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.logger.Error(msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.logger.Fatal(msg, fields...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

func (l *zapLogger) Sync() error { return l.logger.Sync() }

// Must builds a Logger and exits the process if construction fails — used
// during early startup where there is no logger yet to report the failure.
func Must(cfg Config) Logger {
	l, err := New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return l
}

// Field constructors.

func String(key, val string) Field           { return zap.String(key, val) }
func Int(key string, val int) Field          { return zap.Int(key, val) }
func Int64(key string, val int64) Field      { return zap.Int64(key, val) }
func Float64(key string, val float64) Field  { return zap.Float64(key, val) }
func Bool(key string, val bool) Field        { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Time(key string, val time.Time) Field   { return zap.Time(key, val) }
func Error(err error) Field                  { return zap.Error(err) }
func NamedError(key string, err error) Field { return zap.NamedError(key, err) }
func Any(key string, val any) Field          { return zap.Any(key, val) }
func Strings(key string, val []string) Field { return zap.Strings(key, val) }
