package log

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger *zap.Logger
)

func init() {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.MessageKey = "message"
	cfg.LevelKey = "severity"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), level)
	logger = zap.New(core)
}

// SetLevel changes the level of every logger returned by Logger
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// With returns a context whose logger carries the key/value field
func With(ctx context.Context, key string, value interface{}) context.Context {
	fields, _ := ctx.Value(ctxKey{}).([]zap.Field)
	nfields := make([]zap.Field, len(fields), len(fields)+1)
	copy(nfields, fields)
	return context.WithValue(ctx, ctxKey{}, append(nfields, zap.Any(key, value)))
}

// Logger returns the logger with the fields stored in ctx
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return logger
	}
	if fields, ok := ctx.Value(ctxKey{}).([]zap.Field); ok {
		return logger.With(fields...)
	}
	return logger
}

// Fatal logs the message and exits with status 1
func Fatal(msg string, fields ...zap.Field) {
	logger.Fatal(msg, fields...)
}
