// Package log builds the process-wide zap logger and carries it through
// contexts.
package log

import (
	"context"

	"go.uber.org/zap"
)

type logCtxKey int

// Setup builds the process logger, installs it as the zap global and
// returns it. Verbose enables debug output.
func Setup(app string, verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger := zap.Must(cfg.Build()).With(zap.String("app", app))
	_ = zap.ReplaceGlobals(logger.With(zap.String("scope", "global")))
	return logger
}

func IntoContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, logCtxKey(0), logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	val := ctx.Value(logCtxKey(0))
	if val != nil {
		return val.(*zap.Logger)
	}
	zap.L().Warn("No logger in context, passing default")
	return zap.L()
}
