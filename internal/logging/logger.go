package logging

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const operationIDKey contextKey = "operation_id"

type Logger struct {
	*zap.Logger
}

func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.Encoding = "console"
	config.OutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// NewNop returns a logger that discards everything. Used by tests and
// library callers that do not care about logs.
func NewNop() *Logger {
	return &Logger{zap.NewNop()}
}

// WithOperationID tags ctx with a fresh operation id unless one is present.
func WithOperationID(ctx context.Context) context.Context {
	if _, ok := OperationID(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, operationIDKey, uuid.New().String())
}

func OperationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(operationIDKey).(string)
	return id, ok
}

func (l *Logger) WithOperation(ctx context.Context) *zap.Logger {
	if id, ok := OperationID(ctx); ok {
		return l.With(zap.String("operation_id", id))
	}
	return l.Logger
}
