// Package oplog provides operation logger implementations for the ledger
// service: a structured zap sink and a fan-out combinator.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/remixcast/creditledger/pkg/credits"
)

// ZapLogger emits one structured log line per ledger operation.
type ZapLogger struct {
	logger *zap.Logger
}

var _ credits.OperationLogger = (*ZapLogger)(nil)

// NewZapLogger returns an operation logger writing through logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry credits.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID),
		zap.Int64("amount", entry.Amount.Int64()),
		zap.String("status", entry.Status),
	}
	if entry.Reference != "" {
		fields = append(fields, zap.String("reference", entry.Reference))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		zapLogger.logger.Warn("ledger operation", fields...)
		return
	}
	zapLogger.logger.Info("ledger operation", fields...)
}

// MultiLogger forwards each entry to every wrapped logger in order.
type MultiLogger struct {
	loggers []credits.OperationLogger
}

var _ credits.OperationLogger = (*MultiLogger)(nil)

// NewMultiLogger combines loggers into one. Nil entries are skipped.
func NewMultiLogger(loggers ...credits.OperationLogger) *MultiLogger {
	kept := make([]credits.OperationLogger, 0, len(loggers))
	for _, candidate := range loggers {
		if candidate != nil {
			kept = append(kept, candidate)
		}
	}
	return &MultiLogger{loggers: kept}
}

func (multiLogger *MultiLogger) LogOperation(ctx context.Context, entry credits.OperationLog) {
	for _, wrapped := range multiLogger.loggers {
		wrapped.LogOperation(ctx, entry)
	}
}
