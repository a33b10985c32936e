package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type contextKey string

const (
	logContextKey contextKey = "log_context"
)

const (
	FieldClientID = "client_id"
	FieldChannel  = "channel"
	FieldChannels = "channels"
	FieldPrefix   = "prefix"
	FieldAddr     = "addr"

	// Listener-specific field names
	FieldDelivered = "delivered"
	FieldReason    = "reason"
)

// LogContext accumulates fields over one unit of work so they can be flushed
// in a single canonical log line when the unit finishes.
type LogContext struct {
	mu     sync.RWMutex
	fields []zap.Field
}

func NewLogContext() *LogContext {
	return &LogContext{
		fields: make([]zap.Field, 0, 10),
	}
}

func (lc *LogContext) AddField(field zap.Field) {
	if lc == nil {
		return
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.fields = append(lc.fields, field)
}

func (lc *LogContext) AddFields(fields ...zap.Field) {
	if lc == nil {
		return
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.fields = append(lc.fields, fields...)
}

func (lc *LogContext) Fields() []zap.Field {
	if lc == nil {
		return nil
	}
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	result := make([]zap.Field, len(lc.fields))
	copy(result, lc.fields)
	return result
}

func WithLogContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

func GetLogContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, ok := ctx.Value(logContextKey).(*LogContext)
	if !ok {
		return nil
	}
	return lc
}

func AddToContext(ctx context.Context, fields ...zap.Field) {
	lc := GetLogContext(ctx)
	if lc != nil {
		lc.AddFields(fields...)
	}
}
