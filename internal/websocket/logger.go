package websocket

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger writes connection lifecycle events with a fixed set of fields.
type Logger struct {
	logger *zap.Logger
}

func NewLogger(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{logger: l.With(zap.String("component", "websocket"))}
}

func (l *Logger) Info(event string, userID uuid.UUID, clientID string, fields ...zap.Field) {
	l.logger.Info("websocket_event", l.fields(event, userID, clientID, fields)...)
}

func (l *Logger) Warn(event string, userID uuid.UUID, clientID string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", l.fields(event, userID, clientID, fields)...)
}

func (l *Logger) Error(event string, userID uuid.UUID, clientID string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", l.fields(event, userID, clientID, append(fields, zap.Error(err)))...)
}

func (l *Logger) fields(event string, userID uuid.UUID, clientID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID.String()),
		zap.String("client_id", clientID),
	}, extra...)
}
