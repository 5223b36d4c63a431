package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context carried through the
// websocket and HTTP handlers.
type LogContext struct {
	DocumentID string    // Document being edited
	ClientID   uint64    // Session-scoped client identifier, once issued
	HasClient  bool      // Whether ClientID has been issued yet
	RemoteAddr string    // Client address
	StartTime  time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a connection to a document
func NewLogContext(documentID, remoteAddr string) *LogContext {
	return &LogContext{
		DocumentID: documentID,
		RemoteAddr: remoteAddr,
		StartTime:  time.Now(),
	}
}
