// Package obscontext propagates request-scoped observability values.
package obscontext

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	requestIDKey contextKey = "observability_request_id"
	walletKey    contextKey = "observability_wallet"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithWallet(ctx context.Context, walletAddress string) context.Context {
	if ctx == nil || walletAddress == "" {
		return ctx
	}
	return context.WithValue(ctx, walletKey, walletAddress)
}

func WalletFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(walletKey).(string)
	return value
}

// RequestIDFromGin resolves the request id from the request context,
// falling back to the gin key set by the logging middleware.
func RequestIDFromGin(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if ctx := c.Request.Context(); ctx != nil {
		if value := RequestIDFromContext(ctx); value != "" {
			return value
		}
	}
	return strings.TrimSpace(c.GetString("request_id"))
}
