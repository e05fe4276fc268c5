// Package reqctx carries request-scoped values (provenance, session, actor,
// request time) from the HTTP boundary down to services without importing net/http.
//
// Middleware sets values once per request:
//
//	ctx = reqctx.WithClientMetadata(ctx, ip, userAgent)
//	ctx = reqctx.WithActor(ctx, actor)
//
// Services and tests read or inject them:
//
//	ip := reqctx.ClientIP(ctx)
//	ctx = reqctx.WithTime(ctx, fixed)
package reqctx

import (
	"context"
	"time"

	"sharedcal/core/store"
)

type (
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	sessionKey     struct{}
	actorKey       struct{}
)

// ClientIP returns the originating client address, or "" when unknown.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent returns the client identifying header, or "" when unknown.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped time, falling back to time.Now for workers and CLI.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Session returns the session resolved for this request, if any.
func Session(ctx context.Context) *store.SessionRecord {
	if sr, ok := ctx.Value(sessionKey{}).(*store.SessionRecord); ok {
		return sr
	}
	return nil
}

func WithSession(ctx context.Context, sr *store.SessionRecord) context.Context {
	return context.WithValue(ctx, sessionKey{}, sr)
}

// Actor returns the administrator resolved once at the boundary, if any.
func Actor(ctx context.Context) *store.Actor {
	if a, ok := ctx.Value(actorKey{}).(*store.Actor); ok {
		return a
	}
	return nil
}

func WithActor(ctx context.Context, actor *store.Actor) context.Context {
	if actor == nil {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}
