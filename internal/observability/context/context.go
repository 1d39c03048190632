package context

import (
	stdcontext "context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	schoolIDKey
	actorTypeKey
	actorIDKey
)

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithSchoolID(ctx stdcontext.Context, schoolID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, schoolIDKey, strings.TrimSpace(schoolID))
}

func SchoolIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, schoolIDKey)
}

// WithActor records who is acting: "user", "cron" or "webhook".
func WithActor(ctx stdcontext.Context, actorType, actorID string) stdcontext.Context {
	ctx = stdcontext.WithValue(ctx, actorTypeKey, strings.TrimSpace(actorType))
	return stdcontext.WithValue(ctx, actorIDKey, strings.TrimSpace(actorID))
}

func ActorFromContext(ctx stdcontext.Context) (string, string) {
	return stringValue(ctx, actorTypeKey), stringValue(ctx, actorIDKey)
}

func stringValue(ctx stdcontext.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
