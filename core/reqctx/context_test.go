package reqctx

import (
	"context"
	"testing"
	"time"

	"sharedcal/core/store"
)

func TestEmptyContextDefaults(t *testing.T) {
	ctx := context.Background()
	if ClientIP(ctx) != "" || UserAgent(ctx) != "" || RequestID(ctx) != "" {
		t.Fatalf("expected empty provenance")
	}
	if Session(ctx) != nil || Actor(ctx) != nil {
		t.Fatalf("expected no session or actor")
	}
	if Now(ctx).IsZero() {
		t.Fatalf("expected wall clock fallback")
	}
}

func TestValuesRoundTrip(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	ctx := WithClientMetadata(context.Background(), "203.0.113.7", "curl/8.0")
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithTime(ctx, fixed)
	ctx = WithSession(ctx, &store.SessionRecord{ID: "s1", Username: "alice"})
	ctx = WithActor(ctx, &store.Actor{AdminID: 3, UserID: 7, Username: "alice"})
	if ClientIP(ctx) != "203.0.113.7" || UserAgent(ctx) != "curl/8.0" {
		t.Fatalf("unexpected provenance %q %q", ClientIP(ctx), UserAgent(ctx))
	}
	if RequestID(ctx) != "req-42" || !Now(ctx).Equal(fixed) {
		t.Fatalf("unexpected request metadata")
	}
	if Session(ctx).Username != "alice" || Actor(ctx).AdminID != 3 {
		t.Fatalf("unexpected session/actor")
	}
}

func TestWithNilActorKeepsContext(t *testing.T) {
	ctx := context.Background()
	if WithActor(ctx, nil) != ctx {
		t.Fatalf("nil actor should not wrap the context")
	}
}
