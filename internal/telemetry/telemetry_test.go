package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "csync", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("BlobID", func(t *testing.T) {
		attr := BlobID(42)
		assert.Equal(t, AttrBlobID, string(attr.Key))
		assert.Equal(t, int64(42), attr.Value.AsInt64())
	})

	t.Run("BlobType", func(t *testing.T) {
		attr := BlobType("image")
		assert.Equal(t, AttrBlobType, string(attr.Key))
		assert.Equal(t, "image", attr.Value.AsString())
	})

	t.Run("BlobSha256", func(t *testing.T) {
		attr := BlobSha256("2cf24dba5fb0a30e")
		assert.Equal(t, AttrBlobSha256, string(attr.Key))
		assert.Equal(t, "2cf24dba5fb0a30e", attr.Value.AsString())
	})

	t.Run("BlobSize", func(t *testing.T) {
		attr := BlobSize(1048576)
		assert.Equal(t, AttrBlobSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("BlobOwner", func(t *testing.T) {
		attr := BlobOwner("alice")
		assert.Equal(t, AttrBlobOwner, string(attr.Key))
		assert.Equal(t, "alice", attr.Value.AsString())
	})

	t.Run("BlobPin", func(t *testing.T) {
		attr := BlobPin(true)
		assert.Equal(t, AttrBlobPin, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("EventType", func(t *testing.T) {
		attr := EventType("put")
		assert.Equal(t, AttrEventType, string(attr.Key))
		assert.Equal(t, "put", attr.Value.AsString())
	})

	t.Run("EventItems", func(t *testing.T) {
		attr := EventItems(3)
		assert.Equal(t, AttrEventItems, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("EventSubscriber", func(t *testing.T) {
		attr := EventSubscriber("bob")
		assert.Equal(t, AttrEventSubscriber, string(attr.Key))
		assert.Equal(t, "bob", attr.Value.AsString())
	})

	t.Run("Username", func(t *testing.T) {
		attr := Username("alice")
		assert.Equal(t, AttrUsername, string(attr.Key))
		assert.Equal(t, "alice", attr.Value.AsString())
	})

	t.Run("IsAdmin", func(t *testing.T) {
		attr := IsAdmin(false)
		assert.Equal(t, AttrIsAdmin, string(attr.Key))
		assert.False(t, attr.Value.AsBool())
	})

	t.Run("AuthMethod", func(t *testing.T) {
		attr := AuthMethod("bearer")
		assert.Equal(t, AttrAuth, string(attr.Key))
		assert.Equal(t, "bearer", attr.Value.AsString())
	})

	t.Run("StoreRows", func(t *testing.T) {
		attr := StoreRows(5)
		assert.Equal(t, AttrStoreRows, string(attr.Key))
		assert.Equal(t, int64(5), attr.Value.AsInt64())
	})

	t.Run("StoreRevision", func(t *testing.T) {
		attr := StoreRevision(7)
		assert.Equal(t, AttrStoreRevision, string(attr.Key))
		assert.Equal(t, int64(7), attr.Value.AsInt64())
	})
}

func TestStartBlobSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartBlobSpan(ctx, SpanBlobPut, "alice")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartBlobSpan(ctx, SpanBlobGet, "bob", BlobID(7), BlobType("text"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartUserSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartUserSpan(ctx, SpanUserPut, "alice", IsAdmin(true))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartStoreSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartStoreSpan(ctx)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartStoreSpan(ctx, StoreRows(2))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartEventSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartEventSpan(ctx, SpanEventDeliver, EventType("delete"), EventItems(1))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}
