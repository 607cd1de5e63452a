package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for csync operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Domain keys use the "blob."/"event." prefixes; generic keys keep theirs.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Blob attributes
	// ========================================================================
	AttrBlobID     = "blob.id"
	AttrBlobType   = "blob.type"
	AttrBlobSha256 = "blob.sha256"
	AttrBlobSize   = "blob.size"
	AttrBlobOwner  = "blob.owner"
	AttrBlobPin    = "blob.pin"

	// ========================================================================
	// Event stream attributes
	// ========================================================================
	AttrEventType       = "event.type"
	AttrEventItems      = "event.items"
	AttrEventSubscriber = "event.subscriber"
	AttrEventConnection = "event.connection_id"

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrUsername = "user.name"
	AttrIsAdmin  = "user.admin"
	AttrAuth     = "auth.method"

	// ========================================================================
	// Store attributes
	// ========================================================================
	AttrStoreRows     = "store.rows_affected"
	AttrStoreRevision = "store.revision"
)

// Span names for operations.
// Format: <component>.<operation>.
const (
	// HTTP handler spans
	SpanBlobPut    = "blob.put"
	SpanBlobGet    = "blob.get"
	SpanBlobPatch  = "blob.patch"
	SpanBlobDelete = "blob.delete"
	SpanMetadata   = "blob.metadata"
	SpanUserPut    = "user.put"
	SpanUserGet    = "user.get"
	SpanUserPatch  = "user.patch"
	SpanUserDelete = "user.delete"
	SpanToken      = "token.get"

	// Background task spans
	SpanRecycleSweep = "recycler.sweep"
	SpanEventDeliver = "events.deliver"
	SpanSubscribe    = "events.subscribe"

	// Store spans
	SpanStoreTx = "store.transaction"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// BlobID returns an attribute for a blob id
func BlobID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrBlobID, id)
}

// BlobType returns an attribute for a blob type
func BlobType(t string) attribute.KeyValue {
	return attribute.String(AttrBlobType, t)
}

// BlobSha256 returns an attribute for a blob digest
func BlobSha256(digest string) attribute.KeyValue {
	return attribute.String(AttrBlobSha256, digest)
}

// BlobSize returns an attribute for a blob payload size
func BlobSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrBlobSize, size)
}

// BlobOwner returns an attribute for a blob owner
func BlobOwner(owner string) attribute.KeyValue {
	return attribute.String(AttrBlobOwner, owner)
}

// BlobPin returns an attribute for the pin flag
func BlobPin(pin bool) attribute.KeyValue {
	return attribute.Bool(AttrBlobPin, pin)
}

// EventType returns an attribute for a change event type
func EventType(t string) attribute.KeyValue {
	return attribute.String(AttrEventType, t)
}

// EventItems returns an attribute for the item count of an event
func EventItems(n int) attribute.KeyValue {
	return attribute.Int(AttrEventItems, n)
}

// EventSubscriber returns an attribute for a subscriber's user name
func EventSubscriber(user string) attribute.KeyValue {
	return attribute.String(AttrEventSubscriber, user)
}

// EventConnection returns an attribute for an events-server connection id
func EventConnection(id string) attribute.KeyValue {
	return attribute.String(AttrEventConnection, id)
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// IsAdmin returns an attribute for the admin flag of a principal
func IsAdmin(admin bool) attribute.KeyValue {
	return attribute.Bool(AttrIsAdmin, admin)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StoreRows returns an attribute for rows affected by a store operation
func StoreRows(n int64) attribute.KeyValue {
	return attribute.Int64(AttrStoreRows, n)
}

// StoreRevision returns an attribute for the revision after a mutation
func StoreRevision(rev uint64) attribute.KeyValue {
	return attribute.Int64(AttrStoreRevision, int64(rev))
}

// StartBlobSpan starts a span for a blob operation.
// This is a convenience function that sets common attributes.
func StartBlobSpan(ctx context.Context, name string, owner string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		BlobOwner(owner),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartUserSpan starts a span for a user management operation.
func StartUserSpan(ctx context.Context, name string, username string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Username(username),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartStoreSpan starts a span for a store transaction.
func StartStoreSpan(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanStoreTx, trace.WithAttributes(attrs...))
}

// StartEventSpan starts a span for an event pipeline operation.
func StartEventSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}
