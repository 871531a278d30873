// Package docstore is a small document database abstraction: JSON documents
// addressed by (collection, id) with single-document atomic primitives
// (field set, numeric increment, array push/pull). There are no
// cross-document transactions.
//
// Backends: MemoryStore (development, tests) and PostgresStore (JSONB rows).
// Resilient wraps either with timeouts, retries and a circuit breaker.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("docstore: document not found")
	ErrDuplicate = errors.New("docstore: duplicate document id")
	// ErrUnavailable marks transient failures that are safe to retry.
	ErrUnavailable = errors.New("docstore: unavailable")
	// ErrUnconfirmed is returned by a retried Delete that found nothing after
	// an earlier attempt failed transiently. That attempt may have committed,
	// so the document is gone but the caller cannot tell who removed it.
	ErrUnconfirmed = errors.New("docstore: delete outcome unconfirmed")
)

// Op is a filter comparison.
type Op int

const (
	// Eq matches when the field equals Value. A nil Value matches a null or
	// absent field.
	Eq Op = iota
	// Has matches when the array field contains Value.
	Has
	// Like is a case-insensitive substring match on a string field, or on
	// any element of a string array field.
	Like
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Sort orders results. An empty Field orders by insertion time.
type Sort struct {
	Field string
	Desc  bool
}

// Query selects documents in one collection. All Filters must match; when
// Any is non-empty at least one of its filters must match as well.
type Query struct {
	Filters []Filter
	Any     []Filter
	Sort    Sort
	Limit   int
	Offset  int
}

// Where is shorthand for a query with equality filters on field/value pairs.
func Where(pairs ...any) Query {
	var q Query
	for i := 0; i+1 < len(pairs); i += 2 {
		field, _ := pairs[i].(string)
		q.Filters = append(q.Filters, Filter{Field: field, Op: Eq, Value: pairs[i+1]})
	}
	return q
}

// Store is the document store contract. Documents are JSON-encoded; the store
// maintains the "createdAt" and "updatedAt" top-level fields.
type Store interface {
	// Insert stores doc under id. ErrDuplicate if id exists.
	Insert(ctx context.Context, coll, id string, doc any) error
	// Get decodes the document into dest. ErrNotFound if absent.
	Get(ctx context.Context, coll, id string, dest any) error
	// Set overwrites the given top-level fields atomically.
	Set(ctx context.Context, coll, id string, fields map[string]any) error
	// Delete removes the document and reports whether it existed.
	// Wrappers that retry may return ErrUnconfirmed instead of false.
	Delete(ctx context.Context, coll, id string) (bool, error)
	// Find decodes matching documents into dest, which must point to a slice.
	Find(ctx context.Context, coll string, q Query, dest any) error
	// Count returns the number of documents matching q, ignoring paging.
	Count(ctx context.Context, coll string, q Query) (int, error)
	// Increment adds delta to a numeric field (absent counts as zero).
	Increment(ctx context.Context, coll, id, field string, delta int64) error
	// Push appends value to an array field (absent counts as empty).
	Push(ctx context.Context, coll, id, field string, value any) error
	// Pull removes every element equal to value from an array field.
	Pull(ctx context.Context, coll, id, field string, value any) error
	// Ping reports backend readiness.
	Ping(ctx context.Context) error
}
