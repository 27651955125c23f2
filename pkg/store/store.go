// Package store defines the document store boundary of the order API.
//
// The real backing service is a managed document database; this package
// treats it as an opaque keyed read/write/query service. Callers see
// JSON-serializable payloads and generic errors; failure isolation
// (circuit breaking, pacing) is layered on through Guarded.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound indicates the requested document does not exist. It is a
// successful call with an absent result, not a downstream failure.
var ErrNotFound = errors.New("document not found")

// Filter is a single field comparison applied by a query.
type Filter struct {
	Field string
	Op    string // "==", ">=", "<="
	Value any
}

// Query describes a filtered, ordered, paginated collection read.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
	Offset     int
}

// BatchOp is one operation inside a batch write. An "increment" op
// adds the numeric fields of Doc to the stored document, creating it
// when absent; the read-modify-write runs inside the batch's atomic
// scope, so concurrent increments never lose updates.
type BatchOp struct {
	Kind       string // "add", "update", "delete", "increment"
	Collection string
	ID         string
	Doc        json.RawMessage
}

// DocumentStore is the opaque interface the performance layer consumes.
// All implementations must be safe for concurrent use.
type DocumentStore interface {
	// Get returns the document with the given id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)

	// Query returns the documents matching q, in order.
	Query(ctx context.Context, collection string, q Query) ([]json.RawMessage, error)

	// Add stores a new document and returns its generated id.
	Add(ctx context.Context, collection string, doc json.RawMessage) (string, error)

	// Update replaces the document with the given id, or ErrNotFound.
	Update(ctx context.Context, collection, id string, doc json.RawMessage) error

	// Delete removes the document with the given id, or ErrNotFound.
	Delete(ctx context.Context, collection, id string) error

	// Batch applies all operations atomically.
	Batch(ctx context.Context, ops []BatchOp) error
}
