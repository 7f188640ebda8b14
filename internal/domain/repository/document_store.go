package repository

import (
	"context"
	"strings"
)

// Query operators understood by every DocumentStore.
const (
	OpEqual         = "=="
	OpArrayContains = "array-contains"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

// Document is a stored document: its id within Collection plus its raw fields.
type Document struct {
	ID         string
	Collection string
	Data       map[string]interface{}
}

type Filter struct {
	Field string
	Op    string
	Value interface{}
}

type OrderBy struct {
	Field     string
	Direction Direction
}

// Query selects documents of one collection. Collection may be a nested path
// such as "conversations/{id}/messages".
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    *OrderBy
}

// FieldPath addresses a possibly nested field, e.g. {"readBy", uid}.
type FieldPath []string

func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

type Update struct {
	Path  FieldPath
	Value interface{}
}

type WriteKind int

const (
	// WriteCreate creates the document. The whole batch fails if it already exists.
	WriteCreate WriteKind = iota
	// WriteUpdate patches individual fields of an existing document.
	WriteUpdate
)

// Write is one operation of an atomic batch. Adapters commit a batch as a
// single transaction.
type Write struct {
	Kind       WriteKind
	Collection string
	DocID      string
	Data       map[string]interface{}
	Updates    []Update
}

// Subscription is a live query handle. Unsubscribe is safe to call repeatedly.
type Subscription interface {
	Unsubscribe()
}

// SnapshotFunc receives the full current result set of a live query.
type SnapshotFunc func(docs []*Document)

// DocumentStore is the reactive document database the messaging core runs on.
//
// Get returns a NOT_FOUND AppError for absent documents and STORE_ERROR for
// everything else. Subscribe re-invokes onChange with the complete result set
// whenever matching documents change; onError is invoked when the underlying
// listener fails. ServerTimestamp and Increment return sentinels resolved by
// the store at commit time.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Create(ctx context.Context, collection, id string, data map[string]interface{}) error
	Query(ctx context.Context, q Query) ([]*Document, error)
	Subscribe(ctx context.Context, q Query, onChange SnapshotFunc, onError func(error)) Subscription
	BatchWrite(ctx context.Context, writes []Write) error

	NewDocumentID(collection string) string
	ServerTimestamp() interface{}
	Increment(n int64) interface{}
}

// CollectionPath joins path segments into a collection path.
func CollectionPath(segments ...string) string {
	return strings.Join(segments, "/")
}
