package port

import (
	"context"
	"encoding/json"
	"time"
)

// AnyVersion disables the version check on Put.
const AnyVersion int64 = -1

// Document is a JSON value stored at a slash separated path.
type Document struct {
	Path      string
	Data      json.RawMessage
	Version   int64
	UpdatedAt time.Time
}

// Key returns the last path segment.
func (d Document) Key() string {
	for i := len(d.Path) - 1; i >= 0; i-- {
		if d.Path[i] == '/' {
			return d.Path[i+1:]
		}
	}
	return d.Path
}

// DocumentStore is the hierarchical key/value store holding locks, codes and logs.
//
// Put semantics on expectedVersion: AnyVersion writes unconditionally, 0 only
// creates and any positive value is a compare-and-swap against the stored version.
// A failed precondition is reported as repository.ErrVersionConflict.
type DocumentStore interface {
	Get(ctx context.Context, path string) (Document, error)
	Put(ctx context.Context, path string, data json.RawMessage, expectedVersion int64) (int64, error)
	Delete(ctx context.Context, path string) error
	DeleteTree(ctx context.Context, prefix string) (int, error)
	List(ctx context.Context, parent string) ([]Document, error)
	Push(ctx context.Context, parent string, data json.RawMessage) (string, error)
	ListChildKeys(ctx context.Context, parent string) ([]string, error)
}
