// Package vectorstore provides a namespaced vector index. One namespace per
// data pool; entries are chunks, standalone documents, or extracted images,
// each addressable by its own id.
package vectorstore

import (
	"context"
	"errors"
)

type Kind string

const (
	KindDocument Kind = "document"
	KindChunk    Kind = "chunk"
	KindImage    Kind = "image"
)

var (
	ErrNilEmbedding      = errors.New("vectorstore: entry embedding is required")
	ErrDimensionMismatch = errors.New("vectorstore: embedding dimension does not match namespace")
	ErrNamespaceRequired = errors.New("vectorstore: namespace is required")
)

// Entry is the persisted unit: (id, embedding, metadata-with-content).
type Entry struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	Embedding []float32              `json:"-"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// ScoredEntry is a query hit with a normalized similarity score in [0,1].
type ScoredEntry struct {
	Entry
	Score float64 `json:"score"`
}

// Filter is an equality/membership predicate over metadata fields.
type Filter struct {
	Equals map[string]string   // metadata field equals value
	AnyOf  map[string][]string // metadata field is one of values
	Tags   []string            // search_tags contains every listed tag
}

type QueryOptions struct {
	TopK            int
	Filter          *Filter
	IncludeMetadata bool
}

type RangeOptions struct {
	Cursor int
	Limit  int
}

type RangePage struct {
	Items      []Entry
	HasMore    bool
	NextCursor int
}

// DeleteOutcome reports per-id results of a batch delete. A failed vector
// delete is surfaced here, never hidden behind a single error.
type DeleteOutcome struct {
	Deleted []string
	Failed  []string
}

// Store is a namespaced vector index.
//
// Namespaces are created lazily: EnsureNamespace is idempotent and safe under
// concurrent first writers, and reads against a namespace that was never
// written return empty results rather than an error.
type Store interface {
	EnsureNamespace(ctx context.Context, namespace string, dimension int) error
	Upsert(ctx context.Context, namespace string, entry Entry) error
	Delete(ctx context.Context, namespace, id string) error
	DeleteMany(ctx context.Context, namespace string, ids []string) DeleteOutcome
	Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]ScoredEntry, error)
	Range(ctx context.Context, namespace string, opts RangeOptions) (RangePage, error)
	Count(ctx context.Context, namespace string) (int64, error)
	DropNamespace(ctx context.Context, namespace string) error
}

func (f *Filter) matches(e Entry) bool {
	if f == nil {
		return true
	}
	for key, want := range f.Equals {
		got, ok := e.Metadata[key].(string)
		if !ok || got != want {
			return false
		}
	}
	for key, values := range f.AnyOf {
		got, ok := e.Metadata[key].(string)
		if !ok {
			return false
		}
		found := false
		for _, v := range values {
			if got == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, tag := range f.Tags {
		if !hasTag(e.Metadata, tag) {
			return false
		}
	}
	return true
}

func hasTag(metadata map[string]interface{}, tag string) bool {
	raw, ok := metadata["search_tags"]
	if !ok {
		return false
	}
	switch tags := raw.(type) {
	case []string:
		for _, t := range tags {
			if t == tag {
				return true
			}
		}
	case []interface{}:
		for _, t := range tags {
			if s, ok := t.(string); ok && s == tag {
				return true
			}
		}
	}
	return false
}
